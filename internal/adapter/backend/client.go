// Package backend talks to the central catering service. The POS works
// offline-first: every call here is either best-effort or reconciled later,
// so the client wraps requests in a circuit breaker instead of retrying
// aggressively against a venue's flaky uplink.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/domain"
)

var ErrAlreadyEnded = errors.New("event already ended on the backend")

// ConflictError is returned when the backend already has a different active
// event. It carries the remote event so the reconciler can offer adoption.
type ConflictError struct {
	Remote *domain.Event
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("backend has a different active event: %s", e.Remote.ID)
}

type Client struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		cb:      cb,
		log:     log,
	}
}

// StartEvent opens an event on the backend. A 409 means another event is
// already active and returns a ConflictError with the remote event.
func (c *Client) StartEvent(ctx context.Context, name string) (*domain.Event, error) {
	body := map[string]string{"name": name}
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/events", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		var ev domain.Event
		if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		return &ev, nil
	case http.StatusConflict:
		var remote domain.Event
		if err := json.NewDecoder(resp.Body).Decode(&remote); err != nil {
			return nil, fmt.Errorf("failed to decode conflicting event: %w", err)
		}
		return nil, &ConflictError{Remote: &remote}
	default:
		return nil, unexpectedStatus(resp)
	}
}

// ActiveEvent fetches the backend's current active event, or nil when there
// is none.
func (c *Client) ActiveEvent(ctx context.Context) (*domain.Event, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/events/active", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var ev domain.Event
		if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		return &ev, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, unexpectedStatus(resp)
	}
}

// SyncTabs pushes the full tab set for the event. The backend treats this as
// a replace; the store is the source of truth until the event ends.
func (c *Client) SyncTabs(ctx context.Context, eventID string, tabs []domain.Tab) error {
	resp, err := c.do(ctx, http.MethodPut, "/api/v1/events/"+eventID+"/sync", tabs)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusConflict:
		return ErrAlreadyEnded
	default:
		return unexpectedStatus(resp)
	}
}

// EndEvent finalizes the event and returns the backend-computed summary. The
// final tab set goes over SyncTabs first; ending is a bare request.
func (c *Client) EndEvent(ctx context.Context, eventID string) (*domain.EventSummary, error) {
	resp, err := c.do(ctx, http.MethodPut, "/api/v1/events/"+eventID+"/end", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var summary domain.EventSummary
		if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
			return nil, fmt.Errorf("failed to decode event summary: %w", err)
		}
		return &summary, nil
	case http.StatusConflict, http.StatusGone:
		return nil, ErrAlreadyEnded
	default:
		return nil, unexpectedStatus(resp)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	result, err := c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		// 5xx counts against the breaker; 4xx is a caller problem.
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, fmt.Errorf("backend returned %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("backend request %s %s failed: %w", method, path, err)
	}
	return result.(*http.Response), nil
}

func unexpectedStatus(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(raw))
}
