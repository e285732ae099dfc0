package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/domain"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewClient(srv.URL, 5*time.Second, zap.NewNop()), srv
}

func TestStartEvent(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/events" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["name"] != "Gala" {
			t.Errorf("bad request body: %v %v", body, err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(domain.Event{ID: "evt-1", Name: "Gala", Status: domain.EventStatusActive})
	})
	defer srv.Close()

	ev, err := c.StartEvent(context.Background(), "Gala")
	if err != nil {
		t.Fatalf("StartEvent failed: %v", err)
	}
	if ev.ID != "evt-1" || ev.Name != "Gala" {
		t.Errorf("event = %+v", ev)
	}
}

func TestStartEventConflictCarriesRemote(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(domain.Event{ID: "evt-remote", Name: "Other party"})
	})
	defer srv.Close()

	_, err := c.StartEvent(context.Background(), "Gala")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Remote == nil || conflict.Remote.ID != "evt-remote" {
		t.Errorf("remote = %+v", conflict.Remote)
	}
}

func TestActiveEventNotFoundIsNil(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer srv.Close()

	ev, err := c.ActiveEvent(context.Background())
	if err != nil {
		t.Fatalf("ActiveEvent failed: %v", err)
	}
	if ev != nil {
		t.Errorf("expected nil event, got %+v", ev)
	}
}

func TestSyncTabsConflictMeansEnded(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/v1/events/evt-1/sync" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusConflict)
	})
	defer srv.Close()

	err := c.SyncTabs(context.Background(), "evt-1", []domain.Tab{{ID: "tab-1"}})
	if !errors.Is(err, ErrAlreadyEnded) {
		t.Errorf("expected ErrAlreadyEnded, got %v", err)
	}
}

func TestEndEvent(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/v1/events/evt-1/end" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		// The final tab set travels over the sync endpoint, never here.
		if raw, _ := io.ReadAll(r.Body); len(raw) != 0 {
			t.Errorf("end request carried a body: %s", raw)
		}
		json.NewEncoder(w).Encode(domain.EventSummary{TotalMinorUnits: 500000, TabCount: 2})
	})
	defer srv.Close()

	summary, err := c.EndEvent(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("EndEvent failed: %v", err)
	}
	if summary.TotalMinorUnits != 500000 || summary.TabCount != 2 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestEndEventGone(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	defer srv.Close()

	if _, err := c.EndEvent(context.Background(), "evt-1"); !errors.Is(err, ErrAlreadyEnded) {
		t.Errorf("expected ErrAlreadyEnded, got %v", err)
	}
}

func TestBreakerOpensAfterConsecutiveServerErrors(t *testing.T) {
	var hits int
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := c.ActiveEvent(ctx); err == nil {
			t.Fatal("expected 5xx error")
		}
	}

	// Breaker is open now; the request never reaches the server.
	before := hits
	if _, err := c.ActiveEvent(ctx); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected ErrOpenState, got %v", err)
	}
	if hits != before {
		t.Errorf("open breaker still let a request through (%d hits)", hits)
	}
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	var hits int
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadRequest)
	})
	defer srv.Close()
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if _, err := c.ActiveEvent(ctx); err == nil {
			t.Fatal("expected error for 400")
		}
	}
	// Every request reached the server: 4xx never opens the breaker.
	if hits != 8 {
		t.Errorf("breaker interfered with client errors: %d hits, want 8", hits)
	}
}
