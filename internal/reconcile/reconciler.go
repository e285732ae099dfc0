// Package reconcile keeps the local order store and the backend's event
// record in agreement. Local state is authoritative for tabs while an event
// runs; the backend is authoritative for event identity. Reconciliation
// never blocks order taking: every backend failure here is logged and
// retried on the next tick.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/adapter/backend"
	"github.com/caterbase/caterpos/internal/domain"
	"github.com/caterbase/caterpos/internal/observability/telemetry"
	"github.com/caterbase/caterpos/internal/ports"
	"github.com/caterbase/caterpos/internal/store"
)

var (
	ErrNoEvent     = errors.New("no active event")
	ErrEventActive = errors.New("an event is already active")
)

type Reconciler struct {
	orders  *store.Store
	backend ports.EventBackend
	mailer  ports.Mailer
	log     *zap.Logger

	syncInterval time.Duration
	summaryTo    string
}

type Config struct {
	SyncInterval time.Duration
	// SummaryTo, when set together with a mailer, receives the end-of-event
	// summary.
	SummaryTo string
}

func New(cfg Config, orders *store.Store, be ports.EventBackend, mailer ports.Mailer, log *zap.Logger) *Reconciler {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 30 * time.Second
	}
	return &Reconciler{
		orders:       orders,
		backend:      be,
		mailer:       mailer,
		log:          log,
		syncInterval: cfg.SyncInterval,
		summaryTo:    cfg.SummaryTo,
	}
}

// ReconcileOnStart aligns local state with the backend's active-event record:
//
//	backend active, local empty     -> adopt backend event, fresh tabs
//	backend active, different id    -> backend wins; keep accumulated tabs
//	backend inactive, local active  -> event ended elsewhere; clear local
//	both agree or both empty        -> no-op
//
// An unreachable backend is not an error: the register keeps running on
// local state and the next tick tries again.
func (r *Reconciler) ReconcileOnStart(ctx context.Context) error {
	remote, err := r.backend.ActiveEvent(ctx)
	if err != nil {
		r.log.Warn("Could not reach backend for startup reconciliation, running on local state",
			zap.Error(err),
		)
		return nil
	}

	local := r.orders.Event()
	switch {
	case remote != nil && local == nil:
		r.log.Info("Adopting backend event",
			zap.String("event_id", remote.ID),
			zap.String("name", remote.Name),
		)
		return r.orders.ResetEvent(ctx, remote)

	case remote != nil && local != nil && remote.ID != local.ID:
		// Identity conflict: the backend wins, but locally accumulated tabs
		// carry real orders and are kept under the adopted id.
		r.log.Warn("Local event superseded by backend event, keeping local tabs",
			zap.String("local_event_id", local.ID),
			zap.String("backend_event_id", remote.ID),
		)
		return r.orders.SetEvent(ctx, remote)

	case remote == nil && local != nil:
		r.log.Info("Local event was ended elsewhere, clearing local state",
			zap.String("event_id", local.ID),
		)
		return r.orders.ClearEvent(ctx)
	}

	return nil
}

// Run pushes the full tab list to the backend on a fixed interval until the
// context is cancelled. Push failures are logged, counted and dropped.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.syncOnce(ctx)
		}
	}
}

func (r *Reconciler) syncOnce(ctx context.Context) {
	ev := r.orders.Event()
	if ev == nil {
		return
	}

	if err := r.backend.SyncTabs(ctx, ev.ID, r.orders.Tabs()); err != nil {
		telemetry.BackendSyncFailures.Inc()
		r.log.Warn("Best-effort tab sync failed",
			zap.String("event_id", ev.ID),
			zap.Error(err),
		)
	}
}

// StartEvent opens a new event on the backend and locally. When the backend
// already has a different active event the ConflictError is returned to the
// operator, who decides between AdoptEvent and ending the remote one first.
func (r *Reconciler) StartEvent(ctx context.Context, name string) (*domain.Event, error) {
	if r.orders.Event() != nil {
		return nil, ErrEventActive
	}

	ev, err := r.backend.StartEvent(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to start event: %w", err)
	}
	if err := r.orders.ResetEvent(ctx, ev); err != nil {
		return nil, err
	}

	r.log.Info("Event started", zap.String("event_id", ev.ID), zap.String("name", ev.Name))
	return ev, nil
}

// AdoptEvent resumes a backend-active event: the remote id is taken over and
// locally accumulated tabs are kept. Tabs can exist before any event is
// adopted, so wiping them here would drop real unpaid orders.
func (r *Reconciler) AdoptEvent(ctx context.Context, ev *domain.Event) error {
	if ev == nil {
		return ErrNoEvent
	}
	if err := r.orders.SetEvent(ctx, ev); err != nil {
		return err
	}
	r.log.Info("Adopted event", zap.String("event_id", ev.ID))
	return nil
}

// EndEvent finalizes the event in two phases: the final tab list is pushed
// first, then the end request computes the summary, and only then is local
// state cleared. An event already ended elsewhere still clears local state,
// there is nothing left to settle.
func (r *Reconciler) EndEvent(ctx context.Context) (*domain.EventSummary, error) {
	ev := r.orders.Event()
	if ev == nil {
		return nil, ErrNoEvent
	}

	clearEnded := func() error {
		r.log.Warn("Event already ended on backend, clearing local state",
			zap.String("event_id", ev.ID),
		)
		if clearErr := r.orders.ClearEvent(ctx); clearErr != nil {
			return clearErr
		}
		return backend.ErrAlreadyEnded
	}

	if err := r.backend.SyncTabs(ctx, ev.ID, r.orders.Tabs()); err != nil {
		if errors.Is(err, backend.ErrAlreadyEnded) {
			return nil, clearEnded()
		}
		return nil, fmt.Errorf("failed to push final tabs: %w", err)
	}

	summary, err := r.backend.EndEvent(ctx, ev.ID)
	if err != nil {
		if errors.Is(err, backend.ErrAlreadyEnded) {
			return nil, clearEnded()
		}
		return nil, fmt.Errorf("failed to end event: %w", err)
	}

	if err := r.orders.ClearEvent(ctx); err != nil {
		return nil, err
	}

	r.log.Info("Event ended",
		zap.String("event_id", ev.ID),
		zap.Int64("total", summary.TotalMinorUnits),
		zap.Int("tabs", summary.TabCount),
	)

	if r.mailer != nil && r.summaryTo != "" {
		if err := r.mailer.SendSummary(ctx, r.summaryTo, ev, summary); err != nil {
			r.log.Warn("Failed to send event summary mail", zap.Error(err))
		}
	}

	return summary, nil
}
