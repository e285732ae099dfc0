package ports

import (
	"context"

	"github.com/caterbase/caterpos/internal/domain"
)

// EventBackend is the backend event service collaborator.
type EventBackend interface {
	// StartEvent creates a new active event. When the backend already has an
	// active event it fails with a backend.ConflictError carrying the remote
	// event.
	StartEvent(ctx context.Context, name string) (*domain.Event, error)

	// ActiveEvent returns the currently active event, or nil when none is.
	ActiveEvent(ctx context.Context) (*domain.Event, error)

	// SyncTabs pushes the full current tab list for the event. Best-effort;
	// callers log and move on when it fails.
	SyncTabs(ctx context.Context, eventID string, tabs []domain.Tab) error

	// EndEvent finalizes the event and returns the computed summary. Callers
	// push the final tab set through SyncTabs first.
	EndEvent(ctx context.Context, eventID string) (*domain.EventSummary, error)
}

// Catalog is the read-only catalog service collaborator, polled once per
// session load.
type Catalog interface {
	Entries(ctx context.Context) ([]domain.CatalogEntry, error)
}

// Mailer sends the end-of-event summary to the organizer. Best-effort.
type Mailer interface {
	SendSummary(ctx context.Context, to string, event *domain.Event, summary *domain.EventSummary) error
}

// Secrets resolves deployment credentials (terminal API keys, relay pairing
// secrets) from an external secret store.
type Secrets interface {
	Get(ctx context.Context, name string) (string, error)
}
