package domain

import (
	"time"
)

type EventStatus string

const (
	EventStatusActive EventStatus = "active"
	EventStatusEnded  EventStatus = "ended"
)

// Event is one catering engagement. Exactly one event may be active per
// backend record; local and backend state can transiently disagree until
// the reconciler resolves them.
type Event struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	StartedAt time.Time     `json:"started_at"`
	Status    EventStatus   `json:"status"`
	Summary   *EventSummary `json:"summary,omitempty"`
}

// EventSummary is computed server-side when an event ends.
type EventSummary struct {
	TotalMinorUnits int64            `json:"total_minor_units"`
	ItemCount       int              `json:"item_count"`
	TabCount        int              `json:"tab_count"`
	ByCategory      map[string]int64 `json:"by_category"` // category -> minor units
	ByHour          map[string]int64 `json:"by_hour"`     // "15:00" -> minor units
}
