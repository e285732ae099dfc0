package domain

import (
	"time"
)

// Stage is the customer-visible phase of a checkout session.
type Stage string

const (
	StageNone           Stage = "none"
	StageTipSelection   Stage = "tip_selection"
	StageTabView        Stage = "tab_view"
	StagePaymentPending Stage = "payment_pending"
	StageProcessing     Stage = "processing"
	StageSuccess        Stage = "success"
	StageFailed         Stage = "failed"
)

// CheckoutSession is the ephemeral, cross-device-visible process of turning
// a tab into a paid transaction. It is never persisted across restarts. The
// item list is a snapshot copied at checkout start so the customer display
// stays stable even if the tab were mutated underneath it.
type CheckoutSession struct {
	ID                string    `json:"id"`
	TabID             string    `json:"tab_id"`
	TabName           string    `json:"tab_name"`
	Items             []Item    `json:"items"`
	Subtotal          int64     `json:"subtotal"` // minor units
	Stage             Stage     `json:"stage"`
	TipAmount         int64     `json:"tip_amount"` // minor units
	LastPaymentStatus string    `json:"last_payment_status,omitempty"`
	StartedAt         time.Time `json:"started_at"`
}

// Total is the pending charge amount: subtotal plus the chosen tip.
func (s CheckoutSession) Total() int64 {
	return s.Subtotal + s.TipAmount
}
