// Package wire defines the messages exchanged between the operator and
// customer-facing devices over the sync channel. Messages are JSON,
// fire-and-forget; the protocol requires no acknowledgments. The only
// ordering guarantee is arrival order from a single sender, so envelopes
// carry a per-session sequence number consumers use to drop stale stages.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/caterbase/caterpos/internal/domain"
)

type Type string

const (
	TypeCheckoutStart    Type = "checkout_start"
	TypeCheckoutStage    Type = "checkout_stage"
	TypeCheckoutComplete Type = "checkout_complete"
	TypeCheckoutCancel   Type = "checkout_cancel"
	TypeProcessPayment   Type = "process_payment"
	TypeSimulateTap      Type = "simulate_tap"
	TypeReaderStatus     Type = "reader_status"
	TypePaymentStatus    Type = "payment_status"
)

// Envelope wraps every message on the channel.
type Envelope struct {
	Type       Type            `json:"type"`
	Seq        uint64          `json:"seq"`
	DeviceID   string          `json:"device_id"`
	CheckoutID string          `json:"checkout_id,omitempty"`
	SentAt     time.Time       `json:"sent_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type CheckoutStart struct {
	Items    []domain.Item `json:"items"`
	Subtotal int64         `json:"subtotal"`
	TabRef   string        `json:"tab_ref"`
	TabName  string        `json:"tab_name"`
}

type CheckoutStage struct {
	Stage domain.Stage `json:"stage"`
}

type CheckoutComplete struct {
	TipAmount int64  `json:"tip_amount"`
	Total     int64  `json:"total"`
	TabRef    string `json:"tab_ref"`
}

type ProcessPayment struct {
	AmountMinorUnits int64 `json:"amount_minor_units"`
}

type ReaderStatus struct {
	Connected    bool   `json:"connected"`
	Simulated    bool   `json:"simulated"`
	Serial       string `json:"serial,omitempty"`
	BatteryLevel int    `json:"battery_level,omitempty"`
}

type PaymentStatus struct {
	Status        domain.PaymentStatus `json:"status"`
	CheckoutID    string               `json:"checkout_id"`
	TransactionID string               `json:"transaction_id,omitempty"`
	FailureReason string               `json:"failure_reason,omitempty"`
}

// Encode builds an envelope around the payload. A nil payload is valid for
// bare signals like checkout_cancel and simulate_tap.
func Encode(typ Type, deviceID, checkoutID string, seq uint64, payload interface{}) ([]byte, error) {
	env := Envelope{
		Type:       typ,
		Seq:        seq,
		DeviceID:   deviceID,
		CheckoutID: checkoutID,
		SentAt:     time.Now(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", typ, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decode parses an envelope from the channel.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed sync message: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("sync message missing type")
	}
	return &env, nil
}

// DecodePayload unmarshals the envelope payload into out.
func DecodePayload(env *Envelope, out interface{}) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
	}
	return nil
}
