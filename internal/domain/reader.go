package domain

// Reader identifies a card reader found during discovery.
type Reader struct {
	Serial    string `json:"serial"`
	Label     string `json:"label,omitempty"`
	Simulated bool   `json:"simulated"`
}

// ReaderConnection describes the terminal currently paired with a device.
// Lifecycle is owned by the terminal adapter and reported to peers over the
// sync channel, never persisted.
type ReaderConnection struct {
	Serial       string `json:"serial"`
	Connected    bool   `json:"connected"`
	Simulated    bool   `json:"simulated"`
	BatteryLevel int    `json:"battery_level"` // percent, -1 when unknown
}

type PaymentStatus string

const (
	PaymentStatusCollecting PaymentStatus = "collecting"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// PaymentResult is what the terminal bridge reports back for one attempt.
type PaymentResult struct {
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	AmountMinor   int64         `json:"amount_minor"`
	Currency      string        `json:"currency"`
	FailureReason string        `json:"failure_reason,omitempty"`
}
