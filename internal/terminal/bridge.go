package terminal

import (
	"context"

	"github.com/caterbase/caterpos/internal/domain"
)

// Callbacks carry payment outcomes from the bridge back to the adapter.
// The underlying hardware is callback-driven and may take seconds, so no
// bridge operation reports a payment result by return value.
type Callbacks struct {
	OnPaymentComplete func(domain.PaymentResult)
	OnPaymentError    func(error)
}

// Bridge is the injected card-reader capability. Production uses the
// Stripe Terminal implementation; tests and offline demos use the
// simulated one. Swapping bridges never touches the payment state machine.
type Bridge interface {
	// DiscoverReaders lists the readers reachable right now. The adapter
	// bounds the call with the discovery window.
	DiscoverReaders(ctx context.Context) ([]domain.Reader, error)

	// ConnectReader pairs this device with a reader.
	ConnectReader(ctx context.Context, r domain.Reader) (*domain.ReaderConnection, error)

	// DisconnectReader releases the paired reader.
	DisconnectReader(ctx context.Context) error

	// ProcessPayment starts collecting a card for the amount. The outcome
	// arrives via Callbacks, never here.
	ProcessPayment(ctx context.Context, amountMinor int64, currency string) error

	// TriggerSimulatedPayment presents a test card on simulated hardware.
	TriggerSimulatedPayment(ctx context.Context) error

	// SetCallbacks registers the host-invoked result callbacks.
	SetCallbacks(cb Callbacks)
}
