package terminal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	terminalreader "github.com/stripe/stripe-go/v76/terminal/reader"
	testreader "github.com/stripe/stripe-go/v76/testhelpers/terminal/reader"
	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/domain"
)

// StripeBridge drives Stripe Terminal readers server-side: discovery is the
// reader list, collection is process_payment_intent on the paired reader,
// and the outcome is polled from the reader action since Stripe reports
// hardware results asynchronously.
type StripeBridge struct {
	location string
	log      *zap.Logger

	mu       sync.Mutex
	cb       Callbacks
	readerID string
	sim      bool
}

const (
	stripePollInterval = time.Second
	stripePollTimeout  = 90 * time.Second

	// TerminalReader.Status is a bare string in stripe-go v76.
	stripeReaderOnline = "online"
)

func NewStripeBridge(secretKey, location string, log *zap.Logger) *StripeBridge {
	stripe.Key = secretKey
	return &StripeBridge{
		location: location,
		log:      log,
	}
}

func (b *StripeBridge) SetCallbacks(cb Callbacks) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cb = cb
}

func (b *StripeBridge) DiscoverReaders(ctx context.Context) ([]domain.Reader, error) {
	params := &stripe.TerminalReaderListParams{}
	if b.location != "" {
		params.Location = stripe.String(b.location)
	}
	params.Context = ctx

	var readers []domain.Reader
	it := terminalreader.List(params)
	for it.Next() {
		r := it.TerminalReader()
		if r.Status != stripeReaderOnline {
			continue
		}
		readers = append(readers, domain.Reader{
			Serial:    r.ID,
			Label:     r.Label,
			Simulated: strings.HasPrefix(string(r.DeviceType), "simulated"),
		})
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("stripe reader list failed: %w", err)
	}
	return readers, nil
}

func (b *StripeBridge) ConnectReader(ctx context.Context, r domain.Reader) (*domain.ReaderConnection, error) {
	tr, err := terminalreader.Get(r.Serial, &stripe.TerminalReaderParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return nil, fmt.Errorf("stripe reader lookup failed: %w", err)
	}
	if tr.Status != stripeReaderOnline {
		return nil, fmt.Errorf("reader %s is offline", r.Serial)
	}

	b.mu.Lock()
	b.readerID = tr.ID
	b.sim = strings.HasPrefix(string(tr.DeviceType), "simulated")
	b.mu.Unlock()

	return &domain.ReaderConnection{
		Serial:       tr.ID,
		Connected:    true,
		Simulated:    b.sim,
		BatteryLevel: -1, // server-driven readers do not report battery
	}, nil
}

func (b *StripeBridge) DisconnectReader(ctx context.Context) error {
	b.mu.Lock()
	readerID := b.readerID
	b.readerID = ""
	b.mu.Unlock()

	if readerID == "" {
		return nil
	}
	_, err := terminalreader.CancelAction(readerID, &stripe.TerminalReaderCancelActionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		// Nothing in flight is fine; the pairing is released either way.
		b.log.Debug("Cancel reader action failed", zap.Error(err))
	}
	return nil
}

func (b *StripeBridge) ProcessPayment(ctx context.Context, amountMinor int64, currency string) error {
	b.mu.Lock()
	readerID := b.readerID
	cb := b.cb
	b.mu.Unlock()

	if readerID == "" {
		return errors.New("no stripe reader paired")
	}

	pi, err := paymentintent.New(&stripe.PaymentIntentParams{
		Params:             stripe.Params{Context: ctx},
		Amount:             stripe.Int64(amountMinor),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card_present"}),
		CaptureMethod:      stripe.String(string(stripe.PaymentIntentCaptureMethodAutomatic)),
	})
	if err != nil {
		return fmt.Errorf("stripe payment intent failed: %w", err)
	}

	_, err = terminalreader.ProcessPaymentIntent(readerID, &stripe.TerminalReaderProcessPaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(pi.ID),
	})
	if err != nil {
		return fmt.Errorf("stripe reader process failed: %w", err)
	}

	go b.pollOutcome(readerID, pi.ID, amountMinor, currency, cb)
	return nil
}

func (b *StripeBridge) TriggerSimulatedPayment(ctx context.Context) error {
	b.mu.Lock()
	readerID := b.readerID
	sim := b.sim
	b.mu.Unlock()

	if readerID == "" {
		return errors.New("no stripe reader paired")
	}
	if !sim {
		return ErrNotSimulated
	}

	_, err := testreader.PresentPaymentMethod(readerID, &stripe.TestHelpersTerminalReaderPresentPaymentMethodParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return fmt.Errorf("stripe simulated presentment failed: %w", err)
	}
	return nil
}

// pollOutcome watches the reader action until the hardware reports a
// terminal state, then fires the host callbacks.
func (b *StripeBridge) pollOutcome(readerID, intentID string, amountMinor int64, currency string, cb Callbacks) {
	deadline := time.Now().Add(stripePollTimeout)

	for time.Now().Before(deadline) {
		time.Sleep(stripePollInterval)

		tr, err := terminalreader.Get(readerID, nil)
		if err != nil {
			b.log.Warn("Reader poll failed", zap.Error(err))
			continue
		}
		if tr.Action == nil {
			continue
		}

		switch tr.Action.Status {
		case stripe.TerminalReaderActionStatusSucceeded:
			pi, err := paymentintent.Get(intentID, nil)
			txnID := intentID
			if err == nil && pi.LatestCharge != nil {
				txnID = pi.LatestCharge.ID
			}
			if cb.OnPaymentComplete != nil {
				cb.OnPaymentComplete(domain.PaymentResult{
					Status:        domain.PaymentStatusSucceeded,
					TransactionID: txnID,
					AmountMinor:   amountMinor,
					Currency:      currency,
				})
			}
			return

		case stripe.TerminalReaderActionStatusFailed:
			msg := tr.Action.FailureMessage
			if msg == "" {
				msg = "card collection failed"
			}
			if cb.OnPaymentError != nil {
				cb.OnPaymentError(errors.New(msg))
			}
			return
		}
	}

	if cb.OnPaymentError != nil {
		cb.OnPaymentError(fmt.Errorf("payment %s timed out at the reader", intentID))
	}
}
