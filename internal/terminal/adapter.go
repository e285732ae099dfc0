package terminal

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/domain"
)

var (
	// ErrPaymentInProgress rejects a second attempt while a reader is
	// already collecting. One attempt per reader at a time.
	ErrPaymentInProgress = errors.New("payment already in progress")

	// ErrNoTerminal signals that no reader is paired or reachable. The
	// checkout controller falls back to manual confirmation instead of
	// hanging on a bridge that will never answer.
	ErrNoTerminal = errors.New("no payment terminal available")

	// ErrNothingToRetry is returned by Retry before any attempt was made.
	ErrNothingToRetry = errors.New("no failed payment to retry")

	// ErrNotSimulated rejects simulated taps on real hardware.
	ErrNotSimulated = errors.New("connected reader is not simulated")
)

const defaultDiscoveryWindow = 10 * time.Second

// StatusEvent is pushed to subscribers on every attempt-state change.
type StatusEvent struct {
	Status domain.PaymentStatus
	Result *domain.PaymentResult // set on succeeded
	Err    error                 // set on failed
}

// Adapter wraps a card-reader bridge behind a uniform asynchronous
// interface. Per payment attempt it runs idle -> collecting -> succeeded or
// failed; failed drops back to idle keeping the amount so the same charge
// can be resubmitted with Retry without rebuilding the attempt.
type Adapter struct {
	bridge          Bridge
	discoveryWindow time.Duration
	log             *zap.Logger

	mu         sync.Mutex
	collecting bool
	conn       *domain.ReaderConnection
	lastAmount int64
	lastCurr   string
	attempted  bool
	subs       []func(StatusEvent)
}

func NewAdapter(bridge Bridge, discoveryWindow time.Duration, log *zap.Logger) *Adapter {
	if discoveryWindow <= 0 {
		discoveryWindow = defaultDiscoveryWindow
	}
	a := &Adapter{
		bridge:          bridge,
		discoveryWindow: discoveryWindow,
		log:             log,
	}
	if bridge != nil {
		bridge.SetCallbacks(Callbacks{
			OnPaymentComplete: a.handleComplete,
			OnPaymentError:    a.handleError,
		})
	}
	return a
}

// Notify registers a subscriber for attempt-state changes. Subscribers are
// invoked from bridge callback goroutines and must not block.
func (a *Adapter) Notify(fn func(StatusEvent)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subs = append(a.subs, fn)
}

// Discover emits discovered readers over the returned channel for a fixed
// window, then closes it. Callers range over the channel; it always closes,
// reader or not.
func (a *Adapter) Discover(ctx context.Context) <-chan domain.Reader {
	out := make(chan domain.Reader)

	go func() {
		defer close(out)

		if a.bridge == nil {
			return
		}

		wctx, cancel := context.WithTimeout(ctx, a.discoveryWindow)
		defer cancel()

		readers, err := a.bridge.DiscoverReaders(wctx)
		if err != nil {
			a.log.Warn("Reader discovery failed", zap.Error(err))
			return
		}
		for _, r := range readers {
			select {
			case out <- r:
			case <-wctx.Done():
				return
			}
		}
	}()

	return out
}

// Connect pairs with the reader and remembers the connection.
func (a *Adapter) Connect(ctx context.Context, r domain.Reader) (*domain.ReaderConnection, error) {
	if a.bridge == nil {
		return nil, ErrNoTerminal
	}

	conn, err := a.bridge.ConnectReader(ctx, r)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	a.log.Info("Reader connected",
		zap.String("serial", conn.Serial),
		zap.Bool("simulated", conn.Simulated),
	)
	return conn, nil
}

// Disconnect releases the paired reader.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	hadConn := a.conn != nil
	a.conn = nil
	a.collecting = false
	a.mu.Unlock()

	if a.bridge == nil || !hadConn {
		return nil
	}
	return a.bridge.DisconnectReader(ctx)
}

// Connection returns the current reader pairing, or nil.
func (a *Adapter) Connection() *domain.ReaderConnection {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	c := *a.conn
	return &c
}

// Available reports whether a payment can be attempted at all.
func (a *Adapter) Available() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bridge != nil && a.conn != nil && a.conn.Connected
}

// ProcessPayment starts collecting the amount on the paired reader. The
// outcome arrives on subscriber callbacks.
func (a *Adapter) ProcessPayment(ctx context.Context, amountMinor int64, currency string) error {
	a.mu.Lock()
	if a.bridge == nil || a.conn == nil || !a.conn.Connected {
		a.mu.Unlock()
		return ErrNoTerminal
	}
	if a.collecting {
		a.mu.Unlock()
		return ErrPaymentInProgress
	}
	a.collecting = true
	a.lastAmount = amountMinor
	a.lastCurr = currency
	a.attempted = true
	a.mu.Unlock()

	if err := a.bridge.ProcessPayment(ctx, amountMinor, currency); err != nil {
		a.mu.Lock()
		a.collecting = false
		a.mu.Unlock()
		return err
	}

	a.log.Info("Collecting payment",
		zap.Int64("amount_minor", amountMinor),
		zap.String("currency", currency),
	)
	a.publish(StatusEvent{Status: domain.PaymentStatusCollecting})
	return nil
}

// Retry resubmits the last attempted amount after a failure.
func (a *Adapter) Retry(ctx context.Context) error {
	a.mu.Lock()
	if !a.attempted {
		a.mu.Unlock()
		return ErrNothingToRetry
	}
	amount, currency := a.lastAmount, a.lastCurr
	a.mu.Unlock()

	return a.ProcessPayment(ctx, amount, currency)
}

// SimulateCardPresentation taps a test card on simulated hardware.
func (a *Adapter) SimulateCardPresentation(ctx context.Context) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()

	if a.bridge == nil || conn == nil {
		return ErrNoTerminal
	}
	if !conn.Simulated {
		return ErrNotSimulated
	}
	return a.bridge.TriggerSimulatedPayment(ctx)
}

func (a *Adapter) handleComplete(res domain.PaymentResult) {
	a.mu.Lock()
	a.collecting = false
	a.mu.Unlock()

	a.log.Info("Payment completed",
		zap.String("status", string(res.Status)),
		zap.String("transaction_id", res.TransactionID),
	)
	a.publish(StatusEvent{Status: res.Status, Result: &res})
}

func (a *Adapter) handleError(err error) {
	a.mu.Lock()
	a.collecting = false
	a.mu.Unlock()

	a.log.Warn("Payment failed", zap.Error(err))
	a.publish(StatusEvent{Status: domain.PaymentStatusFailed, Err: err})
}

func (a *Adapter) publish(ev StatusEvent) {
	a.mu.Lock()
	subs := make([]func(StatusEvent), len(a.subs))
	copy(subs, a.subs)
	a.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
