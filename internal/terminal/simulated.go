package terminal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/domain"
)

// SimulatedBridge is the test-hardware bridge: one virtual reader, card
// presentation driven by TriggerSimulatedPayment. DeclineAmount lets tests
// and demos force a declined tap for an exact charge amount.
type SimulatedBridge struct {
	Latency       time.Duration
	DeclineAmount int64
	log           *zap.Logger

	mu        sync.Mutex
	cb        Callbacks
	connected bool
	pending   *pendingPayment
}

type pendingPayment struct {
	amount   int64
	currency string
}

const simulatedSerial = "SIM-READER-001"

func NewSimulatedBridge(log *zap.Logger) *SimulatedBridge {
	return &SimulatedBridge{
		Latency: 150 * time.Millisecond,
		log:     log,
	}
}

func (b *SimulatedBridge) SetCallbacks(cb Callbacks) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cb = cb
}

func (b *SimulatedBridge) DiscoverReaders(ctx context.Context) ([]domain.Reader, error) {
	select {
	case <-time.After(b.Latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []domain.Reader{{
		Serial:    simulatedSerial,
		Label:     "Simulated reader",
		Simulated: true,
	}}, nil
}

func (b *SimulatedBridge) ConnectReader(ctx context.Context, r domain.Reader) (*domain.ReaderConnection, error) {
	if r.Serial != simulatedSerial {
		return nil, fmt.Errorf("unknown reader %s", r.Serial)
	}

	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()

	return &domain.ReaderConnection{
		Serial:       simulatedSerial,
		Connected:    true,
		Simulated:    true,
		BatteryLevel: 87,
	}, nil
}

func (b *SimulatedBridge) DisconnectReader(ctx context.Context) error {
	b.mu.Lock()
	b.connected = false
	b.pending = nil
	b.mu.Unlock()
	return nil
}

// ProcessPayment arms the reader. Nothing happens until a card is
// presented, exactly like real hardware waiting for a tap.
func (b *SimulatedBridge) ProcessPayment(ctx context.Context, amountMinor int64, currency string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return errors.New("simulated reader not connected")
	}
	b.pending = &pendingPayment{amount: amountMinor, currency: currency}
	return nil
}

// TriggerSimulatedPayment presents a test card, resolving the armed payment
// after the configured latency.
func (b *SimulatedBridge) TriggerSimulatedPayment(ctx context.Context) error {
	b.mu.Lock()
	p := b.pending
	cb := b.cb
	b.pending = nil
	b.mu.Unlock()

	if p == nil {
		return errors.New("no payment armed on simulated reader")
	}

	go func() {
		time.Sleep(b.Latency)

		if b.DeclineAmount > 0 && p.amount == b.DeclineAmount {
			if cb.OnPaymentError != nil {
				cb.OnPaymentError(errors.New("card declined: insufficient funds"))
			}
			return
		}

		if cb.OnPaymentComplete != nil {
			cb.OnPaymentComplete(domain.PaymentResult{
				Status:        domain.PaymentStatusSucceeded,
				TransactionID: "sim_" + uuid.New().String(),
				AmountMinor:   p.amount,
				Currency:      p.currency,
			})
		}
	}()
	return nil
}
