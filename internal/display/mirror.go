// Package display holds the customer-facing device's view of the checkout.
// The operator device is authoritative; the mirror only replays what arrives
// on the sync channel and sends the customer's tip choice back.
package display

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/adapter/relay"
	"github.com/caterbase/caterpos/internal/domain"
	"github.com/caterbase/caterpos/internal/observability/telemetry"
	"github.com/caterbase/caterpos/internal/wire"
)

var ErrNoCheckout = errors.New("no checkout in progress")

// State is the snapshot the display UI renders from.
type State struct {
	Stage      domain.Stage
	CheckoutID string
	TabName    string
	Items      []domain.Item
	Subtotal   int64
	TipAmount  int64
	Total      int64

	Reader        domain.ReaderConnection
	TransactionID string
	FailureReason string
}

type Mirror struct {
	deviceID string
	ch       relay.Channel
	log      *zap.Logger

	mu       sync.RWMutex
	state    State
	checkout string
	lastSeq  uint64
	seq      uint64
}

func NewMirror(deviceID string, ch relay.Channel, log *zap.Logger) (*Mirror, error) {
	m := &Mirror{
		deviceID: deviceID,
		ch:       ch,
		log:      log,
		state:    State{Stage: domain.StageNone},
	}
	if err := ch.Subscribe(m.handle); err != nil {
		return nil, fmt.Errorf("failed to subscribe to sync channel: %w", err)
	}
	return m, nil
}

func (m *Mirror) handle(msg []byte) error {
	env, err := wire.Decode(msg)
	if err != nil {
		m.log.Warn("Dropping malformed sync message", zap.Error(err))
		return nil
	}
	// Some transports echo our own frames back.
	if env.DeviceID == m.deviceID {
		return nil
	}
	telemetry.SyncMessages.WithLabelValues(string(env.Type), "in").Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	// A new checkout resets the sequence window; anything else arriving out
	// of order for the current checkout is stale and dropped.
	if env.Type == wire.TypeCheckoutStart {
		m.checkout = env.CheckoutID
		m.lastSeq = env.Seq
	} else if env.CheckoutID != "" {
		if env.CheckoutID != m.checkout {
			m.log.Debug("Dropping message for unknown checkout",
				zap.String("checkout_id", env.CheckoutID),
			)
			return nil
		}
		if env.Seq <= m.lastSeq {
			m.log.Debug("Dropping stale sync message",
				zap.String("type", string(env.Type)),
				zap.Uint64("seq", env.Seq),
				zap.Uint64("last_seq", m.lastSeq),
			)
			return nil
		}
		m.lastSeq = env.Seq
	}

	switch env.Type {
	case wire.TypeCheckoutStart:
		var p wire.CheckoutStart
		if err := wire.DecodePayload(env, &p); err != nil {
			return err
		}
		m.state = State{
			Stage:      domain.StageTipSelection,
			CheckoutID: env.CheckoutID,
			TabName:    p.TabName,
			Items:      p.Items,
			Subtotal:   p.Subtotal,
			Reader:     m.state.Reader,
		}

	case wire.TypeCheckoutStage:
		var p wire.CheckoutStage
		if err := wire.DecodePayload(env, &p); err != nil {
			return err
		}
		m.state.Stage = p.Stage
		switch p.Stage {
		case domain.StageNone:
			m.reset()
		case domain.StagePaymentPending:
			// Returning here after a decline clears the failure banner.
			m.state.FailureReason = ""
		}

	case wire.TypeCheckoutComplete:
		var p wire.CheckoutComplete
		if err := wire.DecodePayload(env, &p); err != nil {
			return err
		}
		m.state.Stage = domain.StageSuccess
		m.state.TipAmount = p.TipAmount
		m.state.Total = p.Total

	case wire.TypeCheckoutCancel:
		m.reset()

	case wire.TypeReaderStatus:
		var p wire.ReaderStatus
		if err := wire.DecodePayload(env, &p); err != nil {
			return err
		}
		m.state.Reader = domain.ReaderConnection{
			Serial:       p.Serial,
			Connected:    p.Connected,
			Simulated:    p.Simulated,
			BatteryLevel: p.BatteryLevel,
		}

	case wire.TypePaymentStatus:
		var p wire.PaymentStatus
		if err := wire.DecodePayload(env, &p); err != nil {
			return err
		}
		m.state.TransactionID = p.TransactionID
		m.state.FailureReason = p.FailureReason

	case wire.TypeProcessPayment, wire.TypeSimulateTap:
		// Display-originated; nothing to mirror.
	}

	return nil
}

func (m *Mirror) reset() {
	reader := m.state.Reader
	m.state = State{Stage: domain.StageNone, Reader: reader}
	m.checkout = ""
	m.lastSeq = 0
}

// State returns a copy of the current view.
func (m *Mirror) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.state
	s.Items = make([]domain.Item, len(m.state.Items))
	copy(s.Items, m.state.Items)
	return s
}

// SelectTip sends the customer's choice to the operator. The amount on the
// wire is the full charge; the operator derives the tip from its own
// subtotal.
func (m *Mirror) SelectTip(tip int64) error {
	if tip < 0 {
		return fmt.Errorf("tip cannot be negative")
	}

	m.mu.Lock()
	if m.state.Stage != domain.StageTipSelection {
		m.mu.Unlock()
		return ErrNoCheckout
	}
	m.seq++
	seq := m.seq
	checkoutID := m.state.CheckoutID
	amount := m.state.Subtotal + tip
	m.state.TipAmount = tip
	m.mu.Unlock()

	raw, err := wire.Encode(wire.TypeProcessPayment, m.deviceID, checkoutID, seq, wire.ProcessPayment{
		AmountMinorUnits: amount,
	})
	if err != nil {
		return err
	}
	telemetry.SyncMessages.WithLabelValues(string(wire.TypeProcessPayment), "out").Inc()
	return m.ch.Publish(raw)
}

// SimulateTap asks the operator device to present the simulated card. Only
// meaningful against a simulated reader; the operator rejects it otherwise.
func (m *Mirror) SimulateTap() error {
	m.mu.Lock()
	stage := m.state.Stage
	if stage != domain.StagePaymentPending && stage != domain.StageProcessing {
		m.mu.Unlock()
		return ErrNoCheckout
	}
	m.seq++
	seq := m.seq
	checkoutID := m.state.CheckoutID
	m.mu.Unlock()

	raw, err := wire.Encode(wire.TypeSimulateTap, m.deviceID, checkoutID, seq, nil)
	if err != nil {
		return err
	}
	telemetry.SyncMessages.WithLabelValues(string(wire.TypeSimulateTap), "out").Inc()
	return m.ch.Publish(raw)
}
