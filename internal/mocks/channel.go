package mocks

import (
	"context"
	"sync"

	"github.com/caterbase/caterpos/internal/domain"
	"github.com/caterbase/caterpos/internal/terminal"
)

// MockChannel is a mock sync channel that records published frames and lets
// tests inject inbound ones.
type MockChannel struct {
	mu        sync.Mutex
	Published [][]byte
	handler   func(msg []byte) error

	PublishErr error
	Down       bool
}

func (m *MockChannel) Publish(msg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	stored := make([]byte, len(msg))
	copy(stored, msg)
	m.Published = append(m.Published, stored)
	return nil
}

func (m *MockChannel) Subscribe(handler func(msg []byte) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
	return nil
}

func (m *MockChannel) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Down
}

func (m *MockChannel) Close() error { return nil }

// Deliver feeds a frame to the subscribed handler as if it arrived from the
// relay.
func (m *MockChannel) Deliver(msg []byte) error {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler == nil {
		return nil
	}
	return handler(msg)
}

// Messages returns a copy of everything published so far.
func (m *MockChannel) Messages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.Published))
	copy(out, m.Published)
	return out
}

// MockBridge is a mock card-reader bridge
type MockBridge struct {
	DiscoverReadersFunc         func(ctx context.Context) ([]domain.Reader, error)
	ConnectReaderFunc           func(ctx context.Context, r domain.Reader) (*domain.ReaderConnection, error)
	DisconnectReaderFunc        func(ctx context.Context) error
	ProcessPaymentFunc          func(ctx context.Context, amountMinor int64, currency string) error
	TriggerSimulatedPaymentFunc func(ctx context.Context) error

	Callbacks terminal.Callbacks
}

func (m *MockBridge) DiscoverReaders(ctx context.Context) ([]domain.Reader, error) {
	if m.DiscoverReadersFunc != nil {
		return m.DiscoverReadersFunc(ctx)
	}
	return nil, nil
}

func (m *MockBridge) ConnectReader(ctx context.Context, r domain.Reader) (*domain.ReaderConnection, error) {
	if m.ConnectReaderFunc != nil {
		return m.ConnectReaderFunc(ctx, r)
	}
	return &domain.ReaderConnection{Serial: r.Serial, Connected: true, Simulated: r.Simulated}, nil
}

func (m *MockBridge) DisconnectReader(ctx context.Context) error {
	if m.DisconnectReaderFunc != nil {
		return m.DisconnectReaderFunc(ctx)
	}
	return nil
}

func (m *MockBridge) ProcessPayment(ctx context.Context, amountMinor int64, currency string) error {
	if m.ProcessPaymentFunc != nil {
		return m.ProcessPaymentFunc(ctx, amountMinor, currency)
	}
	return nil
}

func (m *MockBridge) TriggerSimulatedPayment(ctx context.Context) error {
	if m.TriggerSimulatedPaymentFunc != nil {
		return m.TriggerSimulatedPaymentFunc(ctx)
	}
	return nil
}

func (m *MockBridge) SetCallbacks(cb terminal.Callbacks) {
	m.Callbacks = cb
}
