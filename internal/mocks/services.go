package mocks

import (
	"context"

	"github.com/caterbase/caterpos/internal/domain"
)

// MockEventBackend is a mock implementation of EventBackend
type MockEventBackend struct {
	StartEventFunc  func(ctx context.Context, name string) (*domain.Event, error)
	ActiveEventFunc func(ctx context.Context) (*domain.Event, error)
	SyncTabsFunc    func(ctx context.Context, eventID string, tabs []domain.Tab) error
	EndEventFunc    func(ctx context.Context, eventID string) (*domain.EventSummary, error)
}

func (m *MockEventBackend) StartEvent(ctx context.Context, name string) (*domain.Event, error) {
	if m.StartEventFunc != nil {
		return m.StartEventFunc(ctx, name)
	}
	return nil, nil
}

func (m *MockEventBackend) ActiveEvent(ctx context.Context) (*domain.Event, error) {
	if m.ActiveEventFunc != nil {
		return m.ActiveEventFunc(ctx)
	}
	return nil, nil
}

func (m *MockEventBackend) SyncTabs(ctx context.Context, eventID string, tabs []domain.Tab) error {
	if m.SyncTabsFunc != nil {
		return m.SyncTabsFunc(ctx, eventID, tabs)
	}
	return nil
}

func (m *MockEventBackend) EndEvent(ctx context.Context, eventID string) (*domain.EventSummary, error) {
	if m.EndEventFunc != nil {
		return m.EndEventFunc(ctx, eventID)
	}
	return nil, nil
}

// MockCatalog is a mock implementation of Catalog
type MockCatalog struct {
	EntriesFunc func(ctx context.Context) ([]domain.CatalogEntry, error)
}

func (m *MockCatalog) Entries(ctx context.Context) ([]domain.CatalogEntry, error) {
	if m.EntriesFunc != nil {
		return m.EntriesFunc(ctx)
	}
	return nil, nil
}

// MockMailer is a mock implementation of Mailer
type MockMailer struct {
	SendSummaryFunc func(ctx context.Context, to string, event *domain.Event, summary *domain.EventSummary) error
}

func (m *MockMailer) SendSummary(ctx context.Context, to string, event *domain.Event, summary *domain.EventSummary) error {
	if m.SendSummaryFunc != nil {
		return m.SendSummaryFunc(ctx, to, event, summary)
	}
	return nil
}

// MockSecrets is a mock implementation of Secrets
type MockSecrets struct {
	GetFunc func(ctx context.Context, name string) (string, error)
}

func (m *MockSecrets) Get(ctx context.Context, name string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, name)
	}
	return "", nil
}
