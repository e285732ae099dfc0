package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/domain"
	"github.com/caterbase/caterpos/internal/ports"
)

// Durable key space. Absence of a key is a valid "no active event" state.
const (
	keyEvent      = "event"
	keyTabs       = "tabs"
	keyTabCounter = "tab_counter"
	keyActiveTab  = "active_tab"
)

// ErrNoIndices is returned when a move names no items. Rejected locally
// before anything is touched.
var ErrNoIndices = errors.New("no items selected to move")

// Store holds the in-progress order state for the active event: tabs, line
// items and the tab name counter. Every mutation is written through to the
// underlying key-value store before it is committed in memory, so a crash
// or reload loses no confirmed order.
//
// The store is exclusively owned by the operator device's event loop and is
// not safe for use from multiple goroutines. The customer display only ever
// sees snapshots delivered over the sync channel.
type Store struct {
	kv  ports.KeyValue
	log *zap.Logger

	event       *domain.Event
	tabs        []domain.Tab
	counter     int
	activeTabID string
}

// Open reads the full key space before returning, so callers can make
// decisions against restored state from the first frame.
func Open(ctx context.Context, kv ports.KeyValue, log *zap.Logger) (*Store, error) {
	s := &Store{kv: kv, log: log}

	if err := load(ctx, kv, keyEvent, &s.event); err != nil {
		return nil, err
	}
	if err := load(ctx, kv, keyTabs, &s.tabs); err != nil {
		return nil, err
	}
	if err := load(ctx, kv, keyTabCounter, &s.counter); err != nil {
		return nil, err
	}
	if err := load(ctx, kv, keyActiveTab, &s.activeTabID); err != nil {
		return nil, err
	}

	log.Info("Order store opened",
		zap.Bool("has_event", s.event != nil),
		zap.Int("tabs", len(s.tabs)),
	)
	return s, nil
}

func load(ctx context.Context, kv ports.KeyValue, key string, out interface{}) error {
	raw, err := kv.Get(ctx, key)
	if errors.Is(err, ports.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// Event returns the locally active event, or nil.
func (s *Store) Event() *domain.Event {
	return s.event
}

// SetEvent replaces the local event identity while keeping accumulated
// tabs. Used when the backend wins an identity conflict: dropping paid
// work is worse than carrying it under the adopted id.
func (s *Store) SetEvent(ctx context.Context, ev *domain.Event) error {
	if err := s.persist(ctx, keyEvent, ev); err != nil {
		return err
	}
	s.event = ev
	return nil
}

// ResetEvent adopts an event with a fresh, empty tab state.
func (s *Store) ResetEvent(ctx context.Context, ev *domain.Event) error {
	if err := s.persist(ctx, keyEvent, ev); err != nil {
		return err
	}
	if err := s.persistTabs(ctx, nil); err != nil {
		return err
	}
	if err := s.persist(ctx, keyTabCounter, 0); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, keyActiveTab); err != nil {
		return err
	}

	s.event = ev
	s.tabs = nil
	s.counter = 0
	s.activeTabID = ""
	return nil
}

// ClearEvent removes all local state: the event ended here or elsewhere.
func (s *Store) ClearEvent(ctx context.Context) error {
	for _, key := range []string{keyEvent, keyTabs, keyTabCounter, keyActiveTab} {
		if err := s.kv.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to clear %s: %w", key, err)
		}
	}
	s.event = nil
	s.tabs = nil
	s.counter = 0
	s.activeTabID = ""
	return nil
}

// CreateTab opens a new empty tab and selects it. Display names come from a
// counter that is never reused within an event, even after closures, so
// historical tab identifiers stay stable.
func (s *Store) CreateTab(ctx context.Context) (*domain.Tab, error) {
	next := s.counter + 1
	tab := domain.Tab{
		ID:          uuid.New().String(),
		DisplayName: fmt.Sprintf("P%d", next),
		CreatedAt:   time.Now(),
	}

	tabs := append(s.copyTabs(), tab)
	if err := s.persistTabs(ctx, tabs); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, keyTabCounter, next); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, keyActiveTab, tab.ID); err != nil {
		return nil, err
	}

	s.tabs = tabs
	s.counter = next
	s.activeTabID = tab.ID
	return &tab, nil
}

// SelectTab makes the tab the active one. Unknown ids are a no-op to
// tolerate races with a concurrent close.
func (s *Store) SelectTab(ctx context.Context, id string) error {
	if s.indexOf(id) < 0 {
		return nil
	}
	if err := s.persist(ctx, keyActiveTab, id); err != nil {
		return err
	}
	s.activeTabID = id
	return nil
}

// ActiveTab returns a copy of the selected tab, or nil when none is.
func (s *Store) ActiveTab() *domain.Tab {
	return s.tabCopy(s.activeTabID)
}

// CloseTab removes the tab. Unknown ids are a no-op.
func (s *Store) CloseTab(ctx context.Context, id string) error {
	idx := s.indexOf(id)
	if idx < 0 {
		return nil
	}

	tabs := s.copyTabs()
	tabs = append(tabs[:idx], tabs[idx+1:]...)
	if err := s.persistTabs(ctx, tabs); err != nil {
		return err
	}

	s.tabs = tabs
	if s.activeTabID == id {
		s.activeTabID = ""
		if err := s.kv.Delete(ctx, keyActiveTab); err != nil {
			s.log.Warn("Failed to clear active tab key", zap.Error(err))
		}
	}
	return nil
}

// RenameTab sets the tab's custom name. Unknown ids are a no-op.
func (s *Store) RenameTab(ctx context.Context, id, name string) error {
	idx := s.indexOf(id)
	if idx < 0 {
		return nil
	}

	tabs := s.copyTabs()
	tabs[idx].CustomName = name
	if err := s.persistTabs(ctx, tabs); err != nil {
		return err
	}
	s.tabs = tabs
	return nil
}

// AddItem appends one unit of the catalog entry to the tab. An empty tabID
// targets the active tab, auto-creating one when none is selected so the
// first tap of an order always lands somewhere. An explicit unknown tabID is
// a no-op like the other tab operations.
func (s *Store) AddItem(ctx context.Context, tabID string, entry domain.CatalogEntry, mod *domain.Modifier) (*domain.Tab, error) {
	explicit := tabID != ""
	if !explicit {
		tabID = s.activeTabID
	}
	if tabID == "" || s.indexOf(tabID) < 0 {
		if explicit {
			return nil, nil
		}
		tab, err := s.CreateTab(ctx)
		if err != nil {
			return nil, err
		}
		tabID = tab.ID
	}

	item := domain.Item{
		Name:      entry.Name,
		Category:  entry.Category,
		BasePrice: entry.Price,
		Modifier:  mod,
		AddedAt:   time.Now(),
	}

	idx := s.indexOf(tabID)
	tabs := s.copyTabs()
	tabs[idx].Items = append(tabs[idx].Items, item)
	if err := s.persistTabs(ctx, tabs); err != nil {
		return nil, err
	}
	s.tabs = tabs

	return s.tabCopy(tabID), nil
}

// RemoveItem deletes the item at index from the tab. Unknown tabs and
// out-of-range indices are no-ops.
func (s *Store) RemoveItem(ctx context.Context, tabID string, index int) error {
	idx := s.indexOf(tabID)
	if idx < 0 {
		return nil
	}
	if index < 0 || index >= len(s.tabs[idx].Items) {
		return nil
	}

	tabs := s.copyTabs()
	items := tabs[idx].Items
	tabs[idx].Items = append(items[:index], items[index+1:]...)
	if err := s.persistTabs(ctx, tabs); err != nil {
		return err
	}
	s.tabs = tabs
	return nil
}

// MoveItems moves the items at the given indices from one tab to another.
// Indices are resolved against the pre-move item order of the source tab,
// and the move is atomic: either every index moves or none does. Moved
// items keep their original relative order and are appended to the target.
func (s *Store) MoveItems(ctx context.Context, fromID, toID string, indices []int) error {
	if len(indices) == 0 {
		return ErrNoIndices
	}

	fromIdx := s.indexOf(fromID)
	toIdx := s.indexOf(toID)
	if fromIdx < 0 || toIdx < 0 || fromID == toID {
		return nil
	}

	src := s.tabs[fromIdx].Items
	seen := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(src) {
			return fmt.Errorf("move index %d out of range", i)
		}
		if seen[i] {
			return fmt.Errorf("duplicate move index %d", i)
		}
		seen[i] = true
	}

	tabs := s.copyTabs()
	var remaining, moved []domain.Item
	for i, item := range tabs[fromIdx].Items {
		if seen[i] {
			moved = append(moved, item)
		} else {
			remaining = append(remaining, item)
		}
	}
	tabs[fromIdx].Items = remaining
	tabs[toIdx].Items = append(tabs[toIdx].Items, moved...)

	if err := s.persistTabs(ctx, tabs); err != nil {
		return err
	}
	s.tabs = tabs
	return nil
}

// Tabs returns a copy of every open tab in creation order.
func (s *Store) Tabs() []domain.Tab {
	return s.copyTabs()
}

// Tab returns a copy of the tab, or nil when unknown.
func (s *Store) Tab(id string) *domain.Tab {
	return s.tabCopy(id)
}

// Subtotal returns the tab's item total in minor units.
func (s *Store) Subtotal(tabID string) int64 {
	idx := s.indexOf(tabID)
	if idx < 0 {
		return 0
	}
	return s.tabs[idx].Subtotal()
}

func (s *Store) indexOf(id string) int {
	for i, t := range s.tabs {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) tabCopy(id string) *domain.Tab {
	idx := s.indexOf(id)
	if idx < 0 {
		return nil
	}
	tab := s.tabs[idx]
	tab.Items = append([]domain.Item(nil), tab.Items...)
	return &tab
}

// copyTabs deep-copies the tab list so mutations can be staged, persisted
// and only then committed.
func (s *Store) copyTabs() []domain.Tab {
	tabs := make([]domain.Tab, len(s.tabs))
	for i, t := range s.tabs {
		t.Items = append([]domain.Item(nil), t.Items...)
		tabs[i] = t
	}
	return tabs
}

func (s *Store) persistTabs(ctx context.Context, tabs []domain.Tab) error {
	if tabs == nil {
		tabs = []domain.Tab{}
	}
	return s.persist(ctx, keyTabs, tabs)
}

func (s *Store) persist(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to persist %s: %w", key, err)
	}
	return nil
}
