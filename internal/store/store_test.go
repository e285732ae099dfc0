package store

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/domain"
	"github.com/caterbase/caterpos/internal/mocks"
)

func newTestStore(t *testing.T) (*Store, *mocks.MemoryKeyValue) {
	t.Helper()
	kv := mocks.NewMemoryKeyValue()
	s, err := Open(context.Background(), kv, zap.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s, kv
}

func mustCreateTab(t *testing.T, s *Store) *domain.Tab {
	t.Helper()
	tab, err := s.CreateTab(context.Background())
	if err != nil {
		t.Fatalf("CreateTab failed: %v", err)
	}
	return tab
}

func TestTabCounterNeverReused(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	t1 := mustCreateTab(t, s)
	t2 := mustCreateTab(t, s)
	t3 := mustCreateTab(t, s)

	if t1.DisplayName != "P1" || t2.DisplayName != "P2" || t3.DisplayName != "P3" {
		t.Fatalf("unexpected names: %s %s %s", t1.DisplayName, t2.DisplayName, t3.DisplayName)
	}

	if err := s.CloseTab(ctx, t2.ID); err != nil {
		t.Fatalf("CloseTab failed: %v", err)
	}

	t4 := mustCreateTab(t, s)
	if t4.DisplayName != "P4" {
		t.Errorf("closed tab's slot was reissued: got %s, want P4", t4.DisplayName)
	}
}

func TestAddItemEffectivePrice(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	tab := mustCreateTab(t, s)
	updated, err := s.AddItem(ctx, tab.ID,
		domain.CatalogEntry{Name: "Margarita", Category: "cocktails", Price: 1200},
		&domain.Modifier{Name: "Double", PriceAdjustment: 500},
	)
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	if got := updated.Items[0].EffectivePrice(); got != 1700 {
		t.Errorf("effective price = %d, want 1700", got)
	}

	updated, err = s.AddItem(ctx, tab.ID, domain.CatalogEntry{Name: "Beer", Category: "beer", Price: 800}, nil)
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if got := updated.Subtotal(); got != 2500 {
		t.Errorf("subtotal = %d, want 2500", got)
	}
}

func TestAddItemAutoCreatesTab(t *testing.T) {
	s, _ := newTestStore(t)

	tab, err := s.AddItem(context.Background(), "", domain.CatalogEntry{Name: "Water", Price: 300}, nil)
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if tab.DisplayName != "P1" {
		t.Errorf("auto-created tab name = %s, want P1", tab.DisplayName)
	}
	if active := s.ActiveTab(); active == nil || active.ID != tab.ID {
		t.Error("auto-created tab should be active")
	}
}

func TestAddItemUnknownTabIsNoop(t *testing.T) {
	s, _ := newTestStore(t)

	tab, err := s.AddItem(context.Background(), "no-such-tab", domain.CatalogEntry{Name: "Water", Price: 300}, nil)
	if err != nil {
		t.Fatalf("unknown-tab add should be a no-op, got %v", err)
	}
	if tab != nil {
		t.Errorf("no-op add returned a tab: %+v", tab)
	}
	if got := len(s.Tabs()); got != 0 {
		t.Errorf("no-op add created %d tabs", got)
	}
}

func TestRemoveItemOutOfRangeIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	tab := mustCreateTab(t, s)
	if _, err := s.AddItem(ctx, tab.ID, domain.CatalogEntry{Name: "Wine", Price: 900}, nil); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	if err := s.RemoveItem(ctx, tab.ID, 5); err != nil {
		t.Fatalf("out-of-range remove should be a no-op, got %v", err)
	}
	if err := s.RemoveItem(ctx, "no-such-tab", 0); err != nil {
		t.Fatalf("unknown-tab remove should be a no-op, got %v", err)
	}
	if got := len(s.Tab(tab.ID).Items); got != 1 {
		t.Errorf("items = %d, want 1", got)
	}
}

func TestMoveItems(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	from := mustCreateTab(t, s)
	to := mustCreateTab(t, s)
	for _, name := range []string{"a", "b", "c", "d"} {
		if _, err := s.AddItem(ctx, from.ID, domain.CatalogEntry{Name: name, Price: 100}, nil); err != nil {
			t.Fatalf("AddItem failed: %v", err)
		}
	}

	if err := s.MoveItems(ctx, from.ID, to.ID, []int{3, 1}); err != nil {
		t.Fatalf("MoveItems failed: %v", err)
	}

	gotFrom := s.Tab(from.ID)
	gotTo := s.Tab(to.ID)
	if len(gotFrom.Items) != 2 || gotFrom.Items[0].Name != "a" || gotFrom.Items[1].Name != "c" {
		t.Errorf("source after move: %+v", gotFrom.Items)
	}
	// Moved items keep their original relative order regardless of the
	// order the indices were given in.
	if len(gotTo.Items) != 2 || gotTo.Items[0].Name != "b" || gotTo.Items[1].Name != "d" {
		t.Errorf("target after move: %+v", gotTo.Items)
	}
}

func TestMoveItemsAtomicOnBadIndex(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	from := mustCreateTab(t, s)
	to := mustCreateTab(t, s)
	if _, err := s.AddItem(ctx, from.ID, domain.CatalogEntry{Name: "a", Price: 100}, nil); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	if err := s.MoveItems(ctx, from.ID, to.ID, []int{0, 7}); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
	if err := s.MoveItems(ctx, from.ID, to.ID, []int{0, 0}); err == nil {
		t.Fatal("expected error for duplicate index")
	}
	if err := s.MoveItems(ctx, from.ID, to.ID, nil); !errors.Is(err, ErrNoIndices) {
		t.Fatalf("expected ErrNoIndices, got %v", err)
	}

	// Nothing moved.
	if len(s.Tab(from.ID).Items) != 1 || len(s.Tab(to.ID).Items) != 0 {
		t.Error("failed move must leave both tabs untouched")
	}
}

func TestRenameTab(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	tab := mustCreateTab(t, s)
	if err := s.RenameTab(ctx, tab.ID, "Head table"); err != nil {
		t.Fatalf("RenameTab failed: %v", err)
	}
	if got := s.Tab(tab.ID).Name(); got != "Head table" {
		t.Errorf("Name() = %s, want Head table", got)
	}
	if err := s.RenameTab(ctx, "missing", "x"); err != nil {
		t.Errorf("rename of unknown tab should be a no-op, got %v", err)
	}
}

func TestReopenRestoresState(t *testing.T) {
	ctx := context.Background()
	kv := mocks.NewMemoryKeyValue()

	s, err := Open(ctx, kv, zap.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.ResetEvent(ctx, &domain.Event{ID: "evt-1", Name: "Gala", Status: domain.EventStatusActive}); err != nil {
		t.Fatalf("ResetEvent failed: %v", err)
	}
	tab := mustCreateTab(t, s)
	if _, err := s.AddItem(ctx, tab.ID, domain.CatalogEntry{Name: "Margarita", Price: 1200}, nil); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	reopened, err := Open(ctx, kv, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if reopened.Event() == nil || reopened.Event().ID != "evt-1" {
		t.Fatal("event not restored")
	}
	tabs := reopened.Tabs()
	if len(tabs) != 1 || tabs[0].Subtotal() != 1200 {
		t.Fatalf("tabs not restored: %+v", tabs)
	}
	if active := reopened.ActiveTab(); active == nil || active.ID != tab.ID {
		t.Error("active tab not restored")
	}

	// The counter survives too: next tab is P2, not P1 again.
	next := mustCreateTab(t, reopened)
	if next.DisplayName != "P2" {
		t.Errorf("counter not restored: got %s, want P2", next.DisplayName)
	}
}

func TestSetEventKeepsTabs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.ResetEvent(ctx, &domain.Event{ID: "local-evt", Status: domain.EventStatusActive}); err != nil {
		t.Fatalf("ResetEvent failed: %v", err)
	}
	mustCreateTab(t, s)

	if err := s.SetEvent(ctx, &domain.Event{ID: "backend-evt", Status: domain.EventStatusActive}); err != nil {
		t.Fatalf("SetEvent failed: %v", err)
	}
	if s.Event().ID != "backend-evt" {
		t.Errorf("event id = %s, want backend-evt", s.Event().ID)
	}
	if len(s.Tabs()) != 1 {
		t.Error("SetEvent must keep accumulated tabs")
	}
}

func TestClearEvent(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()

	if err := s.ResetEvent(ctx, &domain.Event{ID: "evt", Status: domain.EventStatusActive}); err != nil {
		t.Fatalf("ResetEvent failed: %v", err)
	}
	mustCreateTab(t, s)

	if err := s.ClearEvent(ctx); err != nil {
		t.Fatalf("ClearEvent failed: %v", err)
	}
	if s.Event() != nil || len(s.Tabs()) != 0 {
		t.Error("ClearEvent must drop everything")
	}

	// And a fresh open sees nothing.
	reopened, err := Open(ctx, kv, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if reopened.Event() != nil || len(reopened.Tabs()) != 0 {
		t.Error("cleared state leaked into fresh open")
	}
}

func TestPersistFailureDoesNotCommit(t *testing.T) {
	ctx := context.Background()
	kv := &mocks.MockKeyValue{}
	failing := false
	mem := mocks.NewMemoryKeyValue()
	kv.GetFunc = mem.Get
	kv.SetFunc = func(ctx context.Context, key string, value []byte) error {
		if failing {
			return errors.New("disk full")
		}
		return mem.Set(ctx, key, value)
	}
	kv.DeleteFunc = mem.Delete

	s, err := Open(ctx, kv, zap.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	tab := mustCreateTab(t, s)

	failing = true
	if _, err := s.AddItem(ctx, tab.ID, domain.CatalogEntry{Name: "Wine", Price: 900}, nil); err == nil {
		t.Fatal("expected persist failure")
	}
	failing = false

	if got := len(s.Tab(tab.ID).Items); got != 0 {
		t.Errorf("in-memory state committed despite persist failure: %d items", got)
	}
}
