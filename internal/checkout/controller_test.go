package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/domain"
	"github.com/caterbase/caterpos/internal/mocks"
	"github.com/caterbase/caterpos/internal/store"
	"github.com/caterbase/caterpos/internal/terminal"
	"github.com/caterbase/caterpos/internal/wire"
)

type fixture struct {
	controller *Controller
	orders     *store.Store
	term       *terminal.Adapter
	bridge     *terminal.SimulatedBridge
	ch         *mocks.MockChannel
	tab        *domain.Tab
}

// newFixture builds a register with one open tab worth 2500: a Margarita at
// 1200 with a Double modifier at 500, plus a Beer at 800.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	orders, err := store.Open(ctx, mocks.NewMemoryKeyValue(), zap.NewNop())
	if err != nil {
		t.Fatalf("store open failed: %v", err)
	}

	tab, err := orders.CreateTab(ctx)
	if err != nil {
		t.Fatalf("CreateTab failed: %v", err)
	}
	if _, err := orders.AddItem(ctx, tab.ID,
		domain.CatalogEntry{Name: "Margarita", Category: "cocktails", Price: 1200},
		&domain.Modifier{Name: "Double", PriceAdjustment: 500},
	); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if _, err := orders.AddItem(ctx, tab.ID, domain.CatalogEntry{Name: "Beer", Category: "beer", Price: 800}, nil); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	bridge := terminal.NewSimulatedBridge(zap.NewNop())
	bridge.Latency = time.Millisecond
	term := terminal.NewAdapter(bridge, 100*time.Millisecond, zap.NewNop())
	for r := range term.Discover(ctx) {
		if _, err := term.Connect(ctx, r); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
	}

	ch := &mocks.MockChannel{}
	controller := NewController(Config{
		DeviceID:             "register-1",
		Currency:             "usd",
		SuccessDisplayWindow: 40 * time.Millisecond,
		FailureBannerWindow:  40 * time.Millisecond,
	}, orders, term, ch, zap.NewNop())
	term.Notify(controller.HandleTerminalStatus)

	return &fixture{
		controller: controller,
		orders:     orders,
		term:       term,
		bridge:     bridge,
		ch:         ch,
		tab:        tab,
	}
}

func waitForStage(t *testing.T, c *Controller, stage domain.Stage) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := c.Session()
		if s != nil && s.Stage == stage {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("session never reached stage %s", stage)
}

func waitForNoSession(t *testing.T, c *Controller) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Session() == nil {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("session never cleared")
}

func decodeAll(t *testing.T, ch *mocks.MockChannel) []*wire.Envelope {
	t.Helper()
	msgs := ch.Messages()
	envs := make([]*wire.Envelope, 0, len(msgs))
	for _, raw := range msgs {
		env, err := wire.Decode(raw)
		if err != nil {
			t.Fatalf("published frame does not decode: %v", err)
		}
		envs = append(envs, env)
	}
	return envs
}

func lastType(t *testing.T, ch *mocks.MockChannel, typ wire.Type) *wire.Envelope {
	t.Helper()
	envs := decodeAll(t, ch)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Type == typ {
			return envs[i]
		}
	}
	t.Fatalf("no %s frame was broadcast", typ)
	return nil
}

func TestStartOpensTipSelection(t *testing.T) {
	f := newFixture(t)

	session, err := f.controller.Start(context.Background(), f.tab.ID)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if session.Stage != domain.StageTipSelection {
		t.Errorf("stage = %s, want tip_selection", session.Stage)
	}
	if session.Subtotal != 2500 {
		t.Errorf("subtotal = %d, want 2500", session.Subtotal)
	}

	env := lastType(t, f.ch, wire.TypeCheckoutStart)
	var payload wire.CheckoutStart
	if err := wire.DecodePayload(env, &payload); err != nil {
		t.Fatalf("bad checkout_start payload: %v", err)
	}
	if payload.Subtotal != 2500 || len(payload.Items) != 2 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestStartEmptyTabRejectedWithoutBroadcast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.orders.CreateTab(ctx)
	if err != nil {
		t.Fatalf("CreateTab failed: %v", err)
	}

	if _, err := f.controller.Start(ctx, empty.ID); !errors.Is(err, ErrEmptyTab) {
		t.Fatalf("expected ErrEmptyTab, got %v", err)
	}
	if f.controller.Session() != nil {
		t.Error("rejected start must not open a session")
	}
	if len(f.ch.Messages()) != 0 {
		t.Error("rejected start must not broadcast")
	}
}

func TestStartUnknownTab(t *testing.T) {
	f := newFixture(t)
	if _, err := f.controller.Start(context.Background(), "missing"); !errors.Is(err, ErrTabNotFound) {
		t.Errorf("expected ErrTabNotFound, got %v", err)
	}
}

func TestSecondStartRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.controller.Start(ctx, f.tab.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := f.controller.Start(ctx, f.tab.ID); !errors.Is(err, ErrCheckoutActive) {
		t.Errorf("expected ErrCheckoutActive, got %v", err)
	}
}

func TestSuccessfulCheckoutClosesTab(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.controller.Start(ctx, f.tab.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := f.controller.SelectTip(500); err != nil {
		t.Fatalf("SelectTip failed: %v", err)
	}

	session := f.controller.Session()
	if session.Stage != domain.StagePaymentPending {
		t.Fatalf("stage = %s, want payment_pending", session.Stage)
	}
	if session.Total() != 3000 {
		t.Fatalf("total = %d, want 3000", session.Total())
	}

	if err := f.controller.RequestPayment(ctx); err != nil {
		t.Fatalf("RequestPayment failed: %v", err)
	}
	waitForStage(t, f.controller, domain.StageProcessing)

	if err := f.term.SimulateCardPresentation(ctx); err != nil {
		t.Fatalf("SimulateCardPresentation failed: %v", err)
	}
	waitForStage(t, f.controller, domain.StageSuccess)

	if f.orders.Tab(f.tab.ID) != nil {
		t.Error("paid tab must be closed")
	}

	env := lastType(t, f.ch, wire.TypeCheckoutComplete)
	var payload wire.CheckoutComplete
	if err := wire.DecodePayload(env, &payload); err != nil {
		t.Fatalf("bad checkout_complete payload: %v", err)
	}
	if payload.TipAmount != 500 || payload.Total != 3000 {
		t.Errorf("payload = %+v", payload)
	}

	// success auto-returns to none after the display window.
	waitForNoSession(t, f.controller)
	env = lastType(t, f.ch, wire.TypeCheckoutStage)
	var stage wire.CheckoutStage
	if err := wire.DecodePayload(env, &stage); err != nil {
		t.Fatalf("bad checkout_stage payload: %v", err)
	}
	if stage.Stage != domain.StageNone {
		t.Errorf("final stage broadcast = %s, want none", stage.Stage)
	}
}

func TestFailedPaymentKeepsTabAndTip(t *testing.T) {
	f := newFixture(t)
	f.bridge.DeclineAmount = 3000
	ctx := context.Background()

	if _, err := f.controller.Start(ctx, f.tab.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := f.controller.SelectTip(500); err != nil {
		t.Fatalf("SelectTip failed: %v", err)
	}
	if err := f.controller.RequestPayment(ctx); err != nil {
		t.Fatalf("RequestPayment failed: %v", err)
	}
	waitForStage(t, f.controller, domain.StageProcessing)
	if err := f.term.SimulateCardPresentation(ctx); err != nil {
		t.Fatalf("SimulateCardPresentation failed: %v", err)
	}
	waitForStage(t, f.controller, domain.StageFailed)

	tab := f.orders.Tab(f.tab.ID)
	if tab == nil || len(tab.Items) != 2 {
		t.Fatal("failed payment must keep the tab and its items")
	}

	env := lastType(t, f.ch, wire.TypePaymentStatus)
	var payload wire.PaymentStatus
	if err := wire.DecodePayload(env, &payload); err != nil {
		t.Fatalf("bad payment_status payload: %v", err)
	}
	if payload.Status != domain.PaymentStatusFailed || payload.FailureReason == "" {
		t.Errorf("payload = %+v", payload)
	}

	// The banner clears back to payment_pending with the tip intact.
	waitForStage(t, f.controller, domain.StagePaymentPending)
	if session := f.controller.Session(); session.TipAmount != 500 {
		t.Errorf("tip lost across failure: %d", session.TipAmount)
	}
}

func TestCancelLeavesTabUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.controller.Start(ctx, f.tab.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := f.controller.Cancel(); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	if f.controller.Session() != nil {
		t.Error("cancel must clear the session")
	}
	if tab := f.orders.Tab(f.tab.ID); tab == nil || len(tab.Items) != 2 {
		t.Error("cancel must leave the tab untouched")
	}
	lastType(t, f.ch, wire.TypeCheckoutCancel)
}

func TestCancelWithoutSession(t *testing.T) {
	f := newFixture(t)
	if err := f.controller.Cancel(); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestSelectTipValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.controller.SelectTip(100); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}

	if _, err := f.controller.Start(ctx, f.tab.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := f.controller.SelectTip(-1); err == nil {
		t.Error("negative tip must be rejected")
	}
	if err := f.controller.SelectTip(0); err != nil {
		t.Errorf("zero tip is an explicit no-tip, got %v", err)
	}
	// Already in payment_pending now.
	if err := f.controller.SelectTip(100); !errors.Is(err, ErrWrongStage) {
		t.Errorf("expected ErrWrongStage, got %v", err)
	}
}

func TestDisplayPaymentRequestFoldsTip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.controller.Start(ctx, f.tab.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	session := f.controller.Session()
	raw, err := wire.Encode(wire.TypeProcessPayment, "display-1", session.ID, 1, wire.ProcessPayment{
		AmountMinorUnits: 3000,
	})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	env, _ := wire.Decode(raw)
	f.controller.HandleMessage(ctx, env)

	session = f.controller.Session()
	if session.TipAmount != 500 {
		t.Errorf("tip = %d, want 500 (3000 - 2500 subtotal)", session.TipAmount)
	}
	if session.Stage != domain.StagePaymentPending && session.Stage != domain.StageProcessing {
		t.Errorf("stage = %s after display payment request", session.Stage)
	}
}

func TestDisplayPaymentRequestBelowSubtotalDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.controller.Start(ctx, f.tab.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	session := f.controller.Session()

	raw, _ := wire.Encode(wire.TypeProcessPayment, "display-1", session.ID, 1, wire.ProcessPayment{
		AmountMinorUnits: 100,
	})
	env, _ := wire.Decode(raw)
	f.controller.HandleMessage(ctx, env)

	if got := f.controller.Session(); got.Stage != domain.StageTipSelection {
		t.Errorf("under-subtotal request advanced the stage to %s", got.Stage)
	}
}

func TestTabViewOverlay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.controller.Start(ctx, f.tab.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := f.controller.ShowTab(); err != nil {
		t.Fatalf("ShowTab failed: %v", err)
	}

	// The underlying stage is untouched.
	if session := f.controller.Session(); session.Stage != domain.StageTipSelection {
		t.Errorf("ShowTab changed session stage to %s", session.Stage)
	}
	env := lastType(t, f.ch, wire.TypeCheckoutStage)
	var stage wire.CheckoutStage
	if err := wire.DecodePayload(env, &stage); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if stage.Stage != domain.StageTabView {
		t.Errorf("broadcast stage = %s, want tab_view", stage.Stage)
	}

	if err := f.controller.HideTab(); err != nil {
		t.Fatalf("HideTab failed: %v", err)
	}
	env = lastType(t, f.ch, wire.TypeCheckoutStage)
	if err := wire.DecodePayload(env, &stage); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if stage.Stage != domain.StageTipSelection {
		t.Errorf("HideTab rebroadcast %s, want tip_selection", stage.Stage)
	}
}

func TestBroadcastSeqIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.controller.Start(ctx, f.tab.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := f.controller.SelectTip(200); err != nil {
		t.Fatalf("SelectTip failed: %v", err)
	}
	if err := f.controller.ShowTab(); err != nil {
		t.Fatalf("ShowTab failed: %v", err)
	}

	envs := decodeAll(t, f.ch)
	var last uint64
	for _, env := range envs {
		if env.Seq <= last {
			t.Fatalf("seq not strictly increasing: %d after %d", env.Seq, last)
		}
		last = env.Seq
	}
}

func TestBroadcastSurvivesRelayOutage(t *testing.T) {
	f := newFixture(t)
	f.ch.PublishErr = errors.New("relay down")
	ctx := context.Background()

	// The register keeps working in single-device mode.
	if _, err := f.controller.Start(ctx, f.tab.ID); err != nil {
		t.Fatalf("Start failed during outage: %v", err)
	}
	if err := f.controller.SelectTip(500); err != nil {
		t.Fatalf("SelectTip failed during outage: %v", err)
	}
	if session := f.controller.Session(); session.Stage != domain.StagePaymentPending {
		t.Errorf("stage = %s, want payment_pending", session.Stage)
	}
}

func TestPaymentResultOutsidePaymentFlowDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.controller.Start(ctx, f.tab.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// A stray success while still picking a tip must not settle anything.
	f.controller.HandleTerminalStatus(terminal.StatusEvent{
		Status: domain.PaymentStatusSucceeded,
		Result: &domain.PaymentResult{Status: domain.PaymentStatusSucceeded, AmountMinor: 2500, TransactionID: "txn-stray"},
	})

	if session := f.controller.Session(); session == nil || session.Stage != domain.StageTipSelection {
		t.Errorf("stray result advanced the session: %+v", session)
	}
	if tab := f.orders.Tab(f.tab.ID); tab == nil || len(tab.Items) != 2 {
		t.Error("stray result closed the tab")
	}
}

func TestDuplicateSuccessSettlesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.controller.Start(ctx, f.tab.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := f.controller.SelectTip(500); err != nil {
		t.Fatalf("SelectTip failed: %v", err)
	}

	result := terminal.StatusEvent{
		Status: domain.PaymentStatusSucceeded,
		Result: &domain.PaymentResult{Status: domain.PaymentStatusSucceeded, AmountMinor: 3000, TransactionID: "txn-1"},
	}
	f.controller.HandleTerminalStatus(result)
	f.controller.HandleTerminalStatus(result)

	var completes int
	for _, env := range decodeAll(t, f.ch) {
		if env.Type == wire.TypeCheckoutComplete {
			completes++
		}
	}
	if completes != 1 {
		t.Errorf("settled %d times, want 1", completes)
	}
}

func TestConfirmManualSettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.controller.Start(ctx, f.tab.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := f.controller.SelectTip(0); err != nil {
		t.Fatalf("SelectTip failed: %v", err)
	}
	if err := f.controller.ConfirmManual(ctx); err != nil {
		t.Fatalf("ConfirmManual failed: %v", err)
	}

	if f.orders.Tab(f.tab.ID) != nil {
		t.Error("manually confirmed tab must be closed")
	}
	waitForNoSession(t, f.controller)
}
