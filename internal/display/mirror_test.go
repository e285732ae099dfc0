package display

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/domain"
	"github.com/caterbase/caterpos/internal/mocks"
	"github.com/caterbase/caterpos/internal/wire"
)

const (
	displayID  = "display-1"
	operatorID = "register-1"
)

func newTestMirror(t *testing.T) (*Mirror, *mocks.MockChannel) {
	t.Helper()
	ch := &mocks.MockChannel{}
	m, err := NewMirror(displayID, ch, zap.NewNop())
	if err != nil {
		t.Fatalf("NewMirror failed: %v", err)
	}
	return m, ch
}

func deliver(t *testing.T, ch *mocks.MockChannel, typ wire.Type, checkoutID string, seq uint64, payload interface{}) {
	t.Helper()
	raw, err := wire.Encode(typ, operatorID, checkoutID, seq, payload)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := ch.Deliver(raw); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
}

func startCheckout(t *testing.T, ch *mocks.MockChannel, checkoutID string, seq uint64) {
	t.Helper()
	deliver(t, ch, wire.TypeCheckoutStart, checkoutID, seq, wire.CheckoutStart{
		Items: []domain.Item{
			{Name: "Margarita", Category: "cocktails", BasePrice: 1200, Modifier: &domain.Modifier{Name: "Double", PriceAdjustment: 500}},
			{Name: "Beer", Category: "beer", BasePrice: 800},
		},
		Subtotal: 2500,
		TabRef:   "tab-1",
		TabName:  "P1",
	})
}

func TestMirrorFollowsCheckout(t *testing.T) {
	m, ch := newTestMirror(t)

	startCheckout(t, ch, "chk-1", 1)
	state := m.State()
	if state.Stage != domain.StageTipSelection || state.Subtotal != 2500 || state.TabName != "P1" {
		t.Fatalf("state after start = %+v", state)
	}

	deliver(t, ch, wire.TypeCheckoutStage, "chk-1", 2, wire.CheckoutStage{Stage: domain.StagePaymentPending})
	if got := m.State().Stage; got != domain.StagePaymentPending {
		t.Errorf("stage = %s, want payment_pending", got)
	}

	deliver(t, ch, wire.TypeCheckoutComplete, "chk-1", 3, wire.CheckoutComplete{TipAmount: 500, Total: 3000})
	state = m.State()
	if state.Stage != domain.StageSuccess || state.TipAmount != 500 || state.Total != 3000 {
		t.Errorf("state after complete = %+v", state)
	}

	deliver(t, ch, wire.TypeCheckoutStage, "chk-1", 4, wire.CheckoutStage{Stage: domain.StageNone})
	if got := m.State().Stage; got != domain.StageNone {
		t.Errorf("stage = %s, want none after reset", got)
	}
}

func TestMirrorDropsStaleSeq(t *testing.T) {
	m, ch := newTestMirror(t)

	startCheckout(t, ch, "chk-1", 1)
	deliver(t, ch, wire.TypeCheckoutStage, "chk-1", 5, wire.CheckoutStage{Stage: domain.StageProcessing})

	// Late payment_pending from before processing must not regress the view.
	deliver(t, ch, wire.TypeCheckoutStage, "chk-1", 3, wire.CheckoutStage{Stage: domain.StagePaymentPending})
	if got := m.State().Stage; got != domain.StageProcessing {
		t.Errorf("stale frame applied: stage = %s", got)
	}
}

func TestMirrorDropsUnknownCheckout(t *testing.T) {
	m, ch := newTestMirror(t)

	startCheckout(t, ch, "chk-1", 1)
	deliver(t, ch, wire.TypeCheckoutStage, "chk-OTHER", 2, wire.CheckoutStage{Stage: domain.StageSuccess})
	if got := m.State().Stage; got != domain.StageTipSelection {
		t.Errorf("frame for unknown checkout applied: stage = %s", got)
	}
}

func TestMirrorIgnoresOwnFrames(t *testing.T) {
	m, ch := newTestMirror(t)

	raw, err := wire.Encode(wire.TypeCheckoutStart, displayID, "chk-1", 1, wire.CheckoutStart{Subtotal: 999})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := ch.Deliver(raw); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if got := m.State().Stage; got != domain.StageNone {
		t.Errorf("echoed own frame applied: stage = %s", got)
	}
}

func TestNewCheckoutResetsSeqWindow(t *testing.T) {
	m, ch := newTestMirror(t)

	startCheckout(t, ch, "chk-1", 1)
	deliver(t, ch, wire.TypeCheckoutStage, "chk-1", 50, wire.CheckoutStage{Stage: domain.StageProcessing})

	// The next session starts its own sequence from scratch.
	startCheckout(t, ch, "chk-2", 1)
	deliver(t, ch, wire.TypeCheckoutStage, "chk-2", 2, wire.CheckoutStage{Stage: domain.StagePaymentPending})
	if got := m.State().Stage; got != domain.StagePaymentPending {
		t.Errorf("new session's frames dropped: stage = %s", got)
	}
}

func TestSelectTipPublishesFullAmount(t *testing.T) {
	m, ch := newTestMirror(t)
	startCheckout(t, ch, "chk-1", 1)

	if err := m.SelectTip(500); err != nil {
		t.Fatalf("SelectTip failed: %v", err)
	}

	msgs := ch.Messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d frames, want 1", len(msgs))
	}
	env, err := wire.Decode(msgs[0])
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if env.Type != wire.TypeProcessPayment || env.DeviceID != displayID || env.CheckoutID != "chk-1" {
		t.Errorf("envelope = %+v", env)
	}
	var p wire.ProcessPayment
	if err := wire.DecodePayload(env, &p); err != nil {
		t.Fatalf("decode payload failed: %v", err)
	}
	// Subtotal plus tip; the operator folds the tip back out.
	if p.AmountMinorUnits != 3000 {
		t.Errorf("amount = %d, want 3000", p.AmountMinorUnits)
	}
}

func TestSelectTipRequiresTipSelection(t *testing.T) {
	m, ch := newTestMirror(t)

	if err := m.SelectTip(100); !errors.Is(err, ErrNoCheckout) {
		t.Errorf("expected ErrNoCheckout, got %v", err)
	}
	if err := m.SelectTip(-1); err == nil {
		t.Error("negative tip must be rejected")
	}

	startCheckout(t, ch, "chk-1", 1)
	deliver(t, ch, wire.TypeCheckoutStage, "chk-1", 2, wire.CheckoutStage{Stage: domain.StageProcessing})
	if err := m.SelectTip(100); !errors.Is(err, ErrNoCheckout) {
		t.Errorf("tip after tip_selection must fail, got %v", err)
	}
}

func TestSimulateTapStageGate(t *testing.T) {
	m, ch := newTestMirror(t)

	if err := m.SimulateTap(); !errors.Is(err, ErrNoCheckout) {
		t.Errorf("expected ErrNoCheckout, got %v", err)
	}

	startCheckout(t, ch, "chk-1", 1)
	if err := m.SimulateTap(); !errors.Is(err, ErrNoCheckout) {
		t.Errorf("tap during tip_selection must fail, got %v", err)
	}

	deliver(t, ch, wire.TypeCheckoutStage, "chk-1", 2, wire.CheckoutStage{Stage: domain.StagePaymentPending})
	if err := m.SimulateTap(); err != nil {
		t.Fatalf("SimulateTap failed: %v", err)
	}

	msgs := ch.Messages()
	env, err := wire.Decode(msgs[len(msgs)-1])
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if env.Type != wire.TypeSimulateTap {
		t.Errorf("published type = %s, want simulate_tap", env.Type)
	}
}

func TestCancelResetsButKeepsReader(t *testing.T) {
	m, ch := newTestMirror(t)

	deliver(t, ch, wire.TypeReaderStatus, "", 1, wire.ReaderStatus{Connected: true, Simulated: true, Serial: "SIM-READER-001"})
	startCheckout(t, ch, "chk-1", 2)
	deliver(t, ch, wire.TypeCheckoutCancel, "chk-1", 3, nil)

	state := m.State()
	if state.Stage != domain.StageNone || len(state.Items) != 0 {
		t.Errorf("cancel did not reset: %+v", state)
	}
	if !state.Reader.Connected || state.Reader.Serial != "SIM-READER-001" {
		t.Errorf("reader status lost across cancel: %+v", state.Reader)
	}
}

func TestFailureBannerClearsOnRetry(t *testing.T) {
	m, ch := newTestMirror(t)
	startCheckout(t, ch, "chk-1", 1)

	deliver(t, ch, wire.TypeCheckoutStage, "chk-1", 2, wire.CheckoutStage{Stage: domain.StageFailed})
	deliver(t, ch, wire.TypePaymentStatus, "chk-1", 3, wire.PaymentStatus{
		Status:        domain.PaymentStatusFailed,
		CheckoutID:    "chk-1",
		FailureReason: "card declined",
	})
	if got := m.State().FailureReason; got != "card declined" {
		t.Fatalf("failure reason = %q", got)
	}

	deliver(t, ch, wire.TypeCheckoutStage, "chk-1", 4, wire.CheckoutStage{Stage: domain.StagePaymentPending})
	state := m.State()
	if state.Stage != domain.StagePaymentPending || state.FailureReason != "" {
		t.Errorf("banner not cleared: %+v", state)
	}
}
