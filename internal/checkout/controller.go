package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/domain"
	"github.com/caterbase/caterpos/internal/observability/telemetry"
	"github.com/caterbase/caterpos/internal/store"
	"github.com/caterbase/caterpos/internal/terminal"
	"github.com/caterbase/caterpos/internal/wire"
)

var (
	// ErrEmptyTab rejects checkout on a tab with no items, locally, before
	// any message is sent.
	ErrEmptyTab = errors.New("cannot start checkout on an empty tab")

	// ErrTabNotFound rejects checkout on an unknown tab.
	ErrTabNotFound = errors.New("tab not found")

	// ErrCheckoutActive rejects a second concurrent checkout. One register,
	// one session: a second start must wait for complete or cancel.
	ErrCheckoutActive = errors.New("a checkout session is already active")

	// ErrNoSession is returned for operations that need an active session.
	ErrNoSession = errors.New("no active checkout session")

	// ErrWrongStage is returned when a trigger arrives in a stage that does
	// not accept it.
	ErrWrongStage = errors.New("operation not valid in current checkout stage")
)

// Broadcaster is the outbound half of the sync channel. Publishing while
// the relay is unreachable fails; the controller logs and moves on, since a
// dark customer display must never block the register.
type Broadcaster interface {
	Publish(msg []byte) error
}

// Controller owns the per-event checkout session state machine:
//
//	none -> tip_selection -> payment_pending -> processing -> success
//	                                                       -> failed -> payment_pending
//
// success auto-returns to none after a display window; failed returns to
// payment_pending so a declined tap keeps the tip selection. The controller
// runs on the device that initiated checkout; the customer display renders
// broadcasts and has no authority of its own.
type Controller struct {
	deviceID      string
	orders        *store.Store
	term          *terminal.Adapter
	ch            Broadcaster
	currency      string
	successWindow time.Duration
	failureWindow time.Duration
	log           *zap.Logger

	mu        sync.Mutex
	session   *domain.CheckoutSession
	seq       uint64
	inTabView bool
	timer     *time.Timer
}

type Config struct {
	DeviceID             string
	Currency             string
	SuccessDisplayWindow time.Duration
	FailureBannerWindow  time.Duration
}

func NewController(cfg Config, orders *store.Store, term *terminal.Adapter, ch Broadcaster, log *zap.Logger) *Controller {
	if cfg.SuccessDisplayWindow <= 0 {
		cfg.SuccessDisplayWindow = 4 * time.Second
	}
	if cfg.FailureBannerWindow <= 0 {
		cfg.FailureBannerWindow = 3 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &Controller{
		deviceID:      cfg.DeviceID,
		orders:        orders,
		term:          term,
		ch:            ch,
		currency:      cfg.Currency,
		successWindow: cfg.SuccessDisplayWindow,
		failureWindow: cfg.FailureBannerWindow,
		log:           log,
	}
}

// Session returns a copy of the active session, or nil.
func (c *Controller) Session() *domain.CheckoutSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	s.Items = append([]domain.Item(nil), s.Items...)
	return &s
}

// Start snapshots the tab and opens a session in tip_selection. The
// snapshot is copied, not live, so the customer display stays stable.
func (c *Controller) Start(ctx context.Context, tabID string) (*domain.CheckoutSession, error) {
	tab := c.orders.Tab(tabID)
	if tab == nil {
		return nil, ErrTabNotFound
	}
	if len(tab.Items) == 0 {
		return nil, ErrEmptyTab
	}

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return nil, ErrCheckoutActive
	}

	session := &domain.CheckoutSession{
		ID:        uuid.New().String(),
		TabID:     tab.ID,
		TabName:   tab.Name(),
		Items:     tab.Items,
		Subtotal:  tab.Subtotal(),
		Stage:     domain.StageTipSelection,
		StartedAt: time.Now(),
	}
	c.session = session
	c.seq = 0
	c.inTabView = false
	snapshot := *session
	c.mu.Unlock()

	telemetry.CheckoutsStarted.Inc()
	telemetry.ActiveCheckout.Set(1)
	c.log.Info("Checkout started",
		zap.String("checkout_id", session.ID),
		zap.String("tab", session.TabName),
		zap.Int64("subtotal", session.Subtotal),
	)

	c.broadcast(wire.TypeCheckoutStart, session.ID, wire.CheckoutStart{
		Items:    snapshot.Items,
		Subtotal: snapshot.Subtotal,
		TabRef:   snapshot.TabID,
		TabName:  snapshot.TabName,
	})
	return &snapshot, nil
}

// SelectTip records the tip (zero is an explicit "no tip") and advances to
// payment_pending.
func (c *Controller) SelectTip(amount int64) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if c.session.Stage != domain.StageTipSelection {
		c.mu.Unlock()
		return ErrWrongStage
	}
	if amount < 0 {
		c.mu.Unlock()
		return errors.New("tip amount cannot be negative")
	}
	c.session.TipAmount = amount
	c.session.Stage = domain.StagePaymentPending
	id := c.session.ID
	c.mu.Unlock()

	c.broadcast(wire.TypeCheckoutStage, id, wire.CheckoutStage{Stage: domain.StagePaymentPending})
	return nil
}

// RequestPayment drives the terminal adapter for the pending total. Callers
// seeing ErrNoTerminal fall back to ConfirmManual.
func (c *Controller) RequestPayment(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if c.session.Stage != domain.StagePaymentPending && c.session.Stage != domain.StageFailed {
		c.mu.Unlock()
		return ErrWrongStage
	}
	total := c.session.Total()
	c.mu.Unlock()

	return c.term.ProcessPayment(ctx, total, c.currency)
}

// ConfirmManual completes the session without a terminal: the operator took
// payment by other means and confirmed it by hand.
func (c *Controller) ConfirmManual(ctx context.Context) error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if c.session.Stage != domain.StagePaymentPending {
		c.mu.Unlock()
		return ErrWrongStage
	}
	total := c.session.Total()
	c.mu.Unlock()

	c.settle(ctx, domain.PaymentResult{
		Status:      domain.PaymentStatusSucceeded,
		AmountMinor: total,
		Currency:    c.currency,
	})
	return nil
}

// ShowTab enters the parallel tab-view sub-state for reviewing line items.
// It never interrupts the payment flow; the next payment transition simply
// broadcasts over it.
func (c *Controller) ShowTab() error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	stage := c.session.Stage
	if stage != domain.StageTipSelection && stage != domain.StagePaymentPending {
		c.mu.Unlock()
		return ErrWrongStage
	}
	c.inTabView = true
	id := c.session.ID
	c.mu.Unlock()

	c.broadcast(wire.TypeCheckoutStage, id, wire.CheckoutStage{Stage: domain.StageTabView})
	return nil
}

// HideTab leaves tab-view, rebroadcasting the underlying stage.
func (c *Controller) HideTab() error {
	c.mu.Lock()
	if c.session == nil || !c.inTabView {
		c.mu.Unlock()
		return nil
	}
	c.inTabView = false
	id := c.session.ID
	stage := c.session.Stage
	c.mu.Unlock()

	c.broadcast(wire.TypeCheckoutStage, id, wire.CheckoutStage{Stage: stage})
	return nil
}

// Cancel aborts the session from any non-terminal state. The source tab is
// untouched. A card operation already started runs to hardware completion;
// its late result is dropped because the session is gone.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if c.session.Stage == domain.StageSuccess {
		c.mu.Unlock()
		return ErrWrongStage
	}
	id := c.session.ID
	c.clearLocked()
	c.mu.Unlock()

	telemetry.CheckoutsCancelled.Inc()
	c.log.Info("Checkout cancelled", zap.String("checkout_id", id))
	c.broadcast(wire.TypeCheckoutCancel, id, nil)
	return nil
}

// HandleTerminalStatus consumes adapter status events. Wire it with
// terminal.Adapter.Notify.
func (c *Controller) HandleTerminalStatus(ev terminal.StatusEvent) {
	switch ev.Status {
	case domain.PaymentStatusCollecting:
		c.markProcessing()
	case domain.PaymentStatusSucceeded:
		if ev.Result != nil {
			c.settle(context.Background(), *ev.Result)
		}
	case domain.PaymentStatusFailed:
		c.markFailed(ev.Err)
	}
}

// HandleMessage consumes display-originated requests from the sync channel:
// the customer device never calls the terminal adapter, it asks the owner.
func (c *Controller) HandleMessage(ctx context.Context, env *wire.Envelope) {
	switch env.Type {
	case wire.TypeProcessPayment:
		var req wire.ProcessPayment
		if err := wire.DecodePayload(env, &req); err != nil {
			c.log.Warn("Bad process_payment request", zap.Error(err))
			return
		}
		c.handlePaymentRequest(ctx, req.AmountMinorUnits)

	case wire.TypeSimulateTap:
		if err := c.term.SimulateCardPresentation(ctx); err != nil {
			c.log.Warn("Simulated tap rejected", zap.Error(err))
		}
	}
}

// handlePaymentRequest folds a display-side tip choice into the session:
// the request amount is subtotal plus the tip picked on the other screen.
func (c *Controller) handlePaymentRequest(ctx context.Context, amount int64) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		c.log.Warn("Dropping payment request with no active session")
		return
	}
	tip := amount - c.session.Subtotal
	if tip < 0 {
		c.mu.Unlock()
		c.log.Warn("Dropping payment request below subtotal",
			zap.Int64("amount", amount),
		)
		return
	}
	if c.session.Stage == domain.StageTipSelection {
		c.session.TipAmount = tip
		c.session.Stage = domain.StagePaymentPending
	}
	id := c.session.ID
	c.mu.Unlock()

	c.broadcast(wire.TypeCheckoutStage, id, wire.CheckoutStage{Stage: domain.StagePaymentPending})

	if err := c.term.ProcessPayment(ctx, amount, c.currency); err != nil {
		c.log.Warn("Terminal rejected payment request", zap.Error(err))
	}
}

func (c *Controller) markProcessing() {
	c.mu.Lock()
	if c.session == nil || c.session.Stage != domain.StagePaymentPending {
		c.mu.Unlock()
		return
	}
	c.session.Stage = domain.StageProcessing
	c.session.LastPaymentStatus = string(domain.PaymentStatusCollecting)
	c.inTabView = false
	id := c.session.ID
	c.mu.Unlock()

	c.broadcast(wire.TypeCheckoutStage, id, wire.CheckoutStage{Stage: domain.StageProcessing})
	c.broadcast(wire.TypePaymentStatus, id, wire.PaymentStatus{
		Status:     domain.PaymentStatusCollecting,
		CheckoutID: id,
	})
}

// settle finishes a paid session: stage success, source tab closed, session
// cleared after the display window.
func (c *Controller) settle(ctx context.Context, res domain.PaymentResult) {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		c.log.Info("Dropping late payment result, session is gone",
			zap.String("transaction_id", res.TransactionID),
		)
		return
	}
	// Only a pending or in-flight payment can settle; anything else is a
	// late or duplicate result and must not settle twice.
	if stage := c.session.Stage; stage != domain.StagePaymentPending && stage != domain.StageProcessing {
		c.mu.Unlock()
		c.log.Warn("Dropping payment result outside payment flow",
			zap.String("stage", string(stage)),
			zap.String("transaction_id", res.TransactionID),
		)
		return
	}
	c.session.Stage = domain.StageSuccess
	c.session.LastPaymentStatus = string(domain.PaymentStatusSucceeded)
	c.inTabView = false
	id := c.session.ID
	tabID := c.session.TabID
	tip := c.session.TipAmount
	total := c.session.Total()
	c.stopTimerLocked()
	c.mu.Unlock()

	if err := c.orders.CloseTab(ctx, tabID); err != nil {
		// The charge went through; keep going and let reconciliation pick
		// the tab up rather than fail a paid checkout.
		c.log.Error("Failed to close paid tab", zap.String("tab_id", tabID), zap.Error(err))
	}

	telemetry.PaymentsTotal.WithLabelValues("succeeded").Inc()
	c.log.Info("Checkout succeeded",
		zap.String("checkout_id", id),
		zap.Int64("total", total),
		zap.String("transaction_id", res.TransactionID),
	)

	c.broadcast(wire.TypeCheckoutStage, id, wire.CheckoutStage{Stage: domain.StageSuccess})
	c.broadcast(wire.TypePaymentStatus, id, wire.PaymentStatus{
		Status:        domain.PaymentStatusSucceeded,
		CheckoutID:    id,
		TransactionID: res.TransactionID,
	})
	c.broadcast(wire.TypeCheckoutComplete, id, wire.CheckoutComplete{
		TipAmount: tip,
		Total:     total,
		TabRef:    tabID,
	})

	c.mu.Lock()
	c.timer = time.AfterFunc(c.successWindow, func() { c.finish(id) })
	c.mu.Unlock()
}

// markFailed moves to failed and, after the banner window, back to
// payment_pending for retry. The tab and the tip selection both survive.
func (c *Controller) markFailed(cause error) {
	c.mu.Lock()
	if c.session == nil || c.session.Stage != domain.StageProcessing {
		c.mu.Unlock()
		return
	}
	c.session.Stage = domain.StageFailed
	c.session.LastPaymentStatus = string(domain.PaymentStatusFailed)
	id := c.session.ID
	c.stopTimerLocked()
	c.mu.Unlock()

	reason := ""
	if cause != nil {
		reason = cause.Error()
	}

	telemetry.PaymentsTotal.WithLabelValues("failed").Inc()
	c.log.Warn("Checkout payment failed",
		zap.String("checkout_id", id),
		zap.String("reason", reason),
	)

	c.broadcast(wire.TypeCheckoutStage, id, wire.CheckoutStage{Stage: domain.StageFailed})
	c.broadcast(wire.TypePaymentStatus, id, wire.PaymentStatus{
		Status:        domain.PaymentStatusFailed,
		CheckoutID:    id,
		FailureReason: reason,
	})

	c.mu.Lock()
	c.timer = time.AfterFunc(c.failureWindow, func() { c.clearFailure(id) })
	c.mu.Unlock()
}

// finish returns success to none once the display window elapses.
func (c *Controller) finish(id string) {
	c.mu.Lock()
	if c.session == nil || c.session.ID != id || c.session.Stage != domain.StageSuccess {
		c.mu.Unlock()
		return
	}
	c.clearLocked()
	c.mu.Unlock()

	c.broadcast(wire.TypeCheckoutStage, id, wire.CheckoutStage{Stage: domain.StageNone})
}

// clearFailure time-boxes the failed banner, then re-arms payment_pending.
func (c *Controller) clearFailure(id string) {
	c.mu.Lock()
	if c.session == nil || c.session.ID != id || c.session.Stage != domain.StageFailed {
		c.mu.Unlock()
		return
	}
	c.session.Stage = domain.StagePaymentPending
	c.mu.Unlock()

	c.broadcast(wire.TypeCheckoutStage, id, wire.CheckoutStage{Stage: domain.StagePaymentPending})
}

// PublishReaderStatus tells peers about reader availability changes.
func (c *Controller) PublishReaderStatus(conn *domain.ReaderConnection) {
	status := wire.ReaderStatus{}
	if conn != nil {
		status.Connected = conn.Connected
		status.Simulated = conn.Simulated
		status.Serial = conn.Serial
		status.BatteryLevel = conn.BatteryLevel
	}
	c.broadcast(wire.TypeReaderStatus, "", status)
}

func (c *Controller) clearLocked() {
	c.session = nil
	c.inTabView = false
	c.stopTimerLocked()
	telemetry.ActiveCheckout.Set(0)
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// broadcast is fire-and-forget: while the relay is down the operator keeps
// serving in single-device mode and the display catches up on the next
// transition after reconnect.
func (c *Controller) broadcast(typ wire.Type, checkoutID string, payload interface{}) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	msg, err := wire.Encode(typ, c.deviceID, checkoutID, seq, payload)
	if err != nil {
		c.log.Error("Failed to encode sync message", zap.String("type", string(typ)), zap.Error(err))
		return
	}
	if err := c.ch.Publish(msg); err != nil {
		c.log.Warn("Sync broadcast dropped",
			zap.String("type", string(typ)),
			zap.Error(err),
		)
		return
	}
	telemetry.SyncMessages.WithLabelValues(string(typ), "out").Inc()
}
