// Package order follows submitted limit orders until they fill, get
// cancelled by the broker, or time out.
package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"autostock/internal/broker"
	"autostock/internal/config"
	"autostock/internal/errs"
	"autostock/internal/models"
)

const shutdownCancelTimeout = 10 * time.Second

type entry struct {
	order  models.PendingOrder
	stop   context.CancelFunc
	cancel bool // a cancel request has been claimed
}

// Tracker owns the pending table of one market. Each order gets one monitor
// goroutine. All table access goes through mu.
type Tracker struct {
	Market       string
	Account      broker.Account
	Timeout      time.Duration
	PollInterval time.Duration
	Logger       *zap.Logger
	Now          func() time.Time
	// OnTerminal runs once per order after it leaves the table.
	OnTerminal func(models.PendingOrder)

	mu          sync.Mutex
	pending     map[string]*entry
	wg          sync.WaitGroup
	base        context.Context
	stopAll     context.CancelFunc
	closed      bool
	cancelOnEnd bool
}

func New(market string, account broker.Account, cfg config.OrderConfig, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Minute
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Minute
	}
	base, cancel := context.WithCancel(context.Background())
	return &Tracker{
		Market:       market,
		Account:      account,
		Timeout:      timeout,
		PollInterval: poll,
		Logger:       logger,
		Now:          time.Now,
		pending:      map[string]*entry{},
		base:         base,
		stopAll:      cancel,
	}
}

var ErrClosed = errors.New("order tracker closed")

// Submit places the order synchronously and starts monitoring it on ack.
func (t *Tracker) Submit(ctx context.Context, in models.Intent) (models.PendingOrder, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return models.PendingOrder{}, fmt.Errorf("%s %s: %w", in.Side, in.Symbol, ErrClosed)
	}
	if in.Quantity <= 0 {
		return models.PendingOrder{}, fmt.Errorf("%s %s quantity %d: %w", in.Side, in.Symbol, in.Quantity, errs.ErrOrder)
	}

	ack, err := t.Account.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:   in.Symbol,
		Side:     in.Side,
		Quantity: in.Quantity,
		Price:    in.Price,
	})
	if err != nil {
		if !errors.Is(err, errs.ErrOrder) && !errors.Is(err, errs.ErrAuth) {
			err = fmt.Errorf("%v: %w", err, errs.ErrOrder)
		}
		return models.PendingOrder{}, fmt.Errorf("place %s %s: %w", in.Side, in.Symbol, err)
	}
	if ack.OrderID == "" {
		return models.PendingOrder{}, fmt.Errorf("place %s %s: empty order id: %w", in.Side, in.Symbol, errs.ErrOrder)
	}

	o := models.PendingOrder{
		OrderID:     ack.OrderID,
		Market:      t.Market,
		Symbol:      in.Symbol,
		Side:        in.Side,
		Quantity:    in.Quantity,
		Price:       in.Price,
		Reason:      in.Reason,
		SubmittedAt: t.Now(),
		Status:      models.OrderSubmitted,
	}
	mctx, stop := context.WithCancel(t.base)

	t.mu.Lock()
	if t.closed {
		cancelLate := t.cancelOnEnd
		t.mu.Unlock()
		stop()
		return t.lateAck(o, cancelLate), nil
	}
	if _, dup := t.pending[o.OrderID]; dup {
		t.mu.Unlock()
		stop()
		return o, fmt.Errorf("duplicate order id %s: %w", o.OrderID, errs.ErrOrder)
	}
	t.pending[o.OrderID] = &entry{order: o, stop: stop}
	t.wg.Add(1)
	t.mu.Unlock()

	go t.monitor(mctx, o.OrderID)
	t.Logger.Info("order tracking started",
		zap.String("order_id", o.OrderID),
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.Int64("qty", o.Quantity),
		zap.String("price", o.Price.String()),
	)
	return o, nil
}

// lateAck handles an order the broker accepted after Shutdown started. It is
// never added to the table; it is cancelled when shutdown cancels pending
// orders.
func (t *Tracker) lateAck(o models.PendingOrder, cancel bool) models.PendingOrder {
	t.Logger.Warn("order acked during shutdown, not monitored",
		zap.String("order_id", o.OrderID),
		zap.String("symbol", o.Symbol),
		zap.Bool("cancel", cancel),
	)
	if !cancel {
		return o
	}
	ctx, done := context.WithTimeout(context.Background(), shutdownCancelTimeout)
	defer done()
	if err := t.Account.CancelOrder(ctx, o.OrderID); err != nil {
		t.Logger.Error("order cancel failed", zap.String("order_id", o.OrderID), zap.Error(err))
		return o
	}
	o.Status = models.OrderCancelled
	return o
}

func (t *Tracker) monitor(ctx context.Context, id string) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		o, ok := t.get(id)
		if !ok {
			return
		}
		if t.Now().Sub(o.SubmittedAt) >= t.Timeout {
			t.cancelOnce(ctx, id, models.OrderTimedOut)
			return
		}

		st, err := t.Account.OrderStatus(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.Logger.Warn("order status query failed", zap.String("order_id", id), zap.Error(err))
			continue
		}
		switch {
		case st.FilledQty >= o.Quantity:
			t.finish(id, models.OrderFilled, st.FilledQty)
			return
		case st.Cancelled:
			t.finish(id, models.OrderCancelled, st.FilledQty)
			return
		default:
			t.setFilled(id, st.FilledQty)
		}
	}
}

// cancelOnce sends exactly one cancel for id. A cancel that fails because the
// order already filled resolves to Filled; any other failure is CancelFailed.
func (t *Tracker) cancelOnce(ctx context.Context, id string, onSuccess models.OrderState) bool {
	t.mu.Lock()
	e, ok := t.pending[id]
	if !ok || e.cancel {
		t.mu.Unlock()
		return false
	}
	e.cancel = true
	o := e.order
	t.mu.Unlock()

	err := t.Account.CancelOrder(ctx, id)
	if err == nil {
		t.Logger.Info("order cancelled", zap.String("order_id", id), zap.String("state", string(onSuccess)))
		return t.finish(id, onSuccess, o.FilledQty)
	}

	t.Logger.Error("order cancel failed", zap.String("order_id", id), zap.String("symbol", o.Symbol), zap.Error(err))
	if st, serr := t.Account.OrderStatus(ctx, id); serr == nil && st.FilledQty >= o.Quantity {
		return t.finish(id, models.OrderFilled, st.FilledQty)
	}
	return t.finish(id, models.OrderCancelFailed, o.FilledQty)
}

// finish moves id to a terminal state. Only the first caller wins.
func (t *Tracker) finish(id string, state models.OrderState, filled int64) bool {
	t.mu.Lock()
	e, ok := t.pending[id]
	if !ok || e.order.Status.Terminal() {
		t.mu.Unlock()
		return false
	}
	now := t.Now()
	e.order.Status = state
	e.order.FilledQty = filled
	e.order.FinishedAt = &now
	delete(t.pending, id)
	e.stop()
	o := e.order
	hook := t.OnTerminal
	t.mu.Unlock()

	t.Logger.Info("order finished",
		zap.String("order_id", id),
		zap.String("symbol", o.Symbol),
		zap.String("state", string(state)),
		zap.Int64("filled", filled),
		zap.Duration("age", now.Sub(o.SubmittedAt)),
	)
	if hook != nil {
		hook(o)
	}
	return true
}

func (t *Tracker) get(id string) (models.PendingOrder, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.pending[id]
	if !ok {
		return models.PendingOrder{}, false
	}
	return e.order, true
}

func (t *Tracker) setFilled(id string, filled int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.pending[id]; ok && filled > e.order.FilledQty {
		e.order.FilledQty = filled
	}
}

type Summary struct {
	TotalPending int                   `json:"total_pending"`
	BuyOrders    int                   `json:"buy_orders"`
	SellOrders   int                   `json:"sell_orders"`
	Orders       []models.PendingOrder `json:"orders"`
}

func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Summary{TotalPending: len(t.pending), Orders: make([]models.PendingOrder, 0, len(t.pending))}
	for _, e := range t.pending {
		if e.order.Side == models.SideBuy {
			s.BuyOrders++
		} else {
			s.SellOrders++
		}
		s.Orders = append(s.Orders, e.order)
	}
	sort.Slice(s.Orders, func(i, j int) bool {
		return s.Orders[i].SubmittedAt.Before(s.Orders[j].SubmittedAt)
	})
	return s
}

func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Sweep drops entries older than maxAge whatever their monitor is doing.
func (t *Tracker) Sweep(maxAge time.Duration) int {
	now := t.Now()
	t.mu.Lock()
	var dropped []string
	for id, e := range t.pending {
		if now.Sub(e.order.SubmittedAt) > maxAge {
			e.stop()
			delete(t.pending, id)
			dropped = append(dropped, id)
		}
	}
	t.mu.Unlock()
	for _, id := range dropped {
		t.Logger.Info("stale order dropped", zap.String("order_id", id), zap.Duration("max_age", maxAge))
	}
	return len(dropped)
}

// Shutdown stops every monitor. With cancelPending each remaining order gets
// one cancel request.
func (t *Tracker) Shutdown(cancelPending bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.cancelOnEnd = cancelPending
	ids := make([]string, 0, len(t.pending))
	for id := range t.pending {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	t.stopAll()
	if !cancelPending {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownCancelTimeout)
	defer cancel()
	for _, id := range ids {
		t.cancelOnce(ctx, id, models.OrderCancelled)
	}
}

// Wait blocks until every monitor goroutine has exited.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
