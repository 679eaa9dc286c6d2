// Package paper simulates a brokerage account in process. Limit orders fill
// at their limit price once the simulated quote crosses it.
package paper

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"autostock/internal/broker"
	"autostock/internal/config"
	"autostock/internal/errs"
	"autostock/internal/models"
)

type order struct {
	req       broker.OrderRequest
	filled    int64
	cancelled bool
}

func (o *order) open() bool { return !o.cancelled && o.filled < o.req.Quantity }

type holding struct {
	qty int64
	avg decimal.Decimal
}

type Broker struct {
	Market string
	Now    func() time.Time

	mu       sync.Mutex
	drift    float64
	rnd      *rand.Rand
	cash     decimal.Decimal
	holdings map[string]*holding
	quotes   map[string]broker.Quote
	orders   map[string]*order
}

func New(market string, cfg config.PaperConfig) *Broker {
	b := &Broker{
		Market:   market,
		Now:      time.Now,
		drift:    cfg.Drift,
		rnd:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		cash:     decimal.NewFromFloat(cfg.Cash),
		holdings: map[string]*holding{},
		quotes:   map[string]broker.Quote{},
		orders:   map[string]*order{},
	}
	for _, q := range cfg.Quotes {
		b.quotes[q.Symbol] = broker.Quote{
			Symbol:        q.Symbol,
			Price:         decimal.NewFromFloat(q.Price),
			PreviousClose: decimal.NewFromFloat(q.PreviousClose),
		}
	}
	for _, p := range cfg.Positions {
		if p.Quantity > 0 {
			b.holdings[p.Symbol] = &holding{qty: p.Quantity, avg: decimal.NewFromFloat(p.AvgPrice)}
		}
	}
	return b
}

// SetQuote replaces the simulated quote for a symbol.
func (b *Broker) SetQuote(symbol string, price, previousClose decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[symbol] = broker.Quote{Symbol: symbol, Price: price, PreviousClose: previousClose}
}

// Quote returns the current simulated quote, nudging the price by up to
// ±drift (a fraction) on every call.
func (b *Broker) Quote(ctx context.Context, symbol string) (broker.Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.quotes[symbol]
	if !ok || !q.Price.IsPositive() {
		return broker.Quote{}, fmt.Errorf("%s: %w", symbol, errs.ErrDataUnavailable)
	}
	if b.drift > 0 {
		step := (b.rnd.Float64()*2 - 1) * b.drift
		q.Price = q.Price.Mul(decimal.NewFromFloat(1 + step)).Round(4)
		b.quotes[symbol] = q
	}
	q.At = b.Now()
	return q, nil
}

func (b *Broker) Balance(ctx context.Context) (models.Balance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.matchLocked()

	reserved := b.reservedSellsLocked()
	bal := models.Balance{Cash: b.cash.Sub(b.reservedCashLocked())}
	syms := make([]string, 0, len(b.holdings))
	for s := range b.holdings {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	for _, s := range syms {
		h := b.holdings[s]
		bal.Positions = append(bal.Positions, models.Position{
			Symbol:       s,
			Quantity:     h.qty,
			AvgPrice:     h.avg,
			CurrentPrice: b.quotes[s].Price,
			SellableQty:  h.qty - reserved[s],
		})
	}
	return bal, nil
}

func (b *Broker) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	if req.Quantity <= 0 || !req.Price.IsPositive() {
		return broker.OrderAck{}, fmt.Errorf("invalid order %d @ %s: %w", req.Quantity, req.Price, errs.ErrOrder)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch req.Side {
	case models.SideBuy:
		cost := req.Price.Mul(decimal.NewFromInt(req.Quantity))
		if b.cash.Sub(b.reservedCashLocked()).LessThan(cost) {
			return broker.OrderAck{}, fmt.Errorf("insufficient cash for %s: %w", req.Symbol, errs.ErrOrder)
		}
	case models.SideSell:
		h := b.holdings[req.Symbol]
		if h == nil || h.qty-b.reservedSellsLocked()[req.Symbol] < req.Quantity {
			return broker.OrderAck{}, fmt.Errorf("insufficient sellable %s: %w", req.Symbol, errs.ErrOrder)
		}
	default:
		return broker.OrderAck{}, fmt.Errorf("side %q: %w", req.Side, errs.ErrOrder)
	}

	id := uuid.NewString()
	b.orders[id] = &order{req: req}
	b.matchLocked()
	return broker.OrderAck{OrderID: id}, nil
}

func (b *Broker) OrderStatus(ctx context.Context, orderID string) (broker.OrderStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.matchLocked()
	o, ok := b.orders[orderID]
	if !ok {
		return broker.OrderStatus{}, fmt.Errorf("%s: %w", orderID, broker.ErrOrderNotFound)
	}
	return broker.OrderStatus{OrderID: orderID, FilledQty: o.filled, Cancelled: o.cancelled}, nil
}

func (b *Broker) CancelOrder(ctx context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.matchLocked()
	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("%s: %w", orderID, broker.ErrOrderNotFound)
	}
	if !o.open() {
		return fmt.Errorf("order %s no longer open: %w", orderID, errs.ErrOrder)
	}
	o.cancelled = true
	return nil
}

func (b *Broker) matchLocked() {
	for _, o := range b.orders {
		if !o.open() {
			continue
		}
		q, ok := b.quotes[o.req.Symbol]
		if !ok {
			continue
		}
		crossed := (o.req.Side == models.SideBuy && q.Price.LessThanOrEqual(o.req.Price)) ||
			(o.req.Side == models.SideSell && q.Price.GreaterThanOrEqual(o.req.Price))
		if crossed {
			b.fillLocked(o)
		}
	}
}

func (b *Broker) fillLocked(o *order) {
	qty := o.req.Quantity - o.filled
	amount := o.req.Price.Mul(decimal.NewFromInt(qty))
	h := b.holdings[o.req.Symbol]
	switch o.req.Side {
	case models.SideBuy:
		b.cash = b.cash.Sub(amount)
		if h == nil {
			h = &holding{}
			b.holdings[o.req.Symbol] = h
		}
		total := h.avg.Mul(decimal.NewFromInt(h.qty)).Add(amount)
		h.qty += qty
		h.avg = total.Div(decimal.NewFromInt(h.qty)).Round(4)
	case models.SideSell:
		b.cash = b.cash.Add(amount)
		h.qty -= qty
		if h.qty <= 0 {
			delete(b.holdings, o.req.Symbol)
		}
	}
	o.filled = o.req.Quantity
}

func (b *Broker) reservedCashLocked() decimal.Decimal {
	sum := decimal.Zero
	for _, o := range b.orders {
		if o.open() && o.req.Side == models.SideBuy {
			sum = sum.Add(o.req.Price.Mul(decimal.NewFromInt(o.req.Quantity - o.filled)))
		}
	}
	return sum
}

func (b *Broker) reservedSellsLocked() map[string]int64 {
	out := map[string]int64{}
	for _, o := range b.orders {
		if o.open() && o.req.Side == models.SideSell {
			out[o.req.Symbol] += o.req.Quantity - o.filled
		}
	}
	return out
}
