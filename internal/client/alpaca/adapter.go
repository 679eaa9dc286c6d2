// Package alpaca adapts the Alpaca trading and market data SDK to the
// broker ports for the US market.
package alpaca

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"autostock/internal/broker"
	"autostock/internal/config"
	"autostock/internal/errs"
	"autostock/internal/models"
)

// TradingAPI is the subset of *alpaca.Client the adapter uses.
type TradingAPI interface {
	GetAccount() (*alpaca.Account, error)
	GetPositions() ([]alpaca.Position, error)
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
	GetOrder(orderID string) (*alpaca.Order, error)
	CancelOrder(orderID string) error
}

type SnapshotAPI interface {
	GetSnapshot(symbol string, req marketdata.GetSnapshotRequest) (*marketdata.Snapshot, error)
}

type Adapter struct {
	Trading TradingAPI
	Data    SnapshotAPI
	Now     func() time.Time
}

func New(cfg config.AlpacaConfig) *Adapter {
	return &Adapter{
		Trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   cfg.BaseURL,
		}),
		Data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
		}),
		Now: time.Now,
	}
}

// classify maps SDK errors onto the error taxonomy.
func classify(err error, fallback error) error {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) && (apiErr.StatusCode == 401 || apiErr.StatusCode == 403) {
		return fmt.Errorf("%v: %w", err, errs.ErrAuth)
	}
	return fmt.Errorf("%v: %w", err, fallback)
}

func (a *Adapter) Quote(ctx context.Context, symbol string) (broker.Quote, error) {
	if err := ctx.Err(); err != nil {
		return broker.Quote{}, err
	}
	snap, err := a.Data.GetSnapshot(symbol, marketdata.GetSnapshotRequest{})
	if err != nil {
		return broker.Quote{}, fmt.Errorf("%s snapshot: %v: %w", symbol, err, errs.ErrDataUnavailable)
	}
	if snap == nil || snap.LatestTrade == nil || snap.LatestTrade.Price <= 0 {
		return broker.Quote{}, fmt.Errorf("%s: no latest trade: %w", symbol, errs.ErrDataUnavailable)
	}
	q := broker.Quote{
		Symbol: symbol,
		Price:  decimal.NewFromFloat(snap.LatestTrade.Price),
		At:     a.Now(),
	}
	if snap.PrevDailyBar != nil {
		q.PreviousClose = decimal.NewFromFloat(snap.PrevDailyBar.Close)
	}
	return q, nil
}

func (a *Adapter) Balance(ctx context.Context) (models.Balance, error) {
	if err := ctx.Err(); err != nil {
		return models.Balance{}, err
	}
	acct, err := a.Trading.GetAccount()
	if err != nil {
		return models.Balance{}, classify(err, errs.ErrDataUnavailable)
	}
	positions, err := a.Trading.GetPositions()
	if err != nil {
		return models.Balance{}, classify(err, errs.ErrDataUnavailable)
	}
	bal := models.Balance{Cash: acct.Cash}
	for _, p := range positions {
		qty := p.Qty.IntPart()
		if qty <= 0 {
			continue
		}
		bal.Positions = append(bal.Positions, models.Position{
			Symbol:      p.Symbol,
			Quantity:    qty,
			AvgPrice:    p.AvgEntryPrice,
			SellableQty: p.QtyAvailable.IntPart(),
		})
	}
	return bal, nil
}

func (a *Adapter) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return broker.OrderAck{}, err
	}
	qty := decimal.NewFromInt(req.Quantity)
	limit := req.Price.Round(2)
	o, err := a.Trading.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:      req.Symbol,
		Qty:         &qty,
		Side:        alpaca.Side(req.Side),
		Type:        alpaca.Limit,
		LimitPrice:  &limit,
		TimeInForce: alpaca.Day,
	})
	if err != nil {
		return broker.OrderAck{}, classify(err, errs.ErrOrder)
	}
	return broker.OrderAck{OrderID: o.ID}, nil
}

func (a *Adapter) OrderStatus(ctx context.Context, orderID string) (broker.OrderStatus, error) {
	if err := ctx.Err(); err != nil {
		return broker.OrderStatus{}, err
	}
	o, err := a.Trading.GetOrder(orderID)
	if err != nil {
		return broker.OrderStatus{}, classify(err, errs.ErrOrder)
	}
	st := broker.OrderStatus{OrderID: orderID, FilledQty: o.FilledQty.IntPart()}
	switch strings.ToLower(o.Status) {
	case "canceled", "expired", "rejected", "done_for_day":
		st.Cancelled = true
	}
	return st, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.Trading.CancelOrder(orderID); err != nil {
		return classify(err, errs.ErrOrder)
	}
	return nil
}
