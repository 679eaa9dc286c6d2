// Package broker declares the market-data and account ports every market
// adapter implements, plus adapter-independent decorators.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"autostock/internal/errs"
	"autostock/internal/models"
)

// MarketData misses return an error wrapping errs.ErrDataUnavailable.
type MarketData interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	PreviousClose(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type OrderRequest struct {
	Symbol   string
	Side     models.Side
	Quantity int64
	Price    decimal.Decimal
}

type OrderAck struct {
	OrderID string
}

type OrderStatus struct {
	OrderID   string
	FilledQty int64
	// Cancelled is set when the broker itself cancelled or rejected the order.
	Cancelled bool
}

var ErrOrderNotFound = errors.New("order not found")

type Account interface {
	Balance(ctx context.Context) (models.Balance, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	OrderStatus(ctx context.Context, orderID string) (OrderStatus, error)
	CancelOrder(ctx context.Context, orderID string) error
}

type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	At            time.Time       `json:"at"`
}

// QuoteSource fetches current price and previous close in one call.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// QuoteMarketData adapts a QuoteSource to MarketData.
type QuoteMarketData struct {
	Source QuoteSource
}

func (m QuoteMarketData) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q, err := m.Source.Quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if !q.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s current price: %w", symbol, errs.ErrDataUnavailable)
	}
	return q.Price, nil
}

func (m QuoteMarketData) PreviousClose(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q, err := m.Source.Quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if !q.PreviousClose.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s previous close: %w", symbol, errs.ErrDataUnavailable)
	}
	return q.PreviousClose, nil
}
