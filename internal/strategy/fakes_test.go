package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"autostock/internal/errs"
	"autostock/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type quote struct{ cur, prev string }

// revoked makes every lookup for a symbol fail with errs.ErrAuth.
const revoked = "revoked"

type fakeMarket map[string]quote

func (m fakeMarket) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q, ok := m[symbol]
	if q.cur == revoked {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, errs.ErrAuth)
	}
	if !ok || q.cur == "" {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, errs.ErrDataUnavailable)
	}
	return d(q.cur), nil
}

func (m fakeMarket) PreviousClose(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q, ok := m[symbol]
	if !ok || q.prev == "" {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, errs.ErrDataUnavailable)
	}
	return d(q.prev), nil
}

type fakeBalance struct {
	bal models.Balance
	err error
}

func (f fakeBalance) Balance(ctx context.Context) (models.Balance, error) {
	return f.bal, f.err
}

var errBalance = errors.New("balance endpoint down")

type blockSet map[string]bool

func (b blockSet) IsBlocked(ctx context.Context, symbol string) bool { return b[symbol] }

type floorSet map[string]decimal.Decimal

func (f floorSet) Get(symbol string) (decimal.Decimal, bool) {
	v, ok := f[symbol]
	return v, ok
}
