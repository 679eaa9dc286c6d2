package broker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autostock/internal/cache"
	"autostock/internal/errs"
)

type countingSource struct {
	calls  int
	quotes map[string]Quote
}

func (s *countingSource) Quote(ctx context.Context, symbol string) (Quote, error) {
	s.calls++
	q, ok := s.quotes[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%s: %w", symbol, errs.ErrDataUnavailable)
	}
	return q, nil
}

func TestCachedQuotes_HitsCacheWithinTTL(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{quotes: map[string]Quote{
		"AAPL": {Symbol: "AAPL", Price: decimal.RequireFromString("190.5"), PreviousClose: decimal.NewFromInt(200)},
	}}
	store := cache.NewMemoryStore()
	md := QuoteMarketData{Source: &CachedQuotes{Market: "us", Source: src, Store: store, TTL: time.Minute}}

	p, err := md.CurrentPrice(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.RequireFromString("190.5")))

	prev, err := md.PreviousClose(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, prev.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, 1, src.calls)

	_, err = md.CurrentPrice(ctx, "MSFT")
	assert.ErrorIs(t, err, errs.ErrDataUnavailable)
	_, err = md.CurrentPrice(ctx, "MSFT")
	assert.ErrorIs(t, err, errs.ErrDataUnavailable)
	assert.Equal(t, 3, src.calls)
}

func TestQuoteMarketData_ZeroIsUnavailable(t *testing.T) {
	src := &countingSource{quotes: map[string]Quote{"X": {Symbol: "X"}}}
	md := QuoteMarketData{Source: src}
	_, err := md.CurrentPrice(context.Background(), "X")
	assert.ErrorIs(t, err, errs.ErrDataUnavailable)
	_, err = md.PreviousClose(context.Background(), "X")
	assert.ErrorIs(t, err, errs.ErrDataUnavailable)
}
