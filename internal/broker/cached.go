package broker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"autostock/internal/cache"
)

// CachedQuotes serves quotes from a cache.Store for TTL before asking Source
// again. Failed lookups are never cached.
type CachedQuotes struct {
	Market string
	Source QuoteSource
	Store  cache.Store
	TTL    time.Duration
	Logger *zap.Logger
}

func (c *CachedQuotes) key(symbol string) string {
	return "quote:" + c.Market + ":" + symbol
}

func (c *CachedQuotes) Quote(ctx context.Context, symbol string) (Quote, error) {
	if c.Store != nil && c.TTL > 0 {
		if raw, ok, err := c.Store.Get(ctx, c.key(symbol)); err == nil && ok {
			var q Quote
			if json.Unmarshal(raw, &q) == nil {
				return q, nil
			}
		} else if err != nil && c.Logger != nil {
			c.Logger.Debug("quote cache get failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	q, err := c.Source.Quote(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	if c.Store != nil && c.TTL > 0 {
		if raw, err := json.Marshal(q); err == nil {
			if err := c.Store.Set(ctx, c.key(symbol), raw, c.TTL); err != nil && c.Logger != nil {
				c.Logger.Debug("quote cache set failed", zap.String("symbol", symbol), zap.Error(err))
			}
		}
	}
	return q, nil
}
