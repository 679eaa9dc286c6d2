package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"autostock/internal/errs"
	"autostock/internal/models"
	"autostock/internal/storage"
)

// Floors remembers the last take-profit price per symbol so the engine can
// avoid buying back above it.
type Floors struct {
	Market string
	Store  storage.Store
	Logger *zap.Logger
	Now    func() time.Time

	mu  sync.RWMutex
	m   map[string]models.SellFloor
	err error
}

func NewFloors(market string, store storage.Store, logger *zap.Logger) *Floors {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Floors{Market: market, Store: store, Logger: logger, Now: time.Now, m: map[string]models.SellFloor{}}
}

func (f *Floors) key() string { return "sell_floor/" + f.Market }

func (f *Floors) Load(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.Store.Load(ctx, f.key())
	if errors.Is(err, storage.ErrNotFound) {
		f.m = map[string]models.SellFloor{}
		f.err = nil
		return nil
	}
	if err != nil {
		f.err = err
		return err
	}
	m := map[string]models.SellFloor{}
	if err := json.Unmarshal(data, &m); err != nil {
		f.err = fmt.Errorf("decode sell floors: %v: %w", err, errs.ErrPersistence)
		return f.err
	}
	f.m = m
	f.err = nil
	return nil
}

func (f *Floors) Record(ctx context.Context, symbol string, price decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[symbol] = models.SellFloor{Symbol: symbol, Price: price, RecordedAt: f.Now()}
	f.Logger.Debug("sell floor recorded", zap.String("symbol", symbol), zap.String("price", price.String()))
	return f.persistLocked(ctx)
}

func (f *Floors) Get(symbol string) (decimal.Decimal, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fl, ok := f.m[symbol]
	return fl.Price, ok
}

func (f *Floors) Clear(ctx context.Context, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.m[symbol]; !ok {
		return nil
	}
	delete(f.m, symbol)
	return f.persistLocked(ctx)
}

func (f *Floors) All() []models.SellFloor {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]models.SellFloor, 0, len(f.m))
	for _, fl := range f.m {
		out = append(out, fl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (f *Floors) Err() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.err
}

func (f *Floors) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(f.m)
	if err == nil {
		err = f.Store.Save(ctx, f.key(), data)
	}
	if err != nil {
		if !errors.Is(err, errs.ErrPersistence) {
			err = fmt.Errorf("%v: %w", err, errs.ErrPersistence)
		}
		f.err = err
		f.Logger.Error("sell floor write failed", zap.Error(err))
		return err
	}
	f.err = nil
	return nil
}
