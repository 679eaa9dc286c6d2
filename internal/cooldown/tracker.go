// Package cooldown keeps the stop-loss blacklist: a symbol sold at a stop
// loss may not be bought again until its cooldown expires.
package cooldown

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

// Block is an active cooldown with its remaining whole days.
type Block struct {
	models.CooldownEntry
	RemainingDays int `json:"remaining_days"`
}

type Tracker struct {
	Market   string
	Store    storage.Store
	Logger   *zap.Logger
	Duration time.Duration
	Location *time.Location
	Now      func() time.Time

	mu       sync.Mutex
	entries  map[string]models.CooldownEntry
	loadErr  error
	writeErr error
}

func New(market string, store storage.Store, days int, loc *time.Location, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{
		Market:   market,
		Store:    store,
		Logger:   logger,
		Duration: time.Duration(days) * 24 * time.Hour,
		Location: loc,
		Now:      time.Now,
		entries:  map[string]models.CooldownEntry{},
	}
}

func (t *Tracker) key() string { return "cooldown/" + t.Market }

// Load reads the persisted table. A failed load leaves the tracker blocking
// every symbol until a later Load succeeds.
func (t *Tracker) Load(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := t.Store.Load(ctx, t.key())
	if errors.Is(err, storage.ErrNotFound) {
		t.entries = map[string]models.CooldownEntry{}
		t.loadErr = nil
		return nil
	}
	if err != nil {
		t.loadErr = err
		t.Logger.Error("cooldown table unreadable, blocking all buys", zap.Error(err))
		return err
	}
	entries := map[string]models.CooldownEntry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		t.loadErr = fmt.Errorf("decode cooldown table: %v: %w", err, errs.ErrPersistence)
		t.Logger.Error("cooldown table undecodable, blocking all buys", zap.Error(err))
		return t.loadErr
	}
	t.entries = entries
	t.loadErr = nil
	t.Logger.Info("cooldown table loaded", zap.Int("entries", len(entries)))
	return nil
}

// RecordStopLoss starts (or restarts) the cooldown for symbol and persists it.
// The entry stays in memory even if the write fails.
func (t *Tracker) RecordStopLoss(ctx context.Context, symbol string, avgPrice, triggerPrice, lossRate decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.Now().In(t.Location)
	entry := models.CooldownEntry{
		Symbol:        symbol,
		TriggeredAt:   now,
		CooldownUntil: now.Add(t.Duration),
		LossRate:      lossRate,
		AvgPrice:      avgPrice,
		TriggerPrice:  triggerPrice,
		Timezone:      t.Location.String(),
	}
	t.entries[symbol] = entry
	t.Logger.Warn("stop loss cooldown recorded",
		zap.String("symbol", symbol),
		zap.Time("cooldown_until", entry.CooldownUntil),
		zap.String("loss_rate", lossRate.StringFixed(4)),
	)
	return t.persistLocked(ctx)
}

// IsBlocked reports whether buying symbol is vetoed. Any error resolves to true.
func (t *Tracker) IsBlocked(ctx context.Context, symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.loadErr != nil || t.entries == nil {
		return true
	}
	entry, ok := t.entries[symbol]
	if !ok {
		return false
	}
	if t.Now().Before(entry.CooldownUntil) {
		return true
	}

	delete(t.entries, symbol)
	if err := t.persistLocked(ctx); err != nil {
		t.entries[symbol] = entry
		return true
	}
	t.Logger.Info("cooldown expired", zap.String("symbol", symbol))
	return false
}

// RemainingDays returns whole days left on an active cooldown.
func (t *Tracker) RemainingDays(symbol string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[symbol]
	if !ok {
		return 0, false
	}
	left := entry.CooldownUntil.Sub(t.Now())
	if left <= 0 {
		return 0, false
	}
	return int(left / (24 * time.Hour)), true
}

// ManualUnblock lifts a cooldown on operator request. It reports false when
// the symbol had no entry.
func (t *Tracker) ManualUnblock(ctx context.Context, symbol, reason string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[symbol]
	if !ok {
		return false, nil
	}
	delete(t.entries, symbol)
	if err := t.persistLocked(ctx); err != nil {
		t.entries[symbol] = entry
		return false, err
	}
	t.Logger.Warn("cooldown manually lifted",
		zap.String("symbol", symbol),
		zap.String("reason", reason),
		zap.Time("was_until", entry.CooldownUntil),
	)
	return true, nil
}

// ActiveBlocks lists unexpired cooldowns, soonest expiry first.
func (t *Tracker) ActiveBlocks() []Block {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.Now()
	out := make([]Block, 0, len(t.entries))
	for _, e := range t.entries {
		left := e.CooldownUntil.Sub(now)
		if left <= 0 {
			continue
		}
		out = append(out, Block{CooldownEntry: e, RemainingDays: int(left / (24 * time.Hour))})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CooldownUntil.Equal(out[j].CooldownUntil) {
			return out[i].CooldownUntil.Before(out[j].CooldownUntil)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Count returns the number of unexpired cooldowns.
func (t *Tracker) Count() int {
	return len(t.ActiveBlocks())
}

// Err returns the load or write failure that currently makes the table
// untrustworthy, or nil.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loadErr != nil {
		return t.loadErr
	}
	return t.writeErr
}

func (t *Tracker) persistLocked(ctx context.Context) error {
	data, err := json.MarshalIndent(t.entries, "", "  ")
	if err != nil {
		t.writeErr = fmt.Errorf("encode cooldown table: %v: %w", err, errs.ErrPersistence)
		return t.writeErr
	}
	if err := t.Store.Save(ctx, t.key(), data); err != nil {
		if !errors.Is(err, errs.ErrPersistence) {
			err = fmt.Errorf("%v: %w", err, errs.ErrPersistence)
		}
		t.writeErr = err
		t.Logger.Error("cooldown table write failed", zap.Error(err))
		return err
	}
	t.writeErr = nil
	return nil
}
