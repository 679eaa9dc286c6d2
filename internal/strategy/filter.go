package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"autostock/internal/broker"
	"autostock/internal/config"
	"autostock/internal/errs"
)

type Group struct {
	Key       string
	Name      string
	Symbols   []string
	WatchList []string
}

// FilterSpec gates buying on whether leading symbols are rising. Flat mode
// requires every symbol with data to rise. Grouped mode passes when any group
// has at least one rising symbol.
type FilterSpec struct {
	Symbols   []string
	WatchList []string
	Groups    []Group
}

func (f FilterSpec) Grouped() bool { return len(f.Groups) > 0 }

// NewFilterSpec converts configuration, rejecting malformed filters.
func NewFilterSpec(cfg config.StrategyConfig) (FilterSpec, error) {
	if len(cfg.Groups) > 0 {
		keys := make([]string, 0, len(cfg.Groups))
		for k := range cfg.Groups {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		spec := FilterSpec{}
		for _, k := range keys {
			g := cfg.Groups[k]
			if len(g.Symbols) == 0 || len(g.WatchList) == 0 {
				return FilterSpec{}, fmt.Errorf("group %s needs symbols and watch_list: %w", k, errs.ErrConfig)
			}
			name := g.Name
			if name == "" {
				name = k
			}
			spec.Groups = append(spec.Groups, Group{Key: k, Name: name, Symbols: g.Symbols, WatchList: g.WatchList})
		}
		return spec, nil
	}
	if len(cfg.FilterSymbols) == 0 || len(cfg.WatchList) == 0 {
		return FilterSpec{}, fmt.Errorf("filter_symbols and watch_list required: %w", errs.ErrConfig)
	}
	return FilterSpec{Symbols: cfg.FilterSymbols, WatchList: cfg.WatchList}, nil
}

type FilterResult struct {
	Passed        bool     `json:"passed"`
	PassingGroups []string `json:"passing_groups,omitempty"`
	// Eligible is the watch list allowed to rank this cycle.
	Eligible  []string `json:"eligible"`
	Abstained []string `json:"abstained,omitempty"`
}

type trend int

const (
	trendUnknown trend = iota
	trendRising
	trendNotRising
)

// symbolTrend returns an error only for auth failures; anything else makes
// the symbol abstain.
func symbolTrend(ctx context.Context, md broker.MarketData, symbol string, logger *zap.Logger) (trend, error) {
	cur, err := md.CurrentPrice(ctx, symbol)
	if err != nil {
		return trendUnknown, quoteMiss(logger, symbol, err)
	}
	prev, err := md.PreviousClose(ctx, symbol)
	if err != nil {
		return trendUnknown, quoteMiss(logger, symbol, err)
	}
	if cur.GreaterThan(prev) {
		return trendRising, nil
	}
	return trendNotRising, nil
}

// quoteMiss logs a failed lookup and passes auth errors back to abort the
// cycle.
func quoteMiss(logger *zap.Logger, symbol string, err error) error {
	if errors.Is(err, errs.ErrAuth) {
		return fmt.Errorf("quote %s: %w", symbol, err)
	}
	logSymbolMiss(logger, symbol, err)
	return nil
}

func logSymbolMiss(logger *zap.Logger, symbol string, err error) {
	if logger == nil {
		return
	}
	if errors.Is(err, errs.ErrDataUnavailable) {
		logger.Debug("quote unavailable", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	logger.Warn("quote lookup failed", zap.String("symbol", symbol), zap.Error(err))
}

// Evaluate checks the filter against live quotes. Unknown data never counts
// as rising. An auth failure stops evaluation and is returned.
func (f FilterSpec) Evaluate(ctx context.Context, md broker.MarketData, logger *zap.Logger) (FilterResult, error) {
	if f.Grouped() {
		return f.evaluateGroups(ctx, md, logger)
	}
	res := FilterResult{Passed: true}
	known := 0
	for _, sym := range f.Symbols {
		tr, err := symbolTrend(ctx, md, sym, logger)
		if err != nil {
			return FilterResult{}, err
		}
		switch tr {
		case trendUnknown:
			res.Abstained = append(res.Abstained, sym)
		case trendRising:
			known++
		case trendNotRising:
			known++
			res.Passed = false
		}
	}
	if known == 0 {
		res.Passed = false
	}
	if res.Passed {
		res.Eligible = dedupe(f.WatchList)
	}
	return res, nil
}

func (f FilterSpec) evaluateGroups(ctx context.Context, md broker.MarketData, logger *zap.Logger) (FilterResult, error) {
	res := FilterResult{}
	var watch []string
	for _, g := range f.Groups {
		passed := false
		for _, sym := range g.Symbols {
			tr, err := symbolTrend(ctx, md, sym, logger)
			if err != nil {
				return FilterResult{}, err
			}
			if tr == trendUnknown {
				res.Abstained = append(res.Abstained, sym)
				continue
			}
			if tr == trendRising {
				passed = true
				break
			}
		}
		if passed {
			res.PassingGroups = append(res.PassingGroups, g.Key)
			watch = append(watch, g.WatchList...)
		}
	}
	res.Passed = len(res.PassingGroups) > 0
	res.Eligible = dedupe(watch)
	return res, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
