package strategy

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"autostock/internal/broker"
	"autostock/internal/models"
)

// Candidates computes decline rates for symbols with usable quotes. Symbols
// that rose get negative rates but stay in the list. Auth failures abort.
func Candidates(ctx context.Context, md broker.MarketData, symbols []string, logger *zap.Logger) ([]models.WatchCandidate, error) {
	out := make([]models.WatchCandidate, 0, len(symbols))
	for _, sym := range symbols {
		cur, err := md.CurrentPrice(ctx, sym)
		if err != nil {
			if err := quoteMiss(logger, sym, err); err != nil {
				return nil, err
			}
			continue
		}
		prev, err := md.PreviousClose(ctx, sym)
		if err != nil {
			if err := quoteMiss(logger, sym, err); err != nil {
				return nil, err
			}
			continue
		}
		if !prev.IsPositive() {
			continue
		}
		out = append(out, models.WatchCandidate{
			Symbol:        sym,
			CurrentPrice:  cur,
			PreviousClose: prev,
			DeclineRate:   DeclineRate(cur, prev),
		})
	}
	return out, nil
}

func DeclineRate(current, previousClose decimal.Decimal) decimal.Decimal {
	if !previousClose.IsPositive() {
		return decimal.Zero
	}
	return previousClose.Sub(current).Div(previousClose)
}

// TopDeclining sorts by decline rate descending and keeps the first n.
// Ties keep symbol order.
func TopDeclining(cands []models.WatchCandidate, n int) []models.WatchCandidate {
	sorted := make([]models.WatchCandidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		c := sorted[i].DeclineRate.Cmp(sorted[j].DeclineRate)
		if c != 0 {
			return c > 0
		}
		return sorted[i].Symbol < sorted[j].Symbol
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
