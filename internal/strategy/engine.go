// Package strategy turns one market snapshot into ordered buy and sell
// intents. It never places orders.
package strategy

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"autostock/internal/broker"
	"autostock/internal/config"
	"autostock/internal/models"
)

type Params struct {
	ProfitThreshold        decimal.Decimal
	StopLossThreshold      decimal.Decimal
	TopN                   int
	MaxPositions           int
	MaxShares              int64
	CheckPreviousSellPrice bool
	TickRule               string
}

func ParamsFromConfig(cfg config.StrategyConfig) Params {
	return Params{
		ProfitThreshold:        decimal.NewFromFloat(cfg.ProfitThreshold),
		StopLossThreshold:      decimal.NewFromFloat(cfg.StopLossThreshold),
		TopN:                   cfg.TopN,
		MaxPositions:           cfg.MaxPositions,
		MaxShares:              cfg.MaxShares,
		CheckPreviousSellPrice: cfg.CheckPreviousSellPrice,
		TickRule:               cfg.TickRounding,
	}
}

type CooldownChecker interface {
	IsBlocked(ctx context.Context, symbol string) bool
}

type FloorChecker interface {
	Get(symbol string) (decimal.Decimal, bool)
}

type BalanceSource interface {
	Balance(ctx context.Context) (models.Balance, error)
}

// Skip explains why a ranked candidate produced no intent.
type Skip struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

type BuyPlan struct {
	Filter     FilterResult            `json:"filter"`
	Candidates []models.WatchCandidate `json:"candidates"`
	Intents    []models.Intent         `json:"intents"`
	Skipped    []Skip                  `json:"skipped,omitempty"`
	Message    string                  `json:"message"`
}

type SellPlan struct {
	Intents []models.Intent `json:"intents"`
	Held    int             `json:"held"`
	Message string          `json:"message"`
}

type Engine struct {
	Market     string
	Filter     FilterSpec
	Params     Params
	MarketData broker.MarketData
	Account    BalanceSource
	Cooldown   CooldownChecker
	Floors     FloorChecker
	Logger     *zap.Logger
	Stats      *Stats
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Engine) stats() *Stats {
	if e.Stats == nil {
		e.Stats = &Stats{}
	}
	return e.Stats
}

// PlanBuys evaluates the filter, ranks eligible symbols by decline rate and
// sizes the top candidates. A balance failure aborts with an error.
func (e *Engine) PlanBuys(ctx context.Context) (BuyPlan, error) {
	st := e.stats()
	st.buyAttempts.Add(1)
	log := e.logger()

	filter, err := e.Filter.Evaluate(ctx, e.MarketData, log)
	if err != nil {
		return BuyPlan{Message: "filter aborted"}, fmt.Errorf("filter: %w", err)
	}
	plan := BuyPlan{Filter: filter}
	if !plan.Filter.Passed {
		st.filterBlocks.Add(1)
		plan.Message = "filter condition not met"
		log.Info("buy skipped: filter condition not met", zap.Strings("abstained", plan.Filter.Abstained))
		return plan, nil
	}

	bal, err := e.Account.Balance(ctx)
	if err != nil {
		return plan, fmt.Errorf("balance: %w", err)
	}
	cash := bal.Cash
	if !cash.IsPositive() {
		plan.Message = "no available cash"
		return plan, nil
	}

	cands, err := Candidates(ctx, e.MarketData, plan.Filter.Eligible, log)
	if err != nil {
		return plan, fmt.Errorf("rank: %w", err)
	}
	ranked := TopDeclining(cands, e.Params.TopN)
	plan.Candidates = ranked
	if len(ranked) == 0 {
		plan.Message = "no rankable candidates"
		return plan, nil
	}

	for _, c := range ranked {
		if ok, reason := e.BuyEligible(ctx, c.Symbol, c.CurrentPrice); !ok {
			plan.Skipped = append(plan.Skipped, Skip{Symbol: c.Symbol, Reason: reason})
			continue
		}
		price := RoundPrice(c.CurrentPrice, e.Params.TickRule)
		qty := PositionSize(cash, e.Params.MaxPositions, price, e.Params.MaxShares)
		if qty <= 0 {
			plan.Skipped = append(plan.Skipped, Skip{Symbol: c.Symbol, Reason: "size_zero"})
			continue
		}
		plan.Intents = append(plan.Intents, models.Intent{
			Symbol:   c.Symbol,
			Side:     models.SideBuy,
			Quantity: qty,
			Price:    price,
			Reason:   models.ReasonDeclineRank,
		})
		cash = cash.Sub(price.Mul(decimal.NewFromInt(qty)))
	}
	plan.Message = fmt.Sprintf("%d buy intents from %d candidates", len(plan.Intents), len(ranked))
	return plan, nil
}

// BuyEligible applies the cooldown veto and the anti-repurchase floor.
func (e *Engine) BuyEligible(ctx context.Context, symbol string, price decimal.Decimal) (bool, string) {
	if e.Cooldown != nil && e.Cooldown.IsBlocked(ctx, symbol) {
		return false, "cooldown"
	}
	if e.Params.CheckPreviousSellPrice && e.Floors != nil {
		if floor, ok := e.Floors.Get(symbol); ok && price.GreaterThan(floor) {
			return false, "above_last_sell"
		}
	}
	return true, ""
}

// PlanSells returns take-profit and stop-loss intents, best profit first.
func (e *Engine) PlanSells(ctx context.Context) (SellPlan, error) {
	st := e.stats()
	st.sellAttempts.Add(1)
	log := e.logger()

	bal, err := e.Account.Balance(ctx)
	if err != nil {
		return SellPlan{}, fmt.Errorf("balance: %w", err)
	}
	plan := SellPlan{Held: len(bal.Positions)}
	for _, p := range bal.Positions {
		if !p.CurrentPrice.IsPositive() && e.MarketData != nil {
			cur, err := e.MarketData.CurrentPrice(ctx, p.Symbol)
			if err != nil {
				if err := quoteMiss(log, p.Symbol, err); err != nil {
					return SellPlan{Held: plan.Held}, err
				}
				continue
			}
			p.CurrentPrice = cur
		}
		reason := SellReason(p, e.Params.ProfitThreshold, e.Params.StopLossThreshold)
		if reason == "" {
			continue
		}
		plan.Intents = append(plan.Intents, models.Intent{
			Symbol:     p.Symbol,
			Side:       models.SideSell,
			Quantity:   p.SellableQty,
			Price:      RoundPrice(p.CurrentPrice, e.Params.TickRule),
			Reason:     reason,
			ProfitRate: p.ProfitRate(),
			AvgPrice:   p.AvgPrice,
		})
	}
	sort.SliceStable(plan.Intents, func(i, j int) bool {
		return plan.Intents[i].ProfitRate.GreaterThan(plan.Intents[j].ProfitRate)
	})
	plan.Message = fmt.Sprintf("%d sell intents from %d positions", len(plan.Intents), plan.Held)
	return plan, nil
}
