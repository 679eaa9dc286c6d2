package strategy

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autostock/internal/errs"
	"autostock/internal/models"
)

func krEngine(md fakeMarket, bal fakeBalance) *Engine {
	return &Engine{
		Market:     "kr",
		Filter:     FilterSpec{Symbols: []string{"IDX"}, WatchList: []string{"A", "B", "C", "D"}},
		MarketData: md,
		Account:    bal,
		Params: Params{
			ProfitThreshold:        d("0.05"),
			StopLossThreshold:      d("-0.10"),
			TopN:                   3,
			MaxPositions:           3,
			MaxShares:              1000,
			CheckPreviousSellPrice: true,
			TickRule:               TickKRX,
		},
	}
}

func TestPlanBuys_FilterBlocks(t *testing.T) {
	md := fakeMarket{"IDX": {"99", "100"}, "A": {"90", "100"}}
	e := krEngine(md, fakeBalance{bal: models.Balance{Cash: d("9000")}})

	plan, err := e.PlanBuys(context.Background())
	require.NoError(t, err)
	assert.False(t, plan.Filter.Passed)
	assert.Empty(t, plan.Intents)
	assert.Equal(t, int64(1), e.Stats.Snapshot().FilterBlocks)
}

func TestPlanBuys_BalanceErrorAborts(t *testing.T) {
	md := fakeMarket{"IDX": {"101", "100"}, "A": {"90", "100"}}
	e := krEngine(md, fakeBalance{err: errBalance})

	_, err := e.PlanBuys(context.Background())
	assert.ErrorIs(t, err, errBalance)
}

func TestPlanBuys_RanksSkipsAndDecrementsCash(t *testing.T) {
	md := fakeMarket{
		"IDX": {"101", "100"},
		"A":   {"95", "100"},   // 5%
		"B":   {"102", "100"},  // -2%
		"C":   {"900", "1000"}, // 10%
		"D":   {"1960", "2000"},
	}
	e := krEngine(md, fakeBalance{bal: models.Balance{Cash: d("9000")}})
	e.Cooldown = blockSet{"D": true}

	plan, err := e.PlanBuys(context.Background())
	require.NoError(t, err)
	require.True(t, plan.Filter.Passed)
	assert.Equal(t, []string{"C", "A", "D"}, symbols(plan.Candidates))
	assert.Equal(t, []Skip{{Symbol: "D", Reason: "cooldown"}}, plan.Skipped)

	require.Len(t, plan.Intents, 2)
	// C: 9000/3/900 = 3 shares, leaves 6300
	assert.Equal(t, "C", plan.Intents[0].Symbol)
	assert.Equal(t, int64(3), plan.Intents[0].Quantity)
	// A: 6300/3/95 = 22.1
	assert.Equal(t, "A", plan.Intents[1].Symbol)
	assert.Equal(t, int64(22), plan.Intents[1].Quantity)
	for _, in := range plan.Intents {
		assert.Equal(t, models.SideBuy, in.Side)
		assert.Equal(t, models.ReasonDeclineRank, in.Reason)
	}
}

func TestPlanBuys_AboveLastSellSkipped(t *testing.T) {
	md := fakeMarket{"IDX": {"101", "100"}, "A": {"95", "100"}}
	e := krEngine(md, fakeBalance{bal: models.Balance{Cash: d("9000")}})
	e.Floors = floorSet{"A": d("90")}

	plan, err := e.PlanBuys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plan.Intents)
	assert.Equal(t, []Skip{{Symbol: "A", Reason: "above_last_sell"}}, plan.Skipped)

	e.Params.CheckPreviousSellPrice = false
	plan, err = e.PlanBuys(context.Background())
	require.NoError(t, err)
	assert.Len(t, plan.Intents, 1)
}

func TestPlanBuys_NoCash(t *testing.T) {
	md := fakeMarket{"IDX": {"101", "100"}, "A": {"95", "100"}}
	e := krEngine(md, fakeBalance{bal: models.Balance{Cash: decimal.Zero}})
	plan, err := e.PlanBuys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plan.Intents)
	assert.Equal(t, "no available cash", plan.Message)
}

func TestPlanSells_OrderedByProfit(t *testing.T) {
	bal := models.Balance{Positions: []models.Position{
		{Symbol: "LOSS", Quantity: 5, SellableQty: 5, AvgPrice: d("1000"), CurrentPrice: d("850")},
		{Symbol: "HOLD", Quantity: 5, SellableQty: 5, AvgPrice: d("1000"), CurrentPrice: d("1010")},
		{Symbol: "WIN", Quantity: 5, SellableQty: 4, AvgPrice: d("1000"), CurrentPrice: d("1200")},
		{Symbol: "SMALLWIN", Quantity: 2, SellableQty: 2, AvgPrice: d("1000")},
		{Symbol: "LOCKED", Quantity: 3, SellableQty: 0, AvgPrice: d("1000"), CurrentPrice: d("2000")},
	}}
	md := fakeMarket{"SMALLWIN": {"1060", "1000"}}
	e := krEngine(md, fakeBalance{bal: bal})

	plan, err := e.PlanSells(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, plan.Held)
	require.Len(t, plan.Intents, 3)
	assert.Equal(t, "WIN", plan.Intents[0].Symbol)
	assert.Equal(t, int64(4), plan.Intents[0].Quantity)
	assert.Equal(t, models.ReasonTakeProfit, plan.Intents[0].Reason)
	assert.Equal(t, "SMALLWIN", plan.Intents[1].Symbol)
	assert.Equal(t, "LOSS", plan.Intents[2].Symbol)
	assert.Equal(t, models.ReasonStopLoss, plan.Intents[2].Reason)
	assert.True(t, plan.Intents[2].AvgPrice.Equal(d("1000")))
}

func TestPlanSells_BalanceError(t *testing.T) {
	e := krEngine(fakeMarket{}, fakeBalance{err: errBalance})
	_, err := e.PlanSells(context.Background())
	assert.ErrorIs(t, err, errBalance)
}

func TestPlanBuys_AuthFailureAbortsFilter(t *testing.T) {
	md := fakeMarket{"IDX": {revoked, "100"}, "A": {"90", "100"}}
	e := krEngine(md, fakeBalance{bal: models.Balance{Cash: d("9000")}})

	plan, err := e.PlanBuys(context.Background())
	assert.ErrorIs(t, err, errs.ErrAuth)
	assert.Empty(t, plan.Intents)
	assert.Zero(t, e.Stats.Snapshot().FilterBlocks)
}

func TestPlanBuys_AuthFailureAbortsRanking(t *testing.T) {
	md := fakeMarket{"IDX": {"101", "100"}, "A": {"90", "100"}, "B": {revoked, "100"}}
	e := krEngine(md, fakeBalance{bal: models.Balance{Cash: d("9000")}})

	plan, err := e.PlanBuys(context.Background())
	assert.ErrorIs(t, err, errs.ErrAuth)
	assert.Empty(t, plan.Intents)
}

func TestPlanSells_AuthFailureAborts(t *testing.T) {
	bal := models.Balance{Positions: []models.Position{
		{Symbol: "WIN", Quantity: 5, SellableQty: 5, AvgPrice: d("1000"), CurrentPrice: d("1200")},
		{Symbol: "NOPRICE", Quantity: 2, SellableQty: 2, AvgPrice: d("1000")},
	}}
	e := krEngine(fakeMarket{"NOPRICE": {revoked, ""}}, fakeBalance{bal: bal})

	plan, err := e.PlanSells(context.Background())
	assert.ErrorIs(t, err, errs.ErrAuth)
	assert.Empty(t, plan.Intents)
}
