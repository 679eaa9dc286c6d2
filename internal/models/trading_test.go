package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPosition_ProfitRate(t *testing.T) {
	p := Position{AvgPrice: decimal.NewFromInt(100), CurrentPrice: decimal.NewFromInt(106)}
	assert.True(t, p.ProfitRate().Equal(decimal.RequireFromString("0.06")))

	p = Position{AvgPrice: decimal.Zero, CurrentPrice: decimal.NewFromInt(5)}
	assert.True(t, p.ProfitRate().IsZero())
}

func TestOrderState_Terminal(t *testing.T) {
	assert.False(t, OrderSubmitted.Terminal())
	for _, s := range []OrderState{OrderFilled, OrderCancelled, OrderTimedOut, OrderCancelFailed} {
		assert.True(t, s.Terminal(), s)
	}
}

func TestParseDirection(t *testing.T) {
	d, ok := ParseDirection("buy")
	assert.True(t, ok)
	assert.Equal(t, DirectionBuy, d)
	_, ok = ParseDirection("hold")
	assert.False(t, ok)
}
