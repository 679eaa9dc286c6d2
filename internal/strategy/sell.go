package strategy

import (
	"github.com/shopspring/decimal"

	"autostock/internal/models"
)

// SellReason returns take_profit or stop_loss when the position crosses a
// threshold, or "" to hold.
func SellReason(p models.Position, profitThreshold, stopLossThreshold decimal.Decimal) string {
	if p.SellableQty <= 0 || !p.AvgPrice.IsPositive() || !p.CurrentPrice.IsPositive() {
		return ""
	}
	rate := p.ProfitRate()
	switch {
	case rate.GreaterThanOrEqual(profitThreshold):
		return models.ReasonTakeProfit
	case rate.LessThanOrEqual(stopLossThreshold):
		return models.ReasonStopLoss
	}
	return ""
}
