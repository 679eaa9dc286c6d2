package strategy

import "github.com/shopspring/decimal"

// PositionSize is floor(cash / maxPositions / price) capped at maxShares.
// Zero means skip.
func PositionSize(cash decimal.Decimal, maxPositions int, price decimal.Decimal, maxShares int64) int64 {
	if !price.IsPositive() || !cash.IsPositive() || maxPositions <= 0 {
		return 0
	}
	per := cash.Div(decimal.NewFromInt(int64(maxPositions)))
	qty := per.Div(price).Floor().IntPart()
	if maxShares > 0 && qty > maxShares {
		qty = maxShares
	}
	if qty < 0 {
		return 0
	}
	return qty
}
