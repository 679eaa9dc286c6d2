package strategy

import "github.com/shopspring/decimal"

// Tick rounding rules.
const (
	TickKRX  = "krx"
	TickCent = "cent"
	TickNone = "none"
)

var krxTicks = []struct {
	below int64
	tick  int64
}{
	{2000, 1},
	{5000, 5},
	{20000, 10},
	{50000, 50},
	{200000, 100},
	{500000, 500},
}

// KRXTick returns the exchange tick size for a KRW price.
func KRXTick(price decimal.Decimal) decimal.Decimal {
	for _, t := range krxTicks {
		if price.LessThan(decimal.NewFromInt(t.below)) {
			return decimal.NewFromInt(t.tick)
		}
	}
	return decimal.NewFromInt(1000)
}

// RoundPrice rounds a limit price to the nearest valid increment.
func RoundPrice(price decimal.Decimal, rule string) decimal.Decimal {
	switch rule {
	case TickKRX:
		tick := KRXTick(price)
		return price.Div(tick).Round(0).Mul(tick)
	case TickCent:
		return price.Round(2)
	default:
		return price
	}
}
