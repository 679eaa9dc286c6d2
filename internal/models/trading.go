package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Direction selects which half of the strategy a cycle runs.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

func ParseDirection(s string) (Direction, bool) {
	switch Direction(s) {
	case DirectionBuy, DirectionSell:
		return Direction(s), true
	}
	return "", false
}

// Intent reasons.
const (
	ReasonDeclineRank = "decline_rank"
	ReasonTakeProfit  = "take_profit"
	ReasonStopLoss    = "stop_loss"
)

type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     int64           `json:"quantity"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	SellableQty  int64           `json:"sellable_qty"`
}

// ProfitRate is (current - avg) / avg. Zero when avg is not positive.
func (p Position) ProfitRate() decimal.Decimal {
	if !p.AvgPrice.IsPositive() {
		return decimal.Zero
	}
	return p.CurrentPrice.Sub(p.AvgPrice).Div(p.AvgPrice)
}

type Balance struct {
	Cash      decimal.Decimal `json:"cash"`
	Positions []Position      `json:"positions"`
}

type WatchCandidate struct {
	Symbol        string          `json:"symbol"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	DeclineRate   decimal.Decimal `json:"decline_rate"`
}

type Intent struct {
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Reason     string          `json:"reason"`
	ProfitRate decimal.Decimal `json:"profit_rate,omitempty"`
	AvgPrice   decimal.Decimal `json:"avg_price,omitempty"`

	// Filled by execution.
	OrderID string `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type CycleResult struct {
	CycleID   string    `json:"cycle_id"`
	Market    string    `json:"market"`
	Direction Direction `json:"direction"`
	Executed  bool      `json:"executed"`
	Intents   []Intent  `json:"intents"`
	Message   string    `json:"message"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}
