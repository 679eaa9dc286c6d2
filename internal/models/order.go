package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderState string

const (
	OrderSubmitted    OrderState = "submitted"
	OrderFilled       OrderState = "filled"
	OrderCancelled    OrderState = "cancelled"
	OrderTimedOut     OrderState = "timed_out"
	OrderCancelFailed OrderState = "cancel_failed"
)

func (s OrderState) Terminal() bool {
	return s != OrderSubmitted && s != ""
}

type PendingOrder struct {
	OrderID     string          `json:"order_id"`
	Market      string          `json:"market"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Quantity    int64           `json:"quantity"`
	FilledQty   int64           `json:"filled_qty"`
	Price       decimal.Decimal `json:"price"`
	Reason      string          `json:"reason,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Status      OrderState      `json:"status"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

// OrderRecord journals terminal orders when a database is configured.
type OrderRecord struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	Market  string `gorm:"type:varchar(10);not null;uniqueIndex:idx_order_records_market_order,priority:1"`
	OrderID string `gorm:"type:varchar(100);not null;uniqueIndex:idx_order_records_market_order,priority:2"`
	Symbol  string `gorm:"type:varchar(20);not null;index"`
	Side    string `gorm:"type:varchar(10);not null"`
	Reason  string `gorm:"type:varchar(20)"`

	Quantity  int64           `gorm:"not null"`
	FilledQty int64           `gorm:"not null;default:0"`
	Price     decimal.Decimal `gorm:"type:numeric(20,4);not null"`

	Status      string     `gorm:"type:varchar(20);not null;index"`
	SubmittedAt time.Time  `gorm:"type:timestamptz;not null"`
	FinishedAt  *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (OrderRecord) TableName() string {
	return "order_records"
}
