package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Credential struct {
	Market    string    `json:"market"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CooldownEntry struct {
	Symbol        string          `json:"symbol"`
	TriggeredAt   time.Time       `json:"stop_loss_date"`
	CooldownUntil time.Time       `json:"cooldown_until"`
	LossRate      decimal.Decimal `json:"loss_rate"`
	AvgPrice      decimal.Decimal `json:"avg_buy_price"`
	TriggerPrice  decimal.Decimal `json:"stop_loss_price"`
	Timezone      string          `json:"timezone"`
}

// SellFloor is the last realized take-profit price of a symbol.
type SellFloor struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// StateBlob backs storage.GormStore. Backup holds the previous generation.
type StateBlob struct {
	Key       string         `gorm:"type:varchar(200);primaryKey"`
	Data      datatypes.JSON `gorm:"type:jsonb"`
	Backup    datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt time.Time      `gorm:"type:timestamptz;autoUpdateTime"`
}

func (StateBlob) TableName() string {
	return "state_blobs"
}
