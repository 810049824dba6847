package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Side is the direction of an executed trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide normalises a side string. ok is false for anything but buy or sell.
func ParseSide(s string) (side Side, ok bool) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	}
	return "", false
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Trade represents an executed trade record in the database.
// A trade is immutable once created.
type Trade struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID      `gorm:"type:uuid;not null;index:idx_trades_user_executed" json:"user_id"`
	Symbol     string         `gorm:"size:32;not null;index" json:"symbol"`
	Side       Side           `gorm:"size:8;not null" json:"side"`
	Qty        float64        `gorm:"not null" json:"qty"`
	Price      float64        `gorm:"not null" json:"price"`
	ExecutedAt time.Time      `gorm:"not null;index:idx_trades_user_executed" json:"executed_at"`
	ExternalID *string        `gorm:"size:128" json:"external_id,omitempty"`
	Raw        map[string]any `gorm:"serializer:json" json:"raw,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Value is the trade notional, qty * price.
func (t *Trade) Value() float64 {
	return t.Qty * t.Price
}

// TradeFilter narrows a trade history query. Zero fields do not filter.
// Start and End are both inclusive.
type TradeFilter struct {
	Symbol string
	Start  *time.Time
	End    *time.Time
}
