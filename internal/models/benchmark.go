package models

import (
	"time"

	"github.com/google/uuid"
)

// BenchmarkBar is one daily bar of a benchmark instrument, keyed by (symbol, date).
type BenchmarkBar struct {
	Symbol    string    `gorm:"primaryKey;size:16" json:"symbol"`
	Date      time.Time `gorm:"primaryKey" json:"date"`
	Open      *float64  `json:"open,omitempty"`
	High      *float64  `json:"high,omitempty"`
	Low       *float64  `json:"low,omitempty"`
	Close     float64   `gorm:"not null" json:"close"`
	Volume    *float64  `json:"volume,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM
func (BenchmarkBar) TableName() string {
	return "benchmarks"
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// UserMetricsSnapshot is the most recent recomputation of a user's metrics.
type UserMetricsSnapshot struct {
	UserID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	Payload    []byte    `gorm:"not null" json:"payload"` // JSON document
	ComputedAt time.Time `gorm:"not null" json:"computed_at"`
}
