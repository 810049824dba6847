package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the outcome of a single compliance rule.
type Status string

const (
	StatusPass Status = "pass"
	StatusFlag Status = "flag"
	// StatusFail is terminal severity; every other non-pass outcome is advisory.
	StatusFail Status = "fail"
)

// Verdict is produced by exactly one rule run against one trade.
// Reason is empty only when Status is pass.
type Verdict struct {
	CheckName string         `json:"check_name"`
	Status    Status         `json:"status"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata"`
}

// ComplianceAudit is the append-only record of one verdict for one trade.
type ComplianceAudit struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	TradeID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"trade_id"`
	CheckName string         `gorm:"size:100;not null;index" json:"check_name"`
	Status    Status         `gorm:"size:8;not null;index" json:"status"`
	Reason    *string        `gorm:"type:text" json:"reason"`
	Metadata  map[string]any `gorm:"serializer:json" json:"metadata"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
}

// TableName returns the table name for GORM
func (ComplianceAudit) TableName() string {
	return "compliance_audit"
}

// NewComplianceAudit builds the audit row for a verdict attributed to trade.
func NewComplianceAudit(trade *Trade, v Verdict, now time.Time) ComplianceAudit {
	var reason *string
	if v.Reason != "" {
		r := v.Reason
		reason = &r
	}
	metadata := v.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return ComplianceAudit{
		ID:        uuid.New(),
		UserID:    trade.UserID,
		TradeID:   trade.ID,
		CheckName: v.CheckName,
		Status:    v.Status,
		Reason:    reason,
		Metadata:  metadata,
		CreatedAt: now.UTC(),
	}
}

// CustomRuleSpec is an externally configured JSON rule.
type CustomRuleSpec struct {
	Name      string   `json:"name"`
	CheckType string   `json:"check_type"`
	Threshold float64  `json:"threshold"`
	Symbols   []string `json:"symbols"` // empty applies to every symbol
	Message   string   `json:"message"`
}
