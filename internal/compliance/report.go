package compliance

import (
	"context"
	"fmt"
	"time"

	"trade-compliance-go/internal/models"

	"github.com/google/uuid"
)

const summaryAuditLimit = 1000

// AuditReader lists a user's audits, newest first.
type AuditReader interface {
	ListAudits(ctx context.Context, userID uuid.UUID, limit int) ([]models.ComplianceAudit, error)
}

// StatusCounts tallies audits by status.
type StatusCounts struct {
	TotalChecks int `json:"total_checks"`
	Passed      int `json:"passed"`
	Flagged     int `json:"flagged"`
	Failed      int `json:"failed"`
}

func (c *StatusCounts) add(s models.Status) {
	c.TotalChecks++
	switch s {
	case models.StatusPass:
		c.Passed++
	case models.StatusFlag:
		c.Flagged++
	case models.StatusFail:
		c.Failed++
	}
}

// History is a user's recent audit trail.
type History struct {
	UserID  uuid.UUID                `json:"user_id"`
	Summary StatusCounts             `json:"summary"`
	Audits  []models.ComplianceAudit `json:"audits"`
}

// GetHistory returns up to limit of the user's latest audits with status totals.
func GetHistory(ctx context.Context, reader AuditReader, userID uuid.UUID, limit int) (*History, error) {
	audits, err := reader.ListAudits(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load compliance history: %w", err)
	}

	h := &History{UserID: userID, Audits: audits}
	for _, a := range audits {
		h.Summary.add(a.Status)
	}
	return h, nil
}

// CheckSummary aggregates the audits of one check name.
type CheckSummary struct {
	StatusCounts
	LastCheck time.Time `json:"last_check"`
}

// Summary groups a user's audits by check name.
type Summary struct {
	UserID      uuid.UUID                `json:"user_id"`
	Checks      map[string]*CheckSummary `json:"compliance_checks"`
	TotalAudits int                      `json:"total_audits"`
}

// Summarize groups the user's latest audits by check name.
func Summarize(ctx context.Context, reader AuditReader, userID uuid.UUID) (*Summary, error) {
	audits, err := reader.ListAudits(ctx, userID, summaryAuditLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load compliance audits: %w", err)
	}

	s := &Summary{UserID: userID, Checks: make(map[string]*CheckSummary), TotalAudits: len(audits)}
	for _, a := range audits {
		cs, ok := s.Checks[a.CheckName]
		if !ok {
			cs = &CheckSummary{}
			s.Checks[a.CheckName] = cs
		}
		cs.add(a.Status)
		if a.CreatedAt.After(cs.LastCheck) {
			cs.LastCheck = a.CreatedAt
		}
	}
	return s, nil
}
