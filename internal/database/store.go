package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trade-compliance-go/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the gorm-backed persistence layer for trades, audits, benchmark bars
// and metrics snapshots.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an open gorm connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateTrade inserts a new trade. Times are stored in UTC so range queries compare consistently.
func (s *Store) CreateTrade(ctx context.Context, trade *models.Trade) error {
	if trade.ID == uuid.Nil {
		trade.ID = uuid.New()
	}
	trade.ExecutedAt = trade.ExecutedAt.UTC()
	if err := s.db.WithContext(ctx).Create(trade).Error; err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

// ListTrades returns a user's trades ordered by execution time ascending.
func (s *Store) ListTrades(ctx context.Context, userID uuid.UUID, filter models.TradeFilter) ([]models.Trade, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)

	if filter.Symbol != "" {
		query = query.Where("symbol = ?", filter.Symbol)
	}
	if filter.Start != nil {
		query = query.Where("executed_at >= ?", filter.Start.UTC())
	}
	if filter.End != nil {
		query = query.Where("executed_at <= ?", filter.End.UTC())
	}

	var trades []models.Trade
	if err := query.Order("executed_at asc").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades for user %s: %w", userID, err)
	}
	return trades, nil
}

// AppendAudit inserts a compliance audit. There is no update path.
func (s *Store) AppendAudit(ctx context.Context, audit *models.ComplianceAudit) error {
	if err := s.db.WithContext(ctx).Create(audit).Error; err != nil {
		return fmt.Errorf("failed to append audit %s for trade %s: %w", audit.CheckName, audit.TradeID, err)
	}
	return nil
}

// ListAudits returns up to limit audits for a user, newest first.
func (s *Store) ListAudits(ctx context.Context, userID uuid.UUID, limit int) ([]models.ComplianceAudit, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var audits []models.ComplianceAudit
	if err := query.Find(&audits).Error; err != nil {
		return nil, fmt.Errorf("failed to list audits for user %s: %w", userID, err)
	}
	return audits, nil
}

// ListTradeAudits returns every audit attributed to a trade.
func (s *Store) ListTradeAudits(ctx context.Context, tradeID uuid.UUID) ([]models.ComplianceAudit, error) {
	var audits []models.ComplianceAudit
	if err := s.db.WithContext(ctx).Where("trade_id = ?", tradeID).Find(&audits).Error; err != nil {
		return nil, fmt.Errorf("failed to list audits for trade %s: %w", tradeID, err)
	}
	return audits, nil
}

// ReadBars returns the cached bars of symbol with a date in [start, end], oldest first.
func (s *Store) ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]models.BenchmarkBar, error) {
	var bars []models.BenchmarkBar
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND date >= ? AND date <= ?", symbol, models.DateOf(start), models.DateOf(end)).
		Order("date asc").
		Find(&bars).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read bars for %s: %w", symbol, err)
	}
	return bars, nil
}

// UpsertBar writes a bar keyed on (symbol, date). A later write for the same key
// overwrites the OHLCV fields; last write wins.
func (s *Store) UpsertBar(ctx context.Context, bar *models.BenchmarkBar) error {
	bar.Date = models.DateOf(bar.Date)
	bar.UpdatedAt = time.Now().UTC()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "updated_at"}),
	}).Create(bar).Error
	if err != nil {
		return fmt.Errorf("failed to upsert bar %s@%s: %w", bar.Symbol, bar.Date.Format(time.DateOnly), err)
	}
	return nil
}

// SaveUserMetrics stores the latest metrics snapshot for a user, replacing any previous one.
func (s *Store) SaveUserMetrics(ctx context.Context, snapshot *models.UserMetricsSnapshot) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "computed_at"}),
	}).Create(snapshot).Error
	if err != nil {
		return fmt.Errorf("failed to save metrics for user %s: %w", snapshot.UserID, err)
	}
	return nil
}

// LoadUserMetrics returns the latest metrics snapshot for a user.
func (s *Store) LoadUserMetrics(ctx context.Context, userID uuid.UUID) (*models.UserMetricsSnapshot, error) {
	var snapshot models.UserMetricsSnapshot
	err := s.db.WithContext(ctx).First(&snapshot, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics for user %s: %w", userID, err)
	}
	return &snapshot, nil
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
