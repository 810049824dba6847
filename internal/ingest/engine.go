package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"trade-compliance-go/internal/analytics"
	"trade-compliance-go/internal/benchmark"
	"trade-compliance-go/internal/metrics"
	"trade-compliance-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidTrade is returned for a trade that fails validation. Nothing is persisted.
var ErrInvalidTrade = errors.New("invalid trade")

const (
	taskCompliance = "compliance"
	taskRecompute  = "recompute"
)

// TradeWriter persists accepted trades.
type TradeWriter interface {
	CreateTrade(ctx context.Context, trade *models.Trade) error
}

// Evaluator runs the compliance rules for a stored trade.
type Evaluator interface {
	Evaluate(ctx context.Context, trade *models.Trade) ([]models.ComplianceAudit, error)
}

// Recomputer refreshes a user's cached metrics.
type Recomputer interface {
	Recompute(ctx context.Context, userID uuid.UUID) (*analytics.MetricsSnapshot, error)
}

// Refresher warms the benchmark cache.
type Refresher interface {
	Refresh(ctx context.Context) benchmark.RefreshReport
}

// Request is an executed trade as reported by a broker or client.
type Request struct {
	UserID     uuid.UUID      `json:"user_id"`
	Symbol     string         `json:"symbol"`
	Side       string         `json:"side"`
	Qty        float64        `json:"qty"`
	Price      float64        `json:"price"`
	ExecutedAt time.Time      `json:"executed_at"`
	ExternalID string         `json:"external_id,omitempty"`
	Raw        map[string]any `json:"raw,omitempty"`
}

// Status describes the running engine.
type Status struct {
	ID          string                   `json:"uuid"`
	StartTime   time.Time                `json:"start_time"`
	Uptime      string                   `json:"uptime"`
	InFlight    int64                    `json:"in_flight"`
	Ingested    int64                    `json:"ingested"`
	LastRefresh *benchmark.RefreshReport `json:"last_refresh,omitempty"`
}

// Engine accepts trades and schedules the work that follows them.
type Engine struct {
	ID        string
	StartTime time.Time

	logger          *zap.Logger
	trades          TradeWriter
	compliance      Evaluator
	analytics       Recomputer
	refresher       Refresher
	refreshInterval time.Duration
	now             func() time.Time

	wg          sync.WaitGroup
	inFlight    atomic.Int64
	ingested    atomic.Int64
	refreshCh   chan struct{}
	lastRefresh atomic.Pointer[benchmark.RefreshReport]
}

// NewEngine creates an ingestion engine. refresher may be nil to disable the refresh loop.
func NewEngine(logger *zap.Logger, trades TradeWriter, compliance Evaluator, recomputer Recomputer, refresher Refresher, refreshInterval time.Duration) *Engine {
	return &Engine{
		ID:              uuid.NewString(),
		StartTime:       time.Now(),
		logger:          logger.Named("ingest"),
		trades:          trades,
		compliance:      compliance,
		analytics:       recomputer,
		refresher:       refresher,
		refreshInterval: refreshInterval,
		now:             time.Now,
		refreshCh:       make(chan struct{}, 1),
	}
}

// Ingest validates and stores req, then starts compliance evaluation and metrics recomputation
// in the background. It returns once the trade is stored; the background work outlives ctx.
func (e *Engine) Ingest(ctx context.Context, req Request) (*models.Trade, error) {
	trade, err := e.validate(req)
	if err != nil {
		return nil, err
	}
	if err := e.trades.CreateTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("failed to store trade: %w", err)
	}
	metrics.RecordTradeIngested()
	e.ingested.Add(1)

	e.logger.Info("Trade ingested",
		zap.String("trade_id", trade.ID.String()),
		zap.String("user_id", trade.UserID.String()),
		zap.String("symbol", trade.Symbol),
		zap.String("side", string(trade.Side)),
		zap.Float64("qty", trade.Qty),
		zap.Float64("price", trade.Price),
	)

	bg := context.WithoutCancel(ctx)
	stored := *trade
	e.spawn(bg, taskCompliance, trade, func(ctx context.Context) error {
		_, err := e.compliance.Evaluate(ctx, &stored)
		return err
	})
	e.spawn(bg, taskRecompute, trade, func(ctx context.Context) error {
		_, err := e.analytics.Recompute(ctx, stored.UserID)
		return err
	})
	return trade, nil
}

func (e *Engine) validate(req Request) (*models.Trade, error) {
	if req.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidTrade)
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidTrade)
	}
	side, ok := models.ParseSide(req.Side)
	if !ok {
		return nil, fmt.Errorf("%w: side must be buy or sell, got %q", ErrInvalidTrade, req.Side)
	}
	if !positive(req.Qty) {
		return nil, fmt.Errorf("%w: qty must be a positive finite number", ErrInvalidTrade)
	}
	if !positive(req.Price) {
		return nil, fmt.Errorf("%w: price must be a positive finite number", ErrInvalidTrade)
	}

	executedAt := req.ExecutedAt
	if executedAt.IsZero() {
		executedAt = e.now()
	}
	trade := &models.Trade{
		ID:         uuid.New(),
		UserID:     req.UserID,
		Symbol:     symbol,
		Side:       side,
		Qty:        req.Qty,
		Price:      req.Price,
		ExecutedAt: executedAt.UTC(),
		Raw:        req.Raw,
	}
	if req.ExternalID != "" {
		id := req.ExternalID
		trade.ExternalID = &id
	}
	return trade, nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// spawn runs fn on its own goroutine. A failure is logged and counted; it never reaches the caller.
func (e *Engine) spawn(ctx context.Context, task string, trade *models.Trade, fn func(context.Context) error) {
	e.wg.Add(1)
	e.inFlight.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.inFlight.Add(-1)

		l := e.logger.With(zap.String("task", task),
			zap.String("trade_id", trade.ID.String()), zap.String("user_id", trade.UserID.String()))
		defer func() {
			if r := recover(); r != nil {
				l.Error("Background task panicked", zap.Any("panic", r))
				metrics.RecordBackgroundFailure(task)
			}
		}()

		if err := fn(ctx); err != nil {
			l.Error("Background task failed", zap.Error(err))
			metrics.RecordBackgroundFailure(task)
		}
	}()
}

// Wait blocks until every background task started so far has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Run refreshes the benchmark cache once, then on every interval tick and on RefreshNow,
// until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	if e.refresher == nil {
		e.logger.Info("Benchmark refresh disabled")
		<-ctx.Done()
		return
	}

	interval := e.refreshInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting benchmark refresh loop", zap.Duration("interval", interval))
	e.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping ingestion engine...")
			return
		case <-ticker.C:
			e.refresh(ctx)
		case <-e.refreshCh:
			e.refresh(ctx)
		}
	}
}

// RefreshNow asks the running loop for an extra refresh. It reports false if one is already pending.
func (e *Engine) RefreshNow() bool {
	select {
	case e.refreshCh <- struct{}{}:
		return true
	default:
		return false
	}
}

func (e *Engine) refresh(ctx context.Context) {
	report := e.refresher.Refresh(ctx)
	e.lastRefresh.Store(&report)
}

// LastRefresh returns the report of the latest completed refresh, or nil.
func (e *Engine) LastRefresh() *benchmark.RefreshReport {
	return e.lastRefresh.Load()
}

// Status reports the engine's identity and workload.
func (e *Engine) Status() any {
	return Status{
		ID:          e.ID,
		StartTime:   e.StartTime,
		Uptime:      time.Since(e.StartTime).Round(time.Second).String(),
		InFlight:    e.inFlight.Load(),
		Ingested:    e.ingested.Load(),
		LastRefresh: e.LastRefresh(),
	}
}
