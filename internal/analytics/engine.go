package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"trade-compliance-go/internal/benchmark"
	"trade-compliance-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var errNoSnapshotStore = errors.New("no snapshot store configured")

// NoTrades marks a comparative result computed over an empty trade window.
const NoTrades = "no_trades"

const (
	StatusOutperformed   = "outperformed"
	StatusUnderperformed = "underperformed"
)

// TradeReader reads a user's trade history, ordered by execution time ascending.
type TradeReader interface {
	ListTrades(ctx context.Context, userID uuid.UUID, filter models.TradeFilter) ([]models.Trade, error)
}

// BenchmarkResolver returns a benchmark's return over a window, or nil when none is available.
type BenchmarkResolver interface {
	GetReturn(ctx context.Context, symbol string, start, end time.Time) *benchmark.Result
}

// SnapshotStore keeps the latest recomputed metrics of each user.
type SnapshotStore interface {
	SaveUserMetrics(ctx context.Context, snapshot *models.UserMetricsSnapshot) error
	LoadUserMetrics(ctx context.Context, userID uuid.UUID) (*models.UserMetricsSnapshot, error)
}

// Timeframe is the window a comparison covers, in whole calendar dates.
type Timeframe struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Days  int       `json:"days"`
}

// ComparativeResult is a user's realized performance next to a benchmark over the same window.
// BenchmarkReturnPct and DifferencePct are nil when no benchmark data could be resolved.
type ComparativeResult struct {
	UserID             uuid.UUID          `json:"user_id"`
	Error              string             `json:"error,omitempty"`
	UserPnL            float64            `json:"user_pnl"`
	UserReturnPct      float64            `json:"user_return_pct"`
	Invested           float64            `json:"invested"`
	BenchmarkSymbol    string             `json:"benchmark_symbol"`
	BenchmarkReturnPct *float64           `json:"benchmark_return_pct"`
	DifferencePct      *float64           `json:"difference_pct"`
	Status             string             `json:"status,omitempty"`
	Benchmark          *benchmark.Result  `json:"benchmark,omitempty"`
	PerSymbolPnL       map[string]float64 `json:"per_symbol_pnl,omitempty"`
	Timeframe          *Timeframe         `json:"timeframe,omitempty"`
}

// HasTrades reports whether the result was computed over at least one trade.
func (r *ComparativeResult) HasTrades() bool {
	return r.Error != NoTrades
}

// MetricsSnapshot is what Recompute stores for a user.
type MetricsSnapshot struct {
	UserID     uuid.UUID          `json:"user_id"`
	Metrics    *UserMetrics       `json:"metrics"`
	Comparison *ComparativeResult `json:"comparison"`
	ComputedAt time.Time          `json:"computed_at"`
}

// Engine computes realized performance and reconciles it against benchmarks.
type Engine struct {
	logger           *zap.Logger
	trades           TradeReader
	benchmarks       BenchmarkResolver
	snapshots        SnapshotStore
	defaultBenchmark string
	now              func() time.Time
}

// NewEngine creates an analytics engine. snapshots may be nil, in which case Recompute does not persist.
func NewEngine(logger *zap.Logger, trades TradeReader, benchmarks BenchmarkResolver, snapshots SnapshotStore, defaultBenchmark string) *Engine {
	if defaultBenchmark == "" {
		defaultBenchmark = "SPY"
	}
	return &Engine{
		logger:           logger.Named("analytics"),
		trades:           trades,
		benchmarks:       benchmarks,
		snapshots:        snapshots,
		defaultBenchmark: strings.ToUpper(defaultBenchmark),
		now:              time.Now,
	}
}

// ComputeUserVsBenchmark compares a user's trades in [start, end] with benchmarkSymbol over the same
// dates. Omitted bounds are taken from the user's own trades. An empty window yields a result with
// Error set to NoTrades and no benchmark lookup.
func (e *Engine) ComputeUserVsBenchmark(ctx context.Context, userID uuid.UUID, benchmarkSymbol string, start, end *time.Time) (*ComparativeResult, error) {
	symbol := strings.ToUpper(strings.TrimSpace(benchmarkSymbol))
	if symbol == "" {
		symbol = e.defaultBenchmark
	}

	var filter models.TradeFilter
	if start != nil {
		s := models.DateOf(*start)
		filter.Start = &s
	}
	if end != nil {
		en := endOfDay(models.DateOf(*end))
		filter.End = &en
	}

	trades, err := e.trades.ListTrades(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades for user %s: %w", userID, err)
	}
	if len(trades) == 0 {
		return &ComparativeResult{UserID: userID, Error: NoTrades, BenchmarkSymbol: symbol}, nil
	}

	agg := aggregate(trades)
	tf := timeframe(agg, start, end)
	userReturn := returnPct(agg.pnl, agg.buy)

	res := &ComparativeResult{
		UserID:          userID,
		UserPnL:         money(agg.pnl),
		UserReturnPct:   money(userReturn),
		Invested:        money(agg.buy),
		BenchmarkSymbol: symbol,
		PerSymbolPnL:    make(map[string]float64, len(agg.perSymbol)),
		Timeframe:       tf,
	}
	for sym, st := range agg.perSymbol {
		res.PerSymbolPnL[sym] = money(st.pnl)
	}

	bench := e.benchmarks.GetReturn(ctx, symbol, tf.Start, tf.End)
	if bench == nil {
		e.logger.Info("Benchmark unavailable for comparison",
			zap.String("user_id", userID.String()), zap.String("benchmark", symbol))
		return res, nil
	}

	benchReturn := decimal.NewFromFloat(bench.ReturnsPercent)
	diff := userReturn.Sub(benchReturn)
	benchPct, diffPct := money(benchReturn), money(diff)

	res.Benchmark = bench
	res.BenchmarkReturnPct = &benchPct
	res.DifferencePct = &diffPct
	res.Status = StatusUnderperformed
	if diff.IsPositive() {
		res.Status = StatusOutperformed
	}
	return res, nil
}

func timeframe(agg totals, start, end *time.Time) *Timeframe {
	s, en := models.DateOf(agg.first), models.DateOf(agg.last)
	if start != nil {
		s = models.DateOf(*start)
	}
	if end != nil {
		en = models.DateOf(*end)
	}
	return &Timeframe{Start: s, End: en, Days: int(en.Sub(s).Hours() / 24)}
}

// Recompute refreshes the user's metrics and default-benchmark comparison and stores the snapshot.
func (e *Engine) Recompute(ctx context.Context, userID uuid.UUID) (*MetricsSnapshot, error) {
	m, err := e.UserMetrics(ctx, userID)
	if err != nil {
		return nil, err
	}
	cmp, err := e.ComputeUserVsBenchmark(ctx, userID, e.defaultBenchmark, nil, nil)
	if err != nil {
		return nil, err
	}

	snap := &MetricsSnapshot{UserID: userID, Metrics: m, Comparison: cmp, ComputedAt: e.now().UTC()}
	if e.snapshots == nil {
		return snap, nil
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metrics for user %s: %w", userID, err)
	}
	if err := e.snapshots.SaveUserMetrics(ctx, &models.UserMetricsSnapshot{
		UserID:     userID,
		Payload:    payload,
		ComputedAt: snap.ComputedAt,
	}); err != nil {
		return nil, err
	}

	e.logger.Debug("User metrics recomputed", zap.String("user_id", userID.String()),
		zap.Int("trades", m.TotalTrades), zap.Float64("realized_pnl", m.RealizedPnL))
	return snap, nil
}

// LoadMetrics returns the last snapshot stored by Recompute.
func (e *Engine) LoadMetrics(ctx context.Context, userID uuid.UUID) (*MetricsSnapshot, error) {
	if e.snapshots == nil {
		return nil, errNoSnapshotStore
	}
	stored, err := e.snapshots.LoadUserMetrics(ctx, userID)
	if err != nil {
		return nil, err
	}
	var snap MetricsSnapshot
	if err := json.Unmarshal(stored.Payload, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode metrics for user %s: %w", userID, err)
	}
	return &snap, nil
}
