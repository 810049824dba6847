package benchmark

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trade-compliance-go/internal/config"
	"trade-compliance-go/internal/metrics"
	"trade-compliance-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLookbackDays = 730
	defaultConcurrency  = 4
)

// DateRange is an inclusive span of calendar dates.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RefreshReport summarises one bulk refresh.
type RefreshReport struct {
	SymbolsUpdated int               `json:"symbols_updated"`
	TotalSymbols   int               `json:"total_symbols"`
	Failures       map[string]string `json:"failures,omitempty"`
	DateRange      DateRange         `json:"date_range"`
}

// Refresher keeps the bar cache warm for a fixed symbol universe.
type Refresher struct {
	logger      *zap.Logger
	fetcher     Fetcher
	store       BarStore
	symbols     []string
	lookback    int
	concurrency int
	now         func() time.Time
}

// NewRefresher creates a refresh job from the benchmark configuration.
func NewRefresher(logger *zap.Logger, fetcher Fetcher, store BarStore, cfg config.Benchmark) *Refresher {
	r := &Refresher{
		logger:      logger.Named("benchmark-refresh"),
		fetcher:     fetcher,
		store:       store,
		symbols:     cfg.Symbols,
		lookback:    cfg.LookbackDays,
		concurrency: cfg.RefreshConcurrency,
		now:         time.Now,
	}
	if len(r.symbols) == 0 {
		r.symbols = config.DefaultBenchmarkSymbols
	}
	if r.lookback <= 0 {
		r.lookback = defaultLookbackDays
	}
	if r.concurrency <= 0 {
		r.concurrency = defaultConcurrency
	}
	return r
}

// Refresh fetches and caches the full lookback window for every symbol. A failing symbol is
// counted and logged; it never stops the others.
func (r *Refresher) Refresh(ctx context.Context) RefreshReport {
	end := models.DateOf(r.now())
	start := end.AddDate(0, 0, -r.lookback)

	report := RefreshReport{
		TotalSymbols: len(r.symbols),
		Failures:     make(map[string]string),
		DateRange:    DateRange{Start: start, End: end},
	}
	r.logger.Info("Refreshing benchmark data", zap.Int("symbols", len(r.symbols)),
		zap.Time("start", start), zap.Time("end", end))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.concurrency)
	for _, symbol := range r.symbols {
		symbol := normalizeSymbol(symbol)
		g.Go(func() error {
			n, err := r.refreshSymbol(ctx, symbol, start, end)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures[symbol] = err.Error()
				metrics.RecordBenchmarkFetchFailure(metrics.FetchRefresh)
				r.logger.Warn("Benchmark refresh failed", zap.String("symbol", symbol), zap.Error(err))
				return nil
			}
			report.SymbolsUpdated++
			r.logger.Debug("Benchmark refreshed", zap.String("symbol", symbol), zap.Int("bars", n))
			return nil
		})
	}
	_ = g.Wait()

	metrics.SetBenchmarkRefresh(report.SymbolsUpdated, len(report.Failures))
	r.logger.Info("Benchmark refresh complete",
		zap.Int("updated", report.SymbolsUpdated), zap.Int("total", report.TotalSymbols))
	return report
}

func (r *Refresher) refreshSymbol(ctx context.Context, symbol string, start, end time.Time) (int, error) {
	bars, err := r.fetcher.FetchDailyBars(ctx, symbol, start, end)
	if err != nil {
		return 0, err
	}
	if len(bars) < 2 {
		return 0, fmt.Errorf("%w: %d bars", ErrInsufficientData, len(bars))
	}
	n, err := upsertAll(ctx, r.store, bars)
	if err != nil {
		return n, fmt.Errorf("cached %d of %d bars: %w", n, len(bars), err)
	}
	return n, nil
}
