package benchmark

import (
	"context"
	"errors"
	"time"

	"trade-compliance-go/internal/metrics"

	"go.uber.org/zap"
)

// Cache resolves benchmark returns through an ordered chain of resolvers; the first success wins.
type Cache struct {
	logger    *zap.Logger
	resolvers []Resolver
}

// NewCache builds the standard chain: stored bars, then the live fetcher when one is given,
// then the synthetic estimate when synthetic is true.
func NewCache(logger *zap.Logger, store BarStore, fetcher Fetcher, synthetic bool) *Cache {
	logger = logger.Named("benchmark")
	resolvers := []Resolver{NewCachedResolver(store)}
	if fetcher != nil {
		resolvers = append(resolvers, NewLiveResolver(fetcher, store, logger))
	}
	if synthetic {
		resolvers = append(resolvers, SyntheticResolver{})
	}
	return NewChain(logger, resolvers...)
}

// NewChain creates a Cache over explicit resolvers.
func NewChain(logger *zap.Logger, resolvers ...Resolver) *Cache {
	return &Cache{logger: logger, resolvers: resolvers}
}

// GetReturn returns the benchmark return of symbol over [start, end], or nil when no resolver
// could produce one. It never returns an error.
func (c *Cache) GetReturn(ctx context.Context, symbol string, start, end time.Time) *Result {
	symbol = normalizeSymbol(symbol)
	l := c.logger.With(zap.String("symbol", symbol),
		zap.Time("start", start), zap.Time("end", end))

	for _, r := range c.resolvers {
		res, err := r.Resolve(ctx, symbol, start, end)
		if err == nil && res != nil {
			metrics.RecordBenchmarkResolution(string(r.Source()))
			l.Debug("Benchmark resolved", zap.String("source", string(r.Source())),
				zap.Float64("returns_percent", res.ReturnsPercent))
			return res
		}

		if err == nil || errors.Is(err, ErrInsufficientData) {
			l.Debug("Benchmark source has no data", zap.String("source", string(r.Source())))
			continue
		}
		if r.Source() == SourceAPI {
			metrics.RecordBenchmarkFetchFailure(metrics.FetchResolve)
		}
		l.Warn("Benchmark source failed, falling back", zap.String("source", string(r.Source())), zap.Error(err))
	}

	l.Warn("No benchmark data available")
	return nil
}
