package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trade-compliance-go/internal/analytics"
	"trade-compliance-go/internal/benchmark"
	"trade-compliance-go/internal/cache"
	"trade-compliance-go/internal/compliance"
	"trade-compliance-go/internal/config"
	"trade-compliance-go/internal/database"
	"trade-compliance-go/internal/ingest"
	"trade-compliance-go/internal/logger"
	"trade-compliance-go/internal/marketdata"
	"trade-compliance-go/internal/metrics"

	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Initialize database
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	store := database.NewStore(db)
	log.Info("Database connection successful and schema migrated.", zap.String("driver", cfg.Database.Driver))

	// Live market data is optional; without credentials the cache falls back to synthetic returns.
	var fetcher benchmark.Fetcher
	var refresher ingest.Refresher
	if cfg.MarketData.ApiKey != "" {
		client := marketdata.NewClient(&cfg.MarketData, log)
		fetcher = client
		refresher = benchmark.NewRefresher(log, client, store, cfg.Benchmark)
	} else {
		log.Warn("Market data credentials not configured, live benchmark data disabled")
	}
	benchmarks := benchmark.NewCache(log, store, fetcher, cfg.Benchmark.SyntheticFallback)

	rules, err := ruleSource(ctx, cfg.Compliance, log)
	if err != nil {
		log.Fatal("Failed to load custom rules", zap.Error(err))
	}
	complianceEngine := compliance.NewEngine(log, store, store, rules,
		compliance.StaticAccountValue(cfg.Compliance.AccountValue),
		compliance.WithFallbackAccountValue(cfg.Compliance.AccountValue),
	)

	var snapshots analytics.SnapshotStore = store
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer client.Close()
		snapshots = cache.NewRedisSnapshots(client, cfg.Redis.TTL)
		log.Info("Metrics snapshots cached in redis", zap.String("addr", cfg.Redis.Addr))
	}
	analyticsEngine := analytics.NewEngine(log, store, benchmarks, snapshots, cfg.Analytics.DefaultBenchmark)

	ingestEngine := ingest.NewEngine(log, store, complianceEngine, analyticsEngine, refresher, cfg.Benchmark.RefreshInterval)

	server := metrics.NewServer(cfg.Server.Port, store, ingestEngine.Status, log)
	if err := server.Start(); err != nil {
		log.Fatal("Failed to start ops server", zap.Error(err))
	}

	ingestEngine.Run(ctx)

	log.Info("Waiting for background tasks to finish...")
	ingestEngine.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop ops server", zap.Error(err))
	}

	log.Info("Service has been shut down.")
}

// ruleSource returns the configured custom rule source, watching the file for changes when enabled.
func ruleSource(ctx context.Context, cfg config.Compliance, log *zap.Logger) (compliance.RuleSource, error) {
	if cfg.CustomRulesPath == "" {
		return compliance.NewStaticRuleSource(compliance.DefaultCustomRules...), nil
	}
	source, err := compliance.NewFileRuleSource(cfg.CustomRulesPath, log)
	if err != nil {
		return nil, err
	}
	if cfg.WatchRules {
		if err := source.Watch(ctx); err != nil {
			return nil, err
		}
	}
	return source, nil
}
