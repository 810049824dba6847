package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Logger     Logger     `mapstructure:"logger"`
	Database   Database   `mapstructure:"database"`
	MarketData MarketData `mapstructure:"market_data"`
	Compliance Compliance `mapstructure:"compliance"`
	Benchmark  Benchmark  `mapstructure:"benchmark"`
	Analytics  Analytics  `mapstructure:"analytics"`
	Redis      Redis      `mapstructure:"redis"`
	Server     Server     `mapstructure:"server"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Database holds the configuration for the database.
type Database struct {
	Driver       string `mapstructure:"driver"` // sqlite or postgres
	DSN          string `mapstructure:"dsn"`
	LogLevel     string `mapstructure:"log_level"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// MarketData holds the configuration for the live daily-bars API.
type MarketData struct {
	BaseURL        string        `mapstructure:"base_url"`
	ApiKey         string        `mapstructure:"api_key"`
	SecretKey      string        `mapstructure:"secret_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// Compliance holds the configuration for the rule engine.
type Compliance struct {
	CustomRulesPath string  `mapstructure:"custom_rules_path"`
	WatchRules      bool    `mapstructure:"watch_rules"`
	AccountValue    float64 `mapstructure:"account_value"`
}

// Benchmark holds the configuration for the benchmark cache and its refresh job.
type Benchmark struct {
	Symbols            []string      `mapstructure:"symbols"`
	LookbackDays       int           `mapstructure:"lookback_days"`
	RefreshInterval    time.Duration `mapstructure:"refresh_interval"`
	RefreshConcurrency int           `mapstructure:"refresh_concurrency"`
	SyntheticFallback  bool          `mapstructure:"synthetic_fallback"`
}

// Analytics holds the configuration for performance analytics.
type Analytics struct {
	DefaultBenchmark string `mapstructure:"default_benchmark"`
}

// Redis holds the configuration for the metrics snapshot cache.
// An empty Addr keeps snapshots in the database.
type Redis struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Server holds the configuration for the ops server.
type Server struct {
	Port int `mapstructure:"port"`
}

// DefaultBenchmarkSymbols is the symbol universe kept warm by the refresh job.
var DefaultBenchmarkSymbols = []string{"SPY", "QQQ", "DIA", "IWM", "VTI", "VOO", "AGG", "GLD"}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	err = v.ReadInConfig()
	if err != nil {
		return
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "compliance.db")
	v.SetDefault("database.log_level", "silent")

	v.SetDefault("market_data.base_url", "https://data.alpaca.markets/v2")
	v.SetDefault("market_data.timeout", 10*time.Second)
	v.SetDefault("market_data.rate_limit", 3) // requests per second
	v.SetDefault("market_data.rate_limit_burst", 3)
	v.SetDefault("market_data.max_retries", 3)

	v.SetDefault("compliance.watch_rules", true)
	v.SetDefault("compliance.account_value", 100000)

	v.SetDefault("benchmark.symbols", DefaultBenchmarkSymbols)
	v.SetDefault("benchmark.lookback_days", 730)
	v.SetDefault("benchmark.refresh_interval", 24*time.Hour)
	v.SetDefault("benchmark.refresh_concurrency", 4)
	v.SetDefault("benchmark.synthetic_fallback", true)

	v.SetDefault("analytics.default_benchmark", "SPY")

	v.SetDefault("redis.ttl", time.Hour)

	v.SetDefault("server.port", 8000)
}
