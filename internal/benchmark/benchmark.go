package benchmark

import (
	"context"
	"errors"
	"strings"
	"time"

	"trade-compliance-go/internal/models"

	"github.com/shopspring/decimal"
)

// Source tells where a benchmark return came from.
type Source string

const (
	SourceCache Source = "cache"
	SourceAPI   Source = "api"
	// SourceMock marks a synthetic estimate rather than measured prices.
	SourceMock Source = "mock"
)

// ErrInsufficientData is returned by a resolver that has fewer than two bars for the window.
var ErrInsufficientData = errors.New("insufficient benchmark data")

// Result is the return of a benchmark over a window.
type Result struct {
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	StartPrice     float64 `json:"start_price"`
	EndPrice       float64 `json:"end_price"`
	ReturnsPercent float64 `json:"returns_percent"`
	Source         Source  `json:"data_source"`
}

// BarStore reads and upserts cached daily bars.
type BarStore interface {
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]models.BenchmarkBar, error)
	UpsertBar(ctx context.Context, bar *models.BenchmarkBar) error
}

// Fetcher loads daily bars from a live market-data source.
type Fetcher interface {
	FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]models.BenchmarkBar, error)
}

var displayNames = map[string]string{
	"SPY": "S&P 500 ETF",
	"QQQ": "NASDAQ-100 ETF",
	"DIA": "Dow Jones ETF",
	"IWM": "Russell 2000 ETF",
	"VTI": "Total Market ETF",
	"VOO": "Vanguard S&P 500 ETF",
	"AGG": "Bond Market ETF",
	"GLD": "Gold ETF",
}

// DisplayName returns the human name of a benchmark, or the symbol itself when unknown.
func DisplayName(symbol string) string {
	if name, ok := displayNames[symbol]; ok {
		return name
	}
	return symbol
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// fromBars computes the return between the earliest and latest bar.
// bars must be ordered by date ascending.
func fromBars(symbol string, bars []models.BenchmarkBar, source Source) (*Result, error) {
	if len(bars) < 2 {
		return nil, ErrInsufficientData
	}
	first, last := bars[0].Close, bars[len(bars)-1].Close
	if first <= 0 {
		return nil, ErrInsufficientData
	}

	start := decimal.NewFromFloat(first)
	end := decimal.NewFromFloat(last)
	returns := end.Sub(start).Div(start).Mul(decimal.NewFromInt(100))

	return &Result{
		Symbol:         symbol,
		Name:           DisplayName(symbol),
		StartPrice:     first,
		EndPrice:       last,
		ReturnsPercent: returns.InexactFloat64(),
		Source:         source,
	}, nil
}
