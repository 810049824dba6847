package analytics

import (
	"context"
	"testing"
	"time"

	"trade-compliance-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func engineWith(trades []models.Trade) *Engine {
	reader := new(MockTradeReader)
	reader.On("ListTrades", mock.Anything, user, models.TradeFilter{}).Return(trades, nil)
	return newTestEngine(reader, new(MockBenchmarkResolver))
}

func TestComputeWinRate(t *testing.T) {
	t.Run("One win one loss one flat", func(t *testing.T) {
		wr, err := engineWith([]models.Trade{
			trade("AAPL", models.SideBuy, 1, 100, june3),
			trade("AAPL", models.SideSell, 1, 130, june3.Add(time.Hour)),
			trade("MSFT", models.SideBuy, 1, 100, june3),
			trade("MSFT", models.SideSell, 1, 90, june3.Add(time.Hour)),
			trade("NVDA", models.SideBuy, 2, 50, june3),
			trade("NVDA", models.SideSell, 1, 100, june3.Add(time.Hour)),
		}).ComputeWinRate(context.Background(), user)
		require.NoError(t, err)

		assert.Equal(t, 33.33, wr.WinRate)
		assert.Equal(t, 1, wr.WinningSymbols)
		assert.Equal(t, 1, wr.LosingSymbols)
		assert.Equal(t, 3, wr.TotalSymbols)
		assert.Equal(t, 30.0, wr.AverageWin)
		assert.Equal(t, -10.0, wr.AverageLoss)
	})

	t.Run("No trades", func(t *testing.T) {
		wr, err := engineWith([]models.Trade{}).ComputeWinRate(context.Background(), user)
		require.NoError(t, err)
		assert.Equal(t, 0.0, wr.WinRate)
		assert.Equal(t, 0, wr.TotalSymbols)
	})
}

func TestPortfolioSummary(t *testing.T) {
	var trades []models.Trade
	// Six symbols with pnl 10, 20, ... 60 against 100 invested each.
	for i, sym := range []string{"A", "B", "C", "D", "E", "F"} {
		at := june3.Add(time.Duration(i) * time.Hour)
		trades = append(trades,
			trade(sym, models.SideBuy, 1, 100, at),
			trade(sym, models.SideSell, 1, 100+float64(i+1)*10, at.Add(time.Minute)),
		)
	}

	ps, err := engineWith(trades).PortfolioSummary(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, 12, ps.TotalTrades)
	assert.Equal(t, 6, ps.SymbolsTraded)
	assert.Equal(t, 600.0, ps.TotalInvested)
	assert.Equal(t, 810.0, ps.TotalRealized)
	assert.Equal(t, 210.0, ps.NetPnL)
	assert.Equal(t, 35.0, ps.ReturnPct)

	require.Len(t, ps.AllSymbols, 6)
	require.Len(t, ps.TopPerformers, 5)
	assert.Equal(t, "F", ps.TopPerformers[0].Symbol)
	assert.Equal(t, 60.0, ps.TopPerformers[0].PnL)
	assert.Equal(t, 60.0, ps.TopPerformers[0].ReturnPct)
	assert.Equal(t, 2, ps.TopPerformers[0].Trades)
	assert.Equal(t, "B", ps.TopPerformers[4].Symbol)
	assert.Equal(t, "A", ps.AllSymbols[5].Symbol)
}

func TestPortfolioSummary_NoTrades(t *testing.T) {
	ps, err := engineWith([]models.Trade{}).PortfolioSummary(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, 0, ps.TotalTrades)
	assert.Empty(t, ps.TopPerformers)
	assert.Empty(t, ps.AllSymbols)
	assert.Equal(t, 0.0, ps.ReturnPct)
}

func TestUserMetrics(t *testing.T) {
	t.Run("With trades", func(t *testing.T) {
		trades := sampleTrades()
		m, err := engineWith(trades).UserMetrics(context.Background(), user)
		require.NoError(t, err)
		assert.Equal(t, 4, m.TotalTrades)
		assert.Equal(t, 2000.0, m.TotalInvested)
		assert.Equal(t, 2050.0, m.TotalValue)
		assert.Equal(t, 50.0, m.RealizedPnL)
		assert.Equal(t, 2.5, m.ReturnsPercent)
		require.NotNil(t, m.FirstTrade)
		require.NotNil(t, m.LastTrade)
		assert.True(t, m.FirstTrade.Equal(trades[0].ExecutedAt))
		assert.True(t, m.LastTrade.Equal(trades[3].ExecutedAt))
	})

	t.Run("No trades", func(t *testing.T) {
		m, err := engineWith([]models.Trade{}).UserMetrics(context.Background(), user)
		require.NoError(t, err)
		assert.Equal(t, &UserMetrics{UserID: user}, m)
	})
}

func TestSharpeRatio(t *testing.T) {
	testCases := []struct {
		name     string
		values   []float64
		expected float64
	}{
		{name: "Single trade", values: []float64{100}, expected: 0},
		{name: "No variation", values: []float64{100, 100, 100}, expected: 0},
		{name: "Up then down", values: []float64{100, 200, 100}, expected: 0.31},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var trades []models.Trade
			for i, v := range tc.values {
				trades = append(trades, trade("AAPL", models.SideBuy, 1, v, june3.Add(time.Duration(i)*time.Hour)))
			}
			got, err := engineWith(trades).SharpeRatio(context.Background(), user, DefaultRiskFreeRate)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}
