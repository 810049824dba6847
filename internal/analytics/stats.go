package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"trade-compliance-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const topPerformers = 5

// DefaultRiskFreeRate is the per-period rate subtracted in SharpeRatio.
const DefaultRiskFreeRate = 0.02

// WinRate scores each traded symbol by its aggregate signed value.
type WinRate struct {
	UserID         uuid.UUID `json:"user_id"`
	WinRate        float64   `json:"win_rate"`
	WinningSymbols int       `json:"winning_trades"`
	LosingSymbols  int       `json:"losing_trades"`
	TotalSymbols   int       `json:"total_symbols_traded"`
	AverageWin     float64   `json:"average_win"`
	AverageLoss    float64   `json:"average_loss"`
}

// SymbolStats is one row of a portfolio summary.
type SymbolStats struct {
	Symbol    string  `json:"symbol"`
	Trades    int     `json:"trades"`
	Invested  float64 `json:"invested"`
	PnL       float64 `json:"pnl"`
	ReturnPct float64 `json:"return_pct"`
}

// PortfolioSummary is the per-symbol breakdown of all of a user's trades.
type PortfolioSummary struct {
	UserID        uuid.UUID     `json:"user_id"`
	TotalTrades   int           `json:"total_trades"`
	SymbolsTraded int           `json:"symbols_traded"`
	TotalInvested float64       `json:"total_invested"`
	TotalRealized float64       `json:"total_realized"`
	NetPnL        float64       `json:"net_pnl"`
	ReturnPct     float64       `json:"return_pct"`
	TopPerformers []SymbolStats `json:"top_performers"`
	AllSymbols    []SymbolStats `json:"all_symbols"`
}

// UserMetrics are a user's lifetime realized totals.
type UserMetrics struct {
	UserID         uuid.UUID  `json:"user_id"`
	TotalTrades    int        `json:"total_trades"`
	TotalInvested  float64    `json:"total_invested"`
	TotalValue     float64    `json:"total_value"`
	RealizedPnL    float64    `json:"realized_pnl"`
	ReturnsPercent float64    `json:"returns_percent"`
	FirstTrade     *time.Time `json:"first_trade,omitempty"`
	LastTrade      *time.Time `json:"last_trade,omitempty"`
}

func (e *Engine) allTrades(ctx context.Context, userID uuid.UUID) ([]models.Trade, error) {
	trades, err := e.trades.ListTrades(ctx, userID, models.TradeFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load trades for user %s: %w", userID, err)
	}
	return trades, nil
}

// ComputeWinRate returns the share of symbols with a positive aggregate signed value.
// A symbol that nets exactly zero is neither a win nor a loss but still counts as traded.
func (e *Engine) ComputeWinRate(ctx context.Context, userID uuid.UUID) (*WinRate, error) {
	trades, err := e.allTrades(ctx, userID)
	if err != nil {
		return nil, err
	}

	agg := aggregate(trades)
	wr := &WinRate{UserID: userID, TotalSymbols: len(agg.perSymbol)}
	if wr.TotalSymbols == 0 {
		return wr, nil
	}

	var winSum, lossSum decimal.Decimal
	for _, st := range agg.perSymbol {
		switch st.pnl.Sign() {
		case 1:
			wr.WinningSymbols++
			winSum = winSum.Add(st.pnl)
		case -1:
			wr.LosingSymbols++
			lossSum = lossSum.Add(st.pnl)
		}
	}

	rate := decimal.NewFromInt(int64(wr.WinningSymbols)).Div(decimal.NewFromInt(int64(wr.TotalSymbols))).Mul(hundred)
	wr.WinRate = money(rate)
	if wr.WinningSymbols > 0 {
		wr.AverageWin = money(winSum.Div(decimal.NewFromInt(int64(wr.WinningSymbols))))
	}
	if wr.LosingSymbols > 0 {
		wr.AverageLoss = money(lossSum.Div(decimal.NewFromInt(int64(wr.LosingSymbols))))
	}
	return wr, nil
}

// PortfolioSummary breaks a user's trades down by symbol, best pnl first.
func (e *Engine) PortfolioSummary(ctx context.Context, userID uuid.UUID) (*PortfolioSummary, error) {
	trades, err := e.allTrades(ctx, userID)
	if err != nil {
		return nil, err
	}

	agg := aggregate(trades)
	ps := &PortfolioSummary{
		UserID:        userID,
		TotalTrades:   agg.count,
		SymbolsTraded: len(agg.symbols),
		TotalInvested: money(agg.buy),
		TotalRealized: money(agg.sell),
		NetPnL:        money(agg.pnl),
		ReturnPct:     money(returnPct(agg.pnl, agg.buy)),
		TopPerformers: []SymbolStats{},
		AllSymbols:    make([]SymbolStats, 0, len(agg.symbols)),
	}

	for _, sym := range agg.symbols {
		st := agg.perSymbol[sym]
		ps.AllSymbols = append(ps.AllSymbols, SymbolStats{
			Symbol:    sym,
			Trades:    st.trades,
			Invested:  money(st.invested),
			PnL:       money(st.pnl),
			ReturnPct: money(returnPct(st.pnl, st.invested)),
		})
	}
	sort.SliceStable(ps.AllSymbols, func(i, j int) bool { return ps.AllSymbols[i].PnL > ps.AllSymbols[j].PnL })

	top := ps.AllSymbols
	if len(top) > topPerformers {
		top = top[:topPerformers]
	}
	ps.TopPerformers = append(ps.TopPerformers, top...)
	return ps, nil
}

// UserMetrics returns the user's lifetime totals. A user without trades gets zero values.
func (e *Engine) UserMetrics(ctx context.Context, userID uuid.UUID) (*UserMetrics, error) {
	trades, err := e.allTrades(ctx, userID)
	if err != nil {
		return nil, err
	}

	m := &UserMetrics{UserID: userID}
	if len(trades) == 0 {
		return m, nil
	}

	agg := aggregate(trades)
	first, last := agg.first, agg.last
	m.TotalTrades = agg.count
	m.TotalInvested = money(agg.buy)
	m.TotalValue = money(agg.sell)
	m.RealizedPnL = money(agg.sell.Sub(agg.buy))
	m.ReturnsPercent = money(returnPct(agg.sell.Sub(agg.buy), agg.buy))
	m.FirstTrade = &first
	m.LastTrade = &last
	return m, nil
}

// SharpeRatio treats the change in notional between consecutive trades as the return series and
// returns (mean - riskFree) / stddev, rounded to 2 decimals. It is 0 with fewer than two trades or
// no variation.
func (e *Engine) SharpeRatio(ctx context.Context, userID uuid.UUID, riskFree float64) (float64, error) {
	trades, err := e.allTrades(ctx, userID)
	if err != nil {
		return 0, err
	}
	return sharpe(trades, riskFree), nil
}

func sharpe(trades []models.Trade, riskFree float64) float64 {
	if len(trades) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(trades)-1)
	for i := 1; i < len(trades); i++ {
		prev, curr := trades[i-1].Value(), trades[i].Value()
		r := 0.0
		if prev > 0 {
			r = (curr - prev) / prev
		}
		returns = append(returns, r)
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return round2((mean - riskFree) / std)
}
