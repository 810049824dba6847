package compliance

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"trade-compliance-go/internal/models"
)

const (
	// PDTTradeThreshold day trades within PDTDays mark a pattern day trader.
	PDTTradeThreshold = 4
	PDTDays           = 5
	PDTMinEquity      = 25000

	MaxPositionSizePercent = 20.0
	MaxLeverage            = 4.0

	WashSaleDays = 30

	LargeTradeLimit = 1_000_000.0

	QuickWashWindow = time.Minute
)

var errNoAccountValue = errors.New("account value unavailable")

// PatternDayTrading counts same-day round trips over the trailing PDTDays calendar dates.
type PatternDayTrading struct{}

func (PatternDayTrading) Name() string { return CheckPatternDayTrading }

func (PatternDayTrading) Needs(trade *models.Trade) Needs {
	day := models.DateOf(trade.ExecutedAt)
	start := day.AddDate(0, 0, -(PDTDays - 1))
	end := endOfDay(day)
	return Needs{History: &models.TradeFilter{Start: &start, End: &end}}
}

func (PatternDayTrading) Check(trade *models.Trade, in Input) (models.Verdict, error) {
	type key struct {
		symbol string
		date   time.Time
	}
	type sides struct {
		buy, sell, counted bool
	}

	history := withTrade(in.History, trade)
	groups := make(map[key]*sides)
	dayTrades := 0
	for i := range history {
		t := &history[i]
		k := key{symbol: t.Symbol, date: models.DateOf(t.ExecutedAt)}
		g, ok := groups[k]
		if !ok {
			g = &sides{}
			groups[k] = g
		}
		switch t.Side {
		case models.SideBuy:
			g.buy = true
		case models.SideSell:
			g.sell = true
		}
		if g.buy && g.sell && !g.counted {
			g.counted = true
			dayTrades++
		}
	}

	metadata := map[string]any{
		"day_trades_count": dayTrades,
		"threshold":        PDTTradeThreshold,
		"period_days":      PDTDays,
	}
	if dayTrades >= PDTTradeThreshold {
		return models.Verdict{
			CheckName: CheckPatternDayTrading,
			Status:    models.StatusFlag,
			Reason: fmt.Sprintf("Pattern Day Trading detected: %d day trades in %d days. Minimum equity of $%s required.",
				dayTrades, PDTDays, formatThousands(PDTMinEquity)),
			Metadata: metadata,
		}, nil
	}
	return models.Verdict{
		CheckName: CheckPatternDayTrading,
		Status:    models.StatusPass,
		Reason:    fmt.Sprintf("%d day trades in %d days (threshold: %d)", dayTrades, PDTDays, PDTTradeThreshold),
		Metadata:  metadata,
	}, nil
}

// PositionSize flags a position worth more than MaxPositionSizePercent of the portfolio.
type PositionSize struct{}

func (PositionSize) Name() string { return CheckPositionSize }

func (PositionSize) Needs(*models.Trade) Needs { return Needs{AccountValue: true} }

func (PositionSize) Check(trade *models.Trade, in Input) (models.Verdict, error) {
	if in.AccountValue <= 0 {
		return models.Verdict{}, errNoAccountValue
	}
	positionValue := trade.Value()
	percent := positionValue / in.AccountValue * 100

	if percent > MaxPositionSizePercent {
		return models.Verdict{
			CheckName: CheckPositionSize,
			Status:    models.StatusFlag,
			Reason:    fmt.Sprintf("Position size %.1f%% exceeds limit of %.0f%%", percent, MaxPositionSizePercent),
			Metadata: map[string]any{
				"position_value":   positionValue,
				"portfolio_value":  in.AccountValue,
				"position_percent": round2(percent),
				"limit_percent":    MaxPositionSizePercent,
			},
		}, nil
	}
	return models.Verdict{
		CheckName: CheckPositionSize,
		Status:    models.StatusPass,
		Reason:    fmt.Sprintf("Position size %.1f%% within limit", percent),
		Metadata: map[string]any{
			"position_percent": round2(percent),
			"limit_percent":    MaxPositionSizePercent,
		},
	}, nil
}

// WashSale flags a sell with a buy of the same symbol within WashSaleDays on either side.
type WashSale struct{}

func (WashSale) Name() string { return CheckWashSale }

func (WashSale) Needs(trade *models.Trade) Needs {
	if trade.Side != models.SideSell {
		return Needs{}
	}
	day := models.DateOf(trade.ExecutedAt)
	start := day.AddDate(0, 0, -WashSaleDays)
	end := endOfDay(day.AddDate(0, 0, WashSaleDays))
	return Needs{History: &models.TradeFilter{Symbol: trade.Symbol, Start: &start, End: &end}}
}

func (WashSale) Check(trade *models.Trade, in Input) (models.Verdict, error) {
	if trade.Side != models.SideSell {
		return models.Verdict{
			CheckName: CheckWashSale,
			Status:    models.StatusPass,
			Reason:    "Not applicable (not a sell transaction)",
			Metadata:  map[string]any{},
		}, nil
	}

	saleDay := models.DateOf(trade.ExecutedAt)
	var related []map[string]any
	for i := range in.History {
		t := &in.History[i]
		if t.ID == trade.ID || t.Symbol != trade.Symbol || t.Side != models.SideBuy {
			continue
		}
		days := daysBetween(saleDay, models.DateOf(t.ExecutedAt))
		if days > WashSaleDays {
			continue
		}
		related = append(related, map[string]any{
			"date":           models.DateOf(t.ExecutedAt).Format(time.DateOnly),
			"qty":            t.Qty,
			"price":          t.Price,
			"days_from_sale": days,
		})
	}

	if len(related) > 0 {
		return models.Verdict{
			CheckName: CheckWashSale,
			Status:    models.StatusFlag,
			Reason: fmt.Sprintf("Potential wash sale detected: %d buy transaction(s) of %s within %d days of sale",
				len(related), trade.Symbol, WashSaleDays),
			Metadata: map[string]any{
				"symbol":                trade.Symbol,
				"wash_sale_period_days": WashSaleDays,
				"related_buys":          related,
			},
		}, nil
	}
	return models.Verdict{
		CheckName: CheckWashSale,
		Status:    models.StatusPass,
		Reason:    fmt.Sprintf("No wash sale detected for %s", trade.Symbol),
		Metadata:  map[string]any{"symbol": trade.Symbol},
	}, nil
}

// Leverage fails a trade whose notional exceeds MaxLeverage times the account value.
type Leverage struct{}

func (Leverage) Name() string { return CheckLeverage }

func (Leverage) Needs(*models.Trade) Needs { return Needs{AccountValue: true} }

func (Leverage) Check(trade *models.Trade, in Input) (models.Verdict, error) {
	if in.AccountValue <= 0 {
		return models.Verdict{}, errNoAccountValue
	}
	positionValue := trade.Value()
	leverage := positionValue / in.AccountValue

	if leverage > MaxLeverage {
		return models.Verdict{
			CheckName: CheckLeverage,
			Status:    models.StatusFail,
			Reason:    fmt.Sprintf("Leverage %.2fx exceeds maximum of %.0fx", leverage, MaxLeverage),
			Metadata: map[string]any{
				"leverage":       round2(leverage),
				"max_leverage":   MaxLeverage,
				"position_value": positionValue,
				"account_value":  in.AccountValue,
			},
		}, nil
	}
	return models.Verdict{
		CheckName: CheckLeverage,
		Status:    models.StatusPass,
		Reason:    fmt.Sprintf("Leverage %.2fx within limit", leverage),
		Metadata: map[string]any{
			"leverage":     round2(leverage),
			"max_leverage": MaxLeverage,
		},
	}, nil
}

// LargeTrade flags a notional above LargeTradeLimit.
type LargeTrade struct{}

func (LargeTrade) Name() string { return CheckLargeTrade }

func (LargeTrade) Needs(*models.Trade) Needs { return Needs{} }

func (LargeTrade) Check(trade *models.Trade, _ Input) (models.Verdict, error) {
	value := trade.Value()
	metadata := map[string]any{"trade_value": value, "limit": LargeTradeLimit}
	if value > LargeTradeLimit {
		return models.Verdict{
			CheckName: CheckLargeTrade,
			Status:    models.StatusFlag,
			Reason:    fmt.Sprintf("trade exceeds $%s", formatThousands(int64(LargeTradeLimit))),
			Metadata:  metadata,
		}, nil
	}
	return models.Verdict{CheckName: CheckLargeTrade, Status: models.StatusPass, Metadata: metadata}, nil
}

// QuickWash flags an opposite-side trade of the same symbol in the minute before this one.
type QuickWash struct{}

func (QuickWash) Name() string { return CheckQuickWash }

func (QuickWash) Needs(trade *models.Trade) Needs {
	start := trade.ExecutedAt.Add(-QuickWashWindow)
	end := trade.ExecutedAt
	return Needs{History: &models.TradeFilter{Symbol: trade.Symbol, Start: &start, End: &end}}
}

func (QuickWash) Check(trade *models.Trade, in Input) (models.Verdict, error) {
	minutes := int(QuickWashWindow / time.Minute)
	for i := range in.History {
		t := &in.History[i]
		if t.ID == trade.ID || t.Symbol != trade.Symbol || t.Side != trade.Side.Opposite() {
			continue
		}
		return models.Verdict{
			CheckName: CheckQuickWash,
			Status:    models.StatusFlag,
			Reason:    fmt.Sprintf("opposite side within %d minute", minutes),
			Metadata: map[string]any{
				"window_minutes":   minutes,
				"matched_trade_id": t.ID.String(),
			},
		}, nil
	}
	return models.Verdict{
		CheckName: CheckQuickWash,
		Status:    models.StatusPass,
		Metadata:  map[string]any{"window_minutes": minutes},
	}, nil
}

// withTrade returns history with trade included once.
func withTrade(history []models.Trade, trade *models.Trade) []models.Trade {
	for i := range history {
		if history[i].ID == trade.ID {
			return history
		}
	}
	out := make([]models.Trade, 0, len(history)+1)
	inserted := false
	for _, t := range history {
		if !inserted && t.ExecutedAt.After(trade.ExecutedAt) {
			out = append(out, *trade)
			inserted = true
		}
		out = append(out, t)
	}
	if !inserted {
		out = append(out, *trade)
	}
	return out
}

func endOfDay(day time.Time) time.Time {
	return day.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// daysBetween is the absolute distance in calendar days of two UTC dates.
func daysBetween(a, b time.Time) int {
	d := int(a.Sub(b).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

func formatThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	pre := len(s) % 3
	if pre > 0 {
		out = append(out, s[:pre]...)
	}
	for i := pre; i < len(s); i += 3 {
		if len(out) > 0 {
			out = append(out, ',')
		}
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}
