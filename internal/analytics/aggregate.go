package analytics

import (
	"time"

	"trade-compliance-go/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// symbolTotals accumulates the trades of one symbol.
type symbolTotals struct {
	trades   int
	invested decimal.Decimal
	pnl      decimal.Decimal
}

// totals is the aggregate of a trade list. Money is kept in decimal until it is reported.
type totals struct {
	count     int
	buy       decimal.Decimal
	sell      decimal.Decimal
	pnl       decimal.Decimal
	perSymbol map[string]*symbolTotals
	symbols   []string // first-seen order
	first     time.Time
	last      time.Time
}

// signedValue is +qty*price for a sell and -qty*price for a buy.
func signedValue(t *models.Trade) decimal.Decimal {
	v := decimal.NewFromFloat(t.Qty).Mul(decimal.NewFromFloat(t.Price))
	if t.Side == models.SideSell {
		return v
	}
	return v.Neg()
}

func aggregate(trades []models.Trade) totals {
	agg := totals{perSymbol: make(map[string]*symbolTotals)}
	for i := range trades {
		t := &trades[i]
		signed := signedValue(t)

		agg.count++
		agg.pnl = agg.pnl.Add(signed)
		if t.Side == models.SideBuy {
			agg.buy = agg.buy.Add(signed.Neg())
		} else {
			agg.sell = agg.sell.Add(signed)
		}

		st, ok := agg.perSymbol[t.Symbol]
		if !ok {
			st = &symbolTotals{}
			agg.perSymbol[t.Symbol] = st
			agg.symbols = append(agg.symbols, t.Symbol)
		}
		st.trades++
		st.pnl = st.pnl.Add(signed)
		if t.Side == models.SideBuy {
			st.invested = st.invested.Add(signed.Neg())
		}

		if agg.first.IsZero() || t.ExecutedAt.Before(agg.first) {
			agg.first = t.ExecutedAt
		}
		if t.ExecutedAt.After(agg.last) {
			agg.last = t.ExecutedAt
		}
	}
	return agg
}

// returnPct is pnl/invested*100, or zero when nothing was invested.
func returnPct(pnl, invested decimal.Decimal) decimal.Decimal {
	if !invested.IsPositive() {
		return decimal.Zero
	}
	return pnl.Div(invested).Mul(hundred)
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func round2(f float64) float64 {
	return money(decimal.NewFromFloat(f))
}

func endOfDay(day time.Time) time.Time {
	return day.AddDate(0, 0, 1).Add(-time.Nanosecond)
}
