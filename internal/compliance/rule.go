package compliance

import (
	"math"

	"trade-compliance-go/internal/models"
)

// Check names of the built-in rules.
const (
	CheckPatternDayTrading = "pattern_day_trading"
	CheckPositionSize      = "position_size_limit"
	CheckWashSale          = "wash_sale"
	CheckLeverage          = "leverage_limit"
	CheckLargeTrade        = "large_trade_limit"
	CheckQuickWash         = "wash_trade_check"
)

// Needs describes the data a rule must be given before Check runs.
type Needs struct {
	// History is the trade window to load for the trade's user. Nil loads nothing.
	History *models.TradeFilter
	// AccountValue requests the user's account value.
	AccountValue bool
}

// Input is the data fetched for a rule according to its Needs.
type Input struct {
	History      []models.Trade
	AccountValue float64
}

// Rule is a single compliance check. Check must be a pure function of its arguments.
type Rule interface {
	// Name returns the unique check name recorded on audits.
	Name() string

	// Needs reports what must be fetched for trade.
	Needs(trade *models.Trade) Needs

	// Check produces exactly one verdict for trade, or an error.
	Check(trade *models.Trade, in Input) (models.Verdict, error)
}

// BuiltinRules returns the fixed rule set evaluated for every trade.
func BuiltinRules() []Rule {
	return []Rule{
		PatternDayTrading{},
		PositionSize{},
		WashSale{},
		Leverage{},
		LargeTrade{},
		QuickWash{},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
