package compliance

import (
	"strings"

	"trade-compliance-go/internal/models"
)

// Custom rule check types.
const (
	CheckTypeMaxValue    = "max_value"
	CheckTypeMaxQuantity = "max_quantity"
)

const (
	defaultCustomName    = "custom_check"
	defaultCustomMessage = "Custom check failed"
)

// CustomRule adapts a JSON-described rule to the Rule interface.
type CustomRule struct {
	spec models.CustomRuleSpec
}

// NewCustomRule wraps spec.
func NewCustomRule(spec models.CustomRuleSpec) CustomRule {
	return CustomRule{spec: spec}
}

func (r CustomRule) Name() string {
	if r.spec.Name == "" {
		return defaultCustomName
	}
	return r.spec.Name
}

func (CustomRule) Needs(*models.Trade) Needs { return Needs{} }

func (r CustomRule) Check(trade *models.Trade, _ Input) (models.Verdict, error) {
	v := models.Verdict{
		CheckName: r.Name(),
		Status:    models.StatusPass,
		Metadata:  r.metadata(),
	}

	if !r.inScope(trade.Symbol) {
		v.Reason = "symbol not in scope"
		return v, nil
	}

	var exceeded bool
	switch r.spec.CheckType {
	case CheckTypeMaxValue:
		exceeded = trade.Value() > r.spec.Threshold
	case CheckTypeMaxQuantity:
		exceeded = trade.Qty > r.spec.Threshold
	default:
		v.Reason = "check type not implemented: " + r.spec.CheckType
		return v, nil
	}

	if exceeded {
		v.Status = models.StatusFlag
		v.Reason = r.spec.Message
		if v.Reason == "" {
			v.Reason = defaultCustomMessage
		}
	}
	return v, nil
}

func (r CustomRule) inScope(symbol string) bool {
	if len(r.spec.Symbols) == 0 {
		return true
	}
	for _, s := range r.spec.Symbols {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}

func (r CustomRule) metadata() map[string]any {
	symbols := r.spec.Symbols
	if symbols == nil {
		symbols = []string{}
	}
	return map[string]any{
		"name":       r.Name(),
		"check_type": r.spec.CheckType,
		"threshold":  r.spec.Threshold,
		"symbols":    symbols,
		"message":    r.spec.Message,
	}
}
