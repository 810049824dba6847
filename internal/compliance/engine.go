package compliance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trade-compliance-go/internal/metrics"
	"trade-compliance-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TradeReader reads a user's trade history, ordered by execution time ascending.
type TradeReader interface {
	ListTrades(ctx context.Context, userID uuid.UUID, filter models.TradeFilter) ([]models.Trade, error)
}

// AuditWriter appends compliance audits.
type AuditWriter interface {
	AppendAudit(ctx context.Context, audit *models.ComplianceAudit) error
}

// Engine evaluates every trade against the built-in rules and the current custom rules.
type Engine struct {
	logger       *zap.Logger
	trades       TradeReader
	audits       AuditWriter
	source       RuleSource
	accounts     AccountValueProvider
	builtins     []Rule
	accountValue float64
	now          func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithBuiltins replaces the built-in rule set.
func WithBuiltins(rules ...Rule) Option {
	return func(e *Engine) { e.builtins = rules }
}

// WithFallbackAccountValue sets the placeholder used when the provider cannot answer.
func WithFallbackAccountValue(v float64) Option {
	return func(e *Engine) {
		if v > 0 {
			e.accountValue = v
		}
	}
}

// WithClock sets the clock used to timestamp audits.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a compliance engine. source and accounts may be nil.
func NewEngine(logger *zap.Logger, trades TradeReader, audits AuditWriter, source RuleSource, accounts AccountValueProvider, opts ...Option) *Engine {
	e := &Engine{
		logger:       logger.Named("compliance"),
		trades:       trades,
		audits:       audits,
		source:       source,
		accounts:     accounts,
		builtins:     BuiltinRules(),
		accountValue: DefaultAccountValue,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ActiveRules returns the built-in rules followed by the rules of the current custom snapshot.
func (e *Engine) ActiveRules(ctx context.Context) []Rule {
	rules := make([]Rule, 0, len(e.builtins)+4)
	rules = append(rules, e.builtins...)
	if e.source == nil {
		return rules
	}

	set, err := e.source.Snapshot(ctx)
	if err != nil {
		e.logger.Error("Failed to load custom rules, evaluating built-in rules only", zap.Error(err))
		return rules
	}
	for _, spec := range set.Rules {
		rules = append(rules, NewCustomRule(spec))
	}
	return rules
}

// Evaluate runs every active rule against trade concurrently and persists one audit per verdict.
// A rule that errors yields no verdict and does not affect its siblings. The returned audits are
// the ones durably recorded; a non-nil error means at least one verdict could not be persisted.
func (e *Engine) Evaluate(ctx context.Context, trade *models.Trade) ([]models.ComplianceAudit, error) {
	started := time.Now()
	rules := e.ActiveRules(ctx)

	l := e.logger.With(
		zap.String("trade_id", trade.ID.String()),
		zap.String("user_id", trade.UserID.String()),
		zap.String("symbol", trade.Symbol),
	)

	var (
		mu     sync.Mutex
		audits = make([]models.ComplianceAudit, 0, len(rules))
	)

	// No WithContext: one failing task must not cancel the others.
	var g errgroup.Group
	for _, rule := range rules {
		rule := rule
		g.Go(func() error {
			verdict, err := e.runRule(ctx, rule, trade)
			if err != nil {
				l.Error("Compliance check failed", zap.String("check", rule.Name()), zap.Error(err))
				metrics.RecordRuleError(rule.Name())
				return nil
			}

			audit := models.NewComplianceAudit(trade, verdict, e.now())
			if err := e.audits.AppendAudit(ctx, &audit); err != nil {
				l.Error("Failed to persist compliance audit", zap.String("check", rule.Name()), zap.Error(err))
				return fmt.Errorf("check %s: %w", rule.Name(), err)
			}
			metrics.RecordVerdict(verdict.CheckName, string(verdict.Status))
			if verdict.Status != models.StatusPass {
				l.Info("Compliance check raised", zap.String("check", verdict.CheckName),
					zap.String("status", string(verdict.Status)), zap.String("reason", verdict.Reason))
			}

			mu.Lock()
			audits = append(audits, audit)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	metrics.ObserveEvaluation(time.Since(started))
	if err != nil {
		return audits, fmt.Errorf("failed to persist compliance audits for trade %s: %w", trade.ID, err)
	}

	l.Debug("Compliance evaluation complete", zap.Int("rules", len(rules)), zap.Int("audits", len(audits)))
	return audits, nil
}

// runRule fetches what rule needs and runs it. Panics are returned as errors.
func (e *Engine) runRule(ctx context.Context, rule Rule, trade *models.Trade) (v models.Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule panicked: %v", r)
		}
	}()

	needs := rule.Needs(trade)
	var in Input
	if needs.History != nil {
		in.History, err = e.trades.ListTrades(ctx, trade.UserID, *needs.History)
		if err != nil {
			return models.Verdict{}, fmt.Errorf("failed to load trade history: %w", err)
		}
	}
	if needs.AccountValue {
		in.AccountValue = e.lookupAccountValue(ctx, trade.UserID)
	}

	v, err = rule.Check(trade, in)
	if err != nil {
		return models.Verdict{}, err
	}
	if v.CheckName == "" {
		v.CheckName = rule.Name()
	}
	if v.Status != models.StatusPass && v.Reason == "" {
		v.Reason = string(v.Status)
	}
	return v, nil
}

func (e *Engine) lookupAccountValue(ctx context.Context, userID uuid.UUID) float64 {
	if e.accounts == nil {
		return e.accountValue
	}
	v, err := e.accounts.AccountValue(ctx, userID)
	if err != nil || v <= 0 {
		e.logger.Debug("Account value unavailable, using placeholder",
			zap.String("user_id", userID.String()), zap.Float64("placeholder", e.accountValue), zap.Error(err))
		return e.accountValue
	}
	return v
}
