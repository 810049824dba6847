package compliance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"trade-compliance-go/internal/models"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// RuleSet is one immutable snapshot of the configured custom rules.
type RuleSet struct {
	Version  int64
	LoadedAt time.Time
	Rules    []models.CustomRuleSpec
}

// RuleSource hands out the current custom rule snapshot. It is asked once per evaluation.
type RuleSource interface {
	Snapshot(ctx context.Context) (RuleSet, error)
}

// DefaultCustomRules are used when no rule file is configured.
var DefaultCustomRules = []models.CustomRuleSpec{
	{
		Name:      "crypto_size_limit",
		CheckType: CheckTypeMaxValue,
		Threshold: 50000,
		Symbols:   []string{"BTC", "ETH", "DOGE"},
		Message:   "Crypto trade exceeds $50k limit",
	},
	{
		Name:      "penny_stock_quantity_limit",
		CheckType: CheckTypeMaxQuantity,
		Threshold: 100000,
		Symbols:   []string{},
		Message:   "Excessive quantity for single trade",
	},
}

// StaticRuleSource always returns the same rules.
type StaticRuleSource struct {
	set RuleSet
}

// NewStaticRuleSource creates a source that never changes.
func NewStaticRuleSource(rules ...models.CustomRuleSpec) *StaticRuleSource {
	return &StaticRuleSource{set: RuleSet{Version: 1, LoadedAt: time.Now(), Rules: rules}}
}

func (s *StaticRuleSource) Snapshot(context.Context) (RuleSet, error) {
	return s.set, nil
}

// ParseRules decodes a JSON rule document: either an array of rules or {"rules": [...]}.
func ParseRules(data []byte) ([]models.CustomRuleSpec, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var rules []models.CustomRuleSpec
	if data[0] == '[' {
		if err := json.Unmarshal(data, &rules); err != nil {
			return nil, fmt.Errorf("invalid rule list: %w", err)
		}
		return rules, nil
	}

	var doc struct {
		Rules []models.CustomRuleSpec `json:"rules"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid rule document: %w", err)
	}
	return doc.Rules, nil
}

// FileRuleSource serves rules from a JSON file and reloads them when the file changes.
// A reload that fails to parse keeps the previous snapshot.
type FileRuleSource struct {
	path    string
	logger  *zap.Logger
	current atomic.Pointer[RuleSet]
	version atomic.Int64
}

// NewFileRuleSource loads path once. The initial load must succeed.
func NewFileRuleSource(path string, logger *zap.Logger) (*FileRuleSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve rule file %s: %w", path, err)
	}
	s := &FileRuleSource{path: abs, logger: logger.Named("rule-source")}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the rule file and publishes a new snapshot.
func (s *FileRuleSource) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read rule file %s: %w", s.path, err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return fmt.Errorf("failed to parse rule file %s: %w", s.path, err)
	}

	set := &RuleSet{Version: s.version.Add(1), LoadedAt: time.Now(), Rules: rules}
	s.current.Store(set)
	s.logger.Info("Custom rules loaded", zap.Int64("version", set.Version), zap.Int("rules", len(rules)))
	return nil
}

func (s *FileRuleSource) Snapshot(context.Context) (RuleSet, error) {
	set := s.current.Load()
	if set == nil {
		return RuleSet{}, fmt.Errorf("no rules loaded from %s", s.path)
	}
	return *set, nil
}

// Watch reloads the rules whenever the file is written or replaced, until ctx is done.
func (s *FileRuleSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create rule file watcher: %w", err)
	}
	// Watch the directory so editors that replace the file are still seen.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.path), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != s.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if err := s.Reload(); err != nil {
					s.logger.Warn("Failed to reload custom rules, keeping previous set", zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("Rule file watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
