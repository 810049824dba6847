package compliance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const ruleDoc = `{"rules": [
  {"name": "crypto_size_limit", "check_type": "max_value", "threshold": 50000, "symbols": ["BTC"], "message": "too big"}
]}`

const ruleList = `[
  {"name": "a", "check_type": "max_quantity", "threshold": 10},
  {"name": "b", "check_type": "max_value", "threshold": 20}
]`

func TestParseRules(t *testing.T) {
	t.Run("Document form", func(t *testing.T) {
		rules, err := ParseRules([]byte(ruleDoc))
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, "crypto_size_limit", rules[0].Name)
		assert.Equal(t, CheckTypeMaxValue, rules[0].CheckType)
		assert.Equal(t, 50000.0, rules[0].Threshold)
		assert.Equal(t, []string{"BTC"}, rules[0].Symbols)
		assert.Equal(t, "too big", rules[0].Message)
	})

	t.Run("List form", func(t *testing.T) {
		rules, err := ParseRules([]byte(ruleList))
		require.NoError(t, err)
		require.Len(t, rules, 2)
		assert.Equal(t, "b", rules[1].Name)
	})

	t.Run("Empty", func(t *testing.T) {
		rules, err := ParseRules([]byte("  \n"))
		require.NoError(t, err)
		assert.Empty(t, rules)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := ParseRules([]byte("{not json"))
		assert.Error(t, err)
	})
}

func TestStaticRuleSource(t *testing.T) {
	src := NewStaticRuleSource(DefaultCustomRules...)
	set, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), set.Version)
	assert.Len(t, set.Rules, 2)
}

func writeRules(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileRuleSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	writeRules(t, path, ruleDoc)

	src, err := NewFileRuleSource(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	set, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), set.Version)
	require.Len(t, set.Rules, 1)

	t.Run("Reload publishes a new version", func(t *testing.T) {
		writeRules(t, path, ruleList)
		require.NoError(t, src.Reload())

		set, err := src.Snapshot(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(2), set.Version)
		assert.Len(t, set.Rules, 2)
	})

	t.Run("Bad reload keeps previous set", func(t *testing.T) {
		before, _ := src.Snapshot(context.Background())
		writeRules(t, path, "{broken")
		assert.Error(t, src.Reload())

		after, err := src.Snapshot(context.Background())
		require.NoError(t, err)
		assert.Equal(t, before.Version, after.Version)
		assert.Equal(t, before.Rules, after.Rules)
	})
}

func TestFileRuleSourceMissingFile(t *testing.T) {
	_, err := NewFileRuleSource(filepath.Join(t.TempDir(), "missing.json"), zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestFileRuleSourceWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	writeRules(t, path, ruleDoc)

	// The watcher goroutine may still log after the test returns.
	src, err := NewFileRuleSource(path, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, src.Watch(ctx))

	writeRules(t, path, ruleList)

	require.Eventually(t, func() bool {
		set, err := src.Snapshot(context.Background())
		return err == nil && len(set.Rules) == 2
	}, 5*time.Second, 20*time.Millisecond)
}
