package ingest

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"trade-compliance-go/internal/analytics"
	"trade-compliance-go/internal/benchmark"
	"trade-compliance-go/internal/compliance"
	"trade-compliance-go/internal/config"
	"trade-compliance-go/internal/database"
	"trade-compliance-go/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockTradeWriter is a mock implementation of TradeWriter.
type MockTradeWriter struct {
	mock.Mock
}

func (m *MockTradeWriter) CreateTrade(ctx context.Context, trade *models.Trade) error {
	args := m.Called(ctx, trade)
	return args.Error(0)
}

// MockEvaluator is a mock implementation of Evaluator.
type MockEvaluator struct {
	mock.Mock
}

func (m *MockEvaluator) Evaluate(ctx context.Context, trade *models.Trade) ([]models.ComplianceAudit, error) {
	args := m.Called(ctx, trade)
	return args.Get(0).([]models.ComplianceAudit), args.Error(1)
}

// MockRecomputer is a mock implementation of Recomputer.
type MockRecomputer struct {
	mock.Mock
}

func (m *MockRecomputer) Recompute(ctx context.Context, userID uuid.UUID) (*analytics.MetricsSnapshot, error) {
	args := m.Called(ctx, userID)
	snap, _ := args.Get(0).(*analytics.MetricsSnapshot)
	return snap, args.Error(1)
}

type countingRefresher struct {
	calls atomic.Int32
}

func (r *countingRefresher) Refresh(context.Context) benchmark.RefreshReport {
	n := r.calls.Add(1)
	return benchmark.RefreshReport{SymbolsUpdated: int(n), TotalSymbols: 8}
}

var testUser = uuid.MustParse("d9428888-122b-41b7-a3cc-8d1b35ad1e3e")

func validRequest() Request {
	return Request{
		UserID:     testUser,
		Symbol:     " aapl ",
		Side:       "BUY",
		Qty:        10,
		Price:      189.5,
		ExecutedAt: time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC),
		ExternalID: "broker-123",
	}
}

func TestIngest_Validation(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Request)
	}{
		{name: "Missing user", mutate: func(r *Request) { r.UserID = uuid.Nil }},
		{name: "Missing symbol", mutate: func(r *Request) { r.Symbol = "  " }},
		{name: "Bad side", mutate: func(r *Request) { r.Side = "short" }},
		{name: "Zero qty", mutate: func(r *Request) { r.Qty = 0 }},
		{name: "Negative price", mutate: func(r *Request) { r.Price = -1 }},
		{name: "Infinite price", mutate: func(r *Request) { r.Price = math.Inf(1) }},
		{name: "NaN price", mutate: func(r *Request) { r.Price = math.NaN() }},
		{name: "Infinite qty", mutate: func(r *Request) { r.Qty = math.Inf(1) }},
		{name: "NaN qty", mutate: func(r *Request) { r.Qty = math.NaN() }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			writer := new(MockTradeWriter)
			engine := NewEngine(zap.NewNop(), writer, new(MockEvaluator), new(MockRecomputer), nil, 0)

			req := validRequest()
			tc.mutate(&req)
			_, err := engine.Ingest(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidTrade)
			writer.AssertNotCalled(t, "CreateTrade", mock.Anything, mock.Anything)
		})
	}
}

func TestIngest_NormalisesAndSchedules(t *testing.T) {
	writer := new(MockTradeWriter)
	evaluator := new(MockEvaluator)
	recomputer := new(MockRecomputer)
	writer.On("CreateTrade", mock.Anything, mock.Anything).Return(nil)
	evaluator.On("Evaluate", mock.Anything, mock.Anything).Return([]models.ComplianceAudit{}, nil)
	recomputer.On("Recompute", mock.Anything, testUser).Return(&analytics.MetricsSnapshot{}, nil)

	engine := NewEngine(zap.NewNop(), writer, evaluator, recomputer, nil, 0)

	// The background work must survive the caller's context.
	ctx, cancel := context.WithCancel(context.Background())
	trade, err := engine.Ingest(ctx, validRequest())
	cancel()
	require.NoError(t, err)
	engine.Wait()

	assert.NotEqual(t, uuid.Nil, trade.ID)
	assert.Equal(t, "AAPL", trade.Symbol)
	assert.Equal(t, models.SideBuy, trade.Side)
	require.NotNil(t, trade.ExternalID)
	assert.Equal(t, "broker-123", *trade.ExternalID)

	evaluator.AssertCalled(t, "Evaluate", mock.Anything, mock.MatchedBy(func(tr *models.Trade) bool {
		return tr.ID == trade.ID
	}))
	recomputer.AssertExpectations(t)
	assert.Equal(t, int64(0), engine.Status().(Status).InFlight)
	assert.Equal(t, int64(1), engine.Status().(Status).Ingested)
}

func TestIngest_StoreFailure(t *testing.T) {
	writer := new(MockTradeWriter)
	evaluator := new(MockEvaluator)
	writer.On("CreateTrade", mock.Anything, mock.Anything).Return(errors.New("unique violation"))

	engine := NewEngine(zap.NewNop(), writer, evaluator, new(MockRecomputer), nil, 0)
	_, err := engine.Ingest(context.Background(), validRequest())
	assert.ErrorContains(t, err, "unique violation")
	engine.Wait()
	evaluator.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything)
}

func TestIngest_BackgroundTasksAreIndependent(t *testing.T) {
	writer := new(MockTradeWriter)
	evaluator := new(MockEvaluator)
	recomputer := new(MockRecomputer)
	writer.On("CreateTrade", mock.Anything, mock.Anything).Return(nil)
	evaluator.On("Evaluate", mock.Anything, mock.Anything).Return([]models.ComplianceAudit(nil), errors.New("audit table locked"))
	recomputer.On("Recompute", mock.Anything, testUser).Return(nil, errors.New("redis down"))

	engine := NewEngine(zap.NewNop(), writer, evaluator, recomputer, nil, 0)
	_, err := engine.Ingest(context.Background(), validRequest())
	require.NoError(t, err)
	engine.Wait()

	evaluator.AssertNumberOfCalls(t, "Evaluate", 1)
	recomputer.AssertNumberOfCalls(t, "Recompute", 1)
}

func TestIngest_EndToEnd(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewDatabase(config.Database{
		Driver:       "sqlite",
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	store := database.NewStore(db)

	rules := compliance.NewEngine(zap.NewNop(), store, store,
		compliance.NewStaticRuleSource(compliance.DefaultCustomRules...), compliance.StaticAccountValue(100000))
	perf := analytics.NewEngine(zap.NewNop(), store, benchmark.NewCache(zap.NewNop(), store, nil, true), store, "SPY")
	engine := NewEngine(zap.NewNop(), store, rules, perf, nil, 0)

	buy := validRequest()
	sell := validRequest()
	sell.Side = "sell"
	sell.Price = 200
	sell.ExecutedAt = buy.ExecutedAt.Add(30 * time.Second)
	sell.ExternalID = ""

	_, err = engine.Ingest(ctx, buy)
	require.NoError(t, err)
	engine.Wait()
	trade, err := engine.Ingest(ctx, sell)
	require.NoError(t, err)
	engine.Wait()

	audits, err := store.ListTradeAudits(ctx, trade.ID)
	require.NoError(t, err)
	assert.Len(t, audits, len(compliance.BuiltinRules())+len(compliance.DefaultCustomRules))

	statuses := make(map[string]models.Status)
	for _, a := range audits {
		assert.Equal(t, testUser, a.UserID)
		statuses[a.CheckName] = a.Status
	}
	assert.Equal(t, models.StatusFlag, statuses[compliance.CheckQuickWash])
	assert.Equal(t, models.StatusFlag, statuses[compliance.CheckWashSale])
	assert.Equal(t, models.StatusPass, statuses[compliance.CheckLeverage])

	snap, err := perf.LoadMetrics(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Metrics.TotalTrades)
	assert.Equal(t, 105.0, snap.Metrics.RealizedPnL)
}

func TestRun_RefreshesOnStartAndOnDemand(t *testing.T) {
	refresher := &countingRefresher{}
	engine := NewEngine(zap.NewNop(), new(MockTradeWriter), new(MockEvaluator), new(MockRecomputer), refresher, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, engine.RefreshNow())
	require.Eventually(t, func() bool { return refresher.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		last := engine.LastRefresh()
		return last != nil && last.SymbolsUpdated == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_WithoutRefresher(t *testing.T) {
	engine := NewEngine(zap.NewNop(), new(MockTradeWriter), new(MockEvaluator), new(MockRecomputer), nil, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	engine.Run(ctx)
	assert.Nil(t, engine.LastRefresh())
}
