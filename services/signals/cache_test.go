package signals

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stocksignal-backend/models"
	"stocksignal-backend/services/pricedata"
	"stocksignal-backend/services/recommendation"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateSignalModels(db))
	t.Cleanup(func() {
		db.Migrator().DropTable(&models.CachedSignal{})
	})
	return db
}

func testBars(n int, newest time.Time) []pricedata.PriceBar {
	bars := make([]pricedata.PriceBar, n)
	for i := range bars {
		c := float64(199 - i)
		bars[i] = pricedata.PriceBar{
			Date:  newest.AddDate(0, 0, -i),
			Open:  c - 1,
			High:  c + 1,
			Low:   c - 2,
			Close: c,
		}
	}
	return bars
}

func testSnapshotAndRec(bars []pricedata.PriceBar) (IndicatorSnapshot, recommendation.Result) {
	closes := pricedata.Closes(bars)
	snapshot := BuildSnapshot(closes)
	rec := recommendation.Generate(recommendation.Inputs{
		RSI:          snapshot.RSI,
		MACD:         snapshot.MACD,
		CurrentPrice: closes[0],
		SMA:          snapshot.SMA,
		Bollinger:    snapshot.Bollinger,
	})
	return snapshot, rec
}

func TestGormStore_ReadAbsentIsNilNil(t *testing.T) {
	store := NewGormStore(testDB(t))

	row, err := store.Read(context.Background(), "AAPL", time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.Nil(t, row)
}

func TestGormStore_WriteReadRoundTrip(t *testing.T) {
	store := NewGormStore(testDB(t))
	cache := NewCache(store)
	ctx := context.Background()

	tradingDate := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	bars := testBars(100, tradingDate)
	snapshot, rec := testSnapshotAndRec(bars)

	saved, err := cache.Save(ctx, "AAPL", tradingDate, snapshot, rec, bars, 199)
	require.NoError(t, err)

	row, err := store.Read(ctx, "AAPL", tradingDate)
	require.NoError(t, err)
	require.NotNil(t, row)

	assert.Equal(t, "AAPL", row.Symbol)
	assert.Equal(t, string(rec.Recommendation), row.Recommendation)
	// The serialized arrays survive storage byte-for-byte.
	assert.Equal(t, saved.SMAData, row.SMAData)
	assert.Equal(t, saved.BollingerData, row.BollingerData)
	assert.Equal(t, saved.MACDHistory, row.MACDHistory)
	assert.Equal(t, saved.SignalHistory, row.SignalHistory)
	assert.Equal(t, saved.PriceBars, row.PriceBars)
}

func TestGormStore_UpsertOverwritesInPlace(t *testing.T) {
	store := NewGormStore(testDB(t))
	ctx := context.Background()
	tradingDate := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	first := &models.CachedSignal{
		Symbol: "AAPL", TradingDate: tradingDate,
		Recommendation: "HOLD", CachedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.Write(ctx, first))

	second := &models.CachedSignal{
		Symbol: "AAPL", TradingDate: tradingDate,
		Recommendation: "BUY", CachedAt: time.Now(),
	}
	require.NoError(t, store.Write(ctx, second))

	var count int64
	store.db.Model(&models.CachedSignal{}).Where("symbol = ?", "AAPL").Count(&count)
	assert.EqualValues(t, 1, count, "upsert must not create a second row")

	row, err := store.Read(ctx, "AAPL", tradingDate)
	require.NoError(t, err)
	assert.Equal(t, "BUY", row.Recommendation)
}

func TestGormStore_DistinctDatesAreDistinctRows(t *testing.T) {
	store := NewGormStore(testDB(t))
	ctx := context.Background()

	wed := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	thu := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Write(ctx, &models.CachedSignal{Symbol: "AAPL", TradingDate: wed, Recommendation: "HOLD"}))
	require.NoError(t, store.Write(ctx, &models.CachedSignal{Symbol: "AAPL", TradingDate: thu, Recommendation: "BUY"}))

	var count int64
	store.db.Model(&models.CachedSignal{}).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestGormStore_RowsForDate(t *testing.T) {
	store := NewGormStore(testDB(t))
	ctx := context.Background()
	tradingDate := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Write(ctx, &models.CachedSignal{Symbol: "MSFT", TradingDate: tradingDate}))
	require.NoError(t, store.Write(ctx, &models.CachedSignal{Symbol: "AAPL", TradingDate: tradingDate}))
	require.NoError(t, store.Write(ctx, &models.CachedSignal{Symbol: "AAPL", TradingDate: tradingDate.AddDate(0, 0, -1)}))

	rows, err := store.RowsForDate(ctx, tradingDate)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "AAPL", rows[0].Symbol, "ordered by symbol")
	assert.Equal(t, "MSFT", rows[1].Symbol)
}

func TestGormStore_DeleteOlderThan(t *testing.T) {
	store := NewGormStore(testDB(t))
	ctx := context.Background()

	old := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Write(ctx, &models.CachedSignal{Symbol: "AAPL", TradingDate: old}))
	require.NoError(t, store.Write(ctx, &models.CachedSignal{Symbol: "AAPL", TradingDate: recent}))

	deleted, err := store.DeleteOlderThan(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	row, err := store.Read(ctx, "AAPL", recent)
	require.NoError(t, err)
	assert.NotNil(t, row, "recent row survives cleanup")
}

// memStore is an in-memory Store for freshness and orchestration tests
type memStore struct {
	rows     map[string]*models.CachedSignal
	readErr  error
	writeErr error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]*models.CachedSignal)}
}

func (s *memStore) key(symbol string, d time.Time) string {
	return symbol + "|" + d.Format("2006-01-02")
}

func (s *memStore) Read(_ context.Context, symbol string, tradingDate time.Time) (*models.CachedSignal, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	row, ok := s.rows[s.key(symbol, tradingDate)]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (s *memStore) Write(_ context.Context, row *models.CachedSignal) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	cp := *row
	s.rows[s.key(row.Symbol, row.TradingDate)] = &cp
	return nil
}

func TestCache_FreshHitAndStaleMiss(t *testing.T) {
	store := newMemStore()
	cache := NewCache(store)
	ctx := context.Background()
	tradingDate := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	base := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return base }

	bars := testBars(30, tradingDate)
	snapshot, rec := testSnapshotAndRec(bars)
	_, err := cache.Save(ctx, "AAPL", tradingDate, snapshot, rec, bars, 199)
	require.NoError(t, err)

	// 14 minutes later the row is inside the open-market window.
	cache.now = func() time.Time { return base.Add(14 * time.Minute) }
	row, err := cache.Lookup(ctx, "AAPL", tradingDate, 15)
	require.NoError(t, err)
	assert.NotNil(t, row)

	// 16 minutes: past the window, reported as a miss.
	cache.now = func() time.Time { return base.Add(16 * time.Minute) }
	row, err = cache.Lookup(ctx, "AAPL", tradingDate, 15)
	require.NoError(t, err)
	assert.Nil(t, row)

	// The same age is still fresh against the closed-market window, and
	// the physical row was never deleted.
	row, err = cache.Lookup(ctx, "AAPL", tradingDate, 60)
	require.NoError(t, err)
	assert.NotNil(t, row)
}

func TestCache_SaveStampsCachedAt(t *testing.T) {
	store := newMemStore()
	cache := NewCache(store)
	stamp := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return stamp }

	bars := testBars(30, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC))
	snapshot, rec := testSnapshotAndRec(bars)
	row, err := cache.Save(context.Background(), "AAPL", bars[0].Date, snapshot, rec, bars, 199)
	require.NoError(t, err)
	assert.Equal(t, stamp, row.CachedAt)
}

func TestCache_LookupErrorPropagates(t *testing.T) {
	store := newMemStore()
	store.readErr = errors.New("connection refused")
	cache := NewCache(store)

	row, err := cache.Lookup(context.Background(), "AAPL", time.Now(), 15)
	assert.Error(t, err)
	assert.Nil(t, row)
}

func TestDecimalFromFloat_CollapsesNonFinite(t *testing.T) {
	// decimal.NewFromFloat panics on NaN, so the conversion has to catch
	// non-finite values before they reach it.
	assert.True(t, decimalFromFloat(math.NaN()).IsZero())
	assert.True(t, decimalFromFloat(math.Inf(1)).IsZero())
	assert.True(t, decimalFromFloat(math.Inf(-1)).IsZero())
	assert.False(t, decimalFromFloat(42.5).IsZero())
}

func TestReplaySnapshot_IntactRowNeedsNoRefetch(t *testing.T) {
	store := newMemStore()
	cache := NewCache(store)
	ctx := context.Background()
	tradingDate := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	bars := testBars(100, tradingDate)
	snapshot, rec := testSnapshotAndRec(bars)
	row, err := cache.Save(ctx, "AAPL", tradingDate, snapshot, rec, bars, 199)
	require.NoError(t, err)

	refetched := 0
	got, gotBars, err := replaySnapshot(ctx, row, func(context.Context) ([]pricedata.PriceBar, error) {
		refetched++
		return bars, nil
	})
	require.NoError(t, err)
	assert.Zero(t, refetched, "intact arrays must not trigger a refetch")
	assert.Len(t, gotBars, len(bars))
	assert.Equal(t, len(snapshot.SMAData), len(got.SMAData))
	assert.InDelta(t, snapshot.SMA, got.SMA, 0.0001)
	assert.InDelta(t, *snapshot.SMAData[0], *got.SMAData[0], 0.0001)
}

func TestReplaySnapshot_CorruptArrayRecomputedFromRefetch(t *testing.T) {
	store := newMemStore()
	cache := NewCache(store)
	ctx := context.Background()
	tradingDate := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	bars := testBars(100, tradingDate)
	snapshot, rec := testSnapshotAndRec(bars)
	row, err := cache.Save(ctx, "AAPL", tradingDate, snapshot, rec, bars, 199)
	require.NoError(t, err)

	// Corrupt one stored array; the rest stay valid.
	row.SMAData = "{not json"

	refetched := 0
	got, gotBars, err := replaySnapshot(ctx, row, func(context.Context) ([]pricedata.PriceBar, error) {
		refetched++
		return bars, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, refetched, "one refetch recovers all corrupt arrays")
	assert.Len(t, gotBars, len(bars))

	// The corrupt series was recomputed and matches the original.
	require.Len(t, got.SMAData, len(snapshot.SMAData))
	assert.InDelta(t, *snapshot.SMAData[0], *got.SMAData[0], 0.0001)
	// Intact series were replayed from storage, not recomputed.
	require.Len(t, got.MACDHistory, len(snapshot.MACDHistory))
}

func TestReplaySnapshot_CorruptBarsAndRefetchFailure(t *testing.T) {
	store := newMemStore()
	cache := NewCache(store)
	ctx := context.Background()
	tradingDate := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	bars := testBars(100, tradingDate)
	snapshot, rec := testSnapshotAndRec(bars)
	row, err := cache.Save(ctx, "AAPL", tradingDate, snapshot, rec, bars, 199)
	require.NoError(t, err)
	row.PriceBars = ""

	_, _, err = replaySnapshot(ctx, row, func(context.Context) ([]pricedata.PriceBar, error) {
		return nil, pricedata.ErrUnavailable
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, pricedata.ErrUnavailable)
}

func TestReplayRecommendation(t *testing.T) {
	store := newMemStore()
	cache := NewCache(store)
	ctx := context.Background()
	tradingDate := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	bars := testBars(100, tradingDate)
	snapshot, rec := testSnapshotAndRec(bars)
	row, err := cache.Save(ctx, "AAPL", tradingDate, snapshot, rec, bars, 199)
	require.NoError(t, err)

	got := replayRecommendation(row)
	assert.Equal(t, rec.Recommendation, got.Recommendation)
	assert.InDelta(t, rec.Score, got.Score, 0.0001)
	assert.InDelta(t, rec.Confidence, got.Confidence, 0.0001)
	assert.Equal(t, rec.Explanation, got.Explanation)
	require.Contains(t, got.Contributions, "rsi")
	assert.InDelta(t, rec.Contributions["rsi"].Contribution, got.Contributions["rsi"].Contribution, 0.0001)
}
