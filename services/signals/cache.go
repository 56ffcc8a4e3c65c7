package signals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stocksignal-backend/models"
	"stocksignal-backend/services/indicators"
	"stocksignal-backend/services/pricedata"
	"stocksignal-backend/services/recommendation"
)

// Store is the persistence boundary of the signal cache. Read returns
// (nil, nil) when no row exists for the key; Write upserts atomically on the
// (symbol, trading date) unique constraint.
type Store interface {
	Read(ctx context.Context, symbol string, tradingDate time.Time) (*models.CachedSignal, error)
	Write(ctx context.Context, row *models.CachedSignal) error
}

// GormStore implements Store on a gorm database
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a Store over db
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Read fetches the row for (symbol, tradingDate), if any
func (s *GormStore) Read(ctx context.Context, symbol string, tradingDate time.Time) (*models.CachedSignal, error) {
	var row models.CachedSignal
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND trading_date = ?", symbol, tradingDate).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached signal for %s: %w", symbol, err)
	}
	return &row, nil
}

// Write upserts a row on the (symbol, trading_date) unique constraint. Under
// concurrent recomputation the last writer wins, which is fine because
// recomputation is idempotent given identical upstream data.
func (s *GormStore) Write(ctx context.Context, row *models.CachedSignal) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "trading_date"}},
			UpdateAll: true,
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert cached signal for %s: %w", row.Symbol, err)
	}
	return nil
}

// RowsForDate lists every cached signal for a trading date, for the archive job
func (s *GormStore) RowsForDate(ctx context.Context, tradingDate time.Time) ([]models.CachedSignal, error) {
	var rows []models.CachedSignal
	err := s.db.WithContext(ctx).
		Where("trading_date = ?", tradingDate).
		Order("symbol").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cached signals: %w", err)
	}
	return rows, nil
}

// DeleteOlderThan removes cached signals whose trading date predates cutoff.
// Request handling never deletes rows; this exists for the weekly cleanup job.
func (s *GormStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("trading_date < ?", cutoff).
		Delete(&models.CachedSignal{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete old cached signals: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Cache applies the freshness policy over a Store. Per (symbol, trading date)
// key a row moves Absent -> Fresh -> Stale -> (recompute) -> Fresh; stale
// rows behave exactly like absent ones on lookup and are overwritten in
// place on the next store, never deleted.
type Cache struct {
	store Store
	now   func() time.Time
}

// NewCache creates a cache over store
func NewCache(store Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

// Lookup returns the cached row for (symbol, tradingDate) if its cachedAt is
// within freshnessMinutes of now. An expired row is reported as a miss even
// though it still physically exists.
func (c *Cache) Lookup(ctx context.Context, symbol string, tradingDate time.Time, freshnessMinutes int) (*models.CachedSignal, error) {
	row, err := c.store.Read(ctx, symbol, tradingDate)
	if err != nil || row == nil {
		return nil, err
	}

	age := c.now().Sub(row.CachedAt)
	if age > time.Duration(freshnessMinutes)*time.Minute {
		return nil, nil
	}
	return row, nil
}

// Save marshals a computed signal into a row and upserts it, stamping
// cachedAt with the current time.
func (c *Cache) Save(ctx context.Context, symbol string, tradingDate time.Time, snapshot IndicatorSnapshot, rec recommendation.Result, bars []pricedata.PriceBar, currentPrice float64) (*models.CachedSignal, error) {
	row := &models.CachedSignal{
		Symbol:      symbol,
		TradingDate: tradingDate,

		Recommendation: string(rec.Recommendation),
		Score:          decimalFromFloat(rec.Score),
		Confidence:     decimalFromFloat(rec.Confidence),

		CurrentPrice:   decimalFromFloat(currentPrice),
		SMA:            decimalFromFloat(snapshot.SMA),
		RSI:            decimalFromFloat(snapshot.RSI),
		MACD:           decimalFromFloat(snapshot.MACD.Value),
		MACDSignalLine: decimalFromFloat(snapshot.MACD.Signal),
		BollUpper:      decimalFromFloat(snapshot.Bollinger.Upper),
		BollLower:      decimalFromFloat(snapshot.Bollinger.Lower),

		SMAData:       marshalOrEmpty(snapshot.SMAData),
		BollingerData: marshalOrEmpty(snapshot.BollingerData),
		MACDHistory:   marshalOrEmpty(snapshot.MACDHistory),
		SignalHistory: marshalOrEmpty(snapshot.SignalHistory),
		PriceBars:     marshalOrEmpty(bars),

		Contributions: marshalOrEmpty(rec.Contributions),
		Explanation:   marshalOrEmpty(rec.Explanation),

		CachedAt: c.now(),
	}

	if err := c.store.Write(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// replaySnapshot reconstructs the snapshot and bar sequence from a cached
// row. Each stored array deserializes independently; a malformed array is
// recomputed from a freshly fetched price sequence (supplied by refetch)
// instead of failing the whole replay. The refetch runs at most once.
func replaySnapshot(ctx context.Context, row *models.CachedSignal, refetch func(context.Context) ([]pricedata.PriceBar, error)) (IndicatorSnapshot, []pricedata.PriceBar, error) {
	snapshot := IndicatorSnapshot{
		SMA: floatFromDecimal(row.SMA),
		RSI: floatFromDecimal(row.RSI),
		MACD: indicators.MACDResult{
			Value:  floatFromDecimal(row.MACD),
			Signal: floatFromDecimal(row.MACDSignalLine),
		},
		Bollinger: indicators.BollingerResult{
			Upper: floatFromDecimal(row.BollUpper),
			Lower: floatFromDecimal(row.BollLower),
			SMA:   floatFromDecimal(row.SMA),
		},
	}

	var bars []pricedata.PriceBar
	barsOK := json.Unmarshal([]byte(row.PriceBars), &bars) == nil && len(bars) > 0

	smaOK := json.Unmarshal([]byte(row.SMAData), &snapshot.SMAData) == nil
	bollOK := json.Unmarshal([]byte(row.BollingerData), &snapshot.BollingerData) == nil
	macdOK := json.Unmarshal([]byte(row.MACDHistory), &snapshot.MACDHistory) == nil
	sigOK := json.Unmarshal([]byte(row.SignalHistory), &snapshot.SignalHistory) == nil

	if barsOK && smaOK && bollOK && macdOK && sigOK {
		return snapshot, bars, nil
	}

	// Some stored array is corrupt: recover locally by recomputing the
	// affected series from fresh price data.
	fresh, err := refetch(ctx)
	if err != nil {
		return snapshot, nil, fmt.Errorf("cached arrays corrupt and refetch failed: %w", err)
	}
	closes := pricedata.Closes(fresh)

	if !barsOK {
		bars = fresh
	}
	if !smaOK {
		snapshot.SMAData = indicators.CalculateSMASeries(closes, indicators.SMAPeriod)
	}
	if !bollOK {
		snapshot.BollingerData = indicators.CalculateBollingerSeries(closes, indicators.BollingerPeriod, indicators.BollingerMult)
	}
	if !macdOK || !sigOK {
		macdHistory, signalHistory := indicators.CalculateMACDSeries(closes)
		if !macdOK {
			snapshot.MACDHistory = macdHistory
		}
		if !sigOK {
			snapshot.SignalHistory = signalHistory
		}
	}

	return snapshot, bars, nil
}

// replayRecommendation rebuilds the recommendation fields stored on a row
func replayRecommendation(row *models.CachedSignal) recommendation.Result {
	result := recommendation.Result{
		Recommendation: recommendation.Recommendation(row.Recommendation),
		Score:          floatFromDecimal(row.Score),
		Confidence:     floatFromDecimal(row.Confidence),
	}

	if json.Unmarshal([]byte(row.Contributions), &result.Contributions) != nil {
		result.Contributions = map[string]recommendation.Contribution{}
	}
	if json.Unmarshal([]byte(row.Explanation), &result.Explanation) != nil {
		result.Explanation = nil
	}
	return result
}

func marshalOrEmpty(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// decimalFromFloat converts for storage; NaN and infinities (possible with
// degenerate price data) collapse to zero since the decimal column cannot
// hold them.
func decimalFromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

func floatFromDecimal(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
