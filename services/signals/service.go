package signals

import (
	"context"
	"log"
	"time"

	"stocksignal-backend/models"
	"stocksignal-backend/services/marketcal"
	"stocksignal-backend/services/pricedata"
	"stocksignal-backend/services/recommendation"
)

// Publisher receives every freshly computed signal, e.g. for websocket push.
type Publisher interface {
	PublishSignal(resp *SignalResponse)
}

// SignalResponse is the full answer to a signal request: the recommendation,
// the indicator snapshot with chart arrays, and price metadata.
type SignalResponse struct {
	Symbol       string            `json:"symbol"`
	TradingDate  time.Time         `json:"trading_date"`
	MarketStatus marketcal.Status  `json:"market_status"`
	CurrentPrice float64           `json:"current_price"`

	Recommendation recommendation.Result `json:"recommendation"`
	Indicators     IndicatorSnapshot     `json:"indicators"`
	Bars           []pricedata.PriceBar  `json:"bars"`

	Cached   bool      `json:"cached"`
	CachedAt time.Time `json:"cached_at"`
}

// Service orchestrates signal computation: market calendar -> cache lookup ->
// provider fetch -> indicators -> recommendation -> cache upsert. Each
// request is an independent unit of work; concurrent requests for the same
// symbol are not coordinated, duplicate fetches and upserts under concurrent
// misses are accepted.
type Service struct {
	provider  pricedata.Provider
	cache     *Cache
	dir       marketcal.Directory
	publisher Publisher
	now       func() time.Time
}

// NewService creates a signal service. dir may be nil; the calendar then
// relies on its suffix rule alone.
func NewService(provider pricedata.Provider, cache *Cache, dir marketcal.Directory) *Service {
	return &Service{
		provider: provider,
		cache:    cache,
		dir:      dir,
		now:      time.Now,
	}
}

// SetPublisher attaches an optional publisher for freshly computed signals
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// ComputeSignal answers a signal request for symbol. Cache hits within the
// market-state freshness window replay the stored result; misses recompute
// from freshly fetched prices and overwrite the cache row.
func (s *Service) ComputeSignal(ctx context.Context, symbol string) (*SignalResponse, error) {
	now := s.now()
	status := marketcal.GetMarketStatus(s.dir, symbol, now)
	tradingDate := marketcal.LatestTradingDate(status.Market, now)

	row, err := s.cache.Lookup(ctx, symbol, tradingDate, status.CacheFreshnessMinutes)
	if err != nil {
		// A cache read failure degrades to a recompute, it never fails the request
		log.Printf("Warning: cache lookup failed for %s: %v", symbol, err)
	}
	if row != nil {
		resp, replayErr := s.replay(ctx, row, status)
		if replayErr == nil {
			return resp, nil
		}
		log.Printf("Warning: cache replay failed for %s, recomputing: %v", symbol, replayErr)
	}

	return s.recompute(ctx, symbol, status)
}

// replay rebuilds the response shape from a cached row, recovering corrupt
// stored arrays by recomputing them from fresh price data.
func (s *Service) replay(ctx context.Context, row *models.CachedSignal, status marketcal.Status) (*SignalResponse, error) {
	refetch := func(ctx context.Context) ([]pricedata.PriceBar, error) {
		return s.provider.FetchPriceBars(ctx, row.Symbol)
	}

	snapshot, bars, err := replaySnapshot(ctx, row, refetch)
	if err != nil {
		return nil, err
	}

	return &SignalResponse{
		Symbol:         row.Symbol,
		TradingDate:    row.TradingDate,
		MarketStatus:   status,
		CurrentPrice:   floatFromDecimal(row.CurrentPrice),
		Recommendation: replayRecommendation(row),
		Indicators:     snapshot,
		Bars:           bars,
		Cached:         true,
		CachedAt:       row.CachedAt,
	}, nil
}

// recompute fetches fresh prices, runs the indicator library and the
// recommendation engine, and upserts the result into the cache.
func (s *Service) recompute(ctx context.Context, symbol string, status marketcal.Status) (*SignalResponse, error) {
	bars, err := s.provider.FetchPriceBars(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		// Insufficient data: surfaced as "no data found", nothing is cached
		return nil, pricedata.ErrNoData
	}

	closes := pricedata.Closes(bars)
	currentPrice := closes[0]
	snapshot := BuildSnapshot(closes)

	rec := recommendation.Generate(recommendation.Inputs{
		RSI:          snapshot.RSI,
		MACD:         snapshot.MACD,
		CurrentPrice: currentPrice,
		SMA:          snapshot.SMA,
		Bollinger:    snapshot.Bollinger,
	})

	// The authoritative trading date is the date of the newest fetched bar
	barDate := bars[0].Date
	tradingDate := time.Date(barDate.Year(), barDate.Month(), barDate.Day(), 0, 0, 0, 0, time.UTC)

	row, err := s.cache.Save(ctx, symbol, tradingDate, snapshot, rec, bars, currentPrice)
	if err != nil {
		// The computed signal is still good; a failed write only costs the next request
		log.Printf("Warning: failed to cache signal for %s: %v", symbol, err)
	}

	resp := &SignalResponse{
		Symbol:         symbol,
		TradingDate:    tradingDate,
		MarketStatus:   status,
		CurrentPrice:   currentPrice,
		Recommendation: rec,
		Indicators:     snapshot,
		Bars:           bars,
		Cached:         false,
	}
	if row != nil {
		resp.CachedAt = row.CachedAt
	}

	if s.publisher != nil {
		s.publisher.PublishSignal(resp)
	}

	return resp, nil
}
