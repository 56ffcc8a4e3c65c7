package pricedata

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempBarStore(t *testing.T) *BarStore {
	t.Helper()
	store, err := NewBarStore(filepath.Join(t.TempDir(), "bars.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleBars(n int, newest time.Time) []PriceBar {
	bars := make([]PriceBar, n)
	for i := range bars {
		c := 150.0 - float64(i)
		bars[i] = PriceBar{
			Date:  newest.AddDate(0, 0, -i),
			Open:  c - 0.5,
			High:  c + 1,
			Low:   c - 1,
			Close: c,
		}
	}
	return bars
}

func TestBarStore_SaveLoadRoundTrip(t *testing.T) {
	store := tempBarStore(t)
	newest := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	bars := sampleBars(5, newest)

	require.NoError(t, store.SaveBars("AAPL", bars))

	loaded, err := store.LoadBars("AAPL")
	require.NoError(t, err)
	require.Len(t, loaded, 5)

	// Newest-first ordering survives the round trip.
	assert.Equal(t, newest, loaded[0].Date)
	assert.Equal(t, 150.0, loaded[0].Close)
	assert.True(t, loaded[0].Date.After(loaded[4].Date))
}

func TestBarStore_SaveIsIdempotent(t *testing.T) {
	store := tempBarStore(t)
	newest := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	bars := sampleBars(5, newest)

	require.NoError(t, store.SaveBars("AAPL", bars))
	require.NoError(t, store.SaveBars("AAPL", bars))

	loaded, err := store.LoadBars("AAPL")
	require.NoError(t, err)
	assert.Len(t, loaded, 5, "re-saving the same dates must not duplicate rows")
}

func TestBarStore_SymbolsAreIsolated(t *testing.T) {
	store := tempBarStore(t)
	newest := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveBars("AAPL", sampleBars(3, newest)))
	require.NoError(t, store.SaveBars("MSFT", sampleBars(5, newest)))

	loaded, err := store.LoadBars("AAPL")
	require.NoError(t, err)
	assert.Len(t, loaded, 3)

	loaded, err = store.LoadBars("TSLA")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

// flakyProvider fails with a fixed error until recovered
type flakyProvider struct {
	bars  []PriceBar
	err   error
	calls int
}

func (p *flakyProvider) FetchPriceBars(_ context.Context, _ string) ([]PriceBar, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.bars, nil
}

func TestCachingProvider_MirrorsSuccessfulFetches(t *testing.T) {
	store := tempBarStore(t)
	newest := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	upstream := &flakyProvider{bars: sampleBars(5, newest)}
	p := NewCachingProvider(upstream, store)

	bars, err := p.FetchPriceBars(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Len(t, bars, 5)

	mirrored, err := store.LoadBars("AAPL")
	require.NoError(t, err)
	assert.Len(t, mirrored, 5)
}

func TestCachingProvider_FallsBackOnUnavailable(t *testing.T) {
	store := tempBarStore(t)
	newest := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	upstream := &flakyProvider{bars: sampleBars(5, newest)}
	p := NewCachingProvider(upstream, store)

	ctx := context.Background()
	_, err := p.FetchPriceBars(ctx, "AAPL")
	require.NoError(t, err)

	// Upstream goes down; the stored copy answers.
	upstream.err = ErrUnavailable
	bars, err := p.FetchPriceBars(ctx, "AAPL")
	require.NoError(t, err)
	assert.Len(t, bars, 5)
	assert.Equal(t, newest, bars[0].Date)
}

func TestCachingProvider_RateLimitAndInvalidSymbolPassThrough(t *testing.T) {
	store := tempBarStore(t)
	newest := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	upstream := &flakyProvider{bars: sampleBars(5, newest)}
	p := NewCachingProvider(upstream, store)

	ctx := context.Background()
	_, err := p.FetchPriceBars(ctx, "AAPL")
	require.NoError(t, err)

	// Rate limiting must surface to the caller even with local data on
	// hand: serving stale bars would hide quota exhaustion.
	upstream.err = ErrRateLimited
	_, err = p.FetchPriceBars(ctx, "AAPL")
	assert.ErrorIs(t, err, ErrRateLimited)

	upstream.err = ErrInvalidSymbol
	_, err = p.FetchPriceBars(ctx, "AAPL")
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

func TestCachingProvider_UnavailableWithEmptyStoreSurfaces(t *testing.T) {
	store := tempBarStore(t)
	upstream := &flakyProvider{err: ErrUnavailable}
	p := NewCachingProvider(upstream, store)

	_, err := p.FetchPriceBars(context.Background(), "NEVERSEEN")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCachingProvider_NilStoreIsPassThrough(t *testing.T) {
	upstream := &flakyProvider{err: ErrUnavailable}
	p := NewCachingProvider(upstream, nil)

	_, err := p.FetchPriceBars(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, upstream.calls)
}
