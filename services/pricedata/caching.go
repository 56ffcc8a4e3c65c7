package pricedata

import (
	"context"
	"errors"
	"log"
	"time"
)

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// CachingProvider wraps a Provider with the local bar store. Successful
// fetches are mirrored into the store; when the upstream is unavailable the
// stored copy is served instead. Rate-limit and invalid-symbol failures pass
// through untouched — only generic outages degrade to stale local data.
type CachingProvider struct {
	upstream Provider
	store    *BarStore
}

// NewCachingProvider wraps upstream with store. A nil store disables the
// fallback and the wrapper becomes a pass-through.
func NewCachingProvider(upstream Provider, store *BarStore) *CachingProvider {
	return &CachingProvider{upstream: upstream, store: store}
}

// FetchPriceBars fetches from upstream, falling back to the local store on
// ErrUnavailable.
func (p *CachingProvider) FetchPriceBars(ctx context.Context, symbol string) ([]PriceBar, error) {
	bars, err := p.upstream.FetchPriceBars(ctx, symbol)
	if err == nil {
		if p.store != nil {
			if saveErr := p.store.SaveBars(symbol, bars); saveErr != nil {
				log.Printf("Warning: failed to mirror bars for %s: %v", symbol, saveErr)
			}
		}
		return bars, nil
	}

	if p.store == nil || !errors.Is(err, ErrUnavailable) {
		return nil, err
	}

	stored, loadErr := p.store.LoadBars(symbol)
	if loadErr != nil || len(stored) == 0 {
		return nil, err
	}

	log.Printf("Price provider unavailable for %s, serving %d locally stored bars", symbol, len(stored))
	return stored, nil
}
