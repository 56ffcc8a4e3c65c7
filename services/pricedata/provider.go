package pricedata

import (
	"context"
	"errors"
	"time"
)

// PriceBar is one daily OHLC bar. Provider implementations return bars
// newest-first: index 0 is the most recent session.
type PriceBar struct {
	Date  time.Time `json:"datetime"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Upstream failure taxonomy. Callers branch on these with errors.Is; anything
// wrapped around them keeps the classification.
var (
	// ErrRateLimited means the provider refused the request because of rate
	// limiting. Surfaced verbatim so the caller can retry later.
	ErrRateLimited = errors.New("price provider rate limit exceeded")

	// ErrInvalidSymbol means the provider does not know the symbol.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrUnavailable is any other transient upstream failure.
	ErrUnavailable = errors.New("price provider unavailable")

	// ErrNoData means the provider answered but returned no usable bars.
	ErrNoData = errors.New("no price data found")
)

// DefaultBarCount is how many trailing daily sessions a fetch asks for.
const DefaultBarCount = 100

// Provider supplies ordered daily price bars for a symbol.
type Provider interface {
	FetchPriceBars(ctx context.Context, symbol string) ([]PriceBar, error)
}

// Closes extracts the close prices from bars, preserving order.
func Closes(bars []PriceBar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
