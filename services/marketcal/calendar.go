package marketcal

import (
	"log"
	"strings"
	"time"
)

// Market identifiers
const (
	MarketUS = "US"
	MarketUK = "UK"
)

// Session states reported by GetMarketStatus
const (
	StateOpen       = "open"
	StatePreMarket  = "pre_market"
	StateAfterHours = "after_hours"
	StateClosed     = "closed"
)

// Cache freshness windows in minutes
const (
	FreshnessOpenMinutes   = 15
	FreshnessClosedMinutes = 60
)

// Directory resolves a symbol to its persisted market, if known. Implemented
// by the stock directory; a nil Directory always falls through to the suffix
// rule.
type Directory interface {
	MarketForSymbol(symbol string) (string, error)
}

// Status describes a market's current session for a symbol
type Status struct {
	Market                string `json:"market"`
	State                 string `json:"state"`
	IsOpen                bool   `json:"is_open"`
	CacheFreshnessMinutes int    `json:"cache_freshness_minutes"`
}

// ukExchangeVariants are matched case-insensitively, substring in either
// direction, against exchange names from the directory.
var ukExchangeVariants = []string{
	"LSE",
	"LONDON STOCK EXCHANGE",
	"LONDON",
	"AIM",
	"ISDX",
	"NEX",
}

var (
	usLocation = loadLocation("America/New_York")
	ukLocation = loadLocation("Europe/London")
)

// loadLocation falls back to UTC so a missing tzdata install degrades the
// schedule instead of crashing the service.
func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("Warning: could not load timezone %s, falling back to UTC: %v", name, err)
		return time.UTC
	}
	return loc
}

// DetectMarketFromSymbol resolves the market a symbol trades on. The persisted
// directory wins when it knows the symbol; otherwise (including on lookup
// failure) the `.L` suffix convention decides. Never returns an error.
func DetectMarketFromSymbol(dir Directory, symbol string) string {
	if dir != nil {
		if market, err := dir.MarketForSymbol(symbol); err == nil {
			if market == MarketUS || market == MarketUK {
				return market
			}
		}
	}

	if strings.HasSuffix(strings.ToUpper(symbol), ".L") {
		return MarketUK
	}
	return MarketUS
}

// DetectMarketFromExchange maps an exchange name to a market by
// case-insensitive substring match against the UK exchange variants, in both
// directions. Anything unrecognized is US.
func DetectMarketFromExchange(exchangeName string) string {
	name := strings.ToUpper(strings.TrimSpace(exchangeName))
	if name == "" {
		return MarketUS
	}

	for _, variant := range ukExchangeVariants {
		if strings.Contains(name, variant) || strings.Contains(variant, name) {
			return MarketUK
		}
	}
	return MarketUS
}

// IsMarketHours reports whether t falls within the market's regular trading
// window (US 09:30-16:00 Eastern, UK 08:00-16:30 London), weekdays only.
// There is no holiday calendar.
func IsMarketHours(market string, t time.Time) bool {
	local := t.In(locationFor(market))
	if isWeekend(local) {
		return false
	}

	hm := local.Hour()*60 + local.Minute()
	switch market {
	case MarketUK:
		return hm >= 8*60 && hm < 16*60+30
	default:
		return hm >= 9*60+30 && hm < 16*60
	}
}

// sessionState refines the open/closed split into four states using fixed
// extended-hours windows (US pre-market from 04:00, after-hours to 20:00; UK
// pre-market from 07:00, after-hours to 17:30).
func sessionState(market string, t time.Time) string {
	local := t.In(locationFor(market))
	if isWeekend(local) {
		return StateClosed
	}

	if IsMarketHours(market, t) {
		return StateOpen
	}

	hm := local.Hour()*60 + local.Minute()
	switch market {
	case MarketUK:
		if hm >= 7*60 && hm < 8*60 {
			return StatePreMarket
		}
		if hm >= 16*60+30 && hm < 17*60+30 {
			return StateAfterHours
		}
	default:
		if hm >= 4*60 && hm < 9*60+30 {
			return StatePreMarket
		}
		if hm >= 16*60 && hm < 20*60 {
			return StateAfterHours
		}
	}
	return StateClosed
}

// GetMarketStatus returns the symbol's market, its session state at t, and
// the cache freshness window that state implies.
func GetMarketStatus(dir Directory, symbol string, t time.Time) Status {
	market := DetectMarketFromSymbol(dir, symbol)
	open := IsMarketHours(market, t)

	return Status{
		Market:                market,
		State:                 sessionState(market, t),
		IsOpen:                open,
		CacheFreshnessMinutes: cacheDuration(open),
	}
}

// GetCacheDurationMinutes is the entire freshness policy: a short cache while
// prices are actively moving, a long one otherwise.
func GetCacheDurationMinutes(dir Directory, symbol string, t time.Time) int {
	market := DetectMarketFromSymbol(dir, symbol)
	return cacheDuration(IsMarketHours(market, t))
}

func cacheDuration(open bool) int {
	if open {
		return FreshnessOpenMinutes
	}
	return FreshnessClosedMinutes
}

// LatestTradingDate returns the most recent weekday date in the market's
// local timezone, truncated to midnight UTC for use as a cache key.
func LatestTradingDate(market string, t time.Time) time.Time {
	local := t.In(locationFor(market))
	for isWeekend(local) {
		local = local.AddDate(0, 0, -1)
	}
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func locationFor(market string) *time.Location {
	if market == MarketUK {
		return ukLocation
	}
	return usLocation
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
