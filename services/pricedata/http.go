package pricedata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// HTTPProvider fetches daily bars from the configured price API
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPProvider creates a provider against the given API base URL
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// timeSeriesResponse mirrors the provider's time_series payload. Numeric
// fields arrive as strings.
type timeSeriesResponse struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Values  []struct {
		Datetime string `json:"datetime"`
		Open     string `json:"open"`
		High     string `json:"high"`
		Low      string `json:"low"`
		Close    string `json:"close"`
	} `json:"values"`
}

// FetchPriceBars fetches up to DefaultBarCount daily bars for symbol,
// newest-first. Upstream failures map onto the package error taxonomy.
func (p *HTTPProvider) FetchPriceBars(ctx context.Context, symbol string) ([]PriceBar, error) {
	endpoint := fmt.Sprintf("%s/time_series?symbol=%s&interval=1day&outputsize=%d&apikey=%s",
		p.baseURL, url.QueryEscape(symbol), DefaultBarCount, url.QueryEscape(p.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSymbol, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: upstream status %d", ErrUnavailable, resp.StatusCode)
	}

	var ts timeSeriesResponse
	if err := json.Unmarshal(body, &ts); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}

	if ts.Status == "error" {
		switch {
		case ts.Code == http.StatusTooManyRequests:
			return nil, ErrRateLimited
		case ts.Code == http.StatusBadRequest || ts.Code == http.StatusNotFound ||
			strings.Contains(strings.ToLower(ts.Message), "symbol"):
			return nil, fmt.Errorf("%w: %s", ErrInvalidSymbol, symbol)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, ts.Message)
		}
	}

	if len(ts.Values) == 0 {
		return nil, ErrNoData
	}

	bars := make([]PriceBar, 0, len(ts.Values))
	for _, v := range ts.Values {
		date, err := time.Parse("2006-01-02", v.Datetime)
		if err != nil {
			continue
		}
		bar := PriceBar{Date: date}
		if bar.Open, err = strconv.ParseFloat(v.Open, 64); err != nil {
			continue
		}
		if bar.High, err = strconv.ParseFloat(v.High, 64); err != nil {
			continue
		}
		if bar.Low, err = strconv.ParseFloat(v.Low, 64); err != nil {
			continue
		}
		if bar.Close, err = strconv.ParseFloat(v.Close, 64); err != nil {
			continue
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, ErrNoData
	}

	// The provider already sends newest-first; enforce it anyway since every
	// indicator depends on the ordering.
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Date.After(bars[j].Date)
	})

	return bars, nil
}
