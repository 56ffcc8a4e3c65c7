package stockdir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPMetadataSource looks up stock reference data from the price provider's
// symbol endpoint.
type HTTPMetadataSource struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPMetadataSource creates a metadata source against the given API base URL
func NewHTTPMetadataSource(baseURL, apiKey string) *HTTPMetadataSource {
	return &HTTPMetadataSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type symbolResponse struct {
	Status string `json:"status"`
	Data   []struct {
		Symbol   string `json:"symbol"`
		Name     string `json:"instrument_name"`
		Exchange string `json:"exchange"`
	} `json:"data"`
}

// Lookup resolves symbol to its name and exchange
func (s *HTTPMetadataSource) Lookup(ctx context.Context, symbol string) (string, string, error) {
	endpoint := fmt.Sprintf("%s/stocks?symbol=%s&apikey=%s",
		s.baseURL, url.QueryEscape(symbol), url.QueryEscape(s.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to build symbol request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("symbol lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("symbol lookup returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read symbol response: %w", err)
	}

	var sr symbolResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", "", fmt.Errorf("failed to parse symbol response: %w", err)
	}

	for _, d := range sr.Data {
		if strings.EqualFold(d.Symbol, symbol) {
			return d.Name, d.Exchange, nil
		}
	}

	return "", "", fmt.Errorf("symbol %s not listed", symbol)
}
