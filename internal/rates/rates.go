package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/multiwallet/internal/money"
)

// DefaultBaseURL serves {"base": "USD", "rates": {"NGN": 1550.2, ...}} documents at /<from>.
const DefaultBaseURL = "https://api.exchangerate-api.com/v4/latest"

var (
	// ErrUnknownCurrency indicates the provider does not quote the pair.
	ErrUnknownCurrency = errors.New("unknown currency")
	// ErrUnavailable indicates the provider could not be reached or answered badly.
	ErrUnavailable = errors.New("rate source unavailable")
)

// Source quotes how many units of to one unit of from buys.
type Source interface {
	Rate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error)
}

// HTTPSource reads rates from an exchangerate-api compatible endpoint.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource builds a source against baseURL. An empty baseURL uses the public API.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSource{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type latestResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Rate fetches the latest table for from and picks to out of it.
func (s *HTTPSource) Rate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+string(from), nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("build rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, from)
	case resp.StatusCode != http.StatusOK:
		return decimal.Decimal{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	rate, ok := body.Rates[string(to)]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, to)
	}
	if !rate.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: non-positive rate for %s/%s", ErrUnavailable, from, to)
	}
	return rate, nil
}

// StaticSource serves a fixed table keyed "FROM/TO". It backs tests and offline development.
type StaticSource map[string]decimal.Decimal

// Rate looks the pair up in the table.
func (s StaticSource) Rate(_ context.Context, from, to money.Currency) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	rate, ok := s[string(from)+"/"+string(to)]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s/%s", ErrUnknownCurrency, from, to)
	}
	return rate, nil
}
