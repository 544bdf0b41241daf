package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"QueryChain/internal/value"
	"QueryChain/pkg/logger"
)

// CurrencyName is the registry name of the currency tool.
const CurrencyName = "currency"

// Rates is an immutable table of exchange rates relative to USD.
type Rates struct {
	table map[string]float64
}

// NewRates copies rates into a Rates table. Codes are upper-cased and
// non-positive rates are dropped.
func NewRates(rates map[string]float64) Rates {
	out := Rates{table: make(map[string]float64, len(rates))}
	for code, rate := range rates {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" || rate <= 0 {
			continue
		}
		out.table[code] = rate
	}
	return out
}

// DefaultRates returns the built-in USD-relative table.
func DefaultRates() Rates {
	return NewRates(map[string]float64{
		"USD": 1.0,
		"EUR": 0.85,
		"GBP": 0.73,
		"JPY": 110.0,
		"CAD": 1.25,
		"AUD": 1.35,
		"CHF": 0.92,
		"CNY": 6.45,
	})
}

// Rate returns the USD-relative rate of code.
func (r Rates) Rate(code string) (float64, bool) {
	rate, ok := r.table[strings.ToUpper(code)]
	return rate, ok
}

// Codes lists supported currency codes in sorted order.
func (r Rates) Codes() []string {
	codes := make([]string, 0, len(r.table))
	for code := range r.table {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// RateSource supplies live conversion rates.
type RateSource interface {
	PairRate(ctx context.Context, from, to string) (float64, error)
}

// Currency converts amounts between currencies. A configured live source is
// consulted first and the static table is used when it fails.
type Currency struct {
	*Tool
	rates  Rates
	live   RateSource
	logger *slog.Logger
}

// CurrencyOption customises the currency tool.
type CurrencyOption func(*Currency)

// WithLiveRates enables a live rate source.
func WithLiveRates(source RateSource) CurrencyOption {
	return func(c *Currency) { c.live = source }
}

// NewCurrency builds the currency tool over rates.
func NewCurrency(rates Rates, opts ...CurrencyOption) *Currency {
	c := &Currency{rates: rates, logger: logger.Named("currency")}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.Tool = NewTool(CurrencyName, map[string]Operation{
		"currency_convert": c.convert,
	})
	return c
}

func (c *Currency) convert(ctx context.Context, args Args) (value.Value, error) {
	amount, err := args.Number("amount")
	if err != nil {
		return value.Value{}, err
	}
	from, err := args.Text("from_currency")
	if err != nil {
		return value.Value{}, err
	}
	to, err := args.Text("to_currency")
	if err != nil {
		return value.Value{}, err
	}
	result, err := c.Convert(ctx, amount, from, to)
	if err != nil {
		return value.Value{}, err
	}
	return value.Money(result, to), nil
}

// Convert returns amount expressed in to, rounded to two decimals.
func (c *Currency) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, Fail(KindInvalidInput, "amount cannot be negative")
	}
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if err := validateCode(from); err != nil {
		return 0, err
	}
	if err := validateCode(to); err != nil {
		return 0, err
	}
	if from == to {
		return round2(amount), nil
	}

	if c.live != nil {
		rate, err := c.live.PairRate(ctx, from, to)
		if err == nil {
			return round2(amount * rate), nil
		}
		c.logger.Warn("live rate unavailable, using static table", "from", from, "to", to, "error", err)
	}

	fromRate, ok := c.rates.Rate(from)
	if !ok {
		return 0, Fail(KindUnsupported, "unsupported currency: %s. Supported currencies: %s", from, strings.Join(c.rates.Codes(), ", "))
	}
	toRate, ok := c.rates.Rate(to)
	if !ok {
		return 0, Fail(KindUnsupported, "unsupported currency: %s. Supported currencies: %s", to, strings.Join(c.rates.Codes(), ", "))
	}
	return round2(amount / fromRate * toRate), nil
}

func validateCode(code string) error {
	if len(code) != 3 {
		return Fail(KindInvalidInput, "currency codes must be 3 letters (e.g., USD, EUR), got %q", code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return Fail(KindInvalidInput, "currency codes must contain only letters, got %q", code)
		}
	}
	return nil
}

func round2(n float64) float64 {
	return math.Round(n*100) / 100
}

// ExchangeRateAPI fetches pair rates from an exchangerate-api style endpoint:
// GET {base}/{key}/pair/{from}/{to} → {"result":"success","conversion_rate":0.85}.
type ExchangeRateAPI struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewExchangeRateAPI creates a live source with a short timeout.
func NewExchangeRateAPI(baseURL, apiKey string, timeout time.Duration) *ExchangeRateAPI {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://v6.exchangerate-api.com/v6"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ExchangeRateAPI{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// PairRate implements RateSource.
func (a *ExchangeRateAPI) PairRate(ctx context.Context, from, to string) (float64, error) {
	if strings.TrimSpace(a.APIKey) == "" {
		return 0, Fail(KindUnavailable, "exchange rate api key not configured")
	}
	endpoint := fmt.Sprintf("%s/%s/pair/%s/%s", a.BaseURL, a.APIKey, from, to)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	client := a.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, Fail(KindUnavailable, "request exchange rate: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, Fail(KindUnavailable, "exchange rate api returned status %d", resp.StatusCode)
	}

	var payload struct {
		Result         string  `json:"result"`
		ConversionRate float64 `json:"conversion_rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, Fail(KindUnavailable, "decode exchange rate: %v", err)
	}
	if payload.Result != "success" || payload.ConversionRate <= 0 {
		return 0, Fail(KindUnavailable, "exchange rate api result %q", payload.Result)
	}
	return payload.ConversionRate, nil
}
