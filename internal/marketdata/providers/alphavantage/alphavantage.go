// Package alphavantage implements marketdata.Provider against the
// AlphaVantage REST API. Client shape (functional options, rate
// limiter, typed APIError) is grounded on bobmcallan-vire's
// internal/clients/eodhd/client.go; this provider adds AlphaVantage's
// quota-body sniffing (a 200 OK response whose JSON body carries a
// "Note"/"Information" field instead of data, per spec.md §4.6).
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	apperrors "github.com/wealthfolio/portfolio-engine/internal/errors"
	"github.com/wealthfolio/portfolio-engine/internal/models"
)

const (
	id             = "alphavantage"
	baseURL        = "https://www.alphavantage.co/query"
	bulkChunkSize  = 1 // AlphaVantage has no multi-symbol quote endpoint
	minRequestGap  = 1500 * time.Millisecond
)

// Client implements marketdata.Provider for AlphaVantage.
type Client struct {
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client (tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient builds an AlphaVantage provider client, pre-paced at the
// free tier's ≥1.5s-between-requests requirement (spec.md §4.6).
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(minRequestGap), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ID() string         { return id }
func (c *Client) SupportsBulk() bool { return false }
func (c *Client) SupportsFx() bool   { return true }
func (c *Client) BulkChunkSize() int { return bulkChunkSize }

// quotaBodyMarkers are the JSON keys AlphaVantage uses to report a rate
// limit or subscription note inside an otherwise-200 response. Note and
// Information map to KindQuotaExceeded, which ErrProvider.Retryable
// reports as not retryable, so the caller moves on to the next provider.
type quotaBodyMarkers struct {
	Note        string `json:"Note"`
	Information string `json:"Information"`
	ErrorMsg    string `json:"Error Message"`
}

func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params.Set("apikey", c.apiKey)
	reqURL := baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindTransientNetwork, Provider: id, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindTransientNetwork, Provider: id, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindRateLimited, Provider: id, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindMalformedResponse, Provider: id, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var markers quotaBodyMarkers
	_ = json.Unmarshal(body, &markers)
	switch {
	case markers.Note != "":
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindQuotaExceeded, Provider: id, Err: fmt.Errorf("%s", markers.Note)}
	case markers.Information != "":
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindQuotaExceeded, Provider: id, Err: fmt.Errorf("%s", markers.Information)}
	case markers.ErrorMsg != "":
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindSymbolNotFound, Provider: id, Err: fmt.Errorf("%s", markers.ErrorMsg)}
	}

	return body, nil
}

type globalQuoteEnvelope struct {
	GlobalQuote struct {
		Symbol string `json:"01. symbol"`
		Price  string `json:"05. price"`
		Volume string `json:"06. volume"`
	} `json:"Global Quote"`
}

// Latest fetches AlphaVantage's GLOBAL_QUOTE for symbol. The endpoint
// doesn't report currency, so callers must resolve it from the asset's
// own record; Currency is left blank here.
func (c *Client) Latest(ctx context.Context, symbol string) (models.ProviderQuote, error) {
	params := url.Values{"function": {"GLOBAL_QUOTE"}, "symbol": {symbol}}
	body, err := c.get(ctx, params)
	if err != nil {
		return models.ProviderQuote{}, err
	}

	var env globalQuoteEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.ProviderQuote{}, &apperrors.ErrProvider{Kind: apperrors.KindMalformedResponse, Provider: id, Err: err}
	}
	if env.GlobalQuote.Symbol == "" {
		return models.ProviderQuote{}, &apperrors.ErrProvider{Kind: apperrors.KindSymbolNotFound, Provider: id, Err: fmt.Errorf("no quote for %s", symbol)}
	}

	price, err := decimal.NewFromString(env.GlobalQuote.Price)
	if err != nil {
		return models.ProviderQuote{}, &apperrors.ErrProvider{Kind: apperrors.KindMalformedResponse, Provider: id, Err: err}
	}
	pq := models.ProviderQuote{Symbol: symbol, Timestamp: time.Now().UTC(), Close: price}
	if vol, err := decimal.NewFromString(env.GlobalQuote.Volume); err == nil {
		pq.Volume = &vol
	}
	return pq, nil
}

type timeSeriesEnvelope struct {
	TimeSeries map[string]struct {
		Open   string `json:"1. open"`
		High   string `json:"2. high"`
		Low    string `json:"3. low"`
		Close  string `json:"4. close"`
		Volume string `json:"5. volume"`
	} `json:"Time Series (Daily)"`
}

// History fetches AlphaVantage's daily time series, filtered to [start,end].
func (c *Client) History(ctx context.Context, symbol string, start, end time.Time) ([]models.ProviderQuote, error) {
	outputSize := "compact" // last 100 days
	if end.Sub(start) > 90*24*time.Hour {
		outputSize = "full"
	}
	params := url.Values{"function": {"TIME_SERIES_DAILY"}, "symbol": {symbol}, "outputsize": {outputSize}}
	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}

	var env timeSeriesEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindMalformedResponse, Provider: id, Err: err}
	}
	if len(env.TimeSeries) == 0 {
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindSymbolNotFound, Provider: id, Err: fmt.Errorf("no time series for %s", symbol)}
	}

	days := make([]string, 0, len(env.TimeSeries))
	for d := range env.TimeSeries {
		days = append(days, d)
	}
	sort.Strings(days)

	var quotes []models.ProviderQuote
	for _, d := range days {
		day, err := time.Parse("2006-01-02", d)
		if err != nil || day.Before(start) || day.After(end) {
			continue
		}
		bar := env.TimeSeries[d]
		closePrice, err := decimal.NewFromString(bar.Close)
		if err != nil {
			continue
		}
		pq := models.ProviderQuote{Symbol: symbol, Timestamp: day, Close: closePrice}
		if v, err := decimal.NewFromString(bar.Open); err == nil {
			pq.Open = &v
		}
		if v, err := decimal.NewFromString(bar.High); err == nil {
			pq.High = &v
		}
		if v, err := decimal.NewFromString(bar.Low); err == nil {
			pq.Low = &v
		}
		if v, err := decimal.NewFromString(bar.Volume); err == nil {
			pq.Volume = &v
		}
		quotes = append(quotes, pq)
	}
	return quotes, nil
}

// HistoryBulk drives History sequentially since AlphaVantage has no bulk
// endpoint; the caller paces calls at minRequestGap via c.limiter.
func (c *Client) HistoryBulk(ctx context.Context, symbols []string, start, end time.Time) (map[string][]models.ProviderQuote, error) {
	out := make(map[string][]models.ProviderQuote, len(symbols))
	for _, sym := range symbols {
		quotes, err := c.History(ctx, sym, start, end)
		if err != nil {
			return out, err
		}
		out[sym] = quotes
	}
	return out, nil
}

type symbolSearchEnvelope struct {
	BestMatches []struct {
		Symbol   string `json:"1. symbol"`
		Name     string `json:"2. name"`
		Type     string `json:"3. type"`
		Currency string `json:"8. currency"`
	} `json:"bestMatches"`
}

// Search fans out to AlphaVantage's SYMBOL_SEARCH endpoint.
func (c *Client) Search(ctx context.Context, query string) ([]models.SymbolSearchResult, error) {
	params := url.Values{"function": {"SYMBOL_SEARCH"}, "keywords": {query}}
	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}
	var env symbolSearchEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindMalformedResponse, Provider: id, Err: err}
	}

	results := make([]models.SymbolSearchResult, 0, len(env.BestMatches))
	for _, m := range env.BestMatches {
		results = append(results, models.SymbolSearchResult{
			Symbol: m.Symbol, Name: m.Name, Currency: m.Currency, Source: models.SourceAlphaVantage,
		})
	}
	return results, nil
}

type overviewEnvelope struct {
	Name          string `json:"Name"`
	AssetType     string `json:"AssetType"`
	Currency      string `json:"Currency"`
	Exchange      string `json:"Exchange"`
}

// Profile fetches AlphaVantage's OVERVIEW endpoint (equities only; empty
// for most ETFs/funds, which is why MarketDataClient.Profile falls
// through to the next provider on an empty result).
func (c *Client) Profile(ctx context.Context, symbol string) (models.ProviderProfile, error) {
	params := url.Values{"function": {"OVERVIEW"}, "symbol": {symbol}}
	body, err := c.get(ctx, params)
	if err != nil {
		return models.ProviderProfile{}, err
	}
	var env overviewEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.ProviderProfile{}, &apperrors.ErrProvider{Kind: apperrors.KindMalformedResponse, Provider: id, Err: err}
	}
	if env.Name == "" {
		return models.ProviderProfile{}, &apperrors.ErrProvider{Kind: apperrors.KindSymbolNotFound, Provider: id, Err: fmt.Errorf("no overview for %s", symbol)}
	}
	return models.ProviderProfile{
		Name: env.Name, QuoteType: env.AssetType, Exchange: env.Exchange,
		Currency: env.Currency, Source: models.SourceAlphaVantage,
	}, nil
}
