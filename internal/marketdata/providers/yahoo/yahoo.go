// Package yahoo implements marketdata.Provider against Yahoo Finance's
// unofficial query API. HTTP shape (User-Agent spoofing, JSON envelope
// unmarshalling into loosely-typed results) is grounded on
// aristath-sentinel/trader-go's internal/clients/yahoo/client.go;
// rate limiting and functional-option construction follow
// bobmcallan-vire's internal/clients/eodhd/client.go. Cookie+crumb
// session auth (which that pack client doesn't need, since it only
// hits the quote endpoint) is added here because history and search
// use the authenticated chart/search endpoints; Profile reads the
// unauthenticated quote endpoint.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	apperrors "github.com/wealthfolio/portfolio-engine/internal/errors"
	"github.com/wealthfolio/portfolio-engine/internal/models"
)

const (
	id            = "yahoo"
	crumbURL      = "https://query2.finance.yahoo.com/v1/test/getcrumb"
	consentURL    = "https://fc.yahoo.com"
	quoteURL      = "https://query1.finance.yahoo.com/v7/finance/quote"
	chartURL      = "https://query1.finance.yahoo.com/v8/finance/chart/%s"
	searchURL     = "https://query1.finance.yahoo.com/v1/finance/search"
	bulkChunkSize = 10
	userAgent     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
)

// Client implements marketdata.Provider for Yahoo Finance.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter

	mu    sync.Mutex
	crumb string
}

// Option configures a Client, following bobmcallan-vire's
// functional-option pattern for provider clients.
type Option func(*Client)

// WithRateLimit bounds requests/sec, normally sourced from the
// ProviderRegistry descriptor's rate_limit_per_sec.
func WithRateLimit(perSec float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

// WithHTTPClient overrides the underlying http.Client (tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient builds a Yahoo provider client.
func NewClient(opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second, Jar: jar},
		limiter:    rate.NewLimiter(rate.Limit(5), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ID() string           { return id }
func (c *Client) SupportsBulk() bool   { return true }
func (c *Client) SupportsFx() bool     { return true }
func (c *Client) BulkChunkSize() int   { return bulkChunkSize }

// ensureCrumb performs the consent-cookie + crumb handshake required by
// the chart and search endpoints, caching the crumb for subsequent calls.
func (c *Client) ensureCrumb(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.crumb != "" {
		return c.crumb, nil
	}

	consentReq, err := http.NewRequestWithContext(ctx, http.MethodGet, consentURL, nil)
	if err != nil {
		return "", err
	}
	consentReq.Header.Set("User-Agent", userAgent)
	if resp, err := c.httpClient.Do(consentReq); err == nil {
		resp.Body.Close()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, crumbURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &apperrors.ErrProvider{Kind: apperrors.KindTransientNetwork, Provider: id, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK || len(body) == 0 {
		return "", &apperrors.ErrProvider{Kind: apperrors.KindUnauthorized, Provider: id, Err: fmt.Errorf("getcrumb status %d", resp.StatusCode)}
	}

	c.crumb = strings.TrimSpace(string(body))
	return c.crumb, nil
}

func (c *Client) get(ctx context.Context, rawURL string, params url.Values, authenticated bool) ([]byte, error) {
	if authenticated {
		crumb, err := c.ensureCrumb(ctx)
		if err != nil {
			return nil, err
		}
		params.Set("crumb", crumb)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := rawURL
	if len(params) > 0 {
		reqURL = rawURL + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindTransientNetwork, Provider: id, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindTransientNetwork, Provider: id, Err: err}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusTooManyRequests:
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindRateLimited, Provider: id, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case http.StatusUnauthorized, http.StatusForbidden:
		c.mu.Lock()
		c.crumb = ""
		c.mu.Unlock()
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindUnauthorized, Provider: id, Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindMalformedResponse, Provider: id, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(body))}
	}
}

type quoteResponseEnvelope struct {
	QuoteResponse struct {
		Result []yahooQuoteResult `json:"result"`
		Error  any                `json:"error"`
	} `json:"quoteResponse"`
}

type yahooQuoteResult struct {
	Symbol               string  `json:"symbol"`
	Currency             string  `json:"currency"`
	RegularMarketPrice   float64 `json:"regularMarketPrice"`
	RegularMarketTime    int64   `json:"regularMarketTime"`
	RegularMarketOpen    float64 `json:"regularMarketOpen"`
	RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
	RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
	RegularMarketVolume  float64 `json:"regularMarketVolume"`
	QuoteType            string  `json:"quoteType"`
	LongName              string `json:"longName"`
	ShortName             string `json:"shortName"`
	FullExchangeName      string `json:"fullExchangeName"`
}

// Latest fetches the current/regular-market price for a single symbol.
func (c *Client) Latest(ctx context.Context, symbol string) (models.ProviderQuote, error) {
	results, err := c.fetchQuotes(ctx, []string{symbol})
	if err != nil {
		return models.ProviderQuote{}, err
	}
	r, ok := results[symbol]
	if !ok {
		return models.ProviderQuote{}, &apperrors.ErrProvider{Kind: apperrors.KindSymbolNotFound, Provider: id, Err: fmt.Errorf("no quote for %s", symbol)}
	}
	return r, nil
}

func (c *Client) fetchQuotes(ctx context.Context, symbols []string) (map[string]models.ProviderQuote, error) {
	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))
	params.Set("fields", "symbol,currency,regularMarketPrice,regularMarketTime,regularMarketOpen,"+
		"regularMarketDayHigh,regularMarketDayLow,regularMarketVolume,quoteType,longName,shortName,fullExchangeName")

	body, err := c.get(ctx, quoteURL, params, false)
	if err != nil {
		return nil, err
	}

	var env quoteResponseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindMalformedResponse, Provider: id, Err: err}
	}
	if env.QuoteResponse.Error != nil {
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindMalformedResponse, Provider: id, Err: fmt.Errorf("%v", env.QuoteResponse.Error)}
	}

	out := make(map[string]models.ProviderQuote, len(env.QuoteResponse.Result))
	for _, r := range env.QuoteResponse.Result {
		price := decimal.NewFromFloat(r.RegularMarketPrice)
		open := decimal.NewFromFloat(r.RegularMarketOpen)
		high := decimal.NewFromFloat(r.RegularMarketDayHigh)
		low := decimal.NewFromFloat(r.RegularMarketDayLow)
		vol := decimal.NewFromFloat(r.RegularMarketVolume)
		ts := time.Unix(r.RegularMarketTime, 0).UTC()
		if r.RegularMarketTime == 0 {
			ts = time.Now().UTC()
		}
		out[r.Symbol] = models.ProviderQuote{
			Symbol: r.Symbol, Timestamp: ts, Close: price,
			Open: &open, High: &high, Low: &low, Volume: &vol,
			Currency: r.Currency,
		}
	}
	return out, nil
}

type chartResponseEnvelope struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency string `json:"currency"`
				Symbol   string `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error any `json:"error"`
	} `json:"chart"`
}

// History fetches daily bars for symbol in [start,end] via the chart
// endpoint.
func (c *Client) History(ctx context.Context, symbol string, start, end time.Time) ([]models.ProviderQuote, error) {
	params := url.Values{}
	params.Set("period1", strconv.FormatInt(start.Unix(), 10))
	params.Set("period2", strconv.FormatInt(end.Add(24*time.Hour).Unix(), 10))
	params.Set("interval", "1d")
	params.Set("events", "div,splits")

	body, err := c.get(ctx, fmt.Sprintf(chartURL, url.PathEscape(symbol)), params, true)
	if err != nil {
		return nil, err
	}

	var env chartResponseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindMalformedResponse, Provider: id, Err: err}
	}
	if env.Chart.Error != nil {
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindSymbolNotFound, Provider: id, Err: fmt.Errorf("%v", env.Chart.Error)}
	}
	if len(env.Chart.Result) == 0 {
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindSymbolNotFound, Provider: id, Err: fmt.Errorf("no chart result for %s", symbol)}
	}

	result := env.Chart.Result[0]
	currency := result.Meta.Currency
	var quotes []models.ProviderQuote
	if len(result.Indicators.Quote) == 0 {
		return quotes, nil
	}
	q := result.Indicators.Quote[0]
	var adj []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	for i, ts := range result.Timestamp {
		if i >= len(q.Close) || q.Close[i] == nil {
			continue
		}
		pq := models.ProviderQuote{
			Symbol:    symbol,
			Timestamp: time.Unix(ts, 0).UTC(),
			Close:     decimal.NewFromFloat(*q.Close[i]),
			Currency:  currency,
		}
		if i < len(q.Open) && q.Open[i] != nil {
			d := decimal.NewFromFloat(*q.Open[i])
			pq.Open = &d
		}
		if i < len(q.High) && q.High[i] != nil {
			d := decimal.NewFromFloat(*q.High[i])
			pq.High = &d
		}
		if i < len(q.Low) && q.Low[i] != nil {
			d := decimal.NewFromFloat(*q.Low[i])
			pq.Low = &d
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			d := decimal.NewFromFloat(*q.Volume[i])
			pq.Volume = &d
		}
		if i < len(adj) && adj[i] != nil {
			d := decimal.NewFromFloat(*adj[i])
			pq.AdjClose = &d
		}
		quotes = append(quotes, pq)
	}
	return quotes, nil
}

// HistoryBulk drives the chart endpoint per symbol (Yahoo's chart API has
// no native multi-symbol form); chunking here is a no-op pass-through,
// since the caller (internal/marketdata) already groups calls into
// BulkChunkSize()-sized batches. Pacing comes only from c.limiter, per
// request.
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

type searchResponseEnvelope struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		ShortName string `json:"shortname"`
		LongName  string `json:"longname"`
		QuoteType string `json:"quoteType"`
		Exchange  string `json:"exchange"`
	} `json:"quotes"`
}

// Search fans a free-text query out to Yahoo's autocomplete search.
func (c *Client) Search(ctx context.Context, query string) ([]models.SymbolSearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("quotesCount", "10")
	params.Set("newsCount", "0")

	body, err := c.get(ctx, searchURL, params, true)
	if err != nil {
		return nil, err
	}
	var env searchResponseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &apperrors.ErrProvider{Kind: apperrors.KindMalformedResponse, Provider: id, Err: err}
	}

	results := make([]models.SymbolSearchResult, 0, len(env.Quotes))
	for _, q := range env.Quotes {
		name := q.LongName
		if name == "" {
			name = q.ShortName
		}
		results = append(results, models.SymbolSearchResult{
			Symbol: q.Symbol, Name: name, Exchange: q.Exchange, Source: models.SourceYahoo,
		})
	}
	return results, nil
}

// Profile returns descriptive metadata for a single symbol, reusing the
// quote endpoint's quoteType/longName/fullExchangeName fields.
func (c *Client) Profile(ctx context.Context, symbol string) (models.ProviderProfile, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("fields", "symbol,currency,quoteType,longName,shortName,fullExchangeName")

	body, err := c.get(ctx, quoteURL, params, false)
	if err != nil {
		return models.ProviderProfile{}, err
	}
	var env quoteResponseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.ProviderProfile{}, &apperrors.ErrProvider{Kind: apperrors.KindMalformedResponse, Provider: id, Err: err}
	}
	if len(env.QuoteResponse.Result) == 0 {
		return models.ProviderProfile{}, &apperrors.ErrProvider{Kind: apperrors.KindSymbolNotFound, Provider: id, Err: fmt.Errorf("no profile for %s", symbol)}
	}
	r := env.QuoteResponse.Result[0]
	name := r.LongName
	if name == "" {
		name = r.ShortName
	}
	return models.ProviderProfile{
		Name: name, QuoteType: r.QuoteType, Exchange: r.FullExchangeName,
		Currency: r.Currency, Source: models.SourceYahoo,
	}, nil
}
