package marketdata

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/wealthfolio/portfolio-engine/internal/errors"
	"github.com/wealthfolio/portfolio-engine/internal/marketdata/registry"
	"github.com/wealthfolio/portfolio-engine/internal/marketdata/resolver"
	"github.com/wealthfolio/portfolio-engine/internal/models"
	"github.com/wealthfolio/portfolio-engine/internal/quotestore"
)

// QuoteWriter is the subset of quotestore.Store the client writes
// through; accepting the interface rather than the concrete type keeps
// this package testable without a database.
type QuoteWriter interface {
	Upsert(ctx context.Context, quotes []models.Quote) error
}

// QuoteReader is the subset of quotestore.Store RangeFilled and Sync
// read from.
type QuoteReader interface {
	Range(ctx context.Context, assetID string, start, end time.Time, source *models.QuoteSource) ([]models.Quote, error)
	Bounds(ctx context.Context, assetIDs []string, source models.QuoteSource) (map[string]quotestore.DayBounds, error)
}

// AssetCurrencyPair is a unit of work for HistoryBulk/Sync: an asset id
// paired with the currency to stamp on a quote when a provider can't
// report one of its own (e.g. AlphaVantage's GLOBAL_QUOTE).
type AssetCurrencyPair struct {
	AssetID          string
	FallbackCurrency string
}

// SyncTarget is one asset the sync planner wants refreshed, with the
// earliest date history is actually needed from (spec.md §4.6: driven
// by the earliest held lot or alternative-asset valuation date).
type SyncTarget struct {
	AssetID              string
	FallbackCurrency     string
	EarliestRequiredDate time.Time
}

// SyncPlanner supplies Sync with the assets that need data; callers
// typically implement this over AssetCatalog + ActivityStore.
type SyncPlanner interface {
	AssetsNeedingData(ctx context.Context) ([]SyncTarget, error)
}

var sourceByProvider = map[string]models.QuoteSource{
	"yahoo":        models.SourceYahoo,
	"alphavantage": models.SourceAlphaVantage,
}

// Client is MarketDataClient (spec.md §4.6): priority-ordered fallback
// across providers, bulk chunking, gap-filled ranges, and a sync
// pipeline, grounded on the teacher's multi-client fallback shape in
// internal/services/price_service.go generalized from a fixed two-client
// list to an arbitrary ProviderRegistry-driven set.
type Client struct {
	registry  *registry.Registry
	resolver  *resolver.Resolver
	quotes    QuoteWriter
	reader    QuoteReader
	providers map[string]Provider
}

// New wires a Client from its collaborators. providers is keyed by
// provider id (matching registry.Descriptor.ID).
func New(reg *registry.Registry, res *resolver.Resolver, writer QuoteWriter, reader QuoteReader, providers map[string]Provider) *Client {
	return &Client{registry: reg, resolver: res, quotes: writer, reader: reader, providers: providers}
}

func sourceFor(providerID string) models.QuoteSource {
	if s, ok := sourceByProvider[providerID]; ok {
		return s
	}
	return models.QuoteSource(providerID)
}

func toQuote(assetID string, pq models.ProviderQuote, providerID, fallbackCurrency, currencyHint string) models.Quote {
	currency := pq.Currency
	if currency == "" {
		currency = currencyHint
	}
	if currency == "" {
		currency = fallbackCurrency
	}
	q := models.Quote{
		AssetID:   assetID,
		Timestamp: pq.Timestamp,
		Source:    sourceFor(providerID),
		Open:      pq.Open,
		High:      pq.High,
		Low:       pq.Low,
		Close:     pq.Close,
		AdjClose:  pq.AdjClose,
		Volume:    pq.Volume,
		Currency:  currency,
	}
	applyCurrencyNormalization(&q)
	q.NormalizeDay()
	return q
}

// withRetry retries a provider call up to 3 attempts total for
// retryable ErrProvider kinds (RateLimited/TransientNetwork), per
// spec.md §4.6.
func withRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	err := backoff.Retry(func() error {
		var err error
		result, err = fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if provErr, ok := err.(*apperrors.ErrProvider); ok && provErr.Retryable() {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	if err != nil {
		return result, lastErr
	}
	return result, nil
}

// Latest tries each enabled provider in priority order, returning the
// first successful quote.
func (c *Client) Latest(ctx context.Context, assetID, fallbackCurrency string) (models.Quote, error) {
	var lastErr error
	for _, desc := range c.registry.Enabled() {
		prov, ok := c.providers[desc.ID]
		if !ok {
			continue
		}
		resolved, ok := c.resolver.Resolve(assetID, desc.ID)
		if !ok {
			continue
		}
		pq, err := withRetry(ctx, func() (models.ProviderQuote, error) { return prov.Latest(ctx, resolved.ProviderSymbol) })
		if err != nil {
			lastErr = err
			continue
		}
		return toQuote(assetID, pq, desc.ID, fallbackCurrency, resolved.CurrencyHint), nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no provider resolved %s", assetID)
	}
	return models.Quote{}, &apperrors.ErrProvider{Kind: apperrors.KindSymbolNotFound, Provider: "none", Err: lastErr}
}

// History tries each enabled provider in priority order, returning the
// first successful history window.
func (c *Client) History(ctx context.Context, assetID string, start, end time.Time, fallbackCurrency string) ([]models.Quote, error) {
	var lastErr error
	for _, desc := range c.registry.Enabled() {
		prov, ok := c.providers[desc.ID]
		if !ok {
			continue
		}
		resolved, ok := c.resolver.Resolve(assetID, desc.ID)
		if !ok {
			continue
		}
		pqs, err := withRetry(ctx, func() ([]models.ProviderQuote, error) { return prov.History(ctx, resolved.ProviderSymbol, start, end) })
		if err != nil {
			lastErr = err
			continue
		}
		quotes := make([]models.Quote, 0, len(pqs))
		for _, pq := range pqs {
			quotes = append(quotes, toQuote(assetID, pq, desc.ID, fallbackCurrency, resolved.CurrencyHint))
		}
		return quotes, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no provider resolved %s", assetID)
	}
	return nil, &apperrors.ErrProvider{Kind: apperrors.KindSymbolNotFound, Provider: "none", Err: lastErr}
}

type resolvedPair struct {
	pair     AssetCurrencyPair
	resolved resolver.Resolved
}

// HistoryBulk drains pairs across providers in priority order: a
// bulk-capable provider receives chunked requests of its own
// BulkChunkSize; a non-bulk provider is driven sequentially. Assets a
// provider can't resolve or returns no data for fall through to the
// next provider; assets exhausted across every provider are reported
// as failures rather than erroring the whole call.
func (c *Client) HistoryBulk(ctx context.Context, pairs []AssetCurrencyPair, start, end time.Time) ([]models.Quote, []models.SyncFailure) {
	var allQuotes []models.Quote
	remaining := pairs

	for _, desc := range c.registry.Enabled() {
		if len(remaining) == 0 {
			break
		}
		prov, ok := c.providers[desc.ID]
		if !ok {
			continue
		}

		var resolvedPairs []resolvedPair
		var next []AssetCurrencyPair
		for _, p := range remaining {
			resolved, ok := c.resolver.Resolve(p.AssetID, desc.ID)
			if !ok {
				next = append(next, p)
				continue
			}
			resolvedPairs = append(resolvedPairs, resolvedPair{pair: p, resolved: resolved})
		}

		if desc.SupportsBulk {
			chunkSize := prov.BulkChunkSize()
			if chunkSize < 1 {
				chunkSize = 1
			}
			for i := 0; i < len(resolvedPairs); i += chunkSize {
				hi := i + chunkSize
				if hi > len(resolvedPairs) {
					hi = len(resolvedPairs)
				}
				chunk := resolvedPairs[i:hi]
				symbols := make([]string, len(chunk))
				for j, cp := range chunk {
					symbols[j] = cp.resolved.ProviderSymbol
				}
				results, err := withRetry(ctx, func() (map[string][]models.ProviderQuote, error) {
					return prov.HistoryBulk(ctx, symbols, start, end)
				})
				if err != nil {
					for _, cp := range chunk {
						next = append(next, cp.pair)
					}
					continue
				}
				for _, cp := range chunk {
					pqs, ok := results[cp.resolved.ProviderSymbol]
					if !ok || len(pqs) == 0 {
						next = append(next, cp.pair)
						continue
					}
					for _, pq := range pqs {
						allQuotes = append(allQuotes, toQuote(cp.pair.AssetID, pq, desc.ID, cp.pair.FallbackCurrency, cp.resolved.CurrencyHint))
					}
				}
			}
		} else {
			for _, cp := range resolvedPairs {
				pqs, err := withRetry(ctx, func() ([]models.ProviderQuote, error) {
					return prov.History(ctx, cp.resolved.ProviderSymbol, start, end)
				})
				if err != nil || len(pqs) == 0 {
					next = append(next, cp.pair)
					continue
				}
				for _, pq := range pqs {
					allQuotes = append(allQuotes, toQuote(cp.pair.AssetID, pq, desc.ID, cp.pair.FallbackCurrency, cp.resolved.CurrencyHint))
				}
			}
		}

		remaining = next
	}

	failures := make([]models.SyncFailure, 0, len(remaining))
	for _, p := range remaining {
		failures = append(failures, models.SyncFailure{AssetID: p.AssetID, Reason: "no provider returned data"})
	}
	return allQuotes, failures
}

// RangeFilled returns a dense per-day series for every asset id across
// [start,end], carrying the last actual close forward on days with no
// provider data (weekends, holidays) — spec.md §4.6's gap-fill
// algorithm. It reads stored quotes only; callers are expected to have
// run Sync/HistoryBulk first so a seed exists.
func (c *Client) RangeFilled(ctx context.Context, assetIDs []string, start, end time.Time) ([]models.Quote, error) {
	seedStart := start.AddDate(-10, 0, 0)
	var out []models.Quote

	for _, assetID := range assetIDs {
		actual, err := c.reader.Range(ctx, assetID, seedStart, end, nil)
		if err != nil {
			return nil, fmt.Errorf("range filled seed for %s: %w", assetID, err)
		}

		byDay := make(map[string]models.Quote, len(actual))
		for _, q := range actual {
			byDay[q.Day.Format("2006-01-02")] = q
		}

		var lastKnown *models.Quote
		for i := range actual {
			if !actual[i].Day.After(start) {
				q := actual[i]
				lastKnown = &q
			}
		}

		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			key := d.Format("2006-01-02")
			if q, ok := byDay[key]; ok {
				cp := q
				lastKnown = &cp
				out = append(out, q)
				continue
			}
			if lastKnown == nil {
				continue
			}
			synthetic := *lastKnown
			synthetic.AssetID = assetID
			synthetic.Timestamp = d
			synthetic.Day = d
			synthetic.ID = models.QuoteID(assetID, d, synthetic.Source)
			out = append(out, synthetic)
		}
	}
	return out, nil
}

// Search fans out to every enabled provider and de-dupes by
// (symbol, source).
func (c *Client) Search(ctx context.Context, query string) ([]models.SymbolSearchResult, error) {
	seen := make(map[string]bool)
	var out []models.SymbolSearchResult
	var lastErr error
	for _, desc := range c.registry.Enabled() {
		prov, ok := c.providers[desc.ID]
		if !ok {
			continue
		}
		results, err := prov.Search(ctx, query)
		if err != nil {
			lastErr = err
			continue
		}
		for _, r := range results {
			key := string(r.Source) + ":" + r.Symbol
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, r)
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// Profile returns the first provider's non-empty profile for assetID,
// in priority order.
func (c *Client) Profile(ctx context.Context, assetID string) (models.ProviderProfile, error) {
	var lastErr error
	for _, desc := range c.registry.Enabled() {
		prov, ok := c.providers[desc.ID]
		if !ok {
			continue
		}
		resolved, ok := c.resolver.Resolve(assetID, desc.ID)
		if !ok {
			continue
		}
		profile, err := prov.Profile(ctx, resolved.ProviderSymbol)
		if err != nil {
			lastErr = err
			continue
		}
		if profile.Name == "" {
			continue
		}
		return profile, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no profile found for %s", assetID)
	}
	return models.ProviderProfile{}, &apperrors.ErrProvider{Kind: apperrors.KindSymbolNotFound, Provider: "none", Err: lastErr}
}

// Sync plans and executes a refresh for every asset planner reports,
// batching assets that share an effective start date to minimize
// provider calls, and persisting quotes through QuoteWriter as each
// batch completes (spec.md §4.6).
func (c *Client) Sync(ctx context.Context, mode models.SyncMode, planner SyncPlanner) (models.SyncReport, error) {
	started := time.Now().UTC()
	report := models.SyncReport{Mode: mode.Kind, StartedAt: started}

	targets, err := planner.AssetsNeedingData(ctx)
	if err != nil {
		return report, fmt.Errorf("sync planning: %w", err)
	}

	if mode.Kind == models.SyncForceSymbols {
		allow := make(map[string]bool, len(mode.ForceSymbols))
		for _, s := range mode.ForceSymbols {
			allow[s] = true
		}
		filtered := targets[:0]
		for _, t := range targets {
			if allow[t.AssetID] {
				filtered = append(filtered, t)
			}
		}
		targets = filtered
	}

	today := started
	effective := make(map[string]time.Time, len(targets))
	if mode.Kind == models.SyncIncremental {
		assetIDs := make([]string, len(targets))
		for i, t := range targets {
			assetIDs[i] = t.AssetID
		}
		primarySource := models.SourceManual
		if enabled := c.registry.Enabled(); len(enabled) > 0 {
			primarySource = sourceFor(enabled[0].ID)
		}
		bounds, err := c.reader.Bounds(ctx, assetIDs, primarySource)
		if err != nil {
			return report, fmt.Errorf("sync bounds: %w", err)
		}
		for _, t := range targets {
			start := t.EarliestRequiredDate
			if b, ok := bounds[t.AssetID]; ok {
				next := b.MaxDay.AddDate(0, 0, 1)
				if next.After(start) {
					start = next
				}
			}
			effective[t.AssetID] = start
		}
	} else {
		for _, t := range targets {
			effective[t.AssetID] = t.EarliestRequiredDate
		}
	}

	batches := make(map[string][]AssetCurrencyPair)
	for _, t := range targets {
		key := effective[t.AssetID].Format("2006-01-02")
		batches[key] = append(batches[key], AssetCurrencyPair{AssetID: t.AssetID, FallbackCurrency: t.FallbackCurrency})
	}

	batchKeys := make([]string, 0, len(batches))
	for k := range batches {
		batchKeys = append(batchKeys, k)
	}
	sort.Strings(batchKeys)

	report.AssetsPlanned = len(targets)
	for _, key := range batchKeys {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		start, _ := time.Parse("2006-01-02", key)
		quotes, failures := c.HistoryBulk(ctx, batches[key], start, today)
		if len(quotes) > 0 {
			if err := c.quotes.Upsert(ctx, quotes); err != nil {
				return report, fmt.Errorf("sync upsert: %w", err)
			}
		}
		report.QuotesWritten += len(quotes)
		report.Failures = append(report.Failures, failures...)
	}

	report.FinishedAt = time.Now().UTC()
	return report, nil
}
