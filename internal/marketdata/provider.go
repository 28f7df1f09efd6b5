// Package marketdata implements MarketDataClient (spec.md §4.6): a
// multi-provider quote fetcher with priority fallback, bulk chunking,
// gap-fill, search, and a scheduled sync pipeline. Grounded on the
// aristath-sentinel pack's internal/clients/yahoo (HTTP shape, cookie
// auth) and bobmcallan-vire's internal/clients/eodhd (rate-limited
// client with functional options), generalized behind a provider
// interface the way the teacher generalizes repositories behind
// internal/repositories/interfaces.go.
package marketdata

import (
	"context"
	"time"

	"github.com/wealthfolio/portfolio-engine/internal/models"
)

// Provider is implemented by each concrete data source (providers/yahoo,
// providers/alphavantage). Every method takes a provider-native symbol,
// resolved ahead of time by internal/marketdata/resolver. Providers
// satisfy this interface structurally; they import models, never this
// package, to avoid an import cycle.
type Provider interface {
	ID() string
	Latest(ctx context.Context, symbol string) (models.ProviderQuote, error)
	History(ctx context.Context, symbol string, start, end time.Time) ([]models.ProviderQuote, error)
	SupportsBulk() bool
	SupportsFx() bool
	BulkChunkSize() int
	HistoryBulk(ctx context.Context, symbols []string, start, end time.Time) (map[string][]models.ProviderQuote, error)
	Search(ctx context.Context, query string) ([]models.SymbolSearchResult, error)
	Profile(ctx context.Context, symbol string) (models.ProviderProfile, error)
}
