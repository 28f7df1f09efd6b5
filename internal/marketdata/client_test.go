package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wealthfolio/portfolio-engine/internal/errors"
	"github.com/wealthfolio/portfolio-engine/internal/marketdata/registry"
	"github.com/wealthfolio/portfolio-engine/internal/marketdata/resolver"
	"github.com/wealthfolio/portfolio-engine/internal/models"
)

// fakeProvider is a scriptable marketdata.Provider for client tests; no
// HTTP, no rate limiting.
type fakeProvider struct {
	id           string
	supportsBulk bool
	chunkSize    int
	latestErr    error
	latestQuote  models.ProviderQuote
	historyErr   error
	historyData  []models.ProviderQuote
	searchData   []models.SymbolSearchResult
	profileData  models.ProviderProfile
	calls        int
}

func (f *fakeProvider) ID() string         { return f.id }
func (f *fakeProvider) SupportsBulk() bool { return f.supportsBulk }
func (f *fakeProvider) SupportsFx() bool   { return false }
func (f *fakeProvider) BulkChunkSize() int { return f.chunkSize }

func (f *fakeProvider) Latest(ctx context.Context, symbol string) (models.ProviderQuote, error) {
	f.calls++
	if f.latestErr != nil {
		return models.ProviderQuote{}, f.latestErr
	}
	return f.latestQuote, nil
}

func (f *fakeProvider) History(ctx context.Context, symbol string, start, end time.Time) ([]models.ProviderQuote, error) {
	f.calls++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.historyData, nil
}

func (f *fakeProvider) HistoryBulk(ctx context.Context, symbols []string, start, end time.Time) (map[string][]models.ProviderQuote, error) {
	f.calls++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	out := make(map[string][]models.ProviderQuote, len(symbols))
	for _, s := range symbols {
		out[s] = f.historyData
	}
	return out, nil
}

func (f *fakeProvider) Search(ctx context.Context, query string) ([]models.SymbolSearchResult, error) {
	return f.searchData, nil
}

func (f *fakeProvider) Profile(ctx context.Context, symbol string) (models.ProviderProfile, error) {
	return f.profileData, nil
}

func newTestClient(t *testing.T, providers map[string]Provider, descs ...registry.Descriptor) *Client {
	t.Helper()
	reg := registry.New(descs...)
	res := resolver.New()
	return New(reg, res, nil, nil, providers)
}

func TestLatestFallsBackToSecondProviderOnError(t *testing.T) {
	primary := &fakeProvider{id: "yahoo", latestErr: &apperrors.ErrProvider{Kind: apperrors.KindSymbolNotFound}}
	backup := &fakeProvider{id: "alphavantage", latestQuote: models.ProviderQuote{Symbol: "AAPL", Timestamp: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), Close: decimal.NewFromInt(100), Currency: "USD"}}

	c := newTestClient(t, map[string]Provider{"yahoo": primary, "alphavantage": backup},
		registry.Descriptor{ID: "yahoo", Enabled: true, Priority: 0},
		registry.Descriptor{ID: "alphavantage", Enabled: true, Priority: 1},
	)

	q, err := c.Latest(context.Background(), "SEC:AAPL", "USD")
	require.NoError(t, err)
	assert.Equal(t, models.SourceAlphaVantage, q.Source)
	assert.True(t, q.Close.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, backup.calls)
}

func TestLatestExhaustsAllProvidersReturnsError(t *testing.T) {
	a := &fakeProvider{id: "yahoo", latestErr: &apperrors.ErrProvider{Kind: apperrors.KindSymbolNotFound}}
	b := &fakeProvider{id: "alphavantage", latestErr: &apperrors.ErrProvider{Kind: apperrors.KindSymbolNotFound}}

	c := newTestClient(t, map[string]Provider{"yahoo": a, "alphavantage": b},
		registry.Descriptor{ID: "yahoo", Enabled: true, Priority: 0},
		registry.Descriptor{ID: "alphavantage", Enabled: true, Priority: 1},
	)

	_, err := c.Latest(context.Background(), "SEC:AAPL", "USD")
	require.Error(t, err)
}

func TestLatestSkipsDisabledProvider(t *testing.T) {
	disabled := &fakeProvider{id: "yahoo", latestQuote: models.ProviderQuote{Close: decimal.NewFromInt(1)}}
	enabled := &fakeProvider{id: "alphavantage", latestQuote: models.ProviderQuote{Close: decimal.NewFromInt(2), Currency: "USD"}}

	c := newTestClient(t, map[string]Provider{"yahoo": disabled, "alphavantage": enabled},
		registry.Descriptor{ID: "yahoo", Enabled: false, Priority: 0},
		registry.Descriptor{ID: "alphavantage", Enabled: true, Priority: 1},
	)

	q, err := c.Latest(context.Background(), "SEC:AAPL", "USD")
	require.NoError(t, err)
	assert.True(t, q.Close.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, 0, disabled.calls)
}

func TestHistoryBulkChunksBulkCapableProvider(t *testing.T) {
	prov := &fakeProvider{
		id: "alphavantage", supportsBulk: true, chunkSize: 2,
		historyData: []models.ProviderQuote{{Timestamp: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), Close: decimal.NewFromInt(10), Currency: "USD"}},
	}
	c := newTestClient(t, map[string]Provider{"alphavantage": prov},
		registry.Descriptor{ID: "alphavantage", Enabled: true, Priority: 0, SupportsBulk: true},
	)

	pairs := []AssetCurrencyPair{
		{AssetID: "SEC:AAPL", FallbackCurrency: "USD"},
		{AssetID: "SEC:MSFT", FallbackCurrency: "USD"},
		{AssetID: "SEC:GOOG", FallbackCurrency: "USD"},
	}
	quotes, failures := c.HistoryBulk(context.Background(), pairs, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC))
	assert.Empty(t, failures)
	assert.Len(t, quotes, 3)
	// chunkSize=2 over 3 pairs means two HistoryBulk calls.
	assert.Equal(t, 2, prov.calls)
}

func TestHistoryBulkFallsThroughOnEmptyResult(t *testing.T) {
	empty := &fakeProvider{id: "yahoo", supportsBulk: true, chunkSize: 10}
	fallback := &fakeProvider{
		id: "alphavantage",
		historyData: []models.ProviderQuote{{Timestamp: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), Close: decimal.NewFromInt(5), Currency: "USD"}},
	}
	c := newTestClient(t, map[string]Provider{"yahoo": empty, "alphavantage": fallback},
		registry.Descriptor{ID: "yahoo", Enabled: true, Priority: 0, SupportsBulk: true},
		registry.Descriptor{ID: "alphavantage", Enabled: true, Priority: 1},
	)

	pairs := []AssetCurrencyPair{{AssetID: "SEC:AAPL", FallbackCurrency: "USD"}}
	quotes, failures := c.HistoryBulk(context.Background(), pairs, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC))
	assert.Empty(t, failures)
	require.Len(t, quotes, 1)
	assert.Equal(t, models.SourceAlphaVantage, quotes[0].Source)
}

func TestCurrencyNormalizationDividesMinorUnitPrices(t *testing.T) {
	prov := &fakeProvider{id: "yahoo", latestQuote: models.ProviderQuote{
		Timestamp: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		Close:     decimal.NewFromInt(15050), // 150.50 GBP in pence
		Currency:  "GBp",
	}}
	c := newTestClient(t, map[string]Provider{"yahoo": prov}, registry.Descriptor{ID: "yahoo", Enabled: true, Priority: 0})

	q, err := c.Latest(context.Background(), "SEC:VOD", "GBP")
	require.NoError(t, err)
	assert.Equal(t, "GBP", q.Currency)
	assert.True(t, q.Close.Equal(decimal.NewFromFloat(150.50)), "got %s", q.Close.String())
}

func TestSearchDedupesAcrossProviders(t *testing.T) {
	a := &fakeProvider{id: "yahoo", searchData: []models.SymbolSearchResult{{Symbol: "AAPL", Source: models.SourceYahoo}}}
	b := &fakeProvider{id: "alphavantage", searchData: []models.SymbolSearchResult{{Symbol: "AAPL", Source: models.SourceYahoo}, {Symbol: "AAPL", Source: models.SourceAlphaVantage}}}
	c := newTestClient(t, map[string]Provider{"yahoo": a, "alphavantage": b},
		registry.Descriptor{ID: "yahoo", Enabled: true, Priority: 0},
		registry.Descriptor{ID: "alphavantage", Enabled: true, Priority: 1},
	)

	results, err := c.Search(context.Background(), "apple")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
