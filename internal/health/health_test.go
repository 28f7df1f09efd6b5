package health

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wealthfolio/portfolio-engine/internal/models"
)

func mustDay(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestTradingDaysBetweenSkipsWeekends(t *testing.T) {
	// Friday -> Monday is one trading day, not three.
	require.Equal(t, 1, tradingDaysBetween(mustDay("2024-05-31"), mustDay("2024-06-03")))
	require.Equal(t, 0, tradingDaysBetween(mustDay("2024-06-03"), mustDay("2024-06-03")))
	require.Equal(t, 5, tradingDaysBetween(mustDay("2024-05-31"), mustDay("2024-06-07")))
}

func TestPriceStalenessWarnsBelowCriticalThreshold(t *testing.T) {
	m := NewDefault()
	now := mustDay("2024-06-04") // Tuesday: 2 trading days since Friday's close, past warning but below critical
	in := Inputs{
		TotalPortfolioValueBase: decimal.NewFromInt(10000),
		Holdings: []HoldingInfo{
			{AssetID: "SEC:AAPL:XNAS", MarketValueBase: decimal.NewFromInt(1000), UsesMarketPricing: true},
		},
		LatestQuoteDay: map[string]time.Time{"SEC:AAPL:XNAS": mustDay("2024-05-31")},
	}

	issues := m.RunChecks(now, in)
	require.Len(t, issues, 1)
	require.Equal(t, models.CategoryPriceStaleness, issues[0].Category)
	require.Equal(t, models.SeverityWarning, issues[0].Severity)
}

func TestPriceStalenessEscalatesToCriticalOnLargeShare(t *testing.T) {
	m := NewDefault()
	now := mustDay("2024-06-10") // well past the 3-trading-day critical bar
	in := Inputs{
		TotalPortfolioValueBase: decimal.NewFromInt(1000),
		Holdings: []HoldingInfo{
			{AssetID: "SEC:AAPL:XNAS", MarketValueBase: decimal.NewFromInt(500), UsesMarketPricing: true},
		},
		LatestQuoteDay: map[string]time.Time{"SEC:AAPL:XNAS": mustDay("2024-05-31")},
	}

	issues := m.RunChecks(now, in)
	require.Len(t, issues, 1)
	require.Equal(t, models.SeverityCritical, issues[0].Severity, "50%% of portfolio stale should escalate past the 30%% threshold")
}

func TestPriceStalenessMissingQuoteIsErrorNotWarning(t *testing.T) {
	m := NewDefault()
	now := mustDay("2024-06-04")
	in := Inputs{
		TotalPortfolioValueBase: decimal.NewFromInt(1000),
		Holdings: []HoldingInfo{
			{AssetID: "SEC:GHOST:XNAS", MarketValueBase: decimal.NewFromInt(100), UsesMarketPricing: true},
		},
		LatestQuoteDay: map[string]time.Time{},
	}

	issues := m.RunChecks(now, in)
	require.Len(t, issues, 1)
	require.Equal(t, models.SeverityError, issues[0].Severity)
	require.Contains(t, issues[0].Title, "No market data")
}

func TestPriceStalenessSkipsManualPricingAndZeroValue(t *testing.T) {
	m := NewDefault()
	now := mustDay("2024-06-10")
	in := Inputs{
		TotalPortfolioValueBase: decimal.NewFromInt(1000),
		Holdings: []HoldingInfo{
			{AssetID: "PROP:LAKEHOUSE", MarketValueBase: decimal.NewFromInt(500), UsesMarketPricing: false},
			{AssetID: "SEC:CLOSED:XNAS", MarketValueBase: decimal.Zero, UsesMarketPricing: true},
		},
		LatestQuoteDay: map[string]time.Time{},
	}

	issues := m.RunChecks(now, in)
	require.Empty(t, issues)
}

func TestFxIntegrityFlagsMissingPairsOnly(t *testing.T) {
	m := NewDefault()
	in := Inputs{
		FxPairs: []FxPairInfo{
			{From: "EUR", To: "USD", Missing: false},
			{From: "JPY", To: "USD", Missing: true},
		},
	}
	issues := m.RunChecks(time.Now().UTC(), in)
	require.Len(t, issues, 1)
	require.Equal(t, models.CategoryFxIntegrity, issues[0].Category)
	require.Equal(t, []string{"JPY->USD"}, issues[0].AffectedItems)
}

func TestUnclassifiedAssetsFlagsEmptyAndOtherKind(t *testing.T) {
	m := NewDefault()
	in := Inputs{
		Assets: []models.Asset{
			{ID: "SEC:AAPL:XNAS", Kind: models.AssetSecurity},
			{ID: "UNK:1", Kind: ""},
			{ID: "UNK:2", Kind: models.AssetOther},
		},
	}
	issues := m.RunChecks(time.Now().UTC(), in)
	require.Len(t, issues, 1)
	require.ElementsMatch(t, []string{"UNK:1", "UNK:2"}, issues[0].AffectedItems)
}

func TestDataConsistencyGroupsByKind(t *testing.T) {
	m := NewDefault()
	assetID := "SEC:AAPL:XNAS"
	in := Inputs{
		ConsistencyIssues: []ConsistencyIssueInfo{
			{AccountID: "acc1", Kind: ConsistencyNegativeCashNoMargin, Detail: "cash went negative"},
			{AccountID: "acc2", Kind: ConsistencySplitNotPropagated, AssetID: &assetID, Detail: "split unresolved"},
		},
	}
	issues := m.RunChecks(time.Now().UTC(), in)
	require.Len(t, issues, 2)
	byID := map[string]models.HealthIssue{}
	for _, iss := range issues {
		byID[iss.ID] = iss
	}
	require.Contains(t, byID, "data_consistency:NegativeCashNoMargin")
	require.Contains(t, byID, "data_consistency:SplitNotPropagated")
}

func TestUntrackedAccountsFlagsMissingTrackingMode(t *testing.T) {
	m := NewDefault()
	in := Inputs{
		Accounts: []AccountInfo{
			{AccountID: "acc1", HasTrackingMode: true},
			{AccountID: "acc2", HasTrackingMode: false},
		},
	}
	issues := m.RunChecks(time.Now().UTC(), in)
	require.Len(t, issues, 1)
	require.Equal(t, []string{"acc2"}, issues[0].AffectedItems)
}

func TestRunChecksIsDeterministicAcrossCalls(t *testing.T) {
	m := NewDefault()
	in := Inputs{
		FxPairs: []FxPairInfo{{From: "JPY", To: "USD", Missing: true}},
	}
	now := time.Now().UTC()
	a := m.RunChecks(now, in)
	b := m.RunChecks(now, in)
	require.Equal(t, a, b)
}
