package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	wealthdb "github.com/wealthfolio/portfolio-engine/internal/db"
	apperrors "github.com/wealthfolio/portfolio-engine/internal/errors"
	"github.com/wealthfolio/portfolio-engine/internal/models"
)

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

type fixedFx map[string]decimal.Decimal

func (f fixedFx) Rate(from, to string, asOf time.Time) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if r, ok := f[from+":"+to]; ok {
		return r, nil
	}
	if r, ok := f[to+":"+from]; ok {
		return decimal.NewFromInt(1).DivRound(r, 18), nil
	}
	return decimal.Zero, &apperrors.ErrFxRateMissing{From: from, To: to, AsOf: asOf}
}

type fakeSnapshots struct {
	latest  map[string]models.AccountStateSnapshot
	between map[string][]models.AccountStateSnapshot
}

func (f fakeSnapshots) Latest(ctx context.Context, accountID string) (models.AccountStateSnapshot, error) {
	snap, ok := f.latest[accountID]
	if !ok {
		return models.AccountStateSnapshot{}, &apperrors.ErrNotFound{Kind: "Snapshot", ID: accountID}
	}
	return snap, nil
}

func (f fakeSnapshots) Between(ctx context.Context, accountID string, start, end time.Time) ([]models.AccountStateSnapshot, error) {
	return f.between[accountID], nil
}

type fakeQuotes struct {
	pairs map[string]models.LatestQuotePair
}

func (f fakeQuotes) LatestWithPrevious(ctx context.Context, assetIDs []string) (map[string]models.LatestQuotePair, error) {
	out := make(map[string]models.LatestQuotePair)
	for _, id := range assetIDs {
		if p, ok := f.pairs[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeRanges struct {
	quotes []models.Quote
}

func (f fakeRanges) RangeFilled(ctx context.Context, assetIDs []string, start, end time.Time) ([]models.Quote, error) {
	return f.quotes, nil
}

type fakeAssets struct {
	byID map[string]*models.Asset
}

func (f fakeAssets) Get(ctx context.Context, id string) (*models.Asset, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, &apperrors.ErrNotFound{Kind: "Asset", ID: id}
	}
	return a, nil
}

func strPtr(s string) *string { return &s }

func TestPriceHoldingsSecurityPositionSameCurrency(t *testing.T) {
	ctx := context.Background()
	snap := models.NewEmptySnapshot("acc1", "USD", day("2024-06-01"))
	snap.Positions["SEC:AAPL:XNAS"] = models.Position{
		AccountID: "acc1", AssetID: "SEC:AAPL:XNAS", Currency: "USD",
		Quantity: decimal.NewFromInt(10), TotalCostBasis: decimal.NewFromInt(1000),
	}

	svc := New(nil,
		fakeSnapshots{latest: map[string]models.AccountStateSnapshot{"acc1": snap}},
		fakeQuotes{pairs: map[string]models.LatestQuotePair{
			"SEC:AAPL:XNAS": {Latest: models.Quote{AssetID: "SEC:AAPL:XNAS", Day: day("2024-06-01"), Close: decimal.NewFromInt(150), Currency: "USD"}},
		}},
		fakeRanges{},
		fakeAssets{byID: map[string]*models.Asset{
			"SEC:AAPL:XNAS": {ID: "SEC:AAPL:XNAS", Symbol: "AAPL", Name: strPtr("Apple Inc."), Kind: models.AssetSecurity, Currency: "USD"},
		}},
		fixedFx{},
	)

	holdings, err := svc.PriceHoldings(ctx, "acc1", "USD")
	require.NoError(t, err)
	require.Len(t, holdings, 1)

	h := holdings[0]
	require.Equal(t, "AAPL", h.Symbol)
	require.True(t, h.MarketValueLocal.Equal(decimal.NewFromInt(1500)), "got %s", h.MarketValueLocal.String())
	require.True(t, h.MarketValueBase.Equal(decimal.NewFromInt(1500)))
	require.True(t, h.Gains.UnrealizedBase.Equal(decimal.NewFromInt(500)))
	require.True(t, h.WeightPct.Equal(decimal.NewFromInt(100)))
	require.False(t, h.PriceAsOfStale)
}

func TestPriceHoldingsConvertsForeignQuoteToAccountCurrency(t *testing.T) {
	ctx := context.Background()
	snap := models.NewEmptySnapshot("acc1", "USD", day("2024-06-01"))
	snap.Positions["SEC:VOD:XLON"] = models.Position{
		AccountID: "acc1", AssetID: "SEC:VOD:XLON", Currency: "USD",
		Quantity: decimal.NewFromInt(100), TotalCostBasis: decimal.NewFromInt(100),
	}

	svc := New(nil,
		fakeSnapshots{latest: map[string]models.AccountStateSnapshot{"acc1": snap}},
		fakeQuotes{pairs: map[string]models.LatestQuotePair{
			// 150 GBp = 1.50 GBP per share, in minor units as Yahoo reports LSE quotes.
			"SEC:VOD:XLON": {Latest: models.Quote{AssetID: "SEC:VOD:XLON", Day: day("2024-06-01"), Close: decimal.NewFromInt(150), Currency: "GBp"}},
		}},
		fakeRanges{},
		fakeAssets{byID: map[string]*models.Asset{
			"SEC:VOD:XLON": {ID: "SEC:VOD:XLON", Symbol: "VOD", Kind: models.AssetSecurity, Currency: "USD"},
		}},
		fixedFx{"GBP:USD": decimal.NewFromFloat(1.25)},
	)

	holdings, err := svc.PriceHoldings(ctx, "acc1", "USD")
	require.NoError(t, err)
	require.Len(t, holdings, 1)

	// 150 GBp -> 1.50 GBP -> 1.875 USD per share * 100 shares = 187.5
	require.True(t, holdings[0].MarketValueBase.Equal(decimal.NewFromFloat(187.5)), "got %s", holdings[0].MarketValueBase.String())
}

func TestPriceHoldingsSynthesizesCashHolding(t *testing.T) {
	ctx := context.Background()
	snap := models.NewEmptySnapshot("acc1", "USD", day("2024-06-01"))
	snap.CashBalances["EUR"] = decimal.NewFromInt(200)

	svc := New(nil,
		fakeSnapshots{latest: map[string]models.AccountStateSnapshot{"acc1": snap}},
		fakeQuotes{},
		fakeRanges{},
		fakeAssets{byID: map[string]*models.Asset{}},
		fixedFx{"EUR:USD": decimal.NewFromFloat(1.1)},
	)

	holdings, err := svc.PriceHoldings(ctx, "acc1", "USD")
	require.NoError(t, err)
	require.Len(t, holdings, 1)

	h := holdings[0]
	require.Equal(t, "CASH:EUR", h.AssetID)
	require.True(t, h.Price.Equal(decimal.NewFromInt(1)))
	require.True(t, h.MarketValueLocal.Equal(decimal.NewFromInt(200)))
	require.True(t, h.MarketValueBase.Equal(decimal.NewFromFloat(220)), "got %s", h.MarketValueBase.String())
}

func TestPriceHoldingsAlternativeAssetUsesManualPurchasePrice(t *testing.T) {
	ctx := context.Background()
	snap := models.NewEmptySnapshot("acc1", "USD", day("2024-06-01"))
	snap.Positions["PROP:LAKEHOUSE"] = models.Position{
		AccountID: "acc1", AssetID: "PROP:LAKEHOUSE", Currency: "USD",
		Quantity: decimal.NewFromInt(1), TotalCostBasis: decimal.NewFromInt(300000),
	}

	svc := New(nil,
		fakeSnapshots{latest: map[string]models.AccountStateSnapshot{"acc1": snap}},
		fakeQuotes{},
		fakeRanges{},
		fakeAssets{byID: map[string]*models.Asset{
			"PROP:LAKEHOUSE": {ID: "PROP:LAKEHOUSE", Symbol: "LAKEHOUSE", Kind: models.AssetProperty, Currency: "USD",
				Metadata: map[string]any{"purchase_price": 350000.0}},
		}},
		fixedFx{},
	)

	holdings, err := svc.PriceHoldings(ctx, "acc1", "USD")
	require.NoError(t, err)
	require.Len(t, holdings, 1)

	h := holdings[0]
	require.True(t, h.MarketValueBase.Equal(decimal.NewFromInt(350000)))
	require.True(t, h.Gains.UnrealizedBase.Equal(decimal.NewFromInt(50000)))
	require.Nil(t, h.Gains.DayBase)
}

func newTestDB(t *testing.T) *wealthdb.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&models.DailyAccountValuation{}))
	return &wealthdb.DB{DB: gdb}
}

func TestComputeDailyValuationProducesTotalRollupAcrossAccounts(t *testing.T) {
	ctx := context.Background()

	usdSnap := models.NewEmptySnapshot("acc-usd", "USD", day("2024-06-01"))
	usdSnap.Positions["SEC:AAPL:XNAS"] = models.Position{
		AccountID: "acc-usd", AssetID: "SEC:AAPL:XNAS", Currency: "USD",
		Quantity: decimal.NewFromInt(10), TotalCostBasis: decimal.NewFromInt(1000),
	}
	usdSnap.NetContribution = decimal.NewFromInt(1000)

	eurSnap := models.NewEmptySnapshot("acc-eur", "EUR", day("2024-06-01"))
	eurSnap.CashBalances["EUR"] = decimal.NewFromInt(500)
	eurSnap.NetContribution = decimal.NewFromInt(500)

	svc := New(newTestDB(t),
		fakeSnapshots{between: map[string][]models.AccountStateSnapshot{
			"acc-usd": {usdSnap},
			"acc-eur": {eurSnap},
		}},
		fakeQuotes{},
		fakeRanges{quotes: []models.Quote{
			{AssetID: "SEC:AAPL:XNAS", Day: day("2024-06-01"), Close: decimal.NewFromInt(150), Currency: "USD"},
		}},
		fakeAssets{byID: map[string]*models.Asset{
			"SEC:AAPL:XNAS": {ID: "SEC:AAPL:XNAS", Symbol: "AAPL", Kind: models.AssetSecurity, Currency: "USD"},
		}},
		fixedFx{"EUR:USD": decimal.NewFromFloat(1.1)},
	)

	err := svc.ComputeDailyValuation(ctx, []string{"acc-usd", "acc-eur"}, day("2024-06-01"), day("2024-06-01"), "USD")
	require.NoError(t, err)

	var rows []models.DailyAccountValuation
	require.NoError(t, svc.db.Order("account_id").Find(&rows).Error)
	require.Len(t, rows, 3)

	byAccount := make(map[string]models.DailyAccountValuation, len(rows))
	for _, r := range rows {
		byAccount[r.AccountID] = r
	}

	require.True(t, byAccount["acc-usd"].TotalValue.Equal(decimal.NewFromInt(1500)), "got %s", byAccount["acc-usd"].TotalValue.String())
	require.True(t, byAccount["acc-eur"].TotalValue.Equal(decimal.NewFromFloat(550)), "got %s", byAccount["acc-eur"].TotalValue.String())
	require.True(t, byAccount[models.TotalAccountID].TotalValue.Equal(decimal.NewFromFloat(2050)), "got %s", byAccount[models.TotalAccountID].TotalValue.String())

	// Re-running over the same range must be idempotent, not duplicate rows.
	require.NoError(t, svc.ComputeDailyValuation(ctx, []string{"acc-usd", "acc-eur"}, day("2024-06-01"), day("2024-06-01"), "USD"))
	var again []models.DailyAccountValuation
	require.NoError(t, svc.db.Find(&again).Error)
	require.Len(t, again, 3)
}
