// Package valuation implements ValuationService (spec.md §4.9): joins
// each account's latest (or historical) snapshot with quotes and FX to
// produce priced Holdings and persisted DailyAccountValuation rows.
// Grounded on the teacher's internal/services/portfolio_service.go
// join-then-price shape, generalized from its single-currency
// valuation to the multi-currency local/base split spec.md calls for.
package valuation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"

	"github.com/wealthfolio/portfolio-engine/internal/db"
	"github.com/wealthfolio/portfolio-engine/internal/idcodec"
	"github.com/wealthfolio/portfolio-engine/internal/marketdata"
	"github.com/wealthfolio/portfolio-engine/internal/models"
)

// staleAfter is how long a quote's day can lag behind the valuation
// date before Holding.PriceAsOfStale is set. HealthMonitor (spec.md
// §4.12) does not use it: its staleness check counts trading days
// against its own Config thresholds.
const staleAfter = 5 * 24 * time.Hour

// SnapshotReader is the subset of snapshotstore.Store this service reads.
type SnapshotReader interface {
	Latest(ctx context.Context, accountID string) (models.AccountStateSnapshot, error)
	Between(ctx context.Context, accountID string, start, end time.Time) ([]models.AccountStateSnapshot, error)
}

// QuoteReader is the subset of quotestore.Store this service reads.
type QuoteReader interface {
	LatestWithPrevious(ctx context.Context, assetIDs []string) (map[string]models.LatestQuotePair, error)
}

// RangeFilledReader supplies a dense, gap-filled quote series over a
// date range; satisfied structurally by marketdata.Client.RangeFilled
// without importing that concrete type.
type RangeFilledReader interface {
	RangeFilled(ctx context.Context, assetIDs []string, start, end time.Time) ([]models.Quote, error)
}

// AssetReader is the subset of assetcatalog.Catalog this service reads.
type AssetReader interface {
	Get(ctx context.Context, id string) (*models.Asset, error)
}

// FxRater is the subset of fxcache.Cache this service reads.
type FxRater interface {
	Rate(from, to string, asOf time.Time) (decimal.Decimal, error)
}

// Service is the ValuationService.
type Service struct {
	db        *db.DB
	snapshots SnapshotReader
	quotes    QuoteReader
	ranges    RangeFilledReader
	assets    AssetReader
	fx        FxRater
}

// New wires a Service from its collaborators.
func New(database *db.DB, snapshots SnapshotReader, quotes QuoteReader, ranges RangeFilledReader, assets AssetReader, fx FxRater) *Service {
	return &Service{db: database, snapshots: snapshots, quotes: quotes, ranges: ranges, assets: assets, fx: fx}
}

// priced is the intermediate per-position pricing result, shared between
// PriceHoldings (which keeps it as a Holding) and ComputeDailyValuation
// (which only needs MarketValueBase for the account total).
type priced struct {
	marketValueLocal decimal.Decimal
	marketValueBase  decimal.Decimal
	costBasisLocal   decimal.Decimal
	costBasisBase    decimal.Decimal
	price            decimal.Decimal
	quoteDay         time.Time
	hasQuote         bool
}

// priceAsset implements the per-position algorithm of spec.md §4.9:
// normalize the quote's currency, resolve fx_quote_to_local/base and
// fx_local_to_base, and price quantity*price in both currencies.
func (s *Service) priceAsset(pos models.Position, asset *models.Asset, pair models.LatestQuotePair, hasPair bool, baseCurrency string, asOf time.Time) (priced, error) {
	var out priced

	price := decimal.Zero
	quoteCurrency := pos.Currency
	if hasPair {
		price = pair.Latest.Close
		quoteCurrency = pair.Latest.Currency
		if major, divisor, ok := marketdata.NormalizeCurrency(quoteCurrency); ok {
			price = price.DivRound(divisor, 18)
			quoteCurrency = major
		}
		out.hasQuote = true
		out.quoteDay = pair.Latest.Day
	} else if asset != nil {
		if manual, ok := ManualPurchasePrice(asset); ok {
			price = manual
		}
	}
	out.price = price

	fxQuoteToLocal, err := s.fx.Rate(quoteCurrency, pos.Currency, asOf)
	if err != nil {
		return priced{}, fmt.Errorf("fx %s->%s: %w", quoteCurrency, pos.Currency, err)
	}
	fxQuoteToBase, err := s.fx.Rate(quoteCurrency, baseCurrency, asOf)
	if err != nil {
		return priced{}, fmt.Errorf("fx %s->%s: %w", quoteCurrency, baseCurrency, err)
	}
	fxLocalToBase, err := s.fx.Rate(pos.Currency, baseCurrency, asOf)
	if err != nil {
		return priced{}, fmt.Errorf("fx %s->%s: %w", pos.Currency, baseCurrency, err)
	}

	out.marketValueLocal = pos.Quantity.Mul(price).Mul(fxQuoteToLocal)
	out.marketValueBase = pos.Quantity.Mul(price).Mul(fxQuoteToBase)
	out.costBasisLocal = pos.TotalCostBasis
	out.costBasisBase = pos.TotalCostBasis.Mul(fxLocalToBase)
	return out, nil
}

// ManualPurchasePrice reads Asset.Metadata["purchase_price"] for
// alternative assets with no quote on record yet (spec.md §4.9:
// "gains computed from metadata.purchase_price when present, else lot
// cost basis"). Exported so NetWorthService can price standalone
// alternative assets the same way.
func ManualPurchasePrice(asset *models.Asset) (decimal.Decimal, bool) {
	raw, ok := asset.Metadata["purchase_price"]
	if !ok {
		return decimal.Zero, false
	}
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case string:
		d, err := decimal.NewFromString(v)
		if err == nil {
			return d, true
		}
	}
	return decimal.Zero, false
}

func gains(mvLocal, mvBase, cbLocal, cbBase decimal.Decimal) models.Gains {
	g := models.Gains{
		UnrealizedLocal: mvLocal.Sub(cbLocal).Round(2),
		UnrealizedBase:  mvBase.Sub(cbBase).Round(2),
	}
	g.TotalLocal = g.UnrealizedLocal
	g.TotalBase = g.UnrealizedBase
	if !cbBase.IsZero() {
		g.PercentTotal = g.UnrealizedBase.Div(cbBase).Mul(decimal.NewFromInt(100)).Round(4)
	}
	return g
}

// PriceHoldings implements price_holdings(account_id, base_currency):
// loads the account's latest snapshot and returns one priced Holding
// per open position plus one per non-zero cash balance, weighted by
// share of total market value.
func (s *Service) PriceHoldings(ctx context.Context, accountID, baseCurrency string) ([]models.Holding, error) {
	snap, err := s.snapshots.Latest(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("price holdings: %w", err)
	}

	assetIDs := make([]string, 0, len(snap.Positions))
	for id := range snap.Positions {
		assetIDs = append(assetIDs, id)
	}
	pairs, err := s.quotes.LatestWithPrevious(ctx, assetIDs)
	if err != nil {
		return nil, fmt.Errorf("price holdings quotes: %w", err)
	}

	now := snap.SnapshotDate
	holdings := make([]models.Holding, 0, len(snap.Positions)+len(snap.CashBalances))
	total := decimal.Zero

	for _, assetID := range sortedKeys(snap.Positions) {
		pos := snap.Positions[assetID]
		asset, err := s.assets.Get(ctx, assetID)
		if err != nil {
			return nil, fmt.Errorf("price holdings asset %s: %w", assetID, err)
		}

		pair, hasPair := pairs[assetID]
		p, err := s.priceAsset(pos, asset, pair, hasPair, baseCurrency, now)
		if err != nil {
			return nil, err
		}

		h := models.Holding{
			AccountID:        accountID,
			AssetID:          assetID,
			Symbol:           asset.Symbol,
			Currency:         pos.Currency,
			Quantity:         pos.Quantity,
			Price:            p.price,
			CostBasisLocal:   p.costBasisLocal,
			CostBasisBase:    p.costBasisBase,
			MarketValueLocal: p.marketValueLocal,
			MarketValueBase:  p.marketValueBase,
			Gains:            gains(p.marketValueLocal, p.marketValueBase, p.costBasisLocal, p.costBasisBase),
			Lots:             pos.Lots,
		}
		if asset.Name != nil {
			h.Name = *asset.Name
		}
		if p.hasQuote {
			h.PriceAsOfStale = now.Sub(p.quoteDay) > staleAfter
			if !asset.IsAlternative() {
				if abs, _, ok := pair.DayChange(); ok {
					quoteCurrency := pair.Latest.Currency
					if fxLocal, err := s.fx.Rate(quoteCurrency, pos.Currency, now); err == nil {
						dayLocal := abs.Mul(pos.Quantity).Mul(fxLocal)
						h.Gains.DayLocal = &dayLocal
					}
					if fxBase, err := s.fx.Rate(quoteCurrency, baseCurrency, now); err == nil {
						dayBase := abs.Mul(pos.Quantity).Mul(fxBase)
						h.Gains.DayBase = &dayBase
					}
				}
			}
		}

		holdings = append(holdings, h)
		total = total.Add(p.marketValueBase)
	}

	for _, currency := range sortedCashKeys(snap.CashBalances) {
		amount := snap.CashBalances[currency]
		if amount.IsZero() {
			continue
		}
		fxToBase, err := s.fx.Rate(currency, baseCurrency, now)
		if err != nil {
			return nil, fmt.Errorf("price holdings cash fx %s->%s: %w", currency, baseCurrency, err)
		}
		marketValueBase := amount.Mul(fxToBase)
		cashAssetID, err := idcodec.Build(idcodec.KindCash, currency)
		if err != nil {
			return nil, fmt.Errorf("price holdings cash id %s: %w", currency, err)
		}
		h := models.Holding{
			AccountID:        accountID,
			AssetID:          cashAssetID,
			Symbol:           currency,
			Name:             currency + " cash",
			Currency:         currency,
			Quantity:         amount,
			Price:            decimal.NewFromInt(1),
			MarketValueLocal: amount,
			MarketValueBase:  marketValueBase,
		}
		holdings = append(holdings, h)
		total = total.Add(marketValueBase)
	}

	for i := range holdings {
		holdings[i].WeighBy(total)
	}
	return holdings, nil
}

func sortedKeys(m map[string]models.Position) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedCashKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ComputeDailyValuation implements compute_daily_valuation(account_id,
// date_range): prices every snapshot in [start, end] against a
// gap-filled quote series and upserts one DailyAccountValuation row per
// day, then rolls every account's row on each day into the synthetic
// TOTAL account. Both a full recalc (start = inception) and an
// incremental recalc (start = first_dirty_date) are the same call; this
// method is idempotent since every write goes through OnConflict.
func (s *Service) ComputeDailyValuation(ctx context.Context, accountIDs []string, start, end time.Time, baseCurrency string) error {
	byDate := make(map[string][]models.DailyAccountValuation)

	for _, accountID := range accountIDs {
		snaps, err := s.snapshots.Between(ctx, accountID, start, end)
		if err != nil {
			return fmt.Errorf("compute daily valuation snapshots: %w", err)
		}
		if len(snaps) == 0 {
			continue
		}

		assetSet := make(map[string]bool)
		for _, snap := range snaps {
			for id := range snap.Positions {
				assetSet[id] = true
			}
		}
		assetIDs := make([]string, 0, len(assetSet))
		for id := range assetSet {
			assetIDs = append(assetIDs, id)
		}

		filled, err := s.ranges.RangeFilled(ctx, assetIDs, start, end)
		if err != nil {
			return fmt.Errorf("compute daily valuation range: %w", err)
		}
		byAssetDay := make(map[string]models.Quote, len(filled))
		for _, q := range filled {
			byAssetDay[q.AssetID+"|"+q.Day.Format("2006-01-02")] = q
		}

		for _, snap := range snaps {
			totalBase := decimal.Zero
			for assetID, pos := range snap.Positions {
				asset, err := s.assets.Get(ctx, assetID)
				if err != nil {
					return fmt.Errorf("compute daily valuation asset %s: %w", assetID, err)
				}
				q, hasQuote := byAssetDay[assetID+"|"+snap.SnapshotDate.Format("2006-01-02")]
				pair := models.LatestQuotePair{Latest: q}
				p, err := s.priceAsset(pos, asset, pair, hasQuote, baseCurrency, snap.SnapshotDate)
				if err != nil {
					return err
				}
				totalBase = totalBase.Add(p.marketValueBase)
			}
			for currency, amount := range snap.CashBalances {
				fxToBase, err := s.fx.Rate(currency, baseCurrency, snap.SnapshotDate)
				if err != nil {
					return fmt.Errorf("compute daily valuation cash fx: %w", err)
				}
				totalBase = totalBase.Add(amount.Mul(fxToBase))
			}

			fxRate, err := s.fx.Rate(snap.Currency, baseCurrency, snap.SnapshotDate)
			if err != nil {
				return fmt.Errorf("compute daily valuation account fx: %w", err)
			}
			netContributionBase := snap.NetContribution.Mul(fxRate)

			row := models.DailyAccountValuation{
				AccountID:       accountID,
				ValuationDate:   snap.SnapshotDate,
				AccountCurrency: snap.Currency,
				BaseCurrency:    baseCurrency,
				TotalValue:      totalBase,
				NetContribution: netContributionBase,
				FxRateToBase:    fxRate,
			}
			key := snap.SnapshotDate.Format("2006-01-02")
			byDate[key] = append(byDate[key], row)
		}
	}

	var rows []models.DailyAccountValuation
	for _, accountRows := range byDate {
		rows = append(rows, accountRows...)
	}
	for key, accountRows := range byDate {
		date, _ := time.Parse("2006-01-02", key)
		totalRow := models.DailyAccountValuation{
			AccountID:       models.TotalAccountID,
			ValuationDate:   date,
			AccountCurrency: baseCurrency,
			BaseCurrency:    baseCurrency,
			FxRateToBase:    decimal.NewFromInt(1),
		}
		for _, r := range accountRows {
			totalRow.TotalValue = totalRow.TotalValue.Add(r.TotalValue)
			totalRow.NetContribution = totalRow.NetContribution.Add(r.NetContribution)
		}
		rows = append(rows, totalRow)
	}

	if len(rows) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "valuation_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"account_currency", "base_currency", "total_value", "net_contribution", "fx_rate_to_base"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("upsert daily valuations: %w", err)
	}
	return nil
}

// Series returns the persisted DailyAccountValuation rows for an
// account (or the synthetic TOTAL account) within [start, end],
// ascending by date; PerformanceEngine drives its TWR/MWR calculations
// off this series.
func (s *Service) Series(ctx context.Context, accountID string, start, end time.Time) ([]models.DailyAccountValuation, error) {
	var rows []models.DailyAccountValuation
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND valuation_date BETWEEN ? AND ?", accountID, start, end).
		Order("valuation_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("valuation series: %w", err)
	}
	return rows, nil
}
