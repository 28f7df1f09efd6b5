// Package networth implements NetWorthService (spec.md §4.11): a
// point-in-time rollup across every account's latest snapshot plus
// standalone alternative assets, categorized and converted to a base
// currency, and a forward-filled history series driven by
// ValuationService's TOTAL rollup.
package networth

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wealthfolio/portfolio-engine/internal/models"
	"github.com/wealthfolio/portfolio-engine/internal/valuation"
)

// stalenessWindow is spec.md §4.11's "valuation date > 90 days before
// date" rule.
const stalenessWindow = 90 * 24 * time.Hour

// SnapshotReader is the subset of snapshotstore.Store this service reads.
type SnapshotReader interface {
	LatestForMany(ctx context.Context, accountIDs []string, beforeDate time.Time) (map[string]models.AccountStateSnapshot, error)
}

// QuoteAsOfReader is the subset of quotestore.Store this service reads.
type QuoteAsOfReader interface {
	AsOfBatch(ctx context.Context, assetIDs []string, asOf time.Time) (map[string]models.Quote, error)
}

// AssetReader is the subset of assetcatalog.Catalog this service reads.
type AssetReader interface {
	Get(ctx context.Context, id string) (*models.Asset, error)
	List(ctx context.Context, kind *models.AssetKind) ([]models.Asset, error)
}

// FxRater is the subset of fxcache.Cache this service reads.
type FxRater interface {
	Rate(from, to string, asOf time.Time) (decimal.Decimal, error)
}

// ValuationSeriesReader is the subset of internal/valuation.Service this
// service reads for History.
type ValuationSeriesReader interface {
	Series(ctx context.Context, accountID string, start, end time.Time) ([]models.DailyAccountValuation, error)
}

// Service is the NetWorthService.
type Service struct {
	snapshots  SnapshotReader
	quotes     QuoteAsOfReader
	assets     AssetReader
	fx         FxRater
	valuations ValuationSeriesReader
}

// New wires a Service from its collaborators.
func New(snapshots SnapshotReader, quotes QuoteAsOfReader, assets AssetReader, fx FxRater, valuations ValuationSeriesReader) *Service {
	return &Service{snapshots: snapshots, quotes: quotes, assets: assets, fx: fx, valuations: valuations}
}

// NetWorth implements net_worth(date), per spec.md §4.11's five-step
// algorithm.
func (s *Service) NetWorth(ctx context.Context, accountIDs []string, date time.Time, baseCurrency string) (models.NetWorthReport, error) {
	report := models.NetWorthReport{Currency: baseCurrency}

	// Step 1: latest snapshot on-or-before date per account.
	latest, err := s.snapshots.LatestForMany(ctx, accountIDs, date)
	if err != nil {
		return models.NetWorthReport{}, fmt.Errorf("net worth snapshots: %w", err)
	}

	assetSet := make(map[string]bool)
	for _, snap := range latest {
		for id := range snap.Positions {
			assetSet[id] = true
		}
	}
	assetIDs := make([]string, 0, len(assetSet))
	for id := range assetSet {
		assetIDs = append(assetIDs, id)
	}

	// Step 2: latest quote on-or-before date per position's asset.
	quotes, err := s.quotes.AsOfBatch(ctx, assetIDs, date)
	if err != nil {
		return models.NetWorthReport{}, fmt.Errorf("net worth quotes: %w", err)
	}

	var oldest *time.Time
	trackOldest := func(day time.Time) {
		if oldest == nil || day.Before(*oldest) {
			d := day
			oldest = &d
		}
	}

	for accountID, snap := range latest {
		for assetID, pos := range snap.Positions {
			asset, err := s.assets.Get(ctx, assetID)
			if err != nil {
				return models.NetWorthReport{}, fmt.Errorf("net worth asset %s (account %s): %w", assetID, accountID, err)
			}
			item, stale, valuationDay, hasDay := s.priceItem(ctx, asset, pos.Quantity, pos.TotalCostBasis, pos.Currency, quotes[assetID], baseCurrency, date)
			if hasDay {
				trackOldest(valuationDay)
			}
			if stale {
				report.StaleAssets = append(report.StaleAssets, assetID)
			}
			s.appendItem(&report, asset.Kind, item)
		}

		for currency, amount := range snap.CashBalances {
			if amount.IsZero() {
				continue
			}
			rate, err := s.fx.Rate(currency, baseCurrency, date)
			if err != nil {
				return models.NetWorthReport{}, fmt.Errorf("net worth cash fx %s->%s: %w", currency, baseCurrency, err)
			}
			report.AssetsBreakdown = append(report.AssetsBreakdown, models.NetWorthBreakdownItem{
				Category: models.CategoryCash, Name: currency + " cash", Value: amount.Mul(rate),
			})
			report.AssetsTotal = report.AssetsTotal.Add(amount.Mul(rate))
		}
	}

	// Step 4: standalone alternative assets never tied to a position.
	allAssets, err := s.assets.List(ctx, nil)
	if err != nil {
		return models.NetWorthReport{}, fmt.Errorf("net worth standalone assets: %w", err)
	}
	for _, asset := range allAssets {
		if !asset.IsAlternative() || assetSet[asset.ID] {
			continue
		}
		item, stale, valuationDay, hasDay := s.priceItem(ctx, &asset, decimal.NewFromInt(1), decimal.Zero, asset.Currency, quotes[asset.ID], baseCurrency, date)
		if hasDay {
			trackOldest(valuationDay)
		}
		if stale {
			report.StaleAssets = append(report.StaleAssets, asset.ID)
		}
		s.appendItem(&report, asset.Kind, item)
	}

	report.NetWorth = report.AssetsTotal.Sub(report.LiabilitiesTotal)
	report.OldestValuationDate = oldest
	sort.Strings(report.StaleAssets)
	return report, nil
}

// priceItem implements step 2-3-5 of net_worth for a single position or
// standalone alternative asset: price via its latest on-or-before
// quote, falling back to cost basis (or manual purchase price for
// alternatives) when none exists, convert to base currency, and flag
// staleness.
func (s *Service) priceItem(ctx context.Context, asset *models.Asset, quantity, costBasis decimal.Decimal, localCurrency string, quote models.Quote, baseCurrency string, asOf time.Time) (item models.NetWorthBreakdownItem, stale bool, valuationDay time.Time, hasDay bool) {
	name := asset.Symbol
	if asset.Name != nil {
		name = *asset.Name
	}
	item.Name = name
	id := asset.ID
	item.AssetID = &id

	hasQuote := !quote.Day.IsZero()
	valueLocal := costBasis
	currency := localCurrency
	if hasQuote {
		valueLocal = quantity.Mul(quote.Close)
		currency = quote.Currency
		valuationDay, hasDay = quote.Day, true
	} else if asset.IsAlternative() {
		if manual, ok := valuation.ManualPurchasePrice(asset); ok {
			valueLocal = quantity.Mul(manual)
		}
	}

	rate, err := s.fx.Rate(currency, baseCurrency, asOf)
	if err != nil {
		rate = decimal.NewFromInt(1)
	}
	item.Value = valueLocal.Mul(rate)

	if asset.Kind != models.AssetCash {
		if !hasQuote || asOf.Sub(valuationDay) > stalenessWindow {
			stale = true
		}
	}
	return item, stale, valuationDay, hasDay
}

// appendItem routes a priced item into the assets or liabilities
// section of the report, per its asset kind's category.
func (s *Service) appendItem(report *models.NetWorthReport, kind models.AssetKind, item models.NetWorthBreakdownItem) {
	category := models.CategoryForKind(kind)
	item.Category = category
	if category == models.CategoryLiability {
		item.Value = item.Value.Abs()
		report.LiabilitiesBreakdown = append(report.LiabilitiesBreakdown, item)
		report.LiabilitiesTotal = report.LiabilitiesTotal.Add(item.Value)
		return
	}
	report.AssetsBreakdown = append(report.AssetsBreakdown, item)
	report.AssetsTotal = report.AssetsTotal.Add(item.Value)
}

// History implements history(start, end): the TOTAL account's daily
// valuation series, forward-filled across any day with no row
// (spec.md §4.11 Rule 2), starting at the first day TOTAL has a value
// for (Rule 1), plus every standalone alternative asset's value
// forward-filled independently of the portfolio series and summed in
// per day (spec.md §4.11: "fill alternative-asset quotes
// independently").
func (s *Service) History(ctx context.Context, start, end time.Time, baseCurrency string) ([]models.NetWorthHistoryPoint, error) {
	rows, err := s.valuations.Series(ctx, models.TotalAccountID, start, end)
	if err != nil {
		return nil, fmt.Errorf("net worth history: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	byDay := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		byDay[r.ValuationDate.Format("2006-01-02")] = r.TotalValue
	}

	altAssets, err := s.alternativeAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("net worth history alternative assets: %w", err)
	}

	points := make([]models.NetWorthHistoryPoint, 0, len(rows))
	lastPortfolio := rows[0].TotalValue
	for d := rows[0].ValuationDate; !d.After(end); d = d.AddDate(0, 0, 1) {
		if v, ok := byDay[d.Format("2006-01-02")]; ok {
			lastPortfolio = v
		}

		altValue, err := s.alternativeAssetsValueOn(ctx, altAssets, d, baseCurrency)
		if err != nil {
			return nil, fmt.Errorf("net worth history alternative value on %s: %w", d.Format("2006-01-02"), err)
		}

		points = append(points, models.NetWorthHistoryPoint{
			Date:                   d,
			PortfolioValue:         lastPortfolio,
			AlternativeAssetsValue: altValue,
			NetWorth:               lastPortfolio.Add(altValue),
		})
	}
	return points, nil
}

// alternativeAssets lists every manually valued, not liability, asset
// (property, vehicle, collectible, precious metal) the history series
// must fold in independently of any account's snapshots.
func (s *Service) alternativeAssets(ctx context.Context) ([]models.Asset, error) {
	all, err := s.assets.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make([]models.Asset, 0, len(all))
	for _, a := range all {
		if a.IsAlternative() && a.Kind != models.AssetLiability {
			out = append(out, a)
		}
	}
	return out, nil
}

// alternativeAssetsValueOn prices every alternative asset as of day,
// each against its own latest quote on or before that day (AsOfBatch's
// "on or before" semantics is what makes this an independent fill: an
// asset with no quote that day still carries its last known price
// forward, regardless of whether any other asset has one).
func (s *Service) alternativeAssetsValueOn(ctx context.Context, assets []models.Asset, day time.Time, baseCurrency string) (decimal.Decimal, error) {
	if len(assets) == 0 {
		return decimal.Zero, nil
	}
	assetIDs := make([]string, len(assets))
	for i, a := range assets {
		assetIDs[i] = a.ID
	}
	quotes, err := s.quotes.AsOfBatch(ctx, assetIDs, day)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for i := range assets {
		asset := assets[i]
		item, _, _, _ := s.priceItem(ctx, &asset, decimal.NewFromInt(1), decimal.Zero, asset.Currency, quotes[asset.ID], baseCurrency, day)
		total = total.Add(item.Value)
	}
	return total, nil
}
