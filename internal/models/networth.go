package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NetWorthCategory buckets an asset kind for NetWorthService's
// breakdown (spec.md §4.11).
type NetWorthCategory string

const (
	CategoryInvestment    NetWorthCategory = "investment"
	CategoryCash          NetWorthCategory = "cash"
	CategoryProperty      NetWorthCategory = "property"
	CategoryVehicle       NetWorthCategory = "vehicle"
	CategoryCollectible   NetWorthCategory = "collectible"
	CategoryPreciousMetal NetWorthCategory = "precious_metal"
	CategoryLiability     NetWorthCategory = "liability"
	CategoryOther         NetWorthCategory = "other"
)

// CategoryForKind maps an AssetKind onto the category the spec's
// breakdown groups by.
func CategoryForKind(kind AssetKind) NetWorthCategory {
	switch kind {
	case AssetSecurity, AssetEtf, AssetFund, AssetBond, AssetCrypto, AssetOption, AssetFuture:
		return CategoryInvestment
	case AssetCash:
		return CategoryCash
	case AssetProperty:
		return CategoryProperty
	case AssetVehicle:
		return CategoryVehicle
	case AssetCollectible:
		return CategoryCollectible
	case AssetPhysicalPrecious:
		return CategoryPreciousMetal
	case AssetLiability:
		return CategoryLiability
	default:
		return CategoryOther
	}
}

// NetWorthBreakdownItem is one line of an assets or liabilities
// breakdown.
type NetWorthBreakdownItem struct {
	Category NetWorthCategory `json:"category"`
	Name     string           `json:"name"`
	Value    decimal.Decimal  `json:"value"`
	AssetID  *string          `json:"asset_id,omitempty"`
}

// NetWorthReport is NetWorthService's net_worth(date) response.
type NetWorthReport struct {
	AssetsTotal       decimal.Decimal         `json:"assets_total"`
	AssetsBreakdown   []NetWorthBreakdownItem `json:"assets_breakdown"`
	LiabilitiesTotal  decimal.Decimal         `json:"liabilities_total"`
	LiabilitiesBreakdown []NetWorthBreakdownItem `json:"liabilities_breakdown"`
	NetWorth          decimal.Decimal         `json:"net_worth"`
	Currency          string                  `json:"currency"`
	OldestValuationDate *time.Time            `json:"oldest_valuation_date,omitempty"`
	StaleAssets       []string                `json:"stale_assets,omitempty"`
}

// NetWorthHistoryPoint is one day of NetWorthService's history(start,
// end) series. PortfolioValue and AlternativeAssetsValue are each
// forward-filled independently (spec.md §4.11 Rule 2) before being
// summed into NetWorth.
type NetWorthHistoryPoint struct {
	Date                   time.Time       `json:"date"`
	PortfolioValue         decimal.Decimal `json:"portfolio_value"`
	AlternativeAssetsValue decimal.Decimal `json:"alternative_assets_value"`
	NetWorth               decimal.Decimal `json:"net_worth"`
}
