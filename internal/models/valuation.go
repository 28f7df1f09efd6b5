package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyAccountValuation is the priced-and-FX-converted daily value of an
// account (or the synthetic TOTAL account), produced by ValuationService
// and consumed by PerformanceEngine.
type DailyAccountValuation struct {
	AccountID       string          `json:"account_id" gorm:"column:account_id;type:varchar(255);not null;primaryKey"`
	ValuationDate   time.Time       `json:"valuation_date" gorm:"column:valuation_date;type:date;not null;primaryKey"`
	AccountCurrency string          `json:"account_currency" gorm:"column:account_currency;type:varchar(10);not null"`
	BaseCurrency    string          `json:"base_currency" gorm:"column:base_currency;type:varchar(10);not null"`
	TotalValue      decimal.Decimal `json:"total_value" gorm:"column:total_value;type:decimal(38,18);not null;default:0"`
	NetContribution decimal.Decimal `json:"net_contribution" gorm:"column:net_contribution;type:decimal(38,18);not null;default:0"`
	FxRateToBase    decimal.Decimal `json:"fx_rate_to_base" gorm:"column:fx_rate_to_base;type:decimal(38,18);not null;default:1"`
}

// TableName implements GORM's naming hook.
func (DailyAccountValuation) TableName() string { return "daily_account_valuations" }

// Gains bundles an unrealized/realized/total/day gain split, each in both
// local and base currency (spec.md §3 Holding view).
type Gains struct {
	UnrealizedLocal decimal.Decimal `json:"unrealized_local"`
	UnrealizedBase  decimal.Decimal `json:"unrealized_base"`
	RealizedLocal   decimal.Decimal `json:"realized_local"`
	RealizedBase    decimal.Decimal `json:"realized_base"`
	TotalLocal      decimal.Decimal `json:"total_local"`
	TotalBase       decimal.Decimal `json:"total_base"`
	DayLocal        *decimal.Decimal `json:"day_local,omitempty"`
	DayBase         *decimal.Decimal `json:"day_base,omitempty"`
	PercentTotal    decimal.Decimal `json:"percent_total"` // rounded to 4dp
}
