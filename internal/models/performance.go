package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReturnPoint is one day's cumulative time-weighted return, part of a
// PerformanceMetrics series (spec.md §4.10).
type ReturnPoint struct {
	Date          time.Time       `json:"date"`
	CumulativeTWR decimal.Decimal `json:"cumulative_twr"`
}

// PerformanceMetrics is PerformanceEngine's output for a single item
// (an account, the synthetic TOTAL account, or a priced symbol) over a
// date range. Every percentage/ratio field is rounded to 6dp.
type PerformanceMetrics struct {
	Returns                []ReturnPoint   `json:"returns"`
	PeriodStartDate        time.Time       `json:"period_start_date"`
	PeriodEndDate          time.Time       `json:"period_end_date"`
	Currency               string          `json:"currency"`
	CumulativeTWR          decimal.Decimal `json:"cumulative_twr"`
	GainLossAmount         decimal.Decimal `json:"gain_loss_amount"`
	AnnualizedTWR          decimal.Decimal `json:"annualized_twr"`
	SimpleReturn           decimal.Decimal `json:"simple_return"`
	AnnualizedSimpleReturn decimal.Decimal `json:"annualized_simple_return"`
	CumulativeMWR          decimal.Decimal `json:"cumulative_mwr"`
	AnnualizedMWR          decimal.Decimal `json:"annualized_mwr"`
	Volatility             decimal.Decimal `json:"volatility"`
	MaxDrawdown            decimal.Decimal `json:"max_drawdown"`
}

// SimplePerformanceSummary is one row of simple_performance_batch
// (spec.md §4.10): a lightweight per-account snapshot, not a full
// PerformanceMetrics series.
type SimplePerformanceSummary struct {
	AccountID                string          `json:"account_id"`
	TotalValue               decimal.Decimal `json:"total_value"`
	TotalGainLossAmount      decimal.Decimal `json:"total_gain_loss_amount"`
	CumulativeReturnPercent  decimal.Decimal `json:"cumulative_return_percent"`
	DayGainLossAmount        decimal.Decimal `json:"day_gain_loss_amount"`
	DayReturnPercentModDietz decimal.Decimal `json:"day_return_percent_mod_dietz"`
	PortfolioWeight          decimal.Decimal `json:"portfolio_weight"`
}
