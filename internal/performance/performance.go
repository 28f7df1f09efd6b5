// Package performance implements PerformanceEngine (spec.md §4.10):
// time-weighted and money-weighted returns, annualization, volatility,
// and max drawdown over a DailyAccountValuation series.
//
// Decimal arithmetic (github.com/shopspring/decimal) drives every
// period return; stdev and the fractional-power annualization formula
// have no decimal equivalent, so those two steps drop to float64, the
// same tradeoff aristath-sentinel/trader-go's pkg/formulas package
// makes with gonum.org/v1/gonum/stat and math.Sqrt/math.Pow.
package performance

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	apperrors "github.com/wealthfolio/portfolio-engine/internal/errors"
	"github.com/wealthfolio/portfolio-engine/internal/models"
)

const tradingDaysPerYear = 252

// ValuationSeriesReader is the subset of internal/valuation.Service this
// engine reads.
type ValuationSeriesReader interface {
	Series(ctx context.Context, accountID string, start, end time.Time) ([]models.DailyAccountValuation, error)
}

// Engine is the PerformanceEngine.
type Engine struct {
	valuations ValuationSeriesReader
}

// New builds an Engine over a valuation series reader.
func New(valuations ValuationSeriesReader) *Engine {
	return &Engine{valuations: valuations}
}

// point is a (date, value, net_contribution) triple, the shape both
// account valuations and priced symbol quotes reduce to before the
// return math runs.
type point struct {
	Date            time.Time
	Value           decimal.Decimal
	NetContribution decimal.Decimal
}

// ForAccount implements the DailyAccountValuation-series half of
// spec.md §4.10's PerformanceEngine input (an account, or the synthetic
// TOTAL account).
func (e *Engine) ForAccount(ctx context.Context, accountID string, start, end time.Time) (models.PerformanceMetrics, error) {
	rows, err := e.valuations.Series(ctx, accountID, start, end)
	if err != nil {
		return models.PerformanceMetrics{}, fmt.Errorf("performance for account %s: %w", accountID, err)
	}

	points := make([]point, 0, len(rows))
	currency := ""
	for _, r := range rows {
		if r.TotalValue.IsNegative() {
			return models.PerformanceMetrics{}, &apperrors.ErrValidation{Field: "total_value", Message: "negative total value is not a valid valuation"}
		}
		points = append(points, point{Date: r.ValuationDate, Value: r.TotalValue, NetContribution: r.NetContribution})
		currency = r.BaseCurrency
	}
	return compute(points, currency), nil
}

// ForQuoteSeries implements the filled-quote-series half of spec.md
// §4.10's PerformanceEngine input (a standalone symbol, no cash flows).
func ForQuoteSeries(quotes []models.Quote) models.PerformanceMetrics {
	points := make([]point, 0, len(quotes))
	currency := ""
	for _, q := range quotes {
		if q.Close.IsNegative() {
			continue
		}
		points = append(points, point{Date: q.Day, Value: q.Close})
		currency = q.Currency
	}
	return compute(points, currency)
}

// compute implements every formula in spec.md §4.10 over a dense,
// ascending series of (date, value, net_contribution) points.
func compute(points []point, currency string) models.PerformanceMetrics {
	if len(points) < 2 {
		return models.PerformanceMetrics{Currency: currency}
	}

	twrSeries := make([]decimal.Decimal, 0, len(points)-1)
	mwrSeries := make([]decimal.Decimal, 0, len(points)-1)
	returns := make([]models.ReturnPoint, 0, len(points))

	cumulativeTWR := decimal.NewFromInt(1)
	cumulativeMWR := decimal.NewFromInt(1)
	returns = append(returns, models.ReturnPoint{Date: points[0].Date, CumulativeTWR: decimal.Zero})

	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		cashFlow := cur.NetContribution.Sub(prev.NetContribution)

		twrDenom := prev.Value.Add(cashFlow)
		twr := decimal.Zero
		if !twrDenom.IsZero() {
			twr = cur.Value.Div(twrDenom).Sub(decimal.NewFromInt(1))
		}
		twrSeries = append(twrSeries, twr)
		cumulativeTWR = cumulativeTWR.Mul(decimal.NewFromInt(1).Add(twr))

		mwrDenom := prev.Value.Add(cashFlow.Div(decimal.NewFromInt(2)))
		mwr := decimal.Zero
		if !mwrDenom.IsZero() {
			mwr = cur.Value.Sub(prev.Value).Sub(cashFlow).Div(mwrDenom)
		}
		mwrSeries = append(mwrSeries, mwr)
		cumulativeMWR = cumulativeMWR.Mul(decimal.NewFromInt(1).Add(mwr))

		returns = append(returns, models.ReturnPoint{
			Date:          cur.Date,
			CumulativeTWR: cumulativeTWR.Sub(decimal.NewFromInt(1)).Round(6),
		})
	}
	cumulativeTWR = cumulativeTWR.Sub(decimal.NewFromInt(1))
	cumulativeMWR = cumulativeMWR.Sub(decimal.NewFromInt(1))

	start, end := points[0], points[len(points)-1]
	days := int(end.Date.Sub(start.Date).Hours() / 24)

	netCashFlow := end.NetContribution.Sub(start.NetContribution)
	simpleReturn := decimal.Zero
	if !start.Value.IsZero() {
		simpleReturn = end.Value.Sub(start.Value).Sub(netCashFlow).Div(start.Value)
	}

	metrics := models.PerformanceMetrics{
		Returns:                returns,
		PeriodStartDate:        start.Date,
		PeriodEndDate:          end.Date,
		Currency:               currency,
		CumulativeTWR:          cumulativeTWR.Round(6),
		GainLossAmount:         end.Value.Sub(start.Value).Sub(netCashFlow).Round(6),
		AnnualizedTWR:          annualize(cumulativeTWR, days).Round(6),
		SimpleReturn:           simpleReturn.Round(6),
		AnnualizedSimpleReturn: annualize(simpleReturn, days).Round(6),
		CumulativeMWR:          cumulativeMWR.Round(6),
		AnnualizedMWR:          annualize(cumulativeMWR, days).Round(6),
		Volatility:             volatility(twrSeries).Round(6),
		MaxDrawdown:            maxDrawdown(points).Round(6),
	}
	return metrics
}

// annualize implements spec.md §4.10's annualization rule: raw return
// below a year, compounded growth rate beyond it, floored at -1.
func annualize(r decimal.Decimal, days int) decimal.Decimal {
	if days <= 0 {
		return r
	}
	years := float64(days) / 365.25
	if years < 1 {
		return r
	}
	rf, _ := r.Float64()
	if rf <= -1 {
		return decimal.NewFromInt(-1)
	}
	annualized := math.Pow(1+rf, 1/years) - 1
	return decimal.NewFromFloat(annualized)
}

// volatility is the stdev of per-period TWRs times sqrt(252), per
// spec.md §4.10.
func volatility(twrSeries []decimal.Decimal) decimal.Decimal {
	if len(twrSeries) < 2 {
		return decimal.Zero
	}
	floats := make([]float64, len(twrSeries))
	for i, d := range twrSeries {
		floats[i], _ = d.Float64()
	}
	return decimal.NewFromFloat(stat.StdDev(floats, nil) * math.Sqrt(tradingDaysPerYear))
}

// maxDrawdown scans the value curve once, tracking the running peak and
// the largest (peak-trough)/peak ratio seen so far.
func maxDrawdown(points []point) decimal.Decimal {
	if len(points) == 0 {
		return decimal.Zero
	}
	peak := points[0].Value
	max := decimal.Zero
	for _, p := range points {
		if p.Value.GreaterThan(peak) {
			peak = p.Value
		}
		if peak.IsZero() {
			continue
		}
		dd := peak.Sub(p.Value).Div(peak)
		if dd.GreaterThan(max) {
			max = dd
		}
	}
	return max
}

// SimplePerformanceBatch implements simple_performance_batch(account_ids)
// (spec.md §4.10): a lightweight per-account snapshot using only the
// latest two valuation rows, weighted by share of TOTAL.
func (e *Engine) SimplePerformanceBatch(ctx context.Context, accountIDs []string, asOf time.Time) ([]models.SimplePerformanceSummary, error) {
	totalRows, err := e.valuations.Series(ctx, models.TotalAccountID, asOf.AddDate(0, 0, -7), asOf)
	if err != nil {
		return nil, fmt.Errorf("simple performance batch total: %w", err)
	}
	totalLatest := decimal.Zero
	if len(totalRows) > 0 {
		totalLatest = totalRows[len(totalRows)-1].TotalValue
	}

	out := make([]models.SimplePerformanceSummary, 0, len(accountIDs))
	for _, accountID := range accountIDs {
		rows, err := e.valuations.Series(ctx, accountID, asOf.AddDate(0, 0, -7), asOf)
		if err != nil {
			return nil, fmt.Errorf("simple performance batch %s: %w", accountID, err)
		}
		if len(rows) == 0 {
			continue
		}
		latest := rows[len(rows)-1]
		first := rows[0]

		summary := models.SimplePerformanceSummary{
			AccountID:           accountID,
			TotalValue:          latest.TotalValue,
			TotalGainLossAmount: latest.TotalValue.Sub(first.TotalValue).Sub(latest.NetContribution.Sub(first.NetContribution)),
		}
		if !first.TotalValue.IsZero() {
			summary.CumulativeReturnPercent = summary.TotalGainLossAmount.Div(first.TotalValue).Mul(decimal.NewFromInt(100)).Round(6)
		}
		if len(rows) >= 2 {
			prev := rows[len(rows)-2]
			cashFlow := latest.NetContribution.Sub(prev.NetContribution)
			summary.DayGainLossAmount = latest.TotalValue.Sub(prev.TotalValue).Sub(cashFlow)
			dietzDenom := prev.TotalValue.Add(cashFlow.Div(decimal.NewFromInt(2)))
			if !dietzDenom.IsZero() {
				summary.DayReturnPercentModDietz = summary.DayGainLossAmount.Div(dietzDenom).Mul(decimal.NewFromInt(100)).Round(6)
			}
		}
		if !totalLatest.IsZero() {
			summary.PortfolioWeight = latest.TotalValue.Div(totalLatest).Round(6)
		}
		out = append(out, summary)
	}
	return out, nil
}
