package marketdata

import (
	"github.com/shopspring/decimal"

	"github.com/wealthfolio/portfolio-engine/internal/models"
)

// minorCurrency describes a provider-reported "minor unit" currency code
// and the divisor that converts it to its major-unit equivalent
// (spec.md §4.6: "GBp↔GBP, ILA↔ILS, ZAc↔ZAR, etc").
type minorCurrency struct {
	Major   string
	Divisor decimal.Decimal
}

var minorCurrencies = map[string]minorCurrency{
	"GBp": {Major: "GBP", Divisor: decimal.NewFromInt(100)},
	"GBX": {Major: "GBP", Divisor: decimal.NewFromInt(100)},
	"ILA": {Major: "ILS", Divisor: decimal.NewFromInt(100)},
	"ZAc": {Major: "ZAR", Divisor: decimal.NewFromInt(100)},
}

// NormalizeCurrency reports the major currency code and minor->major
// divisor for a provider currency code, and whether normalization
// applies at all. Exported so ValuationService can apply the same
// minor/major conversion to a quote it reads back out of QuoteStore.
func NormalizeCurrency(code string) (major string, divisor decimal.Decimal, ok bool) {
	m, found := minorCurrencies[code]
	if !found {
		return code, decimal.NewFromInt(1), false
	}
	return m.Major, m.Divisor, true
}

// applyCurrencyNormalization rewrites every price field on q in place,
// dividing by the minor->major factor and rewriting q.Currency, if q's
// currency is a known minor unit.
func applyCurrencyNormalization(q *models.Quote) {
	major, divisor, ok := NormalizeCurrency(q.Currency)
	if !ok {
		return
	}
	q.Close = q.Close.DivRound(divisor, 18)
	if q.Open != nil {
		v := q.Open.DivRound(divisor, 18)
		q.Open = &v
	}
	if q.High != nil {
		v := q.High.DivRound(divisor, 18)
		q.High = &v
	}
	if q.Low != nil {
		v := q.Low.DivRound(divisor, 18)
		q.Low = &v
	}
	if q.AdjClose != nil {
		v := q.AdjClose.DivRound(divisor, 18)
		q.AdjClose = &v
	}
	q.Currency = major
}
