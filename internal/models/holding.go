package models

import (
	"github.com/shopspring/decimal"
)

// Holding is a computed (never stored) view over a Position, priced and
// converted to the account/base currency, for a single point in time
// (spec.md §3).
type Holding struct {
	AccountID      string          `json:"account_id"`
	AssetID        string          `json:"asset_id"`
	Symbol         string          `json:"symbol"`
	Name           string          `json:"name"`
	Currency       string          `json:"currency"`
	Quantity       decimal.Decimal `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	PriceAsOfStale bool            `json:"price_as_of_stale"`
	CostBasisLocal decimal.Decimal `json:"cost_basis_local"`
	CostBasisBase  decimal.Decimal `json:"cost_basis_base"`
	MarketValueLocal decimal.Decimal `json:"market_value_local"`
	MarketValueBase  decimal.Decimal `json:"market_value_base"`
	Gains          Gains           `json:"gains"`
	WeightPct      decimal.Decimal `json:"weight_pct"`
	Lots           []Lot           `json:"lots,omitempty"`
}

// WeighBy sets WeightPct as this holding's MarketValueBase over total,
// rounded to 4dp. A zero total leaves the weight at zero.
func (h *Holding) WeighBy(totalMarketValueBase decimal.Decimal) {
	if totalMarketValueBase.IsZero() {
		h.WeightPct = decimal.Zero
		return
	}
	h.WeightPct = h.MarketValueBase.Div(totalMarketValueBase).Mul(decimal.NewFromInt(100)).Round(4)
}
