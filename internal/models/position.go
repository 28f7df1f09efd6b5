package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuantityEpsilon is the threshold below which a position's quantity is
// treated as zero and elided (spec.md §3).
var QuantityEpsilon = decimal.NewFromFloat(1e-7)

// Lot is a FIFO tax lot.
type Lot struct {
	ID                string          `json:"id"`
	PositionID        string          `json:"position_id"`
	AcquisitionDate   time.Time       `json:"acquisition_date"`
	Quantity          decimal.Decimal `json:"quantity"`
	CostBasis         decimal.Decimal `json:"cost_basis"`
	AcquisitionPrice  decimal.Decimal `json:"acquisition_price"`
	AcquisitionFees   decimal.Decimal `json:"acquisition_fees"`
	FxRateToPosition  *decimal.Decimal `json:"fx_rate_to_position,omitempty"`
}

// Clone returns a deep copy of the lot.
func (l Lot) Clone() Lot {
	out := l
	if l.FxRateToPosition != nil {
		r := *l.FxRateToPosition
		out.FxRateToPosition = &r
	}
	return out
}

// Position is the per-account, per-asset FIFO-lot holding.
type Position struct {
	AccountID      string          `json:"account_id"`
	AssetID        string          `json:"asset_id"`
	Currency       string          `json:"currency"`
	Quantity       decimal.Decimal `json:"quantity"`
	TotalCostBasis decimal.Decimal `json:"total_cost_basis"`
	InceptionDate  time.Time       `json:"inception_date"`
	Lots           []Lot           `json:"lots"`
}

// Clone returns a deep copy of the position, including its lot queue.
func (p Position) Clone() Position {
	out := p
	out.Lots = make([]Lot, len(p.Lots))
	for i, l := range p.Lots {
		out.Lots[i] = l.Clone()
	}
	return out
}

// IsElidable reports whether the position's quantity has fallen below
// QuantityEpsilon and should be dropped from the snapshot entirely.
func (p Position) IsElidable() bool {
	return p.Quantity.Abs().LessThan(QuantityEpsilon)
}

// RecalculateFromLots recomputes Quantity and TotalCostBasis as the sum
// over Lots, enforcing the invariant checked in spec.md §8.
func (p *Position) RecalculateFromLots() {
	qty := decimal.Zero
	cost := decimal.Zero
	for _, l := range p.Lots {
		qty = qty.Add(l.Quantity)
		cost = cost.Add(l.CostBasis)
	}
	p.Quantity = qty
	p.TotalCostBasis = cost
}
