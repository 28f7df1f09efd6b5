package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FxRate models spec.md §3's "FxRate as Asset of kind FxRate" — a rate is
// just a Quote on an asset whose id is FX:FROM:TO. This type is the
// in-memory view FxCache hands back; it is never persisted on its own.
type FxRate struct {
	From  string          `json:"from"`
	To    string          `json:"to"`
	Rate  decimal.Decimal `json:"rate"`
	AsOf  time.Time       `json:"as_of"`
	// Derived is true when this rate was computed (inverse or bridge
	// cross) rather than read directly off a stored quote.
	Derived bool `json:"derived"`
}

// Invert returns the FX:B:A rate implied by FX:A:B, per the spec's
// "derived as 1/close unless a direct quote exists" invariant.
func (r FxRate) Invert() FxRate {
	inv := decimal.Zero
	if !r.Rate.IsZero() {
		inv = decimal.NewFromInt(1).DivRound(r.Rate, 18)
	}
	return FxRate{From: r.To, To: r.From, Rate: inv, AsOf: r.AsOf, Derived: true}
}

// SameCurrency reports whether From and To are the same code, in which
// case the rate is trivially 1 and never needs a stored quote.
func SameCurrency(from, to string) bool {
	return strings.EqualFold(from, to)
}
