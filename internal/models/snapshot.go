package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TotalAccountID is the synthetic account id aggregating all real
// accounts' valuations in base currency (spec.md §3, §4.8).
const TotalAccountID = "TOTAL"

// AccountStateSnapshot is the immutable, per-day, per-account position
// and cash state produced by HoldingsCalculator and persisted by
// SnapshotStore. Positions/CashBalances have no natural relational
// shape (a variable-width map keyed by asset id or currency code), so
// they're stored as a single JSON column via GORM's serializer, the
// same way Asset.Metadata and HealthIssue.AffectedItems are.
type AccountStateSnapshot struct {
	ID              string                     `json:"id" gorm:"primaryKey;column:id;type:varchar(300)"`
	AccountID       string                     `json:"account_id" gorm:"column:account_id;type:varchar(255);not null;index"`
	SnapshotDate    time.Time                  `json:"snapshot_date" gorm:"column:snapshot_date;type:date;not null;index"`
	Currency        string                     `json:"currency" gorm:"column:currency;type:varchar(10);not null"`
	Positions       map[string]Position        `json:"positions" gorm:"column:positions_json;type:jsonb;serializer:json"`
	CashBalances    map[string]decimal.Decimal `json:"cash_balances" gorm:"column:cash_balances_json;type:jsonb;serializer:json"`
	CostBasis       decimal.Decimal            `json:"cost_basis" gorm:"column:cost_basis;type:decimal(38,18);not null"`
	NetContribution decimal.Decimal            `json:"net_contribution" gorm:"column:net_contribution;type:decimal(38,18);not null"`
	CalculatedAt    time.Time                  `json:"calculated_at" gorm:"column:calculated_at;not null"`
}

// TableName implements GORM's naming hook.
func (AccountStateSnapshot) TableName() string { return "account_state_snapshots" }

// SnapshotID formats the canonical id = account_id_YYYY-MM-DD.
func SnapshotID(accountID string, day time.Time) string {
	return fmt.Sprintf("%s_%s", accountID, day.Format("2006-01-02"))
}

// Clone returns a deep copy of the snapshot, safe to mutate in the next
// forward-pass step without aliasing the previous day's maps.
func (s AccountStateSnapshot) Clone() AccountStateSnapshot {
	out := s
	out.Positions = make(map[string]Position, len(s.Positions))
	for id, pos := range s.Positions {
		out.Positions[id] = pos.Clone()
	}
	out.CashBalances = make(map[string]decimal.Decimal, len(s.CashBalances))
	for ccy, amt := range s.CashBalances {
		out.CashBalances[ccy] = amt
	}
	return out
}

// NewEmptySnapshot builds the zero-state snapshot for the day before an
// account's first activity.
func NewEmptySnapshot(accountID, currency string, day time.Time) AccountStateSnapshot {
	return AccountStateSnapshot{
		ID:           SnapshotID(accountID, day),
		AccountID:    accountID,
		SnapshotDate: day,
		Currency:     currency,
		Positions:    make(map[string]Position),
		CashBalances: make(map[string]decimal.Decimal),
	}
}

// TotalCash sums the raw cash balances across all currencies. It does
// no FX conversion and includes no position market values.
func (s AccountStateSnapshot) TotalCash() decimal.Decimal {
	total := decimal.Zero
	for _, amt := range s.CashBalances {
		total = total.Add(amt)
	}
	return total
}
