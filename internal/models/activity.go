package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActivityType enumerates every kind of event HoldingsCalculator handles
// (spec.md §3, §4.7).
type ActivityType string

const (
	ActivityBuy           ActivityType = "Buy"
	ActivitySell          ActivityType = "Sell"
	ActivityDeposit       ActivityType = "Deposit"
	ActivityWithdrawal    ActivityType = "Withdrawal"
	ActivityDividend      ActivityType = "Dividend"
	ActivityInterest      ActivityType = "Interest"
	ActivityFee           ActivityType = "Fee"
	ActivityTax           ActivityType = "Tax"
	ActivityTransferIn    ActivityType = "TransferIn"
	ActivityTransferOut   ActivityType = "TransferOut"
	ActivityAddHolding    ActivityType = "AddHolding"
	ActivityRemoveHolding ActivityType = "RemoveHolding"
	ActivitySplit         ActivityType = "Split"
	ActivityConversionIn  ActivityType = "ConversionIn"
	ActivityConversionOut ActivityType = "ConversionOut"
)

// typePriority orders same-date activities for HoldingsCalculator's stable
// tie-break (spec.md §4.7: splits first, then cash-like, then Buy, then
// Sell, then transfers).
func (t ActivityType) typePriority() int {
	switch t {
	case ActivitySplit:
		return 0
	case ActivityDeposit, ActivityWithdrawal, ActivityDividend, ActivityInterest,
		ActivityFee, ActivityTax, ActivityConversionIn, ActivityConversionOut:
		return 1
	case ActivityBuy, ActivityAddHolding:
		return 2
	case ActivitySell, ActivityRemoveHolding:
		return 3
	case ActivityTransferIn, ActivityTransferOut:
		return 4
	default:
		return 5
	}
}

// Activity is an immutable (post-create) financial event affecting a
// position or a cash balance.
type Activity struct {
	ID            string       `json:"id" gorm:"primaryKey;column:id;type:varchar(255)"`
	AccountID     string       `json:"account_id" gorm:"column:account_id;type:varchar(255);not null;index"`
	AssetID       string       `json:"asset_id" gorm:"column:asset_id;type:varchar(255);not null;index"`
	Type          ActivityType `json:"type" gorm:"column:activity_type;type:varchar(30);not null;index"`
	ActivityDate  time.Time    `json:"activity_date" gorm:"column:activity_date;not null;index"`
	Quantity      decimal.Decimal `json:"quantity" gorm:"column:quantity;type:decimal(38,18);not null;default:0"`
	UnitPrice     decimal.Decimal `json:"unit_price" gorm:"column:unit_price;type:decimal(38,18);not null;default:0"`
	Fee           decimal.Decimal `json:"fee" gorm:"column:fee;type:decimal(38,18);not null;default:0"`
	Amount        *decimal.Decimal `json:"amount,omitempty" gorm:"column:amount;type:decimal(38,18)"`
	Currency      string       `json:"currency" gorm:"column:currency;type:varchar(10);not null"`
	IsDraft       bool         `json:"is_draft" gorm:"column:is_draft;not null;default:false"`
	Comment       *string      `json:"comment,omitempty" gorm:"column:comment;type:text"`
	CreatedAt     time.Time    `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName implements GORM's naming hook.
func (Activity) TableName() string { return "activities" }

var cashLikeTypes = map[ActivityType]bool{
	ActivityDeposit: true, ActivityWithdrawal: true, ActivityDividend: true,
	ActivityInterest: true, ActivityFee: true, ActivityTax: true,
	ActivityConversionIn: true, ActivityConversionOut: true,
}

// IsCashLike reports whether the activity stores its magnitude in Amount
// rather than Quantity*UnitPrice (spec.md §3).
func (a Activity) IsCashLike() bool {
	return cashLikeTypes[a.Type]
}

// AmountOrZero returns Amount if set, else zero.
func (a Activity) AmountOrZero() decimal.Decimal {
	if a.Amount == nil {
		return decimal.Zero
	}
	return *a.Amount
}

// Validate enforces the Activity invariants from spec.md §3.
func (a Activity) Validate() error {
	if a.AccountID == "" {
		return fieldErr("account_id", "is required")
	}
	if a.AssetID == "" {
		return fieldErr("asset_id", "is required")
	}
	if a.Type == "" {
		return fieldErr("type", "is required")
	}
	if a.ActivityDate.IsZero() {
		return fieldErr("activity_date", "is required")
	}
	if a.Quantity.IsNegative() {
		return fieldErr("quantity", "must be non-negative")
	}
	if a.UnitPrice.IsNegative() {
		return fieldErr("unit_price", "must be non-negative")
	}
	if a.Fee.IsNegative() {
		return fieldErr("fee", "must be non-negative")
	}
	if a.Currency == "" {
		return fieldErr("currency", "is required")
	}
	if a.Type == ActivitySplit && !a.Quantity.IsPositive() {
		return fieldErr("quantity", "split ratio must be positive")
	}
	return nil
}

// ActivityFilter restricts ActivityStore.List queries.
type ActivityFilter struct {
	AccountID  *string
	AssetID    *string
	Types      []ActivityType
	StartDate  *time.Time
	EndDate    *time.Time
	IncludeDraft bool
	Limit      int
	Offset     int
}

// ByDateThenPriority sorts activities the way HoldingsCalculator requires:
// ascending date, then type priority, then id (spec.md §4.7).
func ByDateThenPriority(activities []Activity) []Activity {
	sorted := make([]Activity, len(activities))
	copy(sorted, activities)
	sortStable(sorted)
	return sorted
}

func sortStable(a []Activity) {
	// insertion sort: small per-day slices, stable, and keeps the
	// dependency-free simplicity the teacher's packages favor for
	// small in-memory collections.
	for i := 1; i < len(a); i++ {
		j := i
		for j > 0 && activityLess(a[j], a[j-1]) {
			a[j], a[j-1] = a[j-1], a[j]
			j--
		}
	}
}

func activityLess(x, y Activity) bool {
	if !x.ActivityDate.Equal(y.ActivityDate) {
		return x.ActivityDate.Before(y.ActivityDate)
	}
	if x.Type.typePriority() != y.Type.typePriority() {
		return x.Type.typePriority() < y.Type.typePriority()
	}
	return x.ID < y.ID
}
