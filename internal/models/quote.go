package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// QuoteSource identifies which provider produced a quote.
type QuoteSource string

const (
	SourceYahoo        QuoteSource = "Yahoo"
	SourceAlphaVantage QuoteSource = "AlphaVantage"
	SourceManual       QuoteSource = "Manual"
)

// Quote is a single (asset, day, source) price observation.
type Quote struct {
	ID        string          `json:"id" gorm:"primaryKey;column:id;type:varchar(600)"`
	AssetID   string          `json:"asset_id" gorm:"column:asset_id;type:varchar(255);not null;index"`
	Timestamp time.Time       `json:"timestamp" gorm:"column:timestamp;not null"`
	Day       time.Time       `json:"day" gorm:"column:day;type:date;not null;index"`
	Source    QuoteSource     `json:"source" gorm:"column:source;type:varchar(30);not null"`
	Open      *decimal.Decimal `json:"open,omitempty" gorm:"column:open;type:decimal(38,18)"`
	High      *decimal.Decimal `json:"high,omitempty" gorm:"column:high;type:decimal(38,18)"`
	Low       *decimal.Decimal `json:"low,omitempty" gorm:"column:low;type:decimal(38,18)"`
	Close     decimal.Decimal `json:"close" gorm:"column:close;type:decimal(38,18);not null"`
	AdjClose  *decimal.Decimal `json:"adjclose,omitempty" gorm:"column:adjclose;type:decimal(38,18)"`
	Volume    *decimal.Decimal `json:"volume,omitempty" gorm:"column:volume;type:decimal(38,2)"`
	Currency  string          `json:"currency" gorm:"column:currency;type:varchar(10);not null"`
	Notes     *string         `json:"notes,omitempty" gorm:"column:notes;type:text"`
	CreatedAt time.Time       `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

// TableName implements GORM's naming hook.
func (Quote) TableName() string { return "quotes" }

// QuoteID formats the canonical id = asset_id_day_source.
func QuoteID(assetID string, day time.Time, source QuoteSource) string {
	return fmt.Sprintf("%s_%s_%s", assetID, day.Format("2006-01-02"), source)
}

// NormalizeDay clears the id/day so they are consistent with the quote's
// Timestamp, and (re)computes the primary key. Call before persisting.
func (q *Quote) NormalizeDay() {
	q.Day = time.Date(q.Timestamp.Year(), q.Timestamp.Month(), q.Timestamp.Day(), 0, 0, 0, 0, time.UTC)
	q.ID = QuoteID(q.AssetID, q.Day, q.Source)
}

// LatestQuotePair bundles the latest quote with the previous day's quote
// for day-change display (spec.md §3).
type LatestQuotePair struct {
	Latest   Quote  `json:"latest"`
	Previous *Quote `json:"previous,omitempty"`
}

// DayChange returns (absolute, percent) change vs Previous, if present and
// in the same currency; percent is rounded to 4dp per spec.md §9.
func (p LatestQuotePair) DayChange() (abs decimal.Decimal, pct decimal.Decimal, ok bool) {
	if p.Previous == nil || p.Previous.Currency != p.Latest.Currency || p.Previous.Close.IsZero() {
		return decimal.Zero, decimal.Zero, false
	}
	abs = p.Latest.Close.Sub(p.Previous.Close)
	pct = abs.Div(p.Previous.Close).Mul(decimal.NewFromInt(100)).Round(4)
	return abs, pct, true
}
