package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProviderQuote is a provider's raw price observation, prior to
// normalization into Quote (which additionally carries an asset id and
// canonical day). Living in models (rather than internal/marketdata)
// lets provider packages implement marketdata.Provider structurally
// without importing the package that defines the interface.
type ProviderQuote struct {
	Symbol    string
	Timestamp time.Time
	Open      *decimal.Decimal
	High      *decimal.Decimal
	Low       *decimal.Decimal
	Close     decimal.Decimal
	AdjClose  *decimal.Decimal
	Volume    *decimal.Decimal
	Currency  string
}

// SymbolSearchResult is a single provider search hit (spec.md §4.6 search).
type SymbolSearchResult struct {
	AssetID  string `json:"asset_id"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Kind     AssetKind `json:"kind"`
	Currency string `json:"currency"`
	Exchange string `json:"exchange,omitempty"`
	Source   QuoteSource `json:"source"`
}

// ProviderProfile is descriptive metadata about an asset a provider can
// return alongside quotes (name, exchange, quote type, currency).
type ProviderProfile struct {
	AssetID   string `json:"asset_id"`
	Name      string `json:"name"`
	QuoteType string `json:"quote_type"`
	Exchange  string `json:"exchange,omitempty"`
	Currency  string `json:"currency"`
	Source    QuoteSource `json:"source"`
}

// SyncMode selects MarketDataClient.Sync's planning strategy.
type SyncMode struct {
	Kind         SyncModeKind
	ForceSymbols []string // only set when Kind == SyncForceSymbols
}

type SyncModeKind string

const (
	SyncFull         SyncModeKind = "Full"
	SyncIncremental  SyncModeKind = "Incremental"
	SyncForceSymbols SyncModeKind = "ForceSymbols"
)

// SyncFailure records a single asset's sync failure for the report.
type SyncFailure struct {
	AssetID string `json:"asset_id"`
	Reason  string `json:"reason"`
}

// SyncReport summarizes one sync() run (spec.md §4.6).
type SyncReport struct {
	Mode          SyncModeKind  `json:"mode"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	AssetsPlanned int           `json:"assets_planned"`
	QuotesWritten int           `json:"quotes_written"`
	Failures      []SyncFailure `json:"failures"`
	Cancelled     bool          `json:"cancelled"`
}
