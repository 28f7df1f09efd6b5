// Package errors defines the typed error taxonomy shared across the
// portfolio engine's core packages (spec §7).
package errors

import (
	"fmt"
	"time"
)

// ErrValidation signals a user-visible input error (bad activity fields,
// malformed filters, ...).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return e.Field + ": " + e.Message
}

// ErrNotFound signals a missing entity lookup (asset, account, snapshot...).
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ErrFxRateMissing signals FxCache could not resolve a rate for a pair as of a date.
type ErrFxRateMissing struct {
	From, To string
	AsOf     time.Time
}

func (e *ErrFxRateMissing) Error() string {
	return fmt.Sprintf("fx rate missing: %s->%s as of %s", e.From, e.To, e.AsOf.Format("2006-01-02"))
}

// ErrQuoteMissing signals no quote could be found for an asset.
type ErrQuoteMissing struct {
	AssetID string
	Day     time.Time
}

func (e *ErrQuoteMissing) Error() string {
	return fmt.Sprintf("quote missing: %s on %s", e.AssetID, e.Day.Format("2006-01-02"))
}

// ProviderErrorKind classifies a MarketDataClient provider failure.
type ProviderErrorKind string

const (
	KindRateLimited       ProviderErrorKind = "RateLimited"
	KindQuotaExceeded     ProviderErrorKind = "QuotaExceeded"
	KindUnauthorized      ProviderErrorKind = "Unauthorized"
	KindTransientNetwork  ProviderErrorKind = "TransientNetwork"
	KindMalformedResponse ProviderErrorKind = "MalformedResponse"
	KindSymbolNotFound    ProviderErrorKind = "SymbolNotFound"
)

// ErrProvider wraps a provider-sourced failure with its classification.
type ErrProvider struct {
	Kind     ProviderErrorKind
	Provider string
	Err      error
}

func (e *ErrProvider) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
}

func (e *ErrProvider) Unwrap() error { return e.Err }

// Retryable reports whether the error should be retried with exponential
// backoff. RateLimited and TransientNetwork are retryable (capped at 3
// attempts by the caller); QuotaExceeded is fatal for the provider for the
// current sync run.
func (e *ErrProvider) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransientNetwork
}

// ErrCalculation signals an internal computation invariant violation
// (e.g. negative lot quantity after FIFO depletion).
type ErrCalculation struct {
	Op      string
	Message string
}

func (e *ErrCalculation) Error() string {
	return fmt.Sprintf("calculation error in %s: %s", e.Op, e.Message)
}

// ErrConflict signals a uniqueness/version conflict (duplicate snapshot
// date, concurrent recalculation race).
type ErrConflict struct {
	Resource string
	Message  string
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Resource, e.Message)
}

// ErrTransient signals a caller-retryable infrastructure failure (network,
// lock contention) not tied to a specific provider.
type ErrTransient struct {
	Op  string
	Err error
}

func (e *ErrTransient) Error() string {
	return fmt.Sprintf("transient error in %s: %v", e.Op, e.Err)
}

func (e *ErrTransient) Unwrap() error { return e.Err }

// ErrQuota signals the caller has exhausted a daily/periodic quota (not
// tied to a single provider fetch, e.g. an overall sync budget).
type ErrQuota struct {
	Resource string
}

func (e *ErrQuota) Error() string {
	return fmt.Sprintf("quota exceeded: %s", e.Resource)
}

// ErrMalformedID signals IdCodec received an unparsable asset id.
type ErrMalformedID struct {
	Raw    string
	Reason string
}

func (e *ErrMalformedID) Error() string {
	return fmt.Sprintf("malformed asset id %q: %s", e.Raw, e.Reason)
}
