package errors

import (
	"testing"
	"time"
)

func TestErrValidationError(t *testing.T) {
	err := &ErrValidation{Field: "amount", Message: "must be positive"}
	if got, want := err.Error(), "amount: must be positive"; got != want {
		t.Fatalf("unexpected error string: got %q want %q", got, want)
	}
}

func TestErrFxRateMissingError(t *testing.T) {
	asOf := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	err := &ErrFxRateMissing{From: "EUR", To: "GBP", AsOf: asOf}
	want := "fx rate missing: EUR->GBP as of 2024-03-15"
	if got := err.Error(); got != want {
		t.Fatalf("unexpected error string: got %q want %q", got, want)
	}
}

func TestErrProviderRetryable(t *testing.T) {
	cases := []struct {
		kind      ProviderErrorKind
		retryable bool
	}{
		{KindRateLimited, true},
		{KindTransientNetwork, true},
		{KindQuotaExceeded, false},
		{KindUnauthorized, false},
		{KindMalformedResponse, false},
		{KindSymbolNotFound, false},
	}
	for _, c := range cases {
		err := &ErrProvider{Kind: c.kind, Provider: "yahoo"}
		if got := err.Retryable(); got != c.retryable {
			t.Errorf("kind %s: Retryable() = %v, want %v", c.kind, got, c.retryable)
		}
	}
}
