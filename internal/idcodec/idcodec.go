// Package idcodec builds and parses canonical asset ids of the form
// KIND:BASE[:EXTRA] (spec.md §4.1). Parsing is total and deterministic:
// no two logically distinct assets may share an id.
package idcodec

import (
	"strings"

	apperrors "github.com/wealthfolio/portfolio-engine/internal/errors"
)

// Kind is the first colon-separated segment of an AssetId.
type Kind string

const (
	KindSecurity Kind = "SEC"
	KindCrypto   Kind = "CRYPTO"
	KindFx       Kind = "FX"
	KindCash     Kind = "CASH"
	KindProperty Kind = "PROP"
	KindVehicle  Kind = "VEH"
	KindCollect  Kind = "COLL"
	KindPrecious Kind = "PREC"
	KindLiab     Kind = "LIAB"
	KindOther    Kind = "OTHER"
)

var knownKinds = map[Kind]bool{
	KindSecurity: true,
	KindCrypto:   true,
	KindFx:       true,
	KindCash:     true,
	KindProperty: true,
	KindVehicle:  true,
	KindCollect:  true,
	KindPrecious: true,
	KindLiab:     true,
	KindOther:    true,
}

// Parsed holds the decomposed parts of an AssetId.
type Parsed struct {
	Kind  Kind
	Base  string
	Extra string // exchange MIC (securities) or quote currency (FX); empty otherwise.
}

// Build assembles a canonical AssetId from parts, uppercasing every
// segment and rejecting internal whitespace.
func Build(kind Kind, base string, extra ...string) (string, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		return "", &apperrors.ErrMalformedID{Raw: string(kind) + ":" + base, Reason: "empty base"}
	}
	parts := []string{string(kind), base}
	for _, e := range extra {
		e = strings.ToUpper(strings.TrimSpace(e))
		if e != "" {
			parts = append(parts, e)
		}
	}
	id := strings.Join(parts, ":")
	if strings.ContainsAny(id, " \t\n") {
		return "", &apperrors.ErrMalformedID{Raw: id, Reason: "contains whitespace"}
	}
	if kind == KindFx && len(parts) != 3 {
		return "", &apperrors.ErrMalformedID{Raw: id, Reason: "FX id requires base and quote currency"}
	}
	return id, nil
}

// Parse decomposes a canonical AssetId into its Kind and parts. Parsing is
// total: any non-empty, whitespace-free string with at least two
// colon-separated segments and a known kind parses successfully, except
// that an FX id also needs a third (quote currency) segment.
func Parse(id string) (Parsed, error) {
	if strings.ContainsAny(id, " \t\n") {
		return Parsed{}, &apperrors.ErrMalformedID{Raw: id, Reason: "contains whitespace"}
	}
	parts := strings.Split(id, ":")
	if len(parts) < 2 {
		return Parsed{}, &apperrors.ErrMalformedID{Raw: id, Reason: "fewer than 2 parts"}
	}
	kind := Kind(strings.ToUpper(parts[0]))
	if !knownKinds[kind] {
		return Parsed{}, &apperrors.ErrMalformedID{Raw: id, Reason: "unknown kind " + string(kind)}
	}
	p := Parsed{Kind: kind, Base: strings.ToUpper(parts[1])}
	if len(parts) >= 3 {
		p.Extra = strings.ToUpper(strings.Join(parts[2:], ":"))
	}
	if kind == KindFx && p.Extra == "" {
		return Parsed{}, &apperrors.ErrMalformedID{Raw: id, Reason: "FX id requires a quote currency"}
	}
	return p, nil
}

// IsCashLike reports whether id names a cash position: kind Cash, or a
// raw "CASH:" prefixed id.
func IsCashLike(id string) bool {
	p, err := Parse(id)
	if err != nil {
		return strings.HasPrefix(strings.ToUpper(id), "CASH:")
	}
	return p.Kind == KindCash
}

// IsFx reports whether id names an FX-rate asset.
func IsFx(id string) bool {
	p, err := Parse(id)
	return err == nil && p.Kind == KindFx
}

// FxPair returns (from, to) for an FX:FROM:TO id, or ok=false otherwise.
func FxPair(id string) (from, to string, ok bool) {
	p, err := Parse(id)
	if err != nil || p.Kind != KindFx {
		return "", "", false
	}
	return p.Base, p.Extra, true
}

// BuildFx is a convenience wrapper around Build for FX:FROM:TO ids.
func BuildFx(from, to string) (string, error) {
	return Build(KindFx, from, to)
}
