// Package resolver implements SymbolResolver (spec.md §4.4): mapping a
// canonical AssetId to a provider-specific symbol. Grounded on
// aristath-sentinel/trader-go's universe.SymbolResolver (identifier-type
// detection, suffix conversion tables, fallthrough-to-as-is resolution),
// generalized from a single Tradernet->Yahoo conversion into a
// provider-indexed MIC/suffix table plus FX-pair formatting.
package resolver

import (
	"strings"

	"github.com/wealthfolio/portfolio-engine/internal/idcodec"
)

// Resolved is what a provider needs to fetch quotes for an asset.
type Resolved struct {
	ProviderSymbol string
	CurrencyHint   string
}

// micSuffix maps a market identifier code to the suffix a given
// provider expects appended to the base ticker.
type micSuffix map[string]string // MIC -> suffix

var yahooSuffixes = micSuffix{
	"XTSE": ".TO", // Toronto
	"XLON": ".L",  // London
	"XPAR": ".PA", // Paris
	"XETR": ".DE", // Xetra
	"XASX": ".AX", // Sydney
	"XHKG": ".HK", // Hong Kong
	"XTKS": ".T",  // Tokyo
}

var alphaVantageSuffixes = micSuffix{
	"XTSE": ".TRT",
	"XLON": ".LON",
	"XPAR": ".PAR",
	"XETR": ".DEX",
	"XASX": ".AUS",
	"XHKG": ".HKG",
	"XTKS": ".TYO",
}

// yahooKnownSuffixes is consulted when reverse-mapping a Yahoo symbol
// back to an AssetId base/exchange pair; it must not strip a
// share-class dot (e.g. BRK.B) by mistaking it for an exchange suffix.
var yahooKnownSuffixes = map[string]bool{
	".TO": true, ".L": true, ".PA": true, ".DE": true,
	".AX": true, ".HK": true, ".T": true,
}

// Resolver resolves AssetId -> provider symbol for a fixed set of
// providers. overrides is keyed by (assetID, providerID) and always
// wins when present.
type Resolver struct {
	overrides map[[2]string]string
	tables    map[string]micSuffix // providerID -> MIC suffix table
}

// New builds a Resolver with the standard Yahoo/AlphaVantage suffix
// tables wired in.
func New() *Resolver {
	return &Resolver{
		overrides: make(map[[2]string]string),
		tables: map[string]micSuffix{
			"yahoo":        yahooSuffixes,
			"alphavantage": alphaVantageSuffixes,
		},
	}
}

// SetOverride records an exact-match provider symbol override for an
// asset, taken from Asset.provider_overrides.
func (r *Resolver) SetOverride(assetID, providerID, symbol string) {
	r.overrides[[2]string{assetID, providerID}] = symbol
}

// Resolve maps assetID to the symbol providerID expects. ok=false means
// Unsupported — no known mapping exists for this (asset, provider) pair.
func (r *Resolver) Resolve(assetID, providerID string) (Resolved, bool) {
	if symbol, ok := r.overrides[[2]string{assetID, providerID}]; ok {
		return Resolved{ProviderSymbol: symbol}, true
	}

	if from, to, ok := idcodec.FxPair(assetID); ok {
		return r.resolveFx(providerID, from, to)
	}

	parsed, err := idcodec.Parse(assetID)
	if err != nil {
		return Resolved{}, false
	}

	base := parsed.Base
	if parsed.Extra == "" {
		return Resolved{ProviderSymbol: base}, true
	}

	table, ok := r.tables[providerID]
	if !ok {
		return Resolved{ProviderSymbol: base}, true
	}
	suffix, ok := table[parsed.Extra]
	if !ok {
		return Resolved{ProviderSymbol: base}, true
	}
	return Resolved{ProviderSymbol: base + suffix}, true
}

func (r *Resolver) resolveFx(providerID, from, to string) (Resolved, bool) {
	switch providerID {
	case "yahoo":
		return Resolved{ProviderSymbol: from + to + "=X", CurrencyHint: to}, true
	case "alphavantage":
		// No caller splits this back into from/to: the alphavantage
		// provider has no FX endpoint call and sends this string
		// unchanged as the symbol parameter.
		return Resolved{ProviderSymbol: from + "/" + to, CurrencyHint: to}, true
	default:
		return Resolved{}, false
	}
}

// ReverseYahoo maps a raw Yahoo symbol back toward an (base, suffix)
// split without mistaking a share-class dot (BRK.B) for an exchange
// suffix — only suffixes present in yahooKnownSuffixes are stripped.
func ReverseYahoo(symbol string) (base string, suffix string) {
	symbol = strings.ToUpper(symbol)
	idx := strings.LastIndex(symbol, ".")
	if idx < 0 {
		return symbol, ""
	}
	candidate := symbol[idx:]
	if yahooKnownSuffixes[candidate] {
		return symbol[:idx], candidate
	}
	return symbol, ""
}
