package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePlainSecurityNoExchange(t *testing.T) {
	r := New()
	resolved, ok := r.Resolve("SEC:AAPL", "yahoo")
	require.True(t, ok)
	assert.Equal(t, "AAPL", resolved.ProviderSymbol)
}

func TestResolveWithMicSuffix(t *testing.T) {
	r := New()
	resolved, ok := r.Resolve("SEC:SHOP:XTSE", "yahoo")
	require.True(t, ok)
	assert.Equal(t, "SHOP.TO", resolved.ProviderSymbol)

	resolved, ok = r.Resolve("SEC:SHOP:XTSE", "alphavantage")
	require.True(t, ok)
	assert.Equal(t, "SHOP.TRT", resolved.ProviderSymbol)
}

func TestOverrideWinsOverTable(t *testing.T) {
	r := New()
	r.SetOverride("SEC:SHOP:XTSE", "yahoo", "SHOP-WS.TO")
	resolved, ok := r.Resolve("SEC:SHOP:XTSE", "yahoo")
	require.True(t, ok)
	assert.Equal(t, "SHOP-WS.TO", resolved.ProviderSymbol)
}

func TestResolveFxPairYahoo(t *testing.T) {
	r := New()
	resolved, ok := r.Resolve("FX:EUR:USD", "yahoo")
	require.True(t, ok)
	assert.Equal(t, "EURUSD=X", resolved.ProviderSymbol)
}

func TestReverseYahooPreservesShareClass(t *testing.T) {
	base, suffix := ReverseYahoo("BRK.B")
	assert.Equal(t, "BRK.B", base)
	assert.Equal(t, "", suffix)
}

func TestReverseYahooStripsKnownSuffix(t *testing.T) {
	base, suffix := ReverseYahoo("shop.to")
	assert.Equal(t, "SHOP", base)
	assert.Equal(t, ".TO", suffix)
}

func TestResolveUnknownProviderFallsBackToBase(t *testing.T) {
	r := New()
	resolved, ok := r.Resolve("SEC:SHOP:XTSE", "ibkr")
	require.True(t, ok)
	assert.Equal(t, "SHOP", resolved.ProviderSymbol)
}
