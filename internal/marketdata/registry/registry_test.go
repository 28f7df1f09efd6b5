package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDescs() []Descriptor {
	return []Descriptor{
		{ID: "yahoo", Enabled: true, Priority: 0, SupportsBulk: true, SupportsFx: true},
		{ID: "alphavantage", Enabled: true, Priority: 1, RateLimitPerSec: 0.66, DailyQuota: 25},
		{ID: "manual", Enabled: false, Priority: 2},
	}
}

func TestEnabledOrdersByPriority(t *testing.T) {
	r := New(seedDescs()...)
	enabled := r.Enabled()
	require.Len(t, enabled, 2)
	assert.Equal(t, "yahoo", enabled[0].ID)
	assert.Equal(t, "alphavantage", enabled[1].ID)
}

func TestSetEnabledTogglesWithoutAffectingOthers(t *testing.T) {
	r := New(seedDescs()...)
	require.NoError(t, r.SetEnabled("manual", true))
	enabled := r.Enabled()
	assert.Len(t, enabled, 3)
}

func TestSetPriorityReorders(t *testing.T) {
	r := New(seedDescs()...)
	require.NoError(t, r.SetPriority("alphavantage", -1))
	enabled := r.Enabled()
	assert.Equal(t, "alphavantage", enabled[0].ID)
}

func TestGetUnknownProviderErrors(t *testing.T) {
	r := New(seedDescs()...)
	_, err := r.Get("bogus")
	assert.Error(t, err)
}

func TestSetEnabledUnknownProviderErrors(t *testing.T) {
	r := New(seedDescs()...)
	assert.Error(t, r.SetEnabled("bogus", true))
}
