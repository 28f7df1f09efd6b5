// Package fxcache implements FxCache (spec.md §4.2): an in-memory,
// read-mostly FX-rate lookup with date-aware fallback, grounded on the
// teacher's internal/services/fx_cache.go caching shape but reworked from
// a DB-query cache into the actual in-memory store with inverse and
// bridge-currency resolution the spec calls for.
package fxcache

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/wealthfolio/portfolio-engine/internal/errors"
	"github.com/wealthfolio/portfolio-engine/internal/idcodec"
	"github.com/wealthfolio/portfolio-engine/internal/models"
)

// BridgeCurrency is the default cross-rate bridge when no direct or
// inverse quote exists for a pair.
const BridgeCurrency = "USD"

type point struct {
	day   time.Time
	close decimal.Decimal
}

// Cache is the FxCache. Safe for concurrent use; reads take the read
// lock, and Upsert takes the write lock and invalidates nothing beyond
// the pair it touches (the per-pair slice is simply replaced).
type Cache struct {
	mu     sync.RWMutex
	bridge string
	series map[string][]point // keyed by "FROM:TO", ascending by day
}

// New builds an empty cache. bridge overrides BridgeCurrency when non-empty.
func New(bridge string) *Cache {
	if bridge == "" {
		bridge = BridgeCurrency
	}
	return &Cache{bridge: bridge, series: make(map[string][]point)}
}

func pairKey(from, to string) string { return from + ":" + to }

// Upsert records a new FX:FROM:TO quote observation, keeping the
// per-pair series sorted by day. Call this whenever MarketDataClient or
// QuoteStore persists a quote whose asset id is an FX pair.
func (c *Cache) Upsert(from, to string, day time.Time, close decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := pairKey(from, to)
	series := c.series[key]
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	for i, p := range series {
		if p.day.Equal(day) {
			series[i].close = close
			c.series[key] = series
			return
		}
	}
	series = append(series, point{day: day, close: close})
	sort.Slice(series, func(i, j int) bool { return series[i].day.Before(series[j].day) })
	c.series[key] = series
}

// UpsertQuote is a convenience wrapper that upserts from a models.Quote
// whose AssetID is an FX:FROM:TO id; non-FX quotes are ignored.
func (c *Cache) UpsertQuote(q models.Quote) {
	from, to, ok := idcodec.FxPair(q.AssetID)
	if !ok {
		return
	}
	c.Upsert(from, to, q.Day, q.Close)
}

// mostRecentOnOrBefore returns the latest point with day <= asOf.
func mostRecentOnOrBefore(series []point, asOf time.Time) (decimal.Decimal, time.Time, bool) {
	asOf = time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	var best *point
	for i := range series {
		p := series[i]
		if p.day.After(asOf) {
			continue
		}
		if best == nil || p.day.After(best.day) {
			best = &series[i]
		}
	}
	if best == nil {
		return decimal.Zero, time.Time{}, false
	}
	return best.close, best.day, true
}

// Rate implements the spec's rate(from, to, as_of_date) algorithm: same
// code -> 1; direct quote; else inverse of the reverse pair; else a
// 2-leg bridge cross through c.bridge. Never forward-looks past asOf.
func (c *Cache) Rate(from, to string, asOf time.Time) (decimal.Decimal, error) {
	if models.SameCurrency(from, to) {
		return decimal.NewFromInt(1), nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if rate, _, ok := mostRecentOnOrBefore(c.series[pairKey(from, to)], asOf); ok {
		return rate, nil
	}
	if inv, _, ok := mostRecentOnOrBefore(c.series[pairKey(to, from)], asOf); ok {
		if inv.IsZero() {
			return decimal.Zero, &apperrors.ErrFxRateMissing{From: from, To: to, AsOf: asOf}
		}
		return decimal.NewFromInt(1).DivRound(inv, 18), nil
	}

	if !models.SameCurrency(from, c.bridge) && !models.SameCurrency(to, c.bridge) {
		legFrom, okFrom := c.legRate(from, c.bridge, asOf)
		legTo, okTo := c.legRate(c.bridge, to, asOf)
		if okFrom && okTo {
			return legFrom.Mul(legTo), nil
		}
	}

	return decimal.Zero, &apperrors.ErrFxRateMissing{From: from, To: to, AsOf: asOf}
}

// legRate resolves a single leg (direct or inverse only, no further
// bridging) used while building a 2-leg cross.
func (c *Cache) legRate(from, to string, asOf time.Time) (decimal.Decimal, bool) {
	if models.SameCurrency(from, to) {
		return decimal.NewFromInt(1), true
	}
	if rate, _, ok := mostRecentOnOrBefore(c.series[pairKey(from, to)], asOf); ok {
		return rate, true
	}
	if inv, _, ok := mostRecentOnOrBefore(c.series[pairKey(to, from)], asOf); ok && !inv.IsZero() {
		return decimal.NewFromInt(1).DivRound(inv, 18), true
	}
	return decimal.Zero, false
}

// Convert applies Rate(from, to, asOf) to amount.
func (c *Cache) Convert(amount decimal.Decimal, from, to string, asOf time.Time) (decimal.Decimal, error) {
	rate, err := c.Rate(from, to, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}
