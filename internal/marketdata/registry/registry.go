// Package registry implements ProviderRegistry (spec.md §4.3): an
// ordered, enable-able set of quote-provider descriptors with per-
// provider policy, grounded on the teacher's admin-service enable/
// priority mutation pattern (internal/services/admin_service.go,
// internal/handlers/admin.go) generalized from config CRUD to provider
// routing.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"

	apperrors "github.com/wealthfolio/portfolio-engine/internal/errors"
)

// Descriptor is a single provider's identity and policy.
type Descriptor struct {
	ID               string
	Enabled          bool
	Priority         int // lower runs first
	RateLimitPerSec  float64
	DailyQuota       int
	SupportsBulk     bool
	SupportsFx       bool
}

// routingTable is the immutable snapshot swapped atomically on mutation.
type routingTable struct {
	ordered []Descriptor
	byID    map[string]Descriptor
}

func buildTable(descs []Descriptor) *routingTable {
	ordered := make([]Descriptor, len(descs))
	copy(ordered, descs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })
	byID := make(map[string]Descriptor, len(ordered))
	for _, d := range ordered {
		byID[d.ID] = d
	}
	return &routingTable{ordered: ordered, byID: byID}
}

// Registry holds the provider descriptor set. Reads go through an
// atomic.Pointer so MarketDataClient never blocks on a mutation; writes
// take a mutex to serialize concurrent admin changes.
type Registry struct {
	mu    sync.Mutex
	table atomic.Pointer[routingTable]
}

// New builds a registry seeded with the given descriptors.
func New(descs ...Descriptor) *Registry {
	r := &Registry{}
	r.table.Store(buildTable(descs))
	return r
}

// Enabled returns the enabled providers in priority order. This is the
// routing list MarketDataClient.latest/history walk through.
func (r *Registry) Enabled() []Descriptor {
	t := r.table.Load()
	out := make([]Descriptor, 0, len(t.ordered))
	for _, d := range t.ordered {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// All returns every descriptor, enabled or not, in priority order.
func (r *Registry) All() []Descriptor {
	t := r.table.Load()
	out := make([]Descriptor, len(t.ordered))
	copy(out, t.ordered)
	return out
}

// Get looks up a single provider by id.
func (r *Registry) Get(id string) (Descriptor, error) {
	t := r.table.Load()
	d, ok := t.byID[id]
	if !ok {
		return Descriptor{}, &apperrors.ErrNotFound{Kind: "Provider", ID: id}
	}
	return d, nil
}

// SetEnabled flips a provider's enabled flag and atomically swaps the
// routing table so in-flight reads never see a half-mutated descriptor
// list (spec.md §4.3: "invalidates MarketDataClient's routing table
// atomically").
func (r *Registry) SetEnabled(id string, enabled bool) error {
	return r.mutate(id, func(d *Descriptor) { d.Enabled = enabled })
}

// SetPriority changes a provider's priority and re-sorts the table.
func (r *Registry) SetPriority(id string, priority int) error {
	return r.mutate(id, func(d *Descriptor) { d.Priority = priority })
}

func (r *Registry) mutate(id string, apply func(*Descriptor)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.table.Load()
	d, ok := t.byID[id]
	if !ok {
		return &apperrors.ErrNotFound{Kind: "Provider", ID: id}
	}
	apply(&d)

	next := make([]Descriptor, 0, len(t.ordered))
	for _, existing := range t.ordered {
		if existing.ID == id {
			next = append(next, d)
		} else {
			next = append(next, existing)
		}
	}
	r.table.Store(buildTable(next))
	return nil
}
