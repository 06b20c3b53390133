package provider

import (
	"errors"
	"math/rand"
	"time"
)

// ErrNoHealthyProvider is returned by Registry.Select when every
// configured provider is currently excluded.
var ErrNoHealthyProvider = errors.New("provider: no healthy provider available")

// entry pairs a Provider with its routing weight and health breaker.
type entry struct {
	p       Provider
	weight  float64
	breaker *Breaker
}

// Registry holds the set of providers assigned to a worker along with
// their routing weights and per-provider circuit breakers, implementing
// the weighted-random-over-healthy-providers selection rule (spec.md
// §4.6 step 1).
type Registry struct {
	entries []entry
	rng     *rand.Rand
}

// NewRegistry builds a Registry. rngSeed lets tests make selection
// deterministic; cmd/worker passes a seed derived from the worker's ID.
func NewRegistry(rngSeed int64) *Registry {
	return &Registry{rng: rand.New(rand.NewSource(rngSeed))}
}

// Add registers a provider with its routing weight.
func (r *Registry) Add(p Provider, weight float64) {
	r.entries = append(r.entries, entry{p: p, weight: weight, breaker: NewBreaker(3, 30*time.Second)})
}

// SetWeights replaces routing weights in place (e.g. after an
// UpdateConfig hot-swap), matching entries by provider ID. Unknown IDs
// are ignored.
func (r *Registry) SetWeights(weights map[string]float64) {
	for i := range r.entries {
		if w, ok := weights[r.entries[i].p.ID()]; ok {
			r.entries[i].weight = w
		}
	}
}

// Select picks one healthy provider weighted by its routing weight. A
// provider is healthy iff its breaker currently Allows a call. Returns
// ErrNoHealthyProvider if none do, so the caller can apply the backoff
// policy in spec.md §4.6 step 1 and retry selection.
func (r *Registry) Select(now time.Time) (Provider, *Breaker, error) {
	var (
		healthy    []entry
		totalWeight float64
	)

	for _, e := range r.entries {
		if e.breaker.Allow(now) {
			healthy = append(healthy, e)
			totalWeight += e.weight
		}
	}

	if len(healthy) == 0 {
		return nil, nil, ErrNoHealthyProvider
	}

	if totalWeight <= 0 {
		chosen := healthy[r.rng.Intn(len(healthy))]
		return chosen.p, chosen.breaker, nil
	}

	target := r.rng.Float64() * totalWeight
	var cursor float64
	for _, e := range healthy {
		cursor += e.weight
		if target < cursor {
			return e.p, e.breaker, nil
		}
	}

	last := healthy[len(healthy)-1]
	return last.p, last.breaker, nil
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	return len(r.entries)
}
