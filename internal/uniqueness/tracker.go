// Package uniqueness implements the orchestrator's authoritative dedup
// engine: a bloom pre-filter backed by an exact set, producing compact
// snapshots for redistribution to workers (spec.md §3, §4.3).
package uniqueness

import (
	"strings"
	"time"

	"github.com/attrforge/swarm/pkg/assert"
)

// DefaultCapacity is the expected member count used to size the bloom
// filter when none is configured (spec.md §3: "typical C = 1,000,000").
const DefaultCapacity = 1_000_000

// DefaultFalsePositiveRate is the target false-positive rate at
// DefaultCapacity (spec.md §3: "default p ≤ 0.01").
const DefaultFalsePositiveRate = 0.01

// Attribute is a normalized unique string plus its origin metadata
// (spec.md §3).
type Attribute struct {
	Normalized string
	Surface    string
	ProducerID string
	ProviderID string
	Model      string
	Timestamp  time.Time
}

// IngestStats reports the outcome of a single Ingest call. Per invariant
// I4, Duplicates + len(new_unique) always equals the number of non-blank
// candidates passed in (blank candidates are skipped and not counted).
type IngestStats struct {
	Duplicates        int
	FalsePositiveHits int
}

// Tracker is the orchestrator's authoritative dedup engine. It is touched
// only by the central event loop (spec.md §5); it holds no internal lock.
type Tracker struct {
	bloom    *bloomFilter
	exact    map[string]Attribute
	capacity uint
	targetFP float64

	dirty   bool
	version uint64
}

// NewTracker creates a Tracker sized for capacity expected members at
// targetFP false-positive rate. A zero capacity or out-of-range targetFP
// falls back to the package defaults.
func NewTracker(capacity uint, targetFP float64) *Tracker {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	if targetFP <= 0 || targetFP >= 1 {
		targetFP = DefaultFalsePositiveRate
	}

	return &Tracker{
		bloom:    newBloomFilter(capacity, targetFP),
		exact:    make(map[string]Attribute, capacity/8),
		capacity: capacity,
		targetFP: targetFP,
	}
}

// normalize produces the dedup key: trim, collapse internal whitespace,
// lowercase. The first-seen surface form is preserved separately.
func normalize(s string) string {
	fields := strings.Fields(s)
	return strings.ToLower(strings.Join(fields, " "))
}

// Ingest applies candidates (already trimmed/parsed, still in original
// surface form) against the tracker. It returns, in input order, the
// attributes that are new, and duplicate/false-positive counters.
//
// Algorithm (spec.md §4.3): probe the bloom filter first. Absent means
// definitely new. Present means consult exact; absent there is a false
// positive (bloom never false-negatives, by construction) and is still
// new; present there is a genuine duplicate.
func (t *Tracker) Ingest(producerID, providerID, model string, ts time.Time, candidates []string) ([]Attribute, IngestStats) {
	var (
		newUnique []Attribute
		stats     IngestStats
	)

	for _, surface := range candidates {
		key := normalize(surface)
		if key == "" {
			continue
		}

		keyBytes := []byte(key)
		probed := t.bloom.test(keyBytes)

		if !probed {
			attr := t.insert(key, surface, producerID, providerID, model, ts)
			newUnique = append(newUnique, attr)
			continue
		}

		if existing, ok := t.exact[key]; ok {
			_ = existing
			stats.Duplicates++
			continue
		}

		// Bloom said present, exact set disagrees: false positive, still new.
		stats.FalsePositiveHits++
		attr := t.insert(key, surface, producerID, providerID, model, ts)
		newUnique = append(newUnique, attr)
	}

	assert.AssertMsg(stats.Duplicates+len(newUnique) == len(filterEmpty(candidates)),
		"uniqueness: duplicates+new_unique must equal candidate count")

	if len(newUnique) > 0 {
		t.dirty = true
		t.maybeRebuild()
	}

	return newUnique, stats
}

func filterEmpty(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if normalize(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

func (t *Tracker) insert(key, surface, producerID, providerID, model string, ts time.Time) Attribute {
	attr := Attribute{
		Normalized: key,
		Surface:    surface,
		ProducerID: producerID,
		ProviderID: providerID,
		Model:      model,
		Timestamp:  ts,
	}
	t.exact[key] = attr
	t.bloom.add([]byte(key))

	assert.AssertMsg(t.bloom.test([]byte(key)), "uniqueness: bloom must never false-negative a just-inserted key")

	return attr
}

// maybeRebuild doubles the bloom's bit array and rebuilds it from the
// exact set once membership exceeds the configured capacity (spec.md
// §4.3: "if |exact| exceeds C, double m and rebuild from exact"). The
// rebuild is O(|exact|·k) but rare; workers keep using the stale snapshot
// until the next broadcast, which is correct because the orchestrator
// remains authoritative.
func (t *Tracker) maybeRebuild() {
	if uint(len(t.exact)) <= t.capacity {
		return
	}

	t.capacity *= 2
	rebuilt := newBloomFilter(t.capacity, t.targetFP)
	for key := range t.exact {
		rebuilt.add([]byte(key))
	}
	t.bloom = rebuilt
}

// Contains reports whether the normalized form of s is already a known
// unique attribute. Exposed for tests and for the orchestrator's exact-set
// authority checks; never used on the worker's hot path (workers only see
// bloom snapshots).
func (t *Tracker) Contains(s string) bool {
	_, ok := t.exact[normalize(s)]
	return ok
}

// Len returns the number of unique attributes known so far.
func (t *Tracker) Len() int {
	return len(t.exact)
}

// Dirty reports whether Ingest has added members since the last
// ClearDirty, i.e. whether a bloom broadcast is owed.
func (t *Tracker) Dirty() bool {
	return t.dirty
}

// ClearDirty resets the dirty flag after a broadcast has been sent and
// bumps the snapshot version.
func (t *Tracker) ClearDirty() {
	t.dirty = false
	t.version++
}

// Version returns the snapshot version last cleared, for logging.
func (t *Tracker) Version() uint64 {
	return t.version
}

// Snapshot returns a compact, immutable byte representation of the
// current bloom filter, suitable for broadcast to workers. Per spec.md §5
// the returned slice is treated as reference-shared and never mutated in
// place; a new Snapshot call always allocates fresh.
func (t *Tracker) Snapshot() (m, k uint, bits []byte) {
	return t.bloom.m, t.bloom.k, t.bloom.marshal()
}

// FillRatio exposes the bloom filter's bit occupancy, for metrics only.
func (t *Tracker) FillRatio() float64 {
	return t.bloom.fillRatio()
}
