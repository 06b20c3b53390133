package uniqueness

// LocalFilter is the worker-side read-only view of the orchestrator's
// bloom snapshot (spec.md §4.6 step 5). It is replaced wholesale whenever
// a new UpdateBloom frame arrives; never mutated in place.
type LocalFilter struct {
	bf *bloomFilter
}

// NewLocalFilterFromSnapshot decodes a snapshot produced by
// Tracker.Snapshot for worker-side pre-filtering.
func NewLocalFilterFromSnapshot(bits []byte) (*LocalFilter, error) {
	bf, err := unmarshalBloomFilter(bits)
	if err != nil {
		return nil, err
	}
	return &LocalFilter{bf: bf}, nil
}

// MightContain reports whether s is possibly already a known attribute.
// False is a hard guarantee of absence from the snapshot this filter was
// built from; true may be a false positive, so local filtering is
// best-effort and never authoritative (spec.md §4.6 step 5).
func (l *LocalFilter) MightContain(s string) bool {
	if l == nil {
		return false
	}
	return l.bf.test([]byte(normalize(s)))
}
