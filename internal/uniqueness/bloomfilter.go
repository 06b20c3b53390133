package uniqueness

import (
	"encoding/binary"
	"errors"
	"hash/fnv"
	"math"
	"math/bits"
)

// bloomFilter is a fixed-size probabilistic set, sized for an expected
// capacity and target false-positive rate per spec.md §4.3 and §9 ("expose
// (expected_capacity, target_fp_rate), derive (m, k); never expose (m, k)
// directly"). The double-hashing technique (Kirsch & Mitzenmacher 2006)
// derives k bit positions from two base hashes, avoiding k independent hash
// functions.
type bloomFilter struct {
	bitWords []uint64
	m        uint
	k        uint
	count    uint
}

const (
	bitsPerWord     = 64
	ln2Squared      = math.Ln2 * math.Ln2
	bloomHeaderSize = 24 // m, k, count as big-endian uint64 each
	uint64Size      = 8
)

var (
	errBloomDataTooShort    = errors.New("uniqueness: bloom snapshot too short")
	errBloomDataLenMismatch = errors.New("uniqueness: bloom snapshot length mismatch")
)

// newBloomFilter sizes a filter for n expected elements at false-positive
// rate fp, using the standard optimal-m / optimal-k formulas.
func newBloomFilter(n uint, fp float64) *bloomFilter {
	if n == 0 {
		n = 1
	}
	if fp <= 0 || fp >= 1 {
		fp = 0.01
	}

	m := optimalM(n, fp)
	k := optimalK(m, n)
	words := (m + bitsPerWord - 1) / bitsPerWord

	return &bloomFilter{
		bitWords: make([]uint64, words),
		m:        m,
		k:        k,
	}
}

func optimalM(n uint, fp float64) uint {
	return uint(math.Ceil(-float64(n) * math.Log(fp) / ln2Squared))
}

func optimalK(m, n uint) uint {
	k := uint(math.Round(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		return 1
	}
	return k
}

// add sets the k bit positions for data.
func (f *bloomFilter) add(data []byte) {
	h1, h2 := hashKernel(data)
	for i := uint(0); i < f.k; i++ {
		pos := (h1 + uint64(i)*h2) % uint64(f.m)
		f.bitWords[pos/bitsPerWord] |= 1 << (pos % bitsPerWord)
	}
	f.count++
}

// test reports whether data is possibly in the filter. False is definite;
// true may be a false positive.
func (f *bloomFilter) test(data []byte) bool {
	h1, h2 := hashKernel(data)
	for i := uint(0); i < f.k; i++ {
		pos := (h1 + uint64(i)*h2) % uint64(f.m)
		if f.bitWords[pos/bitsPerWord]&(1<<(pos%bitsPerWord)) == 0 {
			return false
		}
	}
	return true
}

// fillRatio returns the fraction of set bits, used only for diagnostics.
func (f *bloomFilter) fillRatio() float64 {
	total := 0
	for _, w := range f.bitWords {
		total += bits.OnesCount64(w)
	}
	return float64(total) / float64(f.m)
}

// marshal encodes the filter as [m][k][count][bits...], all big-endian.
func (f *bloomFilter) marshal() []byte {
	buf := make([]byte, bloomHeaderSize+len(f.bitWords)*uint64Size)
	binary.BigEndian.PutUint64(buf[0:uint64Size], uint64(f.m))
	binary.BigEndian.PutUint64(buf[uint64Size:2*uint64Size], uint64(f.k))
	binary.BigEndian.PutUint64(buf[2*uint64Size:bloomHeaderSize], uint64(f.count))
	for i, w := range f.bitWords {
		binary.BigEndian.PutUint64(buf[bloomHeaderSize+i*uint64Size:bloomHeaderSize+(i+1)*uint64Size], w)
	}
	return buf
}

// unmarshalBloomFilter decodes a filter produced by marshal.
func unmarshalBloomFilter(data []byte) (*bloomFilter, error) {
	if len(data) < bloomHeaderSize {
		return nil, errBloomDataTooShort
	}

	m := binary.BigEndian.Uint64(data[0:uint64Size])
	k := binary.BigEndian.Uint64(data[uint64Size : 2*uint64Size])
	count := binary.BigEndian.Uint64(data[2*uint64Size : bloomHeaderSize])

	words := (m + bitsPerWord - 1) / bitsPerWord
	if uint64(len(data)-bloomHeaderSize) != words*uint64Size {
		return nil, errBloomDataLenMismatch
	}

	bitWords := make([]uint64, words)
	for i := range bitWords {
		bitWords[i] = binary.BigEndian.Uint64(data[bloomHeaderSize+i*uint64Size : bloomHeaderSize+(i+1)*uint64Size])
	}

	return &bloomFilter{bitWords: bitWords, m: uint(m), k: uint(k), count: uint(count)}, nil
}

// hashKernel derives two independent 64-bit hashes from data using
// FNV-128a, splitting the digest into two halves per Kirsch/Mitzenmacher.
func hashKernel(data []byte) (h1, h2 uint64) {
	h := fnv.New128a()
	_, _ = h.Write(data)
	sum := h.Sum(nil)

	h1 = binary.BigEndian.Uint64(sum[:8])
	h2 = binary.BigEndian.Uint64(sum[8:])
	h2 |= 1 // force odd so gcd(h2, m) avoids degenerate cycling
	return h1, h2
}
