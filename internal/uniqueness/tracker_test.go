package uniqueness

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIngestRepeatedCandidateYieldsEmptySecondTime(t *testing.T) {
	tr := NewTracker(1000, 0.01)

	newUnique, stats := tr.Ingest("p1", "prov", "model-x", time.Now(), []string{"Mercury"})
	require.Len(t, newUnique, 1)
	require.Equal(t, "Mercury", newUnique[0].Surface)
	require.Equal(t, 0, stats.Duplicates)

	newUnique, stats = tr.Ingest("p1", "prov", "model-x", time.Now(), []string{"mercury"})
	require.Empty(t, newUnique)
	require.Equal(t, 1, stats.Duplicates)
}

func TestIngestPostConditionMembership(t *testing.T) {
	tr := NewTracker(1000, 0.01)
	tr.Ingest("p1", "prov", "m", time.Now(), []string{"Saturn"})
	require.True(t, tr.Contains("saturn"))
	require.True(t, tr.Contains("  Saturn  "))
}

func TestIngestDuplicatesPlusNewEqualsInputLen(t *testing.T) {
	tr := NewTracker(1000, 0.01)
	candidates := []string{"A", "B", "A", "C", "B", "B"}

	newUnique, stats := tr.Ingest("p1", "prov", "m", time.Now(), candidates)
	require.Equal(t, len(candidates), stats.Duplicates+len(newUnique))
	require.Len(t, newUnique, 3)
}

func TestSnapshotNeverFalseNegative(t *testing.T) {
	tr := NewTracker(500, 0.01)
	for i := 0; i < 200; i++ {
		tr.Ingest("p1", "prov", "m", time.Now(), []string{fmt.Sprintf("item-%d", i)})
	}

	_, _, bits := tr.Snapshot()
	lf, err := NewLocalFilterFromSnapshot(bits)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		require.True(t, lf.MightContain(fmt.Sprintf("item-%d", i)))
	}
}

func TestBloomRebuildOnCapacitySaturation(t *testing.T) {
	const capacity = 50
	tr := NewTracker(capacity, 0.05)

	for i := 0; i < capacity+1; i++ {
		tr.Ingest("p1", "prov", "m", time.Now(), []string{fmt.Sprintf("thing-%d", i)})
	}

	require.Equal(t, capacity+1, tr.Len())
	require.Greater(t, tr.capacity, uint(capacity))

	// P1/P2 still hold post-rebuild.
	for i := 0; i < capacity+1; i++ {
		require.True(t, tr.Contains(fmt.Sprintf("thing-%d", i)))
	}
}

func TestIngestEmptyAndBlankCandidatesIgnored(t *testing.T) {
	tr := NewTracker(1000, 0.01)
	newUnique, stats := tr.Ingest("p1", "prov", "m", time.Now(), []string{"", "   ", "Valid"})
	require.Len(t, newUnique, 1)
	require.Equal(t, 0, stats.Duplicates)
}

func TestDirtyFlagTracksIngestState(t *testing.T) {
	tr := NewTracker(1000, 0.01)
	require.False(t, tr.Dirty())

	tr.Ingest("p1", "prov", "m", time.Now(), []string{"X"})
	require.True(t, tr.Dirty())

	tr.ClearDirty()
	require.False(t, tr.Dirty())
	require.Equal(t, uint64(1), tr.Version())
}
