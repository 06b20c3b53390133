package filesink

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSanitizeTopicCollapsesWhitespaceAndCase(t *testing.T) {
	require.Equal(t, "space_exploration", SanitizeTopic("  Space   Exploration!! "))
	require.Equal(t, "volcanoes_2024", SanitizeTopic("Volcanoes 2024"))
}

func TestSinkWritesFlushedLinesInOrder(t *testing.T) {
	base := t.TempDir()
	sink, err := Open(base, "Test Topic", 2, "list {topic}", map[string]float64{"p1": 1}, 0)
	require.NoError(t, err)

	sink.Append(Entry{Attr: "A", ProducerID: "w1", ProviderID: "p1", Model: "m", Timestamp: time.Now()})
	sink.Append(Entry{Attr: "B", ProducerID: "w1", ProviderID: "p1", Model: "m", Timestamp: time.Now()})

	require.NoError(t, sink.Flush())
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(filepath.Join(base, "test_topic", "output.txt"))
	require.NoError(t, err)
	require.Equal(t, "A\nB\n", string(data))
}

func TestSinkWriteMetadataIncludesCounts(t *testing.T) {
	base := t.TempDir()
	sink, err := Open(base, "Counting", 1, "prompt", nil, 0)
	require.NoError(t, err)

	sink.Append(Entry{Attr: "X"})
	sink.Append(Entry{Attr: "Y"})
	require.NoError(t, sink.WriteMetadata(Metadata{Topic: "Counting"}))

	data, err := os.ReadFile(filepath.Join(base, "counting", "metadata.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"total_unique": 2`)
}

func TestSinkOverwritesExistingDirectory(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "dup_topic")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.txt"), []byte("old"), 0o644))

	sink, err := Open(base, "Dup Topic", 1, "p", nil, 0)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	_, err = os.Stat(filepath.Join(dir, "stale.txt"))
	require.True(t, os.IsNotExist(err))
}
