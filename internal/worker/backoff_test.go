package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDoublesUpToMax(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	require.Equal(t, time.Second, backoff(base, max, 0))
	require.Equal(t, 2*time.Second, backoff(base, max, 1))
	require.Equal(t, 4*time.Second, backoff(base, max, 2))
	require.Equal(t, max, backoff(base, max, 10))
}

func TestBuildPromptSubstitutesPlaceholders(t *testing.T) {
	got := buildPrompt("List {batch_size} attributes of {topic}.", "volcanoes", 10)
	require.Contains(t, got, "List 10 attributes of volcanoes.")
	require.Contains(t, got, "One entry per line.")
}
