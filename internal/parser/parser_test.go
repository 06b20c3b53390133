package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStripsMarkersAndTrims(t *testing.T) {
	text := "- Mercury\n* Venus\n1. Earth\n2) Mars\n• Jupiter"
	got := Parse(text, 0)
	require.Equal(t, []string{"Mercury", "Venus", "Earth", "Mars", "Jupiter"}, got)
}

func TestParseDiscardsEmptyNumericAndShortLines(t *testing.T) {
	text := "\n   \n42\nAB\nSaturn\n3.14159\n"
	got := Parse(text, 0)
	require.Equal(t, []string{"Saturn"}, got)
}

func TestParseDedupesWithinBatch(t *testing.T) {
	text := "Mercury\nmercury\nMERCURY\nVenus"
	got := Parse(text, 0)
	require.Equal(t, []string{"Mercury", "Venus"}, got)
}

func TestParseCapsAtBatchSize(t *testing.T) {
	text := "One\nTwo\nThree\nFour"
	got := Parse(text, 2)
	require.Equal(t, []string{"One", "Two"}, got)
}

func TestParsePreservesSurfaceForm(t *testing.T) {
	text := "  Red Giant Star  "
	got := Parse(text, 0)
	require.Equal(t, []string{"Red Giant Star"}, got)
}
