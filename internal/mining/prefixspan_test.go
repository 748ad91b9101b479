package mining

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func steps(labels ...string) []LabeledStep {
	durations := map[string]float64{"A": 1, "B": 2, "C": 3, "D": 4}
	out := make([]LabeledStep, len(labels))
	for i, l := range labels {
		out[i] = LabeledStep{Label: l, Duration: durations[l]}
	}
	return out
}

func findPattern(t *testing.T, patterns []Pattern, labels ...string) Pattern {
	t.Helper()
	for _, p := range patterns {
		if equalLabels(p.Labels, labels) {
			return p
		}
	}
	t.Fatalf("pattern %v not found in %+v", labels, patterns)
	return Pattern{}
}

func TestMineFindsFrequentContiguousPatterns(t *testing.T) {
	cases := [][]LabeledStep{
		steps("A", "B", "C"),
		steps("A", "B", "D"),
		steps("A", "B", "C"),
	}
	patterns := Mine(cases, Options{MinSupport: 0.5, MinLength: 2, MaxLength: 5, Contiguous: true})

	require.Len(t, patterns, 3)
	require.Equal(t, []string{"A", "B"}, patterns[0].Labels)
	require.InDelta(t, 1.0, patterns[0].Support, 1e-9)
	require.InDelta(t, 3.0, patterns[0].AvgDuration, 1e-9)

	require.Equal(t, []string{"B", "C"}, patterns[1].Labels)
	require.InDelta(t, 2.0/3, patterns[1].Support, 1e-9)
	require.InDelta(t, 5.0, patterns[1].AvgDuration, 1e-9)

	require.Equal(t, []string{"A", "B", "C"}, patterns[2].Labels)
	require.InDelta(t, 2.0/3, patterns[2].Support, 1e-9)
	require.InDelta(t, 6.0, patterns[2].AvgDuration, 1e-9)
}

func TestMineRespectsMinSupportThreshold(t *testing.T) {
	cases := [][]LabeledStep{
		steps("A", "B", "C"),
		steps("A", "B", "D"),
		steps("A", "B", "C"),
	}
	patterns := Mine(cases, Options{MinSupport: 0.5, MinLength: 2, MaxLength: 5, Contiguous: true})
	for _, p := range patterns {
		require.NotEqual(t, []string{"A", "B", "D"}, p.Labels)
		require.NotEqual(t, []string{"B", "D"}, p.Labels)
	}
}

func TestMineNonContiguousAllowsSkippedLabels(t *testing.T) {
	cases := [][]LabeledStep{
		steps("A", "X", "B"),
		steps("A", "Y", "B"),
	}
	contiguous := Mine(cases, Options{MinSupport: 1.0, MinLength: 2, MaxLength: 5, Contiguous: true})
	require.Empty(t, contiguous)

	gapped := Mine(cases, Options{MinSupport: 1.0, MinLength: 2, MaxLength: 5, Contiguous: false})
	found := findPattern(t, gapped, "A", "B")
	require.InDelta(t, 1.0, found.Support, 1e-9)
}

func TestMineEmptyCasesReturnsNil(t *testing.T) {
	require.Nil(t, Mine(nil, DefaultOptions()))
}
