package mining

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func occ(caseIndices ...int) []Occurrence {
	out := make([]Occurrence, len(caseIndices))
	for i, ci := range caseIndices {
		out[i] = Occurrence{CaseIndex: ci, Positions: []int{0}}
	}
	return out
}

func TestIdentifyVariantsDropsBelowMinDistinctCases(t *testing.T) {
	patterns := []Pattern{
		{Labels: []string{"A", "B"}, Support: 0.5, Occurrences: occ(0, 1)},
	}
	variants := IdentifyVariants(patterns, 3)
	require.Empty(t, variants)
}

func TestIdentifyVariantsDropsShortPatternSubsumedByLongerWithEqualCoverage(t *testing.T) {
	patterns := []Pattern{
		{Labels: []string{"A", "B"}, Support: 1.0, Occurrences: occ(0, 1, 2)},
		{Labels: []string{"A", "B", "C"}, Support: 0.6, Occurrences: occ(0, 1, 2)},
	}
	variants := IdentifyVariants(patterns, 3)
	require.Len(t, variants, 1)
	require.Equal(t, []string{"A", "B", "C"}, variants[0].Labels)
}

func TestIdentifyVariantsKeepsPatternsWithDifferentCoverage(t *testing.T) {
	patterns := []Pattern{
		{Labels: []string{"A", "B"}, Support: 1.0, Occurrences: occ(0, 1, 2, 3)},
		{Labels: []string{"A", "B", "C"}, Support: 0.75, Occurrences: occ(0, 1, 2)},
	}
	variants := IdentifyVariants(patterns, 3)
	require.Len(t, variants, 2)
}

func TestIsSubsequence(t *testing.T) {
	require.True(t, isSubsequence([]string{"A", "C"}, []string{"A", "B", "C"}))
	require.False(t, isSubsequence([]string{"A", "D"}, []string{"A", "B", "C"}))
	require.False(t, isSubsequence([]string{"A", "B"}, []string{"A", "B"}))
}
