package mining

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchWorkflowExactContiguousMatch(t *testing.T) {
	matches := MatchWorkflow([]string{"A", "B", "C"}, []string{"A", "B", "C"}, DefaultMatchOptions())
	require.Len(t, matches, 1)
	require.Equal(t, []int{0, 1, 2}, matches[0].Positions)
}

func TestMatchWorkflowToleratesOneGapLabel(t *testing.T) {
	matches := MatchWorkflow([]string{"A", "X", "B", "C"}, []string{"A", "B", "C"}, MatchOptions{MaxGapInsideWorkflow: 1})
	require.Len(t, matches, 1)
	require.Equal(t, []int{0, 2, 3}, matches[0].Positions)
}

func TestMatchWorkflowFailsWhenGapExceedsTolerance(t *testing.T) {
	matches := MatchWorkflow([]string{"A", "X", "Y", "B", "C"}, []string{"A", "B", "C"}, MatchOptions{MaxGapInsideWorkflow: 1})
	require.Empty(t, matches)
}

func TestMatchWorkflowFindsDisjointRepeatedMatches(t *testing.T) {
	matches := MatchWorkflow([]string{"A", "B", "A", "B"}, []string{"A", "B"}, MatchOptions{MaxGapInsideWorkflow: 0})
	require.Len(t, matches, 2)
	require.Equal(t, []int{0, 1}, matches[0].Positions)
	require.Equal(t, []int{2, 3}, matches[1].Positions)
}

func TestMatchWorkflowEmptyWorkflowReturnsNil(t *testing.T) {
	require.Nil(t, MatchWorkflow([]string{"A"}, nil, DefaultMatchOptions()))
}
