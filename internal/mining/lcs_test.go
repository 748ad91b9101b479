package mining

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLCSBasic(t *testing.T) {
	got := lcs([]string{"A", "B", "C", "D"}, []string{"A", "C", "D", "E"})
	require.Equal(t, []string{"A", "C", "D"}, got)
}

func TestCanonicalPatternFallsBackToSyntheticLabelsWhenNoMemberMatches(t *testing.T) {
	cluster := []Pattern{
		{Labels: []string{"A", "B", "C"}, Support: 0.9},
		{Labels: []string{"A", "B", "D"}, Support: 0.5},
	}
	canon := CanonicalPattern(cluster)
	require.Equal(t, []string{"A", "B"}, canon.Labels)
	require.InDelta(t, 0.9, canon.Support, 1e-9)
}

func TestCanonicalPatternReturnsExactMemberOnMatch(t *testing.T) {
	cluster := []Pattern{
		{Labels: []string{"A", "B", "C"}, Support: 0.9},
		{Labels: []string{"A", "B"}, Support: 0.4},
		{Labels: []string{"A", "B", "D"}, Support: 0.3},
	}
	canon := CanonicalPattern(cluster)
	require.Equal(t, []string{"A", "B"}, canon.Labels)
	require.InDelta(t, 0.4, canon.Support, 1e-9)
}

func TestCanonicalPatternSingleMember(t *testing.T) {
	cluster := []Pattern{{Labels: []string{"A", "B"}, Support: 1.0}}
	canon := CanonicalPattern(cluster)
	require.Equal(t, []string{"A", "B"}, canon.Labels)
}

func TestCanonicalPatternEmptyCluster(t *testing.T) {
	require.Equal(t, Pattern{}, CanonicalPattern(nil))
}
