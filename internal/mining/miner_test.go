package mining

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiscoverProducesCandidateFromRepeatedPattern(t *testing.T) {
	cases := [][]LabeledStep{
		steps("A", "B", "C"),
		steps("A", "B", "C"),
		steps("A", "B", "C"),
		steps("X", "Y"),
	}
	opts := DefaultDiscoverOptions()
	opts.Mine.MinSupport = 0.1
	opts.MinVariantCases = 3

	candidates := Discover(cases, opts)
	require.Len(t, candidates, 1)
	require.Equal(t, []string{"A", "B", "C"}, candidates[0].Canonical.Labels)
}

func TestDiscoverReturnsNilWhenNoVariantsReachThreshold(t *testing.T) {
	cases := [][]LabeledStep{
		steps("A", "B"),
		steps("X", "Y"),
	}
	opts := DefaultDiscoverOptions()
	opts.MinVariantCases = 3
	require.Nil(t, Discover(cases, opts))
}
