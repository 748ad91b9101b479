package mining

// DiscoverOptions bundles the three stages' parameters behind one call.
type DiscoverOptions struct {
	Mine    Options
	Cluster ClusterOptions
	// MinVariantCases is the minimum distinct-case count a mined pattern
	// must reach before it is treated as a candidate workflow variant.
	MinVariantCases int
}

// DefaultDiscoverOptions returns spec.md §4.5's defaults for the full
// pattern-mining-to-workflow-candidate pipeline.
func DefaultDiscoverOptions() DiscoverOptions {
	return DiscoverOptions{
		Mine:            DefaultOptions(),
		Cluster:         DefaultClusterOptions(),
		MinVariantCases: 3,
	}
}

// WorkflowCandidate is a cluster of related pattern variants reduced to
// one canonical label sequence, ready to be reconciled against stored
// Workflows.
type WorkflowCandidate struct {
	Canonical Pattern
	Variants  []Pattern
}

// Discover runs sequential pattern mining, variant identification, and
// single-link clustering over a batch of cases, returning one
// WorkflowCandidate per cluster. Clusters are returned in the order
// Cluster produces them, which is stable for a given input.
func Discover(cases [][]LabeledStep, opts DiscoverOptions) []WorkflowCandidate {
	patterns := Mine(cases, opts.Mine)
	variants := IdentifyVariants(patterns, opts.MinVariantCases)
	if len(variants) == 0 {
		return nil
	}
	clusters := Cluster(variants, opts.Cluster)

	candidates := make([]WorkflowCandidate, 0, len(clusters))
	for _, cluster := range clusters {
		candidates = append(candidates, WorkflowCandidate{
			Canonical: CanonicalPattern(cluster),
			Variants:  cluster,
		})
	}
	return candidates
}
