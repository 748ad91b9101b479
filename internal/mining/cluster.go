package mining

import (
	"github.com/agnivade/levenshtein"
)

// ClusterOptions configures Cluster.
type ClusterOptions struct {
	Threshold float64 // normalized similarity, default 0.8
}

// DefaultClusterOptions returns spec.md §4.5's default clustering
// threshold.
func DefaultClusterOptions() ClusterOptions {
	return ClusterOptions{Threshold: 0.8}
}

// Similarity returns the normalized Levenshtein similarity between two
// label sequences: 1 - edit_distance / max(len(a), len(b)). Each
// distinct label is encoded as a single rune before the edit distance
// is computed, so a multi-character label compares as one token rather
// than character by character.
func Similarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	ea, eb := encodeLabelSequences(a, b)
	dist := levenshtein.ComputeDistance(ea, eb)
	return 1 - float64(dist)/float64(maxLen)
}

func encodeLabelSequences(a, b []string) (string, string) {
	alphabet := map[string]rune{}
	next := rune(0x2500)
	assign := func(lbl string) rune {
		if r, ok := alphabet[lbl]; ok {
			return r
		}
		r := next
		alphabet[lbl] = r
		next++
		return r
	}
	ra := make([]rune, len(a))
	for i, l := range a {
		ra[i] = assign(l)
	}
	rb := make([]rune, len(b))
	for i, l := range b {
		rb[i] = assign(l)
	}
	return string(ra), string(rb)
}

// Cluster groups patterns by single-link agglomerative clustering: two
// patterns land in the same cluster once a chain of pairwise
// similarities at or above opts.Threshold connects them, per
// spec.md §4.5's variant-clustering step. Clusters are returned ordered
// by the lowest original pattern index they contain, so the result is
// deterministic for a given (already-sorted) input.
func Cluster(patterns []Pattern, opts ClusterOptions) [][]Pattern {
	n := len(patterns)
	if n == 0 {
		return nil
	}
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if Similarity(patterns[i].Labels, patterns[j].Labels) >= opts.Threshold {
				union(i, j)
			}
		}
	}

	groups := map[int][]Pattern{}
	var order []int
	for i := 0; i < n; i++ {
		root := find(i)
		if _, ok := groups[root]; !ok {
			order = append(order, root)
		}
		groups[root] = append(groups[root], patterns[i])
	}

	out := make([][]Pattern, 0, len(order))
	for _, root := range order {
		out = append(out, groups[root])
	}
	return out
}
