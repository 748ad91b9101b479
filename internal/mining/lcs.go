package mining

// lcs returns the longest common subsequence of two label sequences via
// the standard dynamic-programming construction.
func lcs(a, b []string) []string {
	n, m := len(a), len(b)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			switch {
			case a[i] == b[j]:
				dp[i][j] = dp[i+1][j+1] + 1
			case dp[i+1][j] >= dp[i][j+1]:
				dp[i][j] = dp[i+1][j]
			default:
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var out []string
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return out
}

// CanonicalPattern picks a cluster's canonical representative: the
// longest common subsequence shared across every member's labels,
// folded pairwise in descending-support order so that ties in the fold
// favor the cluster's highest-support member, per spec.md §4.5. If a
// cluster member's labels exactly equal the resulting common sequence,
// that member (with its own occurrences and duration) is returned;
// otherwise a synthetic pattern carrying only the label sequence is
// returned.
func CanonicalPattern(cluster []Pattern) Pattern {
	if len(cluster) == 0 {
		return Pattern{}
	}
	ordered := append([]Pattern{}, cluster...)
	sortPatterns(ordered)

	common := ordered[0].Labels
	for _, p := range ordered[1:] {
		common = lcs(common, p.Labels)
	}
	if len(common) == 0 {
		return ordered[0]
	}
	for _, p := range ordered {
		if equalLabels(p.Labels, common) {
			return p
		}
	}
	return Pattern{Labels: common, Support: ordered[0].Support}
}

func equalLabels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
