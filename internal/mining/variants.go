package mining

// IdentifyVariants filters mined patterns down to variants: patterns
// observed in at least minDistinctCases distinct cases that are not a
// strict subsequence of some longer pattern covering the exact same
// cases, per spec.md §4.5. A shorter pattern with identical coverage to
// a longer one necessarily shares its support too, since support is
// derived from coverage; it adds no information beyond the longer
// pattern it is redundant with.
func IdentifyVariants(patterns []Pattern, minDistinctCases int) []Pattern {
	var variants []Pattern
	for i, p := range patterns {
		if distinctCases(p) < minDistinctCases {
			continue
		}
		if subsumedByLonger(p, patterns, i) {
			continue
		}
		variants = append(variants, p)
	}
	return variants
}

func subsumedByLonger(p Pattern, patterns []Pattern, selfIdx int) bool {
	pCoverage := caseCoverage(p)
	for j, q := range patterns {
		if j == selfIdx {
			continue
		}
		if !isSubsequence(p.Labels, q.Labels) {
			continue
		}
		if sameCoverage(pCoverage, caseCoverage(q)) {
			return true
		}
	}
	return false
}

func distinctCases(p Pattern) int {
	return len(caseCoverage(p))
}

func caseCoverage(p Pattern) map[int]bool {
	cov := make(map[int]bool)
	for _, o := range p.Occurrences {
		cov[o.CaseIndex] = true
	}
	return cov
}

func sameCoverage(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// isSubsequence reports whether a is a strict subsequence of b: every
// label of a appears in b in order, with b strictly longer than a.
func isSubsequence(a, b []string) bool {
	if len(a) >= len(b) {
		return false
	}
	i := 0
	for _, lbl := range b {
		if i < len(a) && a[i] == lbl {
			i++
		}
	}
	return i == len(a)
}
