// Package mining discovers frequent sequential patterns across cases,
// clusters their variants into candidate Workflows, and matches saved
// Workflows against new cases, per spec.md §4.5.
package mining

import (
	"math"
	"sort"
)

// LabeledStep is the minimal per-step data the miner needs: its activity
// label and duration, keeping this package independent of the store and
// casebuilder representations.
type LabeledStep struct {
	Label    string
	Duration float64
}

// Occurrence is one match of a pattern within a single case: the case's
// index in the input slice and the step positions, in order, the
// pattern's labels matched at.
type Occurrence struct {
	CaseIndex int
	Positions []int
}

// Pattern is one frequent sequential pattern.
type Pattern struct {
	Labels      []string
	Occurrences []Occurrence
	Support     float64
	AvgDuration float64
}

// Options configures Mine.
type Options struct {
	MinSupport float64 // fraction of cases, default 0.1
	MinLength  int     // default 2
	MaxLength  int     // default 10
	Contiguous bool    // default true: next label must be adjacent
}

// DefaultOptions returns spec.md §4.5's default mining parameters.
func DefaultOptions() Options {
	return Options{MinSupport: 0.1, MinLength: 2, MaxLength: 10, Contiguous: true}
}

type occCursor struct {
	caseIndex int
	positions []int
}

// Mine runs a PrefixSpan-style depth-first expansion over cases, each a
// sequence of step activity labels, per spec.md §4.5. For determinism
// and to bound the search space, each case contributes at most one
// (earliest) occurrence per pattern rather than every possible match.
func Mine(cases [][]LabeledStep, opts Options) []Pattern {
	n := len(cases)
	if n == 0 {
		return nil
	}
	if opts.MinLength <= 0 {
		opts.MinLength = 2
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = 10
	}
	maxSkip := 0
	if !opts.Contiguous {
		maxSkip = 2
	}
	minCount := int(math.Ceil(opts.MinSupport * float64(n)))
	if minCount < 1 {
		minCount = 1
	}

	labelSet := map[string]bool{}
	for _, c := range cases {
		for _, s := range c {
			labelSet[s.Label] = true
		}
	}
	labels := make([]string, 0, len(labelSet))
	for l := range labelSet {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	var results []Pattern
	for _, l := range labels {
		var occ []occCursor
		for ci, c := range cases {
			for pi, s := range c {
				if s.Label == l {
					occ = append(occ, occCursor{caseIndex: ci, positions: []int{pi}})
					break
				}
			}
		}
		if distinctCaseCount(occ) < minCount {
			continue
		}
		grow(cases, []string{l}, occ, opts, maxSkip, minCount, n, &results)
	}

	sortPatterns(results)
	return results
}

func grow(cases [][]LabeledStep, prefix []string, occ []occCursor, opts Options, maxSkip, minCount, n int, results *[]Pattern) {
	if len(prefix) >= opts.MinLength {
		*results = append(*results, buildPattern(cases, prefix, occ, n))
	}
	if len(prefix) >= opts.MaxLength {
		return
	}

	ext := map[string][]occCursor{}
	seen := map[string]map[int]bool{}
	for _, o := range occ {
		c := cases[o.caseIndex]
		lastPos := o.positions[len(o.positions)-1]
		limit := lastPos + 1 + maxSkip
		if limit > len(c)-1 {
			limit = len(c) - 1
		}
		for np := lastPos + 1; np <= limit; np++ {
			lbl := c[np].Label
			if seen[lbl] == nil {
				seen[lbl] = map[int]bool{}
			}
			if seen[lbl][o.caseIndex] {
				continue
			}
			seen[lbl][o.caseIndex] = true
			positions := append(append([]int{}, o.positions...), np)
			ext[lbl] = append(ext[lbl], occCursor{caseIndex: o.caseIndex, positions: positions})
		}
	}

	nextLabels := make([]string, 0, len(ext))
	for l := range ext {
		nextLabels = append(nextLabels, l)
	}
	sort.Strings(nextLabels)

	for _, lbl := range nextLabels {
		candOcc := ext[lbl]
		if distinctCaseCount(candOcc) < minCount {
			continue
		}
		grow(cases, append(append([]string{}, prefix...), lbl), candOcc, opts, maxSkip, minCount, n, results)
	}
}

func buildPattern(cases [][]LabeledStep, prefix []string, occ []occCursor, n int) Pattern {
	labels := append([]string{}, prefix...)
	occurrences := make([]Occurrence, 0, len(occ))
	distinct := map[int]bool{}
	var totalDuration float64
	for _, o := range occ {
		distinct[o.caseIndex] = true
		var dur float64
		for _, pos := range o.positions {
			dur += cases[o.caseIndex][pos].Duration
		}
		totalDuration += dur
		occurrences = append(occurrences, Occurrence{CaseIndex: o.caseIndex, Positions: append([]int{}, o.positions...)})
	}
	avg := 0.0
	if len(occurrences) > 0 {
		avg = totalDuration / float64(len(occurrences))
	}
	return Pattern{
		Labels:      labels,
		Occurrences: occurrences,
		Support:     float64(len(distinct)) / float64(n),
		AvgDuration: avg,
	}
}

func distinctCaseCount(occ []occCursor) int {
	seen := map[int]bool{}
	for _, o := range occ {
		seen[o.caseIndex] = true
	}
	return len(seen)
}

// sortPatterns orders patterns by descending support, ascending length,
// then lexicographically by labels, per spec.md §4.5's determinism
// requirement.
func sortPatterns(patterns []Pattern) {
	sort.Slice(patterns, func(i, j int) bool {
		a, b := patterns[i], patterns[j]
		if a.Support != b.Support {
			return a.Support > b.Support
		}
		if len(a.Labels) != len(b.Labels) {
			return len(a.Labels) < len(b.Labels)
		}
		for k := range a.Labels {
			if a.Labels[k] != b.Labels[k] {
				return a.Labels[k] < b.Labels[k]
			}
		}
		return false
	})
}
