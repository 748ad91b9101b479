package mining

// MatchOptions configures MatchWorkflow.
type MatchOptions struct {
	MaxGapInsideWorkflow int // default 1
}

// DefaultMatchOptions returns spec.md §4.5's default workflow matching
// gap tolerance.
func DefaultMatchOptions() MatchOptions {
	return MatchOptions{MaxGapInsideWorkflow: 1}
}

// Match is one occurrence of a workflow's canonical label sequence
// found inside a case, carrying the step positions it matched in order.
type Match struct {
	Positions []int
}

// MatchWorkflow finds disjoint occurrences of workflow's label sequence
// within caseLabels, scanning left to right and accepting up to
// opts.MaxGapInsideWorkflow unmatched labels between two consecutive
// workflow steps. Matches are greedy and earliest-start first: once a
// case step is claimed by a match it cannot be reused by a later one.
func MatchWorkflow(caseLabels []string, workflow []string, opts MatchOptions) []Match {
	if len(workflow) == 0 {
		return nil
	}
	claimed := make([]bool, len(caseLabels))
	var matches []Match

	for start := 0; start < len(caseLabels); start++ {
		if claimed[start] || caseLabels[start] != workflow[0] {
			continue
		}
		positions := []int{start}
		cursor := start
		matched := true
		for wi := 1; wi < len(workflow); wi++ {
			found := -1
			limit := cursor + 1 + opts.MaxGapInsideWorkflow
			for p := cursor + 1; p <= limit && p < len(caseLabels); p++ {
				if claimed[p] {
					continue
				}
				if caseLabels[p] == workflow[wi] {
					found = p
					break
				}
			}
			if found < 0 {
				matched = false
				break
			}
			positions = append(positions, found)
			cursor = found
		}
		if !matched {
			continue
		}
		for _, p := range positions {
			claimed[p] = true
		}
		matches = append(matches, Match{Positions: positions})
	}
	return matches
}
