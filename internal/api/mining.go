package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/flowmine/engine/internal/apierr"
	"github.com/flowmine/engine/internal/casebuilder"
	"github.com/flowmine/engine/internal/mining"
	"github.com/flowmine/engine/internal/store"
)

// syncMiningThreshold is the event-count cutoff below which
// POST /mining/patterns answers synchronously, per spec.md §6.
const syncMiningThreshold = 10000

type rangeRequest struct {
	Start         string  `json:"start"`
	End           string  `json:"end"`
	Bucket        string  `json:"bucket,omitempty"`
	MinSupport    float64 `json:"min_support,omitempty"`
	MinLength     int     `json:"min_length,omitempty"`
	MaxLength     int     `json:"max_length,omitempty"`
	MaxGapSeconds int     `json:"max_gap_seconds,omitempty"`
	Key           string  `json:"key,omitempty"`
}

type patternBody struct {
	Labels      []string `json:"labels"`
	Support     float64  `json:"support"`
	AvgDuration float64  `json:"avg_duration"`
}

func patternToBody(p mining.Pattern) patternBody {
	return patternBody{Labels: p.Labels, Support: p.Support, AvgDuration: p.AvgDuration}
}

// buildLabeledCases reads events in [start, end), sessionises them with
// the api's configured gap/AFK thresholds, and labels each synthesised
// step from the links already on record. Unlike the orchestrator, it
// never runs extraction or persists steps: these endpoints are read-only
// previews over whatever has already been extracted.
func (a *API) buildLabeledCases(ctx context.Context, bucket, start, end string) ([]casebuilder.Case, [][]mining.LabeledStep, error) {
	events, err := a.Store.ReadEvents(ctx, bucket, start, end)
	if err != nil {
		return nil, nil, err
	}
	objectsOf := func(ev store.Event) []store.UUID {
		links, err := a.Store.ObjectsForEvent(ctx, ev.BucketID, ev.ID)
		if err != nil {
			return nil
		}
		ids := make([]store.UUID, len(links))
		for i, l := range links {
			ids[i] = l.ObjectID
		}
		return ids
	}
	cases, err := casebuilder.Sessionize(events, a.MaxGap, nil, a.AFKMinDuration)
	if err != nil {
		return nil, nil, err
	}
	cases = casebuilder.RefineByObjectCoherence(cases, objectsOf)

	labeled := make([][]mining.LabeledStep, len(cases))
	for i, c := range cases {
		steps, err := casebuilder.SynthesizeSteps(c, objectsOf)
		if err != nil {
			return nil, nil, err
		}
		ls := make([]mining.LabeledStep, len(steps))
		for j, st := range steps {
			ls[j] = mining.LabeledStep{Label: st.Label, Duration: st.Duration}
		}
		labeled[i] = ls
	}
	return cases, labeled, nil
}

func (a *API) minePatterns(w http.ResponseWriter, r *http.Request) {
	var req rangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	events, err := a.Store.ReadEvents(r.Context(), req.Bucket, req.Start, req.End)
	if err != nil {
		writeError(w, err)
		return
	}

	opts := a.MiningDefaults.Mine
	if req.MinSupport > 0 {
		opts.MinSupport = req.MinSupport
	}
	if req.MinLength > 0 {
		opts.MinLength = req.MinLength
	}
	if req.MaxLength > 0 {
		opts.MaxLength = req.MaxLength
	}

	if len(events) < syncMiningThreshold {
		_, labeled, err := a.buildLabeledCases(r.Context(), req.Bucket, req.Start, req.End)
		if err != nil {
			writeError(w, err)
			return
		}
		patterns := mining.Mine(labeled, opts)
		out := make([]patternBody, len(patterns))
		for i, p := range patterns {
			out[i] = patternToBody(p)
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	job, err := a.Store.CreateJob(r.Context(), store.JobKindAnalysis)
	if err != nil {
		writeError(w, err)
		return
	}
	go a.runPatternMiningJob(job.ID, req, opts)
	writeJSON(w, http.StatusAccepted, jobRefResponse{JobID: job.ID})
}

func (a *API) runPatternMiningJob(jobID string, req rangeRequest, opts mining.Options) {
	ctx := context.Background()
	if err := a.Store.MarkJobRunning(ctx, jobID); err != nil {
		a.Logger.Error("mark job running", "job_id", jobID, "error", err)
		return
	}
	_, labeled, err := a.buildLabeledCases(ctx, req.Bucket, req.Start, req.End)
	if err != nil {
		a.Store.MarkJobFailed(ctx, jobID, err.Error())
		return
	}
	a.Store.SetJobProgress(ctx, jobID, 0.5)
	patterns := mining.Mine(labeled, opts)
	a.Store.MarkJobDone(ctx, jobID, fmt.Sprintf("discovered %d patterns", len(patterns)))
}

type groupedStepBody struct {
	Label    string  `json:"label"`
	Start    string  `json:"start"`
	End      string  `json:"end"`
	Duration float64 `json:"duration"`
}

type groupedCaseBody struct {
	Steps []groupedStepBody `json:"steps"`
}

// mineGroupEvents previews the case-building stage alone: sessionisation
// plus step synthesis, without mining or persistence, per spec.md §6's
// POST /mining/group-events.
func (a *API) mineGroupEvents(w http.ResponseWriter, r *http.Request) {
	var req rangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	_, labeled, err := a.buildLabeledCases(r.Context(), req.Bucket, req.Start, req.End)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]groupedCaseBody, len(labeled))
	for i, steps := range labeled {
		gsteps := make([]groupedStepBody, len(steps))
		for j, st := range steps {
			gsteps[j] = groupedStepBody{Label: st.Label, Duration: st.Duration}
		}
		out[i] = groupedCaseBody{Steps: gsteps}
	}
	writeJSON(w, http.StatusOK, out)
}

// mineDiscoverWorkflows runs the full pipeline (extraction included)
// via the orchestrator's singleton analysis job, since workflow discovery
// persists both the mined steps and any reconciled Workflow/Occurrence
// rows, unlike the read-only preview endpoints above.
func (a *API) mineDiscoverWorkflows(w http.ResponseWriter, r *http.Request) {
	var req rangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	job, err := a.Orchestrator.StartAnalysis(r.Context(), req.Bucket, req.Start, req.End)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobRefResponse{JobID: job.ID})
}

type matchWorkflowRequest struct {
	WorkflowID string `json:"workflow_id"`
	Bucket     string `json:"bucket"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

type workflowMatchBody struct {
	CaseIndex int   `json:"case_index"`
	Positions []int `json:"positions"`
}

// mineMatchWorkflow evaluates an existing, already-saved workflow pattern
// against the case structure of [start, end) without persisting anything,
// a read-only diagnostic distinct from the persisting discover-workflows
// pipeline.
func (a *API) mineMatchWorkflow(w http.ResponseWriter, r *http.Request) {
	var req matchWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	workflowID, err := store.ParseUUID(req.WorkflowID)
	if err != nil {
		writeError(w, apierr.InvalidArgumentf("malformed workflow_id"))
		return
	}
	wf, err := a.Store.GetWorkflow(r.Context(), workflowID)
	if err != nil {
		writeError(w, err)
		return
	}
	labels := make([]string, len(wf.Pattern))
	for i, p := range wf.Pattern {
		labels[i] = p.Label
	}

	_, labeled, err := a.buildLabeledCases(r.Context(), req.Bucket, req.Start, req.End)
	if err != nil {
		writeError(w, err)
		return
	}

	var out []workflowMatchBody
	for ci, steps := range labeled {
		caseLabels := make([]string, len(steps))
		for i, st := range steps {
			caseLabels[i] = st.Label
		}
		matches := mining.MatchWorkflow(caseLabels, labels, mining.DefaultMatchOptions())
		for _, m := range matches {
			out = append(out, workflowMatchBody{CaseIndex: ci, Positions: m.Positions})
		}
	}
	writeJSON(w, http.StatusOK, out)
}
