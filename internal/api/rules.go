package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowmine/engine/internal/apierr"
	"github.com/flowmine/engine/internal/extract"
	"github.com/flowmine/engine/internal/store"
)

type ruleBody struct {
	ID           string            `json:"id,omitempty"`
	Name         string            `json:"name"`
	ObjectType   string            `json:"object_type"`
	SourceFields []string          `json:"source_fields"`
	Pattern      string            `json:"pattern"`
	NameTemplate string            `json:"name_template"`
	DataMapping  map[string]string `json:"data_mapping,omitempty"`
	Enabled      bool              `json:"enabled"`
	Priority     int               `json:"priority"`
	Provenance   string            `json:"provenance,omitempty"`
	MatchCount   int               `json:"match_count,omitempty"`
	ConfirmCount int               `json:"confirm_count,omitempty"`
	RejectCount  int               `json:"reject_count,omitempty"`
	Confidence   float64           `json:"confidence,omitempty"`
	CreatedAt    string            `json:"created_at,omitempty"`
	UpdatedAt    string            `json:"updated_at,omitempty"`
}

func ruleToBody(r store.ExtractionRule) ruleBody {
	return ruleBody{
		ID:           r.ID.String(),
		Name:         r.Name,
		ObjectType:   r.ObjectType,
		SourceFields: r.SourceFields,
		Pattern:      r.Pattern,
		NameTemplate: r.NameTemplate,
		DataMapping:  r.DataMapping,
		Enabled:      r.Enabled,
		Priority:     r.Priority,
		Provenance:   string(r.Provenance),
		MatchCount:   r.MatchCount,
		ConfirmCount: r.ConfirmCount,
		RejectCount:  r.RejectCount,
		Confidence:   r.Confidence,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (a *API) reloadRulesOrLog(ctx context.Context) {
	if err := a.Extractor.Reload(ctx); err != nil {
		a.Logger.Error("reload extraction rules", "error", err)
	}
}

func (a *API) listExtractionRules(w http.ResponseWriter, r *http.Request) {
	rules, err := a.Store.ListExtractionRules(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]ruleBody, len(rules))
	for i, rl := range rules {
		out[i] = ruleToBody(rl)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) createExtractionRule(w http.ResponseWriter, r *http.Request) {
	var body ruleBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	rule := store.ExtractionRule{
		Name:         body.Name,
		ObjectType:   body.ObjectType,
		SourceFields: body.SourceFields,
		Pattern:      body.Pattern,
		NameTemplate: body.NameTemplate,
		DataMapping:  body.DataMapping,
		Enabled:      body.Enabled,
		Priority:     body.Priority,
	}
	created, err := a.Store.CreateExtractionRule(r.Context(), rule)
	if err != nil {
		writeError(w, err)
		return
	}
	a.reloadRulesOrLog(r.Context())
	writeJSON(w, http.StatusCreated, ruleToBody(*created))
}

func (a *API) ruleIDParam(w http.ResponseWriter, r *http.Request) (store.UUID, bool) {
	id, err := store.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apierr.InvalidArgumentf("malformed id"))
		return store.UUID{}, false
	}
	return id, true
}

func (a *API) getExtractionRule(w http.ResponseWriter, r *http.Request) {
	id, ok := a.ruleIDParam(w, r)
	if !ok {
		return
	}
	rule, err := a.Store.GetExtractionRule(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleToBody(*rule))
}

func (a *API) updateExtractionRule(w http.ResponseWriter, r *http.Request) {
	id, ok := a.ruleIDParam(w, r)
	if !ok {
		return
	}
	var body ruleBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	rule := store.ExtractionRule{
		ID:           id,
		Name:         body.Name,
		ObjectType:   body.ObjectType,
		SourceFields: body.SourceFields,
		Pattern:      body.Pattern,
		NameTemplate: body.NameTemplate,
		DataMapping:  body.DataMapping,
		Enabled:      body.Enabled,
		Priority:     body.Priority,
	}
	if err := a.Store.UpdateExtractionRule(r.Context(), rule); err != nil {
		writeError(w, err)
		return
	}
	a.reloadRulesOrLog(r.Context())
	updated, err := a.Store.GetExtractionRule(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleToBody(*updated))
}

func (a *API) deleteExtractionRule(w http.ResponseWriter, r *http.Request) {
	id, ok := a.ruleIDParam(w, r)
	if !ok {
		return
	}
	if err := a.Store.DeleteExtractionRule(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	a.reloadRulesOrLog(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type testRuleRequest struct {
	Samples []extract.Sample `json:"samples"`
}

type testRuleResult struct {
	Match bool           `json:"match"`
	Name  string         `json:"name,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

func (a *API) testExtractionRule(w http.ResponseWriter, r *http.Request) {
	id, ok := a.ruleIDParam(w, r)
	if !ok {
		return
	}
	rule, err := a.Store.GetExtractionRule(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	var req testRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	out := make([]testRuleResult, len(req.Samples))
	for i, sample := range req.Samples {
		res, err := extract.TestRule(*rule, sample)
		if err != nil {
			writeError(w, apierr.Wrap(apierr.InvalidArgument, "rule pattern does not compile", err))
			return
		}
		out[i] = testRuleResult{Match: res.Match, Name: res.Name, Data: res.Data}
	}
	writeJSON(w, http.StatusOK, out)
}

type runRulesRequest struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Bucket string `json:"bucket"`
}

type jobRefResponse struct {
	JobID string `json:"job_id"`
}

// runExtractionRules walks events in [start, end) applying the current
// rule set, per spec.md §6's POST /extraction-rules/run. It runs in the
// background under its own job record rather than the orchestrator's
// singleton analysis slot, since rule application alone never mines or
// reconciles workflows.
func (a *API) runExtractionRules(w http.ResponseWriter, r *http.Request) {
	var req runRulesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	job, err := a.Store.CreateJob(r.Context(), store.JobKindAnalysis)
	if err != nil {
		writeError(w, err)
		return
	}
	go a.runExtractionJob(job.ID, req.Bucket, req.Start, req.End)
	writeJSON(w, http.StatusAccepted, jobRefResponse{JobID: job.ID})
}

func (a *API) runExtractionJob(jobID, bucket, start, end string) {
	ctx := context.Background()
	if err := a.Store.MarkJobRunning(ctx, jobID); err != nil {
		a.Logger.Error("mark job running", "job_id", jobID, "error", err)
		return
	}
	events, err := a.Store.ReadEvents(ctx, bucket, start, end)
	if err != nil {
		a.Store.MarkJobFailed(ctx, jobID, err.Error())
		return
	}
	for i, ev := range events {
		if err := a.Extractor.ExtractEvent(ctx, ev); err != nil {
			a.Logger.Warn("extract event", "bucket", bucket, "event_id", ev.ID, "error", err)
			continue
		}
		if i%100 == 0 {
			a.Store.SetJobProgress(ctx, jobID, float64(i+1)/float64(len(events)))
		}
	}
	a.Store.MarkJobDone(ctx, jobID, "")
}
