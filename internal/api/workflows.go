package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowmine/engine/internal/apierr"
	"github.com/flowmine/engine/internal/store"
)

type patternStepBody struct {
	Label      string `json:"label"`
	AllowedGap int    `json:"allowed_gap"`
	Optional   bool   `json:"optional"`
}

type workflowBody struct {
	ID          string            `json:"id,omitempty"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Pattern     []patternStepBody `json:"pattern"`
	StepIDs     []string          `json:"step_ids,omitempty"`
	ObjectIDs   []string          `json:"object_ids,omitempty"`
	State       string            `json:"state,omitempty"`
	CreatedAt   string            `json:"created_at,omitempty"`
	UpdatedAt   string            `json:"updated_at,omitempty"`
}

func workflowToBody(wf store.Workflow) workflowBody {
	pattern := make([]patternStepBody, len(wf.Pattern))
	for i, p := range wf.Pattern {
		pattern[i] = patternStepBody{Label: p.Label, AllowedGap: p.AllowedGap, Optional: p.Optional}
	}
	stepIDs := make([]string, len(wf.StepIDs))
	for i, id := range wf.StepIDs {
		stepIDs[i] = id.String()
	}
	objIDs := make([]string, len(wf.ObjectIDs))
	for i, id := range wf.ObjectIDs {
		objIDs[i] = id.String()
	}
	return workflowBody{
		ID:          wf.ID.String(),
		Name:        wf.Name,
		Description: wf.Description,
		Pattern:     pattern,
		StepIDs:     stepIDs,
		ObjectIDs:   objIDs,
		State:       string(wf.State),
		CreatedAt:   wf.CreatedAt,
		UpdatedAt:   wf.UpdatedAt,
	}
}

func (a *API) listWorkflows(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	workflows, err := a.Store.ListWorkflows(r.Context(), includeArchived)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]workflowBody, len(workflows))
	for i, wf := range workflows {
		out[i] = workflowToBody(wf)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var body workflowBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	stepIDs, err := parseUUIDs(body.StepIDs)
	if err != nil {
		writeError(w, apierr.InvalidArgumentf("malformed step id"))
		return
	}
	objIDs, err := parseUUIDs(body.ObjectIDs)
	if err != nil {
		writeError(w, apierr.InvalidArgumentf("malformed object id"))
		return
	}
	pattern := make([]store.PatternStep, len(body.Pattern))
	for i, p := range body.Pattern {
		pattern[i] = store.PatternStep{Label: p.Label, AllowedGap: p.AllowedGap, Optional: p.Optional}
	}
	wf := store.Workflow{
		Name:        body.Name,
		Description: body.Description,
		Pattern:     pattern,
		StepIDs:     stepIDs,
		ObjectIDs:   objIDs,
	}
	created, err := a.Store.CreateWorkflow(r.Context(), wf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, workflowToBody(*created))
}

func workflowIDParam(w http.ResponseWriter, r *http.Request) (store.UUID, bool) {
	id, err := store.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apierr.InvalidArgumentf("malformed id"))
		return store.UUID{}, false
	}
	return id, true
}

func (a *API) getWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowIDParam(w, r)
	if !ok {
		return
	}
	wf, err := a.Store.GetWorkflow(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflowToBody(*wf))
}

func (a *API) updateWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowIDParam(w, r)
	if !ok {
		return
	}
	var body workflowBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	pattern := make([]store.PatternStep, len(body.Pattern))
	for i, p := range body.Pattern {
		pattern[i] = store.PatternStep{Label: p.Label, AllowedGap: p.AllowedGap, Optional: p.Optional}
	}
	wf := store.Workflow{
		ID:          id,
		Name:        body.Name,
		Description: body.Description,
		Pattern:     pattern,
		State:       store.WorkflowState(body.State),
	}
	if err := a.Store.UpdateWorkflow(r.Context(), wf); err != nil {
		writeError(w, err)
		return
	}
	updated, err := a.Store.GetWorkflow(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflowToBody(*updated))
}

func (a *API) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowIDParam(w, r)
	if !ok {
		return
	}
	if err := a.Store.DeleteWorkflow(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) addWorkflowObject(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowIDParam(w, r)
	if !ok {
		return
	}
	var req linkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	objID, err := store.ParseUUID(req.ObjectID)
	if err != nil {
		writeError(w, apierr.InvalidArgumentf("malformed object_id"))
		return
	}
	if err := a.Store.AddWorkflowObject(r.Context(), id, objID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) removeWorkflowObject(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowIDParam(w, r)
	if !ok {
		return
	}
	objID, err := store.ParseUUID(chi.URLParam(r, "obj"))
	if err != nil {
		writeError(w, apierr.InvalidArgumentf("malformed object id"))
		return
	}
	if err := a.Store.RemoveWorkflowObject(r.Context(), id, objID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type occurrenceStepBody struct {
	Position int    `json:"position"`
	StepID   string `json:"step_id"`
}

type occurrenceBody struct {
	ID         string               `json:"id"`
	WorkflowID string               `json:"workflow_id"`
	CaseID     string               `json:"case_id"`
	Steps      []occurrenceStepBody `json:"steps"`
	ObjectIDs  []string             `json:"object_ids,omitempty"`
	Start      string               `json:"start"`
	End        string               `json:"end"`
	Duration   float64              `json:"duration"`
	CreatedAt  string               `json:"created_at,omitempty"`
}

func occurrenceToBody(o store.Occurrence) occurrenceBody {
	steps := make([]occurrenceStepBody, len(o.Steps))
	for i, s := range o.Steps {
		steps[i] = occurrenceStepBody{Position: s.Position, StepID: s.StepID.String()}
	}
	objIDs := make([]string, len(o.ObjectIDs))
	for i, id := range o.ObjectIDs {
		objIDs[i] = id.String()
	}
	return occurrenceBody{
		ID:         o.ID.String(),
		WorkflowID: o.WorkflowID.String(),
		CaseID:     o.CaseID,
		Steps:      steps,
		ObjectIDs:  objIDs,
		Start:      o.Start,
		End:        o.End,
		Duration:   o.Duration,
		CreatedAt:  o.CreatedAt,
	}
}

func (a *API) listOccurrences(w http.ResponseWriter, r *http.Request) {
	id, ok := workflowIDParam(w, r)
	if !ok {
		return
	}
	occs, err := a.Store.ListOccurrencesForWorkflow(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]occurrenceBody, len(occs))
	for i, o := range occs {
		out[i] = occurrenceToBody(o)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getOccurrence(w http.ResponseWriter, r *http.Request) {
	occID, err := store.ParseUUID(chi.URLParam(r, "occ_id"))
	if err != nil {
		writeError(w, apierr.InvalidArgumentf("malformed occurrence id"))
		return
	}
	occ, err := a.Store.GetOccurrence(r.Context(), occID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, occurrenceToBody(*occ))
}
