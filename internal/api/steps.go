package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowmine/engine/internal/apierr"
	"github.com/flowmine/engine/internal/store"
)

type stepBody struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Start     string         `json:"start"`
	End       string         `json:"end"`
	Duration  float64        `json:"duration,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Events    []eventRefBody `json:"events,omitempty"`
	ObjectIDs []string       `json:"object_ids,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
	UpdatedAt string         `json:"updated_at,omitempty"`
}

func stepToBody(s store.Step) stepBody {
	events := make([]eventRefBody, len(s.Events))
	for i, e := range s.Events {
		events[i] = eventRefBody{BucketID: e.BucketID, EventID: e.EventID}
	}
	objIDs := make([]string, len(s.ObjectIDs))
	for i, id := range s.ObjectIDs {
		objIDs[i] = id.String()
	}
	return stepBody{
		ID:        s.ID.String(),
		Name:      s.Name,
		Start:     s.Start,
		End:       s.End,
		Duration:  s.Duration,
		Data:      s.Data,
		Events:    events,
		ObjectIDs: objIDs,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func (a *API) listSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := a.Store.ListSteps(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]stepBody, len(steps))
	for i, s := range steps {
		out[i] = stepToBody(s)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) createStep(w http.ResponseWriter, r *http.Request) {
	var body stepBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	events := make([]store.EventRef, len(body.Events))
	for i, e := range body.Events {
		events[i] = store.EventRef{BucketID: e.BucketID, EventID: e.EventID}
	}
	objIDs, err := parseUUIDs(body.ObjectIDs)
	if err != nil {
		writeError(w, apierr.InvalidArgumentf("malformed object id"))
		return
	}
	st := store.Step{
		Name:      body.Name,
		Start:     body.Start,
		End:       body.End,
		Duration:  body.Duration,
		Data:      body.Data,
		Events:    events,
		ObjectIDs: objIDs,
	}
	created, err := a.Store.CreateStep(r.Context(), st)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stepToBody(*created))
}

func parseUUIDs(ss []string) ([]store.UUID, error) {
	out := make([]store.UUID, len(ss))
	for i, s := range ss {
		id, err := store.ParseUUID(s)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

func stepIDParam(w http.ResponseWriter, r *http.Request) (store.UUID, bool) {
	id, err := store.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apierr.InvalidArgumentf("malformed id"))
		return store.UUID{}, false
	}
	return id, true
}

func (a *API) getStep(w http.ResponseWriter, r *http.Request) {
	id, ok := stepIDParam(w, r)
	if !ok {
		return
	}
	st, err := a.Store.GetStep(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stepToBody(*st))
}

func (a *API) updateStep(w http.ResponseWriter, r *http.Request) {
	id, ok := stepIDParam(w, r)
	if !ok {
		return
	}
	var body stepBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	st := store.Step{
		ID:       id,
		Name:     body.Name,
		Start:    body.Start,
		End:      body.End,
		Duration: body.Duration,
		Data:     body.Data,
	}
	if err := a.Store.UpdateStep(r.Context(), st); err != nil {
		writeError(w, err)
		return
	}
	updated, err := a.Store.GetStep(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stepToBody(*updated))
}

func (a *API) deleteStep(w http.ResponseWriter, r *http.Request) {
	id, ok := stepIDParam(w, r)
	if !ok {
		return
	}
	if err := a.Store.DeleteStep(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) addStepObject(w http.ResponseWriter, r *http.Request) {
	id, ok := stepIDParam(w, r)
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
	if err := a.Store.AddStepObject(r.Context(), id, objID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) removeStepObject(w http.ResponseWriter, r *http.Request) {
	id, ok := stepIDParam(w, r)
	if !ok {
		return
	}
	objID, err := store.ParseUUID(chi.URLParam(r, "obj"))
	if err != nil {
		writeError(w, apierr.InvalidArgumentf("malformed object id"))
		return
	}
	if err := a.Store.RemoveStepObject(r.Context(), id, objID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
