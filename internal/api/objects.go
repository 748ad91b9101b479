package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowmine/engine/internal/apierr"
	"github.com/flowmine/engine/internal/store"
)

type objectBody struct {
	ID        string         `json:"id,omitempty"`
	Type      string         `json:"type"`
	Name      string         `json:"name"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
	UpdatedAt string         `json:"updated_at,omitempty"`
}

func objectToBody(o store.Object) objectBody {
	return objectBody{
		ID:        o.ID.String(),
		Type:      o.Type,
		Name:      o.Name,
		Data:      o.Data,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func (a *API) listObjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	objs, err := a.Store.ListObjects(r.Context(), store.ObjectListFilter{
		Type:  q.Get("type"),
		Query: q.Get("q"),
		Start: q.Get("start"),
		End:   q.Get("end"),
		Limit: queryInt(r, "limit", 0),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]objectBody, len(objs))
	for i, o := range objs {
		out[i] = objectToBody(o)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) createObject(w http.ResponseWriter, r *http.Request) {
	var body objectBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	obj, err := a.Store.UpsertObject(r.Context(), body.Type, body.Name, body.Data, true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, objectToBody(*obj))
}

func (a *API) idParam(w http.ResponseWriter, r *http.Request) (store.UUID, bool) {
	id, err := store.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apierr.InvalidArgumentf("malformed id"))
		return store.UUID{}, false
	}
	return id, true
}

func (a *API) getObject(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r)
	if !ok {
		return
	}
	obj, err := a.Store.GetObject(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, objectToBody(*obj))
}

func (a *API) updateObject(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r)
	if !ok {
		return
	}
	var body objectBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	existing, err := a.Store.GetObject(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	existing.Type = body.Type
	existing.Name = body.Name
	existing.Data = body.Data
	if err := a.Store.UpdateObject(r.Context(), *existing); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, objectToBody(*existing))
}

func (a *API) deleteObject(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r)
	if !ok {
		return
	}
	if err := a.Store.DeleteObject(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type eventRefBody struct {
	BucketID string `json:"bucket_id"`
	EventID  int64  `json:"event_id"`
}

func (a *API) listObjectEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	links, err := a.Store.EventsForObject(r.Context(), id, q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]eventRefBody, len(links))
	for i, l := range links {
		out[i] = eventRefBody{BucketID: l.BucketID, EventID: l.EventID}
	}
	writeJSON(w, http.StatusOK, out)
}
