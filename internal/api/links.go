package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flowmine/engine/internal/apierr"
	"github.com/flowmine/engine/internal/store"
)

func eventParams(w http.ResponseWriter, r *http.Request) (bucket string, eventID int64, ok bool) {
	bucket = chi.URLParam(r, "bucket")
	id, err := strconv.ParseInt(chi.URLParam(r, "event"), 10, 64)
	if err != nil {
		writeError(w, apierr.InvalidArgumentf("malformed event id"))
		return "", 0, false
	}
	return bucket, id, true
}

type linkRequest struct {
	ObjectID string `json:"object_id"`
}

type linkBody struct {
	ObjectID   string  `json:"object_id"`
	Provenance string  `json:"provenance"`
	Confidence float64 `json:"confidence"`
}

func (a *API) listEventObjects(w http.ResponseWriter, r *http.Request) {
	bucket, eventID, ok := eventParams(w, r)
	if !ok {
		return
	}
	links, err := a.Store.ObjectsForEvent(r.Context(), bucket, eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]linkBody, len(links))
	for i, l := range links {
		out[i] = linkBody{ObjectID: l.ObjectID.String(), Provenance: string(l.Provenance), Confidence: l.Confidence}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) linkEventObject(w http.ResponseWriter, r *http.Request) {
	bucket, eventID, ok := eventParams(w, r)
	if !ok {
		return
	}
	var req linkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	objectID, err := store.ParseUUID(req.ObjectID)
	if err != nil {
		writeError(w, apierr.InvalidArgumentf("malformed object_id"))
		return
	}
	if err := a.Store.LinkEventToObject(r.Context(), bucket, eventID, objectID, store.LinkManual, 1.0); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) unlinkEventObject(w http.ResponseWriter, r *http.Request) {
	bucket, eventID, ok := eventParams(w, r)
	if !ok {
		return
	}
	objectID, err := store.ParseUUID(chi.URLParam(r, "object_id"))
	if err != nil {
		writeError(w, apierr.InvalidArgumentf("malformed object_id"))
		return
	}
	if err := a.Store.UnlinkEventFromObject(r.Context(), bucket, eventID, objectID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
