package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowmine/engine/internal/apierr"
	"github.com/flowmine/engine/internal/store"
)

// getActorActivity is the additive GET /actors/{id}/activity endpoint
// SPEC_FULL.md §3 adds, backing the actor/provenance supplement pulled
// from the original decision-trace implementation.
func (a *API) getActorActivity(w http.ResponseWriter, r *http.Request) {
	id, err := store.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apierr.InvalidArgumentf("malformed id"))
		return
	}
	refs, err := a.Store.ActorActivity(r.Context(), id, queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]eventRefBody, len(refs))
	for i, ref := range refs {
		out[i] = eventRefBody{BucketID: ref.BucketID, EventID: ref.EventID}
	}
	writeJSON(w, http.StatusOK, out)
}
