package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowmine/engine/internal/store"
)

type jobBody struct {
	State     string  `json:"state"`
	Progress  float64 `json:"progress"`
	Error     string  `json:"error,omitempty"`
	ResultRef string  `json:"result_ref,omitempty"`
}

func jobToBody(j store.Job) jobBody {
	return jobBody{
		State:     string(j.Status),
		Progress:  j.Progress,
		Error:     j.Error,
		ResultRef: j.ResultRef,
	}
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	job, err := a.Store.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobToBody(*job))
}
