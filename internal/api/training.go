package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowmine/engine/internal/store"
)

type reviewTaskBody struct {
	ID            string  `json:"id"`
	BucketID      string  `json:"bucket_id"`
	EventID       int64   `json:"event_id"`
	ObjectType    string  `json:"object_type"`
	Identifier    string  `json:"identifier"`
	IdentifierKey string  `json:"identifier_key,omitempty"`
	Confidence    float64 `json:"confidence"`
	Reasoning     string  `json:"reasoning,omitempty"`
	RiskLevel     string  `json:"risk_level,omitempty"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at,omitempty"`
	UpdatedAt     string  `json:"updated_at,omitempty"`
}

func reviewTaskToBody(t store.ReviewTask) reviewTaskBody {
	return reviewTaskBody{
		ID:            t.ID,
		BucketID:      t.BucketID,
		EventID:       t.EventID,
		ObjectType:    t.ObjectType,
		Identifier:    t.Identifier,
		IdentifierKey: t.IdentifierKey,
		Confidence:    t.Confidence,
		Reasoning:     t.Reasoning,
		RiskLevel:     t.RiskLevel,
		Status:        string(t.Status),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func (a *API) listPendingReviewTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := a.Store.ListPendingReviewTasks(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]reviewTaskBody, len(tasks))
	for i, t := range tasks {
		out[i] = reviewTaskToBody(t)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) confirmReviewTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "task_id")
	task, err := a.Store.ConfirmReviewTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewTaskToBody(*task))
}

type rejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (a *API) rejectReviewTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "task_id")
	var req rejectRequest
	_ = decodeJSON(r, &req)
	task, err := a.Store.RejectReviewTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewTaskToBody(*task))
}

type correctRequest struct {
	ObjectType    string `json:"object_type,omitempty"`
	Name          string `json:"name,omitempty"`
	IdentifierKey string `json:"identifier_key,omitempty"`
}

func (a *API) correctReviewTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "task_id")
	var req correctRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	task, err := a.Store.CorrectReviewTask(r.Context(), id, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewTaskToBody(*task))
}
