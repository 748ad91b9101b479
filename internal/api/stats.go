package api

import (
	"net/http"

	"github.com/flowmine/engine/internal/apierr"
)

type statsBody struct {
	ObjectTypes     int `json:"object_types"`
	Objects         int `json:"objects"`
	ExtractionRules int `json:"extraction_rules"`
	Workflows       int `json:"workflows"`
	ActiveWorkflows int `json:"active_workflows"`
	Steps           int `json:"steps"`
	Occurrences     int `json:"occurrences"`
	PendingReviews  int `json:"pending_reviews"`
}

// getStats is the additive GET /stats endpoint SPEC_FULL.md §3 adds: a
// cheap dashboard summary, queried directly against the store's db
// handle rather than threading a dozen one-off count methods through
// internal/store.
func (a *API) getStats(w http.ResponseWriter, r *http.Request) {
	db := a.Store.DB()
	var s statsBody
	queries := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM object_types`, &s.ObjectTypes},
		{`SELECT COUNT(*) FROM objects`, &s.Objects},
		{`SELECT COUNT(*) FROM extraction_rules`, &s.ExtractionRules},
		{`SELECT COUNT(*) FROM workflows`, &s.Workflows},
		{`SELECT COUNT(*) FROM workflows WHERE state = 'active'`, &s.ActiveWorkflows},
		{`SELECT COUNT(*) FROM steps`, &s.Steps},
		{`SELECT COUNT(*) FROM occurrences`, &s.Occurrences},
		{`SELECT COUNT(*) FROM review_tasks WHERE status = 'pending'`, &s.PendingReviews},
	}
	for _, q := range queries {
		if err := db.QueryRowContext(r.Context(), q.query).Scan(q.dest); err != nil {
			writeError(w, apierr.Wrap(apierr.Internal, "stats query failed", err))
			return
		}
	}
	writeJSON(w, http.StatusOK, s)
}
