package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/flowmine/engine/internal/apierr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	json.NewEncoder(w).Encode(v)
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeError serialises err as {error:{code,message,details?}} per
// spec.md §6/§7, mapping unrecognised errors to a generic 500.
func writeError(w http.ResponseWriter, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Wrap(apierr.Internal, "unexpected error", err)
	}
	writeJSON(w, apiErr.HTTPStatus(), errorEnvelope{Error: errorBody{
		Code:    string(apiErr.Code),
		Message: apiErr.Message,
		Details: apiErr.Details,
	}})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apierr.Wrap(apierr.InvalidArgument, "malformed request body", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
