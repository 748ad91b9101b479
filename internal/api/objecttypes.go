package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowmine/engine/internal/store"
)

type objectTypeBody struct {
	Name        string          `json:"name"`
	DisplayName string          `json:"display_name"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	Icon        string          `json:"icon,omitempty"`
	Color       string          `json:"color,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
	UpdatedAt   string          `json:"updated_at,omitempty"`
}

func objectTypeToBody(ot store.ObjectType) objectTypeBody {
	return objectTypeBody{
		Name:        ot.Name,
		DisplayName: ot.DisplayName,
		Schema:      ot.Schema,
		Icon:        ot.Icon,
		Color:       ot.Color,
		CreatedAt:   ot.CreatedAt,
		UpdatedAt:   ot.UpdatedAt,
	}
}

func (a *API) listObjectTypes(w http.ResponseWriter, r *http.Request) {
	types, err := a.Store.ListObjectTypes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]objectTypeBody, len(types))
	for i, ot := range types {
		out[i] = objectTypeToBody(ot)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) createObjectType(w http.ResponseWriter, r *http.Request) {
	var body objectTypeBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	ot := store.ObjectType{
		Name:        body.Name,
		DisplayName: body.DisplayName,
		Schema:      body.Schema,
		Icon:        body.Icon,
		Color:       body.Color,
	}
	if err := a.Store.CreateObjectType(r.Context(), ot); err != nil {
		writeError(w, err)
		return
	}
	created, err := a.Store.GetObjectType(r.Context(), ot.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, objectTypeToBody(*created))
}

func (a *API) getObjectType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "id")
	ot, err := a.Store.GetObjectType(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, objectTypeToBody(*ot))
}

func (a *API) updateObjectType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "id")
	var body objectTypeBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	body.Name = name
	ot := store.ObjectType{
		Name:        body.Name,
		DisplayName: body.DisplayName,
		Schema:      body.Schema,
		Icon:        body.Icon,
		Color:       body.Color,
	}
	if err := a.Store.UpdateObjectType(r.Context(), ot); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, objectTypeToBody(ot))
}

func (a *API) deleteObjectType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "id")
	if err := a.Store.DeleteObjectType(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
