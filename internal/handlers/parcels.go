package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JoelGonzalez08/TerraWeb/internal/middleware"
	"github.com/JoelGonzalez08/TerraWeb/internal/store"
	"github.com/JoelGonzalez08/TerraWeb/pkg/apperrors"
	"github.com/JoelGonzalez08/TerraWeb/pkg/roles"
)

type ParcelsHandler struct {
	parcels store.ParcelStore
}

func NewParcelsHandler(parcels store.ParcelStore) *ParcelsHandler {
	return &ParcelsHandler{parcels: parcels}
}

// HandleList returns the caller's parcels; admins see every parcel.
func (h *ParcelsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r)
	var owner *uuid.UUID
	if !roles.HasRole(sess.Role, roles.Admin) {
		id := userUUID(sess.UserID)
		owner = &id
	}
	parcels, err := h.parcels.ListParcels(r.Context(), owner)
	if err != nil {
		apperrors.WriteError(w, apperrors.InternalServerError("failed to list parcels", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"parcels": parcels})
}

type createParcelRequest struct {
	Name     string          `json:"name"`
	Geometry json.RawMessage `json:"geometry"`
}

func (h *ParcelsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createParcelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, apperrors.BadRequest("invalid request body"))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		apperrors.WriteError(w, apperrors.BadRequest("parcel name is required"))
		return
	}
	if len(req.Geometry) == 0 || !json.Valid(req.Geometry) {
		apperrors.WriteError(w, apperrors.BadRequest("geometry must be valid GeoJSON"))
		return
	}

	sess := middleware.GetSession(r)
	p := &store.Parcel{
		ID:       uuid.New(),
		OwnerID:  userUUID(sess.UserID),
		Name:     req.Name,
		Geometry: string(req.Geometry),
	}
	if err := h.parcels.CreateParcel(r.Context(), p); err != nil {
		apperrors.WriteError(w, apperrors.InternalServerError("failed to create parcel", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(p)
}

// HandleDelete removes a parcel. Owners may delete their own; admins any.
func (h *ParcelsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.WriteError(w, apperrors.BadRequest("invalid parcel id"))
		return
	}

	p, err := h.parcels.GetParcel(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		apperrors.WriteError(w, apperrors.NotFound("parcel not found"))
		return
	}
	if err != nil {
		apperrors.WriteError(w, apperrors.InternalServerError("failed to load parcel", err))
		return
	}

	sess := middleware.GetSession(r)
	if p.OwnerID != userUUID(sess.UserID) && !roles.HasRole(sess.Role, roles.Admin) {
		apperrors.WriteError(w, apperrors.Forbidden("insufficient permissions"))
		return
	}

	if err := h.parcels.DeleteParcel(r.Context(), id); err != nil {
		apperrors.WriteError(w, apperrors.InternalServerError("failed to delete parcel", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
