package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JoelGonzalez08/TerraWeb/internal/store"
	"github.com/JoelGonzalez08/TerraWeb/pkg/apperrors"
	"github.com/JoelGonzalez08/TerraWeb/pkg/roles"
)

// UsersHandler serves the admin user-management surface. Routes are mounted
// behind RequireRole(admin); handlers still never emit password material.
type UsersHandler struct {
	users store.UserStore
}

func NewUsersHandler(users store.UserStore) *UsersHandler {
	return &UsersHandler{users: users}
}

func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		apperrors.WriteError(w, apperrors.InternalServerError("failed to list users", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"users": users})
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

// HandleUpdateRole changes a user's role. The change takes effect on the
// target's next login; sessions issued before it keep their original role
// until they expire or the user re-authenticates.
func (h *UsersHandler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.WriteError(w, apperrors.BadRequest("invalid user id"))
		return
	}

	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, apperrors.BadRequest("invalid request body"))
		return
	}
	if !roles.IsValid(req.Role) {
		apperrors.WriteError(w, apperrors.BadRequest("invalid role"))
		return
	}

	updated, err := h.users.UpdateUserRole(r.Context(), id, req.Role)
	if errors.Is(err, store.ErrNotFound) {
		apperrors.WriteError(w, apperrors.NotFound("user not found"))
		return
	}
	if err != nil {
		apperrors.WriteError(w, apperrors.InternalServerError("failed to update role", err))
		return
	}

	slog.Info("role updated", "user", updated.UserName, "role", req.Role)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(updated)
}
