package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JoelGonzalez08/TerraWeb/internal/identity"
	"github.com/JoelGonzalez08/TerraWeb/internal/middleware"
	"github.com/JoelGonzalez08/TerraWeb/internal/session"
	"github.com/JoelGonzalez08/TerraWeb/internal/store"
	"github.com/JoelGonzalez08/TerraWeb/pkg/apperrors"
)

type AuthHandler struct {
	sessions      *session.Store
	users         store.UserStore
	verifier      identity.Verifier
	cookieName    string
	secureCookies bool
}

func NewAuthHandler(sessions *session.Store, users store.UserStore, verifier identity.Verifier, cookieName string, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		sessions:      sessions,
		users:         users,
		verifier:      verifier,
		cookieName:    cookieName,
		secureCookies: secureCookies,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// userResponse is the non-secret identity projection. Password material never
// appears here by construction.
type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, apperrors.BadRequest("invalid request body"))
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		apperrors.WriteError(w, apperrors.BadRequest("username and password are required"))
		return
	}

	id, err := h.verifier.Verify(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			apperrors.WriteError(w, apperrors.Unauthorized("invalid credentials"))
		case errors.Is(err, identity.ErrServiceUnavailable):
			slog.Error("identity service failure during login", "error", err)
			apperrors.WriteError(w, apperrors.ServiceUnavailable("authentication service unavailable", err))
		default:
			slog.Error("login failed", "error", err)
			apperrors.WriteError(w, apperrors.InternalServerError("login failed", err))
		}
		return
	}

	// Mirror the authoritative identity into the local store so admin
	// management sees every account that has logged in.
	if _, err := h.users.UpsertIdentity(r.Context(), userUUID(id.ID), id.Username, id.Role); err != nil {
		slog.Error("failed to mirror identity", "username", id.Username, "error", err)
		apperrors.WriteError(w, apperrors.InternalServerError("login failed", err))
		return
	}

	// Cap the session to the upstream token lifetime when one is attached.
	var ttl time.Duration
	if exp, ok := identity.TokenExpiry(id.AccessToken); ok {
		ttl = time.Until(exp)
	}

	// The pre-auth session id (if any) is destroyed inside Regenerate, so a
	// fixated id can never survive authentication.
	oldID := ""
	if cookie, err := r.Cookie(h.cookieName); err == nil {
		oldID = cookie.Value
	}
	sess, err := h.sessions.Regenerate(r.Context(), oldID, session.Session{
		UserID:        id.ID,
		Username:      id.Username,
		Role:          id.Role,
		UpstreamToken: id.AccessToken,
	}, ttl)
	if err != nil {
		slog.Error("failed to establish session", "error", err)
		apperrors.WriteError(w, apperrors.InternalServerError("login failed", err))
		return
	}

	session.SetCookie(w, h.cookieName, sess.ID, h.sessions.EffectiveTTL(ttl), h.secureCookies)
	slog.Info("login", "username", id.Username, "role", id.Role)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(userResponse{ID: id.ID, Username: id.Username, Role: id.Role})
}

// HandleLogout destroys the current session. Idempotent: no or unknown
// session is still a success.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.cookieName); err == nil {
		if err := h.sessions.Destroy(r.Context(), cookie.Value); err != nil {
			slog.Error("failed to destroy session", "error", err)
		}
	}
	session.ClearCookie(w, h.cookieName, h.secureCookies)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "logged out"})
}

func (h *AuthHandler) HandleCurrentUser(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r)
	if sess == nil {
		apperrors.WriteError(w, apperrors.Unauthorized("not authenticated"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(userResponse{ID: sess.UserID, Username: sess.Username, Role: sess.Role})
}

// userUUID maps a collaborator identity id onto a stable uuid. Opaque
// non-uuid ids hash deterministically so repeated logins hit the same row.
func userUUID(id string) uuid.UUID {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id))
}
