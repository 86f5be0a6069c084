package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/edustack/edustack/internal/audit"
	"github.com/edustack/edustack/internal/auth"
	"github.com/edustack/edustack/internal/identity"
	"github.com/edustack/edustack/internal/metrics"
	"github.com/edustack/edustack/internal/user"
)

const (
	grantPassword = "password"
	grantRefresh  = "refresh_token"
)

// tokenResponse is the body returned by a successful grant.
type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	User         auth.Identity `json:"user"`
}

func newTokenResponse(g *identity.Grant) tokenResponse {
	return tokenResponse{
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(g.ExpiresIn.Seconds()),
		ExpiresAt:    g.ExpiresAt.Unix(),
		User:         g.User.Identity(),
	}
}

// authHandler groups authentication HTTP handlers.
type authHandler struct {
	identity *identity.Service
	users    UserStore
	audit    AuditRecorder
	metrics  *metrics.Metrics
}

func newAuthHandler(svc *identity.Service, users UserStore, rec AuditRecorder, m *metrics.Metrics) *authHandler {
	return &authHandler{identity: svc, users: users, audit: rec, metrics: m}
}

// Token handles POST /auth/v1/token?grant_type=password|refresh_token.
func (h *authHandler) Token(w http.ResponseWriter, r *http.Request) {
	switch grant := r.URL.Query().Get("grant_type"); grant {
	case grantPassword:
		h.passwordGrant(w, r)
	case grantRefresh:
		h.refreshGrant(w, r)
	default:
		writeError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be password or refresh_token")
	}
}

func (h *authHandler) passwordGrant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if err := auth.ValidateCredentials(req.Email, req.Password); err != nil {
		writeValidationError(w, err)
		return
	}

	g, err := h.identity.PasswordGrant(r.Context(), req.Email, req.Password)
	if err != nil {
		outcome := h.writeGrantError(w, err)
		h.countAttempt(grantPassword, outcome)
		recordAuthEvent(r, h.audit, audit.Event{Kind: audit.KindSignIn, Email: req.Email, Detail: outcome})
		return
	}

	h.countAttempt(grantPassword, "success")
	recordAuthEvent(r, h.audit, audit.Event{Kind: audit.KindSignIn, UserID: &g.User.ID, Email: g.User.Email, Success: true})
	writeJSON(w, http.StatusOK, newTokenResponse(g))
}

func (h *authHandler) refreshGrant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	g, err := h.identity.RefreshGrant(r.Context(), req.RefreshToken)
	if err != nil {
		outcome := h.writeGrantError(w, err)
		h.countAttempt(grantRefresh, outcome)
		recordAuthEvent(r, h.audit, audit.Event{Kind: audit.KindTokenRefresh, Detail: outcome})
		return
	}

	h.countAttempt(grantRefresh, "success")
	recordAuthEvent(r, h.audit, audit.Event{Kind: audit.KindTokenRefresh, UserID: &g.User.ID, Email: g.User.Email, Success: true})
	writeJSON(w, http.StatusOK, newTokenResponse(g))
}

// writeGrantError maps a grant failure to a response and returns the
// outcome label used for metrics and auditing.
func (h *authHandler) writeGrantError(w http.ResponseWriter, err error) string {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return "invalid_credentials"
	case errors.Is(err, identity.ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, "invalid_grant", "refresh token is invalid or expired")
		return "invalid_grant"
	case errors.Is(err, identity.ErrInactiveUser):
		writeError(w, http.StatusForbidden, "user_inactive", "user account is disabled")
		return "user_inactive"
	default:
		slog.Error("token grant failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to issue tokens")
		return "error"
	}
}

func (h *authHandler) countAttempt(grant, outcome string) {
	if h.metrics != nil {
		h.metrics.IncAuthAttempt(grant, outcome)
	}
}

// Logout handles POST /auth/v1/logout. Every refresh session of the caller
// is revoked; the access token stays valid until it expires.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	if err := h.identity.SignOut(r.Context(), u.ID); err != nil {
		slog.Error("revoking sessions", "user_id", u.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to sign out")
		return
	}

	recordAuthEvent(r, h.audit, audit.Event{Kind: audit.KindSignOut, UserID: &u.ID, Email: u.Email, Success: true})
	w.WriteHeader(http.StatusNoContent)
}

// User handles GET /auth/v1/user and returns the caller's identity record.
func (h *authHandler) User(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	row, err := h.users.GetByID(r.Context(), u.ID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get user")
		return
	}

	writeJSON(w, http.StatusOK, row.Identity())
}
