package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edustack/edustack/internal/auth"
	"github.com/edustack/edustack/internal/user"
)

// usersHandler serves rows of the users table.
type usersHandler struct {
	store UserStore
}

func newUsersHandler(store UserStore) *usersHandler {
	return &usersHandler{store: store}
}

// GetUser handles GET /rest/v1/users/{id}. Callers may read their own row;
// administrators may read any row.
func (h *usersHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	id := chi.URLParam(r, "id")
	if id != caller.ID && !caller.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden", "cannot read another user's profile")
		return
	}

	u, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get user")
		return
	}

	writeJSON(w, http.StatusOK, u)
}

// CreateUser handles POST /rest/v1/users. Only a super-admin may create
// another super-admin.
func (h *usersHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req user.CreateUserInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if err := auth.ValidateCredentials(req.Email, req.Password); err != nil {
		writeValidationError(w, err)
		return
	}
	if req.Role != "" && !auth.Role(req.Role).Valid() {
		writeValidationError(w, &auth.ValidationError{Field: "role", Reason: "is not a known role"})
		return
	}

	caller := auth.UserFromContext(r.Context())
	if auth.Role(req.Role) == auth.RoleSuperAdmin && (caller == nil || caller.Role != auth.RoleSuperAdmin) {
		writeError(w, http.StatusForbidden, "forbidden", "only a super-admin can create a super-admin")
		return
	}

	u, err := h.store.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "conflict", "email already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create user")
		return
	}

	auditLog(r, "create", "user", u.ID, "role", u.Role)
	writeJSON(w, http.StatusCreated, u)
}
