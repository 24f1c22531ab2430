package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trueclassic/oosflow/internal/core/auth"
	"github.com/trueclassic/oosflow/internal/shell/warehouse"
)

const minUsernameLength = 3

// =============================================================================
// Login
// =============================================================================

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if req.Username == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "username and password are required", "validation_error")
		return
	}

	role, ok := h.verifyCredentials(r, req.Username, req.Password)
	if !ok {
		h.unauthorized(w, "incorrect username or password")
		return
	}

	token, _, err := h.tokens.Issue(req.Username, role)
	if err != nil {
		h.logger.Error("failed to issue token", "username", req.Username, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to issue token", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

// verifyCredentials checks the users table first and falls back to the
// static app credentials when user storage is unavailable or the user is
// unknown.
func (h *Handler) verifyCredentials(r *http.Request, username, password string) (auth.Role, bool) {
	if h.warehouse.Configured() {
		user, err := h.warehouse.UserByUsername(r.Context(), username)
		switch {
		case err == nil:
			if auth.VerifyPassword(user.HashedPassword, password) {
				return auth.Role(user.Role), true
			}
			return "", false
		case errors.Is(err, warehouse.ErrUserNotFound):
			// fall through to the static credential
		default:
			h.logger.Error("user lookup failed", "username", username, "error", err)
			return "", false
		}
	}

	if auth.CheckBasic(username, password, h.cfg.AppUsername, h.cfg.AppPassword) {
		return auth.RoleAdmin, true
	}
	return "", false
}

// =============================================================================
// Self-Service Handlers
// =============================================================================

func (h *Handler) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())
	h.writeJSON(w, http.StatusOK, UserResponse{
		Username: ident.Username,
		Role:     string(ident.Role),
	})
}

func (h *Handler) handleResetOwnPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if req.NewPassword == "" {
		h.writeError(w, http.StatusBadRequest, "new_password is required", "validation_error")
		return
	}

	ident := identityFromContext(r.Context())
	user, err := h.warehouse.UserByUsername(r.Context(), ident.Username)
	if err != nil {
		if errors.Is(err, warehouse.ErrUserNotFound) {
			h.writeError(w, http.StatusBadRequest, "no stored account for this identity", "validation_error")
			return
		}
		h.warehouseError(w, err, "failed to load user")
		return
	}
	if !auth.VerifyPassword(user.HashedPassword, req.CurrentPassword) {
		h.writeError(w, http.StatusBadRequest, "current password is incorrect", "validation_error")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		h.logger.Error("failed to hash password", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to update password", "internal_error")
		return
	}
	if err := h.warehouse.UpdatePassword(r.Context(), ident.Username, hash); err != nil {
		h.warehouseError(w, err, "failed to update password")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Admin Handlers
// =============================================================================

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if len(req.Username) < minUsernameLength {
		h.writeError(w, http.StatusBadRequest, "username must be at least 3 characters", "validation_error")
		return
	}
	if req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "password is required", "validation_error")
		return
	}
	role := auth.Role(req.Role)
	if !auth.ValidRole(role) {
		h.writeError(w, http.StatusBadRequest, "role must be admin or user", "validation_error")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("failed to hash password", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create user", "internal_error")
		return
	}

	err = h.warehouse.CreateUser(r.Context(), warehouse.User{
		Username:       req.Username,
		HashedPassword: hash,
		Role:           string(role),
	})
	if err != nil {
		if errors.Is(err, warehouse.ErrUserExists) {
			h.writeError(w, http.StatusConflict, "username already exists", "user_exists")
			return
		}
		h.warehouseError(w, err, "failed to create user")
		return
	}

	h.logger.Info("user created", "username", req.Username, "role", role)
	h.writeJSON(w, http.StatusCreated, UserResponse{Username: req.Username, Role: string(role)})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.warehouse.AllUsers(r.Context())
	if err != nil {
		h.warehouseError(w, err, "failed to list users")
		return
	}
	h.writeJSON(w, http.StatusOK, sortedUsernames(users))
}

func (h *Handler) handleForceResetPassword(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req ForceResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if req.NewPassword == "" {
		h.writeError(w, http.StatusBadRequest, "new_password is required", "validation_error")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		h.logger.Error("failed to hash password", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to reset password", "internal_error")
		return
	}
	if err := h.warehouse.UpdatePassword(r.Context(), username, hash); err != nil {
		if errors.Is(err, warehouse.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "user not found", "user_not_found")
			return
		}
		h.warehouseError(w, err, "failed to reset password")
		return
	}

	h.logger.Info("password force-reset", "username", username)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if identityFromContext(r.Context()).Username == username {
		h.writeError(w, http.StatusBadRequest, "admins cannot delete their own account", "validation_error")
		return
	}

	if err := h.warehouse.DeleteUser(r.Context(), username); err != nil {
		if errors.Is(err, warehouse.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "user not found", "user_not_found")
			return
		}
		h.warehouseError(w, err, "failed to delete user")
		return
	}

	h.logger.Info("user deleted", "username", username)
	w.WriteHeader(http.StatusNoContent)
}
