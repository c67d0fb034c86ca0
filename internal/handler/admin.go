package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kidvue/gatekeeper/internal/model"
	"github.com/kidvue/gatekeeper/internal/rbac"
	"github.com/kidvue/gatekeeper/internal/server/middleware"
	"github.com/kidvue/gatekeeper/internal/service"
	"github.com/kidvue/gatekeeper/internal/store"
)

// AdminHandler serves the admin management endpoints under
// /api/v1/system.
type AdminHandler struct {
	store  *store.Store
	tokens *service.TokenService
	logger *slog.Logger
}

func NewAdminHandler(st *store.Store, tokens *service.TokenService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{store: st, tokens: tokens, logger: logger}
}

// ListAdmins handles GET /api/v1/system/admin.
func (h *AdminHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.store.ListAdmins(r.Context())
	if err != nil {
		h.logger.Error("admin list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list admins")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"admins": admins,
		"count":  len(admins),
	})
}

type createAdminRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// CreateAdmin handles POST /api/v1/system/admin. Restricted to
// SUPER_ADMIN by the route guard.
func (h *AdminHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req createAdminRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req.Email = model.NormalizeEmail(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeFieldError(w, http.StatusBadRequest, "A valid email is required", "email")
		return
	}
	if req.Name == "" {
		writeFieldError(w, http.StatusBadRequest, "Name is required", "name")
		return
	}
	role := rbac.RoleAdmin
	if req.Role != "" {
		parsed, err := rbac.ParseRole(req.Role)
		if err != nil {
			writeFieldError(w, http.StatusBadRequest, "Unknown role", "role")
			return
		}
		role = parsed
	}
	if result := service.CheckPasswordPolicy(req.Password); !result.OK() {
		msg := "Password does not meet the policy"
		if len(result.Issues) > 0 {
			msg = result.Issues[0]
		}
		writeFieldError(w, http.StatusBadRequest, msg, "password")
		return
	}

	hash, err := service.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("password hash failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create admin")
		return
	}

	admin := &model.Admin{Email: req.Email, PasswordHash: hash, Name: req.Name, Role: role, IsActive: true}
	if err := h.store.CreateAdmin(r.Context(), admin); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "Email is already registered")
			return
		}
		h.logger.Error("admin create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create admin")
		return
	}

	h.logger.Info("admin created", "admin_id", admin.ID, "role", admin.Role)
	writeJSON(w, http.StatusCreated, admin)
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateAdminRole handles PUT /api/v1/system/admin/{adminID}/role.
// Restricted to SUPER_ADMIN by the route guard; super admin accounts
// themselves cannot be reassigned.
func (h *AdminHandler) UpdateAdminRole(w http.ResponseWriter, r *http.Request) {
	adminID := chi.URLParam(r, "adminID")

	var req updateRoleRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		writeFieldError(w, http.StatusBadRequest, "Unknown role", "role")
		return
	}

	target, err := h.store.GetAdmin(r.Context(), adminID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Admin not found")
			return
		}
		h.logger.Error("admin lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update role")
		return
	}
	if target.IsSuperAdmin() {
		writeError(w, http.StatusForbidden, "Cannot modify super admin users")
		return
	}

	if err := h.store.SetAdminRole(r.Context(), adminID, role); err != nil {
		h.logger.Error("role update failed", "admin_id", adminID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update role")
		return
	}

	h.logger.Info("admin role updated", "admin_id", adminID, "role", role)
	writeJSON(w, http.StatusOK, model.MessageResponse{Success: true, Message: "Role updated"})
}

// BanAdmin handles POST /api/v1/system/admin/{adminID}/ban. The account
// is deactivated and every outstanding token for its subject is revoked
// before the response is written, so a banned admin loses access
// immediately rather than at token expiry.
func (h *AdminHandler) BanAdmin(w http.ResponseWriter, r *http.Request) {
	adminID := chi.URLParam(r, "adminID")

	target, err := h.store.GetAdmin(r.Context(), adminID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Admin not found")
			return
		}
		h.logger.Error("admin lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to ban admin")
		return
	}
	if target.IsSuperAdmin() {
		writeError(w, http.StatusForbidden, "Cannot ban/delete super admin users")
		return
	}
	if principal := middleware.GetPrincipal(r.Context()); principal != nil && principal.AdminID == adminID {
		writeError(w, http.StatusForbidden, "Cannot ban your own account")
		return
	}

	if err := h.store.SetAdminActive(r.Context(), adminID, false); err != nil {
		h.logger.Error("admin deactivate failed", "admin_id", adminID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to ban admin")
		return
	}

	// Tokens are keyed by the user ID when a live user record shares the
	// email, and by the admin ID otherwise (issuance skips deleted
	// users). Revoke both subjects so no live token survives the ban.
	n, err := h.tokens.RevokeAll(r.Context(), target.ID)
	if err != nil {
		h.logger.Error("ban revocation failed", "subject", target.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to ban admin")
		return
	}
	user, err := h.store.GetUserByEmail(r.Context(), target.Email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.logger.Error("ban user lookup failed", "admin_id", adminID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to ban admin")
		return
	}
	if user != nil {
		m, err := h.tokens.RevokeAll(r.Context(), user.ID)
		if err != nil {
			h.logger.Error("ban revocation failed", "subject", user.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to ban admin")
			return
		}
		n += m
	}

	h.logger.Info("admin banned", "admin_id", adminID, "tokens_revoked", n)
	writeJSON(w, http.StatusOK, model.MessageResponse{Success: true, Message: "Admin banned"})
}

// DeleteUser handles DELETE /api/v1/system/user/{userID}. The account
// is soft deleted and its tokens revoked synchronously.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	user, err := h.store.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("user lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete user")
		return
	}

	// A user whose email backs an active super admin account is off
	// limits, same as the admin record itself.
	if admin, err := h.store.GetAdminByEmail(r.Context(), user.Email); err == nil && admin.IsSuperAdmin() {
		writeError(w, http.StatusForbidden, "Cannot ban/delete super admin users")
		return
	}

	if err := h.store.SoftDeleteUser(r.Context(), userID); err != nil {
		h.logger.Error("user delete failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete user")
		return
	}

	n, err := h.tokens.RevokeAll(r.Context(), userID)
	if err != nil {
		h.logger.Error("delete revocation failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete user")
		return
	}

	h.logger.Info("user deleted", "user_id", userID, "tokens_revoked", n)
	writeJSON(w, http.StatusOK, model.MessageResponse{Success: true, Message: "User deleted"})
}
