package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kidvue/gatekeeper/internal/model"
	"github.com/kidvue/gatekeeper/internal/server/middleware"
	"github.com/kidvue/gatekeeper/internal/service"
	"github.com/kidvue/gatekeeper/internal/store"
)

// AuthHandler serves the authentication endpoints: login, register,
// refresh, revoke, logout, and the admin probe.
type AuthHandler struct {
	store  *store.Store
	tokens *service.TokenService
	logger *slog.Logger
}

func NewAuthHandler(st *store.Store, tokens *service.TokenService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{store: st, tokens: tokens, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/v1/auth/login. Credential failures are
// reported uniformly so the response does not reveal whether the email
// exists.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	identity, err := h.tokens.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAccountDisabled):
			writeError(w, http.StatusUnauthorized, "Account is disabled")
		case errors.Is(err, service.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
		default:
			h.logger.Error("login failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Login failed")
		}
		return
	}

	pair, err := h.tokens.Issue(r.Context(), identity)
	if err != nil {
		h.logger.Error("token issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	if identity.IsAdmin && identity.AdminID != "" {
		if err := h.store.UpdateAdminLastLogin(r.Context(), identity.AdminID); err != nil {
			h.logger.Warn("last login update failed", "admin_id", identity.AdminID, "error", err)
		}
	}

	h.setSessionCookie(w, pair)
	writeJSON(w, http.StatusOK, pair)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Register handles POST /api/v1/auth/register for parent accounts.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
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
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	user := &model.User{Email: req.Email, PasswordHash: hash, Name: req.Name, IsActive: true}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "Email is already registered")
			return
		}
		h.logger.Error("user create failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, model.MessageResponse{
		Success: true,
		Message: "Account created",
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh handles POST /api/v1/auth/refresh. The presented refresh
// token is consumed; the response carries a fresh pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeFieldError(w, http.StatusBadRequest, "Refresh token is required", "refreshToken")
		return
	}

	pair, err := h.tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) || errors.Is(err, service.ErrAccountDisabled) {
			writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
			return
		}
		h.logger.Error("refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Refresh failed")
		return
	}

	h.setSessionCookie(w, pair)
	writeJSON(w, http.StatusOK, pair)
}

type revokeRequest struct {
	TokenID   string `json:"tokenId"`
	RevokeAll bool   `json:"revokeAll"`
}

// Revoke handles POST /api/v1/auth/revoke. Callers may revoke one of
// their own tokens by ID or all tokens for their subject. Admins may
// revoke any token.
func (h *AuthHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req revokeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if req.RevokeAll {
		n, err := h.tokens.RevokeAll(r.Context(), principal.SubjectID)
		if err != nil {
			h.logger.Error("revoke all failed", "subject", principal.SubjectID, "error", err)
			writeError(w, http.StatusInternalServerError, "Revocation failed")
			return
		}
		writeJSON(w, http.StatusOK, model.MessageResponse{
			Success: true,
			Message: "All sessions revoked",
		})
		h.logger.Info("revoked all tokens", "subject", principal.SubjectID, "count", n)
		return
	}

	if req.TokenID == "" {
		writeFieldError(w, http.StatusBadRequest, "tokenId or revokeAll is required", "tokenId")
		return
	}

	rec, err := h.store.GetTokenRecord(r.Context(), req.TokenID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Token not found")
			return
		}
		h.logger.Error("token lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Revocation failed")
		return
	}
	if rec.SubjectID != principal.SubjectID && !principal.IsAdmin {
		writeError(w, http.StatusForbidden, "Cannot revoke another user's token")
		return
	}

	if err := h.tokens.Revoke(r.Context(), req.TokenID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Token not found")
			return
		}
		h.logger.Error("revoke failed", "jti", req.TokenID, "error", err)
		writeError(w, http.StatusInternalServerError, "Revocation failed")
		return
	}

	writeJSON(w, http.StatusOK, model.MessageResponse{Success: true, Message: "Token revoked"})
}

// Logout handles POST /api/v1/auth/logout. The presenting access token
// is revoked and the session cookie cleared. Idempotent: logging out an
// already-revoked session still succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal != nil && principal.TokenID != "" {
		if err := h.tokens.Revoke(r.Context(), principal.TokenID); err != nil && !errors.Is(err, store.ErrNotFound) {
			h.logger.Warn("logout revoke failed", "jti", principal.TokenID, "error", err)
		}
	}
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, model.MessageResponse{Success: true, Message: "Logged out"})
}

// AdminCheck handles GET /api/v1/auth/admin-check. It never fails for
// anonymous callers; they simply get isAdmin=false.
func (h *AuthHandler) AdminCheck(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	if principal == nil || !principal.IsAdmin {
		writeJSON(w, http.StatusOK, model.AdminCheckResponse{IsAdmin: false})
		return
	}
	writeJSON(w, http.StatusOK, model.AdminCheckResponse{
		IsAdmin: true,
		Role:    string(principal.Role),
		AdminID: principal.AdminID,
	})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, pair *model.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		MaxAge:   pair.ExpiresIn,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
