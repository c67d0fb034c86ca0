package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kidvue/gatekeeper/internal/rbac"
	"github.com/kidvue/gatekeeper/internal/service"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"
)

// SessionCookieName is the cookie carrying the access token for
// browser sessions. The Authorization header takes precedence when
// both are present.
const SessionCookieName = "gatekeeper_session"

// Principal represents the authenticated identity making the request.
type Principal struct {
	SubjectID string
	Email     string
	Name      string
	Role      rbac.Role
	IsAdmin   bool
	AdminID   string
	TokenID   string
}

// Authenticate returns an HTTP middleware that validates the request's
// bearer token. The token is read from the Authorization header or,
// failing that, the session cookie; both transports go through the same
// verification, including the revocation check.
//
// On success, a Principal is attached to the request context. Missing
// or invalid credentials produce a 401 JSON error response.
func Authenticate(tokens *service.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := authenticate(r, tokens)
			if err != nil {
				if errors.Is(err, service.ErrInvalidToken) {
					writeAuthError(w, http.StatusUnauthorized, "Authentication required")
					return
				}
				writeAuthError(w, http.StatusInternalServerError, "Authentication unavailable")
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthenticate attaches a Principal when the request carries a
// valid token and continues anonymously otherwise. Used by endpoints
// that must never error for unauthenticated callers.
func OptionalAuthenticate(tokens *service.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if principal, err := authenticate(r, tokens); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), AuthPrincipalKey, principal))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(r *http.Request, tokens *service.TokenService) (*Principal, error) {
	tokenStr := extractToken(r)
	if tokenStr == "" {
		return nil, service.ErrInvalidToken
	}

	claims, err := tokens.Verify(r.Context(), tokenStr)
	if err != nil {
		return nil, err
	}
	return &Principal{
		SubjectID: claims.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		Role:      claims.Role,
		IsAdmin:   claims.IsAdmin,
		AdminID:   claims.AdminID,
		TokenID:   claims.ID,
	}, nil
}

// extractToken pulls the access token from the Authorization header,
// falling back to the session cookie.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// RequireAdmin returns an HTTP middleware that enforces admin-level
// access. It must be used after Authenticate in the middleware chain.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !principal.IsAdmin {
				writeAuthError(w, http.StatusForbidden, "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole returns an HTTP middleware that enforces a minimum role.
// The hierarchy comparison lives in rbac; this only maps the verdict to
// a response. Must be used after Authenticate.
func RequireRole(min rbac.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !principal.IsAdmin || !principal.Role.AtLeast(min) {
				writeAuthError(w, http.StatusForbidden, fmt.Sprintf("%s access required", min))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Manually construct JSON to avoid an import cycle with the handler package.
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, status, message)
}
