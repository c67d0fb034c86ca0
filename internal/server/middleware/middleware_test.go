package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kidvue/gatekeeper/internal/model"
	"github.com/kidvue/gatekeeper/internal/ratelimit"
	"github.com/kidvue/gatekeeper/internal/rbac"
	"github.com/kidvue/gatekeeper/internal/service"
	"github.com/kidvue/gatekeeper/internal/store"
)

func newTestTokens(t *testing.T) (*service.TokenService, *store.Store) {
	t.Helper()
	st, err := store.Open("sqlite", "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return service.NewTokenService(st, "middleware-test-secret", 0, 0), st
}

func seedAdmin(t *testing.T, st *store.Store, email string, role rbac.Role) *model.Admin {
	t.Helper()
	hash, err := service.HashPassword("Str0ng&Secret!Pass")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	admin := &model.Admin{Email: email, PasswordHash: hash, Name: "Test Admin", Role: role, IsActive: true}
	if err := st.CreateAdmin(context.Background(), admin); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	return admin
}

func issueAccess(t *testing.T, tokens *service.TokenService, st *store.Store, email string, role rbac.Role) string {
	t.Helper()
	seedAdmin(t, st, email, role)
	identity, err := tokens.Authenticate(context.Background(), email, "Str0ng&Secret!Pass")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	pair, err := tokens.Issue(context.Background(), identity)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return pair.AccessToken
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticateBearerHeader(t *testing.T) {
	tokens, st := newTestTokens(t)
	access := issueAccess(t, tokens, st, "admin@example.com", rbac.RoleAdmin)

	var got *Principal
	h := Authenticate(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got == nil {
		t.Fatal("expected principal in context")
	}
	if got.Email != "admin@example.com" || !got.IsAdmin || got.Role != rbac.RoleAdmin {
		t.Errorf("unexpected principal: %+v", got)
	}
	if got.TokenID == "" {
		t.Error("expected token ID on principal")
	}
}

func TestAuthenticateSessionCookie(t *testing.T) {
	tokens, st := newTestTokens(t)
	access := issueAccess(t, tokens, st, "cookie@example.com", rbac.RoleModerator)

	h := Authenticate(tokens)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: access})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuthenticateHeaderBeatsCookie(t *testing.T) {
	tokens, st := newTestTokens(t)
	access := issueAccess(t, tokens, st, "both@example.com", rbac.RoleAdmin)

	h := Authenticate(tokens)(okHandler())

	// A garbage header must fail even when the cookie holds a valid token.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: access})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthenticateRejections(t *testing.T) {
	tokens, _ := newTestTokens(t)
	h := Authenticate(tokens)(okHandler())

	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"malformed scheme", "Token abc"},
		{"garbage token", "Bearer garbage"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			var resp model.ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if resp.Error.Message != "Authentication required" {
				t.Errorf("message = %q, want %q", resp.Error.Message, "Authentication required")
			}
		})
	}
}

func TestAuthenticateRevokedToken(t *testing.T) {
	tokens, st := newTestTokens(t)
	access := issueAccess(t, tokens, st, "revoked@example.com", rbac.RoleAdmin)

	claims, err := tokens.Verify(context.Background(), access)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := tokens.Revoke(context.Background(), claims.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	h := Authenticate(tokens)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 after revocation", rec.Code)
	}
}

func TestOptionalAuthenticateAnonymous(t *testing.T) {
	tokens, _ := newTestTokens(t)

	var got *Principal
	h := OptionalAuthenticate(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for anonymous request", rec.Code)
	}
	if got != nil {
		t.Errorf("expected nil principal, got %+v", got)
	}
}

func TestRequireAdmin(t *testing.T) {
	tokens, st := newTestTokens(t)
	access := issueAccess(t, tokens, st, "chain@example.com", rbac.RoleModerator)

	h := Authenticate(tokens)(RequireAdmin()(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	// A moderator still counts as an admin identity.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	// Without Authenticate in front, no principal means 401.
	bare := RequireAdmin()(okHandler())
	rec = httptest.NewRecorder()
	bare.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without principal", rec.Code)
	}
}

func TestRequireAdminForbidsNonAdmin(t *testing.T) {
	h := RequireAdmin()(okHandler())

	principal := &Principal{SubjectID: "u1", Email: "parent@example.com", IsAdmin: false}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), AuthPrincipalKey, principal))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var resp model.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Error.Message != "Admin access required" {
		t.Errorf("message = %q, want %q", resp.Error.Message, "Admin access required")
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(rbac.RoleSuperAdmin)(okHandler())

	cases := []struct {
		role rbac.Role
		want int
	}{
		{rbac.RoleModerator, http.StatusForbidden},
		{rbac.RoleAdmin, http.StatusForbidden},
		{rbac.RoleSuperAdmin, http.StatusOK},
	}
	for _, tc := range cases {
		principal := &Principal{SubjectID: "a1", Role: tc.role, IsAdmin: true}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(context.WithValue(req.Context(), AuthPrincipalKey, principal))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("role %s: status = %d, want %d", tc.role, rec.Code, tc.want)
		}
	}
}

func TestLoginRateLimit(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), 3, time.Minute)
	h := LoginRateLimit(limiter)(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		req.Header.Set("User-Agent", "test-agent")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429")
	}
	var body struct {
		Error struct {
			RetryAfter int `json:"retryAfter"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode 429 body: %v", err)
	}
	if body.Error.RetryAfter < 1 {
		t.Errorf("retryAfter = %d, want >= 1", body.Error.RetryAfter)
	}

	// A different fingerprint is unaffected.
	req = httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	req.Header.Set("User-Agent", "test-agent")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other client: status = %d, want 200", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	var got string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got == "" {
		t.Fatal("expected generated request ID")
	}
	if rec.Header().Get("X-Request-ID") != got {
		t.Error("response header should match context request ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got != "client-supplied" {
		t.Errorf("request ID = %q, want client-supplied value", got)
	}

	// An oversized client ID is replaced with a generated one.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got == "" || strings.Contains(got, "xxx") {
		t.Errorf("oversized client ID should be replaced, got %q", got)
	}
}

func TestLoggerIncludesFingerprintFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.Header.Set("User-Agent", "kidvue-app/2.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	line := buf.String()
	if !strings.Contains(line, "user_agent=kidvue-app/2.1") {
		t.Errorf("log line missing user agent: %s", line)
	}
	if !strings.Contains(line, "status=401") {
		t.Errorf("log line missing status: %s", line)
	}
	if !strings.Contains(line, "level=WARN") {
		t.Errorf("4xx should log at warn level: %s", line)
	}
}
