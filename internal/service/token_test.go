package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kidvue/gatekeeper/internal/model"
	"github.com/kidvue/gatekeeper/internal/rbac"
	"github.com/kidvue/gatekeeper/internal/store"
)

func newTestTokens(t *testing.T) (*TokenService, *store.Store) {
	t.Helper()
	st, err := store.Open("sqlite", "")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	tokens := NewTokenService(st, "test-secret-key-for-jwt", 0, 0)
	return tokens, st
}

func seedAdmin(t *testing.T, st *store.Store, email, password string, role rbac.Role) *model.Admin {
	t.Helper()
	digest, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	admin := &model.Admin{
		Email:        email,
		PasswordHash: digest,
		Name:         "Test Admin",
		Role:         role,
		IsActive:     true,
	}
	if err := st.CreateAdmin(context.Background(), admin); err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	return admin
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	tokens, _ := newTestTokens(t)
	ctx := context.Background()

	id := model.Identity{
		SubjectID: "subj-42",
		Email:     "ops@kidvue.io",
		Name:      "Ops",
		Role:      rbac.RoleAdmin,
		IsAdmin:   true,
		AdminID:   "adm-42",
	}
	pair, err := tokens.Issue(ctx, id)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected non-empty token pair")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}

	claims, err := tokens.Verify(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	got := claims.Identity()
	if got != id {
		t.Errorf("Identity = %+v, want %+v", got, id)
	}
}

func TestVerifyRejectsRefreshAsAccess(t *testing.T) {
	tokens, _ := newTestTokens(t)
	ctx := context.Background()

	pair, err := tokens.Issue(ctx, model.Identity{SubjectID: "s", Email: "a@b.c"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := tokens.Verify(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh token presented as access: got %v, want ErrInvalidToken", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	st, err := store.Open("sqlite", "")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()
	tokens := NewTokenService(st, "test-secret", -time.Hour, -time.Hour)

	pair, err := tokens.Issue(context.Background(), model.Identity{SubjectID: "s", Email: "a@b.c"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := tokens.Verify(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: got %v, want ErrInvalidToken", err)
	}
}

func TestVerifyGarbageAndTampering(t *testing.T) {
	tokens, _ := newTestTokens(t)
	ctx := context.Background()

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, err := tokens.Verify(ctx, tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify(%q): got %v, want ErrInvalidToken", tok, err)
		}
	}

	// Token signed with a different secret fails uniformly.
	st2, err := store.Open("sqlite", "")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st2.Close()
	foreign := NewTokenService(st2, "attacker-secret", 0, 0)
	pair, err := foreign.Issue(ctx, model.Identity{SubjectID: "s", Email: "a@b.c"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := tokens.Verify(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong signature: got %v, want ErrInvalidToken", err)
	}
}

func TestRevokeSingleToken(t *testing.T) {
	tokens, _ := newTestTokens(t)
	ctx := context.Background()

	pair, err := tokens.Issue(ctx, model.Identity{SubjectID: "s", Email: "a@b.c"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := tokens.Verify(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if err := tokens.Revoke(ctx, claims.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := tokens.Verify(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("revoked token: got %v, want ErrInvalidToken", err)
	}
}

func TestRevokeAllStopsAccessTokens(t *testing.T) {
	tokens, _ := newTestTokens(t)
	ctx := context.Background()

	id := model.Identity{SubjectID: "subj-1", Email: "a@b.c"}
	pair, err := tokens.Issue(ctx, id)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	n, err := tokens.RevokeAll(ctx, "subj-1")
	if err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if n != 2 {
		t.Errorf("revoked %d records, want 2 (access + refresh)", n)
	}

	if _, err := tokens.Verify(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access token after RevokeAll: got %v, want ErrInvalidToken", err)
	}
	if _, err := tokens.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh token after RevokeAll: got %v, want ErrInvalidToken", err)
	}
}

func TestAuthenticateAdmin(t *testing.T) {
	tokens, st := newTestTokens(t)
	ctx := context.Background()

	admin := seedAdmin(t, st, "ops@kidvue.io", "Viol3t&Thunder!", rbac.RoleSuperAdmin)

	id, err := tokens.Authenticate(ctx, "OPS@kidvue.io", "Viol3t&Thunder!")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !id.IsAdmin || id.Role != rbac.RoleSuperAdmin || id.AdminID != admin.ID {
		t.Errorf("identity = %+v", id)
	}
	if id.SubjectID != admin.ID {
		t.Errorf("admin-only subject should be the admin ID, got %q", id.SubjectID)
	}
}

func TestAuthenticateUniformFailure(t *testing.T) {
	tokens, st := newTestTokens(t)
	ctx := context.Background()

	seedAdmin(t, st, "ops@kidvue.io", "Viol3t&Thunder!", rbac.RoleAdmin)

	// Unknown email and wrong password are indistinguishable.
	_, errUnknown := tokens.Authenticate(ctx, "nobody@kidvue.io", "Viol3t&Thunder!")
	_, errWrongPw := tokens.Authenticate(ctx, "ops@kidvue.io", "wrong-password")
	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Errorf("unknown email: got %v", errUnknown)
	}
	if !errors.Is(errWrongPw, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v", errWrongPw)
	}
}

func TestAuthenticateDisabledAdmin(t *testing.T) {
	tokens, st := newTestTokens(t)
	ctx := context.Background()

	admin := seedAdmin(t, st, "ops@kidvue.io", "Viol3t&Thunder!", rbac.RoleAdmin)
	if err := st.SetAdminActive(ctx, admin.ID, false); err != nil {
		t.Fatalf("SetAdminActive: %v", err)
	}

	if _, err := tokens.Authenticate(ctx, "ops@kidvue.io", "Viol3t&Thunder!"); !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("disabled admin: got %v, want ErrAccountDisabled", err)
	}
}

func TestAuthenticateUserWithAdminRecord(t *testing.T) {
	tokens, st := newTestTokens(t)
	ctx := context.Background()

	digest, err := HashPassword("Parent$Passw0rd!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := &model.User{Email: "shared@kidvue.io", PasswordHash: digest, Name: "Parent", IsActive: true}
	if err := st.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	admin := seedAdmin(t, st, "shared@kidvue.io", "Adm1n$Passw0rd!", rbac.RoleModerator)

	// Admin credential wins; the effective subject is the user ID.
	id, err := tokens.Authenticate(ctx, "shared@kidvue.io", "Adm1n$Passw0rd!")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.SubjectID != user.ID {
		t.Errorf("SubjectID = %q, want user ID %q", id.SubjectID, user.ID)
	}
	if !id.IsAdmin || id.AdminID != admin.ID || id.Role != rbac.RoleModerator {
		t.Errorf("identity = %+v", id)
	}
}

func TestRefreshRotatesPair(t *testing.T) {
	tokens, st := newTestTokens(t)
	ctx := context.Background()

	admin := seedAdmin(t, st, "ops@kidvue.io", "Viol3t&Thunder!", rbac.RoleAdmin)
	id, err := tokens.Authenticate(ctx, admin.Email, "Viol3t&Thunder!")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	pair, err := tokens.Issue(ctx, id)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	next, err := tokens.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.AccessToken == pair.AccessToken {
		t.Error("refresh should mint a new access token")
	}
	if _, err := tokens.Verify(ctx, next.AccessToken); err != nil {
		t.Errorf("new access token should verify: %v", err)
	}

	// The used refresh token is dead.
	if _, err := tokens.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("reused refresh token: got %v, want ErrInvalidToken", err)
	}
}

func TestRefreshFailsAfterDeactivation(t *testing.T) {
	tokens, st := newTestTokens(t)
	ctx := context.Background()

	admin := seedAdmin(t, st, "ops@kidvue.io", "Viol3t&Thunder!", rbac.RoleAdmin)
	id, err := tokens.Authenticate(ctx, admin.Email, "Viol3t&Thunder!")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	pair, err := tokens.Issue(ctx, id)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := st.SetAdminActive(ctx, admin.ID, false); err != nil {
		t.Fatalf("SetAdminActive: %v", err)
	}

	// Signature and expiry are still fine, the subject is not.
	if _, err := tokens.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh for deactivated admin: got %v, want ErrInvalidToken", err)
	}
}

func TestRefreshPicksUpRoleChange(t *testing.T) {
	tokens, st := newTestTokens(t)
	ctx := context.Background()

	admin := seedAdmin(t, st, "ops@kidvue.io", "Viol3t&Thunder!", rbac.RoleSuperAdmin)
	id, err := tokens.Authenticate(ctx, admin.Email, "Viol3t&Thunder!")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	pair, err := tokens.Issue(ctx, id)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := st.SetAdminRole(ctx, admin.ID, rbac.RoleModerator); err != nil {
		t.Fatalf("SetAdminRole: %v", err)
	}

	next, err := tokens.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	claims, err := tokens.Verify(ctx, next.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Role != rbac.RoleModerator {
		t.Errorf("refreshed role = %q, want %q", claims.Role, rbac.RoleModerator)
	}
}

func TestSweepExpired(t *testing.T) {
	st, err := store.Open("sqlite", "")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	expired := NewTokenService(st, "test-secret", -time.Hour, -time.Hour)
	if _, err := expired.Issue(ctx, model.Identity{SubjectID: "s", Email: "a@b.c"}); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	live := NewTokenService(st, "test-secret", 0, 0)
	pair, err := live.Issue(ctx, model.Identity{SubjectID: "s", Email: "a@b.c"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	n, err := live.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 2 {
		t.Errorf("swept %d records, want 2", n)
	}
	if _, err := live.Verify(ctx, pair.AccessToken); err != nil {
		t.Errorf("live token should survive sweep: %v", err)
	}
}
