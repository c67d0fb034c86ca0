package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kidvue/gatekeeper/internal/model"
	"github.com/kidvue/gatekeeper/internal/rbac"
	"github.com/kidvue/gatekeeper/internal/store"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password
	// so login responses cannot be used for account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is the uniform failure for malformed, expired,
	// tampered, and revoked tokens. Callers must not distinguish them.
	ErrInvalidToken = errors.New("invalid token")

	// ErrAccountDisabled is returned when credentials are correct but
	// the account is deactivated or deleted.
	ErrAccountDisabled = errors.New("account is disabled")
)

// Fixed issuer and audience tags validated on every verify call.
const (
	TokenIssuer   = "gatekeeper"
	TokenAudience = "kidvue"
)

const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the signed token payload. Kind separates access tokens from
// refresh tokens so one can never be presented as the other.
type Claims struct {
	Email   string    `json:"email"`
	Name    string    `json:"name"`
	Role    rbac.Role `json:"role,omitempty"`
	IsAdmin bool      `json:"is_admin"`
	AdminID string    `json:"admin_id,omitempty"`
	Kind    string    `json:"kind"`
	jwt.RegisteredClaims
}

// Identity reconstructs the effective identity carried by the claims.
func (c *Claims) Identity() model.Identity {
	return model.Identity{
		SubjectID: c.Subject,
		Email:     c.Email,
		Name:      c.Name,
		Role:      c.Role,
		IsAdmin:   c.IsAdmin,
		AdminID:   c.AdminID,
	}
}

// TokenService mints, verifies, refreshes, and revokes the bearer
// tokens that encode identity and role. Every issued token is persisted
// by its jti; every verification re-checks that record, so revocation
// takes effect on the next request rather than the next refresh.
type TokenService struct {
	store      *store.Store
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService creates a TokenService. Zero TTLs fall back to the
// defaults (24h access, 7d refresh).
func NewTokenService(st *store.Store, secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL == 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL == 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenService{
		store:      st,
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// AccessTTL returns the configured access-token lifetime, used for the
// session cookie expiry and the expiresIn response field.
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

// Authenticate checks an email/password pair against the credential
// store and resolves the single effective identity for token issuance.
// Unknown email and wrong password both return ErrInvalidCredentials.
func (s *TokenService) Authenticate(ctx context.Context, email, password string) (model.Identity, error) {
	var zero model.Identity

	admin, err := s.store.GetAdminByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return zero, fmt.Errorf("authenticate: %w", err)
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return zero, fmt.Errorf("authenticate: %w", err)
	}
	if user != nil && user.IsDeleted {
		user = nil
	}

	// The admin record's digest wins when both exist and the admin is
	// active: an admin's platform password is the one provisioned for
	// the admin account. A deactivated admin record does not block the
	// same person logging in as a plain parent.
	switch {
	case admin != nil && admin.IsActive:
		if !VerifyPassword(password, admin.PasswordHash) {
			return zero, ErrInvalidCredentials
		}
		return resolveIdentity(user, admin), nil

	case user != nil:
		if !VerifyPassword(password, user.PasswordHash) {
			return zero, ErrInvalidCredentials
		}
		if !user.IsActive {
			return zero, ErrAccountDisabled
		}
		return resolveIdentity(user, nil), nil

	case admin != nil:
		if !VerifyPassword(password, admin.PasswordHash) {
			return zero, ErrInvalidCredentials
		}
		return zero, ErrAccountDisabled

	default:
		return zero, ErrInvalidCredentials
	}
}

// resolveIdentity collapses the two identity tables into one effective
// identity. The subject is the user ID when a user record exists,
// otherwise the admin ID; admin state is only honored when active.
func resolveIdentity(user *model.User, admin *model.Admin) model.Identity {
	if user != nil {
		id := model.Identity{
			SubjectID: user.ID,
			Email:     user.Email,
			Name:      user.Name,
		}
		if admin != nil && admin.IsActive {
			id.IsAdmin = true
			id.Role = admin.Role
			id.AdminID = admin.ID
			if id.Name == "" {
				id.Name = admin.Name
			}
		}
		return id
	}
	return model.Identity{
		SubjectID: admin.ID,
		Email:     admin.Email,
		Name:      admin.Name,
		Role:      admin.Role,
		IsAdmin:   true,
		AdminID:   admin.ID,
	}
}

// Issue mints a signed access/refresh pair for the identity and
// persists one token record per token.
func (s *TokenService) Issue(ctx context.Context, id model.Identity) (*model.TokenPair, error) {
	access, err := s.mint(ctx, id, model.TokenKindAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.mint(ctx, id, model.TokenKindRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.accessTTL.Seconds()),
	}, nil
}

func (s *TokenService) mint(ctx context.Context, id model.Identity, kind string, ttl time.Duration) (string, error) {
	now := time.Now()
	jti := uuid.NewString()
	exp := now.Add(ttl)

	claims := Claims{
		Email:   id.Email,
		Name:    id.Name,
		Role:    id.Role,
		IsAdmin: id.IsAdmin,
		AdminID: id.AdminID,
		Kind:    kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   id.SubjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    TokenIssuer,
			Audience:  jwt.ClaimStrings{TokenAudience},
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}

	rec := &model.TokenRecord{
		JTI:       jti,
		SubjectID: id.SubjectID,
		Kind:      kind,
		ExpiresAt: exp.UTC(),
	}
	if err := s.store.CreateTokenRecord(ctx, rec); err != nil {
		return "", fmt.Errorf("persist %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify validates an access token: signature, issuer, audience,
// expiry, and the persisted record's revocation state. Any structural
// or revocation failure returns ErrInvalidToken.
func (s *TokenService) Verify(ctx context.Context, tokenStr string) (*Claims, error) {
	return s.verify(ctx, tokenStr, model.TokenKindAccess)
}

func (s *TokenService) verify(ctx context.Context, tokenStr, kind string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(TokenIssuer), jwt.WithAudience(TokenAudience))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind || claims.ID == "" {
		return nil, ErrInvalidToken
	}

	rec, err := s.store.GetTokenRecord(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("verify token record: %w", err)
	}
	if rec.Revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh rotates a token pair. The identity is re-derived fresh from
// the credential store, never from the stale claims, so a demotion or
// deactivation between issuance and refresh takes effect here. The used
// refresh token's record is revoked.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	claims, err := s.verify(ctx, refreshToken, model.TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	id, err := s.resolveSubject(ctx, claims)
	if err != nil {
		return nil, err
	}

	if err := s.store.RevokeToken(ctx, claims.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	return s.Issue(ctx, id)
}

// resolveSubject re-derives the freshest identity for a verified
// refresh token. A subject that no longer exists, is inactive, or is
// deleted yields ErrInvalidToken; a token minted for an admin whose
// admin record is now gone or inactive also fails rather than silently
// downgrading.
func (s *TokenService) resolveSubject(ctx context.Context, claims *Claims) (model.Identity, error) {
	var zero model.Identity

	user, err := s.store.GetUser(ctx, claims.Subject)
	switch {
	case err == nil:
		if !user.IsActive || user.IsDeleted {
			return zero, ErrInvalidToken
		}
		admin, err := s.store.GetAdminByEmail(ctx, user.Email)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return zero, fmt.Errorf("resolve subject: %w", err)
		}
		if claims.IsAdmin && (admin == nil || !admin.IsActive) {
			return zero, ErrInvalidToken
		}
		return resolveIdentity(user, admin), nil

	case errors.Is(err, store.ErrNotFound):
		admin, err := s.store.GetAdmin(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return zero, ErrInvalidToken
			}
			return zero, fmt.Errorf("resolve subject: %w", err)
		}
		if !admin.IsActive {
			return zero, ErrInvalidToken
		}
		return resolveIdentity(nil, admin), nil

	default:
		return zero, fmt.Errorf("resolve subject: %w", err)
	}
}

// Revoke marks a single issued token revoked by its jti.
func (s *TokenService) Revoke(ctx context.Context, jti string) error {
	return s.store.RevokeToken(ctx, jti)
}

// RevokeAll revokes every live token for a subject. Used on ban and
// delete so existing access tokens stop verifying immediately.
func (s *TokenService) RevokeAll(ctx context.Context, subjectID string) (int64, error) {
	return s.store.RevokeAllForSubject(ctx, subjectID)
}

// SweepExpired deletes token records past their expiry. Housekeeping
// only; verification is correct whether or not this ever runs.
func (s *TokenService) SweepExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredTokens(ctx, time.Now())
}
