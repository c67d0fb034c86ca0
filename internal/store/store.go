package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/kidvue/gatekeeper/internal/model"
	"github.com/kidvue/gatekeeper/internal/rbac"
)

// Store is the credential store backing the auth service. It persists
// admin accounts, parent user accounts, and issued-token records.
// SQLite is the default driver for single-node deployments; PostgreSQL
// (via the pgx stdlib driver) is used when multiple instances share one
// revocation set.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the credential store. driver is "sqlite" or
// "postgres". For sqlite, dsn is a data directory (empty for in-memory);
// for postgres, dsn is a connection string.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case "", "sqlite":
		return openSQLite(dsn)
	case "postgres":
		db, err := sqlx.Connect("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres credential store: %w", err)
		}
		s := &Store{db: db, driver: "postgres"}
		if err := s.migrate(); err != nil {
			return nil, fmt.Errorf("migrate credential store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %q", driver)
	}
}

func openSQLite(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "gatekeeper.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db, driver: "sqlite"}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate credential store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection, used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind converts ?-style placeholders to the driver's bindvar format.
func (s *Store) rebind(q string) string {
	return s.db.Rebind(q)
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

// ---------------------------------------------------------------------------
// Admins
// ---------------------------------------------------------------------------

// CreateAdmin inserts a new admin account. The ID, CreatedAt, and
// UpdatedAt fields on admin are populated before the insert; the email
// is normalized. Returns ErrDuplicateEmail on a unique-constraint hit.
func (s *Store) CreateAdmin(ctx context.Context, admin *model.Admin) error {
	now := time.Now().UTC()
	admin.ID = uuid.NewString()
	admin.Email = model.NormalizeEmail(admin.Email)
	admin.CreatedAt = now
	admin.UpdatedAt = now

	const q = `INSERT INTO admins
		(id, email, password_hash, name, role, is_active, created_at, updated_at)
		VALUES
		(:id, :email, :password_hash, :name, :role, :is_active, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, admin); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert admin: %w", err)
	}
	return nil
}

// GetAdminByEmail returns an admin by normalized email address.
func (s *Store) GetAdminByEmail(ctx context.Context, email string) (*model.Admin, error) {
	var admin model.Admin
	q := s.rebind("SELECT * FROM admins WHERE email = ?")
	if err := s.db.GetContext(ctx, &admin, q, model.NormalizeEmail(email)); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin by email: %w", err)
	}
	return &admin, nil
}

// GetAdmin returns an admin by ID.
func (s *Store) GetAdmin(ctx context.Context, id string) (*model.Admin, error) {
	var admin model.Admin
	q := s.rebind("SELECT * FROM admins WHERE id = ?")
	if err := s.db.GetContext(ctx, &admin, q, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return &admin, nil
}

// ListAdmins returns all admin accounts ordered by email.
func (s *Store) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	var admins []model.Admin
	if err := s.db.SelectContext(ctx, &admins, "SELECT * FROM admins ORDER BY email"); err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

// HasAnyAdmin reports whether at least one admin account exists. Used
// for first-run detection.
func (s *Store) HasAnyAdmin(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM admins"); err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return count > 0, nil
}

// UpdateAdminLastLogin sets the last_login_at timestamp. Called from the
// login flow only, never from guards.
func (s *Store) UpdateAdminLastLogin(ctx context.Context, id string) error {
	now := time.Now().UTC()
	q := s.rebind("UPDATE admins SET last_login_at = ?, updated_at = ? WHERE id = ?")
	return s.expectOneRow(ctx, q, "update admin last login", now, now, id)
}

// SetAdminActive enables or disables an admin account.
func (s *Store) SetAdminActive(ctx context.Context, id string, active bool) error {
	q := s.rebind("UPDATE admins SET is_active = ?, updated_at = ? WHERE id = ?")
	return s.expectOneRow(ctx, q, "set admin active", active, time.Now().UTC(), id)
}

// SetAdminRole changes an admin's role.
func (s *Store) SetAdminRole(ctx context.Context, id string, role rbac.Role) error {
	q := s.rebind("UPDATE admins SET role = ?, updated_at = ? WHERE id = ?")
	return s.expectOneRow(ctx, q, "set admin role", role, time.Now().UTC(), id)
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// CreateUser inserts a new parent account. Returns ErrDuplicateEmail on
// a unique-constraint hit.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.Email = model.NormalizeEmail(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	const q = `INSERT INTO users
		(id, email, password_hash, name, is_active, is_deleted, created_at, updated_at)
		VALUES
		(:id, :email, :password_hash, :name, :is_active, :is_deleted, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, user); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail returns a user by normalized email, including
// soft-deleted rows; callers decide whether deletion matters.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	q := s.rebind("SELECT * FROM users WHERE email = ?")
	if err := s.db.GetContext(ctx, &user, q, model.NormalizeEmail(email)); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &user, nil
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	q := s.rebind("SELECT * FROM users WHERE id = ?")
	if err := s.db.GetContext(ctx, &user, q, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// SetUserActive enables or disables a user account.
func (s *Store) SetUserActive(ctx context.Context, id string, active bool) error {
	q := s.rebind("UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?")
	return s.expectOneRow(ctx, q, "set user active", active, time.Now().UTC(), id)
}

// SoftDeleteUser marks a user deleted without removing the row.
func (s *Store) SoftDeleteUser(ctx context.Context, id string) error {
	q := s.rebind("UPDATE users SET is_deleted = ?, is_active = ?, updated_at = ? WHERE id = ?")
	return s.expectOneRow(ctx, q, "soft delete user", true, false, time.Now().UTC(), id)
}

// ---------------------------------------------------------------------------
// Token records
// ---------------------------------------------------------------------------

// CreateTokenRecord persists the record for a newly issued token.
func (s *Store) CreateTokenRecord(ctx context.Context, rec *model.TokenRecord) error {
	rec.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO token_records
		(jti, subject_id, kind, expires_at, revoked, created_at)
		VALUES
		(:jti, :subject_id, :kind, :expires_at, :revoked, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, q, rec); err != nil {
		return fmt.Errorf("insert token record: %w", err)
	}
	return nil
}

// GetTokenRecord looks up an issued-token record by its jti.
func (s *Store) GetTokenRecord(ctx context.Context, jti string) (*model.TokenRecord, error) {
	var rec model.TokenRecord
	q := s.rebind("SELECT * FROM token_records WHERE jti = ?")
	if err := s.db.GetContext(ctx, &rec, q, jti); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get token record: %w", err)
	}
	return &rec, nil
}

// RevokeToken marks a single token record revoked. Revoking an
// already-revoked record succeeds without touching its revoked_at, so
// revocation is idempotent; only an unknown jti is ErrNotFound.
func (s *Store) RevokeToken(ctx context.Context, jti string) error {
	q := s.rebind("UPDATE token_records SET revoked = ?, revoked_at = ? WHERE jti = ? AND revoked = ?")
	result, err := s.db.ExecContext(ctx, q, true, time.Now().UTC(), jti, false)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke token rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.GetTokenRecord(ctx, jti); err != nil {
			return err
		}
	}
	return nil
}

// RevokeAllForSubject marks every unrevoked token record for a subject
// revoked. Returns the number of records revoked; zero is not an error,
// the subject may simply hold no live tokens.
func (s *Store) RevokeAllForSubject(ctx context.Context, subjectID string) (int64, error) {
	q := s.rebind("UPDATE token_records SET revoked = ?, revoked_at = ? WHERE subject_id = ? AND revoked = ?")
	result, err := s.db.ExecContext(ctx, q, true, time.Now().UTC(), subjectID, false)
	if err != nil {
		return 0, fmt.Errorf("revoke all for subject: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke all rows affected: %w", err)
	}
	return n, nil
}

// DeleteExpiredTokens removes records whose tokens are past expiry.
// Housekeeping only: verification already rejects expired tokens by
// their signed exp, so correctness never depends on this running.
func (s *Store) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	q := s.rebind("DELETE FROM token_records WHERE expires_at < ?")
	result, err := s.db.ExecContext(ctx, q, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) expectOneRow(ctx context.Context, q, op string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
