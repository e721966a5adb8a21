package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"idhub/internal/auth/models"
	"idhub/internal/platform/sqldb"
	"idhub/pkg/platform/sentinel"
)

const userColumns = `id, email, name, image, password_digest, role, email_verified_at, created_at, updated_at`

const accountColumns = `user_id, type, provider, provider_account_id, access_token, refresh_token, id_token, token_type, scope, expires_at`

// SQLStore persists users and linked accounts.
type SQLStore struct {
	db *sqldb.DB
}

func NewSQL(db *sqldb.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Create inserts user. A taken email or id is reported as ErrConflict
// without raising a constraint error, so an enclosing Postgres transaction
// stays usable for the follow-up lookup.
func (s *SQLStore) Create(ctx context.Context, user *models.User) error {
	res, err := s.db.Conn(ctx).ExecContext(ctx, s.db.Rebind(`
INSERT INTO users (`+userColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING`),
		user.ID, user.Email, user.Name, user.Image, user.PasswordDigest, string(user.Role),
		sqldb.NullMillis(user.EmailVerifiedAt), sqldb.ToMillis(user.CreatedAt), sqldb.ToMillis(user.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user email taken: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, user *models.User) error {
	res, err := s.db.Conn(ctx).ExecContext(ctx, s.db.Rebind(`
UPDATE users
SET email = ?, name = ?, image = ?, password_digest = ?, role = ?, email_verified_at = ?, updated_at = ?
WHERE id = ?`),
		user.Email, user.Name, user.Image, user.PasswordDigest, string(user.Role),
		sqldb.NullMillis(user.EmailVerifiedAt), sqldb.ToMillis(user.UpdatedAt), user.ID,
	)
	if sqldb.IsUniqueViolation(err) {
		return fmt.Errorf("user email taken: %w", sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *SQLStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (s *SQLStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (s *SQLStore) findOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var (
		u               models.User
		role            string
		emailVerifiedAt sql.NullInt64
		createdAt       int64
		updatedAt       int64
	)
	err := s.db.Conn(ctx).QueryRowContext(ctx, s.db.Rebind(query), arg).Scan(
		&u.ID, &u.Email, &u.Name, &u.Image, &u.PasswordDigest, &role,
		&emailVerifiedAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	u.Role = models.Role(role)
	u.EmailVerifiedAt = sqldb.TimePtr(emailVerifiedAt)
	u.CreatedAt = sqldb.FromMillis(createdAt)
	u.UpdatedAt = sqldb.FromMillis(updatedAt)
	return &u, nil
}

func (s *SQLStore) FindLinkedAccount(ctx context.Context, provider, providerAccountID string) (*models.LinkedAccount, error) {
	row := s.db.Conn(ctx).QueryRowContext(ctx, s.db.Rebind(
		`SELECT `+accountColumns+` FROM accounts WHERE provider = ? AND provider_account_id = ?`),
		provider, providerAccountID)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("linked account not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find linked account: %w", err)
	}
	return account, nil
}

// UpsertLinkedAccount refreshes tokens for an existing link owned by the same
// user. The WHERE clause on the conflict branch turns a cross-user re-link
// into zero affected rows.
func (s *SQLStore) UpsertLinkedAccount(ctx context.Context, a *models.LinkedAccount) error {
	res, err := s.db.Conn(ctx).ExecContext(ctx, s.db.Rebind(`
INSERT INTO accounts (`+accountColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (provider, provider_account_id) DO UPDATE SET
    type = excluded.type,
    access_token = excluded.access_token,
    refresh_token = excluded.refresh_token,
    id_token = excluded.id_token,
    token_type = excluded.token_type,
    scope = excluded.scope,
    expires_at = excluded.expires_at
WHERE accounts.user_id = excluded.user_id`),
		a.UserID, string(a.Type), a.Provider, a.ProviderAccountID,
		a.AccessToken, a.RefreshToken, a.IDToken, a.TokenType, a.Scope, sqldb.NullMillis(a.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("upsert linked account: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("linked account owned by another user: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *SQLStore) ListLinkedAccounts(ctx context.Context, userID string) ([]*models.LinkedAccount, error) {
	rows, err := s.db.Conn(ctx).QueryContext(ctx, s.db.Rebind(
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? ORDER BY provider`), userID)
	if err != nil {
		return nil, fmt.Errorf("list linked accounts: %w", err)
	}
	defer rows.Close()
	var out []*models.LinkedAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan linked account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteLinkedAccount(ctx context.Context, provider, providerAccountID string) error {
	res, err := s.db.Conn(ctx).ExecContext(ctx, s.db.Rebind(
		`DELETE FROM accounts WHERE provider = ? AND provider_account_id = ?`),
		provider, providerAccountID)
	if err != nil {
		return fmt.Errorf("delete linked account: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("linked account not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*models.LinkedAccount, error) {
	var (
		a         models.LinkedAccount
		typ       string
		expiresAt sql.NullInt64
	)
	if err := row.Scan(&a.UserID, &typ, &a.Provider, &a.ProviderAccountID,
		&a.AccessToken, &a.RefreshToken, &a.IDToken, &a.TokenType, &a.Scope, &expiresAt); err != nil {
		return nil, err
	}
	a.Type = models.AccountType(typ)
	a.ExpiresAt = sqldb.TimePtr(expiresAt)
	return &a, nil
}
