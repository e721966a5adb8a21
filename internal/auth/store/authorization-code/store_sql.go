package authorizationcode

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"idhub/internal/auth/models"
	"idhub/internal/platform/sqldb"
)

const codeColumns = `code, user_id, client_id, redirect_uri, scope, code_challenge, code_challenge_method, expires_at, used, created_at`

// SQLStore persists authorization codes in the authorization_codes table.
type SQLStore struct {
	db   *sqldb.DB
	opts options
}

func NewSQL(db *sqldb.DB, opts ...Option) *SQLStore {
	return &SQLStore{db: db, opts: buildOptions(opts)}
}

func (s *SQLStore) Issue(ctx context.Context, params IssueParams, ttl time.Duration) (*models.AuthorizationCodeRecord, error) {
	record, err := newRecord(params, ttl, s.opts.now())
	if err != nil {
		return nil, err
	}
	_, err = s.db.Conn(ctx).ExecContext(ctx, s.db.Rebind(`
INSERT INTO authorization_codes (`+codeColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		record.Code, record.UserID, record.ClientID, record.RedirectURI, record.Scope,
		record.CodeChallenge, record.CodeChallengeMethod,
		sqldb.ToMillis(record.ExpiresAt), false, sqldb.ToMillis(record.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert authorization code: %w", err)
	}
	return record, nil
}

func (s *SQLStore) FindByCode(ctx context.Context, code string) (*models.AuthorizationCodeRecord, error) {
	row := s.db.Conn(ctx).QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+codeColumns+` FROM authorization_codes WHERE code = ?`), code)
	record, err := scanCode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find authorization code: %w", err)
	}
	return record, nil
}

// Consume flips used in a single conditional UPDATE. Zero affected rows means
// the code was absent, mismatched, used or expired; the cases are not
// distinguished.
func (s *SQLStore) Consume(ctx context.Context, code, clientID, redirectURI string, now time.Time) (*models.AuthorizationCodeRecord, error) {
	row := s.db.Conn(ctx).QueryRowContext(ctx, s.db.Rebind(`
UPDATE authorization_codes
SET used = TRUE
WHERE code = ? AND client_id = ? AND redirect_uri = ? AND used = FALSE AND expires_at > ?
RETURNING `+codeColumns),
		code, clientID, redirectURI, sqldb.ToMillis(now),
	)
	record, err := scanCode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume authorization code: %w", err)
	}
	return record, nil
}

func scanCode(row *sql.Row) (*models.AuthorizationCodeRecord, error) {
	var (
		r         models.AuthorizationCodeRecord
		expiresAt int64
		createdAt int64
	)
	if err := row.Scan(&r.Code, &r.UserID, &r.ClientID, &r.RedirectURI, &r.Scope,
		&r.CodeChallenge, &r.CodeChallengeMethod, &expiresAt, &r.Used, &createdAt); err != nil {
		return nil, err
	}
	r.ExpiresAt = sqldb.FromMillis(expiresAt)
	r.CreatedAt = sqldb.FromMillis(createdAt)
	return &r, nil
}
