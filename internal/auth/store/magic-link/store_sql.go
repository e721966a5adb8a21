package magiclink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"idhub/internal/auth/models"
	"idhub/internal/platform/sqldb"
	"idhub/pkg/platform/sentinel"
)

type SQLStore struct {
	db *sqldb.DB
}

func NewSQL(db *sqldb.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Create(ctx context.Context, link *models.MagicLink) error {
	_, err := s.db.Conn(ctx).ExecContext(ctx, s.db.Rebind(`
INSERT INTO magic_links (token, email, expires_at, used, created_at)
VALUES (?, ?, ?, ?, ?)`),
		link.Token, link.Email, sqldb.ToMillis(link.ExpiresAt), false, sqldb.ToMillis(link.CreatedAt),
	)
	if sqldb.IsUniqueViolation(err) {
		return fmt.Errorf("magic link token taken: %w", sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert magic link: %w", err)
	}
	return nil
}

func (s *SQLStore) Consume(ctx context.Context, token string, now time.Time) (*models.MagicLink, error) {
	var (
		link      models.MagicLink
		expiresAt int64
		createdAt int64
	)
	err := s.db.Conn(ctx).QueryRowContext(ctx, s.db.Rebind(`
UPDATE magic_links
SET used = TRUE
WHERE token = ? AND used = FALSE AND expires_at > ?
RETURNING token, email, expires_at, used, created_at`),
		token, sqldb.ToMillis(now),
	).Scan(&link.Token, &link.Email, &expiresAt, &link.Used, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("magic link not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("consume magic link: %w", err)
	}
	link.ExpiresAt = sqldb.FromMillis(expiresAt)
	link.CreatedAt = sqldb.FromMillis(createdAt)
	return &link, nil
}
