package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"idhub/internal/client/models"
	"idhub/internal/platform/sqldb"
	"idhub/pkg/platform/sentinel"
)

const clientColumns = `id, name, domain, client_id, client_secret, redirect_uris, allowed_scopes, created_by, active, created_at, updated_at`

// SQL stores client registrations in client_applications. List columns hold
// JSON arrays so the schema is portable across Postgres and SQLite.
type SQL struct {
	db *sqldb.DB
}

func NewSQL(db *sqldb.DB) *SQL {
	return &SQL{db: db}
}

func (s *SQL) Create(ctx context.Context, c *models.Client) error {
	redirects, err := json.Marshal(c.RedirectURIs)
	if err != nil {
		return fmt.Errorf("encode redirect_uris: %w", err)
	}
	scopes, err := json.Marshal(nonNil(c.AllowedScopes))
	if err != nil {
		return fmt.Errorf("encode allowed_scopes: %w", err)
	}
	_, err = s.db.Conn(ctx).ExecContext(ctx, s.db.Rebind(`
INSERT INTO client_applications (`+clientColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.Name, c.Domain, c.ClientID, c.ClientSecret, string(redirects), string(scopes),
		c.CreatedBy, c.Active, sqldb.ToMillis(c.CreatedAt), sqldb.ToMillis(c.UpdatedAt),
	)
	if sqldb.IsUniqueViolation(err) {
		return fmt.Errorf("client_id taken: %w", sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (s *SQL) FindByClientID(ctx context.Context, clientID string) (*models.Client, error) {
	var (
		c                 models.Client
		redirects, scopes string
		createdAt         int64
		updatedAt         int64
	)
	err := s.db.Conn(ctx).QueryRowContext(ctx, s.db.Rebind(
		`SELECT `+clientColumns+` FROM client_applications WHERE client_id = ?`), clientID,
	).Scan(&c.ID, &c.Name, &c.Domain, &c.ClientID, &c.ClientSecret, &redirects, &scopes,
		&c.CreatedBy, &c.Active, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("client not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find client: %w", err)
	}
	if err := json.Unmarshal([]byte(redirects), &c.RedirectURIs); err != nil {
		return nil, fmt.Errorf("decode redirect_uris: %w", err)
	}
	if err := json.Unmarshal([]byte(scopes), &c.AllowedScopes); err != nil {
		return nil, fmt.Errorf("decode allowed_scopes: %w", err)
	}
	c.CreatedAt = sqldb.FromMillis(createdAt)
	c.UpdatedAt = sqldb.FromMillis(updatedAt)
	return &c, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
