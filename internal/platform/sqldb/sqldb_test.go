package sqldb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: DialectPostgres}
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", pg.Rebind("SELECT 1 WHERE a = ? AND b = ?"))

	lite := &DB{dialect: DialectSQLite}
	assert.Equal(t, "SELECT 1 WHERE a = ?", lite.Rebind("SELECT 1 WHERE a = ?"))
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))

	applied, err := db.Applied(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.sql"}, applied)
}

func TestIsUniqueViolation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	insert := `INSERT INTO magic_links (token, email, expires_at, used, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err := db.ExecContext(ctx, insert, "t1", "a@example.com", 1, false, 1)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, insert, "t1", "a@example.com", 1, false, 1)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestRunInTxRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	errBoom := errors.New("boom")

	err := db.RunInTx(ctx, func(ctx context.Context) error {
		_, err := db.Conn(ctx).ExecContext(ctx,
			`INSERT INTO magic_links (token, email, expires_at, used, created_at) VALUES (?, ?, ?, ?, ?)`,
			"t2", "b@example.com", 1, false, 1)
		require.NoError(t, err)
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM magic_links`).Scan(&n))
	assert.Zero(t, n)
}

func TestTruncate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx,
		`INSERT INTO magic_links (token, email, expires_at, used, created_at) VALUES (?, ?, ?, ?, ?)`,
		"t3", "c@example.com", 1, false, 1)
	require.NoError(t, err)

	require.NoError(t, db.Truncate(ctx, "magic_links"))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM magic_links`).Scan(&n))
	assert.Zero(t, n)
}
