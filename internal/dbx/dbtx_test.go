package dbx

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:dbx_tests?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value BLOB NOT NULL);`)
	require.NoError(t, err)
	_, err = db.Exec(`DELETE FROM kv`)
	require.NoError(t, err)
	return db
}

// upsert is the write shape the kv store issues through DBTX.
func upsert(ctx context.Context, db DBTX, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n))
	return n
}

func TestDBTX_SatisfiedByDBAndTx(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	require.NoError(t, upsert(ctx, db, "offline_status", `{}`))

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, upsert(ctx, tx, "pending_operations", `[]`))
	require.NoError(t, tx.Commit())

	require.Equal(t, 2, countRows(t, db))
}

func TestDBTX_TxRollbackDiscardsWrites(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, upsert(ctx, tx, "pending_operations", `[]`))
	require.NoError(t, tx.Rollback())

	require.Equal(t, 0, countRows(t, db))

	var value []byte
	err = db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, "pending_operations").Scan(&value)
	require.ErrorIs(t, err, sql.ErrNoRows)
}
