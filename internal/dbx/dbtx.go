// Package dbx holds the narrow database surface the local store is written
// against.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql methods the kv storage code uses.
// Both *sql.DB and *sql.Tx satisfy it, so the same queries run with or
// without an enclosing transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
