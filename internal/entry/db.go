package entry

import (
	"context"
	"database/sql"
)

// Scanner scans one result row into dest. Both *sql.Row and *sql.Rows
// implement it.
type Scanner interface {
	Scan(dest ...any) error
}

type QueryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}
