// Package pg adapts the migration engine in internal/migrate onto real
// Synapse and MAS Postgres databases, using jackc/pgx/v5. It supplies the
// only concrete migrate.SourceReader and migrate.DestinationWriter in this
// repository; the core engine never imports it.
package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// dbtx is the subset of *pgxpool.Pool and pgx.Tx that the reader and writer
// need. Accepting the interface rather than a concrete pool lets callers
// hand in either a bare pool or a transaction obtained from it.
type dbtx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
}

// msToTime converts a Synapse-style milliseconds-since-epoch column to a
// time.Time in UTC.
func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
