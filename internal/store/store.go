// Package store defines the persistence collaborator the connection registry
// drives. Concrete drivers live in store/postgres and store/sqlite.
package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"
)

// Dialect names the SQL flavour of a pool.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Placeholder returns the squirrel placeholder format for the dialect.
func (d Dialect) Placeholder() sq.PlaceholderFormat {
	if d == DialectPostgres {
		return sq.Dollar
	}
	return sq.Question
}

// Builder returns a squirrel statement builder bound to the dialect.
func (d Dialect) Builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.Placeholder())
}

// Row is one result row keyed by column name.
type Row map[string]any

// Result is the outcome of a statement. Rows is empty for statements that
// return no rows.
type Result struct {
	Rows         []Row
	RowsAffected int64
}

// Querier executes one statement. Queries use "?" placeholders; drivers
// rebind them for their dialect.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (*Result, error)
}

// Tx is a database transaction bound to a single connection.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Pool is a pooled connection to one database.
type Pool interface {
	Querier
	Begin(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	Close() error
	Dialect() Dialect
}
