// Package migrations applies the embedded schema to system and tenant
// databases with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"github.com/nitinbetharia/schoolerp/internal/store"
)

//go:embed sql
var embedded embed.FS

// Scope selects which schema a database receives.
type Scope string

const (
	ScopeSystem Scope = "system"
	ScopeTenant Scope = "tenant"
)

type sqlDBer interface {
	SQLDB() *sql.DB
}

// Up applies all pending migrations for scope to pool and returns the
// number applied.
func Up(ctx context.Context, pool store.Pool, scope Scope) (int, error) {
	p, err := provider(pool, scope)
	if err != nil {
		return 0, fmt.Errorf("migrations.Up: %w", err)
	}

	results, err := p.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrations.Up: %s: %w", scope, err)
	}
	return len(results), nil
}

// Version returns the current schema version of pool for scope.
func Version(ctx context.Context, pool store.Pool, scope Scope) (int64, error) {
	p, err := provider(pool, scope)
	if err != nil {
		return 0, fmt.Errorf("migrations.Version: %w", err)
	}

	v, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrations.Version: %w", err)
	}
	return v, nil
}

func provider(pool store.Pool, scope Scope) (*goose.Provider, error) {
	withDB, ok := pool.(sqlDBer)
	if !ok {
		return nil, errors.New("pool does not expose database/sql")
	}

	var dialect goose.Dialect
	switch pool.Dialect() {
	case store.DialectPostgres:
		dialect = goose.DialectPostgres
	case store.DialectSQLite:
		dialect = goose.DialectSQLite3
	default:
		return nil, fmt.Errorf("unsupported dialect %q", pool.Dialect())
	}

	fsys, err := fs.Sub(embedded, "sql/"+string(pool.Dialect())+"/"+string(scope))
	if err != nil {
		return nil, fmt.Errorf("sub fs: %w", err)
	}

	p, err := goose.NewProvider(dialect, withDB.SQLDB(), fsys)
	if err != nil {
		return nil, fmt.Errorf("new provider: %w", err)
	}
	return p, nil
}
