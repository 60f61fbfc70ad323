// Package sqlite implements store.Pool on modernc.org/sqlite through sqlx.
// It backs development and test deployments with one file per database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite" // Register SQLite driver.

	"github.com/nitinbetharia/schoolerp/internal/store"
)

// Options controls how a database file is opened.
type Options struct {
	MaxConns int
	// Create allows opening a database file that does not exist yet.
	Create bool
}

// Pool is an sqlx-backed store.Pool for one database file.
type Pool struct {
	db *sqlx.DB
}

var _ store.Pool = (*Pool)(nil)

// Path returns the file that holds database name inside dir.
func Path(dir, name string) string {
	return filepath.Join(dir, name+".db")
}

// Open opens the database file at path, enables foreign keys and a busy
// timeout, and verifies the connection.
func Open(ctx context.Context, path string, opts Options) (*Pool, error) {
	if !opts.Create {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("sqlite.Open: %s: %w", filepath.Base(path), store.ErrDatabaseNotFound)
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("sqlite.Open: create dir: %w", err)
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: open: %w", err)
	}
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(opts.MaxConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.Open: ping: %w", err)
	}

	return &Pool{db: db}, nil
}

func (p *Pool) Dialect() store.Dialect { return store.DialectSQLite }

func (p *Pool) Exec(ctx context.Context, query string, args ...any) (*store.Result, error) {
	res, err := exec(ctx, p.db, query, args)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Pool.Exec: %w", err)
	}
	return res, nil
}

func (p *Pool) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Pool.Begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (p *Pool) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite.Pool.Ping: %w", err)
	}
	return nil
}

// SQLDB exposes the pool through database/sql for the migration runner.
func (p *Pool) SQLDB() *sql.DB { return p.db.DB }

func (p *Pool) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("sqlite.Pool.Close: %w", err)
	}
	return nil
}

// Tx wraps an sqlx transaction.
type Tx struct {
	tx *sqlx.Tx
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (*store.Result, error) {
	res, err := exec(ctx, t.tx, query, args)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Tx.Exec: %w", err)
	}
	return res, nil
}

func (t *Tx) Commit(_ context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("sqlite.Tx.Commit: %w", err)
	}
	return nil
}

func (t *Tx) Rollback(_ context.Context) error {
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("sqlite.Tx.Rollback: %w", err)
	}
	return nil
}

var returningClause = regexp.MustCompile(`\bRETURNING\b`)

type execer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

func exec(ctx context.Context, e execer, query string, args []any) (*store.Result, error) {
	if !returnsRows(query) {
		res, err := e.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		return &store.Result{RowsAffected: n}, nil
	}

	rows, err := e.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := &store.Result{}
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, err
		}
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				m[k] = string(b)
			}
		}
		out.Rows = append(out.Rows, store.Row(m))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out.RowsAffected = int64(len(out.Rows))
	return out, nil
}

func returnsRows(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(q, "SELECT"),
		strings.HasPrefix(q, "WITH"),
		strings.HasPrefix(q, "PRAGMA"),
		strings.HasPrefix(q, "VALUES"):
		return true
	}
	return returningClause.MatchString(q)
}
