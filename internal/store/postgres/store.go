// Package postgres implements store.Pool on pgxpool.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/nitinbetharia/schoolerp/internal/store"
)

// Pool is a pgxpool-backed store.Pool for one database.
type Pool struct {
	pool *pgxpool.Pool

	sqlOnce sync.Once
	sqlDB   *sql.DB
}

var _ store.Pool = (*Pool)(nil)

// New connects to dsn and verifies the connection with a ping.
func New(ctx context.Context, dsn string, maxConns int32) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Pool{pool: pool}, nil
}

func (p *Pool) Dialect() store.Dialect { return store.DialectPostgres }

func (p *Pool) Exec(ctx context.Context, query string, args ...any) (*store.Result, error) {
	res, err := exec(ctx, p.pool, query, args)
	if err != nil {
		return nil, fmt.Errorf("postgres.Pool.Exec: %w", err)
	}
	return res, nil
}

func (p *Pool) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres.Pool.Begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (p *Pool) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres.Pool.Ping: %w", err)
	}
	return nil
}

// SQLDB exposes the pool through database/sql for the migration runner.
func (p *Pool) SQLDB() *sql.DB {
	p.sqlOnce.Do(func() {
		p.sqlDB = stdlib.OpenDBFromPool(p.pool)
	})
	return p.sqlDB
}

func (p *Pool) Close() error {
	if p.sqlDB != nil {
		_ = p.sqlDB.Close()
	}
	p.pool.Close()
	return nil
}

// Tx wraps a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (*store.Result, error) {
	res, err := exec(ctx, t.tx, query, args)
	if err != nil {
		return nil, fmt.Errorf("postgres.Tx.Exec: %w", err)
	}
	return res, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres.Tx.Commit: %w", err)
	}
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil {
		return fmt.Errorf("postgres.Tx.Rollback: %w", err)
	}
	return nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func exec(ctx context.Context, q queryer, query string, args []any) (*store.Result, error) {
	bound, err := sq.Dollar.ReplacePlaceholders(query)
	if err != nil {
		return nil, fmt.Errorf("rebind: %w", err)
	}

	rows, err := q.Query(ctx, bound, args...)
	if err != nil {
		return nil, err
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}

	out := &store.Result{
		Rows:         make([]store.Row, 0, len(maps)),
		RowsAffected: rows.CommandTag().RowsAffected(),
	}
	for _, m := range maps {
		out.Rows = append(out.Rows, store.Row(m))
	}
	return out, nil
}
