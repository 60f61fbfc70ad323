package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitinbetharia/schoolerp/internal/store"
	"github.com/nitinbetharia/schoolerp/internal/store/migrations"
	"github.com/nitinbetharia/schoolerp/internal/store/sqlite"
)

func openTenant(t *testing.T) *sqlite.Pool {
	t.Helper()

	ctx := context.Background()
	pool, err := sqlite.Open(ctx, sqlite.Path(t.TempDir(), "school_erp_trust_demo"), sqlite.Options{MaxConns: 4, Create: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	applied, err := migrations.Up(ctx, pool, migrations.ScopeTenant)
	require.NoError(t, err)
	require.Equal(t, 2, applied)
	return pool
}

func insertEntity(ctx context.Context, q store.Querier, id, kind, key string, parent any) error {
	now := time.Now().UTC()
	_, err := q.Exec(ctx,
		`INSERT INTO entities (id, kind, key, data, parent_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, kind, key, `{}`, parent, now, now,
	)
	return err
}

func TestOpen_MissingDatabase(t *testing.T) {
	t.Parallel()

	_, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "nope.db"), sqlite.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrDatabaseNotFound)
	assert.True(t, store.IsMissingDatabase(err))
}

func TestPool_ExecAndQuery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := openTenant(t)
	assert.Equal(t, store.DialectSQLite, pool.Dialect())

	require.NoError(t, insertEntity(ctx, pool, "e1", "student", "S-001", nil))
	require.NoError(t, insertEntity(ctx, pool, "e2", "student", "S-002", "e1"))

	res, err := pool.Exec(ctx, `SELECT id, key, parent_id FROM entities WHERE kind = ? ORDER BY key`, "student")
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "e1", res.Rows[0]["id"])
	assert.Nil(t, res.Rows[0]["parent_id"])
	assert.Equal(t, "e1", res.Rows[1]["parent_id"])

	upd, err := pool.Exec(ctx, `UPDATE entities SET data = ? WHERE kind = ?`, `{"x":1}`, "student")
	require.NoError(t, err)
	assert.EqualValues(t, 2, upd.RowsAffected)

	require.NoError(t, pool.Ping(ctx))
}

func TestPool_ConstraintErrorsAreClassified(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := openTenant(t)
	require.NoError(t, insertEntity(ctx, pool, "e1", "student", "S-001", nil))

	err := insertEntity(ctx, pool, "e2", "student", "S-001", nil)
	require.Error(t, err)
	v, ok := store.ClassifyViolation(err)
	require.True(t, ok)
	assert.Equal(t, store.UniqueViolation, v.Kind)
	assert.Equal(t, []string{"kind", "key"}, v.Fields)

	err = insertEntity(ctx, pool, "e3", "student", "S-003", "missing-parent")
	require.Error(t, err)
	v, ok = store.ClassifyViolation(err)
	require.True(t, ok)
	assert.Equal(t, store.ForeignKeyViolation, v.Kind)
}

func TestTx_CommitAndRollback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := openTenant(t)

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, insertEntity(ctx, tx, "e1", "class", "C-1", nil))
	require.NoError(t, tx.Rollback(ctx))

	tx, err = pool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, insertEntity(ctx, tx, "e2", "class", "C-2", nil))
	require.NoError(t, tx.Commit(ctx))

	res, err := pool.Exec(ctx, `SELECT id FROM entities`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "e2", res.Rows[0]["id"])
}

func TestMigrations_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := openTenant(t)

	applied, err := migrations.Up(ctx, pool, migrations.ScopeTenant)
	require.NoError(t, err)
	assert.Zero(t, applied)

	v, err := migrations.Version(ctx, pool, migrations.ScopeTenant)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}
