package registry

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/nitinbetharia/schoolerp/internal/config"
	"github.com/nitinbetharia/schoolerp/internal/store"
	"github.com/nitinbetharia/schoolerp/internal/store/migrations"
	"github.com/nitinbetharia/schoolerp/internal/store/postgres"
	"github.com/nitinbetharia/schoolerp/internal/store/sqlite"
	"github.com/nitinbetharia/schoolerp/internal/tenant"
)

// OpenerOption configures NewOpener.
type OpenerOption func(*openerConfig)

type openerConfig struct {
	createMissing bool
}

// CreateMissing lets the sqlite driver create tenant database files that do
// not exist yet. The system database is always created.
func CreateMissing() OpenerOption {
	return func(c *openerConfig) { c.createMissing = true }
}

// NewOpener returns an Opener for the configured driver. When AutoMigrate is
// set, each freshly opened pool is migrated to the latest schema for its
// scope before it is handed out.
func NewOpener(db config.DatabaseConfig, opts ...OpenerOption) Opener {
	var oc openerConfig
	for _, opt := range opts {
		opt(&oc)
	}

	return func(ctx context.Context, tc tenant.Context) (store.Pool, error) {
		var (
			pool store.Pool
			err  error
		)
		switch db.Driver {
		case config.DriverSQLite:
			pool, err = sqlite.Open(ctx, sqlite.Path(db.SQLiteDir, tc.Database), sqlite.Options{
				MaxConns: db.MaxConns,
				Create:   oc.createMissing || tc.IsSystem(),
			})
		default:
			pool, err = postgres.New(ctx, db.DSN(tc.Database), int32(db.MaxConns)) //nolint:gosec // bounded by config validation
		}
		if err != nil {
			return nil, fmt.Errorf("registry.Opener: %s: %w", tc.Database, err)
		}

		if db.AutoMigrate {
			applied, err := migrations.Up(ctx, pool, scopeOf(tc))
			if err != nil {
				_ = pool.Close()
				return nil, fmt.Errorf("registry.Opener: %s: %w", tc.Database, err)
			}
			if applied > 0 {
				log.Info().Str("database", tc.Database).Int("applied", applied).Msg("migrations applied")
			}
		}
		return pool, nil
	}
}
