// Package registry owns one pooled connection handle per tenant database,
// created lazily, health-checked in the background and closed on shutdown.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/config"
	"github.com/nitinbetharia/schoolerp/internal/store"
	"github.com/nitinbetharia/schoolerp/internal/store/migrations"
	"github.com/nitinbetharia/schoolerp/internal/tenant"
)

// Opener connects to the database named by tc. It is called once per
// handle creation and once per reconnect attempt.
type Opener func(ctx context.Context, tc tenant.Context) (store.Pool, error)

// Config is the pool and health policy applied to every handle.
type Config struct {
	Naming            tenant.Naming
	MaxConns          int
	ConnectTimeout    time.Duration
	AcquireTimeout    time.Duration
	QueryTimeout      time.Duration
	HealthInterval    time.Duration
	FailureThreshold  int
	ReconnectDelay    time.Duration
	ReconnectAttempts int
	RetryDelay        time.Duration
}

// ConfigFrom derives the registry policy from application configuration.
func ConfigFrom(db config.DatabaseConfig) Config {
	return Config{
		Naming: tenant.Naming{
			SystemDatabase: db.SystemName,
			Prefix:         db.TenantPrefix,
			Overrides:      db.TenantDatabases,
		},
		MaxConns:          db.MaxConns,
		ConnectTimeout:    10 * time.Second,
		AcquireTimeout:    db.AcquireTimeout,
		QueryTimeout:      db.QueryTimeout,
		HealthInterval:    db.HealthInterval,
		FailureThreshold:  db.FailureThreshold,
		ReconnectDelay:    db.ReconnectDelay,
		ReconnectAttempts: db.ReconnectAttempts,
		RetryDelay:        db.RetryDelay,
	}
}

func (c *Config) setDefaults() {
	if c.MaxConns < 1 {
		c.MaxConns = 10
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 5 * time.Second
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 30 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	if c.FailureThreshold < 1 {
		c.FailureThreshold = 3
	}
	if c.ReconnectAttempts < 1 {
		c.ReconnectAttempts = 5
	}
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics records query and reconnect metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithTranslator sets the translator applied to driver errors.
func WithTranslator(t apperr.Translator) Option {
	return func(r *Registry) { r.translator = t }
}

// Registry maps tenant codes to connection handles. At most one handle
// exists per code.
type Registry struct {
	cfg        Config
	open       Opener
	translator apperr.Translator
	metrics    *Metrics

	mu      sync.RWMutex
	handles map[string]*Handle
	closed  bool
	group   singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Registry. Call Close to stop health loops and release pools.
func New(cfg Config, open Opener, opts ...Option) *Registry {
	cfg.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		cfg:     cfg,
		open:    open,
		handles: make(map[string]*Handle),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Naming returns the database naming the registry was configured with.
func (r *Registry) Naming() tenant.Naming { return r.cfg.Naming }

// Get returns the handle for tc, creating it on first use. Concurrent first
// callers share a single creation. A failed creation stores nothing.
func (r *Registry) Get(ctx context.Context, tc tenant.Context) (*Handle, error) {
	if h, ok, err := r.lookup(tc.Code); err != nil || ok {
		return h, err
	}

	ch := r.group.DoChan(tc.Code, func() (any, error) {
		return r.create(ctx, tc)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle), nil
	case <-ctx.Done():
		return nil, r.translator.Translate(ctx.Err())
	}
}

// System returns the handle for the system store.
func (r *Registry) System(ctx context.Context) (*Handle, error) {
	return r.Get(ctx, r.cfg.Naming.System())
}

// Lookup returns an existing handle without creating one.
func (r *Registry) Lookup(code string) (*Handle, bool) {
	h, ok, _ := r.lookup(code)
	return h, ok
}

// WithTransaction runs fn inside a transaction on tc's database.
func (r *Registry) WithTransaction(ctx context.Context, tc tenant.Context, fn TxFunc) error {
	h, err := r.Get(ctx, tc)
	if err != nil {
		return err
	}
	return h.WithTransaction(ctx, fn)
}

// Stats reports every open handle, sorted by tenant code.
func (r *Registry) Stats() []HandleStats {
	r.mu.RLock()
	out := make([]HandleStats, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h.Stats())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Tenant < out[j].Tenant })
	return out
}

// Close stops all health loops and closes every pool. Later Get calls fail.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.handles = make(map[string]*Handle)
	r.mu.Unlock()

	r.cancel()
	for _, h := range handles {
		h.close()
	}
	r.metrics.setHandles(0)
	log.Info().Int("handles", len(handles)).Msg("connection registry closed")
}

func (r *Registry) lookup(code string) (*Handle, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, false, apperr.Database("Database registry is shut down", apperr.WithCode(apperr.CodeDBUnavailable))
	}
	h, ok := r.handles[code]
	return h, ok, nil
}

func (r *Registry) create(ctx context.Context, tc tenant.Context) (*Handle, error) {
	if h, ok, err := r.lookup(tc.Code); err != nil || ok {
		return h, err
	}

	openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ConnectTimeout)
	defer cancel()

	h := newHandle(r, tc)
	pool, err := r.open(openCtx, tc)
	if err != nil {
		log.Error().Err(err).Str("tenant", tc.Code).Str("database", tc.Database).Msg("tenant connection failed")
		return nil, r.connectError(tc, err)
	}
	_, _ = h.setPool(pool)
	h.setState(StateReady)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = pool.Close()
		return nil, apperr.Database("Database registry is shut down", apperr.WithCode(apperr.CodeDBUnavailable))
	}
	r.handles[tc.Code] = h
	n := len(r.handles)
	r.mu.Unlock()

	r.metrics.setHandles(n)
	go h.monitor(r.ctx)

	log.Info().Str("tenant", tc.Code).Str("database", tc.Database).Msg("tenant connection ready")
	return h, nil
}

func (r *Registry) connectError(tc tenant.Context, err error) error {
	if store.IsMissingDatabase(err) {
		return apperr.NotFound("Tenant not found",
			apperr.WithCode(apperr.CodeTenantNotFound),
			apperr.WithDetails(map[string]string{"tenant": tc.Code}),
			apperr.WithCause(err),
		)
	}
	return apperr.Database("Could not connect to the tenant database",
		apperr.WithCode(apperr.CodeDBConnection),
		apperr.WithCause(err),
	)
}

// scopeOf returns the migration scope for tc.
func scopeOf(tc tenant.Context) migrations.Scope {
	if tc.IsSystem() {
		return migrations.ScopeSystem
	}
	return migrations.ScopeTenant
}
