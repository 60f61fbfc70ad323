package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/store"
	"github.com/nitinbetharia/schoolerp/internal/tenant"
)

// State is the lifecycle state of a Handle.
type State int32

const (
	StateConnecting State = iota
	StateReady
	StateDegraded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateReady:
		return "READY"
	case StateDegraded:
		return "DEGRADED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// TxFunc is the body of a transaction. Statements issued through q run on
// the transaction's connection and are never retried.
type TxFunc func(ctx context.Context, q store.Querier) error

// HandleStats is a point-in-time view of a Handle.
type HandleStats struct {
	Tenant              string    `json:"tenant"`
	Database            string    `json:"database"`
	State               string    `json:"state"`
	InUse               int64     `json:"inUse"`
	MaxConns            int       `json:"maxConns"`
	ConsecutiveFailures int32     `json:"consecutiveFailures"`
	ReconnectAttempts   int32     `json:"reconnectAttempts"`
	ReconnectExhausted  bool      `json:"reconnectExhausted"`
	CreatedAt           time.Time `json:"createdAt"`
}

// System reports whether the stats describe the system store.
func (s HandleStats) System() bool { return s.Tenant == tenant.SystemCode }

// Handle is the pooled connection to one tenant database.
type Handle struct {
	reg       *Registry
	tenant    tenant.Context
	createdAt time.Time
	sem       *semaphore.Weighted

	poolMu sync.RWMutex
	pool   store.Pool

	state        atomic.Int32
	inUse        atomic.Int64
	failures     atomic.Int32
	reconnects   atomic.Int32
	exhausted    atomic.Bool
	reconnecting atomic.Bool

	modelsOnce sync.Once
	models     any

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newHandle(r *Registry, tc tenant.Context) *Handle {
	return &Handle{
		reg:       r,
		tenant:    tc,
		createdAt: time.Now().UTC(),
		sem:       semaphore.NewWeighted(int64(r.cfg.MaxConns)),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Tenant returns the tenant the handle serves.
func (h *Handle) Tenant() tenant.Context { return h.tenant }

// State returns the current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Dialect returns the SQL dialect of the underlying pool.
func (h *Handle) Dialect() store.Dialect { return h.currentPool().Dialect() }

// Stats returns a snapshot of the handle.
func (h *Handle) Stats() HandleStats {
	return HandleStats{
		Tenant:              h.tenant.Code,
		Database:            h.tenant.Database,
		State:               h.State().String(),
		InUse:               h.inUse.Load(),
		MaxConns:            h.reg.cfg.MaxConns,
		ConsecutiveFailures: h.failures.Load(),
		ReconnectAttempts:   h.reconnects.Load(),
		ReconnectExhausted:  h.exhausted.Load(),
		CreatedAt:           h.createdAt,
	}
}

// ModelsFor returns the model set cached on h, building it on first use.
// Every call for a given handle must use the same M.
func ModelsFor[M any](h *Handle, build func(*Handle) M) M {
	h.modelsOnce.Do(func() {
		h.models = build(h)
	})
	return h.models.(M)
}

// Execute runs one statement. It waits at most AcquireTimeout for a pool
// slot, bounds the statement by QueryTimeout, and retries exactly once
// after RetryDelay when the failure is transient. Returned errors are
// always *apperr.Error.
func (h *Handle) Execute(ctx context.Context, query string, args ...any) (*store.Result, error) {
	if err := h.available(); err != nil {
		return nil, err
	}

	release, err := h.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	res, err := h.run(ctx, h.currentPool(), query, args)
	if err != nil && store.IsTransient(err) && ctx.Err() == nil {
		log.Warn().Err(err).Str("tenant", h.tenant.Code).Msg("transient query failure, retrying once")
		h.reg.metrics.retried(h.tenant.Code)
		if sleepCtx(ctx, h.reg.cfg.RetryDelay) {
			res, err = h.run(ctx, h.currentPool(), query, args)
		}
	}
	h.reg.metrics.observeQuery(h.tenant.Code, err, time.Since(start))

	if err != nil {
		return nil, h.reg.translator.Translate(err)
	}
	return res, nil
}

// WithTransaction runs fn in a transaction. It commits when fn returns nil
// and rolls back when fn returns an error or panics. A panic is re-raised
// after the rollback.
func (h *Handle) WithTransaction(ctx context.Context, fn TxFunc) (err error) {
	if err := h.available(); err != nil {
		return err
	}

	release, err := h.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	tx, err := h.currentPool().Begin(ctx)
	if err != nil {
		return h.reg.translator.Translate(err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			log.Warn().Err(rbErr).Str("tenant", h.tenant.Code).Msg("transaction rollback failed")
		}
	}()

	if err := fn(ctx, &txQuerier{h: h, tx: tx}); err != nil {
		return h.reg.translator.Translate(err)
	}

	if err := tx.Commit(ctx); err != nil {
		committed = true // a failed commit has already ended the transaction
		return h.reg.translator.Translate(err)
	}
	committed = true
	return nil
}

// Probe pings the database on demand. A degraded handle whose reconnect
// loop gave up is restored when the ping, or one fresh connection, succeeds.
func (h *Handle) Probe(ctx context.Context) error {
	if h.State() == StateClosed {
		return h.unavailable()
	}

	err := h.ping(ctx, h.currentPool())
	if err == nil {
		h.recovered(nil)
		return nil
	}

	if h.State() == StateDegraded && !h.reconnecting.Load() {
		pool, openErr := h.reg.open(ctx, h.tenant)
		if openErr == nil {
			if !h.recovered(pool) {
				return h.unavailable()
			}
			log.Info().Str("tenant", h.tenant.Code).Msg("tenant connection restored by probe")
			return nil
		}
		err = openErr
	}

	return apperr.Database("Database health check failed",
		apperr.WithCode(apperr.CodeHealthCheckFailed),
		apperr.WithDetails(map[string]string{"tenant": h.tenant.Code, "state": h.State().String()}),
		apperr.WithCause(err),
	)
}

func (h *Handle) available() error {
	if h.State() != StateReady {
		return h.unavailable()
	}
	return nil
}

func (h *Handle) unavailable() error {
	return apperr.Database("Tenant database is unavailable",
		apperr.WithCode(apperr.CodeDBUnavailable),
		apperr.WithDetails(map[string]string{"tenant": h.tenant.Code, "state": h.State().String()}),
	)
}

func (h *Handle) acquire(ctx context.Context) (func(), error) {
	actx, cancel := context.WithTimeout(ctx, h.reg.cfg.AcquireTimeout)
	defer cancel()

	if err := h.sem.Acquire(actx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, h.reg.translator.Translate(ctx.Err())
		}
		return nil, apperr.Database("Timed out waiting for a database connection",
			apperr.WithCode(apperr.CodeDBConnection),
			apperr.WithDetails(map[string]any{"tenant": h.tenant.Code, "maxConns": h.reg.cfg.MaxConns}),
			apperr.WithCause(err),
		)
	}

	h.inUse.Add(1)
	return func() {
		h.inUse.Add(-1)
		h.sem.Release(1)
	}, nil
}

func (h *Handle) run(ctx context.Context, q store.Querier, query string, args []any) (*store.Result, error) {
	qctx, cancel := context.WithTimeout(ctx, h.reg.cfg.QueryTimeout)
	defer cancel()

	res, err := q.Exec(qctx, query, args...)
	if err != nil && ctx.Err() == nil && errors.Is(qctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %w", store.ErrQueryTimeout, err)
	}
	return res, err
}

func (h *Handle) ping(ctx context.Context, pool store.Pool) error {
	pctx, cancel := context.WithTimeout(ctx, h.reg.cfg.QueryTimeout)
	defer cancel()
	return pool.Ping(pctx)
}

func (h *Handle) currentPool() store.Pool {
	h.poolMu.RLock()
	defer h.poolMu.RUnlock()
	return h.pool
}

// setPool installs pool and returns the one it replaced. A closed handle
// keeps its pool and reports false; pool then belongs to the caller.
func (h *Handle) setPool(pool store.Pool) (store.Pool, bool) {
	h.poolMu.Lock()
	defer h.poolMu.Unlock()
	if h.State() == StateClosed {
		return nil, false
	}
	old := h.pool
	h.pool = pool
	return old, true
}

func (h *Handle) setState(s State) { h.state.Store(int32(s)) }

// recovered marks the handle healthy, swapping in pool when non-nil. It
// reports false, after closing pool, when the handle has already closed.
func (h *Handle) recovered(pool store.Pool) bool {
	if pool != nil {
		old, ok := h.setPool(pool)
		if !ok {
			_ = pool.Close()
			return false
		}
		if old != nil {
			_ = old.Close()
		}
	}
	h.failures.Store(0)
	h.exhausted.Store(false)
	h.state.CompareAndSwap(int32(StateDegraded), int32(StateReady))
	return true
}

// monitor pings the database every HealthInterval until the handle closes.
func (h *Handle) monitor(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(h.reg.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		case <-ticker.C:
			h.check(ctx)
		}
	}
}

func (h *Handle) check(ctx context.Context) {
	if h.State() != StateReady {
		return
	}

	err := h.ping(ctx, h.currentPool())
	if err == nil {
		h.failures.Store(0)
		return
	}

	n := h.failures.Add(1)
	log.Warn().Err(err).Str("tenant", h.tenant.Code).Int32("failures", n).Msg("tenant health check failed")
	if int(n) < h.reg.cfg.FailureThreshold {
		return
	}

	if h.state.CompareAndSwap(int32(StateReady), int32(StateDegraded)) {
		log.Error().Str("tenant", h.tenant.Code).Msg("tenant connection degraded, reconnecting")
		go h.reconnect(ctx)
	}
}

// reconnect opens a fresh pool with linear backoff, giving up after
// ReconnectAttempts. A handle that gives up stays degraded until Probe.
func (h *Handle) reconnect(ctx context.Context) {
	if !h.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer h.reconnecting.Store(false)

	for attempt := 1; attempt <= h.reg.cfg.ReconnectAttempts; attempt++ {
		h.reconnects.Add(1)
		if !sleepCtx(ctx, h.reg.cfg.ReconnectDelay*time.Duration(attempt)) {
			return
		}
		select {
		case <-h.stop:
			return
		default:
		}

		openCtx, cancel := context.WithTimeout(ctx, h.reg.cfg.ConnectTimeout)
		pool, err := h.reg.open(openCtx, h.tenant)
		cancel()
		h.reg.metrics.reconnect(h.tenant.Code, err == nil)
		if err != nil {
			log.Warn().Err(err).Str("tenant", h.tenant.Code).Int("attempt", attempt).Msg("tenant reconnect failed")
			continue
		}

		if !h.recovered(pool) {
			return
		}
		log.Info().Str("tenant", h.tenant.Code).Int("attempt", attempt).Msg("tenant connection restored")
		return
	}

	h.exhausted.Store(true)
	log.Error().Str("tenant", h.tenant.Code).Int("attempts", h.reg.cfg.ReconnectAttempts).
		Msg("tenant reconnect attempts exhausted, waiting for probe")
}

func (h *Handle) close() {
	h.closeOnce.Do(func() {
		h.poolMu.Lock()
		h.setState(StateClosed)
		pool := h.pool
		h.poolMu.Unlock()

		close(h.stop)
		<-h.done
		if pool != nil {
			if err := pool.Close(); err != nil {
				log.Warn().Err(err).Str("tenant", h.tenant.Code).Msg("closing tenant pool")
			}
		}
	})
}

type txQuerier struct {
	h  *Handle
	tx store.Tx
}

func (q *txQuerier) Exec(ctx context.Context, query string, args ...any) (*store.Result, error) {
	return q.h.run(ctx, q.tx, query, args)
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
