package v1

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/server/respond"
)

// HealthDeps are the collaborators the health endpoint checks.
type HealthDeps struct {
	Registry    Registry
	Sessions    Pinger
	Environment string
	StartedAt   time.Time
	Models      []string
}

type HealthOutput struct {
	Status      string         `json:"status"`
	Uptime      string         `json:"uptime"`
	Memory      MemoryStats    `json:"memory"`
	Database    DatabaseHealth `json:"database"`
	Models      []string       `json:"models"`
	Environment string         `json:"environment"`
}

type MemoryStats struct {
	AllocBytes uint64 `json:"alloc_bytes"`
	SysBytes   uint64 `json:"sys_bytes"`
	Goroutines int    `json:"goroutines"`
}

type DatabaseHealth struct {
	System        string `json:"system"`
	TenantHandles int    `json:"tenant_handles"`
	Sessions      string `json:"sessions"`
}

// Health reports process and dependency health. It answers 503
// HEALTH_CHECK_FAILED when the system store or the session store is down.
func Health(deps HealthDeps) respond.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		logger := hlog.FromRequest(r)
		db := DatabaseHealth{System: "ok", Sessions: "ok"}
		failed := map[string]string{}

		if h, err := deps.Registry.System(ctx); err != nil {
			logger.Warn().Err(err).Msg("system store unavailable for health check")
			db.System = "unavailable"
			failed["system"] = db.System
		} else if err := h.Probe(ctx); err != nil {
			logger.Warn().Err(err).Msg("system store health check failed")
			db.System = "unreachable"
			failed["system"] = db.System
		}

		if err := deps.Sessions.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("session store health check failed")
			db.Sessions = "unavailable"
			failed["sessions"] = db.Sessions
		}

		for _, s := range deps.Registry.Stats() {
			if !s.System() {
				db.TenantHandles++
			}
		}

		if len(failed) > 0 {
			return apperr.Database("Health check failed",
				apperr.WithCode(apperr.CodeHealthCheckFailed),
				apperr.WithDetails(failed),
			)
		}

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		respond.OK(w, "", HealthOutput{
			Status:      "healthy",
			Uptime:      time.Since(deps.StartedAt).Round(time.Second).String(),
			Memory:      MemoryStats{AllocBytes: mem.Alloc, SysBytes: mem.Sys, Goroutines: runtime.NumGoroutine()},
			Database:    db,
			Models:      deps.Models,
			Environment: deps.Environment,
		})
		return nil
	}
}
