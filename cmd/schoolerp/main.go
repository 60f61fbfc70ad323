package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/nitinbetharia/schoolerp/internal/apperr"
	"github.com/nitinbetharia/schoolerp/internal/auth"
	"github.com/nitinbetharia/schoolerp/internal/config"
	"github.com/nitinbetharia/schoolerp/internal/domain"
	"github.com/nitinbetharia/schoolerp/internal/models"
	"github.com/nitinbetharia/schoolerp/internal/registry"
	"github.com/nitinbetharia/schoolerp/internal/server"
	redisstore "github.com/nitinbetharia/schoolerp/internal/store/redis"
	"github.com/nitinbetharia/schoolerp/internal/tenant"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	config.LoadDotEnv()
	config.SetupLogging()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Tenant connection registry. Handles are opened lazily per tenant.
	reg := registry.New(
		registry.ConfigFrom(cfg.Database),
		registry.NewOpener(cfg.Database),
		registry.WithMetrics(registry.NewMetrics(promReg)),
		registry.WithTranslator(apperr.Translator{DevMode: !cfg.IsProduction()}),
	)
	defer reg.Close()

	// The system store must be reachable before serving.
	if _, err := reg.System(ctx); err != nil {
		return err
	}

	sessions, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer sessions.Close()

	users := func(ctx context.Context, tc tenant.Context) (domain.UserRepository, error) {
		h, err := reg.Get(ctx, tc)
		if err != nil {
			return nil, err
		}
		return models.For(h).Users, nil
	}
	authSvc := auth.NewService(users, sessions, reg.Naming(), cfg.Session.Secret, cfg.Session.TTL)

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := server.New(ctx, server.Deps{
		Config:   cfg,
		Registry: reg,
		Auth:     authSvc,
		Sessions: sessions,
		Gatherer: promReg,
	})

	go func() {
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}
