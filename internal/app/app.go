// Package app wires configuration, logging, metrics, the registry, the chat
// listener and the admin endpoint into one runnable unit.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/framechat/internal/auth"
	"github.com/vovakirdan/framechat/internal/config"
	"github.com/vovakirdan/framechat/internal/core"
	"github.com/vovakirdan/framechat/internal/health"
	"github.com/vovakirdan/framechat/internal/metrics"
	"github.com/vovakirdan/framechat/internal/server"
)

// App holds the assembled server components.
type App struct {
	cfg    config.Config
	log    *zerolog.Logger
	server *server.Server
	admin  *http.Server
}

// New constructs the application with the provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	verifier, err := auth.New(cfg.Password, cfg.PasswordHash, cfg.MaxNameLen)
	if err != nil {
		return nil, fmt.Errorf("init verifier: %w", err)
	}

	m := metrics.New("framechat")
	registry := core.NewRegistry(cfg.RoomCapacity, logger)
	m.RegisterRegistryGauges(registry.Counts)

	srv := server.New(server.Config{
		Addr:            cfg.Addr,
		MaxFrame:        cfg.MaxFrameBytes,
		CommandRate:     cfg.CommandRate,
		CommandBurst:    cfg.CommandBurst,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, registry, verifier, m, logger)

	a := &App{
		cfg:    cfg,
		log:    logger,
		server: srv,
	}

	if cfg.AdminAddr != "" {
		checker := health.NewChecker()
		checker.Register("listener", func(ctx context.Context) error {
			if !srv.Ready() {
				return errors.New("chat listener not bound")
			}
			return nil
		})

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", health.LivenessHandler())
		mux.HandleFunc("/readyz", checker.ReadinessHandler())

		a.admin = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return a, nil
}

// Run starts the chat listener and the admin endpoint and blocks until the
// context is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.Listen(ctx)
	})

	if a.admin != nil {
		g.Go(func() error {
			a.log.Info().Str("addr", a.cfg.AdminAddr).Msg("admin endpoint started")
			if err := a.admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin endpoint: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()
			return a.admin.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
