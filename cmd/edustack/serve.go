package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/edustack/edustack/internal/api"
	"github.com/edustack/edustack/internal/audit"
	"github.com/edustack/edustack/internal/config"
	"github.com/edustack/edustack/internal/identity"
	"github.com/edustack/edustack/internal/metrics"
	"github.com/edustack/edustack/internal/ratelimit"
	"github.com/edustack/edustack/internal/token"
	"github.com/edustack/edustack/internal/user"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the identity server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.RequireJWTSecret(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	slog.Info("connected to database")

	m := metrics.New()
	m.RegisterDBPoolCollector(func() metrics.DBPoolStats {
		s := pool.Stat()
		return metrics.DBPoolStats{
			Total:             s.TotalConns(),
			Idle:              s.IdleConns(),
			Acquired:          s.AcquiredConns(),
			Max:               s.MaxConns(),
			AcquireCount:      s.AcquireCount(),
			EmptyAcquireCount: s.EmptyAcquireCount(),
		}
	})

	userStore := user.NewStore(pool)
	issuer := token.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	identitySvc := identity.NewService(userStore, issuer, cfg.Auth.RefreshTokenTTL)

	auditStore := audit.NewStore(pool)
	collector := audit.NewCollector(auditStore, cfg.Audit.BatchSize, cfg.Audit.FlushInterval, m)
	go collector.Start(ctx)

	limiter := ratelimit.New(cfg.RateLimit.SignIn, cfg.RateLimit.Window)
	go limiter.Run(ctx)

	go runCleanup(ctx, cfg, userStore, auditStore)

	router := api.NewRouter(api.RouterDeps{
		Identity:       identitySvc,
		Users:          userStore,
		Verifier:       issuer,
		Limiter:        limiter,
		Audit:          collector,
		Metrics:        m,
		DB:             pool,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	err = srv.Shutdown(shutdownCtx)
	cancel()
	collector.Stop()
	return err
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// runCleanup periodically drops expired refresh sessions and audit events
// past retention.
func runCleanup(ctx context.Context, cfg *config.Config, users *user.Store, events *audit.Store) {
	ticker := time.NewTicker(cfg.Auth.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := users.CleanExpiredSessions(ctx); err != nil {
				slog.Error("cleaning expired sessions", "error", err)
			} else if n > 0 {
				slog.Info("cleaned expired sessions", "count", n)
			}

			if cfg.Audit.Retention <= 0 {
				continue
			}
			cutoff := time.Now().Add(-cfg.Audit.Retention)
			if n, err := events.DeleteOlderThan(ctx, cutoff); err != nil {
				slog.Error("pruning audit events", "error", err)
			} else if n > 0 {
				slog.Info("pruned audit events", "count", n, "before", cutoff)
			}
		}
	}
}
