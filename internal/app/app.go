// Package app provides the top-level application lifecycle: it wires the
// stores, caches, transports, and trading instances together and runs them
// until shutdown.
package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arbalest/skinsniper/internal/config"
)

// archiveInterval is how often aged purchase audit rows are archived and
// pruned when both Postgres and S3 are configured.
const archiveInterval = 24 * time.Hour

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the trading
// instances and the shared background loops, and blocks until the context is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.Int("accounts", len(a.cfg.Accounts)),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, cleanup)

	// First reference snapshot. A total failure is not fatal: the refresh
	// loop keeps retrying and instances simply reject until data arrives.
	if err := deps.RefCache.Prime(ctx); err != nil {
		a.logger.WarnContext(ctx, "reference cache not primed",
			slog.String("error", err.Error()))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return deps.RefCache.Run(gctx) })

	if deps.Archiver != nil && a.cfg.Postgres.ArchiveRetentionDays > 0 {
		g.Go(func() error { return a.archiveLoop(gctx, deps) })
	}

	for _, inst := range deps.Instances {
		if err := inst.Start(); err != nil {
			a.logger.ErrorContext(ctx, "instance start failed",
				slog.String("error", err.Error()))
			continue
		}
		a.closers = append(a.closers, inst.Stop)
	}

	<-gctx.Done()
	_ = g.Wait()
	return ctx.Err()
}

// archiveLoop periodically uploads purchase audit rows older than the
// retention window and prunes them after a successful upload.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(archiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Postgres.ArchiveRetentionDays)
		count, err := deps.Archiver.ArchivePurchases(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "purchase archive failed",
				slog.String("error", err.Error()))
			continue
		}
		if count == 0 {
			continue
		}

		deleted, err := deps.Purchases.DeleteBefore(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "purchase prune failed",
				slog.String("error", err.Error()))
			continue
		}
		a.logger.InfoContext(ctx, "purchases archived",
			slog.Int64("archived", count),
			slog.Int64("pruned", deleted),
		)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
