package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sophialabs/mimicry/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/mimicry/internal/infrastructure/outbound/logging"
	"github.com/sophialabs/mimicry/internal/infrastructure/outbound/upstream"
	"github.com/sophialabs/mimicry/internal/infrastructure/wiring"
)

// App is the thin lifecycle manager that delegates dependency construction to wiring.Container.
type App struct {
	cfg        Config
	container  *wiring.Container
	httpServer *http.Server
}

// New constructs the application by creating a logger, wiring infrastructure
// components via the container, and setting up the HTTP server.
func New(cfg Config) (*App, error) {
	logger, err := logging.NewText(os.Stdout, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	container, err := wiring.New(wiring.Params{
		RootDir:        cfg.RootDir,
		AuditSize:      cfg.AuditSize,
		AuditFile:      cfg.AuditFile,
		RecordDir:      cfg.RecordDir,
		TemplateEngine: cfg.TemplateEngine,
		RateLimiterTTL: cfg.RateLimiterTTL,
		Breaker: upstream.Config{
			BreakerFailures: cfg.BreakerFailures,
			BreakerCooldown: cfg.BreakerCooldown,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to wire infrastructure: %w", err)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      container.Server(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		container:  container,
		httpServer: httpServer,
	}, nil
}

// Run executes the full application lifecycle: load definitions, start the
// watcher, serve HTTP, and shut down gracefully on SIGINT/SIGTERM or context
// cancellation. A failed initial load is logged and the server starts with
// whatever could be loaded.
func (a *App) Run(ctx context.Context) error {
	defer a.container.Close()
	logger := a.container.Logger()

	if err := a.container.Reload(ctx); err != nil {
		logger.Error("initial load incomplete, serving what could be loaded", "error", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.container.RunBackground(bgCtx)
	}()
	if watcher := a.setupWatcher(); watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watcher.Run(bgCtx); err != nil {
				logger.Warn("file watcher stopped", "error", err)
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting mimicry server", "addr", a.httpServer.Addr, "root", a.container.Root())
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func (a *App) setupWatcher() *filesystem.Watcher {
	logger := a.container.Logger()

	watcher, err := filesystem.NewWatcher(a.container.Root(), a.cfg.WatcherDebounce, logger, func(ctx context.Context) {
		if err := a.container.Reload(ctx); err != nil {
			logger.Error("hot reload failed", "error", err)
			return
		}
		logger.Info("hot reload complete")
	})
	if err != nil {
		logger.Warn("file watcher not available", "error", err)
		return nil
	}

	logger.Info("file watcher started", "root", a.container.Root())
	return watcher
}
