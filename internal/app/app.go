// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/webaudit/internal/api"
	"github.com/JakeFAU/webaudit/internal/audit"
	"github.com/JakeFAU/webaudit/internal/browser"
	"github.com/JakeFAU/webaudit/internal/clock/system"
	"github.com/JakeFAU/webaudit/internal/config"
	"github.com/JakeFAU/webaudit/internal/id/uuid"
	"github.com/JakeFAU/webaudit/internal/lighthouse"
	"github.com/JakeFAU/webaudit/internal/metrics"
	"github.com/JakeFAU/webaudit/internal/telemetry"
)

// App holds the shared, long-lived services: logger, tracer provider and the HTTP server that
// fronts the audit service. It is built once at startup.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	tracer *telemetry.Provider
	svc    *audit.Service
	server *api.Server
}

// New wires every component from cfg. Nothing is started; browsers are only launched per request.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("initializing application services")
	metrics.Init()

	tracer, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		StdoutExporter: cfg.Telemetry.TraceStdout,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	provisioner, err := browser.NewProvisioner(browser.Config{
		ExecPath:     cfg.Browser.ExecPath,
		NoSandbox:    cfg.Browser.NoSandbox,
		MaxParallel:  cfg.Browser.MaxParallel,
		Flags:        cfg.Browser.Flags,
		StartTimeout: cfg.Browser.StartTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init browser provisioner: %w", err)
	}

	runner, err := lighthouse.NewRunner(lighthouse.Config{
		Bin:        cfg.Lighthouse.Bin,
		Categories: cfg.Lighthouse.Categories,
		ExtraFlags: cfg.Lighthouse.ExtraFlags,
	})
	if err != nil {
		return nil, fmt.Errorf("init lighthouse runner: %w", err)
	}

	svc := audit.NewService(provisioner, runner, system.New(), audit.Config{Timeout: cfg.Audit.Timeout})
	server := api.NewServer(svc, uuid.New(), logger)

	logger.Info("application services initialized",
		zap.String("lighthouse_bin", cfg.Lighthouse.Bin),
		zap.Int("browser_max_parallel", cfg.Browser.MaxParallel),
		zap.Duration("audit_timeout", cfg.Audit.Timeout),
	)

	return &App{
		cfg:    cfg,
		logger: logger,
		tracer: tracer,
		svc:    svc,
		server: server,
	}, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Audit runs a single audit outside the HTTP server, for the CLI.
func (a *App) Audit(ctx context.Context, url string) (*audit.Response, error) {
	return a.svc.Audit(ctx, audit.Request{URL: url})
}

// Run listens on the configured port and serves until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Addr(), err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled, then drains in-flight audits for up to
// server.shutdown_timeout. Audits still running after that have their context canceled,
// which kills their Lighthouse and Chrome processes.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("graceful shutdown incomplete, aborting in-flight audits", zap.Error(err))
		cancelBase()
		if cerr := srv.Close(); cerr != nil {
			a.logger.Error("server close error", zap.Error(cerr))
		}
	}
	a.logger.Info("shutdown complete")
	return nil
}

// Close flushes telemetry and the logger.
func (a *App) Close(ctx context.Context) {
	a.logger.Info("shutting down application services")
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("error shutting down tracer provider", zap.Error(err))
	}
	// Sync fails on stdout/stderr on some platforms; there is nowhere left to report it.
	_ = a.logger.Sync()
}
