// Package cmd defines the CLI commands for the webaudit executable.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/webaudit/internal/app"
	"github.com/JakeFAU/webaudit/internal/audit"
	"github.com/JakeFAU/webaudit/internal/config"
	"github.com/JakeFAU/webaudit/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use.
// This allows us to inject a fake app during tests.
type App interface {
	Run(ctx context.Context) error
	Audit(ctx context.Context, url string) (*audit.Response, error)
	Close(ctx context.Context)
}

// newApp is the application factory. It's a variable so tests can swap in a fake.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newLogger is swapped in tests to keep output quiet.
var newLogger = logging.New

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "webaudit",
		Short: "Runs Lighthouse audits over HTTP.",
		Long: `webaudit serves an HTTP API that audits a URL for performance, accessibility,
best practices and SEO. Each request launches its own headless Chrome, runs
Lighthouse against it and returns a flat JSON summary of the report.`,
		SilenceUsage: true,

		// Build and inject the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			ctx := logging.WithContext(cmd.Context(), logger)
			appInstance, err := newApp(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			ctx = context.WithValue(ctx, appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		// Ensure services are shut down gracefully.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close(context.WithoutCancel(cmd.Context()))
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML); environment uses the WEBAUDIT_ prefix")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAuditCmd())

	return cmd
}

// resolveApp fetches the App stored by the root command's pre-run hook.
func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. Cobra has already printed any error it returns.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
