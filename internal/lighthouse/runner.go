// Package lighthouse runs the Lighthouse CLI against an already running browser.
package lighthouse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/webaudit/internal/audit"
	"github.com/JakeFAU/webaudit/internal/logging"
	"github.com/JakeFAU/webaudit/internal/metrics"
)

// DefaultCategories are the report categories every audit requests.
var DefaultCategories = []string{"performance", "accessibility", "best-practices", "seo"}

const (
	defaultBin      = "lighthouse"
	defaultHostname = "127.0.0.1"
	stderrLimit     = 16 << 10
	waitDelay       = 5 * time.Second
)

// Config controls the CLI invocation.
type Config struct {
	// Bin is the lighthouse executable; defaults to "lighthouse" on PATH.
	Bin string
	// Categories restricts the run; defaults to DefaultCategories.
	Categories []string
	// ExtraFlags are appended verbatim after the built-in flags.
	ExtraFlags []string
	// Hostname is where the browser's DevTools listener runs.
	Hostname string
}

// Runner implements audit.Engine by shelling out to the Lighthouse CLI.
type Runner struct {
	cfg Config
}

var _ audit.Engine = (*Runner)(nil)

// NewRunner builds a Runner, filling in defaults.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Bin == "" {
		cfg.Bin = defaultBin
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = append([]string(nil), DefaultCategories...)
	}
	if cfg.Hostname == "" {
		cfg.Hostname = defaultHostname
	}
	for _, c := range cfg.Categories {
		if strings.TrimSpace(c) == "" || strings.Contains(c, ",") {
			return nil, fmt.Errorf("invalid lighthouse category %q", c)
		}
	}
	metrics.Init()
	return &Runner{cfg: cfg}, nil
}

// Args returns the command line for auditing url against a browser on port.
func (r *Runner) Args(url string, port int) []string {
	args := []string{
		url,
		"--port=" + strconv.Itoa(port),
		"--hostname=" + r.cfg.Hostname,
		"--output=json",
		"--output-path=stdout",
		"--quiet",
		"--only-categories=" + strings.Join(r.cfg.Categories, ","),
	}
	return append(args, r.cfg.ExtraFlags...)
}

// Run audits url in browser and returns the decoded report. Every failure wraps audit.ErrAudit.
func (r *Runner) Run(ctx context.Context, browser audit.Browser, url string) (*audit.Report, error) {
	logger := logging.FromContext(ctx)
	start := time.Now()

	cmd := exec.CommandContext(ctx, r.cfg.Bin, r.Args(url, browser.Port())...)
	setProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	var stdout bytes.Buffer
	stderr := &cappedBuffer{limit: stderrLimit}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	elapsed := time.Since(start)
	if err != nil {
		outcome := "error"
		if ctx.Err() != nil {
			outcome = "canceled"
			err = fmt.Errorf("%w (%w)", ctx.Err(), err)
		}
		metrics.ObserveLighthouseRun(outcome, elapsed)
		logger.Warn("lighthouse run failed",
			zap.Error(err),
			zap.Int("exit_code", exitCode(err)),
			zap.String("stderr", stderr.String()),
			zap.Duration("duration", elapsed),
		)
		return nil, fmt.Errorf("%w: run lighthouse: %w", audit.ErrAudit, err)
	}

	report, err := audit.ParseReport(stdout.Bytes())
	if err != nil {
		metrics.ObserveLighthouseRun("error", elapsed)
		logger.Warn("lighthouse output unusable",
			zap.Error(err),
			zap.Int("stdout_bytes", stdout.Len()),
			zap.String("stderr", stderr.String()),
		)
		return nil, fmt.Errorf("%w: %w", audit.ErrAudit, err)
	}
	if rtErr := report.RuntimeError(); rtErr != nil {
		metrics.ObserveLighthouseRun("runtime_error", elapsed)
		logger.Warn("lighthouse reported a runtime error",
			zap.String("code", rtErr.Code),
			zap.String("message", rtErr.Message),
		)
		return nil, fmt.Errorf("%w: %w", audit.ErrAudit, rtErr)
	}

	metrics.ObserveLighthouseRun(metrics.OutcomeSuccess, elapsed)
	logger.Info("lighthouse run finished",
		zap.String("lighthouse_version", report.LighthouseVersion()),
		zap.String("final_url", report.FinalURL()),
		zap.String("final_displayed_url", report.DisplayedURL()),
		zap.Duration("duration", elapsed),
	)
	return report, nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// cappedBuffer keeps the first limit bytes written and silently drops the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
			c.truncated = true
		} else {
			c.buf.Write(p)
		}
	} else if len(p) > 0 {
		c.truncated = true
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	if c.truncated {
		return c.buf.String() + "...(truncated)"
	}
	return c.buf.String()
}
