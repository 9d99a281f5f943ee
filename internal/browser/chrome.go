// Package browser provisions one headless Chrome per audit and exposes its DevTools port.
package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/webaudit/internal/audit"
	"github.com/JakeFAU/webaudit/internal/logging"
	"github.com/JakeFAU/webaudit/internal/metrics"
)

const (
	activePortFile      = "DevToolsActivePort"
	defaultStartTimeout = 10 * time.Second
	loopbackHost        = "127.0.0.1"
)

// Config controls how Chrome is launched.
type Config struct {
	// ExecPath overrides chromedp's executable lookup.
	ExecPath string
	// NoSandbox adds --no-sandbox, required when running as root in containers.
	NoSandbox bool
	// MaxParallel caps concurrent browsers; 0 means unlimited.
	MaxParallel int
	// Flags are extra command-line switches, either "name" or "name=value", leading dashes optional.
	Flags []string
	// ProfileDir is the parent directory for per-browser profiles; defaults to os.TempDir.
	ProfileDir string
	// StartTimeout bounds the wait for Chrome to publish its DevTools port.
	StartTimeout time.Duration
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.MaxParallel < 0 {
		return fmt.Errorf("max parallel must be >= 0")
	}
	if c.StartTimeout < 0 {
		return fmt.Errorf("start timeout must be >= 0")
	}
	for _, fl := range c.Flags {
		if strings.TrimLeft(strings.TrimSpace(fl), "-") == "" {
			return fmt.Errorf("empty browser flag %q", fl)
		}
	}
	return nil
}

// Provisioner launches a fresh Chrome for each Acquire. It implements audit.Provisioner.
type Provisioner struct {
	cfg     Config
	limiter chan struct{}
}

var _ audit.Provisioner = (*Provisioner)(nil)

// NewProvisioner validates cfg and builds a Provisioner.
func NewProvisioner(cfg Config) (*Provisioner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	metrics.Init()
	return &Provisioner{cfg: cfg, limiter: limiter}, nil
}

// Acquire starts a headless Chrome and waits until its DevTools endpoint answers. The returned
// browser must be released by the caller. On failure nothing is left running.
func (p *Provisioner) Acquire(ctx context.Context) (audit.Browser, error) {
	if err := p.acquireSlot(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", audit.ErrProvision, err)
	}

	logger := logging.FromContext(ctx)
	h := newHandle(logger, p.releaseSlot)

	dir, err := os.MkdirTemp(p.cfg.ProfileDir, "webaudit-profile-")
	if err != nil {
		h.Release()
		return nil, fmt.Errorf("%w: create profile dir: %w", audit.ErrProvision, err)
	}
	h.profileDir = dir

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, p.allocatorOptions(dir)...)
	h.allocCancel = allocCancel
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	h.browserCancel = browserCancel

	// The first Run owns the browser lifetime, so it gets browserCtx itself and not a derived timeout.
	var product, userAgent string
	err = chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, prod, _, ua, _, err := cdpbrowser.GetVersion().Do(ctx)
		if err != nil {
			return fmt.Errorf("get browser version: %w", err)
		}
		product, userAgent = prod, ua
		return nil
	}))
	if err != nil {
		h.Release()
		return nil, fmt.Errorf("%w: start chrome: %w", audit.ErrProvision, err)
	}
	h.markStarted()

	port, err := waitActivePort(ctx, dir, p.cfg.StartTimeout)
	if err != nil {
		h.Release()
		return nil, fmt.Errorf("%w: %w", audit.ErrProvision, err)
	}
	h.port = port

	fields := []zap.Field{
		zap.String("product", product),
		zap.String("user_agent", userAgent),
		zap.Int("port", port),
	}
	if c := chromedp.FromContext(browserCtx); c != nil && c.Browser != nil {
		if proc := c.Browser.Process(); proc != nil {
			fields = append(fields, zap.Int("pid", proc.Pid))
		}
	}
	logger.Debug("browser started", fields...)
	return h, nil
}

func (p *Provisioner) allocatorOptions(profileDir string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("remote-debugging-port", "0"),
		chromedp.Flag("remote-debugging-address", loopbackHost),
		chromedp.UserDataDir(profileDir),
	)
	if p.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if p.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(p.cfg.ExecPath))
	}
	for _, raw := range p.cfg.Flags {
		name, value := parseFlag(raw)
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// parseFlag splits "--name=value" into a chromedp flag. A bare name becomes a boolean switch.
func parseFlag(raw string) (string, any) {
	raw = strings.TrimLeft(strings.TrimSpace(raw), "-")
	name, value, ok := strings.Cut(raw, "=")
	if !ok {
		return name, true
	}
	return name, value
}

func (p *Provisioner) acquireSlot(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	select {
	case p.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (p *Provisioner) releaseSlot() {
	if p.limiter == nil {
		return
	}
	select {
	case <-p.limiter:
	default:
	}
}

// Handle is one running Chrome. It implements audit.Browser.
type Handle struct {
	port          int
	profileDir    string
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	freeSlot      func()
	logger        *zap.Logger

	started bool
	once    sync.Once
}

var _ audit.Browser = (*Handle)(nil)

// newHandle binds the handle to the logger of the request that acquired it.
func newHandle(logger *zap.Logger, freeSlot func()) *Handle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handle{freeSlot: freeSlot, logger: logger}
}

// Endpoint returns the host:port of the DevTools listener.
func (h *Handle) Endpoint() string {
	return net.JoinHostPort(loopbackHost, strconv.Itoa(h.port))
}

// Port returns the DevTools port.
func (h *Handle) Port() int {
	return h.port
}

func (h *Handle) markStarted() {
	h.started = true
	metrics.IncBrowsers()
}

// Release stops Chrome, removes its profile and frees the concurrency slot. Only the first call
// has any effect.
func (h *Handle) Release() {
	h.once.Do(func() {
		if h.browserCancel != nil {
			h.browserCancel()
		}
		// Cancelling the allocator waits for the process to exit.
		if h.allocCancel != nil {
			h.allocCancel()
		}
		if h.profileDir != "" {
			if err := os.RemoveAll(h.profileDir); err != nil && h.logger != nil {
				h.logger.Warn("remove browser profile", zap.String("dir", h.profileDir), zap.Error(err))
			}
		}
		if h.started {
			metrics.DecBrowsers()
		}
		if h.freeSlot != nil {
			h.freeSlot()
		}
	})
}

// waitActivePort polls the DevToolsActivePort file Chrome writes into its profile directory.
func waitActivePort(ctx context.Context, profileDir string, timeout time.Duration) (int, error) {
	path := filepath.Join(profileDir, activePortFile)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			port, perr := parseActivePort(data)
			if perr == nil {
				return port, nil
			}
			// Chrome may still be writing the file.
			err = perr
		case !errors.Is(err, os.ErrNotExist):
			return 0, fmt.Errorf("read %s: %w", activePortFile, err)
		}

		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("wait for devtools port: %w", ctx.Err())
		case <-deadline.C:
			return 0, fmt.Errorf("devtools port not published within %s: %w", timeout, err)
		case <-ticker.C:
		}
	}
}

// parseActivePort reads the port from the first line of a DevToolsActivePort file.
func parseActivePort(data []byte) (int, error) {
	line, _, _ := bytes.Cut(data, []byte("\n"))
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return 0, errors.New("empty devtools port file")
	}
	port, err := strconv.Atoi(string(line))
	if err != nil {
		return 0, fmt.Errorf("parse devtools port %q: %w", line, err)
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("devtools port %d out of range", port)
	}
	return port, nil
}
