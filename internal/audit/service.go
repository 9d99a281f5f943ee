package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/webaudit/internal/logging"
	"github.com/JakeFAU/webaudit/internal/metrics"
	"github.com/JakeFAU/webaudit/internal/telemetry"
)

// Stage names used in spans, metrics and logs.
const (
	StageProvision = "provision"
	StageAudit     = "audit"
	StageProject   = "project"
)

// Config tunes the request lifecycle.
type Config struct {
	// Timeout bounds the engine run. Zero means the run is limited only by the request context.
	Timeout time.Duration
}

// Service runs one audit per call: validate, provision a browser, run the engine, release the
// browser and project the report. It holds no per-request state and is safe for concurrent use.
type Service struct {
	provisioner Provisioner
	engine      Engine
	clock       Clock
	cfg         Config
}

// NewService wires a Service.
func NewService(provisioner Provisioner, engine Engine, clock Clock, cfg Config) *Service {
	metrics.Init()
	return &Service{
		provisioner: provisioner,
		engine:      engine,
		clock:       clock,
		cfg:         cfg,
	}
}

// Audit processes req and returns the flattened result. Errors wrap one of ErrValidation,
// ErrProvision, ErrAudit or ErrProjection.
func (s *Service) Audit(ctx context.Context, req Request) (resp *Response, err error) {
	start := s.clock.Now()
	ctx, span := telemetry.StartSpan(ctx, "audit.request")
	span.SetAttributes(telemetry.AttrAuditURL.String(req.URL))
	logger := logging.FromContext(ctx).With(zap.String("url", req.URL))

	defer func() {
		outcome := outcomeOf(err)
		if err == nil && resp == nil {
			// A collaborator panicked; the panic keeps unwinding after this runs.
			outcome = metrics.OutcomeAuditError
		}
		span.SetAttributes(telemetry.AttrAuditOutcome.String(outcome))
		telemetry.RecordError(ctx, err)
		span.End()
		elapsed := s.clock.Since(start)
		metrics.ObserveAudit(outcome, elapsed)
		if err != nil || resp == nil {
			logger.Warn("audit failed", zap.String("outcome", outcome), zap.Duration("duration", elapsed), zap.Error(err))
			return
		}
		logger.Info("audit completed", zap.Int("fields", resp.Len()), zap.Duration("duration", elapsed))
	}()

	if req.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrValidation)
	}

	report, err := s.provisionAndRun(logging.WithContext(ctx, logger), req.URL)
	if err != nil {
		return nil, err
	}

	stageStart := s.clock.Now()
	projCtx, projectSpan := telemetry.StartSpan(ctx, "audit.project")
	resp, err = Project(report)
	if err != nil {
		telemetry.RecordError(projCtx, err)
	} else {
		projectSpan.SetAttributes(telemetry.AttrFieldCount.Int(resp.Len()))
	}
	projectSpan.End()
	metrics.ObserveStage(StageProject, s.clock.Since(stageStart))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// provisionAndRun owns the browser for exactly the duration of the engine run. The browser is
// released before this returns, whatever the engine did.
func (s *Service) provisionAndRun(ctx context.Context, url string) (*Report, error) {
	logger := logging.FromContext(ctx)

	stageStart := s.clock.Now()
	provCtx, provSpan := telemetry.StartSpan(ctx, "audit.provision")
	browser, err := s.provisioner.Acquire(provCtx)
	metrics.ObserveStage(StageProvision, s.clock.Since(stageStart))
	if err != nil {
		telemetry.RecordError(provCtx, err)
		provSpan.End()
		if !errors.Is(err, ErrProvision) {
			err = fmt.Errorf("%w: %w", ErrProvision, err)
		}
		return nil, err
	}
	provSpan.SetAttributes(telemetry.AttrBrowserPort.Int(browser.Port()))
	provSpan.End()
	defer func() {
		browser.Release()
		logger.Debug("browser released", zap.String("endpoint", browser.Endpoint()))
	}()

	runCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	stageStart = s.clock.Now()
	runCtx, runSpan := telemetry.StartSpan(runCtx, "audit.run")
	defer runSpan.End()
	logger.Debug("running audit", zap.String("endpoint", browser.Endpoint()))
	report, err := s.engine.Run(runCtx, browser, url)
	metrics.ObserveStage(StageAudit, s.clock.Since(stageStart))
	if err != nil {
		telemetry.RecordError(runCtx, err)
		if !errors.Is(err, ErrAudit) {
			err = fmt.Errorf("%w: %w", ErrAudit, err)
		}
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("%w: engine returned no report", ErrAudit)
	}
	return report, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrValidation):
		return metrics.OutcomeValidationError
	case errors.Is(err, ErrProvision):
		return metrics.OutcomeProvisionError
	case errors.Is(err, ErrProjection):
		return metrics.OutcomeProjectionError
	default:
		return metrics.OutcomeAuditError
	}
}
