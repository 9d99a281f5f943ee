package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"go.uber.org/zap"

	"github.com/JakeFAU/webaudit/internal/audit"
	"github.com/JakeFAU/webaudit/internal/logging"
	"github.com/JakeFAU/webaudit/internal/metrics"
	"github.com/JakeFAU/webaudit/internal/middleware"
)

// Messages returned to clients. Internal error detail is only logged.
const (
	WelcomeMessage    = "Welcome to the SEO, Accessibility, and Performance Audit API!"
	msgURLRequired    = "URL is required"
	msgInvalidBody    = "invalid JSON body"
	msgBodyTooLarge   = "request body too large"
	msgURLNotString   = "URL must be a string"
	msgAuditFailed    = "Failed to audit the URL"
	maxRequestBodyLen = 1 << 20
)

var (
	errBodyTooLarge  = errors.New("request body too large")
	errMalformedBody = errors.New("malformed JSON body")
	errURLNotString  = errors.New("url is not a string")
)

// Auditor runs one audit. *audit.Service satisfies it.
type Auditor interface {
	Audit(ctx context.Context, req audit.Request) (*audit.Response, error)
}

// Server wires HTTP handlers to the audit service.
type Server struct {
	router  chi.Router
	auditor Auditor
}

// NewServer constructs a Server with middleware and routes.
func NewServer(auditor Auditor, idGen middleware.IDGenerator, logger *zap.Logger) *Server {
	s := &Server{auditor: auditor}

	r := chi.NewRouter()
	r.Use(middleware.RequestID(idGen))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover)
	r.Use(middleware.CORS)
	r.Use(middleware.Metrics)

	r.Get("/", s.welcome)
	r.Post("/audit", s.audit)
	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) welcome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(WelcomeMessage)); err != nil {
		logging.FromContext(r.Context()).Warn("welcome write failed", zap.Error(err))
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) audit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Error("audit panicked", zap.Any("panic", rec), zap.Stack("stack"))
			writeError(ctx, w, http.StatusInternalServerError, msgAuditFailed)
		}
	}()

	req, err := decodeRequest(w, r)
	if err != nil {
		logger.Info("rejected audit request", zap.Error(err))
		switch {
		case errors.Is(err, errBodyTooLarge):
			writeError(ctx, w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
		case errors.Is(err, errURLNotString):
			writeError(ctx, w, http.StatusBadRequest, msgURLNotString)
		default:
			writeError(ctx, w, http.StatusBadRequest, msgInvalidBody)
		}
		return
	}

	resp, err := s.auditor.Audit(ctx, req)
	if err != nil {
		if audit.IsClientError(err) {
			writeError(ctx, w, http.StatusBadRequest, msgURLRequired)
			return
		}
		logger.Error("audit request failed", zap.String("url", req.URL), zap.Error(err))
		writeError(ctx, w, http.StatusInternalServerError, msgAuditFailed)
		return
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

// decodeRequest reads the audit request body. Only unreadable or malformed JSON is rejected here.
// A body that is empty, not an object, or whose url is JSON-falsy (absent, null, false, 0, "")
// decodes to a request without a url, which the service rejects as a validation error.
func decodeRequest(w http.ResponseWriter, r *http.Request) (audit.Request, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyLen))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return audit.Request{}, fmt.Errorf("%w: %w", errBodyTooLarge, err)
		}
		return audit.Request{}, fmt.Errorf("%w: %w", errMalformedBody, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return audit.Request{}, nil
	}

	var body any
	if err := json.Unmarshal(data, &body, jsontext.AllowDuplicateNames(true)); err != nil {
		return audit.Request{}, fmt.Errorf("%w: %w", errMalformedBody, err)
	}
	fields, ok := body.(map[string]any)
	if !ok {
		return audit.Request{}, nil
	}

	switch url := fields["url"].(type) {
	case string:
		return audit.Request{URL: url}, nil
	case nil:
		return audit.Request{}, nil
	case bool:
		if !url {
			return audit.Request{}, nil
		}
	case float64:
		if url == 0 {
			return audit.Request{}, nil
		}
	}
	return audit.Request{}, fmt.Errorf("%w: got %s", errURLNotString, jsonKind(fields["url"]))
}

func jsonKind(v any) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload, json.Deterministic(true))
	if err != nil {
		logging.FromContext(ctx).Error("encode JSON failed", zap.Error(err))
		status = http.StatusInternalServerError
		data = []byte(`{"error":"` + msgAuditFailed + `"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.FromContext(ctx).Warn("write JSON failed", zap.Error(err))
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	writeJSON(ctx, w, status, map[string]string{"error": msg})
}
