package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/webaudit/internal/logging"
	"github.com/JakeFAU/webaudit/internal/metrics"
)

type stubIDGen struct {
	id  string
	err error
}

func (s stubIDGen) NewID() (string, error) { return s.id, s.err }

const fixedID = "0190f0a4-6d1e-7c3b-9a51-3c1e5a9b2f10"

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	h := RequestID(stubIDGen{id: fixedID})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, fixedID, seen)
	require.Equal(t, fixedID, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDKeepsValidInbound(t *testing.T) {
	inbound := "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	var seen string
	h := RequestID(stubIDGen{id: fixedID})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, inbound)
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, inbound, seen)
}

func TestRequestIDReplacesGarbageInbound(t *testing.T) {
	var seen string
	h := RequestID(stubIDGen{id: fixedID})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, fixedID, seen)
}

func TestRequestIDGeneratorFailure(t *testing.T) {
	called := false
	h := RequestID(stubIDGen{err: errors.New("entropy")})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		called = true
		require.Empty(t, RequestIDFromContext(r.Context()))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, called)
}

func TestLoggerScopesAndLogsAccess(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	chain := RequestID(stubIDGen{id: fixedID})(Logger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	})))

	chain.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/audit", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "inside handler", entries[0].Message)
	require.Equal(t, fixedID, entries[0].ContextMap()["request_id"])

	access := entries[1].ContextMap()
	require.Equal(t, "request completed", entries[1].Message)
	require.Equal(t, int64(http.StatusTeapot), access["status"])
	require.Equal(t, "/audit", access["path"])
	require.Equal(t, http.MethodPost, access["method"])
}

func TestRecover(t *testing.T) {
	h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	})

	rec := httptest.NewRecorder()
	CORS(next).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/audit", nil))

	require.False(t, called, "next handler should not be called for OPTIONS preflight")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	require.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORSNormalRequest(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	})

	rec := httptest.NewRecorder()
	CORS(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/audit", nil))

	require.True(t, called)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	metrics.Init()
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/things/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/things/42")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `route="/things/{id}"`), "expected route label in exposition")
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	require.Equal(t, "10.0.0.9", ClientIP(req))

	req.Header.Set("X-Real-IP", "10.1.1.1")
	require.Equal(t, "10.1.1.1", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	require.Equal(t, "203.0.113.7", ClientIP(req))
}

