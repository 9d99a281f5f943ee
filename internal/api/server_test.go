package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/webaudit/internal/audit"
)

type fakeIDGen struct{}

func (fakeIDGen) NewID() (string, error) { return "0190f0a4-6d1e-7c3b-9a51-3c1e5a9b2f10", nil }

type fakeClock struct{}

func (fakeClock) Now() time.Time                  { return time.Now() }
func (fakeClock) Since(t time.Time) time.Duration { return time.Since(t) }

type fakeBrowser struct{ releases *atomic.Int32 }

func (fakeBrowser) Endpoint() string { return "127.0.0.1:9222" }
func (fakeBrowser) Port() int        { return 9222 }
func (b fakeBrowser) Release()       { b.releases.Add(1) }

type fakeProvisioner struct {
	acquires atomic.Int32
	releases atomic.Int32
}

func (p *fakeProvisioner) Acquire(context.Context) (audit.Browser, error) {
	p.acquires.Add(1)
	return fakeBrowser{releases: &p.releases}, nil
}

type fakeEngine struct {
	report *audit.Report
	err    error
	panics bool
}

func (e fakeEngine) Run(context.Context, audit.Browser, string) (*audit.Report, error) {
	if e.panics {
		panic("lighthouse exploded")
	}
	return e.report, e.err
}

func loadReport(t *testing.T) *audit.Report {
	t.Helper()
	data, err := os.ReadFile("../audit/testdata/lhr.json")
	require.NoError(t, err)
	report, err := audit.ParseReport(data)
	require.NoError(t, err)
	return report
}

func newTestServer(prov *fakeProvisioner, engine fakeEngine) *Server {
	svc := audit.NewService(prov, engine, fakeClock{}, audit.Config{})
	return NewServer(svc, fakeIDGen{}, zap.NewNop())
}

func postAudit(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/audit", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Welcome(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeProvisioner{}, fakeEngine{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, WelcomeMessage, rec.Body.String())
	require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
}

func TestServer_Audit_Succeeds(t *testing.T) {
	t.Parallel()

	prov := &fakeProvisioner{}
	srv := newTestServer(prov, fakeEngine{report: loadReport(t)})

	rec := postAudit(t, srv, `{"url":"https://example.com"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	require.True(t, strings.HasPrefix(rec.Body.String(), `{"performance":0.87,`), rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.EqualValues(t, 1, prov.acquires.Load())
	require.EqualValues(t, 1, prov.releases.Load())
}

func TestServer_Audit_MissingURL(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"empty object":  `{}`,
		"null url":      `{"url":null}`,
		"empty url":     `{"url":""}`,
		"empty body":    ``,
		"other fields":  `{"href":"https://example.com"}`,
		"false url":     `{"url":false}`,
		"zero url":      `{"url":0}`,
		"negative zero": `{"url":-0.0}`,
		"array body":    `[]`,
		"string body":   `"https://example.com"`,
		"null body":     `null`,
		"last dup wins": `{"url":"https://example.com","url":""}`,
	} {
		t.Run(name, func(t *testing.T) {
			prov := &fakeProvisioner{}
			srv := newTestServer(prov, fakeEngine{report: loadReport(t)})

			rec := postAudit(t, srv, body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.JSONEq(t, `{"error":"URL is required"}`, rec.Body.String())
			require.Zero(t, prov.acquires.Load(), "no browser may be provisioned")
		})
	}
}

func TestServer_Audit_InvalidBody(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"syntax":        `{invalid`,
		"unterminated":  `{"url":"https://example.com"`,
		"trailing data": `{"url":"https://example.com"} {}`,
		"bare word":     `https://example.com`,
	} {
		t.Run(name, func(t *testing.T) {
			prov := &fakeProvisioner{}
			srv := newTestServer(prov, fakeEngine{report: loadReport(t)})

			rec := postAudit(t, srv, body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.JSONEq(t, `{"error":"invalid JSON body"}`, rec.Body.String())
			require.Zero(t, prov.acquires.Load())
		})
	}
}

func TestServer_Audit_URLNotString(t *testing.T) {
	t.Parallel()

	for name, body := range map[string]string{
		"number": `{"url":42}`,
		"true":   `{"url":true}`,
		"object": `{"url":{"href":"https://example.com"}}`,
		"array":  `{"url":["https://example.com"]}`,
	} {
		t.Run(name, func(t *testing.T) {
			prov := &fakeProvisioner{}
			srv := newTestServer(prov, fakeEngine{report: loadReport(t)})

			rec := postAudit(t, srv, body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.JSONEq(t, `{"error":"URL must be a string"}`, rec.Body.String())
			require.Zero(t, prov.acquires.Load())
		})
	}
}

func TestServer_Audit_DuplicateURLLastWins(t *testing.T) {
	t.Parallel()

	prov := &fakeProvisioner{}
	srv := newTestServer(prov, fakeEngine{report: loadReport(t)})

	rec := postAudit(t, srv, `{"url":"","url":"https://example.com"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1, prov.acquires.Load())
}

func TestServer_Audit_EnginePanic(t *testing.T) {
	t.Parallel()

	prov := &fakeProvisioner{}
	srv := newTestServer(prov, fakeEngine{panics: true})

	rec := postAudit(t, srv, `{"url":"https://example.com"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"Failed to audit the URL"}`, rec.Body.String())
	require.EqualValues(t, 1, prov.releases.Load())
}

func TestServer_Audit_BodyTooLarge(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeProvisioner{}, fakeEngine{})
	body := `{"url":"` + strings.Repeat("a", maxRequestBodyLen) + `"}`

	rec := postAudit(t, srv, body)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServer_Audit_EngineFailure(t *testing.T) {
	t.Parallel()

	prov := &fakeProvisioner{}
	engine := fakeEngine{err: errors.New("navigation timeout")}
	srv := newTestServer(prov, engine)

	rec := postAudit(t, srv, `{"url":"https://example.com"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"Failed to audit the URL"}`, rec.Body.String())
	require.NotContains(t, rec.Body.String(), "navigation timeout")
	require.EqualValues(t, 1, prov.releases.Load())
}

func TestServer_Audit_ProjectionFailure(t *testing.T) {
	t.Parallel()

	report := audit.NewReport(map[string]any{
		"categories": map[string]any{
			"performance":    map[string]any{"score": 0.5},
			"accessibility":  map[string]any{"score": 0.5},
			"best-practices": map[string]any{"score": 0.5},
			"seo":            map[string]any{"score": 0.5},
		},
	})
	prov := &fakeProvisioner{}
	srv := newTestServer(prov, fakeEngine{report: report})

	rec := postAudit(t, srv, `{"url":"https://example.com"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"Failed to audit the URL"}`, rec.Body.String())
	require.EqualValues(t, 1, prov.releases.Load())
}

func TestServer_CORSPreflight(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeProvisioner{}, fakeEngine{})
	req := httptest.NewRequest(http.MethodOptions, "/audit", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_HealthzAndMetrics(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeProvisioner{}, fakeEngine{})
	// Record one audit outcome so the counter has a series to expose.
	require.Equal(t, http.StatusBadRequest, postAudit(t, srv, `{}`).Code)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "webaudit_audits_total")
}

func TestServer_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeProvisioner{}, fakeEngine{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit", nil))

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

