// Package audit owns the audit request lifecycle: it provisions a browser, runs the auditing
// engine against it, releases the browser, and projects the resulting Lighthouse report into
// the flat response served by the API.
package audit

import (
	"context"
	"time"
)

// Request is the body accepted by POST /audit.
type Request struct {
	URL string `json:"url"`
}

// Browser is one running headless browser, owned by a single request.
type Browser interface {
	// Endpoint returns the host:port of the DevTools listener.
	Endpoint() string
	// Port returns the DevTools port.
	Port() int
	// Release shuts the browser down. It is safe to call more than once.
	Release()
}

// Provisioner starts an isolated browser per call. Instances are never pooled.
type Provisioner interface {
	Acquire(ctx context.Context) (Browser, error)
}

// Engine runs the auditing engine against a provisioned browser.
type Engine interface {
	Run(ctx context.Context, browser Browser, url string) (*Report, error)
}

// Clock abstracts time for duration measurements.
type Clock interface {
	Now() time.Time
	Since(start time.Time) time.Duration
}
