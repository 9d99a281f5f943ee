package audit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Report is a decoded Lighthouse result (LHR). The document is kept as a generic tree so the
// projection can address any path, including ones whose shape varies between Lighthouse versions.
type Report struct {
	doc map[string]any
}

// RuntimeError is the top-level error Lighthouse attaches when the page could not be audited,
// e.g. a failed document request.
type RuntimeError struct {
	Code    string
	Message string
}

func (e *RuntimeError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// ParseReport decodes raw Lighthouse JSON output.
func ParseReport(data []byte) (*Report, error) {
	if len(data) == 0 {
		return nil, errors.New("empty report")
	}
	var root any
	if err := json.Unmarshal(data, &root, jsontext.AllowDuplicateNames(true)); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	doc, ok := root.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode report: expected object, got %s", kindOf(root))
	}
	return &Report{doc: doc}, nil
}

// NewReport wraps an already decoded document.
func NewReport(doc map[string]any) *Report {
	if doc == nil {
		doc = map[string]any{}
	}
	return &Report{doc: doc}
}

// Lookup resolves path against the report the way a chained property access would:
// a missing or null intermediate value is an ErrProjection, a key looked up on a non-object
// is undefined, and a missing final key is undefined. The boolean reports whether the
// value is defined.
func (r *Report) Lookup(path ...string) (any, bool, error) {
	if len(path) == 0 {
		return nil, false, fmt.Errorf("%w: empty path", ErrProjection)
	}
	var (
		cur   any = r.doc
		found bool
	)
	for i, key := range path {
		if obj, ok := cur.(map[string]any); ok {
			cur, found = obj[key]
		} else {
			cur, found = nil, false
		}
		if i == len(path)-1 {
			return cur, found, nil
		}
		if !found {
			return nil, false, fmt.Errorf("%w: %s is undefined", ErrProjection, strings.Join(path[:i+1], "."))
		}
		if cur == nil {
			return nil, false, fmt.Errorf("%w: %s is null", ErrProjection, strings.Join(path[:i+1], "."))
		}
	}
	return nil, false, nil
}

// LighthouseVersion returns the engine version recorded in the report, if any.
func (r *Report) LighthouseVersion() string {
	return r.stringAt("lighthouseVersion")
}

// RequestedURL returns the URL Lighthouse was asked to load.
func (r *Report) RequestedURL() string {
	return r.stringAt("requestedUrl")
}

// FinalURL returns the main document URL after redirects.
func (r *Report) FinalURL() string {
	return r.stringAt("finalUrl")
}

// DisplayedURL returns the URL shown in the address bar when the audit finished.
func (r *Report) DisplayedURL() string {
	return r.stringAt("finalDisplayedUrl")
}

// RuntimeError returns the run-level failure recorded by Lighthouse, or nil.
func (r *Report) RuntimeError() *RuntimeError {
	raw, ok := r.doc["runtimeError"].(map[string]any)
	if !ok {
		return nil
	}
	code, _ := raw["code"].(string)
	if code == "" || code == "NO_ERROR" {
		return nil
	}
	msg, _ := raw["message"].(string)
	return &RuntimeError{Code: code, Message: msg}
}

func (r *Report) stringAt(key string) string {
	s, _ := r.doc[key].(string)
	return s
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
