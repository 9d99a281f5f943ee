package audit

import "errors"

// Error kinds produced along the audit lifecycle. Callers match them with errors.Is;
// the concrete cause stays reachable through the same chain.
var (
	// ErrValidation indicates the request is missing its url.
	ErrValidation = errors.New("validation failed")
	// ErrProvision indicates the headless browser could not be started.
	ErrProvision = errors.New("browser provisioning failed")
	// ErrAudit indicates navigation or the Lighthouse run itself failed, or its output was unusable.
	ErrAudit = errors.New("audit failed")
	// ErrProjection indicates the report lacked a path the projection depends on.
	ErrProjection = errors.New("report projection failed")
)

// IsClientError reports whether err should be surfaced to the caller as a 4xx.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}
