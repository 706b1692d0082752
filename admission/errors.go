package admission

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/theo-thinker/music-server-admission/errcode"
)

// Admission error codes, module 42.
var (
	// ErrDenied request rejected by an admission policy
	ErrDenied = errcode.Register(errcode.New(42, 1, "admission",
		"request denied by admission policy", http.StatusTooManyRequests))

	// ErrInvalidPolicy policy failed validation at registration
	ErrInvalidPolicy = errcode.Register(errcode.New(42, 2, "admission",
		"invalid admission policy", http.StatusBadRequest))

	// ErrStoreUnavailable the shared store could not be reached
	ErrStoreUnavailable = errcode.Register(errcode.New(42, 3, "admission",
		"admission store unavailable", http.StatusServiceUnavailable))

	// ErrHotspotDenied request rejected by the hotspot override
	ErrHotspotDenied = errcode.Register(errcode.New(42, 4, "admission",
		"request denied as hotspot", http.StatusTooManyRequests))
)

// CodeInvalidParams marks decisions produced from malformed algorithm
// parameters. These deny deterministically instead of raising.
var CodeInvalidParams = ErrInvalidPolicy.Code()

// Sentinel errors for registry lookups.
var (
	ErrUnknownFallback     = errors.New("unknown fallback operation")
	ErrUnknownKeyGenerator = errors.New("unknown key generator")
	ErrPolicyNotFound      = errors.New("policy not found")
	ErrEngineClosed        = errors.New("admission engine closed")
)

// ValidationError invalid policy or configuration value.
type ValidationError struct {
	Resource string
	Field    string
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	subject := e.Resource
	if e.Field != "" {
		if subject != "" {
			subject += "."
		}
		subject += e.Field
	}
	prefix := "validation failed"
	if subject != "" {
		prefix = fmt.Sprintf("validation failed for %s", subject)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying validation error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// DeniedError raised when an admission decision rejects the request and no
// fallback absorbs it. Carries the full decision for callers that render
// rate limit headers.
type DeniedError struct {
	Policy   string
	Decision *Decision
	layered  *errcode.LayeredError
}

// newDeniedError builds the denial error from a decision, applying the
// policy's custom message and code when present.
func newDeniedError(policyName string, d *Decision) *DeniedError {
	base := ErrDenied
	if d.Hotspot {
		base = ErrHotspotDenied
	}
	layered := base
	if d.Message != "" {
		layered = layered.WithMessage(d.Message)
	}
	return &DeniedError{
		Policy:   policyName,
		Decision: d,
		layered:  layered,
	}
}

// Error implements the error interface.
func (e *DeniedError) Error() string {
	return fmt.Sprintf("admission denied for policy %q: %s", e.Policy, e.layered.Message())
}

// Code returns the effective error code: the policy override when set,
// otherwise the registered denial code.
func (e *DeniedError) Code() int {
	if e.Decision != nil && e.Decision.ErrorCode != 0 {
		return e.Decision.ErrorCode
	}
	return e.layered.Code()
}

// HTTPStatus returns the HTTP status mapped for the denial.
func (e *DeniedError) HTTPStatus() int {
	return e.layered.HTTPStatus()
}

// Unwrap exposes the layered code so errors.Is(err, ErrDenied) works.
func (e *DeniedError) Unwrap() error {
	return e.layered
}

// AsDenied extracts a DeniedError from an error chain.
func AsDenied(err error) (*DeniedError, bool) {
	var d *DeniedError
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}
