package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/beaconapp/beacon-server/internal/errors"
)

// APIError is the error body huma writes. Envelope wraps it on the way out.
type APIError struct { //nolint:revive // stutter reads better at call sites
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *APIError) Error() string { return e.Message }

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int { return e.status }

func (e *APIError) ContentType(_ string) string { return "application/json" }

// statusCodes names the errors huma raises on its own, before a handler runs.
var statusCodes = map[int]domainerrors.Code{
	http.StatusBadRequest:          domainerrors.CodeValidation,
	http.StatusUnprocessableEntity: domainerrors.CodeValidation,
	http.StatusUnauthorized:        domainerrors.CodeUnauthorized,
	http.StatusForbidden:           domainerrors.CodeForbidden,
	http.StatusNotFound:            domainerrors.CodeNotFound,
	http.StatusConflict:            domainerrors.CodeConflict,
	http.StatusGone:                domainerrors.CodeExpired,
	http.StatusTooManyRequests:     domainerrors.CodeRateLimited,
	http.StatusServiceUnavailable:  domainerrors.CodeUnavailable,
}

// RegisterErrorHandler points huma.NewError at newAPIError. It must run
// before routes are registered.
func RegisterErrorHandler() {
	huma.NewError = newAPIError
}

// newAPIError prefers a domain error among errs. Schema failures are
// collected into a VALIDATION error's details.
func newAPIError(status int, message string, errs ...error) huma.StatusError {
	var details []*huma.ErrorDetail
	for _, err := range errs {
		var domainErr *domainerrors.Error
		if errors.As(err, &domainErr) {
			return fromDomainError(domainErr)
		}
		var detailer huma.ErrorDetailer
		if errors.As(err, &detailer) {
			details = append(details, detailer.ErrorDetail())
		}
	}

	code, ok := statusCodes[status]
	if !ok {
		code = domainerrors.CodeInternal
	}
	apiErr := &APIError{status: status, Code: string(code), Message: message}
	if len(details) > 0 {
		apiErr.Code = string(domainerrors.CodeValidation)
		apiErr.Details = details
	}
	return apiErr
}

func fromDomainError(err *domainerrors.Error) *APIError {
	return &APIError{
		status:  err.HTTPStatus(),
		Code:    string(err.Code),
		Message: err.Message,
		Details: err.Details,
	}
}
