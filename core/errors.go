package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Contract signals. These drive control flow inside the session state machine
// and are consumed by the orchestration; they are never surfaced raw to the
// end user. ErrFeatureNotAvailable is benign at every call site that can
// receive it (refresh, revoke).
var (
	ErrAuthenticationRequired   = errors.New("core: authentication required")
	ErrReauthenticationRequired = errors.New("core: reauthentication required")
	ErrNoRefreshToken           = errors.New("core: no refresh token stored")
	ErrFeatureNotAvailable      = errors.New("core: feature not available")
)

// Configuration errors, fatal to the requested operation and surfaced
// verbatim.
var ErrInvalidServiceRegistry = errors.New("core: invalid service registry")

const (
	EndpointsErrorBadInput        = "ENDPOINTS_BAD_INPUT"
	EndpointsErrorNotFound        = "ENDPOINTS_NOT_FOUND"
	EndpointsErrorAuthRequired    = "ENDPOINTS_AUTH_REQUIRED"
	EndpointsErrorRegistryInvalid = "ENDPOINTS_REGISTRY_INVALID"
	EndpointsErrorSyncFailed      = "ENDPOINTS_SYNC_FAILED"
	EndpointsErrorInternal        = "ENDPOINTS_INTERNAL_ERROR"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

func endpointsErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	// Cancellation is cooperative control flow, surfaced verbatim so callers
	// can keep matching on the context sentinels.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureEndpointsErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrInvalidServiceRegistry):
		return newEndpointsError(err, goerrors.CategoryBadInput, EndpointsErrorRegistryInvalid)
	case errors.Is(err, ErrEndpointNotFound):
		return newEndpointsError(err, goerrors.CategoryNotFound, EndpointsErrorNotFound)
	case errors.Is(err, ErrAuthenticationRequired), errors.Is(err, ErrReauthenticationRequired):
		return newEndpointsError(err, goerrors.CategoryAuth, EndpointsErrorAuthRequired)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newEndpointsError(err, goerrors.CategoryBadInput, EndpointsErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureEndpointsErrorEnvelope(mapped)
}

// newEndpointsError wraps the source so sentinel checks through errors.Is keep
// working on the enveloped error.
func newEndpointsError(source error, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureEndpointsErrorEnvelope(
		goerrors.Wrap(source, category, source.Error()).
			WithTextCode(textCode),
	)
}

// NewInvalidStateError builds a fatal invalid-state error carrying structured
// detail; only non-empty detail fields are attached for diagnosis.
func NewInvalidStateError(message string, details map[string]string) error {
	fields := make([]goerrors.FieldError, 0, len(details))
	for field, value := range details {
		if strings.TrimSpace(value) == "" {
			continue
		}
		fields = append(fields, goerrors.FieldError{Field: field, Message: value})
	}
	return goerrors.NewValidation(message, fields...).
		WithCode(http.StatusConflict).
		WithTextCode(EndpointsErrorInternal)
}

func ensureEndpointsErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = endpointsHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultEndpointsTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultEndpointsTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return EndpointsErrorBadInput
	case goerrors.CategoryNotFound:
		return EndpointsErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return EndpointsErrorAuthRequired
	case goerrors.CategoryOperation:
		return EndpointsErrorSyncFailed
	default:
		return EndpointsErrorInternal
	}
}

func endpointsHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// DefaultErrorMapper wraps errors into the package's envelope taxonomy. A nil
// result means no envelope applies and the caller keeps the original error.
func DefaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return endpointsErrorMapper(err)
}

// IsBenign reports whether err is the one signal treated as a successful
// no-op everywhere it can occur.
func IsBenign(err error) bool {
	return errors.Is(err, ErrFeatureNotAvailable)
}
