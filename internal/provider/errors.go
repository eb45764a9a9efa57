package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/joseph-ayodele/checkup-extractor/internal/checkup"
)

// Failure kinds. Match them with errors.Is on any error a provider returns.
var (
	ErrTimeout     = errors.New("provider timeout")
	ErrAuth        = errors.New("provider auth error")
	ErrBadResponse = errors.New("provider bad response")
)

// ErrNoAPIKey is the cause when a key-requiring provider has no key at all.
var ErrNoAPIKey = errors.New("api key is required but not provided")

// Error is a typed provider failure.
type Error struct {
	Provider string
	Op       string // ocr | parse | infer
	Kind     error
	Status   int // HTTP status when the backend answered
	Cause    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// NewError builds an Error of the given kind.
func NewError(provider, op string, kind, cause error) *Error {
	return &Error{Provider: provider, Op: op, Kind: kind, Cause: cause}
}

// MissingKey is returned before any request is made.
func MissingKey(provider, op string) error {
	return NewError(provider, op, ErrAuth, ErrNoAPIKey)
}

// Classify converts a raw transport or SDK error into an Error. Typed errors
// and caller cancellation pass through unchanged.
func Classify(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, checkup.ErrSchemaValidation) || errors.Is(err, context.Canceled) {
		return err
	}
	if isTimeout(err) {
		return NewError(provider, op, ErrTimeout, err)
	}
	return NewError(provider, op, ErrBadResponse, err)
}

// StatusError classifies a non-2xx response.
func StatusError(provider, op string, status int, body []byte) error {
	kind := ErrBadResponse
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = ErrAuth
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		kind = ErrTimeout
	}
	return &Error{
		Provider: provider,
		Op:       op,
		Kind:     kind,
		Status:   status,
		Cause:    errors.New(truncate(string(body), 512)),
	}
}

// IsRetryable reports whether a strategy attempt that failed with err may be
// re-issued. Auth failures and cancellation are final.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, ErrAuth):
		return false
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrBadResponse), errors.Is(err, checkup.ErrSchemaValidation):
		return true
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
