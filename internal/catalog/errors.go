package catalog

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/tphakala/dogs-go/internal/dogapi"
	"github.com/tphakala/dogs-go/internal/errors"
)

// Kind classifies catalog failures.
type Kind int

const (
	// KindUnknown is any unclassified failure.
	KindUnknown Kind = iota
	// KindNetwork is a connectivity, timeout or I/O failure before a response arrived.
	KindNetwork
	// KindAPI is a remote HTTP error status or a non-success application status.
	KindAPI
	// KindInvalidInput is a caller error such as a blank breed.
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAPI:
		return "api"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// Error is returned by every failing Repository operation.
type Error struct {
	Kind Kind
	// Code is the HTTP status for API errors; zero for application-status failures.
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// mapError classifies a remote call failure.
func mapError(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	var statusErr *dogapi.StatusError
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode
		switch {
		case code == http.StatusNotFound:
			return &Error{Kind: KindInvalidInput, Code: code, Message: "breed not found", Err: err}
		case code >= 400 && code < 500:
			return &Error{Kind: KindAPI, Code: code, Message: "client error: " + statusErr.Status, Err: err}
		case code >= 500 && code < 600:
			return &Error{Kind: KindAPI, Code: code, Message: "server error: " + statusErr.Status, Err: err}
		default:
			return &Error{Kind: KindAPI, Code: code, Message: "http error: " + statusErr.Status, Err: err}
		}
	}

	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		return &Error{Kind: KindNetwork, Message: "no internet connection", Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.IsCategory(err, errors.CategoryTimeout):
		return &Error{Kind: KindNetwork, Message: "connection timeout", Err: err}
	case errors.Is(err, context.Canceled), errors.IsCategory(err, errors.CategoryCancellation):
		return &Error{Kind: KindNetwork, Message: "request canceled", Err: err}
	case errors.As(err, &netErr), errors.IsCategory(err, errors.CategoryNetwork):
		return &Error{Kind: KindNetwork, Message: "network error", Err: err}
	}

	return unknownError("unexpected error", err)
}

// unknownError wraps cause in an enhanced error so it reaches telemetry.
func unknownError(message string, cause error) *Error {
	return &Error{
		Kind:    KindUnknown,
		Message: message,
		Err: errors.New(cause).
			Component("catalog").
			Category(errors.CategoryGeneric).
			Build(),
	}
}

func softFailure(status, detail string) *Error {
	e := &Error{Kind: KindAPI, Message: "API returned status " + status}
	if detail != "" {
		e.Err = errors.NewStd(detail)
	}
	return e
}
