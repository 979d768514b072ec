// Package errors wraps errors with a component, a category and privacy-safe context,
// and forwards them to Sentry when telemetry is enabled. It also re-exports the
// standard library helpers so callers need a single errors import.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"maps"
	"net"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

// ErrorCategory groups errors for reporting and for mapping to user-facing kinds.
type ErrorCategory string

// CategorizedError is implemented by errors that know their own category.
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	CategoryGeneric       ErrorCategory = "generic"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryNotFound      ErrorCategory = "not-found"

	// remote API
	CategoryNetwork      ErrorCategory = "network"
	CategoryHTTP         ErrorCategory = "http-request"
	CategoryTimeout      ErrorCategory = "timeout"
	CategoryCancellation ErrorCategory = "cancellation"
	CategoryFileParsing  ErrorCategory = "file-parsing"

	// local cache
	CategoryDatabase ErrorCategory = "database"
	CategoryFileIO   ErrorCategory = "file-io"

	// image materialization
	CategoryImageFetch  ErrorCategory = "image-fetch"
	CategoryImageDecode ErrorCategory = "image-decode"
	CategoryImageCache  ErrorCategory = "image-cache"
	CategoryWorker      ErrorCategory = "worker-pool"
)

// ComponentUnknown is used when no component was given.
const ComponentUnknown = "unknown"

// reportingActive mirrors whether an enabled reporter is installed, so Build
// skips the reporter lookup entirely in the common case.
var reportingActive atomic.Bool

// EnhancedError is an error annotated by the ErrorBuilder. It is immutable once
// built, apart from the reported flag.
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Timestamp time.Time

	component string
	context   map[string]any
	reported  atomic.Bool
}

func (ee *EnhancedError) Error() string { return ee.Err.Error() }

func (ee *EnhancedError) Unwrap() error { return ee.Err }

// Is matches another EnhancedError by category, otherwise defers to the wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetComponent returns the component that produced the error.
func (ee *EnhancedError) GetComponent() string {
	return ee.component
}

// GetContext returns a copy of the attached context.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.context == nil {
		return nil
	}
	return maps.Clone(ee.context)
}

// MarkReported records that the error was sent to telemetry.
func (ee *EnhancedError) MarkReported() { ee.reported.Store(true) }

// IsReported reports whether the error was sent to telemetry.
func (ee *EnhancedError) IsReported() bool { return ee.reported.Load() }

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts building an enhanced error around err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts building an enhanced error from a format string.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category overrides the detected category.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// FileContext records the extension and a size bucket, never the path itself.
func (eb *ErrorBuilder) FileContext(path string, size int64) *ErrorBuilder {
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."); ext != "" {
		eb.Context("file_extension", ext)
	}
	if size > 0 {
		eb.Context("file_size_category", sizeBucket(size))
	}
	return eb
}

// NetworkContext records the URL host and scheme, never the path or query.
func (eb *ErrorBuilder) NetworkContext(rawURL string, timeout time.Duration) *ErrorBuilder {
	if scheme, rest, ok := strings.Cut(rawURL, "://"); ok {
		host, _, _ := strings.Cut(rest, "/")
		eb.Context("url_scheme", strings.ToLower(scheme))
		eb.Context("url_host", strings.ToLower(host))
	}
	if timeout > 0 {
		eb.Context("timeout_seconds", timeout.Seconds())
	}
	return eb
}

// Build creates the EnhancedError and reports it when telemetry is active.
func (eb *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       eb.err,
		Category:  eb.category,
		Timestamp: time.Now(),
		component: eb.component,
		context:   eb.context,
	}
	if ee.Err == nil {
		ee.Err = stderrors.New("unspecified error")
	}
	if ee.component == "" {
		ee.component = ComponentUnknown
	}
	if ee.Category == "" {
		ee.Category = detectCategory(ee.Err, ee.component)
	}

	if reportingActive.Load() {
		reportToTelemetry(ee)
	}
	return ee
}

// detectCategory derives a category from the error chain, then from the component.
func detectCategory(err error, component string) ErrorCategory {
	var categorized CategorizedError
	if stderrors.As(err, &categorized) {
		return categorized.ErrorCategory()
	}

	var enhanced *EnhancedError
	if stderrors.As(err, &enhanced) && enhanced.Category != "" {
		return enhanced.Category
	}

	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case stderrors.Is(err, context.Canceled):
		return CategoryCancellation
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetwork
	}

	switch component {
	case "store":
		return CategoryDatabase
	case "dogapi", "httpclient":
		return CategoryHTTP
	case "materializer":
		return CategoryImageFetch
	case "configuration":
		return CategoryConfiguration
	}
	return CategoryGeneric
}

func sizeBucket(size int64) string {
	switch {
	case size < 1<<10:
		return "tiny"
	case size < 1<<20:
		return "small"
	case size < 10<<20:
		return "medium"
	default:
		return "large"
	}
}

// ValidationError creates a validation error from a user-facing message.
func ValidationError(message string) *EnhancedError {
	return New(stderrors.New(message)).
		Category(CategoryValidation).
		Build()
}

// IsCategory reports whether err wraps an EnhancedError of the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var enhanced *EnhancedError
	return stderrors.As(err, &enhanced) && enhanced.Category == category
}

// IsNotFound reports whether err wraps a not-found EnhancedError.
func IsNotFound(err error) bool {
	return IsCategory(err, CategoryNotFound)
}

// NewStd is errors.New from the standard library.
func NewStd(text string) error { return stderrors.New(text) }

func Is(err, target error) bool     { return stderrors.Is(err, target) }
func As(err error, target any) bool { return stderrors.As(err, target) }
func Unwrap(err error) error        { return stderrors.Unwrap(err) }
func Join(errs ...error) error      { return stderrors.Join(errs...) }
