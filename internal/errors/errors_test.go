package errors

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReporter struct {
	mu       sync.Mutex
	reported []*EnhancedError
}

func (f *fakeReporter) ReportError(ee *EnhancedError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reported = append(f.reported, ee)
	ee.MarkReported()
}

func (f *fakeReporter) IsEnabled() bool { return true }

type notFoundErr struct{}

func (notFoundErr) Error() string                { return "no such breed" }
func (notFoundErr) ErrorCategory() ErrorCategory { return CategoryNotFound }

func TestBuildDefaults(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := Newf("breed %q missing", "pug").Build()

	assert.Equal(t, `breed "pug" missing`, ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.Nil(t, ee.GetContext())
	assert.False(t, ee.IsReported())
	assert.False(t, ee.Timestamp.IsZero())
}

func TestBuildNilErrorStillUsable(t *testing.T) {
	ee := New(nil).Component("store").Build()
	assert.NotEmpty(t, ee.Error())
	assert.Equal(t, CategoryDatabase, ee.Category)
}

func TestBuilderKeepsExplicitFields(t *testing.T) {
	SetTelemetryReporter(nil)

	base := NewStd("database is locked")
	ee := New(base).
		Component("store").
		Category(CategoryDatabase).
		Context("table", "dog_breeds").
		Build()

	assert.Equal(t, "store", ee.GetComponent())
	assert.Equal(t, CategoryDatabase, ee.Category)
	assert.Equal(t, "dog_breeds", ee.GetContext()["table"])
	require.ErrorIs(t, ee, base)
	assert.True(t, IsCategory(fmt.Errorf("wrapped: %w", ee), CategoryDatabase))
	assert.False(t, IsNotFound(ee))

	ctx := ee.GetContext()
	ctx["table"] = "changed"
	assert.Equal(t, "dog_breeds", ee.GetContext()["table"], "context copy must not alias")
}

func TestPrivacyContext(t *testing.T) {
	ee := New(NewStd("x")).
		NetworkContext("https://Images.Dog.CEO/breeds/pug/1.jpg?sig=abc", 15*time.Second).
		FileContext("/home/alice/.cache/dogs/images/pug_1_ab.JPG", 300*1024).
		Build()

	ctx := ee.GetContext()
	assert.Equal(t, "https", ctx["url_scheme"])
	assert.Equal(t, "images.dog.ceo", ctx["url_host"])
	assert.InDelta(t, 15.0, ctx["timeout_seconds"], 0.001)
	assert.Equal(t, "jpg", ctx["file_extension"])
	assert.Equal(t, "small", ctx["file_size_category"])
	for _, v := range ctx {
		assert.NotContains(t, fmt.Sprint(v), "alice")
		assert.NotContains(t, fmt.Sprint(v), "pug")
	}
}

func TestIsMatchesCategory(t *testing.T) {
	a := New(NewStd("a")).Category(CategoryTimeout).Build()
	b := New(NewStd("b")).Category(CategoryTimeout).Build()
	c := New(NewStd("c")).Category(CategoryNetwork).Build()

	assert.ErrorIs(t, a, b)
	assert.NotErrorIs(t, a, c)
}

func TestDetectCategory(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		component string
		want      ErrorCategory
	}{
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), "", CategoryTimeout},
		{"canceled", context.Canceled, "", CategoryCancellation},
		{"dns", &net.DNSError{Err: "no such host", Name: "dog.ceo"}, "", CategoryNetwork},
		{"dns timeout", &net.DNSError{Err: "timeout", Name: "dog.ceo", IsTimeout: true}, "", CategoryTimeout},
		{"self categorized", fmt.Errorf("wrap: %w", notFoundErr{}), "", CategoryNotFound},
		{"nested enhanced", New(NewStd("x")).Category(CategoryImageDecode).Build(), "", CategoryImageDecode},
		{"store component", NewStd("locked"), "store", CategoryDatabase},
		{"dogapi component", NewStd("teapot"), "dogapi", CategoryHTTP},
		{"materializer component", NewStd("bad"), "materializer", CategoryImageFetch},
		{"fallback", NewStd("something"), "", CategoryGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectCategory(tt.err, tt.component))
		})
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("count must be between 0 and 50")
	assert.Equal(t, CategoryValidation, err.Category)
	assert.Equal(t, "count must be between 0 and 50", err.Error())
}

func TestReporterReceivesErrors(t *testing.T) {
	reporter := &fakeReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(NewStd("remote down")).Category(CategoryNetwork).Build()

	require.Len(t, reporter.reported, 1)
	assert.Same(t, ee, reporter.reported[0])
	assert.True(t, ee.IsReported())
	assert.Same(t, reporter, GetTelemetryReporter())

	SetTelemetryReporter(nil)
	New(NewStd("quiet")).Build()
	assert.Len(t, reporter.reported, 1)
	assert.Nil(t, GetTelemetryReporter())
}

func TestInitSentryWithoutDSNDisables(t *testing.T) {
	SetTelemetryReporter(&fakeReporter{})
	require.NoError(t, InitSentry("", "dogs-go@test"))
	assert.Nil(t, GetTelemetryReporter())
}

func TestScrubMessage(t *testing.T) {
	tests := []struct {
		name, in, absent, present string
	}{
		{"query string", "GET https://dog.ceo/api?api_key=secret123&x=1 failed", "secret123", "?[REDACTED]"},
		{"key value", "config: token=abcdef is invalid", "abcdef", "[SECRET_REDACTED]"},
		{"dsn credentials", "dial mysql://dogs:hunter2@db:3306 failed", "hunter2", "[CREDENTIALS_REDACTED]"},
		{"hex secret", "sentry key 0123456789abcdef0123456789abcdef leaked", "0123456789abcdef", "[SECRET_REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := scrubMessage(tt.in)
			assert.NotContains(t, out, tt.absent)
			assert.Contains(t, out, tt.present)
		})
	}
}

func TestErrorTitle(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(NewStd("x")).
		Component("materializer").
		Category(CategoryImageDecode).
		Context("operation", "decode_image").
		Build()
	assert.Equal(t, "Materializer Image Decode Decode Image", errorTitle(ee))

	bare := New(NewStd("x")).Category(CategoryGeneric).Build()
	assert.Equal(t, "*errors.errorString", errorTitle(bare))
}
