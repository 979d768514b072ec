package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestSlogLoggerLevels(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo, time.UTC)

	log.Debug("hidden")
	log.Info("breeds refreshed", Int("count", 3), String("source", "remote"))
	log.Warn("fallback", Error(errors.New("dial failed")), Duration("elapsed", 1500*time.Millisecond))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INFO breeds refreshed count=3 source=remote")
	assert.Contains(t, out, `WARN fallback error="dial failed" elapsed=1.5s`)
}

func TestModuleScopingAndFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	base := NewSlogLogger(buf, LogLevelDebug, time.UTC)

	child := base.Module("catalog").Module("images").With(String("breed", "hound"))
	child.Debug("cache miss")

	assert.Contains(t, buf.String(), "DEBUG cache miss module=catalog.images breed=hound")
}

func TestWithContextAddsTraceID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo, time.UTC)

	log.WithContext(WithTraceID(context.Background(), "req-42")).Info("handled")
	log.WithContext(context.Background()).Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "trace_id=req-42")
	assert.NotContains(t, lines[1], "trace_id")
}

func TestCentralLoggerModuleLevels(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "warn",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: true, Level: "trace"},
		ModuleLevels: map[string]string{"store": "trace"},
	}, buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })

	cl.Module("catalog").Info("suppressed")
	cl.Module("store").Trace("sql query")

	out := buf.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "TRACE sql query module=store")
}

func TestCentralLoggerFileOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "dogs.log")
	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "info",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "info"},
	}, &bytes.Buffer{})
	require.NoError(t, err)

	cl.Module("materializer").Info("image stored", String("path", "/tmp/x.jpg"))
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "image stored", entry["msg"])
	assert.Equal(t, "materializer", entry["module"])
	assert.Equal(t, "/tmp/x.jpg", entry["path"])
}

func TestInvalidTimezone(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	assert.Error(t, err)
}

func TestGormLoggerAdapterTrace(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	adapter := NewGormLoggerAdapter(NewSlogLogger(buf, LogLevelTrace, time.UTC), 50*time.Millisecond)
	sql := func() (string, int64) { return "SELECT 1", 1 }

	adapter.Trace(context.Background(), time.Now(), sql, nil)
	adapter.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	adapter.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	adapter.Trace(context.Background(), time.Now(), sql, errors.New("locked"))

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "TRACE sql query"))
	assert.Contains(t, out, "WARN slow query")
	assert.Contains(t, out, "WARN query error")
}

func TestCentralLoggerFansOutByLevel(t *testing.T) {
	t.Parallel()

	console := &bytes.Buffer{}
	path := filepath.Join(t.TempDir(), "dogs.log")
	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: true, Level: "warn"},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "debug"},
	}, console)
	require.NoError(t, err)

	log := cl.Module("dogapi")
	log.Debug("request sent", String("endpoint", "/breeds/list/all"))
	log.Warn("soft failure", String("status", "error"))
	require.NoError(t, cl.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"request sent"`)
	assert.Contains(t, string(data), `"msg":"soft failure"`)

	assert.NotContains(t, console.String(), "request sent")
	assert.Contains(t, console.String(), "WARN soft failure module=dogapi status=error")

	require.NoError(t, cl.Close())
	require.NoError(t, cl.Close())
}
