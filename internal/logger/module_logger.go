package logger

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"slices"
	"time"
)

// moduleLogger writes records straight to the shared handler, tagging each with
// its module name. Entries below min are dropped before any allocation.
type moduleLogger struct {
	name    string
	handler slog.Handler
	min     slog.Level
	fields  []Field
}

// Module names a child module "parent.child"; the child keeps the parent's level.
func (m *moduleLogger) Module(name string) Logger {
	child := *m
	child.fields = slices.Clone(m.fields)
	if m.name != "" {
		child.name = m.name + "." + name
	} else {
		child.name = name
	}
	return &child
}

func (m *moduleLogger) Trace(msg string, fields ...Field) { m.emit(traceLevelValue, msg, fields) }
func (m *moduleLogger) Debug(msg string, fields ...Field) { m.emit(slog.LevelDebug, msg, fields) }
func (m *moduleLogger) Info(msg string, fields ...Field)  { m.emit(slog.LevelInfo, msg, fields) }
func (m *moduleLogger) Warn(msg string, fields ...Field)  { m.emit(slog.LevelWarn, msg, fields) }
func (m *moduleLogger) Error(msg string, fields ...Field) { m.emit(slog.LevelError, msg, fields) }

func (m *moduleLogger) Log(level LogLevel, msg string, fields ...Field) {
	m.emit(parseLogLevel(string(level)), msg, fields)
}

func (m *moduleLogger) With(fields ...Field) Logger {
	child := *m
	child.fields = slices.Concat(m.fields, fields)
	return &child
}

func (m *moduleLogger) WithContext(ctx context.Context) Logger {
	if id := TraceIDFromContext(ctx); id != "" {
		return m.With(String(traceIDKey, id))
	}
	return m
}

// Flush is a no-op; the CentralLogger owns the outputs.
func (m *moduleLogger) Flush() error { return nil }

func (m *moduleLogger) emit(level slog.Level, msg string, fields []Field) {
	ctx := context.Background()
	if level < m.min || !m.handler.Enabled(ctx, level) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(3, pcs[:]) // emit, Info/Debug/..., caller
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])

	if m.name != "" {
		r.AddAttrs(slog.String(moduleKey, m.name))
	}
	for i := range m.fields {
		r.AddAttrs(m.fields[i].attr())
	}
	for i := range fields {
		r.AddAttrs(fields[i].attr())
	}
	_ = m.handler.Handle(ctx, r)
}

// attr converts f for slog. Floats keep three decimals and durations render as
// "1.5s" in both text and JSON output.
func (f Field) attr() slog.Attr {
	switch v := f.Value.(type) {
	case string:
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case int64:
		return slog.Int64(f.Key, v)
	case float64:
		return slog.Float64(f.Key, math.Round(v*1000)/1000)
	case bool:
		return slog.Bool(f.Key, v)
	case time.Time:
		return slog.Time(f.Key, v)
	case time.Duration:
		return slog.String(f.Key, v.Round(time.Millisecond).String())
	default:
		return slog.Any(f.Key, v)
	}
}
