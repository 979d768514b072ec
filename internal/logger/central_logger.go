package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "time/tzdata"
)

// traceLevelValue sits below slog.LevelDebug (-4) for SQL and wire traces.
const traceLevelValue = slog.Level(-8)

type traceIDContextKey struct{}

// WithTraceID returns a copy of ctx carrying traceID. Loggers obtained through
// WithContext add it to every entry, and outbound requests reuse it as X-Request-ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDContextKey{}, traceID)
}

// TraceIDFromContext returns the trace id stored in ctx, or "".
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceIDContextKey{}).(string)
	return id
}

// CentralLogger owns the log outputs and hands out module loggers. Each module
// logs at its configured level, or at DefaultLevel when it has none.
type CentralLogger struct {
	handler  slog.Handler
	timezone *time.Location
	levels   map[string]slog.Level
	fallback slog.Level

	mu   sync.Mutex
	file *BufferedFileWriter
}

// NewCentralLogger creates the application logger with console output on stdout.
// Missing config sections get defaults.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	return newCentralLogger(cfg, os.Stdout)
}

func newCentralLogger(cfg *LoggingConfig, console io.Writer) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		timezone: tz,
		fallback: parseLogLevel(cfg.DefaultLevel),
		levels:   make(map[string]slog.Level, len(cfg.ModuleLevels)),
	}
	for module, level := range cfg.ModuleLevels {
		cl.levels[module] = parseLogLevel(level)
	}

	var outputs fanout
	if cfg.Console.Enabled {
		outputs = append(outputs, newTextHandler(console, parseLogLevel(cfg.Console.Level), tz))
	}
	if cfg.FileOutput.Enabled {
		file, err := openLogFile(cfg.FileOutput.Path)
		if err != nil {
			return nil, err
		}
		cl.file = file
		outputs = append(outputs, slog.NewJSONHandler(file, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.FileOutput.Level),
		}))
	}

	switch len(outputs) {
	case 0:
		// nothing enabled: keep errors visible rather than dropping everything
		cl.handler = newTextHandler(console, slog.LevelError, tz)
	case 1:
		cl.handler = outputs[0]
	default:
		cl.handler = outputs
	}

	return cl, nil
}

func loadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
	}
	return tz, nil
}

func openLogFile(path string) (*BufferedFileWriter, error) {
	if dir := filepath.Dir(path); path != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}
	w, err := NewBufferedFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create log writer: %w", err)
	}
	return w, nil
}

// Module returns the logger for a top-level module such as "catalog" or "store".
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}
	level, ok := cl.levels[name]
	if !ok {
		level = cl.fallback
	}
	return &moduleLogger{name: name, handler: cl.handler, min: level}
}

// Flush pushes buffered file output to the OS.
func (cl *CentralLogger) Flush() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.file == nil {
		return nil
	}
	return cl.file.Flush()
}

// Close flushes and closes the log file. Console output keeps working.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.file == nil {
		return nil
	}
	err := cl.file.Close()
	cl.file = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch LogLevel(level) {
	case LogLevelTrace:
		return traceLevelValue
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
