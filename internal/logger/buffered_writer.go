package logger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	// DefaultBufferSize is the write buffer for log files
	DefaultBufferSize = 32 * 1024
	// DefaultFlushInterval is how often buffered lines reach the file
	DefaultFlushInterval = 5 * time.Second
)

var errWriterClosed = errors.New("log writer is closed")

// BufferedFileWriter appends to a log file through a buffer that is flushed
// periodically and on Close. Safe for concurrent use.
type BufferedFileWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer

	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewBufferedFileWriter opens path for appending and starts the flush loop.
func NewBufferedFileWriter(path string) (*BufferedFileWriter, error) {
	return newBufferedFileWriter(path, DefaultFlushInterval)
}

func newBufferedFileWriter(path string, interval time.Duration) (*BufferedFileWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path from config
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	w := &BufferedFileWriter{
		file:   file,
		buf:    bufio.NewWriterSize(file, DefaultBufferSize),
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	w.wg.Go(w.flushLoop)
	return w, nil
}

func (w *BufferedFileWriter) flushLoop() {
	for {
		select {
		case <-w.done:
			return
		case <-w.ticker.C:
			_ = w.Flush() // a broken file surfaces on the next Write
		}
	}
}

func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return 0, errWriterClosed
	}
	return w.buf.Write(p)
}

// Flush hands buffered data to the OS without fsync.
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		return nil
	}
	return w.buf.Flush()
}

// Close stops the flush loop, then flushes, syncs and closes the file.
// Later calls return nil.
func (w *BufferedFileWriter) Close() error {
	w.mu.Lock()
	if w.buf == nil {
		w.mu.Unlock()
		return nil
	}
	buf, file := w.buf, w.file
	w.buf, w.file = nil, nil
	w.mu.Unlock()

	w.ticker.Stop()
	close(w.done)
	w.wg.Wait()

	return errors.Join(buf.Flush(), file.Sync(), file.Close())
}
