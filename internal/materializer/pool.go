// Package materializer downloads remote breed images in the background, re-encodes
// them as compact JPEGs and records the local copy in the store.
package materializer

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tphakala/dogs-go/internal/errors"
	"github.com/tphakala/dogs-go/internal/httpclient"
	"github.com/tphakala/dogs-go/internal/logger"
	"github.com/tphakala/dogs-go/internal/observability/metrics"
)

// Store records where an image was materialized.
type Store interface {
	UpdateImageLocalPath(ctx context.Context, url, localPath string, at time.Time) error
}

// Config controls pool sizing and output encoding.
type Config struct {
	// Dir is the absolute directory backing the pool's filesystem; it prefixes
	// the paths written to the store.
	Dir       string
	Workers   int
	QueueSize int
	// RateLimit is downloads per second across all workers; zero disables it.
	RateLimit   float64
	JPEGQuality int
	// MaxDimension bounds the longest image side; zero keeps the original size.
	MaxDimension int
	// FailureTTL is how long a failed URL is skipped; zero disables the memo.
	FailureTTL time.Duration
}

// DefaultConfig returns production defaults for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:          dir,
		Workers:      4,
		QueueSize:    256,
		RateLimit:    5,
		JPEGQuality:  80,
		MaxDimension: 1024,
		FailureTTL:   10 * time.Minute,
	}
}

// Job is a single image to materialize.
type Job struct {
	URL   string
	Breed string
}

// Pool runs a fixed set of workers over a bounded queue. Jobs run on the pool's
// own context, so they outlive the request that scheduled them.
type Pool struct {
	cfg     Config
	http    *httpclient.Client
	fs      afero.Fs
	store   Store
	log     logger.Logger
	metrics *metrics.CatalogMetrics
	now     func() time.Time

	jobs     chan Job
	inflight sync.Map
	failed   *cache.Cache
	limiter  *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu     sync.RWMutex
	closed bool
}

// Option customizes a Pool.
type Option func(*Pool)

// WithMetrics records pool activity in m.
func WithMetrics(m *metrics.CatalogMetrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithClock overrides the clock used for file names and store timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// New starts a pool writing into fs. Use NewDirFs for an on-disk directory.
func New(cfg Config, hc *httpclient.Client, fs afero.Fs, st Store, log logger.Logger, opts ...Option) *Pool {
	def := DefaultConfig(cfg.Dir)
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = def.JPEGQuality
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:    cfg,
		http:   hc,
		fs:     fs,
		store:  st,
		log:    log,
		now:    time.Now,
		jobs:   make(chan Job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		group:  &errgroup.Group{},
	}
	for _, opt := range opts {
		opt(p)
	}

	if cfg.RateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(cfg.RateLimit)))
	}
	if cfg.FailureTTL > 0 {
		// no janitor goroutine; expired entries are pruned on insert
		p.failed = cache.New(cfg.FailureTTL, 0)
	}

	for range cfg.Workers {
		p.group.Go(p.worker)
	}

	log.Debug("image materializer started",
		logger.Int("workers", cfg.Workers),
		logger.Int("queue_size", cfg.QueueSize),
		logger.Float64("rate_limit", cfg.RateLimit))
	return p
}

// NewDirFs returns a filesystem rooted at dir, creating it with owner-only permissions.
func NewDirFs(dir string) (afero.Fs, error) {
	base := afero.NewOsFs()
	if err := base.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.New(err).
			Component("materializer").
			Category(errors.CategoryFileIO).
			Context("operation", "create_image_dir").
			FileContext(dir, 0).
			Build()
	}
	return afero.NewBasePathFs(base, dir), nil
}

// Schedule queues urls of breed for materialization and returns how many were
// accepted. It never blocks: a full queue drops the job, and URLs that are
// already queued, in flight or failed recently are skipped.
func (p *Pool) Schedule(breed string, urls []string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return 0
	}

	accepted := 0
	for _, url := range urls {
		if url == "" {
			continue
		}
		if p.failed != nil {
			if _, recent := p.failed.Get(url); recent {
				p.metrics.RecordMaterialization(metrics.OutcomeSkipped)
				continue
			}
		}
		if _, busy := p.inflight.LoadOrStore(url, struct{}{}); busy {
			continue
		}

		select {
		case p.jobs <- Job{URL: url, Breed: breed}:
			accepted++
		default:
			p.inflight.Delete(url)
			p.metrics.RecordMaterialization(metrics.OutcomeDropped)
			p.log.Debug("materialization queue full, dropping image",
				logger.String("breed", breed),
				logger.String("url", url))
		}
	}

	p.metrics.SetQueueDepth(len(p.jobs))
	return accepted
}

// Pending returns the number of queued jobs not yet picked up by a worker.
func (p *Pool) Pending() int {
	return len(p.jobs)
}

// Close stops accepting jobs and waits for queued and in-flight work. When ctx
// ends first, in-flight downloads are cancelled, the remaining queue is
// discarded and ctx's error is returned once the workers exit.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.log.Debug("image materializer drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		p.log.Warn("image materializer stopped before draining", logger.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (p *Pool) worker() error {
	for job := range p.jobs {
		p.metrics.SetQueueDepth(len(p.jobs))
		p.run(job)
		p.inflight.Delete(job.URL)
	}
	return nil
}

// run materializes one job. Failures are logged and memoized, never returned.
func (p *Pool) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.RecordMaterialization(metrics.OutcomeError)
			p.log.Error("panic during image materialization",
				logger.String("url", job.URL),
				logger.Any("panic", r))
		}
	}()

	if p.ctx.Err() != nil {
		return
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(p.ctx); err != nil {
			return
		}
	}

	start := time.Now()
	localPath, err := p.materialize(p.ctx, job)
	if err != nil {
		if p.ctx.Err() != nil {
			return
		}
		p.rememberFailure(job.URL, err)
		p.metrics.RecordMaterialization(metrics.OutcomeError)
		p.log.Warn("image materialization failed",
			logger.String("breed", job.Breed),
			logger.String("url", job.URL),
			logger.Error(err))
		return
	}

	elapsed := time.Since(start)
	p.metrics.RecordMaterialization(metrics.OutcomeSuccess)
	p.metrics.ObserveDownloadDuration(elapsed.Seconds())
	p.log.Debug("image materialized",
		logger.String("breed", job.Breed),
		logger.String("path", localPath),
		logger.Duration("elapsed", elapsed))
}

func (p *Pool) rememberFailure(url string, err error) {
	if p.failed == nil {
		return
	}
	p.failed.DeleteExpired()
	p.failed.Set(url, err.Error(), cache.DefaultExpiration)
}

// localPath is the path recorded in the store for a file name inside the pool's fs.
func (p *Pool) localPath(name string) string {
	if p.cfg.Dir == "" {
		return name
	}
	return filepath.Join(p.cfg.Dir, name)
}
