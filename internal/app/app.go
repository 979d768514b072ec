// Package app assembles the dogs-go components from settings and owns their shutdown.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/afero"

	"github.com/tphakala/dogs-go/internal/api"
	"github.com/tphakala/dogs-go/internal/buildinfo"
	"github.com/tphakala/dogs-go/internal/catalog"
	"github.com/tphakala/dogs-go/internal/conf"
	"github.com/tphakala/dogs-go/internal/dogapi"
	"github.com/tphakala/dogs-go/internal/errors"
	"github.com/tphakala/dogs-go/internal/httpclient"
	"github.com/tphakala/dogs-go/internal/logger"
	"github.com/tphakala/dogs-go/internal/materializer"
	"github.com/tphakala/dogs-go/internal/observability"
	"github.com/tphakala/dogs-go/internal/store"
)

const (
	// resumeLimit caps how many unmaterialized images are rescheduled at startup.
	resumeLimit     = 200
	sentryFlushWait = 2 * time.Second
)

// App is a fully wired catalog with its supporting infrastructure.
type App struct {
	Settings *conf.Settings
	Build    *buildinfo.Context
	Metrics  *observability.Metrics
	Catalog  *catalog.Repository
	Images   *materializer.Pool

	logs    *logger.CentralLogger
	log     logger.Logger
	http    *httpclient.Client
	db      store.Manager
	store   store.Store
	sentry  bool
	closed  bool
	closeFn []func(context.Context) error
}

type options struct {
	transport http.RoundTripper
	fs        afero.Fs
	now       func() time.Time
}

// Option customizes New.
type Option func(*options)

// WithTransport replaces the HTTP transport used for the API and image downloads.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithImageFs stores materialized images on fs instead of the images directory.
func WithImageFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithClock sets the time source of the catalog and the materializer.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New builds every component in dependency order. On error, whatever was already
// started is closed before returning.
func New(ctx context.Context, settings *conf.Settings, build *buildinfo.Context, opts ...Option) (_ *App, err error) {
	if settings == nil {
		return nil, errors.Newf("settings are required").
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}

	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Settings: settings, Build: build}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = a.Close(closeCtx)
		}
	}()

	if err := a.initLogging(); err != nil {
		return nil, err
	}
	a.initTelemetry()

	a.Metrics, err = observability.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	a.http = httpclient.New(&httpclient.Config{
		DefaultTimeout: settings.API.Timeout,
		UserAgent:      a.userAgent(),
		Transport:      o.transport,
	})
	a.http.LogRequests(a.logs.Module("httpclient"))
	a.onClose(func(context.Context) error {
		a.http.Close()
		return nil
	})

	if err := a.initStore(ctx); err != nil {
		return nil, err
	}

	if err := a.initImages(o); err != nil {
		return nil, err
	}

	remote := dogapi.New(a.http, settings.API.BaseURL, a.logs.Module("dogapi"))
	a.Catalog = catalog.New(remote, a.store, a.logs.Module("catalog"),
		catalog.Config{
			BreedsTTL: settings.Cache.BreedsTTL,
			ImagesTTL: settings.Cache.ImagesTTL,
		},
		catalog.WithScheduler(a.Images),
		catalog.WithMetrics(a.Metrics.Catalog),
		catalog.WithClock(o.now),
	)

	a.log.Info("dogs-go ready",
		logger.String("version", build.GetVersion()),
		logger.String("database", a.db.Path()),
		logger.String("images_dir", settings.ImagesDir()))

	return a, nil
}

func (a *App) initLogging() error {
	cfg := a.Settings.Logging
	if a.Settings.Debug {
		cfg.DefaultLevel = "debug"
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = "debug"
			cfg.Console = &console
		}
	}

	logs, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("operation", "init_logging").
			Build()
	}
	a.logs = logs
	a.log = logs.Module("app")
	return nil
}

// initTelemetry enables Sentry when configured. A bad DSN only costs the reports.
func (a *App) initTelemetry() {
	if !a.Settings.Telemetry.Enabled {
		return
	}
	if err := errors.InitSentry(a.Settings.Telemetry.DSN, a.Build.Release()); err != nil {
		a.log.Warn("telemetry disabled", logger.Error(err))
		return
	}
	a.sentry = true
	a.log.Info("error telemetry enabled", logger.String("release", a.Build.Release()))
}

func (a *App) initStore(ctx context.Context) error {
	db := a.Settings.Database
	manager, err := store.Open(store.Config{
		Type:       db.Type,
		SQLitePath: a.Settings.SQLitePath(),
		MySQL: store.MySQLConfig{
			Host:     db.MySQL.Host,
			Port:     db.MySQL.Port,
			Username: db.MySQL.Username,
			Password: db.MySQL.Password,
			Database: db.MySQL.Database,
		},
	}, a.logs.Module("store"))
	if err != nil {
		return err
	}
	a.db = manager
	a.onClose(func(context.Context) error { return manager.Close() })

	if err := manager.Initialize(ctx); err != nil {
		return err
	}
	a.store = store.New(manager.DB())
	return nil
}

func (a *App) initImages(o options) error {
	fs := o.fs
	if fs == nil {
		var err error
		if fs, err = materializer.NewDirFs(a.Settings.ImagesDir()); err != nil {
			return err
		}
	}

	img := a.Settings.Images
	a.Images = materializer.New(materializer.Config{
		Dir:          a.Settings.ImagesDir(),
		Workers:      img.Workers,
		QueueSize:    img.QueueSize,
		RateLimit:    img.RateLimit,
		JPEGQuality:  img.JPEGQuality,
		MaxDimension: img.MaxDimension,
		FailureTTL:   img.FailureTTL,
	}, a.http, fs, a.store, a.logs.Module("materializer"),
		materializer.WithMetrics(a.Metrics.Catalog),
		materializer.WithClock(o.now),
	)
	a.onClose(a.Images.Close)
	return nil
}

func (a *App) userAgent() string {
	if a.Settings.API.UserAgent != "" {
		return a.Settings.API.UserAgent
	}
	return a.Build.UserAgent()
}

// onClose registers fn to run on Close, in reverse registration order.
func (a *App) onClose(fn func(context.Context) error) {
	a.closeFn = append(a.closeFn, fn)
}

// ResumeImages reschedules images whose earlier materialization never completed.
// It returns how many were queued.
func (a *App) ResumeImages(ctx context.Context) (int, error) {
	pending, err := a.store.PendingImages(ctx, resumeLimit)
	if err != nil {
		return 0, err
	}

	byBreed := make(map[string][]string)
	var order []string
	for i := range pending {
		breed := pending[i].Breed
		if _, ok := byBreed[breed]; !ok {
			order = append(order, breed)
		}
		byBreed[breed] = append(byBreed[breed], pending[i].URL)
	}

	queued := 0
	for _, breed := range order {
		queued += a.Images.Schedule(breed, byBreed[breed])
	}
	if queued > 0 {
		a.log.Info("resumed image materialization",
			logger.Int("queued", queued),
			logger.Int("pending", len(pending)))
	}
	return queued, nil
}

// CheckDatabase pings the store connection.
func (a *App) CheckDatabase(ctx context.Context) error {
	sqlDB, err := a.db.DB().DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// NewServer returns the HTTP API over the catalog, with metrics and health checks.
func (a *App) NewServer() *api.Server {
	return api.NewServer(a.Settings.Server.Listen, a.Catalog, a.logs.Module("api"),
		api.WithMetrics(a.Metrics),
		api.WithHealthCheck("database", a.CheckDatabase),
	)
}

// Logger returns the named module logger.
func (a *App) Logger(module string) logger.Logger {
	return a.logs.Module(module)
}

// Close drains the image queue, closes the store and flushes logs and telemetry.
// It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	for i := len(a.closeFn) - 1; i >= 0; i-- {
		if err := a.closeFn[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if a.sentry {
		errors.FlushSentry(sentryFlushWait)
	}
	if a.logs != nil {
		if a.log != nil && len(errs) > 0 {
			a.log.Warn("shutdown finished with errors", logger.Int("errors", len(errs)))
		}
		if err := a.logs.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// CloseWithin is Close bounded by d. Image downloads still running after d are abandoned.
func (a *App) CloseWithin(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return a.Close(ctx)
}
