// Package catalog is the dog breed data-access layer. It answers breed and image
// queries from the local store while fresh, refreshes from the Dog CEO API
// otherwise, and falls back to stale cache when the refresh fails.
package catalog

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/tphakala/dogs-go/internal/dogapi"
	"github.com/tphakala/dogs-go/internal/logger"
	"github.com/tphakala/dogs-go/internal/observability/metrics"
	"github.com/tphakala/dogs-go/internal/store"
	"github.com/tphakala/dogs-go/internal/store/entities"
)

// Default cache lifetimes.
const (
	DefaultBreedsTTL = 24 * time.Hour
	DefaultImagesTTL = 7 * 24 * time.Hour
)

// Remote is the Dog CEO API surface used by the repository.
type Remote interface {
	ListBreeds(ctx context.Context) (*dogapi.ListResponse, error)
	ListBreedImages(ctx context.Context, breed string, count int) (*dogapi.ImagesResponse, error)
}

// Scheduler accepts images for background materialization without blocking.
type Scheduler interface {
	Schedule(breed string, urls []string) int
}

// Config holds the cache lifetimes.
type Config struct {
	BreedsTTL time.Duration
	ImagesTTL time.Duration
}

// DefaultConfig returns a Config with the default lifetimes.
func DefaultConfig() Config {
	return Config{BreedsTTL: DefaultBreedsTTL, ImagesTTL: DefaultImagesTTL}
}

// Repository implements cache-first breed and image lookups. Safe for concurrent use.
type Repository struct {
	remote    Remote
	store     store.Store
	scheduler Scheduler
	log       logger.Logger
	metrics   *metrics.CatalogMetrics
	now       func() time.Time
	cfg       Config
}

// Option customizes a Repository.
type Option func(*Repository)

// WithScheduler enables background materialization of fetched images.
func WithScheduler(s Scheduler) Option {
	return func(r *Repository) { r.scheduler = s }
}

// WithMetrics records cache and remote activity in m.
func WithMetrics(m *metrics.CatalogMetrics) Option {
	return func(r *Repository) { r.metrics = m }
}

// WithClock overrides the clock used for freshness and cache timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// New creates a Repository. Zero TTLs fall back to the defaults.
func New(remote Remote, st store.Store, log logger.Logger, cfg Config, opts ...Option) *Repository {
	if cfg.BreedsTTL <= 0 {
		cfg.BreedsTTL = DefaultBreedsTTL
	}
	if cfg.ImagesTTL <= 0 {
		cfg.ImagesTTL = DefaultImagesTTL
	}

	r := &Repository{
		remote: remote,
		store:  st,
		log:    log,
		now:    time.Now,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetBreeds returns all breeds sorted by name. A fresh non-empty cache is
// returned without a network call; otherwise the list is refreshed and stored.
// When the refresh fails any cached copy is returned instead of the error.
func (r *Repository) GetBreeds(ctx context.Context) (breeds []Breed, err error) {
	log := r.log.WithContext(ctx).With(logger.String("operation", "get_breeds"))
	defer func() {
		if rec := recover(); rec != nil {
			breeds, err = r.recoverBreeds(ctx, log, rec)
		}
	}()

	cached, readOK := r.cachedBreeds(ctx, log)
	if len(cached) > 0 && r.fresh(newestBreed(cached), r.cfg.BreedsTTL) {
		r.metrics.RecordCacheHit(metrics.ResourceBreeds)
		log.Debug("serving breeds from cache", logger.Int("count", len(cached)))
		return breedsFromEntities(cached), nil
	}
	r.metrics.RecordCacheMiss(metrics.ResourceBreeds)

	start := time.Now()
	resp, err := r.remote.ListBreeds(ctx)
	switch {
	case err != nil:
		r.metrics.RecordRemoteRequest("list_breeds", metrics.OutcomeError, time.Since(start).Seconds())
		return r.breedsFallback(ctx, log, cached, readOK, mapError(err))
	case !resp.OK():
		r.metrics.RecordRemoteRequest("list_breeds", metrics.OutcomeSoftFailure, time.Since(start).Seconds())
		log.Warn("dog api reported failure", logger.String("status", resp.Status), logger.String("message", resp.ErrorMessage))
		return r.breedsFallback(ctx, log, cached, readOK, softFailure(resp.Status, resp.ErrorMessage))
	}
	r.metrics.RecordRemoteRequest("list_breeds", metrics.OutcomeSuccess, time.Since(start).Seconds())

	rows := breedRows(resp.Message, r.now())
	if err := r.store.ReplaceAllBreeds(ctx, rows); err != nil {
		r.metrics.RecordPersistError(metrics.ResourceBreeds)
		log.Warn("failed to cache breeds", logger.Error(err))
	}

	log.Info("breeds refreshed", logger.Int("count", len(rows)))
	return breedsFromEntities(rows), nil
}

// GetBreedImages returns images of breed, at most count when count > 0. The
// cache is used only when it is fresh and holds more than one image; a single
// cached row always triggers a refresh. Fetched images are handed to the
// scheduler for materialization and returned without waiting for it.
func (r *Repository) GetBreedImages(ctx context.Context, breed string, count int) (images []Image, err error) {
	name := NormalizeBreed(breed)
	if name == "" {
		return nil, &Error{Kind: KindInvalidInput, Message: "breed name cannot be empty"}
	}

	log := r.log.WithContext(ctx).With(
		logger.String("operation", "get_breed_images"),
		logger.String("breed", name))
	defer func() {
		if rec := recover(); rec != nil {
			images, err = r.recoverImages(ctx, log, name, count, rec)
		}
	}()

	cached, readOK := r.cachedImages(ctx, log, name)
	if len(cached) > 1 && r.fresh(newestImage(cached), r.cfg.ImagesTTL) {
		r.metrics.RecordCacheHit(metrics.ResourceImages)
		log.Debug("serving images from cache", logger.Int("count", len(cached)))
		return firstN(imagesFromEntities(cached), count), nil
	}
	r.metrics.RecordCacheMiss(metrics.ResourceImages)

	start := time.Now()
	resp, err := r.remote.ListBreedImages(ctx, name, count)
	switch {
	case err != nil:
		r.metrics.RecordRemoteRequest("list_breed_images", metrics.OutcomeError, time.Since(start).Seconds())
		return r.imagesFallback(ctx, log, name, cached, readOK, count, mapError(err))
	case !resp.OK():
		r.metrics.RecordRemoteRequest("list_breed_images", metrics.OutcomeSoftFailure, time.Since(start).Seconds())
		log.Warn("dog api reported failure", logger.String("status", resp.Status), logger.String("message", resp.ErrorMessage))
		return r.imagesFallback(ctx, log, name, cached, readOK, count, softFailure(resp.Status, resp.ErrorMessage))
	}
	r.metrics.RecordRemoteRequest("list_breed_images", metrics.OutcomeSuccess, time.Since(start).Seconds())

	rows := imageRows(name, resp.Message, r.now())
	if err := r.store.ReplaceImagesForBreed(ctx, name, rows); err != nil {
		r.metrics.RecordPersistError(metrics.ResourceImages)
		log.Warn("failed to cache images", logger.Error(err))
	} else if r.scheduler != nil {
		urls := make([]string, 0, len(rows))
		for _, row := range rows {
			urls = append(urls, row.URL)
		}
		accepted := r.scheduler.Schedule(name, urls)
		log.Debug("scheduled image materialization",
			logger.Int("images", len(urls)),
			logger.Int("accepted", accepted))
	}

	log.Info("images refreshed", logger.Int("count", len(rows)))
	return imagesFromEntities(rows), nil
}

func (r *Repository) fresh(newestMillis int64, ttl time.Duration) bool {
	return newestMillis > r.now().Add(-ttl).UnixMilli()
}

// cachedBreeds reads the breed cache; ok is false when the read failed.
func (r *Repository) cachedBreeds(ctx context.Context, log logger.Logger) (rows []entities.Breed, ok bool) {
	rows, err := r.store.GetAllBreeds(ctx)
	if err != nil {
		log.Warn("failed to read cached breeds", logger.Error(err))
		return nil, false
	}
	return rows, true
}

func (r *Repository) cachedImages(ctx context.Context, log logger.Logger, breed string) (rows []entities.Image, ok bool) {
	rows, err := r.store.GetImagesByBreed(ctx, breed)
	if err != nil {
		log.Warn("failed to read cached images", logger.Error(err))
		return nil, false
	}
	return rows, true
}

// breedsFallback serves cached after a failed refresh. When the first cache
// read failed it is retried once before cause is returned.
func (r *Repository) breedsFallback(ctx context.Context, log logger.Logger, cached []entities.Breed, readOK bool, cause *Error) ([]Breed, error) {
	if len(cached) == 0 && !readOK {
		cached, _ = lastResort(func() ([]entities.Breed, error) { return r.store.GetAllBreeds(ctx) })
	}
	if len(cached) == 0 {
		log.Warn("breed refresh failed with empty cache",
			logger.String("kind", cause.Kind.String()),
			logger.Error(cause))
		return nil, cause
	}
	r.metrics.RecordFallback(metrics.ResourceBreeds)
	log.Info("breed refresh failed, serving cached breeds",
		logger.Int("count", len(cached)),
		logger.Error(cause))
	return breedsFromEntities(cached), nil
}

func (r *Repository) imagesFallback(ctx context.Context, log logger.Logger, breed string, cached []entities.Image, readOK bool, count int, cause *Error) ([]Image, error) {
	if len(cached) == 0 && !readOK {
		cached, _ = lastResort(func() ([]entities.Image, error) { return r.store.GetImagesByBreed(ctx, breed) })
	}
	if len(cached) == 0 {
		log.Warn("image refresh failed with empty cache",
			logger.String("kind", cause.Kind.String()),
			logger.Error(cause))
		return nil, cause
	}
	r.metrics.RecordFallback(metrics.ResourceImages)
	log.Info("image refresh failed, serving cached images",
		logger.Int("count", len(cached)),
		logger.Error(cause))
	return firstN(imagesFromEntities(cached), count), nil
}

func (r *Repository) recoverBreeds(ctx context.Context, log logger.Logger, rec any) ([]Breed, error) {
	log.Error("panic while getting breeds", logger.Any("panic", rec))
	rows, ok := lastResort(func() ([]entities.Breed, error) { return r.store.GetAllBreeds(ctx) })
	if ok && len(rows) > 0 {
		r.metrics.RecordFallback(metrics.ResourceBreeds)
		return breedsFromEntities(rows), nil
	}
	return nil, unknownError("failed to get breeds", fmt.Errorf("panic: %v", rec))
}

func (r *Repository) recoverImages(ctx context.Context, log logger.Logger, breed string, count int, rec any) ([]Image, error) {
	log.Error("panic while getting breed images", logger.Any("panic", rec))
	rows, ok := lastResort(func() ([]entities.Image, error) { return r.store.GetImagesByBreed(ctx, breed) })
	if ok && len(rows) > 0 {
		r.metrics.RecordFallback(metrics.ResourceImages)
		return firstN(imagesFromEntities(rows), count), nil
	}
	return nil, unknownError("failed to get breed images", fmt.Errorf("panic: %v", rec))
}

// lastResort runs read, swallowing both errors and panics.
func lastResort[T any](read func() ([]T, error)) (rows []T, ok bool) {
	defer func() {
		if recover() != nil {
			rows, ok = nil, false
		}
	}()
	rows, err := read()
	return rows, err == nil
}

// breedRows converts the API's breed map to store rows sorted by name.
func breedRows(message map[string][]string, now time.Time) []entities.Breed {
	rows := make([]entities.Breed, 0, len(message))
	for name, subBreeds := range message {
		if subBreeds == nil {
			subBreeds = []string{}
		}
		rows = append(rows, entities.Breed{
			Name:      name,
			SubBreeds: subBreeds,
			CachedAt:  now.UnixMilli(),
		})
	}
	slices.SortFunc(rows, func(a, b entities.Breed) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return rows
}

// imageRows converts fetched URLs to store rows in listing order. The random
// endpoint can repeat a URL; only its first occurrence is kept.
func imageRows(breed string, urls []string, now time.Time) []entities.Image {
	rows := make([]entities.Image, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, url := range urls {
		if _, dup := seen[url]; dup || url == "" {
			continue
		}
		seen[url] = struct{}{}
		rows = append(rows, entities.Image{
			URL:      url,
			Breed:    breed,
			CachedAt: now.UnixMilli(),
			Position: len(rows),
		})
	}
	return rows
}
