package catalog

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/dogs-go/internal/dogapi"
	"github.com/tphakala/dogs-go/internal/errors"
	"github.com/tphakala/dogs-go/internal/logger"
	"github.com/tphakala/dogs-go/internal/observability/metrics"
	"github.com/tphakala/dogs-go/internal/store"
	"github.com/tphakala/dogs-go/internal/store/entities"
)

var testNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

// fakeRemote serves canned responses and counts calls.
type fakeRemote struct {
	mu         sync.Mutex
	breeds     *dogapi.ListResponse
	images     *dogapi.ImagesResponse
	err        error
	panicMsg   string
	breedCalls int
	imageCalls int
	lastBreed  string
	lastCount  int
}

func (f *fakeRemote) ListBreeds(context.Context) (*dogapi.ListResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breedCalls++
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.breeds, f.err
}

func (f *fakeRemote) ListBreedImages(_ context.Context, breed string, count int) (*dogapi.ImagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageCalls++
	f.lastBreed, f.lastCount = breed, count
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.images, f.err
}

func (f *fakeRemote) calls() (breeds, images int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.breedCalls, f.imageCalls
}

// spyStore wraps a real store, counting calls and injecting failures.
type spyStore struct {
	store.Store
	calls            atomic.Int32
	replaceBreedsErr error
	// failReads makes the next n cache reads fail.
	failReads atomic.Int32
}

var errReadLocked = errors.NewStd("database is locked")

func (s *spyStore) readFails() bool {
	return s.failReads.Add(-1) >= 0
}

func (s *spyStore) GetAllBreeds(ctx context.Context) ([]entities.Breed, error) {
	s.calls.Add(1)
	if s.readFails() {
		return nil, errReadLocked
	}
	return s.Store.GetAllBreeds(ctx)
}

func (s *spyStore) ReplaceAllBreeds(ctx context.Context, breeds []entities.Breed) error {
	s.calls.Add(1)
	if s.replaceBreedsErr != nil {
		return s.replaceBreedsErr
	}
	return s.Store.ReplaceAllBreeds(ctx, breeds)
}

func (s *spyStore) GetImagesByBreed(ctx context.Context, breed string) ([]entities.Image, error) {
	s.calls.Add(1)
	if s.readFails() {
		return nil, errReadLocked
	}
	return s.Store.GetImagesByBreed(ctx, breed)
}

type recordingScheduler struct {
	mu    sync.Mutex
	calls []scheduled
}

type scheduled struct {
	breed string
	urls  []string
}

func (s *recordingScheduler) Schedule(breed string, urls []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scheduled{breed: breed, urls: urls})
	return len(urls)
}

type fixture struct {
	repo      *Repository
	remote    *fakeRemote
	store     *spyStore
	scheduler *recordingScheduler
	now       time.Time
	registry  *prometheus.Registry
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	mgr, err := store.NewSQLiteManager(filepath.Join(t.TempDir(), "dogs.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	require.NoError(t, mgr.Initialize(t.Context()))
	return store.New(mgr.DB())
}

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelDebug, time.UTC)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		remote:    &fakeRemote{},
		store:     &spyStore{Store: newTestStore(t)},
		scheduler: &recordingScheduler{},
		now:       testNow,
		registry:  prometheus.NewRegistry(),
	}
	m, err := metrics.NewCatalogMetrics(f.registry)
	require.NoError(t, err)
	f.repo = New(f.remote, f.store, testLogger(), DefaultConfig(),
		WithScheduler(f.scheduler),
		WithMetrics(m),
		WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) seedBreeds(t *testing.T, at time.Time, names ...string) {
	t.Helper()
	rows := make([]entities.Breed, 0, len(names))
	for _, n := range names {
		rows = append(rows, entities.Breed{Name: n, SubBreeds: []string{}, CachedAt: at.UnixMilli()})
	}
	require.NoError(t, f.store.Store.ReplaceAllBreeds(t.Context(), rows))
}

func (f *fixture) seedImages(t *testing.T, breed string, at time.Time, n int) []string {
	t.Helper()
	rows := make([]entities.Image, 0, n)
	urls := make([]string, 0, n)
	for i := range n {
		url := "https://images.test/" + breed + "/" + string(rune('a'+i)) + ".jpg"
		urls = append(urls, url)
		rows = append(rows, entities.Image{URL: url, Breed: breed, CachedAt: at.UnixMilli(), Position: i})
	}
	require.NoError(t, f.store.Store.ReplaceImagesForBreed(t.Context(), breed, rows))
	return urls
}

func imagesOK(urls ...string) *dogapi.ImagesResponse {
	return &dogapi.ImagesResponse{Status: dogapi.StatusSuccess, Message: urls}
}

func dogapiStatusError(code int, status string) error {
	return errors.New(&dogapi.StatusError{StatusCode: code, Status: status}).
		Component("dogapi").
		Build()
}

func networkError() error {
	return errors.New(errors.NewStd("dial tcp: connection refused")).
		Component("dogapi").
		Category(errors.CategoryNetwork).
		Build()
}

func TestGetBreedsFromEmptyCache(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.remote.breeds = &dogapi.ListResponse{
		Status:  dogapi.StatusSuccess,
		Message: map[string][]string{"bulldog": {"boston"}, "beagle": {}},
	}

	breeds, err := f.repo.GetBreeds(t.Context())
	require.NoError(t, err)
	require.Len(t, breeds, 2)
	assert.Equal(t, "beagle", breeds[0].Name)
	assert.Equal(t, "Beagle", breeds[0].DisplayName())
	assert.Equal(t, []string{}, breeds[0].SubBreeds)
	assert.Equal(t, "bulldog", breeds[1].Name)
	assert.Equal(t, "Bulldog", breeds[1].DisplayName())
	assert.Equal(t, []string{"boston"}, breeds[1].SubBreeds)
	assert.True(t, breeds[0].CachedAt.Equal(testNow))

	stored, err := f.store.Store.GetAllBreeds(t.Context())
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "beagle", stored[0].Name)
	assert.Equal(t, "bulldog", stored[1].Name)
}

func TestGetBreedsFreshCacheSkipsNetwork(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedBreeds(t, testNow.Add(-23*time.Hour), "akita", "boxer")

	breeds, err := f.repo.GetBreeds(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"akita", "boxer"}, names(breeds))

	calls, _ := f.remote.calls()
	assert.Zero(t, calls, "fresh cache must not hit the network")
}

func TestGetBreedsStaleCacheRefreshes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedBreeds(t, testNow.Add(-25*time.Hour), "akita")
	f.remote.breeds = &dogapi.ListResponse{
		Status:  dogapi.StatusSuccess,
		Message: map[string][]string{"corgi": {"cardigan"}},
	}

	breeds, err := f.repo.GetBreeds(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"corgi"}, names(breeds))

	stored, err := f.store.Store.GetAllBreeds(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"corgi"}, entityNames(stored), "refresh replaces the whole set")
}

func TestGetBreedsFallsBackToStaleCache(t *testing.T) {
	t.Parallel()
	failures := map[string]func(*fakeRemote){
		"network":      func(r *fakeRemote) { r.err = networkError() },
		"server error": func(r *fakeRemote) { r.err = dogapiStatusError(500, "500 Internal Server Error") },
		"soft failure": func(r *fakeRemote) { r.breeds = &dogapi.ListResponse{Status: "error"} },
		"panic":        func(r *fakeRemote) { r.panicMsg = "boom" },
	}

	for name, fail := range failures {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.seedBreeds(t, testNow.Add(-30*24*time.Hour), "akita", "boxer")
			fail(f.remote)

			breeds, err := f.repo.GetBreeds(t.Context())
			require.NoError(t, err, "a cached copy beats an error")
			assert.Equal(t, []string{"akita", "boxer"}, names(breeds))
		})
	}
}

func TestGetBreedsRereadsCacheAfterFailedRead(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedBreeds(t, testNow.Add(-30*24*time.Hour), "akita", "boxer")
	f.store.failReads.Store(1)
	f.remote.err = networkError()

	breeds, err := f.repo.GetBreeds(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"akita", "boxer"}, names(breeds))
}

func TestGetBreedsErrorKindsWithEmptyCache(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		setup   func(*fakeRemote)
		kind    Kind
		code    int
		message string
	}{
		{"network", func(r *fakeRemote) { r.err = networkError() }, KindNetwork, 0, "network error"},
		{"timeout", func(r *fakeRemote) { r.err = context.DeadlineExceeded }, KindNetwork, 0, "connection timeout"},
		{"not found", func(r *fakeRemote) { r.err = dogapiStatusError(404, "404 Not Found") }, KindInvalidInput, 404, "breed not found"},
		{"client error", func(r *fakeRemote) { r.err = dogapiStatusError(429, "429 Too Many Requests") }, KindAPI, 429, "client error: 429 Too Many Requests"},
		{"server error", func(r *fakeRemote) { r.err = dogapiStatusError(503, "503 Service Unavailable") }, KindAPI, 503, "server error: 503 Service Unavailable"},
		{"soft failure", func(r *fakeRemote) { r.breeds = &dogapi.ListResponse{Status: "error", ErrorMessage: "down"} }, KindAPI, 0, "API returned status error"},
		{"parse error", func(r *fakeRemote) {
			r.err = errors.Newf("malformed").Component("dogapi").Category(errors.CategoryFileParsing).Build()
		}, KindUnknown, 0, "unexpected error"},
		{"panic", func(r *fakeRemote) { r.panicMsg = "boom" }, KindUnknown, 0, "failed to get breeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			tt.setup(f.remote)

			breeds, err := f.repo.GetBreeds(t.Context())
			require.Error(t, err)
			assert.Nil(t, breeds)

			var ce *Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.kind, ce.Kind)
			assert.Equal(t, tt.code, ce.Code)
			assert.Equal(t, tt.message, ce.Message)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestGetBreedsPersistFailureStillReturnsFreshData(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.store.replaceBreedsErr = errors.NewStd("disk full")
	f.remote.breeds = &dogapi.ListResponse{Status: dogapi.StatusSuccess, Message: map[string][]string{"pug": {}}}

	breeds, err := f.repo.GetBreeds(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"pug"}, names(breeds))
}

func TestGetBreedImagesBlankBreed(t *testing.T) {
	t.Parallel()
	for _, breed := range []string{"", "   ", "\t\n"} {
		f := newFixture(t)

		images, err := f.repo.GetBreedImages(t.Context(), breed, 0)
		require.Error(t, err)
		assert.Nil(t, images)
		assert.Equal(t, KindInvalidInput, KindOf(err))

		_, imageCalls := f.remote.calls()
		assert.Zero(t, imageCalls, "no network access for blank breed")
		assert.Zero(t, f.store.calls.Load(), "no cache access for blank breed")
	}
}

func TestGetBreedImagesFreshCacheHit(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	urls := f.seedImages(t, "hound", testNow.Add(-time.Hour), 11)

	images, err := f.repo.GetBreedImages(t.Context(), "hound", 0)
	require.NoError(t, err)
	require.Len(t, images, 11)
	assert.Equal(t, urls, imageURLs(images))

	_, imageCalls := f.remote.calls()
	assert.Zero(t, imageCalls)
}

func TestGetBreedImagesCacheHitHonorsCount(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	urls := f.seedImages(t, "hound", testNow.Add(-time.Hour), 5)

	images, err := f.repo.GetBreedImages(t.Context(), "  HOUND ", 3)
	require.NoError(t, err)
	assert.Equal(t, urls[:3], imageURLs(images))
}

// A single cached row never counts as a hit, however fresh. This mirrors the
// upstream heuristic that treats a lone row as a possible placeholder.
func TestGetBreedImagesSingleRowAlwaysRefreshes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedImages(t, "pug", testNow.Add(-time.Minute), 1)
	f.remote.images = imagesOK("https://images.test/pug/new1.jpg", "https://images.test/pug/new2.jpg")

	images, err := f.repo.GetBreedImages(t.Context(), "pug", 0)
	require.NoError(t, err)
	assert.Len(t, images, 2)

	_, imageCalls := f.remote.calls()
	assert.Equal(t, 1, imageCalls)
}

func TestGetBreedImagesSingleRowFallback(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	urls := f.seedImages(t, "pug", testNow.Add(-time.Minute), 1)
	f.remote.err = networkError()

	images, err := f.repo.GetBreedImages(t.Context(), "pug", 0)
	require.NoError(t, err)
	assert.Equal(t, urls, imageURLs(images))
}

func TestGetBreedImagesFallsBackToStaleCache(t *testing.T) {
	t.Parallel()
	failures := map[string]func(*fakeRemote){
		"network":      func(r *fakeRemote) { r.err = networkError() },
		"server error": func(r *fakeRemote) { r.err = dogapiStatusError(500, "500 Internal Server Error") },
		"not found":    func(r *fakeRemote) { r.err = dogapiStatusError(404, "404 Not Found") },
		"soft failure": func(r *fakeRemote) { r.images = &dogapi.ImagesResponse{Status: "error", ErrorMessage: "down"} },
		"panic":        func(r *fakeRemote) { r.panicMsg = "boom" },
	}

	for name, fail := range failures {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			urls := f.seedImages(t, "hound", testNow.Add(-30*24*time.Hour), 4)
			fail(f.remote)

			images, err := f.repo.GetBreedImages(t.Context(), "hound", 2)
			require.NoError(t, err, "a cached copy beats an error")
			assert.Equal(t, urls[:2], imageURLs(images), "fallback keeps the first count rows")

			_, imageCalls := f.remote.calls()
			assert.Equal(t, 1, imageCalls, "stale cache is refreshed first")
			assert.Empty(t, f.scheduler.calls)

			all, err := f.repo.GetBreedImages(t.Context(), "hound", 0)
			require.NoError(t, err)
			assert.Equal(t, urls, imageURLs(all))
		})
	}
}

func TestGetBreedImagesRereadsCacheAfterFailedRead(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	urls := f.seedImages(t, "hound", testNow.Add(-time.Hour), 3)
	f.store.failReads.Store(1)
	f.remote.err = networkError()

	images, err := f.repo.GetBreedImages(t.Context(), "hound", 2)
	require.NoError(t, err)
	assert.Equal(t, urls[:2], imageURLs(images))

	f.store.failReads.Store(2)
	_, err = f.repo.GetBreedImages(t.Context(), "hound", 0)
	assert.Equal(t, KindNetwork, KindOf(err), "both reads failed, the refresh error is returned")
}

func TestGetBreedImagesRefresh(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedImages(t, "hound", testNow.Add(-8*24*time.Hour), 3)
	f.remote.images = imagesOK(
		"https://images.test/hound/x.jpg",
		"https://images.test/hound/y.jpg",
		"https://images.test/hound/x.jpg",
	)

	images, err := f.repo.GetBreedImages(t.Context(), " Hound", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://images.test/hound/x.jpg", "https://images.test/hound/y.jpg"}, imageURLs(images))
	for _, img := range images {
		assert.Equal(t, "hound", img.Breed)
		assert.False(t, img.Materialized())
	}

	assert.Equal(t, "hound", f.remote.lastBreed, "remote receives the normalized breed")
	assert.Equal(t, 2, f.remote.lastCount)

	stored, err := f.store.Store.GetImagesByBreed(t.Context(), "hound")
	require.NoError(t, err)
	assert.Equal(t, imageURLs(images), entityURLs(stored), "stale rows are replaced")

	require.Len(t, f.scheduler.calls, 1)
	assert.Equal(t, "hound", f.scheduler.calls[0].breed)
	assert.Equal(t, imageURLs(images), f.scheduler.calls[0].urls)
}

func TestGetBreedImagesErrorsWithEmptyCache(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.remote.err = dogapiStatusError(http.StatusNotFound, "404 Not Found")

	_, err := f.repo.GetBreedImages(t.Context(), "unicorn", 0)
	assert.Equal(t, KindInvalidInput, KindOf(err))

	f.remote.err = nil
	f.remote.images = &dogapi.ImagesResponse{Status: "error", ErrorMessage: "Breed not found"}
	_, err = f.repo.GetBreedImages(t.Context(), "unicorn", 0)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindAPI, ce.Kind)
	assert.Zero(t, ce.Code)
	assert.Contains(t, err.Error(), "Breed not found")
}

func TestGetBreedImagesPanicRecovery(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	urls := f.seedImages(t, "hound", testNow.Add(-30*24*time.Hour), 4)
	f.remote.panicMsg = "nil map"

	images, err := f.repo.GetBreedImages(t.Context(), "hound", 2)
	require.NoError(t, err)
	assert.Equal(t, urls[:2], imageURLs(images))

	_, err = f.repo.GetBreedImages(t.Context(), "corgi", 0)
	require.Error(t, err)
	assert.Equal(t, KindUnknown, KindOf(err))
	assert.Contains(t, err.Error(), "nil map")
}

func TestMetricsRecorded(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedBreeds(t, testNow, "akita")

	_, err := f.repo.GetBreeds(t.Context())
	require.NoError(t, err)

	families, err := f.registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "dogs_cache_lookups_total" {
			found = true
		}
	}
	assert.True(t, found)
}

func names(breeds []Breed) []string {
	out := make([]string, 0, len(breeds))
	for _, b := range breeds {
		out = append(out, b.Name)
	}
	return out
}

func entityNames(rows []entities.Breed) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Name)
	}
	return out
}

func imageURLs(images []Image) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		out = append(out, img.URL)
	}
	return out
}

func entityURLs(rows []entities.Image) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.URL)
	}
	return out
}
