package catalog

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/dogs-go/internal/httpclient"
	"github.com/tphakala/dogs-go/internal/materializer"
)

// Fetching never waits for image downloads, and materializing an image again
// writes a new file and overwrites the stored path and timestamp.
func TestRematerializationDoesNotBlockFetch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 3))))

	release := make(chan struct{})
	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder(http.MethodGet, regexp.MustCompile(`^https://images\.test/`),
		func(req *http.Request) (*http.Response, error) {
			select {
			case <-release:
				return httpmock.NewBytesResponse(http.StatusOK, buf.Bytes()), nil
			case <-req.Context().Done():
				return nil, req.Context().Err()
			}
		})

	st := newTestStore(t)
	var nowMillis atomic.Int64
	nowMillis.Store(testNow.UnixMilli())
	clock := func() time.Time { return time.UnixMilli(nowMillis.Load()).UTC() }
	pool := materializer.New(
		materializer.Config{Dir: "/images", Workers: 2, QueueSize: 8, JPEGQuality: 70},
		httpclient.New(&httpclient.Config{Transport: transport}),
		afero.NewMemMapFs(), st, testLogger(),
		materializer.WithClock(clock))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pool.Close(ctx)
	})

	remote := &fakeRemote{images: imagesOK("https://images.test/pug/1.jpg", "https://images.test/pug/2.jpg")}
	repo := New(remote, st, testLogger(), DefaultConfig(), WithScheduler(pool), WithClock(clock))

	drain := func() {
		require.Eventually(t, func() bool {
			rows, err := st.GetImagesByBreed(t.Context(), "pug")
			if err != nil {
				return false
			}
			for _, r := range rows {
				if r.CachedAt != nowMillis.Load() || r.LocalPath == "" {
					return false
				}
			}
			return len(rows) == 2
		}, 5*time.Second, 10*time.Millisecond)
	}

	// downloads are blocked, yet the fetch returns
	images, err := repo.GetBreedImages(t.Context(), "pug", 0)
	require.NoError(t, err)
	require.Len(t, images, 2)
	for _, img := range images {
		assert.Empty(t, img.LocalPath)
	}

	close(release)
	drain()
	first, err := st.GetImagesByBreed(t.Context(), "pug")
	require.NoError(t, err)

	// a later stale refresh materializes the same URLs again
	nowMillis.Store(testNow.Add(8 * 24 * time.Hour).UnixMilli())
	images, err = repo.GetBreedImages(t.Context(), "pug", 0)
	require.NoError(t, err)
	require.Len(t, images, 2)
	drain()

	second, err := st.GetImagesByBreed(t.Context(), "pug")
	require.NoError(t, err)
	require.Len(t, second, 2)
	for i := range second {
		assert.NotEmpty(t, second[i].LocalPath)
		assert.NotEqual(t, first[0].LocalPath, second[i].LocalPath)
		assert.Equal(t, nowMillis.Load(), second[i].CachedAt)
	}
}
