package materializer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif" // decoder registration
	"image/jpeg"
	_ "image/png" // decoder registration
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // decoder registration

	"github.com/tphakala/dogs-go/internal/errors"
)

const (
	maxImageSize   = 20 << 20
	maxImagePixels = 40_000_000
)

// materialize downloads, re-encodes and stores job, returning the recorded path.
func (p *Pool) materialize(ctx context.Context, job Job) (string, error) {
	resp, err := p.http.Get(ctx, job.URL)
	if err != nil {
		return "", errors.New(err).
			Component("materializer").
			Category(errors.CategoryImageFetch).
			NetworkContext(job.URL, 0).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("image download returned status %d", resp.StatusCode).
			Component("materializer").
			Category(errors.CategoryImageFetch).
			Context("url", job.URL).
			Context("status_code", resp.StatusCode).
			Build()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return "", errors.New(err).
			Component("materializer").
			Category(errors.CategoryImageFetch).
			NetworkContext(job.URL, 0).
			Build()
	}
	if len(body) > maxImageSize {
		return "", errors.Newf("image exceeds %d bytes", maxImageSize).
			Component("materializer").
			Category(errors.CategoryImageDecode).
			Context("url", job.URL).
			Build()
	}

	// DecodeConfig reads only the header; the full decode allocates width*height pixels.
	hdr, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return "", errors.New(fmt.Errorf("decode image header: %w", err)).
			Component("materializer").
			Category(errors.CategoryImageDecode).
			Context("url", job.URL).
			Context("content_type", resp.Header.Get("Content-Type")).
			Build()
	}
	if hdr.Width <= 0 || hdr.Height <= 0 || int64(hdr.Width)*int64(hdr.Height) > maxImagePixels {
		return "", errors.Newf("image dimensions %dx%d exceed limit", hdr.Width, hdr.Height).
			Component("materializer").
			Category(errors.CategoryImageDecode).
			Context("url", job.URL).
			Build()
	}

	src, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return "", errors.New(fmt.Errorf("decode image: %w", err)).
			Component("materializer").
			Category(errors.CategoryImageDecode).
			Context("url", job.URL).
			Context("content_type", resp.Header.Get("Content-Type")).
			Build()
	}

	var buf bytes.Buffer
	out := flatten(src, p.cfg.MaxDimension)
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: p.cfg.JPEGQuality}); err != nil {
		return "", errors.New(fmt.Errorf("encode jpeg: %w", err)).
			Component("materializer").
			Category(errors.CategoryImageDecode).
			Context("url", job.URL).
			Context("source_format", format).
			Build()
	}

	now := p.now()
	name := FileName(job.Breed, job.URL, now)
	if err := writeFileAtomic(p.fs, name, buf.Bytes()); err != nil {
		return "", errors.New(err).
			Component("materializer").
			Category(errors.CategoryImageCache).
			FileContext(name, int64(buf.Len())).
			Build()
	}

	localPath := p.localPath(name)
	if err := p.store.UpdateImageLocalPath(ctx, job.URL, localPath, now); err != nil {
		_ = p.fs.Remove(name)
		return "", err
	}
	return localPath, nil
}

// FileName builds "<breed>_<epochMillis>_<urlhash>.jpg". Sub-breed separators
// are flattened so the name stays inside the image directory.
func FileName(breed, url string, at time.Time) string {
	sum := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%s_%d_%s.jpg", sanitizeBreed(breed), at.UnixMilli(), hex.EncodeToString(sum[:4]))
}

func sanitizeBreed(breed string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(breed)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "breed"
	}
	return b.String()
}

// flatten composes src onto an opaque white canvas, scaling it down so the
// longest side is at most maxDim. JPEG has no alpha channel.
func flatten(src image.Image, maxDim int) image.Image {
	sb := src.Bounds()
	w, h := scaledSize(sb.Dx(), sb.Dy(), maxDim)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)
	return dst
}

func scaledSize(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}

func writeFileAtomic(fs afero.Fs, name string, data []byte) error {
	tmp := name + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := fs.Rename(tmp, name); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
