// Package dogapi is the client for the Dog CEO REST API (https://dog.ceo/dog-api).
package dogapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/dogs-go/internal/errors"
	"github.com/tphakala/dogs-go/internal/httpclient"
	"github.com/tphakala/dogs-go/internal/logger"
)

const (
	// DefaultBaseURL is the public Dog CEO API root.
	DefaultBaseURL = "https://dog.ceo/api"

	// StatusSuccess is the envelope status of a successful call.
	StatusSuccess = "success"

	maxBodySize    = 4 << 20
	maxPreviewSize = 200
)

// ListResponse is the envelope of GET /breeds/list/all.
type ListResponse struct {
	// Message maps breed name to its sub-breeds.
	Message map[string][]string
	Status  string
	// ErrorMessage carries the API's explanation when Status is not success.
	ErrorMessage string
}

// ImagesResponse is the envelope of the breed image endpoints.
type ImagesResponse struct {
	// Message lists image URLs in API order.
	Message      []string
	Status       string
	ErrorMessage string
}

// OK reports whether the API signalled success.
func (r *ListResponse) OK() bool { return r.Status == StatusSuccess }

// OK reports whether the API signalled success.
func (r *ImagesResponse) OK() bool { return r.Status == StatusSuccess }

// Client calls the Dog CEO API. It is safe for concurrent use.
type Client struct {
	http    *httpclient.Client
	baseURL string
	log     logger.Logger
}

// New creates a client rooted at baseURL (DefaultBaseURL when empty).
func New(http *httpclient.Client, baseURL string, log logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    http,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

// ListBreeds fetches every breed with its sub-breeds.
func (c *Client) ListBreeds(ctx context.Context) (*ListResponse, error) {
	env, err := c.get(ctx, "list_breeds", c.baseURL+"/breeds/list/all")
	if err != nil {
		return nil, err
	}

	resp := &ListResponse{Status: env.status, ErrorMessage: env.errorMessage}
	if !resp.OK() {
		return resp, nil
	}

	breeds, err := env.breedMap()
	if err != nil {
		return nil, parseError(err, "list_breeds")
	}
	resp.Message = breeds
	return resp, nil
}

// ListBreedImages fetches image URLs for breed. A count above zero asks the API
// for that many random images; otherwise every image is listed.
func (c *Client) ListBreedImages(ctx context.Context, breed string, count int) (*ImagesResponse, error) {
	endpoint := c.baseURL + "/breed/" + escapeBreed(breed) + "/images"
	if count > 0 {
		endpoint += "/random/" + strconv.Itoa(count)
	}

	env, err := c.get(ctx, "list_breed_images", endpoint)
	if err != nil {
		return nil, err
	}

	resp := &ImagesResponse{Status: env.status, ErrorMessage: env.errorMessage}
	if !resp.OK() {
		return resp, nil
	}

	urls, err := env.urlList()
	if err != nil {
		return nil, parseError(err, "list_breed_images")
	}
	resp.Message = urls
	return resp, nil
}

// get performs the request and decodes the status envelope.
func (c *Client) get(ctx context.Context, operation, endpoint string) (*envelope, error) {
	log := c.log.WithContext(ctx).With(logger.String("operation", operation))
	start := time.Now()

	resp, err := c.http.Get(ctx, endpoint)
	if err != nil {
		log.Debug("dog api request failed", logger.String("url", endpoint), logger.Error(err))
		return nil, transportError(err, operation, endpoint)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, transportError(err, operation, endpoint)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		statusErr := newStatusError(resp, body)
		log.Debug("dog api returned error status",
			logger.Int("status", resp.StatusCode),
			logger.String("message", statusErr.Body))
		return nil, errors.New(statusErr).
			Component("dogapi").
			Context("operation", operation).
			Context("status_code", resp.StatusCode).
			Build()
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		log.Debug("dog api returned malformed body",
			logger.String("preview", previewBody(resp.Header.Get("Content-Type"), body)),
			logger.Error(err))
		return nil, parseError(err, operation)
	}

	log.Trace("dog api response",
		logger.String("status", env.status),
		logger.Int("bytes", len(body)),
		logger.Duration("elapsed", time.Since(start)))
	return env, nil
}

// escapeBreed escapes each path segment so "hound/afghan" addresses a sub-breed.
func escapeBreed(breed string) string {
	segments := strings.Split(breed, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func transportError(err error, operation, endpoint string) error {
	category := errors.CategoryNetwork
	switch {
	case errors.Is(err, context.Canceled):
		category = errors.CategoryCancellation
	case errors.Is(err, context.DeadlineExceeded):
		category = errors.CategoryTimeout
	}

	return errors.New(fmt.Errorf("dog api %s: %w", operation, err)).
		Component("dogapi").
		Category(category).
		NetworkContext(endpoint, 0).
		Context("operation", operation).
		Build()
}

func parseError(err error, operation string) error {
	return errors.New(fmt.Errorf("dog api %s: malformed response: %w", operation, err)).
		Component("dogapi").
		Category(errors.CategoryFileParsing).
		Context("operation", operation).
		Build()
}
