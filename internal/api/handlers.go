package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/dogs-go/internal/catalog"
	"github.com/tphakala/dogs-go/internal/errors"
	"github.com/tphakala/dogs-go/internal/logger"
)

const (
	maxImageCount   = 50
	healthTimeout   = 2 * time.Second
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// Controller holds the route handlers.
type Controller struct {
	catalog Catalog
	log     logger.Logger
	checks  map[string]HealthCheck
	started time.Time
}

// BreedResponse is one breed in API responses.
type BreedResponse struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	SubBreeds   []string  `json:"sub_breeds"`
	CachedAt    time.Time `json:"cached_at"`
}

// GroupResponse is a run of breeds sharing an initial.
type GroupResponse struct {
	Initial string          `json:"initial"`
	Breeds  []BreedResponse `json:"breeds"`
}

// BreedsResponse is the body of GET /breeds.
type BreedsResponse struct {
	Breeds []BreedResponse `json:"breeds,omitempty"`
	Groups []GroupResponse `json:"groups,omitempty"`
	Count  int             `json:"count"`
}

// ImagesResponse is the body of GET /breeds/:breed/images.
type ImagesResponse struct {
	Breed  string          `json:"breed"`
	Images []catalog.Image `json:"images"`
	Count  int             `json:"count"`
}

func (c *Controller) register(g *echo.Group) {
	g.GET("/health", c.HealthCheck)
	g.GET("/breeds", c.ListBreeds)
	g.GET("/breeds/:breed/images", c.ListBreedImages)
	g.GET("/breeds/:breed/:sub/images", c.ListBreedImages)
}

// ListBreeds handles GET /api/v1/breeds?search=&group=
func (c *Controller) ListBreeds(ctx echo.Context) error {
	group, err := parseBool(ctx.QueryParam("group"))
	if err != nil {
		return c.HandleError(ctx, err, "invalid group parameter", http.StatusBadRequest)
	}

	breeds, err := c.catalog.GetBreeds(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, messageFor(err), statusFor(err))
	}
	breeds = catalog.FilterBreeds(breeds, ctx.QueryParam("search"))

	resp := BreedsResponse{Count: len(breeds)}
	if group {
		for _, g := range catalog.GroupByInitial(breeds) {
			resp.Groups = append(resp.Groups, GroupResponse{Initial: g.Initial, Breeds: toBreedResponses(g.Breeds)})
		}
	} else {
		resp.Breeds = toBreedResponses(breeds)
	}
	return ctx.JSON(http.StatusOK, resp)
}

// ListBreedImages handles GET /api/v1/breeds/:breed[/:sub]/images?count=&sample=
func (c *Controller) ListBreedImages(ctx echo.Context) error {
	breed := ctx.Param("breed")
	if sub := ctx.Param("sub"); sub != "" {
		breed += "/" + sub
	}

	count, err := parseCount(ctx.QueryParam("count"))
	if err != nil {
		return c.HandleError(ctx, err, "invalid count parameter", http.StatusBadRequest)
	}
	sample, err := parseCount(ctx.QueryParam("sample"))
	if err != nil {
		return c.HandleError(ctx, err, "invalid sample parameter", http.StatusBadRequest)
	}

	images, err := c.catalog.GetBreedImages(ctx.Request().Context(), breed, count)
	if err != nil {
		return c.HandleError(ctx, err, messageFor(err), statusFor(err))
	}
	if sample > 0 {
		images = catalog.SampleImages(images, sample, nil)
	}

	return ctx.JSON(http.StatusOK, ImagesResponse{
		Breed:  catalog.NormalizeBreed(breed),
		Images: images,
		Count:  len(images),
	})
}

// HealthCheck handles GET /api/v1/health.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), healthTimeout)
	defer cancel()

	status := statusHealthy
	checks := make(map[string]string, len(c.checks))
	for name, check := range c.checks {
		if err := check(reqCtx); err != nil {
			status = statusUnhealthy
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	code := http.StatusOK
	if status != statusHealthy {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, map[string]any{
		"status":    status,
		"checks":    checks,
		"uptime":    time.Since(c.started).Round(time.Second).String(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func toBreedResponses(breeds []catalog.Breed) []BreedResponse {
	out := make([]BreedResponse, 0, len(breeds))
	for _, b := range breeds {
		out = append(out, BreedResponse{
			Name:        b.Name,
			DisplayName: b.DisplayName(),
			SubBreeds:   b.SubBreeds,
			CachedAt:    b.CachedAt,
		})
	}
	return out
}

// parseCount parses an optional non-negative count capped at maxImageCount.
func parseCount(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxImageCount {
		return 0, errors.ValidationError(fmt.Sprintf("must be an integer between 0 and %d, got %q", maxImageCount, raw))
	}
	return n, nil
}

func parseBool(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
