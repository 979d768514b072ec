package catalog

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tphakala/dogs-go/internal/store/entities"
)

// Breed is a dog breed with its ordered sub-breeds.
type Breed struct {
	Name      string    `json:"name"`
	SubBreeds []string  `json:"sub_breeds"`
	CachedAt  time.Time `json:"cached_at"`
}

// DisplayName is Name with its first letter upper-cased.
func (b Breed) DisplayName() string {
	return displayName(b.Name)
}

// Image is a breed image. LocalPath is empty until the image has been materialized.
type Image struct {
	URL       string    `json:"url"`
	Breed     string    `json:"breed"`
	LocalPath string    `json:"local_path,omitempty"`
	CachedAt  time.Time `json:"cached_at"`
}

// Materialized reports whether a local copy exists.
func (i Image) Materialized() bool {
	return i.LocalPath != ""
}

// NormalizeBreed trims and lower-cases a breed identifier.
func NormalizeBreed(breed string) string {
	return strings.ToLower(strings.TrimSpace(breed))
}

func displayName(name string) string {
	if name == "" {
		return ""
	}
	_, size := utf8.DecodeRuneInString(name)
	// Casers carry state and must not be shared between goroutines.
	return cases.Upper(language.Und).String(name[:size]) + name[size:]
}

func breedFromEntity(e entities.Breed) Breed {
	subBreeds := e.SubBreeds
	if subBreeds == nil {
		subBreeds = []string{}
	}
	return Breed{
		Name:      e.Name,
		SubBreeds: subBreeds,
		CachedAt:  time.UnixMilli(e.CachedAt),
	}
}

func breedsFromEntities(rows []entities.Breed) []Breed {
	breeds := make([]Breed, 0, len(rows))
	for _, row := range rows {
		breeds = append(breeds, breedFromEntity(row))
	}
	return breeds
}

func imageFromEntity(e entities.Image) Image {
	return Image{
		URL:       e.URL,
		Breed:     e.Breed,
		LocalPath: e.LocalPath,
		CachedAt:  time.UnixMilli(e.CachedAt),
	}
}

func imagesFromEntities(rows []entities.Image) []Image {
	images := make([]Image, 0, len(rows))
	for _, row := range rows {
		images = append(images, imageFromEntity(row))
	}
	return images
}

func newestBreed(rows []entities.Breed) int64 {
	var newest int64
	for _, row := range rows {
		newest = max(newest, row.CachedAt)
	}
	return newest
}

func newestImage(rows []entities.Image) int64 {
	var newest int64
	for _, row := range rows {
		newest = max(newest, row.CachedAt)
	}
	return newest
}

// firstN returns the first n items, or all of them when n <= 0.
func firstN[T any](items []T, n int) []T {
	if n > 0 && n < len(items) {
		return items[:n]
	}
	return items
}
