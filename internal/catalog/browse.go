package catalog

import (
	"math/rand/v2"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FilterBreeds returns the breeds whose name or any sub-breed contains query,
// ignoring case. An empty query matches everything.
func FilterBreeds(breeds []Breed, query string) []Breed {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Breed, 0, len(breeds))
	for _, b := range breeds {
		if q == "" || matchesBreed(b, q) {
			out = append(out, b)
		}
	}
	return out
}

func matchesBreed(b Breed, q string) bool {
	if strings.Contains(strings.ToLower(b.Name), q) {
		return true
	}
	for _, sub := range b.SubBreeds {
		if strings.Contains(strings.ToLower(sub), q) {
			return true
		}
	}
	return false
}

// Group is a run of breeds sharing the first letter of their display name.
type Group struct {
	Initial string  `json:"initial"`
	Breeds  []Breed `json:"breeds"`
}

// GroupByInitial groups breeds by display-name initial. Groups appear in the
// order their first breed appears, so a name-sorted input yields A..Z groups.
// Names starting with a non-letter share the "#" group.
func GroupByInitial(breeds []Breed) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, b := range breeds {
		initial := initialOf(b.DisplayName())
		i, ok := index[initial]
		if !ok {
			i = len(groups)
			index[initial] = i
			groups = append(groups, Group{Initial: initial})
		}
		groups[i].Breeds = append(groups[i].Breeds, b)
	}
	return groups
}

func initialOf(name string) string {
	r, _ := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError || !unicode.IsLetter(r) {
		return "#"
	}
	return string(unicode.ToUpper(r))
}

// SampleImages returns up to n images picked at random. When n <= 0 or the
// input is not larger than n, a copy of all images is returned in order.
// A nil rng uses the global source.
func SampleImages(images []Image, n int, rng *rand.Rand) []Image {
	if n <= 0 || len(images) <= n {
		out := make([]Image, len(images))
		copy(out, images)
		return out
	}

	perm := rand.Perm
	if rng != nil {
		perm = rng.Perm
	}
	out := make([]Image, 0, n)
	for _, i := range perm(len(images))[:n] {
		out = append(out, images[i])
	}
	return out
}
