package images

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/dogs-go/internal/catalog"
)

func TestRenderShowsLocalCopies(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, render(&out, []catalog.Image{
		{URL: "https://images.dog.ceo/breeds/pug/a.jpg", Breed: "pug", LocalPath: "/data/images/pug_1_ab.jpg"},
		{URL: "https://images.dog.ceo/breeds/pug/b.jpg", Breed: "pug"},
	}))

	assert.Equal(t,
		"https://images.dog.ceo/breeds/pug/a.jpg\t/data/images/pug_1_ab.jpg\n"+
			"https://images.dog.ceo/breeds/pug/b.jpg\t-\n",
		out.String())
}

func TestRenderEmpty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, render(&out, nil))
	assert.Equal(t, "no images found\n", out.String())
}
