package source

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapcache-go/mapcache/internal/grid"
)

func TestWMSSource_RenderDecodesUpstreamImage(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		img := image.NewRGBA(image.Rect(0, 0, 8, 8))
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
			}
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))
		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	src := NewWMSSource("upstream", srv.URL, "basemap", nil)
	g := grid.WebMercator()
	img, err := src.Render(context.Background(), Request{
		Grid:   g,
		Extent: grid.Extent{-1, -1, 1, 1},
		PixelW: 8,
		PixelH: 8,
		Format: "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, "GetMap", gotQuery.Get("REQUEST"))
	assert.Equal(t, "basemap", gotQuery.Get("LAYERS"))
}

func TestWMSSource_NonOKStatusIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewWMSSource("upstream", srv.URL, "basemap", nil)
	_, err := src.Render(context.Background(), Request{Grid: grid.WebMercator(), PixelW: 4, PixelH: 4, Format: "image/png"})
	assert.Error(t, err)
}
