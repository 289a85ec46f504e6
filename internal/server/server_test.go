package server

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapcache-go/mapcache/internal/cache"
	"github.com/mapcache-go/mapcache/internal/config"
	"github.com/mapcache-go/mapcache/internal/grid"
	"github.com/mapcache-go/mapcache/internal/lock"
	"github.com/mapcache-go/mapcache/internal/pool"
	"github.com/mapcache-go/mapcache/internal/registry"
	"github.com/mapcache-go/mapcache/internal/source"
	"github.com/mapcache-go/mapcache/internal/tile"
	"github.com/mapcache-go/mapcache/internal/tileset"
)

func newTestServer(t *testing.T, diskRoot string) (*Server, *cache.Disk) {
	t.Helper()
	g := grid.WebMercator()
	c := cache.NewDisk("disk", diskRoot)
	l := lock.NewDiskLocker(t.TempDir(), 2*time.Millisecond, time.Second)

	srv := &config.Server{
		Grids:         map[string]*grid.Grid{g.Name: g},
		Tilesets:      map[string]*tileset.Tileset{},
		DefaultLocker: l,
	}
	srv.Tilesets["l1"] = &tileset.Tileset{
		Name:     "l1",
		Cache:    c,
		Source:   source.NewDemoSource(),
		Format:   "image/png",
		MetaSize: tile.MetaSize{W: 1, H: 1},
		Grids:    []tileset.GridLink{{Grid: g, MinZ: 0, MaxZ: g.MaxZoom()}},
	}

	reg := registry.New(pool.NewRegistry(false))
	require.NoError(t, reg.Register("/wmts", srv))
	return New(reg, nil), c
}

func TestServer_ColdMissThenHit(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/wmts/wmts/1.0.0/l1/default/WebMercator/3/5/2.png", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Body.Bytes())

	req2 := httptest.NewRequest(http.MethodGet, "/wmts/wmts/1.0.0/l1/default/WebMercator/3/5/2.png", nil)
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, rec.Body.Bytes(), rec2.Body.Bytes())
}

func TestServer_ConcurrentMissCollapses(t *testing.T) {
	root := t.TempDir()
	s, _ := newTestServer(t, root)

	var wg sync.WaitGroup
	codes := make([]int, 20)
	bodies := make([][]byte, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/wmts/wmts/1.0.0/l1/default/WebMercator/3/5/2.png", nil)
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)
			codes[idx] = rec.Code
			bodies[idx] = rec.Body.Bytes()
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		require.Equal(t, http.StatusOK, code, "request %d", i)
		assert.Equal(t, bodies[0], bodies[i])
	}
}

func TestServer_UnknownAliasIs404(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir())
	req := httptest.NewRequest(http.MethodGet, "/nope/wmts/1.0.0/l1/default/WebMercator/3/5/2.png", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_BadMethodIs405(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir())
	req := httptest.NewRequest(http.MethodDelete, "/wmts/wmts/1.0.0/l1/default/WebMercator/3/5/2.png", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_ConditionalGet304(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/wmts/wmts/1.0.0/l1/default/WebMercator/3/5/2.png", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	lastMod := rec.Header().Get("Last-Modified")
	require.NotEmpty(t, lastMod)

	req2 := httptest.NewRequest(http.MethodGet, "/wmts/wmts/1.0.0/l1/default/WebMercator/3/5/2.png", nil)
	req2.Header.Set("If-Modified-Since", rec.Header().Get("Last-Modified"))
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusNotModified, rec2.Code)
	assert.Empty(t, rec2.Body.Bytes())
}

func TestServer_Capabilities(t *testing.T) {
	s, _ := newTestServer(t, t.TempDir())
	req := httptest.NewRequest(http.MethodGet, "/wmts/wmts/1.0.0/WMTSCapabilities.xml", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "l1")
}
