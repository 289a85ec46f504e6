package source

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mapcache-go/mapcache/internal/apperr"
	"github.com/mapcache-go/mapcache/internal/grid"
)

// WMSSource performs a real upstream GetMap call over net/http, the
// "source ref" a tileset's config binds to in production (spec.md §3). URL
// template substitution mirrors the XML config's <source type="wms">
// <getmap><params> children: out of scope to parse here (spec.md §1), so
// the caller supplies a ready BaseURL plus any static Params.
type WMSSource struct {
	SourceName string
	BaseURL    string
	Layers     string
	Params     map[string]string
	Client     *http.Client
}

func NewWMSSource(name, baseURL, layers string, params map[string]string) *WMSSource {
	return &WMSSource{
		SourceName: name,
		BaseURL:    baseURL,
		Layers:     layers,
		Params:     params,
		Client:     http.DefaultClient,
	}
}

func (w *WMSSource) Name() string { return w.SourceName }

func (w *WMSSource) Render(ctx context.Context, req Request) (image.Image, error) {
	u, err := url.Parse(w.BaseURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfig, 500, err, "wms source %q: bad base url", w.SourceName)
	}
	q := u.Query()
	q.Set("SERVICE", "WMS")
	q.Set("REQUEST", "GetMap")
	q.Set("VERSION", "1.3.0")
	q.Set("LAYERS", w.Layers)
	q.Set("FORMAT", req.Format)
	q.Set("WIDTH", strconv.Itoa(req.PixelW))
	q.Set("HEIGHT", strconv.Itoa(req.PixelH))
	q.Set("CRS", req.Grid.SRS)
	q.Set("BBOX", bboxParam(req.Extent))
	for k, v := range req.Dimensions {
		q.Set(strings.ToUpper(k), v)
	}
	for k, v := range w.Params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperr.Internal(err, "wms source %q: build request", w.SourceName)
	}
	resp, err := w.Client.Do(httpReq)
	if err != nil {
		return nil, apperr.Upstream(err, "wms source %q: GetMap request", w.SourceName)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Upstream(fmt.Errorf("status %d", resp.StatusCode), "wms source %q: GetMap returned non-200", w.SourceName)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, apperr.Upstream(err, "wms source %q: decode response image", w.SourceName)
	}
	return img, nil
}

func bboxParam(e grid.Extent) string {
	return fmt.Sprintf("%g,%g,%g,%g", e[0], e[1], e[2], e[3])
}
