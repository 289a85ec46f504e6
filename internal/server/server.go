// Package server is the HTTP front end spec.md §1 treats as an external
// collaborator ("HTTP front-end embedding ... is out of scope"): request
// parsing and response streaming live here, built on net/http exactly the
// way the teacher's own HTTP surface was, while every decision about
// cache/lock/render semantics is delegated to internal/pipeline,
// internal/metatile, and internal/proxy.
package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mapcache-go/mapcache/internal/apperr"
	"github.com/mapcache-go/mapcache/internal/metatile"
	"github.com/mapcache-go/mapcache/internal/pipeline"
	"github.com/mapcache-go/mapcache/internal/registry"
	"github.com/mapcache-go/mapcache/internal/reqctx"
	"github.com/mapcache-go/mapcache/internal/response"
)

// Server is the process's single HTTP entry point: it matches the request
// path against the endpoint registry (spec.md §2.9), then dispatches to
// the service parser spec.md §2's control flow describes ("endpoint
// match → dispatch to service parser → cache lookup → ...").
type Server struct {
	Registry *registry.Registry
	Logger   *slog.Logger
}

func New(reg *registry.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Registry: reg, Logger: logger}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rc := reqctx.New(r.Context(), s.Logger, s.Registry.Pools)
	defer rc.Release()

	alias, rest, ok := s.Registry.Match(r.URL.Path)
	if !ok {
		s.fail(rc, w, apperr.NotFound("server: no endpoint registered for %q", r.URL.Path))
		return
	}

	if alias.Proxy != nil {
		if err := alias.Proxy.Serve(w, r); err != nil {
			s.fail(rc, w, err)
		}
		return
	}

	if rest == "WMTSCapabilities.xml" || strings.HasSuffix(rest, "/WMTSCapabilities.xml") {
		s.serveCapabilities(w, r, alias)
		return
	}

	req, err := parseWMTSPath(rest)
	if err != nil {
		s.fail(rc, w, err)
		return
	}

	ts, ok := alias.Server.Tilesets[req.tileset]
	if !ok {
		s.fail(rc, w, apperr.NotFound("server: unknown tileset %q", req.tileset))
		return
	}
	gl := ts.FindGrid(req.grid)
	if gl == nil {
		s.fail(rc, w, apperr.NotFound("server: tileset %q does not serve grid %q", req.tileset, req.grid))
		return
	}

	p, err := pipeline.New(ts, req.grid, s.Logger)
	if err != nil {
		s.fail(rc, w, err)
		return
	}

	asm := &metatile.Assembler{
		Tileset:    ts.Name,
		Grid:       gl.Grid,
		Cache:      ts.Cache,
		Source:     ts.Source,
		Locker:     alias.Server.DefaultLocker,
		MetaSize:   ts.MetaSize,
		MetaBuffer: ts.MetaBuffer,
		Format:     ts.Format,
		Logger:     s.Logger,
	}

	t, err := p.GetTile(rc.Std, asm, pipeline.TileRequest{Z: req.z, X: req.x, Y: req.y})
	if err != nil {
		s.fail(rc, w, err)
		return
	}
	rc.ClearError()

	ims := response.ParseIfModifiedSince(r.Header.Get("If-Modified-Since"))
	resp := response.ForTile(ims, t.EncodedData, response.TileOptions{
		ContentType: ts.Format,
		MTime:       t.MTime,
	})
	response.WriteTo(w, resp)
}

// fail records err on the request's error slot (spec.md §9's single-slot
// error, so a caller building on Context can inspect what happened after
// the fact) and writes the corresponding HTTP response.
func (s *Server) fail(rc *reqctx.Context, w http.ResponseWriter, err error) {
	if ae, ok := err.(*apperr.Error); ok {
		rc.SetError(ae)
	}
	response.WriteTo(w, response.FromError(err))
}

func (s *Server) serveCapabilities(w http.ResponseWriter, r *http.Request, alias registry.AliasEntry) {
	baseURL := baseURLFor(r, alias.Prefix)
	body := buildCapabilities(alias, baseURL)
	response.WriteTo(w, response.Response{
		Status:  http.StatusOK,
		Headers: map[string][]string{"Content-Type": {"application/xml; charset=utf-8"}},
		Body:    body,
	})
}

// baseURLFor reconstructs the base URL by trimming path-info from the
// request URI, per spec.md §4.4's GET_CAPABILITIES description.
// The result is scheme://host followed by the alias prefix the request
// matched.
func baseURLFor(r *http.Request, prefix string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + prefix
}

type wmtsRequest struct {
	tileset, style, grid string
	z, x, y              int
	ext                  string
}

// parseWMTSPath parses the REST-style path
// "wmts/1.0.0/{tileset}/{style}/{grid}/{z}/{y}/{x}.{ext}" spec.md §8's
// S1/S2/S3 scenarios use, e.g. "wmts/1.0.0/l1/default/GridA/3/5/2.png".
func parseWMTSPath(rest string) (wmtsRequest, error) {
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 8 || parts[0] != "wmts" {
		return wmtsRequest{}, apperr.BadRequest("server: unrecognized tile request path %q", rest)
	}
	// parts[1] is the WMTS version ("1.0.0"), accepted but not validated.
	tileset, style, gridName := parts[2], parts[3], parts[4]

	z, err := strconv.Atoi(parts[5])
	if err != nil {
		return wmtsRequest{}, apperr.BadRequest("server: bad zoom %q", parts[5])
	}
	y, err := strconv.Atoi(parts[6])
	if err != nil {
		return wmtsRequest{}, apperr.BadRequest("server: bad row %q", parts[6])
	}
	xExt := parts[7]
	dot := strings.LastIndexByte(xExt, '.')
	if dot < 0 {
		return wmtsRequest{}, apperr.BadRequest("server: missing file extension in %q", xExt)
	}
	x, err := strconv.Atoi(xExt[:dot])
	if err != nil {
		return wmtsRequest{}, apperr.BadRequest("server: bad column %q", xExt[:dot])
	}

	return wmtsRequest{tileset: tileset, style: style, grid: gridName, z: z, x: x, y: y, ext: xExt[dot+1:]}, nil
}
