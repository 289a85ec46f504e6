// Package response implements the HTTP Response Assembler of spec.md §4.6:
// conditional-GET honouring, header construction, and status-code mapping
// from typed application errors.
package response

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mapcache-go/mapcache/internal/apperr"
)

// Response is the fully-built output of the pipeline, ready for a front end
// to stream out; it carries no dependency on net/http request state beyond
// what was needed to build it, so it is easy to unit test headlessly.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// TileOptions configures header emission for a single-tile or composed
// GET_MAP response.
type TileOptions struct {
	ContentType  string
	MTime        time.Time
	CacheControl string // empty: no Cache-Control header
	Expires      time.Duration
	ExtraHeaders map[string]string
}

// ForTile builds the 200/304 response for a tile or assembled map image,
// honouring If-Modified-Since per spec.md §4.6: "if tile.mtime <= the
// request's modified-since header value, emit 304 with no body." MTime is
// compared at whole-second resolution, the resolution of the header.
func ForTile(ifModifiedSince time.Time, body []byte, opts TileOptions) Response {
	headers := make(http.Header)
	if !opts.MTime.IsZero() {
		headers.Set("Last-Modified", opts.MTime.UTC().Format(http.TimeFormat))
	}
	if opts.CacheControl != "" {
		headers.Set("Cache-Control", opts.CacheControl)
	}
	if opts.Expires > 0 {
		headers.Set("Expires", time.Now().Add(opts.Expires).UTC().Format(http.TimeFormat))
	}
	for k, v := range opts.ExtraHeaders {
		headers.Set(k, v)
	}

	if !ifModifiedSince.IsZero() && !opts.MTime.IsZero() && !opts.MTime.Truncate(time.Second).After(ifModifiedSince) {
		return Response{Status: http.StatusNotModified, Headers: headers}
	}

	headers.Set("Content-Type", opts.ContentType)
	return Response{Status: http.StatusOK, Headers: headers, Body: body}
}

// FromError converts an application error into an HTTP response, per
// spec.md §7: "the pipeline converts the current error into an HTTP
// response via a formatting helper (plain text, status from the error
// code)."
func FromError(err error) Response {
	code := apperr.Code(err)
	headers := make(http.Header)
	headers.Set("Content-Type", "text/plain; charset=utf-8")
	return Response{Status: code, Headers: headers, Body: []byte(err.Error())}
}

// ParseIfModifiedSince parses the standard HTTP conditional-GET header,
// returning the zero Time (meaning "no condition") if absent or malformed.
func ParseIfModifiedSince(header string) time.Time {
	if header == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(header)
	if err != nil {
		return time.Time{}
	}
	return t
}

// WriteTo streams a Response to an http.ResponseWriter, matching the
// header-then-status-then-body order net/http requires.
func WriteTo(w http.ResponseWriter, r Response) {
	for k, vs := range r.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if r.Body != nil {
		w.Header().Set("Content-Length", strconv.Itoa(len(r.Body)))
	}
	w.WriteHeader(r.Status)
	if r.Body != nil {
		_, _ = w.Write(r.Body)
	}
}
