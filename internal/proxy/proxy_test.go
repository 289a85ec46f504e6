package proxy

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxy_ForwardsGetAndRewritesHeaders(t *testing.T) {
	var gotForwardedFor, gotForwardedServer string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotForwardedFor = r.Header.Get("X-Forwarded-For")
		gotForwardedServer = r.Header.Get("X-Forwarded-Server")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("upstream-ok"))
	}))
	defer upstream.Close()

	u, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	p := New(Rule{Name: "r1", Upstream: u})

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	rec := httptest.NewRecorder()

	require.NoError(t, p.Serve(rec, req))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10.0.0.5", gotForwardedFor)
	assert.Equal(t, u.Host, gotForwardedServer)
}

func TestProxy_RejectsOversizedPostWithoutContactingUpstream(t *testing.T) {
	contacted := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contacted = true
	}))
	defer upstream.Close()

	u, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	p := New(Rule{Name: "r1", Upstream: u, MaxPostLen: 1024})

	body := bytes.Repeat([]byte("x"), 2048)
	req := httptest.NewRequest(http.MethodPost, "/anything", bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	rec := httptest.NewRecorder()

	err = p.Serve(rec, req)
	require.Error(t, err)
	assert.False(t, contacted, "upstream must not be contacted when max_post_len is exceeded")
}

func TestProxy_AllowsPostWithinLimit(t *testing.T) {
	contacted := false
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contacted = true
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	u, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	p := New(Rule{Name: "r1", Upstream: u, MaxPostLen: 1024})

	body := bytes.Repeat([]byte("x"), 100)
	req := httptest.NewRequest(http.MethodPost, "/anything", bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	rec := httptest.NewRecorder()

	require.NoError(t, p.Serve(rec, req))
	assert.True(t, contacted)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProxy_AppendsToExistingForwardedForHeader(t *testing.T) {
	var gotForwardedFor string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotForwardedFor = r.Header.Get("X-Forwarded-For")
	}))
	defer upstream.Close()

	u, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	p := New(Rule{Name: "r1", Upstream: u})

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.RemoteAddr = "10.0.0.6:1234"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	rec := httptest.NewRecorder()

	require.NoError(t, p.Serve(rec, req))
	assert.Equal(t, "1.2.3.4, 10.0.0.6", gotForwardedFor)
}
