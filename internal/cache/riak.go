package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mapcache-go/mapcache/internal/apperr"
	"github.com/mapcache-go/mapcache/internal/pool"
)

// Riak is a Cache backend for a Riak KV cluster's HTTP API. No Go Riak
// client library is in the retrieval pack (checked every example repo and
// every manifests/*/go.mod); this talks the documented Riak HTTP interface
// directly over net/http, pooled the same way the other networked backends
// are. It folds the original's legacy (riack 1.x) and "new" (riack 2.x,
// bucket-type aware) variants into one implementation parameterised by
// BucketType, per spec.md Open Question (i): "one implementation covers
// both; the legacy behaviour is the zero-value BucketType case."
type Riak struct {
	CacheName  string
	Pool       *pool.Pool[*http.Client]
	Logger     *slog.Logger
	BaseURL    string // e.g. "http://riak-host:8098"
	Bucket     string
	BucketType string // empty => legacy /riak/<bucket>/<key> path, non-empty => /types/<type>/buckets/<bucket>/keys/<key>
	Quorum     string // R/W quorum parameter, e.g. "quorum", "all", or a number
}

// reg may be nil (unshared pool); when non-nil and its Sharing flag is set,
// every cache naming the same baseURL shares one pool, per spec.md §6
// ConnectionPoolSharing.
func NewRiak(name, baseURL, bucket, bucketType, quorum string, cfg pool.Config, reg *pool.Registry, logger *slog.Logger) *Riak {
	if logger == nil {
		logger = slog.Default()
	}
	key := "riak:" + baseURL
	p := pool.Shared[*http.Client](reg, key, func() *pool.Pool[*http.Client] {
		return pool.New[*http.Client](cfg,
			func(ctx context.Context) (*http.Client, error) {
				return &http.Client{Timeout: 5 * time.Second}, nil
			},
			func(*http.Client) {},
		)
	})
	return &Riak{CacheName: name, Pool: p, Logger: logger, BaseURL: baseURL, Bucket: bucket, BucketType: bucketType, Quorum: quorum}
}

func (r *Riak) Name() string { return r.CacheName }

func (r *Riak) objectURL(key string) string {
	q := ""
	if r.Quorum != "" {
		q = "?r=" + r.Quorum + "&w=" + r.Quorum
	}
	if r.BucketType == "" {
		return fmt.Sprintf("%s/riak/%s/%s%s", r.BaseURL, r.Bucket, key, q)
	}
	return fmt.Sprintf("%s/types/%s/buckets/%s/keys/%s%s", r.BaseURL, r.BucketType, r.Bucket, key, q)
}

func (r *Riak) Get(ctx context.Context, tile *Tile) (Result, error) {
	pc, err := r.Pool.Acquire(ctx)
	if err != nil {
		return Failure, apperr.BackendFatal(err, "riak cache %q: acquire", r.CacheName)
	}
	defer pc.Release()

	var data []byte
	miss := false
	opErr := WithRetry(ctx, r.Logger, "riak:"+r.CacheName, pc, r.reconnect, func(client *http.Client) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.objectURL(tile.Key()), nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			miss = true
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("riak GET %s: unexpected status %d", tile.Key(), resp.StatusCode)
		}
		data, err = io.ReadAll(resp.Body)
		return err
	})
	if opErr != nil {
		return Failure, opErr
	}
	if miss {
		return Miss, nil
	}
	tile.EncodedData = data
	tile.MTime = time.Now().UTC()
	return Success, nil
}

func (r *Riak) Set(ctx context.Context, tile *Tile) error {
	if tile.EncodedData == nil {
		return apperr.New(apperr.KindInternal, 500, "riak cache %q: tile has no encoded data", r.CacheName)
	}
	pc, err := r.Pool.Acquire(ctx)
	if err != nil {
		return apperr.BackendFatal(err, "riak cache %q: acquire", r.CacheName)
	}
	defer pc.Release()

	return WithRetry(ctx, r.Logger, "riak:"+r.CacheName, pc, r.reconnect, func(client *http.Client) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.objectURL(tile.Key()), bytes.NewReader(tile.EncodedData))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("riak PUT %s: unexpected status %d", tile.Key(), resp.StatusCode)
		}
		return nil
	})
}

// Exists issues a HEAD request, as spec.md's cache contract requires a
// no-body existence probe; the original's riack client has no such call, so
// this is a Go-native enhancement rather than a straight C port.
func (r *Riak) Exists(ctx context.Context, tile *Tile) (bool, error) {
	pc, err := r.Pool.Acquire(ctx)
	if err != nil {
		return false, apperr.BackendFatal(err, "riak cache %q: acquire", r.CacheName)
	}
	defer pc.Release()

	found := false
	opErr := WithRetry(ctx, r.Logger, "riak:"+r.CacheName, pc, r.reconnect, func(client *http.Client) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.objectURL(tile.Key()), nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		found = resp.StatusCode == http.StatusOK
		return nil
	})
	return found, opErr
}

// Delete is idempotent: a 404 from riak counts as success.
func (r *Riak) Delete(ctx context.Context, tile *Tile) error {
	pc, err := r.Pool.Acquire(ctx)
	if err != nil {
		return apperr.BackendFatal(err, "riak cache %q: acquire", r.CacheName)
	}
	defer pc.Release()

	return WithRetry(ctx, r.Logger, "riak:"+r.CacheName, pc, r.reconnect, func(client *http.Client) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, r.objectURL(tile.Key()), nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
			return fmt.Errorf("riak DELETE %s: unexpected status %d", tile.Key(), resp.StatusCode)
		}
		return nil
	})
}

func (r *Riak) MultiSet(ctx context.Context, tiles []*Tile) error {
	return DefaultMultiSet(ctx, r, tiles)
}

func (r *Riak) reconnect(ctx context.Context, old *http.Client) (*http.Client, error) {
	return old, nil
}
