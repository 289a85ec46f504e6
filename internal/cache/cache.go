// Package cache implements the uniform tile cache contract of spec.md §4.1
// and its multi-tier composite, along with concrete backends (disk, SQLite,
// memcache, redis, S3, riak).
package cache

import (
	"context"
	"sort"
	"strconv"
	"time"
)

// Result is the outcome of Get/Exists.
type Result int

const (
	Miss Result = iota
	Success
	Failure
)

// Tile is the unit of work every cache backend stores and retrieves. It
// mirrors spec.md §3's Tile entity; EncodedData XOR RawImage (or both) must
// hold once the pipeline has materialized whichever was missing.
type Tile struct {
	Tileset    string
	Grid       string
	Z, X, Y    int
	Dimensions map[string]string // ordered key->value; see DimensionKey

	EncodedData []byte
	RawImage    []byte // decoded pixels, format-agnostic; optional

	MTime         time.Time
	Expires       time.Time
	NoData        bool
	AllowRedirect bool
}

// DimensionKey renders Dimensions in a stable, sorted order so that cache
// keys are deterministic regardless of map iteration order.
func (t *Tile) DimensionKey() string {
	if len(t.Dimensions) == 0 {
		return ""
	}
	keys := make([]string, 0, len(t.Dimensions))
	for k := range t.Dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]byte, 0, 32)
	for _, k := range keys {
		out = append(out, k...)
		out = append(out, '=')
		out = append(out, t.Dimensions[k]...)
		out = append(out, '&')
	}
	return string(out)
}

// Key returns the canonical cache key for a tile: every backend that keys
// by a flat string (memcache/redis/s3/riak) should use this so tiles are
// addressable consistently across backend types (required for multi-tier
// back-fill to make sense).
func (t *Tile) Key() string {
	dim := t.DimensionKey()
	if dim == "" {
		return joinKey(t.Tileset, t.Grid, t.Z, t.X, t.Y)
	}
	return joinKey(t.Tileset, t.Grid, t.Z, t.X, t.Y) + "#" + dim
}

func joinKey(tileset, grid string, z, x, y int) string {
	b := make([]byte, 0, len(tileset)+len(grid)+24)
	b = append(b, tileset...)
	b = append(b, '/')
	b = append(b, grid...)
	b = append(b, '/')
	b = strconv.AppendInt(b, int64(z), 10)
	b = append(b, '/')
	b = strconv.AppendInt(b, int64(x), 10)
	b = append(b, '/')
	b = strconv.AppendInt(b, int64(y), 10)
	return string(b)
}

// Cache is the contract every backend (and the multi-tier composite)
// implements, per spec.md §4.1.
type Cache interface {
	Name() string
	// Get fills tile.EncodedData (and tile.MTime if available) on Success.
	Get(ctx context.Context, tile *Tile) (Result, error)
	// Set requires tile.EncodedData to be present; may return a
	// *apperr.Error with KindBackendFatal/KindBackendTransient.
	Set(ctx context.Context, tile *Tile) error
	Exists(ctx context.Context, tile *Tile) (bool, error)
	// Delete is idempotent: deleting an absent tile is not an error.
	Delete(ctx context.Context, tile *Tile) error
	// MultiSet need not be atomic across tiles; a naive loop is a valid
	// implementation (and is what DefaultMultiSet provides).
	MultiSet(ctx context.Context, tiles []*Tile) error
}

// DefaultMultiSet is the "implementers may loop" fallback spec.md §4.1
// explicitly allows, for backends with no native batch API.
func DefaultMultiSet(ctx context.Context, c Cache, tiles []*Tile) error {
	for _, t := range tiles {
		if err := c.Set(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
