package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mapcache-go/mapcache/internal/apperr"
)

// Disk is the simplest Cache implementer: one file per tile underneath a
// root directory, mirroring the layout the teacher's on-demand tile server
// already serves via http.ServeFile (internal/server/ondemand_tiles.go).
// The I/O itself is intentionally undramatic — spec.md §1 treats individual
// backend I/O as "just a concrete implementer of the cache contract".
type Disk struct {
	CacheName string
	Root      string
}

func NewDisk(name, root string) *Disk {
	return &Disk{CacheName: name, Root: root}
}

func (d *Disk) Name() string { return d.CacheName }

func (d *Disk) path(tile *Tile) string {
	key := tile.Key()
	return filepath.Join(d.Root, key+".bin")
}

func (d *Disk) Get(ctx context.Context, tile *Tile) (Result, error) {
	p := d.path(tile)
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return Miss, nil
		}
		return Failure, apperr.BackendFatal(err, "disk cache %q: read %s", d.CacheName, p)
	}
	st, err := os.Stat(p)
	if err == nil {
		tile.MTime = st.ModTime()
	}
	tile.EncodedData = data
	return Success, nil
}

func (d *Disk) Set(ctx context.Context, tile *Tile) error {
	if tile.EncodedData == nil {
		return apperr.New(apperr.KindInternal, 500, "disk cache %q: tile has no encoded data", d.CacheName)
	}
	p := d.path(tile)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return apperr.BackendFatal(err, "disk cache %q: mkdir for %s", d.CacheName, p)
	}
	tmp := p + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, tile.EncodedData, 0o644); err != nil {
		return apperr.BackendFatal(err, "disk cache %q: write %s", d.CacheName, tmp)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return apperr.BackendFatal(err, "disk cache %q: rename into place %s", d.CacheName, p)
	}
	return nil
}

func (d *Disk) Exists(ctx context.Context, tile *Tile) (bool, error) {
	_, err := os.Stat(d.path(tile))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, apperr.BackendFatal(err, "disk cache %q: stat", d.CacheName)
}

func (d *Disk) Delete(ctx context.Context, tile *Tile) error {
	err := os.Remove(d.path(tile))
	if err != nil && !os.IsNotExist(err) {
		return apperr.BackendFatal(err, "disk cache %q: delete", d.CacheName)
	}
	return nil
}

func (d *Disk) MultiSet(ctx context.Context, tiles []*Tile) error {
	return DefaultMultiSet(ctx, d, tiles)
}
