package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mapcache-go/mapcache/internal/cache"
	"github.com/mapcache-go/mapcache/internal/grid"
	"github.com/mapcache-go/mapcache/internal/lock"
	"github.com/mapcache-go/mapcache/internal/pool"
	"github.com/mapcache-go/mapcache/internal/source"
	"github.com/mapcache-go/mapcache/internal/tile"
	"github.com/mapcache-go/mapcache/internal/tileset"
)

// Server is the fully wired, process-lifetime result of Build: every grid,
// cache, locker, source, and tileset the <mapcache> document named, ready
// for the endpoint registry to bind to a URL prefix (spec.md §2.9).
type Server struct {
	Grids    map[string]*grid.Grid
	Caches   map[string]cache.Cache
	Lockers  map[string]lock.Locker
	Sources  map[string]source.Source
	Tilesets map[string]*tileset.Tileset

	// DefaultLocker is used by any tileset that does not name its own
	// locker explicitly, and is also what the legacy <lock_dir>/<lock_retry>
	// root-level keys (spec.md §6) produce.
	DefaultLocker lock.Locker
}

// Build wires a parsed Document into live, process-lifetime objects.
// poolCfg supplies the server-scope ConnectionPool* defaults of spec.md §6
// (ConnectionPoolMin/SMax/HMax/TTL) for every networked cache backend's
// internal connection pool. ConnectionPoolSharing (spec.md §6) is realized
// two ways: two aliases whose <endpoint> elements name the same config path
// share the single *Server (and therefore every cache's pool) this function
// returns, one level up in the endpoint registry; and, when poolReg is
// non-nil with Sharing enabled, two caches in *different* configs that name
// the identical backend (same servers/addr/baseURL) are routed through
// pool.Shared onto the same underlying *pool.Pool, via the per-backend-type
// constructors in internal/cache. poolReg may be nil, in which case every
// networked cache backend gets its own unshared pool.
func Build(ctx context.Context, doc *Document, poolCfg pool.Config, poolReg *pool.Registry, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	srv := &Server{
		Grids:    make(map[string]*grid.Grid, len(doc.Grids)),
		Caches:   make(map[string]cache.Cache, len(doc.Caches)),
		Lockers:  make(map[string]lock.Locker, len(doc.Lockers)),
		Sources:  make(map[string]source.Source, len(doc.Sources)),
		Tilesets: make(map[string]*tileset.Tileset, len(doc.Tilesets)),
	}

	for _, gx := range doc.Grids {
		g, err := ParseGrid(gx)
		if err != nil {
			return nil, err
		}
		srv.Grids[g.Name] = g
	}
	// WebMercator is always available even if the document doesn't declare
	// it, mirroring the original's built-in default grid.
	if _, ok := srv.Grids["WebMercator"]; !ok {
		srv.Grids["WebMercator"] = grid.WebMercator()
	}

	for _, sx := range doc.Sources {
		s, err := buildSource(sx)
		if err != nil {
			return nil, err
		}
		srv.Sources[sx.Name] = s
	}

	if err := buildLockers(doc, srv, logger); err != nil {
		return nil, err
	}

	// Caches are built in two passes because a multi-tier cache's children
	// are references by name to caches that may be declared later in
	// document order.
	simple := make(map[string]bool, len(doc.Caches))
	for _, cx := range doc.Caches {
		if cx.Type == "multitier" {
			continue
		}
		c, err := buildSimpleCache(ctx, cx, poolCfg, poolReg, logger)
		if err != nil {
			return nil, err
		}
		srv.Caches[cx.Name] = c
		simple[cx.Name] = true
	}
	for _, cx := range doc.Caches {
		if cx.Type != "multitier" {
			continue
		}
		c, err := buildMultiTier(cx, srv, logger)
		if err != nil {
			return nil, err
		}
		srv.Caches[cx.Name] = c
	}

	for _, tx := range doc.Tilesets {
		ts, err := buildTileset(tx, srv)
		if err != nil {
			return nil, err
		}
		srv.Tilesets[tx.Name] = ts
	}

	return srv, nil
}

func buildSource(sx SourceXML) (source.Source, error) {
	switch sx.Type {
	case "", "demo":
		return source.NewDemoSource(), nil
	case "wms", "wmts":
		return source.NewWMSSource(sx.Name, sx.GetMap, sx.Layers, sx.Params), nil
	default:
		return nil, fmt.Errorf("config: source %q: unknown type %q", sx.Name, sx.Type)
	}
}

func buildLockers(doc *Document, srv *Server, logger *slog.Logger) error {
	for _, lx := range doc.Lockers {
		l, err := buildLocker(lx, logger)
		if err != nil {
			return err
		}
		// Lockers aren't named in the XML schema beyond their position;
		// keyed here by type so a tileset config can ask for "the disk
		// locker" etc. The first declared locker also becomes the default.
		srv.Lockers[lx.Type] = l
		if srv.DefaultLocker == nil {
			srv.DefaultLocker = l
		}
	}

	if doc.LegacyLockDir != "" {
		retry := LegacyLockRetryInterval(doc.LegacyLockRetry)
		if retry <= 0 {
			retry = time.Second
		}
		legacy := lock.NewDiskLocker(doc.LegacyLockDir, retry, LegacyLockerTimeout)
		srv.Lockers["legacy-disk"] = legacy
		if srv.DefaultLocker == nil {
			srv.DefaultLocker = legacy
		}
	}

	if srv.DefaultLocker == nil {
		// Always have a working locker so a minimal config can still
		// collapse concurrent misses; spec.md §4.3's disk locker is the
		// simplest variant and needs no external service.
		srv.DefaultLocker = lock.NewDiskLocker("/tmp/mapcache-locks", time.Second, 120*time.Second)
	}

	return nil
}

func buildLocker(lx LockerXML, logger *slog.Logger) (lock.Locker, error) {
	retry := time.Duration(lx.Retry * float64(time.Second))
	timeout := time.Duration(lx.Timeout * float64(time.Second))

	switch lx.Type {
	case "disk":
		if lx.Directory == "" {
			return nil, fmt.Errorf("config: disk locker: <directory> required")
		}
		return lock.NewDiskLocker(lx.Directory, retry, timeout), nil
	case "memcache":
		servers := make([]string, 0, len(lx.Servers))
		for _, s := range lx.Servers {
			servers = append(servers, fmt.Sprintf("%s:%d", s.Host, s.Port))
		}
		if len(servers) == 0 {
			return nil, fmt.Errorf("config: memcache locker: at least one <server> required")
		}
		return lock.NewMemcacheLocker(servers, lx.KeyPrefix, retry, timeout), nil
	case "fallback":
		children := make([]lock.Locker, 0, len(lx.Lockers))
		for _, child := range lx.Lockers {
			cl, err := buildLocker(child, logger)
			if err != nil {
				return nil, err
			}
			children = append(children, cl)
		}
		if len(children) == 0 {
			return nil, fmt.Errorf("config: fallback locker: at least one nested <locker> required")
		}
		return lock.NewFallbackLocker(children, retry, timeout), nil
	default:
		return nil, fmt.Errorf("config: locker: unknown type %q", lx.Type)
	}
}

func buildSimpleCache(ctx context.Context, cx CacheXML, poolCfg pool.Config, poolReg *pool.Registry, logger *slog.Logger) (cache.Cache, error) {
	expire := time.Duration(cx.Expire) * time.Second

	switch cx.Type {
	case "disk":
		if cx.Path == "" {
			return nil, fmt.Errorf("config: disk cache %q: <path> required", cx.Name)
		}
		return cache.NewDisk(cx.Name, cx.Path), nil
	case "sqlite":
		if cx.Path == "" {
			return nil, fmt.Errorf("config: sqlite cache %q: <path> required", cx.Name)
		}
		return cache.NewSQLite(cx.Name, cx.Path)
	case "memcache":
		servers := make([]string, 0, len(cx.Servers))
		for _, s := range cx.Servers {
			servers = append(servers, fmt.Sprintf("%s:%d", s.Host, s.Port))
		}
		if len(servers) == 0 {
			return nil, fmt.Errorf("config: memcache cache %q: at least one <server> required", cx.Name)
		}
		return cache.NewMemcache(cx.Name, servers, poolCfg, expire, poolReg, logger), nil
	case "redis":
		if cx.Host == "" {
			return nil, fmt.Errorf("config: redis cache %q: <host> required", cx.Name)
		}
		addr := fmt.Sprintf("%s:%d", cx.Host, orDefault(cx.Port, 6379))
		return cache.NewRedis(cx.Name, addr, cx.DB, poolCfg, expire, poolReg, logger), nil
	case "s3":
		if cx.Bucket == "" {
			return nil, fmt.Errorf("config: s3 cache %q: <bucket> required", cx.Name)
		}
		return cache.NewS3(ctx, cx.Name, cx.Bucket, cx.Path, cx.Region, logger)
	case "riak":
		if len(cx.Servers) == 0 || cx.Bucket == "" {
			return nil, fmt.Errorf("config: riak cache %q: <server> and <bucket> required", cx.Name)
		}
		s := cx.Servers[0]
		baseURL := fmt.Sprintf("http://%s:%d", s.Host, orDefault(s.Port, 8098))
		return cache.NewRiak(cx.Name, baseURL, cx.Bucket, cx.BucketType, cx.Quorum, poolCfg, poolReg, logger), nil
	default:
		return nil, fmt.Errorf("config: cache %q: unknown type %q", cx.Name, cx.Type)
	}
}

// buildMultiTier resolves a <cache type="multitier"> element's <cache>
// children against already-built caches, applying the write-index
// invariant of spec.md §3: exactly one child is the write target,
// defaulting to the last child that isn't explicitly write="false".
func buildMultiTier(cx CacheXML, srv *Server, logger *slog.Logger) (cache.Cache, error) {
	children := make([]cache.Cache, 0, len(cx.Children))
	explicitWriteIdx := -1
	defaultWriteIdx := -1
	for i, childRef := range cx.Children {
		child, ok := srv.Caches[childRef.Ref]
		if !ok {
			return nil, fmt.Errorf("config: multitier cache %q: unknown child cache %q", cx.Name, childRef.Ref)
		}
		children = append(children, child)
		switch childRef.Write {
		case "true":
			explicitWriteIdx = i
		case "false":
			// explicit non-writer; no-op
		case "":
			// default: the *last* child without an explicit "false" wins
			defaultWriteIdx = i
		}
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("config: multitier cache %q: at least one child <cache> required", cx.Name)
	}
	writeIdx := defaultWriteIdx
	if explicitWriteIdx != -1 {
		writeIdx = explicitWriteIdx
	}
	return cache.NewMultiTier(cx.Name, children, writeIdx, logger), nil
}

func buildTileset(tx TilesetXML, srv *Server) (*tileset.Tileset, error) {
	c, ok := srv.Caches[tx.Cache]
	if !ok {
		return nil, fmt.Errorf("config: tileset %q: unknown cache %q", tx.Name, tx.Cache)
	}
	src, ok := srv.Sources[tx.Source]
	if !ok {
		// a tileset with no declared source still works against a
		// pre-seeded, read-only cache; the demo source is a safe default
		// for anything that does try to render.
		src = source.NewDemoSource()
	}

	ts := &tileset.Tileset{
		Name:       tx.Name,
		Source:     src,
		Cache:      c,
		Format:     tx.Format,
		ReadOnly:   tx.ReadOnly,
		AutoExpire: tx.AutoExpire != 0,
		Expires:    time.Duration(tx.Expires) * time.Second,
	}
	if ts.Format == "" {
		ts.Format = "image/png"
	}

	ts.MetaSize = tile.MetaSize{W: 1, H: 1}
	if tx.MetaTile != "" {
		w, h, err := ParseMetaSize(tx.MetaTile)
		if err != nil {
			return nil, fmt.Errorf("config: tileset %q: %w", tx.Name, err)
		}
		ts.MetaSize = tile.MetaSize{W: w, H: h}
	}
	ts.MetaBuffer = tx.MetaBuffer

	for _, gx := range tx.Grids {
		g, ok := srv.Grids[gx.Name]
		if !ok {
			return nil, fmt.Errorf("config: tileset %q: unknown grid %q", tx.Name, gx.Name)
		}
		maxZ := gx.MaxZ
		if maxZ == 0 {
			maxZ = g.MaxZoom()
		}
		ts.Grids = append(ts.Grids, tileset.GridLink{Grid: g, MinZ: gx.MinZ, MaxZ: maxZ})
	}

	for _, dx := range tx.Dimensions {
		ts.Dimensions = append(ts.Dimensions, tileset.DimensionSpec{
			Name:    dx.Name,
			Default: dx.Default,
			Values:  dx.Values,
		})
	}

	return ts, nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
