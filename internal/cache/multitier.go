package cache

import (
	"context"
	"log/slog"
)

// MultiTier is the composite cache of spec.md §4.1, grounded line-for-line
// on original_source/lib/cache_multitier.c: probe children 0..N in order,
// back-fill strictly from the hit index down to 0 on a miss-then-hit,
// write only to WriteCacheIdx, and fan delete out to every child while
// swallowing per-child errors.
type MultiTier struct {
	CacheName     string
	Children      []Cache
	WriteCacheIdx int
	Logger        *slog.Logger
}

// NewMultiTier builds a MultiTier whose single write target is
// children[writeIdx]; writeIdx is not range-checked. Pass writeIdx = -1 to mean "default to the last
// child", matching the XML-config default spec.md §3 describes.
func NewMultiTier(name string, children []Cache, writeIdx int, logger *slog.Logger) *MultiTier {
	if writeIdx < 0 {
		writeIdx = len(children) - 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiTier{CacheName: name, Children: children, WriteCacheIdx: writeIdx, Logger: logger}
}

func (m *MultiTier) Name() string { return m.CacheName }

// Get probes the first child; on CACHE_MISS, probes children 1..N in
// order. On the first hit at index k, back-fills children k-1..0 (in that
// order, per Open Question (iii): "reversing would be a mistake"). Back-fill
// errors are swallowed — they are an optimisation, not a correctness
// requirement.
func (m *MultiTier) Get(ctx context.Context, tile *Tile) (Result, error) {
	if len(m.Children) == 0 {
		return Miss, nil
	}

	result, err := m.Children[0].Get(ctx, tile)
	if result != Miss {
		return result, err
	}

	for i := 1; i < len(m.Children); i++ {
		result, err = m.Children[i].Get(ctx, tile)
		if err != nil {
			return Failure, err
		}
		if result == Success {
			m.Logger.Debug("multitier: hit on secondary cache", "cache", m.CacheName, "tier", m.Children[i].Name(), "tileset", tile.Tileset, "z", tile.Z, "x", tile.X, "y", tile.Y)
			for j := i - 1; j >= 0; j-- {
				if setErr := m.Children[j].Set(ctx, tile); setErr != nil {
					m.Logger.Debug("multitier: back-fill failed, ignoring", "cache", m.CacheName, "tier", m.Children[j].Name(), "error", setErr)
				} else {
					m.Logger.Debug("multitier: transferred tile to tier", "cache", m.CacheName, "tier", m.Children[j].Name(), "tileset", tile.Tileset, "z", tile.Z, "x", tile.X, "y", tile.Y)
				}
			}
			return Success, nil
		}
	}
	return Miss, nil
}

// Set writes to WriteCacheIdx only.
func (m *MultiTier) Set(ctx context.Context, tile *Tile) error {
	return m.Children[m.WriteCacheIdx].Set(ctx, tile)
}

// MultiSet writes to WriteCacheIdx only, using its native batch API if it
// has one.
func (m *MultiTier) MultiSet(ctx context.Context, tiles []*Tile) error {
	return m.Children[m.WriteCacheIdx].MultiSet(ctx, tiles)
}

// Exists returns TRUE if any child returns TRUE.
func (m *MultiTier) Exists(ctx context.Context, tile *Tile) (bool, error) {
	for _, child := range m.Children {
		ok, err := child.Exists(ctx, tile)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Delete calls delete on every child, swallowing per-child errors (a
// backend that never had the tile is not an error either way).
func (m *MultiTier) Delete(ctx context.Context, tile *Tile) error {
	for _, child := range m.Children {
		if err := child.Delete(ctx, tile); err != nil {
			m.Logger.Debug("multitier: delete failed on tier, ignoring", "cache", m.CacheName, "tier", child.Name(), "error", err)
		}
	}
	return nil
}
