package tile

import (
	"sort"
	"strconv"
	"strings"
)

// MetaSize is the metatile expansion factor: metasize.w x metasize.h tiles
// per render, per spec.md §4.5.
type MetaSize struct {
	W, H int
}

// MetaCoords is the integer metatile origin a tile coordinate maps to. The
// tile→metatile mapping is a lossy integer division and is deterministic,
// per spec.md §3's invariant.
type MetaCoords struct {
	Z      uint32
	MX, MY uint32
}

// Meta computes the metatile this coordinate belongs to for the given
// expansion factor.
func (c Coords) Meta(size MetaSize) MetaCoords {
	w, h := uint32(size.W), uint32(size.H)
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}
	return MetaCoords{Z: c.Z, MX: c.X / w, MY: c.Y / h}
}

// MetaKey builds the metatile lock key spec.md §4.4 step 3 describes:
// (tileset, grid, z, mx, my, dimensions). It is sanitised downstream by
// whichever locker implementation consumes it (see internal/lock).
func MetaKey(tileset, grid string, mc MetaCoords, dimensions map[string]string) string {
	var b strings.Builder
	b.WriteString(tileset)
	b.WriteByte('/')
	b.WriteString(grid)
	b.WriteByte('/')
	b.WriteString(strconv.FormatUint(uint64(mc.Z), 10))
	b.WriteByte('/')
	b.WriteString(strconv.FormatUint(uint64(mc.MX), 10))
	b.WriteByte('/')
	b.WriteString(strconv.FormatUint(uint64(mc.MY), 10))
	if len(dimensions) > 0 {
		b.WriteByte('/')
		b.WriteString(DimensionsKey(dimensions))
	}
	return b.String()
}

// DimensionsKey renders a dimensions map in stable sorted order, so the same
// dimension set always produces the same key regardless of map iteration
// order (mirrors internal/cache.Tile.DimensionKey, but used wherever only
// the raw map is in hand, e.g. metatile assembly before a Tile exists).
func DimensionsKey(dimensions map[string]string) string {
	if len(dimensions) == 0 {
		return ""
	}
	keys := make([]string, 0, len(dimensions))
	for k := range dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(dimensions[k])
	}
	return b.String()
}
