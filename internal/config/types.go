package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mapcache-go/mapcache/internal/grid"
)

// ParseGrid converts a <grid> element into a live grid.Grid, computing
// TileWidth/TileHeight from "size" ("256 256") and Resolutions from the
// space-separated list.
func ParseGrid(gx GridXML) (*grid.Grid, error) {
	w, h, err := parseIntPair(gx.Size)
	if err != nil {
		return nil, fmt.Errorf("config: grid %q: bad size %q: %w", gx.Name, gx.Size, err)
	}

	ox, oy, err := parseFloatPair(gx.Origin)
	if err != nil {
		return nil, fmt.Errorf("config: grid %q: bad origin %q: %w", gx.Name, gx.Origin, err)
	}

	ext, err := parseExtent(gx.Extent)
	if err != nil {
		return nil, fmt.Errorf("config: grid %q: bad extent %q: %w", gx.Name, gx.Extent, err)
	}

	resolutions, err := parseFloats(gx.Resolutions)
	if err != nil {
		return nil, fmt.Errorf("config: grid %q: bad resolutions: %w", gx.Name, err)
	}

	return &grid.Grid{
		Name:        gx.Name,
		SRS:         gx.SRS,
		Units:       grid.Units(gx.Units),
		TileWidth:   w,
		TileHeight:  h,
		OriginX:     ox,
		OriginY:     oy,
		Extent:      ext,
		Resolutions: resolutions,
	}, nil
}

func parseIntPair(s string) (int, int, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected two values, got %q", s)
	}
	a, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func parseFloatPair(s string) (float64, float64, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected two values, got %q", s)
	}
	a, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func parseExtent(s string) (grid.Extent, error) {
	parts := strings.Fields(s)
	if len(parts) != 4 {
		return grid.Extent{}, fmt.Errorf("expected four values, got %q", s)
	}
	var e grid.Extent
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return grid.Extent{}, err
		}
		e[i] = v
	}
	return e, nil
}

func parseFloats(s string) ([]float64, error) {
	parts := strings.Fields(s)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseMetaSize parses a tileset's "WxH" <metatile> value.
func ParseMetaSize(s string) (w, h int, err error) {
	parts := strings.Split(s, "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("config: bad metatile size %q, want WxH", s)
	}
	w, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	h, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

// LegacyLockerTimeout is the fixed 120s timeout spec.md §6 assigns to a
// disk locker synthesized from legacy root-level <lock_dir>/<lock_retry>.
const LegacyLockerTimeout = 120 * time.Second

// LegacyLockRetryInterval converts the legacy <lock_retry> microseconds
// value into a time.Duration.
func LegacyLockRetryInterval(microseconds int64) time.Duration {
	return time.Duration(microseconds) * time.Microsecond
}
