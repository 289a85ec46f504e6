package tile

import "testing"

func TestNewCoords(t *testing.T) {
	c := NewCoords(13, 4297, 2754)
	if c.Z != 13 || c.X != 4297 || c.Y != 2754 {
		t.Errorf("NewCoords(13, 4297, 2754) = %+v", c)
	}
}

func TestTilesInBBoxSingleZoom(t *testing.T) {
	// A small bbox around Hanover, spanning a few z13 tiles.
	bbox := [4]float64{9.7, 52.35, 9.76, 52.39}
	tiles := TilesInBBox(bbox, 13, 13)

	if len(tiles) == 0 {
		t.Fatal("expected at least one tile")
	}
	for _, c := range tiles {
		if c.Z != 13 {
			t.Errorf("tile %+v has wrong zoom", c)
		}
	}
	if got, want := len(tiles), TileCount(bbox, 13, 13); got != want {
		t.Errorf("len(tiles) = %d, TileCount = %d", got, want)
	}
}

func TestTilesInBBoxMultiZoom(t *testing.T) {
	bbox := [4]float64{9.7, 52.35, 9.76, 52.39}
	tiles := TilesInBBox(bbox, 10, 12)

	byZoom := make(map[uint32]int)
	for _, c := range tiles {
		byZoom[c.Z]++
	}
	for z := uint32(10); z <= 12; z++ {
		if byZoom[z] == 0 {
			t.Errorf("zoom %d produced no tiles", z)
		}
	}
	if got, want := len(tiles), TileCount(bbox, 10, 12); got != want {
		t.Errorf("len(tiles) = %d, TileCount = %d", got, want)
	}
}

func TestTileCountMatchesGeneratedTiles(t *testing.T) {
	bbox := [4]float64{-1, -1, 1, 1}
	for _, zr := range [][2]int{{0, 0}, {2, 4}, {5, 5}} {
		count := TileCount(bbox, zr[0], zr[1])
		tiles := TilesInBBox(bbox, zr[0], zr[1])
		if count != len(tiles) {
			t.Errorf("zoom [%d,%d]: TileCount=%d, len(tiles)=%d", zr[0], zr[1], count, len(tiles))
		}
	}
}
