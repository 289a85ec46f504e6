package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mapcache-go/mapcache/internal/cache"
	"github.com/mapcache-go/mapcache/internal/config"
	"github.com/mapcache-go/mapcache/internal/metatile"
	"github.com/mapcache-go/mapcache/internal/pool"
	"github.com/mapcache-go/mapcache/internal/tile"
	"github.com/mapcache-go/mapcache/internal/worker"
)

var seedCmd = &cobra.Command{
	Use:   "seed <config>",
	Short: "Pre-render every metatile covering a bbox/zoom range into a tileset's cache",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().String("tileset", "", "Tileset name to seed (required)")
	seedCmd.Flags().String("grid", "", "Grid name to seed (required)")
	seedCmd.Flags().Float64Slice("bbox", []float64{-180, -85, 180, 85}, "minLon,minLat,maxLon,maxLat (WGS84)")
	seedCmd.Flags().Int("from-zoom", 0, "Minimum zoom level")
	seedCmd.Flags().Int("to-zoom", 5, "Maximum zoom level")
	seedCmd.Flags().Int("workers", 4, "Parallel metatile renders")

	mustBind := func(key, name string) {
		if err := viper.BindPFlag(key, seedCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}
	mustBind("seed.tileset", "tileset")
	mustBind("seed.grid", "grid")
	mustBind("seed.from_zoom", "from-zoom")
	mustBind("seed.to_zoom", "to-zoom")
	mustBind("seed.workers", "workers")
}

// metaGenerator adapts a metatile.Assembler to worker.Generator, rendering
// and caching every child tile of the metatile it's given.
type metaGenerator struct {
	asm      *metatile.Assembler
	tileset  string
	grid     string
	metaSize tile.MetaSize
}

func (g *metaGenerator) Generate(ctx context.Context, mc tile.MetaCoords, dimensions map[string]string) error {
	tiles := make([]*cache.Tile, 0, g.metaSize.W*g.metaSize.H)
	for ty := 0; ty < g.metaSize.H; ty++ {
		for tx := 0; tx < g.metaSize.W; tx++ {
			tiles = append(tiles, &cache.Tile{
				Tileset:    g.tileset,
				Grid:       g.grid,
				Z:          int(mc.Z),
				X:          int(mc.MX)*g.metaSize.W + tx,
				Y:          int(mc.MY)*g.metaSize.H + ty,
				Dimensions: dimensions,
			})
		}
	}
	_, err := g.asm.EnsureTiles(ctx, mc, tiles, dimensions)
	return err
}

func runSeed(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	path := args[0]
	tilesetName := viper.GetString("seed.tileset")
	gridName := viper.GetString("seed.grid")
	if tilesetName == "" || gridName == "" {
		return fmt.Errorf("seed: --tileset and --grid are required")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("seed: open %q: %w", path, err)
	}
	doc, err := config.Parse(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	srv, err := config.Build(context.Background(), doc, pool.DefaultConfig(), nil, logger)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	ts, ok := srv.Tilesets[tilesetName]
	if !ok {
		return fmt.Errorf("seed: unknown tileset %q", tilesetName)
	}
	gl := ts.FindGrid(gridName)
	if gl == nil {
		return fmt.Errorf("seed: tileset %q does not serve grid %q", tilesetName, gridName)
	}

	bbox, err := cmd.Flags().GetFloat64Slice("bbox")
	if err != nil || len(bbox) != 4 {
		return fmt.Errorf("seed: --bbox requires exactly 4 values")
	}
	fromZoom := viper.GetInt("seed.from_zoom")
	toZoom := viper.GetInt("seed.to_zoom")
	if fromZoom < gl.MinZ {
		fromZoom = gl.MinZ
	}
	if toZoom > gl.MaxZ {
		toZoom = gl.MaxZ
	}
	if fromZoom > toZoom {
		return fmt.Errorf("seed: effective zoom range is empty after clamping to [%d,%d]", gl.MinZ, gl.MaxZ)
	}

	coords := tile.TilesInBBox([4]float64{bbox[0], bbox[1], bbox[2], bbox[3]}, fromZoom, toZoom)

	seen := make(map[tile.MetaCoords]bool)
	tasks := make([]worker.Task, 0, len(coords))
	dims := ts.DimensionDefaults()
	for _, c := range coords {
		mc := c.Meta(ts.MetaSize)
		if seen[mc] {
			continue
		}
		seen[mc] = true
		tasks = append(tasks, worker.Task{Meta: mc, Dimensions: dims})
	}

	asm := &metatile.Assembler{
		Tileset:    ts.Name,
		Grid:       gl.Grid,
		Cache:      ts.Cache,
		Source:     ts.Source,
		Locker:     srv.DefaultLocker,
		MetaSize:   ts.MetaSize,
		MetaBuffer: ts.MetaBuffer,
		Format:     ts.Format,
		Logger:     logger,
	}
	gen := &metaGenerator{asm: asm, tileset: ts.Name, grid: gl.Grid.Name, metaSize: ts.MetaSize}

	progress := worker.NewProgress(len(tasks), true)
	wp := worker.New(worker.Config{
		Workers:    viper.GetInt("seed.workers"),
		Generator:  gen,
		OnProgress: progress.Callback(),
	})

	logger.Info("seed: starting", "tileset", tilesetName, "grid", gridName, "metatiles", len(tasks), "zoom", fmt.Sprintf("%d-%d", fromZoom, toZoom))
	results := wp.Run(context.Background(), tasks)
	progress.Done()

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			logger.Error("seed: metatile render failed", "meta", r.Task.Meta, "error", r.Err)
		}
	}
	fmt.Println(progress.Summary())
	if failed > 0 {
		return fmt.Errorf("seed: %d/%d metatiles failed", failed, len(tasks))
	}
	return nil
}
