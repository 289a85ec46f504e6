package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mapcache-go/mapcache/internal/config"
	"github.com/mapcache-go/mapcache/internal/pool"
)

var validateCmd = &cobra.Command{
	Use:   "validate-config <path>",
	Short: "Parse and build a mapcache config file without serving it",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("validate-config: open %q: %w", path, err)
	}
	defer f.Close()

	doc, err := config.Parse(f)
	if err != nil {
		return fmt.Errorf("validate-config: %w", err)
	}

	srv, err := config.Build(context.Background(), doc, pool.DefaultConfig(), nil, logger)
	if err != nil {
		return fmt.Errorf("validate-config: %w", err)
	}

	fmt.Printf("%s: OK (%d grids, %d caches, %d sources, %d tilesets)\n",
		path, len(srv.Grids), len(srv.Caches), len(srv.Sources), len(srv.Tilesets))
	for name, ts := range srv.Tilesets {
		fmt.Printf("  tileset %-20s format=%-10s metatile=%dx%d\n", name, ts.Format, ts.MetaSize.W, ts.MetaSize.H)
	}
	return nil
}
