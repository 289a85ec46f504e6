package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mapcache-go/mapcache/internal/pool"
	"github.com/mapcache-go/mapcache/internal/registry"
	"github.com/mapcache-go/mapcache/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve tiles over HTTP from one or more mapcache configs",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().StringArray("alias", nil,
		"prefix=config.xml binding, repeatable, e.g. --alias /demo=demo.xml --alias /prod=prod.xml")

	serveCmd.Flags().Int("pool-min", 1, "Minimum idle connections per backend pool")
	serveCmd.Flags().Int("pool-smax", 5, "Soft-max connections per backend pool")
	serveCmd.Flags().Int("pool-hmax", 20, "Hard-max connections per backend pool")
	serveCmd.Flags().Duration("pool-ttl", 5*time.Minute, "Idle connection TTL")
	serveCmd.Flags().Duration("pool-acquire-wait", 30*time.Second, "Max time Acquire blocks for a free slot")
	serveCmd.Flags().Bool("pool-sharing", true, "Share one connection pool across caches naming the same backend")

	mustBind := func(key, name string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}
	mustBind("serve.addr", "addr")
	mustBind("pool.min", "pool-min")
	mustBind("pool.smax", "pool-smax")
	mustBind("pool.hmax", "pool-hmax")
	mustBind("pool.ttl", "pool-ttl")
	mustBind("pool.acquire_wait", "pool-acquire-wait")
	mustBind("pool.sharing", "pool-sharing")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	rawAliases, err := cmd.Flags().GetStringArray("alias")
	if err != nil {
		return err
	}
	if len(rawAliases) == 0 {
		return fmt.Errorf("serve: at least one --alias prefix=config.xml is required")
	}
	aliases := make(map[string]string, len(rawAliases))
	for _, raw := range rawAliases {
		prefix, path, ok := strings.Cut(raw, "=")
		if !ok || prefix == "" || path == "" {
			return fmt.Errorf("serve: --alias %q: want prefix=config.xml", raw)
		}
		aliases[prefix] = path
	}

	poolCfg := pool.Config{
		Min:         viper.GetInt("pool.min"),
		SoftMax:     viper.GetInt("pool.smax"),
		HardMax:     viper.GetInt("pool.hmax"),
		TTL:         viper.GetDuration("pool.ttl"),
		AcquireWait: viper.GetDuration("pool.acquire_wait"),
	}

	reg := registry.New(pool.NewRegistry(viper.GetBool("pool.sharing")))
	ctx := context.Background()
	for prefix, path := range aliases {
		if err := reg.LoadAlias(ctx, prefix, path, poolCfg, logger); err != nil {
			return err
		}
		logger.Info("serve: registered alias", "prefix", prefix, "config", path)
	}

	addr := viper.GetString("serve.addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(reg, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("mapcached listening", "addr", addr, "aliases", len(aliases))
	return srv.ListenAndServe()
}
