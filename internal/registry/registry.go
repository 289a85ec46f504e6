// Package registry implements the Endpoint Registry of spec.md §2.9: a
// mapping from URL prefix ("alias") to a parsed configuration and a
// connection pool, multi-tenant within one process.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mapcache-go/mapcache/internal/config"
	"github.com/mapcache-go/mapcache/internal/pool"
	"github.com/mapcache-go/mapcache/internal/proxy"
)

// AliasEntry binds one URL prefix to a built Server configuration, per
// spec.md §3's AliasEntry entity. Several AliasEntrys may point at the
// same *config.Server (when their <endpoint> elements name the same
// config path) — that shared pointer is what realizes
// ConnectionPoolSharing at the process level: every cache inside a shared
// *config.Server keeps the pooled connections it was built with, so N
// aliases hitting the same backend reuse one pool instead of N.
type AliasEntry struct {
	Prefix string
	Server *config.Server
	Proxy  *proxy.Proxy // non-nil only for PROXY-typed aliases
}

// Registry is the process-wide, multi-tenant map from URL prefix to
// AliasEntry. Built once at startup from the server-scope configuration
// (spec.md §6); read-only after that, per spec.md §5's "configuration is
// read-only after post_config".
type Registry struct {
	Pools *pool.Registry

	mu      sync.RWMutex
	entries []AliasEntry // longest-prefix-first, for unambiguous matching
	byPath  map[string]*config.Server
}

// New creates an empty Registry. pools is the pool registry (with its
// sharing flag) that LoadAlias hands to config.Build; pool sizing comes
// from the poolCfg passed to LoadAlias.
func New(pools *pool.Registry) *Registry {
	return &Registry{Pools: pools, byPath: make(map[string]*config.Server)}
}

// LoadAlias parses and builds the config document at path (memoized by
// path, so two aliases naming the same file share one *config.Server and
// therefore one set of backend connection pools), then registers it under
// prefix.
func (r *Registry) LoadAlias(ctx context.Context, prefix, path string, poolCfg pool.Config, logger *slog.Logger) error {
	r.mu.Lock()
	srv, ok := r.byPath[path]
	r.mu.Unlock()

	if !ok {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("registry: open config %q: %w", path, err)
		}
		doc, err := config.Parse(f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("registry: parse config %q: %w", path, err)
		}
		srv, err = config.Build(ctx, doc, poolCfg, r.Pools, logger)
		if err != nil {
			return fmt.Errorf("registry: build config %q: %w", path, err)
		}
		r.mu.Lock()
		r.byPath[path] = srv
		r.mu.Unlock()
	}

	return r.Register(prefix, srv)
}

// Register adds an alias entry directly, for callers (LoadAlias, tests)
// that already have a built *config.Server.
func (r *Registry) Register(prefix string, srv *config.Server) error {
	prefix = normalizePrefix(prefix)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Prefix == prefix {
			return fmt.Errorf("registry: prefix %q already registered", prefix)
		}
	}
	r.entries = append(r.entries, AliasEntry{Prefix: prefix, Server: srv})
	// Longest prefix first so Match finds the most specific alias when
	// prefixes nest (e.g. "/a" and "/a/b").
	sortByPrefixLengthDesc(r.entries)
	return nil
}

// RegisterProxy adds a PROXY-typed alias (spec.md §2.9/§4.4): requests
// under prefix are forwarded wholesale to rule.Upstream rather than
// dispatched to the tile pipeline.
func (r *Registry) RegisterProxy(prefix string, rule proxy.Rule) error {
	prefix = normalizePrefix(prefix)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Prefix == prefix {
			return fmt.Errorf("registry: prefix %q already registered", prefix)
		}
	}
	r.entries = append(r.entries, AliasEntry{Prefix: prefix, Proxy: proxy.New(rule)})
	sortByPrefixLengthDesc(r.entries)
	return nil
}

// Match finds the alias whose prefix matches urlPath, returning the entry
// and the remainder of the path after the prefix. It is the first step of
// spec.md §2's control flow: "endpoint match → dispatch to service parser".
func (r *Registry) Match(urlPath string) (AliasEntry, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.Prefix == "/" {
			return e, strings.TrimPrefix(urlPath, "/"), true
		}
		if urlPath == e.Prefix {
			return e, "", true
		}
		if strings.HasPrefix(urlPath, e.Prefix+"/") {
			return e, strings.TrimPrefix(urlPath, e.Prefix+"/"), true
		}
	}
	return AliasEntry{}, "", false
}

func normalizePrefix(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimSuffix(p, "/")
}

func sortByPrefixLengthDesc(entries []AliasEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && len(entries[j].Prefix) > len(entries[j-1].Prefix); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
