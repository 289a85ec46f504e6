// Package config parses the <mapcache> XML configuration document of
// spec.md §6. No XML configuration library appears anywhere in the
// retrieval pack (ezxml is C-only, part of original_source), so this is
// built on stdlib encoding/xml — the justified stdlib-only ambient
// concern this module carries.
package config

import (
	"encoding/xml"
	"fmt"
	"io"
)

// Document is the root <mapcache> element.
type Document struct {
	XMLName  xml.Name     `xml:"mapcache"`
	Caches   []CacheXML   `xml:"cache"`
	Sources  []SourceXML  `xml:"source"`
	Tilesets []TilesetXML `xml:"tileset"`
	Grids    []GridXML    `xml:"grid"`
	Lockers  []LockerXML  `xml:"locker"`
	Aliases  []AliasXML   `xml:"endpoint"`

	// Legacy root-level keys: <lock_dir> and <lock_retry> (microseconds)
	// map to a disk locker with timeout 120s, per spec.md §6.
	LegacyLockDir   string `xml:"lock_dir"`
	LegacyLockRetry int64  `xml:"lock_retry"`
}

// SourceXML is one <source type="…" name="…"> element: the WMS/WMTS
// upstream collaborator spec.md §1 treats as an external, out-of-scope
// renderer. "demo" is the only type with no upstream (a deterministic
// checkerboard, used in tests and as a stand-in renderer).
type SourceXML struct {
	Type    string            `xml:"type,attr"`
	Name    string            `xml:"name,attr"`
	GetMap  string            `xml:"getmap>url"`
	Layers  string            `xml:"getmap>params>layers"`
	Params  map[string]string `xml:"-"`
	RawParm []ParamXML        `xml:"getmap>params>param"`
}

// ParamXML is one <param name="…">value</param> static query-string
// parameter passed through to a WMS source's GetMap URL.
type ParamXML struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// AliasXML is one <endpoint prefix="…" config="…"/> binding the URL prefix
// registered for one alias to the config document that serves it, per
// spec.md §2.9 / §GLOSSARY "Alias / Endpoint". Multiple aliases may name
// the same Config path, in which case pool sharing (ConnectionPoolSharing)
// decides whether they end up with one pool.Registry or one each.
type AliasXML struct {
	Prefix string `xml:"prefix,attr"`
	Config string `xml:"config,attr"`
}

// CacheXML is one <cache type="…" name="…"> element. Child elements vary by
// type; Children carries the nested <cache> refs a multi-tier cache uses
// (each optionally write="true|false").
type CacheXML struct {
	Type string `xml:"type,attr"`
	Name string `xml:"name,attr"`

	// Backend-specific leaves, present only for the matching Type.
	Path       string        `xml:"path"`       // disk, sqlite
	Servers    []ServerXML   `xml:"server"`      // memcache, riak
	Host       string        `xml:"host"`        // redis
	Port       int           `xml:"port"`        // redis
	DB         int           `xml:"db"`          // redis
	Bucket     string        `xml:"bucket"`      // s3, riak
	BucketType string        `xml:"bucket_type"` // riak
	Region     string        `xml:"region"`      // s3
	Quorum     string        `xml:"quorum"`      // riak
	Expire     int           `xml:"expire"`       // memcache, redis: seconds

	Children []ChildCacheXML `xml:"cache"`
}

// ChildCacheXML is a <cache>name</cache> reference inside a multi-tier
// cache, optionally marked as the write target.
type ChildCacheXML struct {
	Ref   string `xml:",chardata"`
	Write string `xml:"write,attr"`
}

// ServerXML is a <server><host>…</host><port>…</port></server> child, used
// by memcache and riak cache/locker configs.
type ServerXML struct {
	Host string `xml:"host"`
	Port int    `xml:"port"`
}

// TilesetXML is one <tileset name="…"> element.
type TilesetXML struct {
	Name       string           `xml:"name,attr"`
	Source     string           `xml:"source"`
	Cache      string           `xml:"cache"`
	Grids      []TilesetGridXML `xml:"grid"`
	Format     string           `xml:"format"`
	MetaTile   string           `xml:"metatile"` // "WxH"
	MetaBuffer int              `xml:"metabuffer"`
	Expires    int              `xml:"expires"` // seconds
	AutoExpire int              `xml:"auto_expire"`
	ReadOnly   bool             `xml:"read_only"`
	Dimensions []DimensionXML   `xml:"dimensions>dimension"`
}

// TilesetGridXML binds a grid to a tileset with an optional zoom range.
type TilesetGridXML struct {
	Name string `xml:",chardata"`
	MinZ int    `xml:"minzoom,attr"`
	MaxZ int    `xml:"maxzoom,attr"`
}

// DimensionXML is one <dimensions><dimension name="…" default="…"> entry.
type DimensionXML struct {
	Name    string   `xml:"name,attr"`
	Default string   `xml:"default,attr"`
	Values  []string `xml:"value"`
}

// GridXML is one <grid name="…"> element: pixel size, units, resolutions,
// extent, origin (spec.md §6).
type GridXML struct {
	Name        string `xml:"name,attr"`
	SRS         string `xml:"srs"`
	Units       string `xml:"units"`
	Size        string `xml:"size"`        // "W H"
	Extent      string `xml:"extent"`      // "minx miny maxx maxy"
	Origin      string `xml:"origin"`      // "x y"
	Resolutions string `xml:"resolutions"` // space-separated floats
}

// LockerXML is one <locker type="disk|memcache|fallback"> element.
type LockerXML struct {
	Type      string      `xml:"type,attr"`
	Retry     float64     `xml:"retry"`
	Timeout   float64     `xml:"timeout"`
	Directory string      `xml:"directory"` // disk
	Servers   []ServerXML `xml:"server"`    // memcache
	KeyPrefix string      `xml:"key_prefix"`
	Lockers   []LockerXML `xml:"locker"` // fallback, nested
}

// Parse decodes a <mapcache> document from r.
func Parse(r io.Reader) (*Document, error) {
	var doc Document
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("config: parse mapcache document: %w", err)
	}
	for i := range doc.Sources {
		s := &doc.Sources[i]
		if len(s.RawParm) == 0 {
			continue
		}
		s.Params = make(map[string]string, len(s.RawParm))
		for _, p := range s.RawParm {
			s.Params[p.Name] = p.Value
		}
	}
	return &doc, nil
}
