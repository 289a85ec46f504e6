package server

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"

	"github.com/mapcache-go/mapcache/internal/registry"
)

// capabilitiesDoc is a minimal WMTS-capabilities-shaped document: enough to
// enumerate the tilesets/grids/formats an alias serves, per spec.md §4.4's
// "Stateless; builds an XML/JSON document from config and base URL".
// Rendering the full OGC schema is out of scope (spec.md §1: "capabilities-
// document generation" bodies are external collaborators); this is the
// core's contribution to that document, not the document itself.
type capabilitiesDoc struct {
	XMLName xml.Name       `xml:"Capabilities"`
	BaseURL string         `xml:"ServiceURL,attr"`
	Layers  []layerCapsXML `xml:"Contents>Layer"`
}

type layerCapsXML struct {
	Identifier string   `xml:"Identifier"`
	Format     string   `xml:"Format"`
	Grids      []string `xml:"TileMatrixSetLink>TileMatrixSet"`
}

func buildCapabilities(alias registry.AliasEntry, baseURL string) []byte {
	doc := capabilitiesDoc{BaseURL: baseURL}

	names := make([]string, 0, len(alias.Server.Tilesets))
	for name := range alias.Server.Tilesets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ts := alias.Server.Tilesets[name]
		lc := layerCapsXML{Identifier: name, Format: ts.Format}
		for _, gl := range ts.Grids {
			lc.Grids = append(lc.Grids, gl.Grid.Name)
		}
		doc.Layers = append(doc.Layers, lc)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return []byte(fmt.Sprintf("<!-- capabilities encode error: %v -->", err))
	}
	return buf.Bytes()
}
