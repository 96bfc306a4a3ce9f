// Package protocols implements the tile-serving protocols known to dezoomify.
package protocols

import (
	"path"
	"strings"

	"dezoomify/internal/dezoomer"
)

// Registry returns every protocol, in the order auto tries them.
func Registry() *dezoomer.Registry {
	r := dezoomer.NewRegistry()
	r.Register(TilesYAMLName, func() dezoomer.Dezoomer { return &TilesYAML{} })
	r.Register(XYZName, func() dezoomer.Dezoomer { return &XYZ{} })
	r.Register(ZoomifyName, func() dezoomer.Dezoomer { return &Zoomify{} })
	r.Register(IIIFName, func() dezoomer.Dezoomer { return &IIIF{} })
	return r
}

func isYAML(uri string) bool {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	switch strings.ToLower(path.Ext(uri)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// ceilDiv is the number of blocks of size d needed to cover n.
func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}
