// Package datasource defines the contract a feature source must satisfy:
// connect, detect layers, prepare per-zoom queries, and stream features
// for a tile request.
package datasource

import (
	"github.com/atlasdatatech/vtile/geomtype"
	"github.com/atlasdatatech/vtile/grid"
	"github.com/atlasdatatech/vtile/layer"
)

// Feature is a single decoded row: an optional feature id, its attribute
// set, and its geometry.
type Feature struct {
	FID        *uint64
	Attributes map[string]geomtype.AttrValue
	Geometry   geomtype.GeometryType
}

// Datasource is the contract every feature source implements. Connected
// returns a new, pool-backed instance; the zero-value Datasource
// describes configuration only and cannot serve queries.
type Datasource interface {
	Connected() (Datasource, error)
	DetectLayers(detectTypes bool) ([]layer.Layer, error)
	LayerExtent(l *layer.Layer, gridSRID int) (*grid.Extent, error)
	ExtentFromWGS84(ext grid.Extent, destSRID int) (*grid.Extent, error)
	PrepareQueries(tileset string, l *layer.Layer, gridSRID int) error
	RetrieveFeatures(tileset string, l *layer.Layer, ext grid.Extent, zoom uint8, g *grid.Grid, sink func(Feature) error) (uint64, error)
}
