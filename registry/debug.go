package registry

import (
	"fmt"

	"github.com/go-spatial/geom"

	"github.com/atlasdatatech/vtile/datasource"
	"github.com/atlasdatatech/vtile/geomtype"
	"github.com/atlasdatatech/vtile/grid"
	"github.com/atlasdatatech/vtile/layer"
)

// Debug layer names, usable as the layerName argument to RetrieveFeatures.
const (
	LayerDebugTileOutline = "debug-tile-outline"
	LayerDebugTileCenter  = "debug-tile-center"
)

// DebugSource is a dependency-free datasource.Datasource that emits a
// tile's bounding box and center point as features. It never touches a
// database and exists so the registry package (and its users) can be
// exercised without one.
type DebugSource struct{}

// NewDebugSource returns a ready-to-use debug datasource.
func NewDebugSource() *DebugSource { return &DebugSource{} }

func (d *DebugSource) Connected() (datasource.Datasource, error) { return d, nil }

func (d *DebugSource) DetectLayers(detectTypes bool) ([]layer.Layer, error) {
	outline := LayerDebugTileOutline
	center := LayerDebugTileCenter
	polyType := "MULTIPOLYGON"
	pointType := "POINT"
	return []layer.Layer{
		{Name: outline, GeometryType: &polyType},
		{Name: center, GeometryType: &pointType},
	}, nil
}

func (d *DebugSource) LayerExtent(l *layer.Layer, gridSRID int) (*grid.Extent, error) {
	return &grid.Extent{MinX: -180.0, MinY: -85.05112877980659, MaxX: 180.0, MaxY: 85.0511287798066}, nil
}

func (d *DebugSource) ExtentFromWGS84(ext grid.Extent, destSRID int) (*grid.Extent, error) {
	return &ext, nil
}

func (d *DebugSource) PrepareQueries(tileset string, l *layer.Layer, gridSRID int) error {
	return nil
}

// RetrieveFeatures emits exactly one feature for l, derived entirely from
// ext and zoom - the debug layers carry no database-backed geometry.
func (d *DebugSource) RetrieveFeatures(tileset string, l *layer.Layer, ext grid.Extent, zoom uint8, g *grid.Grid, sink func(datasource.Feature) error) (uint64, error) {
	switch l.Name {
	case LayerDebugTileOutline:
		ring := [][2]float64{
			{ext.MinX, ext.MinY},
			{ext.MaxX, ext.MinY},
			{ext.MaxX, ext.MaxY},
			{ext.MinX, ext.MaxY},
			{ext.MinX, ext.MinY},
		}
		poly := geom.MultiPolygon{geom.Polygon{ring}}
		fid := uint64(0)
		f := datasource.Feature{
			FID: &fid,
			Attributes: map[string]geomtype.AttrValue{
				"type": {Kind: geomtype.AttrString, Str: "debug_buffer_outline"},
			},
			Geometry: geomtype.GeometryType{Kind: geomtype.KindMultiPolygon, MultiPoly: poly},
		}
		if err := sink(f); err != nil {
			return 0, err
		}
		return 1, nil

	case LayerDebugTileCenter:
		xlen := ext.MaxX - ext.MinX
		ylen := ext.MaxY - ext.MinY
		fid := uint64(1)
		f := datasource.Feature{
			FID: &fid,
			Attributes: map[string]geomtype.AttrValue{
				"type": {Kind: geomtype.AttrString, Str: "debug_text"},
				"zxy":  {Kind: geomtype.AttrString, Str: fmt.Sprintf("Z:%d", zoom)},
			},
			Geometry: geomtype.GeometryType{
				Kind:  geomtype.KindPoint,
				Point: geom.Point{ext.MinX + xlen/2, ext.MinY + ylen/2},
			},
		}
		if err := sink(f); err != nil {
			return 0, err
		}
		return 1, nil
	}

	return 0, fmt.Errorf("registry: debug source has no layer %q", l.Name)
}
