// Package geomtype implements two coupled decoders: mapping a PostGIS
// EWKB geometry column into a polymorphic geometry variant, and mapping a
// SQL scalar column into a tagged attribute value. Both are expressed as
// tagged structs rather than interfaces so a decoder is a total function
// over a closed set of Go types.
package geomtype

import (
	"fmt"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkb"
)

// GeometryKind tags which field of a GeometryType is populated.
type GeometryKind int

const (
	KindPoint GeometryKind = iota
	KindMultiPoint
	KindMultiLineString
	KindMultiPolygon
	KindGeometryCollection
)

// GeometryType is the tagged union of geometries the query builder ever
// hands back. Single linestrings/polygons never reach here because the
// SQL wraps them in ST_Multi first.
type GeometryType struct {
	Kind       GeometryKind
	Point      geom.Point
	MultiPoint geom.MultiPoint
	MultiLine  geom.MultiLineString
	MultiPoly  geom.MultiPolygon
	Collection geom.Collection
}

// DecodeGeometry decodes raw EWKB bytes into a GeometryType, dispatched by
// the layer's declared OGC geometry_type name. Any other name, or a
// mismatch between the declared name and the decoded Go type, is an error.
func DecodeGeometry(raw []byte, ogcTypeName string) (GeometryType, error) {
	g, err := wkb.DecodeBytes(raw)
	if err != nil {
		return GeometryType{}, fmt.Errorf("geomtype: decoding WKB: %w", err)
	}

	switch ogcTypeName {
	case "POINT":
		p, ok := g.(geom.Point)
		if !ok {
			return GeometryType{}, fmt.Errorf("geomtype: expected POINT, decoded %T", g)
		}
		return GeometryType{Kind: KindPoint, Point: p}, nil

	case "MULTIPOINT":
		p, ok := g.(geom.MultiPoint)
		if !ok {
			return GeometryType{}, fmt.Errorf("geomtype: expected MULTIPOINT, decoded %T", g)
		}
		return GeometryType{Kind: KindMultiPoint, MultiPoint: p}, nil

	case "LINESTRING", "MULTILINESTRING", "COMPOUNDCURVE":
		p, ok := g.(geom.MultiLineString)
		if !ok {
			return GeometryType{}, fmt.Errorf("geomtype: expected MULTILINESTRING, decoded %T", g)
		}
		return GeometryType{Kind: KindMultiLineString, MultiLine: p}, nil

	case "POLYGON", "MULTIPOLYGON", "CURVEPOLYGON":
		p, ok := g.(geom.MultiPolygon)
		if !ok {
			return GeometryType{}, fmt.Errorf("geomtype: expected MULTIPOLYGON, decoded %T", g)
		}
		return GeometryType{Kind: KindMultiPolygon, MultiPoly: p}, nil

	case "GEOMETRYCOLLECTION":
		p, ok := g.(geom.Collection)
		if !ok {
			return GeometryType{}, fmt.Errorf("geomtype: expected GEOMETRYCOLLECTION, decoded %T", g)
		}
		return GeometryType{Kind: KindGeometryCollection, Collection: p}, nil

	default:
		return GeometryType{}, fmt.Errorf("geomtype: unknown geometry type %q", ogcTypeName)
	}
}
