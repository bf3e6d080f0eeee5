// Package sqlquery assembles the per-layer, per-zoom SQL text a datasource
// runs against PostGIS: geometry clipping/simplification/reprojection/
// multi-coercion, select-list enumeration, bbox expression construction,
// and positional-parameter placeholder numbering.
package sqlquery

import (
	"fmt"
	"strings"

	"github.com/atlasdatatech/vtile/layer"
)

// QueryParam names a value the executor must bind positionally at call
// time.
type QueryParam int

const (
	ParamBbox QueryParam = iota
	ParamZoom
	ParamPixelWidth
	ParamScaleDenominator
)

func (p QueryParam) String() string {
	switch p {
	case ParamBbox:
		return "Bbox"
	case ParamZoom:
		return "Zoom"
	case ParamPixelWidth:
		return "PixelWidth"
	case ParamScaleDenominator:
		return "ScaleDenominator"
	default:
		return "Unknown"
	}
}

// SqlQuery pairs the final SQL text with the ordered list of parameters its
// $1..$n placeholders expect. The order of Params matches the $N numbering
// (a Bbox entry covers four consecutive slots), not necessarily the order in
// which the placeholders appear in the SQL text.
type SqlQuery struct {
	SQL    string
	Params []QueryParam
}

// ColumnInfo is one non-geometry select-list column, as detected by a live
// PREPARE against the layer's table/query. Cast is empty for columns that
// need no cast, else one of "FLOAT8"/"TEXT" (NUMERIC casts to FLOAT8,
// everything else casts to TEXT upstream).
type ColumnInfo struct {
	Name string
	Cast string
}

const bboxToken = "!bbox!"
const zoomToken = "!zoom!"
const pixelWidthToken = "!pixel_width!"
const scaleDenominatorToken = "!scale_denominator!"

// buildGeomExpr runs the curve-linearisation, clipping and multi-coercion
// steps of the geometry expression pipeline.
func buildGeomExpr(l *layer.Layer, gridSRID int) string {
	geomName := l.GeometryFieldName()
	geomExpr := geomName
	geomTypeName := l.GeometryTypeName()

	// 1. Curve linearisation.
	switch geomTypeName {
	case "CURVEPOLYGON", "COMPOUNDCURVE":
		geomExpr = fmt.Sprintf("ST_CurveToLine(%s)", geomExpr)
	}

	// 2. Clipping.
	if l.BufferSizeOrNil() != nil {
		validGeom := geomExpr
		if l.MakeValid {
			validGeom = fmt.Sprintf("ST_MakeValid(%s)", geomExpr)
		}
		switch geomTypeName {
		case "POLYGON", "MULTIPOLYGON", "CURVEPOLYGON":
			geomExpr = fmt.Sprintf("ST_Buffer(ST_Intersection(%s,%s), 0.0)", validGeom, bboxToken)
		case "POINT":
			// bbox predicate in WHERE suffices; ST_Intersection not needed.
		default:
			geomExpr = fmt.Sprintf("ST_Intersection(%s,%s)", validGeom, bboxToken)
		}
	}

	// 3. Multi-coercion.
	switch geomTypeName {
	case "MULTIPOINT", "LINESTRING", "MULTILINESTRING", "COMPOUNDCURVE", "POLYGON", "MULTIPOLYGON", "CURVEPOLYGON":
		geomExpr = fmt.Sprintf("ST_Multi(%s)", geomExpr)
	}

	// Simplification and reprojection are zoom-dependent and applied by
	// the caller after this step (see buildFullGeomExpr).

	return geomExpr
}

func applySimplify(geomExpr, geomTypeName string, tolerance float64, layerSRID int) string {
	switch geomTypeName {
	case "LINESTRING", "MULTILINESTRING", "COMPOUNDCURVE":
		return fmt.Sprintf("ST_Multi(ST_SimplifyPreserveTopology(%s,%v))", geomExpr, tolerance)
	case "POLYGON", "MULTIPOLYGON", "CURVEPOLYGON":
		emptyGeom := fmt.Sprintf("ST_GeomFromText('MULTIPOLYGON EMPTY',%d)", layerSRID)
		return fmt.Sprintf("COALESCE(ST_MakeValid(ST_SnapToGrid(%s, %v)),%s)::geometry(MULTIPOLYGON,%d)", geomExpr, tolerance, emptyGeom, layerSRID)
	default:
		return geomExpr // No simplification for points or unknown types.
	}
}

func applyReprojection(geomExpr, geomName string, layerSRID, gridSRID int, noTransform bool) string {
	if layerSRID <= 0 {
		return fmt.Sprintf("ST_SetSRID(%s,%d)", geomExpr, gridSRID)
	}
	if layerSRID == gridSRID {
		return geomExpr
	}
	if noTransform {
		return fmt.Sprintf("ST_SetSRID(%s,%d)", geomExpr, gridSRID)
	}
	return fmt.Sprintf("ST_Transform(%s,%d)", geomExpr, gridSRID)
}

// buildFullGeomExpr runs the complete geometry-expression pipeline for a
// specific zoom (simplification and reprojection are zoom/layer dependent).
func buildFullGeomExpr(l *layer.Layer, gridSRID int, zoom uint8) string {
	geomName := l.GeometryFieldName()
	geomTypeName := l.GeometryTypeName()
	layerSRID := l.SRIDOrZero()

	geomExpr := buildGeomExpr(l, gridSRID)

	if l.SimplifyZoom(zoom) {
		geomExpr = applySimplify(geomExpr, geomTypeName, l.ToleranceZoom(zoom), layerSRID)
	}

	geomExpr = applyReprojection(geomExpr, geomName, layerSRID, gridSRID, l.NoTransform)

	if strings.HasPrefix(geomExpr, "ST_") || strings.HasPrefix(geomExpr, "COALESCE") {
		geomExpr = fmt.Sprintf("%s AS %s", geomExpr, geomName)
	}
	return geomExpr
}

// buildSelectList assembles the select-list. columns is nil in offline
// mode (no live pool), in which case the select list reduces to the
// geometry expression alone.
func buildSelectList(geomExpr string, columns []ColumnInfo) string {
	if len(columns) == 0 {
		return geomExpr
	}
	cols := make([]string, 0, len(columns)+1)
	cols = append(cols, geomExpr)
	for _, c := range columns {
		if c.Cast == "" {
			cols = append(cols, fmt.Sprintf("%q", c.Name))
		} else {
			cols = append(cols, fmt.Sprintf("%q::%s", c.Name, c.Cast))
		}
	}
	return strings.Join(cols, ",")
}

// buildBboxExpr constructs the tile bounding-box expression bound to the
// four !bbox! placeholder slots.
func buildBboxExpr(l *layer.Layer, gridSRID int) string {
	layerSRID := l.SRIDOrZero()
	envSRID := gridSRID
	if layerSRID <= 0 {
		envSRID = layerSRID
	} else if l.NoTransform {
		envSRID = layerSRID
	}

	expr := fmt.Sprintf("ST_MakeEnvelope($1,$2,$3,$4,%d)", envSRID)
	if l.BufferSizeOrNil() != nil && *l.BufferSizeOrNil() != 0 {
		expr = fmt.Sprintf("ST_Buffer(%s,%d*%s)", expr, *l.BufferSizeOrNil(), pixelWidthToken)
	}
	if layerSRID > 0 && layerSRID != envSRID && !l.NoTransform {
		expr = fmt.Sprintf("ST_Transform(%s,%d)", expr, layerSRID)
	}
	if l.ShiftLongitude {
		expr = fmt.Sprintf("ST_Shift_Longitude(%s)", expr)
	}
	return expr
}

// assemble builds the final SELECT, wrapping a user-supplied query or
// falling back to a plain table scan.
func assemble(l *layer.Layer, selectList, geomName string, userSQL string, hasUserSQL bool) (string, error) {
	if hasUserSQL {
		query := fmt.Sprintf("SELECT %s FROM (%s) AS _q", selectList, userSQL)
		if !strings.Contains(userSQL, bboxToken) {
			query += fmt.Sprintf(" WHERE %s && %s", geomName, bboxToken)
		}
		return query, nil
	}
	if l.TableName == nil {
		return "", nil // no query produced for this zoom
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s && %s", selectList, *l.TableName, geomName, bboxToken)
	return query, nil
}

// replaceParams performs fixed-order placeholder numbering: scan
// literally for !bbox!, !zoom!, !pixel_width!, !scale_denominator! in
// that order, each occupying the next positional slot(s), replacing every
// occurrence of a token with its final $N form.
func replaceParams(sql, bboxExpr string) (string, []QueryParam) {
	params := make([]QueryParam, 0, 4)
	n := 0

	if strings.Contains(sql, bboxToken) {
		params = append(params, ParamBbox)
		n += 4
		sql = strings.ReplaceAll(sql, bboxToken, bboxExpr)
	}

	type sub struct {
		token string
		param QueryParam
		cast  string
	}
	for _, s := range []sub{
		{zoomToken, ParamZoom, ""},
		{pixelWidthToken, ParamPixelWidth, "FLOAT8"},
		{scaleDenominatorToken, ParamScaleDenominator, "FLOAT8"},
	} {
		if strings.Contains(sql, s.token) {
			n++
			params = append(params, s.param)
			var repl string
			if s.cast != "" {
				repl = fmt.Sprintf("$%d::%s", n, s.cast)
			} else {
				repl = fmt.Sprintf("$%d", n)
			}
			sql = strings.ReplaceAll(sql, s.token, repl)
		}
	}

	return sql, params
}

// Build composes the complete SqlQuery for (layer, gridSRID, zoom). columns
// is the detected select-list column set (nil for offline/template mode,
// used when generating the user-query SQL template before a live pool
// exists).
func Build(l *layer.Layer, gridSRID int, zoom uint8, columns []ColumnInfo) (*SqlQuery, error) {
	if l.GeometryFieldName() == "" {
		return nil, fmt.Errorf("sqlquery: layer %q has no geometry_field", l.Name)
	}

	userSQL, hasUserSQL := l.Query(zoom)
	geomExpr := buildFullGeomExpr(l, gridSRID, zoom)
	selectList := buildSelectList(geomExpr, columns)

	if !hasUserSQL && l.TableName == nil {
		return nil, nil
	}

	sql, err := assemble(l, selectList, l.GeometryFieldName(), userSQL, hasUserSQL)
	if err != nil {
		return nil, err
	}
	if sql == "" {
		return nil, nil
	}

	bboxExpr := buildBboxExpr(l, gridSRID)
	finalSQL, params := replaceParams(sql, bboxExpr)

	return &SqlQuery{SQL: finalSQL, Params: params}, nil
}
