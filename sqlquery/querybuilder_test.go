package sqlquery_test

import (
	"strings"
	"testing"

	"github.com/atlasdatatech/vtile/layer"
	"github.com/atlasdatatech/vtile/sqlquery"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestBuildPolygonLayerWithBufferMakeValidSimplify(t *testing.T) {
	l := &layer.Layer{
		Name:          "water",
		TableName:     strPtr("water_polygons"),
		GeometryField: strPtr("geom"),
		GeometryType:  strPtr("MULTIPOLYGON"),
		SRID:          intPtr(4326),
		BufferSize:    intPtr(4),
		MakeValid:     true,
		Simplify:      func(zoom uint8) bool { return zoom < 10 },
		ToleranceByZoom: func(zoom uint8) float64 {
			return 10.0
		},
	}

	q, err := sqlquery.Build(l, 3857, 5, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if q == nil {
		t.Fatal("expected non-nil query")
	}

	for _, want := range []string{
		"ST_Transform(",
		"ST_MakeValid(",
		"ST_Buffer(ST_Intersection(",
		"ST_SnapToGrid(",
		"::geometry(MULTIPOLYGON,4326)",
	} {
		if !strings.Contains(q.SQL, want) {
			t.Errorf("SQL missing %q:\n%s", want, q.SQL)
		}
	}

	if len(q.Params) != 2 {
		t.Fatalf("Params = %v, want 2 entries", q.Params)
	}
	if q.Params[0] != sqlquery.ParamBbox || q.Params[1] != sqlquery.ParamPixelWidth {
		t.Fatalf("Params = %v, want [Bbox PixelWidth]", q.Params)
	}
}

func TestBuildUserSQLPreservesBboxToken(t *testing.T) {
	l := &layer.Layer{
		Name:          "custom",
		GeometryField: strPtr("geom"),
		GeometryType:  strPtr("POINT"),
		Queries: []layer.ZoomQuery{
			{SQL: "SELECT geom FROM pois WHERE geom && !bbox!", MinZoom: 0},
		},
	}

	q, err := sqlquery.Build(l, 3857, 8, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if q == nil {
		t.Fatal("expected non-nil query")
	}
	if strings.Contains(q.SQL, "!bbox!") {
		t.Fatalf("token not substituted:\n%s", q.SQL)
	}
	if strings.Count(q.SQL, "WHERE") != 1 {
		t.Fatalf("expected exactly one WHERE clause (no appended intersect), got:\n%s", q.SQL)
	}
	if len(q.Params) != 1 || q.Params[0] != sqlquery.ParamBbox {
		t.Fatalf("Params = %v, want [Bbox]", q.Params)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	l := &layer.Layer{
		Name:          "roads",
		TableName:     strPtr("roads"),
		GeometryField: strPtr("geom"),
		GeometryType:  strPtr("LINESTRING"),
		SRID:          intPtr(3857),
	}

	a, err := sqlquery.Build(l, 3857, 12, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := sqlquery.Build(l, 3857, 12, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if a.SQL != b.SQL {
		t.Fatalf("Build is not deterministic:\n%s\nvs\n%s", a.SQL, b.SQL)
	}
}

func TestBuildPlaceholderArityMatchesBboxCount(t *testing.T) {
	l := &layer.Layer{
		Name:          "places",
		TableName:     strPtr("places"),
		GeometryField: strPtr("geom"),
		GeometryType:  strPtr("POINT"),
	}

	q, err := sqlquery.Build(l, 3857, 4, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(q.SQL, "$1") || !strings.Contains(q.SQL, "$4") {
		t.Fatalf("expected $1..$4 bbox placeholders:\n%s", q.SQL)
	}
	if strings.Contains(q.SQL, "$5") {
		t.Fatalf("unexpected extra placeholder:\n%s", q.SQL)
	}
	if len(q.Params) != 1 || q.Params[0] != sqlquery.ParamBbox {
		t.Fatalf("Params = %v, want [Bbox]", q.Params)
	}
}

func TestBuildNoGeometryFieldErrors(t *testing.T) {
	l := &layer.Layer{Name: "broken", TableName: strPtr("t")}
	if _, err := sqlquery.Build(l, 3857, 0, nil); err == nil {
		t.Fatal("expected error for missing geometry_field")
	}
}

func TestBuildWithColumnsIncludesSelectList(t *testing.T) {
	l := &layer.Layer{
		Name:          "pois",
		TableName:     strPtr("pois"),
		GeometryField: strPtr("geom"),
		GeometryType:  strPtr("POINT"),
	}
	cols := []sqlquery.ColumnInfo{
		{Name: "name"},
		{Name: "population", Cast: "FLOAT8"},
	}
	q, err := sqlquery.Build(l, 3857, 6, cols)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(q.SQL, `"name"`) || !strings.Contains(q.SQL, `"population"::FLOAT8`) {
		t.Fatalf("select list missing columns:\n%s", q.SQL)
	}
}
