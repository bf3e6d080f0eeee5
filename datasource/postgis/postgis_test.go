package postgis

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/jackc/pgx"
	"github.com/jackc/pgx/pgtype"

	"github.com/atlasdatatech/vtile/config"
	"github.com/atlasdatatech/vtile/geomtype"
	"github.com/atlasdatatech/vtile/layer"
)

func strPtr(s string) *string { return &s }

func TestNewRequiresDBConn(t *testing.T) {
	if _, err := New(config.DatasourceCfg{}); err == nil {
		t.Fatal("expected error for empty dbconn")
	}
}

func TestNewDefaultsPoolSize(t *testing.T) {
	p, err := New(config.DatasourceCfg{DBConn: "postgres://u:p@host/db"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.poolSize != defaultPoolSize {
		t.Fatalf("poolSize = %d, want %d", p.poolSize, defaultPoolSize)
	}
}

func wkbPoint(x, y float64) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(1)
	binary.Write(buf, binary.LittleEndian, uint32(1))
	binary.Write(buf, binary.LittleEndian, x)
	binary.Write(buf, binary.LittleEndian, y)
	return buf.Bytes()
}

func TestRowToFeatureSkipsGeomAndFidColumns(t *testing.T) {
	l := &layer.Layer{
		Name:          "pois",
		GeometryField: strPtr("geom"),
		GeometryType:  strPtr("POINT"),
		FidField:      strPtr("gid"),
	}

	fdescs := []pgx.FieldDescription{
		{Name: "gid", DataType: pgtype.OID(geomtype.OIDInt4)},
		{Name: "geom", DataType: pgtype.OID(0)},
		{Name: "name", DataType: pgtype.OID(geomtype.OIDText)},
	}
	vals := []interface{}{
		int32(42),
		wkbPoint(1.0, 2.0),
		"Example",
	}

	f, err := rowToFeature(l, fdescs, vals)
	if err != nil {
		t.Fatalf("rowToFeature: %v", err)
	}
	if f.FID == nil || *f.FID != 42 {
		t.Fatalf("FID = %v, want 42", f.FID)
	}
	if _, ok := f.Attributes["gid"]; ok {
		t.Fatal("fid field leaked into attributes")
	}
	if _, ok := f.Attributes["geom"]; ok {
		t.Fatal("geometry field leaked into attributes")
	}
	if v, ok := f.Attributes["name"]; !ok || v.Str != "Example" {
		t.Fatalf("name attribute = %+v, ok=%v", v, ok)
	}
	if f.Geometry.Kind != geomtype.KindPoint {
		t.Fatalf("Geometry.Kind = %v, want KindPoint", f.Geometry.Kind)
	}
}

func TestExtentQueryParsesBox2D(t *testing.T) {
	p := &Provider{}
	// extentQuery requires a live pool.QueryRow; exercised instead via the
	// boxPattern regexp it depends on.
	m := boxPattern.FindStringSubmatch("BOX(-10 -20,30 40)")
	if m == nil {
		t.Fatal("boxPattern did not match a well-formed BOX2D string")
	}
	if m[1] != "-10 -20" || m[2] != "30 40" {
		t.Fatalf("unexpected capture groups: %#v", m)
	}
	_ = p
}
