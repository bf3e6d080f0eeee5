package geomtype_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/atlasdatatech/vtile/geomtype"
)

// wkbPoint builds a minimal little-endian 2D WKB Point payload.
func wkbPoint(x, y float64) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(1) // little endian
	binary.Write(buf, binary.LittleEndian, uint32(1))
	binary.Write(buf, binary.LittleEndian, x)
	binary.Write(buf, binary.LittleEndian, y)
	return buf.Bytes()
}

func TestDecodeGeometryPoint(t *testing.T) {
	raw := wkbPoint(1.5, 2.5)
	g, err := geomtype.DecodeGeometry(raw, "POINT")
	if err != nil {
		t.Fatalf("DecodeGeometry: %v", err)
	}
	if g.Kind != geomtype.KindPoint {
		t.Fatalf("Kind = %v, want KindPoint", g.Kind)
	}
	if g.Point[0] != 1.5 || g.Point[1] != 2.5 {
		t.Fatalf("Point = %v, want (1.5, 2.5)", g.Point)
	}
}

func TestDecodeGeometryUnknownTypeName(t *testing.T) {
	raw := wkbPoint(0, 0)
	if _, err := geomtype.DecodeGeometry(raw, "TRIANGLE"); err == nil {
		t.Fatal("expected error for unsupported OGC type name")
	}
}

func TestDecodeGeometryTypeMismatch(t *testing.T) {
	raw := wkbPoint(0, 0) // WKB says Point
	if _, err := geomtype.DecodeGeometry(raw, "MULTIPOLYGON"); err == nil {
		t.Fatal("expected error decoding a Point payload as MULTIPOLYGON")
	}
}
