package geomtype_test

import (
	"testing"

	"github.com/atlasdatatech/vtile/geomtype"
)

func TestDecodeSkipsNull(t *testing.T) {
	_, ok, err := geomtype.Decode(geomtype.OIDText, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for NULL")
	}
}

func TestDecodeWidensSmallInts(t *testing.T) {
	v, ok, err := geomtype.Decode(geomtype.OIDInt2, int16(7))
	if err != nil || !ok {
		t.Fatalf("Decode: ok=%v err=%v", ok, err)
	}
	if v.Kind != geomtype.AttrInt || v.Int64 != 7 {
		t.Fatalf("got %+v", v)
	}
}

func TestAcceptsRejectsUnknownOID(t *testing.T) {
	if geomtype.Accepts(9999) {
		t.Fatal("expected OID 9999 to be rejected")
	}
	if !geomtype.Accepts(geomtype.OIDBool) {
		t.Fatal("expected bool OID to be accepted")
	}
}

func TestDecodeBoolAndDouble(t *testing.T) {
	b, ok, err := geomtype.Decode(geomtype.OIDBool, true)
	if err != nil || !ok || !b.Bool {
		t.Fatalf("bool decode: %+v ok=%v err=%v", b, ok, err)
	}
	d, ok, err := geomtype.Decode(geomtype.OIDFloat8, 3.5)
	if err != nil || !ok || d.Float64 != 3.5 {
		t.Fatalf("double decode: %+v ok=%v err=%v", d, ok, err)
	}
}
