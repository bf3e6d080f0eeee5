package geomtype

import (
	"fmt"

	"github.com/jackc/pgx/pgtype"
)

// OID is a PostgreSQL type OID, as returned by a driver's row field
// descriptions.
type OID = pgtype.OID

const (
	OIDBool      = pgtype.BoolOID
	OIDInt8      = pgtype.Int8OID
	OIDInt2      = pgtype.Int2OID
	OIDInt4      = pgtype.Int4OID
	OIDText      = pgtype.TextOID
	OIDFloat4    = pgtype.Float4OID
	OIDFloat8    = pgtype.Float8OID
	OIDBPChar    = pgtype.BPCharOID      // CHAR(n)
	OIDVarchar   = pgtype.VarcharOID
	OIDBPCharArr = pgtype.BPCharArrayOID // CHAR(n)[]
	OIDNumeric   = pgtype.NumericOID     // cast to FLOAT8 upstream before Decode ever sees it
)

// AttrKind tags which field of an AttrValue is populated.
type AttrKind int

const (
	AttrString AttrKind = iota
	AttrFloat
	AttrDouble
	AttrInt
	AttrBool
)

// AttrValue is a tagged union over the scalar attribute value types a
// feature's non-geometry columns can hold.
type AttrValue struct {
	Kind    AttrKind
	Str     string
	Float32 float32
	Float64 float64
	Int64   int64
	Bool    bool
}

// Accepts reports whether this decoder can handle a column of the given
// OID. Upstream query building casts NUMERIC to FLOAT8 and anything else
// to TEXT, so in practice every column reaching Decode satisfies this.
func Accepts(oid OID) bool {
	switch oid {
	case OIDVarchar, OIDText, OIDBPCharArr, OIDFloat4, OIDFloat8, OIDInt2, OIDInt4, OIDInt8, OIDBool:
		return true
	default:
		return false
	}
}

// rawValue is the minimal surface Decode needs from a driver's decoded
// column value - the caller has already had the driver parse the wire
// format into a Go value; Decode's job is only to fit it into the closed
// AttrValue union.
type rawValue = interface{}

// Decode converts a single decoded column value into an AttrValue. v is
// expected to already be a Go value of the type the given OID implies
// (string, float32, float64, int16/int32/int64, or bool) - the shape a
// pgx row Values() call returns. Returns ok=false for a SQL NULL, which
// callers must skip rather than represent as a variant.
func Decode(oid OID, v rawValue) (AttrValue, bool, error) {
	if v == nil {
		return AttrValue{}, false, nil
	}
	switch oid {
	case OIDVarchar, OIDText, OIDBPCharArr:
		s, ok := v.(string)
		if !ok {
			return AttrValue{}, false, fmt.Errorf("geomtype: expected string for oid %d, got %T", oid, v)
		}
		return AttrValue{Kind: AttrString, Str: s}, true, nil

	case OIDFloat4:
		f, ok := v.(float32)
		if !ok {
			return AttrValue{}, false, fmt.Errorf("geomtype: expected float32 for oid %d, got %T", oid, v)
		}
		return AttrValue{Kind: AttrFloat, Float32: f}, true, nil

	case OIDFloat8:
		f, ok := v.(float64)
		if !ok {
			return AttrValue{}, false, fmt.Errorf("geomtype: expected float64 for oid %d, got %T", oid, v)
		}
		return AttrValue{Kind: AttrDouble, Float64: f}, true, nil

	case OIDInt2:
		i, err := widenInt(v)
		if err != nil {
			return AttrValue{}, false, err
		}
		return AttrValue{Kind: AttrInt, Int64: i}, true, nil

	case OIDInt4:
		i, err := widenInt(v)
		if err != nil {
			return AttrValue{}, false, err
		}
		return AttrValue{Kind: AttrInt, Int64: i}, true, nil

	case OIDInt8:
		i, err := widenInt(v)
		if err != nil {
			return AttrValue{}, false, err
		}
		return AttrValue{Kind: AttrInt, Int64: i}, true, nil

	case OIDBool:
		b, ok := v.(bool)
		if !ok {
			return AttrValue{}, false, fmt.Errorf("geomtype: expected bool for oid %d, got %T", oid, v)
		}
		return AttrValue{Kind: AttrBool, Bool: b}, true, nil

	default:
		return AttrValue{}, false, fmt.Errorf("geomtype: cannot decode oid %d into AttrValue", oid)
	}
}

func widenInt(v rawValue) (int64, error) {
	switch n := v.(type) {
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("geomtype: expected integer value, got %T", v)
	}
}
