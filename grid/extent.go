package grid

// Extent is a bounding box in ground units (meters, degrees or feet,
// depending on the grid it belongs to).
type Extent struct {
	MinX, MinY, MaxX, MaxY float64
}

// ExtentInt is the same rectangle in integer tile-index space. Values are
// non-negative and clamped into the grid's per-level maxima by TileLimits.
type ExtentInt struct {
	MinX, MinY, MaxX, MaxY uint32
}

// Contains reports whether other lies entirely inside e.
func (e Extent) Contains(other Extent) bool {
	return other.MinX >= e.MinX && other.MaxX <= e.MaxX &&
		other.MinY >= e.MinY && other.MaxY <= e.MaxY
}

// XSpan returns the width of the extent.
func (e Extent) XSpan() float64 { return e.MaxX - e.MinX }

// YSpan returns the height of the extent.
func (e Extent) YSpan() float64 { return e.MaxY - e.MinY }

// AsPolygon returns the extent's four corners as a closed ring, counter
// clockwise starting at (MinX, MinY), with the first corner repeated at the
// end (five points).
func (e Extent) AsPolygon() [][2]float64 {
	return [][2]float64{
		{e.MinX, e.MinY},
		{e.MaxX, e.MinY},
		{e.MaxX, e.MaxY},
		{e.MinX, e.MaxY},
		{e.MinX, e.MinY},
	}
}
