// Package grid implements the pyramidal tile grid model: resolution
// pyramid, tile<->extent conversions and tile-index range computation
// across multiple coordinate reference systems.
package grid

import (
	"fmt"
	"math"
)

// Origin names which corner of the grid's extent the (0,0) tile starts at.
type Origin int

const (
	BottomLeft Origin = iota
	TopLeft
)

func (o Origin) String() string {
	if o == TopLeft {
		return "TopLeft"
	}
	return "BottomLeft"
}

// ParseOrigin parses the "TopLeft"/"BottomLeft" config enum.
func ParseOrigin(s string) (Origin, error) {
	switch s {
	case "TopLeft":
		return TopLeft, nil
	case "BottomLeft":
		return BottomLeft, nil
	default:
		return 0, fmt.Errorf("grid: unexpected origin value %q", s)
	}
}

// Unit is the ground unit resolutions are expressed in.
type Unit int

const (
	Meters Unit = iota
	Degrees
	Feet
)

// ParseUnit parses the "m"/"dd"/"ft" config enum, case-insensitively.
func ParseUnit(s string) (Unit, error) {
	switch lower(s) {
	case "m":
		return Meters, nil
	case "dd":
		return Degrees, nil
	case "ft":
		return Feet, nil
	default:
		return 0, fmt.Errorf("grid: unexpected unit value %q", s)
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// cellIndex is the (maxx, maxy) tile count of a single zoom level.
type cellIndex struct{ x, y uint32 }

// Grid is immutable after construction. Resolutions must be strictly
// decreasing from z=0 (coarsest) to the last level (finest).
type Grid struct {
	Width, Height uint16
	Extent        Extent
	SRID          int
	Units         Unit
	Origin        Origin

	resolutions []float64
	levelMax    []cellIndex
}

// UserGridConfig is the shape of a fully user-specified custom grid. Kept
// independent of package config to avoid an import cycle (config depends
// on grid for the Extent type).
type UserGridConfig struct {
	Width, Height uint16
	Extent        Extent
	SRID          int
	Units         string
	Resolutions   []float64
	Origin        string
}

// New builds a grid from an explicit user configuration.
func New(cfg UserGridConfig) (*Grid, error) {
	if len(cfg.Resolutions) == 0 {
		return nil, fmt.Errorf("grid: resolutions must not be empty")
	}
	for i := 0; i+1 < len(cfg.Resolutions); i++ {
		if cfg.Resolutions[i] <= cfg.Resolutions[i+1] {
			return nil, fmt.Errorf("grid: resolutions must be strictly decreasing (index %d: %v <= %v)", i, cfg.Resolutions[i], cfg.Resolutions[i+1])
		}
	}
	units, err := ParseUnit(cfg.Units)
	if err != nil {
		return nil, err
	}
	origin, err := ParseOrigin(cfg.Origin)
	if err != nil {
		return nil, err
	}
	g := &Grid{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Extent:      cfg.Extent,
		SRID:        cfg.SRID,
		Units:       units,
		Origin:      origin,
		resolutions: append([]float64(nil), cfg.Resolutions...),
	}
	g.levelMax = g.computeLevelMax()
	return g, nil
}

// WGS84 is the predefined CRS 4326 grid: +/-180/+/-90 degrees, 18 zoom
// levels starting at 0.703125 degrees/pixel, origin bottom-left.
func WGS84() *Grid {
	g := &Grid{
		Width:  256,
		Height: 256,
		Extent: Extent{MinX: -180.0, MinY: -90.0, MaxX: 180.0, MaxY: 90.0},
		SRID:   4326,
		Units:  Degrees,
		Origin: BottomLeft,
		resolutions: []float64{
			0.703125000000000,
			0.351562500000000,
			0.175781250000000,
			8.78906250000000e-2,
			4.39453125000000e-2,
			2.19726562500000e-2,
			1.09863281250000e-2,
			5.49316406250000e-3,
			2.74658203125000e-3,
			1.37329101562500e-3,
			6.86645507812500e-4,
			3.43322753906250e-4,
			1.71661376953125e-4,
			8.58306884765625e-5,
			4.29153442382812e-5,
			2.14576721191406e-5,
			1.07288360595703e-5,
			5.36441802978516e-6,
		},
	}
	g.levelMax = g.computeLevelMax()
	return g
}

// WebMercator is the predefined CRS 3857 grid (Google Maps compatible):
// +/-20037508.342789248 meters, 23 zoom levels starting at
// 156543.033928041 m/pixel, origin bottom-left.
func WebMercator() *Grid {
	g := &Grid{
		Width:  256,
		Height: 256,
		Extent: Extent{MinX: -20037508.3427892480, MinY: -20037508.3427892480, MaxX: 20037508.3427892480, MaxY: 20037508.3427892480},
		SRID:   3857,
		Units:  Meters,
		Origin: BottomLeft,
		resolutions: []float64{
			156543.0339280410,
			78271.5169640205,
			39135.75848201025,
			19567.879241005125,
			9783.939620502562,
			4891.969810251281,
			2445.9849051256406,
			1222.9924525628203,
			611.4962262814101,
			305.7481131407051,
			152.87405657035254,
			76.43702828517627,
			38.218514142588134,
			19.109257071294067,
			9.554628535647034,
			4.777314267823517,
			2.3886571339117584,
			1.1943285669558792,
			0.5971642834779396,
			0.2985821417389698,
			0.1492910708694849,
			0.07464553543474245,
			0.037322767717371225,
		},
	}
	g.levelMax = g.computeLevelMax()
	return g
}

// NLevels returns the number of zoom levels the grid defines.
func (g *Grid) NLevels() uint8 { return uint8(len(g.resolutions)) }

// MaxZoom returns the coarsest-to-finest index of the grid's last level.
func (g *Grid) MaxZoom() uint8 { return g.NLevels() - 1 }

// Resolution returns the units-per-pixel resolution at zoom z.
func (g *Grid) Resolution(z uint8) float64 { return g.resolutions[z] }

const metersPerDegree = 6378137.0 * 2.0 * math.Pi / 360.0

// PixelWidth returns the ground width of one tile pixel at zoom z, always
// expressed in meters regardless of the grid's native unit.
func (g *Grid) PixelWidth(z uint8) float64 {
	switch g.Units {
	case Degrees:
		return g.resolutions[z] * metersPerDegree
	case Feet:
		return g.resolutions[z] * 0.3048
	default: // Meters
		return g.resolutions[z]
	}
}

// pixelScreenWidth is the OGC SLD standardized pixel size (0.28mm) used to
// derive a scale denominator from a ground pixel width.
const pixelScreenWidth = 0.00028

// ScaleDenominator returns the OGC SLD scale denominator for zoom z.
func (g *Grid) ScaleDenominator(z uint8) float64 {
	return g.PixelWidth(z) / pixelScreenWidth
}

// TileExtent returns the ground extent of tile (x, y) at zoom z, using the
// grid's native (TMS) addressing scheme.
func (g *Grid) TileExtent(x, y uint32, z uint8) Extent {
	res := g.resolutions[z]
	tw := float64(g.Width) * res
	th := float64(g.Height) * res
	switch g.Origin {
	case TopLeft:
		return Extent{
			MinX: g.Extent.MinX + tw*float64(x),
			MinY: g.Extent.MaxY - th*float64(y+1),
			MaxX: g.Extent.MinX + tw*float64(x+1),
			MaxY: g.Extent.MaxY - th*float64(y),
		}
	default: // BottomLeft
		return Extent{
			MinX: g.Extent.MinX + tw*float64(x),
			MinY: g.Extent.MinY + th*float64(y),
			MaxX: g.Extent.MinX + tw*float64(x+1),
			MaxY: g.Extent.MinY + th*float64(y+1),
		}
	}
}

// YTileFromXYZ converts a y index in XYZ addressing (origin top-left of the
// world, y growing downward) into the grid's native TMS y index. Saturates
// at 0 for out-of-range input rather than wrapping.
func (g *Grid) YTileFromXYZ(ytile uint32, z uint8) uint32 {
	maxy := g.levelMax[z].y
	if ytile+1 > maxy {
		return 0
	}
	return maxy - ytile - 1
}

// TileExtentXYZ returns the ground extent of tile (x, y) at zoom z, where y
// is given in XYZ (slippy-map) addressing.
func (g *Grid) TileExtentXYZ(x, y uint32, z uint8) Extent {
	return g.TileExtent(x, g.YTileFromXYZ(y, z), z)
}

// LevelLimit returns the (maxx, maxy) tile count of zoom level z: the
// number of tiles needed to cover the grid's extent (rounded up), after
// shrinking each dimension by 1% of one tile so that an exact multiple of
// the tile size does not gain an extra row or column from floating-point
// noise.
func (g *Grid) LevelLimit(z uint8) (maxX, maxY uint32) {
	res := g.resolutions[z]
	unitHeight := float64(g.Height) * res
	unitWidth := float64(g.Width) * res

	my := math.Ceil((g.Extent.MaxY - g.Extent.MinY - 0.01*unitHeight) / unitHeight)
	mx := math.Ceil((g.Extent.MaxX - g.Extent.MinX - 0.01*unitWidth) / unitWidth)
	return uint32(mx), uint32(my)
}

func (g *Grid) computeLevelMax() []cellIndex {
	out := make([]cellIndex, g.NLevels())
	for z := uint8(0); z < g.NLevels(); z++ {
		x, y := g.LevelLimit(z)
		out[z] = cellIndex{x: x, y: y}
	}
	return out
}

// tileLimitsEpsilon absorbs floor/ceil boundary noise in TileLimits. Not to
// be tuned without regenerating test fixtures (spec §9).
const tileLimitsEpsilon = 0.0000001

// TileLimits returns, for every zoom level, the tile-index range covering
// extent (inflated by tolerance tiles on each side), clamped into
// [0, levelMax] independently per side.
func (g *Grid) TileLimits(extent Extent, tolerance int32) []ExtentInt {
	out := make([]ExtentInt, g.NLevels())
	for z := uint8(0); z < g.NLevels(); z++ {
		res := g.resolutions[z]
		unitHeight := float64(g.Height) * res
		unitWidth := float64(g.Width) * res
		levelMaxX := int32(g.levelMax[z].x)
		levelMaxY := int32(g.levelMax[z].y)

		var minX, maxX, minY, maxY int32
		switch g.Origin {
		case TopLeft:
			minX = int32(math.Floor((extent.MinX-g.Extent.MinX)/unitWidth+tileLimitsEpsilon)) - tolerance
			maxX = int32(math.Ceil((extent.MaxX-g.Extent.MinX)/unitWidth-tileLimitsEpsilon)) + tolerance
			minY = int32(math.Floor((g.Extent.MaxY-extent.MaxY)/unitHeight+tileLimitsEpsilon)) - tolerance
			maxY = int32(math.Ceil((g.Extent.MaxY-extent.MinY)/unitHeight-tileLimitsEpsilon)) + tolerance
		default: // BottomLeft
			minX = int32(math.Floor((extent.MinX-g.Extent.MinX)/unitWidth+tileLimitsEpsilon)) - tolerance
			maxX = int32(math.Ceil((extent.MaxX-g.Extent.MinX)/unitWidth-tileLimitsEpsilon)) + tolerance
			minY = int32(math.Floor((extent.MinY-g.Extent.MinY)/unitHeight+tileLimitsEpsilon)) - tolerance
			maxY = int32(math.Ceil((extent.MaxY-g.Extent.MinY)/unitHeight-tileLimitsEpsilon)) + tolerance
		}

		// clamp independently to avoid requesting out-of-range tiles
		if minX < 0 {
			minX = 0
		}
		if maxX > levelMaxX {
			maxX = levelMaxX
		}
		if minY < 0 {
			minY = 0
		}
		if maxY > levelMaxY {
			maxY = levelMaxY
		}

		out[z] = ExtentInt{MinX: uint32(minX), MaxX: uint32(maxX), MinY: uint32(minY), MaxY: uint32(maxY)}
	}
	return out
}
