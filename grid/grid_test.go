package grid_test

import (
	"math"
	"testing"

	"github.com/gdey/tbltest"
	"github.com/go-test/deep"

	"github.com/atlasdatatech/vtile/grid"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestWebMercatorTileExtentZ0(t *testing.T) {
	g := grid.WebMercator()
	ext := g.TileExtent(0, 0, 0)
	want := grid.Extent{MinX: -20037508.3427892480, MinY: -20037508.3427892480, MaxX: 20037508.3427892480, MaxY: 20037508.3427892480}
	if diff := deep.Equal(ext, want); diff != nil {
		t.Fatalf("tile_extent(0,0,0): %v", diff)
	}
}

func TestWGS84TileExtentZ0(t *testing.T) {
	g := grid.WGS84()
	ext := g.TileExtent(0, 0, 0)
	want := grid.Extent{MinX: -180, MinY: -90, MaxX: 0, MaxY: 90}
	if diff := deep.Equal(ext, want); diff != nil {
		t.Fatalf("tile_extent(0,0,0): %v", diff)
	}
	mx, my := g.LevelLimit(0)
	if mx != 2 || my != 1 {
		t.Fatalf("level_max[0] = (%d,%d), want (2,1)", mx, my)
	}
}

func TestWebMercatorPixelWidthZ0(t *testing.T) {
	g := grid.WebMercator()
	pw := g.PixelWidth(0)
	if !almostEqual(pw, 156543.033928041, 1e-6) {
		t.Fatalf("pixel_width(0) = %v, want 156543.033928041", pw)
	}
}

func TestScaleDenominatorExact(t *testing.T) {
	g := grid.WebMercator()
	for z := uint8(0); z < g.NLevels(); z++ {
		want := g.PixelWidth(z) / 0.00028
		got := g.ScaleDenominator(z)
		if got != want {
			t.Fatalf("scale_denominator(%d) = %v, want %v", z, got, want)
		}
	}
}

func TestYTileFromXYZSaturating(t *testing.T) {
	g := grid.WebMercator()
	if y := g.YTileFromXYZ(0, 0); y != 0 {
		t.Fatalf("ytile_from_xyz(0,0) = %d, want 0", y)
	}
}

func TestTileLimitsWorldAtZ0(t *testing.T) {
	g := grid.WebMercator()
	limits := g.TileLimits(g.Extent, 0)
	want := grid.ExtentInt{MinX: 0, MinY: 0, MaxX: 0, MaxY: 0}
	if diff := deep.Equal(limits[0], want); diff != nil {
		t.Fatalf("tile_limits(world,0)[0]: %v", diff)
	}
}

// TestTileExtentWithinGridExtent exercises the invariant that any in-range
// tile's extent lies inside the grid's declared extent, for both origins.
func TestTileExtentWithinGridExtent(t *testing.T) {
	tests := tbltest.Cases(
		struct {
			Grid *grid.Grid
			Zoom uint8
		}{Grid: grid.WebMercator(), Zoom: 3},
		struct {
			Grid *grid.Grid
			Zoom uint8
		}{Grid: grid.WGS84(), Zoom: 4},
	)

	tests.Run(func(i int, tc struct {
		Grid *grid.Grid
		Zoom uint8
	}) {
		mx, my := tc.Grid.LevelLimit(tc.Zoom)
		for x := uint32(0); x < mx; x++ {
			for y := uint32(0); y < my; y++ {
				ext := tc.Grid.TileExtent(x, y, tc.Zoom)
				if !tc.Grid.Extent.Contains(ext) {
					t.Errorf("case %d: tile (%d,%d,%d) extent %+v escapes grid extent %+v", i, x, y, tc.Zoom, ext, tc.Grid.Extent)
				}
			}
		}
	})
}

// TestBottomLeftYFlipRoundTrip exercises the XYZ<->TMS y-flip round-trip
// named in spec §8.
func TestBottomLeftYFlipRoundTrip(t *testing.T) {
	g := grid.WebMercator()
	z := uint8(2)
	_, maxY := g.LevelLimit(z)
	for y := uint32(0); y < maxY; y++ {
		xyz := g.TileExtentXYZ(0, y, z)
		tms := g.YTileFromXYZ(y, z)
		wantMiny := g.Extent.MinY + float64(g.Height)*g.Resolution(z)*float64(tms)
		if !almostEqual(xyz.MinY, wantMiny, 1e-6) {
			t.Errorf("y=%d: xyz.MinY=%v want %v", y, xyz.MinY, wantMiny)
		}
	}
}

func TestTileLimitsClampedIntoLevelMax(t *testing.T) {
	g := grid.WebMercator()
	// Extent strictly smaller than the grid extent.
	small := grid.Extent{MinX: -1e6, MinY: -1e6, MaxX: 1e6, MaxY: 1e6}
	limits := g.TileLimits(small, 0)
	for z, l := range limits {
		mx, my := g.LevelLimit(uint8(z))
		if l.MinX > l.MaxX || l.MaxX > mx {
			t.Errorf("z=%d: bad x range %+v (levelMaxX=%d)", z, l, mx)
		}
		if l.MinY > l.MaxY || l.MaxY > my {
			t.Errorf("z=%d: bad y range %+v (levelMaxY=%d)", z, l, my)
		}
	}
}

func TestNewUserGrid(t *testing.T) {
	g, err := grid.New(grid.UserGridConfig{
		Width: 256, Height: 256,
		Extent:      grid.Extent{MinX: 0, MinY: 0, MaxX: 1000, MaxY: 1000},
		SRID:        3044,
		Units:       "m",
		Resolutions: []float64{4, 2, 1},
		Origin:      "TopLeft",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if g.NLevels() != 3 {
		t.Fatalf("NLevels() = %d, want 3", g.NLevels())
	}
}

func TestNewUserGridRejectsNonDecreasingResolutions(t *testing.T) {
	_, err := grid.New(grid.UserGridConfig{
		Width: 256, Height: 256,
		Extent:      grid.Extent{MinX: 0, MinY: 0, MaxX: 1000, MaxY: 1000},
		SRID:        3044,
		Units:       "m",
		Resolutions: []float64{1, 2, 4},
		Origin:      "TopLeft",
	})
	if err == nil {
		t.Fatal("expected error for increasing resolutions")
	}
}
