/*
Copyright © 2021 the ECMWF-Go authors.
This file is part of ECMWF-Go.

ECMWF-Go is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ECMWF-Go is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ECMWF-Go.  If not, see <http://www.gnu.org/licenses/>.
*/

package ecmwf

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestRegularGrid(t *testing.T) {
	cases := []struct {
		res  float64
		want int
	}{
		{0.25, 1440 * 721},
		{0.1, 3600 * 1801},
		{0.75, 480 * 241},
		{1.0, 360 * 181},
	}
	for _, c := range cases {
		g, err := RegularGrid(c.res, nil)
		if err != nil {
			t.Fatal(err)
		}
		if g.Len() != c.want {
			t.Errorf("res %g: %d points; want %d", c.res, g.Len(), c.want)
		}
		nLat, nLon, ok := g.Shape2D()
		if !ok || nLat*nLon != g.Len() {
			t.Errorf("res %g: shape %d x %d does not cover %d points", c.res, nLat, nLon, g.Len())
		}
	}
}

func TestRegularGridOrder(t *testing.T) {
	g, err := RegularGrid(0.25, nil)
	if err != nil {
		t.Fatal(err)
	}
	if g.Lats[0] != 90 || g.Lons[0] != 0 {
		t.Errorf("first point is (%g, %g); want (0, 90)", g.Lons[0], g.Lats[0])
	}
	// Longitudes east of 180° are mapped into (-180, 180] without
	// reordering.
	i := 1440/2 + 1 // raw longitude 180.25 in the first row
	if g.Lons[i] != -179.75 {
		t.Errorf("point %d has longitude %g; want -179.75", i, g.Lons[i])
	}
	last := g.Len() - 1
	if g.Lats[last] != -90 {
		t.Errorf("last point latitude %g; want -90", g.Lats[last])
	}
}

func TestRegularGridBBox(t *testing.T) {
	full, err := RegularGrid(0.25, nil)
	if err != nil {
		t.Fatal(err)
	}
	whole, err := RegularGrid(0.25, &BBox{LonMin: -180, LatMin: -90, LonMax: 180, LatMax: 90})
	if err != nil {
		t.Fatal(err)
	}
	if whole.Len() != full.Len() {
		t.Errorf("full bounding box selects %d points; want %d", whole.Len(), full.Len())
	}

	sub, err := RegularGrid(0.25, &BBox{LonMin: 12, LatMin: 46, LonMax: 17, LatMax: 50})
	if err != nil {
		t.Fatal(err)
	}
	// Boundaries are inclusive: 21 longitudes times 17 latitudes.
	if want := 21 * 17; sub.Len() != want {
		t.Errorf("bounding box selects %d points; want %d", sub.Len(), want)
	}
	// Subset points keep the GPIs of the full grid.
	for i, gpi := range sub.GPIs {
		if full.Lons[gpi] != sub.Lons[i] || full.Lats[gpi] != sub.Lats[i] {
			t.Fatalf("subset point %d (gpi %d) is (%g, %g); full grid has (%g, %g)",
				i, gpi, sub.Lons[i], sub.Lats[i], full.Lons[gpi], full.Lats[gpi])
		}
	}
}

func TestGridSubset(t *testing.T) {
	full, err := RegularGrid(0.25, nil)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := full.Subset(&BBox{LonMin: 12, LatMin: 46, LonMax: 17, LatMax: 50})
	if err != nil {
		t.Fatal(err)
	}
	direct, err := RegularGrid(0.25, &BBox{LonMin: 12, LatMin: 46, LonMax: 17, LatMax: 50})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Len() != direct.Len() {
		t.Fatalf("Subset selects %d points; direct construction %d", sub.Len(), direct.Len())
	}
	for i := range sub.GPIs {
		if sub.GPIs[i] != direct.GPIs[i] {
			t.Fatalf("point %d: Subset gpi %d != direct gpi %d", i, sub.GPIs[i], direct.GPIs[i])
		}
	}

	if _, err := full.Subset(&BBox{LonMin: 10, LatMin: 40, LonMax: 10.1, LatMax: 40.1}); err == nil {
		t.Error("empty subset should fail")
	}
}

func TestCellIndex(t *testing.T) {
	if CellIndex(15, 48) != CellIndex(16.5, 49.9) {
		t.Error("points in the same 5 degree cell have different indices")
	}
	if CellIndex(15, 48) == CellIndex(15, 51) {
		t.Error("points in different cells share an index")
	}
	// The antimeridian and the poles clamp into the outermost cells.
	if CellIndex(180, 90) != CellIndex(179.9, 89.9) {
		t.Error("boundary points do not clamp into the last cell")
	}
	if got, want := CellIndex(-180, -90), 0; got != want {
		t.Errorf("south-west corner cell = %d; want %d", got, want)
	}
}

func TestGridResolution(t *testing.T) {
	g, err := RegularGrid(0.3, nil)
	if err != nil {
		t.Fatal(err)
	}
	latRes, lonRes, err := GridResolution(g.Lats, g.Lons)
	if err != nil {
		t.Fatal(err)
	}
	if latRes != 0.3 || lonRes != 0.3 {
		t.Errorf("inferred resolution (%g, %g); want (0.3, 0.3)", latRes, lonRes)
	}

	_, _, err = GridResolution([]float64{0, 0.25, 0.8}, []float64{0, 0.25, 0.5})
	if !errors.Is(err, ErrGridNotRegular) {
		t.Errorf("irregular axis error = %v; want ErrGridNotRegular", err)
	}
}

func TestRegularGridFromAxes(t *testing.T) {
	lats := axis(50, -0.25, 3)
	lons := axis(10, 0.25, 4)
	g, err := RegularGridFromAxes(lats, lons)
	if err != nil {
		t.Fatal(err)
	}
	if g.Len() != 12 {
		t.Fatalf("%d points; want 12", g.Len())
	}
	// Point order matches the flattened file layout.
	if g.GPIs[5] != 5 || g.Lats[5] != 49.75 || g.Lons[5] != 10.25 {
		t.Errorf("point 5 = gpi %d (%g, %g); want gpi 5 (10.25, 49.75)",
			g.GPIs[5], g.Lons[5], g.Lats[5])
	}
}

func TestGridNearest(t *testing.T) {
	g, err := RegularGrid(0.25, nil)
	if err != nil {
		t.Fatal(err)
	}
	pos, dist := g.Nearest(15, 48)
	if dist != 0 {
		t.Fatalf("nearest to an exact grid point is %g degrees away", dist)
	}
	if g.Lons[pos] != 15 || g.Lats[pos] != 48 {
		t.Errorf("nearest to (15, 48) is (%g, %g)", g.Lons[pos], g.Lats[pos])
	}

	pos, _ = g.Nearest(15.1, 48.1)
	if g.Lons[pos] != 15 || g.Lats[pos] != 48 {
		t.Errorf("nearest to (15.1, 48.1) is (%g, %g); want (15, 48)", g.Lons[pos], g.Lats[pos])
	}
}

func TestIrregularGrid(t *testing.T) {
	lons := []float64{10, 200.5, 350}
	lats := []float64{48, 47.3, -12}
	g, err := IrregularGrid(lons, lats, nil)
	if err != nil {
		t.Fatal(err)
	}
	if g.Lons[1] != -159.5 {
		t.Errorf("longitude 200.5 normalized to %g; want -159.5", g.Lons[1])
	}
	pos, dist := g.Nearest(-159.4, 47.3)
	if pos != 1 || dist > 0.2 {
		t.Errorf("nearest = point %d at %g degrees; want point 1", pos, dist)
	}

	sub, err := IrregularGrid(lons, lats, &BBox{LonMin: 0, LatMin: 40, LonMax: 20, LatMax: 50})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Len() != 1 || sub.GPIs[0] != 0 {
		t.Errorf("bounding box selected %d points; want just point 0", sub.Len())
	}
}

// writeTestLandmask writes a land definition file for the given
// resolution where every point north of the equator is land.
func writeTestLandmask(t *testing.T, dir string, res float64) {
	t.Helper()
	full, err := RegularGrid(res, nil)
	if err != nil {
		t.Fatal(err)
	}
	nLat, nLon, _ := full.Shape2D()
	land := make([]float32, full.Len())
	for i := range land {
		switch {
		case full.Lats[i] <= AntarcticaCutoff:
			land[i] = float32(math.NaN())
		case full.Lats[i] > 0:
			land[i] = 1
		}
	}
	lats := axis(90, -res, nLat)
	lons := axis(0, res, nLon)
	writeTestImage(t, filepath.Join(dir, landDefinitionFilename(res)),
		lats, lons, []testField{{name: "land", data: land}})
}

func landDefinitionFilename(res float64) string {
	return filepath.Base(landDefinitionPath(res))
}

func TestLandGrid(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ECMWF_LAND_DEFINITIONS", dir)

	const res = 1.0
	writeTestLandmask(t, dir, res)

	full, err := RegularGrid(res, nil)
	if err != nil {
		t.Fatal(err)
	}
	land, err := LandGrid(res, nil)
	if err != nil {
		t.Fatal(err)
	}
	if land.Len() >= full.Len() {
		t.Errorf("land grid has %d points; want fewer than the full grid's %d", land.Len(), full.Len())
	}
	for i := range land.GPIs {
		if land.Lats[i] <= 0 {
			t.Fatalf("land grid contains sea point (%g, %g)", land.Lons[i], land.Lats[i])
		}
	}
	// Every land point exists at zero distance in the full grid.
	for _, i := range []int{0, land.Len() / 2, land.Len() - 1} {
		if _, dist := full.Nearest(land.Lons[i], land.Lats[i]); dist != 0 {
			t.Errorf("land point (%g, %g) is %g degrees from the full grid",
				land.Lons[i], land.Lats[i], dist)
		}
	}

	sub, err := LandGrid(res, &BBox{LonMin: 12, LatMin: 46, LonMax: 17, LatMax: 50})
	if err != nil {
		t.Fatal(err)
	}
	if want := 6 * 5; sub.Len() != want {
		t.Errorf("bounded land grid has %d points; want %d", sub.Len(), want)
	}

	if _, err := LandGrid(0.3, nil); !errors.Is(err, ErrNoLandSeaMask) {
		t.Errorf("missing land definition error = %v; want ErrNoLandSeaMask", err)
	}
}

func TestShape2D(t *testing.T) {
	g, err := RegularGrid(1.0, &BBox{LonMin: 10, LatMin: 40, LonMax: 12, LatMax: 41})
	if err != nil {
		t.Fatal(err)
	}
	nLat, nLon, ok := g.Shape2D()
	if !ok || nLat != 2 || nLon != 3 {
		t.Fatalf("shape = %d x %d (%v); want 2 x 3", nLat, nLon, ok)
	}

	// Dropping one point breaks the rectangle.
	g.GPIs = g.GPIs[1:]
	g.Lons = g.Lons[1:]
	g.Lats = g.Lats[1:]
	if _, _, ok := g.Shape2D(); ok {
		t.Error("incomplete rectangle reported as complete")
	}
}
