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
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// CellSize is the edge length in degrees of the square cells that grids
// are partitioned into for time series storage.
const CellSize = 5.0

// AntarcticaCutoff is the latitude below which land grids never contain
// points, regardless of the land definition file contents.
const AntarcticaCutoff = -60.0

var (
	// ErrGridNotRegular is returned when a set of coordinates cannot be
	// described by a single constant grid spacing.
	ErrGridNotRegular = errors.New("ecmwf: grid is not regular")

	// ErrNoLandSeaMask is returned when an operation requires a
	// land-sea mask that is not available.
	ErrNoLandSeaMask = errors.New("ecmwf: no land-sea mask available")
)

// LandDefinitionDir is the directory holding the land definition files
// used by LandGrid. It can be overridden with the ECMWF_LAND_DEFINITIONS
// environment variable.
var LandDefinitionDir = "land_definition_files"

// BBox is a latitude-longitude bounding box. Boundaries are inclusive.
type BBox struct {
	LonMin, LatMin, LonMax, LatMax float64
}

// Contains reports whether the point (lon, lat) lies within or on the
// boundary of the receiver.
func (b *BBox) Contains(lon, lat float64) bool {
	const eps = 1.e-9
	return lon >= b.LonMin-eps && lon <= b.LonMax+eps &&
		lat >= b.LatMin-eps && lat <= b.LatMax+eps
}

// NormalizeLon maps a longitude from the [0, 360) convention used in
// the data files to the (-180, 180] convention used everywhere else.
func NormalizeLon(lon float64) float64 {
	if lon > 180 {
		return lon - 360
	}
	return lon
}

// CellIndex returns the index of the 5°×5° cell containing the given
// point. Cells are numbered row-major from the south-west corner of the
// globe, so two points share a cell index if and only if they fall in
// the same cell.
func CellIndex(lon, lat float64) int {
	const perRow = int(360 / CellSize)
	col := int(math.Floor((lon + 180) / CellSize))
	if col < 0 {
		col = 0
	} else if col >= perRow {
		col = perRow - 1
	}
	row := int(math.Floor((lat + 90) / CellSize))
	if row < 0 {
		row = 0
	} else if row >= int(180/CellSize) {
		row = int(180/CellSize) - 1
	}
	return row*perRow + col
}

// Grid is a set of grid points on the globe. Each point carries a grid
// point index (GPI) that is stable under subsetting: a point keeps the
// GPI it had in the grid it was selected from.
type Grid struct {
	// GPIs are the grid point indices, parallel to Lons and Lats.
	GPIs []int
	// Lons are longitudes in the (-180, 180] convention.
	Lons []float64
	// Lats are latitudes, descending from north to south in the order
	// points were generated.
	Lats []float64
	// Cells are the 5°×5° cell indices of each point.
	Cells []int

	// LonRes and LatRes are the grid spacings in degrees. Both are zero
	// for irregular grids.
	LonRes, LatRes float64

	// nLon and nLat are the dimensions of the full grid that the points
	// were selected from. Zero for irregular grids.
	nLon, nLat int

	// lat0 is the northernmost latitude and lon0 the westernmost
	// longitude (in the [0, 360) convention) of the full grid.
	lat0, lon0 float64

	index map[int]int
	tree  *rtree.Rtree
}

// Len returns the number of points in the grid.
func (g *Grid) Len() int { return len(g.GPIs) }

// Position returns the index into the point slices of the point with
// the given GPI.
func (g *Grid) Position(gpi int) (int, bool) {
	if g.index == nil {
		g.index = make(map[int]int, len(g.GPIs))
		for i, p := range g.GPIs {
			g.index[p] = i
		}
	}
	i, ok := g.index[gpi]
	return i, ok
}

// ActiveCells returns the sorted list of cell indices that contain at
// least one grid point.
func (g *Grid) ActiveCells() []int {
	seen := make(map[int]struct{})
	for _, c := range g.Cells {
		seen[c] = struct{}{}
	}
	cells := make([]int, 0, len(seen))
	for c := range seen {
		cells = append(cells, c)
	}
	sort.Ints(cells)
	return cells
}

// PointsInCell returns the positions of the points within the given
// cell, in grid order.
func (g *Grid) PointsInCell(cell int) []int {
	var pts []int
	for i, c := range g.Cells {
		if c == cell {
			pts = append(pts, i)
		}
	}
	return pts
}

// Shape2D returns the dimensions of the smallest lat-lon rectangle
// holding all grid points, and whether the points completely fill that
// rectangle. Data can only be returned as a 2-dimensional array when
// they do.
func (g *Grid) Shape2D() (nLat, nLon int, ok bool) {
	lats := uniqueSorted(g.Lats)
	lons := uniqueSorted(g.Lons)
	return len(lats), len(lons), len(lats)*len(lons) == g.Len()
}

type gridPoint struct {
	geom.Point
	pos int
}

// Nearest returns the position of the grid point closest to (lon, lat)
// and the distance to it in degrees.
func (g *Grid) Nearest(lon, lat float64) (int, float64) {
	if g.nLon > 0 {
		// Closed-form lookup on the parent regular grid.
		raw := lon
		if raw < 0 {
			raw += 360
		}
		c := ((int(math.Round((raw-g.lon0)/g.LonRes)) % g.nLon) + g.nLon) % g.nLon
		r := int(math.Round((g.lat0 - lat) / g.LatRes))
		if r < 0 {
			r = 0
		} else if r >= g.nLat {
			r = g.nLat - 1
		}
		if i, ok := g.Position(r*g.nLon + c); ok {
			return i, pointDist(lon, lat, g.Lons[i], g.Lats[i])
		}
		// The closed-form point is not part of this grid (for example a
		// sea point queried against a land grid); fall through to the
		// spatial index.
	}
	if g.tree == nil {
		g.tree = rtree.NewTree(25, 50)
		for i := range g.GPIs {
			g.tree.Insert(&gridPoint{Point: geom.Point{X: g.Lons[i], Y: g.Lats[i]}, pos: i})
		}
	}
	halfWidth := math.Max(g.LonRes, 0.5)
	for {
		b := &geom.Bounds{
			Min: geom.Point{X: lon - halfWidth, Y: lat - halfWidth},
			Max: geom.Point{X: lon + halfWidth, Y: lat + halfWidth},
		}
		hits := g.tree.SearchIntersect(b)
		if len(hits) == 0 {
			if halfWidth > 360 {
				return -1, math.Inf(1)
			}
			halfWidth *= 2
			continue
		}
		best, bestDist := -1, math.Inf(1)
		for _, h := range hits {
			p := h.(*gridPoint)
			if d := pointDist(lon, lat, p.X, p.Y); d < bestDist {
				best, bestDist = p.pos, d
			}
		}
		// Only trust the result once the search box is wide enough that
		// no point outside it can be closer than the best hit inside.
		if bestDist <= halfWidth || halfWidth > 360 {
			return best, bestDist
		}
		halfWidth *= 2
	}
}

func pointDist(lon1, lat1, lon2, lat2 float64) float64 {
	dLon := math.Abs(lon1 - lon2)
	if dLon > 180 {
		dLon = 360 - dLon
	}
	return math.Hypot(dLon, lat1-lat2)
}

// RegularGrid creates a global regular grid with the given spacing in
// degrees, optionally restricted to a bounding box. Longitudes start at
// the prime meridian and wrap eastward, matching the storage order of
// the data files; latitudes descend from 90° to -90° inclusive.
func RegularGrid(res float64, bbox *BBox) (*Grid, error) {
	if res <= 0 {
		return nil, fmt.Errorf("ecmwf: invalid grid resolution %g", res)
	}
	nLon := int(math.Round(360 / res))
	nLat := int(math.Round(180/res)) + 1

	rows := make([]int, 0, nLat)
	for r := 0; r < nLat; r++ {
		if bbox != nil {
			lat := 90 - float64(r)*res
			if lat < bbox.LatMin-1.e-9 || lat > bbox.LatMax+1.e-9 {
				continue
			}
		}
		rows = append(rows, r)
	}
	cols := make([]int, 0, nLon)
	for c := 0; c < nLon; c++ {
		if bbox != nil {
			lon := NormalizeLon(float64(c) * res)
			if lon < bbox.LonMin-1.e-9 || lon > bbox.LonMax+1.e-9 {
				continue
			}
		}
		cols = append(cols, c)
	}
	if len(rows) == 0 || len(cols) == 0 {
		return nil, fmt.Errorf("ecmwf: no grid points within bounding box %+v", *bbox)
	}

	n := len(rows) * len(cols)
	g := &Grid{
		GPIs:   make([]int, 0, n),
		Lons:   make([]float64, 0, n),
		Lats:   make([]float64, 0, n),
		Cells:  make([]int, 0, n),
		LonRes: res,
		LatRes: res,
		nLon:   nLon,
		nLat:   nLat,
		lat0:   90,
	}
	for _, r := range rows {
		lat := 90 - float64(r)*res
		for _, c := range cols {
			lon := NormalizeLon(float64(c) * res)
			g.GPIs = append(g.GPIs, r*nLon+c)
			g.Lons = append(g.Lons, lon)
			g.Lats = append(g.Lats, lat)
			g.Cells = append(g.Cells, CellIndex(lon, lat))
		}
	}
	return g, nil
}

// LandGrid creates a regular grid with the given spacing restricted to
// land points, optionally further restricted to a bounding box. Land
// membership comes from the land definition file for the resolution;
// ErrNoLandSeaMask is returned when no such file exists. Points south
// of AntarcticaCutoff are always excluded.
func LandGrid(res float64, bbox *BBox) (*Grid, error) {
	full, err := RegularGrid(res, nil)
	if err != nil {
		return nil, err
	}
	land, err := readLandDefinition(res, full.Len())
	if err != nil {
		return nil, err
	}
	g := &Grid{
		LonRes: res,
		LatRes: res,
		nLon:   full.nLon,
		nLat:   full.nLat,
		lat0:   90,
	}
	for i := range full.GPIs {
		if !land[i] || full.Lats[i] <= AntarcticaCutoff {
			continue
		}
		if bbox != nil && !bbox.Contains(full.Lons[i], full.Lats[i]) {
			continue
		}
		g.GPIs = append(g.GPIs, full.GPIs[i])
		g.Lons = append(g.Lons, full.Lons[i])
		g.Lats = append(g.Lats, full.Lats[i])
		g.Cells = append(g.Cells, full.Cells[i])
	}
	if g.Len() == 0 {
		if bbox == nil {
			return nil, fmt.Errorf("ecmwf: land definition file %s marks no land points", landDefinitionPath(res))
		}
		return nil, fmt.Errorf("ecmwf: no land points within bounding box %+v", *bbox)
	}
	return g, nil
}

func landDefinitionPath(res float64) string {
	dir := LandDefinitionDir
	if d := os.Getenv("ECMWF_LAND_DEFINITIONS"); d != "" {
		dir = d
	}
	return filepath.Join(dir, fmt.Sprintf("landmask_%v_%v.nc", res, res))
}

// readLandDefinition loads the land flags for the given resolution in
// full-grid point order.
func readLandDefinition(res float64, n int) ([]bool, error) {
	path := landDefinitionPath(res)
	ff, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (set ECMWF_LAND_DEFINITIONS to the "+
			"directory holding the land definition files)", ErrNoLandSeaMask, path)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("ecmwf: reading land definition file %s: %v", path, err)
	}
	vals, err := readNCVar(f, "land")
	if err != nil {
		return nil, fmt.Errorf("ecmwf: reading land definition file %s: %v", path, err)
	}
	if len(vals) != n {
		return nil, fmt.Errorf("ecmwf: land definition file %s has %d points; want %d",
			path, len(vals), n)
	}
	land := make([]bool, n)
	for i, v := range vals {
		land[i] = v >= 0.5
	}
	return land, nil
}

// Subset returns the points of the receiver falling within the
// bounding box. The points keep their GPIs, so data indexed by GPI in
// the parent grid stays valid for the subset.
func (g *Grid) Subset(bbox *BBox) (*Grid, error) {
	if bbox == nil {
		return g, nil
	}
	s := &Grid{
		LonRes: g.LonRes,
		LatRes: g.LatRes,
		nLon:   g.nLon,
		nLat:   g.nLat,
		lat0:   g.lat0,
		lon0:   g.lon0,
	}
	for i := range g.GPIs {
		if !bbox.Contains(g.Lons[i], g.Lats[i]) {
			continue
		}
		s.GPIs = append(s.GPIs, g.GPIs[i])
		s.Lons = append(s.Lons, g.Lons[i])
		s.Lats = append(s.Lats, g.Lats[i])
		s.Cells = append(s.Cells, g.Cells[i])
	}
	if s.Len() == 0 {
		return nil, fmt.Errorf("ecmwf: no grid points within bounding box %+v", *bbox)
	}
	return s, nil
}

// RegularGridFromAxes creates a grid from the coordinate axes of a
// data file. The points keep the file's storage order, with latitude
// as the outer dimension, so GPIs index directly into the file's
// flattened data arrays. ErrGridNotRegular is returned when the axes
// do not have constant spacings.
func RegularGridFromAxes(lats, lons []float64) (*Grid, error) {
	latRes, lonRes, err := GridResolution(lats, lons)
	if err != nil {
		return nil, err
	}
	n := len(lats) * len(lons)
	g := &Grid{
		GPIs:   make([]int, 0, n),
		Lons:   make([]float64, 0, n),
		Lats:   make([]float64, 0, n),
		Cells:  make([]int, 0, n),
		LonRes: lonRes,
		LatRes: latRes,
		nLon:   len(lons),
		nLat:   len(lats),
		lat0:   lats[0],
		lon0:   lons[0],
	}
	for r, lat := range lats {
		for c, rawLon := range lons {
			lon := NormalizeLon(rawLon)
			g.GPIs = append(g.GPIs, r*len(lons)+c)
			g.Lons = append(g.Lons, lon)
			g.Lats = append(g.Lats, lat)
			g.Cells = append(g.Cells, CellIndex(lon, lat))
		}
	}
	return g, nil
}

// IrregularGrid creates a grid from explicit point coordinates, for
// products that are not distributed on a regular lat-lon grid.
// Longitudes are normalized to (-180, 180]; GPIs number the points in
// the order given.
func IrregularGrid(lons, lats []float64, bbox *BBox) (*Grid, error) {
	if len(lons) != len(lats) {
		return nil, fmt.Errorf("ecmwf: %d longitudes but %d latitudes", len(lons), len(lats))
	}
	g := new(Grid)
	for i := range lons {
		lon := NormalizeLon(lons[i])
		if bbox != nil && !bbox.Contains(lon, lats[i]) {
			continue
		}
		g.GPIs = append(g.GPIs, i)
		g.Lons = append(g.Lons, lon)
		g.Lats = append(g.Lats, lats[i])
		g.Cells = append(g.Cells, CellIndex(lon, lats[i]))
	}
	if g.Len() == 0 {
		if bbox == nil {
			return nil, fmt.Errorf("ecmwf: grid has no points")
		}
		return nil, fmt.Errorf("ecmwf: no grid points within bounding box %+v", *bbox)
	}
	return g, nil
}

// GridResolution infers the constant spacing of a regular grid from its
// latitude and longitude axis values. ErrGridNotRegular is returned
// when either axis does not have a single spacing after rounding to
// three decimal places.
func GridResolution(lats, lons []float64) (latRes, lonRes float64, err error) {
	latRes, err = axisResolution(lats)
	if err != nil {
		return 0, 0, err
	}
	lonRes, err = axisResolution(lons)
	if err != nil {
		return 0, 0, err
	}
	return latRes, lonRes, nil
}

func axisResolution(vals []float64) (float64, error) {
	u := uniqueSorted(vals)
	if len(u) < 2 {
		return 0, ErrGridNotRegular
	}
	res := round3(u[1] - u[0])
	for i := 2; i < len(u); i++ {
		if round3(u[i]-u[i-1]) != res {
			return 0, ErrGridNotRegular
		}
	}
	return res, nil
}

func uniqueSorted(vals []float64) []float64 {
	u := make([]float64, len(vals))
	copy(u, vals)
	sort.Float64s(u)
	out := u[:0]
	for i, v := range u {
		if i == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
