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

package timeseries

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/ecmwf"
)

// fakeSource yields synthetic images on a fixed grid. The value of a
// variable at a point encodes both the timestamp and the point, so a
// converted archive can be checked exhaustively.
type fakeSource struct {
	grid  *ecmwf.Grid
	hours []int
	fail  map[time.Time]bool
}

func (s *fakeSource) Timestamps(start, end time.Time) []time.Time {
	return ecmwf.TimestampsForRange(start, end, s.hours)
}

// value is the synthetic data value at point position i of the image at
// time t.
func value(t time.Time, i int) float64 {
	return float64(t.YearDay()*100+t.Hour()) + float64(i)/1000
}

func (s *fakeSource) Read(t time.Time) (*ecmwf.Image, error) {
	if s.fail[t] {
		return nil, fmt.Errorf("simulated read failure")
	}
	a := sparse.ZerosDense(s.grid.Len())
	for i := range a.Elements {
		a.Elements[i] = value(t, i)
	}
	return &ecmwf.Image{
		Time: t,
		Grid: s.grid,
		Data: map[string]*sparse.DenseArray{"swvl1": a},
		Metadata: map[string]ecmwf.VarMetadata{
			"swvl1": {Units: "m**3 m**-3"},
		},
	}, nil
}

// testGrid is a 10×10 degree patch spanning four cells.
func testGrid(t *testing.T) *ecmwf.Grid {
	t.Helper()
	g, err := ecmwf.RegularGrid(1.0, &ecmwf.BBox{LonMin: 0, LatMin: 0, LonMax: 9, LatMax: 9})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestImg2Ts(t *testing.T) {
	g := testGrid(t)
	src := &fakeSource{grid: g, hours: []int{0, 12}}
	out := t.TempDir()
	c := &Img2Ts{
		Source:    src,
		OutPath:   out,
		Grid:      g,
		Variables: []string{"swvl1"},
		ImgBuffer: 3, // force an uneven batch split
		NWorkers:  2,
	}
	start := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2010, 1, 2, 23, 0, 0, 0, time.UTC)
	if err := c.Run(start, end); err != nil {
		t.Fatal(err)
	}

	a, err := OpenArchive(out)
	if err != nil {
		t.Fatal(err)
	}
	if a.Grid().Len() != g.Len() {
		t.Fatalf("archive grid has %d points; want %d", a.Grid().Len(), g.Len())
	}

	stamps := src.Timestamps(start, end)
	if len(stamps) != 4 {
		t.Fatalf("%d timestamps; want 4", len(stamps))
	}
	for _, pos := range []int{0, 37, g.Len() - 1} {
		s, err := a.ReadPoint(g.GPIs[pos])
		if err != nil {
			t.Fatal(err)
		}
		if len(s.Times) != len(stamps) {
			t.Fatalf("point %d has %d records; want %d", pos, len(s.Times), len(stamps))
		}
		for ti, ts := range stamps {
			if !s.Times[ti].Equal(ts) {
				t.Errorf("point %d record %d at %v; want %v", pos, ti, s.Times[ti], ts)
			}
			want := value(ts, pos)
			if got := s.Data["swvl1"][ti]; math.Abs(got-want) > 1e-4 {
				t.Errorf("point %d at %v = %v; want %v", pos, ts, got, want)
			}
		}
		if s.Lon != g.Lons[pos] || s.Lat != g.Lats[pos] {
			t.Errorf("point %d at (%v, %v); want (%v, %v)", pos, s.Lon, s.Lat, g.Lons[pos], g.Lats[pos])
		}
	}

	// Lookup by coordinates snaps to the nearest point.
	s, err := a.ReadLonLat(2.3, 6.8)
	if err != nil {
		t.Fatal(err)
	}
	if s.Lon != 2 || s.Lat != 7 {
		t.Errorf("nearest point (%v, %v); want (2, 7)", s.Lon, s.Lat)
	}

	first, last, err := a.Period()
	if err != nil {
		t.Fatal(err)
	}
	if !first.Equal(stamps[0]) || !last.Equal(stamps[len(stamps)-1]) {
		t.Errorf("period %v to %v; want %v to %v", first, last, stamps[0], stamps[len(stamps)-1])
	}
}

func TestImg2TsBufferInvariance(t *testing.T) {
	g := testGrid(t)
	src := &fakeSource{grid: g, hours: []int{0, 6, 12, 18}}
	start := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2010, 1, 3, 23, 0, 0, 0, time.UTC)

	outs := make([]string, 0, 3)
	for _, buffer := range []int{1, 5, 50} {
		out := t.TempDir()
		c := &Img2Ts{
			Source:    src,
			OutPath:   out,
			Grid:      g,
			Variables: []string{"swvl1"},
			ImgBuffer: buffer,
		}
		if err := c.Run(start, end); err != nil {
			t.Fatal(err)
		}
		outs = append(outs, out)
	}

	for _, cell := range g.ActiveCells() {
		ref, err := readCellFile(filepath.Join(outs[0], CellFilename(cell)))
		if err != nil {
			t.Fatal(err)
		}
		for _, out := range outs[1:] {
			got, err := readCellFile(filepath.Join(out, CellFilename(cell)))
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got.times, ref.times) {
				t.Errorf("cell %d: time axis differs between buffer sizes", cell)
			}
			if !reflect.DeepEqual(got.data, ref.data) {
				t.Errorf("cell %d: stored data differ between buffer sizes", cell)
			}
		}
	}
}

func TestImg2TsFailedImage(t *testing.T) {
	g := testGrid(t)
	failed := time.Date(2010, 1, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		grid:  g,
		hours: []int{0, 12},
		fail:  map[time.Time]bool{failed: true},
	}
	out := t.TempDir()
	c := &Img2Ts{Source: src, OutPath: out, Grid: g, Variables: []string{"swvl1"}}
	if err := c.Run(failed.Add(-12*time.Hour), failed.Add(12*time.Hour)); err != nil {
		t.Fatal(err)
	}

	a, err := OpenArchive(out)
	if err != nil {
		t.Fatal(err)
	}
	s, err := a.ReadPoint(g.GPIs[0])
	if err != nil {
		t.Fatal(err)
	}
	// The time axis covers the failed image too; its values are NaN.
	if len(s.Times) != 4 {
		t.Fatalf("%d records; want 4", len(s.Times))
	}
	if !s.Times[1].Equal(failed) {
		t.Errorf("record 1 at %v; want %v", s.Times[1], failed)
	}
	if !math.IsNaN(s.Data["swvl1"][1]) {
		t.Errorf("failed image stored %v; want NaN", s.Data["swvl1"][1])
	}
	for _, ti := range []int{0, 2, 3} {
		if math.IsNaN(s.Data["swvl1"][ti]) {
			t.Errorf("record %d is NaN", ti)
		}
	}
}

func TestImg2TsMetadataWithoutImages(t *testing.T) {
	g := testGrid(t)
	stamp := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{
		grid:  g,
		hours: []int{0},
		fail:  map[time.Time]bool{stamp: true},
	}
	out := t.TempDir()
	c := &Img2Ts{
		Source:    src,
		OutPath:   out,
		Grid:      g,
		Variables: []string{"swvl1"},
		Metadata: map[string]ecmwf.VarMetadata{
			"swvl1": {Units: "m**3 m**-3", LongName: "Volumetric soil water layer 1"},
		},
	}
	if err := c.Run(stamp, stamp); err != nil {
		t.Fatal(err)
	}

	// The only image failed, so the batch carried no image metadata;
	// the cell files must still be annotated from c.Metadata.
	ff, err := os.Open(filepath.Join(out, CellFilename(g.ActiveCells()[0])))
	if err != nil {
		t.Fatal(err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		t.Fatal(err)
	}
	if units := f.Header.GetAttribute("swvl1", "units"); units != "m**3 m**-3" {
		t.Errorf("swvl1 units attribute = %v; want m**3 m**-3", units)
	}
	if ln := f.Header.GetAttribute("swvl1", "long_name"); ln != "Volumetric soil water layer 1" {
		t.Errorf("swvl1 long_name attribute = %v; want Volumetric soil water layer 1", ln)
	}
}

func TestImg2TsFlushError(t *testing.T) {
	g := testGrid(t)
	src := &fakeSource{grid: g, hours: []int{0}}
	out := t.TempDir()
	// A directory squatting on one cell's file name makes that cell
	// unwritable; the failure must surface from Run.
	cell := g.ActiveCells()[0]
	if err := os.Mkdir(filepath.Join(out, CellFilename(cell)), os.ModePerm); err != nil {
		t.Fatal(err)
	}
	c := &Img2Ts{
		Source:    src,
		OutPath:   out,
		Grid:      g,
		Variables: []string{"swvl1"},
		NWorkers:  2,
	}
	d := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := c.Run(d, d); err == nil {
		t.Error("failed cell flush should fail the run")
	}
}

func TestImg2TsStartAfterEnd(t *testing.T) {
	g := testGrid(t)
	out := filepath.Join(t.TempDir(), "ts")
	c := &Img2Ts{
		Source:    &fakeSource{grid: g, hours: []int{0}},
		OutPath:   out,
		Grid:      g,
		Variables: []string{"swvl1"},
	}
	start := time.Date(2010, 1, 2, 0, 0, 0, 0, time.UTC)
	if err := c.Run(start, start.AddDate(0, 0, -1)); err != nil {
		t.Fatal(err)
	}
	// A no-op run creates nothing.
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("no-op run should not create the archive directory")
	}
}

func TestImg2TsExtend(t *testing.T) {
	g := testGrid(t)
	src := &fakeSource{grid: g, hours: []int{0, 12}}
	out := t.TempDir()
	c := &Img2Ts{Source: src, OutPath: out, Grid: g, Variables: []string{"swvl1"}}

	d1 := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := c.Run(d1, d1.AddDate(0, 0, 1).Add(23*time.Hour)); err != nil {
		t.Fatal(err)
	}
	d3 := d1.AddDate(0, 0, 2)
	if err := c.Run(d3, d3.AddDate(0, 0, 1).Add(23*time.Hour)); err != nil {
		t.Fatal(err)
	}

	a, err := OpenArchive(out)
	if err != nil {
		t.Fatal(err)
	}
	s, err := a.ReadPoint(g.GPIs[5])
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Times) != 8 {
		t.Fatalf("%d records after extension; want 8", len(s.Times))
	}
	for ti, ts := range s.Times {
		want := value(ts, 5)
		if got := s.Data["swvl1"][ti]; math.Abs(got-want) > 1e-4 {
			t.Errorf("record %d = %v; want %v", ti, got, want)
		}
	}
}

func TestImg2TsGridMismatch(t *testing.T) {
	g := testGrid(t)
	src := &fakeSource{grid: g, hours: []int{0}}
	out := t.TempDir()
	c := &Img2Ts{Source: src, OutPath: out, Grid: g, Variables: []string{"swvl1"}}
	d := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := c.Run(d, d); err != nil {
		t.Fatal(err)
	}

	sub, err := g.Subset(&ecmwf.BBox{LonMin: 0, LatMin: 0, LonMax: 4, LatMax: 4})
	if err != nil {
		t.Fatal(err)
	}
	c2 := &Img2Ts{
		Source:    &fakeSource{grid: sub, hours: []int{0}},
		OutPath:   out,
		Grid:      sub,
		Variables: []string{"swvl1"},
	}
	if err := c2.Run(d.AddDate(0, 0, 1), d.AddDate(0, 0, 1)); err == nil {
		t.Error("extending with a different grid should fail")
	}
}
