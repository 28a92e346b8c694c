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

// Package timeseries converts time-ordered stacks of reanalysis images
// into an archive of time series files, chunked into 5°×5° cells, and
// reads such archives back.
package timeseries

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ctessum/cdf"
	"github.com/spatialmodel/ecmwf"
)

// GridFilename is the name of the file holding the archive's grid.
const GridFilename = "grid.nc"

// WriteGrid stores the grid an archive is built on as a NetCDF file in
// the archive directory.
func WriteGrid(dir string, g *ecmwf.Grid) error {
	n := g.Len()
	h := cdf.NewHeader([]string{"locations"}, []int{n})
	h.AddVariable("gpi", []string{"locations"}, []int32{0})
	h.AddAttribute("gpi", "long_name", "grid point index")
	h.AddVariable("lon", []string{"locations"}, []float64{0})
	h.AddAttribute("lon", "units", "degrees_east")
	h.AddVariable("lat", []string{"locations"}, []float64{0})
	h.AddAttribute("lat", "units", "degrees_north")
	h.AddVariable("cell", []string{"locations"}, []int32{0})
	h.AddAttribute("cell", "long_name", "cell index")
	if g.LonRes > 0 {
		h.AddAttribute("", "lon_res", []float64{g.LonRes})
		h.AddAttribute("", "lat_res", []float64{g.LatRes})
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("timeseries: building grid file header: %v", errs[0])
	}

	gpis := make([]int32, n)
	cells := make([]int32, n)
	for i := range gpis {
		gpis[i] = int32(g.GPIs[i])
		cells[i] = int32(g.Cells[i])
	}

	path := filepath.Join(dir, GridFilename)
	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("timeseries: creating grid file %s: %v", path, err)
	}
	f, err := cdf.Create(ff, h)
	if err != nil {
		ff.Close()
		return fmt.Errorf("timeseries: creating grid file %s: %v", path, err)
	}
	for _, v := range []struct {
		name string
		vals interface{}
	}{
		{"gpi", gpis},
		{"lon", g.Lons},
		{"lat", g.Lats},
		{"cell", cells},
	} {
		w := f.Writer(v.name, nil, nil)
		if _, err := w.Write(v.vals); err != nil && err != io.EOF {
			ff.Close()
			return fmt.Errorf("timeseries: writing grid file %s: %v", path, err)
		}
	}
	if err := ff.Close(); err != nil {
		return fmt.Errorf("timeseries: writing grid file %s: %v", path, err)
	}
	return nil
}

// ReadGrid loads the grid of the archive in dir.
func ReadGrid(dir string) (*ecmwf.Grid, error) {
	path := filepath.Join(dir, GridFilename)
	ff, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("timeseries: opening grid file %s: %v", path, err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("timeseries: reading grid file %s: %v", path, err)
	}

	read := func(name string) ([]float64, error) {
		n := f.Header.Lengths(name)
		if len(n) == 0 {
			return nil, fmt.Errorf("timeseries: grid file %s has no variable %s", path, name)
		}
		r := f.Reader(name, nil, nil)
		buf := r.Zero(n[0])
		if _, err := r.Read(buf); err != nil {
			return nil, fmt.Errorf("timeseries: reading grid file %s: %v", path, err)
		}
		switch b := buf.(type) {
		case []float64:
			return b, nil
		case []int32:
			vals := make([]float64, len(b))
			for i, v := range b {
				vals[i] = float64(v)
			}
			return vals, nil
		}
		return nil, fmt.Errorf("timeseries: grid file %s: variable %s has unexpected type", path, name)
	}

	gpis, err := read("gpi")
	if err != nil {
		return nil, err
	}
	lons, err := read("lon")
	if err != nil {
		return nil, err
	}
	lats, err := read("lat")
	if err != nil {
		return nil, err
	}
	cells, err := read("cell")
	if err != nil {
		return nil, err
	}

	g := &ecmwf.Grid{
		GPIs:  make([]int, len(gpis)),
		Lons:  lons,
		Lats:  lats,
		Cells: make([]int, len(cells)),
	}
	for i := range gpis {
		g.GPIs[i] = int(gpis[i])
		g.Cells[i] = int(cells[i])
	}
	if res := f.Header.GetAttribute("", "lon_res"); res != nil {
		if r, ok := res.([]float64); ok && len(r) > 0 {
			g.LonRes = r[0]
		}
	}
	if res := f.Header.GetAttribute("", "lat_res"); res != nil {
		if r, ok := res.([]float64); ok && len(r) > 0 {
			g.LatRes = r[0]
		}
	}
	return g, nil
}
