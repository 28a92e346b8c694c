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
	"log"
	"os"
	"time"

	"github.com/ctessum/cdf"
)

// NCImageReader reads single-timestamp NetCDF image files.
type NCImageReader struct {
	Config ReaderConfig
}

// Read reads the image stored in the NetCDF file at path. t is the
// image's nominal timestamp, taken from the file name rather than the
// file contents.
//
// Variables listed in the configuration but absent from the file are
// filled with NaN and logged, so one missing parameter does not abort
// a batch. Files holding several data versions of the same timestamp
// (an "expver" dimension) are merged by taking, at every point, the
// value from the first version that is not missing.
func (r *NCImageReader) Read(path string, t time.Time) (*Image, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ecmwf: opening image %s: %v", path, err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("ecmwf: reading image %s: %v", path, err)
	}

	fileGrid, err := readNCGrid(f)
	if err != nil {
		return nil, fmt.Errorf("ecmwf: reading image %s: %v", path, err)
	}
	n := fileGrid.Len()

	vals := make(map[string][]float64)
	meta := make(map[string]VarMetadata)
	for _, name := range r.Config.variables() {
		data, err := readNCField(f, name, n)
		if err != nil {
			log.Printf("image %s: variable %s: %v; filling with NaN", path, name, err)
			data = nanFill(n)
		}
		vals[name] = data
		meta[name] = r.ncMetadata(f, name)
	}

	var lsm []float64
	if r.Config.MaskSeapoints {
		lsm, err = readNCField(f, "lsm", n)
		if err != nil {
			return nil, fmt.Errorf("%w: image %s has no lsm variable", ErrNoLandSeaMask, path)
		}
	}
	return r.Config.finalize(t, fileGrid, vals, meta, lsm)
}

// ncMetadata assembles a variable's attributes from the file, falling
// back to the product's parameter table when the file carries none.
func (r *NCImageReader) ncMetadata(f *cdf.File, name string) VarMetadata {
	m := VarMetadata{}
	if u, ok := ncAttrString(f, name, "units"); ok {
		m.Units = u
	}
	if l, ok := ncAttrString(f, name, "long_name"); ok {
		m.LongName = l
	}
	if v, ok := r.Config.product().variable(name); ok {
		if m.Units == "" {
			m.Units = v.Units
		}
		if m.LongName == "" {
			m.LongName = v.LongName
		}
	}
	return m
}

// readNCGrid builds the grid an image file is stored on from its
// coordinate variables. Files with constant-spacing axes yield a
// regular grid; anything else is meshed into an irregular grid. In
// both cases point order matches the file's flattened data layout.
func readNCGrid(f *cdf.File) (*Grid, error) {
	lats, err := readNCAxis(f, "latitude", "lat")
	if err != nil {
		return nil, err
	}
	lons, err := readNCAxis(f, "longitude", "lon")
	if err != nil {
		return nil, err
	}
	g, err := RegularGridFromAxes(lats, lons)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, ErrGridNotRegular) {
		return nil, err
	}
	meshLons := make([]float64, 0, len(lats)*len(lons))
	meshLats := make([]float64, 0, len(lats)*len(lons))
	for _, lat := range lats {
		for _, lon := range lons {
			meshLons = append(meshLons, lon)
			meshLats = append(meshLats, lat)
		}
	}
	return IrregularGrid(meshLons, meshLats, nil)
}

// readNCField reads one data variable as a flat array of n points.
// Leading time dimensions are dropped by taking the first index;
// leading expver dimensions are merged first-non-missing.
func readNCField(f *cdf.File, name string, n int) ([]float64, error) {
	data, err := readNCVar(f, name)
	if err != nil {
		return nil, err
	}
	if len(data) == n {
		return data, nil
	}
	if len(data) == 0 || len(data)%n != 0 {
		return nil, fmt.Errorf("variable %s has %d values; want a multiple of %d grid points",
			name, len(data), n)
	}

	// Count expver versions among the leading dimensions.
	nExpver := 1
	dims := f.Header.Dimensions(name)
	lengths := f.Header.Lengths(name)
	for i, d := range dims {
		if d == "expver" {
			nExpver = lengths[i]
		}
	}
	if nExpver == 1 {
		// Only time leads; use the first slice.
		return data[:n], nil
	}

	// The expver versions of the first timestep are the first nExpver
	// point-slabs. Take the first non-missing value per point.
	merged := data[:n]
	for e := 1; e < nExpver; e++ {
		slab := data[e*n : (e+1)*n]
		for i := range merged {
			if merged[i] != merged[i] { // NaN
				merged[i] = slab[i]
			}
		}
	}
	return merged, nil
}
