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
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
)

// testField is one variable of a fixture image file.
type testField struct {
	name  string
	data  []float32
	units string
	long  string
}

// writeTestImage writes a single-timestamp NetCDF image fixture with
// the given coordinate axes and variables.
func writeTestImage(t *testing.T, path string, lats, lons []float64, fields []testField) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		t.Fatal(err)
	}
	h := cdf.NewHeader([]string{"latitude", "longitude"}, []int{len(lats), len(lons)})
	h.AddVariable("latitude", []string{"latitude"}, []float64{0})
	h.AddAttribute("latitude", "units", "degrees_north")
	h.AddVariable("longitude", []string{"longitude"}, []float64{0})
	h.AddAttribute("longitude", "units", "degrees_east")
	for _, fld := range fields {
		h.AddVariable(fld.name, []string{"latitude", "longitude"}, []float32{0})
		if fld.units != "" {
			h.AddAttribute(fld.name, "units", fld.units)
		}
		if fld.long != "" {
			h.AddAttribute(fld.name, "long_name", fld.long)
		}
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		t.Fatal(errs[0])
	}
	ff, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	f, err := cdf.Create(ff, h)
	if err != nil {
		t.Fatal(err)
	}
	w := f.Writer("latitude", nil, nil)
	if _, err := w.Write(lats); err != nil && err != io.EOF {
		t.Fatal(err)
	}
	w = f.Writer("longitude", nil, nil)
	if _, err := w.Write(lons); err != nil && err != io.EOF {
		t.Fatal(err)
	}
	for _, fld := range fields {
		w := f.Writer(fld.name, nil, nil)
		if _, err := w.Write(fld.data); err != nil && err != io.EOF {
			t.Fatal(err)
		}
	}
	if err := ff.Close(); err != nil {
		t.Fatal(err)
	}
}

// axis returns n evenly spaced values starting at start.
func axis(start, step float64, n int) []float64 {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = start + float64(i)*step
	}
	return vals
}

// ramp returns n float32 values 0, 1, 2, ...
func ramp(n int) []float32 {
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = float32(i)
	}
	return vals
}
