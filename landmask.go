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
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/ctessum/cdf"
)

// MakeLandDefinitionFile derives a land definition file from an image
// file containing a land-sea mask variable, so that land grids can be
// built for resolutions no definition file is shipped for. Points with
// a mask fraction of at least 0.5 become land; everything south of
// AntarcticaCutoff is marked missing.
func MakeLandDefinitionFile(imagePath, outPath string) error {
	ff, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("ecmwf: opening image %s: %v", imagePath, err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return fmt.Errorf("ecmwf: reading image %s: %v", imagePath, err)
	}
	lats, err := readNCAxis(f, "latitude", "lat")
	if err != nil {
		return fmt.Errorf("ecmwf: reading image %s: %v", imagePath, err)
	}
	lons, err := readNCAxis(f, "longitude", "lon")
	if err != nil {
		return fmt.Errorf("ecmwf: reading image %s: %v", imagePath, err)
	}
	n := len(lats) * len(lons)
	lsm, err := readNCField(f, "lsm", n)
	if err != nil {
		if lsm, err = readNCField(f, "land_sea_mask", n); err != nil {
			return fmt.Errorf("%w: image %s has no land-sea mask variable", ErrNoLandSeaMask, imagePath)
		}
	}

	land := make([]float32, n)
	for r, lat := range lats {
		for c := range lons {
			i := r*len(lons) + c
			switch {
			case lat <= AntarcticaCutoff:
				land[i] = float32(math.NaN())
			case lsm[i] >= 0.5:
				land[i] = 1
			}
		}
	}

	h := cdf.NewHeader([]string{"latitude", "longitude"}, []int{len(lats), len(lons)})
	h.AddVariable("latitude", []string{"latitude"}, []float64{0})
	h.AddAttribute("latitude", "units", "degrees_north")
	h.AddVariable("longitude", []string{"longitude"}, []float64{0})
	h.AddAttribute("longitude", "units", "degrees_east")
	h.AddVariable("land", []string{"latitude", "longitude"}, []float32{0})
	h.AddAttribute("land", "long_name", "Land definition")
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("ecmwf: building land definition header: %v", errs[0])
	}

	if err := os.MkdirAll(filepath.Dir(outPath), os.ModePerm); err != nil {
		return fmt.Errorf("ecmwf: creating directory for %s: %v", outPath, err)
	}
	of, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("ecmwf: creating land definition file %s: %v", outPath, err)
	}
	out, err := cdf.Create(of, h)
	if err != nil {
		of.Close()
		return fmt.Errorf("ecmwf: creating land definition file %s: %v", outPath, err)
	}
	if err := writeNCFloat64(out, "latitude", lats); err != nil {
		of.Close()
		return fmt.Errorf("ecmwf: writing land definition file %s: %v", outPath, err)
	}
	if err := writeNCFloat64(out, "longitude", lons); err != nil {
		of.Close()
		return fmt.Errorf("ecmwf: writing land definition file %s: %v", outPath, err)
	}
	w := out.Writer("land", nil, nil)
	if _, err := w.Write(land); err != nil && err != io.EOF {
		of.Close()
		return fmt.Errorf("ecmwf: writing land definition file %s: %v", outPath, err)
	}
	if err := of.Close(); err != nil {
		return fmt.Errorf("ecmwf: writing land definition file %s: %v", outPath, err)
	}
	return nil
}
