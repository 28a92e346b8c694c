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
	"log"
	"math"
	"os"
	"time"

	"github.com/nilsmagnus/grib/griblib"
	"gonum.org/v1/gonum/floats"
)

// GribImageReader reads single-timestamp GRIB2 image files.
type GribImageReader struct {
	Config ReaderConfig
}

// Read reads the image stored in the GRIB file at path. t is the
// image's nominal timestamp, taken from the file name. Messages are
// matched to the product's parameter table by discipline, category and
// number, plus the layer depth for soil layer parameters; variables
// without a matching message are filled with NaN and logged.
func (r *GribImageReader) Read(path string, t time.Time) (*Image, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ecmwf: opening image %s: %v", path, err)
	}
	defer ff.Close()
	messages, err := griblib.ReadMessages(ff)
	if err != nil {
		return nil, fmt.Errorf("ecmwf: reading image %s: %v", path, err)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("ecmwf: image %s contains no GRIB messages", path)
	}

	fileGrid, err := gribGrid(messages[0])
	if err != nil {
		return nil, fmt.Errorf("ecmwf: reading image %s: %v", path, err)
	}
	n := fileGrid.Len()

	vals := make(map[string][]float64)
	meta := make(map[string]VarMetadata)
	for _, name := range r.Config.variables() {
		v, ok := r.Config.product().variable(name)
		if !ok {
			return nil, fmt.Errorf("ecmwf: product %s has no variable %q", r.Config.product().Name, name)
		}
		msg := matchGribMessage(messages, v.Grib)
		if msg == nil {
			log.Printf("image %s: no GRIB message for variable %s; filling with NaN", path, name)
			vals[name] = nanFill(n)
		} else if len(msg.Section7.Data) != n {
			log.Printf("image %s: variable %s has %d values; want %d; filling with NaN",
				path, name, len(msg.Section7.Data), n)
			vals[name] = nanFill(n)
		} else {
			data := make([]float64, n)
			copy(data, msg.Section7.Data)
			vals[name] = data
		}
		meta[name] = VarMetadata{Units: v.Units, LongName: v.LongName}
	}

	var lsm []float64
	if r.Config.MaskSeapoints {
		lsmVar, ok := r.Config.product().variable("lsm")
		if !ok {
			return nil, fmt.Errorf("%w: product %s has no lsm parameter", ErrNoLandSeaMask, r.Config.product().Name)
		}
		msg := matchGribMessage(messages, lsmVar.Grib)
		if msg == nil || len(msg.Section7.Data) != n {
			return nil, fmt.Errorf("%w: image %s has no lsm message", ErrNoLandSeaMask, path)
		}
		lsm = msg.Section7.Data
	}
	return r.Config.finalize(t, fileGrid, vals, meta, lsm)
}

// matchGribMessage returns the first message encoding the given
// parameter, or nil.
func matchGribMessage(messages []*griblib.Message, p GribParam) *griblib.Message {
	for _, m := range messages {
		pt := m.Section4.ProductDefinitionTemplate
		if m.Section0.Discipline != p.Discipline ||
			uint8(pt.ParameterCategory) != p.Category ||
			uint8(pt.ParameterNumber) != p.Number {
			continue
		}
		if p.Depth == NoDepth {
			return m
		}
		if gribSurfaceDepth(pt.FirstSurface) == p.Depth {
			return m
		}
	}
	return nil
}

// gribSurfaceDepth converts a scaled fixed-surface value to a depth in
// meters, rounded to centimeters.
func gribSurfaceDepth(s griblib.Surface) float64 {
	d := float64(s.Value) * math.Pow(10, -float64(s.Scale))
	return math.Round(d*100) / 100
}

// gribGrid builds the grid a GRIB message is stored on. Only regular
// latitude-longitude grids (grid definition template 0) are supported;
// coordinates are encoded in microdegrees.
func gribGrid(m *griblib.Message) (*Grid, error) {
	g0, ok := m.Section3.Definition.(*griblib.Grid0)
	if !ok {
		return nil, fmt.Errorf("unsupported GRIB grid definition template %d", m.Section3.TemplateNumber)
	}
	const micro = 1.e-6
	nLon := int(g0.Ni)
	nLat := int(g0.Nj)
	if nLon < 2 || nLat < 2 {
		return nil, fmt.Errorf("GRIB grid has invalid dimensions %d x %d", nLat, nLon)
	}
	lat1 := float64(int32(g0.La1)) * micro
	lat2 := float64(int32(g0.La2)) * micro
	lon1 := float64(int32(g0.Lo1)) * micro
	lon2 := float64(int32(g0.Lo2)) * micro
	if lon2 < lon1 {
		lon2 += 360
	}

	lats := make([]float64, nLat)
	floats.Span(lats, lat1, lat2)
	lons := make([]float64, nLon)
	floats.Span(lons, lon1, lon2)
	for i := range lats {
		lats[i] = round3(lats[i])
	}
	for i := range lons {
		lons[i] = round3(lons[i])
	}
	return RegularGridFromAxes(lats, lons)
}
