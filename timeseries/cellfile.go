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
	"io"
	"os"
	"time"

	"github.com/ctessum/cdf"
	"github.com/spatialmodel/ecmwf"
)

// TimeUnits is the encoding of the shared time axis in cell files.
const TimeUnits = "days since 1900-01-01 00:00:00"

var timeEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// EncodeTime converts a timestamp to the cell file time encoding.
func EncodeTime(t time.Time) float64 {
	return t.Sub(timeEpoch).Hours() / 24
}

// DecodeTime converts a cell file time value back to a timestamp,
// rounded to the second.
func DecodeTime(v float64) time.Time {
	return timeEpoch.Add(time.Duration(v*24) * time.Hour).Round(time.Second)
}

// CellFilename returns the file name of a cell's time series file.
func CellFilename(cell int) string {
	return fmt.Sprintf("%04d.nc", cell)
}

// createCellFile creates a cell time series file holding the given
// points. The time dimension is the record dimension, so the file can
// grow as batches of images are appended; every data variable is
// stored as float32 with time as the outer dimension.
func createCellFile(path string, gpis []int, lons, lats []float64,
	varNames []string, meta map[string]ecmwf.VarMetadata) error {
	n := len(gpis)
	h := cdf.NewHeader([]string{"time", "locations"}, []int{0, n})
	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", TimeUnits)
	h.AddAttribute("time", "long_name", "time of measurement")
	h.AddVariable("location_id", []string{"locations"}, []int32{0})
	h.AddVariable("lon", []string{"locations"}, []float64{0})
	h.AddAttribute("lon", "units", "degrees_east")
	h.AddVariable("lat", []string{"locations"}, []float64{0})
	h.AddAttribute("lat", "units", "degrees_north")
	for _, name := range varNames {
		h.AddVariable(name, []string{"time", "locations"}, []float32{0})
		if m, ok := meta[name]; ok {
			if m.Units != "" {
				h.AddAttribute(name, "units", m.Units)
			}
			if m.LongName != "" {
				h.AddAttribute(name, "long_name", m.LongName)
			}
		}
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("building header: %v", errs[0])
	}

	ids := make([]int32, n)
	for i, gpi := range gpis {
		ids[i] = int32(gpi)
	}

	ff, err := os.Create(path)
	if err != nil {
		return err
	}
	f, err := cdf.Create(ff, h)
	if err != nil {
		ff.Close()
		return err
	}
	for _, v := range []struct {
		name string
		vals interface{}
	}{
		{"location_id", ids},
		{"lon", lons},
		{"lat", lats},
	} {
		w := f.Writer(v.name, nil, nil)
		if _, err := w.Write(v.vals); err != nil && err != io.EOF {
			ff.Close()
			return fmt.Errorf("writing %s: %v", v.name, err)
		}
	}
	return ff.Close()
}

// appendCellFile appends a batch of records to an existing cell file.
// times must be strictly increasing and start after the last time
// already stored; data holds, per variable, len(times)*nLocations
// values in record-major order.
func appendCellFile(path string, times []float64, data map[string][]float32) error {
	ff, err := os.OpenFile(path, os.O_RDWR, os.ModePerm)
	if err != nil {
		return err
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return fmt.Errorf("opening: %v", err)
	}
	fi, err := ff.Stat()
	if err != nil {
		return err
	}
	nRec := int(f.Header.NumRecs(fi.Size()))
	nLoc := f.Header.Lengths("location_id")[0]

	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			return fmt.Errorf("batch times are not strictly increasing")
		}
	}
	if nRec > 0 && len(times) > 0 {
		r := f.Reader("time", []int{nRec - 1}, []int{nRec})
		last := r.Zero(1).([]float64)
		if _, err := r.Read(last); err != nil {
			return fmt.Errorf("reading last time: %v", err)
		}
		if times[0] <= last[0] {
			return fmt.Errorf("time %v does not extend the stored period ending %v",
				DecodeTime(times[0]), DecodeTime(last[0]))
		}
	}

	w := f.Writer("time", []int{nRec}, nil)
	if _, err := w.Write(times); err != nil && err != io.EOF {
		return fmt.Errorf("writing time: %v", err)
	}
	for name, vals := range data {
		if len(vals) != len(times)*nLoc {
			return fmt.Errorf("variable %s has %d values; want %d", name, len(vals), len(times)*nLoc)
		}
		w := f.Writer(name, []int{nRec, 0}, nil)
		if _, err := w.Write(vals); err != nil && err != io.EOF {
			return fmt.Errorf("writing %s: %v", name, err)
		}
	}
	return cdf.UpdateNumRecs(ff)
}

// readCellFile loads a whole cell file: point identities, the time
// axis, and all data variables.
type cellData struct {
	gpis  []int
	lons  []float64
	lats  []float64
	times []float64
	data  map[string][]float32
}

func readCellFile(path string) (*cellData, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, fmt.Errorf("opening: %v", err)
	}
	fi, err := ff.Stat()
	if err != nil {
		return nil, err
	}
	nRec := int(f.Header.NumRecs(fi.Size()))
	nLoc := f.Header.Lengths("location_id")[0]

	c := &cellData{data: make(map[string][]float32)}

	r := f.Reader("location_id", nil, nil)
	ids := r.Zero(nLoc).([]int32)
	if _, err := r.Read(ids); err != nil {
		return nil, fmt.Errorf("reading location_id: %v", err)
	}
	c.gpis = make([]int, nLoc)
	for i, id := range ids {
		c.gpis[i] = int(id)
	}
	for _, v := range []struct {
		name string
		dst  *[]float64
	}{{"lon", &c.lons}, {"lat", &c.lats}} {
		r := f.Reader(v.name, nil, nil)
		buf := r.Zero(nLoc).([]float64)
		if _, err := r.Read(buf); err != nil {
			return nil, fmt.Errorf("reading %s: %v", v.name, err)
		}
		*v.dst = buf
	}

	c.times = make([]float64, nRec)
	if nRec > 0 {
		r := f.Reader("time", []int{0}, []int{nRec})
		if _, err := r.Read(c.times); err != nil {
			return nil, fmt.Errorf("reading time: %v", err)
		}
	}

	for _, name := range f.Header.Variables() {
		switch name {
		case "time", "location_id", "lon", "lat":
			continue
		}
		vals := make([]float32, nRec*nLoc)
		if nRec > 0 {
			r := f.Reader(name, []int{0, 0}, []int{nRec, nLoc})
			if _, err := r.Read(vals); err != nil {
				return nil, fmt.Errorf("reading %s: %v", name, err)
			}
		}
		c.data[name] = vals
	}
	return c, nil
}
