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
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ctessum/cdf"
)

// prelimExpver is the experiment version number of preliminary data.
const prelimExpver = 5

// ExtractOptions configure the splitting of downloaded stack files
// into the per-timestamp year/day-of-year image layout.
type ExtractOptions struct {
	// Product names the files; detected per timestamp whether the
	// "-T" preliminary suffix applies.
	Product *Product
	// FileType is the stream tag embedded in the file names, "AN"
	// unless set.
	FileType string
	// KeepPrelim controls whether timestamps holding preliminary data
	// are written (with the "-T" suffix) or dropped.
	KeepPrelim bool
}

func (o *ExtractOptions) product() *Product {
	if o.Product == nil {
		return ProductERA5
	}
	return o.Product
}

func (o *ExtractOptions) fileType() string {
	if o.FileType == "" {
		return "AN"
	}
	return o.FileType
}

// SaveNCsFromNC splits a downloaded NetCDF stack holding several
// timestamps into single-timestamp image files under root, in the
// year/day-of-year layout. Timestamps holding preliminary data (an
// expver variable with the preliminary version number) are written
// with the "-T" product suffix, or dropped when KeepPrelim is false.
func SaveNCsFromNC(stackPath, root string, o ExtractOptions) error {
	ff, err := os.Open(stackPath)
	if err != nil {
		return fmt.Errorf("ecmwf: opening stack %s: %v", stackPath, err)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return fmt.Errorf("ecmwf: reading stack %s: %v", stackPath, err)
	}

	times, err := readNCTimes(f)
	if err != nil {
		return fmt.Errorf("ecmwf: reading stack %s: %v", stackPath, err)
	}
	lats, err := readNCAxis(f, "latitude", "lat")
	if err != nil {
		return fmt.Errorf("ecmwf: reading stack %s: %v", stackPath, err)
	}
	lons, err := readNCAxis(f, "longitude", "lon")
	if err != nil {
		return fmt.Errorf("ecmwf: reading stack %s: %v", stackPath, err)
	}
	n := len(lats) * len(lons)

	// Per-timestamp experiment versions, when the stack carries them.
	var expver []float64
	if hasNCVar(f, "expver") {
		if ev, err := readNCVar(f, "expver"); err == nil && len(ev) == len(times) {
			expver = ev
		}
	}

	// Collect the data variables: everything dimensioned on time and
	// the spatial axes.
	type fieldVar struct {
		name string
		data []float64
		meta VarMetadata
	}
	var fields []fieldVar
	for _, name := range f.Header.Variables() {
		switch name {
		case "time", "latitude", "longitude", "lat", "lon", "expver":
			continue
		}
		data, err := readNCVar(f, name)
		if err != nil {
			return fmt.Errorf("ecmwf: reading stack variable %s: %v", name, err)
		}
		if len(data) != len(times)*n {
			log.Printf("stack %s: variable %s has %d values; want %d; skipping",
				stackPath, name, len(data), len(times)*n)
			continue
		}
		var meta VarMetadata
		meta.Units, _ = ncAttrString(f, name, "units")
		meta.LongName, _ = ncAttrString(f, name, "long_name")
		fields = append(fields, fieldVar{name: name, data: data, meta: meta})
	}
	if len(fields) == 0 {
		return fmt.Errorf("ecmwf: stack %s contains no data variables", stackPath)
	}

	for ti, t := range times {
		prelim := expver != nil && int(expver[ti]) == prelimExpver
		if prelim && !o.KeepPrelim {
			continue
		}
		dir := filepath.Join(root, ImageSubdir(t))
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("ecmwf: creating image directory %s: %v", dir, err)
		}
		outPath := filepath.Join(dir, ImageFilename(o.product(), prelim, o.fileType(), t, "nc"))

		h := cdf.NewHeader([]string{"latitude", "longitude"}, []int{len(lats), len(lons)})
		h.AddVariable("latitude", []string{"latitude"}, []float64{0})
		h.AddAttribute("latitude", "units", "degrees_north")
		h.AddVariable("longitude", []string{"longitude"}, []float64{0})
		h.AddAttribute("longitude", "units", "degrees_east")
		for _, fv := range fields {
			h.AddVariable(fv.name, []string{"latitude", "longitude"}, []float32{0})
			if fv.meta.Units != "" {
				h.AddAttribute(fv.name, "units", fv.meta.Units)
			}
			if fv.meta.LongName != "" {
				h.AddAttribute(fv.name, "long_name", fv.meta.LongName)
			}
		}
		h.Define()
		if errs := h.Check(); len(errs) > 0 {
			return fmt.Errorf("ecmwf: building image header for %s: %v", outPath, errs[0])
		}

		of, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("ecmwf: creating image %s: %v", outPath, err)
		}
		out, err := cdf.Create(of, h)
		if err != nil {
			of.Close()
			return fmt.Errorf("ecmwf: creating image %s: %v", outPath, err)
		}
		if err := writeNCFloat64(out, "latitude", lats); err != nil {
			of.Close()
			return fmt.Errorf("ecmwf: writing image %s: %v", outPath, err)
		}
		if err := writeNCFloat64(out, "longitude", lons); err != nil {
			of.Close()
			return fmt.Errorf("ecmwf: writing image %s: %v", outPath, err)
		}
		for _, fv := range fields {
			slab := make([]float32, n)
			for i, v := range fv.data[ti*n : (ti+1)*n] {
				slab[i] = float32(v)
			}
			w := out.Writer(fv.name, nil, nil)
			if _, err := w.Write(slab); err != nil && err != io.EOF {
				of.Close()
				return fmt.Errorf("ecmwf: writing image %s: %v", outPath, err)
			}
		}
		if err := of.Close(); err != nil {
			return fmt.Errorf("ecmwf: writing image %s: %v", outPath, err)
		}
	}
	return nil
}

func writeNCFloat64(f *cdf.File, name string, vals []float64) error {
	w := f.Writer(name, nil, nil)
	if _, err := w.Write(vals); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// readNCTimes reads and decodes the stack's time axis using its
// CF units attribute.
func readNCTimes(f *cdf.File) ([]time.Time, error) {
	vals, err := readNCVar(f, "time")
	if err != nil {
		return nil, err
	}
	units, ok := ncAttrString(f, "time", "units")
	if !ok {
		return nil, fmt.Errorf("time variable has no units attribute")
	}
	epoch, step, err := parseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, len(vals))
	for i, v := range vals {
		times[i] = epoch.Add(time.Duration(v * float64(step))).UTC()
	}
	return times, nil
}

// SaveGRIBsFromGRIB splits a downloaded GRIB stack into
// single-timestamp image files under root, in the year/day-of-year
// layout. Messages are copied verbatim; messages sharing a reference
// time are appended to the same output file.
func SaveGRIBsFromGRIB(stackPath, root string, o ExtractOptions) error {
	b, err := os.ReadFile(stackPath)
	if err != nil {
		return fmt.Errorf("ecmwf: reading stack %s: %v", stackPath, err)
	}
	msgs, err := splitGribMessages(b)
	if err != nil {
		return fmt.Errorf("ecmwf: reading stack %s: %v", stackPath, err)
	}
	if len(msgs) == 0 {
		return fmt.Errorf("ecmwf: stack %s contains no GRIB messages", stackPath)
	}
	for _, m := range msgs {
		t, err := gribRefTime(m)
		if err != nil {
			return fmt.Errorf("ecmwf: reading stack %s: %v", stackPath, err)
		}
		dir := filepath.Join(root, ImageSubdir(t))
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("ecmwf: creating image directory %s: %v", dir, err)
		}
		outPath := filepath.Join(dir, ImageFilename(o.product(), false, o.fileType(), t, "grb"))
		of, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("ecmwf: writing image %s: %v", outPath, err)
		}
		if _, err := of.Write(m); err != nil {
			of.Close()
			return fmt.Errorf("ecmwf: writing image %s: %v", outPath, err)
		}
		if err := of.Close(); err != nil {
			return fmt.Errorf("ecmwf: writing image %s: %v", outPath, err)
		}
	}
	return nil
}

// splitGribMessages cuts a byte stream into raw GRIB2 messages using
// the "GRIB" indicator and the total message length in section 0.
func splitGribMessages(b []byte) ([][]byte, error) {
	var msgs [][]byte
	for off := 0; off < len(b); {
		if len(b)-off < 16 {
			return nil, fmt.Errorf("truncated GRIB message at offset %d", off)
		}
		if string(b[off:off+4]) != "GRIB" {
			return nil, fmt.Errorf("missing GRIB indicator at offset %d", off)
		}
		if b[off+7] != 2 {
			return nil, fmt.Errorf("unsupported GRIB edition %d at offset %d", b[off+7], off)
		}
		length := int(binary.BigEndian.Uint64(b[off+8 : off+16]))
		if length < 16 || off+length > len(b) {
			return nil, fmt.Errorf("bad GRIB message length %d at offset %d", length, off)
		}
		msgs = append(msgs, b[off:off+length])
		off += length
	}
	return msgs, nil
}

// gribRefTime extracts the reference time from the identification
// section of a raw GRIB2 message.
func gribRefTime(m []byte) (time.Time, error) {
	// Section 1 starts right after the 16-octet indicator section;
	// the reference time occupies octets 13-19 of the section.
	const s1 = 16
	if len(m) < s1+19 {
		return time.Time{}, io.ErrUnexpectedEOF
	}
	if m[s1+4] != 1 {
		return time.Time{}, fmt.Errorf("GRIB message lacks identification section")
	}
	year := int(binary.BigEndian.Uint16(m[s1+12 : s1+14]))
	return time.Date(year, time.Month(m[s1+14]), int(m[s1+15]),
		int(m[s1+16]), int(m[s1+17]), int(m[s1+18]), 0, time.UTC), nil
}
