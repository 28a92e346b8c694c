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
	"math"
	"strings"
	"time"

	"github.com/ctessum/cdf"
)

// hasNCVar reports whether the file contains a variable with the
// given name.
func hasNCVar(f *cdf.File, name string) bool {
	for _, v := range f.Header.Variables() {
		if v == name {
			return true
		}
	}
	return false
}

// readNCVar reads the full contents of a variable as float64 values,
// applying the scale_factor and add_offset attributes and replacing
// fill values with NaN.
func readNCVar(f *cdf.File, name string) ([]float64, error) {
	if !hasNCVar(f, name) {
		return nil, fmt.Errorf("file does not contain variable %s", name)
	}
	dims := f.Header.Lengths(name)
	n := 1
	for _, d := range dims {
		n *= d
	}
	r := f.Reader(name, nil, nil)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("reading variable %s: %v", name, err)
	}
	vals := make([]float64, n)
	switch b := buf.(type) {
	case []float64:
		copy(vals, b)
	case []float32:
		for i, v := range b {
			vals[i] = float64(v)
		}
	case []int32:
		for i, v := range b {
			vals[i] = float64(v)
		}
	case []int16:
		for i, v := range b {
			vals[i] = float64(v)
		}
	case []uint8:
		for i, v := range b {
			vals[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("variable %s has unsupported type %T", name, buf)
	}

	scale, hasScale := ncAttrFloat(f, name, "scale_factor")
	offset, hasOffset := ncAttrFloat(f, name, "add_offset")
	fill, hasFill := ncAttrFloat(f, name, "_FillValue")
	missing, hasMissing := ncAttrFloat(f, name, "missing_value")
	for i, v := range vals {
		if (hasFill && v == fill) || (hasMissing && v == missing) {
			vals[i] = math.NaN()
			continue
		}
		if hasScale {
			v *= scale
		}
		if hasOffset {
			v += offset
		}
		vals[i] = v
	}
	return vals, nil
}

// ncAttrFloat returns the first value of a numeric variable attribute.
func ncAttrFloat(f *cdf.File, v, attr string) (float64, bool) {
	a := f.Header.GetAttribute(v, attr)
	if a == nil {
		return 0, false
	}
	switch av := a.(type) {
	case []float64:
		if len(av) > 0 {
			return av[0], true
		}
	case []float32:
		if len(av) > 0 {
			return float64(av[0]), true
		}
	case []int32:
		if len(av) > 0 {
			return float64(av[0]), true
		}
	case []int16:
		if len(av) > 0 {
			return float64(av[0]), true
		}
	}
	return 0, false
}

// ncAttrString returns a string variable attribute.
func ncAttrString(f *cdf.File, v, attr string) (string, bool) {
	a := f.Header.GetAttribute(v, attr)
	if a == nil {
		return "", false
	}
	if s, ok := a.(string); ok {
		return s, true
	}
	return "", false
}

// readNCAxis reads a coordinate variable, trying each of the given
// names in order.
func readNCAxis(f *cdf.File, names ...string) ([]float64, error) {
	for _, name := range names {
		if hasNCVar(f, name) {
			return readNCVar(f, name)
		}
	}
	return nil, fmt.Errorf("file does not contain any of the coordinate variables %s",
		strings.Join(names, ", "))
}

// parseTimeUnits interprets a CF-style time units attribute such as
// "hours since 1900-01-01 00:00:00.0" and returns the epoch and the
// length of one unit.
func parseTimeUnits(units string) (time.Time, time.Duration, error) {
	fields := strings.Fields(units)
	if len(fields) < 3 || fields[1] != "since" {
		return time.Time{}, 0, fmt.Errorf("cannot parse time units %q", units)
	}
	var step time.Duration
	switch strings.ToLower(fields[0]) {
	case "seconds", "second":
		step = time.Second
	case "minutes", "minute":
		step = time.Minute
	case "hours", "hour":
		step = time.Hour
	case "days", "day":
		step = 24 * time.Hour
	default:
		return time.Time{}, 0, fmt.Errorf("cannot parse time units %q", units)
	}
	stamp := fields[2]
	if len(fields) > 3 {
		stamp += " " + strings.TrimSuffix(fields[3], ".0")
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if epoch, err := time.Parse(layout, stamp); err == nil {
			return epoch, step, nil
		}
	}
	return time.Time{}, 0, fmt.Errorf("cannot parse time units %q", units)
}
