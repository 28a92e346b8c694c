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

package ecmwfutil

import (
	"testing"
	"time"

	"github.com/spatialmodel/ecmwf"
)

func TestParseBBox(t *testing.T) {
	b, err := parseBBox(nil)
	if err != nil || b != nil {
		t.Errorf("empty bbox = %+v, %v; want nil, nil", b, err)
	}
	b, err = parseBBox([]string{"12", "46", "17", "50"})
	if err != nil {
		t.Fatal(err)
	}
	if *b != (ecmwf.BBox{LonMin: 12, LatMin: 46, LonMax: 17, LatMax: 50}) {
		t.Errorf("bbox %+v", b)
	}
	if _, err := parseBBox([]string{"12", "46"}); err == nil {
		t.Error("2-value bbox should fail")
	}
	if _, err := parseBBox([]string{"12", "46", "17", "north"}); err == nil {
		t.Error("non-numeric bbox should fail")
	}
}

func TestResolvePeriod(t *testing.T) {
	// Explicit dates are parsed without touching the image archive.
	s, e, err := resolvePeriod(ReshuffleConfig{}, "2010-01-01", "2010-12-31")
	if err != nil {
		t.Fatal(err)
	}
	if !s.Equal(time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)) ||
		!e.Equal(time.Date(2010, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("period %v to %v", s, e)
	}
	if _, _, err := resolvePeriod(ReshuffleConfig{}, "01.01.2010", "2010-12-31"); err == nil {
		t.Error("malformed start date should fail")
	}

	// Missing dates are taken from the images on disk.
	dir := t.TempDir()
	writeGlobalImage(t, dir+"/2010/001/ERA5_AN_20100101_0000.nc", make([]float32, 181*360))
	writeGlobalImage(t, dir+"/2010/002/ERA5_AN_20100102_0000.nc", make([]float32, 181*360))
	s, e, err = resolvePeriod(ReshuffleConfig{ImgPath: dir}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if !s.Equal(time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)) ||
		!e.Equal(time.Date(2010, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("detected period %v to %v", s, e)
	}
}
