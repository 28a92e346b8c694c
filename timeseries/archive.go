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
	"path/filepath"
	"time"

	"github.com/spatialmodel/ecmwf"
)

// Series is the time series of all stored variables at one grid point.
type Series struct {
	GPI      int
	Lon, Lat float64
	Times    []time.Time
	Data     map[string][]float64
}

// Archive reads a cell-chunked time series archive.
type Archive struct {
	// Path is the archive directory.
	Path string

	grid *ecmwf.Grid
}

// OpenArchive opens the archive in dir by loading its grid file.
func OpenArchive(dir string) (*Archive, error) {
	g, err := ReadGrid(dir)
	if err != nil {
		return nil, err
	}
	return &Archive{Path: dir, grid: g}, nil
}

// Grid returns the set of points the archive stores.
func (a *Archive) Grid() *ecmwf.Grid { return a.grid }

// ReadPoint reads the time series of the grid point with the given
// GPI.
func (a *Archive) ReadPoint(gpi int) (*Series, error) {
	pos, ok := a.grid.Position(gpi)
	if !ok {
		return nil, fmt.Errorf("timeseries: archive %s has no grid point %d", a.Path, gpi)
	}
	return a.readPos(pos)
}

// ReadLonLat reads the time series of the grid point nearest to the
// given coordinates.
func (a *Archive) ReadLonLat(lon, lat float64) (*Series, error) {
	pos, _ := a.grid.Nearest(lon, lat)
	if pos < 0 {
		return nil, fmt.Errorf("timeseries: archive %s has no grid point near (%g, %g)",
			a.Path, lon, lat)
	}
	return a.readPos(pos)
}

func (a *Archive) readPos(pos int) (*Series, error) {
	gpi := a.grid.GPIs[pos]
	cell := a.grid.Cells[pos]
	path := filepath.Join(a.Path, CellFilename(cell))
	c, err := readCellFile(path)
	if err != nil {
		return nil, fmt.Errorf("timeseries: reading cell file %s: %v", path, err)
	}
	loc := -1
	for i, id := range c.gpis {
		if id == gpi {
			loc = i
			break
		}
	}
	if loc < 0 {
		return nil, fmt.Errorf("timeseries: cell file %s does not hold grid point %d", path, gpi)
	}

	s := &Series{
		GPI:   gpi,
		Lon:   c.lons[loc],
		Lat:   c.lats[loc],
		Times: make([]time.Time, len(c.times)),
		Data:  make(map[string][]float64, len(c.data)),
	}
	for i, t := range c.times {
		s.Times[i] = DecodeTime(t)
	}
	nLoc := len(c.gpis)
	for name, vals := range c.data {
		series := make([]float64, len(c.times))
		for ti := range c.times {
			series[ti] = float64(vals[ti*nLoc+loc])
		}
		s.Data[name] = series
	}
	return s, nil
}

// Period returns the first and last timestamps stored in the archive,
// taken from any one cell file.
func (a *Archive) Period() (first, last time.Time, err error) {
	cells := a.grid.ActiveCells()
	if len(cells) == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("timeseries: archive %s is empty", a.Path)
	}
	path := filepath.Join(a.Path, CellFilename(cells[0]))
	c, err := readCellFile(path)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("timeseries: reading cell file %s: %v", path, err)
	}
	if len(c.times) == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("timeseries: archive %s holds no records", a.Path)
	}
	return DecodeTime(c.times[0]), DecodeTime(c.times[len(c.times)-1]), nil
}
