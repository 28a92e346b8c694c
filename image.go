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
	"time"

	"github.com/ctessum/sparse"
)

// Version gives the version number.
const Version = "0.3.0"

// VarMetadata holds the descriptive attributes of one image variable.
type VarMetadata struct {
	Units    string
	LongName string
}

// Image holds the values of a set of variables over a grid at a single
// timestamp.
type Image struct {
	// Time is the nominal timestamp of the image.
	Time time.Time

	// Grid describes the points the data are defined on.
	Grid *Grid

	// Data maps variable short names to their values, in grid point
	// order. Arrays are one-dimensional ([points]) or two-dimensional
	// ([lats, lons]) depending on the reader configuration.
	Data map[string]*sparse.DenseArray

	// Metadata maps variable short names to their attributes.
	Metadata map[string]VarMetadata
}

// ReaderConfig configures how images are read from disk. The zero
// value reads the default variables of the era5 product over the full
// image grid.
type ReaderConfig struct {
	// Product identifies the parameter naming scheme of the files.
	// If nil, the era5 product is assumed.
	Product *Product

	// Variables are the short names of the variables to read. If
	// empty, the product's full variable set is read.
	Variables []string

	// Subgrid restricts reading to the given points. The subgrid must
	// be derived from the grid the image files are stored on. If nil,
	// the full image grid is used.
	Subgrid *Grid

	// MaskSeapoints replaces values over water with NaN, using the
	// land-sea mask distributed with the images.
	MaskSeapoints bool

	// Array1D forces one-dimensional output even when the grid forms a
	// complete rectangle.
	Array1D bool
}

func (c *ReaderConfig) product() *Product {
	if c.Product == nil {
		return ProductERA5
	}
	return c.Product
}

func (c *ReaderConfig) variables() []string {
	if len(c.Variables) > 0 {
		return c.Variables
	}
	return c.product().DefaultVariables()
}

// finalize applies the configuration steps shared by all readers to
// freshly read data: sea point masking, subgrid selection, and
// reshaping to two dimensions. vals holds full-grid values per
// variable in fileGrid point order; lsm is the land-sea mask in the
// same order, or nil when the file has none.
func (c *ReaderConfig) finalize(t time.Time, fileGrid *Grid, vals map[string][]float64,
	meta map[string]VarMetadata, lsm []float64) (*Image, error) {
	if c.MaskSeapoints {
		if lsm == nil {
			return nil, ErrNoLandSeaMask
		}
		for _, data := range vals {
			for i, m := range lsm {
				if !(m > 0.5) {
					data[i] = math.NaN()
				}
			}
		}
	}

	grid := fileGrid
	if c.Subgrid != nil {
		grid = c.Subgrid
		for name, data := range vals {
			sel := make([]float64, grid.Len())
			for i, gpi := range grid.GPIs {
				if gpi < 0 || gpi >= len(data) {
					return nil, fmt.Errorf("ecmwf: subgrid point %d outside image grid of %d points",
						gpi, len(data))
				}
				sel[i] = data[gpi]
			}
			vals[name] = sel
		}
	}

	img := &Image{
		Time:     t,
		Grid:     grid,
		Data:     make(map[string]*sparse.DenseArray, len(vals)),
		Metadata: meta,
	}
	shape := []int{grid.Len()}
	if !c.Array1D {
		if nLat, nLon, ok := grid.Shape2D(); ok {
			shape = []int{nLat, nLon}
		} else {
			log.Printf("grid does not form a complete rectangle; returning 1-dimensional arrays")
		}
	}
	for name, data := range vals {
		a := sparse.ZerosDense(shape...)
		copy(a.Elements, data)
		img.Data[name] = a
	}
	return img, nil
}

// nanFill returns full-grid NaN values for each requested variable,
// used when a variable or a whole image cannot be read.
func nanFill(n int) []float64 {
	data := make([]float64, n)
	for i := range data {
		data[i] = math.NaN()
	}
	return data
}
