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
	"log"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/spatialmodel/ecmwf"
)

// DefaultImgBuffer is the number of images held in memory between
// flushes to the cell files.
const DefaultImgBuffer = 50

// ImageSource yields images for a range of timestamps. ecmwf.Dataset
// implements it.
type ImageSource interface {
	// Timestamps returns the nominal image timestamps between start
	// and end inclusive.
	Timestamps(start, end time.Time) []time.Time
	// Read reads the image at one timestamp.
	Read(t time.Time) (*ecmwf.Image, error)
}

// Img2Ts converts a time-ordered sequence of images into a cell-chunked
// time series archive. Images are buffered in memory and flushed to the
// per-cell files in batches; the stored data are identical for any
// buffer size.
type Img2Ts struct {
	// Source yields the images to convert.
	Source ImageSource

	// OutPath is the archive directory.
	OutPath string

	// Grid is the set of points stored in the archive. The source must
	// deliver images on exactly this grid.
	Grid *ecmwf.Grid

	// Variables are the short names of the variables to store.
	Variables []string

	// Metadata provides the attributes written to the cell files. When
	// a variable has no entry, attributes from the first successfully
	// read image are used.
	Metadata map[string]ecmwf.VarMetadata

	// ImgBuffer is the number of images read between flushes.
	// DefaultImgBuffer when zero.
	ImgBuffer int

	// NWorkers is the number of cells flushed concurrently. Defaults
	// to the number of CPUs.
	NWorkers int
}

// Run converts all images between start and end inclusive. A start
// after end is a warning and a no-op. Timestamps that cannot be read
// are stored as all-NaN records, so the archive's time axis always
// covers the full range.
func (c *Img2Ts) Run(start, end time.Time) error {
	if start.After(end) {
		log.Printf("start %v is after end %v; nothing to do",
			start.Format(ecmwf.DateFormat), end.Format(ecmwf.DateFormat))
		return nil
	}
	if len(c.Variables) == 0 {
		return fmt.Errorf("timeseries: no variables to convert")
	}
	if err := os.MkdirAll(c.OutPath, os.ModePerm); err != nil {
		return fmt.Errorf("timeseries: creating archive directory %s: %v", c.OutPath, err)
	}
	if err := c.ensureGrid(); err != nil {
		return err
	}

	stamps := c.Source.Timestamps(start, end)
	if len(stamps) == 0 {
		log.Printf("no image timestamps between %v and %v; nothing to do",
			start.Format(ecmwf.DateFormat), end.Format(ecmwf.DateFormat))
		return nil
	}

	buffer := c.ImgBuffer
	if buffer <= 0 {
		buffer = DefaultImgBuffer
	}
	cells := c.Grid.ActiveCells()
	cellPoints := make(map[int][]int, len(cells))
	for _, cell := range cells {
		cellPoints[cell] = c.Grid.PointsInCell(cell)
	}

	for lo := 0; lo < len(stamps); lo += buffer {
		hi := lo + buffer
		if hi > len(stamps) {
			hi = len(stamps)
		}
		if err := c.convertBatch(stamps[lo:hi], cells, cellPoints); err != nil {
			return err
		}
	}
	return nil
}

// ensureGrid writes the archive grid file, or verifies that an
// existing one matches when extending.
func (c *Img2Ts) ensureGrid() error {
	path := filepath.Join(c.OutPath, GridFilename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return WriteGrid(c.OutPath, c.Grid)
	}
	stored, err := ReadGrid(c.OutPath)
	if err != nil {
		return err
	}
	if stored.Len() != c.Grid.Len() {
		return fmt.Errorf("timeseries: archive %s holds %d points but the conversion grid has %d",
			c.OutPath, stored.Len(), c.Grid.Len())
	}
	for i, gpi := range stored.GPIs {
		if gpi != c.Grid.GPIs[i] {
			return fmt.Errorf("timeseries: archive %s was built on a different grid (point %d)",
				c.OutPath, i)
		}
	}
	return nil
}

// convertBatch reads one buffer of images and appends it to every
// active cell file.
func (c *Img2Ts) convertBatch(stamps []time.Time, cells []int, cellPoints map[int][]int) error {
	n := c.Grid.Len()
	times := make([]float64, len(stamps))
	rows := make(map[string][][]float32, len(c.Variables))
	for _, name := range c.Variables {
		rows[name] = make([][]float32, len(stamps))
	}
	meta := c.Metadata

	for ti, t := range stamps {
		times[ti] = EncodeTime(t)
		img, err := c.Source.Read(t)
		if err != nil {
			log.Printf("image for %v: %v; storing NaN", t, err)
			for _, name := range c.Variables {
				rows[name][ti] = nanRow(n)
			}
			continue
		}
		for _, name := range c.Variables {
			a, ok := img.Data[name]
			if !ok || len(a.Elements) != n {
				log.Printf("image for %v: variable %s missing or wrong size; storing NaN", t, name)
				rows[name][ti] = nanRow(n)
				continue
			}
			row := make([]float32, n)
			for i, v := range a.Elements {
				row[i] = float32(v)
			}
			rows[name][ti] = row
		}
		if meta == nil && img.Metadata != nil {
			meta = img.Metadata
		}
	}

	nWorkers := c.NWorkers
	if nWorkers <= 0 {
		nWorkers = runtime.NumCPU()
	}
	cellChan := make(chan int)
	errChan := make(chan error, 1) // keeps the first flush error
	var wg sync.WaitGroup
	for w := 0; w < nWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cell := range cellChan {
				if err := c.flushCell(cell, cellPoints[cell], times, rows, meta); err != nil {
					select {
					case errChan <- err:
					default:
					}
				}
			}
		}()
	}
	for _, cell := range cells {
		cellChan <- cell
	}
	close(cellChan)
	wg.Wait()
	select {
	case err := <-errChan:
		return err
	default:
		return nil
	}
}

// flushCell appends one batch of records to a single cell file,
// creating the file if this is the cell's first batch.
func (c *Img2Ts) flushCell(cell int, points []int, times []float64,
	rows map[string][][]float32, meta map[string]ecmwf.VarMetadata) error {
	path := filepath.Join(c.OutPath, CellFilename(cell))
	if _, err := os.Stat(path); os.IsNotExist(err) {
		gpis := make([]int, len(points))
		lons := make([]float64, len(points))
		lats := make([]float64, len(points))
		for i, p := range points {
			gpis[i] = c.Grid.GPIs[p]
			lons[i] = c.Grid.Lons[p]
			lats[i] = c.Grid.Lats[p]
		}
		if err := createCellFile(path, gpis, lons, lats, c.Variables, meta); err != nil {
			return fmt.Errorf("timeseries: creating cell file %s: %v", path, err)
		}
	}

	m := len(points)
	data := make(map[string][]float32, len(rows))
	for name, varRows := range rows {
		chunk := make([]float32, len(times)*m)
		for ti, row := range varRows {
			for pi, p := range points {
				chunk[ti*m+pi] = row[p]
			}
		}
		data[name] = chunk
	}
	if err := appendCellFile(path, times, data); err != nil {
		return fmt.Errorf("timeseries: appending to cell file %s: %v", path, err)
	}
	return nil
}

func nanRow(n int) []float32 {
	row := make([]float32, n)
	nan := float32(math.NaN())
	for i := range row {
		row[i] = nan
	}
	return row
}
