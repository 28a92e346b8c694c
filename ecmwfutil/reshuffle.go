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

// Package ecmwfutil holds front-end code for converting reanalysis
// image archives into time series archives.
package ecmwfutil

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/spatialmodel/ecmwf"
	"github.com/spatialmodel/ecmwf/timeseries"
)

// ReshuffleConfig holds the settings of one image-to-time-series
// conversion run.
type ReshuffleConfig struct {
	// ImgPath is the root of the image archive in the
	// year/day-of-year layout.
	ImgPath string
	// TsPath is the time series archive directory to create or
	// extend.
	TsPath string

	// Product names the reanalysis product. Detected from the image
	// file names when empty.
	Product string
	// Variables are the short names to convert. The product's full
	// parameter table when empty.
	Variables []string

	// Start and End delimit the converted period, inclusive.
	Start, End time.Time

	// BBox restricts conversion to a bounding box.
	BBox *ecmwf.BBox
	// LandPoints restricts conversion to land points.
	LandPoints bool
	// MaskSeapoints replaces values over water with NaN using the
	// land-sea mask stored with the images.
	MaskSeapoints bool

	// HSteps are the sub-daily image hours. ecmwf.DefaultHSteps when
	// nil.
	HSteps []int
	// ImgBuffer is the number of images buffered between flushes.
	ImgBuffer int
	// NWorkers is the number of cells flushed concurrently.
	NWorkers int
}

// Reshuffle converts the images between Start and End into a
// cell-chunked time series archive and records the run settings in the
// archive's summary file.
func Reshuffle(c ReshuffleConfig) error {
	return convert(c, c.Start)
}

func convert(c ReshuffleConfig, periodFrom time.Time) error {
	var prod *ecmwf.Product
	if c.Product != "" {
		var err error
		if prod, err = ecmwf.ProductByName(c.Product); err != nil {
			return err
		}
	}
	d, err := ecmwf.OpenDataset(c.ImgPath, ecmwf.ReaderConfig{
		Product:       prod,
		Variables:     c.Variables,
		MaskSeapoints: c.MaskSeapoints,
		Array1D:       true,
	}, c.HSteps)
	if err != nil {
		return err
	}

	imgGrid, err := d.ImageGrid()
	if err != nil {
		return err
	}
	var target *ecmwf.Grid
	if c.LandPoints {
		if imgGrid.LatRes == 0 {
			return fmt.Errorf("ecmwfutil: land point selection requires a regular image grid")
		}
		full, err := ecmwf.RegularGrid(imgGrid.LatRes, nil)
		if err != nil {
			return err
		}
		if full.Len() != imgGrid.Len() {
			return fmt.Errorf("ecmwfutil: land point selection requires global images; "+
				"the images hold %d points but the global %g° grid has %d",
				imgGrid.Len(), imgGrid.LatRes, full.Len())
		}
		if target, err = ecmwf.LandGrid(imgGrid.LatRes, c.BBox); err != nil {
			return err
		}
	} else {
		if target, err = imgGrid.Subset(c.BBox); err != nil {
			return err
		}
	}
	d.Config.Subgrid = target

	vars := c.Variables
	if len(vars) == 0 {
		vars = d.Config.Product.DefaultVariables()
	}
	vlist, err := d.Config.Product.Lookup(vars)
	if err != nil {
		return err
	}
	// Attributes come from the parameter table rather than the first
	// readable image, so the cell files are annotated even when early
	// images are missing.
	meta := make(map[string]ecmwf.VarMetadata, len(vlist))
	for _, v := range vlist {
		meta[v.ShortName] = ecmwf.VarMetadata{Units: v.Units, LongName: v.LongName}
	}

	conv := &timeseries.Img2Ts{
		Source:    d,
		OutPath:   c.TsPath,
		Grid:      target,
		Variables: vars,
		Metadata:  meta,
		ImgBuffer: c.ImgBuffer,
		NWorkers:  c.NWorkers,
	}
	if err := conv.Run(c.Start, c.End); err != nil {
		return err
	}
	if c.Start.After(c.End) {
		return nil
	}

	s := &ecmwf.RunSummary{
		Product:    d.Config.Product.Name,
		FileType:   d.FileType,
		ImgPath:    c.ImgPath,
		Variables:  vars,
		LandPoints: c.LandPoints,
		MaskSea:    c.MaskSeapoints,
		HSteps:     d.HSteps,
		ImgBuffer:  conv.ImgBuffer,
	}
	if s.ImgBuffer <= 0 {
		s.ImgBuffer = timeseries.DefaultImgBuffer
	}
	s.SetPeriod(periodFrom, c.End)
	s.SetBBox(c.BBox)
	return ecmwf.WriteSummary(c.TsPath, s)
}

// ExtendTs appends the images that arrived since the last conversion
// run to an existing time series archive, reusing the settings stored
// in the archive's summary file. imgPath overrides the image archive
// recorded in the summary when non-empty. The new period starts the
// day after the stored period ends and runs through the latest image
// on disk; a start past the end is a warning and a no-op.
func ExtendTs(tsPath, imgPath string, imgBuffer int) error {
	s, err := ecmwf.ReadSummary(tsPath)
	if err != nil {
		return err
	}
	if imgPath == "" {
		imgPath = s.ImgPath
	}
	if imgPath == "" {
		return fmt.Errorf("ecmwfutil: the run summary in %s does not record an "+
			"image archive; use the --imgpath flag", tsPath)
	}
	prevEnd, err := s.PeriodToTime()
	if err != nil {
		return err
	}
	prevFrom, err := time.Parse(ecmwf.DateFormat, s.PeriodFrom)
	if err != nil {
		return fmt.Errorf("ecmwfutil: cannot parse period_from %q in run summary: %v", s.PeriodFrom, err)
	}
	bbox, err := s.GetBBox()
	if err != nil {
		return err
	}

	var prod *ecmwf.Product
	if s.Product != "" {
		if prod, err = ecmwf.ProductByName(s.Product); err != nil {
			return err
		}
	}
	d, err := ecmwf.OpenDataset(imgPath, ecmwf.ReaderConfig{Product: prod}, s.HSteps)
	if err != nil {
		return err
	}
	last, err := d.LastTimestamp()
	if err != nil {
		return err
	}

	start := prevEnd.AddDate(0, 0, 1)
	if start.After(last) {
		log.Printf("archive %s already covers the images on disk (through %s); nothing to do",
			tsPath, prevEnd.Format(ecmwf.DateFormat))
		return nil
	}
	if imgBuffer <= 0 {
		imgBuffer = s.ImgBuffer
	}
	return convert(ReshuffleConfig{
		ImgPath:       imgPath,
		TsPath:        tsPath,
		Product:       s.Product,
		Variables:     s.Variables,
		Start:         start,
		End:           last,
		BBox:          bbox,
		LandPoints:    s.LandPoints,
		MaskSeapoints: s.MaskSea,
		HSteps:        s.HSteps,
		ImgBuffer:     imgBuffer,
	}, prevFrom)
}

// Extract splits a downloaded multi-timestamp stack file into the
// per-timestamp year/day-of-year image layout, choosing the NetCDF or
// GRIB splitter from the stack file's extension.
func Extract(stackPath, imgRoot string, o ecmwf.ExtractOptions) error {
	if strings.EqualFold(filepath.Ext(stackPath), ".nc") {
		return ecmwf.SaveNCsFromNC(stackPath, imgRoot, o)
	}
	return ecmwf.SaveGRIBsFromGRIB(stackPath, imgRoot, o)
}
