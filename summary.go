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
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// SummaryFilename is the name of the run summary file written next to
// a time series archive.
const SummaryFilename = "overview.yml"

// DateFormat is the layout of dates in run summaries and on the
// command line.
const DateFormat = "2006-01-02"

// RunSummary records the parameters of a time series conversion run so
// that later runs can extend the archive with the same settings.
type RunSummary struct {
	Product    string    `yaml:"product"`
	FileType   string    `yaml:"filetype"`
	ImgPath    string    `yaml:"img_path"`
	Variables  []string  `yaml:"variables"`
	PeriodFrom string    `yaml:"period_from"`
	PeriodTo   string    `yaml:"period_to"`
	LandPoints bool      `yaml:"land_points"`
	MaskSea    bool      `yaml:"mask_seapoints"`
	BBox       []float64 `yaml:"bbox,omitempty"`
	HSteps     []int     `yaml:"h_steps"`
	ImgBuffer  int       `yaml:"imgbuffer"`
	LastUpdate string    `yaml:"last_update"`
}

// SetPeriod stores the converted date range.
func (s *RunSummary) SetPeriod(from, to time.Time) {
	s.PeriodFrom = from.Format(DateFormat)
	s.PeriodTo = to.Format(DateFormat)
	s.LastUpdate = time.Now().UTC().Format("2006-01-02 15:04:05")
}

// PeriodToTime returns the end date of the converted range.
func (s *RunSummary) PeriodToTime() (time.Time, error) {
	t, err := time.Parse(DateFormat, s.PeriodTo)
	if err != nil {
		return time.Time{}, fmt.Errorf("ecmwf: cannot parse period_to %q in run summary: %v", s.PeriodTo, err)
	}
	return t, nil
}

// SetBBox stores the bounding box, if any.
func (s *RunSummary) SetBBox(b *BBox) {
	if b == nil {
		s.BBox = nil
		return
	}
	s.BBox = []float64{b.LonMin, b.LatMin, b.LonMax, b.LatMax}
}

// GetBBox returns the stored bounding box, or nil when the run covered
// the full grid.
func (s *RunSummary) GetBBox() (*BBox, error) {
	if len(s.BBox) == 0 {
		return nil, nil
	}
	if len(s.BBox) != 4 {
		return nil, fmt.Errorf("ecmwf: run summary bbox has %d values; want 4", len(s.BBox))
	}
	return &BBox{LonMin: s.BBox[0], LatMin: s.BBox[1], LonMax: s.BBox[2], LatMax: s.BBox[3]}, nil
}

// WriteSummary writes the run summary into dir.
func WriteSummary(dir string, s *RunSummary) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("ecmwf: marshaling run summary: %v", err)
	}
	path := filepath.Join(dir, SummaryFilename)
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("ecmwf: writing run summary %s: %v", path, err)
	}
	return nil
}

// ReadSummary reads the run summary from dir.
func ReadSummary(dir string) (*RunSummary, error) {
	path := filepath.Join(dir, SummaryFilename)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ecmwf: reading run summary %s: %v", path, err)
	}
	s := new(RunSummary)
	if err := yaml.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("ecmwf: parsing run summary %s: %v", path, err)
	}
	return s, nil
}
