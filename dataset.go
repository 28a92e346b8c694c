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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/nilsmagnus/grib/griblib"
)

// ErrNoImage is returned when no image file exists for a timestamp.
var ErrNoImage = errors.New("ecmwf: no image found")

// DefaultHSteps are the sub-daily hours that images are stored at.
var DefaultHSteps = []int{0, 6, 12, 18}

// PrelimSuffix is appended to a product's file name token for
// preliminary data that may still be revised.
const PrelimSuffix = "-T"

// ImageFilename builds the canonical image file name for a product at
// a timestamp, for example "ERA5_AN_20100101_0600.nc". fileType is the
// stream tag ("AN" for analysis), ext "nc" or "grb".
func ImageFilename(p *Product, prelim bool, fileType string, t time.Time, ext string) string {
	token := p.Token
	if prelim {
		token += PrelimSuffix
	}
	return fmt.Sprintf("%s_%s_%s.%s", token, fileType, t.Format("20060102_1504"), ext)
}

// ImageSubdir returns the directory a timestamp's image is stored in,
// relative to the dataset root: the 4-digit year and the 3-digit day
// of year.
func ImageSubdir(t time.Time) string {
	return filepath.Join(t.Format("2006"), fmt.Sprintf("%03d", t.YearDay()))
}

// ParseImageFilename extracts the product, the preliminary flag, the
// timestamp, and the file extension from an image file name.
func ParseImageFilename(name string) (p *Product, prelim bool, t time.Time, ext string, err error) {
	base := filepath.Base(name)
	ext = strings.TrimPrefix(filepath.Ext(base), ".")
	parts := strings.Split(strings.TrimSuffix(base, filepath.Ext(base)), "_")
	if len(parts) < 3 {
		return nil, false, time.Time{}, "", fmt.Errorf("ecmwf: cannot parse image file name %q", name)
	}
	token := strings.ToUpper(parts[0])
	if strings.HasSuffix(token, PrelimSuffix) {
		prelim = true
		token = strings.TrimSuffix(token, PrelimSuffix)
	}
	for _, prod := range products {
		if prod.Token == token {
			p = prod
			break
		}
	}
	if p == nil {
		return nil, false, time.Time{}, "", fmt.Errorf("ecmwf: unknown product in image file name %q", name)
	}
	stamp := parts[len(parts)-2] + "_" + parts[len(parts)-1]
	t, err = time.Parse("20060102_1504", stamp)
	if err != nil {
		return nil, false, time.Time{}, "", fmt.Errorf("ecmwf: cannot parse timestamp in image file name %q: %v", name, err)
	}
	return p, prelim, t.UTC(), ext, nil
}

// TimestampsForRange returns the image timestamps between start and
// end. The bounds are dates: every day from start's date through end's
// date carries one timestamp per entry of hSteps, whatever the hours
// of the bounds themselves, so an end given as a plain date still
// covers that day's later images. The returned slice is sorted
// ascending and is empty when start's date is after end's date.
func TimestampsForRange(start, end time.Time, hSteps []int) []time.Time {
	if hSteps == nil {
		hSteps = DefaultHSteps
	}
	hours := make([]int, len(hSteps))
	copy(hours, hSteps)
	sort.Ints(hours)

	var stamps []time.Time
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	for !day.After(last) {
		for _, h := range hours {
			stamps = append(stamps, day.Add(time.Duration(h)*time.Hour))
		}
		day = day.AddDate(0, 0, 1)
	}
	return stamps
}

// Dataset is a collection of image files stored in the year/day-of-year
// layout under a common root directory.
type Dataset struct {
	// Root is the directory holding the year subdirectories.
	Root string

	// Config configures how images are read. If Config.Product is nil
	// it is filled in from the file names found under Root.
	Config ReaderConfig

	// FileType is the extension of the image files, "nc" or "grb".
	// Detected from the files under Root when empty.
	FileType string

	// HSteps are the sub-daily hours images exist at. Defaults to
	// DefaultHSteps.
	HSteps []int
}

// OpenDataset opens the image dataset rooted at root, detecting the
// product and file type from the files on disk where they are not
// given in cfg.
func OpenDataset(root string, cfg ReaderConfig, hSteps []int) (*Dataset, error) {
	d := &Dataset{Root: root, Config: cfg, HSteps: hSteps}
	if d.HSteps == nil {
		d.HSteps = DefaultHSteps
	}
	sample, err := d.sampleFile()
	if err != nil {
		return nil, err
	}
	p, _, _, ext, err := ParseImageFilename(sample)
	if err != nil {
		return nil, err
	}
	if d.Config.Product == nil {
		d.Config.Product = p
	}
	if d.FileType == "" {
		switch ext {
		case "nc", "grb":
			d.FileType = ext
		default:
			// Files downloaded without an extension are assumed GRIB.
			d.FileType = "grb"
		}
	}
	return d, nil
}

// sampleFile returns the path of the first image file found two levels
// below the dataset root.
func (d *Dataset) sampleFile() (string, error) {
	years, err := sortedSubdirs(d.Root)
	if err != nil {
		return "", fmt.Errorf("ecmwf: reading image root %s: %v", d.Root, err)
	}
	for _, y := range years {
		days, err := sortedSubdirs(filepath.Join(d.Root, y))
		if err != nil {
			continue
		}
		for _, doy := range days {
			files, err := sortedFiles(filepath.Join(d.Root, y, doy))
			if err != nil || len(files) == 0 {
				continue
			}
			return files[0], nil
		}
	}
	return "", fmt.Errorf("ecmwf: no image files found under %s", d.Root)
}

func sortedSubdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			if _, err := strconv.Atoi(e.Name()); err == nil {
				names = append(names, e.Name())
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func sortedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// ResolvePath finds the image file for a timestamp. File name patterns
// are tried in priority order, the finalized product before the
// preliminary "-T" variant, so that finalized data win when both
// exist for the same timestamp. A pattern matching more than one file
// is an error; no pattern matching at all returns ErrNoImage.
func (d *Dataset) ResolvePath(t time.Time) (string, error) {
	dir := filepath.Join(d.Root, ImageSubdir(t))
	stamp := t.Format("20060102_1504")
	for _, token := range []string{d.Config.product().Token, d.Config.product().Token + PrelimSuffix} {
		pattern := filepath.Join(dir, fmt.Sprintf("%s_*_%s.%s", token, stamp, d.FileType))
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return "", fmt.Errorf("ecmwf: bad file pattern %q: %v", pattern, err)
		}
		switch len(matches) {
		case 0:
			continue
		case 1:
			return matches[0], nil
		default:
			return "", fmt.Errorf("ecmwf: %d files match %q; cannot resolve image for %v",
				len(matches), pattern, t)
		}
	}
	return "", fmt.Errorf("%w for %v under %s", ErrNoImage, t, dir)
}

// Read reads the image at the given timestamp.
func (d *Dataset) Read(t time.Time) (*Image, error) {
	path, err := d.ResolvePath(t)
	if err != nil {
		return nil, err
	}
	switch d.FileType {
	case "nc":
		r := &NCImageReader{Config: d.Config}
		return r.Read(path, t)
	default:
		r := &GribImageReader{Config: d.Config}
		return r.Read(path, t)
	}
}

// ImageGrid returns the grid the dataset's image files are stored on,
// determined from one sample file.
func (d *Dataset) ImageGrid() (*Grid, error) {
	sample, err := d.sampleFile()
	if err != nil {
		return nil, err
	}
	switch d.FileType {
	case "nc":
		ff, err := os.Open(sample)
		if err != nil {
			return nil, fmt.Errorf("ecmwf: opening image %s: %v", sample, err)
		}
		defer ff.Close()
		f, err := cdf.Open(ff)
		if err != nil {
			return nil, fmt.Errorf("ecmwf: reading image %s: %v", sample, err)
		}
		g, err := readNCGrid(f)
		if err != nil {
			return nil, fmt.Errorf("ecmwf: reading image %s: %v", sample, err)
		}
		return g, nil
	default:
		ff, err := os.Open(sample)
		if err != nil {
			return nil, fmt.Errorf("ecmwf: opening image %s: %v", sample, err)
		}
		defer ff.Close()
		messages, err := griblib.ReadMessages(ff)
		if err != nil || len(messages) == 0 {
			return nil, fmt.Errorf("ecmwf: reading image %s: %v", sample, err)
		}
		g, err := gribGrid(messages[0])
		if err != nil {
			return nil, fmt.Errorf("ecmwf: reading image %s: %v", sample, err)
		}
		return g, nil
	}
}

// Timestamps returns the nominal image timestamps between start and
// end inclusive, whether or not files exist for all of them.
func (d *Dataset) Timestamps(start, end time.Time) []time.Time {
	return TimestampsForRange(start, end, d.HSteps)
}

// FirstTimestamp returns the timestamp of the earliest image file on
// disk.
func (d *Dataset) FirstTimestamp() (time.Time, error) {
	sample, err := d.sampleFile()
	if err != nil {
		return time.Time{}, err
	}
	_, _, t, _, err := ParseImageFilename(sample)
	return t, err
}

// LastTimestamp returns the timestamp of the latest image file on
// disk.
func (d *Dataset) LastTimestamp() (time.Time, error) {
	years, err := sortedSubdirs(d.Root)
	if err != nil || len(years) == 0 {
		return time.Time{}, fmt.Errorf("ecmwf: reading image root %s: %v", d.Root, err)
	}
	for i := len(years) - 1; i >= 0; i-- {
		days, err := sortedSubdirs(filepath.Join(d.Root, years[i]))
		if err != nil {
			continue
		}
		for j := len(days) - 1; j >= 0; j-- {
			files, err := sortedFiles(filepath.Join(d.Root, years[i], days[j]))
			if err != nil || len(files) == 0 {
				continue
			}
			_, _, t, _, err := ParseImageFilename(files[len(files)-1])
			if err != nil {
				continue
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("ecmwf: no image files found under %s", d.Root)
}
