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
	"fmt"
	"time"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/ecmwf"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to the
	// commands.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "start",
			usage: `
              start specifies the first day to convert, formatted
              YYYY-MM-DD. The default is the date of the first image
              found on disk.`,
			shorthand:  "s",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{reshuffleCmd.Flags()},
		},
		{
			name: "end",
			usage: `
              end specifies the last day to convert, formatted
              YYYY-MM-DD. The default is the date of the last image
              found on disk.`,
			shorthand:  "e",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{reshuffleCmd.Flags()},
		},
		{
			name: "variables",
			usage: `
              variables specifies the parameter short names to convert.
              The default is every parameter the product defines.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{reshuffleCmd.Flags()},
		},
		{
			name: "product",
			usage: `
              product names the reanalysis product (era5, era5-land or
              eraint). The default is to detect it from the image file
              names.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{reshuffleCmd.Flags(), extractCmd.Flags()},
		},
		{
			name: "land_points",
			usage: `
              land_points restricts conversion to land points, using the
              land definition file for the image resolution.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{reshuffleCmd.Flags()},
		},
		{
			name: "mask_seapoints",
			usage: `
              mask_seapoints replaces values over water with NaN, using
              the lsm variable stored with the images.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{reshuffleCmd.Flags()},
		},
		{
			name: "bbox",
			usage: `
              bbox restricts conversion to a bounding box, given as four
              values: min longitude, min latitude, max longitude, max
              latitude.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{reshuffleCmd.Flags()},
		},
		{
			name: "h_steps",
			usage: `
              h_steps specifies the sub-daily hours that images exist
              at.`,
			defaultVal: []int{0, 6, 12, 18},
			flagsets:   []*pflag.FlagSet{reshuffleCmd.Flags()},
		},
		{
			name: "imgbuffer",
			usage: `
              imgbuffer specifies how many images are read into memory
              between writes to the time series files. Higher values
              speed up conversion and use more memory.`,
			defaultVal: 50,
			flagsets:   []*pflag.FlagSet{reshuffleCmd.Flags(), updateCmd.Flags()},
		},
		{
			name: "workers",
			usage: `
              workers specifies how many cells are written concurrently.
              The default is the number of processors.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{reshuffleCmd.Flags(), updateCmd.Flags()},
		},
		{
			name: "imgpath",
			usage: `
              imgpath overrides the image archive recorded in the time
              series archive's summary file when updating.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{updateCmd.Flags()},
		},
		{
			name: "keep_prelim",
			usage: `
              keep_prelim keeps timestamps holding preliminary data,
              writing them with the "-T" product suffix.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
		{
			name: "filetype",
			usage: `
              filetype specifies the stream tag embedded in image file
              names.`,
			defaultVal: "AN",
			flagsets:   []*pflag.FlagSet{extractCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("ECMWF")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case []int:
				if option.shorthand == "" {
					set.IntSlice(option.name, option.defaultVal.([]int), option.usage)
				} else {
					set.IntSliceP(option.name, option.shorthand, option.defaultVal.([]int), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(reshuffleCmd)
	Root.AddCommand(updateCmd)
	Root.AddCommand(extractCmd)
	Root.AddCommand(landmaskCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("ecmwf: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "ecmwf",
	Short: "Convert reanalysis images to time series.",
	Long: `ecmwf converts archives of ECMWF reanalysis images into point
time series and reads them back. Use the subcommands specified below to
access the functionality.

Configuration can be changed by using a configuration file (and providing
the path to the file using the --config flag), by using command-line
arguments, or by setting environment variables in the format 'ECMWF_var'
where 'var' is the name of the variable to be set.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("ecmwf v%s\n", ecmwf.Version)
	},
	DisableAutoGenTag: true,
}

var reshuffleCmd = &cobra.Command{
	Use:   "reshuffle IMG_PATH TS_PATH",
	Short: "Convert an image archive to a time series archive.",
	Long: `reshuffle reads the images stored under IMG_PATH in the
year/day-of-year layout and writes them as time series files chunked
into 5°x5° cells under TS_PATH. The conversion settings are recorded in
TS_PATH/overview.yml so that the archive can later be extended with the
update command.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		hSteps, err := cast.ToIntSliceE(Cfg.Get("h_steps"))
		if err != nil {
			return fmt.Errorf("ecmwf: cannot parse h_steps: %v", err)
		}
		cfg := ReshuffleConfig{
			ImgPath:       args[0],
			TsPath:        args[1],
			Product:       Cfg.GetString("product"),
			Variables:     Cfg.GetStringSlice("variables"),
			LandPoints:    Cfg.GetBool("land_points"),
			MaskSeapoints: Cfg.GetBool("mask_seapoints"),
			HSteps:        hSteps,
			ImgBuffer:     Cfg.GetInt("imgbuffer"),
			NWorkers:      Cfg.GetInt("workers"),
		}
		bbox, err := parseBBox(Cfg.GetStringSlice("bbox"))
		if err != nil {
			return err
		}
		cfg.BBox = bbox
		cfg.Start, cfg.End, err = resolvePeriod(cfg, Cfg.GetString("start"), Cfg.GetString("end"))
		if err != nil {
			return err
		}
		return Reshuffle(cfg)
	},
	DisableAutoGenTag: true,
}

var updateCmd = &cobra.Command{
	Use:   "update TS_PATH",
	Short: "Extend a time series archive with newly arrived images.",
	Long: `update reads the conversion settings recorded in
TS_PATH/overview.yml and appends every image that arrived after the
previously converted period, starting the day after it ends. If there
are no new images the command is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ExtendTs(args[0], Cfg.GetString("imgpath"), Cfg.GetInt("imgbuffer"))
	},
	DisableAutoGenTag: true,
}

var extractCmd = &cobra.Command{
	Use:   "extract STACK_PATH IMG_PATH",
	Short: "Split a downloaded stack into single-timestamp images.",
	Long: `extract splits a downloaded multi-timestamp NetCDF or GRIB
stack file into single-timestamp image files under IMG_PATH in the
year/day-of-year layout expected by reshuffle.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var prod *ecmwf.Product
		if name := Cfg.GetString("product"); name != "" {
			var err error
			if prod, err = ecmwf.ProductByName(name); err != nil {
				return err
			}
		}
		return Extract(args[0], args[1], ecmwf.ExtractOptions{
			Product:    prod,
			FileType:   Cfg.GetString("filetype"),
			KeepPrelim: Cfg.GetBool("keep_prelim"),
		})
	},
	DisableAutoGenTag: true,
}

var landmaskCmd = &cobra.Command{
	Use:   "landmask IMAGE_PATH OUT_PATH",
	Short: "Derive a land definition file from an image.",
	Long: `landmask reads the land-sea mask variable from the NetCDF
image at IMAGE_PATH and writes a land definition file to OUT_PATH, for
building land grids at resolutions no definition file is shipped for.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ecmwf.MakeLandDefinitionFile(args[0], args[1])
	},
	DisableAutoGenTag: true,
}

// resolvePeriod fills in the conversion period, probing the image
// archive for the first and last images when no dates are given.
func resolvePeriod(cfg ReshuffleConfig, start, end string) (time.Time, time.Time, error) {
	var s, e time.Time
	var err error
	if start != "" {
		if s, err = time.Parse(ecmwf.DateFormat, start); err != nil {
			return s, e, fmt.Errorf("ecmwf: cannot parse start date %q: %v", start, err)
		}
	}
	if end != "" {
		if e, err = time.Parse(ecmwf.DateFormat, end); err != nil {
			return s, e, fmt.Errorf("ecmwf: cannot parse end date %q: %v", end, err)
		}
	}
	if start != "" && end != "" {
		return s, e, nil
	}

	var prod *ecmwf.Product
	if cfg.Product != "" {
		if prod, err = ecmwf.ProductByName(cfg.Product); err != nil {
			return s, e, err
		}
	}
	d, err := ecmwf.OpenDataset(cfg.ImgPath, ecmwf.ReaderConfig{Product: prod}, cfg.HSteps)
	if err != nil {
		return s, e, err
	}
	if start == "" {
		if s, err = d.FirstTimestamp(); err != nil {
			return s, e, err
		}
	}
	if end == "" {
		if e, err = d.LastTimestamp(); err != nil {
			return s, e, err
		}
	}
	return s, e, nil
}

// parseBBox interprets the bbox flag values.
func parseBBox(vals []string) (*ecmwf.BBox, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	if len(vals) != 4 {
		return nil, fmt.Errorf("ecmwf: bbox needs 4 values; got %d", len(vals))
	}
	nums := make([]float64, 4)
	for i, v := range vals {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, fmt.Errorf("ecmwf: cannot parse bbox value %q: %v", v, err)
		}
		nums[i] = f
	}
	return &ecmwf.BBox{LonMin: nums[0], LatMin: nums[1], LonMax: nums[2], LatMax: nums[3]}, nil
}
