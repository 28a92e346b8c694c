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
	"strings"
)

// Variable describes one parameter of a reanalysis product, connecting
// the name used in download requests with the short name used in data
// files and archives.
type Variable struct {
	// DLName is the name used when requesting the parameter from the
	// data service.
	DLName string
	// ShortName is the parameter's short name, used as the variable
	// name in data files and time series archives.
	ShortName string
	// LongName is the parameter's descriptive name.
	LongName string
	// Units are the parameter's physical units.
	Units string
	// Grib identifies the parameter in GRIB messages.
	Grib GribParam
}

// GribParam identifies a parameter in a GRIB2 message by its
// discipline, category and number, plus the depth of the layer top in
// meters for parameters defined on soil layers (NoDepth otherwise).
type GribParam struct {
	Discipline, Category, Number uint8
	Depth                        float64
}

// NoDepth marks GRIB parameters that are not defined on a soil layer.
const NoDepth = -1

// Product describes one reanalysis product family.
type Product struct {
	// Name is the canonical product name, for example "era5".
	Name string
	// Token is the product tag used in image file names, for example
	// "ERA5". Preliminary data carry the tag with a "-T" suffix.
	Token string
	// Variables is the product's parameter table.
	Variables []Variable
}

// soil layer top depths in meters, shared by all products.
const (
	soilLayer1 = 0.0
	soilLayer2 = 0.07
	soilLayer3 = 0.28
	soilLayer4 = 1.0
)

// ProductERA5 is the ERA5 reanalysis on a 0.25° regular grid.
var ProductERA5 = &Product{
	Name:  "era5",
	Token: "ERA5",
	Variables: []Variable{
		{"volumetric_soil_water_layer_1", "swvl1", "Volumetric soil water layer 1", "m**3 m**-3", GribParam{2, 0, 25, soilLayer1}},
		{"volumetric_soil_water_layer_2", "swvl2", "Volumetric soil water layer 2", "m**3 m**-3", GribParam{2, 0, 25, soilLayer2}},
		{"volumetric_soil_water_layer_3", "swvl3", "Volumetric soil water layer 3", "m**3 m**-3", GribParam{2, 0, 25, soilLayer3}},
		{"volumetric_soil_water_layer_4", "swvl4", "Volumetric soil water layer 4", "m**3 m**-3", GribParam{2, 0, 25, soilLayer4}},
		{"soil_temperature_level_1", "stl1", "Soil temperature level 1", "K", GribParam{2, 0, 2, soilLayer1}},
		{"soil_temperature_level_2", "stl2", "Soil temperature level 2", "K", GribParam{2, 0, 2, soilLayer2}},
		{"soil_temperature_level_3", "stl3", "Soil temperature level 3", "K", GribParam{2, 0, 2, soilLayer3}},
		{"soil_temperature_level_4", "stl4", "Soil temperature level 4", "K", GribParam{2, 0, 2, soilLayer4}},
		{"land_sea_mask", "lsm", "Land-sea mask", "(0 - 1)", GribParam{2, 0, 0, NoDepth}},
		{"2m_temperature", "t2m", "2 metre temperature", "K", GribParam{0, 0, 0, NoDepth}},
		{"2m_dewpoint_temperature", "d2m", "2 metre dewpoint temperature", "K", GribParam{0, 0, 6, NoDepth}},
		{"skin_temperature", "skt", "Skin temperature", "K", GribParam{0, 0, 17, NoDepth}},
		{"surface_pressure", "sp", "Surface pressure", "Pa", GribParam{0, 3, 0, NoDepth}},
		{"total_precipitation", "tp", "Total precipitation", "m", GribParam{0, 1, 8, NoDepth}},
		{"snow_depth", "sd", "Snow depth", "m of water equivalent", GribParam{0, 1, 11, NoDepth}},
		{"10m_u_component_of_wind", "u10", "10 metre U wind component", "m s**-1", GribParam{0, 2, 2, NoDepth}},
		{"10m_v_component_of_wind", "v10", "10 metre V wind component", "m s**-1", GribParam{0, 2, 3, NoDepth}},
		{"total_evaporation", "e", "Evaporation", "m of water equivalent", GribParam{0, 1, 79, NoDepth}},
		{"runoff", "ro", "Runoff", "m", GribParam{2, 0, 5, NoDepth}},
		{"leaf_area_index_high_vegetation", "lai_hv", "Leaf area index, high vegetation", "m**2 m**-2", GribParam{2, 0, 28, NoDepth}},
		{"leaf_area_index_low_vegetation", "lai_lv", "Leaf area index, low vegetation", "m**2 m**-2", GribParam{2, 0, 28, NoDepth}},
	},
}

// ProductERA5Land is the ERA5-Land reanalysis on a 0.1° regular grid.
var ProductERA5Land = &Product{
	Name:  "era5-land",
	Token: "ERA5-LAND",
	Variables: []Variable{
		{"volumetric_soil_water_layer_1", "swvl1", "Volumetric soil water layer 1", "m**3 m**-3", GribParam{2, 0, 25, soilLayer1}},
		{"volumetric_soil_water_layer_2", "swvl2", "Volumetric soil water layer 2", "m**3 m**-3", GribParam{2, 0, 25, soilLayer2}},
		{"volumetric_soil_water_layer_3", "swvl3", "Volumetric soil water layer 3", "m**3 m**-3", GribParam{2, 0, 25, soilLayer3}},
		{"volumetric_soil_water_layer_4", "swvl4", "Volumetric soil water layer 4", "m**3 m**-3", GribParam{2, 0, 25, soilLayer4}},
		{"soil_temperature_level_1", "stl1", "Soil temperature level 1", "K", GribParam{2, 0, 2, soilLayer1}},
		{"soil_temperature_level_2", "stl2", "Soil temperature level 2", "K", GribParam{2, 0, 2, soilLayer2}},
		{"soil_temperature_level_3", "stl3", "Soil temperature level 3", "K", GribParam{2, 0, 2, soilLayer3}},
		{"soil_temperature_level_4", "stl4", "Soil temperature level 4", "K", GribParam{2, 0, 2, soilLayer4}},
		{"2m_temperature", "t2m", "2 metre temperature", "K", GribParam{0, 0, 0, NoDepth}},
		{"2m_dewpoint_temperature", "d2m", "2 metre dewpoint temperature", "K", GribParam{0, 0, 6, NoDepth}},
		{"skin_temperature", "skt", "Skin temperature", "K", GribParam{0, 0, 17, NoDepth}},
		{"surface_pressure", "sp", "Surface pressure", "Pa", GribParam{0, 3, 0, NoDepth}},
		{"total_precipitation", "tp", "Total precipitation", "m", GribParam{0, 1, 8, NoDepth}},
		{"snow_depth", "sd", "Snow depth", "m of water equivalent", GribParam{0, 1, 11, NoDepth}},
		{"snow_depth_water_equivalent", "sde", "Snow depth water equivalent", "m", GribParam{0, 1, 254, NoDepth}},
		{"total_evaporation", "e", "Evaporation", "m of water equivalent", GribParam{0, 1, 79, NoDepth}},
		{"runoff", "ro", "Runoff", "m", GribParam{2, 0, 5, NoDepth}},
	},
}

// ProductERAInterim is the discontinued ERA-Interim reanalysis.
var ProductERAInterim = &Product{
	Name:  "eraint",
	Token: "ERAINT",
	Variables: []Variable{
		{"volumetric_soil_water_layer_1", "swvl1", "Volumetric soil water layer 1", "m**3 m**-3", GribParam{2, 0, 25, soilLayer1}},
		{"volumetric_soil_water_layer_2", "swvl2", "Volumetric soil water layer 2", "m**3 m**-3", GribParam{2, 0, 25, soilLayer2}},
		{"volumetric_soil_water_layer_3", "swvl3", "Volumetric soil water layer 3", "m**3 m**-3", GribParam{2, 0, 25, soilLayer3}},
		{"volumetric_soil_water_layer_4", "swvl4", "Volumetric soil water layer 4", "m**3 m**-3", GribParam{2, 0, 25, soilLayer4}},
		{"soil_temperature_level_1", "stl1", "Soil temperature level 1", "K", GribParam{2, 0, 2, soilLayer1}},
		{"land_sea_mask", "lsm", "Land-sea mask", "(0 - 1)", GribParam{2, 0, 0, NoDepth}},
		{"2m_temperature", "t2m", "2 metre temperature", "K", GribParam{0, 0, 0, NoDepth}},
		{"2m_dewpoint_temperature", "d2m", "2 metre dewpoint temperature", "K", GribParam{0, 0, 6, NoDepth}},
		{"surface_pressure", "sp", "Surface pressure", "Pa", GribParam{0, 3, 0, NoDepth}},
		{"snow_depth", "sd", "Snow depth", "m of water equivalent", GribParam{0, 1, 11, NoDepth}},
	},
}

// products lists all known products. File name tokens are distinct
// across products and matched exactly, so the order here carries no
// meaning.
var products = []*Product{ProductERA5Land, ProductERA5, ProductERAInterim}

// ProductByName returns the product with the given name. Matching is
// case-insensitive and treats underscores as dashes.
func ProductByName(name string) (*Product, error) {
	canon := strings.ToLower(strings.ReplaceAll(name, "_", "-"))
	for _, p := range products {
		if p.Name == canon {
			return p, nil
		}
	}
	return nil, fmt.Errorf("ecmwf: unknown product %q", name)
}

// Lookup returns the product variables with the given short names, or
// an error naming the first short name that is not in the product's
// parameter table.
func (p *Product) Lookup(shortNames []string) ([]Variable, error) {
	vars := make([]Variable, len(shortNames))
	for i, name := range shortNames {
		v, ok := p.variable(name)
		if !ok {
			return nil, fmt.Errorf("ecmwf: product %s has no variable %q", p.Name, name)
		}
		vars[i] = v
	}
	return vars, nil
}

func (p *Product) variable(shortName string) (Variable, bool) {
	for _, v := range p.Variables {
		if v.ShortName == shortName {
			return v, true
		}
	}
	return Variable{}, false
}

// DefaultVariables returns the short names of all variables in the
// product's parameter table.
func (p *Product) DefaultVariables() []string {
	names := make([]string, len(p.Variables))
	for i, v := range p.Variables {
		names[i] = v.ShortName
	}
	return names
}

// DLNames returns the download request names for the given short
// names.
func (p *Product) DLNames(shortNames []string) ([]string, error) {
	vars, err := p.Lookup(shortNames)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.DLName
	}
	return names, nil
}
