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

import "testing"

func TestProductByName(t *testing.T) {
	cases := []struct {
		name string
		want *Product
	}{
		{"era5", ProductERA5},
		{"ERA5", ProductERA5},
		{"era5-land", ProductERA5Land},
		{"ERA5_LAND", ProductERA5Land},
		{"eraint", ProductERAInterim},
	}
	for _, c := range cases {
		p, err := ProductByName(c.name)
		if err != nil {
			t.Errorf("%s: %v", c.name, err)
			continue
		}
		if p != c.want {
			t.Errorf("%s resolved to %s", c.name, p.Name)
		}
	}
	if _, err := ProductByName("era6"); err == nil {
		t.Error("unknown product name should fail")
	}
}

func TestLookup(t *testing.T) {
	vars, err := ProductERA5.Lookup([]string{"swvl1", "t2m"})
	if err != nil {
		t.Fatal(err)
	}
	if vars[0].DLName != "volumetric_soil_water_layer_1" {
		t.Errorf("swvl1 download name = %q", vars[0].DLName)
	}
	if vars[1].LongName != "2 metre temperature" {
		t.Errorf("t2m long name = %q", vars[1].LongName)
	}

	if _, err := ProductERA5.Lookup([]string{"swvl1", "nope"}); err == nil {
		t.Error("unknown short name should fail")
	}
}

func TestDLNames(t *testing.T) {
	names, err := ProductERA5Land.DLNames([]string{"sd", "swvl2"})
	if err != nil {
		t.Fatal(err)
	}
	if names[0] != "snow_depth" || names[1] != "volumetric_soil_water_layer_2" {
		t.Errorf("download names = %v", names)
	}
}

func TestDefaultVariables(t *testing.T) {
	defaults := ProductERAInterim.DefaultVariables()
	if len(defaults) != len(ProductERAInterim.Variables) {
		t.Fatalf("%d defaults; want %d", len(defaults), len(ProductERAInterim.Variables))
	}
	if _, err := ProductERAInterim.Lookup(defaults); err != nil {
		t.Error(err)
	}
}
