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

// Command ecmwf converts archives of ECMWF reanalysis images into
// point time series.
package main

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/ecmwf/ecmwfutil"
)

var logger *logrus.Logger

func init() {
	logger = logrus.StandardLogger()
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		DisableSorting:  true,
	})
}

func main() {
	if err := ecmwfutil.Root.Execute(); err != nil {
		logger.Fatal(err)
	}
}
