package redshift

import (
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// Daylight is a mode flag which is set while the sun is above a solar
// elevation at a location.
type Daylight struct {
	Latitude  float64
	Longitude float64
	Elevation float64          // solar elevation in degrees for the transition to daytime (e.g., -6 for civil twilight)
	Now       func() time.Time // defaults to time.Now
}

// IsDay checks whether the sun is currently at or above the elevation.
func (d Daylight) IsDay() bool {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	return sunrise.Elevation(d.Latitude, d.Longitude, now()) >= d.Elevation
}
