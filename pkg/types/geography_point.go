package types

import (
	"fmt"
	"math"
)

// GeographyPoint is a WGS84 coordinate stored as two float columns.
type GeographyPoint struct {
	Lat float64 `json:"lat" gorm:"column:lat;not null"`
	Lng float64 `json:"lng" gorm:"column:lng;not null"`
}

// Validate rejects NaN, infinite and out-of-range coordinates.
func (g GeographyPoint) Validate() error {
	if math.IsNaN(g.Lat) || math.IsInf(g.Lat, 0) || g.Lat < -90 || g.Lat > 90 {
		return fmt.Errorf("geography: latitude %v out of range", g.Lat)
	}
	if math.IsNaN(g.Lng) || math.IsInf(g.Lng, 0) || g.Lng < -180 || g.Lng > 180 {
		return fmt.Errorf("geography: longitude %v out of range", g.Lng)
	}
	return nil
}

// String renders the point as EWKT, matching what PostGIS tooling expects.
func (g GeographyPoint) String() string {
	return fmt.Sprintf("SRID=4326;POINT(%f %f)", g.Lng, g.Lat)
}
