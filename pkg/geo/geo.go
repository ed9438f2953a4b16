// Package geo holds the distance math used for proximity checks.
package geo

import (
	"math"

	"github.com/flagit/flagit-backend/pkg/types"
)

const (
	// EarthRadiusMeters is the IUGG mean earth radius.
	EarthRadiusMeters = 6371008.8

	// boundaryTolerance absorbs float error so points sitting on the radius count as inside.
	boundaryTolerance = 1e-6

	metersPerDegreeLat = math.Pi * EarthRadiusMeters / 180
)

// Distance returns the great-circle distance in metres between two points.
func Distance(a, b types.GeographyPoint) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := lat2 - lat1
	dLng := radians(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// WithinRadius reports whether point lies within radiusMeters of anchor, boundary inclusive.
func WithinRadius(anchor, point types.GeographyPoint, radiusMeters float64) bool {
	if radiusMeters < 0 {
		return false
	}
	return Distance(anchor, point) <= radiusMeters+boundaryTolerance
}

// Box is a lat/lng rectangle used to prefilter rows before the exact distance test.
type Box struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// BoundingBox returns a box that contains every point within radiusMeters of center.
// Near the poles the longitude span widens to the full range.
func BoundingBox(center types.GeographyPoint, radiusMeters float64) Box {
	// pad slightly so the box never clips a point the haversine test would accept
	padded := radiusMeters*1.001 + 1
	dLat := padded / metersPerDegreeLat

	box := Box{
		MinLat: math.Max(center.Lat-dLat, -90),
		MaxLat: math.Min(center.Lat+dLat, 90),
		MinLng: -180,
		MaxLng: 180,
	}

	cosLat := math.Cos(radians(math.Max(math.Abs(box.MinLat), math.Abs(box.MaxLat))))
	if cosLat < 1e-9 {
		return box
	}
	dLng := padded / (metersPerDegreeLat * cosLat)
	if dLng >= 180 {
		return box
	}
	minLng := center.Lng - dLng
	maxLng := center.Lng + dLng
	if minLng < -180 || maxLng > 180 {
		// crossing the antimeridian; a full-width band is still a valid superset
		return box
	}
	box.MinLng = minLng
	box.MaxLng = maxLng
	return box
}

// Offset moves a point by the given metres north and east. Useful for fixtures.
func Offset(p types.GeographyPoint, northMeters, eastMeters float64) types.GeographyPoint {
	lat := p.Lat + northMeters/metersPerDegreeLat
	lng := p.Lng + eastMeters/(metersPerDegreeLat*math.Cos(radians(p.Lat)))
	return types.GeographyPoint{Lat: lat, Lng: lng}
}

// RoundMeters rounds a distance to one decimal place.
func RoundMeters(d float64) float64 {
	return math.Round(d*10) / 10
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
