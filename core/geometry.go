package core

import (
	"errors"
	"fmt"
	"math"

	"github.com/signalsfoundry/fleet-simulator/model"
)

const (
	// EarthRadiusKm is the mean Earth radius used for haversine distances.
	EarthRadiusKm = 6371.0

	// KmPerDegreeLat is the flat-earth scale used when drawing geofences.
	KmPerDegreeLat = 111.0

	// MaxGeofenceLatitude bounds circle centers away from the poles, where the
	// longitude scale 1/cos(lat) blows up.
	MaxGeofenceLatitude = 89.9
)

var (
	// ErrInvalidGeometry is returned for non-positive radii, too few sample
	// points or non-finite coordinates.
	ErrInvalidGeometry = errors.New("invalid geometry")
	// ErrPolarLatitudeUnsupported is returned for circle centers beyond MaxGeofenceLatitude.
	ErrPolarLatitudeUnsupported = errors.New("polar latitude unsupported")
)

// RasterizeCircle approximates a circle as a closed ring of pointCount+1
// coordinates, the last repeating the first.
//
// It uses an equirectangular approximation: 111 km per degree of latitude and
// a longitude scale corrected by cos(centerLat). It is not geodesic and only
// holds for radii of a few kilometres away from the poles.
func RasterizeCircle(center model.LatLng, radiusMeters float64, pointCount int) ([]model.LatLng, error) {
	if math.IsNaN(radiusMeters) || radiusMeters <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive, got %v m", ErrInvalidGeometry, radiusMeters)
	}
	if pointCount < 3 {
		return nil, fmt.Errorf("%w: need at least 3 points, got %d", ErrInvalidGeometry, pointCount)
	}
	if !finite(center.Lat) || !finite(center.Lng) {
		return nil, fmt.Errorf("%w: center (%v, %v) is not finite", ErrInvalidGeometry, center.Lat, center.Lng)
	}
	if math.Abs(center.Lat) > MaxGeofenceLatitude {
		return nil, fmt.Errorf("%w: center latitude %v", ErrPolarLatitudeUnsupported, center.Lat)
	}

	radiusKm := radiusMeters / 1000
	latScale := radiusKm / KmPerDegreeLat
	lngScale := radiusKm / (KmPerDegreeLat * math.Cos(degToRad(center.Lat)))

	ring := make([]model.LatLng, 0, pointCount+1)
	for i := 0; i < pointCount; i++ {
		angle := degToRad(float64(i) * 360 / float64(pointCount))
		ring = append(ring, model.LatLng{
			Lat: center.Lat + latScale*math.Cos(angle),
			Lng: center.Lng + lngScale*math.Sin(angle),
		})
	}
	ring = append(ring, ring[0])
	return ring, nil
}

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(a, b model.LatLng) float64 {
	dLat := degToRad(b.Lat - a.Lat)
	dLng := degToRad(b.Lng - a.Lng)
	lat1 := degToRad(a.Lat)
	lat2 := degToRad(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// PointInPolygon reports whether p lies inside ring using ray casting.
// The ring may be open or closed; fewer than three vertices never contain anything.
func PointInPolygon(p model.LatLng, ring []model.LatLng) bool {
	n := len(ring)
	if n > 1 && ring[0] == ring[n-1] {
		n--
	}
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := ring[i], ring[j]
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) {
			crossLng := a.Lng + (p.Lat-a.Lat)*(b.Lng-a.Lng)/(b.Lat-a.Lat)
			if p.Lng < crossLng {
				inside = !inside
			}
		}
	}
	return inside
}

// GeofenceContains reports whether p is inside g. Circles are tested by
// haversine distance to the center; polygons by ray casting over Vertices.
func GeofenceContains(g model.Geofence, p model.LatLng) bool {
	switch g.Shape {
	case model.ShapeCircle:
		if g.RadiusMeters <= 0 {
			return false
		}
		return HaversineKm(g.Center, p)*1000 <= g.RadiusMeters
	case model.ShapePolygon:
		return PointInPolygon(p, g.Vertices)
	default:
		return false
	}
}

func degToRad(deg float64) float64 { return deg * math.Pi / 180 }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
