package feed

import (
	"github.com/signalsfoundry/fleet-simulator/model"
)

// FeatureCollection is a GeoJSON FeatureCollection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Geometry holds Point coordinates as []float64 and Polygon coordinates as
// [][][]float64. Positions are [lng, lat].
type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// GeofenceRing pairs a geofence with its closed boundary ring.
type GeofenceRing struct {
	Geofence model.Geofence
	Ring     []model.LatLng
}

// GeofenceCollection renders geofences as Polygon features. Fences without a
// ring are skipped.
func GeofenceCollection(fences []GeofenceRing) FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(fences))}
	for _, f := range fences {
		if len(f.Ring) == 0 {
			continue
		}
		g := f.Geofence
		fc.Features = append(fc.Features, Feature{
			Type: "Feature",
			ID:   g.ID,
			Geometry: Geometry{
				Type:        "Polygon",
				Coordinates: [][][]float64{lngLatRing(f.Ring)},
			},
			Properties: map[string]any{
				"name":         g.Name,
				"description":  g.Description,
				"shape":        string(g.Shape),
				"color":        g.Color,
				"active":       g.Active,
				"alertOnEnter": g.AlertOnEnter,
				"alertOnExit":  g.AlertOnExit,
			},
		})
	}
	return fc
}

// VehicleCollection renders vehicles as Point features.
func VehicleCollection(vehicles []model.Vehicle) FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(vehicles))}
	for _, v := range vehicles {
		fc.Features = append(fc.Features, Feature{
			Type: "Feature",
			ID:   v.ID,
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{v.Lng, v.Lat},
			},
			Properties: map[string]any{
				"name":    v.Name,
				"plate":   v.Plate,
				"status":  string(v.Status),
				"speed":   v.Speed,
				"heading": v.Heading,
			},
		})
	}
	return fc
}

func lngLatRing(ring []model.LatLng) [][]float64 {
	out := make([][]float64, len(ring))
	for i, p := range ring {
		out[i] = []float64{p.Lng, p.Lat}
	}
	return out
}
