package model

import "time"

// GeofencePointCount is the number of samples used to draw a circular geofence.
const GeofencePointCount = 64

// LatLng is a WGS84 coordinate in degrees.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" yaml:"lng" validate:"gte=-180,lte=180"`
}

// GeofenceShape selects how a geofence boundary is described.
type GeofenceShape string

const (
	ShapeCircle  GeofenceShape = "circle"
	ShapePolygon GeofenceShape = "polygon"
)

// Geofence is a virtual boundary that raises alerts when vehicles cross it.
//
// Circle geofences use Center and RadiusMeters; their rendered ring is derived
// and cached by the store. Polygon geofences carry their own Vertices.
type Geofence struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name" validate:"required"`
	Description string        `json:"description,omitempty" yaml:"description"`
	Shape       GeofenceShape `json:"shape" yaml:"shape" validate:"oneof=circle polygon"`

	Center       LatLng   `json:"center" yaml:"center"`
	RadiusMeters float64  `json:"radiusMeters,omitempty" yaml:"radiusMeters"`
	Vertices     []LatLng `json:"vertices,omitempty" yaml:"vertices" validate:"omitempty,dive"`

	Color        string `json:"color" yaml:"color" validate:"omitempty,hexcolor"`
	Active       bool   `json:"active" yaml:"active"`
	AlertOnEnter bool   `json:"alertOnEnter" yaml:"alertOnEnter"`
	AlertOnExit  bool   `json:"alertOnExit" yaml:"alertOnExit"`

	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// GeofenceUpdate is a partial update; nil fields are left untouched.
type GeofenceUpdate struct {
	Name         *string   `json:"name,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Center       *LatLng   `json:"center,omitempty"`
	RadiusMeters *float64  `json:"radiusMeters,omitempty"`
	Vertices     *[]LatLng `json:"vertices,omitempty"`
	Color        *string   `json:"color,omitempty"`
	Active       *bool     `json:"active,omitempty"`
	AlertOnEnter *bool     `json:"alertOnEnter,omitempty"`
	AlertOnExit  *bool     `json:"alertOnExit,omitempty"`
}

// ChangesGeometry reports whether applying u would move a circle's boundary.
func (u GeofenceUpdate) ChangesGeometry() bool {
	return u.Center != nil || u.RadiusMeters != nil || u.Vertices != nil
}
