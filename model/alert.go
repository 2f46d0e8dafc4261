package model

import "time"

// AlertSeverity ranks how urgently an alert needs attention.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityWarning  AlertSeverity = "warning"
	SeverityInfo     AlertSeverity = "info"
)

// AlertCategory groups alerts by the rule that raised them.
type AlertCategory string

const (
	CategorySpeed    AlertCategory = "speed"
	CategoryGeofence AlertCategory = "geofence"
)

// Alert is a single notification about a vehicle.
type Alert struct {
	ID         string        `json:"id"`
	Severity   AlertSeverity `json:"severity"`
	Category   AlertCategory `json:"category"`
	Title      string        `json:"title"`
	Message    string        `json:"message"`
	VehicleID  string        `json:"vehicleId"`
	GeofenceID string        `json:"geofenceId,omitempty"`
	Location   LatLng        `json:"location"`
	Timestamp  time.Time     `json:"timestamp"`
	Read       bool          `json:"read"`
	Resolved   bool          `json:"resolved"`
}
