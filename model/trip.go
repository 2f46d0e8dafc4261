package model

import "time"

// TripStatus is the lifecycle state of a recorded trip.
type TripStatus string

const (
	TripInProgress TripStatus = "in_progress"
	TripCompleted  TripStatus = "completed"
)

// TripPoint is one breadcrumb along a trip.
type TripPoint struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     float64   `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
}

// TripStats summarises a trip's breadcrumbs.
type TripStats struct {
	TotalDistanceKm float64       `json:"totalDistanceKm"`
	MaxSpeed        float64       `json:"maxSpeed"`
	AvgSpeed        float64       `json:"avgSpeed"`
	Duration        time.Duration `json:"duration"`
}

// Trip is a contiguous stretch of movement for one vehicle.
type Trip struct {
	ID        string      `json:"id"`
	VehicleID string      `json:"vehicleId"`
	Driver    string      `json:"driver,omitempty"`
	Status    TripStatus  `json:"status"`
	StartTime time.Time   `json:"startTime"`
	EndTime   time.Time   `json:"endTime,omitempty"`
	Points    []TripPoint `json:"points"`
	Stats     TripStats   `json:"stats"`
}
