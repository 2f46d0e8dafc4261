package model

import (
	"fmt"
	"strings"
	"time"
)

// MotionStatus describes what a vehicle is currently doing.
type MotionStatus string

const (
	StatusMoving  MotionStatus = "moving"
	StatusStopped MotionStatus = "stopped"
	StatusIdle    MotionStatus = "idle"
)

// Statuses lists every known MotionStatus in display order.
var Statuses = []MotionStatus{StatusMoving, StatusStopped, StatusIdle}

// Valid reports whether s is one of the known statuses.
func (s MotionStatus) Valid() bool {
	switch s {
	case StatusMoving, StatusStopped, StatusIdle:
		return true
	}
	return false
}

// ParseMotionStatus parses a case-insensitive status name.
func ParseMotionStatus(raw string) (MotionStatus, error) {
	s := MotionStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown motion status %q", raw)
	}
	return s, nil
}

// VehiclePosition is the kinematic state of a single vehicle.
// Heading is in compass degrees within [0, 360); Speed is km/h and never negative.
type VehiclePosition struct {
	ID      string       `json:"id" yaml:"id" validate:"required"`
	Lat     float64      `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lng     float64      `json:"lng" yaml:"lng" validate:"gte=-180,lte=180"`
	Heading float64      `json:"heading" yaml:"heading" validate:"gte=0,lt=360"`
	Speed   float64      `json:"speed" yaml:"speed" validate:"gte=0"`
	Status  MotionStatus `json:"status" yaml:"status" validate:"oneof=moving stopped idle"`
}

// Vehicle is a fleet asset: its position plus the metadata shown on the dashboard.
type Vehicle struct {
	VehiclePosition `yaml:",inline"`

	Name    string  `json:"name" yaml:"name"`
	Plate   string  `json:"plate" yaml:"plate"`
	Driver  string  `json:"driver" yaml:"driver"`
	Address string  `json:"address,omitempty" yaml:"address"`
	Battery float64 `json:"battery" yaml:"battery" validate:"gte=0"` // volts

	LastUpdate time.Time `json:"lastUpdate" yaml:"-"`
}
