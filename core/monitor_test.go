package core

import (
	"fmt"
	"testing"
	"time"

	"github.com/signalsfoundry/fleet-simulator/model"
)

var monitorNow = time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)

func newTestMonitor(limit float64) *Monitor {
	m := NewMonitor(limit)
	n := 0
	m.newID = func() string {
		n++
		return fmt.Sprintf("alert-%d", n)
	}
	return m
}

func office() model.Geofence {
	return model.Geofence{
		ID:           "office",
		Name:         "Ljubljana Office",
		Shape:        model.ShapeCircle,
		Center:       model.LatLng{Lat: 46.0569, Lng: 14.5058},
		RadiusMeters: 500,
		Active:       true,
		AlertOnEnter: true,
		AlertOnExit:  true,
	}
}

func at(lat, lng, speed float64) []model.VehiclePosition {
	return []model.VehiclePosition{{ID: "v1", Lat: lat, Lng: lng, Speed: speed, Status: model.StatusMoving}}
}

func TestMonitorFirstObservationIsBaseline(t *testing.T) {
	m := newTestMonitor(120)
	fences := []model.Geofence{office()}

	if alerts := m.Evaluate(monitorNow, at(46.0569, 14.5058, 50), fences); len(alerts) != 0 {
		t.Fatalf("first observation raised %d alerts, want 0", len(alerts))
	}
	if alerts := m.Evaluate(monitorNow, at(46.0570, 14.5058, 50), fences); len(alerts) != 0 {
		t.Fatalf("staying inside raised %d alerts, want 0", len(alerts))
	}
}

func TestMonitorEntryAndExit(t *testing.T) {
	m := newTestMonitor(120)
	fences := []model.Geofence{office()}

	m.Evaluate(monitorNow, at(46.07, 14.5058, 50), fences)

	alerts := m.Evaluate(monitorNow.Add(3*time.Second), at(46.0569, 14.5058, 50), fences)
	if len(alerts) != 1 {
		t.Fatalf("entry alerts = %d, want 1", len(alerts))
	}
	a := alerts[0]
	if a.Severity != model.SeverityInfo || a.Category != model.CategoryGeofence || a.Title != "Geofence Entry" {
		t.Fatalf("entry alert = %+v", a)
	}
	if a.Message != "Vehicle entered Ljubljana Office" || a.GeofenceID != "office" || a.VehicleID != "v1" {
		t.Fatalf("entry alert = %+v", a)
	}

	alerts = m.Evaluate(monitorNow.Add(6*time.Second), at(46.07, 14.5058, 50), fences)
	if len(alerts) != 1 || alerts[0].Severity != model.SeverityWarning || alerts[0].Title != "Geofence Exit" {
		t.Fatalf("exit alerts = %+v", alerts)
	}
	if alerts[0].Message != "Vehicle left Ljubljana Office" {
		t.Fatalf("exit message = %q", alerts[0].Message)
	}
}

func TestMonitorRespectsAlertFlags(t *testing.T) {
	m := newTestMonitor(120)
	g := office()
	g.AlertOnEnter = false
	fences := []model.Geofence{g}

	m.Evaluate(monitorNow, at(46.07, 14.5058, 50), fences)
	if alerts := m.Evaluate(monitorNow, at(46.0569, 14.5058, 50), fences); len(alerts) != 0 {
		t.Fatalf("entry with AlertOnEnter=false raised %+v", alerts)
	}
	if alerts := m.Evaluate(monitorNow, at(46.07, 14.5058, 50), fences); len(alerts) != 1 {
		t.Fatalf("exit alerts = %d, want 1", len(alerts))
	}
}

func TestMonitorInactiveFenceResetsBaseline(t *testing.T) {
	m := newTestMonitor(120)
	g := office()
	m.Evaluate(monitorNow, at(46.07, 14.5058, 50), []model.Geofence{g})

	g.Active = false
	if alerts := m.Evaluate(monitorNow, at(46.0569, 14.5058, 50), []model.Geofence{g}); len(alerts) != 0 {
		t.Fatalf("inactive fence raised %+v", alerts)
	}

	g.Active = true
	if alerts := m.Evaluate(monitorNow, at(46.0569, 14.5058, 50), []model.Geofence{g}); len(alerts) != 0 {
		t.Fatalf("reactivated fence raised %+v on baseline", alerts)
	}
}

func TestMonitorSpeedingFiresOncePerExcursion(t *testing.T) {
	m := newTestMonitor(100)

	if alerts := m.Evaluate(monitorNow, at(0, 0, 90), nil); len(alerts) != 0 {
		t.Fatalf("under limit raised %+v", alerts)
	}
	alerts := m.Evaluate(monitorNow, at(0, 0, 110), nil)
	if len(alerts) != 1 {
		t.Fatalf("speeding alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != model.SeverityCritical || alerts[0].Category != model.CategorySpeed {
		t.Fatalf("speeding alert = %+v", alerts[0])
	}
	if alerts[0].Message != "Vehicle exceeded 100 km/h (110 km/h)" {
		t.Fatalf("speeding message = %q", alerts[0].Message)
	}
	if alerts := m.Evaluate(monitorNow, at(0, 0, 115), nil); len(alerts) != 0 {
		t.Fatalf("continued speeding raised %+v", alerts)
	}
	m.Evaluate(monitorNow, at(0, 0, 80), nil)
	if alerts := m.Evaluate(monitorNow, at(0, 0, 101), nil); len(alerts) != 1 {
		t.Fatalf("second excursion alerts = %d, want 1", len(alerts))
	}
}

func TestNewMonitorDefaultsLimit(t *testing.T) {
	if m := NewMonitor(0); m.SpeedLimitKmh != DefaultSpeedLimitKmh {
		t.Fatalf("SpeedLimitKmh = %v, want %v", m.SpeedLimitKmh, DefaultSpeedLimitKmh)
	}
}
