package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/fleet-simulator/model"
)

// DefaultSpeedLimitKmh is used when a Monitor is built without a limit.
const DefaultSpeedLimitKmh = 120.0

// Monitor turns successive fleet snapshots into alerts: geofence entry and
// exit, and speeding. It remembers the last containment state for every
// vehicle/geofence pair, so alerts fire on transitions only.
type Monitor struct {
	mu sync.Mutex

	SpeedLimitKmh float64

	inside   map[fenceKey]bool
	speeding map[string]bool
	newID    func() string
}

type fenceKey struct {
	vehicleID  string
	geofenceID string
}

// NewMonitor constructs a Monitor with the given speed limit.
func NewMonitor(speedLimitKmh float64) *Monitor {
	if speedLimitKmh <= 0 {
		speedLimitKmh = DefaultSpeedLimitKmh
	}
	return &Monitor{
		SpeedLimitKmh: speedLimitKmh,
		inside:        make(map[fenceKey]bool),
		speeding:      make(map[string]bool),
		newID:         uuid.NewString,
	}
}

// Evaluate compares vehicles against geofences and the speed limit and returns
// the alerts raised by this snapshot.
//
// The first time a vehicle is seen against a geofence only its containment is
// recorded. Inactive geofences are skipped and their state forgotten, so
// re-activating a fence starts from a fresh baseline.
func (m *Monitor) Evaluate(now time.Time, vehicles []model.VehiclePosition, fences []model.Geofence) []model.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var alerts []model.Alert

	active := make(map[string]bool, len(fences))
	for _, g := range fences {
		if g.Active {
			active[g.ID] = true
		}
	}
	for k := range m.inside {
		if !active[k.geofenceID] {
			delete(m.inside, k)
		}
	}

	for _, v := range vehicles {
		pos := model.LatLng{Lat: v.Lat, Lng: v.Lng}

		for _, g := range fences {
			if !g.Active {
				continue
			}
			key := fenceKey{vehicleID: v.ID, geofenceID: g.ID}
			nowIn := GeofenceContains(g, pos)
			wasIn, seen := m.inside[key]
			m.inside[key] = nowIn
			if !seen || wasIn == nowIn {
				continue
			}
			if nowIn && g.AlertOnEnter {
				alerts = append(alerts, m.geofenceAlert(now, v, g, true))
			}
			if !nowIn && g.AlertOnExit {
				alerts = append(alerts, m.geofenceAlert(now, v, g, false))
			}
		}

		over := v.Speed > m.SpeedLimitKmh
		if over && !m.speeding[v.ID] {
			alerts = append(alerts, model.Alert{
				ID:        m.newID(),
				Severity:  model.SeverityCritical,
				Category:  model.CategorySpeed,
				Title:     "Speeding Alert",
				Message:   fmt.Sprintf("Vehicle exceeded %.0f km/h (%.0f km/h)", m.SpeedLimitKmh, v.Speed),
				VehicleID: v.ID,
				Location:  pos,
				Timestamp: now,
			})
		}
		m.speeding[v.ID] = over
	}
	return alerts
}

func (m *Monitor) geofenceAlert(now time.Time, v model.VehiclePosition, g model.Geofence, entered bool) model.Alert {
	a := model.Alert{
		ID:         m.newID(),
		Category:   model.CategoryGeofence,
		VehicleID:  v.ID,
		GeofenceID: g.ID,
		Location:   model.LatLng{Lat: v.Lat, Lng: v.Lng},
		Timestamp:  now,
	}
	if entered {
		a.Severity = model.SeverityInfo
		a.Title = "Geofence Entry"
		a.Message = fmt.Sprintf("Vehicle entered %s", g.Name)
	} else {
		a.Severity = model.SeverityWarning
		a.Title = "Geofence Exit"
		a.Message = fmt.Sprintf("Vehicle left %s", g.Name)
	}
	return a
}
