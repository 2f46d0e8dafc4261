package core

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/fleet-simulator/model"
)

// TripRecorder builds trip tracks from the tick stream. A vehicle that starts
// moving opens a trip; every tick while moving adds a breadcrumb; any other
// status closes it.
type TripRecorder struct {
	mu sync.RWMutex

	open          map[string]*model.Trip
	completed     map[string][]model.Trip
	maxPerVehicle int
	newID         func() string
}

// NewTripRecorder keeps at most maxPerVehicle completed trips per vehicle;
// zero or less keeps them all.
func NewTripRecorder(maxPerVehicle int) *TripRecorder {
	return &TripRecorder{
		open:          make(map[string]*model.Trip),
		completed:     make(map[string][]model.Trip),
		maxPerVehicle: maxPerVehicle,
		newID:         uuid.NewString,
	}
}

// Observe feeds one snapshot into the recorder.
func (r *TripRecorder) Observe(now time.Time, vehicles []model.VehiclePosition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range vehicles {
		trip, tracking := r.open[v.ID]
		point := model.TripPoint{Lat: v.Lat, Lng: v.Lng, Speed: v.Speed, Timestamp: now}

		switch {
		case v.Status == model.StatusMoving && !tracking:
			r.open[v.ID] = &model.Trip{
				ID:        r.newID(),
				VehicleID: v.ID,
				Status:    model.TripInProgress,
				StartTime: now,
				Points:    []model.TripPoint{point},
			}
		case v.Status == model.StatusMoving:
			trip.Points = append(trip.Points, point)
		case tracking:
			trip.Points = append(trip.Points, point)
			trip.EndTime = now
			trip.Status = model.TripCompleted
			trip.Stats = ComputeTripStats(trip.Points)
			r.archive(*trip)
			delete(r.open, v.ID)
		}
	}
}

// Trips returns the vehicle's completed trips, most recent first, preceded by
// the in-progress trip if there is one.
func (r *TripRecorder) Trips(vehicleID string) []model.Trip {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Trip
	if t, ok := r.open[vehicleID]; ok {
		cp := *t
		cp.Points = append([]model.TripPoint(nil), t.Points...)
		cp.Stats = ComputeTripStats(cp.Points)
		out = append(out, cp)
	}
	done := r.completed[vehicleID]
	for i := len(done) - 1; i >= 0; i-- {
		out = append(out, done[i])
	}
	return out
}

// VehicleIDs returns every vehicle that has at least one trip, sorted.
func (r *TripRecorder) VehicleIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.open)+len(r.completed))
	for id := range r.open {
		seen[id] = struct{}{}
	}
	for id := range r.completed {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *TripRecorder) archive(t model.Trip) {
	done := append(r.completed[t.VehicleID], t)
	if r.maxPerVehicle > 0 && len(done) > r.maxPerVehicle {
		done = done[len(done)-r.maxPerVehicle:]
	}
	r.completed[t.VehicleID] = done
}

// ComputeTripStats sums haversine distance between consecutive points and
// derives max/average speed and duration.
func ComputeTripStats(points []model.TripPoint) model.TripStats {
	var stats model.TripStats
	if len(points) == 0 {
		return stats
	}

	var speedSum float64
	for i, p := range points {
		speedSum += p.Speed
		if p.Speed > stats.MaxSpeed {
			stats.MaxSpeed = p.Speed
		}
		if i > 0 {
			prev := points[i-1]
			stats.TotalDistanceKm += HaversineKm(
				model.LatLng{Lat: prev.Lat, Lng: prev.Lng},
				model.LatLng{Lat: p.Lat, Lng: p.Lng},
			)
		}
	}
	stats.AvgSpeed = speedSum / float64(len(points))
	stats.Duration = points[len(points)-1].Timestamp.Sub(points[0].Timestamp)
	return stats
}
