package kb

import (
	"fmt"
	"strings"
	"time"

	"github.com/signalsfoundry/fleet-simulator/model"
)

// AddVehicle adds a new vehicle. It returns an error if the ID already exists
// or the vehicle fails validation.
func (kb *KnowledgeBase) AddVehicle(v model.Vehicle) error {
	if err := kb.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidVehicle, err)
	}

	kb.mu.Lock()
	if _, exists := kb.vehicles[v.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrVehicleExists, v.ID)
	}
	if v.LastUpdate.IsZero() {
		v.LastUpdate = kb.now()
	}
	stored := v
	kb.vehicles[v.ID] = &stored
	kb.vehicleOrder = append(kb.vehicleOrder, v.ID)
	kb.reportLocked()
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventVehicleAdded, Vehicle: v})
	return nil
}

// GetVehicle returns a copy of the vehicle with the given ID.
func (kb *KnowledgeBase) GetVehicle(id string) (model.Vehicle, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	v, ok := kb.vehicles[id]
	if !ok {
		return model.Vehicle{}, false
	}
	return *v, true
}

// ListVehicles returns a snapshot of all vehicles in insertion order.
func (kb *KnowledgeBase) ListVehicles() []model.Vehicle {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.Vehicle, 0, len(kb.vehicleOrder))
	for _, id := range kb.vehicleOrder {
		res = append(res, *kb.vehicles[id])
	}
	return res
}

// VehicleFilter narrows ListVehiclesMatching. Zero values match everything.
type VehicleFilter struct {
	Status model.MotionStatus
	// Query is matched case-insensitively against name, plate and driver.
	Query string
}

// ListVehiclesMatching returns the vehicles accepted by f, in insertion order.
func (kb *KnowledgeBase) ListVehiclesMatching(f VehicleFilter) []model.Vehicle {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	all := kb.ListVehicles()
	res := all[:0]
	for _, v := range all {
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(v.Name), q) &&
			!strings.Contains(strings.ToLower(v.Plate), q) &&
			!strings.Contains(strings.ToLower(v.Driver), q) {
			continue
		}
		res = append(res, v)
	}
	return res
}

// Positions returns the kinematic snapshot of the fleet in insertion order.
func (kb *KnowledgeBase) Positions() []model.VehiclePosition {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.VehiclePosition, 0, len(kb.vehicleOrder))
	for _, id := range kb.vehicleOrder {
		res = append(res, kb.vehicles[id].VehiclePosition)
	}
	return res
}

// ApplyPositions replaces the kinematic state of the listed vehicles. Either
// every ID is known and all are applied, or nothing changes.
func (kb *KnowledgeBase) ApplyPositions(at time.Time, positions []model.VehiclePosition) error {
	kb.mu.Lock()
	applied, err := kb.applyLocked(at, positions)
	if err != nil {
		kb.mu.Unlock()
		return err
	}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventVehiclesUpdated, Positions: applied})
	return nil
}

// AdvancePositions hands the current snapshot to step and applies its result
// under a single write lock, so no position update can land between the read
// and the write. The applied snapshot is returned.
func (kb *KnowledgeBase) AdvancePositions(at time.Time, step func([]model.VehiclePosition) []model.VehiclePosition) ([]model.VehiclePosition, error) {
	kb.mu.Lock()
	snapshot := make([]model.VehiclePosition, 0, len(kb.vehicleOrder))
	for _, id := range kb.vehicleOrder {
		snapshot = append(snapshot, kb.vehicles[id].VehiclePosition)
	}
	applied, err := kb.applyLocked(at, step(snapshot))
	if err != nil {
		kb.mu.Unlock()
		return nil, err
	}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventVehiclesUpdated, Positions: applied})
	out := make([]model.VehiclePosition, len(applied))
	copy(out, applied)
	return out, nil
}

// applyLocked writes positions after checking every ID; callers hold kb.mu.
// It returns a private copy of what was applied.
func (kb *KnowledgeBase) applyLocked(at time.Time, positions []model.VehiclePosition) ([]model.VehiclePosition, error) {
	for _, p := range positions {
		if _, ok := kb.vehicles[p.ID]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrVehicleNotFound, p.ID)
		}
	}
	for _, p := range positions {
		v := kb.vehicles[p.ID]
		v.VehiclePosition = p
		v.LastUpdate = at
	}
	kb.reportLocked()

	applied := make([]model.VehiclePosition, len(positions))
	copy(applied, positions)
	return applied, nil
}

// UpdateVehiclePosition applies a single externally reported position after
// validating it.
func (kb *KnowledgeBase) UpdateVehiclePosition(p model.VehiclePosition) error {
	if err := kb.validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidVehicle, err)
	}
	return kb.ApplyPositions(kb.now(), []model.VehiclePosition{p})
}
