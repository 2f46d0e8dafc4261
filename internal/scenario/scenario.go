// Package scenario loads a fleet of vehicles and geofences from YAML into the
// knowledge base.
package scenario

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/fleet-simulator/model"
)

//go:embed default.yml
var defaultScenario []byte

// Scenario is the on-disk shape of a fleet definition.
type Scenario struct {
	Vehicles  []model.Vehicle  `yaml:"vehicles"`
	Geofences []model.Geofence `yaml:"geofences"`
}

// Summary lists what Apply loaded, mainly for logging from main().
type Summary struct {
	VehicleIDs  []string
	GeofenceIDs []string
}

// Store is the subset of the knowledge base a scenario is loaded into.
type Store interface {
	AddVehicle(v model.Vehicle) error
	CreateGeofence(ctx context.Context, g model.Geofence) (model.Geofence, error)
}

// Decode reads a YAML scenario. Unknown keys are rejected so typos surface early.
func Decode(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return &s, nil
		}
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	return &s, nil
}

// Default returns the embedded demo fleet.
func Default() (*Scenario, error) {
	return Decode(bytes.NewReader(defaultScenario))
}

// LoadFile decodes the scenario at path, or the embedded default when path is empty.
func LoadFile(path string) (*Scenario, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Apply adds every vehicle and geofence to store, stopping at the first
// failure. The summary reflects what was loaded before the failure.
func (s *Scenario) Apply(ctx context.Context, store Store) (*Summary, error) {
	if store == nil {
		return nil, errors.New("scenario: store is nil")
	}
	sum := &Summary{
		VehicleIDs:  make([]string, 0, len(s.Vehicles)),
		GeofenceIDs: make([]string, 0, len(s.Geofences)),
	}
	for _, v := range s.Vehicles {
		if err := store.AddVehicle(v); err != nil {
			return sum, fmt.Errorf("vehicle %q: %w", v.ID, err)
		}
		sum.VehicleIDs = append(sum.VehicleIDs, v.ID)
	}
	for _, g := range s.Geofences {
		created, err := store.CreateGeofence(ctx, g)
		if err != nil {
			return sum, fmt.Errorf("geofence %q: %w", g.Name, err)
		}
		sum.GeofenceIDs = append(sum.GeofenceIDs, created.ID)
	}
	return sum, nil
}
