package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/fleet-simulator/model"
)

const tracerName = "github.com/signalsfoundry/fleet-simulator/core"

// FleetStore is the slice of the knowledge base the engine needs.
// AdvancePositions must run step and apply its result atomically with respect
// to other position writers.
type FleetStore interface {
	AdvancePositions(at time.Time, step func([]model.VehiclePosition) []model.VehiclePosition) ([]model.VehiclePosition, error)
	ListGeofences() []model.Geofence
	AddAlerts(alerts ...model.Alert)
}

// TickObserver receives per-tick measurements. Implementations must be cheap.
type TickObserver interface {
	ObserveTick(d time.Duration, counts map[model.MotionStatus]int)
	ObserveAlerts(alerts []model.Alert)
}

// TickResult summarises one engine step.
type TickResult struct {
	Tick     int
	SimTime  time.Time
	Vehicles []model.VehiclePosition
	Alerts   []model.Alert
	Duration time.Duration
}

// SimulationEngine advances the fleet one tick at a time: motion, then alert
// rules, then trip recording.
type SimulationEngine struct {
	Store   FleetStore
	Motion  MotionModel
	Monitor *Monitor
	Trips   *TripRecorder

	observer      TickObserver
	tickListeners []func(TickResult)
	ticks         atomic.Int64
}

// EngineOption customises a SimulationEngine.
type EngineOption func(*SimulationEngine)

// WithTickObserver wires metrics into the engine.
func WithTickObserver(o TickObserver) EngineOption {
	return func(se *SimulationEngine) { se.observer = o }
}

// WithMonitor replaces the default alert monitor.
func WithMonitor(m *Monitor) EngineOption {
	return func(se *SimulationEngine) { se.Monitor = m }
}

// WithTripRecorder replaces the default trip recorder.
func WithTripRecorder(r *TripRecorder) EngineOption {
	return func(se *SimulationEngine) { se.Trips = r }
}

// NewSimulationEngine builds an engine over store using motion.
func NewSimulationEngine(store FleetStore, motion MotionModel, opts ...EngineOption) *SimulationEngine {
	if motion == nil {
		motion = StaticMotionModel{}
	}
	se := &SimulationEngine{
		Store:   store,
		Motion:  motion,
		Monitor: NewMonitor(DefaultSpeedLimitKmh),
		Trips:   NewTripRecorder(0),
	}
	for _, opt := range opts {
		opt(se)
	}
	return se
}

// RegisterTickListener adds a callback run after every successful step.
func (se *SimulationEngine) RegisterTickListener(fn func(TickResult)) {
	se.tickListeners = append(se.tickListeners, fn)
}

// Step runs one tick at simTime.
func (se *SimulationEngine) Step(ctx context.Context, simTime time.Time) (TickResult, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "SimulationEngine/Step")
	defer span.End()

	start := time.Now()

	next, err := se.Store.AdvancePositions(simTime, se.Motion.Tick)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TickResult{}, fmt.Errorf("apply positions: %w", err)
	}

	var alerts []model.Alert
	if se.Monitor != nil {
		alerts = se.Monitor.Evaluate(simTime, next, se.Store.ListGeofences())
		if len(alerts) > 0 {
			se.Store.AddAlerts(alerts...)
		}
	}
	if se.Trips != nil {
		se.Trips.Observe(simTime, next)
	}

	res := TickResult{
		Tick:     int(se.ticks.Add(1)),
		SimTime:  simTime,
		Vehicles: next,
		Alerts:   alerts,
		Duration: time.Since(start),
	}

	span.SetAttributes(
		attribute.Int("tick", res.Tick),
		attribute.Int("vehicles", len(next)),
		attribute.Int("alerts", len(alerts)),
	)

	if se.observer != nil {
		se.observer.ObserveTick(res.Duration, CountByStatus(next))
		se.observer.ObserveAlerts(alerts)
	}
	for _, fn := range se.tickListeners {
		fn(res)
	}
	return res, nil
}

// Ticks returns how many steps have completed.
func (se *SimulationEngine) Ticks() int { return int(se.ticks.Load()) }

// CountByStatus tallies vehicles per motion status. Every known status is present.
func CountByStatus(vehicles []model.VehiclePosition) map[model.MotionStatus]int {
	counts := make(map[model.MotionStatus]int, len(model.Statuses))
	for _, s := range model.Statuses {
		counts[s] = 0
	}
	for _, v := range vehicles {
		counts[v.Status]++
	}
	return counts
}
