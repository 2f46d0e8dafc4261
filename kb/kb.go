package kb

import (
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/signalsfoundry/fleet-simulator/model"
)

var (
	ErrVehicleExists    = errors.New("vehicle already exists")
	ErrVehicleNotFound  = errors.New("vehicle not found")
	ErrInvalidVehicle   = errors.New("invalid vehicle")
	ErrGeofenceExists   = errors.New("geofence already exists")
	ErrGeofenceNotFound = errors.New("geofence not found")
	ErrInvalidGeofence  = errors.New("invalid geofence")
	ErrAlertNotFound    = errors.New("alert not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventVehicleAdded EventType = iota
	EventVehiclesUpdated
	EventGeofenceCreated
	EventGeofenceUpdated
	EventGeofenceDeleted
	EventAlertRaised
)

// Event is emitted to subscribers when something interesting happens.
// Only the fields relevant to Type are set.
type Event struct {
	Type      EventType
	Vehicle   model.Vehicle
	Positions []model.VehiclePosition
	Geofence  model.Geofence
	Alert     model.Alert
}

// MetricsRecorder receives store-level gauges. observability.SimulatorCollector implements it.
type MetricsRecorder interface {
	SetFleetCounts(moving, stopped, idle, activeGeofences int)
	ObserveRasterization(err error)
}

// DefaultMaxAlerts bounds the alert log.
const DefaultMaxAlerts = 500

// KnowledgeBase is an in-memory, thread-safe store for vehicles, geofences and alerts.
type KnowledgeBase struct {
	mu sync.RWMutex

	vehicles     map[string]*model.Vehicle
	vehicleOrder []string

	geofences     map[string]*geofenceEntry
	geofenceOrder []string

	alerts    []model.Alert
	maxAlerts int

	subs    map[int]func(Event)
	nextSub int

	now      func() time.Time
	metrics  MetricsRecorder
	validate *validator.Validate
}

// Option customises a KnowledgeBase.
type Option func(*KnowledgeBase)

// WithMetricsRecorder reports fleet counts after every mutation.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(kb *KnowledgeBase) { kb.metrics = rec }
}

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(kb *KnowledgeBase) { kb.now = now }
}

// WithMaxAlerts caps the alert log; the oldest alerts are dropped first.
func WithMaxAlerts(n int) Option {
	return func(kb *KnowledgeBase) { kb.maxAlerts = n }
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase(opts ...Option) *KnowledgeBase {
	kb := &KnowledgeBase{
		vehicles:  make(map[string]*model.Vehicle),
		geofences: make(map[string]*geofenceEntry),
		maxAlerts: DefaultMaxAlerts,
		subs:      make(map[int]func(Event)),
		now:       time.Now,
		validate:  validator.New(),
	}
	for _, opt := range opts {
		opt(kb)
	}
	return kb
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
// Callbacks run synchronously after the write lock is released.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextSub
	kb.nextSub++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

// subscribersLocked copies the subscriber list; callers hold kb.mu.
func (kb *KnowledgeBase) subscribersLocked() []func(Event) {
	subs := make([]func(Event), 0, len(kb.subs))
	for _, fn := range kb.subs {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(Event), events ...Event) {
	for _, ev := range events {
		for _, sub := range subs {
			sub(ev)
		}
	}
}

// reportLocked pushes gauges to the metrics recorder; callers hold kb.mu.
func (kb *KnowledgeBase) reportLocked() {
	if kb.metrics == nil {
		return
	}
	var moving, stopped, idle, active int
	for _, v := range kb.vehicles {
		switch v.Status {
		case model.StatusMoving:
			moving++
		case model.StatusStopped:
			stopped++
		case model.StatusIdle:
			idle++
		}
	}
	for _, g := range kb.geofences {
		if g.fence.Active {
			active++
		}
	}
	kb.metrics.SetFleetCounts(moving, stopped, idle, active)
}
