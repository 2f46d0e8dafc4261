package core

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/signalsfoundry/fleet-simulator/model"
)

// Jitter ranges for one random-walk step. Each delta is drawn as
// (rand() - 0.5) * range, so the maximum step is half the range.
const (
	PositionJitterDeg = 0.002
	HeadingJitterDeg  = 20.0
	SpeedJitterKmh    = 10.0
)

// RandomSource yields uniform draws in [0, 1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// MotionModel advances a fleet snapshot by one tick.
type MotionModel interface {
	Tick(vehicles []model.VehiclePosition) []model.VehiclePosition
}

// StaticMotionModel leaves every vehicle where it is.
type StaticMotionModel struct{}

// Tick returns a copy of vehicles.
func (StaticMotionModel) Tick(vehicles []model.VehiclePosition) []model.VehiclePosition {
	out := make([]model.VehiclePosition, len(vehicles))
	copy(out, vehicles)
	return out
}

// RandomWalkMotionModel nudges moving vehicles by small bounded random deltas.
// It only animates a demo fleet; it is not a kinematic model and knows nothing
// about roads, acceleration limits or elapsed time.
type RandomWalkMotionModel struct {
	mu  sync.Mutex
	rnd RandomSource
}

// NewRandomWalkMotionModel builds a model drawing from rnd. A nil rnd falls
// back to a time-seeded PCG source.
func NewRandomWalkMotionModel(rnd RandomSource) *RandomWalkMotionModel {
	if rnd == nil {
		seed := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &RandomWalkMotionModel{rnd: rnd}
}

// NewSeededRandomWalk builds a reproducible model. Seed 0 means time-seeded.
func NewSeededRandomWalk(seed uint64) *RandomWalkMotionModel {
	if seed == 0 {
		return NewRandomWalkMotionModel(nil)
	}
	return NewRandomWalkMotionModel(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Tick returns a new snapshot in which every moving vehicle has taken one
// random step. Other vehicles are copied through untouched and the input
// slice is never modified.
func (m *RandomWalkMotionModel) Tick(vehicles []model.VehiclePosition) []model.VehiclePosition {
	out := make([]model.VehiclePosition, len(vehicles))
	copy(out, vehicles)

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range out {
		v := &out[i]
		if v.Status != model.StatusMoving {
			continue
		}
		v.Lat += m.delta(PositionJitterDeg)
		v.Lng += m.delta(PositionJitterDeg)
		v.Heading = NormalizeHeading(v.Heading + m.delta(HeadingJitterDeg) + 360)
		v.Speed = math.Max(0, v.Speed+m.delta(SpeedJitterKmh))
	}
	return out
}

func (m *RandomWalkMotionModel) delta(span float64) float64 {
	return (m.rnd.Float64() - 0.5) * span
}

// NormalizeHeading wraps deg into [0, 360).
func NormalizeHeading(deg float64) float64 {
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	// -tiny + 360 rounds to 360 in float64.
	if h >= 360 {
		h = 0
	}
	return h
}

// NewMotionModel picks a model by name: "static" or anything else for the
// random walk.
func NewMotionModel(kind string, seed uint64) MotionModel {
	if kind == "static" {
		return StaticMotionModel{}
	}
	return NewSeededRandomWalk(seed)
}
