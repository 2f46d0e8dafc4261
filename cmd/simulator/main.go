// Command simulator runs the fleet headless and prints every tick to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/signalsfoundry/fleet-simulator/core"
	"github.com/signalsfoundry/fleet-simulator/internal/scenario"
	"github.com/signalsfoundry/fleet-simulator/kb"
	"github.com/signalsfoundry/fleet-simulator/timectrl"
)

type options struct {
	Duration      time.Duration
	Tick          time.Duration
	Accelerated   bool
	Seed          uint64
	Motion        string
	ScenarioPath  string
	SpeedLimitKmh float64
	Start         time.Time
}

func main() {
	opts := options{Start: time.Now().UTC()}
	flag.DurationVar(&opts.Duration, "duration", 60*time.Second, "total simulation duration")
	flag.DurationVar(&opts.Tick, "tick", timectrl.DefaultTick, "tick interval")
	flag.BoolVar(&opts.Accelerated, "accelerated", true, "run in accelerated mode (vs real-time)")
	flag.Uint64Var(&opts.Seed, "seed", 0, "random walk seed; 0 picks one from the clock")
	flag.StringVar(&opts.Motion, "motion", "random", "motion model: random or static")
	flag.StringVar(&opts.ScenarioPath, "scenario", "", "YAML scenario file (defaults to the built-in Ljubljana fleet)")
	flag.Float64Var(&opts.SpeedLimitKmh, "speed-limit", 120, "speed alert threshold in km/h")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := simulate(ctx, os.Stdout, opts); err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}
}

func simulate(ctx context.Context, w io.Writer, opts options) error {
	store := kb.NewKnowledgeBase()
	sc, err := scenario.LoadFile(opts.ScenarioPath)
	if err != nil {
		return err
	}
	summary, err := sc.Apply(ctx, store)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Loaded scenario: %d vehicles, %d geofences\n", len(summary.VehicleIDs), len(summary.GeofenceIDs))

	trips := core.NewTripRecorder(0)
	engine := core.NewSimulationEngine(store,
		core.NewMotionModel(opts.Motion, opts.Seed),
		core.WithMonitor(core.NewMonitor(opts.SpeedLimitKmh)),
		core.WithTripRecorder(trips),
	)

	mode := timectrl.RealTime
	if opts.Accelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(opts.Start, opts.Tick, mode)

	var stepErr error
	tc.AddListener(func(ctx context.Context, simTime time.Time) {
		if stepErr != nil {
			return
		}
		res, err := engine.Step(ctx, simTime)
		if err != nil {
			stepErr = err
			return
		}
		fmt.Fprintf(w, "[%s] tick %d\n", simTime.Format(time.RFC3339), res.Tick)
		for _, v := range res.Vehicles {
			fmt.Fprintf(w, "  %-4s %-8s (%.5f, %.5f) heading=%5.1f speed=%5.1f km/h\n",
				v.ID, v.Status, v.Lat, v.Lng, v.Heading, v.Speed)
		}
		for _, a := range res.Alerts {
			fmt.Fprintf(w, "  ! %-8s %s: %s\n", a.Severity, a.Title, a.Message)
		}
	})

	fmt.Fprintf(w, "Starting simulation: duration=%s, tick=%s, mode=%v\n", opts.Duration, tc.Tick, mode)
	if err := tc.Run(ctx, opts.Duration); err != nil {
		return err
	}
	if stepErr != nil {
		return stepErr
	}

	for _, id := range trips.VehicleIDs() {
		for _, t := range trips.Trips(id) {
			fmt.Fprintf(w, "Trip %s vehicle=%s status=%s points=%d distance=%.3f km max=%.1f km/h\n",
				t.ID, t.VehicleID, t.Status, len(t.Points), t.Stats.TotalDistanceKm, t.Stats.MaxSpeed)
		}
	}
	fmt.Fprintf(w, "Simulation complete: %d ticks, %d unread alerts.\n", engine.Ticks(), store.UnreadCount())
	return nil
}
