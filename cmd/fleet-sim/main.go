// Command fleet-sim runs the fleet tracking simulator: it loads a scenario,
// advances vehicles on a fixed tick, raises geofence and speed alerts, and
// serves the fleet over HTTP, gRPC and Prometheus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/signalsfoundry/fleet-simulator/core"
	"github.com/signalsfoundry/fleet-simulator/internal/api"
	"github.com/signalsfoundry/fleet-simulator/internal/config"
	"github.com/signalsfoundry/fleet-simulator/internal/logging"
	"github.com/signalsfoundry/fleet-simulator/internal/observability"
	"github.com/signalsfoundry/fleet-simulator/internal/scenario"
	"github.com/signalsfoundry/fleet-simulator/kb"
	"github.com/signalsfoundry/fleet-simulator/timectrl"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (defaults to config.yml or configs/config.yml when present)")
	scenarioPath := flag.String("scenario", "", "Path to a YAML scenario; overrides simulation.scenarioPath")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fleet-sim: %v\n", err)
		os.Exit(1)
	}
	if *scenarioPath != "" {
		cfg.Simulation.ScenarioPath = *scenarioPath
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, listeners{}); err != nil {
		log.Error(context.Background(), "fleet-sim exited", logging.Err(err))
		os.Exit(1)
	}
}

// listeners lets callers hand run pre-bound sockets. A nil listener is
// opened from the matching config address; an empty address disables it.
// run owns every listener it is given and closes them when startup fails.
type listeners struct {
	HTTP    net.Listener
	GRPC    net.Listener
	Metrics net.Listener
}

// open binds every unset listener from cfg. On failure all listeners held so
// far, including pre-bound ones, are closed.
func (l listeners) open(cfg config.ServerConfig) (listeners, error) {
	var err error
	if l.HTTP, err = listenIfUnset(l.HTTP, cfg.HTTPAddr); err != nil {
		l.close()
		return listeners{}, fmt.Errorf("listen http: %w", err)
	}
	if l.GRPC, err = listenIfUnset(l.GRPC, cfg.GRPCAddr); err != nil {
		l.close()
		return listeners{}, fmt.Errorf("listen grpc: %w", err)
	}
	if l.Metrics, err = listenIfUnset(l.Metrics, cfg.MetricsAddr); err != nil {
		l.close()
		return listeners{}, fmt.Errorf("listen metrics: %w", err)
	}
	return l, nil
}

func (l listeners) close() {
	for _, lis := range []net.Listener{l.HTTP, l.GRPC, l.Metrics} {
		if lis != nil {
			_ = lis.Close()
		}
	}
}

// run wires the simulator and blocks until ctx is cancelled.
func run(ctx context.Context, cfg config.AppConfig, log logging.Logger, lis listeners) error {
	if log == nil {
		log = logging.Noop()
	}
	started := false
	defer func() {
		if !started {
			lis.close()
		}
	}()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, shutdownTimeout, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := observability.NewSimulatorCollector(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	store := kb.NewKnowledgeBase(
		kb.WithMetricsRecorder(collector),
		kb.WithMaxAlerts(cfg.Alerts.MaxAlerts),
	)
	unsubscribe := store.Subscribe(func(ev kb.Event) {
		if ev.Type != kb.EventAlertRaised {
			return
		}
		log.Info(context.Background(), "alert raised",
			logging.String("alert_id", ev.Alert.ID),
			logging.String("category", string(ev.Alert.Category)),
			logging.String("severity", string(ev.Alert.Severity)),
			logging.String("vehicle_id", ev.Alert.VehicleID),
			logging.String("message", ev.Alert.Message),
			logging.Any("location", ev.Alert.Location),
		)
	})
	defer unsubscribe()

	sc, err := scenario.LoadFile(cfg.Simulation.ScenarioPath)
	if err != nil {
		return err
	}
	summary, err := sc.Apply(ctx, store)
	if err != nil {
		return fmt.Errorf("apply scenario: %w", err)
	}
	log.Info(ctx, "scenario loaded",
		logging.String("path", cfg.Simulation.ScenarioPath),
		logging.Int("vehicles", len(summary.VehicleIDs)),
		logging.Int("geofences", len(summary.GeofenceIDs)),
	)

	trips := core.NewTripRecorder(cfg.Alerts.MaxTripsPerVehicle)
	engine := core.NewSimulationEngine(store,
		core.NewMotionModel(cfg.Simulation.Motion, cfg.Simulation.Seed),
		core.WithTickObserver(collector),
		core.WithMonitor(core.NewMonitor(cfg.Alerts.SpeedLimitKmh)),
		core.WithTripRecorder(trips),
	)
	engine.RegisterTickListener(func(res core.TickResult) {
		log.Debug(ctx, "tick",
			logging.Int("tick", res.Tick),
			logging.Int("vehicles", len(res.Vehicles)),
			logging.Int("alerts", len(res.Alerts)),
			logging.Duration("took", res.Duration),
		)
	})

	grpcSrv := api.NewGRPCServer(store, collector, log)
	handler := api.NewHandler(store,
		api.WithTrips(trips),
		api.WithMetrics(collector),
		api.WithTickCounter(engine.Ticks),
		api.WithLogger(log),
	)

	if lis, err = lis.open(cfg.Server); err != nil {
		return err
	}

	started = true
	var servers []*http.Server
	if lis.HTTP != nil {
		servers = append(servers, serveHTTP(ctx, "api", lis.HTTP, handler, log))
	}
	if lis.Metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		servers = append(servers, serveHTTP(ctx, "metrics", lis.Metrics, mux, log))
	}
	if lis.GRPC != nil {
		log.Info(ctx, "starting gRPC server", logging.String("addr", lis.GRPC.Addr().String()))
		go func() {
			if err := grpcSrv.Server.Serve(lis.GRPC); err != nil {
				log.Error(ctx, "gRPC server exited", logging.Err(err))
			}
		}()
	}

	mode := timectrl.RealTime
	if cfg.Simulation.Accelerated {
		mode = timectrl.Accelerated
	}
	clock := timectrl.NewTimeController(time.Now().UTC(), cfg.Simulation.TickInterval, mode)

	var ready sync.Once
	clock.AddListener(func(ctx context.Context, simTime time.Time) {
		if _, err := engine.Step(ctx, simTime); err != nil {
			log.Error(ctx, "simulation tick failed", logging.Err(err))
			return
		}
		ready.Do(grpcSrv.MarkServing)
	})

	log.Info(ctx, "simulation started",
		logging.String("mode", mode.String()),
		logging.Bool("accelerated", cfg.Simulation.Accelerated),
		logging.Duration("tick", clock.Tick),
		logging.Duration("duration", cfg.Simulation.Duration),
	)
	if err := clock.Run(ctx, cfg.Simulation.Duration); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if ctx.Err() == nil {
		log.Info(ctx, "simulation finished; serving final state",
			logging.Int("ticks", engine.Ticks()),
			logging.String("sim_time", clock.Now().Format(time.RFC3339)),
		)
		<-ctx.Done()
	}

	log.Info(context.Background(), "shutting down")
	grpcSrv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn(shutdownCtx, "http shutdown", logging.Err(err))
		}
	}
	return nil
}

func listenIfUnset(lis net.Listener, addr string) (net.Listener, error) {
	if lis != nil || addr == "" {
		return lis, nil
	}
	return net.Listen("tcp", addr)
}

func serveHTTP(ctx context.Context, name string, lis net.Listener, h http.Handler, log logging.Logger) *http.Server {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info(ctx, "serving "+name, logging.String("addr", lis.Addr().String()))
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), name+" server exited", logging.Err(err))
		}
	}()
	return srv
}
