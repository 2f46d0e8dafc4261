package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/fleet-simulator/model"
)

// SimulatorCollector bundles the Prometheus metrics of the fleet simulator:
// engine ticks, fleet gauges, alerts and the API surfaces.
type SimulatorCollector struct {
	gatherer prometheus.Gatherer

	Ticks          prometheus.Counter
	TickDurations  prometheus.Histogram
	Vehicles       *prometheus.GaugeVec
	ActiveFences   prometheus.Gauge
	Alerts         *prometheus.CounterVec
	Rasterizations *prometheus.CounterVec

	RPCRequests   *prometheus.CounterVec
	RPCDurations  *prometheus.HistogramVec
	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

// NewSimulatorCollector registers the simulator metrics against reg,
// defaulting to the global Prometheus registry when nil.
func NewSimulatorCollector(reg prometheus.Registerer) (*SimulatorCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &SimulatorCollector{gatherer: gatherer}

	var err error
	if c.Ticks, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_sim_ticks_total",
		Help: "Number of completed simulation ticks.",
	}), "fleet_sim_ticks_total"); err != nil {
		return nil, err
	}
	if c.TickDurations, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleet_sim_tick_duration_seconds",
		Help:    "Wall-clock time spent in one simulation tick.",
		Buckets: latencyBuckets,
	}), "fleet_sim_tick_duration_seconds"); err != nil {
		return nil, err
	}
	if c.Vehicles, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleet_vehicles",
		Help: "Current number of vehicles by motion status.",
	}, []string{"status"}), "fleet_vehicles"); err != nil {
		return nil, err
	}
	if c.ActiveFences, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_geofences_active",
		Help: "Current number of active geofences.",
	}), "fleet_geofences_active"); err != nil {
		return nil, err
	}
	if c.Alerts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_alerts_total",
		Help: "Alerts raised, labeled by category and severity.",
	}, []string{"category", "severity"}), "fleet_alerts_total"); err != nil {
		return nil, err
	}
	if c.Rasterizations, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_geofence_rasterizations_total",
		Help: "Circle geofence rasterizations, labeled by result (ok or error).",
	}, []string{"result"}), "fleet_geofence_rasterizations_total"); err != nil {
		return nil, err
	}
	if c.RPCRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_grpc_requests_total",
		Help: "Handled gRPC requests, labeled by service, method and status code.",
	}, []string{"service", "method", "code"}), "fleet_grpc_requests_total"); err != nil {
		return nil, err
	}
	if c.RPCDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleet_grpc_request_duration_seconds",
		Help:    "gRPC request latency in seconds.",
		Buckets: latencyBuckets,
	}, []string{"service", "method"}), "fleet_grpc_request_duration_seconds"); err != nil {
		return nil, err
	}
	if c.HTTPRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_http_requests_total",
		Help: "Handled HTTP requests, labeled by route, method and status code.",
	}, []string{"route", "method", "code"}), "fleet_http_requests_total"); err != nil {
		return nil, err
	}
	if c.HTTPDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleet_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: latencyBuckets,
	}, []string{"route", "method"}), "fleet_http_request_duration_seconds"); err != nil {
		return nil, err
	}

	for _, s := range model.Statuses {
		c.Vehicles.WithLabelValues(string(s)).Set(0)
	}
	return c, nil
}

// ObserveTick records a completed engine tick.
func (c *SimulatorCollector) ObserveTick(d time.Duration, counts map[model.MotionStatus]int) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	c.TickDurations.Observe(d.Seconds())
	for status, n := range counts {
		c.Vehicles.WithLabelValues(string(status)).Set(float64(n))
	}
}

// ObserveAlerts counts raised alerts.
func (c *SimulatorCollector) ObserveAlerts(alerts []model.Alert) {
	if c == nil {
		return
	}
	for _, a := range alerts {
		c.Alerts.WithLabelValues(string(a.Category), string(a.Severity)).Inc()
	}
}

// SetFleetCounts lets the knowledge base drive the fleet gauges from its mutators.
func (c *SimulatorCollector) SetFleetCounts(moving, stopped, idle, activeGeofences int) {
	if c == nil {
		return
	}
	c.Vehicles.WithLabelValues(string(model.StatusMoving)).Set(float64(moving))
	c.Vehicles.WithLabelValues(string(model.StatusStopped)).Set(float64(stopped))
	c.Vehicles.WithLabelValues(string(model.StatusIdle)).Set(float64(idle))
	c.ActiveFences.Set(float64(activeGeofences))
}

// ObserveRasterization counts one circle rasterization attempt.
func (c *SimulatorCollector) ObserveRasterization(err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Rasterizations.WithLabelValues(result).Inc()
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *SimulatorCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// InstrumentHandler wraps next, recording requests under the given route label.
// Routes should be patterns, not raw paths, to keep label cardinality bounded.
func (c *SimulatorCollector) InstrumentHandler(route string, next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		c.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Inc()
		c.HTTPDurations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimulatorCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// SplitMethod parses a fully-qualified gRPC method name into service and
// method, returning "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	parts := strings.Split(strings.TrimPrefix(fullMethod, "/"), "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}
