package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/signalsfoundry/fleet-simulator/core"
	"github.com/signalsfoundry/fleet-simulator/internal/feed"
	"github.com/signalsfoundry/fleet-simulator/internal/logging"
	"github.com/signalsfoundry/fleet-simulator/internal/observability"
	"github.com/signalsfoundry/fleet-simulator/kb"
	"github.com/signalsfoundry/fleet-simulator/model"
)

// TripSource is the read side of core.TripRecorder.
type TripSource interface {
	Trips(vehicleID string) []model.Trip
	VehicleIDs() []string
}

// Handler serves the fleet REST API and the GTFS-RT feed.
type Handler struct {
	store   *kb.KnowledgeBase
	trips   TripSource
	log     logging.Logger
	metrics *observability.SimulatorCollector
	ticks   func() int
	now     func() time.Time

	mux *http.ServeMux
}

// HandlerOption customises a Handler.
type HandlerOption func(*Handler)

func WithTrips(t TripSource) HandlerOption { return func(h *Handler) { h.trips = t } }

func WithMetrics(c *observability.SimulatorCollector) HandlerOption {
	return func(h *Handler) { h.metrics = c }
}

// WithTickCounter reports engine progress on /api/health.
func WithTickCounter(fn func() int) HandlerOption { return func(h *Handler) { h.ticks = fn } }

func WithLogger(l logging.Logger) HandlerOption { return func(h *Handler) { h.log = l } }

// NewHandler wires every route onto a fresh mux.
func NewHandler(store *kb.KnowledgeBase, opts ...HandlerOption) *Handler {
	h := &Handler{
		store: store,
		log:   logging.Noop(),
		ticks: func() int { return 0 },
		now:   time.Now,
		mux:   http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.route("GET /api/health", h.health)
	h.route("GET /api/vehicles", h.listVehicles)
	h.route("GET /api/vehicles/{id}", h.getVehicle)
	h.route("PUT /api/vehicles/{id}/position", h.putVehiclePosition)
	h.route("GET /api/geofences", h.listGeofences)
	h.route("POST /api/geofences", h.createGeofence)
	h.route("GET /api/geofences/{id}", h.getGeofence)
	h.route("PATCH /api/geofences/{id}", h.updateGeofence)
	h.route("DELETE /api/geofences/{id}", h.deleteGeofence)
	h.route("POST /api/geofences/{id}/toggle", h.toggleGeofence)
	h.route("GET /api/alerts", h.listAlerts)
	h.route("POST /api/alerts/{id}/read", h.markAlertRead)
	h.route("POST /api/alerts/{id}/resolve", h.resolveAlert)
	h.route("DELETE /api/alerts/{id}", h.dismissAlert)
	h.route("GET /api/trips", h.listTrips)
	h.route("GET /gtfsrt/vehicle-positions", h.vehiclePositions)
	return h
}

func (h *Handler) route(pattern string, fn http.HandlerFunc) {
	h.mux.Handle(pattern, h.metrics.InstrumentHandler(pattern, fn))
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	RequestIDMiddleware(h.log, h.mux).ServeHTTP(w, r)
}

type healthResponse struct {
	Status       string                     `json:"status"`
	Ticks        int                        `json:"ticks"`
	Vehicles     int                        `json:"vehicles"`
	ByStatus     map[model.MotionStatus]int `json:"byStatus"`
	Geofences    int                        `json:"geofences"`
	UnreadAlerts int                        `json:"unreadAlerts"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	positions := h.store.Positions()
	resp := healthResponse{
		Status:       "ok",
		Ticks:        h.ticks(),
		Vehicles:     len(positions),
		ByStatus:     core.CountByStatus(positions),
		Geofences:    len(h.store.ListGeofences()),
		UnreadAlerts: h.store.UnreadCount(),
	}
	if resp.Ticks == 0 {
		resp.Status = "starting"
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

func (h *Handler) listVehicles(w http.ResponseWriter, r *http.Request) {
	var f kb.VehicleFilter
	if raw := r.URL.Query().Get("status"); raw != "" && raw != "all" {
		st, err := model.ParseMotionStatus(raw)
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: %v", ErrBadRequest, err))
			return
		}
		f.Status = st
	}
	f.Query = r.URL.Query().Get("q")
	vehicles := h.store.ListVehiclesMatching(f)

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		h.writeJSON(w, r, http.StatusOK, vehicles)
	case "geojson":
		w.Header().Set("Content-Type", "application/geo+json")
		h.writeJSON(w, r, http.StatusOK, feed.VehicleCollection(vehicles))
	default:
		h.writeError(w, r, fmt.Errorf("%w: unknown format %q", ErrBadRequest, format))
	}
}

func (h *Handler) getVehicle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	v, ok := h.store.GetVehicle(id)
	if !ok {
		h.writeError(w, r, fmt.Errorf("%w: %q", kb.ErrVehicleNotFound, id))
		return
	}
	h.writeJSON(w, r, http.StatusOK, v)
}

func (h *Handler) putVehiclePosition(w http.ResponseWriter, r *http.Request) {
	var p model.VehiclePosition
	if err := decodeJSON(r, &p); err != nil {
		h.writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if p.ID != "" && p.ID != id {
		h.writeError(w, r, fmt.Errorf("%w: body id %q does not match path id %q", ErrBadRequest, p.ID, id))
		return
	}
	p.ID = id
	if err := h.store.UpdateVehiclePosition(p); err != nil {
		h.writeError(w, r, err)
		return
	}
	v, _ := h.store.GetVehicle(id)
	h.writeJSON(w, r, http.StatusOK, v)
}

// geofenceView is a geofence plus its cached boundary ring.
type geofenceView struct {
	model.Geofence
	Polygon []model.LatLng `json:"polygon"`
}

func (h *Handler) listGeofences(w http.ResponseWriter, r *http.Request) {
	includeInactive, err := parseBool(r, "includeInactive")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	fences := h.store.ListGeofences()
	rings := make([]feed.GeofenceRing, 0, len(fences))
	for _, g := range fences {
		if !g.Active && !includeInactive {
			continue
		}
		ring, err := h.store.GeofencePolygon(g.ID)
		if err != nil {
			// Deleted between the two reads.
			continue
		}
		rings = append(rings, feed.GeofenceRing{Geofence: g, Ring: ring})
	}
	w.Header().Set("Content-Type", "application/geo+json")
	h.writeJSON(w, r, http.StatusOK, feed.GeofenceCollection(rings))
}

func (h *Handler) createGeofence(w http.ResponseWriter, r *http.Request) {
	var g model.Geofence
	if err := decodeJSON(r, &g); err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.store.CreateGeofence(r.Context(), g)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	logging.FromContext(r.Context(), h.log).Info(r.Context(), "geofence created",
		logging.String("geofence_id", created.ID),
		logging.String("name", created.Name),
	)
	h.writeGeofence(w, r, http.StatusCreated, created)
}

func (h *Handler) getGeofence(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	g, ok := h.store.GetGeofence(id)
	if !ok {
		h.writeError(w, r, fmt.Errorf("%w: %q", kb.ErrGeofenceNotFound, id))
		return
	}
	h.writeGeofence(w, r, http.StatusOK, g)
}

func (h *Handler) updateGeofence(w http.ResponseWriter, r *http.Request) {
	var u model.GeofenceUpdate
	if err := decodeJSON(r, &u); err != nil {
		h.writeError(w, r, err)
		return
	}
	g, err := h.store.UpdateGeofence(r.Context(), r.PathValue("id"), u)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeGeofence(w, r, http.StatusOK, g)
}

func (h *Handler) deleteGeofence(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteGeofence(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleGeofence(w http.ResponseWriter, r *http.Request) {
	g, err := h.store.ToggleGeofence(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeGeofence(w, r, http.StatusOK, g)
}

func (h *Handler) writeGeofence(w http.ResponseWriter, r *http.Request, code int, g model.Geofence) {
	ring, err := h.store.GeofencePolygon(g.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, code, geofenceView{Geofence: g, Polygon: ring})
}

type alertsResponse struct {
	Alerts []model.Alert `json:"alerts"`
	Unread int           `json:"unread"`
}

func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	includeResolved, err := parseBool(r, "resolved")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, alertsResponse{
		Alerts: h.store.ListAlerts(includeResolved),
		Unread: h.store.UnreadCount(),
	})
}

func (h *Handler) markAlertRead(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.MarkAlertRead(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, a)
}

func (h *Handler) resolveAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.ResolveAlert(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, a)
}

func (h *Handler) dismissAlert(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DismissAlert(r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTrips(w http.ResponseWriter, r *http.Request) {
	trips := []model.Trip{}
	if h.trips == nil {
		h.writeJSON(w, r, http.StatusOK, trips)
		return
	}
	if id := r.URL.Query().Get("vehicle"); id != "" {
		if _, ok := h.store.GetVehicle(id); !ok {
			h.writeError(w, r, fmt.Errorf("%w: %q", kb.ErrVehicleNotFound, id))
			return
		}
		trips = append(trips, h.trips.Trips(id)...)
	} else {
		for _, id := range h.trips.VehicleIDs() {
			trips = append(trips, h.trips.Trips(id)...)
		}
	}
	h.writeJSON(w, r, http.StatusOK, trips)
}

func (h *Handler) vehiclePositions(w http.ResponseWriter, r *http.Request) {
	asJSON := r.URL.Query().Get("format") == "json"
	msg := feed.VehiclePositionsFeed(h.store.ListVehicles(), h.now())
	b, err := feed.MarshalFeed(msg, asJSON)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if asJSON {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "application/x-protobuf")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode body: %v", ErrBadRequest, err)
	}
	return nil
}

func parseBool(r *http.Request, key string) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q", ErrBadRequest, key, raw)
	}
	return v, nil
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	log := logging.FromContext(r.Context(), h.log)
	if code >= http.StatusInternalServerError {
		log.Error(r.Context(), "request failed", logging.Err(err))
	} else {
		log.Debug(r.Context(), "request rejected", logging.Int("status", code), logging.Err(err))
	}
	h.writeJSON(w, r, code, errorResponse{
		Error:     err.Error(),
		RequestID: logging.RequestIDFromContext(r.Context()),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		logging.FromContext(r.Context(), h.log).Warn(r.Context(), "write response", logging.Err(err))
	}
}
