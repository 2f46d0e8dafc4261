package kb

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/fleet-simulator/core"
	"github.com/signalsfoundry/fleet-simulator/model"
)

const tracerName = "github.com/signalsfoundry/fleet-simulator/kb"

type geofenceEntry struct {
	fence model.Geofence
	ring  []model.LatLng
}

// CreateGeofence validates g, assigns an ID when empty, derives its ring and
// stores it. The stored copy is returned.
func (kb *KnowledgeBase) CreateGeofence(ctx context.Context, g model.Geofence) (model.Geofence, error) {
	_, span := startSpan(ctx, "kb/CreateGeofence", g.ID)
	defer span.End()

	if strings.TrimSpace(g.ID) == "" {
		g.ID = uuid.NewString()
	}
	if g.Shape == "" {
		g.Shape = model.ShapeCircle
	}
	if err := kb.validateGeofence(g); err != nil {
		span.RecordError(err)
		return model.Geofence{}, err
	}
	ring, err := kb.buildRing(g)
	if err != nil {
		span.RecordError(err)
		return model.Geofence{}, err
	}

	kb.mu.Lock()
	if _, exists := kb.geofences[g.ID]; exists {
		kb.mu.Unlock()
		return model.Geofence{}, fmt.Errorf("%w: %q", ErrGeofenceExists, g.ID)
	}
	now := kb.now()
	g.CreatedAt = now
	g.UpdatedAt = now
	g.Vertices = cloneRing(g.Vertices)
	kb.geofences[g.ID] = &geofenceEntry{fence: g, ring: ring}
	kb.geofenceOrder = append(kb.geofenceOrder, g.ID)
	kb.reportLocked()
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventGeofenceCreated, Geofence: g})
	return g, nil
}

// UpdateGeofence applies a partial update. The patch is applied to the
// stored fence under the write lock, so concurrent updates of different fields
// all survive. The ring is rebuilt only when the boundary changed.
func (kb *KnowledgeBase) UpdateGeofence(ctx context.Context, id string, u model.GeofenceUpdate) (model.Geofence, error) {
	_, span := startSpan(ctx, "kb/UpdateGeofence", id)
	defer span.End()

	kb.mu.Lock()
	entry, ok := kb.geofences[id]
	if !ok {
		kb.mu.Unlock()
		return model.Geofence{}, fmt.Errorf("%w: %q", ErrGeofenceNotFound, id)
	}
	next := applyUpdate(entry.fence, u)
	if err := kb.validateGeofence(next); err != nil {
		kb.mu.Unlock()
		span.RecordError(err)
		return model.Geofence{}, err
	}
	ring := entry.ring
	if u.ChangesGeometry() {
		r, err := kb.buildRing(next)
		if err != nil {
			kb.mu.Unlock()
			span.RecordError(err)
			return model.Geofence{}, err
		}
		ring = r
	}
	next.UpdatedAt = kb.now()
	entry.fence = next
	entry.ring = ring
	out := next
	out.Vertices = cloneRing(next.Vertices)
	kb.reportLocked()
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventGeofenceUpdated, Geofence: out})
	return out, nil
}

// ToggleGeofence flips the Active flag atomically.
func (kb *KnowledgeBase) ToggleGeofence(ctx context.Context, id string) (model.Geofence, error) {
	_, span := startSpan(ctx, "kb/ToggleGeofence", id)
	defer span.End()

	kb.mu.Lock()
	entry, ok := kb.geofences[id]
	if !ok {
		kb.mu.Unlock()
		return model.Geofence{}, fmt.Errorf("%w: %q", ErrGeofenceNotFound, id)
	}
	entry.fence.Active = !entry.fence.Active
	entry.fence.UpdatedAt = kb.now()
	g := entry.fence
	g.Vertices = cloneRing(g.Vertices)
	kb.reportLocked()
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventGeofenceUpdated, Geofence: g})
	return g, nil
}

// DeleteGeofence removes a geofence and its cached ring.
func (kb *KnowledgeBase) DeleteGeofence(ctx context.Context, id string) error {
	_, span := startSpan(ctx, "kb/DeleteGeofence", id)
	defer span.End()

	kb.mu.Lock()
	entry, ok := kb.geofences[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrGeofenceNotFound, id)
	}
	delete(kb.geofences, id)
	for i, gid := range kb.geofenceOrder {
		if gid == id {
			kb.geofenceOrder = append(kb.geofenceOrder[:i], kb.geofenceOrder[i+1:]...)
			break
		}
	}
	kb.reportLocked()
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventGeofenceDeleted, Geofence: entry.fence})
	return nil
}

// GetGeofence returns a copy of the geofence with the given ID.
func (kb *KnowledgeBase) GetGeofence(id string) (model.Geofence, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	entry, ok := kb.geofences[id]
	if !ok {
		return model.Geofence{}, false
	}
	g := entry.fence
	g.Vertices = cloneRing(g.Vertices)
	return g, true
}

// ListGeofences returns all geofences in creation order.
func (kb *KnowledgeBase) ListGeofences() []model.Geofence {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.Geofence, 0, len(kb.geofenceOrder))
	for _, id := range kb.geofenceOrder {
		g := kb.geofences[id].fence
		g.Vertices = cloneRing(g.Vertices)
		res = append(res, g)
	}
	return res
}

// GeofencePolygon returns a copy of the cached closed ring for a geofence.
func (kb *KnowledgeBase) GeofencePolygon(id string) ([]model.LatLng, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	entry, ok := kb.geofences[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGeofenceNotFound, id)
	}
	return cloneRing(entry.ring), nil
}

func (kb *KnowledgeBase) validateGeofence(g model.Geofence) error {
	if err := kb.validate.Struct(g); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGeofence, err)
	}
	return nil
}

// buildRing derives the closed ring for g.
func (kb *KnowledgeBase) buildRing(g model.Geofence) ([]model.LatLng, error) {
	switch g.Shape {
	case model.ShapeCircle:
		ring, err := core.RasterizeCircle(g.Center, g.RadiusMeters, model.GeofencePointCount)
		if kb.metrics != nil {
			kb.metrics.ObserveRasterization(err)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidGeofence, err)
		}
		return ring, nil
	case model.ShapePolygon:
		if len(g.Vertices) < 3 {
			return nil, fmt.Errorf("%w: polygon needs at least 3 vertices, got %d", ErrInvalidGeofence, len(g.Vertices))
		}
		ring := cloneRing(g.Vertices)
		if ring[0] != ring[len(ring)-1] {
			ring = append(ring, ring[0])
		}
		return ring, nil
	default:
		return nil, fmt.Errorf("%w: unknown shape %q", ErrInvalidGeofence, g.Shape)
	}
}

func applyUpdate(g model.Geofence, u model.GeofenceUpdate) model.Geofence {
	if u.Name != nil {
		g.Name = *u.Name
	}
	if u.Description != nil {
		g.Description = *u.Description
	}
	if u.Center != nil {
		g.Center = *u.Center
	}
	if u.RadiusMeters != nil {
		g.RadiusMeters = *u.RadiusMeters
	}
	if u.Vertices != nil {
		g.Vertices = cloneRing(*u.Vertices)
	}
	if u.Color != nil {
		g.Color = *u.Color
	}
	if u.Active != nil {
		g.Active = *u.Active
	}
	if u.AlertOnEnter != nil {
		g.AlertOnEnter = *u.AlertOnEnter
	}
	if u.AlertOnExit != nil {
		g.AlertOnExit = *u.AlertOnExit
	}
	return g
}

func cloneRing(in []model.LatLng) []model.LatLng {
	if in == nil {
		return nil
	}
	out := make([]model.LatLng, len(in))
	copy(out, in)
	return out
}

func startSpan(ctx context.Context, name, geofenceID string) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithAttributes(
			attribute.String("entity_type", "geofence"),
			attribute.String("entity_id", geofenceID),
		),
	)
}
