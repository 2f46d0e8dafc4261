package feed

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/signalsfoundry/fleet-simulator/core"
	"github.com/signalsfoundry/fleet-simulator/model"
)

var feedNow = time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)

func sampleVehicles() []model.Vehicle {
	return []model.Vehicle{
		{
			VehiclePosition: model.VehiclePosition{ID: "1", Lat: 46.05, Lng: 14.5, Heading: 45, Speed: 72, Status: model.StatusMoving},
			Name:            "Grega",
			Plate:           "LJ-123-AB",
			LastUpdate:      feedNow.Add(-time.Minute),
		},
		{
			VehiclePosition: model.VehiclePosition{ID: "2", Lat: 46.08, Lng: 14.52, Heading: 180, Status: model.StatusStopped},
		},
	}
}

func TestVehiclePositionsFeed(t *testing.T) {
	msg := VehiclePositionsFeed(sampleVehicles(), feedNow)

	if msg.GetHeader().GetGtfsRealtimeVersion() != "2.0" {
		t.Fatalf("version = %q, want 2.0", msg.GetHeader().GetGtfsRealtimeVersion())
	}
	if msg.GetHeader().GetIncrementality() != gtfsrtpb.FeedHeader_FULL_DATASET {
		t.Fatalf("incrementality = %v, want FULL_DATASET", msg.GetHeader().GetIncrementality())
	}
	if got := msg.GetHeader().GetTimestamp(); got != uint64(feedNow.Unix()) {
		t.Fatalf("header timestamp = %d, want %d", got, feedNow.Unix())
	}
	if len(msg.GetEntity()) != 2 {
		t.Fatalf("entities = %d, want 2", len(msg.GetEntity()))
	}

	moving := msg.GetEntity()[0].GetVehicle()
	if moving.GetCurrentStatus() != gtfsrtpb.VehiclePosition_IN_TRANSIT_TO {
		t.Fatalf("moving status = %v, want IN_TRANSIT_TO", moving.GetCurrentStatus())
	}
	if got := moving.GetPosition().GetSpeed(); math.Abs(float64(got)-20) > 1e-4 {
		t.Fatalf("speed = %v m/s, want 20", got)
	}
	if moving.GetVehicle().GetLicensePlate() != "LJ-123-AB" || moving.GetVehicle().GetLabel() != "Grega" {
		t.Fatalf("descriptor = %v", moving.GetVehicle())
	}
	if got := moving.GetTimestamp(); got != uint64(feedNow.Add(-time.Minute).Unix()) {
		t.Fatalf("vehicle timestamp = %d, want last update", got)
	}

	stopped := msg.GetEntity()[1].GetVehicle()
	if stopped.GetCurrentStatus() != gtfsrtpb.VehiclePosition_STOPPED_AT {
		t.Fatalf("stopped status = %v, want STOPPED_AT", stopped.GetCurrentStatus())
	}
	if stopped.GetVehicle().LicensePlate != nil {
		t.Fatalf("empty plate should be unset")
	}
	if got := stopped.GetTimestamp(); got != uint64(feedNow.Unix()) {
		t.Fatalf("vehicle timestamp = %d, want feed time", got)
	}
}

func TestMarshalFeedProtobufDecodes(t *testing.T) {
	b, err := MarshalFeed(VehiclePositionsFeed(sampleVehicles(), feedNow), false)
	if err != nil {
		t.Fatalf("MarshalFeed() error = %v", err)
	}
	var decoded gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("proto.Unmarshal: %v", err)
	}
	if decoded.GetEntity()[0].GetId() != "1" {
		t.Fatalf("entity id = %q, want 1", decoded.GetEntity()[0].GetId())
	}
	lat := decoded.GetEntity()[0].GetVehicle().GetPosition().GetLatitude()
	if math.Abs(float64(lat)-46.05) > 1e-4 {
		t.Fatalf("latitude = %v, want 46.05", lat)
	}
}

func TestMarshalFeedJSON(t *testing.T) {
	b, err := MarshalFeed(VehiclePositionsFeed(sampleVehicles(), feedNow), true)
	if err != nil {
		t.Fatalf("MarshalFeed(json) error = %v", err)
	}
	if !strings.Contains(string(b), "IN_TRANSIT_TO") || !strings.Contains(string(b), "FULL_DATASET") {
		t.Fatalf("json feed = %s", b)
	}
}

func TestGeofenceCollectionUsesLngLatOrder(t *testing.T) {
	g := model.Geofence{ID: "1", Name: "Office", Shape: model.ShapeCircle, Color: "#00D4FF", Active: true}
	ring, err := core.RasterizeCircle(model.LatLng{Lat: 46.0569, Lng: 14.5058}, 500, model.GeofencePointCount)
	if err != nil {
		t.Fatalf("RasterizeCircle: %v", err)
	}

	fc := GeofenceCollection([]GeofenceRing{{Geofence: g, Ring: ring}, {Geofence: model.Geofence{ID: "empty"}}})
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 {
		t.Fatalf("collection = %+v", fc)
	}

	b, err := json.Marshal(fc)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	var decoded struct {
		Features []struct {
			Geometry struct {
				Type        string        `json:"type"`
				Coordinates [][][]float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	f := decoded.Features[0]
	if f.Geometry.Type != "Polygon" {
		t.Fatalf("geometry type = %q, want Polygon", f.Geometry.Type)
	}
	coords := f.Geometry.Coordinates[0]
	if len(coords) != 65 {
		t.Fatalf("ring len = %d, want 65", len(coords))
	}
	if coords[0][0] != ring[0].Lng || coords[0][1] != ring[0].Lat {
		t.Fatalf("first position = %v, want [lng, lat] = [%v, %v]", coords[0], ring[0].Lng, ring[0].Lat)
	}
	if coords[0][0] != coords[64][0] || coords[0][1] != coords[64][1] {
		t.Fatalf("ring not closed")
	}
	if f.Properties["color"] != "#00D4FF" {
		t.Fatalf("color = %v", f.Properties["color"])
	}
}

func TestVehicleCollection(t *testing.T) {
	fc := VehicleCollection(sampleVehicles())
	if len(fc.Features) != 2 {
		t.Fatalf("features = %d, want 2", len(fc.Features))
	}
	pt, ok := fc.Features[0].Geometry.Coordinates.([]float64)
	if !ok || pt[0] != 14.5 || pt[1] != 46.05 {
		t.Fatalf("point = %v, want [14.5 46.05]", fc.Features[0].Geometry.Coordinates)
	}
	if fc.Features[1].Properties["status"] != "stopped" {
		t.Fatalf("status = %v", fc.Features[1].Properties["status"])
	}
}
