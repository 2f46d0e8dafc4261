// Package feed renders the fleet in external formats: GTFS-Realtime vehicle
// positions and GeoJSON.
package feed

import (
	"fmt"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/signalsfoundry/fleet-simulator/model"
)

// GTFSRealtimeVersion is the GTFS-Realtime version advertised in feed headers.
const GTFSRealtimeVersion = "2.0"

// kmhToMS converts km/h to the m/s GTFS-RT expects.
const kmhToMS = 1000.0 / 3600.0

// VehiclePositionsFeed builds a full-dataset FeedMessage with one entity per
// vehicle. Moving vehicles are IN_TRANSIT_TO, everything else STOPPED_AT.
func VehiclePositionsFeed(vehicles []model.Vehicle, at time.Time) *gtfsrtpb.FeedMessage {
	msg := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String(GTFSRealtimeVersion),
			Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(unixSeconds(at)),
		},
		Entity: make([]*gtfsrtpb.FeedEntity, 0, len(vehicles)),
	}
	for _, v := range vehicles {
		msg.Entity = append(msg.Entity, vehicleEntity(v, at))
	}
	return msg
}

func vehicleEntity(v model.Vehicle, at time.Time) *gtfsrtpb.FeedEntity {
	stopStatus := gtfsrtpb.VehiclePosition_STOPPED_AT
	if v.Status == model.StatusMoving {
		stopStatus = gtfsrtpb.VehiclePosition_IN_TRANSIT_TO
	}
	ts := at
	if !v.LastUpdate.IsZero() {
		ts = v.LastUpdate
	}

	descriptor := &gtfsrtpb.VehicleDescriptor{Id: proto.String(v.ID)}
	if v.Name != "" {
		descriptor.Label = proto.String(v.Name)
	}
	if v.Plate != "" {
		descriptor.LicensePlate = proto.String(v.Plate)
	}

	return &gtfsrtpb.FeedEntity{
		Id: proto.String(v.ID),
		Vehicle: &gtfsrtpb.VehiclePosition{
			Vehicle: descriptor,
			Position: &gtfsrtpb.Position{
				Latitude:  proto.Float32(float32(v.Lat)),
				Longitude: proto.Float32(float32(v.Lng)),
				Bearing:   proto.Float32(float32(v.Heading)),
				Speed:     proto.Float32(float32(v.Speed * kmhToMS)),
			},
			CurrentStatus: stopStatus.Enum(),
			Timestamp:     proto.Uint64(unixSeconds(ts)),
		},
	}
}

// MarshalFeed encodes msg as protobuf wire format, or as JSON when asJSON is set.
func MarshalFeed(msg *gtfsrtpb.FeedMessage, asJSON bool) ([]byte, error) {
	if asJSON {
		b, err := protojson.MarshalOptions{Indent: "  "}.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("marshal feed json: %w", err)
		}
		return b, nil
	}
	b, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal feed: %w", err)
	}
	return b, nil
}

func unixSeconds(t time.Time) uint64 {
	if t.IsZero() || t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}
