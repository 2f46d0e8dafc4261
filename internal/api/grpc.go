package api

import (
	"context"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/signalsfoundry/fleet-simulator/internal/feed"
	"github.com/signalsfoundry/fleet-simulator/internal/logging"
	"github.com/signalsfoundry/fleet-simulator/internal/observability"
	"github.com/signalsfoundry/fleet-simulator/model"
)

const (
	FeedServiceName               = "fleet.v1.FeedService"
	FeedGetVehiclePositionsMethod = "/fleet.v1.FeedService/GetVehiclePositions"
)

// FeedServer serves the fleet as GTFS-Realtime messages.
type FeedServer interface {
	GetVehiclePositions(context.Context, *emptypb.Empty) (*gtfsrtpb.FeedMessage, error)
}

// FeedServiceDesc describes FeedService. The messages are the published
// GTFS-RT and well-known protobuf types, so no generated stubs are needed.
var FeedServiceDesc = grpc.ServiceDesc{
	ServiceName: FeedServiceName,
	HandlerType: (*FeedServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetVehiclePositions", Handler: getVehiclePositionsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fleet/v1/feed.proto",
}

func getVehiclePositionsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedServer).GetVehiclePositions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FeedGetVehiclePositionsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FeedServer).GetVehiclePositions(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// VehicleLister is the read side of the store the feed needs.
type VehicleLister interface {
	ListVehicles() []model.Vehicle
}

// FeedService implements FeedServer over a vehicle store.
type FeedService struct {
	store VehicleLister
	log   logging.Logger
	now   func() time.Time
}

func NewFeedService(store VehicleLister, log logging.Logger) *FeedService {
	if log == nil {
		log = logging.Noop()
	}
	return &FeedService{store: store, log: log, now: time.Now}
}

func (s *FeedService) GetVehiclePositions(ctx context.Context, _ *emptypb.Empty) (*gtfsrtpb.FeedMessage, error) {
	ctx, span := StartChildSpan(ctx, "FeedService/GetVehiclePositions", "feed", "vehicle-positions")
	defer span.End()

	vehicles := s.store.ListVehicles()
	logging.FromContext(ctx, s.log).Debug(ctx, "serving vehicle positions", logging.Int("vehicles", len(vehicles)))
	return feed.VehiclePositionsFeed(vehicles, s.now()), nil
}

// GRPCServer bundles the gRPC server with its health service.
type GRPCServer struct {
	Server *grpc.Server
	Health *health.Server
}

// NewGRPCServer builds a server with OpenTelemetry stats, request IDs,
// tracing and metrics interceptors, the feed service, health and reflection.
// Health reports NOT_SERVING until MarkServing is called.
func NewGRPCServer(store VehicleLister, collector *observability.SimulatorCollector, log logging.Logger) *GRPCServer {
	if log == nil {
		log = logging.Noop()
	}
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(log),
			TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
			errorMappingInterceptor(),
		),
	)

	srv.RegisterService(&FeedServiceDesc, NewFeedService(store, log))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(FeedServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	reflection.Register(srv)

	return &GRPCServer{Server: srv, Health: hs}
}

// MarkServing flips the health status to SERVING.
func (g *GRPCServer) MarkServing() {
	g.Health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	g.Health.SetServingStatus(FeedServiceName, healthpb.HealthCheckResponse_SERVING)
}

// Shutdown marks the server NOT_SERVING and stops it gracefully.
func (g *GRPCServer) Shutdown() {
	g.Health.Shutdown()
	g.Server.GracefulStop()
}

func errorMappingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		return resp, ToStatusError(err)
	}
}
