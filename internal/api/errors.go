package api

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/fleet-simulator/core"
	"github.com/signalsfoundry/fleet-simulator/kb"
)

// ErrBadRequest marks malformed client input such as undecodable bodies or
// unknown query values.
var ErrBadRequest = errors.New("bad request")

// ToStatusError maps store and geometry errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, kb.ErrVehicleNotFound),
		errors.Is(err, kb.ErrGeofenceNotFound),
		errors.Is(err, kb.ErrAlertNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrBadRequest),
		errors.Is(err, kb.ErrInvalidVehicle),
		errors.Is(err, kb.ErrInvalidGeofence),
		errors.Is(err, core.ErrInvalidGeometry),
		errors.Is(err, core.ErrPolarLatitudeUnsupported):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, kb.ErrVehicleExists),
		errors.Is(err, kb.ErrGeofenceExists):
		return status.Error(codes.AlreadyExists, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// statusFor is the HTTP counterpart of ToStatusError.
func statusFor(err error) int {
	switch status.Code(ToStatusError(err)) {
	case codes.OK:
		return http.StatusOK
	case codes.NotFound:
		return http.StatusNotFound
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.AlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
