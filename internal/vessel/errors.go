package vessel

import "errors"

var (
	// ErrNotSupported is returned when a vessel type does not implement the
	// requested control mode.
	ErrNotSupported = errors.New("control mode not supported by vessel type")

	// ErrDegenerateVesselGeometry is returned when the hull parameters leave
	// the rudder with no yaw authority.
	ErrDegenerateVesselGeometry = errors.New("degenerate vessel geometry")

	// ErrSingularMatrix is returned by Mat3.Inverse.
	ErrSingularMatrix = errors.New("singular matrix")

	// ErrUnknownVesselType is returned by New for an unregistered type name.
	ErrUnknownVesselType = errors.New("unknown vessel type")

	// ErrMissingWaypoints is returned when a waypoint-driven mode is
	// configured with an empty route.
	ErrMissingWaypoints = errors.New("control mode requires at least one waypoint")
)
