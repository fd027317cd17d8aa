package distance

import (
	"context"
	"errors"
	"fmt"

	"ride-dispatcher/internal/models"
)

// Leg is one travel segment between two consecutive waypoints
type Leg struct {
	DistanceMeters float64 `json:"distance"`
	DurationSecs   float64 `json:"duration"`
}

// RouteCostProvider returns per-leg distance and duration for an ordered waypoint list.
// Implementations must be safe for concurrent use.
type RouteCostProvider interface {
	GetRoute(ctx context.Context, profile string, waypoints []models.Coordinates) ([]Leg, error)
}

// ErrTooFewWaypoints is returned when a route is requested for fewer than two points
var ErrTooFewWaypoints = errors.New("route needs at least two waypoints")

// RouteLookupError is returned when the routing backend could not produce a route.
// Callers treat it as "this edge is infeasible", never as a fatal error.
type RouteLookupError struct {
	Waypoints []models.Coordinates
	Attempts  int
	Reason    string
}

func (e *RouteLookupError) Error() string {
	return fmt.Sprintf("route lookup failed after %d attempt(s): %s", e.Attempts, e.Reason)
}

// IsLookupFailure reports whether err is a recoverable route lookup failure
func IsLookupFailure(err error) bool {
	var lookupErr *RouteLookupError
	return errors.As(err, &lookupErr)
}

// TotalDistance sums leg distances
func TotalDistance(legs []Leg) float64 {
	var total float64
	for _, l := range legs {
		total += l.DistanceMeters
	}
	return total
}

// TotalDuration sums leg durations
func TotalDuration(legs []Leg) float64 {
	var total float64
	for _, l := range legs {
		total += l.DurationSecs
	}
	return total
}
