package testutil

import (
	"context"
	"fmt"
	"math"
	"sync"

	"ride-dispatcher/internal/distance"
	"ride-dispatcher/internal/models"
)

// RouteCall tracks a call to the stub router
type RouteCall struct {
	Profile   string
	Waypoints []models.Coordinates
}

// StubRouter is a deterministic RouteCostProvider for tests.
// Legs without an override use scaled Euclidean distance at a fixed speed.
type StubRouter struct {
	ScaleFactor float64 // meters per degree
	SpeedMPS    float64
	FailAll     bool

	mu          sync.Mutex
	overrides   map[string]distance.Leg
	failingLegs map[string]bool
	calls       []RouteCall
}

func NewStubRouter() *StubRouter {
	return &StubRouter{
		ScaleFactor: 111000, // 1 degree ≈ 111km
		SpeedMPS:    10,
		overrides:   make(map[string]distance.Leg),
		failingLegs: make(map[string]bool),
	}
}

func legKey(origin, dest models.Coordinates) string {
	return fmt.Sprintf("%.5f,%.5f->%.5f,%.5f", origin.Lat, origin.Lng, dest.Lat, dest.Lng)
}

// SetLeg fixes the distance and duration for one directed leg
func (s *StubRouter) SetLeg(origin, dest models.Coordinates, distMeters, durSecs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[legKey(origin, dest)] = distance.Leg{DistanceMeters: distMeters, DurationSecs: durSecs}
}

// FailLeg makes any route containing origin->dest fail with a RouteLookupError
func (s *StubRouter) FailLeg(origin, dest models.Coordinates) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failingLegs[legKey(origin, dest)] = true
}

// Calls returns a copy of the recorded calls
func (s *StubRouter) Calls() []RouteCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RouteCall(nil), s.calls...)
}

// CallCount returns the number of GetRoute calls made so far
func (s *StubRouter) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *StubRouter) GetRoute(ctx context.Context, profile string, waypoints []models.Coordinates) ([]distance.Leg, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(waypoints) < 2 {
		return nil, distance.ErrTooFewWaypoints
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, RouteCall{Profile: profile, Waypoints: append([]models.Coordinates(nil), waypoints...)})

	if s.FailAll {
		return nil, &distance.RouteLookupError{Waypoints: waypoints, Attempts: 1, Reason: "stub: all routes fail"}
	}

	legs := make([]distance.Leg, len(waypoints)-1)
	for i := 0; i < len(waypoints)-1; i++ {
		origin, dest := waypoints[i], waypoints[i+1]
		key := legKey(origin, dest)
		if s.failingLegs[key] {
			return nil, &distance.RouteLookupError{Waypoints: waypoints, Attempts: 1, Reason: "stub: leg " + key + " fails"}
		}
		if leg, ok := s.overrides[key]; ok {
			legs[i] = leg
			continue
		}
		dLat := dest.Lat - origin.Lat
		dLng := dest.Lng - origin.Lng
		meters := math.Sqrt(dLat*dLat+dLng*dLng) * s.ScaleFactor
		legs[i] = distance.Leg{DistanceMeters: meters, DurationSecs: meters / s.SpeedMPS}
	}
	return legs, nil
}
