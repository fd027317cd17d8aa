package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Coordinates represents a geographic point
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RoundCoordinate rounds to 5 decimal places (~1m), the precision used for cache keys
func RoundCoordinate(v float64) float64 {
	return math.Round(v*100000) / 100000
}

// SamePoint reports whether both coordinates round to the same cache key
func (c Coordinates) SamePoint(o Coordinates) bool {
	return RoundCoordinate(c.Lat) == RoundCoordinate(o.Lat) &&
		RoundCoordinate(c.Lng) == RoundCoordinate(o.Lng)
}

// Key is the rounded "lat,lng" form used to key cached legs
func (c Coordinates) Key() string {
	return fmt.Sprintf("%.5f,%.5f", RoundCoordinate(c.Lat), RoundCoordinate(c.Lng))
}

// LngLat formats the point the way OSRM expects it in a URL path
func (c Coordinates) LngLat() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lng, c.Lat)
}

// ID identifies a ride or a driver. Source records carry either strings or numbers.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// CompareIDs orders identifiers numerically when both are integers, lexicographically otherwise.
func CompareIDs(a, b ID) int {
	ai, aErr := strconv.ParseInt(string(a), 10, 64)
	bi, bErr := strconv.ParseInt(string(b), 10, 64)
	if aErr == nil && bErr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	return strings.Compare(string(a), string(b))
}

// Ride is a pending transportation request
type Ride struct {
	ID        ID          `json:"id"`
	Start     Coordinates `json:"start"`
	End       Coordinates `json:"end"`
	StartTime time.Time   `json:"start_time"`
	EndTime   time.Time   `json:"end_time"`
	Seats     int         `json:"seats"`
}

// Driver is a member of the fleet
type Driver struct {
	ID       ID          `json:"id"`
	Home     Coordinates `json:"home"`
	Seats    int         `json:"seats"`
	FuelCost float64     `json:"fuel_cost"`
}

// DriverClock is a driver's available time. An unanchored clock means the driver is idle
// and not tied to any time; costs are then driven by travel duration.
type DriverClock struct {
	at       time.Time
	anchored bool
}

// AnchoredAt returns a clock pinned to t
func AnchoredAt(t time.Time) DriverClock {
	return DriverClock{at: t, anchored: true}
}

// Unanchored returns an idle clock
func Unanchored() DriverClock {
	return DriverClock{}
}

// Time returns the available time and whether the clock is anchored
func (c DriverClock) Time() (time.Time, bool) {
	return c.at, c.anchored
}

func (c DriverClock) IsAnchored() bool {
	return c.anchored
}

func (c DriverClock) String() string {
	if !c.anchored {
		return "unanchored"
	}
	return c.at.Format(time.RFC3339)
}

func (c DriverClock) MarshalJSON() ([]byte, error) {
	if !c.anchored {
		return []byte("null"), nil
	}
	return json.Marshal(c.at)
}

// DriverState is the simulated position of a driver during matching
type DriverState struct {
	Driver   Driver      `json:"driver"`
	Location Coordinates `json:"location"`
	Clock    DriverClock `json:"available_at"`
	// NotBefore is the earliest moment the driver can leave Location. It survives a
	// home return, when Clock is cleared. Zero until the driver completes a ride.
	NotBefore time.Time `json:"not_before,omitzero"`
}

// AtHome reports whether the driver currently stands at home
func (s *DriverState) AtHome() bool {
	return s.Location.SamePoint(s.Driver.Home)
}

// CandidateEdge is a feasible (driver, ride) pairing with travel estimates to the ride start
type CandidateEdge struct {
	DriverID        ID      `json:"driver_id"`
	RideID          ID      `json:"ride_id"`
	DistanceToStart float64 `json:"distance_to_start_meters"`
	DurationToStart float64 `json:"duration_to_start_secs"`
	CostToStart     float64 `json:"cost_to_start"`
}

// Assignment records a ride given to a driver
type Assignment struct {
	DriverID    ID         `json:"driver_id"`
	RideID      ID         `json:"ride_id"`
	Sequence    int        `json:"sequence"`
	Round       int        `json:"round"`
	CostToStart float64    `json:"cost_to_start"`
	ArrivalAt   *time.Time `json:"arrival_at,omitempty"`
}

// DriverAssignments lists a driver's rides in assignment order
type DriverAssignments struct {
	DriverID ID   `json:"driverId"`
	RideIDs  []ID `json:"rideIds"`
}

// Manifest is the final output of a dispatch run
type Manifest struct {
	Assignments []DriverAssignments `json:"assignments"`
	TotalCost   float64             `json:"totalCost"`
}

// CostBreakdown splits the total cost into its parts
type CostBreakdown struct {
	InBetween  float64 `json:"in_between"`
	Rides      float64 `json:"rides"`
	ReturnHome float64 `json:"return_home"`
	Total      float64 `json:"total"`
}

// DistanceCacheEntry represents a cached distance lookup
type DistanceCacheEntry struct {
	Origin         Coordinates `json:"origin"`
	Destination    Coordinates `json:"destination"`
	DistanceMeters float64     `json:"distance_meters"`
	DurationSecs   float64     `json:"duration_secs"`
}

// Run is a stored dispatch run
type Run struct {
	ID          string        `json:"id"`
	CreatedAt   time.Time     `json:"created_at"`
	RideCount   int           `json:"ride_count"`
	DriverCount int           `json:"driver_count"`
	Rounds      int           `json:"rounds"`
	Cost        CostBreakdown `json:"cost"`
}

// RunAssignment is a snapshot of one assignment in a stored run
type RunAssignment struct {
	RunID       string  `json:"run_id"`
	DriverID    ID      `json:"driver_id"`
	Sequence    int     `json:"sequence"`
	RideID      ID      `json:"ride_id"`
	CostToStart float64 `json:"cost_to_start"`
}
