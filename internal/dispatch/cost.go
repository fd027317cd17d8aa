package dispatch

import (
	"math"
	"time"

	"ride-dispatcher/internal/models"
)

// DefaultHourlyWage is the driver time cost per hour
const DefaultHourlyWage = 30.0

// CostModel prices a travel leg as fuel plus driver time
type CostModel struct {
	HourlyWage float64
}

func NewCostModel(hourlyWage float64) CostModel {
	return CostModel{HourlyWage: hourlyWage}
}

// LegCost returns fuelRate*km + idleHours*wage rounded to cents.
// With an anchored clock idle time runs from the clock to rideStart; otherwise it is the travel duration.
func (m CostModel) LegCost(fuelRate, distanceMeters, durationSecs float64, clock models.DriverClock, rideStart time.Time) float64 {
	fuel := fuelRate * (distanceMeters / 1000)

	idleSecs := durationSecs
	if at, ok := clock.Time(); ok {
		idleSecs = rideStart.Sub(at).Seconds()
	}

	return RoundCost(fuel + idleSecs/3600*m.HourlyWage)
}

// TravelCost prices a leg with an unanchored clock
func (m CostModel) TravelCost(fuelRate, distanceMeters, durationSecs float64) float64 {
	return m.LegCost(fuelRate, distanceMeters, durationSecs, models.Unanchored(), time.Time{})
}

// RoundCost rounds to 2 decimal places
func RoundCost(v float64) float64 {
	return math.Round(v*100) / 100
}
