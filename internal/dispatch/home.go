package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ride-dispatcher/internal/models"
)

// HomeReturn records a driver sent home between rides
type HomeReturn struct {
	DriverID  models.ID `json:"driver_id"`
	ForRideID models.ID `json:"for_ride_id"`
	Cost      float64   `json:"cost"`
	ArrivalAt time.Time `json:"arrival_at"`
}

// HomeReturnAdvisor sends drivers home between rides when they can still make a remaining ride afterwards
type HomeReturnAdvisor struct {
	lookups *lookupPool
	cost    CostModel
}

// Apply checks the detour current location -> home -> ride start for every remaining edge of a
// clocked driver. The first feasible detour in pool order is applied: the home leg is charged with
// unanchored pricing, the driver moves home and its clock is cleared.
func (a *HomeReturnAdvisor) Apply(ctx context.Context, log *zap.Logger, pool []edge) (float64, []HomeReturn, error) {
	var candidates []edge
	for _, ed := range pool {
		if ed.driver.Clock.IsAnchored() {
			candidates = append(candidates, ed)
		}
	}
	if len(candidates) == 0 {
		return 0, nil, nil
	}

	requests := make([][]models.Coordinates, len(candidates))
	for i, ed := range candidates {
		requests[i] = []models.Coordinates{ed.driver.Location, ed.driver.Driver.Home, ed.ride.Start}
	}

	results, err := a.lookups.resolve(ctx, "home-return", requests)
	if err != nil {
		return 0, nil, err
	}

	var (
		total   float64
		returns []HomeReturn
		decided = make(map[models.ID]bool)
	)
	for i, ed := range candidates {
		if decided[ed.DriverID] {
			continue
		}
		res := results[i]
		if res.failed {
			log.Debug("[HOME] Detour lookup failed, skipping",
				zap.String("driver_id", string(ed.DriverID)),
				zap.String("ride_id", string(ed.RideID)),
				zap.String("reason", res.reason))
			continue
		}

		clock, _ := ed.driver.Clock.Time()
		if clock.Add(seconds(res.duration())).After(ed.ride.StartTime) {
			continue
		}

		homeLeg := res.legs[0]
		cost := a.cost.TravelCost(ed.driver.Driver.FuelCost, homeLeg.DistanceMeters, homeLeg.DurationSecs)
		arrival := clock.Add(seconds(homeLeg.DurationSecs))

		ed.driver.Location = ed.driver.Driver.Home
		ed.driver.Clock = models.Unanchored()
		ed.driver.NotBefore = arrival
		decided[ed.DriverID] = true

		total += cost
		returns = append(returns, HomeReturn{
			DriverID:  ed.DriverID,
			ForRideID: ed.RideID,
			Cost:      cost,
			ArrivalAt: arrival,
		})
		log.Debug("[HOME] Sending driver home",
			zap.String("driver_id", string(ed.DriverID)),
			zap.String("next_ride_id", string(ed.RideID)),
			zap.Float64("cost", cost),
			zap.Time("home_at", arrival))
	}
	return total, returns, nil
}
