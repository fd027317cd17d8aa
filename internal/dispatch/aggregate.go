package dispatch

import (
	"context"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"ride-dispatcher/internal/models"
)

// Aggregation is the priced result of a matching outcome
type Aggregation struct {
	Cost     models.CostBreakdown
	Manifest models.Manifest
	Warnings []string
}

// ResultAggregator prices the rides themselves and the end-of-day trips home
type ResultAggregator struct {
	lookups *lookupPool
	cost    CostModel
}

// Aggregate prices every assigned ride start->end with an unanchored clock and the trip home
// for every driver that did not end the day at home. A failed lookup prices its leg at zero
// and adds a warning.
func (a *ResultAggregator) Aggregate(ctx context.Context, log *zap.Logger, out *Outcome, rides []models.Ride) (*Aggregation, error) {
	rideByID := lo.SliceToMap(rides, func(r models.Ride) (models.ID, models.Ride) { return r.ID, r })
	stateByID := lo.SliceToMap(out.Drivers, func(s models.DriverState) (models.ID, models.DriverState) {
		return s.Driver.ID, s
	})

	agg := &Aggregation{Warnings: []string{}}

	rideRequests := make([][]models.Coordinates, len(out.Assignments))
	for i, asg := range out.Assignments {
		r, ok := rideByID[asg.RideID]
		if !ok {
			return nil, computationErrorf("aggregate", "assignment references unknown ride %q", asg.RideID)
		}
		if _, ok := stateByID[asg.DriverID]; !ok {
			return nil, computationErrorf("aggregate", "assignment references unknown driver %q", asg.DriverID)
		}
		rideRequests[i] = []models.Coordinates{r.Start, r.End}
	}

	rideResults, err := a.lookups.resolve(ctx, "ride-cost", rideRequests)
	if err != nil {
		return nil, err
	}
	for i, asg := range out.Assignments {
		res := rideResults[i]
		if res.failed {
			agg.Warnings = append(agg.Warnings, fmt.Sprintf("ride %s: route lookup failed, ride cost counted as 0 (%s)", asg.RideID, res.reason))
			continue
		}
		fuel := stateByID[asg.DriverID].Driver.FuelCost
		agg.Cost.Rides += a.cost.TravelCost(fuel, res.distance(), res.duration())
	}

	away := lo.Filter(out.Drivers, func(s models.DriverState, _ int) bool { return !s.AtHome() })
	homeRequests := lo.Map(away, func(s models.DriverState, _ int) []models.Coordinates {
		return []models.Coordinates{s.Location, s.Driver.Home}
	})
	homeResults, err := a.lookups.resolve(ctx, "return-home", homeRequests)
	if err != nil {
		return nil, err
	}
	for i, s := range away {
		res := homeResults[i]
		if res.failed {
			agg.Warnings = append(agg.Warnings, fmt.Sprintf("driver %s: route home failed, return cost counted as 0 (%s)", s.Driver.ID, res.reason))
			continue
		}
		agg.Cost.ReturnHome += a.cost.TravelCost(s.Driver.FuelCost, res.distance(), res.duration())
	}

	agg.Cost.InBetween = out.InBetweenCost
	agg.Cost.Rides = RoundCost(agg.Cost.Rides)
	agg.Cost.ReturnHome = RoundCost(agg.Cost.ReturnHome)
	agg.Cost.Total = RoundCost(agg.Cost.InBetween + agg.Cost.Rides + agg.Cost.ReturnHome)
	agg.Manifest = BuildManifest(out.Assignments, agg.Cost.Total)

	for _, w := range agg.Warnings {
		log.Warn("[DISPATCH] " + w)
	}
	log.Info("[DISPATCH] Costs aggregated",
		zap.Float64("in_between", agg.Cost.InBetween),
		zap.Float64("rides", agg.Cost.Rides),
		zap.Float64("return_home", agg.Cost.ReturnHome),
		zap.Float64("total", agg.Cost.Total),
		zap.Int("drivers_returning_home", len(away)))
	return agg, nil
}

// BuildManifest groups ride ids by driver in assignment order. Drivers are listed by id.
func BuildManifest(assignments []models.Assignment, totalCost float64) models.Manifest {
	byDriver := lo.GroupBy(assignments, func(a models.Assignment) models.ID { return a.DriverID })
	driverIDs := lo.Keys(byDriver)
	slices.SortFunc(driverIDs, models.CompareIDs)

	manifest := models.Manifest{
		Assignments: make([]models.DriverAssignments, 0, len(driverIDs)),
		TotalCost:   totalCost,
	}
	for _, id := range driverIDs {
		list := slices.Clone(byDriver[id])
		slices.SortStableFunc(list, func(a, b models.Assignment) int { return a.Sequence - b.Sequence })
		manifest.Assignments = append(manifest.Assignments, models.DriverAssignments{
			DriverID: id,
			RideIDs:  lo.Map(list, func(a models.Assignment, _ int) models.ID { return a.RideID }),
		})
	}
	return manifest
}
