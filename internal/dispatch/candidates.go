package dispatch

import (
	"slices"

	"github.com/samber/lo"

	"ride-dispatcher/internal/models"
)

// GenerateCandidates returns every (driver, ride) pair whose seat requirement fits the driver.
// Time feasibility is left to the engine. Edges are ordered by driver, then ride start, then ride id.
func GenerateCandidates(rides []models.Ride, drivers []models.Driver) []models.CandidateEdge {
	edges := make([]models.CandidateEdge, 0, len(rides)*len(drivers))
	for _, d := range drivers {
		fitting := lo.Filter(rides, func(r models.Ride, _ int) bool {
			return r.Seats <= d.Seats
		})
		for _, r := range fitting {
			edges = append(edges, models.CandidateEdge{DriverID: d.ID, RideID: r.ID})
		}
	}

	rideByID := lo.SliceToMap(rides, func(r models.Ride) (models.ID, models.Ride) {
		return r.ID, r
	})
	slices.SortStableFunc(edges, func(a, b models.CandidateEdge) int {
		if c := models.CompareIDs(a.DriverID, b.DriverID); c != 0 {
			return c
		}
		if c := rideByID[a.RideID].StartTime.Compare(rideByID[b.RideID].StartTime); c != 0 {
			return c
		}
		return models.CompareIDs(a.RideID, b.RideID)
	})
	return edges
}
