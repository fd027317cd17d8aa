package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ride-dispatcher/internal/models"
)

func TestGenerateCandidates_FiltersBySeats(t *testing.T) {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	rides := []models.Ride{
		{ID: "big", Seats: 4, StartTime: base},
		{ID: "small", Seats: 2, StartTime: base.Add(time.Hour)},
		{ID: "early", Seats: 1, StartTime: base.Add(-time.Hour)},
	}
	drivers := []models.Driver{
		{ID: "10", Seats: 4},
		{ID: "2", Seats: 2},
	}

	edges := GenerateCandidates(rides, drivers)

	got := make([]string, len(edges))
	for i, e := range edges {
		got[i] = string(e.DriverID) + ":" + string(e.RideID)
	}
	assert.Equal(t, []string{
		"2:early", "2:small",
		"10:early", "10:big", "10:small",
	}, got)
}

func TestGenerateCandidates_Empty(t *testing.T) {
	assert.Empty(t, GenerateCandidates(nil, []models.Driver{{ID: "a", Seats: 4}}))
	assert.Empty(t, GenerateCandidates([]models.Ride{{ID: "r", Seats: 5}}, []models.Driver{{ID: "a", Seats: 4}}))
}
