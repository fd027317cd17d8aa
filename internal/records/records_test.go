package records

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-dispatcher/internal/models"
)

const ridesJSON = `[
	{"_id": "r2", "startPoint_coords": [34.78, 32.08], "endPoint_coords": [34.80, 32.10],
	 "date": "2024-03-01", "startTime": "09:30", "endTime": "10:15", "numberOfSeats": 2,
	 "city": "Tel Aviv", "startPoint": "A", "endPoint": "B"},
	{"_id": "r1", "startPoint_coords": "[34.70, 32.00]", "endPoint_coords": [34.75, 32.05],
	 "date": "2024-03-01", "startTime": "08:00", "endTime": "08:40", "numberOfSeats": 4}
]`

const driversJSON = `[
	{"driverId": 7, "city_coords": [34.9, 32.2], "numberOfSeats": 4, "fuelCost": 1.5,
	 "firstName": "Dana", "status": "active"},
	{"driverId": 3, "city_coords": [34.6, 31.9], "numberOfSeats": 2, "fuelCost": 2}
]`

func TestDecodeRides(t *testing.T) {
	rides, err := DecodeRides([]byte(ridesJSON))
	require.NoError(t, err)
	require.Len(t, rides, 2)

	// sorted by start time
	assert.Equal(t, models.ID("r1"), rides[0].ID)
	assert.Equal(t, models.ID("r2"), rides[1].ID)

	assert.Equal(t, models.Coordinates{Lat: 32.00, Lng: 34.70}, rides[0].Start)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), rides[0].StartTime)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 40, 0, 0, time.UTC), rides[0].EndTime)
	assert.Equal(t, 4, rides[0].Seats)
}

func TestDecodeDrivers(t *testing.T) {
	drivers, err := DecodeDrivers([]byte(driversJSON))
	require.NoError(t, err)
	require.Len(t, drivers, 2)

	assert.Equal(t, models.ID("3"), drivers[0].ID)
	assert.Equal(t, models.ID("7"), drivers[1].ID)
	assert.Equal(t, models.Coordinates{Lat: 32.2, Lng: 34.9}, drivers[1].Home)
	assert.Equal(t, 1.5, drivers[1].FuelCost)
}

func TestDecodeRidesInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{
			name:  "missing start coords",
			input: `[{"_id": "r1", "endPoint_coords": [1, 2], "date": "2024-03-01", "startTime": "08:00", "endTime": "09:00", "numberOfSeats": 1}]`,
			field: "startPoint_coords",
		},
		{
			name:  "zero seats",
			input: `[{"_id": "r1", "startPoint_coords": [1, 2], "endPoint_coords": [1, 2], "date": "2024-03-01", "startTime": "08:00", "endTime": "09:00", "numberOfSeats": 0}]`,
			field: "numberOfSeats",
		},
		{
			name:  "bad time",
			input: `[{"_id": "r1", "startPoint_coords": [1, 2], "endPoint_coords": [1, 2], "date": "2024-03-01", "startTime": "8am", "endTime": "09:00", "numberOfSeats": 1}]`,
			field: "startTime",
		},
		{
			name:  "ends before start",
			input: `[{"_id": "r1", "startPoint_coords": [1, 2], "endPoint_coords": [1, 2], "date": "2024-03-01", "startTime": "10:00", "endTime": "09:00", "numberOfSeats": 1}]`,
			field: "endTime",
		},
		{
			name:  "latitude out of range",
			input: `[{"_id": "r1", "startPoint_coords": [1, 95], "endPoint_coords": [1, 2], "date": "2024-03-01", "startTime": "08:00", "endTime": "09:00", "numberOfSeats": 1}]`,
			field: "Lat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRides([]byte(tt.input))
			require.Error(t, err)

			var inputErr *InputError
			require.True(t, errors.As(err, &inputErr))
			assert.Equal(t, "ride", inputErr.Kind)
			assert.Contains(t, inputErr.Field, tt.field)
		})
	}
}

func TestDecodeRidesDuplicateID(t *testing.T) {
	input := `[
		{"_id": "r1", "startPoint_coords": [1, 2], "endPoint_coords": [1, 2], "date": "2024-03-01", "startTime": "08:00", "endTime": "09:00", "numberOfSeats": 1},
		{"_id": "r1", "startPoint_coords": [1, 2], "endPoint_coords": [1, 2], "date": "2024-03-01", "startTime": "10:00", "endTime": "11:00", "numberOfSeats": 1}
	]`
	_, err := DecodeRides([]byte(input))

	var inputErr *InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, 1, inputErr.Index)
	assert.Equal(t, "duplicate id", inputErr.Reason)
}

func TestDecodeDriversMalformedJSON(t *testing.T) {
	_, err := DecodeDrivers([]byte(`[{"driverId": 1,`))

	var inputErr *InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, "driver", inputErr.Kind)
	assert.Equal(t, -1, inputErr.Index)
}

func TestDecodeDriversNegativeFuel(t *testing.T) {
	_, err := DecodeDrivers([]byte(`[{"driverId": 1, "city_coords": [1, 2], "numberOfSeats": 4, "fuelCost": -1}]`))

	var inputErr *InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Contains(t, inputErr.Field, "fuelCost")
}

func TestValidateMessagesUseJSONNames(t *testing.T) {
	type request struct {
		Drivers []RawDriver `json:"drivers" validate:"required,min=1"`
	}

	err := Validate(request{})
	require.Error(t, err)
	assert.Equal(t, []string{"drivers is a required field"}, Messages(err))

	assert.Equal(t, []string{"boom"}, Messages(errors.New("boom")))
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()
	ridesPath := filepath.Join(dir, "rides.json")
	driversPath := filepath.Join(dir, "drivers.json")
	require.NoError(t, os.WriteFile(ridesPath, []byte(ridesJSON), 0600))
	require.NoError(t, os.WriteFile(driversPath, []byte(driversJSON), 0600))

	rides, err := LoadRides(ridesPath)
	require.NoError(t, err)
	assert.Len(t, rides, 2)

	drivers, err := LoadDrivers(driversPath)
	require.NoError(t, err)
	assert.Len(t, drivers, 2)

	_, err = LoadRides(filepath.Join(dir, "missing.json"))
	var inputErr *InputError
	assert.True(t, errors.As(err, &inputErr))
}
