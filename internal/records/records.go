// Package records decodes and validates the raw ride and driver records that feed a dispatch run.
package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"

	"ride-dispatcher/internal/models"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// InputError is returned for malformed or missing ride and driver records. It is fatal for a run.
type InputError struct {
	Kind   string
	Index  int
	ID     models.ID
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid %s record", e.Kind)
	if e.Index >= 0 {
		fmt.Fprintf(&b, " #%d", e.Index)
	}
	if e.ID != "" {
		fmt.Fprintf(&b, " (id=%s)", e.ID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	fmt.Fprintf(&b, ": %s", e.Reason)
	return b.String()
}

// Point is a [lon, lat] pair. It accepts a JSON array or the stringified form "[lon, lat]".
type Point struct {
	Lng float64 `validate:"gte=-180,lte=180"`
	Lat float64 `validate:"gte=-90,lte=90"`
}

func (p *Point) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.Trim(strings.TrimSpace(s), "[]()")
		b = []byte("[" + s + "]")
	}

	var pair []float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("coordinates must be a [lon, lat] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("coordinates must have exactly 2 values, got %d", len(pair))
	}
	p.Lng, p.Lat = pair[0], pair[1]
	return nil
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([]float64{p.Lng, p.Lat})
}

func (p Point) coords() models.Coordinates {
	return models.Coordinates{Lat: p.Lat, Lng: p.Lng}
}

// RawRide mirrors an input ride record. Extra fields are ignored.
type RawRide struct {
	ID            models.ID `json:"_id" validate:"required"`
	StartPoint    *Point    `json:"startPoint_coords" validate:"required"`
	EndPoint      *Point    `json:"endPoint_coords" validate:"required"`
	Date          string    `json:"date" validate:"required"`
	StartTime     string    `json:"startTime" validate:"required"`
	EndTime       string    `json:"endTime" validate:"required"`
	NumberOfSeats int       `json:"numberOfSeats" validate:"gte=1"`
}

// RawDriver mirrors an input driver record. Extra fields are ignored.
type RawDriver struct {
	DriverID      models.ID `json:"driverId" validate:"required"`
	CityCoords    *Point    `json:"city_coords" validate:"required"`
	NumberOfSeats int       `json:"numberOfSeats" validate:"gte=1"`
	FuelCost      float64   `json:"fuelCost" validate:"gte=0"`
}

var (
	validate *validator.Validate
	trans    ut.Translator
)

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	english := en.New()
	uni := ut.New(english, english)
	trans, _ = uni.GetTranslator("en")
	_ = enTranslations.RegisterDefaultTranslations(validate, trans)
}

// Validate checks v against its validate struct tags. Fields are named by their json tags.
func Validate(v any) error {
	return validate.Struct(v)
}

// Messages flattens validator errors into readable English messages
func Messages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(trans))
	}
	return msgs
}

func validationError(kind string, index int, id models.ID, err error) error {
	ierr := &InputError{Kind: kind, Index: index, ID: id, Reason: strings.Join(Messages(err), "; ")}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		ierr.Field = verrs[0].Namespace()
	}
	return ierr
}

// ParseRides validates raw rides and converts them, sorted by start time.
func ParseRides(raw []RawRide) ([]models.Ride, error) {
	rides := make([]models.Ride, 0, len(raw))
	seen := make(map[models.ID]struct{}, len(raw))

	for i, r := range raw {
		if err := validate.Struct(r); err != nil {
			return nil, validationError("ride", i, r.ID, err)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, &InputError{Kind: "ride", Index: i, ID: r.ID, Field: "_id", Reason: "duplicate id"}
		}
		seen[r.ID] = struct{}{}

		start, err := parseClock(r.Date, r.StartTime)
		if err != nil {
			return nil, &InputError{Kind: "ride", Index: i, ID: r.ID, Field: "startTime", Reason: err.Error()}
		}
		end, err := parseClock(r.Date, r.EndTime)
		if err != nil {
			return nil, &InputError{Kind: "ride", Index: i, ID: r.ID, Field: "endTime", Reason: err.Error()}
		}
		if end.Before(start) {
			return nil, &InputError{Kind: "ride", Index: i, ID: r.ID, Field: "endTime", Reason: "ends before it starts"}
		}

		rides = append(rides, models.Ride{
			ID:        r.ID,
			Start:     r.StartPoint.coords(),
			End:       r.EndPoint.coords(),
			StartTime: start,
			EndTime:   end,
			Seats:     r.NumberOfSeats,
		})
	}

	slices.SortStableFunc(rides, func(a, b models.Ride) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return models.CompareIDs(a.ID, b.ID)
	})
	return rides, nil
}

// ParseDrivers validates raw drivers and converts them, ordered by id.
func ParseDrivers(raw []RawDriver) ([]models.Driver, error) {
	drivers := make([]models.Driver, 0, len(raw))
	seen := make(map[models.ID]struct{}, len(raw))

	for i, d := range raw {
		if err := validate.Struct(d); err != nil {
			return nil, validationError("driver", i, d.DriverID, err)
		}
		if _, dup := seen[d.DriverID]; dup {
			return nil, &InputError{Kind: "driver", Index: i, ID: d.DriverID, Field: "driverId", Reason: "duplicate id"}
		}
		seen[d.DriverID] = struct{}{}

		drivers = append(drivers, models.Driver{
			ID:       d.DriverID,
			Home:     d.CityCoords.coords(),
			Seats:    d.NumberOfSeats,
			FuelCost: d.FuelCost,
		})
	}

	slices.SortStableFunc(drivers, func(a, b models.Driver) int {
		return models.CompareIDs(a.ID, b.ID)
	})
	return drivers, nil
}

// DecodeRides parses a JSON array of ride records.
func DecodeRides(data []byte) ([]models.Ride, error) {
	var raw []RawRide
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &InputError{Kind: "ride", Index: -1, Reason: decodeReason(err)}
	}
	return ParseRides(raw)
}

// DecodeDrivers parses a JSON array of driver records.
func DecodeDrivers(data []byte) ([]models.Driver, error) {
	var raw []RawDriver
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &InputError{Kind: "driver", Index: -1, Reason: decodeReason(err)}
	}
	return ParseDrivers(raw)
}

// LoadRides reads and parses a rides JSON file.
func LoadRides(path string) ([]models.Ride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &InputError{Kind: "ride", Index: -1, Reason: fmt.Sprintf("read %q: %v", path, err)}
	}
	return DecodeRides(data)
}

// LoadDrivers reads and parses a drivers JSON file.
func LoadDrivers(path string) ([]models.Driver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &InputError{Kind: "driver", Index: -1, Reason: fmt.Sprintf("read %q: %v", path, err)}
	}
	return DecodeDrivers(data)
}

func parseClock(date, clock string) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if _, err := time.Parse(dateLayout, date); err != nil {
		return time.Time{}, fmt.Errorf("date %q is not YYYY-MM-DD", date)
	}
	t, err := time.Parse(dateLayout+" "+timeLayout, date+" "+clock)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(dateLayout+" "+timeLayout+":05", date+" "+clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q is not HH:MM", clock)
	}
	return t, nil
}

func decodeReason(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return "field " + typeErr.Field + " has type " + typeErr.Value + ", want " + typeErr.Type.String()
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return "malformed json at offset " + strconv.FormatInt(syntaxErr.Offset, 10)
	}
	return err.Error()
}
