package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"ride-dispatcher/internal/database"
	"ride-dispatcher/internal/distance"
	"ride-dispatcher/internal/models"
)

// ErrNoRunStore is returned by Save when the dispatcher has no run repository
var ErrNoRunStore = errors.New("run history is not configured")

// Result is everything a dispatch run produced
type Result struct {
	RunID       string               `json:"runId"`
	CreatedAt   time.Time            `json:"createdAt"`
	Manifest    models.Manifest      `json:"manifest"`
	Cost        models.CostBreakdown `json:"cost"`
	Assignments []models.Assignment  `json:"assignments"`
	Unassigned  []models.ID          `json:"unassigned"`
	Warnings    []string             `json:"warnings"`
	Rounds      []RoundTrace         `json:"rounds"`
	Drivers     []models.DriverState `json:"drivers"`
	RideCount   int                  `json:"rideCount"`
	DriverCount int                  `json:"driverCount"`
}

// Dispatcher runs the engine, prices the outcome and optionally records it
type Dispatcher struct {
	engine     *Engine
	aggregator *ResultAggregator
	runs       database.RunRepository
	runTimeout time.Duration
	log        *zap.Logger
}

// NewDispatcher wires an engine and aggregator around provider. runs may be nil.
func NewDispatcher(provider distance.RouteCostProvider, opts Options, runTimeout time.Duration, runs database.RunRepository, log *zap.Logger) *Dispatcher {
	engine := NewEngine(provider, opts, log)
	return &Dispatcher{
		engine:     engine,
		aggregator: &ResultAggregator{lookups: engine.lookups, cost: engine.cost},
		runs:       runs,
		runTimeout: runTimeout,
		log:        log,
	}
}

// Dispatch assigns rides to drivers and prices the result. If ctx is cancelled, or its deadline
// cuts a route lookup short, the returned Result holds the assignments made so far, priced with
// in-between cost only, alongside the context error.
func (d *Dispatcher) Dispatch(ctx context.Context, rides []models.Ride, drivers []models.Driver) (*Result, error) {
	if d.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.runTimeout)
		defer cancel()
	}

	res := &Result{
		RunID:       uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		Warnings:    []string{},
		RideCount:   len(rides),
		DriverCount: len(drivers),
	}
	log := d.log.With(zap.String("run_id", res.RunID))
	started := time.Now()

	out, err := d.engine.run(ctx, log, rides, drivers)
	if out == nil {
		return nil, err
	}

	res.Assignments = out.Assignments
	res.Rounds = out.Rounds
	res.Drivers = out.Drivers
	res.Unassigned = unassignedRides(rides, out.Assignments)

	if err != nil {
		return stoppedEarly(res, out, err)
	}

	agg, err := d.aggregator.Aggregate(ctx, log, out, rides)
	if err != nil {
		if isCancellation(err) {
			log.Warn("[DISPATCH] Cancelled while pricing", zap.Error(err))
			return stoppedEarly(res, out, err)
		}
		return nil, err
	}
	res.Cost = agg.Cost
	res.Manifest = agg.Manifest
	res.Warnings = append(res.Warnings, agg.Warnings...)

	log.Info("[DISPATCH] Run complete",
		zap.Int("assigned", len(res.Assignments)),
		zap.Int("unassigned", len(res.Unassigned)),
		zap.Float64("total_cost", res.Cost.Total),
		zap.Duration("elapsed", time.Since(started)))
	return res, nil
}

// stoppedEarly prices a partial outcome with in-between cost only
func stoppedEarly(res *Result, out *Outcome, err error) (*Result, error) {
	res.Cost = models.CostBreakdown{InBetween: out.InBetweenCost, Total: out.InBetweenCost}
	res.Manifest = BuildManifest(out.Assignments, out.InBetweenCost)
	res.Warnings = append(res.Warnings, fmt.Sprintf("run stopped early: %v", err))
	return res, err
}

// Save records a result in run history
func (d *Dispatcher) Save(ctx context.Context, res *Result) error {
	if d.runs == nil {
		return ErrNoRunStore
	}

	run := &models.Run{
		ID:          res.RunID,
		CreatedAt:   res.CreatedAt,
		RideCount:   res.RideCount,
		DriverCount: res.DriverCount,
		Rounds:      len(res.Rounds),
		Cost:        res.Cost,
	}
	assignments := lo.Map(res.Assignments, func(a models.Assignment, _ int) models.RunAssignment {
		return models.RunAssignment{
			RunID:       res.RunID,
			DriverID:    a.DriverID,
			Sequence:    a.Sequence,
			RideID:      a.RideID,
			CostToStart: a.CostToStart,
		}
	})

	if err := d.runs.Create(ctx, run, assignments, res.Unassigned); err != nil {
		return fmt.Errorf("failed to save run %s: %w", res.RunID, err)
	}
	d.log.Info("[DISPATCH] Run saved", zap.String("run_id", res.RunID))
	return nil
}

// unassignedRides lists rides absent from every driver's assignments, in ride order
func unassignedRides(rides []models.Ride, assignments []models.Assignment) []models.ID {
	assigned := lo.SliceToMap(assignments, func(a models.Assignment) (models.ID, bool) { return a.RideID, true })
	left := lo.Filter(rides, func(r models.Ride, _ int) bool { return !assigned[r.ID] })
	slices.SortStableFunc(left, func(a, b models.Ride) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return models.CompareIDs(a.ID, b.ID)
	})
	return lo.Map(left, func(r models.Ride, _ int) models.ID { return r.ID })
}
