package dispatch

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"ride-dispatcher/internal/distance"
	"ride-dispatcher/internal/models"
)

// Options tunes the matching engine
type Options struct {
	Profile       string
	LookupWorkers int
	HourlyWage    float64
}

// Engine runs the round-based greedy matching of rides to drivers
type Engine struct {
	lookups *lookupPool
	cost    CostModel
	home    *HomeReturnAdvisor
	log     *zap.Logger
}

func NewEngine(provider distance.RouteCostProvider, opts Options, log *zap.Logger) *Engine {
	if opts.Profile == "" {
		opts.Profile = distance.DefaultProfile
	}
	if opts.LookupWorkers < 1 {
		opts.LookupWorkers = 1
	}

	cost := NewCostModel(opts.HourlyWage)
	lookups := &lookupPool{
		provider: provider,
		profile:  opts.Profile,
		workers:  opts.LookupWorkers,
		log:      log,
	}
	return &Engine{
		lookups: lookups,
		cost:    cost,
		home:    &HomeReturnAdvisor{lookups: lookups, cost: cost},
		log:     log,
	}
}

// edge is a candidate edge bound to the live driver and ride it refers to
type edge struct {
	models.CandidateEdge
	driver *models.DriverState
	ride   *models.Ride
}

// DriverSnapshot is a driver's simulated state at the end of a round
type DriverSnapshot struct {
	DriverID models.ID          `json:"driver_id"`
	Location models.Coordinates `json:"location"`
	Clock    models.DriverClock `json:"available_at"`
}

// RoundTrace records what one round of matching did
type RoundTrace struct {
	Round            int                 `json:"round"`
	Expired          int                 `json:"expired"`
	Infeasible       int                 `json:"infeasible"`
	LookupFailures   int                 `json:"lookup_failures"`
	ContentionPasses int                 `json:"contention_passes"`
	Assigned         []models.Assignment `json:"assigned"`
	HomeReturns      []HomeReturn        `json:"home_returns,omitempty"`
	RemainingEdges   int                 `json:"remaining_edges"`
	Drivers          []DriverSnapshot    `json:"drivers"`
}

// Outcome is the engine's result. Assignments are in the order they were finalized.
type Outcome struct {
	Assignments   []models.Assignment
	Drivers       []models.DriverState
	InBetweenCost float64
	Rounds        []RoundTrace
}

// ByDriver groups assignments per driver, preserving assignment order
func (o *Outcome) ByDriver() map[models.ID][]models.Assignment {
	return lo.GroupBy(o.Assignments, func(a models.Assignment) models.ID { return a.DriverID })
}

// Run matches rides to drivers until no feasible candidate edge remains.
// On cancellation it returns the outcome so far together with the context error.
func (e *Engine) Run(ctx context.Context, rides []models.Ride, drivers []models.Driver) (*Outcome, error) {
	return e.run(ctx, e.log, rides, drivers)
}

func (e *Engine) run(ctx context.Context, log *zap.Logger, rides []models.Ride, drivers []models.Driver) (*Outcome, error) {
	states, rideByID, err := prepare(rides, drivers)
	if err != nil {
		return nil, err
	}

	pool, err := bindEdges(GenerateCandidates(rides, drivers), states, rideByID)
	if err != nil {
		return nil, err
	}

	log.Info("[DISPATCH] Starting matching",
		zap.Int("rides", len(rides)),
		zap.Int("drivers", len(drivers)),
		zap.Int("candidate_edges", len(pool)))

	out := &Outcome{}
	sequence := make(map[models.ID]int)

	for round := 1; len(pool) > 0; round++ {
		if err := ctx.Err(); err != nil {
			log.Warn("[DISPATCH] Cancelled between rounds", zap.Int("round", round), zap.Error(err))
			return e.abort(out, states, err)
		}

		trace := RoundTrace{Round: round}

		pool, trace.Expired = expireEdges(pool)
		if len(pool) == 0 {
			out.Rounds = append(out.Rounds, trace)
			break
		}

		pool, err = e.refreshEdges(ctx, log, pool, &trace)
		if err != nil {
			return e.abort(out, states, err)
		}

		sortEdges(pool)
		var chosen []edge
		chosen, pool, trace.ContentionPasses = resolveContention(pool)

		for _, c := range chosen {
			a := models.Assignment{
				DriverID:    c.DriverID,
				RideID:      c.RideID,
				Sequence:    sequence[c.DriverID],
				Round:       round,
				CostToStart: c.CostToStart,
			}
			if ref, ok := referenceTime(c.driver); ok {
				arrival := ref.Add(seconds(c.DurationToStart))
				a.ArrivalAt = &arrival
			}
			sequence[c.DriverID]++
			out.Assignments = append(out.Assignments, a)
			out.InBetweenCost += c.CostToStart
			trace.Assigned = append(trace.Assigned, a)

			c.driver.Location = c.ride.End
			c.driver.Clock = models.AnchoredAt(c.ride.EndTime)
			c.driver.NotBefore = c.ride.EndTime
		}

		if len(pool) > 0 {
			homeCost, returns, err := e.home.Apply(ctx, log, pool)
			if err != nil {
				return e.abort(out, states, err)
			}
			out.InBetweenCost += homeCost
			trace.HomeReturns = returns
		}

		trace.RemainingEdges = len(pool)
		trace.Drivers = snapshotDrivers(states)
		out.Rounds = append(out.Rounds, trace)

		log.Info("[DISPATCH] Round complete",
			zap.Int("round", round),
			zap.Int("assigned", len(trace.Assigned)),
			zap.Int("expired", trace.Expired),
			zap.Int("infeasible", trace.Infeasible),
			zap.Int("lookup_failures", trace.LookupFailures),
			zap.Int("contention_passes", trace.ContentionPasses),
			zap.Int("home_returns", len(trace.HomeReturns)),
			zap.Int("remaining_edges", trace.RemainingEdges))
		if ce := log.Check(zap.DebugLevel, "[DISPATCH] Driver states"); ce != nil {
			ce.Write(zap.Int("round", round), zap.Any("drivers", trace.Drivers))
		}
	}

	out.InBetweenCost = RoundCost(out.InBetweenCost)
	out.Drivers = snapshotStates(states)
	log.Info("[DISPATCH] Matching finished",
		zap.Int("rounds", len(out.Rounds)),
		zap.Int("assignments", len(out.Assignments)),
		zap.Float64("in_between_cost", out.InBetweenCost))
	return out, nil
}

// abort returns partial progress on cancellation and nothing on any other failure
func (e *Engine) abort(out *Outcome, states []*models.DriverState, err error) (*Outcome, error) {
	if isCancellation(err) {
		out.InBetweenCost = RoundCost(out.InBetweenCost)
		out.Drivers = snapshotStates(states)
		return out, err
	}
	return nil, err
}

// prepare builds the mutable driver states and checks the inputs reference each other consistently
func prepare(rides []models.Ride, drivers []models.Driver) ([]*models.DriverState, map[models.ID]*models.Ride, error) {
	rideByID := make(map[models.ID]*models.Ride, len(rides))
	for i := range rides {
		r := &rides[i]
		if r.ID == "" {
			return nil, nil, computationErrorf("setup", "ride at index %d has no id", i)
		}
		if _, dup := rideByID[r.ID]; dup {
			return nil, nil, computationErrorf("setup", "duplicate ride id %q", r.ID)
		}
		if !validPoint(r.Start) || !validPoint(r.End) {
			return nil, nil, computationErrorf("setup", "ride %q has invalid coordinates", r.ID)
		}
		rideByID[r.ID] = r
	}

	states := make([]*models.DriverState, 0, len(drivers))
	seen := make(map[models.ID]bool, len(drivers))
	for i, d := range drivers {
		if d.ID == "" {
			return nil, nil, computationErrorf("setup", "driver at index %d has no id", i)
		}
		if seen[d.ID] {
			return nil, nil, computationErrorf("setup", "duplicate driver id %q", d.ID)
		}
		if !validPoint(d.Home) {
			return nil, nil, computationErrorf("setup", "driver %q has invalid home coordinates", d.ID)
		}
		seen[d.ID] = true
		states = append(states, &models.DriverState{
			Driver:   d,
			Location: d.Home,
			Clock:    models.Unanchored(),
		})
	}
	slices.SortFunc(states, func(a, b *models.DriverState) int {
		return models.CompareIDs(a.Driver.ID, b.Driver.ID)
	})
	return states, rideByID, nil
}

func bindEdges(candidates []models.CandidateEdge, states []*models.DriverState, rideByID map[models.ID]*models.Ride) ([]edge, error) {
	stateByID := lo.SliceToMap(states, func(s *models.DriverState) (models.ID, *models.DriverState) {
		return s.Driver.ID, s
	})

	pool := make([]edge, 0, len(candidates))
	for _, c := range candidates {
		d, ok := stateByID[c.DriverID]
		if !ok {
			return nil, computationErrorf("candidates", "edge references unknown driver %q", c.DriverID)
		}
		r, ok := rideByID[c.RideID]
		if !ok {
			return nil, computationErrorf("candidates", "edge references unknown ride %q", c.RideID)
		}
		pool = append(pool, edge{CandidateEdge: c, driver: d, ride: r})
	}
	return pool, nil
}

func validPoint(c models.Coordinates) bool {
	return !math.IsNaN(c.Lat) && !math.IsNaN(c.Lng) &&
		c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// referenceTime is the earliest moment the driver can set off. Drivers that never
// worked have none and are assumed able to reach any ride.
func referenceTime(s *models.DriverState) (time.Time, bool) {
	if at, ok := s.Clock.Time(); ok {
		return at, true
	}
	if !s.NotBefore.IsZero() {
		return s.NotBefore, true
	}
	return time.Time{}, false
}

func seconds(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

// expireEdges drops edges whose ride starts before the driver is free
func expireEdges(pool []edge) ([]edge, int) {
	kept := lo.Filter(pool, func(e edge, _ int) bool {
		ref, ok := referenceTime(e.driver)
		return !ok || !e.ride.StartTime.Before(ref)
	})
	return kept, len(pool) - len(kept)
}

// refreshEdges looks up travel from each driver's location to the ride start,
// drops edges that fail the lookup or cannot arrive in time, and prices the rest.
func (e *Engine) refreshEdges(ctx context.Context, log *zap.Logger, pool []edge, trace *RoundTrace) ([]edge, error) {
	requests := make([][]models.Coordinates, len(pool))
	for i, ed := range pool {
		requests[i] = []models.Coordinates{ed.driver.Location, ed.ride.Start}
	}

	results, err := e.lookups.resolve(ctx, "refresh", requests)
	if err != nil {
		return nil, err
	}

	kept := make([]edge, 0, len(pool))
	for i, ed := range pool {
		res := results[i]
		if res.failed {
			trace.LookupFailures++
			log.Warn("[DISPATCH] Dropping edge after lookup failure",
				zap.String("driver_id", string(ed.DriverID)),
				zap.String("ride_id", string(ed.RideID)),
				zap.String("reason", res.reason))
			continue
		}

		ed.DistanceToStart = res.distance()
		ed.DurationToStart = res.duration()

		if ref, ok := referenceTime(ed.driver); ok && ref.Add(seconds(ed.DurationToStart)).After(ed.ride.StartTime) {
			trace.Infeasible++
			continue
		}

		ed.CostToStart = e.cost.LegCost(ed.driver.Driver.FuelCost, ed.DistanceToStart, ed.DurationToStart,
			ed.driver.Clock, ed.ride.StartTime)
		kept = append(kept, ed)
	}
	return kept, nil
}

// sortEdges orders by driver, then cost, then ride start, then ride id
func sortEdges(pool []edge) {
	slices.SortStableFunc(pool, func(a, b edge) int {
		if c := models.CompareIDs(a.DriverID, b.DriverID); c != 0 {
			return c
		}
		if a.CostToStart != b.CostToStart {
			if a.CostToStart < b.CostToStart {
				return -1
			}
			return 1
		}
		if c := a.ride.StartTime.Compare(b.ride.StartTime); c != 0 {
			return c
		}
		return models.CompareIDs(a.RideID, b.RideID)
	})
}

// resolveContention picks each driver's cheapest ride. When several drivers want the same
// ride the cheapest wins (lowest driver id on ties), the ride leaves every pool, and the
// losers pick again among what is left. It stops once a pass has no contention.
// pool must be sorted with sortEdges.
func resolveContention(pool []edge) (chosen []edge, remaining []edge, passes int) {
	chosenDriver := make(map[models.ID]bool)
	taken := make(map[models.ID]bool)

	for {
		var picks []edge
		picked := make(map[models.ID]bool)
		for _, ed := range pool {
			if taken[ed.RideID] || chosenDriver[ed.DriverID] || picked[ed.DriverID] {
				continue
			}
			picked[ed.DriverID] = true
			picks = append(picks, ed)
		}
		if len(picks) == 0 {
			break
		}
		passes++

		byRide := lo.GroupBy(picks, func(ed edge) models.ID { return ed.RideID })
		rideIDs := lo.Keys(byRide)
		slices.SortFunc(rideIDs, models.CompareIDs)

		contested := false
		for _, rideID := range rideIDs {
			group := byRide[rideID]
			if len(group) > 1 {
				contested = true
			}
			winner := lo.MinBy(group, func(a, b edge) bool {
				if a.CostToStart != b.CostToStart {
					return a.CostToStart < b.CostToStart
				}
				return models.CompareIDs(a.DriverID, b.DriverID) < 0
			})
			chosen = append(chosen, winner)
			chosenDriver[winner.DriverID] = true
			taken[rideID] = true
		}

		if !contested {
			break
		}
	}

	slices.SortFunc(chosen, func(a, b edge) int { return models.CompareIDs(a.DriverID, b.DriverID) })
	remaining = lo.Filter(pool, func(ed edge, _ int) bool { return !taken[ed.RideID] })
	return chosen, remaining, passes
}

func snapshotDrivers(states []*models.DriverState) []DriverSnapshot {
	return lo.Map(states, func(s *models.DriverState, _ int) DriverSnapshot {
		return DriverSnapshot{DriverID: s.Driver.ID, Location: s.Location, Clock: s.Clock}
	})
}

func snapshotStates(states []*models.DriverState) []models.DriverState {
	return lo.Map(states, func(s *models.DriverState, _ int) models.DriverState { return *s })
}
