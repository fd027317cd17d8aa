package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ride-dispatcher/internal/distance"
	"ride-dispatcher/internal/models"
)

// routeResult is the outcome of one waypoint lookup. failed means the route is
// unavailable and whatever depends on it is infeasible.
type routeResult struct {
	legs   []distance.Leg
	failed bool
	reason string
}

func (r routeResult) distance() float64 { return distance.TotalDistance(r.legs) }
func (r routeResult) duration() float64 { return distance.TotalDuration(r.legs) }

// lookupPool resolves a batch of routes through the provider with bounded concurrency.
// Identical waypoint lists within a batch are requested once.
type lookupPool struct {
	provider distance.RouteCostProvider
	profile  string
	workers  int
	log      *zap.Logger
}

// isCancellation reports whether err stems from a cancelled or expired context
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func routeKey(waypoints []models.Coordinates) string {
	parts := make([]string, len(waypoints))
	for i, w := range waypoints {
		parts[i] = w.LngLat()
	}
	return strings.Join(parts, ";")
}

// resolve returns one result per request, in request order. Route lookup failures are reported
// in the results; cancellation, malformed provider output and any other provider error abort the batch.
func (p *lookupPool) resolve(ctx context.Context, stage string, requests [][]models.Coordinates) ([]routeResult, error) {
	index := make(map[string]int)
	var unique [][]models.Coordinates
	slot := make([]int, len(requests))
	for i, wp := range requests {
		if len(wp) < 2 {
			return nil, computationErrorf(stage, "route request %d has %d waypoint(s)", i, len(wp))
		}
		key := routeKey(wp)
		pos, ok := index[key]
		if !ok {
			pos = len(unique)
			index[key] = pos
			unique = append(unique, wp)
		}
		slot[i] = pos
	}

	results := make([]routeResult, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, wp := range unique {
		g.Go(func() error {
			legs, err := p.provider.GetRoute(gctx, p.profile, wp)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				if isCancellation(err) {
					return err
				}
				if !distance.IsLookupFailure(err) {
					p.log.Error("[ROUTING] Provider failed",
						zap.String("stage", stage), zap.String("route", routeKey(wp)), zap.Error(err))
					return fmt.Errorf("%s lookup: %w", stage, err)
				}
				results[i] = routeResult{failed: true, reason: err.Error()}
				return nil
			}
			if err := validateLegs(stage, wp, legs); err != nil {
				return err
			}
			results[i] = routeResult{legs: legs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]routeResult, len(requests))
	for i, pos := range slot {
		out[i] = results[pos]
	}

	p.log.Debug("[ROUTING] Resolved lookups",
		zap.String("stage", stage),
		zap.Int("requested", len(requests)),
		zap.Int("unique", len(unique)))
	return out, nil
}

func validateLegs(stage string, waypoints []models.Coordinates, legs []distance.Leg) error {
	if len(legs) != len(waypoints)-1 {
		return computationErrorf(stage, "provider returned %d legs for %d waypoints", len(legs), len(waypoints))
	}
	for i, l := range legs {
		if !finiteNonNegative(l.DistanceMeters) || !finiteNonNegative(l.DurationSecs) {
			return computationErrorf(stage, "leg %d of %s has invalid values (distance=%v duration=%v)",
				i, routeKey(waypoints), l.DistanceMeters, l.DurationSecs)
		}
	}
	return nil
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
