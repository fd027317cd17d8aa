package distance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ride-dispatcher/internal/database"
	"ride-dispatcher/internal/models"
)

const (
	DefaultBaseURL      = "http://router.project-osrm.org"
	DefaultProfile      = "driving"
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 60 * time.Second
)

// Config tunes the OSRM client
type Config struct {
	BaseURL        string
	MaxAttempts    int
	RetryBackoff   time.Duration
	RequestTimeout time.Duration
	// RateLimit caps requests per second to the backend. Zero disables limiting.
	RateLimit float64
}

type osrmRouter struct {
	baseURL     string
	httpClient  *http.Client
	cache       database.DistanceCacheRepository
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
	log         *zap.Logger
}

type osrmRouteResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Legs []Leg `json:"legs"`
	} `json:"routes"`
}

// NewOSRMRouter creates an OSRM route-service client with leg caching
func NewOSRMRouter(cfg Config, cache database.DistanceCacheRepository, log *zap.Logger) RouteCostProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &osrmRouter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		cache:       cache,
		limiter:     limiter,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.RetryBackoff,
		log:         log,
	}
}

func (c *osrmRouter) GetRoute(ctx context.Context, profile string, waypoints []models.Coordinates) ([]Leg, error) {
	if len(waypoints) < 2 {
		return nil, ErrTooFewWaypoints
	}
	if profile == "" {
		profile = DefaultProfile
	}

	if legs, ok := c.cachedLegs(ctx, waypoints); ok {
		return legs, nil
	}

	c.log.Debug("[OSRM] Cache miss", zap.Int("waypoints", len(waypoints)), zap.String("profile", profile))

	legs, err := c.fetchRoute(ctx, profile, waypoints)
	if err != nil {
		return nil, err
	}

	c.storeLegs(ctx, waypoints, legs)
	return legs, nil
}

// cachedLegs serves a route from cache only when every leg is known
func (c *osrmRouter) cachedLegs(ctx context.Context, waypoints []models.Coordinates) ([]Leg, bool) {
	legs := make([]Leg, len(waypoints)-1)
	for i := 0; i < len(waypoints)-1; i++ {
		origin, dest := waypoints[i], waypoints[i+1]
		if origin.SamePoint(dest) {
			continue
		}
		if c.cache == nil {
			return nil, false
		}

		entry, err := c.cache.Get(ctx, origin, dest)
		if err != nil {
			c.log.Warn("[CACHE] Lookup failed, treating as miss", zap.Error(err))
			return nil, false
		}
		if entry == nil {
			return nil, false
		}
		legs[i] = Leg{DistanceMeters: entry.DistanceMeters, DurationSecs: entry.DurationSecs}
	}
	return legs, true
}

func (c *osrmRouter) storeLegs(ctx context.Context, waypoints []models.Coordinates, legs []Leg) {
	if c.cache == nil {
		return
	}

	var entries []models.DistanceCacheEntry
	for i, leg := range legs {
		origin, dest := waypoints[i], waypoints[i+1]
		if origin.SamePoint(dest) {
			continue
		}
		entries = append(entries, models.DistanceCacheEntry{
			Origin:         origin,
			Destination:    dest,
			DistanceMeters: leg.DistanceMeters,
			DurationSecs:   leg.DurationSecs,
		})
	}

	if len(entries) == 0 {
		return
	}
	if err := c.cache.SetBatch(ctx, entries); err != nil {
		c.log.Warn("[CACHE] Failed to store legs", zap.Int("legs", len(entries)), zap.Error(err))
	}
}

func (c *osrmRouter) routeURL(profile string, waypoints []models.Coordinates) string {
	coords := make([]string, len(waypoints))
	for i, p := range waypoints {
		coords[i] = p.LngLat()
	}
	return fmt.Sprintf("%s/route/v1/%s/%s?overview=false", c.baseURL, profile, strings.Join(coords, ";"))
}

// fetchRoute queries the backend, retrying transport failures and non-200 responses
func (c *osrmRouter) fetchRoute(ctx context.Context, profile string, waypoints []models.Coordinates) ([]Leg, error) {
	queryURL := c.routeURL(profile, waypoints)

	var lastReason string
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, limiterError(ctx, err)
		}

		legs, retry, err := c.doRequest(ctx, queryURL, waypoints)
		if err == nil {
			return legs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastReason = err.Error()
		if !retry {
			return nil, &RouteLookupError{Waypoints: waypoints, Attempts: attempt, Reason: lastReason}
		}

		c.log.Warn("[OSRM] Request failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
			zap.String("reason", lastReason))

		if attempt < c.maxAttempts {
			if err := sleepContext(ctx, c.backoff); err != nil {
				return nil, err
			}
		}
	}

	c.log.Error("[OSRM] Giving up on route", zap.Int("attempts", c.maxAttempts), zap.String("reason", lastReason))
	return nil, &RouteLookupError{Waypoints: waypoints, Attempts: c.maxAttempts, Reason: lastReason}
}

// doRequest performs one attempt. retry reports whether a failure is worth another attempt.
func (c *osrmRouter) doRequest(ctx context.Context, queryURL string, waypoints []models.Coordinates) (legs []Leg, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, true, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var osrmResp osrmRouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&osrmResp); err != nil {
		return nil, true, fmt.Errorf("decode response: %w", err)
	}

	// some OSRM-compatible backends omit code on success
	if osrmResp.Code != "" && osrmResp.Code != "Ok" {
		return nil, false, fmt.Errorf("OSRM error: %s %s", osrmResp.Code, osrmResp.Message)
	}
	if len(osrmResp.Routes) == 0 {
		return nil, false, fmt.Errorf("OSRM returned no routes")
	}

	legs = osrmResp.Routes[0].Legs
	if len(legs) != len(waypoints)-1 {
		return nil, false, fmt.Errorf("OSRM returned %d legs for %d waypoints", len(legs), len(waypoints))
	}
	return legs, false, nil
}

// limiterError maps a limiter refusal to a context error. Wait refuses up front when the
// next token would arrive after the deadline, before ctx itself has expired.
func limiterError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("osrm rate limiter: %w: %w", context.DeadlineExceeded, err)
	}
	return fmt.Errorf("osrm rate limiter: %w", err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
