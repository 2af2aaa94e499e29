// Package market implements the marketplace state machines: broadcasts,
// requests, tasks and the wallet ledger. Every state-changing operation
// validates before any write and runs under the idempotency guard unless its
// transition is naturally safe to retry.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"nearhand/internal/cache"
	"nearhand/internal/geo"
	"nearhand/internal/idempotent"
	"nearhand/internal/metrics"
	"nearhand/internal/repo"
)

const (
	messageMaxLen   = 280
	firstNameMaxLen = 40

	// Sent requests expire 15 minutes after creation.
	requestTTL = 15 * time.Minute

	feedCacheKey = "broadcasts:active"

	// Users whose location matches no neighborhood land here.
	defaultNeighborhoodID = "demo_neighborhood"
)

// Enumerated input values. Anything outside these sets is rejected before any
// write happens.
var (
	broadcastTypes     = set(repo.BroadcastNeedHelp, repo.BroadcastOfferHelp)
	locationContexts   = set(repo.ContextHereNow, repo.ContextHeadingTo, repo.ContextComingFrom, repo.ContextPlaceSpecific)
	broadcastDurations = map[int]bool{15: true, 30: true, 60: true, 120: true}
	movementDurations  = map[int]bool{30: true, 60: true, 90: true, 120: true}
	movementDirections = set("out", "home")
	devicePlatforms    = set("ios", "android", "web")
	tipCentsOptions    = map[int64]bool{500: true, 1000: true, 1500: true, 2000: true}
	radiusMilesOptions = map[int]bool{1: true, 2: true, 3: true}
)

func set(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// Config carries service tuning knobs.
type Config struct {
	// FeedCacheTTL bounds staleness of the cached broadcast feed. Zero
	// disables caching.
	FeedCacheTTL time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Service coordinates storage, the idempotency guard and the feed cache.
type Service struct {
	store   repo.Repository
	guard   *idempotent.Guard
	cache   *cache.Redis
	metrics *metrics.Metrics
	logger  *slog.Logger
	feedTTL time.Duration
	now     func() time.Time
}

// New wires a Service. The cache may be nil; the feed then always hits
// storage.
func New(store repo.Repository, guard *idempotent.Guard, redisCache *cache.Redis, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:   store,
		guard:   guard,
		cache:   redisCache,
		metrics: m,
		logger:  logger.With("component", "market"),
		feedTTL: cfg.FeedCacheTTL,
		now:     now,
	}
}

// observe records the operation outcome counters and latency.
func (s *Service) observe(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(CodeOf(err))
	}
	s.metrics.Operations.WithLabelValues(operation, outcome).Inc()
	s.metrics.OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// guarded runs fn at most once per (caller, operation, token) and decodes the
// recorded payload, replayed or fresh, into T.
func guarded[T any](ctx context.Context, s *Service, callerID, operation, token string, fn func(ctx context.Context) (T, error)) (T, bool, error) {
	var zero T
	if token == "" {
		return zero, false, E(CodeValidation, "idempotency token required")
	}

	payload, replayed, err := s.guard.Do(ctx, callerID, operation, token, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, false, storeError(err)
	}

	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return zero, false, fmt.Errorf("decode %s result: %w", operation, err)
	}
	return out, replayed, nil
}

func (s *Service) distanceMiles(lat1, lng1 float64, lat2, lng2 *float64) float64 {
	if lat2 == nil || lng2 == nil {
		return 0
	}
	return geo.Miles(lat1, lng1, *lat2, *lng2)
}
