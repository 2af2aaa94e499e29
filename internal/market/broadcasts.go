package market

import (
	"context"
	"time"

	"nearhand/internal/repo"
)

// CreateBroadcastInput carries the validated fields of a new broadcast. Lat
// and Lng are pointers so an absent coordinate is distinguishable from the
// legitimate (0, 0).
type CreateBroadcastInput struct {
	Type            string
	Message         string
	PriceCents      int64
	Lat             *float64
	Lng             *float64
	LocationContext string
	PlaceName       *string
	PlaceAddress    *string
	DurationMinutes int
}

// broadcastOutcome is the recorded result of broadcast.create; Idempotent
// marks the storage-level duplicate absorption, distinct from a guard replay.
type broadcastOutcome struct {
	Broadcast  *repo.Broadcast `json:"broadcast"`
	Idempotent bool            `json:"idempotent"`
}

// CreateBroadcast publishes a broadcast. The returned flag is true when the
// row already existed for (caller, token): retries are absorbed, never
// rejected, on two layers. The guard replays the recorded payload, and below
// it the unique (user_id, idempotency_key) index returns the original row
// should the guard record be gone.
func (s *Service) CreateBroadcast(ctx context.Context, callerID, token string, in CreateBroadcastInput) (*repo.Broadcast, bool, error) {
	start := time.Now()
	b, idem, err := s.createBroadcast(ctx, callerID, token, in)
	s.observe("broadcast.create", start, err)
	return b, idem, err
}

func (s *Service) createBroadcast(ctx context.Context, callerID, token string, in CreateBroadcastInput) (*repo.Broadcast, bool, error) {
	if !broadcastTypes[in.Type] {
		return nil, false, E(CodeValidation, "type must be need_help or offer_help")
	}
	if len(in.Message) < 1 || len(in.Message) > messageMaxLen {
		return nil, false, E(CodeValidation, "message must be 1-%d characters", messageMaxLen)
	}
	if !broadcastDurations[in.DurationMinutes] {
		return nil, false, E(CodeValidation, "duration_minutes must be 15, 30, 60, or 120")
	}
	if in.Lat == nil || in.Lng == nil {
		return nil, false, E(CodeValidation, "lat and lng required")
	}
	if !locationContexts[in.LocationContext] {
		return nil, false, E(CodeValidation, "location_context must be one of: here_now, heading_to, coming_from, place_specific")
	}
	if in.PriceCents < 0 {
		return nil, false, E(CodeValidation, "price_cents must not be negative")
	}

	expiresAt := s.now().Add(time.Duration(in.DurationMinutes) * time.Minute)

	out, replayed, err := guarded(ctx, s, callerID, "broadcast.create", token, func(ctx context.Context) (broadcastOutcome, error) {
		created, fresh, err := s.store.InsertBroadcast(ctx, repo.Broadcast{
			UserID:          callerID,
			BroadcastType:   in.Type,
			Message:         in.Message,
			PriceCents:      in.PriceCents,
			Lat:             *in.Lat,
			Lng:             *in.Lng,
			LocationContext: in.LocationContext,
			PlaceName:       in.PlaceName,
			PlaceAddress:    in.PlaceAddress,
			IdempotencyKey:  token,
			ExpiresAt:       expiresAt,
		})
		if err != nil {
			return broadcastOutcome{}, err
		}
		if fresh {
			s.invalidateFeed(ctx)
		}
		return broadcastOutcome{Broadcast: created, Idempotent: !fresh}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return out.Broadcast, replayed || out.Idempotent, nil
}

// ListBroadcasts returns the active feed annotated with distance from the
// viewer. The undistanced feed is cached briefly; distances are per viewer
// and always computed on the way out.
func (s *Service) ListBroadcasts(ctx context.Context, callerID string, lat, lng float64) ([]repo.Broadcast, error) {
	broadcasts, err := s.activeFeed(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	for i := range broadcasts {
		broadcasts[i].DistanceMiles = s.distanceMiles(lat, lng, &broadcasts[i].Lat, &broadcasts[i].Lng)
	}
	return broadcasts, nil
}

func (s *Service) activeFeed(ctx context.Context) ([]repo.Broadcast, error) {
	if s.cache == nil || s.feedTTL <= 0 {
		return s.store.ListActiveBroadcasts(ctx, s.now())
	}

	var cached []repo.Broadcast
	hit, err := s.cache.GetJSON(ctx, feedCacheKey, &cached)
	if err != nil {
		s.logger.Warn("feed cache read failed", "error", err)
	}
	if s.metrics != nil {
		result := "miss"
		if hit {
			result = "hit"
		}
		s.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
	if hit {
		return cached, nil
	}

	broadcasts, err := s.store.ListActiveBroadcasts(ctx, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, feedCacheKey, broadcasts, s.feedTTL); err != nil {
		s.logger.Warn("feed cache write failed", "error", err)
	}
	return broadcasts, nil
}

func (s *Service) invalidateFeed(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, feedCacheKey); err != nil {
		s.logger.Warn("feed cache invalidation failed", "error", err)
	}
}

// DeleteBroadcast removes a broadcast; owner only.
func (s *Service) DeleteBroadcast(ctx context.Context, callerID, broadcastID string) error {
	start := time.Now()
	err := s.deleteBroadcast(ctx, callerID, broadcastID)
	s.observe("broadcast.delete", start, err)
	return err
}

func (s *Service) deleteBroadcast(ctx context.Context, callerID, broadcastID string) error {
	broadcast, err := s.store.GetBroadcast(ctx, broadcastID)
	if err != nil {
		return storeError(err)
	}
	if broadcast.UserID != callerID {
		return E(CodeForbidden, "only the owner may delete a broadcast")
	}
	if err := s.store.DeleteBroadcast(ctx, broadcastID); err != nil {
		return storeError(err)
	}
	s.invalidateFeed(ctx)
	return nil
}

// RespondToBroadcast creates a sent request from the responder to the
// broadcast owner.
func (s *Service) RespondToBroadcast(ctx context.Context, callerID, broadcastID string, tipCents int64, token string) (*repo.TaskRequest, bool, error) {
	start := time.Now()
	request, replayed, err := s.respondToBroadcast(ctx, callerID, broadcastID, tipCents, token)
	s.observe("broadcast.respond", start, err)
	return request, replayed, err
}

// The broadcast checks live inside the guarded closure: they depend on state
// that moves under retries (the broadcast expires, the row gets deleted), and
// a retry of a completed call must replay the recorded result rather than
// re-judge the world.
func (s *Service) respondToBroadcast(ctx context.Context, callerID, broadcastID string, tipCents int64, token string) (*repo.TaskRequest, bool, error) {
	if !tipCentsOptions[tipCents] {
		return nil, false, E(CodeValidation, "tip_cents must be 500, 1000, 1500, or 2000")
	}

	return guarded(ctx, s, callerID, "broadcast.respond", token, func(ctx context.Context) (*repo.TaskRequest, error) {
		broadcast, err := s.store.GetBroadcast(ctx, broadcastID)
		if err != nil {
			return nil, storeError(err)
		}
		if broadcast.UserID == callerID {
			return nil, E(CodeForbidden, "cannot respond to your own broadcast")
		}
		if !broadcast.ExpiresAt.After(s.now()) {
			return nil, E(CodeExpired, "broadcast has expired")
		}

		return s.store.InsertRequest(ctx, repo.TaskRequest{
			RequesterID: callerID,
			HelperID:    &broadcast.UserID,
			BroadcastID: &broadcast.ID,
			Message:     broadcast.Message,
			TipCents:    tipCents,
			ExpiresAt:   s.now().Add(requestTTL),
		})
	})
}
