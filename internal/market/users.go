package market

import (
	"context"
	"sort"
	"time"

	"nearhand/internal/geo"
	"nearhand/internal/repo"
)

// GetMe returns the caller's profile.
func (s *Service) GetMe(ctx context.Context, callerID string) (*repo.User, error) {
	user, err := s.store.GetUser(ctx, callerID)
	if err != nil {
		return nil, storeError(err)
	}
	return user, nil
}

// UpdateProfile overwrites display fields. Exempt from the idempotency guard:
// repeating an overwrite converges on the same state.
func (s *Service) UpdateProfile(ctx context.Context, callerID, firstName string, profilePhoto *string) (*repo.User, error) {
	start := time.Now()
	user, err := s.updateProfile(ctx, callerID, firstName, profilePhoto)
	s.observe("user.profile", start, err)
	return user, err
}

func (s *Service) updateProfile(ctx context.Context, callerID, firstName string, profilePhoto *string) (*repo.User, error) {
	if len(firstName) < 1 || len(firstName) > firstNameMaxLen {
		return nil, E(CodeValidation, "first_name must be 1-%d characters", firstNameMaxLen)
	}
	user, err := s.store.UpdateProfile(ctx, callerID, firstName, profilePhoto)
	if err != nil {
		return nil, storeError(err)
	}
	return user, nil
}

// Heartbeat records the caller's latest location.
func (s *Service) Heartbeat(ctx context.Context, callerID string, lat, lng float64) error {
	start := time.Now()
	err := storeError(s.store.UpdateLocation(ctx, callerID, lat, lng))
	s.observe("user.heartbeat", start, err)
	return err
}

// UpdateRadius sets the caller's search radius.
func (s *Service) UpdateRadius(ctx context.Context, callerID string, radiusMiles int) (*repo.User, error) {
	if !radiusMilesOptions[radiusMiles] {
		return nil, E(CodeValidation, "radius_miles must be 1, 2, or 3")
	}
	user, err := s.store.UpdateRadius(ctx, callerID, radiusMiles)
	if err != nil {
		return nil, storeError(err)
	}
	return user, nil
}

// UpdateNotifications toggles push notifications.
func (s *Service) UpdateNotifications(ctx context.Context, callerID string, enabled bool) (*repo.User, error) {
	user, err := s.store.UpdateNotifications(ctx, callerID, enabled)
	if err != nil {
		return nil, storeError(err)
	}
	return user, nil
}

// AssignNeighborhood places the caller into the first neighborhood whose
// circle contains the location, falling back to the default when none does.
func (s *Service) AssignNeighborhood(ctx context.Context, callerID string, lat, lng float64) (*repo.User, error) {
	hoods, err := s.store.ListNeighborhoods(ctx)
	if err != nil {
		return nil, storeError(err)
	}

	assigned := defaultNeighborhoodID
	for _, hood := range hoods {
		if geo.Miles(lat, lng, hood.CenterLat, hood.CenterLng) <= hood.RadiusMiles {
			assigned = hood.ID
			break
		}
	}

	user, err := s.store.SetNeighborhood(ctx, callerID, assigned)
	if err != nil {
		return nil, storeError(err)
	}
	return user, nil
}

// StartMovement opens an availability window. The window self-expires; the
// background sweep clears lapsed flags for list queries that cannot filter.
func (s *Service) StartMovement(ctx context.Context, callerID, direction string, durationMinutes int) (*repo.User, error) {
	start := time.Now()
	user, err := s.startMovement(ctx, callerID, direction, durationMinutes)
	s.observe("user.movement_start", start, err)
	return user, err
}

func (s *Service) startMovement(ctx context.Context, callerID, direction string, durationMinutes int) (*repo.User, error) {
	if !movementDirections[direction] {
		return nil, E(CodeValidation, "direction must be out or home")
	}
	if !movementDurations[durationMinutes] {
		return nil, E(CodeValidation, "duration_minutes must be 30, 60, 90, or 120")
	}

	expiresAt := s.now().Add(time.Duration(durationMinutes) * time.Minute)
	user, err := s.store.SetMovement(ctx, callerID, true, &direction, &expiresAt)
	if err != nil {
		return nil, storeError(err)
	}
	return user, nil
}

// StopMovement closes the availability window early.
func (s *Service) StopMovement(ctx context.Context, callerID string) (*repo.User, error) {
	user, err := s.store.SetMovement(ctx, callerID, false, nil, nil)
	if err != nil {
		return nil, storeError(err)
	}
	return user, nil
}

// RegisterDevice upserts a push target for the caller.
func (s *Service) RegisterDevice(ctx context.Context, callerID, pushToken, platform string) (*repo.Device, error) {
	if pushToken == "" {
		return nil, E(CodeValidation, "push_token required")
	}
	if !devicePlatforms[platform] {
		return nil, E(CodeValidation, "push_platform must be ios, android, or web")
	}
	device, err := s.store.UpsertDevice(ctx, repo.Device{
		UserID:    callerID,
		PushToken: pushToken,
		Platform:  platform,
	})
	if err != nil {
		return nil, storeError(err)
	}
	return device, nil
}

// ListNearbyHelpers returns on-the-move neighbors in the caller's
// neighborhood, inside the caller's radius, nearest first.
func (s *Service) ListNearbyHelpers(ctx context.Context, callerID string, lat, lng float64) ([]repo.NearbyHelper, error) {
	caller, err := s.store.GetUser(ctx, callerID)
	if err != nil {
		return nil, storeError(err)
	}
	if caller.NeighborhoodID == nil {
		return []repo.NearbyHelper{}, nil
	}

	helpers, err := s.store.ListOnTheMove(ctx, *caller.NeighborhoodID, callerID, s.now())
	if err != nil {
		return nil, storeError(err)
	}

	visible := make([]repo.NearbyHelper, 0, len(helpers))
	for _, h := range helpers {
		h.DistanceMiles = s.distanceMiles(lat, lng, h.LastLat, h.LastLng)
		if h.DistanceMiles > float64(caller.RadiusMiles) {
			continue
		}
		visible = append(visible, h)
	}
	sort.Slice(visible, func(i, j int) bool {
		return visible[i].DistanceMiles < visible[j].DistanceMiles
	})
	return visible, nil
}
