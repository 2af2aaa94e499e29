package market

import (
	"context"
	"errors"
	"time"

	"nearhand/internal/repo"
)

// CreateRequest sends a direct request to a visible helper.
func (s *Service) CreateRequest(ctx context.Context, callerID, helperID, message string, tipCents int64, token string) (*repo.TaskRequest, bool, error) {
	start := time.Now()
	request, replayed, err := s.createRequest(ctx, callerID, helperID, message, tipCents, token)
	s.observe("request.create", start, err)
	return request, replayed, err
}

func (s *Service) createRequest(ctx context.Context, callerID, helperID, message string, tipCents int64, token string) (*repo.TaskRequest, bool, error) {
	if helperID == "" {
		return nil, false, E(CodeValidation, "helper_id required")
	}
	if len(message) < 1 || len(message) > messageMaxLen {
		return nil, false, E(CodeValidation, "message must be 1-%d characters", messageMaxLen)
	}
	if !tipCentsOptions[tipCents] {
		return nil, false, E(CodeValidation, "tip_cents must be 500, 1000, 1500, or 2000")
	}

	// Visibility and proximity move under retries (the helper goes off the
	// move, the window lapses), so they are judged inside the guard: a retry
	// of a completed call replays the recorded request instead.
	return guarded(ctx, s, callerID, "request.create", token, func(ctx context.Context) (*repo.TaskRequest, error) {
		helper, err := s.store.GetUser(ctx, helperID)
		if err != nil {
			if CodeOf(storeError(err)) == CodeNotFound {
				return nil, E(CodeNotFound, "helper not found or not available")
			}
			return nil, storeError(err)
		}
		if !helper.OnTheMove || helper.MoveExpiresAt == nil || !helper.MoveExpiresAt.After(s.now()) {
			return nil, E(CodeNotFound, "helper not found or not available")
		}

		caller, err := s.store.GetUser(ctx, callerID)
		if err != nil {
			return nil, storeError(err)
		}
		if caller.NeighborhoodID == nil || helper.NeighborhoodID == nil || *caller.NeighborhoodID != *helper.NeighborhoodID {
			return nil, E(CodeForbidden, "helper is not in your neighborhood")
		}
		if caller.LastLat != nil && caller.LastLng != nil && helper.LastLat != nil && helper.LastLng != nil {
			if s.distanceMiles(*caller.LastLat, *caller.LastLng, helper.LastLat, helper.LastLng) > float64(caller.RadiusMiles) {
				return nil, E(CodeForbidden, "helper is outside your %d mile radius", caller.RadiusMiles)
			}
		}

		return s.store.InsertRequest(ctx, repo.TaskRequest{
			RequesterID: callerID,
			HelperID:    &helperID,
			Message:     message,
			TipCents:    tipCents,
			ExpiresAt:   s.now().Add(requestTTL),
		})
	})
}

// ListIncomingRequests returns requests directed at the caller.
func (s *Service) ListIncomingRequests(ctx context.Context, callerID, status string) ([]repo.TaskRequest, error) {
	if status == "" {
		status = repo.RequestSent
	}
	switch status {
	case repo.RequestSent, repo.RequestAccepted, repo.RequestDeclined, repo.RequestExpired:
	default:
		return nil, E(CodeValidation, "unknown request status %q", status)
	}
	requests, err := s.store.ListIncomingRequests(ctx, callerID, status)
	if err != nil {
		return nil, storeError(err)
	}
	return requests, nil
}

// AcceptResult pairs the transitioned request with the task it spawned.
type AcceptResult struct {
	Request *repo.TaskRequest `json:"request"`
	Task    *repo.Task        `json:"task"`
}

// AcceptRequest performs the atomic accept transition: request to accepted
// and a task inserted, both or neither. Retries after success read CONFLICT
// and re-fetch; the transition itself can never half-apply or double-apply.
func (s *Service) AcceptRequest(ctx context.Context, callerID, requestID string) (*AcceptResult, error) {
	start := time.Now()
	result, err := s.acceptRequest(ctx, callerID, requestID)
	s.observe("request.accept", start, err)
	return result, err
}

func (s *Service) acceptRequest(ctx context.Context, callerID, requestID string) (*AcceptResult, error) {
	request, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, storeError(err)
	}
	if request.HelperID == nil || *request.HelperID != callerID {
		return nil, E(CodeForbidden, "you are not the helper for this request")
	}
	if request.Status != repo.RequestSent {
		return nil, E(CodeConflict, "request has already been processed")
	}

	accepted, task, err := s.store.AcceptRequest(ctx, requestID, callerID)
	if err != nil {
		if errors.Is(err, repo.ErrNoRowsUpdated) {
			// Lost the race between the read above and the transition.
			return nil, E(CodeConflict, "request has already been processed")
		}
		return nil, storeError(err)
	}
	return &AcceptResult{Request: accepted, Task: task}, nil
}

// DeclineRequest moves a sent request to declined; target helper only.
func (s *Service) DeclineRequest(ctx context.Context, callerID, requestID, token string) (*repo.TaskRequest, bool, error) {
	start := time.Now()
	request, replayed, err := s.declineRequest(ctx, callerID, requestID, token)
	s.observe("request.decline", start, err)
	return request, replayed, err
}

func (s *Service) declineRequest(ctx context.Context, callerID, requestID, token string) (*repo.TaskRequest, bool, error) {
	return guarded(ctx, s, callerID, "request.decline", token, func(ctx context.Context) (*repo.TaskRequest, error) {
		request, err := s.store.DeclineRequest(ctx, requestID, callerID)
		if errors.Is(err, repo.ErrNoRowsUpdated) {
			return nil, E(CodeNotFound, "request not found or you are not the helper")
		}
		return request, err
	})
}

// CancelRequest lets the requester withdraw their own sent request.
func (s *Service) CancelRequest(ctx context.Context, callerID, requestID, token string) (*repo.TaskRequest, bool, error) {
	start := time.Now()
	request, replayed, err := s.cancelRequest(ctx, callerID, requestID, token)
	s.observe("request.cancel", start, err)
	return request, replayed, err
}

func (s *Service) cancelRequest(ctx context.Context, callerID, requestID, token string) (*repo.TaskRequest, bool, error) {
	return guarded(ctx, s, callerID, "request.cancel", token, func(ctx context.Context) (*repo.TaskRequest, error) {
		request, err := s.store.CancelRequest(ctx, requestID, callerID)
		if errors.Is(err, repo.ErrNoRowsUpdated) {
			return nil, E(CodeNotFound, "request not found or cannot be cancelled")
		}
		return request, err
	})
}
