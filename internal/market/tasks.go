package market

import (
	"context"
	"errors"
	"time"

	"nearhand/internal/repo"
)

// ActiveTaskResult reports what currently occupies the caller: an open sent
// request of theirs, or an active task in either role.
type ActiveTaskResult struct {
	Task             *repo.Task `json:"task"`
	PendingRequestID *string    `json:"pending_request_id"`
}

// GetActiveTask resolves the caller's current engagement.
func (s *Service) GetActiveTask(ctx context.Context, callerID string) (*ActiveTaskResult, error) {
	pending, err := s.store.PendingSentRequest(ctx, callerID)
	switch {
	case err == nil:
		return &ActiveTaskResult{PendingRequestID: &pending.ID}, nil
	case errors.Is(err, repo.ErrNotFound):
	default:
		return nil, storeError(err)
	}

	task, err := s.store.ActiveTaskForUser(ctx, callerID)
	switch {
	case err == nil:
		return &ActiveTaskResult{Task: task}, nil
	case errors.Is(err, repo.ErrNotFound):
		return &ActiveTaskResult{}, nil
	default:
		return nil, storeError(err)
	}
}

// StartTask moves the helper's task from accepted to in_progress. The guarded
// transition makes retries converge: a repeat start reads CONFLICT.
func (s *Service) StartTask(ctx context.Context, callerID, taskID string) (*repo.Task, error) {
	start := time.Now()
	task, err := s.startTask(ctx, callerID, taskID)
	s.observe("task.start", start, err)
	return task, err
}

func (s *Service) startTask(ctx context.Context, callerID, taskID string) (*repo.Task, error) {
	task, err := s.store.StartTask(ctx, taskID, callerID)
	if err != nil {
		if errors.Is(err, repo.ErrNoRowsUpdated) {
			return nil, E(CodeConflict, "task not found or cannot be started")
		}
		return nil, storeError(err)
	}
	return task, nil
}

// CompleteResult pairs the completed task with the credit it produced.
type CompleteResult struct {
	Task   *repo.Task        `json:"task"`
	Credit *repo.LedgerEntry `json:"credit"`
}

// CompleteTask finishes the helper's in_progress task and credits the tip to
// their wallet, atomically. Replays with the same token return the recorded
// result and never credit twice.
func (s *Service) CompleteTask(ctx context.Context, callerID, taskID string, proofURL *string, token string) (*CompleteResult, bool, error) {
	start := time.Now()
	result, replayed, err := s.completeTask(ctx, callerID, taskID, proofURL, token)
	s.observe("task.complete", start, err)
	return result, replayed, err
}

func (s *Service) completeTask(ctx context.Context, callerID, taskID string, proofURL *string, token string) (*CompleteResult, bool, error) {
	result, replayed, err := guarded(ctx, s, callerID, "task.complete", token, func(ctx context.Context) (*CompleteResult, error) {
		task, credit, err := s.store.CompleteTask(ctx, taskID, callerID, proofURL, s.now())
		if err != nil {
			if errors.Is(err, repo.ErrNoRowsUpdated) {
				return nil, E(CodeConflict, "task not found or cannot be completed")
			}
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.LedgerEntries.WithLabelValues(credit.Type, credit.Source).Inc()
		}
		return &CompleteResult{Task: task, Credit: credit}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, replayed, nil
}
