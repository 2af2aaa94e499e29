// Package idempotent makes state-changing operations safe to retry. Every
// guarded call is keyed by (caller, operation, token); the first execution
// records its result and any replay returns that result verbatim without
// re-running side effects.
package idempotent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"nearhand/internal/metrics"
	"nearhand/internal/repo"
)

// Store is the persistence surface the guard needs. Reservations must be
// backed by a storage-level uniqueness constraint: two concurrent reserves of
// the same tuple must resolve to exactly one fresh reservation.
type Store interface {
	ReserveIdempotencyKey(ctx context.Context, callerID, operation, token string) (*repo.IdempotencyRecord, bool, error)
	CompleteIdempotencyKey(ctx context.Context, callerID, operation, token string, result []byte) error
	ReleaseIdempotencyKey(ctx context.Context, callerID, operation, token string) error
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Guard wraps operations with the idempotency protocol.
type Guard struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New returns a Guard over the given store.
func New(store Store, logger *slog.Logger, m *metrics.Metrics) *Guard {
	return &Guard{
		store:   store,
		logger:  logger.With("component", "idempotency"),
		metrics: m,
	}
}

// Do executes fn at most once per (caller, operation, token). The returned
// payload is the JSON-encoded result, with replayed=true when it came from a
// prior execution. A reservation with no recorded result means another
// execution is in flight and surfaces repo.ErrOperationInFlight.
//
// fn and the recording of its result run in one storage transaction, so an
// effect can never commit without its result: they land together or roll back
// together. When the transaction fails the reservation is released so a retry
// may re-attempt; failures are never cached.
func (g *Guard) Do(ctx context.Context, callerID, operation, token string, fn func(ctx context.Context) (any, error)) (json.RawMessage, bool, error) {
	rec, fresh, err := g.store.ReserveIdempotencyKey(ctx, callerID, operation, token)
	if err != nil {
		return nil, false, fmt.Errorf("reserve token: %w", err)
	}

	if !fresh {
		if rec.Result == nil {
			return nil, false, repo.ErrOperationInFlight
		}
		g.logger.Debug("replaying idempotent result", "operation", operation, "caller", callerID)
		if g.metrics != nil {
			g.metrics.IdempotentReplays.WithLabelValues(operation).Inc()
		}
		return json.RawMessage(rec.Result), true, nil
	}

	var payload json.RawMessage
	err = g.store.WithTx(ctx, func(ctx context.Context) error {
		result, err := fn(ctx)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		if err := g.store.CompleteIdempotencyKey(ctx, callerID, operation, token, encoded); err != nil {
			return fmt.Errorf("record result: %w", err)
		}
		payload = encoded
		return nil
	})
	if err != nil {
		// Nothing committed; free the token so a retry may re-attempt.
		if relErr := g.store.ReleaseIdempotencyKey(ctx, callerID, operation, token); relErr != nil {
			g.logger.Error("failed releasing idempotency token", "operation", operation, "error", relErr)
		}
		return nil, false, err
	}

	return payload, false, nil
}
