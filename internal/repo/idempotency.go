package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ReserveIdempotencyKey claims (caller, operation, token) for execution.
// A fresh reservation returns fresh=true. If the tuple already exists the
// stored record is returned instead: a non-nil Result is a completed
// execution to replay, a nil Result means a concurrent execution is still in
// flight. The primary key closes the race between two concurrent reservations.
func (r *PostgresRepository) ReserveIdempotencyKey(ctx context.Context, callerID, operation, token string) (*IdempotencyRecord, bool, error) {
	const insert = `
INSERT INTO idempotency_records (caller_id, operation, token)
VALUES ($1, $2, $3)
ON CONFLICT (caller_id, operation, token) DO NOTHING
RETURNING caller_id, operation, token, result, created_at;`

	var rec IdempotencyRecord
	err := r.q(ctx).QueryRow(ctx, insert, callerID, operation, token).
		Scan(&rec.CallerID, &rec.Operation, &rec.Token, &rec.Result, &rec.CreatedAt)
	if err == nil {
		return &rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
	}

	const fetch = `
SELECT caller_id, operation, token, result, created_at
FROM idempotency_records
WHERE caller_id = $1 AND operation = $2 AND token = $3;`
	if err := r.q(ctx).QueryRow(ctx, fetch, callerID, operation, token).
		Scan(&rec.CallerID, &rec.Operation, &rec.Token, &rec.Result, &rec.CreatedAt); err != nil {
		return nil, false, fmt.Errorf("fetch idempotency record: %w", noRows(err))
	}
	return &rec, false, nil
}

// CompleteIdempotencyKey records the successful result against the token.
func (r *PostgresRepository) CompleteIdempotencyKey(ctx context.Context, callerID, operation, token string, result []byte) error {
	const q = `
UPDATE idempotency_records
SET result = $4
WHERE caller_id = $1 AND operation = $2 AND token = $3;`
	ct, err := r.q(ctx).Exec(ctx, q, callerID, operation, token, result)
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseIdempotencyKey drops a reservation after a failed execution, so a
// retry with the same token may re-attempt. Failures are never replayed.
func (r *PostgresRepository) ReleaseIdempotencyKey(ctx context.Context, callerID, operation, token string) error {
	const q = `
DELETE FROM idempotency_records
WHERE caller_id = $1 AND operation = $2 AND token = $3 AND result IS NULL;`
	if _, err := r.q(ctx).Exec(ctx, q, callerID, operation, token); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
