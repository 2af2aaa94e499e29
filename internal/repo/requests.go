package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const requestColumns = `id, requester_id, helper_id, broadcast_id, message, tip_cents,
       status, created_at, expires_at`

func scanRequest(row interface{ Scan(...any) error }) (*TaskRequest, error) {
	var tr TaskRequest
	if err := row.Scan(
		&tr.ID, &tr.RequesterID, &tr.HelperID, &tr.BroadcastID, &tr.Message,
		&tr.TipCents, &tr.Status, &tr.CreatedAt, &tr.ExpiresAt,
	); err != nil {
		return nil, err
	}
	return &tr, nil
}

// InsertRequest stores a new task request in status sent.
func (r *PostgresRepository) InsertRequest(ctx context.Context, request TaskRequest) (*TaskRequest, error) {
	const q = `
INSERT INTO task_requests (requester_id, helper_id, broadcast_id, message, tip_cents, status, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + requestColumns + `;`
	tr, err := scanRequest(r.q(ctx).QueryRow(ctx, q,
		request.RequesterID, request.HelperID, request.BroadcastID,
		request.Message, request.TipCents, RequestSent, request.ExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}
	return tr, nil
}

// GetRequest loads a request by id.
func (r *PostgresRepository) GetRequest(ctx context.Context, id string) (*TaskRequest, error) {
	const q = `SELECT ` + requestColumns + ` FROM task_requests WHERE id = $1;`
	tr, err := scanRequest(r.q(ctx).QueryRow(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("get request: %w", noRows(err))
	}
	return tr, nil
}

// ListIncomingRequests returns requests directed at the helper, newest first.
func (r *PostgresRepository) ListIncomingRequests(ctx context.Context, helperID, status string) ([]TaskRequest, error) {
	const q = `
SELECT ` + requestColumns + `
FROM task_requests
WHERE helper_id = $1 AND status = $2
ORDER BY created_at DESC;`
	rows, err := r.q(ctx).Query(ctx, q, helperID, status)
	if err != nil {
		return nil, fmt.Errorf("list incoming requests: %w", err)
	}
	defer rows.Close()

	var requests []TaskRequest
	for rows.Next() {
		tr, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, *tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return requests, nil
}

// PendingSentRequest returns the requester's open request, if any.
func (r *PostgresRepository) PendingSentRequest(ctx context.Context, requesterID string) (*TaskRequest, error) {
	const q = `
SELECT ` + requestColumns + `
FROM task_requests
WHERE requester_id = $1 AND status = $2
ORDER BY created_at DESC
LIMIT 1;`
	tr, err := scanRequest(r.q(ctx).QueryRow(ctx, q, requesterID, RequestSent))
	if err != nil {
		return nil, fmt.Errorf("pending sent request: %w", noRows(err))
	}
	return tr, nil
}

// AcceptRequest performs the atomic accept transition: the request moves
// sent -> accepted and a task row is inserted, in one transaction. Both
// writes land or neither does. The guarded UPDATE tolerates concurrent
// accepts of the same request (second one matches nothing), and the partial
// unique index on tasks rejects a second active task for the same helper.
func (r *PostgresRepository) AcceptRequest(ctx context.Context, requestID, helperID string) (*TaskRequest, *Task, error) {
	var request *TaskRequest
	var task *Task

	err := r.WithTx(ctx, func(ctx context.Context) error {
		const update = `
UPDATE task_requests
SET status = $3
WHERE id = $1 AND helper_id = $2 AND status = $4
RETURNING ` + requestColumns + `;`
		tr, err := scanRequest(r.q(ctx).QueryRow(ctx, update, requestID, helperID, RequestAccepted, RequestSent))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNoRowsUpdated
			}
			return fmt.Errorf("accept request: %w", err)
		}

		const insert = `
INSERT INTO tasks (requester_id, helper_id, request_id, description, tip_cents, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, requester_id, helper_id, request_id, description, tip_cents, status, proof_url, created_at, completed_at;`
		var t Task
		if err := r.q(ctx).QueryRow(ctx, insert,
			tr.RequesterID, helperID, tr.ID, tr.Message, tr.TipCents, TaskAccepted,
		).Scan(&t.ID, &t.RequesterID, &t.HelperID, &t.RequestID, &t.Description,
			&t.TipCents, &t.Status, &t.ProofURL, &t.CreatedAt, &t.CompletedAt); err != nil {
			if isUniqueViolation(err, "tasks_one_active_per_helper") {
				return ErrActiveTaskExists
			}
			return fmt.Errorf("insert task: %w", err)
		}

		request, task = tr, &t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return request, task, nil
}

// DeclineRequest moves a sent request to declined. Only the target helper may
// decline; anything else matches nothing.
func (r *PostgresRepository) DeclineRequest(ctx context.Context, requestID, helperID string) (*TaskRequest, error) {
	const q = `
UPDATE task_requests
SET status = $3
WHERE id = $1 AND helper_id = $2 AND status = $4
RETURNING ` + requestColumns + `;`
	tr, err := scanRequest(r.q(ctx).QueryRow(ctx, q, requestID, helperID, RequestDeclined, RequestSent))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoRowsUpdated
		}
		return nil, fmt.Errorf("decline request: %w", err)
	}
	return tr, nil
}

// CancelRequest lets the requester withdraw their own sent request.
func (r *PostgresRepository) CancelRequest(ctx context.Context, requestID, requesterID string) (*TaskRequest, error) {
	const q = `
UPDATE task_requests
SET status = $3
WHERE id = $1 AND requester_id = $2 AND status = $4
RETURNING ` + requestColumns + `;`
	tr, err := scanRequest(r.q(ctx).QueryRow(ctx, q, requestID, requesterID, RequestExpired, RequestSent))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoRowsUpdated
		}
		return nil, fmt.Errorf("cancel request: %w", err)
	}
	return tr, nil
}

// ExpireStaleRequests flips sent requests past their expiry to expired.
func (r *PostgresRepository) ExpireStaleRequests(ctx context.Context, now time.Time) (int64, error) {
	const q = `
UPDATE task_requests
SET status = $2
WHERE status = $3 AND expires_at <= $1;`
	ct, err := r.q(ctx).Exec(ctx, q, now, RequestExpired, RequestSent)
	if err != nil {
		return 0, fmt.Errorf("expire stale requests: %w", err)
	}
	return ct.RowsAffected(), nil
}
