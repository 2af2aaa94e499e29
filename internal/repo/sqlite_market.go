package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// -- Broadcasts --

func (r *SQLiteRepository) InsertBroadcast(ctx context.Context, broadcast Broadcast) (*Broadcast, bool, error) {
	const insert = `
INSERT INTO broadcasts (id, user_id, broadcast_type, message, price_cents, lat, lng,
                        location_context, place_name, place_address, idempotency_key, created_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, idempotency_key) DO NOTHING
RETURNING ` + broadcastColumns + `;`

	b, err := scanBroadcast(r.q(ctx).QueryRowContext(ctx, insert,
		newID(), broadcast.UserID, broadcast.BroadcastType, broadcast.Message, broadcast.PriceCents,
		broadcast.Lat, broadcast.Lng, broadcast.LocationContext,
		broadcast.PlaceName, broadcast.PlaceAddress, broadcast.IdempotencyKey,
		nowUTC(), broadcast.ExpiresAt,
	))
	if err == nil {
		return b, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("insert broadcast: %w", err)
	}

	const fetch = `
SELECT ` + broadcastColumns + `
FROM broadcasts
WHERE user_id = ? AND idempotency_key = ?;`
	existing, err := scanBroadcast(r.q(ctx).QueryRowContext(ctx, fetch, broadcast.UserID, broadcast.IdempotencyKey))
	if err != nil {
		return nil, false, fmt.Errorf("fetch existing broadcast: %w", sqliteNoRows(err))
	}
	return existing, false, nil
}

func (r *SQLiteRepository) GetBroadcast(ctx context.Context, id string) (*Broadcast, error) {
	const q = `SELECT ` + broadcastColumns + ` FROM broadcasts WHERE id = ?;`
	b, err := scanBroadcast(r.q(ctx).QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("get broadcast: %w", sqliteNoRows(err))
	}
	return b, nil
}

func (r *SQLiteRepository) ListActiveBroadcasts(ctx context.Context, now time.Time) ([]Broadcast, error) {
	const q = `
SELECT ` + broadcastColumns + `
FROM broadcasts
WHERE expires_at > ?
ORDER BY created_at DESC;`
	rows, err := r.q(ctx).QueryContext(ctx, q, now)
	if err != nil {
		return nil, fmt.Errorf("list active broadcasts: %w", err)
	}
	defer rows.Close()

	var broadcasts []Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, fmt.Errorf("scan broadcast: %w", err)
		}
		broadcasts = append(broadcasts, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate broadcasts: %w", err)
	}
	return broadcasts, nil
}

func (r *SQLiteRepository) DeleteBroadcast(ctx context.Context, id string) error {
	res, err := r.q(ctx).ExecContext(ctx, `DELETE FROM broadcasts WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete broadcast: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// -- Requests --

func (r *SQLiteRepository) InsertRequest(ctx context.Context, request TaskRequest) (*TaskRequest, error) {
	const q = `
INSERT INTO task_requests (id, requester_id, helper_id, broadcast_id, message, tip_cents, status, created_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + requestColumns + `;`
	tr, err := scanRequest(r.q(ctx).QueryRowContext(ctx, q,
		newID(), request.RequesterID, request.HelperID, request.BroadcastID,
		request.Message, request.TipCents, RequestSent, nowUTC(), request.ExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}
	return tr, nil
}

func (r *SQLiteRepository) GetRequest(ctx context.Context, id string) (*TaskRequest, error) {
	const q = `SELECT ` + requestColumns + ` FROM task_requests WHERE id = ?;`
	tr, err := scanRequest(r.q(ctx).QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("get request: %w", sqliteNoRows(err))
	}
	return tr, nil
}

func (r *SQLiteRepository) ListIncomingRequests(ctx context.Context, helperID, status string) ([]TaskRequest, error) {
	const q = `
SELECT ` + requestColumns + `
FROM task_requests
WHERE helper_id = ? AND status = ?
ORDER BY created_at DESC;`
	rows, err := r.q(ctx).QueryContext(ctx, q, helperID, status)
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

func (r *SQLiteRepository) PendingSentRequest(ctx context.Context, requesterID string) (*TaskRequest, error) {
	const q = `
SELECT ` + requestColumns + `
FROM task_requests
WHERE requester_id = ? AND status = ?
ORDER BY created_at DESC
LIMIT 1;`
	tr, err := scanRequest(r.q(ctx).QueryRowContext(ctx, q, requesterID, RequestSent))
	if err != nil {
		return nil, fmt.Errorf("pending sent request: %w", sqliteNoRows(err))
	}
	return tr, nil
}

func (r *SQLiteRepository) AcceptRequest(ctx context.Context, requestID, helperID string) (*TaskRequest, *Task, error) {
	var request *TaskRequest
	var task *Task

	err := r.WithTx(ctx, func(ctx context.Context) error {
		const update = `
UPDATE task_requests
SET status = ?
WHERE id = ? AND helper_id = ? AND status = ?
RETURNING ` + requestColumns + `;`
		tr, err := scanRequest(r.q(ctx).QueryRowContext(ctx, update, RequestAccepted, requestID, helperID, RequestSent))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNoRowsUpdated
			}
			return fmt.Errorf("accept request: %w", err)
		}

		const insert = `
INSERT INTO tasks (id, requester_id, helper_id, request_id, description, tip_cents, status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + taskColumns + `;`
		t, err := scanTask(r.q(ctx).QueryRowContext(ctx, insert,
			newID(), tr.RequesterID, helperID, tr.ID, tr.Message, tr.TipCents, TaskAccepted, nowUTC(),
		))
		if err != nil {
			if sqliteUnique(err, "tasks.helper_id") {
				return ErrActiveTaskExists
			}
			return fmt.Errorf("insert task: %w", err)
		}

		request, task = tr, t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return request, task, nil
}

func (r *SQLiteRepository) DeclineRequest(ctx context.Context, requestID, helperID string) (*TaskRequest, error) {
	const q = `
UPDATE task_requests
SET status = ?
WHERE id = ? AND helper_id = ? AND status = ?
RETURNING ` + requestColumns + `;`
	tr, err := scanRequest(r.q(ctx).QueryRowContext(ctx, q, RequestDeclined, requestID, helperID, RequestSent))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRowsUpdated
		}
		return nil, fmt.Errorf("decline request: %w", err)
	}
	return tr, nil
}

func (r *SQLiteRepository) CancelRequest(ctx context.Context, requestID, requesterID string) (*TaskRequest, error) {
	const q = `
UPDATE task_requests
SET status = ?
WHERE id = ? AND requester_id = ? AND status = ?
RETURNING ` + requestColumns + `;`
	tr, err := scanRequest(r.q(ctx).QueryRowContext(ctx, q, RequestExpired, requestID, requesterID, RequestSent))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRowsUpdated
		}
		return nil, fmt.Errorf("cancel request: %w", err)
	}
	return tr, nil
}

func (r *SQLiteRepository) ExpireStaleRequests(ctx context.Context, now time.Time) (int64, error) {
	const q = `
UPDATE task_requests
SET status = ?
WHERE status = ? AND expires_at <= ?;`
	res, err := r.q(ctx).ExecContext(ctx, q, RequestExpired, RequestSent, now)
	if err != nil {
		return 0, fmt.Errorf("expire stale requests: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire stale requests rows: %w", err)
	}
	return n, nil
}

// -- Tasks --

func (r *SQLiteRepository) GetTask(ctx context.Context, id string) (*Task, error) {
	const q = `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?;`
	t, err := scanTask(r.q(ctx).QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("get task: %w", sqliteNoRows(err))
	}
	return t, nil
}

func (r *SQLiteRepository) ActiveTaskForUser(ctx context.Context, userID string) (*Task, error) {
	const q = `
SELECT ` + taskColumns + `
FROM tasks
WHERE (requester_id = ? OR helper_id = ?) AND status IN (?, ?)
LIMIT 1;`
	t, err := scanTask(r.q(ctx).QueryRowContext(ctx, q, userID, userID, TaskAccepted, TaskInProgress))
	if err != nil {
		return nil, fmt.Errorf("active task for user: %w", sqliteNoRows(err))
	}
	return t, nil
}

func (r *SQLiteRepository) ActiveTaskForHelper(ctx context.Context, helperID string) (*Task, error) {
	const q = `
SELECT ` + taskColumns + `
FROM tasks
WHERE helper_id = ? AND status IN (?, ?)
LIMIT 1;`
	t, err := scanTask(r.q(ctx).QueryRowContext(ctx, q, helperID, TaskAccepted, TaskInProgress))
	if err != nil {
		return nil, fmt.Errorf("active task for helper: %w", sqliteNoRows(err))
	}
	return t, nil
}

func (r *SQLiteRepository) StartTask(ctx context.Context, taskID, helperID string) (*Task, error) {
	const q = `
UPDATE tasks
SET status = ?
WHERE id = ? AND helper_id = ? AND status = ?
RETURNING ` + taskColumns + `;`
	t, err := scanTask(r.q(ctx).QueryRowContext(ctx, q, TaskInProgress, taskID, helperID, TaskAccepted))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRowsUpdated
		}
		return nil, fmt.Errorf("start task: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) CompleteTask(ctx context.Context, taskID, helperID string, proofURL *string, now time.Time) (*Task, *LedgerEntry, error) {
	var task *Task
	var entry *LedgerEntry

	err := r.WithTx(ctx, func(ctx context.Context) error {
		const update = `
UPDATE tasks
SET status = ?, proof_url = COALESCE(?, proof_url), completed_at = ?
WHERE id = ? AND helper_id = ? AND status = ?
RETURNING ` + taskColumns + `;`
		t, err := scanTask(r.q(ctx).QueryRowContext(ctx, update, TaskCompleted, proofURL, now, taskID, helperID, TaskInProgress))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNoRowsUpdated
			}
			return fmt.Errorf("complete task: %w", err)
		}

		wallet, err := ensureWalletSqlTx(ctx, r.q(ctx), helperID)
		if err != nil {
			return err
		}

		const insert = `
INSERT INTO wallet_ledger_entries (id, wallet_id, user_id, type, amount_cents, status, source, reference_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, wallet_id, user_id, type, amount_cents, status, source, reference_id, created_at;`
		var e LedgerEntry
		if err := r.q(ctx).QueryRowContext(ctx, insert,
			newID(), wallet.ID, helperID, EntryCredit, t.TipCents, EntryCompleted,
			SourceTaskCompletion, t.ID, now,
		).Scan(&e.ID, &e.WalletID, &e.UserID, &e.Type, &e.AmountCents,
			&e.Status, &e.Source, &e.ReferenceID, &e.CreatedAt); err != nil {
			return fmt.Errorf("insert completion credit: %w", err)
		}

		task, entry = t, &e
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return task, entry, nil
}
