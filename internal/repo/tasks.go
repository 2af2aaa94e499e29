package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const taskColumns = `id, requester_id, helper_id, request_id, description, tip_cents,
       status, proof_url, created_at, completed_at`

func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	var t Task
	if err := row.Scan(
		&t.ID, &t.RequesterID, &t.HelperID, &t.RequestID, &t.Description,
		&t.TipCents, &t.Status, &t.ProofURL, &t.CreatedAt, &t.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTask loads a task by id.
func (r *PostgresRepository) GetTask(ctx context.Context, id string) (*Task, error) {
	const q = `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1;`
	t, err := scanTask(r.q(ctx).QueryRow(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("get task: %w", noRows(err))
	}
	return t, nil
}

// ActiveTaskForUser returns the user's task in accepted/in_progress, in
// either role.
func (r *PostgresRepository) ActiveTaskForUser(ctx context.Context, userID string) (*Task, error) {
	const q = `
SELECT ` + taskColumns + `
FROM tasks
WHERE (requester_id = $1 OR helper_id = $1) AND status IN ($2, $3)
LIMIT 1;`
	t, err := scanTask(r.q(ctx).QueryRow(ctx, q, userID, TaskAccepted, TaskInProgress))
	if err != nil {
		return nil, fmt.Errorf("active task for user: %w", noRows(err))
	}
	return t, nil
}

// ActiveTaskForHelper returns the helper's active task, if any.
func (r *PostgresRepository) ActiveTaskForHelper(ctx context.Context, helperID string) (*Task, error) {
	const q = `
SELECT ` + taskColumns + `
FROM tasks
WHERE helper_id = $1 AND status IN ($2, $3)
LIMIT 1;`
	t, err := scanTask(r.q(ctx).QueryRow(ctx, q, helperID, TaskAccepted, TaskInProgress))
	if err != nil {
		return nil, fmt.Errorf("active task for helper: %w", noRows(err))
	}
	return t, nil
}

// StartTask moves an accepted task to in_progress. Helper-only; the guarded
// UPDATE matches nothing for any other caller or state.
func (r *PostgresRepository) StartTask(ctx context.Context, taskID, helperID string) (*Task, error) {
	const q = `
UPDATE tasks
SET status = $3
WHERE id = $1 AND helper_id = $2 AND status = $4
RETURNING ` + taskColumns + `;`
	t, err := scanTask(r.q(ctx).QueryRow(ctx, q, taskID, helperID, TaskInProgress, TaskAccepted))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoRowsUpdated
		}
		return nil, fmt.Errorf("start task: %w", err)
	}
	return t, nil
}

// CompleteTask performs the atomic completion transition: the task moves
// in_progress -> completed and a completed credit is appended to the helper's
// ledger, in one transaction. A task marked completed without its credit (or
// the reverse) is unreachable.
func (r *PostgresRepository) CompleteTask(ctx context.Context, taskID, helperID string, proofURL *string, now time.Time) (*Task, *LedgerEntry, error) {
	var task *Task
	var entry *LedgerEntry

	err := r.WithTx(ctx, func(ctx context.Context) error {
		const update = `
UPDATE tasks
SET status = $3, proof_url = COALESCE($4, proof_url), completed_at = $5
WHERE id = $1 AND helper_id = $2 AND status = $6
RETURNING ` + taskColumns + `;`
		t, err := scanTask(r.q(ctx).QueryRow(ctx, update, taskID, helperID, TaskCompleted, proofURL, now, TaskInProgress))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNoRowsUpdated
			}
			return fmt.Errorf("complete task: %w", err)
		}

		wallet, err := ensureWalletTx(ctx, r.q(ctx), helperID)
		if err != nil {
			return err
		}

		const insert = `
INSERT INTO wallet_ledger_entries (wallet_id, user_id, type, amount_cents, status, source, reference_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, wallet_id, user_id, type, amount_cents, status, source, reference_id, created_at;`
		var e LedgerEntry
		if err := r.q(ctx).QueryRow(ctx, insert,
			wallet.ID, helperID, EntryCredit, t.TipCents, EntryCompleted,
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
