package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func ensureWalletSqlTx(ctx context.Context, q sqlQuerier, userID string) (*Wallet, error) {
	const upsert = `
INSERT INTO wallets (id, user_id, created_at)
VALUES (?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET user_id = excluded.user_id
RETURNING id, user_id, created_at;`
	var w Wallet
	if err := q.QueryRowContext(ctx, upsert, newID(), userID, nowUTC()).
		Scan(&w.ID, &w.UserID, &w.CreatedAt); err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}
	return &w, nil
}

func (r *SQLiteRepository) EnsureWallet(ctx context.Context, userID string) (*Wallet, error) {
	return ensureWalletSqlTx(ctx, r.q(ctx), userID)
}

const sqliteBalanceQuery = `
SELECT
    COALESCE(SUM(CASE WHEN type = 'credit'  AND status = 'completed' THEN amount_cents ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN type = 'debit'   AND status = 'completed' THEN amount_cents ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN type = 'hold'    AND status = 'pending'   THEN amount_cents ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN type = 'release' AND status = 'completed' THEN amount_cents ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN type = 'credit'  AND status = 'pending'   THEN amount_cents ELSE 0 END), 0)
FROM wallet_ledger_entries
WHERE user_id = ?;`

func walletBalanceSqlTx(ctx context.Context, q sqlQuerier, walletID, userID string) (*WalletBalance, error) {
	var credits, debits, holds, releases, pending int64
	if err := q.QueryRowContext(ctx, sqliteBalanceQuery, userID).
		Scan(&credits, &debits, &holds, &releases, &pending); err != nil {
		return nil, fmt.Errorf("aggregate ledger: %w", err)
	}
	return balanceFromSums(walletID, credits, debits, holds, releases, pending), nil
}

func (r *SQLiteRepository) GetWalletBalance(ctx context.Context, userID string) (*WalletBalance, error) {
	wallet, err := ensureWalletSqlTx(ctx, r.q(ctx), userID)
	if err != nil {
		return nil, err
	}
	return walletBalanceSqlTx(ctx, r.q(ctx), wallet.ID, userID)
}

func (r *SQLiteRepository) ListLedgerEntries(ctx context.Context, userID string, limit int, before *time.Time) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, wallet_id, user_id, type, amount_cents, status, source, reference_id, created_at
FROM wallet_ledger_entries
WHERE user_id = ? AND (? IS NULL OR created_at < ?)
ORDER BY created_at DESC
LIMIT ?;`
	rows, err := r.q(ctx).QueryContext(ctx, q, userID, before, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.WalletID, &e.UserID, &e.Type, &e.AmountCents,
			&e.Status, &e.Source, &e.ReferenceID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

// Withdraw runs inside a transaction; SQLite serializes writers, so the
// available check and the debit insert cannot interleave with another
// withdrawal.
func (r *SQLiteRepository) Withdraw(ctx context.Context, userID string, amountCents int64) (*LedgerEntry, *WalletBalance, error) {
	var entry *LedgerEntry
	var balance *WalletBalance

	err := r.WithTx(ctx, func(ctx context.Context) error {
		wallet, err := ensureWalletSqlTx(ctx, r.q(ctx), userID)
		if err != nil {
			return err
		}

		current, err := walletBalanceSqlTx(ctx, r.q(ctx), wallet.ID, userID)
		if err != nil {
			return err
		}
		if amountCents > current.AvailableCents {
			return ErrInsufficientFunds
		}

		const insert = `
INSERT INTO wallet_ledger_entries (id, wallet_id, user_id, type, amount_cents, status, source, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, wallet_id, user_id, type, amount_cents, status, source, reference_id, created_at;`
		var e LedgerEntry
		if err := r.q(ctx).QueryRowContext(ctx, insert,
			newID(), wallet.ID, userID, EntryDebit, amountCents, EntryCompleted, SourceWithdrawal, nowUTC(),
		).Scan(&e.ID, &e.WalletID, &e.UserID, &e.Type, &e.AmountCents,
			&e.Status, &e.Source, &e.ReferenceID, &e.CreatedAt); err != nil {
			return fmt.Errorf("insert withdrawal debit: %w", err)
		}

		after, err := walletBalanceSqlTx(ctx, r.q(ctx), wallet.ID, userID)
		if err != nil {
			return err
		}

		entry, balance = &e, after
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return entry, balance, nil
}

// -- Idempotency --

func (r *SQLiteRepository) ReserveIdempotencyKey(ctx context.Context, callerID, operation, token string) (*IdempotencyRecord, bool, error) {
	const insert = `
INSERT INTO idempotency_records (caller_id, operation, token, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (caller_id, operation, token) DO NOTHING
RETURNING caller_id, operation, token, result, created_at;`

	var rec IdempotencyRecord
	err := r.q(ctx).QueryRowContext(ctx, insert, callerID, operation, token, nowUTC()).
		Scan(&rec.CallerID, &rec.Operation, &rec.Token, &rec.Result, &rec.CreatedAt)
	if err == nil {
		return &rec, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
	}

	const fetch = `
SELECT caller_id, operation, token, result, created_at
FROM idempotency_records
WHERE caller_id = ? AND operation = ? AND token = ?;`
	if err := r.q(ctx).QueryRowContext(ctx, fetch, callerID, operation, token).
		Scan(&rec.CallerID, &rec.Operation, &rec.Token, &rec.Result, &rec.CreatedAt); err != nil {
		return nil, false, fmt.Errorf("fetch idempotency record: %w", sqliteNoRows(err))
	}
	return &rec, false, nil
}

func (r *SQLiteRepository) CompleteIdempotencyKey(ctx context.Context, callerID, operation, token string, result []byte) error {
	const q = `
UPDATE idempotency_records
SET result = ?
WHERE caller_id = ? AND operation = ? AND token = ?;`
	res, err := r.q(ctx).ExecContext(ctx, q, result, callerID, operation, token)
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ReleaseIdempotencyKey(ctx context.Context, callerID, operation, token string) error {
	const q = `
DELETE FROM idempotency_records
WHERE caller_id = ? AND operation = ? AND token = ? AND result IS NULL;`
	if _, err := r.q(ctx).ExecContext(ctx, q, callerID, operation, token); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
