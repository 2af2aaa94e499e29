package repo

import (
	"context"
	"fmt"
	"time"
)

// ensureWalletTx creates the user's wallet row on first use. Wallets hold no
// balance fields; the row only anchors ledger entries.
func ensureWalletTx(ctx context.Context, q pgQuerier, userID string) (*Wallet, error) {
	const upsert = `
INSERT INTO wallets (user_id)
VALUES ($1)
ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
RETURNING id, user_id, created_at;`
	var w Wallet
	if err := q.QueryRow(ctx, upsert, userID).Scan(&w.ID, &w.UserID, &w.CreatedAt); err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}
	return &w, nil
}

// EnsureWallet creates the user's wallet row on first use.
func (r *PostgresRepository) EnsureWallet(ctx context.Context, userID string) (*Wallet, error) {
	return ensureWalletTx(ctx, r.q(ctx), userID)
}

const balanceQuery = `
SELECT
    COALESCE(SUM(CASE WHEN type = 'credit'  AND status = 'completed' THEN amount_cents ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN type = 'debit'   AND status = 'completed' THEN amount_cents ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN type = 'hold'    AND status = 'pending'   THEN amount_cents ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN type = 'release' AND status = 'completed' THEN amount_cents ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN type = 'credit'  AND status = 'pending'   THEN amount_cents ELSE 0 END), 0)
FROM wallet_ledger_entries
WHERE user_id = $1;`

func balanceFromSums(walletID string, credits, debits, holds, releases, pending int64) *WalletBalance {
	ledger := credits - debits
	held := holds - releases
	return &WalletBalance{
		WalletID:       walletID,
		LedgerCents:    ledger,
		HeldCents:      held,
		PendingCents:   pending,
		AvailableCents: ledger - held,
	}
}

func walletBalanceTx(ctx context.Context, q pgQuerier, walletID, userID string) (*WalletBalance, error) {
	var credits, debits, holds, releases, pending int64
	if err := q.QueryRow(ctx, balanceQuery, userID).
		Scan(&credits, &debits, &holds, &releases, &pending); err != nil {
		return nil, fmt.Errorf("aggregate ledger: %w", err)
	}
	return balanceFromSums(walletID, credits, debits, holds, releases, pending), nil
}

// GetWalletBalance derives the balance from the ledger. Nothing is cached;
// every call recomputes the aggregate.
func (r *PostgresRepository) GetWalletBalance(ctx context.Context, userID string) (*WalletBalance, error) {
	wallet, err := ensureWalletTx(ctx, r.q(ctx), userID)
	if err != nil {
		return nil, err
	}
	return walletBalanceTx(ctx, r.q(ctx), wallet.ID, userID)
}

// ListLedgerEntries returns the user's entries newest first, optionally those
// created before the cursor timestamp.
func (r *PostgresRepository) ListLedgerEntries(ctx context.Context, userID string, limit int, before *time.Time) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, wallet_id, user_id, type, amount_cents, status, source, reference_id, created_at
FROM wallet_ledger_entries
WHERE user_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
ORDER BY created_at DESC
LIMIT $3;`
	rows, err := r.q(ctx).Query(ctx, q, userID, before, limit)
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

// Withdraw appends a completed debit after verifying available funds. The
// wallet row is locked FOR UPDATE for the duration, so concurrent withdrawals
// against the same wallet serialize and cannot jointly overdraw.
func (r *PostgresRepository) Withdraw(ctx context.Context, userID string, amountCents int64) (*LedgerEntry, *WalletBalance, error) {
	var entry *LedgerEntry
	var balance *WalletBalance

	err := r.WithTx(ctx, func(ctx context.Context) error {
		wallet, err := ensureWalletTx(ctx, r.q(ctx), userID)
		if err != nil {
			return err
		}

		var lockedID string
		if err := r.q(ctx).QueryRow(ctx, `SELECT id FROM wallets WHERE id = $1 FOR UPDATE;`, wallet.ID).
			Scan(&lockedID); err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}

		current, err := walletBalanceTx(ctx, r.q(ctx), wallet.ID, userID)
		if err != nil {
			return err
		}
		if amountCents > current.AvailableCents {
			return ErrInsufficientFunds
		}

		const insert = `
INSERT INTO wallet_ledger_entries (wallet_id, user_id, type, amount_cents, status, source, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
RETURNING id, wallet_id, user_id, type, amount_cents, status, source, reference_id, created_at;`
		var e LedgerEntry
		if err := r.q(ctx).QueryRow(ctx, insert,
			wallet.ID, userID, EntryDebit, amountCents, EntryCompleted, SourceWithdrawal,
		).Scan(&e.ID, &e.WalletID, &e.UserID, &e.Type, &e.AmountCents,
			&e.Status, &e.Source, &e.ReferenceID, &e.CreatedAt); err != nil {
			return fmt.Errorf("insert withdrawal debit: %w", err)
		}

		after, err := walletBalanceTx(ctx, r.q(ctx), wallet.ID, userID)
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
