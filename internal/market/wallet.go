package market

import (
	"context"
	"time"

	"nearhand/internal/repo"
)

// GetWallet returns the caller's derived balances. Balances are always
// recomputed from the ledger; there is no stored counter to drift.
func (s *Service) GetWallet(ctx context.Context, callerID string) (*repo.WalletBalance, error) {
	balance, err := s.store.GetWalletBalance(ctx, callerID)
	if err != nil {
		return nil, storeError(err)
	}
	return balance, nil
}

// LedgerPage is one page of reverse-chronological ledger entries.
type LedgerPage struct {
	Entries    []repo.LedgerEntry `json:"entries"`
	NextCursor *string            `json:"next_cursor"`
}

// ListLedger pages through the caller's ledger. The cursor is the created_at
// of the last entry of the previous page, RFC 3339.
func (s *Service) ListLedger(ctx context.Context, callerID string, limit int, cursor string) (*LedgerPage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var before *time.Time
	if cursor != "" {
		t, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			return nil, E(CodeValidation, "cursor must be an RFC 3339 timestamp")
		}
		before = &t
	}

	entries, err := s.store.ListLedgerEntries(ctx, callerID, limit, before)
	if err != nil {
		return nil, storeError(err)
	}

	page := &LedgerPage{Entries: entries}
	if len(entries) >= limit {
		next := entries[len(entries)-1].CreatedAt.Format(time.RFC3339Nano)
		page.NextCursor = &next
	}
	return page, nil
}

// WithdrawResult pairs the debit entry with the balance after it.
type WithdrawResult struct {
	Entry  *repo.LedgerEntry   `json:"entry"`
	Wallet *repo.WalletBalance `json:"wallet"`
}

// Withdraw debits the caller's available balance. The available check and the
// debit insert run in one storage transaction, so concurrent withdrawals
// cannot jointly overdraw; replays with the same token debit exactly once.
func (s *Service) Withdraw(ctx context.Context, callerID string, amountCents int64, token string) (*WithdrawResult, bool, error) {
	start := time.Now()
	result, replayed, err := s.withdraw(ctx, callerID, amountCents, token)
	s.observe("wallet.withdraw", start, err)
	return result, replayed, err
}

func (s *Service) withdraw(ctx context.Context, callerID string, amountCents int64, token string) (*WithdrawResult, bool, error) {
	if amountCents <= 0 {
		return nil, false, E(CodeValidation, "amount_cents must be a positive number")
	}

	return guarded(ctx, s, callerID, "wallet.withdraw", token, func(ctx context.Context) (*WithdrawResult, error) {
		entry, balance, err := s.store.Withdraw(ctx, callerID, amountCents)
		if err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.LedgerEntries.WithLabelValues(entry.Type, entry.Source).Inc()
		}
		return &WithdrawResult{Entry: entry, Wallet: balance}, nil
	})
}
