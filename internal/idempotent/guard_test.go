package idempotent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"nearhand/internal/repo"
)

// memStore is an in-memory Store with the same reservation semantics as the
// database implementations.
type memStore struct {
	mu      sync.Mutex
	records map[string]*repo.IdempotencyRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*repo.IdempotencyRecord)}
}

func key(callerID, operation, token string) string {
	return callerID + "|" + operation + "|" + token
}

func (m *memStore) ReserveIdempotencyKey(_ context.Context, callerID, operation, token string) (*repo.IdempotencyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[key(callerID, operation, token)]; ok {
		return rec, false, nil
	}
	rec := &repo.IdempotencyRecord{CallerID: callerID, Operation: operation, Token: token}
	m.records[key(callerID, operation, token)] = rec
	return rec, true, nil
}

func (m *memStore) CompleteIdempotencyKey(_ context.Context, callerID, operation, token string, result []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key(callerID, operation, token)]
	if !ok {
		return repo.ErrNotFound
	}
	rec.Result = result
	return nil
}

func (m *memStore) ReleaseIdempotencyKey(_ context.Context, callerID, operation, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key(callerID, operation, token)]
	if ok && rec.Result == nil {
		delete(m.records, key(callerID, operation, token))
	}
	return nil
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// brokenRecorder fails result recording until cleared.
type brokenRecorder struct {
	*memStore
	completeErr error
}

func (b *brokenRecorder) CompleteIdempotencyKey(ctx context.Context, callerID, operation, token string, result []byte) error {
	if b.completeErr != nil {
		return b.completeErr
	}
	return b.memStore.CompleteIdempotencyKey(ctx, callerID, operation, token, result)
}

func newTestGuard() (*Guard, *memStore) {
	store := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, logger, nil), store
}

func TestDoRunsOnceAndReplays(t *testing.T) {
	guard, _ := newTestGuard()
	ctx := context.Background()

	calls := 0
	fn := func(ctx context.Context) (any, error) {
		calls++
		return map[string]int{"value": calls}, nil
	}

	payload, replayed, err := guard.Do(ctx, "caller", "op", "token", fn)
	if err != nil {
		t.Fatalf("first do: %v", err)
	}
	if replayed {
		t.Fatal("first execution must not be a replay")
	}

	replay, replayed, err := guard.Do(ctx, "caller", "op", "token", fn)
	if err != nil {
		t.Fatalf("second do: %v", err)
	}
	if !replayed {
		t.Fatal("second execution must be a replay")
	}
	if calls != 1 {
		t.Fatalf("fn ran %d times, want 1", calls)
	}
	if string(replay) != string(payload) {
		t.Fatalf("replay payload %s != original %s", replay, payload)
	}
}

func TestDoScopesByCallerOperationToken(t *testing.T) {
	guard, _ := newTestGuard()
	ctx := context.Background()

	calls := 0
	fn := func(ctx context.Context) (any, error) {
		calls++
		return calls, nil
	}

	tuples := [][3]string{
		{"caller-a", "op", "token"},
		{"caller-b", "op", "token"},
		{"caller-a", "other-op", "token"},
		{"caller-a", "op", "other-token"},
	}
	for _, tup := range tuples {
		if _, _, err := guard.Do(ctx, tup[0], tup[1], tup[2], fn); err != nil {
			t.Fatalf("do %v: %v", tup, err)
		}
	}
	if calls != len(tuples) {
		t.Fatalf("fn ran %d times, want %d", calls, len(tuples))
	}
}

func TestDoReleasesOnFailure(t *testing.T) {
	guard, store := newTestGuard()
	ctx := context.Background()

	boom := errors.New("storage down")
	_, _, err := guard.Do(ctx, "caller", "op", "token", func(ctx context.Context) (any, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the operation error, got %v", err)
	}
	if len(store.records) != 0 {
		t.Fatal("failed execution must release the reservation")
	}

	// The retry after a failure executes again.
	payload, replayed, err := guard.Do(ctx, "caller", "op", "token", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil || replayed {
		t.Fatalf("retry must run fresh: payload=%s replayed=%v err=%v", payload, replayed, err)
	}
}

func TestDoInFlightReservation(t *testing.T) {
	guard, store := newTestGuard()
	ctx := context.Background()

	if _, _, err := store.ReserveIdempotencyKey(ctx, "caller", "op", "token"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	_, _, err := guard.Do(ctx, "caller", "op", "token", func(ctx context.Context) (any, error) {
		t.Fatal("fn must not run while a reservation is in flight")
		return nil, nil
	})
	if !errors.Is(err, repo.ErrOperationInFlight) {
		t.Fatalf("expected ErrOperationInFlight, got %v", err)
	}
}

func TestDoFailedResultRecordingFreesToken(t *testing.T) {
	mem := newMemStore()
	store := &brokenRecorder{memStore: mem, completeErr: errors.New("recording down")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	guard := New(store, logger, nil)
	ctx := context.Background()

	calls := 0
	fn := func(ctx context.Context) (any, error) {
		calls++
		return calls, nil
	}

	// The result cannot be recorded, so the execution must not count: the
	// token is freed instead of left in flight forever.
	if _, _, err := guard.Do(ctx, "caller", "op", "token", fn); err == nil {
		t.Fatal("expected the recording error to surface")
	}
	if len(mem.records) != 0 {
		t.Fatal("unrecordable execution must release the reservation")
	}

	store.completeErr = nil
	payload, replayed, err := guard.Do(ctx, "caller", "op", "token", fn)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if replayed {
		t.Fatal("retry after a failed recording must run fresh")
	}
	if calls != 2 || string(payload) != "2" {
		t.Fatalf("retry must re-execute: calls=%d payload=%s", calls, payload)
	}
}
