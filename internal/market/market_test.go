package market

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"nearhand/internal/idempotent"
	"nearhand/internal/repo"
	"nearhand/migrations"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T) (*Service, repo.Repository, *testClock) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := repo.NewSQLite(ctx, ":memory:", logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(store.Close)

	if err := store.RunMigrations(ctx, migrations.Files); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	clock := &testClock{now: time.Now().UTC()}
	guard := idempotent.New(store, logger, nil)
	svc := New(store, guard, nil, nil, logger, Config{Now: clock.Now})
	return svc, store, clock
}

func createUser(t *testing.T, store repo.Repository, name string) *repo.User {
	t.Helper()
	ctx := context.Background()
	user, err := store.InsertUser(ctx, repo.User{FirstName: name, RadiusMiles: 3})
	if err != nil {
		t.Fatalf("insert user %s: %v", name, err)
	}
	user, err = store.SetNeighborhood(ctx, user.ID, "demo_neighborhood")
	if err != nil {
		t.Fatalf("set neighborhood: %v", err)
	}
	if err := store.UpdateLocation(ctx, user.ID, 40.0, -74.0); err != nil {
		t.Fatalf("update location: %v", err)
	}
	return user
}

func makeVisibleHelper(t *testing.T, store repo.Repository, clock *testClock, name string) *repo.User {
	t.Helper()
	helper := createUser(t, store, name)
	direction := "out"
	expires := clock.Now().Add(time.Hour)
	helper, err := store.SetMovement(context.Background(), helper.ID, true, &direction, &expires)
	if err != nil {
		t.Fatalf("set movement: %v", err)
	}
	return helper
}

func makeActiveTask(t *testing.T, svc *Service, store repo.Repository, clock *testClock) (requester, helper *repo.User, task *repo.Task) {
	t.Helper()
	ctx := context.Background()
	requester = createUser(t, store, "Ana")
	helper = makeVisibleHelper(t, store, clock, "Ben")

	request, _, err := svc.CreateRequest(ctx, requester.ID, helper.ID, "walk my dog", 1000, "req-token-1")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	result, err := svc.AcceptRequest(ctx, helper.ID, request.ID)
	if err != nil {
		t.Fatalf("accept request: %v", err)
	}
	return requester, helper, result.Task
}

func wantCode(t *testing.T, err error, code Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil error", code)
	}
	if got := CodeOf(err); got != code {
		t.Fatalf("expected %s, got %s (%v)", code, got, err)
	}
}

func f64(v float64) *float64 { return &v }

func broadcastInput() CreateBroadcastInput {
	return CreateBroadcastInput{
		Type:            repo.BroadcastNeedHelp,
		Message:         "need a ladder for ten minutes",
		PriceCents:      1000,
		Lat:             f64(40.0),
		Lng:             f64(-74.0),
		LocationContext: repo.ContextHereNow,
		DurationMinutes: 15,
	}
}

func TestCreateBroadcastIdempotent(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	owner := createUser(t, store, "Ana")

	first, idem, err := svc.CreateBroadcast(ctx, owner.ID, "bc-token-1", broadcastInput())
	if err != nil {
		t.Fatalf("create broadcast: %v", err)
	}
	if idem {
		t.Fatal("first submission must not be marked idempotent")
	}

	second, idem, err := svc.CreateBroadcast(ctx, owner.ID, "bc-token-1", broadcastInput())
	if err != nil {
		t.Fatalf("repeat broadcast: %v", err)
	}
	if !idem {
		t.Fatal("duplicate submission must be marked idempotent")
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate created a new row: %s != %s", second.ID, first.ID)
	}

	third, _, err := svc.CreateBroadcast(ctx, owner.ID, "bc-token-2", broadcastInput())
	if err != nil {
		t.Fatalf("broadcast with fresh token: %v", err)
	}
	if third.ID == first.ID {
		t.Fatal("fresh token must create a new broadcast")
	}
}

func TestCreateBroadcastValidation(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	owner := createUser(t, store, "Ana")

	in := broadcastInput()
	in.DurationMinutes = 45
	_, _, err := svc.CreateBroadcast(ctx, owner.ID, "bc-bad-1", in)
	wantCode(t, err, CodeValidation)

	in = broadcastInput()
	in.Message = ""
	_, _, err = svc.CreateBroadcast(ctx, owner.ID, "bc-bad-2", in)
	wantCode(t, err, CodeValidation)

	_, _, err = svc.CreateBroadcast(ctx, owner.ID, "", broadcastInput())
	wantCode(t, err, CodeValidation)

	// Rejected input must not consume the reservation for a later valid call.
	if _, _, err := svc.CreateBroadcast(ctx, owner.ID, "bc-bad-1", broadcastInput()); err != nil {
		t.Fatalf("token from rejected call must stay usable: %v", err)
	}
}

func TestCreateBroadcastCoordinatePresence(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	owner := createUser(t, store, "Ana")

	// (0, 0) is a real coordinate, not an absent one.
	in := broadcastInput()
	in.Lat = f64(0)
	in.Lng = f64(0)
	broadcast, _, err := svc.CreateBroadcast(ctx, owner.ID, "bc-origin", in)
	if err != nil {
		t.Fatalf("create broadcast at the origin: %v", err)
	}
	if broadcast.Lat != 0 || broadcast.Lng != 0 {
		t.Fatalf("stored coordinate = (%f, %f), want (0, 0)", broadcast.Lat, broadcast.Lng)
	}

	in = broadcastInput()
	in.Lng = nil
	_, _, err = svc.CreateBroadcast(ctx, owner.ID, "bc-half", in)
	wantCode(t, err, CodeValidation)
}

func TestListBroadcastsFiltersExpired(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	owner := createUser(t, store, "Ana")
	viewer := createUser(t, store, "Ben")

	short := broadcastInput()
	short.DurationMinutes = 15
	if _, _, err := svc.CreateBroadcast(ctx, owner.ID, "bc-short", short); err != nil {
		t.Fatalf("create short broadcast: %v", err)
	}
	long := broadcastInput()
	long.DurationMinutes = 120
	kept, _, err := svc.CreateBroadcast(ctx, owner.ID, "bc-long", long)
	if err != nil {
		t.Fatalf("create long broadcast: %v", err)
	}

	clock.Advance(30 * time.Minute)

	feed, err := svc.ListBroadcasts(ctx, viewer.ID, 40.1, -74.1)
	if err != nil {
		t.Fatalf("list broadcasts: %v", err)
	}
	if len(feed) != 1 {
		t.Fatalf("expected 1 active broadcast, got %d", len(feed))
	}
	if feed[0].ID != kept.ID {
		t.Fatalf("wrong broadcast survived: %s", feed[0].ID)
	}
	if feed[0].DistanceMiles <= 0 {
		t.Fatal("expected distance annotation")
	}
}

func TestDeleteBroadcastOwnerOnly(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	owner := createUser(t, store, "Ana")
	other := createUser(t, store, "Ben")

	broadcast, _, err := svc.CreateBroadcast(ctx, owner.ID, "bc-token-1", broadcastInput())
	if err != nil {
		t.Fatalf("create broadcast: %v", err)
	}

	wantCode(t, svc.DeleteBroadcast(ctx, other.ID, broadcast.ID), CodeForbidden)
	if err := svc.DeleteBroadcast(ctx, owner.ID, broadcast.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	wantCode(t, svc.DeleteBroadcast(ctx, owner.ID, broadcast.ID), CodeNotFound)
}

func TestRespondToBroadcast(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	owner := createUser(t, store, "Ana")
	responder := createUser(t, store, "Ben")

	broadcast, _, err := svc.CreateBroadcast(ctx, owner.ID, "bc-token-1", broadcastInput())
	if err != nil {
		t.Fatalf("create broadcast: %v", err)
	}

	_, _, err = svc.RespondToBroadcast(ctx, owner.ID, broadcast.ID, 1000, "resp-own")
	wantCode(t, err, CodeForbidden)

	request, _, err := svc.RespondToBroadcast(ctx, responder.ID, broadcast.ID, 1000, "resp-1")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if request.RequesterID != responder.ID {
		t.Fatalf("requester must be the responder, got %s", request.RequesterID)
	}
	if request.HelperID == nil || *request.HelperID != owner.ID {
		t.Fatal("helper must be the broadcast owner")
	}

	clock.Advance(16 * time.Minute)
	_, _, err = svc.RespondToBroadcast(ctx, responder.ID, broadcast.ID, 1000, "resp-late")
	wantCode(t, err, CodeExpired)

	// A retry of the earlier successful respond replays the recorded request
	// even though the broadcast has since expired.
	replayed, idem, err := svc.RespondToBroadcast(ctx, responder.ID, broadcast.ID, 1000, "resp-1")
	if err != nil {
		t.Fatalf("respond replay after expiry: %v", err)
	}
	if !idem || replayed.ID != request.ID {
		t.Fatal("completed respond must replay its recorded result")
	}
}

func TestCreateRequestReplaysAfterHelperGone(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	requester := createUser(t, store, "Ana")
	helper := makeVisibleHelper(t, store, clock, "Ben")

	request, _, err := svc.CreateRequest(ctx, requester.ID, helper.ID, "hello", 500, "req-1")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	if _, err := svc.StopMovement(ctx, helper.ID); err != nil {
		t.Fatalf("stop movement: %v", err)
	}

	// The helper is no longer visible, yet a retry of the completed create
	// replays the recorded request instead of re-judging visibility.
	replayed, idem, err := svc.CreateRequest(ctx, requester.ID, helper.ID, "hello", 500, "req-1")
	if err != nil {
		t.Fatalf("create replay after helper left: %v", err)
	}
	if !idem || replayed.ID != request.ID {
		t.Fatal("completed create must replay its recorded result")
	}

	// A fresh token sees the current state.
	_, _, err = svc.CreateRequest(ctx, requester.ID, helper.ID, "hello", 500, "req-2")
	wantCode(t, err, CodeNotFound)
}

func TestCreateRequestVisibilityChecks(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	requester := createUser(t, store, "Ana")
	idle := createUser(t, store, "Ben")

	_, _, err := svc.CreateRequest(ctx, requester.ID, idle.ID, "hello", 500, "req-1")
	wantCode(t, err, CodeNotFound)

	helper := makeVisibleHelper(t, store, clock, "Cam")
	_, _, err = svc.CreateRequest(ctx, requester.ID, helper.ID, "hello", 700, "req-2")
	wantCode(t, err, CodeValidation)

	request, _, err := svc.CreateRequest(ctx, requester.ID, helper.ID, "hello", 500, "req-3")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if request.Status != repo.RequestSent {
		t.Fatalf("new request status = %s", request.Status)
	}
}

func TestAcceptRequestAtomicTransition(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	_, helper, task := makeActiveTask(t, svc, store, clock)

	if task.Status != repo.TaskAccepted {
		t.Fatalf("task status = %s", task.Status)
	}

	// Accepting again is a terminal-state violation, not a duplicate task.
	request, err := store.GetRequest(ctx, task.RequestID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if request.Status != repo.RequestAccepted {
		t.Fatalf("request status = %s", request.Status)
	}
	_, err = svc.AcceptRequest(ctx, helper.ID, request.ID)
	wantCode(t, err, CodeConflict)
}

func TestOneActiveTaskPerHelper(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	_, helper, _ := makeActiveTask(t, svc, store, clock)

	other := createUser(t, store, "Cleo")
	second, _, err := svc.CreateRequest(ctx, other.ID, helper.ID, "another errand", 500, "req-second")
	if err != nil {
		t.Fatalf("create second request: %v", err)
	}

	_, err = svc.AcceptRequest(ctx, helper.ID, second.ID)
	wantCode(t, err, CodeConflict)

	// The failed accept must roll back fully: the request stays sent.
	stale, err := store.GetRequest(ctx, second.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if stale.Status != repo.RequestSent {
		t.Fatalf("request must remain sent after rollback, got %s", stale.Status)
	}
}

func TestAcceptRequestAuthorization(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	requester := createUser(t, store, "Ana")
	helper := makeVisibleHelper(t, store, clock, "Ben")
	stranger := createUser(t, store, "Cleo")

	request, _, err := svc.CreateRequest(ctx, requester.ID, helper.ID, "hello", 500, "req-1")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	_, err = svc.AcceptRequest(ctx, stranger.ID, request.ID)
	wantCode(t, err, CodeForbidden)

	_, err = svc.AcceptRequest(ctx, helper.ID, "00000000-0000-0000-0000-000000000000")
	wantCode(t, err, CodeNotFound)
}

func TestDeclineAndCancelAreTerminal(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	requester := createUser(t, store, "Ana")
	helper := makeVisibleHelper(t, store, clock, "Ben")

	request, _, err := svc.CreateRequest(ctx, requester.ID, helper.ID, "hello", 500, "req-1")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	declined, _, err := svc.DeclineRequest(ctx, helper.ID, request.ID, "decline-1")
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if declined.Status != repo.RequestDeclined {
		t.Fatalf("status = %s", declined.Status)
	}

	// No transition out of a terminal state.
	_, _, err = svc.CancelRequest(ctx, requester.ID, request.ID, "cancel-1")
	wantCode(t, err, CodeNotFound)
	_, err = svc.AcceptRequest(ctx, helper.ID, request.ID)
	wantCode(t, err, CodeConflict)

	// A replay of the decline returns the recorded row, not NOT_FOUND.
	replayed, idem, err := svc.DeclineRequest(ctx, helper.ID, request.ID, "decline-1")
	if err != nil {
		t.Fatalf("decline replay: %v", err)
	}
	if !idem || replayed.Status != repo.RequestDeclined {
		t.Fatal("decline replay must return the recorded result")
	}
}

func TestTaskLifecycleAndNoDoubleCredit(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	_, helper, task := makeActiveTask(t, svc, store, clock)

	// completed before started
	_, _, err := svc.CompleteTask(ctx, helper.ID, task.ID, nil, "complete-early")
	wantCode(t, err, CodeConflict)

	started, err := svc.StartTask(ctx, helper.ID, task.ID)
	if err != nil {
		t.Fatalf("start task: %v", err)
	}
	if started.Status != repo.TaskInProgress {
		t.Fatalf("status = %s", started.Status)
	}
	_, err = svc.StartTask(ctx, helper.ID, task.ID)
	wantCode(t, err, CodeConflict)

	proof := "https://example.com/proof.jpg"
	result, idem, err := svc.CompleteTask(ctx, helper.ID, task.ID, &proof, "complete-1")
	if err != nil {
		t.Fatalf("complete task: %v", err)
	}
	if idem {
		t.Fatal("first completion must not be a replay")
	}
	if result.Task.Status != repo.TaskCompleted || result.Task.CompletedAt == nil {
		t.Fatal("task must be completed with a timestamp")
	}
	if result.Credit.AmountCents != 1000 || result.Credit.Type != repo.EntryCredit {
		t.Fatalf("unexpected credit: %+v", result.Credit)
	}

	wallet, err := svc.GetWallet(ctx, helper.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if wallet.AvailableCents != 1000 {
		t.Fatalf("available = %d, want 1000", wallet.AvailableCents)
	}

	// Retrying with the same token must not credit twice.
	replay, idem, err := svc.CompleteTask(ctx, helper.ID, task.ID, &proof, "complete-1")
	if err != nil {
		t.Fatalf("complete replay: %v", err)
	}
	if !idem {
		t.Fatal("repeat completion must be a replay")
	}
	if replay.Task.ID != result.Task.ID {
		t.Fatal("replay must return the recorded task")
	}
	wallet, err = svc.GetWallet(ctx, helper.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if wallet.AvailableCents != 1000 {
		t.Fatalf("available after replay = %d, want 1000", wallet.AvailableCents)
	}
}

func TestWithdrawCannotOverdraw(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	_, helper, task := makeActiveTask(t, svc, store, clock)

	if _, err := svc.StartTask(ctx, helper.ID, task.ID); err != nil {
		t.Fatalf("start task: %v", err)
	}
	if _, _, err := svc.CompleteTask(ctx, helper.ID, task.ID, nil, "complete-1"); err != nil {
		t.Fatalf("complete task: %v", err)
	}

	_, _, err := svc.Withdraw(ctx, helper.ID, 2000, "wd-over")
	wantCode(t, err, CodeConflict)

	page, err := svc.ListLedger(ctx, helper.ID, 50, "")
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(page.Entries) != 1 {
		t.Fatalf("overdraw must write nothing, ledger has %d entries", len(page.Entries))
	}

	result, _, err := svc.Withdraw(ctx, helper.ID, 400, "wd-1")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if result.Wallet.AvailableCents != 600 {
		t.Fatalf("available = %d, want 600", result.Wallet.AvailableCents)
	}

	// Same token: exactly one debit regardless of retries.
	replay, idem, err := svc.Withdraw(ctx, helper.ID, 400, "wd-1")
	if err != nil {
		t.Fatalf("withdraw replay: %v", err)
	}
	if !idem {
		t.Fatal("repeat withdrawal must be a replay")
	}
	if replay.Wallet.AvailableCents != 600 {
		t.Fatalf("replay balance = %d, want 600", replay.Wallet.AvailableCents)
	}
	wallet, err := svc.GetWallet(ctx, helper.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if wallet.AvailableCents != 600 {
		t.Fatalf("available = %d, want 600", wallet.AvailableCents)
	}

	_, _, err = svc.Withdraw(ctx, helper.ID, 0, "wd-zero")
	wantCode(t, err, CodeValidation)
}

func TestInFlightDuplicateConflicts(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	_, helper, _ := makeActiveTask(t, svc, store, clock)

	// A reservation with no recorded result marks an execution in flight.
	if _, _, err := store.ReserveIdempotencyKey(ctx, helper.ID, "wallet.withdraw", "wd-flight"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	_, _, err := svc.Withdraw(ctx, helper.ID, 100, "wd-flight")
	wantCode(t, err, CodeConflict)
}

func TestGetActiveTaskResolution(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	requester := createUser(t, store, "Ana")
	helper := makeVisibleHelper(t, store, clock, "Ben")

	empty, err := svc.GetActiveTask(ctx, requester.ID)
	if err != nil {
		t.Fatalf("active task: %v", err)
	}
	if empty.Task != nil || empty.PendingRequestID != nil {
		t.Fatal("expected neither task nor pending request")
	}

	request, _, err := svc.CreateRequest(ctx, requester.ID, helper.ID, "hello", 500, "req-1")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	pending, err := svc.GetActiveTask(ctx, requester.ID)
	if err != nil {
		t.Fatalf("active task: %v", err)
	}
	if pending.PendingRequestID == nil || *pending.PendingRequestID != request.ID {
		t.Fatal("expected the open sent request")
	}

	if _, err := svc.AcceptRequest(ctx, helper.ID, request.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	active, err := svc.GetActiveTask(ctx, helper.ID)
	if err != nil {
		t.Fatalf("active task: %v", err)
	}
	if active.Task == nil || active.Task.Status != repo.TaskAccepted {
		t.Fatal("expected the active task for the helper")
	}
}

func TestExpireStaleRequestsSweep(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	requester := createUser(t, store, "Ana")
	helper := makeVisibleHelper(t, store, clock, "Ben")

	request, _, err := svc.CreateRequest(ctx, requester.ID, helper.ID, "hello", 500, "req-1")
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	n, err := store.ExpireStaleRequests(ctx, clock.Now().Add(16*time.Minute))
	if err != nil {
		t.Fatalf("expire stale requests: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d requests, want 1", n)
	}
	swept, err := store.GetRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if swept.Status != repo.RequestExpired {
		t.Fatalf("status = %s, want expired", swept.Status)
	}
}

func TestMovementWindow(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	user := createUser(t, store, "Ana")

	_, err := svc.StartMovement(ctx, user.ID, "sideways", 30)
	wantCode(t, err, CodeValidation)
	_, err = svc.StartMovement(ctx, user.ID, "out", 45)
	wantCode(t, err, CodeValidation)

	moving, err := svc.StartMovement(ctx, user.ID, "out", 30)
	if err != nil {
		t.Fatalf("start movement: %v", err)
	}
	if !moving.OnTheMove || moving.MoveExpiresAt == nil {
		t.Fatal("expected an open movement window")
	}

	stopped, err := svc.StopMovement(ctx, user.ID)
	if err != nil {
		t.Fatalf("stop movement: %v", err)
	}
	if stopped.OnTheMove || stopped.MoveExpiresAt != nil {
		t.Fatal("expected the window closed")
	}
}

func TestLedgerPaging(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()
	_, helper, task := makeActiveTask(t, svc, store, clock)

	if _, err := svc.StartTask(ctx, helper.ID, task.ID); err != nil {
		t.Fatalf("start task: %v", err)
	}
	if _, _, err := svc.CompleteTask(ctx, helper.ID, task.ID, nil, "complete-1"); err != nil {
		t.Fatalf("complete task: %v", err)
	}
	if _, _, err := svc.Withdraw(ctx, helper.ID, 100, "wd-1"); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	page, err := svc.ListLedger(ctx, helper.ID, 1, "")
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(page.Entries) != 1 || page.NextCursor == nil {
		t.Fatalf("expected a full first page with cursor, got %d entries", len(page.Entries))
	}

	_, err = svc.ListLedger(ctx, helper.ID, 1, "not-a-timestamp")
	wantCode(t, err, CodeValidation)
}
