package repo

import (
	"context"
	"io/fs"
	"time"
)

// Repository defines the interface for data persistence. Two implementations
// exist: PostgresRepository (pgx) for deployment and SQLiteRepository for
// local development and tests. Multi-row invariants (request accept, task
// completion, withdrawal) live behind single methods so each implementation
// can guarantee atomicity with its own transaction primitive.
type Repository interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// WithTx runs fn in one transaction. Repository calls made with the
	// context fn receives join it; nested WithTx calls reuse the open
	// transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Users
	InsertUser(ctx context.Context, user User) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	UpdateProfile(ctx context.Context, id, firstName string, profilePhoto *string) (*User, error)
	UpdateLocation(ctx context.Context, id string, lat, lng float64) error
	UpdateRadius(ctx context.Context, id string, radiusMiles int) (*User, error)
	UpdateNotifications(ctx context.Context, id string, enabled bool) (*User, error)
	SetNeighborhood(ctx context.Context, id, neighborhoodID string) (*User, error)
	SetMovement(ctx context.Context, id string, onTheMove bool, direction *string, expiresAt *time.Time) (*User, error)
	ExpireMovement(ctx context.Context, now time.Time) (int64, error)
	ListOnTheMove(ctx context.Context, neighborhoodID string, excludeUserID string, now time.Time) ([]NearbyHelper, error)

	// Neighborhoods
	InsertNeighborhood(ctx context.Context, hood Neighborhood) (*Neighborhood, error)
	ListNeighborhoods(ctx context.Context) ([]Neighborhood, error)

	// Devices
	UpsertDevice(ctx context.Context, device Device) (*Device, error)

	// Broadcasts
	InsertBroadcast(ctx context.Context, broadcast Broadcast) (created *Broadcast, fresh bool, err error)
	GetBroadcast(ctx context.Context, id string) (*Broadcast, error)
	ListActiveBroadcasts(ctx context.Context, now time.Time) ([]Broadcast, error)
	DeleteBroadcast(ctx context.Context, id string) error

	// Requests
	InsertRequest(ctx context.Context, request TaskRequest) (*TaskRequest, error)
	GetRequest(ctx context.Context, id string) (*TaskRequest, error)
	ListIncomingRequests(ctx context.Context, helperID, status string) ([]TaskRequest, error)
	PendingSentRequest(ctx context.Context, requesterID string) (*TaskRequest, error)
	AcceptRequest(ctx context.Context, requestID, helperID string) (*TaskRequest, *Task, error)
	DeclineRequest(ctx context.Context, requestID, helperID string) (*TaskRequest, error)
	CancelRequest(ctx context.Context, requestID, requesterID string) (*TaskRequest, error)
	ExpireStaleRequests(ctx context.Context, now time.Time) (int64, error)

	// Tasks
	GetTask(ctx context.Context, id string) (*Task, error)
	ActiveTaskForUser(ctx context.Context, userID string) (*Task, error)
	ActiveTaskForHelper(ctx context.Context, helperID string) (*Task, error)
	StartTask(ctx context.Context, taskID, helperID string) (*Task, error)
	CompleteTask(ctx context.Context, taskID, helperID string, proofURL *string, now time.Time) (*Task, *LedgerEntry, error)

	// Wallet
	EnsureWallet(ctx context.Context, userID string) (*Wallet, error)
	GetWalletBalance(ctx context.Context, userID string) (*WalletBalance, error)
	ListLedgerEntries(ctx context.Context, userID string, limit int, before *time.Time) ([]LedgerEntry, error)
	Withdraw(ctx context.Context, userID string, amountCents int64) (*LedgerEntry, *WalletBalance, error)

	// Idempotency
	ReserveIdempotencyKey(ctx context.Context, callerID, operation, token string) (record *IdempotencyRecord, fresh bool, err error)
	CompleteIdempotencyKey(ctx context.Context, callerID, operation, token string, result []byte) error
	ReleaseIdempotencyKey(ctx context.Context, callerID, operation, token string) error
}
