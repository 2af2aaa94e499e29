package repo

import "errors"

// Sentinel errors surfaced to the service layer. SQL drivers report the
// underlying conditions differently (pgconn.PgError vs sqlite error codes), so
// both implementations normalise to these before returning.
var (
	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNoRowsUpdated means a guarded UPDATE matched nothing: the row is
	// absent, in the wrong state, or owned by someone else.
	ErrNoRowsUpdated = errors.New("no rows updated")

	// ErrDuplicateKey means a storage-level uniqueness constraint fired.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrActiveTaskExists means the helper already holds a task in
	// accepted/in_progress, enforced by the partial unique index on tasks.
	ErrActiveTaskExists = errors.New("helper already has an active task")

	// ErrOperationInFlight means an idempotency token is reserved but has no
	// recorded result yet.
	ErrOperationInFlight = errors.New("operation already in progress for this token")

	// ErrInsufficientFunds means a debit would exceed the available balance.
	ErrInsufficientFunds = errors.New("insufficient available balance")
)
