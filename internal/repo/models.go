package repo

import "time"

// Broadcast type and location-context enumerations.
const (
	BroadcastNeedHelp  = "need_help"
	BroadcastOfferHelp = "offer_help"

	ContextHereNow       = "here_now"
	ContextHeadingTo     = "heading_to"
	ContextComingFrom    = "coming_from"
	ContextPlaceSpecific = "place_specific"
)

// Request statuses. Transitions are one-directional: sent is the only
// non-terminal state.
const (
	RequestSent     = "sent"
	RequestAccepted = "accepted"
	RequestDeclined = "declined"
	RequestExpired  = "expired"
)

// Task statuses, linear: accepted -> in_progress -> completed.
const (
	TaskAccepted   = "accepted"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
)

// Ledger entry types and statuses.
const (
	EntryCredit  = "credit"
	EntryDebit   = "debit"
	EntryHold    = "hold"
	EntryRelease = "release"

	EntryPending   = "pending"
	EntryCompleted = "completed"
	EntryFailed    = "failed"

	SourceTaskCompletion = "task_completion"
	SourceWithdrawal     = "withdrawal"
)

// User represents the users table row.
type User struct {
	ID                   string     `json:"id"`
	FirstName            string     `json:"first_name"`
	ProfilePhoto         *string    `json:"profile_photo"`
	NeighborhoodID       *string    `json:"neighborhood_id"`
	RadiusMiles          int        `json:"radius_miles"`
	LastLat              *float64   `json:"last_lat"`
	LastLng              *float64   `json:"last_lng"`
	OnTheMove            bool       `json:"on_the_move"`
	Direction            *string    `json:"direction"`
	MoveExpiresAt        *time.Time `json:"move_expires_at"`
	NotificationsEnabled bool       `json:"notifications_enabled"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Neighborhood is a named circle users are assigned to.
type Neighborhood struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	CenterLat   float64 `json:"center_lat"`
	CenterLng   float64 `json:"center_lng"`
	RadiusMiles float64 `json:"radius_miles"`
}

// Device is a registered push target for a user.
type Device struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	PushToken  string    `json:"push_token"`
	Platform   string    `json:"platform"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// NearbyHelper is a discovery result: an on-the-move neighbor.
type NearbyHelper struct {
	UserID        string     `json:"user_id"`
	FirstName     string     `json:"first_name"`
	ProfilePhoto  *string    `json:"profile_photo"`
	LastLat       *float64   `json:"last_lat"`
	LastLng       *float64   `json:"last_lng"`
	Direction     *string    `json:"direction"`
	MoveExpiresAt *time.Time `json:"move_expires_at"`
	DistanceMiles float64    `json:"distance_miles"`
}

// Broadcast is a public help request/offer with an expiry. Rows are never
// mutated after insert; expiry is a read-side filter, deletion is owner-only.
type Broadcast struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	BroadcastType   string    `json:"broadcast_type"`
	Message         string    `json:"message"`
	PriceCents      int64     `json:"price_cents"`
	Lat             float64   `json:"lat"`
	Lng             float64   `json:"lng"`
	LocationContext string    `json:"location_context"`
	PlaceName       *string   `json:"place_name"`
	PlaceAddress    *string   `json:"place_address"`
	IdempotencyKey  string    `json:"idempotency_key"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`

	// DistanceMiles is filled by list queries, not stored.
	DistanceMiles float64 `json:"distance_miles"`
}

// TaskRequest is a directed response to a broadcast or a direct peer request.
type TaskRequest struct {
	ID          string    `json:"id"`
	RequesterID string    `json:"requester_id"`
	HelperID    *string   `json:"helper_id"`
	BroadcastID *string   `json:"broadcast_id"`
	Message     string    `json:"message"`
	TipCents    int64     `json:"tip_cents"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Task is the work unit created when a request is accepted.
type Task struct {
	ID          string     `json:"id"`
	RequesterID string     `json:"requester_id"`
	HelperID    string     `json:"helper_id"`
	RequestID   string     `json:"request_id"`
	Description string     `json:"description"`
	TipCents    int64      `json:"tip_cents"`
	Status      string     `json:"status"`
	ProofURL    *string    `json:"proof_url"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Wallet carries no balance fields: balances are derived from ledger entries.
type Wallet struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerEntry is an immutable financial record. Corrections are new entries.
type LedgerEntry struct {
	ID          string    `json:"id"`
	WalletID    string    `json:"wallet_id"`
	UserID      string    `json:"user_id"`
	Type        string    `json:"type"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
	Source      string    `json:"source"`
	ReferenceID *string   `json:"reference_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// WalletBalance is the derived aggregate over a wallet's ledger entries.
//
//	ledger    = completed credits - completed debits
//	held      = pending holds - completed releases
//	pending   = pending credits
//	available = ledger - held
type WalletBalance struct {
	WalletID       string `json:"wallet_id"`
	AvailableCents int64  `json:"available_cents"`
	PendingCents   int64  `json:"pending_cents"`
	LedgerCents    int64  `json:"ledger_cents"`
	HeldCents      int64  `json:"held_cents"`
}

// IdempotencyRecord stores the outcome of a state-changing operation keyed by
// (caller, operation, token). A nil Result means the execution is in flight.
type IdempotencyRecord struct {
	CallerID  string    `json:"caller_id"`
	Operation string    `json:"operation"`
	Token     string    `json:"token"`
	Result    []byte    `json:"result"`
	CreatedAt time.Time `json:"created_at"`
}
