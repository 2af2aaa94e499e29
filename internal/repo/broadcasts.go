package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const broadcastColumns = `id, user_id, broadcast_type, message, price_cents, lat, lng,
       location_context, place_name, place_address, idempotency_key, created_at, expires_at`

func scanBroadcast(row interface{ Scan(...any) error }) (*Broadcast, error) {
	var b Broadcast
	if err := row.Scan(
		&b.ID, &b.UserID, &b.BroadcastType, &b.Message, &b.PriceCents, &b.Lat, &b.Lng,
		&b.LocationContext, &b.PlaceName, &b.PlaceAddress, &b.IdempotencyKey, &b.CreatedAt, &b.ExpiresAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

// InsertBroadcast stores a new broadcast. When (user_id, idempotency_key)
// already exists the original row is returned with fresh=false; duplicate
// submissions are absorbed, never rejected. The unique index makes this safe
// against two concurrent submissions with the same key.
func (r *PostgresRepository) InsertBroadcast(ctx context.Context, broadcast Broadcast) (*Broadcast, bool, error) {
	const insert = `
INSERT INTO broadcasts (user_id, broadcast_type, message, price_cents, lat, lng,
                        location_context, place_name, place_address, idempotency_key, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (user_id, idempotency_key) DO NOTHING
RETURNING ` + broadcastColumns + `;`

	b, err := scanBroadcast(r.q(ctx).QueryRow(ctx, insert,
		broadcast.UserID, broadcast.BroadcastType, broadcast.Message, broadcast.PriceCents,
		broadcast.Lat, broadcast.Lng, broadcast.LocationContext,
		broadcast.PlaceName, broadcast.PlaceAddress, broadcast.IdempotencyKey, broadcast.ExpiresAt,
	))
	if err == nil {
		return b, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert broadcast: %w", err)
	}

	// Conflict path: replay the original row.
	const fetch = `
SELECT ` + broadcastColumns + `
FROM broadcasts
WHERE user_id = $1 AND idempotency_key = $2;`
	existing, err := scanBroadcast(r.q(ctx).QueryRow(ctx, fetch, broadcast.UserID, broadcast.IdempotencyKey))
	if err != nil {
		return nil, false, fmt.Errorf("fetch existing broadcast: %w", noRows(err))
	}
	return existing, false, nil
}

// GetBroadcast loads a broadcast by id.
func (r *PostgresRepository) GetBroadcast(ctx context.Context, id string) (*Broadcast, error) {
	const q = `SELECT ` + broadcastColumns + ` FROM broadcasts WHERE id = $1;`
	b, err := scanBroadcast(r.q(ctx).QueryRow(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("get broadcast: %w", noRows(err))
	}
	return b, nil
}

// ListActiveBroadcasts returns unexpired broadcasts, newest first. Expiry is a
// filter predicate: expired rows stay in place and simply stop matching.
func (r *PostgresRepository) ListActiveBroadcasts(ctx context.Context, now time.Time) ([]Broadcast, error) {
	const q = `
SELECT ` + broadcastColumns + `
FROM broadcasts
WHERE expires_at > $1
ORDER BY created_at DESC;`
	rows, err := r.q(ctx).Query(ctx, q, now)
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

// DeleteBroadcast removes a broadcast row. Ownership is checked by the caller.
func (r *PostgresRepository) DeleteBroadcast(ctx context.Context, id string) error {
	const q = `DELETE FROM broadcasts WHERE id = $1;`
	ct, err := r.q(ctx).Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete broadcast: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
