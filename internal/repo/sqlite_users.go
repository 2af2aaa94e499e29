package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLite lacks gen_random_uuid(); ids are generated here instead.
func newID() string {
	return uuid.NewString()
}

func sqliteNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *SQLiteRepository) InsertUser(ctx context.Context, user User) (*User, error) {
	now := nowUTC()
	const q = `
INSERT INTO users (id, first_name, profile_photo, neighborhood_id, radius_miles, last_lat, last_lng, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + userColumns + `;`
	radius := user.RadiusMiles
	if radius == 0 {
		radius = 1
	}
	u, err := scanUser(r.q(ctx).QueryRowContext(ctx, q,
		newID(), user.FirstName, user.ProfilePhoto, user.NeighborhoodID,
		radius, user.LastLat, user.LastLng, now, now,
	))
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (*User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = ?;`
	u, err := scanUser(r.q(ctx).QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", sqliteNoRows(err))
	}
	return u, nil
}

func (r *SQLiteRepository) UpdateProfile(ctx context.Context, id, firstName string, profilePhoto *string) (*User, error) {
	const q = `
UPDATE users
SET first_name = ?, profile_photo = COALESCE(?, profile_photo), updated_at = ?
WHERE id = ?
RETURNING ` + userColumns + `;`
	u, err := scanUser(r.q(ctx).QueryRowContext(ctx, q, firstName, profilePhoto, nowUTC(), id))
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", sqliteNoRows(err))
	}
	return u, nil
}

func (r *SQLiteRepository) UpdateLocation(ctx context.Context, id string, lat, lng float64) error {
	const q = `UPDATE users SET last_lat = ?, last_lng = ?, updated_at = ? WHERE id = ?;`
	res, err := r.q(ctx).ExecContext(ctx, q, lat, lng, nowUTC(), id)
	if err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) UpdateRadius(ctx context.Context, id string, radiusMiles int) (*User, error) {
	const q = `
UPDATE users SET radius_miles = ?, updated_at = ? WHERE id = ?
RETURNING ` + userColumns + `;`
	u, err := scanUser(r.q(ctx).QueryRowContext(ctx, q, radiusMiles, nowUTC(), id))
	if err != nil {
		return nil, fmt.Errorf("update radius: %w", sqliteNoRows(err))
	}
	return u, nil
}

func (r *SQLiteRepository) UpdateNotifications(ctx context.Context, id string, enabled bool) (*User, error) {
	const q = `
UPDATE users SET notifications_enabled = ?, updated_at = ? WHERE id = ?
RETURNING ` + userColumns + `;`
	u, err := scanUser(r.q(ctx).QueryRowContext(ctx, q, enabled, nowUTC(), id))
	if err != nil {
		return nil, fmt.Errorf("update notifications: %w", sqliteNoRows(err))
	}
	return u, nil
}

func (r *SQLiteRepository) SetNeighborhood(ctx context.Context, id, neighborhoodID string) (*User, error) {
	const q = `
UPDATE users SET neighborhood_id = ?, updated_at = ? WHERE id = ?
RETURNING ` + userColumns + `;`
	u, err := scanUser(r.q(ctx).QueryRowContext(ctx, q, neighborhoodID, nowUTC(), id))
	if err != nil {
		return nil, fmt.Errorf("set neighborhood: %w", sqliteNoRows(err))
	}
	return u, nil
}

func (r *SQLiteRepository) SetMovement(ctx context.Context, id string, onTheMove bool, direction *string, expiresAt *time.Time) (*User, error) {
	const q = `
UPDATE users
SET on_the_move = ?, direction = ?, move_expires_at = ?, updated_at = ?
WHERE id = ?
RETURNING ` + userColumns + `;`
	u, err := scanUser(r.q(ctx).QueryRowContext(ctx, q, onTheMove, direction, expiresAt, nowUTC(), id))
	if err != nil {
		return nil, fmt.Errorf("set movement: %w", sqliteNoRows(err))
	}
	return u, nil
}

func (r *SQLiteRepository) ExpireMovement(ctx context.Context, now time.Time) (int64, error) {
	const q = `
UPDATE users
SET on_the_move = 0, direction = NULL, move_expires_at = NULL, updated_at = ?
WHERE on_the_move = 1 AND move_expires_at <= ?;`
	res, err := r.q(ctx).ExecContext(ctx, q, nowUTC(), now)
	if err != nil {
		return 0, fmt.Errorf("expire movement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire movement rows: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) ListOnTheMove(ctx context.Context, neighborhoodID, excludeUserID string, now time.Time) ([]NearbyHelper, error) {
	const q = `
SELECT id, first_name, profile_photo, last_lat, last_lng, direction, move_expires_at
FROM users
WHERE neighborhood_id = ? AND id != ? AND on_the_move = 1 AND move_expires_at > ?;`
	rows, err := r.q(ctx).QueryContext(ctx, q, neighborhoodID, excludeUserID, now)
	if err != nil {
		return nil, fmt.Errorf("list on the move: %w", err)
	}
	defer rows.Close()

	var helpers []NearbyHelper
	for rows.Next() {
		var h NearbyHelper
		if err := rows.Scan(&h.UserID, &h.FirstName, &h.ProfilePhoto, &h.LastLat, &h.LastLng, &h.Direction, &h.MoveExpiresAt); err != nil {
			return nil, fmt.Errorf("scan helper: %w", err)
		}
		helpers = append(helpers, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate helpers: %w", err)
	}
	return helpers, nil
}

func (r *SQLiteRepository) InsertNeighborhood(ctx context.Context, hood Neighborhood) (*Neighborhood, error) {
	const q = `
INSERT INTO neighborhoods (id, name, center_lat, center_lng, radius_miles)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name,
    center_lat = excluded.center_lat,
    center_lng = excluded.center_lng,
    radius_miles = excluded.radius_miles
RETURNING id, name, center_lat, center_lng, radius_miles;`
	var h Neighborhood
	if err := r.q(ctx).QueryRowContext(ctx, q, hood.ID, hood.Name, hood.CenterLat, hood.CenterLng, hood.RadiusMiles).
		Scan(&h.ID, &h.Name, &h.CenterLat, &h.CenterLng, &h.RadiusMiles); err != nil {
		return nil, fmt.Errorf("insert neighborhood: %w", err)
	}
	return &h, nil
}

func (r *SQLiteRepository) ListNeighborhoods(ctx context.Context) ([]Neighborhood, error) {
	const q = `SELECT id, name, center_lat, center_lng, radius_miles FROM neighborhoods ORDER BY id;`
	rows, err := r.q(ctx).QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list neighborhoods: %w", err)
	}
	defer rows.Close()

	var hoods []Neighborhood
	for rows.Next() {
		var h Neighborhood
		if err := rows.Scan(&h.ID, &h.Name, &h.CenterLat, &h.CenterLng, &h.RadiusMiles); err != nil {
			return nil, fmt.Errorf("scan neighborhood: %w", err)
		}
		hoods = append(hoods, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate neighborhoods: %w", err)
	}
	return hoods, nil
}

func (r *SQLiteRepository) UpsertDevice(ctx context.Context, device Device) (*Device, error) {
	now := nowUTC()
	const q = `
INSERT INTO user_devices (id, user_id, push_token, push_platform, last_seen_at, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, push_token) DO UPDATE SET
    push_platform = excluded.push_platform,
    last_seen_at = excluded.last_seen_at
RETURNING id, user_id, push_token, push_platform, last_seen_at, created_at;`
	var d Device
	if err := r.q(ctx).QueryRowContext(ctx, q, newID(), device.UserID, device.PushToken, device.Platform, now, now).
		Scan(&d.ID, &d.UserID, &d.PushToken, &d.Platform, &d.LastSeenAt, &d.CreatedAt); err != nil {
		return nil, fmt.Errorf("upsert device: %w", err)
	}
	return &d, nil
}
