package repo

import (
	"context"
	"fmt"
	"time"
)

const userColumns = `id, first_name, profile_photo, neighborhood_id, radius_miles,
       last_lat, last_lng, on_the_move, direction, move_expires_at,
       notifications_enabled, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	if err := row.Scan(
		&u.ID, &u.FirstName, &u.ProfilePhoto, &u.NeighborhoodID, &u.RadiusMiles,
		&u.LastLat, &u.LastLng, &u.OnTheMove, &u.Direction, &u.MoveExpiresAt,
		&u.NotificationsEnabled, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

// InsertUser stores a new user row. The caller identity itself comes from an
// external auth collaborator; this exists for provisioning and tests.
func (r *PostgresRepository) InsertUser(ctx context.Context, user User) (*User, error) {
	const q = `
INSERT INTO users (first_name, profile_photo, neighborhood_id, radius_miles, last_lat, last_lng)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + userColumns + `;`
	u, err := scanUser(r.q(ctx).QueryRow(ctx, q,
		user.FirstName, user.ProfilePhoto, user.NeighborhoodID,
		user.RadiusMiles, user.LastLat, user.LastLng,
	))
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// GetUser loads a user by id.
func (r *PostgresRepository) GetUser(ctx context.Context, id string) (*User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1;`
	u, err := scanUser(r.q(ctx).QueryRow(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", noRows(err))
	}
	return u, nil
}

// UpdateProfile overwrites the display fields of a user.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id, firstName string, profilePhoto *string) (*User, error) {
	const q = `
UPDATE users
SET first_name = $2,
    profile_photo = COALESCE($3, profile_photo),
    updated_at = NOW()
WHERE id = $1
RETURNING ` + userColumns + `;`
	u, err := scanUser(r.q(ctx).QueryRow(ctx, q, id, firstName, profilePhoto))
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", noRows(err))
	}
	return u, nil
}

// UpdateLocation records a location heartbeat. Pure overwrite, no ordering
// concern, hence exempt from the idempotency guard.
func (r *PostgresRepository) UpdateLocation(ctx context.Context, id string, lat, lng float64) error {
	const q = `UPDATE users SET last_lat = $2, last_lng = $3, updated_at = NOW() WHERE id = $1;`
	ct, err := r.q(ctx).Exec(ctx, q, id, lat, lng)
	if err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRadius sets the user's search radius.
func (r *PostgresRepository) UpdateRadius(ctx context.Context, id string, radiusMiles int) (*User, error) {
	const q = `
UPDATE users SET radius_miles = $2, updated_at = NOW() WHERE id = $1
RETURNING ` + userColumns + `;`
	u, err := scanUser(r.q(ctx).QueryRow(ctx, q, id, radiusMiles))
	if err != nil {
		return nil, fmt.Errorf("update radius: %w", noRows(err))
	}
	return u, nil
}

// UpdateNotifications toggles push notifications.
func (r *PostgresRepository) UpdateNotifications(ctx context.Context, id string, enabled bool) (*User, error) {
	const q = `
UPDATE users SET notifications_enabled = $2, updated_at = NOW() WHERE id = $1
RETURNING ` + userColumns + `;`
	u, err := scanUser(r.q(ctx).QueryRow(ctx, q, id, enabled))
	if err != nil {
		return nil, fmt.Errorf("update notifications: %w", noRows(err))
	}
	return u, nil
}

// SetNeighborhood assigns the user to a neighborhood.
func (r *PostgresRepository) SetNeighborhood(ctx context.Context, id, neighborhoodID string) (*User, error) {
	const q = `
UPDATE users SET neighborhood_id = $2, updated_at = NOW() WHERE id = $1
RETURNING ` + userColumns + `;`
	u, err := scanUser(r.q(ctx).QueryRow(ctx, q, id, neighborhoodID))
	if err != nil {
		return nil, fmt.Errorf("set neighborhood: %w", noRows(err))
	}
	return u, nil
}

// SetMovement opens or closes the user's availability window.
func (r *PostgresRepository) SetMovement(ctx context.Context, id string, onTheMove bool, direction *string, expiresAt *time.Time) (*User, error) {
	const q = `
UPDATE users
SET on_the_move = $2, direction = $3, move_expires_at = $4, updated_at = NOW()
WHERE id = $1
RETURNING ` + userColumns + `;`
	u, err := scanUser(r.q(ctx).QueryRow(ctx, q, id, onTheMove, direction, expiresAt))
	if err != nil {
		return nil, fmt.Errorf("set movement: %w", noRows(err))
	}
	return u, nil
}

// ExpireMovement closes movement windows whose expiry has passed.
func (r *PostgresRepository) ExpireMovement(ctx context.Context, now time.Time) (int64, error) {
	const q = `
UPDATE users
SET on_the_move = FALSE, direction = NULL, move_expires_at = NULL, updated_at = NOW()
WHERE on_the_move = TRUE AND move_expires_at <= $1;`
	ct, err := r.q(ctx).Exec(ctx, q, now)
	if err != nil {
		return 0, fmt.Errorf("expire movement: %w", err)
	}
	return ct.RowsAffected(), nil
}

// ListOnTheMove returns users in the neighborhood whose movement window is
// still open. Distance annotation is the caller's concern.
func (r *PostgresRepository) ListOnTheMove(ctx context.Context, neighborhoodID, excludeUserID string, now time.Time) ([]NearbyHelper, error) {
	const q = `
SELECT id, first_name, profile_photo, last_lat, last_lng, direction, move_expires_at
FROM users
WHERE neighborhood_id = $1 AND id != $2 AND on_the_move = TRUE AND move_expires_at > $3;`
	rows, err := r.q(ctx).Query(ctx, q, neighborhoodID, excludeUserID, now)
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

// InsertNeighborhood stores a neighborhood definition.
func (r *PostgresRepository) InsertNeighborhood(ctx context.Context, hood Neighborhood) (*Neighborhood, error) {
	const q = `
INSERT INTO neighborhoods (id, name, center_lat, center_lng, radius_miles)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    center_lat = EXCLUDED.center_lat,
    center_lng = EXCLUDED.center_lng,
    radius_miles = EXCLUDED.radius_miles
RETURNING id, name, center_lat, center_lng, radius_miles;`
	var h Neighborhood
	if err := r.q(ctx).QueryRow(ctx, q, hood.ID, hood.Name, hood.CenterLat, hood.CenterLng, hood.RadiusMiles).
		Scan(&h.ID, &h.Name, &h.CenterLat, &h.CenterLng, &h.RadiusMiles); err != nil {
		return nil, fmt.Errorf("insert neighborhood: %w", err)
	}
	return &h, nil
}

// ListNeighborhoods returns every neighborhood definition.
func (r *PostgresRepository) ListNeighborhoods(ctx context.Context) ([]Neighborhood, error) {
	const q = `SELECT id, name, center_lat, center_lng, radius_miles FROM neighborhoods ORDER BY id;`
	rows, err := r.q(ctx).Query(ctx, q)
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

// UpsertDevice registers or refreshes a push target.
func (r *PostgresRepository) UpsertDevice(ctx context.Context, device Device) (*Device, error) {
	const q = `
INSERT INTO user_devices (user_id, push_token, push_platform, last_seen_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (user_id, push_token) DO UPDATE SET
    push_platform = EXCLUDED.push_platform,
    last_seen_at = NOW()
RETURNING id, user_id, push_token, push_platform, last_seen_at, created_at;`
	var d Device
	if err := r.q(ctx).QueryRow(ctx, q, device.UserID, device.PushToken, device.Platform).
		Scan(&d.ID, &d.UserID, &d.PushToken, &d.Platform, &d.LastSeenAt, &d.CreatedAt); err != nil {
		return nil, fmt.Errorf("upsert device: %w", err)
	}
	return &d, nil
}
