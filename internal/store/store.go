// Package store is Sectify's Postgres persistence layer, holding only the
// two tables that actually need durability: users and tracks. Sessions,
// access grants, and key aliases are deliberately NOT modeled here — they
// live in internal/tokens (stateless JWTs), internal/authz, and
// internal/keyalias respectively, none of which persist to the database,
// per spec.md's data model.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a row lookup finds nothing.
var ErrNotFound = errors.New("store: not found")

// Store holds the connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect connects to Postgres using dsn (spec.md's DB_URL) and returns a
// Store.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Ping checks that Postgres is reachable, for the readiness probe.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, p CreateUserParams) (User, error) {
	var u User
	row := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, $3)
RETURNING id, email, password_hash, totp_secret, mfa_enabled, created_at, last_login_at`,
		p.ID, p.Email, p.PasswordHash)
	if err := scanUser(row, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// GetUserByEmail returns a user by email, or ErrNotFound.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	row := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, totp_secret, mfa_enabled, created_at, last_login_at FROM users WHERE email = $1`,
		email)
	if err := scanUser(row, &u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// GetUserByID returns a user by ID, or ErrNotFound.
func (s *Store) GetUserByID(ctx context.Context, id string) (User, error) {
	var u User
	row := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, totp_secret, mfa_enabled, created_at, last_login_at FROM users WHERE id = $1`,
		id)
	if err := scanUser(row, &u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// TouchLastLogin stamps a user's last_login_at to now().
func (s *Store) TouchLastLogin(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET last_login_at = now() WHERE id = $1`, userID)
	return err
}

// SetTOTPSecret stores a user's enrolled TOTP secret and flips mfa_enabled
// on. Enrollment UX itself is out of scope (spec.md's Non-goals); this is
// the minimal persistence hook a future enrollment flow would call.
func (s *Store) SetTOTPSecret(ctx context.Context, userID, secret string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET totp_secret = $2, mfa_enabled = true WHERE id = $1`, userID, secret)
	return err
}

// CreateTrack inserts a new track row.
func (s *Store) CreateTrack(ctx context.Context, p CreateTrackParams) (Track, error) {
	var t Track
	row := s.pool.QueryRow(ctx,
		`INSERT INTO tracks (id, owner_user_id, title, public, file_key, duration_ms, sample_rate, channels)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, owner_user_id, title, public, file_key, duration_ms, sample_rate, channels, created_at`,
		p.ID, p.OwnerUserID, p.Title, p.Public, p.FileKey, p.DurationMs, p.SampleRate, p.Channels)
	if err := scanTrack(row, &t); err != nil {
		return Track{}, err
	}
	return t, nil
}

// GetTrackByID returns a track by ID, or ErrNotFound.
func (s *Store) GetTrackByID(ctx context.Context, id string) (Track, error) {
	var t Track
	row := s.pool.QueryRow(ctx,
		`SELECT id, owner_user_id, title, public, file_key, duration_ms, sample_rate, channels, created_at FROM tracks WHERE id = $1`,
		id)
	if err := scanTrack(row, &t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Track{}, ErrNotFound
		}
		return Track{}, err
	}
	return t, nil
}

// ListPublicTracks returns every track with public = true, newest first —
// backs GET /api/v1/audio/tracks/public.
func (s *Store) ListPublicTracks(ctx context.Context) ([]Track, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_user_id, title, public, file_key, duration_ms, sample_rate, channels, created_at
FROM tracks WHERE public = true ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Track
	for rows.Next() {
		var t Track
		if err := rows.Scan(&t.ID, &t.OwnerUserID, &t.Title, &t.Public, &t.FileKey, &t.DurationMs, &t.SampleRate, &t.Channels, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TrackVisibility implements internal/authz.TrackLookup directly against
// Postgres.
func (s *Store) TrackVisibility(trackID string) (exists bool, public bool, ownerUserID string, err error) {
	t, err := s.GetTrackByID(context.Background(), trackID)
	if errors.Is(err, ErrNotFound) {
		return false, false, "", nil
	}
	if err != nil {
		return false, false, "", err
	}
	return true, t.Public, t.OwnerUserID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, u *User) error {
	var totpSecret sql.NullString
	var lastLoginAt sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &totpSecret, &u.MFAEnabled, &u.CreatedAt, &lastLoginAt); err != nil {
		return err
	}
	if totpSecret.Valid {
		u.TOTPSecret = &totpSecret.String
	}
	if lastLoginAt.Valid {
		u.LastLoginAt = &lastLoginAt.Time
	}
	return nil
}

func scanTrack(row rowScanner, t *Track) error {
	return row.Scan(&t.ID, &t.OwnerUserID, &t.Title, &t.Public, &t.FileKey, &t.DurationMs, &t.SampleRate, &t.Channels, &t.CreatedAt)
}
