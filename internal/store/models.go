package store

import "time"

// User is spec.md's user record. PasswordHash is an argon2id encoded hash
// string (algorithm$version$params$salt$hash), never a raw or bcrypt hash —
// spec.md is explicit that Sectify uses argon2id.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	TOTPSecret     *string    `json:"-"`
	MFAEnabled     bool       `json:"mfa_enabled"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
}

// Track is spec.md's track record. OwnerUserID identifies the uploader;
// Public governs anonymous stream access in internal/authz.
type Track struct {
	ID          string    `json:"id"`
	OwnerUserID string    `json:"owner_user_id"`
	Title       string    `json:"title"`
	Public      bool      `json:"public"`
	FileKey     string    `json:"file_key"`
	DurationMs  int       `json:"duration_ms"`
	SampleRate  int       `json:"sample_rate"`
	Channels    int       `json:"channels"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateUserParams is the input to CreateUser.
type CreateUserParams struct {
	ID           string
	Email        string
	PasswordHash string
}

// CreateTrackParams is the input to CreateTrack.
type CreateTrackParams struct {
	ID          string
	OwnerUserID string
	Title       string
	Public      bool
	FileKey     string
	DurationMs  int
	SampleRate  int
	Channels    int
}
