// Package kdf derives symmetric key material from Sectify's master secret —
// see spec.md §4.1 (C1). A single master secret, loaded once at process
// startup, never leaves this package; every key handed to a caller is the
// output of PBKDF2-HMAC-SHA256 under a purpose-specific salt, so compromise
// of one derived key does not reveal the master secret or any other key.
package kdf

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Purpose is a fixed ASCII label mixed into every derivation so that keys
// derived for one purpose cannot be confused with keys derived for another,
// even from the same salt.
type Purpose string

const (
	PurposeFileAtRest  Purpose = "file-at-rest"
	PurposeHLSSegment  Purpose = "hls-segment"
	PurposeSessionBind Purpose = "session-bind"
)

const (
	iterations = 200_000
	keyLen     = 32
	// SaltSize is the byte length of a CSPRNG-generated salt (used for
	// per-segment keys; file keys use a deterministic salt instead).
	SaltSize = 16
)

// Service holds the process-wide master secret. Zero is called on shutdown
// to scrub it from memory — see spec.md §5 ("No global mutable state beyond
// these tables and a process-wide master_secret ... the secret is zeroed on
// shutdown").
type Service struct {
	secret []byte
}

// New copies secret into the Service's own buffer. The caller's copy is the
// caller's responsibility to scrub.
func New(secret []byte) *Service {
	s := make([]byte, len(secret))
	copy(s, secret)
	return &Service{secret: s}
}

// Zero overwrites the master secret in place. Called once on shutdown.
func (s *Service) Zero() {
	for i := range s.secret {
		s.secret[i] = 0
	}
}

// Derive returns 32 bytes of key material for (purpose, salt).
func (s *Service) Derive(purpose Purpose, salt []byte) []byte {
	info := make([]byte, 0, len(purpose)+1+len(salt))
	info = append(info, []byte(purpose)...)
	info = append(info, 0)
	info = append(info, salt...)
	return pbkdf2.Key(sha256.New, s.secret, info, iterations, keyLen)
}

// FileSalt computes the deterministic salt for a file-at-rest key, per
// spec.md §4.1: salt = SHA256(user_id ∥ track_id).
func FileSalt(userID, trackID string) []byte {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte(trackID))
	return h.Sum(nil)
}

// DeriveFileKey derives the per-file at-rest key for (userID, trackID).
func (s *Service) DeriveFileKey(userID, trackID string) []byte {
	return s.Derive(PurposeFileAtRest, FileSalt(userID, trackID))
}

// DeriveSegmentKey derives a key under a CSPRNG-generated 16-byte salt. The
// salt must be persisted alongside the track so the same segment key can be
// re-derived later (packaging is idempotent per spec.md §4.4).
func (s *Service) DeriveSegmentKey(salt []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("segment salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	return s.Derive(PurposeHLSSegment, salt), nil
}
