// Package tokens implements C7 (TokenService): HS256 JWT issuance and
// verification for the two token kinds spec.md §4.7 defines — a 30-minute
// access token and a 5-minute MFA token — each bound to its purpose, the
// issuing IP, and its own age so a stolen access token cannot be replayed
// as an MFA token or from a different network.
package tokens

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sectify/sectify/internal/apierr"
)

// Purpose distinguishes the two token kinds spec.md §4.7 names.
type Purpose string

const (
	PurposeAccess Purpose = "access"
	PurposeMFA    Purpose = "mfa_verification"
)

// MaxAgeSeconds is the absolute ceiling spec.md §4.7 imposes regardless of a
// token's stated TTL ("86400s max age").
const MaxAgeSeconds = 86400

// ClockSkew is the leeway allowed when comparing exp/iat against the
// verifier's clock, per spec.md §4.7 ("30s clock skew").
const ClockSkew = 30 * time.Second

// claims is the JWT payload. IPHash binds the token to the issuing
// request's client IP without putting a raw IP in a bearer token that
// might end up in a log line.
type claims struct {
	Subject string  `json:"sub"`
	Purpose Purpose `json:"purpose"`
	IPHash  string  `json:"ip_hash"`
	jwt.RegisteredClaims
}

// Service issues and verifies tokens under a single HS256 secret.
type Service struct {
	secret    []byte
	accessTTL time.Duration
	mfaTTL    time.Duration
	now       func() time.Time
}

// New constructs a Service. accessTTL and mfaTTL come from config
// (TOKEN_TTL_ACCESS_MIN and TOKEN_TTL_MFA_MIN).
func New(secret []byte, accessTTL, mfaTTL time.Duration) *Service {
	return &Service{secret: secret, accessTTL: accessTTL, mfaTTL: mfaTTL, now: time.Now}
}

func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}

// Issue mints a token of the given purpose for subject (a user ID), bound
// to ip.
func (s *Service) Issue(purpose Purpose, subject, ip string) (string, error) {
	ttl := s.accessTTL
	if purpose == PurposeMFA {
		ttl = s.mfaTTL
	}
	now := s.now()
	c := claims{
		Subject: subject,
		Purpose: purpose,
		IPHash:  hashIP(ip),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// Claims is the verified, caller-facing result of Verify.
type Claims struct {
	Subject string
	Purpose Purpose
	IssuedAt time.Time
}

// Verify parses tokenStr, checks its signature, that its purpose matches
// want, that it was issued from ip, and that it is within both its own
// expiry and the absolute MaxAgeSeconds ceiling. Any failure is reported as
// apierr.AuthRequired so callers never need to special-case JWT library
// errors.
func (s *Service) Verify(tokenStr string, want Purpose, ip string) (Claims, error) {
	var c claims
	tok, err := jwt.ParseWithClaims(tokenStr, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("tokens: unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithLeeway(ClockSkew), jwt.WithTimeFunc(s.now))
	if err != nil || !tok.Valid {
		return Claims{}, apierr.AuthRequired("invalid or expired token")
	}

	if c.Purpose != want {
		return Claims{}, apierr.AuthRequired("token purpose mismatch")
	}
	if c.IPHash != hashIP(ip) {
		return Claims{}, apierr.AuthRequired("token was not issued for this client")
	}
	if c.IssuedAt == nil {
		return Claims{}, apierr.AuthRequired("token missing issued-at")
	}

	age := s.now().Sub(c.IssuedAt.Time)
	if age > MaxAgeSeconds*time.Second+ClockSkew {
		return Claims{}, apierr.AuthRequired("token exceeds maximum age")
	}

	return Claims{Subject: c.Subject, Purpose: c.Purpose, IssuedAt: c.IssuedAt.Time}, nil
}
