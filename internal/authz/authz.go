// Package authz implements C6 (AuthorizationService): spec.md §4.6's
// check_track_access decision point and the AccessGrant table it consults,
// keyed by a 32-byte session_id so a grant can be revoked independently of
// the user's login session.
package authz

import (
	"crypto/rand"
	"encoding/hex"
	"net"
	"sync"
	"time"

	"github.com/sectify/sectify/internal/apierr"
)

// Op names an operation check_track_access is asked to authorize.
type Op string

const (
	OpStream Op = "stream"
	OpDetect Op = "detect"
)

// SessionIDSize is the length in bytes of a grant's session_id before hex
// encoding, per spec.md §4.6.
const SessionIDSize = 32

// Grant is one row of the AccessGrant table.
type Grant struct {
	SessionID string
	TrackID   string
	UserID    string
	IP        string
	ExpiresAt time.Time
}

// TrackLookup answers whether a track exists and, if so, whether it is
// public. The httpapi layer backs this with internal/store.
type TrackLookup interface {
	TrackVisibility(trackID string) (exists bool, public bool, ownerUserID string, err error)
}

// Service holds the in-process AccessGrant table. Grants are not persisted
// across restarts — a restart simply forces re-authorization, which is
// cheap relative to running a detached grant store.
type Service struct {
	mu     sync.RWMutex
	grants map[string]Grant
	tracks TrackLookup
	now    func() time.Time
}

// New constructs a Service backed by tracks for existence/visibility
// lookups.
func New(tracks TrackLookup) *Service {
	return &Service{grants: make(map[string]Grant), tracks: tracks, now: time.Now}
}

// Grant mints a fresh session_id and records an AccessGrant for
// (trackID, userID, ip), valid for ttl.
func (s *Service) Grant(trackID, userID, ip string, ttl time.Duration) (Grant, error) {
	raw := make([]byte, SessionIDSize)
	if _, err := rand.Read(raw); err != nil {
		return Grant{}, err
	}
	g := Grant{
		SessionID: hex.EncodeToString(raw),
		TrackID:   trackID,
		UserID:    userID,
		IP:        ip,
		ExpiresAt: s.now().Add(ttl),
	}
	s.mu.Lock()
	s.grants[g.SessionID] = g
	s.mu.Unlock()
	return g, nil
}

// CheckTrackAccess is spec.md §4.6's check_track_access. userID may be empty
// for an anonymous caller, in which case only a public track is reachable
// and only for OpStream.
func (s *Service) CheckTrackAccess(trackID, userID, sessionID, ip string, op Op) error {
	exists, public, ownerUserID, err := s.tracks.TrackVisibility(trackID)
	if err != nil {
		return err
	}
	if !exists {
		return apierr.NotFound("track not found")
	}

	if userID == "" {
		if public && op == OpStream {
			return nil
		}
		return apierr.AuthRequired("authentication required for this track")
	}

	if sessionID != "" {
		s.mu.RLock()
		g, ok := s.grants[sessionID]
		s.mu.RUnlock()
		if ok && g.TrackID == trackID && g.UserID == userID {
			if s.now().After(g.ExpiresAt) {
				return apierr.AuthRequired("access grant expired")
			}
			if !ipPrefixMatch(g.IP, ip) {
				return apierr.Forbidden("access grant is bound to a different network")
			}
			return nil
		}
	}

	if public {
		return nil
	}
	if userID == ownerUserID {
		return nil
	}
	return apierr.Forbidden("not authorized for this track")
}

// ipPrefixMatch implements spec.md §4.6(c)'s binding check: the first two
// octets of an IPv4 address, or the first 32 bits of an IPv6 address, must
// match the minting IP. A stricter full-address match would drop legitimate
// mobile roamers whose trailing octets change as they hop cell towers.
func ipPrefixMatch(mintedIP, callerIP string) bool {
	a := net.ParseIP(mintedIP)
	b := net.ParseIP(callerIP)
	if a == nil || b == nil {
		return mintedIP == callerIP
	}
	if a4, b4 := a.To4(), b.To4(); a4 != nil && b4 != nil {
		return a4[0] == b4[0] && a4[1] == b4[1]
	}
	a16, b16 := a.To16(), b.To16()
	if a16 == nil || b16 == nil {
		return mintedIP == callerIP
	}
	for i := 0; i < 4; i++ {
		if a16[i] != b16[i] {
			return false
		}
	}
	return true
}

// RevokeUserSessions deletes every AccessGrant owned by userID, per
// spec.md §4.6. It returns the number of grants removed.
func (s *Service) RevokeUserSessions(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, g := range s.grants {
		if g.UserID == userID {
			delete(s.grants, id)
			removed++
		}
	}
	return removed
}

// Sweep removes expired grants, independent of RevokeUserSessions.
func (s *Service) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, g := range s.grants {
		if now.After(g.ExpiresAt) {
			delete(s.grants, id)
			removed++
		}
	}
	return removed
}
