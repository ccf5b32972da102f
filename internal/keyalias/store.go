// Package keyalias implements C5 (KeyAliasStore): a short-lived, in-memory
// binding from a random alias to an HLS segment key, scoped to the minting
// IP and owning user so a leaked manifest URL cannot be replayed from
// another network or account. Per spec.md §4.5 aliases are never persisted
// to the database — they live only as long as this process does.
package keyalias

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"time"

	"github.com/sectify/sectify/internal/apierr"
	"github.com/sectify/sectify/internal/metrics"
)

// TTL is the alias lifetime, per spec.md §4.5 ("5-min expiry").
const TTL = 5 * time.Minute

type entry struct {
	key         []byte
	ownerUserID string
	ip          string
	expiresAt   time.Time
}

// Store mints and resolves key aliases. Zero value is unusable; use New.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// New constructs an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]entry), now: time.Now}
}

// Mint generates a fresh random alias bound to key, ownerUserID and ip, and
// returns the alias. The alias carries no information about the key itself.
func (s *Store) Mint(key []byte, ownerUserID, ip string) (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	alias := hex.EncodeToString(raw)

	keyCopy := append([]byte(nil), key...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[alias] = entry{
		key:         keyCopy,
		ownerUserID: ownerUserID,
		ip:          ip,
		expiresAt:   s.now().Add(TTL),
	}
	return alias, nil
}

// Resolve returns the key bound to alias, provided the caller's
// (ownerUserID, ip) matches the binding recorded at Mint time and the
// binding has not expired. An alias minted with no owner (a public track)
// skips the owner check entirely — spec.md §4.5's "sub ≠ owner_user_id"
// denial applies to private tracks only. A mismatched owner or IP returns
// Forbidden; an unknown or expired alias returns NotFound, per spec.md §4.5.
func (s *Store) Resolve(alias, callerUserID, ip string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[alias]
	s.mu.RUnlock()
	if !ok {
		metrics.KeyResolutions.WithLabelValues("not_found").Inc()
		return nil, apierr.NotFound("key alias not found")
	}
	if s.now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, alias)
		s.mu.Unlock()
		metrics.KeyResolutions.WithLabelValues("expired").Inc()
		return nil, apierr.NotFound("key alias expired")
	}

	ownerMismatch := e.ownerUserID != "" && !constantTimeEqual(e.ownerUserID, callerUserID)
	if ownerMismatch || !constantTimeEqual(e.ip, ip) {
		metrics.KeyResolutions.WithLabelValues("forbidden").Inc()
		return nil, apierr.Forbidden("key alias is bound to a different session")
	}

	metrics.KeyResolutions.WithLabelValues("ok").Inc()
	return append([]byte(nil), e.key...), nil
}

// Sweep removes every expired alias and reports how many it removed. The
// orchestrator runs this on a timer alongside the Reaper so the map does not
// grow unbounded across a long-lived process.
func (s *Store) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for alias, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, alias)
			removed++
		}
	}
	return removed
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
