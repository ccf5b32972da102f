package keyalias

import (
	"testing"
	"time"

	"github.com/sectify/sectify/internal/apierr"
	"github.com/stretchr/testify/require"
)

func TestMintResolveRoundTrip(t *testing.T) {
	s := New()
	key := []byte("0123456789abcdef")
	alias, err := s.Mint(key, "user-1", "10.0.0.1")
	require.NoError(t, err)
	require.Len(t, alias, 32, "alias must be 32 hex chars (128-bit)")

	got, err := s.Resolve(alias, "user-1", "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, key, got)
}

func TestResolvePublicTrackSkipsOwnerCheck(t *testing.T) {
	s := New()
	key := []byte("key-bytes-here..")
	alias, err := s.Mint(key, "", "10.0.0.1")
	require.NoError(t, err)

	got, err := s.Resolve(alias, "anyone-or-anonymous", "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, key, got)
}

func TestResolveRejectsWrongOwner(t *testing.T) {
	s := New()
	alias, err := s.Mint([]byte("key-bytes-here"), "user-1", "10.0.0.1")
	require.NoError(t, err)

	_, err = s.Resolve(alias, "user-2", "10.0.0.1")
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierr.KindForbidden, apiErr.Kind)
}

func TestResolveRejectsWrongIP(t *testing.T) {
	s := New()
	alias, err := s.Mint([]byte("key-bytes-here"), "user-1", "10.0.0.1")
	require.NoError(t, err)

	_, err = s.Resolve(alias, "user-1", "10.0.0.2")
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierr.KindForbidden, apiErr.Kind)
}

func TestResolveUnknownAliasIsNotFound(t *testing.T) {
	s := New()
	_, err := s.Resolve("does-not-exist", "user-1", "10.0.0.1")
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierr.KindNotFound, apiErr.Kind)
}

func TestResolveExpiredAliasIsNotFound(t *testing.T) {
	s := New()
	now := time.Now()
	s.now = func() time.Time { return now }

	alias, err := s.Mint([]byte("key-bytes-here"), "user-1", "10.0.0.1")
	require.NoError(t, err)

	s.now = func() time.Time { return now.Add(TTL + time.Second) }
	_, err = s.Resolve(alias, "user-1", "10.0.0.1")
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierr.KindNotFound, apiErr.Kind)
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	s := New()
	now := time.Now()
	s.now = func() time.Time { return now }

	_, err := s.Mint([]byte("key-bytes-here"), "user-1", "10.0.0.1")
	require.NoError(t, err)

	s.now = func() time.Time { return now.Add(TTL + time.Second) }
	removed := s.Sweep()
	require.Equal(t, 1, removed)
	require.Equal(t, 0, s.Sweep())
}
