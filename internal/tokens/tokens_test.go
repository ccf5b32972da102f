package tokens

import (
	"testing"
	"time"

	"github.com/sectify/sectify/internal/apierr"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return New([]byte("test-signing-secret-32-bytes!!!"), 30*time.Minute, 5*time.Minute)
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	s := newTestService()
	tok, err := s.Issue(PurposeAccess, "user-1", "10.0.0.1")
	require.NoError(t, err)

	claims, err := s.Verify(tok, PurposeAccess, "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, PurposeAccess, claims.Purpose)
}

func TestVerifyRejectsWrongPurpose(t *testing.T) {
	s := newTestService()
	tok, err := s.Issue(PurposeMFA, "user-1", "10.0.0.1")
	require.NoError(t, err)

	_, err = s.Verify(tok, PurposeAccess, "10.0.0.1")
	requireAuthRequired(t, err)
}

func TestVerifyRejectsWrongIP(t *testing.T) {
	s := newTestService()
	tok, err := s.Issue(PurposeAccess, "user-1", "10.0.0.1")
	require.NoError(t, err)

	_, err = s.Verify(tok, PurposeAccess, "10.0.0.2")
	requireAuthRequired(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	s := newTestService()
	base := time.Now()
	s.now = func() time.Time { return base }

	tok, err := s.Issue(PurposeMFA, "user-1", "10.0.0.1")
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(10 * time.Minute) }
	_, err = s.Verify(tok, PurposeMFA, "10.0.0.1")
	requireAuthRequired(t, err)
}

func TestVerifyRejectsBeyondMaxAge(t *testing.T) {
	s := newTestService()
	base := time.Now()
	s.now = func() time.Time { return base }

	tok, err := s.Issue(PurposeAccess, "user-1", "10.0.0.1")
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add((MaxAgeSeconds + 60) * time.Second) }
	_, err = s.Verify(tok, PurposeAccess, "10.0.0.1")
	requireAuthRequired(t, err)
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	s := newTestService()
	other := New([]byte("a-totally-different-secret-here"), 30*time.Minute, 5*time.Minute)
	tok, err := other.Issue(PurposeAccess, "user-1", "10.0.0.1")
	require.NoError(t, err)

	_, err = s.Verify(tok, PurposeAccess, "10.0.0.1")
	requireAuthRequired(t, err)
}

func requireAuthRequired(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierr.KindAuthRequired, apiErr.Kind)
}
