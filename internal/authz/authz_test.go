package authz

import (
	"testing"
	"time"

	"github.com/sectify/sectify/internal/apierr"
	"github.com/stretchr/testify/require"
)

type fakeTracks struct {
	exists bool
	public bool
	owner  string
}

func (f fakeTracks) TrackVisibility(trackID string) (bool, bool, string, error) {
	return f.exists, f.public, f.owner, nil
}

func TestCheckTrackAccessPublicAnonymousStream(t *testing.T) {
	s := New(fakeTracks{exists: true, public: true})
	err := s.CheckTrackAccess("t1", "", "", "1.1.1.1", OpStream)
	require.NoError(t, err)
}

func TestCheckTrackAccessPrivateAnonymousRequiresAuth(t *testing.T) {
	s := New(fakeTracks{exists: true, public: false})
	err := s.CheckTrackAccess("t1", "", "", "1.1.1.1", OpStream)
	requireKind(t, err, apierr.KindAuthRequired)
}

func TestCheckTrackAccessMissingTrackIsNotFound(t *testing.T) {
	s := New(fakeTracks{exists: false})
	err := s.CheckTrackAccess("missing", "user-1", "", "1.1.1.1", OpStream)
	requireKind(t, err, apierr.KindNotFound)
}

func TestCheckTrackAccessOwnerAllowedWithoutGrant(t *testing.T) {
	s := New(fakeTracks{exists: true, public: false, owner: "user-1"})
	err := s.CheckTrackAccess("t1", "user-1", "", "1.1.1.1", OpStream)
	require.NoError(t, err)
}

func TestCheckTrackAccessNonOwnerPrivateForbidden(t *testing.T) {
	s := New(fakeTracks{exists: true, public: false, owner: "user-1"})
	err := s.CheckTrackAccess("t1", "user-2", "", "1.1.1.1", OpStream)
	requireKind(t, err, apierr.KindForbidden)
}

func TestCheckTrackAccessValidGrantAllowed(t *testing.T) {
	s := New(fakeTracks{exists: true, public: false, owner: "user-1"})
	g, err := s.Grant("t1", "user-2", "1.1.1.1", time.Hour)
	require.NoError(t, err)

	err = s.CheckTrackAccess("t1", "user-2", g.SessionID, "1.1.1.1", OpStream)
	require.NoError(t, err)
}

func TestCheckTrackAccessGrantWrongIPForbidden(t *testing.T) {
	s := New(fakeTracks{exists: true, public: false, owner: "user-1"})
	g, err := s.Grant("t1", "user-2", "1.1.1.1", time.Hour)
	require.NoError(t, err)

	err = s.CheckTrackAccess("t1", "user-2", g.SessionID, "2.2.2.2", OpStream)
	requireKind(t, err, apierr.KindForbidden)
}

func TestCheckTrackAccessGrantSameFirstTwoOctetsAllowed(t *testing.T) {
	s := New(fakeTracks{exists: true, public: false, owner: "user-1"})
	g, err := s.Grant("t1", "user-2", "10.1.0.1", time.Hour)
	require.NoError(t, err)

	err = s.CheckTrackAccess("t1", "user-2", g.SessionID, "10.1.200.50", OpStream)
	require.NoError(t, err, "a roaming caller within the same first two octets must be allowed")
}

func TestCheckTrackAccessExpiredGrant(t *testing.T) {
	s := New(fakeTracks{exists: true, public: false, owner: "user-1"})
	base := time.Now()
	s.now = func() time.Time { return base }

	g, err := s.Grant("t1", "user-2", "1.1.1.1", time.Minute)
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	err = s.CheckTrackAccess("t1", "user-2", g.SessionID, "1.1.1.1", OpStream)
	requireKind(t, err, apierr.KindAuthRequired)
}

func TestRevokeUserSessionsRemovesOnlyThatUsersGrants(t *testing.T) {
	s := New(fakeTracks{exists: true, public: false, owner: "user-1"})
	_, err := s.Grant("t1", "user-2", "1.1.1.1", time.Hour)
	require.NoError(t, err)
	_, err = s.Grant("t1", "user-3", "1.1.1.1", time.Hour)
	require.NoError(t, err)

	removed := s.RevokeUserSessions("user-2")
	require.Equal(t, 1, removed)
}

func requireKind(t *testing.T, err error, want apierr.Kind) {
	t.Helper()
	require.Error(t, err)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, want, apiErr.Kind)
}
