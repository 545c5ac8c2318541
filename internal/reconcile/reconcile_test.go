package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconapp/beacon-server/internal/domain"
	"github.com/beaconapp/beacon-server/internal/reconcile"
	"github.com/beaconapp/beacon-server/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()

	for _, id := range []string{"user-a", "user-c"} {
		u := &domain.User{Name: id}
		u.ID = id
		require.NoError(t, s.CreateUser(ctx, u))
	}

	g := &domain.Group{Title: "g", Shortcode: "GGGGGG", LeaderID: "user-a", Members: []string{"user-c"}}
	g.ID = "group-g"
	require.NoError(t, s.CreateGroup(ctx, g))

	b := &domain.Beacon{
		Title: "b", Shortcode: "BBBBBB", LeaderID: "user-a", GroupID: "group-g",
		Followers: []string{"user-c"},
		StartsAt:  time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	}
	b.ID = "beacon-b"
	require.NoError(t, s.CreateBeacon(ctx, b))
}

func symmetric(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.AddUserGroup(ctx, "user-a", "group-g"))
	require.NoError(t, s.AddUserGroup(ctx, "user-c", "group-g"))
	require.NoError(t, s.AddUserBeacon(ctx, "user-a", "beacon-b"))
	require.NoError(t, s.AddUserBeacon(ctx, "user-c", "beacon-b"))
	require.NoError(t, s.AddGroupBeacon(ctx, "group-g", "beacon-b"))
}

func TestReconcile_CleanGraphHasNoFindings(t *testing.T) {
	s := newStore(t)
	seed(t, s)
	symmetric(t, s)

	report, err := reconcile.New(s, nil).Reconcile(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
	assert.Equal(t, 2, report.Users)
	assert.Equal(t, 1, report.Beacons)
}

func TestReconcile_DetectsAndRepairsMissingBackrefs(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seed(t, s) // no user-side refs, no group.beacons entry

	r := reconcile.New(s, nil)

	report, err := r.Reconcile(ctx, false)
	require.NoError(t, err)
	counts := report.Counts()
	assert.Equal(t, 2, counts[reconcile.KindBeaconBackref])
	assert.Equal(t, 2, counts[reconcile.KindGroupBackref])
	assert.Equal(t, 1, counts[reconcile.KindMissingGroupBeacon])
	assert.Zero(t, report.Repaired)

	report, err = r.Reconcile(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Repaired)

	c, err := s.GetUser(ctx, "user-c")
	require.NoError(t, err)
	assert.Equal(t, []string{"group-g"}, c.Groups)
	assert.Equal(t, []string{"beacon-b"}, c.Beacons)

	g, err := s.GetGroup(ctx, "group-g")
	require.NoError(t, err)
	assert.Equal(t, []string{"beacon-b"}, g.Beacons)

	report, err = r.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}

func TestReconcile_PullsStaleReferences(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seed(t, s)
	symmetric(t, s)

	// Left-over refs to documents that are gone.
	require.NoError(t, s.AddUserBeacon(ctx, "user-c", "beacon-gone"))
	require.NoError(t, s.AddUserGroup(ctx, "user-c", "group-gone"))
	require.NoError(t, s.AddGroupBeacon(ctx, "group-g", "beacon-gone"))
	require.NoError(t, s.AddBeaconLandmark(ctx, "beacon-b", "landmark-gone"))
	require.NoError(t, s.AddBeaconFollower(ctx, "beacon-b", "user-gone"))
	require.NoError(t, s.AddGroupMember(ctx, "group-g", "user-gone"))

	r := reconcile.New(s, nil)
	report, err := r.Reconcile(ctx, true)
	require.NoError(t, err)

	counts := report.Counts()
	assert.Equal(t, 1, counts[reconcile.KindStaleUserBeacon])
	assert.Equal(t, 1, counts[reconcile.KindStaleUserGroup])
	assert.Equal(t, 1, counts[reconcile.KindStaleGroupBeacon])
	assert.Equal(t, 1, counts[reconcile.KindStaleLandmark])
	assert.Equal(t, 1, counts[reconcile.KindDanglingFollower])
	assert.Equal(t, 1, counts[reconcile.KindDanglingMember])
	assert.Equal(t, 6, report.Repaired)

	b, err := s.GetBeacon(ctx, "beacon-b")
	require.NoError(t, err)
	assert.Equal(t, []string{"user-c"}, b.Followers)
	assert.Empty(t, b.Landmarks)

	report, err = r.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, report.Findings)
}

func TestReconcile_UserNoLongerFollowingIsPulled(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seed(t, s)
	symmetric(t, s)

	// Beacon side is authoritative: dropping the follower there leaves the
	// user's reference stale.
	require.NoError(t, s.PullBeaconFollowers(ctx, "beacon-b", "user-c"))

	report, err := reconcile.New(s, nil).Reconcile(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []reconcile.Finding{{Kind: reconcile.KindStaleUserBeacon, Doc: "user-c", Ref: "beacon-b"}}, report.Findings)

	c, err := s.GetUser(ctx, "user-c")
	require.NoError(t, err)
	assert.Empty(t, c.Beacons)
}
