package sweeper_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/beaconapp/beacon-server/internal/domain"
	"github.com/beaconapp/beacon-server/internal/reconcile"
	"github.com/beaconapp/beacon-server/internal/store"
	"github.com/beaconapp/beacon-server/internal/sweeper"
)

type fakeIndex struct{ removed []string }

func (f *fakeIndex) RemoveBeacons(ids ...string) error {
	f.removed = append(f.removed, ids...)
	return nil
}

type fixture struct {
	store *store.Store
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return &fixture{store: s, now: time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)}
}

func (f *fixture) user(t *testing.T, id string) {
	t.Helper()
	u := &domain.User{Name: id}
	u.ID = id
	require.NoError(t, f.store.CreateUser(context.Background(), u))
}

func (f *fixture) group(t *testing.T, id, leader string, members ...string) {
	t.Helper()
	ctx := context.Background()
	g := &domain.Group{Title: id, Shortcode: "G" + id[len(id)-5:], LeaderID: leader, Members: members}
	g.ID = id
	require.NoError(t, f.store.CreateGroup(ctx, g))
	require.NoError(t, f.store.AddUserGroup(ctx, leader, id))
	for _, m := range members {
		require.NoError(t, f.store.AddUserGroup(ctx, m, id))
	}
}

// beacon creates a symmetric beacon that expired ago before the fixture's now.
func (f *fixture) beacon(t *testing.T, id, group, leader string, ago time.Duration, followers ...string) {
	t.Helper()
	ctx := context.Background()
	expires := f.now.Add(-ago)
	b := &domain.Beacon{
		Title: id, Shortcode: "B" + id[len(id)-5:], LeaderID: leader, GroupID: group,
		Followers: followers, StartsAt: expires.Add(-time.Hour), ExpiresAt: expires,
	}
	b.ID = id
	require.NoError(t, f.store.CreateBeacon(ctx, b))
	require.NoError(t, f.store.AddGroupBeacon(ctx, group, id))
	for _, uid := range b.Participants() {
		require.NoError(t, f.store.AddUserBeacon(ctx, uid, id))
	}
}

func (f *fixture) landmark(t *testing.T, id, beacon, creator string) {
	t.Helper()
	ctx := context.Background()
	l := &domain.Landmark{Title: id, BeaconID: beacon, CreatedBy: creator, Location: domain.Location{Lat: "1", Lon: "1"}}
	l.ID = id
	require.NoError(t, f.store.CreateLandmark(ctx, l))
	require.NoError(t, f.store.AddBeaconLandmark(ctx, beacon, id))
}

func TestSweeper_ReclaimsBeaconsPastRetention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.user(t, "user-leader")
	f.user(t, "user-follower")
	f.group(t, "group-00001", "user-leader", "user-follower")
	f.beacon(t, "beacon-00old", "group-00001", "user-leader", 31*24*time.Hour, "user-follower")
	f.beacon(t, "beacon-00new", "group-00001", "user-leader", 29*24*time.Hour, "user-follower")
	f.landmark(t, "landmark-1", "beacon-00old", "user-follower")
	f.landmark(t, "landmark-2", "beacon-00new", "user-follower")

	idx := &fakeIndex{}
	sw := sweeper.New(f.store, sweeper.Options{Index: idx})

	report, err := sw.Run(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Selected)
	assert.Equal(t, 1, report.BeaconsDeleted)
	assert.Equal(t, 1, report.LandmarksDeleted)
	assert.Equal(t, 1, report.GroupsTouched)
	assert.Equal(t, 2, report.UsersTouched)
	assert.Equal(t, []string{"beacon-00old"}, idx.removed)

	_, err = f.store.GetBeacon(ctx, "beacon-00old")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.store.GetLandmark(ctx, "landmark-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.store.GetLandmark(ctx, "landmark-2")
	assert.NoError(t, err)

	g, err := f.store.GetGroup(ctx, "group-00001")
	require.NoError(t, err)
	assert.Equal(t, []string{"beacon-00new"}, g.Beacons)

	for _, uid := range []string{"user-leader", "user-follower"} {
		u, err := f.store.GetUser(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, []string{"beacon-00new"}, u.Beacons, uid)
	}

	// A second run finds nothing left to do.
	report, err = sw.Run(ctx, f.now)
	require.NoError(t, err)
	assert.Zero(t, report.Selected)
	assert.False(t, report.Replayed)
}

func TestSweeper_ReplaysUnfinishedJournal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.user(t, "user-leader")
	f.group(t, "group-00001", "user-leader")
	require.NoError(t, f.store.AddGroupBeacon(ctx, "group-00001", "beacon-gone"))
	require.NoError(t, f.store.AddUserBeacon(ctx, "user-leader", "beacon-gone"))

	// A previous run deleted beacon-gone and died before pulling references.
	require.NoError(t, f.store.SaveSweepJournal(ctx, &store.SweepJournal{
		BeaconIDs: []string{"beacon-gone"},
		Groups:    map[string][]string{"group-00001": {"beacon-gone"}},
		Users:     map[string][]string{"user-leader": {"beacon-gone"}},
	}))

	report, err := sweeper.New(f.store, sweeper.Options{}).Run(ctx, f.now)
	require.NoError(t, err)
	assert.True(t, report.Replayed)

	g, err := f.store.GetGroup(ctx, "group-00001")
	require.NoError(t, err)
	assert.Empty(t, g.Beacons)

	u, err := f.store.GetUser(ctx, "user-leader")
	require.NoError(t, err)
	assert.Empty(t, u.Beacons)

	j, err := f.store.LoadSweepJournal(ctx)
	require.NoError(t, err)
	assert.Nil(t, j)
}

func TestSweeper_RunsReconcilerAfterSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.user(t, "user-leader")
	f.group(t, "group-00001", "user-leader")
	// Drift unrelated to expiry: the group lists a beacon that never existed.
	require.NoError(t, f.store.AddGroupBeacon(ctx, "group-00001", "beacon-ghost"))

	sw := sweeper.New(f.store, sweeper.Options{Reconciler: reconcile.New(f.store, nil)})
	report, err := sw.Run(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Repaired)

	g, err := f.store.GetGroup(ctx, "group-00001")
	require.NoError(t, err)
	assert.Empty(t, g.Beacons)
}

func TestSweeper_CanceledRunIsAbandoned(t *testing.T) {
	f := newFixture(t)
	f.user(t, "user-leader")
	f.group(t, "group-00001", "user-leader")
	f.beacon(t, "beacon-00old", "group-00001", "user-leader", 40*24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sweeper.New(f.store, sweeper.Options{}).Run(ctx, f.now)
	require.ErrorIs(t, err, context.Canceled)

	// The next run still reclaims it.
	report, err := sweeper.New(f.store, sweeper.Options{}).Run(context.Background(), f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.BeaconsDeleted)
}

func TestSchedule(t *testing.T) {
	s, err := sweeper.ParseSchedule("01:00")
	require.NoError(t, err)
	assert.Equal(t, sweeper.Schedule{Hour: 1}, s)

	loc := time.UTC
	assert.Equal(t, time.Date(2026, 3, 1, 1, 0, 0, 0, loc), s.Next(time.Date(2026, 3, 1, 0, 30, 0, 0, loc)))
	assert.Equal(t, time.Date(2026, 3, 2, 1, 0, 0, 0, loc), s.Next(time.Date(2026, 3, 1, 1, 0, 0, 0, loc)))
	assert.Equal(t, time.Date(2026, 3, 2, 1, 0, 0, 0, loc), s.Next(time.Date(2026, 3, 1, 23, 59, 0, 0, loc)))

	_, err = sweeper.ParseSchedule("25:00")
	assert.Error(t, err)
}

func TestJob_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	job := sweeper.NewJob(sweeper.New(f.store, sweeper.Options{}), sweeper.Schedule{Hour: 1}, true, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("job did not stop")
	}
}
