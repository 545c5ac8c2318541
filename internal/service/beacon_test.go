package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconapp/beacon-server/internal/domain"
	domainerrors "github.com/beaconapp/beacon-server/internal/errors"
	"github.com/beaconapp/beacon-server/internal/fanout"
	"github.com/beaconapp/beacon-server/internal/search"
	"github.com/beaconapp/beacon-server/internal/store"
)

func TestCreateBeacon(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ana, eve := env.user(t, "ana"), env.user(t, "eve")
	g := env.group(t, ana)

	b := env.beacon(t, ana, g, time.Hour)

	assert.Equal(t, ana.ID, b.LeaderID)
	assert.Equal(t, g.ID, b.GroupID)
	assert.Equal(t, []domain.Location{b.Location}, b.Route)
	assert.False(t, b.StartsAt.IsZero(), "startsAt defaults to now")
	assert.Contains(t, env.reload(t, ana).Beacons, b.ID)

	stored, err := env.store.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, stored.Beacons)
	assert.Contains(t, env.index.indexed, b.ID)

	created := env.events.ofVariant(fanout.VariantBeaconCreated)
	require.Len(t, created, 1)
	assert.Equal(t, []fanout.Topic{fanout.GroupTopic(g.ID)}, created[0].Topics)

	t.Run("non member", func(t *testing.T) {
		_, err := env.beacons.CreateBeacon(ctx, eve.ID, g.ID, CreateBeaconRequest{
			Title: "x", ExpiresAt: time.Now().Add(time.Hour), Location: b.Location,
		})
		requireCode(t, err, domainerrors.CodeForbidden, domainerrors.ReasonNotMember)
	})

	t.Run("starts after expiry", func(t *testing.T) {
		start := time.Now().Add(2 * time.Hour)
		_, err := env.beacons.CreateBeacon(ctx, ana.ID, g.ID, CreateBeaconRequest{
			Title: "x", StartsAt: &start, ExpiresAt: time.Now().Add(time.Hour), Location: b.Location,
		})
		requireCode(t, err, domainerrors.CodeInvalidState, "")
	})

	t.Run("bad coordinates", func(t *testing.T) {
		_, err := env.beacons.CreateBeacon(ctx, ana.ID, g.ID, CreateBeaconRequest{
			Title: "x", ExpiresAt: time.Now().Add(time.Hour), Location: domain.Location{Lat: "95", Lon: "7"},
		})
		requireCode(t, err, domainerrors.CodeValidation, "")
	})
}

func TestJoinBeacon_ImplicitGroupJoin(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ana, cat := env.user(t, "ana"), env.user(t, "cat")
	g := env.group(t, ana)
	b := env.beacon(t, ana, g, time.Hour)

	joined, err := env.beacons.JoinBeacon(ctx, cat.ID, JoinRequest{Shortcode: b.Shortcode})
	require.NoError(t, err)
	assert.Equal(t, []string{cat.ID}, joined.Followers)

	stored, err := env.store.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{cat.ID}, stored.Members)

	cat = env.reload(t, cat)
	assert.Equal(t, []string{b.ID}, cat.Beacons)
	assert.Equal(t, []string{g.ID}, cat.Groups)

	events := env.events.ofVariant(fanout.VariantMemberJoined)
	require.Len(t, events, 2, "one for the group, one for the beacon")
	assert.Equal(t, []fanout.Topic{fanout.GroupTopic(g.ID)}, events[0].Topics)
	assert.Equal(t, b.ID, events[0].Data.(fanout.MemberJoined).BeaconID)
	assert.Equal(t, []fanout.Topic{fanout.BeaconTopic(b.ID)}, events[1].Topics)

	_, err = env.beacons.JoinBeacon(ctx, cat.ID, JoinRequest{Shortcode: b.Shortcode})
	requireCode(t, err, domainerrors.CodeConflict, domainerrors.ReasonAlreadyFollowing)

	_, err = env.beacons.JoinBeacon(ctx, ana.ID, JoinRequest{Shortcode: b.Shortcode})
	requireCode(t, err, domainerrors.CodeConflict, domainerrors.ReasonAlreadyLeading)
}

func TestJoinBeacon_Expired(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ana, ben := env.user(t, "ana"), env.user(t, "ben")
	g := env.group(t, ana)
	b := env.beacon(t, ana, g, time.Hour)

	env.beacons.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err := env.beacons.JoinBeacon(ctx, ben.ID, JoinRequest{Shortcode: b.Shortcode})
	requireCode(t, err, domainerrors.CodeExpired, "")
	assert.Empty(t, env.reload(t, ben).Groups, "no implicit group join for an expired beacon")
}

func TestDeleteBeacon(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ana, cat := env.user(t, "ana"), env.user(t, "cat")
	g := env.group(t, ana)
	b := env.beacon(t, ana, g, time.Hour)
	_, err := env.beacons.JoinBeacon(ctx, cat.ID, JoinRequest{Shortcode: b.Shortcode})
	require.NoError(t, err)
	lm, err := env.beacons.CreateLandmark(ctx, cat.ID, b.ID, CreateLandmarkRequest{
		Title: "hut", Location: domain.Location{Lat: "46.56", Lon: "7.84"},
	})
	require.NoError(t, err)

	err = env.beacons.DeleteBeacon(ctx, cat.ID, b.ID)
	requireCode(t, err, domainerrors.CodeForbidden, domainerrors.ReasonNotLeader)

	require.NoError(t, env.beacons.DeleteBeacon(ctx, ana.ID, b.ID))

	_, err = env.store.GetBeacon(ctx, b.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = env.store.GetLandmark(ctx, lm.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	stored, err := env.store.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Beacons)
	assert.Empty(t, env.reload(t, cat).Beacons)
	assert.Empty(t, env.reload(t, ana).Beacons)
	assert.NotContains(t, env.index.indexed, b.ID)

	deleted := env.events.ofVariant(fanout.VariantBeaconDeleted)
	require.Len(t, deleted, 1)
	assert.ElementsMatch(t, []fanout.Topic{fanout.BeaconTopic(b.ID), fanout.GroupTopic(g.ID)}, deleted[0].Topics)
	assert.Contains(t, deleted[0].Recipients, cat.ID)
}

func TestRescheduleHike(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ana, ben := env.user(t, "ana"), env.user(t, "ben")
	g := env.group(t, ana)
	b := env.beacon(t, ana, g, time.Hour)

	later := b.ExpiresAt.Add(time.Hour)
	_, err := env.beacons.RescheduleHike(ctx, ben.ID, b.ID, RescheduleRequest{ExpiresAt: later})
	requireCode(t, err, domainerrors.CodeForbidden, domainerrors.ReasonNotLeader)

	_, err = env.beacons.RescheduleHike(ctx, ana.ID, b.ID, RescheduleRequest{ExpiresAt: b.StartsAt.Add(-time.Minute)})
	requireCode(t, err, domainerrors.CodeInvalidState, "")

	updated, err := env.beacons.RescheduleHike(ctx, ana.ID, b.ID, RescheduleRequest{ExpiresAt: later})
	require.NoError(t, err)
	assert.True(t, updated.ExpiresAt.Equal(later))
	require.Len(t, env.events.ofVariant(fanout.VariantBeaconUpdated), 1)
}

func TestChangeLeader(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ana, ben, cat, eve := env.user(t, "ana"), env.user(t, "ben"), env.user(t, "cat"), env.user(t, "eve")
	g := env.group(t, ana)
	_, err := env.groups.JoinGroup(ctx, ben.ID, JoinRequest{Shortcode: g.Shortcode})
	require.NoError(t, err)
	b := env.beacon(t, ana, g, time.Hour)
	_, err = env.beacons.JoinBeacon(ctx, cat.ID, JoinRequest{Shortcode: b.Shortcode})
	require.NoError(t, err)

	_, err = env.beacons.ChangeLeader(ctx, cat.ID, b.ID, ChangeLeaderRequest{LeaderID: cat.ID})
	requireCode(t, err, domainerrors.CodeForbidden, domainerrors.ReasonNotLeader)

	_, err = env.beacons.ChangeLeader(ctx, ana.ID, b.ID, ChangeLeaderRequest{LeaderID: eve.ID})
	requireCode(t, err, domainerrors.CodeForbidden, domainerrors.ReasonNotMember)

	_, err = env.beacons.ChangeLeader(ctx, ana.ID, b.ID, ChangeLeaderRequest{LeaderID: ana.ID})
	requireCode(t, err, domainerrors.CodeConflict, domainerrors.ReasonAlreadyLeading)

	t.Run("to a follower", func(t *testing.T) {
		updated, err := env.beacons.ChangeLeader(ctx, ana.ID, b.ID, ChangeLeaderRequest{LeaderID: cat.ID})
		require.NoError(t, err)
		assert.Equal(t, cat.ID, updated.LeaderID)
		assert.Equal(t, []string{cat.ID}, updated.Followers, "follower set is untouched")
		assert.Contains(t, env.reload(t, cat).Beacons, b.ID)
		assert.NotContains(t, env.reload(t, ana).Beacons, b.ID, "old leader no longer participates")
	})

	t.Run("to a group member", func(t *testing.T) {
		updated, err := env.beacons.ChangeLeader(ctx, cat.ID, b.ID, ChangeLeaderRequest{LeaderID: ben.ID})
		require.NoError(t, err)
		assert.Equal(t, ben.ID, updated.LeaderID)
		assert.Equal(t, []string{cat.ID}, updated.Followers)
		assert.Contains(t, env.reload(t, ben).Beacons, b.ID)
		assert.Contains(t, env.reload(t, cat).Beacons, b.ID, "old leader still follows")
	})

	updates := env.events.ofVariant(fanout.VariantBeaconUpdated)
	require.Len(t, updates, 2)
	assert.Equal(t, ben.ID, updates[1].Data.(fanout.BeaconUpdated).LeaderID)
}

func TestUpdateLocations(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ana, cat, eve := env.user(t, "ana"), env.user(t, "cat"), env.user(t, "eve")
	g := env.group(t, ana)
	b := env.beacon(t, ana, g, time.Hour)
	_, err := env.beacons.JoinBeacon(ctx, cat.ID, JoinRequest{Shortcode: b.Shortcode})
	require.NoError(t, err)
	here := domain.Location{Lat: "46.6000", Lon: "7.9000"}

	t.Run("user location", func(t *testing.T) {
		_, err := env.beacons.UpdateUserLocation(ctx, eve.ID, b.ID, LocationRequest{Location: here})
		requireCode(t, err, domainerrors.CodeForbidden, domainerrors.ReasonNotMember)

		user, err := env.beacons.UpdateUserLocation(ctx, cat.ID, b.ID, LocationRequest{Location: here})
		require.NoError(t, err)
		require.NotNil(t, user.Location)
		assert.Equal(t, here, *user.Location)

		updates := env.events.ofVariant(fanout.VariantLocationUpdate)
		require.Len(t, updates, 1)
		assert.Equal(t, cat.ID, updates[0].ActorID)
		assert.Equal(t, fanout.SubjectUser, updates[0].Data.(fanout.LocationUpdate).Subject)
	})

	t.Run("beacon location", func(t *testing.T) {
		_, err := env.beacons.UpdateBeaconLocation(ctx, cat.ID, b.ID, LocationRequest{Location: here})
		requireCode(t, err, domainerrors.CodeForbidden, domainerrors.ReasonNotLeader)

		moved, err := env.beacons.UpdateBeaconLocation(ctx, ana.ID, b.ID, LocationRequest{Location: here})
		require.NoError(t, err)
		assert.Equal(t, here, moved.Location)
		assert.Equal(t, []domain.Location{b.Location, here}, moved.Route)
		assert.Equal(t, here, env.index.indexed[b.ID].Location)
	})
}

func TestCreateLandmark(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ana, eve := env.user(t, "ana"), env.user(t, "eve")
	g := env.group(t, ana)
	b := env.beacon(t, ana, g, time.Hour)
	req := CreateLandmarkRequest{Title: "spring", Location: domain.Location{Lat: "46.5", Lon: "7.8"}}

	_, err := env.beacons.CreateLandmark(ctx, eve.ID, b.ID, req)
	requireCode(t, err, domainerrors.CodeForbidden, domainerrors.ReasonNotMember)

	lm, err := env.beacons.CreateLandmark(ctx, ana.ID, b.ID, req)
	require.NoError(t, err)
	assert.Equal(t, b.ID, lm.BeaconID)

	stored, err := env.store.GetBeacon(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{lm.ID}, stored.Landmarks)
	require.Len(t, env.events.ofVariant(fanout.VariantLandmarkCreated), 1)

	_, err = env.beacons.CreateLandmark(ctx, ana.ID, b.ID, CreateLandmarkRequest{Location: req.Location})
	requireCode(t, err, domainerrors.CodeValidation, "")
}

func TestSOS(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ana, ben, cat := env.user(t, "ana"), env.user(t, "ben"), env.user(t, "cat")
	g := env.group(t, ana)
	_, err := env.groups.JoinGroup(ctx, ben.ID, JoinRequest{Shortcode: g.Shortcode})
	require.NoError(t, err)
	b := env.beacon(t, ana, g, time.Hour)
	_, err = env.beacons.JoinBeacon(ctx, cat.ID, JoinRequest{Shortcode: b.Shortcode})
	require.NoError(t, err)

	here := domain.Location{Lat: "46.1", Lon: "7.1"}
	require.NoError(t, env.beacons.SOS(ctx, cat.ID, b.ID, SOSRequest{Location: &here}))

	sos := env.events.ofVariant(fanout.VariantSOSRaised)
	require.Len(t, sos, 1)
	assert.ElementsMatch(t, []fanout.Topic{fanout.BeaconTopic(b.ID), fanout.GroupTopic(g.ID)}, sos[0].Topics)
	assert.ElementsMatch(t, []string{ana.ID, ben.ID, cat.ID}, sos[0].Recipients)
	assert.Equal(t, here, *env.reload(t, cat).Location)

	err = env.beacons.SOS(ctx, ben.ID, b.ID, SOSRequest{})
	requireCode(t, err, domainerrors.CodeForbidden, domainerrors.ReasonNotMember)
}

func TestNearby(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ana := env.user(t, "ana")
	g := env.group(t, ana)
	b := env.beacon(t, ana, g, time.Hour)
	env.index.hits = []search.NearbyHit{{ID: b.ID, GroupID: g.ID}, {ID: "beacon-gone", GroupID: g.ID}}

	found, err := env.beacons.Nearby(ctx, domain.Location{Lat: "46.558", Lon: "7.835"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, b.ID, found[0].ID)

	_, err = env.beacons.Nearby(ctx, domain.Location{Lat: "north", Lon: "7"})
	requireCode(t, err, domainerrors.CodeValidation, "")

	t.Run("stale hits are re-checked", func(t *testing.T) {
		moved := env.beacon(t, ana, g, time.Hour)
		_, err := env.store.UpdateBeacon(ctx, moved.ID, func(b *domain.Beacon) error {
			b.Location = domain.Location{Lat: "47.3769", Lon: "8.5417"}
			return nil
		})
		require.NoError(t, err)
		short := env.beacon(t, ana, g, time.Minute)
		env.index.hits = []search.NearbyHit{{ID: b.ID}, {ID: moved.ID}, {ID: short.ID}}

		env.beacons.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
		t.Cleanup(func() { env.beacons.now = time.Now })

		found, err := env.beacons.Nearby(ctx, domain.Location{Lat: "46.558", Lon: "7.835"})
		require.NoError(t, err)
		require.Len(t, found, 1, "moved beyond the radius and expired beacons are dropped")
		assert.Equal(t, b.ID, found[0].ID)
	})
}

func TestGetBeaconAndResolve(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ana, eve := env.user(t, "ana"), env.user(t, "eve")
	g := env.group(t, ana)
	b := env.beacon(t, ana, g, time.Hour)

	view, err := env.beacons.GetBeacon(ctx, ana.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, ana.ID, view.Leader.ID)
	assert.Equal(t, g.ID, view.Group.ID)

	_, err = env.beacons.GetBeacon(ctx, eve.ID, b.ID)
	requireCode(t, err, domainerrors.CodeForbidden, domainerrors.ReasonNotMember)
	requireCode(t, env.beacons.Authorize(ctx, eve.ID, b.ID), domainerrors.CodeForbidden, domainerrors.ReasonNotMember)
	require.NoError(t, env.beacons.Authorize(ctx, ana.ID, b.ID))

	resolved, err := env.beacons.Resolve(ctx, b.Shortcode)
	require.NoError(t, err)
	assert.Equal(t, &Resolved{Kind: KindBeacon, ID: b.ID}, resolved)

	resolved, err = env.beacons.Resolve(ctx, g.Shortcode)
	require.NoError(t, err)
	assert.Equal(t, &Resolved{Kind: KindGroup, ID: g.ID}, resolved)

	_, err = env.beacons.Resolve(ctx, "QQQQQQ")
	requireCode(t, err, domainerrors.CodeNotFound, "")
}

func TestBeaconChangeShortcode(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	ana, ben := env.user(t, "ana"), env.user(t, "ben")
	g := env.group(t, ana)
	b := env.beacon(t, ana, g, time.Hour)

	_, err := env.beacons.ChangeShortcode(ctx, ben.ID, b.ID)
	requireCode(t, err, domainerrors.CodeForbidden, domainerrors.ReasonNotLeader)

	updated, err := env.beacons.ChangeShortcode(ctx, ana.ID, b.ID)
	require.NoError(t, err)
	assert.NotEqual(t, b.Shortcode, updated.Shortcode)

	_, err = env.beacons.JoinBeacon(ctx, ben.ID, JoinRequest{Shortcode: b.Shortcode})
	requireCode(t, err, domainerrors.CodeNotFound, "")
}
