package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeacon_State(t *testing.T) {
	now := time.Now()
	b := &Beacon{StartsAt: now.Add(time.Hour), ExpiresAt: now.Add(2 * time.Hour)}

	tests := []struct {
		name string
		at   time.Time
		want BeaconState
	}{
		{"before start", now, BeaconScheduled},
		{"at start", now.Add(time.Hour), BeaconActive},
		{"at expiry", now.Add(2 * time.Hour), BeaconActive},
		{"after expiry", now.Add(2*time.Hour + time.Nanosecond), BeaconExpired},
		{"at retention end", now.Add(2*time.Hour + ReclaimAfter), BeaconExpired},
		{"after retention", now.Add(2*time.Hour + ReclaimAfter + time.Nanosecond), BeaconReclaimable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.State(tt.at))
		})
	}
}

func TestBeaconState_Live(t *testing.T) {
	assert.True(t, BeaconScheduled.Live())
	assert.True(t, BeaconActive.Live())
	assert.False(t, BeaconExpired.Live())
	assert.False(t, BeaconReclaimable.Live())
}

func TestBeacon_Participants(t *testing.T) {
	b := &Beacon{LeaderID: "a", Followers: []string{"b", "a", "c"}}

	assert.Equal(t, []string{"a", "b", "c"}, b.Participants())
	assert.True(t, b.HasParticipant("c"))
	assert.False(t, b.HasParticipant("d"))
	assert.True(t, b.IsLeader("a"))
	assert.False(t, b.IsFollower("d"))
}

func TestGroup_Participants(t *testing.T) {
	g := &Group{LeaderID: "a", Members: []string{"b"}}

	assert.Equal(t, []string{"a", "b"}, g.Participants())
	assert.True(t, g.HasParticipant("a"))
	assert.False(t, g.IsMember("a"))
}

func TestSetHelpers(t *testing.T) {
	set := []string{}

	assert.True(t, AddToSet(&set, "x"))
	assert.False(t, AddToSet(&set, "x"))
	assert.True(t, AddToSet(&set, "y"))
	assert.Equal(t, []string{"x", "y"}, set)

	assert.False(t, PullFromSet(&set, "missing"))
	assert.True(t, PullFromSet(&set, "x", "missing"))
	assert.Equal(t, []string{"y"}, set)

	var empty []string
	assert.False(t, PullFromSet(&empty, "y"))
}

func TestLocation_DistanceMeters(t *testing.T) {
	// Roughly 1.11 km per 0.01 degree of latitude.
	a := Location{Lat: "28.6139", Lon: "77.2090"}
	b := Location{Lat: "28.6239", Lon: "77.2090"}

	d, err := a.DistanceMeters(b)
	require.NoError(t, err)
	assert.InDelta(t, 1112, d, 5)

	_, err = a.DistanceMeters(Location{Lat: "north", Lon: "0"})
	assert.Error(t, err)

	_, err = a.DistanceMeters(Location{Lat: "91", Lon: "0"})
	assert.Error(t, err)
}

func TestUser_Profile(t *testing.T) {
	loc := &Location{Lat: "1", Lon: "2"}
	u := &User{Name: "Ana", Email: "ana@example.com", PasswordHash: "secret", Location: loc}
	u.ID = "user-1"

	p := u.Profile()
	assert.Equal(t, Profile{ID: "user-1", Name: "Ana", Location: loc}, p)
	assert.False(t, u.IsAnonymous())
}
