package domain

import (
	"slices"
	"time"
)

// ReclaimAfter is how long an expired beacon is kept before the sweeper purges it.
const ReclaimAfter = 30 * 24 * time.Hour

// BeaconState is the lifecycle stage of a beacon at a given instant.
type BeaconState string

const (
	// BeaconScheduled means startsAt is still in the future.
	BeaconScheduled BeaconState = "scheduled"
	// BeaconActive means the beacon is running.
	BeaconActive BeaconState = "active"
	// BeaconExpired means expiresAt has passed but the beacon is retained.
	BeaconExpired BeaconState = "expired"
	// BeaconReclaimable means the retention window has also passed.
	BeaconReclaimable BeaconState = "reclaimable"
)

// Beacon is a time-bounded location sharing session inside a group.
type Beacon struct {
	Document
	Title     string     `json:"title"`
	Shortcode string     `json:"shortcode"`
	LeaderID  string     `json:"leader_id"`
	Followers []string   `json:"followers"`
	GroupID   string     `json:"group_id"`
	StartsAt  time.Time  `json:"starts_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	Location  Location   `json:"location"`
	Route     []Location `json:"route"`
	Landmarks []string   `json:"landmarks"`
}

// State returns the lifecycle stage of the beacon at now. A beacon stays
// active through the instant it expires.
func (b *Beacon) State(now time.Time) BeaconState {
	switch {
	case now.Before(b.StartsAt):
		return BeaconScheduled
	case !now.After(b.ExpiresAt):
		return BeaconActive
	case !now.After(b.ExpiresAt.Add(ReclaimAfter)):
		return BeaconExpired
	default:
		return BeaconReclaimable
	}
}

// Live reports whether the beacon is scheduled or active.
func (s BeaconState) Live() bool {
	return s == BeaconScheduled || s == BeaconActive
}

// IsLeader reports whether userID leads the beacon.
func (b *Beacon) IsLeader(userID string) bool {
	return b.LeaderID == userID
}

// IsFollower reports whether userID is in the follower set.
func (b *Beacon) IsFollower(userID string) bool {
	return slices.Contains(b.Followers, userID)
}

// HasParticipant reports whether userID is the leader or a follower.
func (b *Beacon) HasParticipant(userID string) bool {
	return b.IsLeader(userID) || b.IsFollower(userID)
}

// Participants returns the leader followed by the followers.
func (b *Beacon) Participants() []string {
	out := make([]string, 0, len(b.Followers)+1)
	out = append(out, b.LeaderID)
	for _, f := range b.Followers {
		if f != b.LeaderID {
			out = append(out, f)
		}
	}
	return out
}
