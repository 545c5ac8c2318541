package domain

import "slices"

// Group is a set of users under one leader, joined by shortcode.
type Group struct {
	Document
	Title     string   `json:"title"`
	Shortcode string   `json:"shortcode"`
	LeaderID  string   `json:"leader_id"`
	Members   []string `json:"members"`
	Beacons   []string `json:"beacons"`
}

// IsLeader reports whether userID leads the group.
func (g *Group) IsLeader(userID string) bool {
	return g.LeaderID == userID
}

// IsMember reports whether userID is in the member set.
func (g *Group) IsMember(userID string) bool {
	return slices.Contains(g.Members, userID)
}

// HasParticipant reports whether userID is the leader or a member.
func (g *Group) HasParticipant(userID string) bool {
	return g.IsLeader(userID) || g.IsMember(userID)
}

// Participants returns the leader followed by the members.
func (g *Group) Participants() []string {
	out := make([]string, 0, len(g.Members)+1)
	out = append(out, g.LeaderID)
	for _, m := range g.Members {
		if m != g.LeaderID {
			out = append(out, m)
		}
	}
	return out
}
