package api

import (
	"time"

	"github.com/beaconapp/beacon-server/internal/domain"
	"github.com/beaconapp/beacon-server/internal/store"
)

// UserResponse is the account owner's view of a user. Credentials never leave the server.
type UserResponse struct {
	ID         string           `json:"id" doc:"User ID"`
	Name       string           `json:"name" doc:"Display name"`
	Email      string           `json:"email,omitempty" doc:"Email, absent for anonymous users"`
	IsVerified bool             `json:"is_verified" doc:"Whether the email was verified"`
	Anonymous  bool             `json:"anonymous" doc:"Whether the user registered without credentials"`
	Location   *domain.Location `json:"location,omitempty" doc:"Last reported location"`
	Groups     []string         `json:"groups" doc:"Group IDs"`
	Beacons    []string         `json:"beacons" doc:"Beacon IDs"`
	CreatedAt  time.Time        `json:"created_at" doc:"Creation timestamp"`
	UpdatedAt  time.Time        `json:"updated_at" doc:"Last update timestamp"`
}

// BeaconViewResponse is a beacon with its participants and landmarks resolved.
type BeaconViewResponse struct {
	Beacon    *domain.Beacon     `json:"beacon"`
	Leader    *domain.Profile    `json:"leader,omitempty"`
	Followers []domain.Profile   `json:"followers"`
	Landmarks []*domain.Landmark `json:"landmarks"`
	Group     *domain.Group      `json:"group,omitempty"`
}

// GroupViewResponse is a group with its participants and beacons resolved.
type GroupViewResponse struct {
	Group   *domain.Group    `json:"group"`
	Leader  *domain.Profile  `json:"leader,omitempty"`
	Members []domain.Profile `json:"members"`
	Beacons []*domain.Beacon `json:"beacons"`
}

// MeResponse is the caller's account with its groups and beacons resolved.
type MeResponse struct {
	User    UserResponse     `json:"user"`
	Groups  []*domain.Group  `json:"groups"`
	Beacons []*domain.Beacon `json:"beacons"`
}

// MessageResponse contains a simple message.
type MessageResponse struct {
	Message string `json:"message" doc:"Success message"`
}

// === Mappers ===

func mapUser(u *domain.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		IsVerified: u.IsVerified,
		Anonymous:  u.IsAnonymous(),
		Location:   u.Location,
		Groups:     nonNil(u.Groups),
		Beacons:    nonNil(u.Beacons),
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

func profile(u *domain.User) *domain.Profile {
	if u == nil {
		return nil
	}
	p := u.Profile()
	return &p
}

func profiles(users []*domain.User) []domain.Profile {
	out := make([]domain.Profile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Profile())
	}
	return out
}

func mapBeaconView(v *store.BeaconView) BeaconViewResponse {
	return BeaconViewResponse{
		Beacon:    v.Beacon,
		Leader:    profile(v.Leader),
		Followers: profiles(v.Followers),
		Landmarks: nonNil(v.Landmarks),
		Group:     v.Group,
	}
}

func mapGroupView(v *store.GroupView) GroupViewResponse {
	return GroupViewResponse{
		Group:   v.Group,
		Leader:  profile(v.Leader),
		Members: profiles(v.Members),
		Beacons: nonNil(v.Beacons),
	}
}

func mapUserView(v *store.UserView) MeResponse {
	return MeResponse{
		User:    mapUser(v.User),
		Groups:  nonNil(v.Groups),
		Beacons: nonNil(v.Beacons),
	}
}

// nonNil keeps empty lists as [] rather than null on the wire.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
