package store

import (
	"context"
	"fmt"

	"github.com/beaconapp/beacon-server/internal/domain"
)

// BeaconView is a beacon with its references resolved.
// Referenced documents that no longer exist are left out.
type BeaconView struct {
	Beacon    *domain.Beacon
	Leader    *domain.User
	Followers []*domain.User
	Landmarks []*domain.Landmark
	Group     *domain.Group
}

// GroupView is a group with its references resolved.
type GroupView struct {
	Group   *domain.Group
	Leader  *domain.User
	Members []*domain.User
	Beacons []*domain.Beacon
}

// UserView is a user with its group and beacon sets resolved.
type UserView struct {
	User    *domain.User
	Groups  []*domain.Group
	Beacons []*domain.Beacon
}

// LoadBeaconView fetches a beacon and everything it references.
func (s *Store) LoadBeaconView(ctx context.Context, id string) (*BeaconView, error) {
	beacon, err := s.GetBeacon(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &BeaconView{Beacon: beacon}

	if view.Leader, err = s.optionalUser(ctx, beacon.LeaderID); err != nil {
		return nil, err
	}
	if view.Followers, err = s.Users.GetMany(ctx, beacon.Followers); err != nil {
		return nil, fmt.Errorf("load followers: %w", err)
	}
	if view.Landmarks, err = s.Landmarks.GetMany(ctx, beacon.Landmarks); err != nil {
		return nil, fmt.Errorf("load landmarks: %w", err)
	}
	if view.Group, err = s.optionalGroup(ctx, beacon.GroupID); err != nil {
		return nil, err
	}

	return view, nil
}

// LoadGroupView fetches a group and everything it references.
func (s *Store) LoadGroupView(ctx context.Context, id string) (*GroupView, error) {
	group, err := s.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &GroupView{Group: group}

	if view.Leader, err = s.optionalUser(ctx, group.LeaderID); err != nil {
		return nil, err
	}
	if view.Members, err = s.Users.GetMany(ctx, group.Members); err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	if view.Beacons, err = s.Beacons.GetMany(ctx, group.Beacons); err != nil {
		return nil, fmt.Errorf("load beacons: %w", err)
	}

	return view, nil
}

// LoadUserView fetches a user with its groups and beacons.
func (s *Store) LoadUserView(ctx context.Context, id string) (*UserView, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &UserView{User: user}

	if view.Groups, err = s.Groups.GetMany(ctx, user.Groups); err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	if view.Beacons, err = s.Beacons.GetMany(ctx, user.Beacons); err != nil {
		return nil, fmt.Errorf("load beacons: %w", err)
	}

	return view, nil
}

func (s *Store) optionalUser(ctx context.Context, id string) (*domain.User, error) {
	users, err := s.Users.GetMany(ctx, []string{id})
	if err != nil || len(users) == 0 {
		return nil, err
	}
	return users[0], nil
}

func (s *Store) optionalGroup(ctx context.Context, id string) (*domain.Group, error) {
	groups, err := s.Groups.GetMany(ctx, []string{id})
	if err != nil || len(groups) == 0 {
		return nil, err
	}
	return groups[0], nil
}
