package store

import (
	"context"
	"fmt"

	"github.com/beaconapp/beacon-server/internal/domain"
)

func groupMembers(g *domain.Group) *[]string { return &g.Members }
func groupBeacons(g *domain.Group) *[]string { return &g.Beacons }

// CreateGroup inserts a group. A taken shortcode yields an *IndexConflictError
// on IndexShortcode so callers can retry with a new code.
func (s *Store) CreateGroup(ctx context.Context, group *domain.Group) error {
	if group.Members == nil {
		group.Members = []string{}
	}
	if group.Beacons == nil {
		group.Beacons = []string{}
	}
	if err := s.Groups.Create(ctx, group.ID, group); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (s *Store) GetGroup(ctx context.Context, id string) (*domain.Group, error) {
	g, err := s.Groups.Get(ctx, id)
	return g, notFoundAs(err, ErrGroupNotFound)
}

// GetGroupByShortcode resolves a join code. Lookups are case-insensitive.
func (s *Store) GetGroupByShortcode(ctx context.Context, code string) (*domain.Group, error) {
	g, err := s.Groups.GetByIndex(ctx, IndexShortcode, code)
	return g, notFoundAs(err, ErrGroupNotFound)
}

// SetGroupShortcode replaces the group's join code.
func (s *Store) SetGroupShortcode(ctx context.Context, id, code string) (*domain.Group, error) {
	g, err := s.Groups.Mutate(ctx, id, func(g *domain.Group) (bool, error) {
		g.Shortcode = code
		g.Touch()
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("set group shortcode: %w", notFoundAs(err, ErrGroupNotFound))
	}
	return g, nil
}

// ListGroupIDsLedBy returns the ids of groups whose leader is userID.
func (s *Store) ListGroupIDsLedBy(ctx context.Context, userID string) ([]string, error) {
	return s.Groups.ListByIndex(ctx, "leader", userID)
}

// AddGroupMember adds userID to the group's member set.
func (s *Store) AddGroupMember(ctx context.Context, groupID, userID string) error {
	return addToSet(ctx, s.Groups, groupID, groupMembers, userID, ErrGroupNotFound)
}

// PullGroupMembers removes users from the group's member set.
func (s *Store) PullGroupMembers(ctx context.Context, groupID string, userIDs ...string) error {
	return pullFromSet(ctx, s.Groups, groupID, groupMembers, userIDs...)
}

// AddGroupBeacon adds beaconID to the group's beacon set.
func (s *Store) AddGroupBeacon(ctx context.Context, groupID, beaconID string) error {
	return addToSet(ctx, s.Groups, groupID, groupBeacons, beaconID, ErrGroupNotFound)
}

// PullGroupBeacons removes beacon ids from the group's beacon set.
func (s *Store) PullGroupBeacons(ctx context.Context, groupID string, beaconIDs ...string) error {
	return pullFromSet(ctx, s.Groups, groupID, groupBeacons, beaconIDs...)
}

// DeleteGroup removes the group document. Idempotent.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	return s.Groups.Delete(ctx, id)
}
