package store

import (
	"context"
	"fmt"
	"time"

	"github.com/beaconapp/beacon-server/internal/domain"
)

func beaconFollowers(b *domain.Beacon) *[]string { return &b.Followers }
func beaconLandmarks(b *domain.Beacon) *[]string { return &b.Landmarks }

// CreateBeacon inserts a beacon. A taken shortcode yields an *IndexConflictError
// on IndexShortcode.
func (s *Store) CreateBeacon(ctx context.Context, beacon *domain.Beacon) error {
	if beacon.Followers == nil {
		beacon.Followers = []string{}
	}
	if beacon.Landmarks == nil {
		beacon.Landmarks = []string{}
	}
	if beacon.Route == nil {
		beacon.Route = []domain.Location{}
	}
	if err := s.Beacons.Create(ctx, beacon.ID, beacon); err != nil {
		return fmt.Errorf("create beacon: %w", err)
	}
	return nil
}

// GetBeacon retrieves a beacon by ID.
func (s *Store) GetBeacon(ctx context.Context, id string) (*domain.Beacon, error) {
	b, err := s.Beacons.Get(ctx, id)
	return b, notFoundAs(err, ErrBeaconNotFound)
}

// GetBeaconByShortcode resolves a join code. Lookups are case-insensitive.
func (s *Store) GetBeaconByShortcode(ctx context.Context, code string) (*domain.Beacon, error) {
	b, err := s.Beacons.GetByIndex(ctx, IndexShortcode, code)
	return b, notFoundAs(err, ErrBeaconNotFound)
}

// UpdateBeacon applies fn to the stored beacon atomically.
func (s *Store) UpdateBeacon(ctx context.Context, id string, fn func(*domain.Beacon) error) (*domain.Beacon, error) {
	b, err := s.Beacons.Mutate(ctx, id, func(b *domain.Beacon) (bool, error) {
		if err := fn(b); err != nil {
			return false, err
		}
		b.Touch()
		return true, nil
	})
	return b, notFoundAs(err, ErrBeaconNotFound)
}

// MoveBeacon sets the beacon's current location and appends it to the route.
func (s *Store) MoveBeacon(ctx context.Context, id string, loc domain.Location) (*domain.Beacon, error) {
	return s.UpdateBeacon(ctx, id, func(b *domain.Beacon) error {
		b.Location = loc
		b.Route = append(b.Route, loc)
		return nil
	})
}

// ListBeaconIDsExpiredBefore returns beacons whose expiresAt is strictly before cutoff.
func (s *Store) ListBeaconIDsExpiredBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	return s.Beacons.ListIndexBefore(ctx, "expires", sortableTime(cutoff))
}

// AddBeaconFollower adds userID to the beacon's follower set.
func (s *Store) AddBeaconFollower(ctx context.Context, beaconID, userID string) error {
	return addToSet(ctx, s.Beacons, beaconID, beaconFollowers, userID, ErrBeaconNotFound)
}

// PullBeaconFollowers removes users from the beacon's follower set.
func (s *Store) PullBeaconFollowers(ctx context.Context, beaconID string, userIDs ...string) error {
	return pullFromSet(ctx, s.Beacons, beaconID, beaconFollowers, userIDs...)
}

// AddBeaconLandmark adds landmarkID to the beacon's landmark set.
func (s *Store) AddBeaconLandmark(ctx context.Context, beaconID, landmarkID string) error {
	return addToSet(ctx, s.Beacons, beaconID, beaconLandmarks, landmarkID, ErrBeaconNotFound)
}

// PullBeaconLandmarks removes landmark ids from the beacon's landmark set.
func (s *Store) PullBeaconLandmarks(ctx context.Context, beaconID string, landmarkIDs ...string) error {
	return pullFromSet(ctx, s.Beacons, beaconID, beaconLandmarks, landmarkIDs...)
}

// DeleteBeacon removes the beacon document. Idempotent.
func (s *Store) DeleteBeacon(ctx context.Context, id string) error {
	return s.Beacons.Delete(ctx, id)
}

// DeleteBeacons removes many beacons in batches and returns how many existed.
func (s *Store) DeleteBeacons(ctx context.Context, ids []string) (int, error) {
	return s.Beacons.DeleteMany(ctx, ids)
}
