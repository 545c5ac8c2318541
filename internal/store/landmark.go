package store

import (
	"context"
	"fmt"

	"github.com/beaconapp/beacon-server/internal/domain"
)

// CreateLandmark inserts a landmark.
func (s *Store) CreateLandmark(ctx context.Context, landmark *domain.Landmark) error {
	if err := s.Landmarks.Create(ctx, landmark.ID, landmark); err != nil {
		return fmt.Errorf("create landmark: %w", err)
	}
	return nil
}

// GetLandmark retrieves a landmark by ID.
func (s *Store) GetLandmark(ctx context.Context, id string) (*domain.Landmark, error) {
	l, err := s.Landmarks.Get(ctx, id)
	return l, notFoundAs(err, ErrLandmarkNotFound)
}

// ListLandmarkIDsByBeacon returns the ids of landmarks owned by any of the beacons.
func (s *Store) ListLandmarkIDsByBeacon(ctx context.Context, beaconIDs ...string) ([]string, error) {
	var ids []string
	for _, beaconID := range beaconIDs {
		found, err := s.Landmarks.ListByIndex(ctx, "beacon", beaconID)
		if err != nil {
			return nil, fmt.Errorf("list landmarks of %s: %w", beaconID, err)
		}
		ids = append(ids, found...)
	}
	return ids, nil
}

// ListLandmarkIDsByCreator returns the ids of landmarks created by userID.
func (s *Store) ListLandmarkIDsByCreator(ctx context.Context, userID string) ([]string, error) {
	return s.Landmarks.ListByIndex(ctx, "creator", userID)
}

// DeleteLandmarks removes landmarks in batches and returns how many existed.
func (s *Store) DeleteLandmarks(ctx context.Context, ids []string) (int, error) {
	return s.Landmarks.DeleteMany(ctx, ids)
}
