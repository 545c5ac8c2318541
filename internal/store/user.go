package store

import (
	"context"
	"fmt"

	"github.com/beaconapp/beacon-server/internal/domain"
)

func userGroups(u *domain.User) *[]string  { return &u.Groups }
func userBeacons(u *domain.User) *[]string { return &u.Beacons }

// CreateUser inserts a new user. Returns ErrEmailExists when the email is taken.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	if user.Groups == nil {
		user.Groups = []string{}
	}
	if user.Beacons == nil {
		user.Beacons = []string{}
	}
	err := s.Users.Create(ctx, user.ID, user)
	if IsIndexConflict(err, IndexEmail) {
		return ErrEmailExists
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.Users.Get(ctx, id)
	return u, notFoundAs(err, ErrUserNotFound)
}

// GetUserByEmail retrieves a user by email address (case-insensitive).
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.Users.GetByIndex(ctx, IndexEmail, email)
	return u, notFoundAs(err, ErrUserNotFound)
}

// UpdateUser applies fn to the stored user atomically.
func (s *Store) UpdateUser(ctx context.Context, id string, fn func(*domain.User) error) (*domain.User, error) {
	u, err := s.Users.Mutate(ctx, id, func(u *domain.User) (bool, error) {
		if err := fn(u); err != nil {
			return false, err
		}
		u.Touch()
		return true, nil
	})
	if IsIndexConflict(err, IndexEmail) {
		return nil, ErrEmailExists
	}
	return u, notFoundAs(err, ErrUserNotFound)
}

// SetUserLocation records the user's last reported location.
func (s *Store) SetUserLocation(ctx context.Context, id string, loc domain.Location) (*domain.User, error) {
	return s.UpdateUser(ctx, id, func(u *domain.User) error {
		u.Location = &loc
		return nil
	})
}

// AddUserGroup adds groupID to the user's group set.
func (s *Store) AddUserGroup(ctx context.Context, userID, groupID string) error {
	return addToSet(ctx, s.Users, userID, userGroups, groupID, ErrUserNotFound)
}

// PullUserGroups removes group ids from the user's group set.
func (s *Store) PullUserGroups(ctx context.Context, userID string, groupIDs ...string) error {
	return pullFromSet(ctx, s.Users, userID, userGroups, groupIDs...)
}

// AddUserBeacon adds beaconID to the user's beacon set.
func (s *Store) AddUserBeacon(ctx context.Context, userID, beaconID string) error {
	return addToSet(ctx, s.Users, userID, userBeacons, beaconID, ErrUserNotFound)
}

// PullUserBeacons removes beacon ids from the user's beacon set.
func (s *Store) PullUserBeacons(ctx context.Context, userID string, beaconIDs ...string) error {
	return pullFromSet(ctx, s.Users, userID, userBeacons, beaconIDs...)
}

// DeleteUser removes the user document. Idempotent.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.Users.Delete(ctx, id)
}

// SetPasswordReset stores or clears (nil) the pending reset code of a user.
func (s *Store) SetPasswordReset(ctx context.Context, id string, reset *domain.PasswordReset) error {
	_, err := s.UpdateUser(ctx, id, func(u *domain.User) error {
		u.Reset = reset
		return nil
	})
	return err
}
