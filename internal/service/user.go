package service

import (
	"context"
	"log/slog"

	"github.com/beaconapp/beacon-server/internal/auth"
	"github.com/beaconapp/beacon-server/internal/domain"
	domainerrors "github.com/beaconapp/beacon-server/internal/errors"
	"github.com/beaconapp/beacon-server/internal/fanout"
	"github.com/beaconapp/beacon-server/internal/store"
)

// UserService serves the caller's own account.
type UserService struct {
	store   *store.Store
	beacons *BeaconService
	hasher  auth.Hasher
	events  Publisher
	logger  *slog.Logger
}

// NewUserService creates a user service.
func NewUserService(s *store.Store, beacons *BeaconService, hasher auth.Hasher, events Publisher, logger *slog.Logger) *UserService {
	return &UserService{
		store:   s,
		beacons: beacons,
		hasher:  hasher,
		events:  publisherOrDiscard(events),
		logger:  loggerOrDiscard(logger),
	}
}

// DeleteAccountRequest re-confirms the caller's credentials.
// Anonymous accounts have none and send an empty body.
type DeleteAccountRequest struct {
	Password string `json:"password" validate:"omitempty,max=1024"`
}

// Me returns the caller with their groups and beacons resolved.
func (s *UserService) Me(ctx context.Context, userID string) (*store.UserView, error) {
	view, err := s.store.LoadUserView(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return view, nil
}

// SetLocation records the caller's position without sharing it.
func (s *UserService) SetLocation(ctx context.Context, userID string, req LocationRequest) (*domain.User, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	user, err := s.store.SetUserLocation(ctx, userID, req.Location)
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}

// DeleteUser removes the caller's account and everything it owns.
//
// Groups the user leads are deleted with all their beacons and landmarks.
// Beacons the user leads in other groups are deleted too. The user is pulled
// from every group and beacon they merely joined, their landmarks on other
// beacons are removed, and the user document goes last. Every step is
// idempotent, so a call that fails part way can be repeated.
func (s *UserService) DeleteUser(ctx context.Context, userID string, req DeleteAccountRequest) error {
	if err := validate.Validate(req); err != nil {
		return err
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return translate(err)
	}
	if user.PasswordHash != "" && !s.hasher.Verify(req.Password, user.PasswordHash) {
		return domainerrors.InvalidCredentials("password does not match")
	}

	plan, err := s.planDeletion(ctx, user)
	if err != nil {
		return err
	}

	c := domain.NewCascade("delete user")
	for _, b := range plan.beacons {
		s.beacons.teardown(c, b)
	}
	for _, g := range plan.ledGroups {
		c.Then("pull "+g.ID+" from members", func(ctx context.Context) error {
			for _, memberID := range g.Members {
				if err := s.store.PullUserGroups(ctx, memberID, g.ID); err != nil {
					return err
				}
			}
			return nil
		}).
			Then("delete group "+g.ID, func(ctx context.Context) error {
				return s.store.DeleteGroup(ctx, g.ID)
			})
	}
	for _, g := range plan.joinedGroups {
		c.Then("leave group "+g.ID, func(ctx context.Context) error {
			return s.store.PullGroupMembers(ctx, g.ID, userID)
		})
	}
	for _, b := range plan.followed {
		c.Then("unfollow "+b.ID, func(ctx context.Context) error {
			return s.store.PullBeaconFollowers(ctx, b.ID, userID)
		})
	}
	c.Then("delete authored landmarks", func(ctx context.Context) error {
		return s.deleteAuthoredLandmarks(ctx, userID)
	}).
		Then("delete user", func(ctx context.Context) error {
			return s.store.DeleteUser(ctx, userID)
		})

	if err := runCascade(ctx, c, s.logger); err != nil {
		return err
	}

	for _, b := range plan.beacons {
		s.beacons.publishDeleted(b, userID, plan.recipients[b.ID])
	}
	for _, g := range plan.joinedGroups {
		s.events.Publish(fanout.Event{
			Topics:     []fanout.Topic{fanout.GroupTopic(g.ID)},
			Recipients: g.Participants(),
			ActorID:    userID,
			Data:       fanout.MemberLeft{GroupID: g.ID, UserID: userID, Name: user.Name},
		})
	}
	for _, b := range plan.followed {
		s.events.Publish(fanout.Event{
			Topics:     []fanout.Topic{fanout.BeaconTopic(b.ID)},
			Recipients: b.Participants(),
			ActorID:    userID,
			Data:       fanout.MemberLeft{GroupID: b.GroupID, BeaconID: b.ID, UserID: userID, Name: user.Name},
		})
	}

	s.logger.Info("user deleted",
		"user_id", userID,
		"groups_deleted", len(plan.ledGroups),
		"beacons_deleted", len(plan.beacons),
	)
	return nil
}

type deletionPlan struct {
	ledGroups    []*domain.Group
	joinedGroups []*domain.Group
	// beacons are deleted outright: every beacon of a led group and every
	// beacon the user leads elsewhere.
	beacons    []*domain.Beacon
	followed   []*domain.Beacon
	recipients map[string][]string
}

// planDeletion reads everything the deletion touches before any write.
func (s *UserService) planDeletion(ctx context.Context, user *domain.User) (*deletionPlan, error) {
	plan := &deletionPlan{recipients: make(map[string][]string)}

	ledIDs, err := s.store.ListGroupIDsLedBy(ctx, user.ID)
	if err != nil {
		return nil, translate(err)
	}
	led, err := s.store.Groups.GetMany(ctx, ledIDs)
	if err != nil {
		return nil, translate(err)
	}
	plan.ledGroups = led

	joined, err := s.store.Groups.GetMany(ctx, user.Groups)
	if err != nil {
		return nil, translate(err)
	}
	for _, g := range joined {
		if !g.IsLeader(user.ID) {
			plan.joinedGroups = append(plan.joinedGroups, g)
		}
	}

	var beaconIDs []string
	for _, g := range led {
		beaconIDs = append(beaconIDs, g.Beacons...)
	}
	beaconIDs = union(beaconIDs, user.Beacons)
	beacons, err := s.store.Beacons.GetMany(ctx, beaconIDs)
	if err != nil {
		return nil, translate(err)
	}

	ledGroup := make(map[string]*domain.Group, len(led))
	for _, g := range led {
		ledGroup[g.ID] = g
	}
	for _, b := range beacons {
		g, inLedGroup := ledGroup[b.GroupID]
		switch {
		case inLedGroup:
			plan.beacons = append(plan.beacons, b)
			plan.recipients[b.ID] = union(b.Participants(), g.Participants())
		case b.IsLeader(user.ID):
			plan.beacons = append(plan.beacons, b)
			plan.recipients[b.ID] = b.Participants()
		case b.IsFollower(user.ID):
			plan.followed = append(plan.followed, b)
		}
	}
	return plan, nil
}

// deleteAuthoredLandmarks removes the user's landmarks and their beacon references.
func (s *UserService) deleteAuthoredLandmarks(ctx context.Context, userID string) error {
	ids, err := s.store.ListLandmarkIDsByCreator(ctx, userID)
	if err != nil {
		return err
	}
	landmarks, err := s.store.Landmarks.GetMany(ctx, ids)
	if err != nil {
		return err
	}
	for _, l := range landmarks {
		if err := s.store.PullBeaconLandmarks(ctx, l.BeaconID, l.ID); err != nil {
			return err
		}
	}
	_, err = s.store.DeleteLandmarks(ctx, ids)
	return err
}
