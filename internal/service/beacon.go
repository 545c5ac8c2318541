package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/beaconapp/beacon-server/internal/domain"
	domainerrors "github.com/beaconapp/beacon-server/internal/errors"
	"github.com/beaconapp/beacon-server/internal/fanout"
	"github.com/beaconapp/beacon-server/internal/id"
	"github.com/beaconapp/beacon-server/internal/search"
	"github.com/beaconapp/beacon-server/internal/store"
)

// pullConcurrency bounds parallel back-reference pulls inside a cascade.
const pullConcurrency = 8

// BeaconService manages beacons, their participants, and their live updates.
type BeaconService struct {
	store  *store.Store
	groups *GroupService
	events Publisher
	index  BeaconIndex
	logger *slog.Logger
	now    func() time.Time
}

// NewBeaconService creates a beacon service. index may be nil, in which case
// nearby queries fail and index maintenance is skipped.
func NewBeaconService(s *store.Store, groups *GroupService, events Publisher, index BeaconIndex, logger *slog.Logger) *BeaconService {
	return &BeaconService{
		store:  s,
		groups: groups,
		events: publisherOrDiscard(events),
		index:  index,
		logger: loggerOrDiscard(logger),
		now:    time.Now,
	}
}

// CreateBeaconRequest describes a new beacon.
type CreateBeaconRequest struct {
	Title     string          `json:"title" validate:"required,max=120"`
	StartsAt  *time.Time      `json:"starts_at"`
	ExpiresAt time.Time       `json:"expires_at" validate:"required"`
	Location  domain.Location `json:"location"`
}

// RescheduleRequest moves a beacon's expiry.
type RescheduleRequest struct {
	ExpiresAt time.Time `json:"expires_at" validate:"required"`
}

// ChangeLeaderRequest names the new leader of a beacon.
type ChangeLeaderRequest struct {
	LeaderID string `json:"leader_id" validate:"required"`
}

// LocationRequest carries one reported position.
type LocationRequest struct {
	Location domain.Location `json:"location"`
}

// CreateLandmarkRequest describes a landmark dropped on a beacon.
type CreateLandmarkRequest struct {
	Title    string          `json:"title" validate:"required,max=120"`
	Location domain.Location `json:"location"`
}

// SOSRequest optionally carries the position of the user in distress.
type SOSRequest struct {
	Location *domain.Location `json:"location,omitempty"`
}

// CreateBeacon creates a beacon in groupID led by userID, who must be the
// group leader or a member.
func (s *BeaconService) CreateBeacon(ctx context.Context, userID, groupID string, req CreateBeaconRequest) (*domain.Beacon, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, translate(err)
	}
	if !group.HasParticipant(userID) {
		return nil, domainerrors.NotMember("not a member of this group")
	}

	startsAt := s.now()
	if req.StartsAt != nil {
		startsAt = *req.StartsAt
	}
	if startsAt.After(req.ExpiresAt) {
		return nil, domainerrors.InvalidState("beacon cannot start after it expires")
	}

	beaconID, err := id.Generate(id.Beacon)
	if err != nil {
		return nil, domainerrors.Internal("failed to generate beacon id").WithCause(err)
	}

	var beacon *domain.Beacon
	err = runCascade(ctx, domain.NewCascade("create beacon").
		Then("insert beacon", func(ctx context.Context) error {
			created, err := allocate(ctx, KindBeacon, s.logger, func(ctx context.Context, code string) (*domain.Beacon, error) {
				b := &domain.Beacon{
					Title:     req.Title,
					Shortcode: code,
					LeaderID:  userID,
					GroupID:   groupID,
					StartsAt:  startsAt,
					ExpiresAt: req.ExpiresAt,
					Location:  req.Location,
					Route:     []domain.Location{req.Location},
				}
				b.ID = beaconID
				b.InitTimestamps()
				return b, s.store.CreateBeacon(ctx, b)
			})
			beacon = created
			return translate(err)
		}).
		Then("add beacon to group", func(ctx context.Context) error {
			return s.store.AddGroupBeacon(ctx, groupID, beaconID)
		}).
		Then("add beacon to leader", func(ctx context.Context) error {
			return s.store.AddUserBeacon(ctx, userID, beaconID)
		}), s.logger)
	if err != nil {
		return nil, err
	}

	s.indexBeacon(beacon)
	s.events.Publish(fanout.Event{
		Topics:     []fanout.Topic{fanout.GroupTopic(groupID)},
		Recipients: group.Participants(),
		ActorID:    userID,
		Data: fanout.BeaconCreated{
			GroupID:   groupID,
			BeaconID:  beacon.ID,
			Title:     beacon.Title,
			Shortcode: beacon.Shortcode,
			LeaderID:  userID,
			StartsAt:  beacon.StartsAt,
			ExpiresAt: beacon.ExpiresAt,
			Location:  beacon.Location,
		},
	})

	s.logger.Info("beacon created", "beacon_id", beacon.ID, "group_id", groupID, "leader_id", userID)
	return beacon, nil
}

// JoinBeacon makes userID a follower of the beacon owning shortcode. A user
// outside the owning group joins the group first.
func (s *BeaconService) JoinBeacon(ctx context.Context, userID string, req JoinRequest) (*domain.Beacon, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	beacon, err := s.store.GetBeaconByShortcode(ctx, req.Shortcode)
	if err != nil {
		return nil, translate(err)
	}
	if err := s.checkJoinable(beacon, userID); err != nil {
		return nil, err
	}

	group, err := s.store.GetGroup(ctx, beacon.GroupID)
	if err != nil {
		return nil, translate(err)
	}
	if !group.HasParticipant(userID) {
		_, err := s.groups.join(ctx, user, group.ID, beacon.ID)
		if err != nil && !isReason(err, domainerrors.ReasonAlreadyMember) {
			return nil, err
		}
	}

	err = runCascade(ctx, domain.NewCascade("join beacon").
		Then("add follower to beacon", func(ctx context.Context) error {
			var err error
			beacon, err = s.store.Beacons.Mutate(ctx, beacon.ID, func(b *domain.Beacon) (bool, error) {
				if err := s.checkJoinable(b, userID); err != nil {
					return false, err
				}
				domain.AddToSet(&b.Followers, userID)
				b.Touch()
				return true, nil
			})
			return translate(err)
		}).
		Then("add beacon to user", func(ctx context.Context) error {
			return s.store.AddUserBeacon(ctx, userID, beacon.ID)
		}), s.logger)
	if err != nil {
		return nil, err
	}

	s.events.Publish(fanout.Event{
		Topics:     []fanout.Topic{fanout.BeaconTopic(beacon.ID)},
		Recipients: beacon.Participants(),
		ActorID:    userID,
		Data: fanout.MemberJoined{
			GroupID:  beacon.GroupID,
			BeaconID: beacon.ID,
			UserID:   userID,
			Name:     user.Name,
		},
	})

	s.logger.Info("user joined beacon", "beacon_id", beacon.ID, "user_id", userID)
	return beacon, nil
}

func (s *BeaconService) checkJoinable(b *domain.Beacon, userID string) error {
	switch {
	case !b.State(s.now()).Live():
		return domainerrors.Expired("beacon has expired")
	case b.IsLeader(userID):
		return domainerrors.ConflictReason(domainerrors.ReasonAlreadyLeading, "already leading this beacon")
	case b.IsFollower(userID):
		return domainerrors.ConflictReason(domainerrors.ReasonAlreadyFollowing, "already following this beacon")
	}
	return nil
}

// DeleteBeacon removes a beacon, its landmarks, and every reference to it.
// Only the leader may do this.
func (s *BeaconService) DeleteBeacon(ctx context.Context, actorID, beaconID string) error {
	beacon, err := s.store.GetBeacon(ctx, beaconID)
	if err != nil {
		return translate(err)
	}
	if !beacon.IsLeader(actorID) {
		return domainerrors.NotLeader("only the beacon leader can delete it")
	}

	recipients := beacon.Participants()
	if group, err := s.store.GetGroup(ctx, beacon.GroupID); err == nil {
		recipients = union(recipients, group.Participants())
	}

	c := domain.NewCascade("delete beacon")
	s.teardown(c, beacon)
	if err := runCascade(ctx, c, s.logger); err != nil {
		return err
	}

	s.publishDeleted(beacon, actorID, recipients)
	s.logger.Info("beacon deleted", "beacon_id", beaconID, "leader_id", actorID)
	return nil
}

// teardown appends the steps that remove b and everything hanging off it,
// children first. Every step is safe to repeat.
func (s *BeaconService) teardown(c *domain.Cascade, b *domain.Beacon) {
	c.Then("delete landmarks of "+b.ID, func(ctx context.Context) error {
		ids, err := s.store.ListLandmarkIDsByBeacon(ctx, b.ID)
		if err != nil {
			return err
		}
		_, err = s.store.DeleteLandmarks(ctx, ids)
		return err
	}).
		Then("pull "+b.ID+" from participants", func(ctx context.Context) error {
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(pullConcurrency)
			for _, userID := range b.Participants() {
				g.Go(func() error {
					return s.store.PullUserBeacons(gctx, userID, b.ID)
				})
			}
			return g.Wait()
		}).
		Then("pull "+b.ID+" from group", func(ctx context.Context) error {
			return s.store.PullGroupBeacons(ctx, b.GroupID, b.ID)
		}).
		Then("delete beacon "+b.ID, func(ctx context.Context) error {
			return s.store.DeleteBeacon(ctx, b.ID)
		}).
		Then("unindex "+b.ID, func(context.Context) error {
			s.unindexBeacons(b.ID)
			return nil
		})
}

func (s *BeaconService) publishDeleted(b *domain.Beacon, actorID string, recipients []string) {
	s.events.Publish(fanout.Event{
		Topics:     []fanout.Topic{fanout.BeaconTopic(b.ID), fanout.GroupTopic(b.GroupID)},
		Recipients: recipients,
		ActorID:    actorID,
		Data:       fanout.BeaconDeleted{GroupID: b.GroupID, BeaconID: b.ID},
	})
}

// RescheduleHike moves the beacon's expiry. Only the leader may do this.
func (s *BeaconService) RescheduleHike(ctx context.Context, actorID, beaconID string, req RescheduleRequest) (*domain.Beacon, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	beacon, err := s.store.UpdateBeacon(ctx, beaconID, func(b *domain.Beacon) error {
		if !b.IsLeader(actorID) {
			return domainerrors.NotLeader("only the beacon leader can reschedule it")
		}
		if b.StartsAt.After(req.ExpiresAt) {
			return domainerrors.InvalidState("beacon cannot expire before it starts")
		}
		b.ExpiresAt = req.ExpiresAt
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	s.indexBeacon(beacon)
	s.publishUpdated(beacon, actorID)
	return beacon, nil
}

// ChangeLeader hands the beacon to newLeaderID, who must follow the beacon or
// belong to its group. Only the leader changes; the follower set is left as
// is. The previous leader's back-reference is dropped unless they also follow.
func (s *BeaconService) ChangeLeader(ctx context.Context, actorID, beaconID string, req ChangeLeaderRequest) (*domain.Beacon, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	newLeaderID := req.LeaderID

	current, err := s.store.GetBeacon(ctx, beaconID)
	if err != nil {
		return nil, translate(err)
	}
	if !current.IsLeader(actorID) {
		return nil, domainerrors.NotLeader("only the beacon leader can hand it over")
	}
	if newLeaderID == actorID {
		return nil, domainerrors.ConflictReason(domainerrors.ReasonAlreadyLeading, "already leading this beacon")
	}
	if !current.IsFollower(newLeaderID) {
		group, err := s.store.GetGroup(ctx, current.GroupID)
		if err != nil {
			return nil, translate(err)
		}
		if !group.HasParticipant(newLeaderID) {
			return nil, domainerrors.NotMember("new leader must follow the beacon or belong to its group")
		}
	}
	if _, err := s.store.GetUser(ctx, newLeaderID); err != nil {
		return nil, translate(err)
	}

	var beacon *domain.Beacon
	err = runCascade(ctx, domain.NewCascade("change leader").
		Then("swap leader on beacon", func(ctx context.Context) error {
			var err error
			beacon, err = s.store.UpdateBeacon(ctx, beaconID, func(b *domain.Beacon) error {
				if !b.IsLeader(actorID) {
					return domainerrors.NotLeader("only the beacon leader can hand it over")
				}
				b.LeaderID = newLeaderID
				return nil
			})
			return translate(err)
		}).
		Then("add beacon to new leader", func(ctx context.Context) error {
			return s.store.AddUserBeacon(ctx, newLeaderID, beaconID)
		}).
		Then("drop beacon from old leader", func(ctx context.Context) error {
			if beacon.IsFollower(actorID) {
				return nil
			}
			return s.store.PullUserBeacons(ctx, actorID, beaconID)
		}), s.logger)
	if err != nil {
		return nil, err
	}

	s.publishUpdated(beacon, actorID)
	s.logger.Info("beacon leader changed", "beacon_id", beaconID, "from", actorID, "to", newLeaderID)
	return beacon, nil
}

// ChangeShortcode gives the beacon a new join code. Only the leader may do this.
func (s *BeaconService) ChangeShortcode(ctx context.Context, actorID, beaconID string) (*domain.Beacon, error) {
	current, err := s.store.GetBeacon(ctx, beaconID)
	if err != nil {
		return nil, translate(err)
	}
	if !current.IsLeader(actorID) {
		return nil, domainerrors.NotLeader("only the beacon leader can change the shortcode")
	}

	beacon, err := allocate(ctx, KindBeacon, s.logger, func(ctx context.Context, code string) (*domain.Beacon, error) {
		return s.store.UpdateBeacon(ctx, beaconID, func(b *domain.Beacon) error {
			b.Shortcode = code
			return nil
		})
	})
	if err != nil {
		return nil, translate(err)
	}

	s.publishUpdated(beacon, actorID)
	return beacon, nil
}

func (s *BeaconService) publishUpdated(b *domain.Beacon, actorID string) {
	s.events.Publish(fanout.Event{
		Topics:     []fanout.Topic{fanout.BeaconTopic(b.ID)},
		Recipients: b.Participants(),
		ActorID:    actorID,
		Data: fanout.BeaconUpdated{
			BeaconID:  b.ID,
			LeaderID:  b.LeaderID,
			Shortcode: b.Shortcode,
			StartsAt:  b.StartsAt,
			ExpiresAt: b.ExpiresAt,
			Followers: b.Followers,
		},
	})
}

// UpdateBeaconLocation moves the beacon and extends its route. Only the leader may do this.
func (s *BeaconService) UpdateBeaconLocation(ctx context.Context, actorID, beaconID string, req LocationRequest) (*domain.Beacon, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	current, err := s.store.GetBeacon(ctx, beaconID)
	if err != nil {
		return nil, translate(err)
	}
	if !current.IsLeader(actorID) {
		return nil, domainerrors.NotLeader("only the beacon leader can move it")
	}
	leader, err := s.store.GetUser(ctx, actorID)
	if err != nil {
		return nil, translate(err)
	}

	beacon, err := s.store.MoveBeacon(ctx, beaconID, req.Location)
	if err != nil {
		return nil, translate(err)
	}

	s.indexBeacon(beacon)
	s.events.Publish(fanout.Event{
		Topics:     []fanout.Topic{fanout.BeaconTopic(beaconID)},
		Recipients: beacon.Participants(),
		ActorID:    actorID,
		Data: fanout.LocationUpdate{
			BeaconID: beaconID,
			Subject:  fanout.SubjectBeacon,
			UserID:   actorID,
			Name:     leader.Name,
			Location: req.Location,
		},
	})
	return beacon, nil
}

// UpdateUserLocation records the caller's position and shares it with the
// other participants of the beacon.
func (s *BeaconService) UpdateUserLocation(ctx context.Context, actorID, beaconID string, req LocationRequest) (*domain.User, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	beacon, err := s.participantBeacon(ctx, actorID, beaconID)
	if err != nil {
		return nil, err
	}

	user, err := s.store.SetUserLocation(ctx, actorID, req.Location)
	if err != nil {
		return nil, translate(err)
	}

	s.events.Publish(fanout.Event{
		Topics:     []fanout.Topic{fanout.BeaconTopic(beaconID)},
		Recipients: beacon.Participants(),
		ActorID:    actorID,
		Data: fanout.LocationUpdate{
			BeaconID: beaconID,
			Subject:  fanout.SubjectUser,
			UserID:   actorID,
			Name:     user.Name,
			Location: req.Location,
		},
	})
	return user, nil
}

// CreateLandmark drops a landmark on the beacon.
func (s *BeaconService) CreateLandmark(ctx context.Context, actorID, beaconID string, req CreateLandmarkRequest) (*domain.Landmark, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	beacon, err := s.participantBeacon(ctx, actorID, beaconID)
	if err != nil {
		return nil, err
	}

	landmark := &domain.Landmark{
		Title:     req.Title,
		Location:  req.Location,
		CreatedBy: actorID,
		BeaconID:  beaconID,
	}
	landmark.ID, err = id.Generate(id.Landmark)
	if err != nil {
		return nil, domainerrors.Internal("failed to generate landmark id").WithCause(err)
	}
	landmark.InitTimestamps()

	err = runCascade(ctx, domain.NewCascade("create landmark").
		Then("insert landmark", func(ctx context.Context) error {
			return translate(s.store.CreateLandmark(ctx, landmark))
		}).
		Then("add landmark to beacon", func(ctx context.Context) error {
			return s.store.AddBeaconLandmark(ctx, beaconID, landmark.ID)
		}), s.logger)
	if err != nil {
		return nil, err
	}

	s.events.Publish(fanout.Event{
		Topics:     []fanout.Topic{fanout.BeaconTopic(beaconID)},
		Recipients: beacon.Participants(),
		ActorID:    actorID,
		Data: fanout.LandmarkCreated{
			BeaconID:  beaconID,
			ID:        landmark.ID,
			Title:     landmark.Title,
			Location:  landmark.Location,
			CreatedBy: actorID,
		},
	})
	return landmark, nil
}

// SOS alerts the beacon and its group that the caller needs help.
func (s *BeaconService) SOS(ctx context.Context, actorID, beaconID string, req SOSRequest) error {
	if err := validate.Validate(req); err != nil {
		return err
	}
	beacon, err := s.participantBeacon(ctx, actorID, beaconID)
	if err != nil {
		return err
	}

	user, err := s.store.GetUser(ctx, actorID)
	if err != nil {
		return translate(err)
	}
	if req.Location != nil {
		if user, err = s.store.SetUserLocation(ctx, actorID, *req.Location); err != nil {
			return translate(err)
		}
	}

	recipients := beacon.Participants()
	if group, err := s.store.GetGroup(ctx, beacon.GroupID); err == nil {
		recipients = union(recipients, group.Participants())
	}

	s.events.Publish(fanout.Event{
		Topics:     []fanout.Topic{fanout.BeaconTopic(beaconID), fanout.GroupTopic(beacon.GroupID)},
		Recipients: recipients,
		ActorID:    actorID,
		Data: fanout.SOSRaised{
			BeaconID: beaconID,
			GroupID:  beacon.GroupID,
			UserID:   actorID,
			Name:     user.Name,
			Location: req.Location,
		},
	})

	s.logger.Warn("sos raised", "beacon_id", beaconID, "user_id", actorID)
	return nil
}

// Nearby returns beacons active now within the default radius of loc, closest first.
func (s *BeaconService) Nearby(ctx context.Context, loc domain.Location) ([]*domain.Beacon, error) {
	if err := validate.Validate(loc); err != nil {
		return nil, err
	}
	if s.index == nil {
		return nil, domainerrors.Internal("nearby search is not available")
	}
	lat, lon, err := loc.Coordinates()
	if err != nil {
		return nil, domainerrors.Validation(err.Error())
	}

	hits, err := s.index.Nearby(ctx, search.NearbyParams{
		Lat:          lat,
		Lon:          lon,
		RadiusMeters: search.DefaultNearbyRadiusMeters,
		ActiveAt:     s.now(),
	})
	if err != nil {
		return nil, domainerrors.Internal("nearby search failed").WithCause(err)
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	beacons, err := s.store.Beacons.GetMany(ctx, ids)
	if err != nil {
		return nil, translate(err)
	}

	// The index can lag behind the store; re-check each hit against the stored beacon.
	now := s.now()
	nearby := beacons[:0]
	for _, b := range beacons {
		if !b.State(now).Live() {
			continue
		}
		d, err := loc.DistanceMeters(b.Location)
		if err != nil || d > search.DefaultNearbyRadiusMeters {
			continue
		}
		nearby = append(nearby, b)
	}
	return nearby, nil
}

// GetBeacon returns the beacon with its references resolved. Only the leader
// and followers may read it.
func (s *BeaconService) GetBeacon(ctx context.Context, actorID, beaconID string) (*store.BeaconView, error) {
	view, err := s.store.LoadBeaconView(ctx, beaconID)
	if err != nil {
		return nil, translate(err)
	}
	if !view.Beacon.HasParticipant(actorID) {
		return nil, domainerrors.NotMember("not a participant of this beacon")
	}
	return view, nil
}

// Authorize reports whether actorID may subscribe to the beacon's feed.
func (s *BeaconService) Authorize(ctx context.Context, actorID, beaconID string) error {
	_, err := s.participantBeacon(ctx, actorID, beaconID)
	return err
}

// Resolved is what a join link points at.
type Resolved struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// Resolve maps a shortcode to the beacon or group that owns it. Beacons win
// when both kinds hold the same code.
func (s *BeaconService) Resolve(ctx context.Context, code string) (*Resolved, error) {
	if err := validate.Validate(JoinRequest{Shortcode: code}); err != nil {
		return nil, err
	}
	if b, err := s.store.GetBeaconByShortcode(ctx, code); err == nil {
		return &Resolved{Kind: KindBeacon, ID: b.ID}, nil
	} else if !domainerrors.Is(translate(err), domainerrors.ErrNotFound) {
		return nil, translate(err)
	}

	g, err := s.store.GetGroupByShortcode(ctx, code)
	if err != nil {
		if domainerrors.Is(translate(err), domainerrors.ErrNotFound) {
			return nil, domainerrors.NotFound("no beacon or group uses this code")
		}
		return nil, translate(err)
	}
	return &Resolved{Kind: KindGroup, ID: g.ID}, nil
}

func (s *BeaconService) participantBeacon(ctx context.Context, actorID, beaconID string) (*domain.Beacon, error) {
	beacon, err := s.store.GetBeacon(ctx, beaconID)
	if err != nil {
		return nil, translate(err)
	}
	if !beacon.HasParticipant(actorID) {
		return nil, domainerrors.NotMember("not a participant of this beacon")
	}
	return beacon, nil
}

func (s *BeaconService) indexBeacon(b *domain.Beacon) {
	if s.index == nil {
		return
	}
	if err := s.index.IndexBeacon(b); err != nil {
		s.logger.Warn("failed to index beacon", "beacon_id", b.ID, "error", err)
	}
}

func (s *BeaconService) unindexBeacons(ids ...string) {
	if s.index == nil || len(ids) == 0 {
		return
	}
	if err := s.index.RemoveBeacons(ids...); err != nil {
		s.logger.Warn("failed to remove beacons from index", "count", len(ids), "error", err)
	}
}

func isReason(err error, reason string) bool {
	var domainErr *domainerrors.Error
	return domainerrors.As(err, &domainErr) && domainErr.Reason() == reason
}
