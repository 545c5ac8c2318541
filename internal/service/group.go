package service

import (
	"context"
	"log/slog"

	"github.com/beaconapp/beacon-server/internal/domain"
	domainerrors "github.com/beaconapp/beacon-server/internal/errors"
	"github.com/beaconapp/beacon-server/internal/fanout"
	"github.com/beaconapp/beacon-server/internal/id"
	"github.com/beaconapp/beacon-server/internal/store"
)

// GroupService manages groups and their membership.
type GroupService struct {
	store  *store.Store
	events Publisher
	logger *slog.Logger
}

// NewGroupService creates a group service. A nil publisher discards events.
func NewGroupService(s *store.Store, events Publisher, logger *slog.Logger) *GroupService {
	return &GroupService{
		store:  s,
		events: publisherOrDiscard(events),
		logger: loggerOrDiscard(logger),
	}
}

// CreateGroupRequest names a new group.
type CreateGroupRequest struct {
	Title string `json:"title" validate:"required,max=120"`
}

// JoinRequest carries a join code for a group or beacon.
type JoinRequest struct {
	Shortcode string `json:"shortcode" validate:"required,shortcode"`
}

// CreateGroup creates a group led by userID under a freshly allocated shortcode.
func (s *GroupService) CreateGroup(ctx context.Context, userID string, req CreateGroupRequest) (*domain.Group, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, translate(err)
	}

	groupID, err := id.Generate(id.Group)
	if err != nil {
		return nil, domainerrors.Internal("failed to generate group id").WithCause(err)
	}

	var group *domain.Group
	err = runCascade(ctx, domain.NewCascade("create group").
		Then("insert group", func(ctx context.Context) error {
			created, err := allocate(ctx, KindGroup, s.logger, func(ctx context.Context, code string) (*domain.Group, error) {
				g := &domain.Group{Title: req.Title, Shortcode: code, LeaderID: userID}
				g.ID = groupID
				g.InitTimestamps()
				return g, s.store.CreateGroup(ctx, g)
			})
			group = created
			return translate(err)
		}).
		Then("add group to leader", func(ctx context.Context) error {
			return s.store.AddUserGroup(ctx, userID, groupID)
		}), s.logger)
	if err != nil {
		return nil, err
	}

	s.logger.Info("group created", "group_id", group.ID, "leader_id", userID)
	return group, nil
}

// JoinGroup adds userID to the group owning shortcode.
// The leader and existing members get a Conflict with reason already_member.
func (s *GroupService) JoinGroup(ctx context.Context, userID string, req JoinRequest) (*domain.Group, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	group, err := s.store.GetGroupByShortcode(ctx, req.Shortcode)
	if err != nil {
		return nil, translate(err)
	}
	return s.join(ctx, user, group.ID, "")
}

// join adds user to the group and publishes MemberJoined on the group topic.
// beaconID is set when the join is the implicit step of a beacon join.
func (s *GroupService) join(ctx context.Context, user *domain.User, groupID, beaconID string) (*domain.Group, error) {
	var group *domain.Group
	err := runCascade(ctx, domain.NewCascade("join group").
		Then("add member to group", func(ctx context.Context) error {
			var err error
			group, err = s.store.Groups.Mutate(ctx, groupID, func(g *domain.Group) (bool, error) {
				if g.HasParticipant(user.ID) {
					return false, domainerrors.ConflictReason(domainerrors.ReasonAlreadyMember, "already a member of this group")
				}
				domain.AddToSet(&g.Members, user.ID)
				g.Touch()
				return true, nil
			})
			return translate(err)
		}).
		Then("add group to user", func(ctx context.Context) error {
			return s.store.AddUserGroup(ctx, user.ID, groupID)
		}), s.logger)
	if err != nil {
		return nil, err
	}

	s.events.Publish(fanout.Event{
		Topics:     []fanout.Topic{fanout.GroupTopic(groupID)},
		Recipients: group.Participants(),
		ActorID:    user.ID,
		Data: fanout.MemberJoined{
			GroupID:  groupID,
			BeaconID: beaconID,
			UserID:   user.ID,
			Name:     user.Name,
		},
	})

	s.logger.Info("user joined group", "group_id", groupID, "user_id", user.ID)
	return group, nil
}

// RemoveMember removes memberID from the group. Only the leader may do this.
func (s *GroupService) RemoveMember(ctx context.Context, actorID, groupID, memberID string) error {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return translate(err)
	}
	if !group.IsLeader(actorID) {
		return domainerrors.NotLeader("only the group leader can remove members")
	}
	if !group.IsMember(memberID) {
		return domainerrors.NotMember("user is not a member of this group")
	}

	// The removed member still hears about it.
	recipients := group.Participants()

	err = runCascade(ctx, domain.NewCascade("remove member").
		Then("pull member from group", func(ctx context.Context) error {
			return s.store.PullGroupMembers(ctx, groupID, memberID)
		}).
		Then("pull group from user", func(ctx context.Context) error {
			return s.store.PullUserGroups(ctx, memberID, groupID)
		}), s.logger)
	if err != nil {
		return err
	}

	name := ""
	if member, err := s.store.GetUser(ctx, memberID); err == nil {
		name = member.Name
	}
	s.events.Publish(fanout.Event{
		Topics:     []fanout.Topic{fanout.GroupTopic(groupID)},
		Recipients: recipients,
		ActorID:    actorID,
		Data:       fanout.MemberLeft{GroupID: groupID, UserID: memberID, Name: name},
	})

	s.logger.Info("member removed from group", "group_id", groupID, "member_id", memberID)
	return nil
}

// ChangeShortcode gives the group a new join code. The old code stops
// resolving as soon as this returns.
func (s *GroupService) ChangeShortcode(ctx context.Context, actorID, groupID string) (*domain.Group, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, translate(err)
	}
	if !group.IsLeader(actorID) {
		return nil, domainerrors.NotLeader("only the group leader can change the shortcode")
	}

	group, err = allocate(ctx, KindGroup, s.logger, func(ctx context.Context, code string) (*domain.Group, error) {
		return s.store.SetGroupShortcode(ctx, groupID, code)
	})
	if err != nil {
		return nil, translate(err)
	}
	return group, nil
}

// GetGroup returns the group with its references resolved. Only participants may read it.
func (s *GroupService) GetGroup(ctx context.Context, actorID, groupID string) (*store.GroupView, error) {
	view, err := s.store.LoadGroupView(ctx, groupID)
	if err != nil {
		return nil, translate(err)
	}
	if !view.Group.HasParticipant(actorID) {
		return nil, domainerrors.NotMember("not a member of this group")
	}
	return view, nil
}

// AuthorizedGroups narrows groupIDs to the groups actorID participates in.
// Unknown groups are dropped.
func (s *GroupService) AuthorizedGroups(ctx context.Context, actorID string, groupIDs []string) ([]string, error) {
	groups, err := s.store.Groups.GetMany(ctx, groupIDs)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		if g.HasParticipant(actorID) {
			out = append(out, g.ID)
		}
	}
	return out, nil
}
