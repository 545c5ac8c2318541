package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/beaconapp/beacon-server/internal/domain"
	"github.com/beaconapp/beacon-server/internal/service"
)

func (s *Server) registerGroupRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "createGroup",
		Method:        http.MethodPost,
		Path:          "/api/v1/groups",
		Summary:       "Create group",
		Description:   "Creates a group led by the caller with a fresh join code",
		Tags:          []string{"Groups"},
		Security:      bearer,
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateGroup)

	huma.Register(s.api, huma.Operation{
		OperationID: "getGroup",
		Method:      http.MethodGet,
		Path:        "/api/v1/groups/{id}",
		Summary:     "Get group",
		Description: "Returns a group with its leader, members and beacons. Participants only.",
		Tags:        []string{"Groups"},
		Security:    bearer,
	}, s.handleGetGroup)

	huma.Register(s.api, huma.Operation{
		OperationID: "joinGroup",
		Method:      http.MethodPost,
		Path:        "/api/v1/groups/join",
		Summary:     "Join group",
		Description: "Joins the group owning the shortcode",
		Tags:        []string{"Groups"},
		Security:    bearer,
	}, s.handleJoinGroup)

	huma.Register(s.api, huma.Operation{
		OperationID: "removeGroupMember",
		Method:      http.MethodDelete,
		Path:        "/api/v1/groups/{id}/members/{memberId}",
		Summary:     "Remove member",
		Description: "Removes a member from the group. Leader only.",
		Tags:        []string{"Groups"},
		Security:    bearer,
	}, s.handleRemoveGroupMember)

	huma.Register(s.api, huma.Operation{
		OperationID: "changeGroupShortcode",
		Method:      http.MethodPost,
		Path:        "/api/v1/groups/{id}/shortcode",
		Summary:     "Rotate group code",
		Description: "Replaces the group's join code. The old code stops working. Leader only.",
		Tags:        []string{"Groups"},
		Security:    bearer,
	}, s.handleChangeGroupShortcode)
}

// CreateGroupRequest is the request body for creating a group.
type CreateGroupRequest struct {
	Title string `json:"title" maxLength:"120" doc:"Group title"`
}

// CreateGroupInput wraps the create request for Huma.
type CreateGroupInput struct {
	Body CreateGroupRequest
}

// GroupOutput wraps a group for Huma.
type GroupOutput struct {
	Body *domain.Group
}

// GroupViewOutput wraps a resolved group for Huma.
type GroupViewOutput struct {
	Body GroupViewResponse
}

// GroupIDInput names a group in the path.
type GroupIDInput struct {
	ID string `path:"id" doc:"Group ID"`
}

// JoinRequest is the request body for joining by shortcode.
type JoinRequest struct {
	Shortcode string `json:"shortcode" doc:"Six character join code, case-insensitive"`
}

// JoinInput wraps the join request for Huma.
type JoinInput struct {
	Body JoinRequest
}

// RemoveMemberInput names the group and the member to remove.
type RemoveMemberInput struct {
	ID       string `path:"id" doc:"Group ID"`
	MemberID string `path:"memberId" doc:"User ID of the member"`
}

func (s *Server) handleCreateGroup(ctx context.Context, input *CreateGroupInput) (*GroupOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	group, err := s.services.Groups.CreateGroup(ctx, userID, service.CreateGroupRequest{Title: input.Body.Title})
	if err != nil {
		return nil, err
	}

	return &GroupOutput{Body: group}, nil
}

func (s *Server) handleGetGroup(ctx context.Context, input *GroupIDInput) (*GroupViewOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	view, err := s.services.Groups.GetGroup(ctx, userID, input.ID)
	if err != nil {
		return nil, err
	}

	return &GroupViewOutput{Body: mapGroupView(view)}, nil
}

func (s *Server) handleJoinGroup(ctx context.Context, input *JoinInput) (*GroupOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	group, err := s.services.Groups.JoinGroup(ctx, userID, service.JoinRequest{Shortcode: input.Body.Shortcode})
	if err != nil {
		return nil, err
	}

	return &GroupOutput{Body: group}, nil
}

func (s *Server) handleRemoveGroupMember(ctx context.Context, input *RemoveMemberInput) (*struct{}, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.services.Groups.RemoveMember(ctx, userID, input.ID, input.MemberID); err != nil {
		return nil, err
	}

	return nil, nil
}

func (s *Server) handleChangeGroupShortcode(ctx context.Context, input *GroupIDInput) (*GroupOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	group, err := s.services.Groups.ChangeShortcode(ctx, userID, input.ID)
	if err != nil {
		return nil, err
	}

	return &GroupOutput{Body: group}, nil
}
