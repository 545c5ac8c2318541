package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/beaconapp/beacon-server/internal/domain"
	"github.com/beaconapp/beacon-server/internal/service"
)

func (s *Server) registerUserRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getMe",
		Method:      http.MethodGet,
		Path:        "/api/v1/me",
		Summary:     "Current user",
		Description: "Returns the caller with their groups and beacons",
		Tags:        []string{"Users"},
		Security:    bearer,
	}, s.handleGetMe)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteMe",
		Method:      http.MethodDelete,
		Path:        "/api/v1/me",
		Summary:     "Delete account",
		Description: "Deletes the caller, every group they lead with its beacons, every beacon they lead, and their landmarks. Credential accounts must confirm their password.",
		Tags:        []string{"Users"},
		Security:    bearer,
	}, s.handleDeleteMe)

	huma.Register(s.api, huma.Operation{
		OperationID: "setMyLocation",
		Method:      http.MethodPut,
		Path:        "/api/v1/me/location",
		Summary:     "Set own location",
		Description: "Stores the caller's location without broadcasting it",
		Tags:        []string{"Users"},
		Security:    bearer,
	}, s.handleSetMyLocation)
}

// MeOutput wraps the caller's resolved account for Huma.
type MeOutput struct {
	Body MeResponse
}

// DeleteMeRequest confirms account deletion.
type DeleteMeRequest struct {
	Password string `json:"password,omitempty" doc:"Current password, required for credential accounts"`
}

// DeleteMeInput wraps the deletion request for Huma. Anonymous accounts send no body.
type DeleteMeInput struct {
	Body *DeleteMeRequest `required:"false"`
}

// LocationBody carries one reported position.
type LocationBody struct {
	Location domain.Location `json:"location" doc:"Position as decimal degree strings"`
}

// SetLocationInput wraps the location update for Huma.
type SetLocationInput struct {
	Body LocationBody
}

func (s *Server) handleGetMe(ctx context.Context, _ *struct{}) (*MeOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	view, err := s.services.Users.Me(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &MeOutput{Body: mapUserView(view)}, nil
}

func (s *Server) handleDeleteMe(ctx context.Context, input *DeleteMeInput) (*struct{}, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	var req service.DeleteAccountRequest
	if input.Body != nil {
		req.Password = input.Body.Password
	}

	if err := s.services.Users.DeleteUser(ctx, userID, req); err != nil {
		return nil, err
	}

	return nil, nil
}

func (s *Server) handleSetMyLocation(ctx context.Context, input *SetLocationInput) (*UserOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.allow(s.locationRateLimiter, userID); err != nil {
		return nil, err
	}

	user, err := s.services.Users.SetLocation(ctx, userID, service.LocationRequest{Location: input.Body.Location})
	if err != nil {
		return nil, err
	}

	return &UserOutput{Body: mapUser(user)}, nil
}
