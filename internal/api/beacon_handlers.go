package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/beaconapp/beacon-server/internal/domain"
	"github.com/beaconapp/beacon-server/internal/service"
)

func (s *Server) registerBeaconRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "createBeacon",
		Method:        http.MethodPost,
		Path:          "/api/v1/groups/{id}/beacons",
		Summary:       "Create beacon",
		Description:   "Starts a beacon in the group, led by the caller",
		Tags:          []string{"Beacons"},
		Security:      bearer,
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateBeacon)

	huma.Register(s.api, huma.Operation{
		OperationID: "nearbyBeacons",
		Method:      http.MethodGet,
		Path:        "/api/v1/beacons/nearby",
		Summary:     "Nearby beacons",
		Description: "Lists active beacons within 1500 m of the given point",
		Tags:        []string{"Beacons"},
		Security:    bearer,
	}, s.handleNearbyBeacons)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBeacon",
		Method:      http.MethodGet,
		Path:        "/api/v1/beacons/{id}",
		Summary:     "Get beacon",
		Description: "Returns a beacon with its leader, followers, landmarks and group. Participants only.",
		Tags:        []string{"Beacons"},
		Security:    bearer,
	}, s.handleGetBeacon)

	huma.Register(s.api, huma.Operation{
		OperationID: "joinBeacon",
		Method:      http.MethodPost,
		Path:        "/api/v1/beacons/join",
		Summary:     "Join beacon",
		Description: "Follows the beacon owning the shortcode, joining its group if needed",
		Tags:        []string{"Beacons"},
		Security:    bearer,
	}, s.handleJoinBeacon)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteBeacon",
		Method:      http.MethodDelete,
		Path:        "/api/v1/beacons/{id}",
		Summary:     "Delete beacon",
		Description: "Deletes the beacon and its landmarks. Leader only.",
		Tags:        []string{"Beacons"},
		Security:    bearer,
	}, s.handleDeleteBeacon)

	huma.Register(s.api, huma.Operation{
		OperationID: "rescheduleBeacon",
		Method:      http.MethodPatch,
		Path:        "/api/v1/beacons/{id}/schedule",
		Summary:     "Reschedule beacon",
		Description: "Moves the beacon's expiry. Leader only.",
		Tags:        []string{"Beacons"},
		Security:    bearer,
	}, s.handleRescheduleBeacon)

	huma.Register(s.api, huma.Operation{
		OperationID: "changeBeaconLeader",
		Method:      http.MethodPut,
		Path:        "/api/v1/beacons/{id}/leader",
		Summary:     "Hand over beacon",
		Description: "Makes a follower or group participant the leader. The old leader becomes a follower.",
		Tags:        []string{"Beacons"},
		Security:    bearer,
	}, s.handleChangeBeaconLeader)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateBeaconLocation",
		Method:      http.MethodPut,
		Path:        "/api/v1/beacons/{id}/location",
		Summary:     "Move beacon",
		Description: "Sets the beacon location and extends its route. Leader only.",
		Tags:        []string{"Beacons"},
		Security:    bearer,
	}, s.handleUpdateBeaconLocation)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateUserLocation",
		Method:      http.MethodPut,
		Path:        "/api/v1/beacons/{id}/user-location",
		Summary:     "Share own location",
		Description: "Sets the caller's location and shares it with the beacon's other participants",
		Tags:        []string{"Beacons"},
		Security:    bearer,
	}, s.handleUpdateUserLocation)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createLandmark",
		Method:        http.MethodPost,
		Path:          "/api/v1/beacons/{id}/landmarks",
		Summary:       "Drop landmark",
		Description:   "Adds a titled point to the beacon",
		Tags:          []string{"Beacons"},
		Security:      bearer,
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateLandmark)

	huma.Register(s.api, huma.Operation{
		OperationID:   "raiseSOS",
		Method:        http.MethodPost,
		Path:          "/api/v1/beacons/{id}/sos",
		Summary:       "Raise SOS",
		Description:   "Alerts the beacon and its group",
		Tags:          []string{"Beacons"},
		Security:      bearer,
		DefaultStatus: http.StatusAccepted,
	}, s.handleSOS)

	huma.Register(s.api, huma.Operation{
		OperationID: "changeBeaconShortcode",
		Method:      http.MethodPost,
		Path:        "/api/v1/beacons/{id}/shortcode",
		Summary:     "Rotate beacon code",
		Description: "Replaces the beacon's join code. Leader only.",
		Tags:        []string{"Beacons"},
		Security:    bearer,
	}, s.handleChangeBeaconShortcode)
}

// === DTOs ===

// CreateBeaconRequest is the request body for starting a beacon.
type CreateBeaconRequest struct {
	Title     string          `json:"title" maxLength:"120" doc:"Beacon title"`
	StartsAt  *time.Time      `json:"starts_at,omitempty" doc:"Start time, defaults to now"`
	ExpiresAt time.Time       `json:"expires_at" doc:"Expiry time"`
	Location  domain.Location `json:"location" doc:"Meeting point"`
}

// CreateBeaconInput wraps the create request for Huma.
type CreateBeaconInput struct {
	ID   string `path:"id" doc:"Group ID"`
	Body CreateBeaconRequest
}

// BeaconIDInput names a beacon in the path.
type BeaconIDInput struct {
	ID string `path:"id" doc:"Beacon ID"`
}

// BeaconOutput wraps a beacon for Huma.
type BeaconOutput struct {
	Body *domain.Beacon
}

// BeaconViewOutput wraps a resolved beacon for Huma.
type BeaconViewOutput struct {
	Body BeaconViewResponse
}

// BeaconListOutput wraps a list of beacons for Huma.
type BeaconListOutput struct {
	Body []*domain.Beacon
}

// NearbyInput is a point given as query parameters.
type NearbyInput struct {
	Lat string `query:"lat" required:"true" doc:"Latitude in decimal degrees"`
	Lon string `query:"lon" required:"true" doc:"Longitude in decimal degrees"`
}

// RescheduleRequest is the request body for moving a beacon's expiry.
type RescheduleRequest struct {
	ExpiresAt time.Time `json:"expires_at" doc:"New expiry time"`
}

// RescheduleInput wraps the reschedule request for Huma.
type RescheduleInput struct {
	ID   string `path:"id" doc:"Beacon ID"`
	Body RescheduleRequest
}

// ChangeLeaderRequest names the new leader.
type ChangeLeaderRequest struct {
	LeaderID string `json:"leader_id" doc:"User ID of the new leader"`
}

// ChangeLeaderInput wraps the handover request for Huma.
type ChangeLeaderInput struct {
	ID   string `path:"id" doc:"Beacon ID"`
	Body ChangeLeaderRequest
}

// BeaconLocationInput wraps a location reported against a beacon.
type BeaconLocationInput struct {
	ID   string `path:"id" doc:"Beacon ID"`
	Body LocationBody
}

// CreateLandmarkRequest is the request body for dropping a landmark.
type CreateLandmarkRequest struct {
	Title    string          `json:"title" maxLength:"120" doc:"Landmark title"`
	Location domain.Location `json:"location" doc:"Landmark position"`
}

// CreateLandmarkInput wraps the landmark request for Huma.
type CreateLandmarkInput struct {
	ID   string `path:"id" doc:"Beacon ID"`
	Body CreateLandmarkRequest
}

// LandmarkOutput wraps a landmark for Huma.
type LandmarkOutput struct {
	Body *domain.Landmark
}

// SOSRequest optionally carries the caller's position.
type SOSRequest struct {
	Location *domain.Location `json:"location,omitempty" doc:"Where help is needed"`
}

// SOSInput wraps the SOS request for Huma. The body may be omitted.
type SOSInput struct {
	ID   string      `path:"id" doc:"Beacon ID"`
	Body *SOSRequest `required:"false"`
}

// === Handlers ===

func (s *Server) handleCreateBeacon(ctx context.Context, input *CreateBeaconInput) (*BeaconOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	beacon, err := s.services.Beacons.CreateBeacon(ctx, userID, input.ID, service.CreateBeaconRequest{
		Title:     input.Body.Title,
		StartsAt:  input.Body.StartsAt,
		ExpiresAt: input.Body.ExpiresAt,
		Location:  input.Body.Location,
	})
	if err != nil {
		return nil, err
	}

	return &BeaconOutput{Body: beacon}, nil
}

func (s *Server) handleNearbyBeacons(ctx context.Context, input *NearbyInput) (*BeaconListOutput, error) {
	if _, err := GetUserID(ctx); err != nil {
		return nil, err
	}

	beacons, err := s.services.Beacons.Nearby(ctx, domain.Location{Lat: input.Lat, Lon: input.Lon})
	if err != nil {
		return nil, err
	}

	return &BeaconListOutput{Body: nonNil(beacons)}, nil
}

func (s *Server) handleGetBeacon(ctx context.Context, input *BeaconIDInput) (*BeaconViewOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	view, err := s.services.Beacons.GetBeacon(ctx, userID, input.ID)
	if err != nil {
		return nil, err
	}

	return &BeaconViewOutput{Body: mapBeaconView(view)}, nil
}

func (s *Server) handleJoinBeacon(ctx context.Context, input *JoinInput) (*BeaconOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	beacon, err := s.services.Beacons.JoinBeacon(ctx, userID, service.JoinRequest{Shortcode: input.Body.Shortcode})
	if err != nil {
		return nil, err
	}

	return &BeaconOutput{Body: beacon}, nil
}

func (s *Server) handleDeleteBeacon(ctx context.Context, input *BeaconIDInput) (*struct{}, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.services.Beacons.DeleteBeacon(ctx, userID, input.ID); err != nil {
		return nil, err
	}

	return nil, nil
}

func (s *Server) handleRescheduleBeacon(ctx context.Context, input *RescheduleInput) (*BeaconOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	beacon, err := s.services.Beacons.RescheduleHike(ctx, userID, input.ID, service.RescheduleRequest{ExpiresAt: input.Body.ExpiresAt})
	if err != nil {
		return nil, err
	}

	return &BeaconOutput{Body: beacon}, nil
}

func (s *Server) handleChangeBeaconLeader(ctx context.Context, input *ChangeLeaderInput) (*BeaconOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	beacon, err := s.services.Beacons.ChangeLeader(ctx, userID, input.ID, service.ChangeLeaderRequest{LeaderID: input.Body.LeaderID})
	if err != nil {
		return nil, err
	}

	return &BeaconOutput{Body: beacon}, nil
}

func (s *Server) handleUpdateBeaconLocation(ctx context.Context, input *BeaconLocationInput) (*BeaconOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.allow(s.locationRateLimiter, userID); err != nil {
		return nil, err
	}

	beacon, err := s.services.Beacons.UpdateBeaconLocation(ctx, userID, input.ID, service.LocationRequest{Location: input.Body.Location})
	if err != nil {
		return nil, err
	}

	return &BeaconOutput{Body: beacon}, nil
}

func (s *Server) handleUpdateUserLocation(ctx context.Context, input *BeaconLocationInput) (*UserOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.allow(s.locationRateLimiter, userID); err != nil {
		return nil, err
	}

	user, err := s.services.Beacons.UpdateUserLocation(ctx, userID, input.ID, service.LocationRequest{Location: input.Body.Location})
	if err != nil {
		return nil, err
	}

	return &UserOutput{Body: mapUser(user)}, nil
}

func (s *Server) handleCreateLandmark(ctx context.Context, input *CreateLandmarkInput) (*LandmarkOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	landmark, err := s.services.Beacons.CreateLandmark(ctx, userID, input.ID, service.CreateLandmarkRequest{
		Title:    input.Body.Title,
		Location: input.Body.Location,
	})
	if err != nil {
		return nil, err
	}

	return &LandmarkOutput{Body: landmark}, nil
}

func (s *Server) handleSOS(ctx context.Context, input *SOSInput) (*MessageOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	var req service.SOSRequest
	if input.Body != nil {
		req.Location = input.Body.Location
	}

	if err := s.services.Beacons.SOS(ctx, userID, input.ID, req); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "SOS sent"}}, nil
}

func (s *Server) handleChangeBeaconShortcode(ctx context.Context, input *BeaconIDInput) (*BeaconOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	beacon, err := s.services.Beacons.ChangeShortcode(ctx, userID, input.ID)
	if err != nil {
		return nil, err
	}

	return &BeaconOutput{Body: beacon}, nil
}
