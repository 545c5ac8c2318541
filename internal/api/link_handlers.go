package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/beaconapp/beacon-server/internal/service"
)

func (s *Server) registerLinkRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "resolveJoinLink",
		Method:      http.MethodGet,
		Path:        "/j/{shortcode}",
		Summary:     "Resolve join link",
		Description: "Tells a client whether a shared code belongs to a beacon or a group",
		Tags:        []string{"Links"},
	}, s.handleResolveJoinLink)
}

// JoinLinkInput is a shared join code.
type JoinLinkInput struct {
	Shortcode string `path:"shortcode" doc:"Beacon or group join code"`
}

// JoinLinkOutput wraps the resolved target for Huma.
type JoinLinkOutput struct {
	Body service.Resolved
}

func (s *Server) handleResolveJoinLink(ctx context.Context, input *JoinLinkInput) (*JoinLinkOutput, error) {
	resolved, err := s.services.Beacons.Resolve(ctx, input.Shortcode)
	if err != nil {
		return nil, err
	}

	return &JoinLinkOutput{Body: *resolved}, nil
}
