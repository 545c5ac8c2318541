package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domainerrors "github.com/beaconapp/beacon-server/internal/errors"
	"github.com/beaconapp/beacon-server/internal/fanout"
	"github.com/beaconapp/beacon-server/internal/http/response"
)

// maxFeedGroups bounds the ids a single group feed may name.
const maxFeedGroups = 50

// Feeds stream Server-Sent Events, which huma's request/response model does
// not cover, so they are plain chi handlers.
func (s *Server) registerFeedRoutes() {
	s.router.Get("/api/v1/beacons/{id}/events", s.handleBeaconFeed)
	s.router.Get("/api/v1/groups/events", s.handleGroupFeed)
}

// handleBeaconFeed streams one beacon's events to its leader or a follower.
func (s *Server) handleBeaconFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := GetUserID(ctx)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	beaconID := chi.URLParam(r, "id")
	if err := s.services.Beacons.Authorize(ctx, userID, beaconID); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	s.streamer.Stream(ctx, w, userID, []fanout.Topic{fanout.BeaconTopic(beaconID)})
}

// handleGroupFeed streams events for the groups in ?ids= that the caller
// participates in. Ids the caller may not see are dropped.
func (s *Server) handleGroupFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := GetUserID(ctx)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	ids := parseIDs(r.URL.Query().Get("ids"))
	switch {
	case len(ids) == 0:
		response.HandleError(w, domainerrors.Validation("ids is required"), s.logger)
		return
	case len(ids) > maxFeedGroups:
		response.HandleError(w, domainerrors.Validationf("at most %d group ids per feed", maxFeedGroups), s.logger)
		return
	}

	allowed, err := s.services.Groups.AuthorizedGroups(ctx, userID, ids)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	if len(allowed) == 0 {
		response.HandleError(w, domainerrors.NotMember("not a member of any requested group"), s.logger)
		return
	}

	topics := make([]fanout.Topic, len(allowed))
	for i, id := range allowed {
		topics[i] = fanout.GroupTopic(id)
	}
	s.streamer.Stream(ctx, w, userID, topics)
}

// parseIDs splits a comma separated list, dropping blanks and duplicates.
func parseIDs(raw string) []string {
	var ids []string
	seen := make(map[string]struct{})
	for part := range strings.SplitSeq(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
