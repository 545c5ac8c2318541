package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupLifecycle(t *testing.T) {
	ts := setupTestServer(t)
	leaderID, leaderToken := ts.anonUser(t, "leader")
	memberID, memberToken := ts.anonUser(t, "member")
	_, strangerToken := ts.anonUser(t, "stranger")

	groupID, shortcode := ts.createGroup(t, leaderToken)
	assert.Len(t, shortcode, 6)

	t.Run("join by lowercase shortcode", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/groups/join", bearerHeader(memberToken),
			map[string]any{"shortcode": strings.ToLower(shortcode)})
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		data := decodeEnvelope[map[string]any](t, resp.Body.Bytes()).Data
		assert.Equal(t, groupID, data["id"])
		assert.Equal(t, []any{memberID}, data["members"])
	})

	t.Run("second join conflicts", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/groups/join", bearerHeader(memberToken), map[string]any{"shortcode": shortcode})
		errBody := requireError(t, resp, http.StatusConflict, "CONFLICT")
		assert.Equal(t, map[string]any{"reason": "already_member"}, errBody.Details)
	})

	t.Run("leader cannot join own group", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/groups/join", bearerHeader(leaderToken), map[string]any{"shortcode": shortcode})
		requireError(t, resp, http.StatusConflict, "CONFLICT")
	})

	t.Run("unknown shortcode", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/groups/join", bearerHeader(strangerToken), map[string]any{"shortcode": "ZZZZZZ"})
		requireError(t, resp, http.StatusNotFound, "NOT_FOUND")
	})

	t.Run("member sees resolved view", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/groups/"+groupID, bearerHeader(memberToken))
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		view := decodeEnvelope[GroupViewResponse](t, resp.Body.Bytes()).Data
		require.NotNil(t, view.Leader)
		assert.Equal(t, leaderID, view.Leader.ID)
		require.Len(t, view.Members, 1)
		assert.Equal(t, "member", view.Members[0].Name)
		assert.Empty(t, view.Beacons)
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		resp := ts.api.Get("/api/v1/groups/"+groupID, bearerHeader(strangerToken))
		errBody := requireError(t, resp, http.StatusForbidden, "FORBIDDEN")
		assert.Equal(t, map[string]any{"reason": "not_member"}, errBody.Details)
	})

	t.Run("only the leader rotates the shortcode", func(t *testing.T) {
		resp := ts.api.Post("/api/v1/groups/"+groupID+"/shortcode", bearerHeader(memberToken))
		errBody := requireError(t, resp, http.StatusForbidden, "FORBIDDEN")
		assert.Equal(t, map[string]any{"reason": "not_leader"}, errBody.Details)

		resp = ts.api.Post("/api/v1/groups/"+groupID+"/shortcode", bearerHeader(leaderToken))
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		fresh := decodeEnvelope[map[string]any](t, resp.Body.Bytes()).Data["shortcode"].(string)
		assert.NotEqual(t, shortcode, fresh)

		resp = ts.api.Get("/j/" + shortcode)
		requireError(t, resp, http.StatusNotFound, "NOT_FOUND")
		shortcode = fresh
	})

	t.Run("remove member", func(t *testing.T) {
		resp := ts.api.Delete("/api/v1/groups/"+groupID+"/members/"+memberID, bearerHeader(memberToken))
		requireError(t, resp, http.StatusForbidden, "FORBIDDEN")

		resp = ts.api.Delete("/api/v1/groups/"+groupID+"/members/"+memberID, bearerHeader(leaderToken))
		require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())

		resp = ts.api.Get("/api/v1/groups/"+groupID, bearerHeader(memberToken))
		requireError(t, resp, http.StatusForbidden, "FORBIDDEN")

		resp = ts.api.Get("/api/v1/me", bearerHeader(memberToken))
		require.Equal(t, http.StatusOK, resp.Code)
		me := decodeEnvelope[MeResponse](t, resp.Body.Bytes()).Data
		assert.Empty(t, me.User.Groups)

		resp = ts.api.Delete("/api/v1/groups/"+groupID+"/members/"+memberID, bearerHeader(leaderToken))
		requireError(t, resp, http.StatusForbidden, "FORBIDDEN")
	})
}

func TestGetGroup_NotFound(t *testing.T) {
	ts := setupTestServer(t)
	_, token := ts.anonUser(t, "ana")

	resp := ts.api.Get("/api/v1/groups/group-missing", bearerHeader(token))
	requireError(t, resp, http.StatusNotFound, "NOT_FOUND")
}
