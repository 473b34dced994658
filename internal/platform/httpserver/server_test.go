package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	votingengine "voteverse/contexts/live-contest/voting-engine"
	"voteverse/contexts/live-contest/voting-engine/adapters/manualclock"
	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	votinghttp "voteverse/contexts/live-contest/voting-engine/transport/http"
	"voteverse/internal/platform/messaging"

	"github.com/stretchr/testify/require"
)

type testServer struct {
	*Server
	clock *manualclock.Clock
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	ctx := context.Background()
	clock := manualclock.New(time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC))
	bus, err := messaging.NewKafka(nil, nil)
	require.NoError(t, err)
	module, err := votingengine.NewInMemoryModule(ctx, votingengine.Settings{
		RoundDuration: 3 * time.Minute,
		TotalRounds:   3,
	}, bus, clock, clock, nil)
	require.NoError(t, err)
	t.Cleanup(module.Close)
	require.NoError(t, module.Seed(ctx, votingengine.Seed{
		Participants: []entities.Participant{
			{ParticipantID: "p-a", Name: "Aurora"},
			{ParticipantID: "p-b", Name: "Borealis"},
		},
		Voters: []entities.Voter{
			{VoterID: "admin-1", Email: "admin@contest.test", Role: entities.RoleAdmin},
			{VoterID: "judge-1", Email: "judge1@contest.test", Role: entities.RoleJudge},
			{VoterID: "fan-1", Email: "fan1@contest.test", Role: entities.RoleAudience},
		},
	}))
	return testServer{Server: New(module, nil, ":0"), clock: clock}
}

func (s testServer) do(t *testing.T, method, path, voterID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if voterID != "" {
		req.Header.Set("X-Voter-Id", voterID)
	}
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) votinghttp.ErrorResponse {
	t.Helper()
	var resp votinghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)
	rr := server.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestSwaggerDocServed(t *testing.T) {
	server := newTestServer(t)
	rr := server.do(t, http.MethodGet, "/swagger/doc.json", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "/api/voting/v1/rounds/{round}/judge-votes")
}

func TestJudgeVoteRequiresVoterHeader(t *testing.T) {
	server := newTestServer(t)
	rr := server.do(t, http.MethodPost, "/api/voting/v1/rounds/1/judge-votes", "", `{"participant_id":"p-a","score":8}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "missing_voter", decodeError(t, rr).Code)
}

func TestJudgeVoteRejectsBadRound(t *testing.T) {
	server := newTestServer(t)
	rr := server.do(t, http.MethodPost, "/api/voting/v1/rounds/zero/judge-votes", "judge-1", `{"participant_id":"p-a","score":8}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "invalid_round", decodeError(t, rr).Code)
}

func TestVoteBeforeRoundOpensConflicts(t *testing.T) {
	server := newTestServer(t)
	rr := server.do(t, http.MethodPost, "/api/voting/v1/rounds/1/judge-votes", "judge-1", `{"participant_id":"p-a","score":8}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "round_not_open", decodeError(t, rr).Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	server := newTestServer(t)
	rr := server.do(t, http.MethodPost, "/api/voting/v1/admin/lock", "judge-1", "")
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, "forbidden", decodeError(t, rr).Code)

	rr = server.do(t, http.MethodGet, "/api/voting/v1/admin/analytics", "judge-1", "")
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestVotingFlowStatusCodes(t *testing.T) {
	server := newTestServer(t)

	rr := server.do(t, http.MethodPost, "/api/voting/v1/admin/timer", "admin-1", `{"duration_seconds":180}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = server.do(t, http.MethodPost, "/api/voting/v1/rounds/1/judge-votes", "judge-1", `{"participant_id":"p-a","score":8.5}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = server.do(t, http.MethodPost, "/api/voting/v1/rounds/1/judge-votes", "judge-1", `{"participant_id":"p-a","score":9}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "duplicate_vote", decodeError(t, rr).Code)

	rr = server.do(t, http.MethodPost, "/api/voting/v1/rounds/1/judge-votes", "judge-1", `{"participant_id":"p-b","score":10.5}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = server.do(t, http.MethodPost, "/api/voting/v1/rounds/1/judge-votes", "fan-1", `{"participant_id":"p-b","score":7}`)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = server.do(t, http.MethodPost, "/api/voting/v1/rounds/1/judge-votes", "judge-1", `{"participant_id":"ghost","score":7}`)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = server.do(t, http.MethodGet, "/api/voting/v1/leaderboard/history/1", "", "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = server.do(t, http.MethodPost, "/api/voting/v1/admin/advance", "admin-1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var advance votinghttp.AdvanceResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &advance))
	require.True(t, advance.HasNext)
	require.Equal(t, 2, advance.Opened.RoundIndex)

	rr = server.do(t, http.MethodGet, "/api/voting/v1/leaderboard/history/1", "", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = server.do(t, http.MethodGet, "/api/voting/v1/leaderboard?live=true", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var board votinghttp.LeaderboardResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &board))
	require.True(t, board.Live)
	require.Equal(t, "p-a", board.Items[0].ParticipantID)

	rr = server.do(t, http.MethodGet, "/api/voting/v1/leaderboard?live=maybe", "", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAudienceResultsLocalized(t *testing.T) {
	server := newTestServer(t)
	rr := server.do(t, http.MethodPost, "/api/voting/v1/admin/audience/open", "admin-1", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = server.do(t, http.MethodPost, "/api/voting/v1/rounds/1/audience-votes", "fan-1", `{"participant_id":"p-b"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/voting/v1/rounds/1/audience-results", nil)
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9")
	res := httptest.NewRecorder()
	server.mux.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "de", res.Header().Get("Content-Language"))

	var results votinghttp.AudienceResultsResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &results))
	require.Equal(t, 1, results.TotalVotes)
	require.Equal(t, "p-b", results.Items[0].ParticipantID)
	require.True(t, strings.HasSuffix(results.Items[0].PercentageLabel, "%"))
}

func TestRegisterIdentityStatus(t *testing.T) {
	server := newTestServer(t)
	rr := server.do(t, http.MethodPost, "/api/voting/v1/identities", "", `{"email":"new@contest.test","role":"judge"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = server.do(t, http.MethodPost, "/api/voting/v1/identities", "", `{"email":"new@contest.test","role":"judge"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = server.do(t, http.MethodPost, "/api/voting/v1/identities", "", `{"email":"new@contest.test","role":"admin"}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = server.do(t, http.MethodPost, "/api/voting/v1/identities", "", `{not json`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRemoveVoterNoContent(t *testing.T) {
	server := newTestServer(t)
	rr := server.do(t, http.MethodDelete, "/api/voting/v1/admin/voters/fan-1", "admin-1", "")
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = server.do(t, http.MethodDelete, "/api/voting/v1/admin/voters/fan-1", "admin-1", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}
