package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	httpadapter "voteverse/contexts/live-contest/voting-engine/adapters/http"
	votingerrors "voteverse/contexts/live-contest/voting-engine/domain/errors"
	votinghttp "voteverse/contexts/live-contest/voting-engine/transport/http"

	"golang.org/x/text/message"
)

const voterHeader = "X-Voter-Id"

// handleRegisterIdentity godoc
// @Summary Register a verified identity
// @Tags identities
// @Accept json
// @Produce json
// @Param body body votinghttp.RegisterIdentityRequest true "identity"
// @Success 200 {object} votinghttp.RegisterIdentityResponse
// @Router /api/voting/v1/identities [post]
func (s *Server) handleRegisterIdentity(w http.ResponseWriter, r *http.Request) {
	var req votinghttp.RegisterIdentityRequest
	if !decodeVotingBody(w, r, &req) {
		return
	}
	resp, err := s.voting.Handler.RegisterIdentityHandler(r.Context(), req)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// handleCurrentRound godoc
// @Summary Current round of a track
// @Tags rounds
// @Produce json
// @Param kind query string false "scoring or audience"
// @Success 200 {object} votinghttp.CurrentRoundResponse
// @Router /api/voting/v1/rounds/current [get]
func (s *Server) handleCurrentRound(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.CurrentRoundHandler(r.Context(), r.URL.Query().Get("kind"))
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRounds(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.ListRoundsHandler(r.Context())
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSubmitJudgeVote godoc
// @Summary Submit a judge or leader score
// @Tags votes
// @Accept json
// @Produce json
// @Param X-Voter-Id header string true "voter id"
// @Param round path int true "round index"
// @Param body body votinghttp.SubmitJudgeVoteRequest true "vote"
// @Success 201 {object} votinghttp.JudgeVoteResponse
// @Failure 409 {object} votinghttp.ErrorResponse
// @Failure 422 {object} votinghttp.ErrorResponse
// @Router /api/voting/v1/rounds/{round}/judge-votes [post]
func (s *Server) handleSubmitJudgeVote(w http.ResponseWriter, r *http.Request) {
	voterID, ok := requireVoter(w, r)
	if !ok {
		return
	}
	round, ok := roundParam(w, r)
	if !ok {
		return
	}
	var req votinghttp.SubmitJudgeVoteRequest
	if !decodeVotingBody(w, r, &req) {
		return
	}
	resp, err := s.voting.Handler.SubmitJudgeVoteHandler(r.Context(), voterID, round, req)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleSubmitAudienceVote godoc
// @Summary Cast an audience ballot
// @Tags votes
// @Accept json
// @Produce json
// @Param X-Voter-Id header string true "voter id"
// @Param round path int true "audience round index"
// @Param body body votinghttp.SubmitAudienceVoteRequest true "ballot"
// @Success 201 {object} votinghttp.AudienceVoteResponse
// @Router /api/voting/v1/rounds/{round}/audience-votes [post]
func (s *Server) handleSubmitAudienceVote(w http.ResponseWriter, r *http.Request) {
	voterID, ok := requireVoter(w, r)
	if !ok {
		return
	}
	round, ok := roundParam(w, r)
	if !ok {
		return
	}
	var req votinghttp.SubmitAudienceVoteRequest
	if !decodeVotingBody(w, r, &req) {
		return
	}
	resp, err := s.voting.Handler.SubmitAudienceVoteHandler(r.Context(), voterID, round, req)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleRoundVotes(w http.ResponseWriter, r *http.Request) {
	round, ok := roundParam(w, r)
	if !ok {
		return
	}
	resp, err := s.voting.Handler.RoundVotesHandler(r.Context(), round)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAudienceResults godoc
// @Summary Audience tally for a round
// @Tags audience
// @Produce json
// @Param round path int true "audience round index"
// @Param lang query string false "display locale"
// @Success 200 {object} votinghttp.AudienceResultsResponse
// @Router /api/voting/v1/rounds/{round}/audience-results [get]
func (s *Server) handleAudienceResults(w http.ResponseWriter, r *http.Request) {
	round, ok := roundParam(w, r)
	if !ok {
		return
	}
	tag := httpadapter.ResolveTag(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
	resp, err := s.voting.Handler.AudienceResultsHandler(r.Context(), round, message.NewPrinter(tag))
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	w.Header().Set("Content-Language", tag.String())
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRoundClashes(w http.ResponseWriter, r *http.Request) {
	round, ok := roundParam(w, r)
	if !ok {
		return
	}
	resp, err := s.voting.Handler.RoundClashesHandler(r.Context(), round)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.ListParticipantsHandler(r.Context())
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleParticipantVotes(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.ParticipantVotesHandler(r.Context(), r.PathValue("participant_id"))
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLeaderboard godoc
// @Summary Ranked leaderboard
// @Tags leaderboard
// @Produce json
// @Param live query bool false "include the round in progress"
// @Success 200 {object} votinghttp.LeaderboardResponse
// @Router /api/voting/v1/leaderboard [get]
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	live := false
	if raw := r.URL.Query().Get("live"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeVotingError(w, http.StatusBadRequest, "invalid_live", "live must be a boolean")
			return
		}
		live = parsed
	}
	resp, err := s.voting.Handler.LeaderboardHandler(r.Context(), live)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLeaderboardHistory(w http.ResponseWriter, r *http.Request) {
	round, ok := roundParam(w, r)
	if !ok {
		return
	}
	resp, err := s.voting.Handler.LeaderboardHistoryHandler(r.Context(), round)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListLeaderboardHistory(w http.ResponseWriter, r *http.Request) {
	resp, err := s.voting.Handler.ListLeaderboardHistoryHandler(r.Context())
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLockVoting godoc
// @Summary Lock the scoring round
// @Tags admin
// @Produce json
// @Param X-Voter-Id header string true "admin id"
// @Success 200 {object} votinghttp.RoundResponse
// @Failure 403 {object} votinghttp.ErrorResponse
// @Router /api/voting/v1/admin/lock [post]
func (s *Server) handleLockVoting(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireVoter(w, r)
	if !ok {
		return
	}
	resp, err := s.voting.Handler.LockVotingHandler(r.Context(), actorID)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUnlockVoting(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireVoter(w, r)
	if !ok {
		return
	}
	resp, err := s.voting.Handler.UnlockVotingHandler(r.Context(), actorID)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleForceAdvance godoc
// @Summary Close the scoring round and open the next one
// @Tags admin
// @Produce json
// @Param X-Voter-Id header string true "admin id"
// @Success 200 {object} votinghttp.AdvanceResponse
// @Router /api/voting/v1/admin/advance [post]
func (s *Server) handleForceAdvance(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireVoter(w, r)
	if !ok {
		return
	}
	resp, err := s.voting.Handler.ForceAdvanceHandler(r.Context(), actorID)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStartTimer(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireVoter(w, r)
	if !ok {
		return
	}
	var req votinghttp.StartTimerRequest
	if !decodeVotingBody(w, r, &req) {
		return
	}
	resp, err := s.voting.Handler.StartTimerHandler(r.Context(), actorID, req)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOpenAudience(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireVoter(w, r)
	if !ok {
		return
	}
	var req votinghttp.StartTimerRequest
	if r.ContentLength != 0 && !decodeVotingBody(w, r, &req) {
		return
	}
	resp, err := s.voting.Handler.TriggerAudienceVotingHandler(r.Context(), actorID, req)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCloseAudience(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireVoter(w, r)
	if !ok {
		return
	}
	resp, err := s.voting.Handler.CloseAudienceVotingHandler(r.Context(), actorID)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegisterParticipant(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireVoter(w, r)
	if !ok {
		return
	}
	var req votinghttp.RegisterParticipantRequest
	if !decodeVotingBody(w, r, &req) {
		return
	}
	resp, err := s.voting.Handler.RegisterParticipantHandler(r.Context(), actorID, req)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleEditVoter(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireVoter(w, r)
	if !ok {
		return
	}
	var req votinghttp.EditVoterRequest
	if !decodeVotingBody(w, r, &req) {
		return
	}
	resp, err := s.voting.Handler.EditVoterHandler(r.Context(), actorID, r.PathValue("voter_id"), req)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRemoveVoter(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireVoter(w, r)
	if !ok {
		return
	}
	if err := s.voting.Handler.RemoveVoterHandler(r.Context(), actorID, r.PathValue("voter_id")); err != nil {
		writeVotingDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeactivateVoter(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireVoter(w, r)
	if !ok {
		return
	}
	resp, err := s.voting.Handler.DeactivateVoterHandler(r.Context(), actorID, r.PathValue("voter_id"))
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireVoter(w, r)
	if !ok {
		return
	}
	resp, err := s.voting.Handler.AnalyticsHandler(r.Context(), actorID)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireVoter(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeVotingError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = parsed
	}
	resp, err := s.voting.Handler.ActivityHandler(r.Context(), actorID, limit)
	if err != nil {
		writeVotingDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func requireVoter(w http.ResponseWriter, r *http.Request) (string, bool) {
	voterID := strings.TrimSpace(r.Header.Get(voterHeader))
	if voterID == "" {
		writeVotingError(w, http.StatusUnauthorized, "missing_voter", "X-Voter-Id header is required")
		return "", false
	}
	return voterID, true
}

func roundParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	round, err := strconv.Atoi(r.PathValue("round"))
	if err != nil || round < 1 {
		writeVotingError(w, http.StatusBadRequest, "invalid_round", "round must be a positive integer")
		return 0, false
	}
	return round, true
}

func decodeVotingBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeVotingError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return false
	}
	return true
}

func writeVotingDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, votingerrors.ErrRoundNotOpen):
		writeVotingError(w, http.StatusConflict, "round_not_open", err.Error())
	case errors.Is(err, votingerrors.ErrDuplicateVote):
		writeVotingError(w, http.StatusConflict, "duplicate_vote", err.Error())
	case errors.Is(err, votingerrors.ErrInvalidTransition):
		writeVotingError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, votingerrors.ErrHasVotes):
		writeVotingError(w, http.StatusConflict, "has_votes", err.Error())
	case errors.Is(err, votingerrors.ErrConflict):
		writeVotingError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, votingerrors.ErrInvalidScore):
		writeVotingError(w, http.StatusUnprocessableEntity, "invalid_score", err.Error())
	case errors.Is(err, votingerrors.ErrUnauthorizedRole):
		writeVotingError(w, http.StatusForbidden, "unauthorized_role", err.Error())
	case errors.Is(err, votingerrors.ErrVoterNotVerified),
		errors.Is(err, votingerrors.ErrVoterInactive):
		writeVotingError(w, http.StatusForbidden, "voter_not_eligible", err.Error())
	case errors.Is(err, votingerrors.ErrForbidden):
		writeVotingError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, votingerrors.ErrVoterNotFound),
		errors.Is(err, votingerrors.ErrParticipantNotFound),
		errors.Is(err, votingerrors.ErrRoundNotFound),
		errors.Is(err, votingerrors.ErrSnapshotNotFound):
		writeVotingError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, votingerrors.ErrInvalidInput):
		writeVotingError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeVotingError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeVotingError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, votinghttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}
