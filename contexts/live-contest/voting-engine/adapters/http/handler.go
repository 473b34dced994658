package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voteverse/contexts/live-contest/voting-engine/application/commands"
	"voteverse/contexts/live-contest/voting-engine/application/ledger"
	"voteverse/contexts/live-contest/voting-engine/application/queries"
	"voteverse/contexts/live-contest/voting-engine/application/rounds"
	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	domainerrors "voteverse/contexts/live-contest/voting-engine/domain/errors"
	"voteverse/contexts/live-contest/voting-engine/ports"
	httptransport "voteverse/contexts/live-contest/voting-engine/transport/http"

	"golang.org/x/text/message"
)

// RoundReader is the read side of a rounds.Controller.
type RoundReader interface {
	CurrentRound() (entities.Round, bool)
	Rounds() []entities.Round
	TotalRounds() int
	Finished() bool
}

type Handler struct {
	Ledger         ledger.Ledger
	Scores         queries.Scores
	Audience       queries.Audience
	Leaderboard    queries.Leaderboard
	Analytics      queries.Analytics
	Admin          commands.Admin
	Identity       commands.Identity
	ScoringRounds  RoundReader
	AudienceRounds RoundReader
	Participants   ports.ParticipantRepository
	Clock          ports.Clock
	Logger         *slog.Logger
}

// RegisterIdentityHandler accepts a collaborator-verified identity and
// records the login that produced it.
func (h Handler) RegisterIdentityHandler(
	ctx context.Context,
	req httptransport.RegisterIdentityRequest,
) (httptransport.RegisterIdentityResponse, error) {
	voter, created, err := h.Identity.RegisterIdentity(ctx, commands.RegisterIdentityCommand{
		Email: req.Email,
		Role:  req.Role,
		Name:  req.Name,
	})
	if err != nil {
		return httptransport.RegisterIdentityResponse{}, err
	}
	voter, err = h.Identity.RecordLogin(ctx, voter.VoterID)
	if err != nil {
		return httptransport.RegisterIdentityResponse{}, err
	}
	return httptransport.RegisterIdentityResponse{
		Voter:   mapVoter(voter),
		Created: created,
	}, nil
}

func (h Handler) CurrentRoundHandler(ctx context.Context, kind string) (httptransport.CurrentRoundResponse, error) {
	if err := ctx.Err(); err != nil {
		return httptransport.CurrentRoundResponse{}, err
	}
	track, roundKind, err := h.track(kind)
	if err != nil {
		return httptransport.CurrentRoundResponse{}, err
	}
	resp := httptransport.CurrentRoundResponse{
		Kind:        string(roundKind),
		TotalRounds: track.TotalRounds(),
		Finished:    track.Finished(),
	}
	if round, ok := track.CurrentRound(); ok {
		mapped := h.mapRound(round)
		resp.Round = &mapped
	}
	return resp, nil
}

func (h Handler) ListRoundsHandler(ctx context.Context) (httptransport.RoundListResponse, error) {
	if err := ctx.Err(); err != nil {
		return httptransport.RoundListResponse{}, err
	}
	return httptransport.RoundListResponse{
		Scoring:  h.mapRounds(h.ScoringRounds.Rounds()),
		Audience: h.mapRounds(h.AudienceRounds.Rounds()),
	}, nil
}

func (h Handler) SubmitJudgeVoteHandler(
	ctx context.Context,
	voterID string,
	roundIndex int,
	req httptransport.SubmitJudgeVoteRequest,
) (httptransport.JudgeVoteResponse, error) {
	if req.Score == nil {
		return httptransport.JudgeVoteResponse{}, fmt.Errorf("%w: score is required", domainerrors.ErrInvalidScore)
	}
	vote, err := h.Ledger.SubmitJudgeVote(ctx, ledger.JudgeVoteCommand{
		RoundIndex:    roundIndex,
		ParticipantID: req.ParticipantID,
		VoterID:       voterID,
		Score:         *req.Score,
	})
	if err != nil {
		return httptransport.JudgeVoteResponse{}, err
	}
	return mapJudgeVote(vote), nil
}

func (h Handler) SubmitAudienceVoteHandler(
	ctx context.Context,
	voterID string,
	roundIndex int,
	req httptransport.SubmitAudienceVoteRequest,
) (httptransport.AudienceVoteResponse, error) {
	vote, err := h.Ledger.SubmitAudienceVote(ctx, ledger.AudienceVoteCommand{
		RoundIndex:    roundIndex,
		ParticipantID: req.ParticipantID,
		VoterID:       voterID,
	})
	if err != nil {
		return httptransport.AudienceVoteResponse{}, err
	}
	return mapAudienceVote(vote), nil
}

func (h Handler) RoundVotesHandler(ctx context.Context, roundIndex int) (httptransport.VotesResponse, error) {
	snapshot, err := h.Ledger.VotesForRound(ctx, roundIndex)
	if err != nil {
		return httptransport.VotesResponse{}, err
	}
	return mapVotes(snapshot), nil
}

func (h Handler) ParticipantVotesHandler(ctx context.Context, participantID string) (httptransport.VotesResponse, error) {
	if _, err := h.Participants.GetParticipant(ctx, participantID); err != nil {
		return httptransport.VotesResponse{}, err
	}
	snapshot, err := h.Ledger.VotesByParticipant(ctx, participantID)
	if err != nil {
		return httptransport.VotesResponse{}, err
	}
	return mapVotes(snapshot), nil
}

// AudienceResultsHandler formats percentage labels for the caller's locale;
// the numeric percentage stays locale independent.
func (h Handler) AudienceResultsHandler(
	ctx context.Context,
	roundIndex int,
	printer *message.Printer,
) (httptransport.AudienceResultsResponse, error) {
	results, err := h.Audience.Results(ctx, roundIndex)
	if err != nil {
		return httptransport.AudienceResultsResponse{}, err
	}
	if printer == nil {
		printer = message.NewPrinter(ResolveTag("", ""))
	}
	items := make([]httptransport.AudienceResultItem, 0, len(results.Results))
	for _, result := range results.Results {
		items = append(items, httptransport.AudienceResultItem{
			ParticipantID:   result.ParticipantID,
			Name:            result.Name,
			Votes:           result.Votes,
			Percentage:      result.Percentage,
			PercentageLabel: percentageLabel(printer, result.Percentage),
			Leading:         result.Leading,
		})
	}
	return httptransport.AudienceResultsResponse{
		RoundIndex: results.RoundIndex,
		TotalVotes: results.TotalVotes,
		Items:      items,
	}, nil
}

func (h Handler) RoundClashesHandler(ctx context.Context, roundIndex int) (httptransport.ClashesResponse, error) {
	clashes, err := h.Scores.Clashes(ctx, roundIndex)
	if err != nil {
		return httptransport.ClashesResponse{}, err
	}
	items := make([]httptransport.ClashItem, 0, len(clashes))
	for _, clash := range clashes {
		items = append(items, httptransport.ClashItem{
			RoundIndex:    clash.RoundIndex,
			ParticipantID: clash.ParticipantID,
			JudgeScore:    clash.JudgeScore,
			LeaderScore:   clash.LeaderScore,
			Delta:         clash.Delta,
			DetectedAt:    clash.DetectedAt,
		})
	}
	return httptransport.ClashesResponse{RoundIndex: roundIndex, Items: items}, nil
}

func (h Handler) ListParticipantsHandler(ctx context.Context) (httptransport.ParticipantListResponse, error) {
	participants, err := h.Participants.ListParticipants(ctx)
	if err != nil {
		return httptransport.ParticipantListResponse{}, err
	}
	items := make([]httptransport.ParticipantResponse, 0, len(participants))
	for _, participant := range participants {
		items = append(items, mapParticipant(participant))
	}
	return httptransport.ParticipantListResponse{Items: items}, nil
}

func (h Handler) LeaderboardHandler(ctx context.Context, live bool) (httptransport.LeaderboardResponse, error) {
	board, err := h.Leaderboard.Snapshot(ctx, live)
	if err != nil {
		return httptransport.LeaderboardResponse{}, err
	}
	return MapLeaderboard(board), nil
}

func (h Handler) LeaderboardHistoryHandler(ctx context.Context, roundIndex int) (httptransport.RoundSnapshotResponse, error) {
	snapshot, err := h.Leaderboard.History(ctx, roundIndex)
	if err != nil {
		return httptransport.RoundSnapshotResponse{}, err
	}
	return mapSnapshot(snapshot), nil
}

func (h Handler) ListLeaderboardHistoryHandler(ctx context.Context) (httptransport.RoundSnapshotListResponse, error) {
	snapshots, err := h.Leaderboard.ListHistory(ctx)
	if err != nil {
		return httptransport.RoundSnapshotListResponse{}, err
	}
	items := make([]httptransport.RoundSnapshotResponse, 0, len(snapshots))
	for _, snapshot := range snapshots {
		items = append(items, mapSnapshot(snapshot))
	}
	return httptransport.RoundSnapshotListResponse{Items: items}, nil
}

func (h Handler) LockVotingHandler(ctx context.Context, actorID string) (httptransport.RoundResponse, error) {
	round, err := h.Admin.LockVoting(ctx, actorID)
	if err != nil {
		return httptransport.RoundResponse{}, err
	}
	return h.mapRound(round), nil
}

func (h Handler) UnlockVotingHandler(ctx context.Context, actorID string) (httptransport.RoundResponse, error) {
	round, err := h.Admin.UnlockVoting(ctx, actorID)
	if err != nil {
		return httptransport.RoundResponse{}, err
	}
	return h.mapRound(round), nil
}

func (h Handler) ForceAdvanceHandler(ctx context.Context, actorID string) (httptransport.AdvanceResponse, error) {
	result, err := h.Admin.ForceAdvance(ctx, actorID)
	if err != nil {
		return httptransport.AdvanceResponse{}, err
	}
	return h.mapAdvance(result), nil
}

func (h Handler) StartTimerHandler(
	ctx context.Context,
	actorID string,
	req httptransport.StartTimerRequest,
) (httptransport.RoundResponse, error) {
	duration, err := requestDuration(req.DurationSeconds)
	if err != nil {
		return httptransport.RoundResponse{}, err
	}
	round, err := h.Admin.StartTimer(ctx, actorID, duration)
	if err != nil {
		return httptransport.RoundResponse{}, err
	}
	return h.mapRound(round), nil
}

func (h Handler) TriggerAudienceVotingHandler(
	ctx context.Context,
	actorID string,
	req httptransport.StartTimerRequest,
) (httptransport.RoundResponse, error) {
	duration, err := requestDuration(req.DurationSeconds)
	if err != nil {
		return httptransport.RoundResponse{}, err
	}
	round, err := h.Admin.TriggerAudienceVoting(ctx, actorID, duration)
	if err != nil {
		return httptransport.RoundResponse{}, err
	}
	return h.mapRound(round), nil
}

func (h Handler) CloseAudienceVotingHandler(ctx context.Context, actorID string) (httptransport.RoundResponse, error) {
	round, err := h.Admin.CloseAudienceVoting(ctx, actorID)
	if err != nil {
		return httptransport.RoundResponse{}, err
	}
	return h.mapRound(round), nil
}

func (h Handler) RegisterParticipantHandler(
	ctx context.Context,
	actorID string,
	req httptransport.RegisterParticipantRequest,
) (httptransport.ParticipantResponse, error) {
	participant, err := h.Admin.RegisterParticipant(ctx, actorID, commands.RegisterParticipantCommand{
		ParticipantID: req.ParticipantID,
		Name:          req.Name,
		Description:   req.Description,
	})
	if err != nil {
		return httptransport.ParticipantResponse{}, err
	}
	return mapParticipant(participant), nil
}

func (h Handler) EditVoterHandler(
	ctx context.Context,
	actorID string,
	voterID string,
	req httptransport.EditVoterRequest,
) (httptransport.VoterResponse, error) {
	voter, err := h.Admin.EditVoter(ctx, actorID, commands.EditVoterCommand{
		VoterID: voterID,
		Name:    req.Name,
		Role:    req.Role,
	})
	if err != nil {
		return httptransport.VoterResponse{}, err
	}
	return mapVoter(voter), nil
}

func (h Handler) RemoveVoterHandler(ctx context.Context, actorID string, voterID string) error {
	return h.Admin.RemoveVoter(ctx, actorID, voterID)
}

func (h Handler) DeactivateVoterHandler(ctx context.Context, actorID string, voterID string) (httptransport.VoterResponse, error) {
	voter, err := h.Admin.DeactivateVoter(ctx, actorID, voterID)
	if err != nil {
		return httptransport.VoterResponse{}, err
	}
	return mapVoter(voter), nil
}

// AnalyticsHandler and ActivityHandler are admin reads; they check the actor
// through the same guard the mutating calls use.
func (h Handler) AnalyticsHandler(ctx context.Context, actorID string) (httptransport.AnalyticsResponse, error) {
	if err := h.requireAdmin(ctx, actorID); err != nil {
		return httptransport.AnalyticsResponse{}, err
	}
	stats, err := h.Analytics.Stats(ctx)
	if err != nil {
		return httptransport.AnalyticsResponse{}, err
	}
	return httptransport.AnalyticsResponse{
		TotalVoters:       stats.TotalVoters,
		VerifiedVoters:    stats.VerifiedVoters,
		TotalVotes:        stats.TotalVotes,
		JudgeVotes:        stats.JudgeVotes,
		AudienceVotes:     stats.AudienceVotes,
		VotingStatus:      string(stats.VotingStatus),
		CurrentRound:      stats.CurrentRound,
		AverageScore:      stats.AverageScore,
		ParticipationRate: stats.ParticipationRate,
		ClashesDetected:   stats.ClashesDetected,
	}, nil
}

func (h Handler) ActivityHandler(ctx context.Context, actorID string, limit int) (httptransport.ActivityResponse, error) {
	if err := h.requireAdmin(ctx, actorID); err != nil {
		return httptransport.ActivityResponse{}, err
	}
	entries, err := h.Analytics.RecentActivity(ctx, limit)
	if err != nil {
		return httptransport.ActivityResponse{}, err
	}
	items := make([]httptransport.ActivityItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, httptransport.ActivityItem{
			EntryID:     entry.EntryID,
			At:          entry.At,
			Type:        string(entry.Type),
			PerformedBy: entry.PerformedBy,
			Details:     entry.Details,
			Severity:    string(entry.Severity),
		})
	}
	return httptransport.ActivityResponse{Items: items}, nil
}

func (h Handler) requireAdmin(ctx context.Context, actorID string) error {
	voter, err := h.Admin.Voters.GetVoter(ctx, actorID)
	if err != nil && !errors.Is(err, domainerrors.ErrVoterNotFound) {
		return err
	}
	if err != nil || !voter.Active || !voter.Verified || !voter.Role.Can(entities.CapAdminister) {
		return fmt.Errorf("%w: admin access required", domainerrors.ErrForbidden)
	}
	return nil
}

func (h Handler) track(kind string) (RoundReader, entities.RoundKind, error) {
	switch entities.RoundKind(kind) {
	case "", entities.RoundKindScoring:
		return h.ScoringRounds, entities.RoundKindScoring, nil
	case entities.RoundKindAudience:
		return h.AudienceRounds, entities.RoundKindAudience, nil
	default:
		return nil, "", fmt.Errorf("%w: unknown round kind %q", domainerrors.ErrInvalidInput, kind)
	}
}

func (h Handler) now() time.Time {
	if h.Clock == nil {
		return time.Now().UTC()
	}
	return h.Clock.Now()
}

func (h Handler) mapRound(round entities.Round) httptransport.RoundResponse {
	return httptransport.RoundResponse{
		Kind:             string(round.Kind),
		RoundIndex:       round.Index,
		State:            string(round.State),
		StartedAt:        round.StartedAt,
		DurationSeconds:  int64(round.Duration / time.Second),
		RemainingSeconds: int64(round.Remaining(h.now()) / time.Second),
		LockedAt:         round.LockedAt,
		ClosedAt:         round.ClosedAt,
	}
}

func (h Handler) mapRounds(history []entities.Round) []httptransport.RoundResponse {
	items := make([]httptransport.RoundResponse, 0, len(history))
	for _, round := range history {
		items = append(items, h.mapRound(round))
	}
	return items
}

func (h Handler) mapAdvance(result rounds.Advance) httptransport.AdvanceResponse {
	resp := httptransport.AdvanceResponse{
		Closed:  h.mapRound(result.Closed),
		HasNext: result.HasNext,
	}
	if result.HasNext {
		opened := h.mapRound(result.Opened)
		resp.Opened = &opened
	}
	return resp
}

func requestDuration(seconds int64) (time.Duration, error) {
	if seconds < 0 {
		return 0, fmt.Errorf("%w: duration_seconds must not be negative", domainerrors.ErrInvalidInput)
	}
	return time.Duration(seconds) * time.Second, nil
}

func mapVoter(voter entities.Voter) httptransport.VoterResponse {
	return httptransport.VoterResponse{
		VoterID:     voter.VoterID,
		Email:       voter.Email,
		Name:        voter.Name,
		Role:        string(voter.Role),
		Verified:    voter.Verified,
		Active:      voter.Active,
		CreatedAt:   voter.CreatedAt,
		LastLoginAt: voter.LastLoginAt,
	}
}

func mapParticipant(participant entities.Participant) httptransport.ParticipantResponse {
	return httptransport.ParticipantResponse{
		ParticipantID: participant.ParticipantID,
		Name:          participant.Name,
		Description:   participant.Description,
		CurrentRound:  participant.CurrentRound,
		CreatedAt:     participant.CreatedAt,
	}
}

func mapJudgeVote(vote entities.JudgeVote) httptransport.JudgeVoteResponse {
	return httptransport.JudgeVoteResponse{
		VoteID:        vote.VoteID,
		RoundIndex:    vote.RoundIndex,
		ParticipantID: vote.ParticipantID,
		VoterID:       vote.VoterID,
		VoterRole:     string(vote.VoterRole),
		Score:         vote.Score,
		SubmittedAt:   vote.SubmittedAt,
	}
}

func mapAudienceVote(vote entities.AudienceVote) httptransport.AudienceVoteResponse {
	return httptransport.AudienceVoteResponse{
		VoteID:        vote.VoteID,
		RoundIndex:    vote.RoundIndex,
		ParticipantID: vote.ParticipantID,
		VoterID:       vote.VoterID,
		SubmittedAt:   vote.SubmittedAt,
	}
}

func mapVotes(snapshot entities.LedgerSnapshot) httptransport.VotesResponse {
	resp := httptransport.VotesResponse{
		TakenAt:       snapshot.TakenAt,
		JudgeVotes:    make([]httptransport.JudgeVoteResponse, 0, len(snapshot.JudgeVotes)),
		AudienceVotes: make([]httptransport.AudienceVoteResponse, 0, len(snapshot.AudienceVotes)),
	}
	for _, vote := range snapshot.JudgeVotes {
		resp.JudgeVotes = append(resp.JudgeVotes, mapJudgeVote(vote))
	}
	for _, vote := range snapshot.AudienceVotes {
		resp.AudienceVotes = append(resp.AudienceVotes, mapAudienceVote(vote))
	}
	return resp
}

func mapRoundScore(score entities.RoundScore) httptransport.RoundScoreItem {
	return httptransport.RoundScoreItem{
		RoundIndex: score.RoundIndex,
		Score:      score.Score,
		HasScore:   score.HasScore,
	}
}

// MapLeaderboard converts a leaderboard into its wire shape. The WebSocket
// hub uses it for the snapshot sent on connect.
func MapLeaderboard(board entities.Leaderboard) httptransport.LeaderboardResponse {
	items := make([]httptransport.LeaderboardItem, 0, len(board.Entries))
	for _, entry := range board.Entries {
		item := httptransport.LeaderboardItem{
			ParticipantID:  entry.ParticipantID,
			Name:           entry.Name,
			Rank:           entry.Rank,
			TotalScore:     entry.TotalScore,
			AverageScore:   entry.AverageScore,
			PerRoundScores: make([]httptransport.RoundScoreItem, 0, len(entry.PerRoundScores)),
			AudienceVotes:  entry.AudienceVotes,
			FirstVoteAt:    entry.FirstVoteAt,
			IsWinner:       entry.IsWinner,
			ClashDetected:  entry.ClashDetected,
		}
		for _, score := range entry.PerRoundScores {
			item.PerRoundScores = append(item.PerRoundScores, mapRoundScore(score))
		}
		if entry.LiveRoundScore != nil {
			live := mapRoundScore(*entry.LiveRoundScore)
			item.LiveRoundScore = &live
		}
		items = append(items, item)
	}
	return httptransport.LeaderboardResponse{
		GeneratedAt:  board.GeneratedAt,
		CurrentRound: board.CurrentRound,
		TotalRounds:  board.TotalRounds,
		Live:         board.Live,
		Final:        board.Final,
		Items:        items,
	}
}

func mapSnapshot(snapshot entities.RoundSnapshot) httptransport.RoundSnapshotResponse {
	return httptransport.RoundSnapshotResponse{
		RoundIndex:  snapshot.RoundIndex,
		FrozenAt:    snapshot.FrozenAt,
		Leaderboard: MapLeaderboard(snapshot.Leaderboard),
	}
}
