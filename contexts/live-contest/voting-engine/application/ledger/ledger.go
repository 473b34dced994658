package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	application "voteverse/contexts/live-contest/voting-engine/application"
	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	domainerrors "voteverse/contexts/live-contest/voting-engine/domain/errors"
	"voteverse/contexts/live-contest/voting-engine/domain/services"
	"voteverse/contexts/live-contest/voting-engine/ports"
	"voteverse/internal/shared/events"
)

// Gate admits a write only while the addressed round is open.
type Gate interface {
	Admit(ctx context.Context, roundIndex int, write func(round entities.Round) error) error
}

type JudgeVoteCommand struct {
	RoundIndex    int
	ParticipantID string
	VoterID       string
	Score         float64
}

type AudienceVoteCommand struct {
	RoundIndex    int
	ParticipantID string
	VoterID       string
}

// Ledger is the only write path for votes. Judge and leader scores are gated
// by the scoring track, audience ballots by the audience track.
type Ledger struct {
	Scoring        Gate
	Audience       Gate
	Store          ports.LedgerStore
	Voters         ports.VoterRepository
	Participants   ports.ParticipantRepository
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	Outbox         ports.OutboxWriter
	Activity       ports.ActivityLog
	Granularity    float64
	ClashThreshold float64
	Logger         *slog.Logger
}

// SubmitJudgeVote records one score for (round, participant, voter). The
// uniqueness check and the append are a single conditional insert in the
// store, performed while the round gate guarantees the round is Open.
func (l Ledger) SubmitJudgeVote(ctx context.Context, cmd JudgeVoteCommand) (entities.JudgeVote, error) {
	logger := application.ResolveLogger(l.Logger)
	cmd.ParticipantID = strings.TrimSpace(cmd.ParticipantID)
	cmd.VoterID = strings.TrimSpace(cmd.VoterID)
	if cmd.RoundIndex <= 0 || cmd.ParticipantID == "" || cmd.VoterID == "" {
		return entities.JudgeVote{}, fmt.Errorf("%w: round, participant and voter are required", domainerrors.ErrInvalidInput)
	}

	voter, err := l.eligibleVoter(ctx, cmd.VoterID)
	if err != nil {
		return entities.JudgeVote{}, err
	}
	if !voter.Role.CanScore() {
		logger.Warn("judge vote rejected for role",
			"event", "voting_judge_vote_role_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"voter_id", voter.VoterID,
			"role", string(voter.Role),
		)
		return entities.JudgeVote{}, fmt.Errorf("%w: %s cannot submit scores", domainerrors.ErrUnauthorizedRole, voter.Role)
	}
	if err := services.ValidateScore(cmd.Score, l.Granularity); err != nil {
		return entities.JudgeVote{}, err
	}
	if _, err := l.Participants.GetParticipant(ctx, cmd.ParticipantID); err != nil {
		return entities.JudgeVote{}, err
	}
	voteID, err := l.IDGen.NewID(ctx)
	if err != nil {
		return entities.JudgeVote{}, err
	}

	vote := entities.JudgeVote{
		VoteID:        voteID,
		RoundIndex:    cmd.RoundIndex,
		ParticipantID: cmd.ParticipantID,
		VoterID:       voter.VoterID,
		VoterRole:     voter.Role,
		Score:         cmd.Score,
	}
	err = l.Scoring.Admit(ctx, cmd.RoundIndex, func(entities.Round) error {
		// Admin voter writes wait for the gate, so this read is current.
		current, err := l.eligibleVoter(ctx, vote.VoterID)
		if err != nil {
			return err
		}
		if !current.Role.CanScore() {
			return fmt.Errorf("%w: %s cannot submit scores", domainerrors.ErrUnauthorizedRole, current.Role)
		}
		voter = current
		vote.VoterRole = current.Role
		vote.SubmittedAt = l.Clock.Now().UTC()
		if err := l.Store.AppendJudgeVote(ctx, vote); err != nil {
			return err
		}
		// The vote is committed; an outbox failure is logged, not returned.
		_ = l.emitter(logger).Emit(ctx, events.TopicJudgeVoteSubmitted, "participant_id", vote.ParticipantID, map[string]any{
			"vote_id":        vote.VoteID,
			"round_index":    vote.RoundIndex,
			"participant_id": vote.ParticipantID,
			"voter_id":       vote.VoterID,
			"voter_role":     string(vote.VoterRole),
			"score":          vote.Score,
			"submitted_at":   vote.SubmittedAt,
		})
		return nil
	})
	if err != nil {
		logger.Warn("judge vote rejected",
			"event", "voting_judge_vote_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"round_index", cmd.RoundIndex,
			"participant_id", cmd.ParticipantID,
			"voter_id", cmd.VoterID,
			"error", err.Error(),
		)
		return entities.JudgeVote{}, err
	}

	logger.Info("judge vote recorded",
		"event", "voting_judge_vote_recorded",
		"module", application.ModuleName,
		"layer", "application",
		"vote_id", vote.VoteID,
		"round_index", vote.RoundIndex,
		"participant_id", vote.ParticipantID,
		"voter_id", vote.VoterID,
		"voter_role", string(vote.VoterRole),
		"score", vote.Score,
	)
	l.recorder(logger).Record(ctx, entities.ActivityVote, entities.SeverityInfo, voter.Email,
		fmt.Sprintf("%s scored %s %.1f in round %d", voter.Role, vote.ParticipantID, vote.Score, vote.RoundIndex))
	l.detectClash(ctx, vote, logger)
	return vote, nil
}

// SubmitAudienceVote records one ballot per (round, voter) across all
// participants.
func (l Ledger) SubmitAudienceVote(ctx context.Context, cmd AudienceVoteCommand) (entities.AudienceVote, error) {
	logger := application.ResolveLogger(l.Logger)
	cmd.ParticipantID = strings.TrimSpace(cmd.ParticipantID)
	cmd.VoterID = strings.TrimSpace(cmd.VoterID)
	if cmd.RoundIndex <= 0 || cmd.ParticipantID == "" || cmd.VoterID == "" {
		return entities.AudienceVote{}, fmt.Errorf("%w: round, participant and voter are required", domainerrors.ErrInvalidInput)
	}

	voter, err := l.eligibleVoter(ctx, cmd.VoterID)
	if err != nil {
		return entities.AudienceVote{}, err
	}
	if !voter.Role.Can(entities.CapAudienceBallot) {
		return entities.AudienceVote{}, fmt.Errorf("%w: %s cannot cast audience ballots", domainerrors.ErrUnauthorizedRole, voter.Role)
	}
	if _, err := l.Participants.GetParticipant(ctx, cmd.ParticipantID); err != nil {
		return entities.AudienceVote{}, err
	}
	voteID, err := l.IDGen.NewID(ctx)
	if err != nil {
		return entities.AudienceVote{}, err
	}

	vote := entities.AudienceVote{
		VoteID:        voteID,
		RoundIndex:    cmd.RoundIndex,
		ParticipantID: cmd.ParticipantID,
		VoterID:       voter.VoterID,
	}
	err = l.Audience.Admit(ctx, cmd.RoundIndex, func(entities.Round) error {
		current, err := l.eligibleVoter(ctx, vote.VoterID)
		if err != nil {
			return err
		}
		if !current.Role.Can(entities.CapAudienceBallot) {
			return fmt.Errorf("%w: %s cannot cast audience ballots", domainerrors.ErrUnauthorizedRole, current.Role)
		}
		voter = current
		vote.SubmittedAt = l.Clock.Now().UTC()
		if err := l.Store.AppendAudienceVote(ctx, vote); err != nil {
			return err
		}
		_ = l.emitter(logger).Emit(ctx, events.TopicAudienceVoteSubmitted, "round_index", fmt.Sprint(vote.RoundIndex), map[string]any{
			"vote_id":        vote.VoteID,
			"round_index":    vote.RoundIndex,
			"participant_id": vote.ParticipantID,
			"voter_id":       vote.VoterID,
			"submitted_at":   vote.SubmittedAt,
		})
		return nil
	})
	if err != nil {
		logger.Warn("audience vote rejected",
			"event", "voting_audience_vote_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"round_index", cmd.RoundIndex,
			"participant_id", cmd.ParticipantID,
			"voter_id", cmd.VoterID,
			"error", err.Error(),
		)
		return entities.AudienceVote{}, err
	}

	logger.Info("audience vote recorded",
		"event", "voting_audience_vote_recorded",
		"module", application.ModuleName,
		"layer", "application",
		"vote_id", vote.VoteID,
		"round_index", vote.RoundIndex,
		"participant_id", vote.ParticipantID,
		"voter_id", vote.VoterID,
	)
	l.recorder(logger).Record(ctx, entities.ActivityVote, entities.SeverityInfo, voter.Email,
		fmt.Sprintf("audience ballot for %s in round %d", vote.ParticipantID, vote.RoundIndex))
	return vote, nil
}

func (l Ledger) VotesForRound(ctx context.Context, roundIndex int) (entities.LedgerSnapshot, error) {
	return l.Store.VotesForRound(ctx, roundIndex)
}

func (l Ledger) VotesByParticipant(ctx context.Context, participantID string) (entities.LedgerSnapshot, error) {
	if _, err := l.Participants.GetParticipant(ctx, strings.TrimSpace(participantID)); err != nil {
		return entities.LedgerSnapshot{}, err
	}
	return l.Store.VotesByParticipant(ctx, strings.TrimSpace(participantID))
}

func (l Ledger) Snapshot(ctx context.Context) (entities.LedgerSnapshot, error) {
	return l.Store.Snapshot(ctx)
}

func (l Ledger) eligibleVoter(ctx context.Context, voterID string) (entities.Voter, error) {
	voter, err := l.Voters.GetVoter(ctx, voterID)
	if err != nil {
		return entities.Voter{}, err
	}
	if !voter.Active {
		return entities.Voter{}, fmt.Errorf("%w: %s", domainerrors.ErrVoterInactive, voter.VoterID)
	}
	if !voter.Verified {
		return entities.Voter{}, fmt.Errorf("%w: %s", domainerrors.ErrVoterNotVerified, voter.VoterID)
	}
	return voter, nil
}

// detectClash records a clash when vote is the one that moved its pair into
// clash. The pair's votes are replayed in ledger order, so of several votes
// stored concurrently only the one at the crossing announces it.
func (l Ledger) detectClash(ctx context.Context, vote entities.JudgeVote, logger *slog.Logger) {
	if vote.VoterRole != entities.RoleJudge && vote.VoterRole != entities.RoleLeader {
		return
	}
	snapshot, err := l.Store.VotesForRound(ctx, vote.RoundIndex)
	if err != nil {
		logger.Error("clash check read failed",
			"event", "voting_clash_check_failed",
			"module", application.ModuleName,
			"layer", "application",
			"round_index", vote.RoundIndex,
			"participant_id", vote.ParticipantID,
			"error", err.Error(),
		)
		return
	}
	threshold := l.ClashThreshold
	if threshold <= 0 {
		threshold = services.DefaultClashThreshold
	}
	now := l.Clock.Now()

	pairVotes := make([]entities.JudgeVote, 0, len(snapshot.JudgeVotes))
	for _, item := range snapshot.JudgeVotes {
		if item.ParticipantID == vote.ParticipantID {
			pairVotes = append(pairVotes, item)
		}
	}
	var after entities.ClashRecord
	clashing := false
	crossedBy := ""
	for i := range pairVotes {
		record, clash := services.CheckClash(pairVotes[:i+1], vote.ParticipantID, vote.RoundIndex, threshold, now)
		if clash && !clashing {
			crossedBy = pairVotes[i].VoteID
		}
		clashing = clash
		after = record
	}
	if !clashing || crossedBy != vote.VoteID {
		return
	}

	logger.Warn("judge and leader scores clash",
		"event", "voting_clash_detected",
		"module", application.ModuleName,
		"layer", "application",
		"round_index", after.RoundIndex,
		"participant_id", after.ParticipantID,
		"judge_score", after.JudgeScore,
		"leader_score", after.LeaderScore,
		"delta", after.Delta,
	)
	_ = l.emitter(logger).Emit(ctx, events.TopicClashDetected, "participant_id", after.ParticipantID, map[string]any{
		"round_index":    after.RoundIndex,
		"participant_id": after.ParticipantID,
		"judge_score":    after.JudgeScore,
		"leader_score":   after.LeaderScore,
		"delta":          after.Delta,
		"detected_at":    after.DetectedAt,
	})
	l.recorder(logger).Record(ctx, entities.ActivityClashDetected, entities.SeverityWarning, "system",
		fmt.Sprintf("judge %.2f vs leader %.2f for %s in round %d (delta %.2f)",
			after.JudgeScore, after.LeaderScore, after.ParticipantID, after.RoundIndex, after.Delta))
}

func (l Ledger) emitter(logger *slog.Logger) application.EventEmitter {
	return application.EventEmitter{Outbox: l.Outbox, IDGen: l.IDGen, Clock: l.Clock, Logger: logger}
}

func (l Ledger) recorder(logger *slog.Logger) application.ActivityRecorder {
	return application.ActivityRecorder{Log: l.Activity, IDGen: l.IDGen, Clock: l.Clock, Logger: logger}
}
