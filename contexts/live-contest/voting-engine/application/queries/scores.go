package queries

import (
	"context"
	"strings"
	"time"

	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	"voteverse/contexts/live-contest/voting-engine/domain/services"
	"voteverse/contexts/live-contest/voting-engine/ports"
)

// Scores derives per-participant scores from the ledger on every call.
type Scores struct {
	Store          ports.LedgerStore
	Rounds         RoundSource
	Clock          ports.Clock
	ClashThreshold float64
}

func (q Scores) RoundScore(ctx context.Context, participantID string, roundIndex int) (float64, bool, error) {
	snapshot, err := q.Store.VotesForRound(ctx, roundIndex)
	if err != nil {
		return 0, false, err
	}
	score, ok := services.RoundScore(snapshot.JudgeVotes, strings.TrimSpace(participantID), roundIndex)
	return score, ok, nil
}

// TotalScore sums round scores over closed scoring rounds only.
func (q Scores) TotalScore(ctx context.Context, participantID string) (float64, error) {
	closed := closedIndexes(q.Rounds.Rounds())
	snapshot, err := q.Store.VotesByParticipant(ctx, strings.TrimSpace(participantID))
	if err != nil {
		return 0, err
	}
	return services.TotalScore(snapshot.JudgeVotes, strings.TrimSpace(participantID), closed), nil
}

// LiveScore reports the score of the round still in progress. ok is false
// when no round is Open or Locked.
func (q Scores) LiveScore(ctx context.Context, participantID string) (entities.RoundScore, bool, error) {
	round, ok := q.Rounds.CurrentRound()
	if !ok || round.State == entities.RoundStateClosed {
		return entities.RoundScore{}, false, nil
	}
	score, has, err := q.RoundScore(ctx, participantID, round.Index)
	if err != nil {
		return entities.RoundScore{}, false, err
	}
	return entities.RoundScore{RoundIndex: round.Index, Score: score, HasScore: has}, true, nil
}

// Clashes lists flagged pairs for one round, or for every round when
// roundIndex is zero.
func (q Scores) Clashes(ctx context.Context, roundIndex int) ([]entities.ClashRecord, error) {
	var (
		snapshot entities.LedgerSnapshot
		err      error
	)
	if roundIndex > 0 {
		snapshot, err = q.Store.VotesForRound(ctx, roundIndex)
	} else {
		snapshot, err = q.Store.Snapshot(ctx)
	}
	if err != nil {
		return nil, err
	}
	return services.Clashes(snapshot.JudgeVotes, q.threshold(), q.now()), nil
}

func (q Scores) threshold() float64 {
	if q.ClashThreshold <= 0 {
		return services.DefaultClashThreshold
	}
	return q.ClashThreshold
}

func (q Scores) now() time.Time {
	if q.Clock == nil {
		return time.Now().UTC()
	}
	return q.Clock.Now().UTC()
}
