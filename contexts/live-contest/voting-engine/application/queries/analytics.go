package queries

import (
	"context"

	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	"voteverse/contexts/live-contest/voting-engine/domain/services"
	"voteverse/contexts/live-contest/voting-engine/ports"
)

const defaultActivityLimit = 50

// Analytics backs the admin dashboard counters and system log.
type Analytics struct {
	Voters         ports.VoterRepository
	Store          ports.LedgerStore
	Rounds         RoundSource
	Activity       ports.ActivityLog
	Clock          ports.Clock
	ClashThreshold float64
}

func (q Analytics) Stats(ctx context.Context) (entities.ContestStats, error) {
	voters, err := q.Voters.ListVoters(ctx)
	if err != nil {
		return entities.ContestStats{}, err
	}
	votes, err := q.Store.Snapshot(ctx)
	if err != nil {
		return entities.ContestStats{}, err
	}

	stats := entities.ContestStats{
		TotalVoters:   len(voters),
		JudgeVotes:    len(votes.JudgeVotes),
		AudienceVotes: len(votes.AudienceVotes),
		TotalVotes:    len(votes.JudgeVotes) + len(votes.AudienceVotes),
	}
	scorers := 0
	for _, voter := range voters {
		if voter.Verified {
			stats.VerifiedVoters++
		}
		if voter.Active && voter.Role.CanScore() {
			scorers++
		}
	}

	var sum float64
	for _, vote := range votes.JudgeVotes {
		sum += vote.Score
	}
	if len(votes.JudgeVotes) > 0 {
		stats.AverageScore = sum / float64(len(votes.JudgeVotes))
	}

	if round, ok := q.Rounds.CurrentRound(); ok {
		stats.CurrentRound = round.Index
		stats.VotingStatus = round.State
		participating := make(map[string]struct{})
		for _, vote := range votes.JudgeVotes {
			if vote.RoundIndex == round.Index {
				participating[vote.VoterID] = struct{}{}
			}
		}
		if scorers > 0 {
			stats.ParticipationRate = services.Percentage(len(participating), scorers)
		}
	}

	threshold := q.ClashThreshold
	if threshold <= 0 {
		threshold = services.DefaultClashThreshold
	}
	stats.ClashesDetected = len(services.Clashes(votes.JudgeVotes, threshold, q.Clock.Now()))
	return stats, nil
}

// RecentActivity returns the newest system log entries first.
func (q Analytics) RecentActivity(ctx context.Context, limit int) ([]entities.ActivityEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultActivityLimit
	}
	return q.Activity.ListActivity(ctx, limit)
}
