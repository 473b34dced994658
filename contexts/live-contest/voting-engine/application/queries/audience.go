package queries

import (
	"context"
	"sort"
	"strings"

	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	"voteverse/contexts/live-contest/voting-engine/domain/services"
	"voteverse/contexts/live-contest/voting-engine/ports"
)

type AudienceLeader struct {
	ParticipantID string
	Votes         int
	Percentage    float64
}

type AudienceResults struct {
	RoundIndex int
	TotalVotes int
	Results    []entities.AudienceResult
}

// Audience tallies audience ballots per round.
type Audience struct {
	Store        ports.LedgerStore
	Participants ports.ParticipantRepository
}

func (q Audience) VoteCount(ctx context.Context, participantID string, roundIndex int) (int, error) {
	counts, _, err := q.counts(ctx, roundIndex)
	if err != nil {
		return 0, err
	}
	return counts[strings.TrimSpace(participantID)], nil
}

// Percentage is unrounded; it is zero when the round has no ballots.
func (q Audience) Percentage(ctx context.Context, participantID string, roundIndex int) (float64, error) {
	counts, total, err := q.counts(ctx, roundIndex)
	if err != nil {
		return 0, err
	}
	return services.Percentage(counts[strings.TrimSpace(participantID)], total), nil
}

// Leader returns ok=false when the round has no ballots.
func (q Audience) Leader(ctx context.Context, roundIndex int) (AudienceLeader, bool, error) {
	counts, total, err := q.counts(ctx, roundIndex)
	if err != nil {
		return AudienceLeader{}, false, err
	}
	participantID, ok := services.AudienceLeader(counts, total)
	if !ok {
		return AudienceLeader{}, false, nil
	}
	return AudienceLeader{
		ParticipantID: participantID,
		Votes:         counts[participantID],
		Percentage:    services.Percentage(counts[participantID], total),
	}, true, nil
}

// Results lists every registered participant, most ballots first, with
// percentages rounded to one decimal for display.
func (q Audience) Results(ctx context.Context, roundIndex int) (AudienceResults, error) {
	participants, err := q.Participants.ListParticipants(ctx)
	if err != nil {
		return AudienceResults{}, err
	}
	counts, total, err := q.counts(ctx, roundIndex)
	if err != nil {
		return AudienceResults{}, err
	}
	leader, hasLeader := services.AudienceLeader(counts, total)

	items := make([]entities.AudienceResult, 0, len(participants))
	for _, participant := range participants {
		count := counts[participant.ParticipantID]
		items = append(items, entities.AudienceResult{
			ParticipantID: participant.ParticipantID,
			Name:          participant.Name,
			Votes:         count,
			Percentage:    services.RoundToTenth(services.Percentage(count, total)),
			Leading:       hasLeader && participant.ParticipantID == leader,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Votes == items[j].Votes {
			return items[i].ParticipantID < items[j].ParticipantID
		}
		return items[i].Votes > items[j].Votes
	})
	return AudienceResults{RoundIndex: roundIndex, TotalVotes: total, Results: items}, nil
}

func (q Audience) counts(ctx context.Context, roundIndex int) (map[string]int, int, error) {
	snapshot, err := q.Store.VotesForRound(ctx, roundIndex)
	if err != nil {
		return nil, 0, err
	}
	counts, total := services.AudienceCounts(snapshot.AudienceVotes, roundIndex)
	return counts, total, nil
}
