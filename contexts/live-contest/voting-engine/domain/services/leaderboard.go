package services

import (
	"sort"
	"time"

	"voteverse/contexts/live-contest/voting-engine/domain/entities"
)

// LeaderboardInput is everything needed to derive a leaderboard. Callers
// must take Votes from one ledger snapshot so the result never mixes pre- and
// post-write state.
type LeaderboardInput struct {
	Participants   []entities.Participant
	Votes          entities.LedgerSnapshot
	ScoringRounds  []entities.Round
	TotalRounds    int
	ClashThreshold float64
	Live           bool
	Now            time.Time
}

// BuildLeaderboard derives the ranked leaderboard. Totals only include closed
// scoring rounds; the open or locked round is exposed as LiveRoundScore when
// Live is requested.
func BuildLeaderboard(in LeaderboardInput) entities.Leaderboard {
	closed := make([]int, 0, len(in.ScoringRounds))
	liveRound := 0
	currentRound := 0
	final := false
	for _, round := range in.ScoringRounds {
		if round.Index > currentRound {
			currentRound = round.Index
		}
		if round.State == entities.RoundStateClosed {
			closed = append(closed, round.Index)
			if in.TotalRounds > 0 && round.Index >= in.TotalRounds {
				final = true
			}
			continue
		}
		liveRound = round.Index
	}
	sort.Ints(closed)
	closedSet := make(map[int]struct{}, len(closed))
	for _, idx := range closed {
		closedSet[idx] = struct{}{}
	}

	audience := make(map[string]int)
	for _, vote := range in.Votes.AudienceVotes {
		audience[vote.ParticipantID]++
	}

	clashed := make(map[string]bool)
	for _, record := range Clashes(in.Votes.JudgeVotes, in.ClashThreshold, in.Now) {
		clashed[record.ParticipantID] = true
	}

	firstVote := make(map[string]time.Time)
	for _, vote := range in.Votes.JudgeVotes {
		if _, ok := closedSet[vote.RoundIndex]; !ok {
			continue
		}
		if current, ok := firstVote[vote.ParticipantID]; !ok || vote.SubmittedAt.Before(current) {
			firstVote[vote.ParticipantID] = vote.SubmittedAt
		}
	}

	entries := make([]entities.LeaderboardEntry, 0, len(in.Participants))
	for _, participant := range in.Participants {
		entry := entities.LeaderboardEntry{
			ParticipantID:  participant.ParticipantID,
			Name:           participant.Name,
			PerRoundScores: make([]entities.RoundScore, 0, len(closed)),
			AudienceVotes:  audience[participant.ParticipantID],
			ClashDetected:  clashed[participant.ParticipantID],
		}
		scored := 0
		for _, roundIndex := range closed {
			score, ok := RoundScore(in.Votes.JudgeVotes, participant.ParticipantID, roundIndex)
			entry.PerRoundScores = append(entry.PerRoundScores, entities.RoundScore{
				RoundIndex: roundIndex,
				Score:      score,
				HasScore:   ok,
			})
			if ok {
				entry.TotalScore += score
				scored++
			}
		}
		if scored > 0 {
			entry.AverageScore = entry.TotalScore / float64(scored)
		}
		if at, ok := firstVote[participant.ParticipantID]; ok {
			at = at.UTC()
			entry.FirstVoteAt = &at
		}
		if in.Live && liveRound > 0 {
			score, ok := RoundScore(in.Votes.JudgeVotes, participant.ParticipantID, liveRound)
			entry.LiveRoundScore = &entities.RoundScore{RoundIndex: liveRound, Score: score, HasScore: ok}
		}
		entries = append(entries, entry)
	}

	RankEntries(entries, final)
	return entities.Leaderboard{
		GeneratedAt:  in.Now.UTC(),
		CurrentRound: currentRound,
		TotalRounds:  in.TotalRounds,
		Live:         in.Live,
		Final:        final,
		Entries:      entries,
	}
}
