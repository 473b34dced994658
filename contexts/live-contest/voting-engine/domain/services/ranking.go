package services

import (
	"sort"

	"voteverse/contexts/live-contest/voting-engine/domain/entities"
)

// RankEntries orders entries by total score desc, average score desc,
// earliest first vote, then participant id, and assigns standard competition
// ranks keyed on total score alone. Winner flags go to rank 1 when final.
func RankEntries(entries []entities.LeaderboardEntry, final bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		return rankLess(entries[i], entries[j])
	})
	for i := range entries {
		switch {
		case i == 0:
			entries[i].Rank = 1
		case scoresEqual(entries[i].TotalScore, entries[i-1].TotalScore):
			entries[i].Rank = entries[i-1].Rank
		default:
			entries[i].Rank = i + 1
		}
		entries[i].IsWinner = final && entries[i].Rank == 1
	}
}

func rankLess(a, b entities.LeaderboardEntry) bool {
	if !scoresEqual(a.TotalScore, b.TotalScore) {
		return a.TotalScore > b.TotalScore
	}
	if !scoresEqual(a.AverageScore, b.AverageScore) {
		return a.AverageScore > b.AverageScore
	}
	switch {
	case a.FirstVoteAt != nil && b.FirstVoteAt == nil:
		return true
	case a.FirstVoteAt == nil && b.FirstVoteAt != nil:
		return false
	case a.FirstVoteAt != nil && b.FirstVoteAt != nil && !a.FirstVoteAt.Equal(*b.FirstVoteAt):
		return a.FirstVoteAt.Before(*b.FirstVoteAt)
	}
	return a.ParticipantID < b.ParticipantID
}
