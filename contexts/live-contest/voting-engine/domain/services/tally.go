package services

import (
	"math"

	"voteverse/contexts/live-contest/voting-engine/domain/entities"
)

// AudienceCounts returns ballots per participant for one audience round and
// the round total.
func AudienceCounts(votes []entities.AudienceVote, roundIndex int) (map[string]int, int) {
	counts := make(map[string]int)
	total := 0
	for _, vote := range votes {
		if vote.RoundIndex != roundIndex {
			continue
		}
		counts[vote.ParticipantID]++
		total++
	}
	return counts, total
}

// Percentage is count/total*100 with a zero-total guard.
func Percentage(count int, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}

// RoundToTenth rounds a percentage for display to one decimal place.
func RoundToTenth(value float64) float64 {
	return math.Round(value*10) / 10
}

// AudienceLeader picks the participant with most ballots; ties go to the
// lowest participant id. ok is false when nobody has voted.
func AudienceLeader(counts map[string]int, total int) (string, bool) {
	if total <= 0 {
		return "", false
	}
	leader := ""
	best := -1
	for participantID, count := range counts {
		if count > best || (count == best && participantID < leader) {
			leader = participantID
			best = count
		}
	}
	return leader, best > 0
}
