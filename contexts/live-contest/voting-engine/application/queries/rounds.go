package queries

import "voteverse/contexts/live-contest/voting-engine/domain/entities"

// RoundSource exposes a track's round history to read models.
type RoundSource interface {
	Rounds() []entities.Round
	CurrentRound() (entities.Round, bool)
	TotalRounds() int
}

func closedIndexes(rounds []entities.Round) []int {
	items := make([]int, 0, len(rounds))
	for _, round := range rounds {
		if round.State == entities.RoundStateClosed {
			items = append(items, round.Index)
		}
	}
	return items
}
