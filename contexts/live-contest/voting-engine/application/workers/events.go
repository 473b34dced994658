package workers

import (
	"encoding/json"
	"time"

	"voteverse/contexts/live-contest/voting-engine/domain/entities"
)

type roundScorePayload struct {
	RoundIndex int     `json:"round_index"`
	Score      float64 `json:"score"`
	HasScore   bool    `json:"has_score"`
}

type leaderboardEntryPayload struct {
	ParticipantID  string              `json:"participant_id"`
	Name           string              `json:"name"`
	Rank           int                 `json:"rank"`
	TotalScore     float64             `json:"total_score"`
	AverageScore   float64             `json:"average_score"`
	PerRoundScores []roundScorePayload `json:"per_round_scores"`
	LiveRoundScore *roundScorePayload  `json:"live_round_score,omitempty"`
	AudienceVotes  int                 `json:"audience_votes"`
	IsWinner       bool                `json:"is_winner"`
	ClashDetected  bool                `json:"clash_detected"`
}

// leaderboardPayload is the leaderboard.updated event body.
type leaderboardPayload struct {
	GeneratedAt  time.Time                 `json:"generated_at"`
	CurrentRound int                       `json:"current_round"`
	TotalRounds  int                       `json:"total_rounds"`
	Final        bool                      `json:"final"`
	Entries      []leaderboardEntryPayload `json:"entries"`
}

// content drops the generation time so unchanged boards hash equal.
func (p leaderboardPayload) content() leaderboardPayload {
	p.GeneratedAt = time.Time{}
	return p
}

func newLeaderboardPayload(board entities.Leaderboard) leaderboardPayload {
	entries := make([]leaderboardEntryPayload, 0, len(board.Entries))
	for _, entry := range board.Entries {
		item := leaderboardEntryPayload{
			ParticipantID:  entry.ParticipantID,
			Name:           entry.Name,
			Rank:           entry.Rank,
			TotalScore:     entry.TotalScore,
			AverageScore:   entry.AverageScore,
			PerRoundScores: make([]roundScorePayload, 0, len(entry.PerRoundScores)),
			AudienceVotes:  entry.AudienceVotes,
			IsWinner:       entry.IsWinner,
			ClashDetected:  entry.ClashDetected,
		}
		for _, score := range entry.PerRoundScores {
			item.PerRoundScores = append(item.PerRoundScores, roundScorePayload(score))
		}
		if entry.LiveRoundScore != nil {
			live := roundScorePayload(*entry.LiveRoundScore)
			item.LiveRoundScore = &live
		}
		entries = append(entries, item)
	}
	return leaderboardPayload{
		GeneratedAt:  board.GeneratedAt.UTC(),
		CurrentRound: board.CurrentRound,
		TotalRounds:  board.TotalRounds,
		Final:        board.Final,
		Entries:      entries,
	}
}

// EncodeLeaderboard renders board in the leaderboard.updated payload shape.
func EncodeLeaderboard(board entities.Leaderboard) (json.RawMessage, error) {
	return json.Marshal(newLeaderboardPayload(board))
}
