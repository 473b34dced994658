package entities

import "time"

type RoundScore struct {
	RoundIndex int
	Score      float64
	HasScore   bool
}

type LeaderboardEntry struct {
	ParticipantID  string
	Name           string
	TotalScore     float64
	AverageScore   float64
	PerRoundScores []RoundScore
	LiveRoundScore *RoundScore
	AudienceVotes  int
	FirstVoteAt    *time.Time
	Rank           int
	IsWinner       bool
	ClashDetected  bool
}

type Leaderboard struct {
	GeneratedAt  time.Time
	CurrentRound int
	TotalRounds  int
	Live         bool
	Final        bool
	Entries      []LeaderboardEntry
}

// RoundSnapshot is the leaderboard frozen when a scoring round closed.
type RoundSnapshot struct {
	RoundIndex  int
	FrozenAt    time.Time
	Leaderboard Leaderboard
}

type AudienceResult struct {
	ParticipantID string
	Name          string
	Votes         int
	Percentage    float64
	Leading       bool
}
