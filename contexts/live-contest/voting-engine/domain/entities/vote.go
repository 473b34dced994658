package entities

import "time"

// JudgeVote is a 0-10 score cast by a judge or leader. VoterRole is captured
// at submission so role edits never rewrite history.
type JudgeVote struct {
	VoteID        string
	RoundIndex    int
	ParticipantID string
	VoterID       string
	VoterRole     Role
	Score         float64
	SubmittedAt   time.Time
}

// AudienceVote is the single ballot an audience member casts in a round.
type AudienceVote struct {
	VoteID        string
	RoundIndex    int
	ParticipantID string
	VoterID       string
	SubmittedAt   time.Time
}

// LedgerSnapshot is a point-in-time copy of every vote in the ledger.
type LedgerSnapshot struct {
	JudgeVotes    []JudgeVote
	AudienceVotes []AudienceVote
	TakenAt       time.Time
}

type ClashRecord struct {
	RoundIndex    int
	ParticipantID string
	JudgeScore    float64
	LeaderScore   float64
	Delta         float64
	DetectedAt    time.Time
}
