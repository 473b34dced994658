package entities

import "time"

type ActivityType string

const (
	ActivityVote                  ActivityType = "vote"
	ActivityLogin                 ActivityType = "login"
	ActivityClashDetected         ActivityType = "clash_detected"
	ActivityAudienceVoteTriggered ActivityType = "audience_vote_triggered"
	ActivityAdminAction           ActivityType = "admin_action"
	ActivityRoundTransition       ActivityType = "round_transition"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type ActivityEntry struct {
	EntryID     string
	At          time.Time
	Type        ActivityType
	PerformedBy string
	Details     string
	Severity    Severity
}

type ContestStats struct {
	TotalVoters       int
	VerifiedVoters    int
	TotalVotes        int
	JudgeVotes        int
	AudienceVotes     int
	VotingStatus      RoundState
	CurrentRound      int
	AverageScore      float64
	ParticipationRate float64
	ClashesDetected   int
}
