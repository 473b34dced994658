package http

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RegisterIdentityRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
}

type VoterResponse struct {
	VoterID     string     `json:"voter_id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Verified    bool       `json:"verified"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

type RegisterIdentityResponse struct {
	Voter   VoterResponse `json:"voter"`
	Created bool          `json:"created"`
}

type RoundResponse struct {
	Kind             string     `json:"kind"`
	RoundIndex       int        `json:"round_index"`
	State            string     `json:"state"`
	StartedAt        time.Time  `json:"started_at"`
	DurationSeconds  int64      `json:"duration_seconds"`
	RemainingSeconds int64      `json:"remaining_seconds"`
	LockedAt         *time.Time `json:"locked_at,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
}

type CurrentRoundResponse struct {
	Kind        string         `json:"kind"`
	TotalRounds int            `json:"total_rounds"`
	Finished    bool           `json:"finished"`
	Round       *RoundResponse `json:"round,omitempty"`
}

type RoundListResponse struct {
	Scoring  []RoundResponse `json:"scoring"`
	Audience []RoundResponse `json:"audience"`
}

type SubmitJudgeVoteRequest struct {
	ParticipantID string   `json:"participant_id"`
	Score         *float64 `json:"score"`
}

type SubmitAudienceVoteRequest struct {
	ParticipantID string `json:"participant_id"`
}

type JudgeVoteResponse struct {
	VoteID        string    `json:"vote_id"`
	RoundIndex    int       `json:"round_index"`
	ParticipantID string    `json:"participant_id"`
	VoterID       string    `json:"voter_id"`
	VoterRole     string    `json:"voter_role"`
	Score         float64   `json:"score"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

type AudienceVoteResponse struct {
	VoteID        string    `json:"vote_id"`
	RoundIndex    int       `json:"round_index"`
	ParticipantID string    `json:"participant_id"`
	VoterID       string    `json:"voter_id"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

type VotesResponse struct {
	TakenAt       time.Time              `json:"taken_at"`
	JudgeVotes    []JudgeVoteResponse    `json:"judge_votes"`
	AudienceVotes []AudienceVoteResponse `json:"audience_votes"`
}

type AudienceResultItem struct {
	ParticipantID   string  `json:"participant_id"`
	Name            string  `json:"name"`
	Votes           int     `json:"votes"`
	Percentage      float64 `json:"percentage"`
	PercentageLabel string  `json:"percentage_label"`
	Leading         bool    `json:"leading"`
}

type AudienceResultsResponse struct {
	RoundIndex int                  `json:"round_index"`
	TotalVotes int                  `json:"total_votes"`
	Items      []AudienceResultItem `json:"items"`
}

type ClashItem struct {
	RoundIndex    int       `json:"round_index"`
	ParticipantID string    `json:"participant_id"`
	JudgeScore    float64   `json:"judge_score"`
	LeaderScore   float64   `json:"leader_score"`
	Delta         float64   `json:"delta"`
	DetectedAt    time.Time `json:"detected_at"`
}

type ClashesResponse struct {
	RoundIndex int         `json:"round_index"`
	Items      []ClashItem `json:"items"`
}

type ParticipantResponse struct {
	ParticipantID string    `json:"participant_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	CurrentRound  int       `json:"current_round"`
	CreatedAt     time.Time `json:"created_at"`
}

type ParticipantListResponse struct {
	Items []ParticipantResponse `json:"items"`
}

type RoundScoreItem struct {
	RoundIndex int     `json:"round_index"`
	Score      float64 `json:"score"`
	HasScore   bool    `json:"has_score"`
}

type LeaderboardItem struct {
	ParticipantID  string           `json:"participant_id"`
	Name           string           `json:"name"`
	Rank           int              `json:"rank"`
	TotalScore     float64          `json:"total_score"`
	AverageScore   float64          `json:"average_score"`
	PerRoundScores []RoundScoreItem `json:"per_round_scores"`
	LiveRoundScore *RoundScoreItem  `json:"live_round_score,omitempty"`
	AudienceVotes  int              `json:"audience_votes"`
	FirstVoteAt    *time.Time       `json:"first_vote_at,omitempty"`
	IsWinner       bool             `json:"is_winner"`
	ClashDetected  bool             `json:"clash_detected"`
}

type LeaderboardResponse struct {
	GeneratedAt  time.Time         `json:"generated_at"`
	CurrentRound int               `json:"current_round"`
	TotalRounds  int               `json:"total_rounds"`
	Live         bool              `json:"live"`
	Final        bool              `json:"final"`
	Items        []LeaderboardItem `json:"items"`
}

type RoundSnapshotResponse struct {
	RoundIndex  int                 `json:"round_index"`
	FrozenAt    time.Time           `json:"frozen_at"`
	Leaderboard LeaderboardResponse `json:"leaderboard"`
}

type RoundSnapshotListResponse struct {
	Items []RoundSnapshotResponse `json:"items"`
}

type StartTimerRequest struct {
	DurationSeconds int64 `json:"duration_seconds"`
}

type AdvanceResponse struct {
	Closed  RoundResponse  `json:"closed"`
	Opened  *RoundResponse `json:"opened,omitempty"`
	HasNext bool           `json:"has_next"`
}

type RegisterParticipantRequest struct {
	ParticipantID string `json:"participant_id,omitempty"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
}

type EditVoterRequest struct {
	Name *string `json:"name,omitempty"`
	Role *string `json:"role,omitempty"`
}

type AnalyticsResponse struct {
	TotalVoters       int     `json:"total_voters"`
	VerifiedVoters    int     `json:"verified_voters"`
	TotalVotes        int     `json:"total_votes"`
	JudgeVotes        int     `json:"judge_votes"`
	AudienceVotes     int     `json:"audience_votes"`
	VotingStatus      string  `json:"voting_status"`
	CurrentRound      int     `json:"current_round"`
	AverageScore      float64 `json:"average_score"`
	ParticipationRate float64 `json:"participation_rate"`
	ClashesDetected   int     `json:"clashes_detected"`
}

type ActivityItem struct {
	EntryID     string    `json:"entry_id"`
	At          time.Time `json:"at"`
	Type        string    `json:"type"`
	PerformedBy string    `json:"performed_by"`
	Details     string    `json:"details"`
	Severity    string    `json:"severity"`
}

type ActivityResponse struct {
	Items []ActivityItem `json:"items"`
}
