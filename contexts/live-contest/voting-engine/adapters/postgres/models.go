package postgresadapter

import (
	"strings"
	"time"

	"voteverse/contexts/live-contest/voting-engine/domain/entities"
)

type voterModel struct {
	ID          string     `gorm:"column:id;primaryKey"`
	Email       string     `gorm:"column:email;uniqueIndex"`
	Name        string     `gorm:"column:name"`
	Role        string     `gorm:"column:role"`
	Verified    bool       `gorm:"column:verified"`
	Active      bool       `gorm:"column:active"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
	LastLoginAt *time.Time `gorm:"column:last_login_at"`
}

func (voterModel) TableName() string {
	return "contest_voters"
}

func voterModelFromEntity(voter entities.Voter) voterModel {
	return voterModel{
		ID:          strings.TrimSpace(voter.VoterID),
		Email:       strings.ToLower(strings.TrimSpace(voter.Email)),
		Name:        strings.TrimSpace(voter.Name),
		Role:        string(voter.Role),
		Verified:    voter.Verified,
		Active:      voter.Active,
		CreatedAt:   voter.CreatedAt.UTC(),
		UpdatedAt:   voter.UpdatedAt.UTC(),
		LastLoginAt: normalizeOptionalTime(voter.LastLoginAt),
	}
}

func (m voterModel) toEntity() entities.Voter {
	return entities.Voter{
		VoterID:     m.ID,
		Email:       m.Email,
		Name:        m.Name,
		Role:        entities.Role(m.Role),
		Verified:    m.Verified,
		Active:      m.Active,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
		LastLoginAt: normalizeOptionalTime(m.LastLoginAt),
	}
}

type participantModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Name         string    `gorm:"column:name"`
	Description  string    `gorm:"column:description"`
	CurrentRound int       `gorm:"column:current_round"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (participantModel) TableName() string {
	return "contest_participants"
}

func participantModelFromEntity(participant entities.Participant) participantModel {
	return participantModel{
		ID:           strings.TrimSpace(participant.ParticipantID),
		Name:         strings.TrimSpace(participant.Name),
		Description:  participant.Description,
		CurrentRound: participant.CurrentRound,
		CreatedAt:    participant.CreatedAt.UTC(),
	}
}

func (m participantModel) toEntity() entities.Participant {
	return entities.Participant{
		ParticipantID: m.ID,
		Name:          m.Name,
		Description:   m.Description,
		CurrentRound:  m.CurrentRound,
		CreatedAt:     m.CreatedAt.UTC(),
	}
}

type roundModel struct {
	Kind            string     `gorm:"column:kind;primaryKey"`
	RoundIndex      int        `gorm:"column:round_index;primaryKey;autoIncrement:false"`
	State           string     `gorm:"column:state"`
	StartedAt       time.Time  `gorm:"column:started_at"`
	DurationSeconds int64      `gorm:"column:duration_seconds"`
	LockedAt        *time.Time `gorm:"column:locked_at"`
	ClosedAt        *time.Time `gorm:"column:closed_at"`
}

func (roundModel) TableName() string {
	return "contest_rounds"
}

func roundModelFromEntity(round entities.Round) roundModel {
	return roundModel{
		Kind:            string(round.Kind),
		RoundIndex:      round.Index,
		State:           string(round.State),
		StartedAt:       round.StartedAt.UTC(),
		DurationSeconds: int64(round.Duration / time.Second),
		LockedAt:        normalizeOptionalTime(round.LockedAt),
		ClosedAt:        normalizeOptionalTime(round.ClosedAt),
	}
}

func (m roundModel) toEntity() entities.Round {
	return entities.Round{
		Kind:      entities.RoundKind(m.Kind),
		Index:     m.RoundIndex,
		State:     entities.RoundState(m.State),
		StartedAt: m.StartedAt.UTC(),
		Duration:  time.Duration(m.DurationSeconds) * time.Second,
		LockedAt:  normalizeOptionalTime(m.LockedAt),
		ClosedAt:  normalizeOptionalTime(m.ClosedAt),
	}
}

type judgeVoteModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	RoundIndex    int       `gorm:"column:round_index;uniqueIndex:idx_judge_votes_identity,priority:1"`
	ParticipantID string    `gorm:"column:participant_id;uniqueIndex:idx_judge_votes_identity,priority:2"`
	VoterID       string    `gorm:"column:voter_id;uniqueIndex:idx_judge_votes_identity,priority:3"`
	VoterRole     string    `gorm:"column:voter_role"`
	Score         float64   `gorm:"column:score"`
	SubmittedAt   time.Time `gorm:"column:submitted_at"`
}

func (judgeVoteModel) TableName() string {
	return "contest_judge_votes"
}

func judgeVoteModelFromEntity(vote entities.JudgeVote) judgeVoteModel {
	return judgeVoteModel{
		ID:            strings.TrimSpace(vote.VoteID),
		RoundIndex:    vote.RoundIndex,
		ParticipantID: strings.TrimSpace(vote.ParticipantID),
		VoterID:       strings.TrimSpace(vote.VoterID),
		VoterRole:     string(vote.VoterRole),
		Score:         vote.Score,
		SubmittedAt:   vote.SubmittedAt.UTC(),
	}
}

func (m judgeVoteModel) toEntity() entities.JudgeVote {
	return entities.JudgeVote{
		VoteID:        m.ID,
		RoundIndex:    m.RoundIndex,
		ParticipantID: m.ParticipantID,
		VoterID:       m.VoterID,
		VoterRole:     entities.Role(m.VoterRole),
		Score:         m.Score,
		SubmittedAt:   m.SubmittedAt.UTC(),
	}
}

type audienceVoteModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	RoundIndex    int       `gorm:"column:round_index;uniqueIndex:idx_audience_votes_identity,priority:1"`
	ParticipantID string    `gorm:"column:participant_id;index"`
	VoterID       string    `gorm:"column:voter_id;uniqueIndex:idx_audience_votes_identity,priority:2"`
	SubmittedAt   time.Time `gorm:"column:submitted_at"`
}

func (audienceVoteModel) TableName() string {
	return "contest_audience_votes"
}

func audienceVoteModelFromEntity(vote entities.AudienceVote) audienceVoteModel {
	return audienceVoteModel{
		ID:            strings.TrimSpace(vote.VoteID),
		RoundIndex:    vote.RoundIndex,
		ParticipantID: strings.TrimSpace(vote.ParticipantID),
		VoterID:       strings.TrimSpace(vote.VoterID),
		SubmittedAt:   vote.SubmittedAt.UTC(),
	}
}

func (m audienceVoteModel) toEntity() entities.AudienceVote {
	return entities.AudienceVote{
		VoteID:        m.ID,
		RoundIndex:    m.RoundIndex,
		ParticipantID: m.ParticipantID,
		VoterID:       m.VoterID,
		SubmittedAt:   m.SubmittedAt.UTC(),
	}
}

type activityModel struct {
	Seq         int64     `gorm:"column:seq;autoIncrement;uniqueIndex"`
	ID          string    `gorm:"column:id;primaryKey"`
	At          time.Time `gorm:"column:at"`
	Type        string    `gorm:"column:type"`
	PerformedBy string    `gorm:"column:performed_by"`
	Details     string    `gorm:"column:details"`
	Severity    string    `gorm:"column:severity"`
}

func (activityModel) TableName() string {
	return "contest_activity"
}

type outboxModel struct {
	Seq          int64      `gorm:"column:seq;autoIncrement;uniqueIndex"`
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "voting_outbox"
}

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	timestamp := value.UTC()
	return &timestamp
}
