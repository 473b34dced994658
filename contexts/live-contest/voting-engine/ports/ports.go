package ports

import (
	"context"
	"time"

	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	"voteverse/internal/shared/events"
)

// Clock allows deterministic testing of round expiry.
type Clock interface {
	Now() time.Time
}

// Timer is a cancellable one-shot callback.
type Timer interface {
	Stop() bool
}

// Scheduler arms expiry callbacks. Callbacks run on their own goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// LedgerStore is the append-only vote record. Append calls are atomic
// conditional inserts keyed by the uniqueness tuple and return
// ErrDuplicateVote when the key already exists.
type LedgerStore interface {
	AppendJudgeVote(ctx context.Context, vote entities.JudgeVote) error
	AppendAudienceVote(ctx context.Context, vote entities.AudienceVote) error
	// Snapshot returns every vote as of one consistent point in time.
	Snapshot(ctx context.Context) (entities.LedgerSnapshot, error)
	// VotesForRound lists votes in a stable ledger order; every reader sees
	// the same order for the same stored votes.
	VotesForRound(ctx context.Context, roundIndex int) (entities.LedgerSnapshot, error)
	VotesByParticipant(ctx context.Context, participantID string) (entities.LedgerSnapshot, error)
}

type RoundRepository interface {
	SaveRound(ctx context.Context, round entities.Round) error
	ListRounds(ctx context.Context, kind entities.RoundKind) ([]entities.Round, error)
}

type VoterRepository interface {
	GetVoter(ctx context.Context, voterID string) (entities.Voter, error)
	GetVoterByEmail(ctx context.Context, email string) (entities.Voter, bool, error)
	// CreateVoter fails with ErrConflict when the email is already registered.
	CreateVoter(ctx context.Context, voter entities.Voter) error
	UpdateVoter(ctx context.Context, voter entities.Voter) error
	// UpdateVoterIfNoVotes and DeleteVoterIfNoVotes check the ledger and
	// write the voter as one atomic step. They fail with ErrHasVotes once
	// any vote by the voter is stored.
	UpdateVoterIfNoVotes(ctx context.Context, voter entities.Voter) error
	DeleteVoterIfNoVotes(ctx context.Context, voterID string) error
	ListVoters(ctx context.Context) ([]entities.Voter, error)
}

type ParticipantRepository interface {
	GetParticipant(ctx context.Context, participantID string) (entities.Participant, error)
	SaveParticipant(ctx context.Context, participant entities.Participant) error
	ListParticipants(ctx context.Context) ([]entities.Participant, error)
}

// ActivityLog backs the admin system log.
type ActivityLog interface {
	AppendActivity(ctx context.Context, entry entities.ActivityEntry) error
	// ListActivity returns newest entries first.
	ListActivity(ctx context.Context, limit int) ([]entities.ActivityEntry, error)
}

// SnapshotArchive keeps leaderboards frozen at round close.
type SnapshotArchive interface {
	SaveRoundSnapshot(ctx context.Context, snapshot entities.RoundSnapshot) error
	GetRoundSnapshot(ctx context.Context, roundIndex int) (entities.RoundSnapshot, error)
	ListRoundSnapshots(ctx context.Context) ([]entities.RoundSnapshot, error)
}

// EventEnvelope reuses the shared event envelope.
type EventEnvelope = events.Envelope

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

// OutboxMessage is a row ready to relay from the module outbox.
type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

// OutboxRepository models worker-side outbox polling/acknowledgement.
type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}
