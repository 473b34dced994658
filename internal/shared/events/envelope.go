package events

import (
	"encoding/json"
	"time"
)

// Envelope is the shared event shape persisted to the outbox and carried on
// the bus. Keep it backward compatible; observers decode it directly.
type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

const (
	TopicJudgeVoteSubmitted    = "vote.judge_submitted"
	TopicAudienceVoteSubmitted = "vote.audience_submitted"
	TopicRoundOpened           = "round.opened"
	TopicRoundLocked           = "round.locked"
	TopicRoundUnlocked         = "round.unlocked"
	TopicRoundClosed           = "round.closed"
	TopicClashDetected         = "clash.detected"
	TopicLeaderboardUpdated    = "leaderboard.updated"
)

// BroadcastTopics is every topic forwarded to live observers.
var BroadcastTopics = []string{
	TopicJudgeVoteSubmitted,
	TopicAudienceVoteSubmitted,
	TopicRoundOpened,
	TopicRoundLocked,
	TopicRoundUnlocked,
	TopicRoundClosed,
	TopicClashDetected,
	TopicLeaderboardUpdated,
}
