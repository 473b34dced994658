package workers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	application "voteverse/contexts/live-contest/voting-engine/application"
	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	"voteverse/contexts/live-contest/voting-engine/ports"
	"voteverse/internal/shared/events"
)

type LeaderboardSource interface {
	Snapshot(ctx context.Context, live bool) (entities.Leaderboard, error)
}

// LeaderboardBroadcaster publishes the live leaderboard on its own cadence.
// It reads through the query side and never holds the round gate. A board is
// only published when its content differs from the last one sent.
type LeaderboardBroadcaster struct {
	Leaderboard LeaderboardSource
	Publisher   ports.EventPublisher
	IDGen       ports.IDGenerator
	Clock       ports.Clock
	Logger      *slog.Logger

	mu       sync.Mutex
	lastHash string
}

// RunOnce reports whether a new board was published.
func (b *LeaderboardBroadcaster) RunOnce(ctx context.Context) (bool, error) {
	logger := application.ResolveLogger(b.Logger)
	board, err := b.Leaderboard.Snapshot(ctx, true)
	if err != nil {
		logger.Error("leaderboard snapshot failed",
			"event", "voting_broadcast_snapshot_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"error", err.Error(),
		)
		return false, err
	}

	payload := newLeaderboardPayload(board)
	content, err := json.Marshal(payload.content())
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	b.mu.Lock()
	defer b.mu.Unlock()
	if hash == b.lastHash {
		return false, nil
	}

	eventID, err := b.IDGen.NewID(ctx)
	if err != nil {
		return false, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}
	envelope := ports.EventEnvelope{
		EventID:          eventID,
		EventType:        events.TopicLeaderboardUpdated,
		OccurredAt:       b.Clock.Now().UTC(),
		SourceService:    application.SourceService,
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "current_round",
		PartitionKey:     strconv.Itoa(board.CurrentRound),
		Data:             data,
	}
	if err := b.Publisher.Publish(ctx, events.TopicLeaderboardUpdated, envelope); err != nil {
		logger.Error("leaderboard publish failed",
			"event", "voting_broadcast_publish_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"error", err.Error(),
		)
		return false, err
	}
	b.lastHash = hash
	logger.Debug("leaderboard broadcast",
		"event", "voting_broadcast_published",
		"module", application.ModuleName,
		"layer", "worker",
		"current_round", board.CurrentRound,
		"entries", len(board.Entries),
	)
	return true, nil
}

// Run ticks RunOnce until ctx is cancelled. Cycle errors are logged and the
// loop keeps going.
func (b *LeaderboardBroadcaster) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_, _ = b.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
