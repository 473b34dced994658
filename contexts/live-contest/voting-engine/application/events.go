package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"voteverse/contexts/live-contest/voting-engine/ports"
)

const SourceService = "voting-engine"

// NewEnvelope builds an outbox envelope. Events are partitioned by the
// value at partitionKeyPath so round-scoped consumers see a stable order.
func NewEnvelope(
	eventID string,
	eventType string,
	partitionKeyPath string,
	partitionKey string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    SourceService,
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: partitionKeyPath,
		PartitionKey:     partitionKey,
		Data:             payload,
	}, nil
}

// EventEmitter appends domain events to the module outbox. A nil Outbox
// turns Emit into a no-op.
type EventEmitter struct {
	Outbox ports.OutboxWriter
	IDGen  ports.IDGenerator
	Clock  ports.Clock
	Logger *slog.Logger
}

func (e EventEmitter) Emit(
	ctx context.Context,
	eventType string,
	partitionKeyPath string,
	partitionKey string,
	data map[string]any,
) error {
	if e.Outbox == nil {
		return nil
	}
	logger := ResolveLogger(e.Logger)
	eventID, err := e.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	envelope, err := NewEnvelope(eventID, eventType, partitionKeyPath, partitionKey, e.Clock.Now(), data)
	if err != nil {
		return err
	}
	if err := e.Outbox.AppendOutbox(ctx, envelope); err != nil {
		logger.Error("voting outbox append failed",
			"event", "voting_outbox_append_failed",
			"module", ModuleName,
			"layer", "application",
			"event_type", strings.TrimSpace(eventType),
			"event_id", eventID,
			"error", err.Error(),
		)
		return err
	}
	return nil
}
