package application

import (
	"context"
	"log/slog"

	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	"voteverse/contexts/live-contest/voting-engine/ports"
)

// ActivityRecorder writes system log entries. Failures are logged and
// swallowed: the activity log never vetoes the operation that produced it.
type ActivityRecorder struct {
	Log    ports.ActivityLog
	IDGen  ports.IDGenerator
	Clock  ports.Clock
	Logger *slog.Logger
}

func (r ActivityRecorder) Record(
	ctx context.Context,
	activityType entities.ActivityType,
	severity entities.Severity,
	performedBy string,
	details string,
) {
	if r.Log == nil {
		return
	}
	logger := ResolveLogger(r.Logger)
	entryID, err := r.IDGen.NewID(ctx)
	if err != nil {
		logger.Error("activity id generation failed",
			"event", "voting_activity_id_failed",
			"module", ModuleName,
			"layer", "application",
			"error", err.Error(),
		)
		return
	}
	entry := entities.ActivityEntry{
		EntryID:     entryID,
		At:          r.Clock.Now().UTC(),
		Type:        activityType,
		PerformedBy: performedBy,
		Details:     details,
		Severity:    severity,
	}
	if err := r.Log.AppendActivity(ctx, entry); err != nil {
		logger.Error("activity append failed",
			"event", "voting_activity_append_failed",
			"module", ModuleName,
			"layer", "application",
			"activity_type", string(activityType),
			"error", err.Error(),
		)
	}
}
