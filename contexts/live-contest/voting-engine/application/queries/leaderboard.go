package queries

import (
	"context"
	"log/slog"
	"time"

	application "voteverse/contexts/live-contest/voting-engine/application"
	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	"voteverse/contexts/live-contest/voting-engine/domain/services"
	"voteverse/contexts/live-contest/voting-engine/ports"
)

// Leaderboard publishes ranked snapshots. Every call derives from a single
// ledger snapshot, so a board never mixes state from before and after a
// concurrent write.
type Leaderboard struct {
	Store          ports.LedgerStore
	Participants   ports.ParticipantRepository
	Rounds         RoundSource
	Archive        ports.SnapshotArchive
	Clock          ports.Clock
	ClashThreshold float64
	Logger         *slog.Logger
}

// Snapshot builds the current board. Live adds the in-progress round's
// scores alongside, never inside, the totals.
func (q Leaderboard) Snapshot(ctx context.Context, live bool) (entities.Leaderboard, error) {
	return q.build(ctx, q.Rounds.Rounds(), live)
}

// Freeze stores the board as it stood when closed was committed. It has the
// rounds.CloseHook shape and is registered on the scoring track.
func (q Leaderboard) Freeze(ctx context.Context, closed entities.Round, history []entities.Round) {
	logger := application.ResolveLogger(q.Logger)
	board, err := q.build(ctx, history, false)
	if err != nil {
		logger.Error("leaderboard freeze failed",
			"event", "voting_leaderboard_freeze_failed",
			"module", application.ModuleName,
			"layer", "application",
			"round_index", closed.Index,
			"error", err.Error(),
		)
		return
	}
	frozenAt := q.now()
	if closed.ClosedAt != nil {
		frozenAt = closed.ClosedAt.UTC()
	}
	snapshot := entities.RoundSnapshot{
		RoundIndex:  closed.Index,
		FrozenAt:    frozenAt,
		Leaderboard: board,
	}
	if err := q.Archive.SaveRoundSnapshot(ctx, snapshot); err != nil {
		logger.Error("leaderboard snapshot archive failed",
			"event", "voting_leaderboard_archive_failed",
			"module", application.ModuleName,
			"layer", "application",
			"round_index", closed.Index,
			"error", err.Error(),
		)
		return
	}
	logger.Info("leaderboard frozen",
		"event", "voting_leaderboard_frozen",
		"module", application.ModuleName,
		"layer", "application",
		"round_index", closed.Index,
		"final", board.Final,
		"entries", len(board.Entries),
	)
}

func (q Leaderboard) History(ctx context.Context, roundIndex int) (entities.RoundSnapshot, error) {
	return q.Archive.GetRoundSnapshot(ctx, roundIndex)
}

func (q Leaderboard) ListHistory(ctx context.Context) ([]entities.RoundSnapshot, error) {
	return q.Archive.ListRoundSnapshots(ctx)
}

func (q Leaderboard) build(ctx context.Context, rounds []entities.Round, live bool) (entities.Leaderboard, error) {
	participants, err := q.Participants.ListParticipants(ctx)
	if err != nil {
		return entities.Leaderboard{}, err
	}
	votes, err := q.Store.Snapshot(ctx)
	if err != nil {
		return entities.Leaderboard{}, err
	}
	threshold := q.ClashThreshold
	if threshold <= 0 {
		threshold = services.DefaultClashThreshold
	}
	return services.BuildLeaderboard(services.LeaderboardInput{
		Participants:   participants,
		Votes:          votes,
		ScoringRounds:  rounds,
		TotalRounds:    q.Rounds.TotalRounds(),
		ClashThreshold: threshold,
		Live:           live,
		Now:            q.now(),
	}), nil
}

func (q Leaderboard) now() time.Time {
	if q.Clock == nil {
		return time.Now().UTC()
	}
	return q.Clock.Now().UTC()
}
