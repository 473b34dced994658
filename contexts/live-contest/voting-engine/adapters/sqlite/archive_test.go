package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	domainerrors "voteverse/contexts/live-contest/voting-engine/domain/errors"
)

func openArchive(t *testing.T, path string) *Archive {
	t.Helper()
	archive, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, archive.Close())
	})
	return archive
}

func frozenBoard(roundIndex int, winner string, total float64) entities.RoundSnapshot {
	frozenAt := time.Date(2026, 3, 1, 20, roundIndex, 0, 0, time.UTC)
	return entities.RoundSnapshot{
		RoundIndex: roundIndex,
		FrozenAt:   frozenAt,
		Leaderboard: entities.Leaderboard{
			GeneratedAt:  frozenAt,
			CurrentRound: roundIndex,
			TotalRounds:  3,
			Entries: []entities.LeaderboardEntry{
				{ParticipantID: winner, Name: "Lead", TotalScore: total, Rank: 1},
			},
		},
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestSaveAndGetRoundSnapshot(t *testing.T) {
	archive := openArchive(t, ":memory:")
	ctx := context.Background()

	require.NoError(t, archive.SaveRoundSnapshot(ctx, frozenBoard(1, "p-1", 8.5)))

	got, err := archive.GetRoundSnapshot(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, got.RoundIndex)
	require.True(t, got.FrozenAt.Equal(time.Date(2026, 3, 1, 20, 1, 0, 0, time.UTC)))
	require.Len(t, got.Leaderboard.Entries, 1)
	require.Equal(t, "p-1", got.Leaderboard.Entries[0].ParticipantID)
	require.InDelta(t, 8.5, got.Leaderboard.Entries[0].TotalScore, 1e-9)
}

func TestSnapshotsAreImmutable(t *testing.T) {
	archive := openArchive(t, ":memory:")
	ctx := context.Background()

	require.NoError(t, archive.SaveRoundSnapshot(ctx, frozenBoard(2, "p-1", 10)))
	require.NoError(t, archive.SaveRoundSnapshot(ctx, frozenBoard(2, "p-9", 1)))

	got, err := archive.GetRoundSnapshot(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "p-1", got.Leaderboard.Entries[0].ParticipantID)
}

func TestGetMissingSnapshot(t *testing.T) {
	archive := openArchive(t, ":memory:")
	_, err := archive.GetRoundSnapshot(context.Background(), 7)
	require.ErrorIs(t, err, domainerrors.ErrSnapshotNotFound)
}

func TestListRoundSnapshotsOrdersByRound(t *testing.T) {
	archive := openArchive(t, filepath.Join(t.TempDir(), "snapshots.db"))
	ctx := context.Background()

	for _, index := range []int{3, 1, 2} {
		require.NoError(t, archive.SaveRoundSnapshot(ctx, frozenBoard(index, "p-1", float64(index))))
	}
	items, err := archive.ListRoundSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, item := range items {
		require.Equal(t, i+1, item.RoundIndex)
	}
}
