package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voteverse/contexts/live-contest/voting-engine/domain/entities"
)

func closedRound(index int) entities.Round {
	return entities.Round{Kind: entities.RoundKindScoring, Index: index, State: entities.RoundStateClosed}
}

func TestRankEntriesCompetitionRanking(t *testing.T) {
	early := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Minute)
	entries := []entities.LeaderboardEntry{
		{ParticipantID: "d", TotalScore: 12},
		{ParticipantID: "a", TotalScore: 17, AverageScore: 8.5, FirstVoteAt: &late},
		{ParticipantID: "b", TotalScore: 17, AverageScore: 8.5, FirstVoteAt: &early},
		{ParticipantID: "c", TotalScore: 17, AverageScore: 9},
		{ParticipantID: "e", TotalScore: 3},
	}
	RankEntries(entries, true)

	order := make([]string, 0, len(entries))
	ranks := make([]int, 0, len(entries))
	for _, entry := range entries {
		order = append(order, entry.ParticipantID)
		ranks = append(ranks, entry.Rank)
	}
	require.Equal(t, []string{"c", "b", "a", "d", "e"}, order)
	require.Equal(t, []int{1, 1, 1, 4, 5}, ranks)
	require.True(t, entries[0].IsWinner)
	require.True(t, entries[2].IsWinner)
	require.False(t, entries[3].IsWinner)
}

func TestRankEntriesNoWinnerBeforeFinal(t *testing.T) {
	entries := []entities.LeaderboardEntry{{ParticipantID: "a", TotalScore: 1}}
	RankEntries(entries, false)
	require.Equal(t, 1, entries[0].Rank)
	require.False(t, entries[0].IsWinner)
}

func TestBuildLeaderboardExcludesLiveRoundFromTotals(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := LeaderboardInput{
		Participants: []entities.Participant{
			{ParticipantID: "p-1", Name: "John"},
			{ParticipantID: "p-2", Name: "Jane"},
		},
		Votes: entities.LedgerSnapshot{
			JudgeVotes: []entities.JudgeVote{
				{RoundIndex: 1, ParticipantID: "p-1", VoterID: "j1", VoterRole: entities.RoleJudge, Score: 8, SubmittedAt: at},
				{RoundIndex: 1, ParticipantID: "p-1", VoterID: "j2", VoterRole: entities.RoleJudge, Score: 9, SubmittedAt: at},
				{RoundIndex: 1, ParticipantID: "p-2", VoterID: "j1", VoterRole: entities.RoleJudge, Score: 7, SubmittedAt: at},
				{RoundIndex: 2, ParticipantID: "p-2", VoterID: "j1", VoterRole: entities.RoleJudge, Score: 10, SubmittedAt: at},
			},
		},
		ScoringRounds: []entities.Round{
			closedRound(1),
			{Kind: entities.RoundKindScoring, Index: 2, State: entities.RoundStateOpen},
		},
		TotalRounds:    3,
		ClashThreshold: DefaultClashThreshold,
		Live:           true,
		Now:            at,
	}
	board := BuildLeaderboard(in)

	require.Equal(t, 2, board.CurrentRound)
	require.False(t, board.Final)
	require.Len(t, board.Entries, 2)
	require.Equal(t, "p-1", board.Entries[0].ParticipantID)
	require.InDelta(t, 8.5, board.Entries[0].TotalScore, 1e-9)
	require.InDelta(t, 7.0, board.Entries[1].TotalScore, 1e-9)
	require.NotNil(t, board.Entries[1].LiveRoundScore)
	require.True(t, board.Entries[1].LiveRoundScore.HasScore)
	require.InDelta(t, 10.0, board.Entries[1].LiveRoundScore.Score, 1e-9)
	require.False(t, board.Entries[0].IsWinner)
}

func TestBuildLeaderboardTotalsGrowAsRoundsClose(t *testing.T) {
	votes := entities.LedgerSnapshot{JudgeVotes: []entities.JudgeVote{
		{RoundIndex: 1, ParticipantID: "p-1", VoterRole: entities.RoleJudge, Score: 6},
		{RoundIndex: 2, ParticipantID: "p-1", VoterRole: entities.RoleJudge, Score: 4},
	}}
	participants := []entities.Participant{{ParticipantID: "p-1"}}

	var previous float64
	rounds := []entities.Round{}
	for index := 1; index <= 2; index++ {
		rounds = append(rounds, closedRound(index))
		board := BuildLeaderboard(LeaderboardInput{
			Participants:  participants,
			Votes:         votes,
			ScoringRounds: rounds,
			TotalRounds:   2,
		})
		total := board.Entries[0].TotalScore
		require.GreaterOrEqual(t, total, previous)
		previous = total
	}
	require.InDelta(t, 10.0, previous, 1e-9)

	final := BuildLeaderboard(LeaderboardInput{
		Participants:  participants,
		Votes:         votes,
		ScoringRounds: rounds,
		TotalRounds:   2,
	})
	require.True(t, final.Final)
	require.True(t, final.Entries[0].IsWinner)
	require.InDelta(t, 5.0, final.Entries[0].AverageScore, 1e-9)
}
