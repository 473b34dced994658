package ledger

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"voteverse/contexts/live-contest/voting-engine/adapters/manualclock"
	"voteverse/contexts/live-contest/voting-engine/adapters/memory"
	"voteverse/contexts/live-contest/voting-engine/adapters/systemclock"
	"voteverse/contexts/live-contest/voting-engine/application/rounds"
	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	domainerrors "voteverse/contexts/live-contest/voting-engine/domain/errors"
	"voteverse/internal/shared/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	clock    *manualclock.Clock
	scoring  *rounds.Controller
	audience *rounds.Controller
	ledger   Ledger
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	clock := manualclock.New(epoch)

	newTrack := func(kind entities.RoundKind) *rounds.Controller {
		controller, err := rounds.NewController(ctx, rounds.Dependencies{
			Config:    rounds.Config{Kind: kind, Duration: 2 * time.Minute, TotalRounds: 3},
			Rounds:    store,
			Clock:     clock,
			Scheduler: clock,
			IDGen:     systemclock.UUIDGenerator{},
		})
		require.NoError(t, err)
		t.Cleanup(controller.Stop)
		return controller
	}
	scoring := newTrack(entities.RoundKindScoring)
	audience := newTrack(entities.RoundKindAudience)

	voters := []entities.Voter{
		{VoterID: "judge-1", Email: "judge1@contest.test", Role: entities.RoleJudge, Verified: true, Active: true},
		{VoterID: "judge-2", Email: "judge2@contest.test", Role: entities.RoleJudge, Verified: true, Active: true},
		{VoterID: "leader-1", Email: "leader1@contest.test", Role: entities.RoleLeader, Verified: true, Active: true},
		{VoterID: "fan-1", Email: "fan1@contest.test", Role: entities.RoleAudience, Verified: true, Active: true},
		{VoterID: "admin-1", Email: "admin@contest.test", Role: entities.RoleAdmin, Verified: true, Active: true},
		{VoterID: "retired", Email: "retired@contest.test", Role: entities.RoleJudge, Verified: true, Active: false},
		{VoterID: "pending", Email: "pending@contest.test", Role: entities.RoleJudge, Verified: false, Active: true},
	}
	for _, voter := range voters {
		require.NoError(t, store.CreateVoter(ctx, voter))
	}
	for _, id := range []string{"p-a", "p-b", "p-c", "p-d"} {
		require.NoError(t, store.SaveParticipant(ctx, entities.Participant{ParticipantID: id, Name: id, CurrentRound: 1}))
	}

	return fixture{
		store:    store,
		clock:    clock,
		scoring:  scoring,
		audience: audience,
		ledger: Ledger{
			Scoring:        scoring,
			Audience:       audience,
			Store:          store,
			Voters:         store,
			Participants:   store,
			Clock:          clock,
			IDGen:          systemclock.UUIDGenerator{},
			Outbox:         store,
			Activity:       store,
			Granularity:    0.5,
			ClashThreshold: 2.0,
		},
	}
}

func (f fixture) openScoring(t *testing.T) {
	t.Helper()
	_, err := f.scoring.StartTimer(context.Background(), 2*time.Minute)
	require.NoError(t, err)
}

func (f fixture) openAudience(t *testing.T) {
	t.Helper()
	_, err := f.audience.OpenNext(context.Background(), 0)
	require.NoError(t, err)
}

func judgeVote(participantID, voterID string, score float64) JudgeVoteCommand {
	return JudgeVoteCommand{RoundIndex: 1, ParticipantID: participantID, VoterID: voterID, Score: score}
}

func TestSubmitJudgeVoteRecordsVote(t *testing.T) {
	f := newFixture(t)
	f.openScoring(t)
	ctx := context.Background()

	vote, err := f.ledger.SubmitJudgeVote(ctx, judgeVote("p-a", "judge-1", 8.5))
	require.NoError(t, err)
	require.NotEmpty(t, vote.VoteID)
	require.Equal(t, entities.RoleJudge, vote.VoterRole)
	require.Equal(t, epoch, vote.SubmittedAt)

	snapshot, err := f.ledger.VotesForRound(ctx, 1)
	require.NoError(t, err)
	require.Len(t, snapshot.JudgeVotes, 1)
	require.Equal(t, 8.5, snapshot.JudgeVotes[0].Score)

	pending, err := f.store.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, events.TopicJudgeVoteSubmitted, pending[len(pending)-1].EventType)

	activity, err := f.store.ListActivity(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, entities.ActivityVote, activity[0].Type)
	require.Equal(t, "judge1@contest.test", activity[0].PerformedBy)
}

func TestDuplicateJudgeVoteKeepsFirstScore(t *testing.T) {
	f := newFixture(t)
	f.openScoring(t)
	ctx := context.Background()

	_, err := f.ledger.SubmitJudgeVote(ctx, judgeVote("p-a", "judge-1", 7.0))
	require.NoError(t, err)
	_, err = f.ledger.SubmitJudgeVote(ctx, judgeVote("p-a", "judge-1", 9.5))
	require.ErrorIs(t, err, domainerrors.ErrDuplicateVote)

	snapshot, err := f.ledger.VotesByParticipant(ctx, "p-a")
	require.NoError(t, err)
	require.Len(t, snapshot.JudgeVotes, 1)
	require.Equal(t, 7.0, snapshot.JudgeVotes[0].Score)

	_, err = f.ledger.SubmitJudgeVote(ctx, judgeVote("p-b", "judge-1", 9.5))
	require.NoError(t, err)
}

func TestSubmitJudgeVoteValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ledger.SubmitJudgeVote(ctx, judgeVote("p-a", "judge-1", 8.0))
	require.ErrorIs(t, err, domainerrors.ErrRoundNotOpen)

	f.openScoring(t)
	cases := []struct {
		name string
		cmd  JudgeVoteCommand
		want error
	}{
		{name: "above range", cmd: judgeVote("p-a", "judge-1", 10.5), want: domainerrors.ErrInvalidScore},
		{name: "below range", cmd: judgeVote("p-a", "judge-1", -0.5), want: domainerrors.ErrInvalidScore},
		{name: "off step", cmd: judgeVote("p-a", "judge-1", 7.3), want: domainerrors.ErrInvalidScore},
		{name: "nan", cmd: judgeVote("p-a", "judge-1", math.NaN()), want: domainerrors.ErrInvalidScore},
		{name: "audience role", cmd: judgeVote("p-a", "fan-1", 8.0), want: domainerrors.ErrUnauthorizedRole},
		{name: "admin role", cmd: judgeVote("p-a", "admin-1", 8.0), want: domainerrors.ErrUnauthorizedRole},
		{name: "unknown voter", cmd: judgeVote("p-a", "ghost", 8.0), want: domainerrors.ErrVoterNotFound},
		{name: "inactive voter", cmd: judgeVote("p-a", "retired", 8.0), want: domainerrors.ErrVoterInactive},
		{name: "unverified voter", cmd: judgeVote("p-a", "pending", 8.0), want: domainerrors.ErrVoterNotVerified},
		{name: "unknown participant", cmd: judgeVote("p-z", "judge-1", 8.0), want: domainerrors.ErrParticipantNotFound},
		{name: "future round", cmd: JudgeVoteCommand{RoundIndex: 2, ParticipantID: "p-a", VoterID: "judge-1", Score: 8}, want: domainerrors.ErrRoundNotOpen},
		{name: "missing participant", cmd: judgeVote("", "judge-1", 8.0), want: domainerrors.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ledger.SubmitJudgeVote(ctx, tc.cmd)
			require.ErrorIs(t, err, tc.want)
		})
	}

	snapshot, err := f.ledger.Snapshot(ctx)
	require.NoError(t, err)
	require.Empty(t, snapshot.JudgeVotes)
}

func TestBoundaryScoresAccepted(t *testing.T) {
	f := newFixture(t)
	f.openScoring(t)
	ctx := context.Background()

	_, err := f.ledger.SubmitJudgeVote(ctx, judgeVote("p-a", "judge-1", 0))
	require.NoError(t, err)
	_, err = f.ledger.SubmitJudgeVote(ctx, judgeVote("p-b", "judge-1", 10))
	require.NoError(t, err)
}

func TestLockedRoundRefusesVotes(t *testing.T) {
	f := newFixture(t)
	f.openScoring(t)
	ctx := context.Background()

	_, err := f.scoring.LockVoting(ctx)
	require.NoError(t, err)
	_, err = f.ledger.SubmitJudgeVote(ctx, judgeVote("p-a", "judge-1", 8.0))
	require.ErrorIs(t, err, domainerrors.ErrRoundNotOpen)

	f.clock.Advance(time.Minute)
	_, err = f.scoring.UnlockVoting(ctx)
	require.NoError(t, err)
	_, err = f.ledger.SubmitJudgeVote(ctx, judgeVote("p-a", "judge-1", 8.0))
	require.NoError(t, err)
}

func TestExpiredClockRefusesVotes(t *testing.T) {
	f := newFixture(t)
	f.openScoring(t)

	f.clock.Advance(2 * time.Minute)
	_, err := f.ledger.SubmitJudgeVote(context.Background(), judgeVote("p-a", "judge-1", 8.0))
	require.ErrorIs(t, err, domainerrors.ErrRoundNotOpen)
}

func TestClashDetectedOnceWhenPairCrossesThreshold(t *testing.T) {
	f := newFixture(t)
	f.openScoring(t)
	ctx := context.Background()

	_, err := f.ledger.SubmitJudgeVote(ctx, judgeVote("p-a", "judge-1", 8.5))
	require.NoError(t, err)
	_, err = f.ledger.SubmitJudgeVote(ctx, judgeVote("p-a", "judge-2", 9.0))
	require.NoError(t, err)
	_, err = f.ledger.SubmitJudgeVote(ctx, judgeVote("p-a", "leader-1", 5.0))
	require.NoError(t, err)

	clashEvents := func() int {
		pending, err := f.store.ListPendingOutbox(ctx, 100)
		require.NoError(t, err)
		count := 0
		for _, message := range pending {
			if message.EventType == events.TopicClashDetected {
				count++
			}
		}
		return count
	}
	require.Equal(t, 1, clashEvents())

	activity, err := f.store.ListActivity(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, entities.ActivityClashDetected, activity[0].Type)
	require.Equal(t, entities.SeverityWarning, activity[0].Severity)

	_, err = f.ledger.SubmitJudgeVote(ctx, judgeVote("p-b", "judge-1", 6.0))
	require.NoError(t, err)
	_, err = f.ledger.SubmitJudgeVote(ctx, judgeVote("p-b", "leader-1", 7.0))
	require.NoError(t, err)
	require.Equal(t, 1, clashEvents())
}

func countTopic(t *testing.T, store *memory.Store, topic string) int {
	t.Helper()
	pending, err := store.ListPendingOutbox(context.Background(), 100)
	require.NoError(t, err)
	count := 0
	for _, message := range pending {
		if message.EventType == topic {
			count++
		}
	}
	return count
}

func TestClashAnnouncedOnceForVotesThatCrossTogether(t *testing.T) {
	f := newFixture(t)
	f.openScoring(t)
	ctx := context.Background()
	logger := slog.Default()

	_, err := f.ledger.SubmitJudgeVote(ctx, judgeVote("p-a", "judge-1", 7.0))
	require.NoError(t, err)

	// The leader vote is stored but its clash check has not run yet; on its
	// own it leaves the pair at a 2.0 delta.
	leaderVote := entities.JudgeVote{
		VoteID: "v-leader", RoundIndex: 1, ParticipantID: "p-a", VoterID: "leader-1",
		VoterRole: entities.RoleLeader, Score: 5.0, SubmittedAt: epoch,
	}
	require.NoError(t, f.store.AppendJudgeVote(ctx, leaderVote))

	_, err = f.ledger.SubmitJudgeVote(ctx, judgeVote("p-a", "judge-2", 8.0))
	require.NoError(t, err)
	require.Equal(t, 1, countTopic(t, f.store, events.TopicClashDetected))

	f.ledger.detectClash(ctx, leaderVote, logger)
	require.Equal(t, 1, countTopic(t, f.store, events.TopicClashDetected))

	clashEntries := 0
	activity, err := f.store.ListActivity(ctx, 100)
	require.NoError(t, err)
	for _, entry := range activity {
		if entry.Type == entities.ActivityClashDetected {
			clashEntries++
		}
	}
	require.Equal(t, 1, clashEntries)
}

func TestConcurrentCrossingVotesEmitOneClash(t *testing.T) {
	for attempt := 0; attempt < 20; attempt++ {
		f := newFixture(t)
		f.openScoring(t)
		ctx := context.Background()

		_, err := f.ledger.SubmitJudgeVote(ctx, judgeVote("p-a", "judge-1", 7.0))
		require.NoError(t, err)

		var wg sync.WaitGroup
		for _, cmd := range []JudgeVoteCommand{judgeVote("p-a", "leader-1", 5.0), judgeVote("p-a", "judge-2", 8.0)} {
			wg.Add(1)
			go func(cmd JudgeVoteCommand) {
				defer wg.Done()
				_, err := f.ledger.SubmitJudgeVote(ctx, cmd)
				assert.NoError(t, err)
			}(cmd)
		}
		wg.Wait()
		require.Equal(t, 1, countTopic(t, f.store, events.TopicClashDetected), "attempt %d", attempt)
	}
}

// deactivatingVoters flips a voter inactive right after its first lookup, as
// an admin deactivation landing mid-submission would.
type deactivatingVoters struct {
	*memory.Store
	voterID string
	once    sync.Once
}

func (v *deactivatingVoters) GetVoter(ctx context.Context, voterID string) (entities.Voter, error) {
	voter, err := v.Store.GetVoter(ctx, voterID)
	if err == nil && voterID == v.voterID {
		v.once.Do(func() {
			off := voter
			off.Active = false
			err = v.Store.UpdateVoter(ctx, off)
		})
	}
	return voter, err
}

func TestVoterDeactivatedMidSubmissionIsRefused(t *testing.T) {
	f := newFixture(t)
	f.openScoring(t)
	f.openAudience(t)
	ctx := context.Background()

	f.ledger.Voters = &deactivatingVoters{Store: f.store, voterID: "judge-1"}
	_, err := f.ledger.SubmitJudgeVote(ctx, judgeVote("p-a", "judge-1", 8.0))
	require.ErrorIs(t, err, domainerrors.ErrVoterInactive)

	f.ledger.Voters = &deactivatingVoters{Store: f.store, voterID: "fan-1"}
	_, err = f.ledger.SubmitAudienceVote(ctx, AudienceVoteCommand{RoundIndex: 1, ParticipantID: "p-a", VoterID: "fan-1"})
	require.ErrorIs(t, err, domainerrors.ErrVoterInactive)

	snapshot, err := f.store.Snapshot(ctx)
	require.NoError(t, err)
	require.Empty(t, snapshot.JudgeVotes)
	require.Empty(t, snapshot.AudienceVotes)
	require.Zero(t, countTopic(t, f.store, events.TopicJudgeVoteSubmitted))
}

func TestSubmitAudienceVoteOnePerRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cmd := AudienceVoteCommand{RoundIndex: 1, ParticipantID: "p-a", VoterID: "fan-1"}

	_, err := f.ledger.SubmitAudienceVote(ctx, cmd)
	require.ErrorIs(t, err, domainerrors.ErrRoundNotOpen)

	f.openAudience(t)
	vote, err := f.ledger.SubmitAudienceVote(ctx, cmd)
	require.NoError(t, err)
	require.Equal(t, "p-a", vote.ParticipantID)

	cmd.ParticipantID = "p-b"
	_, err = f.ledger.SubmitAudienceVote(ctx, cmd)
	require.ErrorIs(t, err, domainerrors.ErrDuplicateVote)

	_, err = f.ledger.SubmitAudienceVote(ctx, AudienceVoteCommand{RoundIndex: 1, ParticipantID: "p-a", VoterID: "judge-1"})
	require.ErrorIs(t, err, domainerrors.ErrUnauthorizedRole)

	f.openAudience(t)
	_, err = f.ledger.SubmitAudienceVote(ctx, AudienceVoteCommand{RoundIndex: 2, ParticipantID: "p-b", VoterID: "fan-1"})
	require.NoError(t, err)
}

func TestConcurrentIdenticalJudgeVotes(t *testing.T) {
	f := newFixture(t)
	f.openScoring(t)
	ctx := context.Background()

	const submitters = 32
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
		other      []error
	)
	start := make(chan struct{})
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.ledger.SubmitJudgeVote(ctx, judgeVote("p-a", "judge-1", 8.0))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domainerrors.ErrDuplicateVote):
				duplicates++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	require.Equal(t, 1, successes)
	require.Equal(t, submitters-1, duplicates)

	snapshot, err := f.ledger.VotesForRound(ctx, 1)
	require.NoError(t, err)
	require.Len(t, snapshot.JudgeVotes, 1)
}

func TestConcurrentAudienceBallots(t *testing.T) {
	f := newFixture(t)
	f.openAudience(t)
	ctx := context.Background()

	const submitters = 16
	var wg sync.WaitGroup
	results := make(chan error, submitters)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		participant := []string{"p-a", "p-b", "p-c", "p-d"}[i%4]
		go func() {
			defer wg.Done()
			_, err := f.ledger.SubmitAudienceVote(ctx, AudienceVoteCommand{RoundIndex: 1, ParticipantID: participant, VoterID: "fan-1"})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		require.ErrorIs(t, err, domainerrors.ErrDuplicateVote)
	}
	require.Equal(t, 1, successes)
}

func TestLockRacingSubmissionsNeverLosesAcceptedVotes(t *testing.T) {
	f := newFixture(t)
	f.openScoring(t)
	ctx := context.Background()

	participants := []string{"p-a", "p-b", "p-c", "p-d"}
	var wg sync.WaitGroup
	accepted := make(chan string, len(participants))
	for _, participant := range participants {
		wg.Add(1)
		go func(participant string) {
			defer wg.Done()
			if _, err := f.ledger.SubmitJudgeVote(ctx, judgeVote(participant, "judge-2", 6.5)); err == nil {
				accepted <- participant
			} else {
				assert.ErrorIs(t, err, domainerrors.ErrRoundNotOpen)
			}
		}(participant)
	}
	_, err := f.scoring.LockVoting(ctx)
	require.NoError(t, err)
	wg.Wait()
	close(accepted)

	count := 0
	for range accepted {
		count++
	}
	snapshot, err := f.ledger.VotesForRound(ctx, 1)
	require.NoError(t, err)
	require.Len(t, snapshot.JudgeVotes, count)
}

func TestVotesByParticipantUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.VotesByParticipant(context.Background(), "p-z")
	require.ErrorIs(t, err, domainerrors.ErrParticipantNotFound)
}
