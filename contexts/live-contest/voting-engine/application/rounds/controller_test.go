package rounds

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voteverse/contexts/live-contest/voting-engine/adapters/manualclock"
	"voteverse/contexts/live-contest/voting-engine/adapters/memory"
	"voteverse/contexts/live-contest/voting-engine/adapters/systemclock"
	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	domainerrors "voteverse/contexts/live-contest/voting-engine/domain/errors"
	"voteverse/contexts/live-contest/voting-engine/ports"
	"voteverse/internal/shared/events"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

const roundDuration = 120 * time.Second

func newController(t *testing.T, store *memory.Store, clock *manualclock.Clock, totalRounds int) *Controller {
	t.Helper()
	controller, err := NewController(context.Background(), Dependencies{
		Config: Config{
			Kind:        entities.RoundKindScoring,
			Duration:    roundDuration,
			TotalRounds: totalRounds,
		},
		Rounds:    store,
		Clock:     clock,
		Scheduler: clock,
		IDGen:     systemclock.UUIDGenerator{},
		Outbox:    store,
		Activity:  store,
	})
	require.NoError(t, err)
	t.Cleanup(controller.Stop)
	return controller
}

func TestNewControllerValidatesConfig(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)

	_, err := NewController(context.Background(), Dependencies{
		Config: Config{Kind: "bonus", Duration: roundDuration},
		Rounds: store, Clock: clock, Scheduler: clock,
	})
	require.ErrorIs(t, err, domainerrors.ErrInvalidInput)

	_, err = NewController(context.Background(), Dependencies{
		Config: Config{Kind: entities.RoundKindScoring},
		Rounds: store, Clock: clock, Scheduler: clock,
	})
	require.ErrorIs(t, err, domainerrors.ErrInvalidInput)
}

func TestStartTimerOpensFirstRound(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	controller := newController(t, store, clock, 3)

	_, ok := controller.CurrentRound()
	require.False(t, ok)

	round, err := controller.StartTimer(context.Background(), roundDuration)
	require.NoError(t, err)
	require.Equal(t, 1, round.Index)
	require.Equal(t, entities.RoundStateOpen, round.State)
	require.Equal(t, roundDuration, controller.Remaining())

	clock.Advance(45 * time.Second)
	require.Equal(t, 75*time.Second, controller.Remaining())

	persisted, err := store.ListRounds(context.Background(), entities.RoundKindScoring)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
}

func TestLockVotingTwiceIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	controller := newController(t, store, clock, 3)
	ctx := context.Background()

	_, err := controller.LockVoting(ctx)
	require.ErrorIs(t, err, domainerrors.ErrInvalidTransition)

	_, err = controller.StartTimer(ctx, roundDuration)
	require.NoError(t, err)

	first, err := controller.LockVoting(ctx)
	require.NoError(t, err)
	require.Equal(t, entities.RoundStateLocked, first.State)

	clock.Advance(5 * time.Second)
	second, err := controller.LockVoting(ctx)
	require.NoError(t, err)
	require.Equal(t, entities.RoundStateLocked, second.State)
	require.Equal(t, first.LockedAt, second.LockedAt)
}

func TestForceAdvanceClosesOpenRoundWithOverride(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	controller := newController(t, store, clock, 3)
	ctx := context.Background()

	_, err := controller.StartTimer(ctx, roundDuration)
	require.NoError(t, err)
	clock.Advance(30 * time.Second)

	_, err = controller.ForceAdvance(ctx, false)
	require.ErrorIs(t, err, domainerrors.ErrInvalidTransition)
	current, _ := controller.CurrentRound()
	require.Equal(t, entities.RoundStateOpen, current.State)

	result, err := controller.ForceAdvance(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 1, result.Closed.Index)
	require.Equal(t, entities.RoundStateClosed, result.Closed.State)
	require.True(t, result.HasNext)
	require.Equal(t, 2, result.Opened.Index)
	require.Equal(t, entities.RoundStateOpen, result.Opened.State)
	require.Equal(t, roundDuration, result.Opened.Duration)
	require.Equal(t, roundDuration, controller.Remaining())

	history := controller.Rounds()
	require.Len(t, history, 2)
	require.Equal(t, entities.RoundStateClosed, history[0].State)
}

func TestForceAdvanceLockedRoundWithoutOverride(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	controller := newController(t, store, clock, 3)
	ctx := context.Background()

	_, err := controller.StartTimer(ctx, roundDuration)
	require.NoError(t, err)
	_, err = controller.LockVoting(ctx)
	require.NoError(t, err)

	result, err := controller.ForceAdvance(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 2, result.Opened.Index)
}

func TestClockExpiryLocksRound(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	controller := newController(t, store, clock, 3)
	ctx := context.Background()

	_, err := controller.StartTimer(ctx, roundDuration)
	require.NoError(t, err)

	clock.Advance(roundDuration - time.Second)
	current, _ := controller.CurrentRound()
	require.Equal(t, entities.RoundStateOpen, current.State)

	clock.Advance(time.Second)
	current, _ = controller.CurrentRound()
	require.Equal(t, entities.RoundStateLocked, current.State)
	require.Zero(t, controller.Remaining())

	err = controller.Admit(ctx, 1, func(entities.Round) error { return nil })
	require.ErrorIs(t, err, domainerrors.ErrRoundNotOpen)
}

func TestAdmitRefusesAtDeadlineBeforeTimerFires(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	controller := newController(t, store, clock, 3)
	ctx := context.Background()

	_, err := controller.StartTimer(ctx, roundDuration)
	require.NoError(t, err)

	clock.Set(epoch.Add(roundDuration))
	err = controller.Admit(ctx, 1, func(entities.Round) error {
		t.Fatal("write must not run after the deadline")
		return nil
	})
	require.ErrorIs(t, err, domainerrors.ErrRoundNotOpen)
}

func TestAdmitRejectsOtherRounds(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	controller := newController(t, store, clock, 3)
	ctx := context.Background()

	err := controller.Admit(ctx, 1, func(entities.Round) error { return nil })
	require.ErrorIs(t, err, domainerrors.ErrRoundNotOpen)

	_, err = controller.StartTimer(ctx, roundDuration)
	require.NoError(t, err)
	err = controller.Admit(ctx, 2, func(entities.Round) error { return nil })
	require.ErrorIs(t, err, domainerrors.ErrRoundNotOpen)

	var admitted entities.Round
	err = controller.Admit(ctx, 1, func(round entities.Round) error {
		admitted = round
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, admitted.Index)
}

func TestUnlockRestoresRemainingTime(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	controller := newController(t, store, clock, 3)
	ctx := context.Background()

	_, err := controller.StartTimer(ctx, roundDuration)
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	_, err = controller.LockVoting(ctx)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	round, err := controller.UnlockVoting(ctx)
	require.NoError(t, err)
	require.Equal(t, entities.RoundStateOpen, round.State)
	require.Nil(t, round.LockedAt)
	require.Equal(t, 90*time.Second, controller.Remaining())

	clock.Advance(90 * time.Second)
	current, _ := controller.CurrentRound()
	require.Equal(t, entities.RoundStateLocked, current.State)
}

func TestUnlockAfterExpiryRestartsFullDuration(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	controller := newController(t, store, clock, 3)
	ctx := context.Background()

	_, err := controller.StartTimer(ctx, roundDuration)
	require.NoError(t, err)
	clock.Advance(roundDuration + time.Second)

	round, err := controller.UnlockVoting(ctx)
	require.NoError(t, err)
	require.Equal(t, entities.RoundStateOpen, round.State)
	require.Equal(t, roundDuration, controller.Remaining())
}

func TestStartTimerRestartFencesOldTimer(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	controller := newController(t, store, clock, 3)
	ctx := context.Background()

	_, err := controller.StartTimer(ctx, roundDuration)
	require.NoError(t, err)
	clock.Advance(100 * time.Second)

	restarted, err := controller.StartTimer(ctx, roundDuration)
	require.NoError(t, err)
	require.Equal(t, 1, restarted.Index)
	require.Equal(t, 1, clock.Pending())

	clock.Advance(30 * time.Second)
	current, _ := controller.CurrentRound()
	require.Equal(t, entities.RoundStateOpen, current.State)
	require.Equal(t, 90*time.Second, controller.Remaining())
}

func TestStartTimerOnLockedRoundFails(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	controller := newController(t, store, clock, 3)
	ctx := context.Background()

	_, err := controller.StartTimer(ctx, roundDuration)
	require.NoError(t, err)
	_, err = controller.LockVoting(ctx)
	require.NoError(t, err)

	_, err = controller.StartTimer(ctx, roundDuration)
	require.ErrorIs(t, err, domainerrors.ErrInvalidTransition)

	_, err = controller.StartTimer(ctx, 0)
	require.ErrorIs(t, err, domainerrors.ErrInvalidInput)
}

func TestAdvancingPastFinalRoundFinishesTrack(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	controller := newController(t, store, clock, 2)
	ctx := context.Background()

	_, err := controller.StartTimer(ctx, roundDuration)
	require.NoError(t, err)
	_, err = controller.ForceAdvance(ctx, true)
	require.NoError(t, err)
	require.False(t, controller.Finished())

	result, err := controller.ForceAdvance(ctx, true)
	require.NoError(t, err)
	require.False(t, result.HasNext)
	require.Equal(t, 2, result.Closed.Index)
	require.True(t, controller.Finished())
	require.Zero(t, clock.Pending())

	_, err = controller.ForceAdvance(ctx, true)
	require.ErrorIs(t, err, domainerrors.ErrInvalidTransition)
	_, err = controller.StartTimer(ctx, roundDuration)
	require.ErrorIs(t, err, domainerrors.ErrInvalidTransition)
	_, err = controller.UnlockVoting(ctx)
	require.ErrorIs(t, err, domainerrors.ErrInvalidTransition)
}

func TestOpenNextSupersedesRoundInProgress(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	controller := newController(t, store, clock, 0)
	ctx := context.Background()

	first, err := controller.OpenNext(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, first.Index)
	require.Equal(t, roundDuration, first.Duration)

	second, err := controller.OpenNext(ctx, 45*time.Second)
	require.NoError(t, err)
	require.Equal(t, 2, second.Index)
	require.Equal(t, 45*time.Second, controller.Remaining())

	history := controller.Rounds()
	require.Equal(t, entities.RoundStateClosed, history[0].State)

	closed, err := controller.Close(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, closed.Index)
	_, err = controller.Close(ctx)
	require.ErrorIs(t, err, domainerrors.ErrInvalidTransition)
}

func TestCloseHooksRunOutsideTheLock(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	controller := newController(t, store, clock, 3)
	ctx := context.Background()

	var (
		closedIndex int
		historyLen  int
		observed    entities.Round
	)
	controller.OnClose(func(_ context.Context, closed entities.Round, history []entities.Round) {
		closedIndex = closed.Index
		historyLen = len(history)
		observed, _ = controller.CurrentRound()
	})

	_, err := controller.StartTimer(ctx, roundDuration)
	require.NoError(t, err)
	_, err = controller.ForceAdvance(ctx, true)
	require.NoError(t, err)

	require.Equal(t, 1, closedIndex)
	require.Equal(t, 2, historyLen)
	require.Equal(t, 2, observed.Index)
}

func TestTransitionWaitsForInFlightAdmit(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	controller := newController(t, store, clock, 3)
	ctx := context.Background()

	_, err := controller.StartTimer(ctx, roundDuration)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	admitted := make(chan error, 1)
	go func() {
		admitted <- controller.Admit(ctx, 1, func(entities.Round) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	locked := make(chan struct{})
	go func() {
		_, _ = controller.LockVoting(ctx)
		close(locked)
	}()

	select {
	case <-locked:
		t.Fatal("lock completed while a write was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-admitted)
	<-locked

	err = controller.Admit(ctx, 1, func(entities.Round) error { return nil })
	require.ErrorIs(t, err, domainerrors.ErrRoundNotOpen)
}

func TestRestoreRearmsPersistedOpenRound(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	ctx := context.Background()
	require.NoError(t, store.SaveRound(ctx, entities.Round{
		Kind:      entities.RoundKindScoring,
		Index:     1,
		State:     entities.RoundStateOpen,
		StartedAt: epoch.Add(-20 * time.Second),
		Duration:  roundDuration,
	}))

	controller := newController(t, store, clock, 3)
	require.Equal(t, 100*time.Second, controller.Remaining())

	clock.Advance(100 * time.Second)
	current, _ := controller.CurrentRound()
	require.Equal(t, entities.RoundStateLocked, current.State)
}

func TestRestoreLocksRoundExpiredWhileOffline(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	ctx := context.Background()
	require.NoError(t, store.SaveRound(ctx, entities.Round{
		Kind:      entities.RoundKindScoring,
		Index:     2,
		State:     entities.RoundStateOpen,
		StartedAt: epoch.Add(-10 * time.Minute),
		Duration:  roundDuration,
	}))

	controller := newController(t, store, clock, 3)
	current, ok := controller.CurrentRound()
	require.True(t, ok)
	require.Equal(t, 2, current.Index)
	require.Equal(t, entities.RoundStateLocked, current.State)
}

type capturedTimer struct{}

func (capturedTimer) Stop() bool { return true }

type capturingScheduler struct {
	mu        sync.Mutex
	callbacks []func()
}

func (s *capturingScheduler) AfterFunc(_ time.Duration, fn func()) ports.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, fn)
	return capturedTimer{}
}

func (s *capturingScheduler) last() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callbacks[len(s.callbacks)-1]
}

func (s *capturingScheduler) armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.callbacks)
}

func TestEarlyTimerFireRearmsInsteadOfLocking(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	scheduler := &capturingScheduler{}
	controller, err := NewController(context.Background(), Dependencies{
		Config:    Config{Kind: entities.RoundKindScoring, Duration: roundDuration},
		Rounds:    store,
		Clock:     clock,
		Scheduler: scheduler,
		IDGen:     systemclock.UUIDGenerator{},
	})
	require.NoError(t, err)

	_, err = controller.StartTimer(context.Background(), roundDuration)
	require.NoError(t, err)
	require.Equal(t, 1, scheduler.armed())

	clock.Set(epoch.Add(roundDuration - time.Second))
	scheduler.last()()
	current, _ := controller.CurrentRound()
	require.Equal(t, entities.RoundStateOpen, current.State)
	require.Equal(t, 2, scheduler.armed())

	clock.Set(epoch.Add(roundDuration))
	scheduler.last()()
	current, _ = controller.CurrentRound()
	require.Equal(t, entities.RoundStateLocked, current.State)
}

func TestTransitionsEmitOutboxEvents(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	controller := newController(t, store, clock, 3)
	ctx := context.Background()

	_, err := controller.StartTimer(ctx, roundDuration)
	require.NoError(t, err)
	_, err = controller.LockVoting(ctx)
	require.NoError(t, err)
	_, err = controller.UnlockVoting(ctx)
	require.NoError(t, err)
	_, err = controller.ForceAdvance(ctx, true)
	require.NoError(t, err)

	pending, err := store.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	types := make([]string, 0, len(pending))
	for _, message := range pending {
		types = append(types, message.EventType)
	}
	require.Equal(t, []string{
		events.TopicRoundOpened,
		events.TopicRoundLocked,
		events.TopicRoundUnlocked,
		events.TopicRoundClosed,
		events.TopicRoundOpened,
	}, types)

	activity, err := store.ListActivity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, activity, 5)
	require.Equal(t, entities.ActivityRoundTransition, activity[0].Type)
}

type failingRounds struct {
	*memory.Store
}

func (failingRounds) SaveRound(context.Context, entities.Round) error {
	return errors.New("disk full")
}

func TestFailedSaveLeavesTrackUntouched(t *testing.T) {
	store := memory.NewStore()
	clock := manualclock.New(epoch)
	controller, err := NewController(context.Background(), Dependencies{
		Config:    Config{Kind: entities.RoundKindScoring, Duration: roundDuration},
		Rounds:    failingRounds{Store: store},
		Clock:     clock,
		Scheduler: clock,
	})
	require.NoError(t, err)

	_, err = controller.StartTimer(context.Background(), roundDuration)
	require.Error(t, err)
	_, ok := controller.CurrentRound()
	require.False(t, ok)
	require.Zero(t, clock.Pending())
}
