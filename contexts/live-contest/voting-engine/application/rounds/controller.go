package rounds

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	application "voteverse/contexts/live-contest/voting-engine/application"
	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	domainerrors "voteverse/contexts/live-contest/voting-engine/domain/errors"
	"voteverse/contexts/live-contest/voting-engine/ports"
	"voteverse/internal/shared/events"
)

// Config fixes the track a controller drives. TotalRounds <= 0 means the
// track never finishes on its own.
type Config struct {
	Kind        entities.RoundKind
	Duration    time.Duration
	TotalRounds int
}

type Dependencies struct {
	Config
	Rounds    ports.RoundRepository
	Clock     ports.Clock
	Scheduler ports.Scheduler
	IDGen     ports.IDGenerator
	Outbox    ports.OutboxWriter
	Activity  ports.ActivityLog
	Logger    *slog.Logger
}

// CloseHook observes a committed close. It receives the closed round and a
// copy of the track history and runs outside the controller lock.
type CloseHook func(ctx context.Context, closed entities.Round, history []entities.Round)

// Advance reports the outcome of ForceAdvance. Opened is zero once the final
// round has been closed.
type Advance struct {
	Closed  entities.Round
	Opened  entities.Round
	HasNext bool
}

// Controller owns the round state machine of one track. Ledger writes run
// inside Admit under the read lock; transitions take the write lock, so a
// transition waits for in-flight writes and later writes observe the new
// state.
type Controller struct {
	kind        entities.RoundKind
	duration    time.Duration
	totalRounds int

	repo      ports.RoundRepository
	clock     ports.Clock
	scheduler ports.Scheduler
	events    application.EventEmitter
	activity  application.ActivityRecorder
	logger    *slog.Logger

	mu         sync.RWMutex
	rounds     []entities.Round
	timer      ports.Timer
	generation uint64

	hooksMu sync.RWMutex
	hooks   []CloseHook
}

// NewController restores the track from the repository and re-arms the
// expiry timer of a persisted open round. A round that expired while the
// process was down is locked immediately.
func NewController(ctx context.Context, deps Dependencies) (*Controller, error) {
	if !deps.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown round kind %q", domainerrors.ErrInvalidInput, deps.Kind)
	}
	if deps.Duration <= 0 {
		return nil, fmt.Errorf("%w: round duration must be positive", domainerrors.ErrInvalidInput)
	}
	logger := application.ResolveLogger(deps.Logger)
	c := &Controller{
		kind:        deps.Kind,
		duration:    deps.Duration,
		totalRounds: deps.TotalRounds,
		repo:        deps.Rounds,
		clock:       deps.Clock,
		scheduler:   deps.Scheduler,
		events: application.EventEmitter{
			Outbox: deps.Outbox,
			IDGen:  deps.IDGen,
			Clock:  deps.Clock,
			Logger: logger,
		},
		activity: application.ActivityRecorder{
			Log:    deps.Activity,
			IDGen:  deps.IDGen,
			Clock:  deps.Clock,
			Logger: logger,
		},
		logger: logger,
	}

	persisted, err := deps.Rounds.ListRounds(ctx, deps.Kind)
	if err != nil {
		return nil, err
	}
	sort.Slice(persisted, func(i, j int) bool {
		return persisted[i].Index < persisted[j].Index
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rounds = persisted
	round, ok := c.currentLocked()
	if !ok || round.State != entities.RoundStateOpen {
		return c, nil
	}
	now := c.clock.Now().UTC()
	if round.Expired(now) {
		if _, err := c.lockLocked(ctx, round, now, "expired_while_offline"); err != nil {
			return nil, err
		}
		return c, nil
	}
	c.armLocked(round, now)
	logger.Info("round timer restored",
		"event", "voting_round_timer_restored",
		"module", application.ModuleName,
		"layer", "application",
		"round_kind", string(c.kind),
		"round_index", round.Index,
		"remaining_ms", round.Remaining(now).Milliseconds(),
	)
	return c, nil
}

func (c *Controller) Kind() entities.RoundKind {
	return c.kind
}

func (c *Controller) TotalRounds() int {
	return c.totalRounds
}

// OnClose registers a hook fired after every committed close.
func (c *Controller) OnClose(hook CloseHook) {
	if hook == nil {
		return
	}
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// Admit runs write while the round is guaranteed to stay Open. write must
// not call back into the controller.
func (c *Controller) Admit(ctx context.Context, roundIndex int, write func(round entities.Round) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	round, ok := c.currentLocked()
	if !ok || round.Index != roundIndex || round.State != entities.RoundStateOpen {
		return fmt.Errorf("%w: %s round %d", domainerrors.ErrRoundNotOpen, c.kind, roundIndex)
	}
	if round.Expired(c.clock.Now()) {
		return fmt.Errorf("%w: %s round %d clock expired", domainerrors.ErrRoundNotOpen, c.kind, roundIndex)
	}
	return write(round)
}

// Exclusive runs fn while no write is admitted on the track. fn must not
// call back into the controller.
func (c *Controller) Exclusive(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn()
}

// CurrentRound returns the latest round of the track; ok is false before the
// first round opens.
func (c *Controller) CurrentRound() (entities.Round, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentLocked()
}

// Rounds returns the track history ordered by index.
func (c *Controller) Rounds() []entities.Round {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.historyLocked()
}

func (c *Controller) Remaining() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	round, ok := c.currentLocked()
	if !ok {
		return 0
	}
	return round.Remaining(c.clock.Now())
}

// Finished reports whether the final round of a bounded track is closed.
func (c *Controller) Finished() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	round, ok := c.currentLocked()
	return ok && c.finished(round)
}

// LockVoting moves the open round to Locked. Locking a Locked round is a
// no-op.
func (c *Controller) LockVoting(ctx context.Context) (entities.Round, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	round, ok := c.currentLocked()
	if !ok {
		return entities.Round{}, fmt.Errorf("%w: no %s round has started", domainerrors.ErrInvalidTransition, c.kind)
	}
	switch round.State {
	case entities.RoundStateLocked:
		return round, nil
	case entities.RoundStateClosed:
		return round, fmt.Errorf("%w: %s round %d is closed", domainerrors.ErrInvalidTransition, c.kind, round.Index)
	}
	return c.lockLocked(ctx, round, c.clock.Now().UTC(), "admin_lock")
}

// UnlockVoting reopens a Locked round with the time it had left when it was
// locked. A round locked by expiry restarts at full duration.
func (c *Controller) UnlockVoting(ctx context.Context) (entities.Round, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	round, ok := c.currentLocked()
	if !ok {
		return entities.Round{}, fmt.Errorf("%w: no %s round has started", domainerrors.ErrInvalidTransition, c.kind)
	}
	switch round.State {
	case entities.RoundStateOpen:
		return round, nil
	case entities.RoundStateClosed:
		return round, fmt.Errorf("%w: %s round %d is closed", domainerrors.ErrInvalidTransition, c.kind, round.Index)
	}

	now := c.clock.Now().UTC()
	var left time.Duration
	if round.LockedAt != nil {
		left = round.Deadline().Sub(*round.LockedAt)
	}
	if left <= 0 || left > round.Duration {
		round.StartedAt = now
	} else {
		round.StartedAt = now.Add(left - round.Duration)
	}
	round.State = entities.RoundStateOpen
	round.LockedAt = nil
	if err := c.saveLocked(ctx, round); err != nil {
		return entities.Round{}, err
	}
	c.armLocked(round, now)
	c.announceLocked(ctx, events.TopicRoundUnlocked, round, "admin_unlock")
	return round, nil
}

// ForceAdvance closes the current round and opens the next one at full
// duration. Without override an Open round with time left is refused.
func (c *Controller) ForceAdvance(ctx context.Context, override bool) (Advance, error) {
	result, history, err := c.advance(ctx, override)
	if result.Closed.Index > 0 {
		c.runCloseHooks(ctx, result.Closed, history)
	}
	return result, err
}

func (c *Controller) advance(ctx context.Context, override bool) (Advance, []entities.Round, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	round, ok := c.currentLocked()
	if !ok {
		return Advance{}, nil, fmt.Errorf("%w: no %s round has started", domainerrors.ErrInvalidTransition, c.kind)
	}
	now := c.clock.Now().UTC()
	switch {
	case round.State == entities.RoundStateClosed:
		return Advance{}, nil, fmt.Errorf("%w: %s round %d is already closed", domainerrors.ErrInvalidTransition, c.kind, round.Index)
	case round.State == entities.RoundStateOpen && round.Remaining(now) > 0 && !override:
		return Advance{}, nil, fmt.Errorf("%w: %s round %d still has %s remaining",
			domainerrors.ErrInvalidTransition, c.kind, round.Index, round.Remaining(now).Round(time.Second))
	}

	closed, err := c.closeLocked(ctx, round, now, "advance")
	if err != nil {
		return Advance{}, nil, err
	}
	result := Advance{Closed: closed}
	if c.finished(closed) {
		c.logger.Info("final round closed",
			"event", "voting_contest_finished",
			"module", application.ModuleName,
			"layer", "application",
			"round_kind", string(c.kind),
			"round_index", closed.Index,
		)
		return result, c.historyLocked(), nil
	}
	opened, err := c.openLocked(ctx, closed.Index+1, c.duration, now, "advance")
	if err != nil {
		return result, c.historyLocked(), err
	}
	result.Opened = opened
	result.HasNext = true
	return result, c.historyLocked(), nil
}

// StartTimer opens round 1 when nothing has started, restarts the clock of
// an Open round, and opens the next round after a close that did not
// finish the track.
func (c *Controller) StartTimer(ctx context.Context, duration time.Duration) (entities.Round, error) {
	if duration <= 0 {
		return entities.Round{}, fmt.Errorf("%w: timer duration must be positive", domainerrors.ErrInvalidInput)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now().UTC()
	round, ok := c.currentLocked()
	if !ok {
		return c.openLocked(ctx, 1, duration, now, "timer_started")
	}
	switch round.State {
	case entities.RoundStateLocked:
		return round, fmt.Errorf("%w: %s round %d is locked", domainerrors.ErrInvalidTransition, c.kind, round.Index)
	case entities.RoundStateClosed:
		if c.finished(round) {
			return round, fmt.Errorf("%w: %s track is finished", domainerrors.ErrInvalidTransition, c.kind)
		}
		return c.openLocked(ctx, round.Index+1, duration, now, "timer_started")
	}

	round.StartedAt = now
	round.Duration = duration
	if err := c.saveLocked(ctx, round); err != nil {
		return entities.Round{}, err
	}
	c.armLocked(round, now)
	c.announceLocked(ctx, events.TopicRoundOpened, round, "timer_restarted")
	return round, nil
}

// OpenNext closes the current round if it is still Open or Locked and opens
// the next index. A non-positive duration uses the configured one.
func (c *Controller) OpenNext(ctx context.Context, duration time.Duration) (entities.Round, error) {
	opened, closed, history, err := c.openNext(ctx, duration)
	if closed.Index > 0 {
		c.runCloseHooks(ctx, closed, history)
	}
	return opened, err
}

func (c *Controller) openNext(ctx context.Context, duration time.Duration) (entities.Round, entities.Round, []entities.Round, error) {
	if duration <= 0 {
		duration = c.duration
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now().UTC()
	next := 1
	var closed entities.Round
	if round, ok := c.currentLocked(); ok {
		if round.State != entities.RoundStateClosed {
			var err error
			closed, err = c.closeLocked(ctx, round, now, "superseded")
			if err != nil {
				return entities.Round{}, entities.Round{}, nil, err
			}
			round = closed
		}
		if c.finished(round) {
			return entities.Round{}, closed, c.historyLocked(),
				fmt.Errorf("%w: %s track is finished", domainerrors.ErrInvalidTransition, c.kind)
		}
		next = round.Index + 1
	}
	opened, err := c.openLocked(ctx, next, duration, now, "opened")
	return opened, closed, c.historyLocked(), err
}

// Close ends the current Open or Locked round without opening another.
func (c *Controller) Close(ctx context.Context) (entities.Round, error) {
	closed, history, err := c.close(ctx)
	if err == nil {
		c.runCloseHooks(ctx, closed, history)
	}
	return closed, err
}

func (c *Controller) close(ctx context.Context) (entities.Round, []entities.Round, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	round, ok := c.currentLocked()
	if !ok || round.State == entities.RoundStateClosed {
		return entities.Round{}, nil, fmt.Errorf("%w: no %s round is in progress", domainerrors.ErrInvalidTransition, c.kind)
	}
	closed, err := c.closeLocked(ctx, round, c.clock.Now().UTC(), "closed")
	if err != nil {
		return entities.Round{}, nil, err
	}
	return closed, c.historyLocked(), nil
}

// Stop disarms the expiry timer. The controller stays usable.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disarmLocked()
}

func (c *Controller) expire(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return
	}
	round, ok := c.currentLocked()
	if !ok || round.State != entities.RoundStateOpen {
		return
	}
	now := c.clock.Now().UTC()
	if !round.Expired(now) {
		c.armLocked(round, now)
		return
	}
	if _, err := c.lockLocked(context.Background(), round, now, "expired"); err != nil {
		c.logger.Error("round expiry lock failed",
			"event", "voting_round_expiry_lock_failed",
			"module", application.ModuleName,
			"layer", "application",
			"round_kind", string(c.kind),
			"round_index", round.Index,
			"error", err.Error(),
		)
	}
}

func (c *Controller) lockLocked(ctx context.Context, round entities.Round, now time.Time, reason string) (entities.Round, error) {
	round.State = entities.RoundStateLocked
	round.LockedAt = &now
	if err := c.saveLocked(ctx, round); err != nil {
		return entities.Round{}, err
	}
	c.disarmLocked()
	c.announceLocked(ctx, events.TopicRoundLocked, round, reason)
	return round, nil
}

func (c *Controller) closeLocked(ctx context.Context, round entities.Round, now time.Time, reason string) (entities.Round, error) {
	if round.LockedAt == nil {
		round.LockedAt = &now
	}
	round.State = entities.RoundStateClosed
	round.ClosedAt = &now
	if err := c.saveLocked(ctx, round); err != nil {
		return entities.Round{}, err
	}
	c.disarmLocked()
	c.announceLocked(ctx, events.TopicRoundClosed, round, reason)
	return round, nil
}

func (c *Controller) openLocked(
	ctx context.Context,
	index int,
	duration time.Duration,
	now time.Time,
	reason string,
) (entities.Round, error) {
	round := entities.Round{
		Kind:      c.kind,
		Index:     index,
		State:     entities.RoundStateOpen,
		StartedAt: now,
		Duration:  duration,
	}
	if err := c.saveLocked(ctx, round); err != nil {
		return entities.Round{}, err
	}
	c.armLocked(round, now)
	c.announceLocked(ctx, events.TopicRoundOpened, round, reason)
	return round, nil
}

// saveLocked persists round and then replaces or appends it in memory, so
// a failed write leaves the in-memory track untouched.
func (c *Controller) saveLocked(ctx context.Context, round entities.Round) error {
	if err := c.repo.SaveRound(ctx, round); err != nil {
		c.logger.Error("round save failed",
			"event", "voting_round_save_failed",
			"module", application.ModuleName,
			"layer", "application",
			"round_kind", string(c.kind),
			"round_index", round.Index,
			"round_state", string(round.State),
			"error", err.Error(),
		)
		return err
	}
	if n := len(c.rounds); n > 0 && c.rounds[n-1].Index == round.Index {
		c.rounds[n-1] = round
		return nil
	}
	c.rounds = append(c.rounds, round)
	return nil
}

func (c *Controller) armLocked(round entities.Round, now time.Time) {
	c.disarmLocked()
	if c.scheduler == nil || round.State != entities.RoundStateOpen || round.Duration <= 0 {
		return
	}
	generation := c.generation
	c.timer = c.scheduler.AfterFunc(round.Remaining(now), func() {
		c.expire(generation)
	})
}

func (c *Controller) disarmLocked() {
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) announceLocked(ctx context.Context, topic string, round entities.Round, reason string) {
	c.logger.Info("round transitioned",
		"event", "voting_round_"+string(round.State),
		"module", application.ModuleName,
		"layer", "application",
		"round_kind", string(round.Kind),
		"round_index", round.Index,
		"reason", reason,
	)
	data := map[string]any{
		"round_kind":       string(round.Kind),
		"round_index":      round.Index,
		"state":            string(round.State),
		"started_at":       round.StartedAt.UTC(),
		"duration_seconds": int64(round.Duration / time.Second),
		"reason":           reason,
	}
	if round.State == entities.RoundStateOpen && round.Duration > 0 {
		data["deadline"] = round.Deadline().UTC()
	}
	// The transition is already committed; outbox failures are logged by
	// the emitter and do not roll it back.
	_ = c.events.Emit(ctx, topic, "round_kind", string(round.Kind), data)
	c.activity.Record(ctx, entities.ActivityRoundTransition, entities.SeverityInfo, "system",
		fmt.Sprintf("%s round %d %s (%s)", round.Kind, round.Index, round.State, reason))
}

func (c *Controller) runCloseHooks(ctx context.Context, closed entities.Round, history []entities.Round) {
	c.hooksMu.RLock()
	hooks := append([]CloseHook(nil), c.hooks...)
	c.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, closed, append([]entities.Round(nil), history...))
	}
}

func (c *Controller) currentLocked() (entities.Round, bool) {
	if len(c.rounds) == 0 {
		return entities.Round{}, false
	}
	return c.rounds[len(c.rounds)-1], true
}

func (c *Controller) historyLocked() []entities.Round {
	return append([]entities.Round(nil), c.rounds...)
}

func (c *Controller) finished(round entities.Round) bool {
	return c.totalRounds > 0 && round.State == entities.RoundStateClosed && round.Index >= c.totalRounds
}
