package votingengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	httpadapter "voteverse/contexts/live-contest/voting-engine/adapters/http"
	"voteverse/contexts/live-contest/voting-engine/adapters/memory"
	"voteverse/contexts/live-contest/voting-engine/adapters/snapshotcache"
	"voteverse/contexts/live-contest/voting-engine/adapters/systemclock"
	wsadapter "voteverse/contexts/live-contest/voting-engine/adapters/websocket"
	application "voteverse/contexts/live-contest/voting-engine/application"
	"voteverse/contexts/live-contest/voting-engine/application/commands"
	"voteverse/contexts/live-contest/voting-engine/application/ledger"
	"voteverse/contexts/live-contest/voting-engine/application/queries"
	"voteverse/contexts/live-contest/voting-engine/application/rounds"
	"voteverse/contexts/live-contest/voting-engine/application/workers"
	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	domainerrors "voteverse/contexts/live-contest/voting-engine/domain/errors"
	"voteverse/contexts/live-contest/voting-engine/domain/services"
	"voteverse/contexts/live-contest/voting-engine/ports"
	"voteverse/internal/shared/events"
)

// Settings are the contest tunables. Zero values fall back to the engine
// defaults; a negative ScoreGranularity disables the step check.
type Settings struct {
	RoundDuration     time.Duration
	AudienceDuration  time.Duration
	TotalRounds       int
	ClashThreshold    float64
	ScoreGranularity  float64
	SnapshotCacheSize int
	OutboxBatchSize   int
}

// Bus is the event transport the relay publishes to and the stream reads.
type Bus interface {
	ports.EventPublisher
	ports.EventSubscriber
}

type Dependencies struct {
	Ledger       ports.LedgerStore
	Rounds       ports.RoundRepository
	Voters       ports.VoterRepository
	Participants ports.ParticipantRepository
	Activity     ports.ActivityLog
	Archive      ports.SnapshotArchive
	Outbox       ports.OutboxWriter
	OutboxRepo   ports.OutboxRepository
	Bus          Bus
	Clock        ports.Clock
	Scheduler    ports.Scheduler
	IDGen        ports.IDGenerator
	Settings     Settings
	Logger       *slog.Logger
}

// Seed is the contest roster loaded at startup. Participants are upserted;
// voters are created when their email is unknown.
type Seed struct {
	Participants []entities.Participant
	Voters       []entities.Voter
}

// Module wires one contest: a scoring track, an audience track, and the
// read models and workers around them.
type Module struct {
	Handler     httpadapter.Handler
	Stream      *wsadapter.Hub
	Scoring     *rounds.Controller
	Audience    *rounds.Controller
	Broadcaster *workers.LeaderboardBroadcaster
	Relay       workers.OutboxRelay
	Store       *memory.Store

	voters       ports.VoterRepository
	participants ports.ParticipantRepository
	clock        ports.Clock
	logger       *slog.Logger
}

func NewModule(ctx context.Context, deps Dependencies) (Module, error) {
	logger := application.ResolveLogger(deps.Logger)
	if deps.Clock == nil {
		deps.Clock = systemclock.SystemClock{}
	}
	if deps.Scheduler == nil {
		deps.Scheduler = systemclock.Scheduler{}
	}
	if deps.IDGen == nil {
		deps.IDGen = systemclock.UUIDGenerator{}
	}
	if deps.Bus == nil {
		return Module{}, fmt.Errorf("%w: event bus is required", domainerrors.ErrInvalidInput)
	}
	settings := deps.Settings
	if settings.ScoreGranularity == 0 {
		settings.ScoreGranularity = services.DefaultGranularity
	}
	if settings.ClashThreshold <= 0 {
		settings.ClashThreshold = services.DefaultClashThreshold
	}

	archive := deps.Archive
	if settings.SnapshotCacheSize > 0 {
		cached, err := snapshotcache.New(archive, settings.SnapshotCacheSize)
		if err != nil {
			return Module{}, err
		}
		archive = cached
	}

	scoring, err := rounds.NewController(ctx, rounds.Dependencies{
		Config: rounds.Config{
			Kind:        entities.RoundKindScoring,
			Duration:    settings.RoundDuration,
			TotalRounds: settings.TotalRounds,
		},
		Rounds:    deps.Rounds,
		Clock:     deps.Clock,
		Scheduler: deps.Scheduler,
		IDGen:     deps.IDGen,
		Outbox:    deps.Outbox,
		Activity:  deps.Activity,
		Logger:    logger,
	})
	if err != nil {
		return Module{}, err
	}
	audienceDuration := settings.AudienceDuration
	if audienceDuration <= 0 {
		audienceDuration = settings.RoundDuration
	}
	audience, err := rounds.NewController(ctx, rounds.Dependencies{
		Config: rounds.Config{
			Kind:     entities.RoundKindAudience,
			Duration: audienceDuration,
		},
		Rounds:    deps.Rounds,
		Clock:     deps.Clock,
		Scheduler: deps.Scheduler,
		IDGen:     deps.IDGen,
		Outbox:    deps.Outbox,
		Activity:  deps.Activity,
		Logger:    logger,
	})
	if err != nil {
		scoring.Stop()
		return Module{}, err
	}

	leaderboard := queries.Leaderboard{
		Store:          deps.Ledger,
		Participants:   deps.Participants,
		Rounds:         scoring,
		Archive:        archive,
		Clock:          deps.Clock,
		ClashThreshold: settings.ClashThreshold,
		Logger:         logger,
	}
	scoring.OnClose(leaderboard.Freeze)

	admin := commands.Admin{
		Scoring:      scoring,
		Audience:     audience,
		Voters:       deps.Voters,
		Participants: deps.Participants,
		Activity:     deps.Activity,
		Clock:        deps.Clock,
		IDGen:        deps.IDGen,
		Logger:       logger,
	}

	broadcaster := &workers.LeaderboardBroadcaster{
		Leaderboard: leaderboard,
		Publisher:   deps.Bus,
		IDGen:       deps.IDGen,
		Clock:       deps.Clock,
		Logger:      logger,
	}
	stream := &wsadapter.Hub{
		Subscriber: deps.Bus,
		Topics:     events.BroadcastTopics,
		Logger:     logger,
		Snapshot: func(ctx context.Context) (wsadapter.Frame, error) {
			board, err := leaderboard.Snapshot(ctx, true)
			if err != nil {
				return wsadapter.Frame{}, err
			}
			data, err := workers.EncodeLeaderboard(board)
			if err != nil {
				return wsadapter.Frame{}, err
			}
			return wsadapter.Frame{
				Type:       events.TopicLeaderboardUpdated,
				OccurredAt: board.GeneratedAt,
				Data:       data,
			}, nil
		},
	}

	return Module{
		Handler: httpadapter.Handler{
			Ledger: ledger.Ledger{
				Scoring:        scoring,
				Audience:       audience,
				Store:          deps.Ledger,
				Voters:         deps.Voters,
				Participants:   deps.Participants,
				Clock:          deps.Clock,
				IDGen:          deps.IDGen,
				Outbox:         deps.Outbox,
				Activity:       deps.Activity,
				Granularity:    settings.ScoreGranularity,
				ClashThreshold: settings.ClashThreshold,
				Logger:         logger,
			},
			Scores: queries.Scores{
				Store:          deps.Ledger,
				Rounds:         scoring,
				Clock:          deps.Clock,
				ClashThreshold: settings.ClashThreshold,
			},
			Audience: queries.Audience{
				Store:        deps.Ledger,
				Participants: deps.Participants,
			},
			Leaderboard: leaderboard,
			Analytics: queries.Analytics{
				Voters:         deps.Voters,
				Store:          deps.Ledger,
				Rounds:         scoring,
				Activity:       deps.Activity,
				Clock:          deps.Clock,
				ClashThreshold: settings.ClashThreshold,
			},
			Admin: admin,
			Identity: commands.Identity{
				Voters:   deps.Voters,
				Activity: deps.Activity,
				Clock:    deps.Clock,
				IDGen:    deps.IDGen,
				Logger:   logger,
			},
			ScoringRounds:  scoring,
			AudienceRounds: audience,
			Participants:   deps.Participants,
			Clock:          deps.Clock,
			Logger:         logger,
		},
		Stream:      stream,
		Scoring:     scoring,
		Audience:    audience,
		Broadcaster: broadcaster,
		Relay: workers.OutboxRelay{
			Outbox:    deps.OutboxRepo,
			Publisher: deps.Bus,
			Clock:     deps.Clock,
			BatchSize: settings.OutboxBatchSize,
			Logger:    logger,
		},
		voters:       deps.Voters,
		participants: deps.Participants,
		clock:        deps.Clock,
		logger:       logger,
	}, nil
}

// NewInMemoryModule keeps every port in one memory.Store. Clock and
// scheduler default to the wall clock when nil.
func NewInMemoryModule(
	ctx context.Context,
	settings Settings,
	bus Bus,
	clock ports.Clock,
	scheduler ports.Scheduler,
	logger *slog.Logger,
) (Module, error) {
	store := memory.NewStore()
	module, err := NewModule(ctx, Dependencies{
		Ledger:       store,
		Rounds:       store,
		Voters:       store,
		Participants: store,
		Activity:     store,
		Archive:      store,
		Outbox:       store,
		OutboxRepo:   store,
		Bus:          bus,
		Clock:        clock,
		Scheduler:    scheduler,
		IDGen:        systemclock.UUIDGenerator{},
		Settings:     settings,
		Logger:       logger,
	})
	if err != nil {
		return Module{}, err
	}
	module.Store = store
	return module, nil
}

// Seed loads the contest roster. It is safe to run on every start.
func (m Module) Seed(ctx context.Context, seed Seed) error {
	now := m.clock.Now().UTC()
	for _, participant := range seed.Participants {
		participant.ParticipantID = strings.TrimSpace(participant.ParticipantID)
		if participant.ParticipantID == "" {
			return fmt.Errorf("%w: seeded participant needs an id", domainerrors.ErrInvalidInput)
		}
		existing, err := m.participants.GetParticipant(ctx, participant.ParticipantID)
		switch {
		case err == nil:
			participant.CreatedAt = existing.CreatedAt
			participant.CurrentRound = existing.CurrentRound
		case errors.Is(err, domainerrors.ErrParticipantNotFound):
			participant.CreatedAt = now
			if participant.CurrentRound <= 0 {
				participant.CurrentRound = 1
			}
		default:
			return err
		}
		if err := m.participants.SaveParticipant(ctx, participant); err != nil {
			return err
		}
	}

	created := 0
	for _, voter := range seed.Voters {
		voter.Email = strings.ToLower(strings.TrimSpace(voter.Email))
		if _, found, err := m.voters.GetVoterByEmail(ctx, voter.Email); err != nil {
			return err
		} else if found {
			continue
		}
		if !voter.Role.Valid() {
			return fmt.Errorf("%w: seeded voter %s has unknown role %q", domainerrors.ErrInvalidInput, voter.Email, voter.Role)
		}
		if voter.VoterID == "" {
			id, err := m.Handler.Identity.IDGen.NewID(ctx)
			if err != nil {
				return err
			}
			voter.VoterID = id
		}
		if voter.Name == "" {
			voter.Name = voter.Email
		}
		voter.Verified = true
		voter.Active = true
		voter.CreatedAt = now
		voter.UpdatedAt = now
		if err := m.voters.CreateVoter(ctx, voter); err != nil && !errors.Is(err, domainerrors.ErrConflict) {
			return err
		}
		created++
	}

	m.logger.Info("contest roster seeded",
		"event", "voting_roster_seeded",
		"module", application.ModuleName,
		"layer", "module",
		"participants", len(seed.Participants),
		"voters_created", created,
	)
	return nil
}

// Close stops the round timers. Persisted state is left untouched.
func (m Module) Close() {
	if m.Scoring != nil {
		m.Scoring.Stop()
	}
	if m.Audience != nil {
		m.Audience.Stop()
	}
}
