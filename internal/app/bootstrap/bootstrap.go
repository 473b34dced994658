package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	votingengine "voteverse/contexts/live-contest/voting-engine"
	"voteverse/contexts/live-contest/voting-engine/adapters/memory"
	postgresadapter "voteverse/contexts/live-contest/voting-engine/adapters/postgres"
	sqliteadapter "voteverse/contexts/live-contest/voting-engine/adapters/sqlite"
	"voteverse/contexts/live-contest/voting-engine/adapters/systemclock"
	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	"voteverse/contexts/live-contest/voting-engine/ports"
	"voteverse/internal/platform/config"
	"voteverse/internal/platform/db"
	"voteverse/internal/platform/httpserver"
	"voteverse/internal/platform/messaging"

	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server            *httpserver.Server
	voting            votingengine.Module
	postgres          *db.Postgres
	archive           *sqliteadapter.Archive
	broadcastInterval time.Duration
	pollInterval      time.Duration
	logger            *slog.Logger
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")

	bus, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	app := &APIApp{
		broadcastInterval: cfg.BroadcastInterval,
		pollInterval:      cfg.OutboxPollInterval,
		logger:            logger,
	}
	fallback := memory.NewStore()
	deps := votingengine.Dependencies{
		Ledger:       fallback,
		Rounds:       fallback,
		Voters:       fallback,
		Participants: fallback,
		Activity:     fallback,
		Archive:      fallback,
		Outbox:       fallback,
		OutboxRepo:   fallback,
		Bus:          bus,
		Clock:        systemclock.SystemClock{},
		Scheduler:    systemclock.Scheduler{},
		IDGen:        systemclock.UUIDGenerator{},
		Settings: votingengine.Settings{
			RoundDuration:     cfg.RoundDuration,
			AudienceDuration:  cfg.AudienceDuration,
			TotalRounds:       cfg.TotalRounds,
			ClashThreshold:    cfg.ClashThreshold,
			ScoreGranularity:  cfg.ScoreGranularity,
			SnapshotCacheSize: cfg.SnapshotCacheSize,
			OutboxBatchSize:   cfg.OutboxBatchSize,
		},
		Logger: logger,
	}

	if dsn := strings.TrimSpace(cfg.PostgresDSN); dsn != "" {
		pg, err := db.Connect(dsn)
		if err != nil {
			return nil, err
		}
		app.postgres = pg
		repo := postgresadapter.NewRepository(pg.DB, logger)
		if err := repo.Migrate(ctx); err != nil {
			_ = app.Close()
			return nil, err
		}
		deps.Ledger = repo
		deps.Rounds = repo
		deps.Voters = repo
		deps.Participants = repo
		deps.Activity = repo
		deps.Outbox = repo
		deps.OutboxRepo = repo
	} else {
		logger.Warn("no POSTGRES_DSN configured, votes are kept in memory",
			"event", "bootstrap_memory_store",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}

	if path := strings.TrimSpace(cfg.SnapshotArchivePath); path != "" {
		archive, err := sqliteadapter.Open(path)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.archive = archive
		deps.Archive = archive
	}

	voting, err := votingengine.NewModule(ctx, deps)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.voting = voting
	if err := voting.Seed(ctx, contestSeed(cfg.Contest)); err != nil {
		_ = app.Close()
		return nil, err
	}

	app.server = httpserver.New(voting, logger, normalizeAddr(cfg.HTTPPort))
	return app, nil
}

// Run serves HTTP and drives the background loops until ctx ends or one of
// them fails.
func (a *APIApp) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	if err := a.voting.Stream.Start(ctx); err != nil {
		return err
	}
	group.Go(func() error {
		return a.server.Start(ctx)
	})
	group.Go(func() error {
		return a.voting.Broadcaster.Run(ctx, a.broadcastInterval)
	})
	group.Go(func() error {
		return a.relayLoop(ctx)
	})

	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"broadcast_interval", a.broadcastInterval.String(),
		"poll_interval", a.pollInterval.String(),
	)
	return group.Wait()
}

// relayLoop drains the outbox. Publish failures are retried on the next
// tick; the relay already logged them.
func (a *APIApp) relayLoop(ctx context.Context) error {
	interval := a.pollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_, _ = a.voting.Relay.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *APIApp) Close() error {
	a.voting.Close()
	var errs []error
	if a.archive != nil {
		errs = append(errs, a.archive.Close())
	}
	if a.postgres != nil {
		errs = append(errs, a.postgres.Close())
	}
	return errors.Join(errs...)
}

func contestSeed(contest config.Contest) votingengine.Seed {
	seed := votingengine.Seed{
		Participants: make([]entities.Participant, 0, len(contest.Participants)),
		Voters:       make([]entities.Voter, 0, len(contest.Voters)),
	}
	for _, entrant := range contest.Participants {
		seed.Participants = append(seed.Participants, entities.Participant{
			ParticipantID: entrant.ID,
			Name:          entrant.Name,
			Description:   entrant.Description,
		})
	}
	for _, identity := range contest.Voters {
		role, ok := entities.ParseRole(identity.Role)
		if !ok {
			role = entities.Role(identity.Role)
		}
		seed.Voters = append(seed.Voters, entities.Voter{
			Email: identity.Email,
			Name:  identity.Name,
			Role:  role,
		})
	}
	return seed
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}

var _ ports.SnapshotArchive = (*sqliteadapter.Archive)(nil)
