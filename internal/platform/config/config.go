package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName         string        `env:"SERVICE_NAME" envDefault:"voteverse"`
	HTTPPort            string        `env:"HTTP_PORT" envDefault:"8080"`
	PostgresDSN         string        `env:"POSTGRES_DSN"`
	SnapshotArchivePath string        `env:"SNAPSHOT_ARCHIVE_PATH"`
	ContestFile         string        `env:"CONTEST_FILE"`
	KafkaBrokers        []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	RoundDuration       time.Duration `env:"ROUND_DURATION" envDefault:"3m"`
	AudienceDuration    time.Duration `env:"AUDIENCE_DURATION"`
	TotalRounds         int           `env:"TOTAL_ROUNDS" envDefault:"3"`
	ClashThreshold      float64       `env:"CLASH_THRESHOLD" envDefault:"2.0"`
	ScoreGranularity    float64       `env:"SCORE_GRANULARITY" envDefault:"0.5"`
	SnapshotCacheSize   int           `env:"SNAPSHOT_CACHE_SIZE" envDefault:"16"`
	BroadcastInterval   time.Duration `env:"BROADCAST_INTERVAL" envDefault:"1s"`
	OutboxPollInterval  time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"500ms"`
	OutboxBatchSize     int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	Contest Contest `env:"-"`
}

// Contest is the roster and rules file referenced by CONTEST_FILE. Values set
// in the file override the matching environment tunables.
type Contest struct {
	Name           string            `yaml:"name"`
	Rounds         ContestRounds     `yaml:"rounds"`
	ClashThreshold float64           `yaml:"clash_threshold"`
	Participants   []ContestEntrant  `yaml:"participants"`
	Voters         []ContestIdentity `yaml:"voters"`
}

type ContestRounds struct {
	Total            int           `yaml:"total"`
	Duration         time.Duration `yaml:"duration"`
	AudienceDuration time.Duration `yaml:"audience_duration"`
	ScoreGranularity float64       `yaml:"score_granularity"`
}

type ContestEntrant struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type ContestIdentity struct {
	Email string `yaml:"email"`
	Name  string `yaml:"name"`
	Role  string `yaml:"role"`
}

// Load reads an optional .env file, the process environment, then the
// contest file when one is configured.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)

	if path := strings.TrimSpace(cfg.ContestFile); path != "" {
		contest, err := LoadContest(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Contest = contest
		cfg.applyContest()
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func LoadContest(path string) (Contest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Contest{}, fmt.Errorf("contest load: %w", err)
	}
	var contest Contest
	if err := yaml.Unmarshal(data, &contest); err != nil {
		return Contest{}, fmt.Errorf("contest unmarshal: %w", err)
	}
	seen := make(map[string]struct{}, len(contest.Participants))
	for _, participant := range contest.Participants {
		id := strings.TrimSpace(participant.ID)
		if id == "" || strings.TrimSpace(participant.Name) == "" {
			return Contest{}, fmt.Errorf("contest %s: every participant needs an id and a name", path)
		}
		if _, ok := seen[id]; ok {
			return Contest{}, fmt.Errorf("contest %s: duplicate participant %q", path, id)
		}
		seen[id] = struct{}{}
	}
	for _, voter := range contest.Voters {
		if !strings.Contains(voter.Email, "@") {
			return Contest{}, fmt.Errorf("contest %s: voter email %q is invalid", path, voter.Email)
		}
	}
	return contest, nil
}

func (c *Config) applyContest() {
	if c.Contest.Rounds.Total > 0 {
		c.TotalRounds = c.Contest.Rounds.Total
	}
	if c.Contest.Rounds.Duration > 0 {
		c.RoundDuration = c.Contest.Rounds.Duration
	}
	if c.Contest.Rounds.AudienceDuration > 0 {
		c.AudienceDuration = c.Contest.Rounds.AudienceDuration
	}
	if c.Contest.Rounds.ScoreGranularity != 0 {
		c.ScoreGranularity = c.Contest.Rounds.ScoreGranularity
	}
	if c.Contest.ClashThreshold != 0 {
		c.ClashThreshold = c.Contest.ClashThreshold
	}
}

func (c Config) validate() error {
	switch {
	case c.RoundDuration <= 0:
		return errors.New("ROUND_DURATION must be positive")
	case c.TotalRounds < 0:
		return errors.New("TOTAL_ROUNDS must not be negative")
	case c.ClashThreshold <= 0:
		return errors.New("CLASH_THRESHOLD must be positive")
	}
	return nil
}

func compact(values []string) []string {
	items := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			items = append(items, value)
		}
	}
	return items
}
