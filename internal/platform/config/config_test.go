package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "voteverse", cfg.ServiceName)
	require.Equal(t, "8080", cfg.HTTPPort)
	require.Equal(t, 3*time.Minute, cfg.RoundDuration)
	require.Equal(t, 3, cfg.TotalRounds)
	require.Equal(t, 2.0, cfg.ClashThreshold)
	require.Equal(t, 0.5, cfg.ScoreGranularity)
	require.Empty(t, cfg.PostgresDSN)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("ROUND_DURATION", "90s")
	t.Setenv("TOTAL_ROUNDS", "5")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, ,broker-2:9092")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.HTTPPort)
	require.Equal(t, 90*time.Second, cfg.RoundDuration)
	require.Equal(t, 5, cfg.TotalRounds)
	require.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("ROUND_DURATION", "0s")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsNonPositiveClashThreshold(t *testing.T) {
	for _, value := range []string{"0", "-1.5"} {
		t.Setenv("CLASH_THRESHOLD", value)
		_, err := Load()
		require.ErrorContains(t, err, "CLASH_THRESHOLD", value)
	}
}

func TestContestFileRejectsNegativeClashThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clash_threshold: -1\n"), 0o600))
	t.Setenv("CONTEST_FILE", path)

	_, err := Load()
	require.ErrorContains(t, err, "CLASH_THRESHOLD")
}

func TestContestFileOverridesTunables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: Spring Showcase
clash_threshold: 1.5
rounds:
  total: 4
  duration: 2m
  audience_duration: 45s
participants:
  - id: p-aurora
    name: Team Aurora
    description: robotics
  - id: p-borealis
    name: Team Borealis
voters:
  - email: admin@contest.test
    name: Stage Admin
    role: admin
  - email: judge@contest.test
    role: judge
`), 0o600))
	t.Setenv("CONTEST_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "Spring Showcase", cfg.Contest.Name)
	require.Equal(t, 4, cfg.TotalRounds)
	require.Equal(t, 2*time.Minute, cfg.RoundDuration)
	require.Equal(t, 45*time.Second, cfg.AudienceDuration)
	require.Equal(t, 1.5, cfg.ClashThreshold)
	require.Len(t, cfg.Contest.Participants, 2)
	require.Equal(t, "robotics", cfg.Contest.Participants[0].Description)
	require.Len(t, cfg.Contest.Voters, 2)
	require.Equal(t, "admin", cfg.Contest.Voters[0].Role)
}

func TestLoadContestRejectsDuplicateParticipants(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
participants:
  - id: p-a
    name: A
  - id: p-a
    name: Again
`), 0o600))
	_, err := LoadContest(path)
	require.ErrorContains(t, err, "duplicate participant")
}

func TestLoadContestMissingFile(t *testing.T) {
	_, err := LoadContest(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
