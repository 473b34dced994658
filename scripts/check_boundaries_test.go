package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRepositoryHasNoBoundaryViolations(t *testing.T) {
	violations, err := collectViolations("..")
	require.NoError(t, err)
	require.Empty(t, violations)
}

func writeSource(t *testing.T, root, rel, source string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(source), 0o600))
}

func TestCollectViolationsFlagsLayerBreaks(t *testing.T) {
	root := t.TempDir()
	module := "contexts/live-contest/voting-engine"
	writeSource(t, root, module+"/domain/entities/vote.go", `package entities

import (
	"time"

	"github.com/google/uuid"
)

var _ = time.Now
var _ = uuid.New
`)
	writeSource(t, root, module+"/application/ledger/ledger.go", `package ledger

import (
	"voteverse/contexts/live-contest/voting-engine/adapters/memory"
	"voteverse/contexts/live-contest/voting-engine/ports"
	"voteverse/internal/shared/events"
)
`)
	writeSource(t, root, module+"/adapters/http/handler.go", `package http

import (
	"voteverse/contexts/other-context/engine/domain"
	"voteverse/internal/platform/config"
)
`)
	writeSource(t, root, module+"/ports/ports_test.go", `package ports

import "voteverse/internal/app/bootstrap"
`)

	violations, err := collectViolations(root)
	require.NoError(t, err)

	rules := make(map[string][]string)
	for _, v := range violations {
		rules[v.File] = append(rules[v.File], v.Rule)
	}
	require.Equal(t, []string{"domain import is outside explicit allowlist"},
		rules[module+"/domain/entities/vote.go"])
	require.ElementsMatch(t, []string{
		"application must not import adapters",
		"application import is outside explicit allowlist",
	}, rules[module+"/application/ledger/ledger.go"])
	require.ElementsMatch(t, []string{
		"cross-module imports are forbidden",
		"contexts must not import platform or bootstrap packages",
	}, rules[module+"/adapters/http/handler.go"])
	require.NotContains(t, rules, module+"/ports/ports_test.go")
}

func TestCollectViolationsMissingContexts(t *testing.T) {
	_, err := collectViolations(t.TempDir())
	require.Error(t, err)
}
