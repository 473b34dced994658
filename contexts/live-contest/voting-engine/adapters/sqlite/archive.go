// Package sqlite archives leaderboards frozen at round close in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	domainerrors "voteverse/contexts/live-contest/voting-engine/domain/errors"
	"voteverse/contexts/live-contest/voting-engine/ports"
)

//go:embed schema.sql
var schema string

// Archive persists round snapshots. Snapshots are immutable: the first one
// stored for a round wins.
type Archive struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the archive at path and applies the schema. ":memory:" keeps
// the archive in process.
func Open(path string) (*Archive, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("archive path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection: an in-memory database is private to its connection
	// and archive writes are rare.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}
	return &Archive{sqlDB: sqlDB}, nil
}

func (a *Archive) Close() error {
	if a == nil || a.sqlDB == nil {
		return nil
	}
	return a.sqlDB.Close()
}

func (a *Archive) SaveRoundSnapshot(ctx context.Context, snapshot entities.RoundSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snapshot.RoundIndex <= 0 {
		return fmt.Errorf("%w: round index must be positive", domainerrors.ErrInvalidInput)
	}
	payload, err := json.Marshal(snapshot.Leaderboard)
	if err != nil {
		return fmt.Errorf("encode leaderboard: %w", err)
	}
	final := 0
	if snapshot.Leaderboard.Final {
		final = 1
	}
	_, err = a.sqlDB.ExecContext(ctx,
		`INSERT INTO round_snapshots (round_index, frozen_at, final, leaderboard) VALUES (?, ?, ?, ?)`,
		snapshot.RoundIndex,
		toMillis(snapshot.FrozenAt),
		final,
		string(payload),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("insert round snapshot: %w", err)
	}
	return nil
}

func (a *Archive) GetRoundSnapshot(ctx context.Context, roundIndex int) (entities.RoundSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return entities.RoundSnapshot{}, err
	}
	row := a.sqlDB.QueryRowContext(ctx,
		`SELECT round_index, frozen_at, leaderboard FROM round_snapshots WHERE round_index = ?`,
		roundIndex,
	)
	snapshot, err := scanSnapshot(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.RoundSnapshot{}, domainerrors.ErrSnapshotNotFound
		}
		return entities.RoundSnapshot{}, fmt.Errorf("get round snapshot: %w", err)
	}
	return snapshot, nil
}

func (a *Archive) ListRoundSnapshots(ctx context.Context) ([]entities.RoundSnapshot, error) {
	rows, err := a.sqlDB.QueryContext(ctx,
		`SELECT round_index, frozen_at, leaderboard FROM round_snapshots ORDER BY round_index ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list round snapshots: %w", err)
	}
	defer rows.Close()

	items := make([]entities.RoundSnapshot, 0)
	for rows.Next() {
		snapshot, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan round snapshot: %w", err)
		}
		items = append(items, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate round snapshots: %w", err)
	}
	return items, nil
}

func scanSnapshot(scan func(dest ...any) error) (entities.RoundSnapshot, error) {
	var (
		roundIndex int
		frozenAt   int64
		payload    string
	)
	if err := scan(&roundIndex, &frozenAt, &payload); err != nil {
		return entities.RoundSnapshot{}, err
	}
	var board entities.Leaderboard
	if err := json.Unmarshal([]byte(payload), &board); err != nil {
		return entities.RoundSnapshot{}, fmt.Errorf("decode leaderboard: %w", err)
	}
	return entities.RoundSnapshot{
		RoundIndex:  roundIndex,
		FrozenAt:    fromMillis(frozenAt),
		Leaderboard: board,
	}, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ ports.SnapshotArchive = (*Archive)(nil)
