// Package snapshotcache puts a bounded read-through cache in front of a
// snapshot archive. Frozen snapshots never change, so cached entries never
// go stale.
package snapshotcache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"voteverse/contexts/live-contest/voting-engine/domain/entities"
	"voteverse/contexts/live-contest/voting-engine/ports"
)

const DefaultSize = 64

type Archive struct {
	next  ports.SnapshotArchive
	cache *lru.Cache[int, entities.RoundSnapshot]
}

func New(next ports.SnapshotArchive, size int) (*Archive, error) {
	if next == nil {
		return nil, fmt.Errorf("snapshot archive is required")
	}
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.New[int, entities.RoundSnapshot](size)
	if err != nil {
		return nil, fmt.Errorf("create snapshot cache: %w", err)
	}
	return &Archive{next: next, cache: cache}, nil
}

// SaveRoundSnapshot writes through and drops any cached copy so the next
// read returns what the archive actually kept.
func (a *Archive) SaveRoundSnapshot(ctx context.Context, snapshot entities.RoundSnapshot) error {
	if err := a.next.SaveRoundSnapshot(ctx, snapshot); err != nil {
		return err
	}
	a.cache.Remove(snapshot.RoundIndex)
	return nil
}

func (a *Archive) GetRoundSnapshot(ctx context.Context, roundIndex int) (entities.RoundSnapshot, error) {
	if snapshot, ok := a.cache.Get(roundIndex); ok {
		return snapshot, nil
	}
	snapshot, err := a.next.GetRoundSnapshot(ctx, roundIndex)
	if err != nil {
		return entities.RoundSnapshot{}, err
	}
	a.cache.Add(roundIndex, snapshot)
	return snapshot, nil
}

func (a *Archive) ListRoundSnapshots(ctx context.Context) ([]entities.RoundSnapshot, error) {
	return a.next.ListRoundSnapshots(ctx)
}

var _ ports.SnapshotArchive = (*Archive)(nil)
