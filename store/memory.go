package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mcouto/reparcel/execution"
	"github.com/mcouto/reparcel/indices"
	"github.com/mcouto/reparcel/queue"
)

// Memory keeps everything in process memory only. Useful as a stand-in
// backend when durability is not required.
type Memory struct {
	mu         sync.Mutex
	executions map[string]execution.Record
	items      map[string]queue.Item
	snapshots  []indices.Snapshot
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		executions: make(map[string]execution.Record),
		items:      make(map[string]queue.Item),
	}
}

func (s *Memory) SaveExecution(_ context.Context, rec execution.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		return fmt.Errorf("cannot save execution without an id")
	}
	s.executions[rec.ID] = rec
	return nil
}

func (s *Memory) LoadExecution(_ context.Context, id string) (execution.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.executions[id]
	if !ok {
		return execution.Record{}, fmt.Errorf("execution %s: %w", id, ErrNoData)
	}
	return rec, nil
}

func (s *Memory) LoadRecentExecutions(_ context.Context, limit int) ([]execution.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.executions) == 0 {
		return nil, ErrNoData
	}

	records := make([]execution.Record, 0, len(s.executions))
	for _, rec := range s.executions {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Memory) SaveQueue(_ context.Context, items []queue.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		s.items[item.ID] = item
	}
	return nil
}

func (s *Memory) SaveQueueItem(_ context.Context, item queue.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[item.ID] = item
	return nil
}

func (s *Memory) LoadQueue(_ context.Context) ([]queue.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return nil, ErrNoData
	}

	items := make([]queue.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	sortQueue(items)
	return items, nil
}

func (s *Memory) ClaimQueueItem(_ context.Context, id string) (queue.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return queue.Item{}, fmt.Errorf("queue item %s: %w", id, ErrNoData)
	}
	if item.Status != queue.StatusPending {
		return queue.Item{}, fmt.Errorf("queue item %s is %s: %w", id, item.Status, ErrAlreadyClaimed)
	}

	now := time.Now()
	item.Status = queue.StatusProcessing
	item.ClaimedAt = &now
	s.items[id] = item
	return item, nil
}

func (s *Memory) SupersedePending(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, item := range s.items {
		if item.Status == queue.StatusPending {
			item.Status = queue.StatusSuperseded
			s.items[id] = item
			count++
		}
	}
	return count, nil
}

func (s *Memory) SaveSnapshots(_ context.Context, snaps []indices.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = append(append([]indices.Snapshot{}, snaps...), s.snapshots...)
	return nil
}

func (s *Memory) LoadSnapshots(_ context.Context, limit int) ([]indices.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.snapshots) == 0 {
		return nil, ErrNoData
	}

	snaps := make([]indices.Snapshot, len(s.snapshots))
	copy(snaps, s.snapshots)
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps, nil
}
