package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mcouto/reparcel/execution"
	"github.com/mcouto/reparcel/indices"
	"github.com/mcouto/reparcel/queue"
)

const (
	queueFile     = "queue.json"
	snapshotsFile = "snapshots.json"
)

// Disk is the fallback backend: executions as one JSON file each, the queue
// and snapshot history as single JSON documents. State is mirrored in memory
// so reads never touch the filesystem.
type Disk struct {
	dir           string
	logger        *slog.Logger
	maxExecutions int
	maxSnapshots  int

	mu         sync.Mutex
	executions map[string]execution.Record
	files      map[string]string // execution id -> file path
	items      map[string]queue.Item
	snapshots  []indices.Snapshot // newest first
}

// NewDisk creates the disk backend rooted at dir, creating the directory and
// loading whatever state already exists.
func NewDisk(dir string, maxExecutions, maxSnapshots int, logger *slog.Logger) (*Disk, error) {
	s := &Disk{
		dir:           dir,
		logger:        logger,
		maxExecutions: maxExecutions,
		maxSnapshots:  maxSnapshots,
		executions:    make(map[string]execution.Record),
		files:         make(map[string]string),
		items:         make(map[string]queue.Item),
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	if err := s.load(); err != nil {
		logger.Warn("failed to load existing store data", "error", err)
	}

	return s, nil
}

// SaveExecution writes the record to its own file and updates the cache.
// Re-saving the same execution overwrites its file in place.
func (s *Disk) SaveExecution(_ context.Context, rec execution.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		return fmt.Errorf("cannot save execution without an id")
	}

	path, ok := s.files[rec.ID]
	if !ok {
		path = filepath.Join(s.dir, executionFilename(rec))
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write execution file: %w", err)
	}

	s.executions[rec.ID] = rec
	s.files[rec.ID] = path
	s.pruneExecutions()

	s.logger.Debug("saved execution to disk", "execution_id", rec.ID, "path", path)
	return nil
}

// LoadExecution returns one record from the cache.
func (s *Disk) LoadExecution(_ context.Context, id string) (execution.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.executions[id]
	if !ok {
		return execution.Record{}, fmt.Errorf("execution %s: %w", id, ErrNoData)
	}
	return rec, nil
}

// LoadRecentExecutions returns records newest first.
func (s *Disk) LoadRecentExecutions(_ context.Context, limit int) ([]execution.Record, error) {
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

// SaveQueue inserts a queue generation and rewrites the queue file.
func (s *Disk) SaveQueue(_ context.Context, items []queue.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		s.items[item.ID] = item
	}
	return s.writeQueue()
}

// SaveQueueItem upserts a single item.
func (s *Disk) SaveQueueItem(_ context.Context, item queue.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[item.ID] = item
	return s.writeQueue()
}

// LoadQueue returns every stored item, newest generation first, then by
// descending priority.
func (s *Disk) LoadQueue(_ context.Context) ([]queue.Item, error) {
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

// ClaimQueueItem performs the pending to processing transition under the
// store lock, so concurrent claims on one item yield exactly one winner.
func (s *Disk) ClaimQueueItem(_ context.Context, id string) (queue.Item, error) {
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

	if err := s.writeQueue(); err != nil {
		return queue.Item{}, err
	}
	return item, nil
}

// SupersedePending invalidates the previous generation.
func (s *Disk) SupersedePending(_ context.Context) (int, error) {
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
	if count == 0 {
		return 0, nil
	}
	return count, s.writeQueue()
}

// SaveSnapshots appends to the snapshot history, newest first, pruned to the
// configured cap.
func (s *Disk) SaveSnapshots(_ context.Context, snaps []indices.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = append(append([]indices.Snapshot{}, snaps...), s.snapshots...)
	if s.maxSnapshots > 0 && len(s.snapshots) > s.maxSnapshots {
		s.snapshots = s.snapshots[:s.maxSnapshots]
	}

	return s.writeSnapshots()
}

// LoadSnapshots returns snapshots newest first.
func (s *Disk) LoadSnapshots(_ context.Context, limit int) ([]indices.Snapshot, error) {
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

// writeQueue persists the full queue document. Callers hold the lock.
func (s *Disk) writeQueue() error {
	items := make([]queue.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	sortQueue(items)

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, queueFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write queue file: %w", err)
	}
	return nil
}

// writeSnapshots persists the snapshot history. Callers hold the lock.
func (s *Disk) writeSnapshots() error {
	data, err := json.MarshalIndent(s.snapshots, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshots: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, snapshotsFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshots file: %w", err)
	}
	return nil
}

// pruneExecutions drops the oldest execution files past the cap. Callers
// hold the lock.
func (s *Disk) pruneExecutions() {
	if s.maxExecutions <= 0 || len(s.executions) <= s.maxExecutions {
		return
	}

	records := make([]execution.Record, 0, len(s.executions))
	for _, rec := range s.executions {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})

	for _, rec := range records[s.maxExecutions:] {
		if path, ok := s.files[rec.ID]; ok {
			if err := os.Remove(path); err != nil {
				s.logger.Warn("failed to remove pruned execution file", "path", path, "error", err)
			}
		}
		delete(s.executions, rec.ID)
		delete(s.files, rec.ID)
	}
}

// load reads all persisted state from the store directory.
func (s *Disk) load() error {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read store directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		if file.Name() == queueFile || file.Name() == snapshotsFile {
			continue
		}

		path := filepath.Join(s.dir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("failed to read execution file", "file", path, "error", err)
			continue
		}

		var rec execution.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("failed to parse execution file", "file", path, "error", err)
			continue
		}
		if rec.ID == "" {
			s.logger.Warn("skipping execution file without an id", "file", path)
			continue
		}

		s.executions[rec.ID] = rec
		s.files[rec.ID] = path
	}
	s.pruneExecutions()

	if data, err := os.ReadFile(filepath.Join(s.dir, queueFile)); err == nil {
		var items []queue.Item
		if err := json.Unmarshal(data, &items); err != nil {
			s.logger.Warn("failed to parse queue file", "error", err)
		} else {
			for _, item := range items {
				s.items[item.ID] = item
			}
		}
	}

	if data, err := os.ReadFile(filepath.Join(s.dir, snapshotsFile)); err == nil {
		if err := json.Unmarshal(data, &s.snapshots); err != nil {
			s.logger.Warn("failed to parse snapshots file", "error", err)
		}
	}

	s.logger.Info("loaded store state from disk",
		"executions", len(s.executions),
		"queue_items", len(s.items),
		"snapshots", len(s.snapshots))
	return nil
}

// executionFilename names execution files by start time plus a short id
// suffix so records remain distinct within one second.
func executionFilename(rec execution.Record) string {
	id := rec.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s_%s.json", rec.StartedAt.Format("2006-01-02T15-04-05"), id)
}

// sortQueue orders items by generation (newest first), then priority
// descending, then contract id.
func sortQueue(items []queue.Item) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].GeneratedAt.Equal(items[j].GeneratedAt) {
			return items[i].GeneratedAt.After(items[j].GeneratedAt)
		}
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].ContractID < items[j].ContractID
	})
}
