package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcouto/reparcel/execution"
	"github.com/mcouto/reparcel/indices"
	"github.com/mcouto/reparcel/queue"
)

// Redis is the primary backend. Records are stored as JSON values under
// prefixed keys; collection reads use SCAN pagination.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
	ttl    time.Duration // 0 keeps records forever
}

// NewRedis creates the primary backend on an existing client.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		logger: logger,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *Redis) SaveExecution(ctx context.Context, rec execution.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("cannot save execution without an id")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}
	if err := s.client.Set(ctx, s.executionKey(rec.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

func (s *Redis) LoadExecution(ctx context.Context, id string) (execution.Record, error) {
	data, err := s.client.Get(ctx, s.executionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return execution.Record{}, fmt.Errorf("execution %s: %w", id, ErrNoData)
		}
		return execution.Record{}, fmt.Errorf("failed to get execution: %w", err)
	}

	var rec execution.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return execution.Record{}, fmt.Errorf("failed to unmarshal execution: %w", err)
	}
	return rec, nil
}

func (s *Redis) LoadRecentExecutions(ctx context.Context, limit int) ([]execution.Record, error) {
	keys, err := s.scanKeys(ctx, s.prefix+":execution:*")
	if err != nil {
		return nil, err
	}

	records := make([]execution.Record, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				s.logger.Warn("failed to read execution key", "key", key, "error", err)
			}
			continue
		}
		var rec execution.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("failed to parse execution value", "key", key, "error", err)
			continue
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, ErrNoData
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Redis) SaveQueue(ctx context.Context, items []queue.Item) error {
	if len(items) == 0 {
		return nil
	}

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, item := range items {
			data, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("failed to marshal queue item %s: %w", item.ID, err)
			}
			pipe.Set(ctx, s.queueKey(item.ID), data, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save queue: %w", err)
	}
	return nil
}

func (s *Redis) SaveQueueItem(ctx context.Context, item queue.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}
	if err := s.client.Set(ctx, s.queueKey(item.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save queue item: %w", err)
	}
	return nil
}

func (s *Redis) LoadQueue(ctx context.Context) ([]queue.Item, error) {
	keys, err := s.scanKeys(ctx, s.prefix+":queue:*")
	if err != nil {
		return nil, err
	}

	items := make([]queue.Item, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				s.logger.Warn("failed to read queue key", "key", key, "error", err)
			}
			continue
		}
		var item queue.Item
		if err := json.Unmarshal(data, &item); err != nil {
			s.logger.Warn("failed to parse queue value", "key", key, "error", err)
			continue
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, ErrNoData
	}
	sortQueue(items)
	return items, nil
}

// ClaimQueueItem arbitrates the claim with a one-shot SETNX marker per item
// id, then records the processing status on the item itself. Item ids are
// unique per queue generation, so markers never carry over.
func (s *Redis) ClaimQueueItem(ctx context.Context, id string) (queue.Item, error) {
	data, err := s.client.Get(ctx, s.queueKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return queue.Item{}, fmt.Errorf("queue item %s: %w", id, ErrNoData)
		}
		return queue.Item{}, fmt.Errorf("failed to get queue item: %w", err)
	}

	var item queue.Item
	if err := json.Unmarshal(data, &item); err != nil {
		return queue.Item{}, fmt.Errorf("failed to unmarshal queue item: %w", err)
	}
	if item.Status != queue.StatusPending {
		return queue.Item{}, fmt.Errorf("queue item %s is %s: %w", id, item.Status, ErrAlreadyClaimed)
	}

	won, err := s.client.SetNX(ctx, s.claimKey(id), 1, s.ttl).Result()
	if err != nil {
		return queue.Item{}, fmt.Errorf("failed to claim queue item: %w", err)
	}
	if !won {
		return queue.Item{}, fmt.Errorf("queue item %s: %w", id, ErrAlreadyClaimed)
	}

	now := time.Now()
	item.Status = queue.StatusProcessing
	item.ClaimedAt = &now
	if err := s.SaveQueueItem(ctx, item); err != nil {
		return queue.Item{}, err
	}
	return item, nil
}

func (s *Redis) SupersedePending(ctx context.Context) (int, error) {
	keys, err := s.scanKeys(ctx, s.prefix+":queue:*")
	if err != nil {
		return 0, err
	}

	count := 0
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var item queue.Item
		if err := json.Unmarshal(data, &item); err != nil {
			continue
		}
		if item.Status != queue.StatusPending {
			continue
		}

		item.Status = queue.StatusSuperseded
		if err := s.SaveQueueItem(ctx, item); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *Redis) SaveSnapshots(ctx context.Context, snaps []indices.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, snap := range snaps {
			data, err := json.Marshal(snap)
			if err != nil {
				return fmt.Errorf("failed to marshal snapshot: %w", err)
			}
			pipe.Set(ctx, s.snapshotKey(snap), data, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshots: %w", err)
	}
	return nil
}

func (s *Redis) LoadSnapshots(ctx context.Context, limit int) ([]indices.Snapshot, error) {
	keys, err := s.scanKeys(ctx, s.prefix+":snapshot:*")
	if err != nil {
		return nil, err
	}

	snaps := make([]indices.Snapshot, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var snap indices.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			s.logger.Warn("failed to parse snapshot value", "key", key, "error", err)
			continue
		}
		snaps = append(snaps, snap)
	}

	if len(snaps) == 0 {
		return nil, ErrNoData
	}

	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].CollectedAt.Equal(snaps[j].CollectedAt) {
			return snaps[i].CollectedAt.After(snaps[j].CollectedAt)
		}
		return snaps[i].Type < snaps[j].Type
	})
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps, nil
}

// scanKeys pages through SCAN until the cursor wraps.
func (s *Redis) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var cursor uint64
	var keys []string

	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func (s *Redis) executionKey(id string) string {
	return fmt.Sprintf("%s:execution:%s", s.prefix, id)
}

func (s *Redis) queueKey(id string) string {
	return fmt.Sprintf("%s:queue:%s", s.prefix, id)
}

func (s *Redis) claimKey(id string) string {
	return fmt.Sprintf("%s:claim:%s", s.prefix, id)
}

func (s *Redis) snapshotKey(snap indices.Snapshot) string {
	return fmt.Sprintf("%s:snapshot:%d:%s", s.prefix, snap.CollectedAt.UnixNano(), snap.Type)
}
