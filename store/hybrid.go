package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mcouto/reparcel/execution"
	"github.com/mcouto/reparcel/indices"
	"github.com/mcouto/reparcel/queue"
)

// Health reports the last observed write outcome per backend.
type Health struct {
	PrimaryOK   bool `json:"primary_ok"`
	SecondaryOK bool `json:"secondary_ok"`
}

// Degraded reports whether the last write failed on every backend.
func (h Health) Degraded() bool {
	return !h.PrimaryOK && !h.SecondaryOK
}

// Hybrid is the persistence layer the pipeline talks to. Every write is
// attempted on both backends and succeeds if either accepted it; reads
// prefer the primary and fall back to the secondary without the caller
// noticing. A write that fails everywhere returns ErrPersistenceDegraded,
// which callers log and surface through health rather than abort on.
type Hybrid struct {
	primary   Backend
	secondary Backend
	logger    *slog.Logger

	recentWindow int
	now          func() time.Time

	primaryOK   atomic.Bool
	secondaryOK atomic.Bool
}

// NewHybrid combines a primary and a secondary backend. recentWindow is how
// many recent executions feed the success rate stat.
func NewHybrid(primary, secondary Backend, recentWindow int, logger *slog.Logger) *Hybrid {
	h := &Hybrid{
		primary:      primary,
		secondary:    secondary,
		logger:       logger,
		recentWindow: recentWindow,
		now:          time.Now,
	}
	h.primaryOK.Store(true)
	h.secondaryOK.Store(true)
	return h
}

// Health returns the backend status as of the most recent writes.
func (h *Hybrid) Health() Health {
	return Health{
		PrimaryOK:   h.primaryOK.Load(),
		SecondaryOK: h.secondaryOK.Load(),
	}
}

func (h *Hybrid) SaveExecution(ctx context.Context, rec execution.Record) error {
	return h.write("save execution", func(b Backend) error {
		return b.SaveExecution(ctx, rec)
	})
}

func (h *Hybrid) LoadExecution(ctx context.Context, id string) (execution.Record, error) {
	rec, err := h.primary.LoadExecution(ctx, id)
	if err == nil {
		return rec, nil
	}
	h.logger.Debug("primary store read failed, using secondary", "op", "load execution", "error", err)
	return h.secondary.LoadExecution(ctx, id)
}

func (h *Hybrid) LoadRecentExecutions(ctx context.Context, limit int) ([]execution.Record, error) {
	records, err := h.primary.LoadRecentExecutions(ctx, limit)
	if err == nil {
		return records, nil
	}
	h.logger.Debug("primary store read failed, using secondary", "op", "load recent executions", "error", err)
	return h.secondary.LoadRecentExecutions(ctx, limit)
}

func (h *Hybrid) SaveQueue(ctx context.Context, items []queue.Item) error {
	return h.write("save queue", func(b Backend) error {
		return b.SaveQueue(ctx, items)
	})
}

func (h *Hybrid) SaveQueueItem(ctx context.Context, item queue.Item) error {
	return h.write("save queue item", func(b Backend) error {
		return b.SaveQueueItem(ctx, item)
	})
}

func (h *Hybrid) LoadQueue(ctx context.Context) ([]queue.Item, error) {
	items, err := h.primary.LoadQueue(ctx)
	if err == nil {
		return items, nil
	}
	h.logger.Debug("primary store read failed, using secondary", "op", "load queue", "error", err)
	return h.secondary.LoadQueue(ctx)
}

// ClaimQueueItem claims on the primary; ErrAlreadyClaimed is an answer, not
// a failure, so only unreachable or missing data falls through to the
// secondary. A winning claim is mirrored to the other backend best effort.
func (h *Hybrid) ClaimQueueItem(ctx context.Context, id string) (queue.Item, error) {
	item, err := h.primary.ClaimQueueItem(ctx, id)
	if err == nil {
		h.mirrorItem(ctx, h.secondary, item, "secondary")
		return item, nil
	}
	if errors.Is(err, ErrAlreadyClaimed) {
		return queue.Item{}, err
	}

	h.logger.Debug("primary store claim failed, using secondary", "queue_item", id, "error", err)
	item, err = h.secondary.ClaimQueueItem(ctx, id)
	if err != nil {
		return queue.Item{}, err
	}
	h.mirrorItem(ctx, h.primary, item, "primary")
	return item, nil
}

func (h *Hybrid) SupersedePending(ctx context.Context) (int, error) {
	pcount, perr := h.primary.SupersedePending(ctx)
	if perr != nil {
		h.logger.Warn("primary store write failed", "op", "supersede pending", "error", perr)
	}
	scount, serr := h.secondary.SupersedePending(ctx)
	if serr != nil {
		h.logger.Warn("secondary store write failed", "op", "supersede pending", "error", serr)
	}
	h.primaryOK.Store(perr == nil)
	h.secondaryOK.Store(serr == nil)

	if perr != nil && serr != nil {
		return 0, fmt.Errorf("supersede pending: %w", ErrPersistenceDegraded)
	}
	if perr == nil {
		return pcount, nil
	}
	return scount, nil
}

func (h *Hybrid) SaveSnapshots(ctx context.Context, snaps []indices.Snapshot) error {
	return h.write("save snapshots", func(b Backend) error {
		return b.SaveSnapshots(ctx, snaps)
	})
}

func (h *Hybrid) LoadSnapshots(ctx context.Context, limit int) ([]indices.Snapshot, error) {
	snaps, err := h.primary.LoadSnapshots(ctx, limit)
	if err == nil {
		return snaps, nil
	}
	h.logger.Debug("primary store read failed, using secondary", "op", "load snapshots", "error", err)
	return h.secondary.LoadSnapshots(ctx, limit)
}

// Stats computes aggregates from loaded data, so the numbers mean the same
// thing regardless of which backend answered. ErrNoData counts as empty.
func (h *Hybrid) Stats(ctx context.Context) (Stats, error) {
	records, err := h.LoadRecentExecutions(ctx, 0)
	if err != nil && !errors.Is(err, ErrNoData) {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	items, err := h.LoadQueue(ctx)
	if err != nil && !errors.Is(err, ErrNoData) {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return statsFrom(records, items, h.now(), h.recentWindow), nil
}

// write runs one mutation against both backends. It fails only when both
// backends rejected the write.
func (h *Hybrid) write(op string, fn func(Backend) error) error {
	perr := fn(h.primary)
	if perr != nil {
		h.logger.Warn("primary store write failed", "op", op, "error", perr)
	}
	serr := fn(h.secondary)
	if serr != nil {
		h.logger.Warn("secondary store write failed", "op", op, "error", serr)
	}
	h.primaryOK.Store(perr == nil)
	h.secondaryOK.Store(serr == nil)

	if perr != nil && serr != nil {
		return fmt.Errorf("%s: %w", op, ErrPersistenceDegraded)
	}
	return nil
}

// mirrorItem copies a claimed item to the backend that did not arbitrate
// the claim.
func (h *Hybrid) mirrorItem(ctx context.Context, b Backend, item queue.Item, name string) {
	if err := b.SaveQueueItem(ctx, item); err != nil {
		h.logger.Debug("failed to mirror claimed item", "backend", name, "queue_item", item.ID, "error", err)
	}
}
