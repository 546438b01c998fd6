// Package store persists execution records, queue items and index snapshots
// across two backends: a primary (Redis) and an always-available fallback
// (disk). The Hybrid type is the layer the rest of the system talks to; the
// individual backends share the Backend contract.
package store

import (
	"context"
	"errors"

	"github.com/mcouto/reparcel/execution"
	"github.com/mcouto/reparcel/indices"
	"github.com/mcouto/reparcel/queue"
)

var (
	// ErrNoData signals that a read found nothing, on whichever backend
	// answered.
	ErrNoData = errors.New("no data available")

	// ErrAlreadyClaimed is returned when a queue item claim loses the race
	// or the item is no longer pending.
	ErrAlreadyClaimed = errors.New("queue item already claimed")

	// ErrPersistenceDegraded is returned when a write failed on every
	// backend. Non-fatal to a running pipeline; surfaced through health.
	ErrPersistenceDegraded = errors.New("all store backends failed")
)

// Backend is the contract each storage backend implements. Reads return
// ErrNoData when the backend holds nothing for the request; claim attempts
// lost to another worker return ErrAlreadyClaimed.
type Backend interface {
	SaveExecution(ctx context.Context, rec execution.Record) error
	LoadExecution(ctx context.Context, id string) (execution.Record, error)
	// LoadRecentExecutions returns records sorted by start time descending.
	// A limit of 0 returns everything.
	LoadRecentExecutions(ctx context.Context, limit int) ([]execution.Record, error)

	// SaveQueue inserts a queue generation. Existing items are untouched;
	// call SupersedePending first when regenerating.
	SaveQueue(ctx context.Context, items []queue.Item) error
	SaveQueueItem(ctx context.Context, item queue.Item) error
	LoadQueue(ctx context.Context) ([]queue.Item, error)
	// ClaimQueueItem atomically moves a pending item to processing and
	// returns the claimed item. Exactly one caller wins a contested claim.
	ClaimQueueItem(ctx context.Context, id string) (queue.Item, error)
	// SupersedePending marks every pending item superseded and reports how
	// many were affected. Processing, done and failed items are untouched.
	SupersedePending(ctx context.Context) (int, error)

	SaveSnapshots(ctx context.Context, snaps []indices.Snapshot) error
	// LoadSnapshots returns snapshots newest first. A limit of 0 returns
	// everything.
	LoadSnapshots(ctx context.Context, limit int) ([]indices.Snapshot, error)
}
