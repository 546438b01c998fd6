// Package handlers provides HTTP handlers for the reparcel server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"context"
	"time"

	"github.com/mcouto/reparcel/config"
	"github.com/mcouto/reparcel/execution"
	"github.com/mcouto/reparcel/indices"
	"github.com/mcouto/reparcel/logging"
	"github.com/mcouto/reparcel/pipeline"
	"github.com/mcouto/reparcel/queue"
	"github.com/mcouto/reparcel/server/types"
	"github.com/mcouto/reparcel/store"
)

// ConfigProvider provides access to the current pipeline configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// Reloader can reload its configuration.
type Reloader interface {
	Reload() error
}

// RunStarter starts pipeline executions.
type RunStarter interface {
	StartRun(params execution.Params, triggeredBy string) (string, error)
	DefaultParams() execution.Params
}

// ExecutionReader reads execution records. *execution.Registry satisfies it.
type ExecutionReader interface {
	Get(id string) (execution.Record, error)
	Records() []execution.Record
}

// ExecutionController cancels and evicts executions. *execution.Registry
// satisfies it.
type ExecutionController interface {
	Cancel(id string) error
	Evict(id string) error
	EvictAll() int
}

// LogsProvider returns the captured per-stage logs of an execution.
// *pipeline.Runner satisfies it.
type LogsProvider interface {
	Logs(id string) (map[execution.Stage][]logging.LogEntry, error)
}

// QueueReader loads the persisted work queue. *store.Hybrid satisfies it.
type QueueReader interface {
	LoadQueue(ctx context.Context) ([]queue.Item, error)
}

// QueueRebuilder regenerates the work queue from analysis records.
// *pipeline.Runner satisfies it.
type QueueRebuilder interface {
	RebuildQueue(ctx context.Context, records []queue.AnalysisRecord) ([]queue.Item, error)
}

// SnapshotsReader loads the index snapshot history. *store.Hybrid satisfies it.
type SnapshotsReader interface {
	LoadSnapshots(ctx context.Context, limit int) ([]indices.Snapshot, error)
}

// StatsProvider aggregates pipeline history. *store.Hybrid satisfies it.
type StatsProvider interface {
	Stats(ctx context.Context) (store.Stats, error)
}

// HealthReporter reports store backend health. *store.Hybrid satisfies it.
type HealthReporter interface {
	Health() store.Health
}

// StatusProvider aggregates everything the status endpoint reports.
type StatusProvider interface {
	Status() pipeline.RunStatus
	NextRun() *time.Time
	Health() store.Health
	Properties() types.ServerProperties
}
