// Package pipeline drives contract reprocessing executions through their
// four stages: index collection, spreadsheet analysis, ERP correction, and
// payment book submission. The Runner owns execution lifecycle and queue
// handling; the Executor wraps individual stage invocations with timeouts,
// panic recovery, and timing.
package pipeline

import (
	"context"
	"time"

	"github.com/mcouto/reparcel/execution"
)

// Result is the tagged outcome every stage collaborator reports. All four
// stage services answer in this shape regardless of transport.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Message string         `json:"message,omitempty"`
}

// StageFn invokes one stage collaborator. A non-nil error means the
// invocation itself could not complete (transport failure, bad payload);
// a Result with Success=false means the collaborator ran and reported
// failure. The Executor folds both into a failed StageOutcome.
type StageFn func(ctx context.Context, input map[string]any) (Result, error)

// Collaborators bundles the four stage functions a Runner drives.
type Collaborators struct {
	Indices  StageFn
	Analysis StageFn
	ERP      StageFn
	Bank     StageFn
}

// StageOutcome is the Executor's normalized verdict for one invocation.
// Duration is measured wall-clock around the collaborator call and is set
// on every path, including timeouts and panics.
type StageOutcome struct {
	Success   bool
	Data      map[string]any
	Message   string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

func (o StageOutcome) stageResult() execution.StageResult {
	return execution.StageResult{
		Success:    o.Success,
		Message:    o.Message,
		Error:      o.Error,
		Data:       o.Data,
		StartedAt:  o.StartedAt,
		DurationMs: o.Duration.Milliseconds(),
	}
}
