// Package progress provides live per-stage status reporting for pipeline
// executions.
//
// The package follows the handler/writer split of the standard library's
// log/slog package:
//
//   - Line: writes status messages for one stage (analogous to slog.Logger)
//   - Board: receives and stores the latest message per stage (analogous
//     to slog.Handler)
//
// Messages are both logged and kept for the status endpoint, so an operator
// watching a long ERP pass sees "correcting contracts: 3 of 12 done" rather
// than a bare state name.
package progress

import (
	"log/slog"
	"sync"

	"github.com/mcouto/reparcel/execution"
)

// Board stores the latest status message per stage. It is the shared
// storage all Lines of an execution write to; the server reads it to
// display live progress.
type Board struct {
	messages map[execution.Stage]string
	mu       sync.RWMutex
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{
		messages: make(map[execution.Stage]string),
	}
}

// Set updates the message for a stage. Called by Line instances.
func (b *Board) Set(stage execution.Stage, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[stage] = message
}

// Get returns the current message for a stage.
func (b *Board) Get(stage execution.Stage) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.messages[stage]
}

// All returns a copy of every stage message.
func (b *Board) All() map[execution.Stage]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	copied := make(map[execution.Stage]string, len(b.messages))
	for k, v := range b.messages {
		copied[k] = v
	}
	return copied
}

// Clear drops all messages. The runner calls this when a new execution
// starts so stale progress from the previous run never shows.
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = make(map[execution.Stage]string)
}

// Line logs status with stage context AND updates the shared board.
// The runner creates one per stage; a nil board means messages are only
// logged.
type Line struct {
	logger *slog.Logger
	board  *Board
	stage  execution.Stage
}

// NewLine creates a status line bound to a stage.
func NewLine(stage execution.Stage, logger *slog.Logger, board *Board) *Line {
	return &Line{
		logger: logger,
		board:  board,
		stage:  stage,
	}
}

// Set logs the message with stage context and updates the board if present.
func (l *Line) Set(message string) {
	l.logger.Info(message, "stage", string(l.stage))
	if l.board != nil {
		l.board.Set(l.stage, message)
	}
}

// Fail records a terminal failure message for the stage.
func (l *Line) Fail(message string) {
	l.Set("❌ " + message)
}
