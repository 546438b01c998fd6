package logging

import (
	"slices"
	"sync"
	"time"
)

// LogEntry is one captured log record.
type LogEntry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes"`
}

// Collector accumulates captured log entries keyed by scope. The pipeline
// runner keeps one per process with a scope per execution stage, which is
// what the execution logs endpoint serves. Safe for concurrent use.
type Collector struct {
	mu      sync.RWMutex
	entries map[string][]LogEntry
}

func NewCollector() *Collector {
	return &Collector{entries: make(map[string][]LogEntry)}
}

// Append records an entry under scope.
func (c *Collector) Append(scope string, entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[scope] = append(c.entries[scope], entry)
}

// Logs returns a copy of the entries captured under scope, oldest first.
func (c *Collector) Logs(scope string) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.entries[scope])
}

// Clear drops all captured entries.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}
