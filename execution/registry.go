package execution

import (
	"sort"
	"sync"
)

type entry struct {
	record          *Record
	cancelRequested bool
	done            chan struct{}
	finished        bool
}

// Registry tracks executions with an explicit lifecycle: create, read
// snapshots, cancel, evict. It is safe for concurrent use. Mutations go
// through Update so the record is only ever written under the registry lock,
// by the single runner driving that execution.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Create validates the parameters and registers a new execution record.
// It returns the execution id.
func (g *Registry) Create(params Params, triggeredBy string) (string, error) {
	rec, err := NewRecord(params, triggeredBy)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.entries[rec.ID] = &entry{
		record: rec,
		done:   make(chan struct{}),
	}
	return rec.ID, nil
}

// Get returns a snapshot copy of the record. It never blocks on an in-flight
// stage: callers always see the last consistent state.
func (g *Registry) Get(id string) (Record, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.entries[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return e.record.Clone(), nil
}

// List returns the known execution ids, most recently started first.
func (g *Registry) List() []string {
	records := g.Records()
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	return ids
}

// Records returns snapshot copies of all records, most recently started first.
func (g *Registry) Records() []Record {
	g.mu.RLock()
	defer g.mu.RUnlock()

	records := make([]Record, 0, len(g.entries))
	for _, e := range g.entries {
		records = append(records, e.record.Clone())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	return records
}

// Update applies fn to the record under the registry lock. When fn leaves the
// record in a terminal state the execution's done channel is closed. Only the
// runner driving the execution may call Update.
func (g *Registry) Update(id string, fn func(*Record) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(e.record); err != nil {
		return err
	}
	if e.record.State.Terminal() && !e.finished {
		e.finished = true
		close(e.done)
	}
	return nil
}

// Cancel requests cancellation. The runner honors it at the next stage
// boundary; an in-flight stage is never interrupted.
func (g *Registry) Cancel(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[id]
	if !ok {
		return ErrNotFound
	}
	if e.record.State.Terminal() {
		return ErrAlreadyTerminal
	}
	e.cancelRequested = true
	return nil
}

// CancelRequested reports whether cancellation was requested for id.
func (g *Registry) CancelRequested(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.entries[id]
	return ok && e.cancelRequested
}

// Done returns a channel closed when the execution reaches a terminal state.
func (g *Registry) Done(id string) (<-chan struct{}, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.done, nil
}

// Evict removes a finished execution from the registry. Running executions
// cannot be evicted.
func (g *Registry) Evict(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[id]
	if !ok {
		return ErrNotFound
	}
	if !e.record.State.Terminal() {
		return ErrStillRunning
	}
	delete(g.entries, id)
	return nil
}

// EvictAll removes every finished execution and returns how many were
// evicted. Running executions are left in place.
func (g *Registry) EvictAll() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	evicted := 0
	for id, e := range g.entries {
		if e.record.State.Terminal() {
			delete(g.entries, id)
			evicted++
		}
	}
	return evicted
}
