package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcouto/reparcel/config"
	"github.com/mcouto/reparcel/execution"
	"github.com/mcouto/reparcel/indices"
	"github.com/mcouto/reparcel/logging"
	"github.com/mcouto/reparcel/notify"
	"github.com/mcouto/reparcel/progress"
	"github.com/mcouto/reparcel/queue"
	"github.com/mcouto/reparcel/store"
)

// ErrRunInProgress is returned by Start when an execution is already
// running. The pipeline drives shared external systems (spreadsheets, ERP,
// banking portal), so only one execution may run at a time.
//
// Example:
//
//	id, err := runner.Start(params, "manual")
//	if errors.Is(err, pipeline.ErrRunInProgress) {
//	    // surface 409 to the caller
//	}
var ErrRunInProgress = errors.New("an execution is already in progress")

// ConfigProvider supplies the configuration for each execution. It is
// consulted at run start, so configuration reloads take effect between runs
// without restarting the server.
type ConfigProvider interface {
	Config() *config.Config
}

// Store is the persistence surface the runner needs. *store.Hybrid
// satisfies it.
type Store interface {
	SaveExecution(ctx context.Context, rec execution.Record) error
	SaveQueue(ctx context.Context, items []queue.Item) error
	SaveQueueItem(ctx context.Context, item queue.Item) error
	ClaimQueueItem(ctx context.Context, id string) (queue.Item, error)
	SupersedePending(ctx context.Context) (int, error)
	SaveSnapshots(ctx context.Context, snaps []indices.Snapshot) error
}

// Notifier fans pipeline events out to operator channels.
// *notify.Dispatcher satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event notify.Event) map[string]bool
}

// Recorder receives pipeline measurements. metrics.Pipeline satisfies it.
type Recorder interface {
	StageObserved(stage execution.Stage, d time.Duration, success bool)
	ExecutionFinished(state execution.State)
	QueueObserved(counts map[queue.Status]int)
	StoreWriteFailed(operation string)
}

// Option configures a Runner.
type Option func(*Runner)

// WithNotifier sets the event notifier. Without it, events are dropped.
func WithNotifier(n Notifier) Option {
	return func(r *Runner) {
		r.notifier = n
	}
}

// WithRecorder sets the metrics recorder. Without it, measurements are
// dropped.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithQueueBuilder overrides the queue builder, letting tests pin the
// generation clock.
func WithQueueBuilder(b *queue.Builder) Option {
	return func(r *Runner) {
		r.builder = b
	}
}

// Runner drives executions through the four pipeline stages, one at a time:
// index collection, spreadsheet analysis, then per queue item the ERP
// correction and payment book submission. It owns the single-flight policy,
// queue generation, persistence of every state transition, and event
// notifications. Execution state itself lives in the registry.
type Runner struct {
	logger         *slog.Logger
	configProvider ConfigProvider
	registry       *execution.Registry
	store          Store
	collabs        Collaborators
	builder        *queue.Builder
	notifier       Notifier
	recorder       Recorder
	collector      *logging.Collector
	board          *progress.Board

	mu       sync.Mutex
	activeID string
}

// NewRunner creates a runner. The registry tracks execution records, the
// store persists them, and collabs supplies the four stage collaborators.
func NewRunner(logger *slog.Logger, configProvider ConfigProvider, registry *execution.Registry,
	st Store, collabs Collaborators, opts ...Option) *Runner {
	r := &Runner{
		logger:         logger,
		configProvider: configProvider,
		registry:       registry,
		store:          st,
		collabs:        collabs,
		builder:        queue.NewBuilder(),
		notifier:       noopNotifier{},
		recorder:       noopRecorder{},
		collector:      logging.NewCollector(),
		board:          progress.NewBoard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start validates the parameters, creates the execution record, and kicks
// off the pipeline on a background goroutine. It returns the execution id
// immediately; progress is observable through the registry and the store.
// A second Start while an execution is active fails with ErrRunInProgress.
func (r *Runner) Start(params execution.Params, triggeredBy string) (string, error) {
	r.mu.Lock()
	if r.activeID != "" {
		active := r.activeID
		r.mu.Unlock()
		return "", fmt.Errorf("%w: execution %s", ErrRunInProgress, active)
	}

	id, err := r.registry.Create(params, triggeredBy)
	if err != nil {
		r.mu.Unlock()
		return "", err
	}
	r.activeID = id
	r.mu.Unlock()

	go func() {
		defer r.clearActive(id)
		r.executeRun(context.Background(), id)
	}()

	return id, nil
}

// Active returns the id of the currently running execution, if any.
func (r *Runner) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID, r.activeID != ""
}

// RunStatus is a point-in-time view of the runner for status endpoints.
type RunStatus struct {
	Active bool            `json:"active"`
	ID     string          `json:"id,omitempty"`
	State  execution.State `json:"state,omitempty"`
	Stage  execution.Stage `json:"stage,omitempty"`
	// Progress holds the live per-stage status messages. Between runs it
	// still shows the most recent execution.
	Progress map[execution.Stage]string `json:"progress,omitempty"`
}

// Status reports the currently running execution, if any, together with the
// per-stage progress messages.
func (r *Runner) Status() RunStatus {
	status := RunStatus{Progress: r.board.All()}

	id, running := r.Active()
	if !running {
		return status
	}
	status.Active = true
	status.ID = id
	if rec, err := r.registry.Get(id); err == nil {
		status.State = rec.State
		status.Stage = rec.CurrentStage
	}
	return status
}

// RebuildQueue regenerates the work queue from raw analysis records without
// running the pipeline: previously pending items are superseded and the new
// items saved. It is refused while an execution is active, since the running
// batch stages own the queue.
func (r *Runner) RebuildQueue(ctx context.Context, records []queue.AnalysisRecord) ([]queue.Item, error) {
	if id, running := r.Active(); running {
		return nil, fmt.Errorf("%w: execution %s", ErrRunInProgress, id)
	}

	items := r.builder.Build(records)

	superseded, err := r.store.SupersedePending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to supersede pending queue items: %w", err)
	}
	if len(items) > 0 {
		if err := r.store.SaveQueue(ctx, items); err != nil {
			return nil, fmt.Errorf("failed to save rebuilt queue: %w", err)
		}
	}

	r.logger.Info("queue rebuilt", "items", len(items), "superseded", superseded)
	r.recorder.QueueObserved(queueCounts(items))
	return items, nil
}

// Progress returns the live per-stage status messages of the current (or,
// between runs, the most recent) execution.
func (r *Runner) Progress() map[execution.Stage]string {
	return r.board.All()
}

// Logs returns the captured log entries of an execution, keyed by stage.
// Finished stages come from the record; the stage currently running comes
// from the live capture buffer.
func (r *Runner) Logs(id string) (map[execution.Stage][]logging.LogEntry, error) {
	rec, err := r.registry.Get(id)
	if err != nil {
		return nil, err
	}

	logs := make(map[execution.Stage][]logging.LogEntry)
	for stage, res := range rec.StageResults {
		if len(res.Logs) > 0 {
			logs[stage] = res.Logs
		}
	}
	if active, running := r.Active(); running && active == id && rec.CurrentStage != "" {
		if live := r.collector.Logs(scopeFor(id, rec.CurrentStage)); len(live) > 0 {
			logs[rec.CurrentStage] = live
		}
	}
	return logs, nil
}

func (r *Runner) clearActive(id string) {
	r.mu.Lock()
	if r.activeID == id {
		r.activeID = ""
	}
	r.mu.Unlock()
}

// run bundles the mutable state of one execution.
type run struct {
	id       string
	cfg      *config.Config
	logger   *slog.Logger
	exec     *Executor
	snaps    []indices.Snapshot
	queued   int
	ready    []queue.Item
	erpFails []execution.ItemError
	degraded bool
}

func (r *Runner) executeRun(ctx context.Context, id string) {
	rec, err := r.registry.Get(id)
	if err != nil {
		r.logger.Error("execution vanished before start", "execution_id", id, "error", err)
		return
	}

	cfg := r.configProvider.Config()
	logger := r.logger.With("execution_id", id)

	r.collector.Clear()
	r.board.Clear()
	ru := &run{id: id, cfg: cfg, logger: logger}
	ru.exec = NewExecutor(stageTimeouts(cfg), logger, WithStageLoggers(func(stage execution.Stage) *slog.Logger {
		return logging.ScopedLogger(logger, r.collector, scopeFor(id, stage))
	}))

	logger.Info("execution started", "triggered_by", rec.TriggeredBy)
	r.persist(ctx, ru)
	r.notify(ctx, notify.Event{
		Kind:        notify.KindExecutionStarted,
		Severity:    notify.SeverityInfo,
		ExecutionID: id,
		Payload:     map[string]any{"triggered_by": rec.TriggeredBy},
	})

	r.runStages(ctx, ru)
	r.finish(ctx, ru)
}

func (r *Runner) runStages(ctx context.Context, ru *run) {
	if r.cancelled(ctx, ru) {
		return
	}
	if !r.runIndices(ctx, ru) {
		return
	}

	if r.cancelled(ctx, ru) {
		return
	}
	records, ok := r.runAnalysis(ctx, ru)
	if !ok {
		return
	}

	items := r.buildQueue(ctx, ru, records)
	if len(items) == 0 {
		ru.logger.Info("analysis produced no work")
		r.update(ctx, ru, func(rec *execution.Record) error { return rec.MarkNoWork() })
		return
	}

	if r.cancelled(ctx, ru) {
		return
	}
	if !r.runERP(ctx, ru, items) {
		return
	}

	if r.cancelled(ctx, ru) {
		return
	}
	r.runBank(ctx, ru)
}

// runIndices drives stage 1: collect index values and persist them as
// snapshots for the ERP stage and future runs.
func (r *Runner) runIndices(ctx context.Context, ru *run) bool {
	rec, err := r.registry.Get(ru.id)
	if err != nil {
		return false
	}
	if err := r.update(ctx, ru, func(rec *execution.Record) error {
		return rec.BeginStage(execution.StageIndices)
	}); err != nil {
		return false
	}

	line := r.line(ru, execution.StageIndices)
	line.Set("collecting economic indices")

	input := map[string]any{
		"targetSheetId":  rec.Params.TargetSheetID,
		"credentialsRef": ru.cfg.Stages.CredentialsRef,
	}
	outcome := ru.exec.Run(ctx, execution.StageIndices, r.collabs.Indices, input)
	r.recorder.StageObserved(execution.StageIndices, outcome.Duration, outcome.Success)

	if !outcome.Success {
		line.Fail(outcome.Error)
		r.failStage(ctx, ru, execution.StageIndices, r.stageResult(ru, execution.StageIndices, outcome), outcome.Error)
		return false
	}

	snaps, err := indices.FromStageData(outcome.Data, time.Now())
	if err != nil {
		outcome.Success = false
		outcome.Error = err.Error()
		line.Fail(outcome.Error)
		r.failStage(ctx, ru, execution.StageIndices, r.stageResult(ru, execution.StageIndices, outcome),
			fmt.Sprintf("invalid indices payload: %v", err))
		return false
	}
	ru.snaps = snaps
	line.Set(fmt.Sprintf("collected %d index values", len(snaps)))

	if err := r.store.SaveSnapshots(ctx, snaps); err != nil {
		r.storeDegraded(ctx, ru, "save index snapshots", err)
	}

	res := r.stageResult(ru, execution.StageIndices, outcome)
	return r.update(ctx, ru, func(rec *execution.Record) error {
		return rec.FinishStage(execution.StageIndices, res)
	}) == nil
}

// runAnalysis drives stage 2 and returns the parsed per-contract records.
func (r *Runner) runAnalysis(ctx context.Context, ru *run) ([]queue.AnalysisRecord, bool) {
	rec, err := r.registry.Get(ru.id)
	if err != nil {
		return nil, false
	}
	if err := r.update(ctx, ru, func(rec *execution.Record) error {
		return rec.BeginStage(execution.StageAnalysis)
	}); err != nil {
		return nil, false
	}

	line := r.line(ru, execution.StageAnalysis)
	line.Set("analyzing calculation and support spreadsheets")

	input := map[string]any{
		"calcSheetId":    rec.Params.CalcSheetID,
		"supportSheetId": rec.Params.SupportSheetID,
		"credentialsRef": ru.cfg.Stages.CredentialsRef,
	}
	outcome := ru.exec.Run(ctx, execution.StageAnalysis, r.collabs.Analysis, input)
	r.recorder.StageObserved(execution.StageAnalysis, outcome.Duration, outcome.Success)

	if !outcome.Success {
		line.Fail(outcome.Error)
		r.failStage(ctx, ru, execution.StageAnalysis, r.stageResult(ru, execution.StageAnalysis, outcome), outcome.Error)
		return nil, false
	}

	records, err := queue.FromStageData(outcome.Data)
	if err != nil {
		outcome.Success = false
		outcome.Error = err.Error()
		line.Fail(outcome.Error)
		r.failStage(ctx, ru, execution.StageAnalysis, r.stageResult(ru, execution.StageAnalysis, outcome),
			fmt.Sprintf("invalid analysis payload: %v", err))
		return nil, false
	}
	line.Set(fmt.Sprintf("found %d contracts to reprocess", len(records)))

	res := r.stageResult(ru, execution.StageAnalysis, outcome)
	if err := r.update(ctx, ru, func(rec *execution.Record) error {
		return rec.FinishStage(execution.StageAnalysis, res)
	}); err != nil {
		return nil, false
	}
	return records, true
}

// buildQueue turns analysis records into a fresh prioritized queue. The
// previous generation's pending items are superseded first; items already
// being processed or finished are left alone.
func (r *Runner) buildQueue(ctx context.Context, ru *run, records []queue.AnalysisRecord) []queue.Item {
	superseded, err := r.store.SupersedePending(ctx)
	if err != nil {
		r.storeDegraded(ctx, ru, "supersede pending queue items", err)
	} else if superseded > 0 {
		ru.logger.Info("superseded stale queue items", "count", superseded)
	}

	items := r.builder.Build(records)
	if len(items) == 0 {
		return nil
	}

	if err := r.store.SaveQueue(ctx, items); err != nil {
		r.storeDegraded(ctx, ru, "save queue", err)
	}
	r.update(ctx, ru, func(rec *execution.Record) error {
		rec.QueueTotal = len(items)
		return nil
	})

	ru.logger.Info("queue generated", "items", len(items), "top_priority", items[0].Priority)
	ru.queued = len(items)
	r.recorder.QueueObserved(queueCounts(items))
	return items
}

// runERP drives stage 3: claim each pending item and apply the correction in
// the ERP. Items that fail are marked and accounted; the stage itself fails
// only when no item succeeds.
func (r *Runner) runERP(ctx context.Context, ru *run, items []queue.Item) bool {
	if err := r.update(ctx, ru, func(rec *execution.Record) error {
		return rec.BeginStage(execution.StageERP)
	}); err != nil {
		return false
	}

	line := r.line(ru, execution.StageERP)
	line.Set(fmt.Sprintf("correcting contracts: 0 of %d done", len(items)))

	passStart := time.Now()
	var mu sync.Mutex
	var ready []queue.Item
	var fails []execution.ItemError
	handled := 0

	r.forEachItem(ru.cfg.Queue.Workers, items, func(item queue.Item) {
		defer func() {
			mu.Lock()
			handled++
			line.Set(fmt.Sprintf("correcting contracts: %d of %d done", handled, len(items)))
			mu.Unlock()
		}()

		claimed, err := r.store.ClaimQueueItem(ctx, item.ID)
		if err != nil {
			if errors.Is(err, store.ErrAlreadyClaimed) {
				ru.logger.Debug("queue item already claimed", "item", item.ID)
			} else {
				ru.logger.Warn("queue item claim failed", "item", item.ID, "error", err)
			}
			return
		}

		input := map[string]any{
			"contractRecord": claimed.Source,
			"indexSnapshot":  ru.snaps,
			"erpCredentials": ru.cfg.Stages.CredentialsRef,
		}
		outcome := ru.exec.Run(ctx, execution.StageERP, r.collabs.ERP, input)
		r.recorder.StageObserved(execution.StageERP, outcome.Duration, outcome.Success)

		artifact, _ := outcome.Data["artifactRef"].(string)
		if outcome.Success && artifact == "" {
			outcome.Success = false
			outcome.Error = "collaborator returned no artifact reference"
		}

		if outcome.Success {
			claimed.ArtifactRef = artifact
			mu.Lock()
			ready = append(ready, claimed)
			mu.Unlock()
		} else {
			now := time.Now()
			claimed.Status = queue.StatusFailed
			claimed.Error = outcome.Error
			claimed.FinishedAt = &now
			mu.Lock()
			fails = append(fails, execution.ItemError{
				ContractID: claimed.ContractID,
				Stage:      execution.StageERP,
				Error:      outcome.Error,
			})
			mu.Unlock()
		}
		if err := r.store.SaveQueueItem(ctx, claimed); err != nil {
			r.storeDegraded(ctx, ru, "save queue item", err)
		}
	})

	res := execution.StageResult{
		Success:    len(ready) > 0,
		Message:    fmt.Sprintf("%d of %d contracts corrected", len(ready), len(items)),
		StartedAt:  passStart,
		DurationMs: time.Since(passStart).Milliseconds(),
	}

	if len(ready) == 0 {
		res.Error = "no contract correction succeeded"
		line.Fail(res.Error)
		res.Logs = r.collector.Logs(scopeFor(ru.id, execution.StageERP))
		r.update(ctx, ru, func(rec *execution.Record) error {
			rec.ItemErrors = append(rec.ItemErrors, fails...)
			rec.QueueFailed = len(fails)
			return rec.Fail(execution.StageERP, res, res.Error)
		})
		return false
	}
	line.Set(res.Message)
	res.Logs = r.collector.Logs(scopeFor(ru.id, execution.StageERP))

	ru.ready = ready
	ru.erpFails = fails
	return r.update(ctx, ru, func(rec *execution.Record) error {
		rec.ItemErrors = append(rec.ItemErrors, fails...)
		return rec.FinishStage(execution.StageERP, res)
	}) == nil
}

// runBank drives stage 4: submit the payment book of every corrected item.
// The terminal state comes from the combined per-item accounting of stages
// 3 and 4.
func (r *Runner) runBank(ctx context.Context, ru *run) {
	if err := r.update(ctx, ru, func(rec *execution.Record) error {
		return rec.BeginStage(execution.StageBank)
	}); err != nil {
		return
	}

	line := r.line(ru, execution.StageBank)
	line.Set(fmt.Sprintf("submitting payment books: 0 of %d done", len(ru.ready)))

	passStart := time.Now()
	var mu sync.Mutex
	var fails []execution.ItemError
	succeeded := 0
	handled := 0

	r.forEachItem(ru.cfg.Queue.Workers, ru.ready, func(item queue.Item) {
		defer func() {
			mu.Lock()
			handled++
			line.Set(fmt.Sprintf("submitting payment books: %d of %d done", handled, len(ru.ready)))
			mu.Unlock()
		}()

		input := map[string]any{
			"artifactRef":     item.ArtifactRef,
			"bankCredentials": ru.cfg.Stages.CredentialsRef,
			"upstreamData":    item.Source.Descriptive,
		}
		outcome := ru.exec.Run(ctx, execution.StageBank, r.collabs.Bank, input)
		r.recorder.StageObserved(execution.StageBank, outcome.Duration, outcome.Success)

		now := time.Now()
		item.FinishedAt = &now
		if outcome.Success {
			item.Status = queue.StatusDone
			mu.Lock()
			succeeded++
			mu.Unlock()
		} else {
			item.Status = queue.StatusFailed
			item.Error = outcome.Error
			mu.Lock()
			fails = append(fails, execution.ItemError{
				ContractID: item.ContractID,
				Stage:      execution.StageBank,
				Error:      outcome.Error,
			})
			mu.Unlock()
		}
		if err := r.store.SaveQueueItem(ctx, item); err != nil {
			r.storeDegraded(ctx, ru, "save queue item", err)
		}
	})

	failed := len(ru.erpFails) + len(fails)
	res := execution.StageResult{
		Success:    succeeded > 0,
		Message:    fmt.Sprintf("%d of %d payment books submitted", succeeded, len(ru.ready)),
		StartedAt:  passStart,
		DurationMs: time.Since(passStart).Milliseconds(),
	}
	if succeeded == 0 {
		res.Error = "no payment book submission succeeded"
		line.Fail(res.Error)
	} else {
		line.Set(res.Message)
	}
	res.Logs = r.collector.Logs(scopeFor(ru.id, execution.StageBank))

	r.update(ctx, ru, func(rec *execution.Record) error {
		rec.ItemErrors = append(rec.ItemErrors, fails...)
		return rec.FinishBatch(res, succeeded, failed)
	})
}

// forEachItem fans items out to a bounded worker pool and waits for all of
// them to be handled.
func (r *Runner) forEachItem(workers int, items []queue.Item, fn func(queue.Item)) {
	if workers < 1 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan queue.Item)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				fn(item)
			}
		}()
	}
	for _, item := range items {
		jobs <- item
	}
	close(jobs)
	wg.Wait()
}

// cancelled honors a pending cancellation request at a stage boundary.
func (r *Runner) cancelled(ctx context.Context, ru *run) bool {
	if !r.registry.CancelRequested(ru.id) {
		return false
	}
	ru.logger.Info("cancellation honored at stage boundary")
	r.update(ctx, ru, func(rec *execution.Record) error { return rec.MarkCancelled() })
	return true
}

// update applies a record mutation through the registry and persists the
// resulting snapshot.
func (r *Runner) update(ctx context.Context, ru *run, fn func(*execution.Record) error) error {
	if err := r.registry.Update(ru.id, fn); err != nil {
		ru.logger.Error("state transition rejected", "error", err)
		return err
	}
	r.persist(ctx, ru)
	return nil
}

func (r *Runner) persist(ctx context.Context, ru *run) {
	rec, err := r.registry.Get(ru.id)
	if err != nil {
		return
	}
	if err := r.store.SaveExecution(ctx, rec); err != nil {
		r.storeDegraded(ctx, ru, "save execution", err)
	}
}

// storeDegraded logs a store failure and raises the degradation event once
// per run. Store trouble never aborts an execution.
func (r *Runner) storeDegraded(ctx context.Context, ru *run, op string, err error) {
	ru.logger.Error("store write failed", "operation", op, "error", err)
	r.recorder.StoreWriteFailed(op)
	if !errors.Is(err, store.ErrPersistenceDegraded) || ru.degraded {
		return
	}
	ru.degraded = true
	r.notify(ctx, notify.Event{
		Kind:        notify.KindPersistenceDegraded,
		Severity:    notify.SeverityCritical,
		ExecutionID: ru.id,
		Payload:     map[string]any{"operation": op, "error": err.Error()},
	})
}

func (r *Runner) failStage(ctx context.Context, ru *run, stage execution.Stage, res execution.StageResult, reason string) {
	r.update(ctx, ru, func(rec *execution.Record) error {
		return rec.Fail(stage, res, reason)
	})
}

// finish reports the terminal state: metrics, notification, and the closing
// log line.
func (r *Runner) finish(ctx context.Context, ru *run) {
	rec, err := r.registry.Get(ru.id)
	if err != nil {
		ru.logger.Error("finished execution missing from registry", "error", err)
		return
	}

	var duration time.Duration
	if rec.EndedAt != nil {
		duration = rec.EndedAt.Sub(rec.StartedAt).Round(time.Millisecond)
	}
	r.recorder.ExecutionFinished(rec.State)

	switch rec.State {
	case execution.StateCompleted, execution.StateCompletedWithErrors:
		severity := notify.SeverityInfo
		if rec.State == execution.StateCompletedWithErrors {
			severity = notify.SeverityWarning
		}
		r.notify(ctx, notify.Event{
			Kind:        notify.KindExecutionCompleted,
			Severity:    severity,
			ExecutionID: ru.id,
			Payload: map[string]any{
				"state":           string(rec.State),
				"queue_total":     rec.QueueTotal,
				"queue_succeeded": rec.QueueSucceeded,
				"queue_failed":    rec.QueueFailed,
				"duration":        duration.String(),
			},
		})
	case execution.StateNoWork:
		r.notify(ctx, notify.Event{
			Kind:        notify.KindQueueEmpty,
			Severity:    notify.SeverityInfo,
			ExecutionID: ru.id,
		})
	case execution.StateFailed:
		r.notify(ctx, notify.Event{
			Kind:        notify.KindExecutionFailed,
			Severity:    notify.SeverityError,
			ExecutionID: ru.id,
			Payload: map[string]any{
				"stage": string(failedStage(rec)),
				"error": rec.Error,
			},
		})
	}

	ru.logger.Info("execution finished", "state", string(rec.State), "duration", duration.String())
}

func (r *Runner) notify(ctx context.Context, event notify.Event) {
	r.notifier.Notify(ctx, event)
}

// stageResult converts an outcome and attaches the stage's captured logs.
func (r *Runner) stageResult(ru *run, stage execution.Stage, outcome StageOutcome) execution.StageResult {
	res := outcome.stageResult()
	res.Logs = r.collector.Logs(scopeFor(ru.id, stage))
	return res
}

// line builds the progress line for a stage. Its messages land on the board
// and in the stage's captured logs.
func (r *Runner) line(ru *run, stage execution.Stage) *progress.Line {
	return progress.NewLine(stage, logging.ScopedLogger(ru.logger, r.collector, scopeFor(ru.id, stage)), r.board)
}

// failedStage finds the stage whose result carries the failure.
func failedStage(rec execution.Record) execution.Stage {
	for _, stage := range execution.Order {
		if res, ok := rec.StageResults[stage]; ok && !res.Success {
			return stage
		}
	}
	return ""
}

func scopeFor(id string, stage execution.Stage) string {
	return id + "/" + string(stage)
}

func stageTimeouts(cfg *config.Config) map[execution.Stage]time.Duration {
	return map[execution.Stage]time.Duration{
		execution.StageIndices:  cfg.Stages.Indices.Timeout,
		execution.StageAnalysis: cfg.Stages.Analysis.Timeout,
		execution.StageERP:      cfg.Stages.ERP.Timeout,
		execution.StageBank:     cfg.Stages.Bank.Timeout,
	}
}

func queueCounts(items []queue.Item) map[queue.Status]int {
	counts := make(map[queue.Status]int)
	for _, item := range items {
		counts[item.Status]++
	}
	return counts
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, notify.Event) map[string]bool { return nil }

type noopRecorder struct{}

func (noopRecorder) StageObserved(execution.Stage, time.Duration, bool) {}
func (noopRecorder) ExecutionFinished(execution.State)                  {}
func (noopRecorder) QueueObserved(map[queue.Status]int)                 {}
func (noopRecorder) StoreWriteFailed(string)                            {}
