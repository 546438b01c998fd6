package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcouto/reparcel/execution"
	"github.com/mcouto/reparcel/queue"
)

// queueStatuses lists every status the queue_items gauge reports. Absent
// statuses are written as zero so a drained status does not keep its last
// value.
var queueStatuses = []queue.Status{
	queue.StatusPending,
	queue.StatusProcessing,
	queue.StatusDone,
	queue.StatusFailed,
	queue.StatusSuperseded,
}

// Pipeline holds the instruments the reprocessing pipeline reports into.
// It satisfies the recorder interfaces of the pipeline and server packages.
type Pipeline struct {
	stageDuration GaugeVec
	stageRuns     CounterVec
	executions    CounterVec
	queueItems    GaugeVec
	notifications CounterVec
	storeFailures CounterVec
}

// NewPipeline registers the pipeline instruments with the given registry.
func NewPipeline(reg Registry) (*Pipeline, error) {
	stageDuration, err := reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reparcel_stage_duration_seconds",
		Help: "Wall clock duration of the most recent run of each stage",
	}, []string{"stage"})
	if err != nil {
		return nil, fmt.Errorf("creating stage duration gauge: %w", err)
	}

	stageRuns, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "reparcel_stage_runs_total",
		Help: "Stage invocations by stage and result",
	}, []string{"stage", "result"})
	if err != nil {
		return nil, fmt.Errorf("creating stage runs counter: %w", err)
	}

	executions, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "reparcel_executions_total",
		Help: "Finished executions by terminal state",
	}, []string{"state"})
	if err != nil {
		return nil, fmt.Errorf("creating executions counter: %w", err)
	}

	queueItems, err := reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reparcel_queue_items",
		Help: "Reprocessing queue items by status",
	}, []string{"status"})
	if err != nil {
		return nil, fmt.Errorf("creating queue items gauge: %w", err)
	}

	notifications, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "reparcel_notifications_total",
		Help: "Notification deliveries by channel and result",
	}, []string{"channel", "result"})
	if err != nil {
		return nil, fmt.Errorf("creating notifications counter: %w", err)
	}

	storeFailures, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "reparcel_store_write_failures_total",
		Help: "Store writes rejected by both backends, by operation",
	}, []string{"operation"})
	if err != nil {
		return nil, fmt.Errorf("creating store failures counter: %w", err)
	}

	return &Pipeline{
		stageDuration: stageDuration,
		stageRuns:     stageRuns,
		executions:    executions,
		queueItems:    queueItems,
		notifications: notifications,
		storeFailures: storeFailures,
	}, nil
}

// StageObserved records one stage invocation.
func (p *Pipeline) StageObserved(stage execution.Stage, d time.Duration, success bool) {
	p.stageDuration.With(prometheus.Labels{"stage": string(stage)}).Set(d.Seconds())
	p.stageRuns.With(prometheus.Labels{
		"stage":  string(stage),
		"result": resultLabel(success),
	}).Inc()
}

// ExecutionFinished records an execution reaching a terminal state.
func (p *Pipeline) ExecutionFinished(state execution.State) {
	p.executions.With(prometheus.Labels{"state": string(state)}).Inc()
}

// QueueObserved records the queue composition after a (re)build or a run.
func (p *Pipeline) QueueObserved(counts map[queue.Status]int) {
	for _, status := range queueStatuses {
		p.queueItems.With(prometheus.Labels{"status": string(status)}).Set(float64(counts[status]))
	}
}

// NotificationObserved records the per-channel outcome of one dispatch.
func (p *Pipeline) NotificationObserved(results map[string]bool) {
	for channel, ok := range results {
		p.notifications.With(prometheus.Labels{
			"channel": channel,
			"result":  resultLabel(ok),
		}).Inc()
	}
}

// StoreWriteFailed records a write rejected by both store backends.
func (p *Pipeline) StoreWriteFailed(operation string) {
	p.storeFailures.With(prometheus.Labels{"operation": operation}).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
