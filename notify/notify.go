// Package notify fans pipeline events out to operator channels.
//
// Events carry a kind and a severity; each configured channel declares the
// kinds it wants and the minimum severity it cares about. Dispatch is
// per-channel independent: a failing channel never blocks the others.
package notify

// Kind identifies what happened.
type Kind string

const (
	KindExecutionStarted    Kind = "execution_started"
	KindExecutionCompleted  Kind = "execution_completed"
	KindExecutionFailed     Kind = "execution_failed"
	KindQueueEmpty          Kind = "queue_empty"
	KindPersistenceDegraded Kind = "persistence_degraded"
	KindDailyReport         Kind = "daily_report"
)

// Severity grades an event. Ordering is info < warning < error < critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// AtLeast reports whether s meets the given minimum. Unknown severities
// rank as info.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// Event is one notifiable occurrence in the pipeline.
type Event struct {
	Kind        Kind           `json:"kind"`
	Severity    Severity       `json:"severity"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}
