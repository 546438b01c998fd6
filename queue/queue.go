// Package queue turns contract analysis output into the prioritized,
// deduplicated work queue consumed by the erp and bank stages.
package queue

import (
	"time"
)

// Pending-issue codes carried on analysis records. A contract with none of
// these outstanding earns the full priority bonus.
const (
	IssueTaxClearance = "tax_clearance"
	IssueRegistryHold = "registry_hold"
	IssueDelinquency  = "delinquency"
)

// Status is the lifecycle state of a queue item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"

	// StatusSuperseded marks items invalidated by a newer queue generation.
	// They are kept for audit but excluded from the active queue.
	StatusSuperseded Status = "superseded"
)

// Active reports whether the item still belongs to the current queue
// generation and may be picked up by a worker.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusProcessing
}

// AnalysisRecord is one contract as reported by the analysis stage.
type AnalysisRecord struct {
	ContractID     string         `json:"contract_id"`
	Descriptive    map[string]any `json:"descriptive,omitempty"`
	LastAdjustment time.Time      `json:"last_adjustment"`
	PendingIssues  []string       `json:"pending_issues,omitempty"`
}

// HasIssue reports whether the given pending-issue code is outstanding.
func (r AnalysisRecord) HasIssue(code string) bool {
	for _, issue := range r.PendingIssues {
		if issue == code {
			return true
		}
	}
	return false
}

// Item is one unit of downstream work: a single contract queued for erp
// correction and bank transmission. The priority score is computed once at
// generation time and never changes for the life of the item.
type Item struct {
	ID          string         `json:"id"`
	ContractID  string         `json:"contract_id"`
	Priority    int            `json:"priority"`
	Status      Status         `json:"status"`
	GeneratedAt time.Time      `json:"generated_at"`
	ClaimedAt   *time.Time     `json:"claimed_at,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	Source      AnalysisRecord `json:"source"`

	// ArtifactRef is set by a successful erp pass and is the handle the
	// bank stage transmits. Empty until then.
	ArtifactRef string `json:"artifact_ref,omitempty"`

	// Error holds the failure reason when Status is failed.
	Error string `json:"error,omitempty"`
}
