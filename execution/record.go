package execution

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcouto/reparcel/logging"
)

// Params is the immutable input snapshot taken when an execution is created.
type Params struct {
	// TargetSheetID is the spreadsheet the indices stage writes to.
	TargetSheetID string `json:"target_sheet_id"`
	// CalcSheetID is the calculation spreadsheet the analysis stage reads.
	CalcSheetID string `json:"calc_sheet_id"`
	// SupportSheetID is the supporting spreadsheet the analysis stage reads.
	SupportSheetID string `json:"support_sheet_id"`
	// CredentialsRef names the credential set stage collaborators should use.
	CredentialsRef string `json:"credentials_ref,omitempty"`
}

// Validate checks that the required spreadsheet identifiers are present.
func (p Params) Validate() error {
	if p.TargetSheetID == "" {
		return fmt.Errorf("%w: target sheet id is required", ErrInvalidParameters)
	}
	if p.CalcSheetID == "" {
		return fmt.Errorf("%w: calc sheet id is required", ErrInvalidParameters)
	}
	if p.SupportSheetID == "" {
		return fmt.Errorf("%w: support sheet id is required", ErrInvalidParameters)
	}
	return nil
}

// StageResult is the recorded outcome of one stage of one execution.
type StageResult struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message,omitempty"`
	Error      string             `json:"error,omitempty"`
	Data       map[string]any     `json:"data,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	DurationMs int64              `json:"duration_ms"`
	Logs       []logging.LogEntry `json:"logs,omitempty"`
}

// ItemError enumerates one queue item failure inside a batch stage.
type ItemError struct {
	ContractID string `json:"contract_id"`
	Stage      Stage  `json:"stage"`
	Error      string `json:"error"`
}

// Record tracks one end-to-end run of the pipeline.
//
// The completed stages are always a strict prefix of Order; the current stage
// is the first stage not yet completed, or empty once the record is terminal.
type Record struct {
	ID              string                `json:"id"`
	State           State                 `json:"state"`
	CurrentStage    Stage                 `json:"current_stage,omitempty"`
	CompletedStages []Stage               `json:"completed_stages"`
	StageResults    map[Stage]StageResult `json:"stage_results,omitempty"`
	Params          Params                `json:"params"`
	TriggeredBy     string                `json:"triggered_by,omitempty"`
	StartedAt       time.Time             `json:"started_at"`
	EndedAt         *time.Time            `json:"ended_at,omitempty"`
	Error           string                `json:"error,omitempty"`

	// Queue item accounting for the batch stages.
	QueueTotal     int         `json:"queue_total,omitempty"`
	QueueSucceeded int         `json:"queue_succeeded,omitempty"`
	QueueFailed    int         `json:"queue_failed,omitempty"`
	ItemErrors     []ItemError `json:"item_errors,omitempty"`
}

// NewRecord creates a record in the created state with a time-ordered,
// collision-resistant id.
func NewRecord(params Params, triggeredBy string) (*Record, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate execution id: %w", err)
	}
	return &Record{
		ID:              id.String(),
		State:           StateCreated,
		CompletedStages: []Stage{},
		StageResults:    make(map[Stage]StageResult),
		Params:          params,
		TriggeredBy:     triggeredBy,
		StartedAt:       time.Now(),
	}, nil
}

// transition applies a legal state change or reports why it cannot.
func (r *Record) transition(next State) error {
	if r.State.Terminal() {
		return fmt.Errorf("%w: %s", ErrAlreadyTerminal, r.State)
	}
	if !r.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.State, next)
	}
	r.State = next
	return nil
}

// BeginStage moves the record into the running state for the given stage.
// The stage must be the next one in canonical order.
func (r *Record) BeginStage(stage Stage) error {
	next, ok := NextStage(r.CompletedStages)
	if !ok || next != stage {
		return fmt.Errorf("%w: stage %s is not next (completed %v)", ErrIllegalTransition, stage, r.CompletedStages)
	}
	if err := r.transition(runningState(stage)); err != nil {
		return err
	}
	r.CurrentStage = stage
	return nil
}

// FinishStage records a successful stage outcome and advances the machine.
// Finishing the bank stage is done through FinishBatch, which decides the
// terminal state from the item counts.
func (r *Record) FinishStage(stage Stage, res StageResult) error {
	if stage == StageBank {
		return fmt.Errorf("%w: bank stage finishes through FinishBatch", ErrIllegalTransition)
	}
	if err := r.completeStage(stage, res, doneState(stage)); err != nil {
		return err
	}
	return nil
}

// FinishBatch ends the bank stage from the per-item accounting: completed
// when every item made it through, completed_with_errors on a mix, failed
// when no item succeeded.
func (r *Record) FinishBatch(res StageResult, succeeded, failed int) error {
	if succeeded == 0 {
		if err := r.Fail(StageBank, res, "no queue items processed successfully"); err != nil {
			return err
		}
		r.QueueSucceeded = succeeded
		r.QueueFailed = failed
		return nil
	}
	terminal := StateCompleted
	if failed > 0 {
		terminal = StateCompletedWithErrors
	}
	if err := r.completeStage(StageBank, res, terminal); err != nil {
		return err
	}
	r.QueueSucceeded = succeeded
	r.QueueFailed = failed
	r.finish()
	return nil
}

func (r *Record) completeStage(stage Stage, res StageResult, next State) error {
	if r.CurrentStage != stage || r.State != runningState(stage) {
		return fmt.Errorf("%w: stage %s is not running", ErrIllegalTransition, stage)
	}
	if err := r.transition(next); err != nil {
		return err
	}
	r.CompletedStages = append(r.CompletedStages, stage)
	if !IsPrefix(r.CompletedStages) {
		return fmt.Errorf("%w: completed stages %v violate canonical order", ErrIllegalTransition, r.CompletedStages)
	}
	r.StageResults[stage] = res
	r.CurrentStage = ""
	return nil
}

// Fail records a failed stage outcome and moves the execution to failed.
// The stage is not added to the completed list.
func (r *Record) Fail(stage Stage, res StageResult, reason string) error {
	if r.CurrentStage != stage || r.State != runningState(stage) {
		return fmt.Errorf("%w: stage %s is not running", ErrIllegalTransition, stage)
	}
	if err := r.transition(StateFailed); err != nil {
		return err
	}
	r.StageResults[stage] = res
	r.Error = reason
	r.CurrentStage = ""
	r.finish()
	return nil
}

// MarkNoWork takes the short circuit for an empty analysis result.
func (r *Record) MarkNoWork() error {
	if err := r.transition(StateNoWork); err != nil {
		return err
	}
	r.finish()
	return nil
}

// MarkCancelled ends the execution at a stage boundary.
func (r *Record) MarkCancelled() error {
	if err := r.transition(StateCancelled); err != nil {
		return err
	}
	r.CurrentStage = ""
	r.finish()
	return nil
}

func (r *Record) finish() {
	now := time.Now()
	r.EndedAt = &now
}

// Clone returns a deep copy safe to hand to readers.
func (r *Record) Clone() Record {
	out := *r

	out.CompletedStages = make([]Stage, len(r.CompletedStages))
	copy(out.CompletedStages, r.CompletedStages)

	if r.StageResults != nil {
		out.StageResults = make(map[Stage]StageResult, len(r.StageResults))
		for stage, res := range r.StageResults {
			out.StageResults[stage] = res.clone()
		}
	}

	if r.ItemErrors != nil {
		out.ItemErrors = make([]ItemError, len(r.ItemErrors))
		copy(out.ItemErrors, r.ItemErrors)
	}

	if r.EndedAt != nil {
		ended := *r.EndedAt
		out.EndedAt = &ended
	}

	return out
}

func (sr StageResult) clone() StageResult {
	out := sr
	if sr.Data != nil {
		out.Data = make(map[string]any, len(sr.Data))
		for k, v := range sr.Data {
			out.Data[k] = v
		}
	}
	if sr.Logs != nil {
		out.Logs = make([]logging.LogEntry, len(sr.Logs))
		copy(out.Logs, sr.Logs)
	}
	return out
}
