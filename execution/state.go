package execution

// State represents where an execution is in its lifecycle. States are stored
// as strings so records survive the JSON round trip through both store
// backends.
type State string

const (
	StateCreated         State = "created"
	StateIndicesRunning  State = "indices_running"
	StateIndicesDone     State = "indices_done"
	StateAnalysisRunning State = "analysis_running"
	StateAnalysisDone    State = "analysis_done"
	// StateNoWork is the terminal short circuit taken when the analysis stage
	// produces an empty queue.
	StateNoWork      State = "no_work"
	StateERPRunning  State = "erp_running"
	StateERPDone     State = "erp_done"
	StateBankRunning State = "bank_running"
	StateCompleted   State = "completed"
	// StateCompletedWithErrors is terminal: some queue items failed while at
	// least one succeeded.
	StateCompletedWithErrors State = "completed_with_errors"
	StateFailed              State = "failed"
	StateCancelled           State = "cancelled"
)

// transitions is the set of legal state changes. Strictly linear except the
// no-work short circuit after analysis and the failure/cancellation exits.
// Cancellation is only reachable from stage boundaries, never from a running
// state: in-flight collaborator sessions cannot be safely aborted.
var transitions = map[State][]State{
	StateCreated:         {StateIndicesRunning, StateCancelled},
	StateIndicesRunning:  {StateIndicesDone, StateFailed},
	StateIndicesDone:     {StateAnalysisRunning, StateCancelled},
	StateAnalysisRunning: {StateAnalysisDone, StateFailed},
	StateAnalysisDone:    {StateERPRunning, StateNoWork, StateCancelled},
	StateERPRunning:      {StateERPDone, StateFailed},
	StateERPDone:         {StateBankRunning, StateCancelled},
	StateBankRunning:     {StateCompleted, StateCompletedWithErrors, StateFailed},
}

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// Terminal reports whether the state ends the execution.
func (s State) Terminal() bool {
	switch s {
	case StateNoWork, StateCompleted, StateCompletedWithErrors, StateFailed, StateCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// runningState maps a stage to its running state.
func runningState(stage Stage) State {
	switch stage {
	case StageIndices:
		return StateIndicesRunning
	case StageAnalysis:
		return StateAnalysisRunning
	case StageERP:
		return StateERPRunning
	case StageBank:
		return StateBankRunning
	}
	return ""
}

// doneState maps a stage to the state reached when it completes. The bank
// stage has no intermediate done state; finishing it completes the execution.
func doneState(stage Stage) State {
	switch stage {
	case StageIndices:
		return StateIndicesDone
	case StageAnalysis:
		return StateAnalysisDone
	case StageERP:
		return StateERPDone
	case StageBank:
		return StateCompleted
	}
	return ""
}
