// Package execution holds the durable model of one pipeline run: the record,
// its state machine, and the registry tracking live executions.
//
// Records are owned by the Registry. Only the pipeline runner driving an
// execution mutates its record, through the transition methods on Record;
// everyone else reads snapshot copies.
package execution

// Stage identifies one phase of the reprocessing pipeline.
type Stage string

const (
	// StageIndices collects economic index values.
	StageIndices Stage = "indices"
	// StageAnalysis analyzes spreadsheets and produces the contract list.
	StageAnalysis Stage = "analysis"
	// StageERP applies corrections in the ERP, one queue item at a time.
	StageERP Stage = "erp"
	// StageBank transmits updated payment books to the banking portal.
	StageBank Stage = "bank"
)

// Order is the canonical stage sequence. The completed stages of a record are
// always a strict prefix of it.
var Order = []Stage{StageIndices, StageAnalysis, StageERP, StageBank}

// NextStage returns the first stage not yet in completed, or false when all
// stages are done.
func NextStage(completed []Stage) (Stage, bool) {
	if len(completed) >= len(Order) {
		return "", false
	}
	return Order[len(completed)], true
}

// IsPrefix reports whether completed is a strict prefix of the canonical
// stage order.
func IsPrefix(completed []Stage) bool {
	if len(completed) > len(Order) {
		return false
	}
	for i, s := range completed {
		if Order[i] != s {
			return false
		}
	}
	return true
}
