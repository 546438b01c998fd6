package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{
		TargetSheetID:  "indices-2024",
		CalcSheetID:    "calc-2024",
		SupportSheetID: "support-2024",
	}
}

func TestNewRecord_InitialState(t *testing.T) {
	rec, err := NewRecord(testParams(), "manual")
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, StateCreated, rec.State)
	assert.Empty(t, rec.CompletedStages)
	assert.Equal(t, "manual", rec.TriggeredBy)
	assert.False(t, rec.StartedAt.IsZero())
	assert.Nil(t, rec.EndedAt)
}

func TestNewRecord_IDsAreTimeOrdered(t *testing.T) {
	first, err := NewRecord(testParams(), "manual")
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)

	second, err := NewRecord(testParams(), "manual")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Less(t, first.ID, second.ID, "later executions should sort after earlier ones")
}

func TestNewRecord_RejectsMissingSheetIDs(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"missing target sheet", Params{CalcSheetID: "c", SupportSheetID: "s"}},
		{"missing calc sheet", Params{TargetSheetID: "t", SupportSheetID: "s"}},
		{"missing support sheet", Params{TargetSheetID: "t", CalcSheetID: "c"}},
		{"all missing", Params{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecord(tt.params, "manual")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidParameters)
		})
	}
}

func TestRecord_BeginStage_OnlyNextStageAllowed(t *testing.T) {
	rec, err := NewRecord(testParams(), "manual")
	require.NoError(t, err)

	// erp is not next from created
	err = rec.BeginStage(StageERP)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	require.NoError(t, rec.BeginStage(StageIndices))
	assert.Equal(t, StateIndicesRunning, rec.State)
	assert.Equal(t, StageIndices, rec.CurrentStage)
}

func TestRecord_FullLifecycle_Completed(t *testing.T) {
	rec, err := NewRecord(testParams(), "scheduled")
	require.NoError(t, err)

	res := StageResult{Success: true, StartedAt: time.Now()}

	require.NoError(t, rec.BeginStage(StageIndices))
	assert.True(t, IsPrefix(rec.CompletedStages))
	require.NoError(t, rec.FinishStage(StageIndices, res))
	assert.True(t, IsPrefix(rec.CompletedStages))
	assert.Equal(t, StateIndicesDone, rec.State)

	require.NoError(t, rec.BeginStage(StageAnalysis))
	require.NoError(t, rec.FinishStage(StageAnalysis, res))
	assert.True(t, IsPrefix(rec.CompletedStages))
	assert.Equal(t, StateAnalysisDone, rec.State)

	require.NoError(t, rec.BeginStage(StageERP))
	require.NoError(t, rec.FinishStage(StageERP, res))
	assert.True(t, IsPrefix(rec.CompletedStages))
	assert.Equal(t, StateERPDone, rec.State)

	require.NoError(t, rec.BeginStage(StageBank))
	require.NoError(t, rec.FinishBatch(res, 5, 0))
	assert.True(t, IsPrefix(rec.CompletedStages))

	assert.Equal(t, StateCompleted, rec.State)
	assert.Equal(t, []Stage{StageIndices, StageAnalysis, StageERP, StageBank}, rec.CompletedStages)
	assert.Empty(t, rec.CurrentStage)
	assert.NotNil(t, rec.EndedAt)
	assert.Equal(t, 5, rec.QueueSucceeded)
}

func TestRecord_FinishBatch_MixedResultsIsCompletedWithErrors(t *testing.T) {
	rec := recordAtBankRunning(t)

	require.NoError(t, rec.FinishBatch(StageResult{Success: true}, 3, 2))

	assert.Equal(t, StateCompletedWithErrors, rec.State)
	assert.Equal(t, 3, rec.QueueSucceeded)
	assert.Equal(t, 2, rec.QueueFailed)
	assert.Contains(t, rec.CompletedStages, StageBank)
}

func TestRecord_FinishBatch_NoneSucceededIsFailed(t *testing.T) {
	rec := recordAtBankRunning(t)

	require.NoError(t, rec.FinishBatch(StageResult{Success: false}, 0, 4))

	assert.Equal(t, StateFailed, rec.State)
	assert.Equal(t, 4, rec.QueueFailed)
	assert.NotContains(t, rec.CompletedStages, StageBank)
	assert.True(t, IsPrefix(rec.CompletedStages))
}

func TestRecord_Fail_HaltsExecution(t *testing.T) {
	rec, err := NewRecord(testParams(), "manual")
	require.NoError(t, err)

	require.NoError(t, rec.BeginStage(StageIndices))
	require.NoError(t, rec.Fail(StageIndices, StageResult{Success: false, Error: "portal unreachable"}, "portal unreachable"))

	assert.Equal(t, StateFailed, rec.State)
	assert.Equal(t, "portal unreachable", rec.Error)
	assert.NotContains(t, rec.CompletedStages, StageIndices)
	assert.NotNil(t, rec.EndedAt)

	// terminal records reject further work
	err = rec.BeginStage(StageIndices)
	assert.Error(t, err)
}

func TestRecord_MarkNoWork_AfterAnalysis(t *testing.T) {
	rec, err := NewRecord(testParams(), "manual")
	require.NoError(t, err)

	res := StageResult{Success: true}
	require.NoError(t, rec.BeginStage(StageIndices))
	require.NoError(t, rec.FinishStage(StageIndices, res))
	require.NoError(t, rec.BeginStage(StageAnalysis))
	require.NoError(t, rec.FinishStage(StageAnalysis, res))

	require.NoError(t, rec.MarkNoWork())
	assert.Equal(t, StateNoWork, rec.State)
	assert.True(t, rec.State.Terminal())
	assert.Equal(t, []Stage{StageIndices, StageAnalysis}, rec.CompletedStages)
}

func TestRecord_MarkNoWork_IllegalBeforeAnalysis(t *testing.T) {
	rec, err := NewRecord(testParams(), "manual")
	require.NoError(t, err)

	err = rec.MarkNoWork()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestRecord_MarkCancelled_AtStageBoundary(t *testing.T) {
	rec, err := NewRecord(testParams(), "manual")
	require.NoError(t, err)

	res := StageResult{Success: true}
	require.NoError(t, rec.BeginStage(StageIndices))
	require.NoError(t, rec.FinishStage(StageIndices, res))

	require.NoError(t, rec.MarkCancelled())
	assert.Equal(t, StateCancelled, rec.State)
	assert.NotNil(t, rec.EndedAt)
}

func TestRecord_MarkCancelled_RejectedMidStage(t *testing.T) {
	rec, err := NewRecord(testParams(), "manual")
	require.NoError(t, err)

	require.NoError(t, rec.BeginStage(StageIndices))

	err = rec.MarkCancelled()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestRecord_FinishStage_RejectsBank(t *testing.T) {
	rec := recordAtBankRunning(t)

	err := rec.FinishStage(StageBank, StageResult{Success: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestRecord_Clone_IsIsolated(t *testing.T) {
	rec, err := NewRecord(testParams(), "manual")
	require.NoError(t, err)

	require.NoError(t, rec.BeginStage(StageIndices))
	require.NoError(t, rec.FinishStage(StageIndices, StageResult{
		Success: true,
		Data:    map[string]any{"incc": 1.23},
	}))

	clone := rec.Clone()
	clone.CompletedStages[0] = StageBank
	clone.StageResults[StageIndices].Data["incc"] = 9.99
	clone.Error = "mutated"

	assert.Equal(t, StageIndices, rec.CompletedStages[0])
	assert.Equal(t, 1.23, rec.StageResults[StageIndices].Data["incc"])
	assert.Empty(t, rec.Error)
}

func TestState_Terminal(t *testing.T) {
	terminal := []State{StateNoWork, StateCompleted, StateCompletedWithErrors, StateFailed, StateCancelled}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}

	active := []State{StateCreated, StateIndicesRunning, StateIndicesDone, StateAnalysisRunning,
		StateAnalysisDone, StateERPRunning, StateERPDone, StateBankRunning}
	for _, s := range active {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestState_CanTransition(t *testing.T) {
	tests := []struct {
		from    State
		to      State
		allowed bool
	}{
		{StateCreated, StateIndicesRunning, true},
		{StateCreated, StateAnalysisRunning, false},
		{StateIndicesRunning, StateIndicesDone, true},
		{StateIndicesRunning, StateCancelled, false}, // mid-stage cancel forbidden
		{StateAnalysisDone, StateNoWork, true},
		{StateAnalysisDone, StateERPRunning, true},
		{StateAnalysisDone, StateBankRunning, false},
		{StateERPDone, StateBankRunning, true},
		{StateBankRunning, StateCompleted, true},
		{StateBankRunning, StateCompletedWithErrors, true},
		{StateCompleted, StateIndicesRunning, false},
		{StateFailed, StateIndicesRunning, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestIsPrefix(t *testing.T) {
	assert.True(t, IsPrefix(nil))
	assert.True(t, IsPrefix([]Stage{StageIndices}))
	assert.True(t, IsPrefix([]Stage{StageIndices, StageAnalysis}))
	assert.True(t, IsPrefix([]Stage{StageIndices, StageAnalysis, StageERP, StageBank}))
	assert.False(t, IsPrefix([]Stage{StageAnalysis}))
	assert.False(t, IsPrefix([]Stage{StageIndices, StageERP}))
	assert.False(t, IsPrefix([]Stage{StageIndices, StageAnalysis, StageERP, StageBank, StageBank}))
}

func TestNextStage(t *testing.T) {
	next, ok := NextStage(nil)
	require.True(t, ok)
	assert.Equal(t, StageIndices, next)

	next, ok = NextStage([]Stage{StageIndices, StageAnalysis})
	require.True(t, ok)
	assert.Equal(t, StageERP, next)

	_, ok = NextStage([]Stage{StageIndices, StageAnalysis, StageERP, StageBank})
	assert.False(t, ok)
}

// recordAtBankRunning walks a fresh record to the bank stage.
func recordAtBankRunning(t *testing.T) *Record {
	t.Helper()

	rec, err := NewRecord(testParams(), "manual")
	require.NoError(t, err)

	res := StageResult{Success: true}
	require.NoError(t, rec.BeginStage(StageIndices))
	require.NoError(t, rec.FinishStage(StageIndices, res))
	require.NoError(t, rec.BeginStage(StageAnalysis))
	require.NoError(t, rec.FinishStage(StageAnalysis, res))
	require.NoError(t, rec.BeginStage(StageERP))
	require.NoError(t, rec.FinishStage(StageERP, res))
	require.NoError(t, rec.BeginStage(StageBank))
	return rec
}
