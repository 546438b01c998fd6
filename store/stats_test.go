package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mcouto/reparcel/execution"
	"github.com/mcouto/reparcel/queue"
)

func TestStatsFrom_Empty(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	s := statsFrom(nil, nil, now, 100)

	assert.Equal(t, 0, s.TotalExecutions)
	assert.Equal(t, 0, s.StartedToday)
	assert.Equal(t, 0.0, s.SuccessRate)
	assert.Equal(t, 0, s.ItemsThisMonth)
}

func TestStatsFrom_CountsAndBoundaries(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	// newest first, as the loaders return them
	records := []execution.Record{
		testRecord("exec-4", execution.StateCompleted, now.Add(-2*time.Hour)),
		testRecord("exec-3", execution.StateFailed, now.Add(-11*time.Hour)),
		testRecord("exec-2", execution.StateCompletedWithErrors, now.Add(-30*time.Hour)),
		testRecord("exec-1", execution.StateCompleted, now.AddDate(0, -1, 0)),
	}

	s := statsFrom(records, nil, now, 100)

	assert.Equal(t, 4, s.TotalExecutions)
	// exec-4 and exec-3 started on the local calendar day; exec-2 the day before
	assert.Equal(t, 2, s.StartedToday)
	// only fully completed runs count as successes
	assert.InDelta(t, 50.0, s.SuccessRate, 0.01)
}

func TestStatsFrom_SuccessRateUsesRecentWindowOnly(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	records := []execution.Record{
		testRecord("exec-3", execution.StateCompleted, now.Add(-1*time.Hour)),
		testRecord("exec-2", execution.StateCompleted, now.Add(-2*time.Hour)),
		testRecord("exec-1", execution.StateFailed, now.Add(-3*time.Hour)),
	}

	s := statsFrom(records, nil, now, 2)

	assert.InDelta(t, 100.0, s.SuccessRate, 0.01)
	assert.Equal(t, 2, s.RecentWindow)
	// the window narrows the rate, not the total
	assert.Equal(t, 3, s.TotalExecutions)
}

func TestStatsFrom_ItemsThisMonth(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	thisMonth := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	lastMonth := time.Date(2024, 5, 28, 10, 0, 0, 0, time.UTC)
	lastYear := time.Date(2023, 6, 10, 10, 0, 0, 0, time.UTC)

	doneNow := testItem("A-1", "A", queue.StatusDone, 10)
	doneNow.FinishedAt = &thisMonth
	doneOld := testItem("B-1", "B", queue.StatusDone, 9)
	doneOld.FinishedAt = &lastMonth
	doneLastYear := testItem("C-1", "C", queue.StatusDone, 8)
	doneLastYear.FinishedAt = &lastYear
	failedNow := testItem("D-1", "D", queue.StatusFailed, 7)
	failedNow.FinishedAt = &thisMonth
	doneNoTimestamp := testItem("E-1", "E", queue.StatusDone, 6)

	items := []queue.Item{doneNow, doneOld, doneLastYear, failedNow, doneNoTimestamp}

	s := statsFrom(nil, items, now, 100)

	assert.Equal(t, 1, s.ItemsThisMonth)
}
