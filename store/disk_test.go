package store

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcouto/reparcel/execution"
	"github.com/mcouto/reparcel/indices"
	"github.com/mcouto/reparcel/queue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func testRecord(id string, state execution.State, startedAt time.Time) execution.Record {
	return execution.Record{
		ID:    id,
		State: state,
		Params: execution.Params{
			TargetSheetID:  "indices-2024",
			CalcSheetID:    "calc-2024",
			SupportSheetID: "support-2024",
		},
		TriggeredBy: "manual",
		StartedAt:   startedAt,
	}
}

func testItem(id, contract string, status queue.Status, priority int) queue.Item {
	return queue.Item{
		ID:          id,
		ContractID:  contract,
		Priority:    priority,
		Status:      status,
		GeneratedAt: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		Source:      queue.AnalysisRecord{ContractID: contract},
	}
}

func TestNewDisk_StartsEmpty(t *testing.T) {
	s, err := NewDisk(t.TempDir(), 10, 10, testLogger())
	require.NoError(t, err)

	_, err = s.LoadRecentExecutions(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNoData)

	_, err = s.LoadQueue(context.Background())
	assert.ErrorIs(t, err, ErrNoData)

	_, err = s.LoadSnapshots(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestDisk_SaveExecution_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDisk(dir, 10, 10, testLogger())
	require.NoError(t, err)

	started := time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)
	rec := testRecord("0190a1b2-exec-1", execution.StateCompleted, started)
	require.NoError(t, s.SaveExecution(context.Background(), rec))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "2024-06-10T09-30-00_0190a1b2.json", files[0].Name())

	got, err := s.LoadExecution(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, execution.StateCompleted, got.State)
}

func TestDisk_SaveExecution_ResaveOverwritesInPlace(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDisk(dir, 10, 10, testLogger())
	require.NoError(t, err)

	rec := testRecord("exec-1", execution.StateCreated, time.Now())
	require.NoError(t, s.SaveExecution(context.Background(), rec))

	rec.State = execution.StateIndicesRunning
	require.NoError(t, s.SaveExecution(context.Background(), rec))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	got, err := s.LoadExecution(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, execution.StateIndicesRunning, got.State)
}

func TestDisk_SaveExecution_RequiresID(t *testing.T) {
	s, err := NewDisk(t.TempDir(), 10, 10, testLogger())
	require.NoError(t, err)

	err = s.SaveExecution(context.Background(), execution.Record{StartedAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without an id")
}

func TestDisk_LoadRecentExecutions_SortedAndLimited(t *testing.T) {
	s, err := NewDisk(t.TempDir(), 10, 10, testLogger())
	require.NoError(t, err)

	base := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := testRecord(
			"exec-"+string(rune('a'+i)),
			execution.StateCompleted,
			base.Add(time.Duration(i)*time.Hour),
		)
		require.NoError(t, s.SaveExecution(context.Background(), rec))
	}

	records, err := s.LoadRecentExecutions(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "exec-e", records[0].ID)
	for i := 1; i < len(records); i++ {
		assert.True(t, records[i-1].StartedAt.After(records[i].StartedAt))
	}
}

func TestDisk_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewDisk(dir, 10, 10, testLogger())
	require.NoError(t, err)

	started := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s1.SaveExecution(ctx, testRecord("exec-1", execution.StateCompleted, started)))
	require.NoError(t, s1.SaveQueue(ctx, []queue.Item{testItem("CT-1-100", "CT-1", queue.StatusPending, 23)}))
	require.NoError(t, s1.SaveSnapshots(ctx, []indices.Snapshot{
		{Type: "incc", Value: 0.42, Source: "sinduscon", CollectedAt: started},
	}))

	s2, err := NewDisk(dir, 10, 10, testLogger())
	require.NoError(t, err)

	records, err := s2.LoadRecentExecutions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "exec-1", records[0].ID)
	assert.True(t, records[0].StartedAt.Equal(started))

	items, err := s2.LoadQueue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "CT-1", items[0].ContractID)
	assert.Equal(t, 23, items[0].Priority)

	snaps, err := s2.LoadSnapshots(ctx, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "incc", snaps[0].Type)
}

func TestDisk_PrunesOldestExecutions(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDisk(dir, 3, 10, testLogger())
	require.NoError(t, err)

	base := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		rec := testRecord(
			"exec-"+string(rune('a'+i)),
			execution.StateCompleted,
			base.Add(time.Duration(i)*time.Hour),
		)
		require.NoError(t, s.SaveExecution(context.Background(), rec))
	}

	records, err := s.LoadRecentExecutions(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, "exec-f", records[0].ID)

	// pruned files are gone from disk too
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	jsonCount := 0
	for _, f := range files {
		if filepath.Ext(f.Name()) == ".json" && f.Name() != queueFile && f.Name() != snapshotsFile {
			jsonCount++
		}
	}
	assert.Equal(t, 3, jsonCount)

	_, err = s.LoadExecution(context.Background(), "exec-a")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestDisk_ClaimQueueItem(t *testing.T) {
	s, err := NewDisk(t.TempDir(), 10, 10, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.SaveQueue(ctx, []queue.Item{testItem("CT-1-100", "CT-1", queue.StatusPending, 10)}))

	claimed, err := s.ClaimQueueItem(ctx, "CT-1-100")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusProcessing, claimed.Status)
	require.NotNil(t, claimed.ClaimedAt)

	_, err = s.ClaimQueueItem(ctx, "CT-1-100")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	_, err = s.ClaimQueueItem(ctx, "no-such-item")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestDisk_ClaimQueueItem_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	s, err := NewDisk(t.TempDir(), 10, 10, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.SaveQueue(ctx, []queue.Item{testItem("CT-1-100", "CT-1", queue.StatusPending, 10)}))

	const claimers = 8
	var wg sync.WaitGroup
	results := make(chan error, claimers)

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ClaimQueueItem(ctx, "CT-1-100")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyClaimed):
			losses++
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, claimers-1, losses)
}

func TestDisk_SupersedePending_LeavesOtherStatusesAlone(t *testing.T) {
	s, err := NewDisk(t.TempDir(), 10, 10, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.SaveQueue(ctx, []queue.Item{
		testItem("A-100", "A", queue.StatusPending, 10),
		testItem("B-100", "B", queue.StatusProcessing, 9),
		testItem("C-100", "C", queue.StatusDone, 8),
		testItem("D-100", "D", queue.StatusFailed, 7),
	}))

	count, err := s.SupersedePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	items, err := s.LoadQueue(ctx)
	require.NoError(t, err)

	byContract := make(map[string]queue.Status, len(items))
	for _, item := range items {
		byContract[item.ContractID] = item.Status
	}
	assert.Equal(t, queue.StatusSuperseded, byContract["A"])
	assert.Equal(t, queue.StatusProcessing, byContract["B"])
	assert.Equal(t, queue.StatusDone, byContract["C"])
	assert.Equal(t, queue.StatusFailed, byContract["D"])
}

func TestDisk_QueueRegeneration(t *testing.T) {
	s, err := NewDisk(t.TempDir(), 10, 10, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.SaveQueue(ctx, []queue.Item{
		testItem("A-100", "A", queue.StatusPending, 10),
		testItem("B-100", "B", queue.StatusProcessing, 9),
		testItem("C-100", "C", queue.StatusDone, 8),
	}))

	_, err = s.SupersedePending(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SaveQueue(ctx, []queue.Item{
		testItem("D-200", "D", queue.StatusPending, 6),
		testItem("E-200", "E", queue.StatusPending, 5),
	}))

	items, err := s.LoadQueue(ctx)
	require.NoError(t, err)

	active := make(map[string]queue.Status)
	for _, item := range items {
		if item.Status != queue.StatusSuperseded {
			active[item.ContractID] = item.Status
		}
	}
	assert.Equal(t, map[string]queue.Status{
		"B": queue.StatusProcessing,
		"C": queue.StatusDone,
		"D": queue.StatusPending,
		"E": queue.StatusPending,
	}, active)
}

func TestDisk_Snapshots_CappedNewestFirst(t *testing.T) {
	s, err := NewDisk(t.TempDir(), 10, 3, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		snap := indices.Snapshot{
			Type:        "incc",
			Value:       float64(i),
			Source:      "sinduscon",
			CollectedAt: base.AddDate(0, 0, i),
		}
		require.NoError(t, s.SaveSnapshots(ctx, []indices.Snapshot{snap}))
	}

	snaps, err := s.LoadSnapshots(ctx, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, 4.0, snaps[0].Value)
	assert.Equal(t, 2.0, snaps[2].Value)
}

func TestDisk_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "subdir"), 0755))

	s, err := NewDisk(dir, 10, 10, testLogger())
	require.NoError(t, err)

	_, err = s.LoadRecentExecutions(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNoData)
}
