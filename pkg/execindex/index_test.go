package execindex

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loomworks/loom/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	return NewIndex(t.TempDir(), logger)
}

func TestIndex_RegisterAndGet(t *testing.T) {
	idx := newTestIndex(t)

	idx.Register("exec-1", Registration{
		UserID:       "user-1",
		WorkflowID:   "wf-1",
		WorkflowName: "Weather report",
	})

	entry, err := idx.Get("exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, entry.Status)
	assert.Equal(t, "user-1", entry.UserID)

	_, err = idx.Get("missing")
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestIndex_UpdateStatusStampsCompletedAt(t *testing.T) {
	idx := newTestIndex(t)

	idx.Register("exec-1", Registration{UserID: "user-1", WorkflowID: "wf-1"})

	node := "transform"
	err := idx.UpdateStatus("exec-1", models.ExecutionStatusRunning, StatusUpdate{CurrentNode: &node})
	require.NoError(t, err)

	entry, err := idx.Get("exec-1")
	require.NoError(t, err)
	assert.Equal(t, "transform", entry.CurrentNode)
	assert.Nil(t, entry.CompletedAt)

	err = idx.UpdateStatus("exec-1", models.ExecutionStatusCompleted, StatusUpdate{})
	require.NoError(t, err)

	entry, err = idx.Get("exec-1")
	require.NoError(t, err)
	require.NotNil(t, entry.CompletedAt)
}

func TestIndex_PendingCheckpointLifecycle(t *testing.T) {
	idx := newTestIndex(t)

	idx.Register("exec-1", Registration{UserID: "user-1", WorkflowID: "wf-1"})

	err := idx.SetPendingCheckpoint("exec-1", map[string]any{"question": "approve?"})
	require.NoError(t, err)

	pending := idx.GetPendingCheckpoints()
	require.Len(t, pending, 1)
	assert.Equal(t, "approve?", pending[0].PendingCheckpoint["question"])

	err = idx.ClearPendingCheckpoint("exec-1")
	require.NoError(t, err)
	assert.Empty(t, idx.GetPendingCheckpoints())
}

func TestIndex_TerminalStatusClearsPendingCheckpoint(t *testing.T) {
	idx := newTestIndex(t)

	idx.Register("exec-1", Registration{UserID: "user-1", WorkflowID: "wf-1"})
	require.NoError(t, idx.SetPendingCheckpoint("exec-1", map[string]any{"q": "?"}))

	require.NoError(t, idx.UpdateStatus("exec-1", models.ExecutionStatusCancelled, StatusUpdate{}))

	entry, err := idx.Get("exec-1")
	require.NoError(t, err)
	assert.Nil(t, entry.PendingCheckpoint)
}

func TestIndex_GetByUser(t *testing.T) {
	idx := newTestIndex(t)

	base := time.Now().UTC()

	idx.Register("exec-1", Registration{UserID: "user-1", WorkflowID: "wf-1", StartedAt: base.Add(-3 * time.Hour)})
	idx.Register("exec-2", Registration{UserID: "user-1", WorkflowID: "wf-1", StartedAt: base.Add(-1 * time.Hour)})
	idx.Register("exec-3", Registration{UserID: "user-1", WorkflowID: "wf-2", StartedAt: base.Add(-2 * time.Hour)})
	idx.Register("exec-4", Registration{UserID: "user-2", WorkflowID: "wf-1", StartedAt: base})

	entries := idx.GetByUser("user-1", Query{})
	require.Len(t, entries, 3)
	assert.Equal(t, "exec-2", entries[0].ExecutionID, "sorted by startedAt descending")
	assert.Equal(t, "exec-3", entries[1].ExecutionID)
	assert.Equal(t, "exec-1", entries[2].ExecutionID)

	require.NoError(t, idx.UpdateStatus("exec-2", models.ExecutionStatusCompleted, StatusUpdate{}))

	completed := models.ExecutionStatusCompleted
	entries = idx.GetByUser("user-1", Query{Status: &completed})
	require.Len(t, entries, 1)
	assert.Equal(t, "exec-2", entries[0].ExecutionID)

	entries = idx.GetByUser("user-1", Query{Limit: 1, Offset: 1})
	require.Len(t, entries, 1)
	assert.Equal(t, "exec-3", entries[0].ExecutionID)

	assert.Empty(t, idx.GetByUser("user-1", Query{Offset: 10}))
}

func TestIndex_GetActive(t *testing.T) {
	idx := newTestIndex(t)

	idx.Register("exec-1", Registration{UserID: "u", WorkflowID: "wf"})
	idx.Register("exec-2", Registration{UserID: "u", WorkflowID: "wf"})
	require.NoError(t, idx.UpdateStatus("exec-2", models.ExecutionStatusFailed, StatusUpdate{}))

	active := idx.GetActive()
	require.Len(t, active, 1)
	assert.Equal(t, "exec-1", active[0].ExecutionID)
}

func TestIndex_SaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	idx := NewIndex(dir, logger)
	idx.Register("exec-1", Registration{UserID: "user-1", WorkflowID: "wf-1", WorkflowName: "Report"})
	require.NoError(t, idx.SaveToDisk())

	reborn := NewIndex(dir, logger)
	require.NoError(t, reborn.LoadFromDisk())

	entry, err := reborn.Get("exec-1")
	require.NoError(t, err)
	assert.Equal(t, "Report", entry.WorkflowName)
}

func TestIndex_LoadRecoversFromCheckpointScan(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Simulate an execution whose checkpoint exists but which never made it
	// into the index file (crash before the debounced save).
	startedAt := time.Now().UTC().Add(-time.Minute)
	state := models.ExecutionState{
		ExecutionID:  "exec-orphan",
		WorkflowID:   "wf-9",
		Status:       models.ExecutionStatusRunning,
		CurrentNodes: []string{"transform"},
		CreatedAt:    startedAt,
		UpdatedAt:    time.Now().UTC(),
	}

	execDir := filepath.Join(dir, "executions", "exec-orphan")
	require.NoError(t, os.MkdirAll(execDir, 0750))

	body, err := json.Marshal(state)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(execDir, "latest.json"), body, 0600))

	idx := NewIndex(dir, logger)
	require.NoError(t, idx.LoadFromDisk())

	entry, err := idx.Get("exec-orphan")
	require.NoError(t, err)
	assert.Equal(t, "wf-9", entry.WorkflowID)
	assert.Equal(t, models.ExecutionStatusRunning, entry.Status)
	assert.Equal(t, "transform", entry.CurrentNode)

	// The recovery is persisted so the next load sees a complete file.
	_, err = os.Stat(filepath.Join(dir, indexFileName))
	require.NoError(t, err)
}

func TestIndex_DebouncedSaveCoalesces(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	idx := NewIndex(dir, logger)
	idx.debounce = 50 * time.Millisecond

	idx.Register("exec-1", Registration{UserID: "u", WorkflowID: "wf"})
	require.NoError(t, idx.UpdateStatus("exec-1", models.ExecutionStatusRunning, StatusUpdate{}))

	// Before the quiet period elapses nothing is on disk yet.
	_, err := os.Stat(filepath.Join(dir, indexFileName))
	assert.True(t, os.IsNotExist(err))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, indexFileName))

		return err == nil
	}, time.Second, 10*time.Millisecond)
}

func TestIndex_CloseFlushes(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	idx := NewIndex(dir, logger)
	idx.Register("exec-1", Registration{UserID: "u", WorkflowID: "wf"})
	require.NoError(t, idx.Close())

	_, err := os.Stat(filepath.Join(dir, indexFileName))
	require.NoError(t, err)
}

func TestIndex_Remove(t *testing.T) {
	idx := newTestIndex(t)

	idx.Register("exec-1", Registration{UserID: "u", WorkflowID: "wf"})
	idx.Remove("exec-1")

	_, err := idx.Get("exec-1")
	require.ErrorIs(t, err, ErrEntryNotFound)
}
