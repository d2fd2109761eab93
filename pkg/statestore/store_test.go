package statestore

import (
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/loomworks/loom/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	return NewStore(t.TempDir(), logger)
}

func TestStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)

	created, err := store.Create("exec-1", "wf-1", []string{"start"}, map[string]any{"input": map[string]any{"city": "Berlin"}})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, created.Status)
	assert.Equal(t, []string{"start"}, created.CurrentNodes)

	got, err := store.Get("exec-1")
	require.NoError(t, err)
	assert.Equal(t, created.ExecutionID, got.ExecutionID)

	// Get hands out copies, not the cached instance.
	got.CurrentNodes[0] = "tampered"
	again, err := store.Get("exec-1")
	require.NoError(t, err)
	assert.Equal(t, "start", again.CurrentNodes[0])
}

func TestStore_GetUnknownExecution(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("nope")
	require.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestStore_UpdateDeepMergesData(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("exec-1", "wf-1", []string{"a"}, map[string]any{
		"input": map[string]any{"city": "Berlin", "unit": "metric"},
	})
	require.NoError(t, err)

	updated, err := store.Update("exec-1", Update{
		Data: map[string]any{"input": map[string]any{"unit": "imperial"}},
	})
	require.NoError(t, err)

	input := updated.Data["input"].(map[string]any)
	assert.Equal(t, "Berlin", input["city"])
	assert.Equal(t, "imperial", input["unit"])
}

func TestStore_MarkNodeCompleted(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("exec-1", "wf-1", []string{"a", "b"}, nil)
	require.NoError(t, err)

	result := &models.ExecutorResult{
		Output:       map[string]any{"value": 7},
		StateUpdates: map[string]any{"seen": true},
	}

	state, err := store.MarkNodeCompleted("exec-1", "a", result, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, state.CurrentNodes)
	assert.Equal(t, []string{"a"}, state.CompletedNodes)
	assert.Equal(t, 1, state.NodesExecuted)
	assert.Equal(t, true, state.Data["seen"])

	nodeResult := state.NodeResults()["a"].(map[string]any)
	assert.Equal(t, 1, nodeResult["iteration"])

	// currentNodes and completedNodes stay disjoint.
	for _, id := range state.CurrentNodes {
		assert.NotContains(t, state.CompletedNodes, id)
	}
}

func TestStore_MarkNodeCompleted_LoopKeepsCounterDistinct(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("exec-1", "wf-1", []string{"loop"}, nil)
	require.NoError(t, err)

	_, err = store.MarkNodeCompleted("exec-1", "loop", &models.ExecutorResult{}, 1)
	require.NoError(t, err)

	// Second visit of the same node in a cycle.
	_, err = store.Update("exec-1", Update{CurrentNodes: []string{"loop"}})
	require.NoError(t, err)

	state, err := store.MarkNodeCompleted("exec-1", "loop", &models.ExecutorResult{}, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"loop"}, state.CompletedNodes, "completed stays de-duplicated")
	assert.Equal(t, 2, state.NodesExecuted, "invocation counter counts every visit")
}

func TestStore_MarkNodeFailed(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("exec-1", "wf-1", []string{"a"}, nil)
	require.NoError(t, err)

	state, err := store.MarkNodeFailed("exec-1", "a", models.ExecutionError{
		Code:    "NODE_TIMEOUT",
		Message: "deadline exceeded",
	})
	require.NoError(t, err)

	assert.Empty(t, state.CurrentNodes)
	assert.Equal(t, []string{"a"}, state.FailedNodes)
	require.Len(t, state.Errors, 1)
	assert.Equal(t, "NODE_TIMEOUT", state.Errors[0].Code)
	assert.Equal(t, "a", state.Errors[0].NodeID)
}

func TestStore_SizeCeilingRejectsWithoutMutating(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("exec-1", "wf-1", []string{"a"}, map[string]any{"small": true})
	require.NoError(t, err)

	huge := strings.Repeat("x", MaxStateSize+1)

	_, err = store.Update("exec-1", Update{Data: map[string]any{"huge": huge}})
	require.ErrorIs(t, err, ErrStateSizeExceeded)

	state, err := store.Get("exec-1")
	require.NoError(t, err)
	assert.NotContains(t, state.Data, "huge")
	assert.Equal(t, true, state.Data["small"])
}

func TestStore_CheckpointRestoreRoundTrip(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("exec-1", "wf-1", []string{"b"}, map[string]any{
		"node_results": map[string]any{"a": map[string]any{"output": "done"}},
	})
	require.NoError(t, err)

	running := models.ExecutionStatusRunning
	_, err = store.Update("exec-1", Update{Status: &running})
	require.NoError(t, err)

	meta, err := store.Checkpoint("exec-1", "test")
	require.NoError(t, err)
	assert.Equal(t, "test", meta.Reason)
	assert.Equal(t, models.ExecutionStatusRunning, meta.Status)

	before, err := store.Get("exec-1")
	require.NoError(t, err)

	restored, err := store.Restore("exec-1", "")
	require.NoError(t, err)

	require.NotNil(t, restored.RestoredAt)
	restored.RestoredAt = nil
	before.RestoredAt = nil
	assert.Equal(t, before.Status, restored.Status)
	assert.Equal(t, before.CurrentNodes, restored.CurrentNodes)
	assert.Equal(t, before.Data, restored.Data)
	assert.Equal(t, before.Checkpoints, restored.Checkpoints)
}

func TestStore_RestoreSpecificCheckpoint(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("exec-1", "wf-1", []string{"a"}, nil)
	require.NoError(t, err)

	first, err := store.Checkpoint("exec-1", "first")
	require.NoError(t, err)

	_, err = store.Update("exec-1", Update{Data: map[string]any{"later": true}})
	require.NoError(t, err)

	_, err = store.Checkpoint("exec-1", "second")
	require.NoError(t, err)

	restored, err := store.Restore("exec-1", first.ID)
	require.NoError(t, err)
	assert.NotContains(t, restored.Data, "later")

	_, err = store.Restore("exec-1", "cp-missing")
	require.ErrorIs(t, err, ErrCheckpointNotFound)
}

func TestStore_CacheMissRecoversFromDisk(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store := NewStore(dir, logger)

	_, err := store.Create("exec-1", "wf-1", []string{"a"}, map[string]any{"k": "v"})
	require.NoError(t, err)

	_, err = store.Checkpoint("exec-1", "before-crash")
	require.NoError(t, err)

	// A new store over the same root simulates a process restart.
	reborn := NewStore(dir, logger)

	state, err := reborn.Get("exec-1")
	require.NoError(t, err)
	assert.Equal(t, "v", state.Data["k"])
	assert.NotNil(t, state.RestoredAt)
}

func TestStore_CleanupDropsCacheAndOptionallyCheckpoints(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store := NewStore(dir, logger)

	_, err := store.Create("exec-1", "wf-1", []string{"a"}, nil)
	require.NoError(t, err)
	_, err = store.Checkpoint("exec-1", "final")
	require.NoError(t, err)

	require.NoError(t, store.Cleanup("exec-1", true))

	// Checkpoints retained: Get recovers from disk.
	state, err := store.Get("exec-1")
	require.NoError(t, err)
	assert.Equal(t, "exec-1", state.ExecutionID)

	require.NoError(t, store.Cleanup("exec-1", false))

	_, err = store.Get("exec-1")
	require.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestStore_ListActive(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("exec-1", "wf-1", []string{"a"}, nil)
	require.NoError(t, err)
	_, err = store.Create("exec-2", "wf-2", []string{"a"}, nil)
	require.NoError(t, err)

	completed := models.ExecutionStatusCompleted
	_, err = store.Update("exec-2", Update{Status: &completed})
	require.NoError(t, err)

	assert.Equal(t, []string{"exec-1"}, store.ListActive())

	summaries := store.ActiveSummaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, "exec-1", summaries[0].ExecutionID)
}
