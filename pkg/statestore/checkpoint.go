package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/loomworks/loom/pkg/models"
)

const latestSnapshotFile = "latest.json"

// executionDir is the per-execution checkpoint directory.
func (s *Store) executionDir(executionID string) string {
	return filepath.Join(s.root, "executions", executionID)
}

// Checkpoint writes a durable snapshot of the execution state and appends
// the checkpoint metadata to the state itself. The snapshot is written to a
// temp file and renamed so a crash never leaves a torn latest.json.
func (s *Store) Checkpoint(executionID, reason string) (*models.CheckpointMeta, error) {
	lock := s.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	checkpointID := "cp-" + uuid.New().String()[:8]

	state, err := s.mutate(executionID, func(state *models.ExecutionState) error {
		meta := models.CheckpointMeta{
			ID:           checkpointID,
			Reason:       reason,
			Status:       state.Status,
			CurrentNodes: append([]string{}, state.CurrentNodes...),
			Timestamp:    time.Now().UTC(),
		}
		state.Checkpoints = append(state.Checkpoints, meta)

		return nil
	})
	if err != nil {
		return nil, err
	}

	dir := s.executionDir(executionID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state for checkpoint %s: %w", checkpointID, err)
	}

	if err := writeFileAtomic(filepath.Join(dir, "checkpoint-"+checkpointID+".json"), data); err != nil {
		return nil, err
	}

	if err := writeFileAtomic(filepath.Join(dir, latestSnapshotFile), data); err != nil {
		return nil, err
	}

	meta := state.Checkpoints[len(state.Checkpoints)-1]

	s.logger.Debug("Checkpoint written",
		"execution_id", executionID,
		"checkpoint_id", checkpointID,
		"reason", reason,
	)

	return &meta, nil
}

// Restore loads a checkpoint snapshot back into the cache and returns it.
// An empty checkpointID selects the latest snapshot. The restored state is
// stamped with RestoredAt; everything else round-trips unchanged.
func (s *Store) Restore(executionID, checkpointID string) (*models.ExecutionState, error) {
	lock := s.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	file := latestSnapshotFile
	if checkpointID != "" {
		file = "checkpoint-" + checkpointID + ".json"
	}

	state, err := s.readSnapshot(executionID, file)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	state.RestoredAt = &now

	s.mu.Lock()
	s.cache[executionID] = state
	s.mu.Unlock()

	return state.Clone(), nil
}

// loadLatest reads the latest on-disk snapshot, used by cache-miss recovery.
func (s *Store) loadLatest(executionID string) (*models.ExecutionState, error) {
	state, err := s.readSnapshot(executionID, latestSnapshotFile)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	state.RestoredAt = &now

	return state, nil
}

func (s *Store) readSnapshot(executionID, file string) (*models.ExecutionState, error) {
	path := filepath.Join(s.executionDir(executionID), file)

	body, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			if file == latestSnapshotFile {
				return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
			}

			return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, file)
		}

		return nil, fmt.Errorf("failed to read snapshot for %s: %w", executionID, err)
	}

	var state models.ExecutionState

	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot for %s: %w", executionID, err)
	}

	return &state, nil
}

func (s *Store) removeCheckpoints(executionID string) error {
	err := os.RemoveAll(s.executionDir(executionID))
	if err != nil {
		return fmt.Errorf("failed to remove checkpoints for %s: %w", executionID, err)
	}

	return nil
}

// validateSize enforces the serialized-size ceiling before a mutation is
// accepted.
func validateSize(state *models.ExecutionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize state for size check: %w", err)
	}

	if len(data) > MaxStateSize {
		return fmt.Errorf("%w: %d bytes", ErrStateSizeExceeded, len(data))
	}

	return nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to close temp file for %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to rename temp file into %s: %w", path, err)
	}

	return nil
}
