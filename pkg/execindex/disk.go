package execindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loomworks/loom/pkg/models"
)

const (
	indexFileName = "executions.json"
	indexVersion  = 1
)

// indexFile is the on-disk shape of the whole index.
type indexFile struct {
	Version int                           `json:"version"`
	SavedAt time.Time                     `json:"saved_at"`
	Entries map[string]*models.IndexEntry `json:"entries"`
}

// SaveToDisk writes the full index atomically. It is also what the debounce
// timer calls after the quiet period.
func (idx *Index) SaveToDisk() error {
	idx.mu.Lock()

	file := indexFile{
		Version: indexVersion,
		SavedAt: time.Now().UTC(),
		Entries: make(map[string]*models.IndexEntry, len(idx.entries)),
	}
	for id, entry := range idx.entries {
		file.Entries[id] = copyEntry(entry)
	}

	idx.mu.Unlock()

	if err := os.MkdirAll(idx.root, 0750); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution index: %w", err)
	}

	path := filepath.Join(idx.root, indexFileName)

	tmp, err := os.CreateTemp(idx.root, indexFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp index file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write index file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to close temp index file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to rename index file: %w", err)
	}

	return nil
}

// LoadFromDisk reads the index file, then scans the per-execution checkpoint
// directories to recover executions the file does not know about — e.g. when
// the process died before the last debounced save. Recovered entries carry
// the minimal metadata reconstructible from the latest checkpoint snapshot.
func (idx *Index) LoadFromDisk() error {
	path := filepath.Join(idx.root, indexFileName)

	body, err := os.ReadFile(filepath.Clean(path))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read execution index: %w", err)
	}

	loaded := make(map[string]*models.IndexEntry)

	if err == nil {
		var file indexFile

		if err := json.Unmarshal(body, &file); err != nil {
			idx.logger.Warn("Execution index file is corrupt, rebuilding from checkpoints", "error", err)
		} else {
			loaded = file.Entries
		}
	}

	recovered, err := idx.scanCheckpoints(loaded)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	idx.entries = loaded
	idx.mu.Unlock()

	if recovered > 0 {
		idx.logger.Info("Recovered executions missing from index file", "count", recovered)

		return idx.SaveToDisk()
	}

	return nil
}

// scanCheckpoints walks <root>/executions/*/latest.json and adds entries for
// executions missing from the loaded map. Returns how many were recovered.
func (idx *Index) scanCheckpoints(loaded map[string]*models.IndexEntry) (int, error) {
	executionsDir := filepath.Join(idx.root, "executions")

	dirEntries, err := os.ReadDir(executionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, fmt.Errorf("failed to scan checkpoint directories: %w", err)
	}

	recovered := 0

	for _, dirEntry := range dirEntries {
		if !dirEntry.IsDir() {
			continue
		}

		executionID := dirEntry.Name()
		if _, known := loaded[executionID]; known {
			continue
		}

		entry, err := idx.entryFromSnapshot(executionID)
		if err != nil {
			idx.logger.Warn("Skipping unrecoverable checkpoint directory",
				"execution_id", executionID, "error", err)

			continue
		}

		loaded[executionID] = entry
		recovered++
	}

	return recovered, nil
}

func (idx *Index) entryFromSnapshot(executionID string) (*models.IndexEntry, error) {
	path := filepath.Join(idx.root, "executions", executionID, "latest.json")

	body, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read latest snapshot: %w", err)
	}

	var state models.ExecutionState

	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal latest snapshot: %w", err)
	}

	entry := &models.IndexEntry{
		ExecutionID: state.ExecutionID,
		WorkflowID:  state.WorkflowID,
		Status:      state.Status,
		StartedAt:   state.CreatedAt,
		UpdatedAt:   state.UpdatedAt,
		CompletedAt: state.CompletedAt,
	}

	if len(state.CurrentNodes) > 0 {
		entry.CurrentNode = state.CurrentNodes[0]
	}

	if state.StartedAt != nil {
		entry.StartedAt = *state.StartedAt
	}

	return entry, nil
}

// scheduleSave (re)arms the debounce timer. Rapid successive writes collapse
// into a single save once the index has been quiet for the debounce period.
func (idx *Index) scheduleSave() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return
	}

	if idx.timer != nil {
		idx.timer.Stop()
	}

	idx.timer = time.AfterFunc(idx.debounce, func() {
		if err := idx.SaveToDisk(); err != nil {
			idx.logger.Error("Failed to persist execution index", "error", err)
		}
	})
}

// Close stops the debounce timer and flushes the index to disk.
func (idx *Index) Close() error {
	idx.mu.Lock()
	idx.closed = true

	if idx.timer != nil {
		idx.timer.Stop()
		idx.timer = nil
	}
	idx.mu.Unlock()

	return idx.SaveToDisk()
}
