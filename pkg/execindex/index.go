// Package execindex maintains a secondary, user-keyed index of workflow
// executions for listing and management. It is independently persisted with
// debounced writes and self-heals from the checkpoint directories when its
// own file is stale or missing.
package execindex

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/loomworks/loom/pkg/models"
)

// ErrEntryNotFound indicates the execution is not present in the index.
var ErrEntryNotFound = errors.New("execution index entry not found")

// DefaultSaveDebounce is the quiet period the index waits for after a write
// before persisting, so bursty status updates coalesce into one save.
const DefaultSaveDebounce = 500 * time.Millisecond

// Registration carries the initial metadata for a new index entry.
type Registration struct {
	UserID       string
	WorkflowID   string
	WorkflowName string
	Status       models.ExecutionStatus
	StartedAt    time.Time
}

// StatusUpdate carries the optional fields of an UpdateStatus call.
type StatusUpdate struct {
	CurrentNode       *string
	PendingCheckpoint map[string]any
}

// Query filters GetByUser listings.
type Query struct {
	Status *models.ExecutionStatus
	Limit  int
	Offset int
}

// Index is the in-memory execution index plus its debounced file persistence.
type Index struct {
	root     string
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	entries map[string]*models.IndexEntry
	timer   *time.Timer
	closed  bool
}

// NewIndex creates an index rooted at the given data directory. It shares the
// directory layout with the state store so recovery can scan checkpoint
// folders.
func NewIndex(root string, logger *slog.Logger) *Index {
	return &Index{
		root:     root,
		logger:   logger.With("module", "execindex"),
		debounce: DefaultSaveDebounce,
		entries:  make(map[string]*models.IndexEntry),
	}
}

// Register adds a new entry for an execution.
func (idx *Index) Register(executionID string, reg Registration) *models.IndexEntry {
	now := time.Now().UTC()

	startedAt := reg.StartedAt
	if startedAt.IsZero() {
		startedAt = now
	}

	entry := &models.IndexEntry{
		ExecutionID:  executionID,
		UserID:       reg.UserID,
		WorkflowID:   reg.WorkflowID,
		WorkflowName: reg.WorkflowName,
		Status:       reg.Status,
		StartedAt:    startedAt,
		UpdatedAt:    now,
	}

	if entry.Status == "" {
		entry.Status = models.ExecutionStatusPending
	}

	idx.mu.Lock()
	idx.entries[executionID] = entry
	idx.mu.Unlock()

	idx.scheduleSave()

	return copyEntry(entry)
}

// UpdateStatus transitions an entry's status and stamps CompletedAt when the
// status is terminal.
func (idx *Index) UpdateStatus(executionID string, status models.ExecutionStatus, update StatusUpdate) error {
	idx.mu.Lock()

	entry, ok := idx.entries[executionID]
	if !ok {
		idx.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrEntryNotFound, executionID)
	}

	entry.Status = status
	entry.UpdatedAt = time.Now().UTC()

	if update.CurrentNode != nil {
		entry.CurrentNode = *update.CurrentNode
	}

	if update.PendingCheckpoint != nil {
		entry.PendingCheckpoint = update.PendingCheckpoint
	}

	if status.IsTerminal() {
		now := time.Now().UTC()
		entry.CompletedAt = &now
		entry.PendingCheckpoint = nil
	}

	idx.mu.Unlock()

	idx.scheduleSave()

	return nil
}

// SetPendingCheckpoint records a human-input request payload on a paused
// execution.
func (idx *Index) SetPendingCheckpoint(executionID string, checkpoint map[string]any) error {
	idx.mu.Lock()

	entry, ok := idx.entries[executionID]
	if !ok {
		idx.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrEntryNotFound, executionID)
	}

	entry.PendingCheckpoint = checkpoint
	entry.UpdatedAt = time.Now().UTC()
	idx.mu.Unlock()

	idx.scheduleSave()

	return nil
}

// ClearPendingCheckpoint removes the human-input request payload.
func (idx *Index) ClearPendingCheckpoint(executionID string) error {
	idx.mu.Lock()

	entry, ok := idx.entries[executionID]
	if !ok {
		idx.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrEntryNotFound, executionID)
	}

	entry.PendingCheckpoint = nil
	entry.UpdatedAt = time.Now().UTC()
	idx.mu.Unlock()

	idx.scheduleSave()

	return nil
}

// Get returns a copy of one entry.
func (idx *Index) Get(executionID string) (*models.IndexEntry, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	entry, ok := idx.entries[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, executionID)
	}

	return copyEntry(entry), nil
}

// GetByUser lists a user's executions sorted by StartedAt descending, with
// optional status filtering and limit/offset pagination.
func (idx *Index) GetByUser(userID string, query Query) []*models.IndexEntry {
	idx.mu.Lock()

	var matched []*models.IndexEntry

	for _, entry := range idx.entries {
		if entry.UserID != userID {
			continue
		}

		if query.Status != nil && entry.Status != *query.Status {
			continue
		}

		matched = append(matched, copyEntry(entry))
	}

	idx.mu.Unlock()

	slices.SortFunc(matched, func(a, b *models.IndexEntry) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	if query.Offset > 0 {
		if query.Offset >= len(matched) {
			return nil
		}

		matched = matched[query.Offset:]
	}

	if query.Limit > 0 && query.Limit < len(matched) {
		matched = matched[:query.Limit]
	}

	return matched
}

// GetActive returns all non-terminal entries.
func (idx *Index) GetActive() []*models.IndexEntry {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var active []*models.IndexEntry

	for _, entry := range idx.entries {
		if !entry.Status.IsTerminal() {
			active = append(active, copyEntry(entry))
		}
	}

	slices.SortFunc(active, func(a, b *models.IndexEntry) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	return active
}

// GetPendingCheckpoints returns all entries paused on a human-input request.
func (idx *Index) GetPendingCheckpoints() []*models.IndexEntry {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var pending []*models.IndexEntry

	for _, entry := range idx.entries {
		if entry.PendingCheckpoint != nil {
			pending = append(pending, copyEntry(entry))
		}
	}

	slices.SortFunc(pending, func(a, b *models.IndexEntry) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	return pending
}

// Remove deletes an entry from the index.
func (idx *Index) Remove(executionID string) {
	idx.mu.Lock()
	delete(idx.entries, executionID)
	idx.mu.Unlock()

	idx.scheduleSave()
}

func copyEntry(entry *models.IndexEntry) *models.IndexEntry {
	clone := *entry

	if entry.PendingCheckpoint != nil {
		checkpoint := make(map[string]any, len(entry.PendingCheckpoint))
		for k, v := range entry.PendingCheckpoint {
			checkpoint[k] = v
		}

		clone.PendingCheckpoint = checkpoint
	}

	return &clone
}
