// Package statestore owns the authoritative, versioned execution state for
// running workflows: an in-memory cache in front of durable, per-execution
// checkpoint files. A single Store instance is constructed at composition
// time and injected into every engine so all callers observe the same
// in-flight executions.
package statestore

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/loomworks/loom/pkg/models"
)

// MaxStateSize is the hard ceiling on the serialized size of one execution
// state. Mutations that would exceed it fail fast instead of truncating.
const MaxStateSize = 50 << 20 // 50 MB

var (
	// ErrExecutionNotFound indicates no state exists for the given execution,
	// neither cached nor on disk.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrStateSizeExceeded indicates a mutation was rejected because the
	// resulting state would exceed MaxStateSize.
	ErrStateSizeExceeded = errors.New("execution state size limit exceeded")

	// ErrCheckpointNotFound indicates the requested checkpoint snapshot does
	// not exist on disk.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

// Update describes a partial state mutation. Data is deep-merged into the
// existing state data; every other non-zero field shallow-replaces its
// counterpart.
type Update struct {
	Status       *models.ExecutionStatus
	StatusLabel  *string
	CurrentNodes []string // nil leaves the set unchanged
	Data         map[string]any
	Output       any
	HasOutput    bool
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// Summary is a light projection of an active execution, for listings.
type Summary struct {
	ExecutionID  string                 `json:"execution_id"`
	WorkflowID   string                 `json:"workflow_id"`
	Status       models.ExecutionStatus `json:"status"`
	CurrentNodes []string               `json:"current_nodes"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// Store caches execution states in memory and checkpoints them to disk.
type Store struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]*models.ExecutionState
	locks map[string]*sync.Mutex
}

// NewStore creates a store rooted at the given data directory.
func NewStore(root string, logger *slog.Logger) *Store {
	return &Store{
		root:   root,
		logger: logger.With("module", "statestore"),
		cache:  make(map[string]*models.ExecutionState),
		locks:  make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-execution mutex that serializes all mutations for
// one executionID (single writer at a time).
func (s *Store) lockFor(executionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[executionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[executionID] = lock
	}

	return lock
}

// Create registers a fresh execution state with status pending.
func (s *Store) Create(executionID, workflowID string, currentNodes []string, data map[string]any) (*models.ExecutionState, error) {
	now := time.Now().UTC()

	state := &models.ExecutionState{
		ExecutionID:    executionID,
		WorkflowID:     workflowID,
		Status:         models.ExecutionStatusPending,
		CurrentNodes:   slices.Clone(currentNodes),
		CompletedNodes: []string{},
		FailedNodes:    []string{},
		Data:           map[string]any{},
		History:        []models.StepEvent{},
		Checkpoints:    []models.CheckpointMeta{},
		Errors:         []models.ExecutionError{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if data != nil {
		merged, err := models.MergeData(state.Data, data)
		if err != nil {
			return nil, fmt.Errorf("failed to merge initial data: %w", err)
		}

		state.Data = merged
	}

	if err := validateSize(state); err != nil {
		return nil, err
	}

	lock := s.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	s.cache[executionID] = state
	s.mu.Unlock()

	return state.Clone(), nil
}

// Get returns a copy of the execution state. A cache miss falls back to the
// latest on-disk checkpoint before reporting not-found, which is what makes
// executions survive a process restart.
func (s *Store) Get(executionID string) (*models.ExecutionState, error) {
	s.mu.Lock()
	state, ok := s.cache[executionID]
	s.mu.Unlock()

	if ok {
		return state.Clone(), nil
	}

	restored, err := s.loadLatest(executionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[executionID] = restored
	s.mu.Unlock()

	s.logger.Info("Recovered execution state from checkpoint", "execution_id", executionID)

	return restored.Clone(), nil
}

// Update applies a partial mutation. Data is deep-merged so concurrent or
// looped updates to unrelated nested keys do not clobber each other.
func (s *Store) Update(executionID string, update Update) (*models.ExecutionState, error) {
	lock := s.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	return s.mutate(executionID, func(state *models.ExecutionState) error {
		if update.Status != nil {
			state.Status = *update.Status
		}

		if update.StatusLabel != nil {
			state.StatusLabel = *update.StatusLabel
		}

		if update.CurrentNodes != nil {
			state.CurrentNodes = slices.Clone(update.CurrentNodes)

			// Re-entering a node in a cyclic run takes it out of the
			// completed set; the two sets stay disjoint.
			state.CompletedNodes = slices.DeleteFunc(slices.Clone(state.CompletedNodes), func(id string) bool {
				return slices.Contains(state.CurrentNodes, id)
			})
		}

		if update.StartedAt != nil {
			state.StartedAt = update.StartedAt
		}

		if update.CompletedAt != nil {
			state.CompletedAt = update.CompletedAt
		}

		if update.HasOutput {
			state.Output = update.Output
		}

		if update.Data != nil {
			merged, err := models.MergeData(state.Data, update.Data)
			if err != nil {
				return fmt.Errorf("failed to merge data: %w", err)
			}

			state.Data = merged
		}

		return nil
	})
}

// AddStep appends one event to the execution history.
func (s *Store) AddStep(executionID string, step models.StepEvent) error {
	lock := s.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now().UTC()
	}

	_, err := s.mutate(executionID, func(state *models.ExecutionState) error {
		state.History = append(state.History, step)

		return nil
	})

	return err
}

// AddError appends one entry to the execution error log.
func (s *Store) AddError(executionID string, execErr models.ExecutionError) error {
	lock := s.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	if execErr.Timestamp.IsZero() {
		execErr.Timestamp = time.Now().UTC()
	}

	_, err := s.mutate(executionID, func(state *models.ExecutionState) error {
		state.Errors = append(state.Errors, execErr)

		return nil
	})

	return err
}

// MarkNodeCompleted moves nodeID from current to completed, bumps the global
// invocation counter, records the result under data["node_results"] tagged
// with the iteration, and deep-merges any state updates the result declared.
// CompletedNodes stays de-duplicated; NodesExecuted counts every visit, which
// keeps loop iterations visible separately from dependency tracking.
func (s *Store) MarkNodeCompleted(executionID, nodeID string, result *models.ExecutorResult, iteration int) (*models.ExecutionState, error) {
	lock := s.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	return s.mutate(executionID, func(state *models.ExecutionState) error {
		state.CurrentNodes = slices.DeleteFunc(slices.Clone(state.CurrentNodes), func(id string) bool {
			return id == nodeID
		})

		if !slices.Contains(state.CompletedNodes, nodeID) {
			state.CompletedNodes = append(state.CompletedNodes, nodeID)
		}

		state.NodesExecuted++

		nodeResult := map[string]any{
			"iteration": iteration,
		}
		if result != nil {
			nodeResult["output"] = result.Output
			if result.Metrics != nil {
				nodeResult["metrics"] = map[string]any{
					"duration_ms":  result.Metrics.DurationMs,
					"total_tokens": result.Metrics.TotalTokens,
				}
			}
		}

		merged, err := models.MergeData(state.Data, map[string]any{
			"node_results": map[string]any{nodeID: nodeResult},
		})
		if err != nil {
			return fmt.Errorf("failed to record node result: %w", err)
		}

		state.Data = merged

		if result != nil && result.StateUpdates != nil {
			merged, err = models.MergeData(state.Data, result.StateUpdates)
			if err != nil {
				return fmt.Errorf("failed to merge state updates: %w", err)
			}

			state.Data = merged
		}

		return nil
	})
}

// MarkNodeFailed moves nodeID out of the current set, records it as failed
// and appends the error to the log.
func (s *Store) MarkNodeFailed(executionID, nodeID string, execErr models.ExecutionError) (*models.ExecutionState, error) {
	lock := s.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	if execErr.Timestamp.IsZero() {
		execErr.Timestamp = time.Now().UTC()
	}

	execErr.NodeID = nodeID

	return s.mutate(executionID, func(state *models.ExecutionState) error {
		state.CurrentNodes = slices.DeleteFunc(slices.Clone(state.CurrentNodes), func(id string) bool {
			return id == nodeID
		})

		if !slices.Contains(state.FailedNodes, nodeID) {
			state.FailedNodes = append(state.FailedNodes, nodeID)
		}

		state.Errors = append(state.Errors, execErr)

		return nil
	})
}

// Cleanup drops the execution from the cache once it is terminal. On-disk
// checkpoints are retained unless keepCheckpoints is false.
func (s *Store) Cleanup(executionID string, keepCheckpoints bool) error {
	lock := s.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	delete(s.cache, executionID)
	s.mu.Unlock()

	if !keepCheckpoints {
		if err := s.removeCheckpoints(executionID); err != nil {
			return err
		}
	}

	return nil
}

// ListActive returns the IDs of all cached, non-terminal executions.
func (s *Store) ListActive() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []string

	for id, state := range s.cache {
		if !state.Status.IsTerminal() {
			active = append(active, id)
		}
	}

	slices.Sort(active)

	return active
}

// ActiveSummaries returns light projections of all cached, non-terminal
// executions.
func (s *Store) ActiveSummaries() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summaries []Summary

	for _, state := range s.cache {
		if state.Status.IsTerminal() {
			continue
		}

		summaries = append(summaries, Summary{
			ExecutionID:  state.ExecutionID,
			WorkflowID:   state.WorkflowID,
			Status:       state.Status,
			CurrentNodes: slices.Clone(state.CurrentNodes),
			UpdatedAt:    state.UpdatedAt,
		})
	}

	slices.SortFunc(summaries, func(a, b Summary) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})

	return summaries
}

// mutate applies fn to a clone of the cached state, re-validates the size
// ceiling, and only then swaps the clone in. A failed mutation leaves the
// stored state untouched. Callers must hold the per-execution lock.
func (s *Store) mutate(executionID string, fn func(*models.ExecutionState) error) (*models.ExecutionState, error) {
	s.mu.Lock()
	current, ok := s.cache[executionID]
	s.mu.Unlock()

	if !ok {
		restored, err := s.loadLatest(executionID)
		if err != nil {
			return nil, err
		}

		current = restored
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}

	next.UpdatedAt = time.Now().UTC()

	if err := validateSize(next); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[executionID] = next
	s.mu.Unlock()

	return next.Clone(), nil
}
