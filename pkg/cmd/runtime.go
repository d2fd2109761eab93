package cmd

import (
	"fmt"
	"log/slog"

	"github.com/loomworks/loom/pkg/engine"
	"github.com/loomworks/loom/pkg/eventbus"
	"github.com/loomworks/loom/pkg/execindex"
	"github.com/loomworks/loom/pkg/registry"
	"github.com/loomworks/loom/pkg/statestore"
)

// Runtime bundles the shared per-process instances: one store, one index and
// one registry serve every engine constructed in this process.
type Runtime struct {
	Store    *statestore.Store
	Index    *execindex.Index
	Registry *registry.Registry
	EventBus eventbus.EventBus
	Engine   *engine.Engine
}

// NewRuntime assembles the runtime rooted at dataDir, recovering the
// execution index from disk.
func NewRuntime(logger *slog.Logger, dataDir, busProvider string, opts engine.Options) (*Runtime, error) {
	store := statestore.NewStore(dataDir, logger)

	index := execindex.NewIndex(dataDir, logger)
	if err := index.LoadFromDisk(); err != nil {
		return nil, fmt.Errorf("failed to load execution index: %w", err)
	}

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaults()

	bus, err := NewEventBus(busProvider, logger)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Store:    store,
		Index:    index,
		Registry: reg,
		EventBus: bus,
		Engine:   engine.NewEngine(store, index, reg, bus, logger, opts),
	}, nil
}

// Close flushes the index and shuts the event bus down.
func (r *Runtime) Close() error {
	if err := r.Index.Close(); err != nil {
		return err
	}

	return r.EventBus.Close()
}
