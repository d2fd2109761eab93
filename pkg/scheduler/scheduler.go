// Package scheduler implements dependency scheduling over workflow graphs:
// cycle detection, entry-node discovery, executable-node selection and
// next-node resolution after a node produces a result.
package scheduler

import (
	"errors"
	"fmt"
	"slices"

	"github.com/loomworks/loom/pkg/models"
)

var (
	// ErrNoStartNodes indicates a graph with no entry point.
	ErrNoStartNodes = errors.New("workflow has no start nodes")

	// ErrCycleDetected indicates a cycle in a graph that does not allow them.
	ErrCycleDetected = errors.New("workflow graph contains a cycle")
)

// CycleReport is the outcome of cycle detection.
type CycleReport struct {
	HasCycle     bool
	CycleNodeIDs []string
}

// dfs colors for cycle detection.
type color int

const (
	white color = iota // unvisited
	gray               // on the current dfs stack
	black              // fully explored
)

// DetectCycles runs a three-color depth-first traversal over the graph. When
// allowCycles is false any back-edge is a validation failure; when true the
// report is informational and the engine bounds loops with a per-node
// iteration cap instead.
func DetectCycles(nodes []*models.Node, edges []*models.Edge, allowCycles bool) (CycleReport, error) {
	adjacency := make(map[string][]string, len(nodes))
	for _, edge := range edges {
		adjacency[edge.From] = append(adjacency[edge.From], edge.To)
	}

	colors := make(map[string]color, len(nodes))
	report := CycleReport{}

	var visit func(nodeID string, stack []string)
	visit = func(nodeID string, stack []string) {
		colors[nodeID] = gray
		stack = append(stack, nodeID)

		for _, next := range adjacency[nodeID] {
			switch colors[next] {
			case white:
				visit(next, stack)
			case gray:
				report.HasCycle = true

				// The cycle is the stack suffix starting at the revisited node.
				if at := slices.Index(stack, next); at >= 0 {
					for _, id := range stack[at:] {
						if !slices.Contains(report.CycleNodeIDs, id) {
							report.CycleNodeIDs = append(report.CycleNodeIDs, id)
						}
					}
				}
			case black:
			}
		}

		colors[nodeID] = black
	}

	for _, node := range nodes {
		if colors[node.ID] == white {
			visit(node.ID, nil)
		}
	}

	if report.HasCycle && !allowCycles {
		return report, fmt.Errorf("%w: %v", ErrCycleDetected, report.CycleNodeIDs)
	}

	return report, nil
}

// FindStartNodes returns the graph's entry nodes: nodes with no incoming
// edges, or nodes explicitly tagged with the entry category. A graph with no
// start nodes is not executable.
func FindStartNodes(def *models.WorkflowDefinition) ([]string, error) {
	hasIncoming := make(map[string]bool, len(def.Nodes))
	for _, edge := range def.Edges {
		hasIncoming[edge.To] = true
	}

	var startNodes []string

	for _, node := range def.Nodes {
		if node.IsEntryNode() || !hasIncoming[node.ID] {
			startNodes = append(startNodes, node.ID)
		}
	}

	if len(startNodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoStartNodes, def.ID)
	}

	return startNodes, nil
}

// ExecutableNodes returns the subset of current nodes that may run now. In
// acyclic graphs a node is executable once every upstream dependency that can
// still run has completed; dependencies on branches the edge conditions
// skipped never block a join. In cyclic graphs current nodes run
// unconditionally and the per-node iteration cap is the safety valve.
func ExecutableNodes(def *models.WorkflowDefinition, currentNodes, completedNodes []string) []string {
	if def.Config.AllowCycles {
		return slices.Clone(currentNodes)
	}

	adjacency := make(map[string][]string, len(def.Nodes))
	upstream := make(map[string][]string, len(def.Nodes))

	for _, edge := range def.Edges {
		adjacency[edge.From] = append(adjacency[edge.From], edge.To)
		upstream[edge.To] = append(upstream[edge.To], edge.From)
	}

	pending := pendingSet(adjacency, currentNodes)

	var executable []string

	for _, nodeID := range currentNodes {
		ready := true

		for _, dep := range upstream[nodeID] {
			if slices.Contains(completedNodes, dep) {
				continue
			}

			// A dependency only gates while it can still run: scheduled
			// now or downstream of a scheduled node. A branch that was not
			// taken is in neither set.
			if pending[dep] {
				ready = false

				break
			}
		}

		if ready {
			executable = append(executable, nodeID)
		}
	}

	return executable
}

// pendingSet returns every node reachable from the current nodes: the work
// that may still execute in this run.
func pendingSet(adjacency map[string][]string, currentNodes []string) map[string]bool {
	pending := make(map[string]bool, len(currentNodes))
	queue := slices.Clone(currentNodes)

	for len(queue) > 0 {
		nodeID := queue[0]
		queue = queue[1:]

		if pending[nodeID] {
			continue
		}

		pending[nodeID] = true
		queue = append(queue, adjacency[nodeID]...)
	}

	return pending
}

// NextNodes resolves the outgoing edges of nodeID against the node's result
// and the current state. Edges without a condition are always followed;
// conditional edges only when the condition renders truthy. An empty return
// with an empty currentNodes set signals completion to the engine.
func NextNodes(nodeID string, result *models.ExecutorResult, def *models.WorkflowDefinition, state *models.ExecutionState) ([]string, error) {
	var next []string

	for _, edge := range def.Edges {
		if edge.From != nodeID {
			continue
		}

		if edge.Condition == "" {
			next = append(next, edge.To)

			continue
		}

		matched, err := evaluateCondition(edge.Condition, result, state)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate condition on edge %s->%s: %w", edge.From, edge.To, err)
		}

		if matched {
			next = append(next, edge.To)
		}
	}

	return next, nil
}
