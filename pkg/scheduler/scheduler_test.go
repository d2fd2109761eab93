package scheduler

import (
	"testing"

	"github.com/loomworks/loom/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearDefinition() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:   "wf-linear",
		Name: "Linear workflow",
		Nodes: []*models.Node{
			{ID: "start", Type: "transform"},
			{ID: "middle", Type: "transform"},
			{ID: "end", Type: "end"},
		},
		Edges: []*models.Edge{
			{From: "start", To: "middle"},
			{From: "middle", To: "end"},
		},
	}
}

func TestDetectCycles_Acyclic(t *testing.T) {
	def := linearDefinition()

	report, err := DetectCycles(def.Nodes, def.Edges, false)
	require.NoError(t, err)
	assert.False(t, report.HasCycle)
	assert.Empty(t, report.CycleNodeIDs)
}

func TestDetectCycles_StrictModeRejects(t *testing.T) {
	nodes := []*models.Node{
		{ID: "a", Type: "transform"},
		{ID: "b", Type: "transform"},
	}
	edges := []*models.Edge{
		{From: "a", To: "b"},
		{From: "b", To: "a"},
	}

	_, err := DetectCycles(nodes, edges, false)
	require.ErrorIs(t, err, ErrCycleDetected)
}

func TestDetectCycles_AllowedCycleIsReported(t *testing.T) {
	nodes := []*models.Node{
		{ID: "a", Type: "transform"},
		{ID: "b", Type: "transform"},
		{ID: "c", Type: "end"},
	}
	edges := []*models.Edge{
		{From: "a", To: "b"},
		{From: "b", To: "a"},
		{From: "b", To: "c"},
	}

	report, err := DetectCycles(nodes, edges, true)
	require.NoError(t, err)
	assert.True(t, report.HasCycle)
	assert.ElementsMatch(t, []string{"a", "b"}, report.CycleNodeIDs)
}

func TestDetectCycles_SelfLoop(t *testing.T) {
	nodes := []*models.Node{{ID: "a", Type: "transform"}}
	edges := []*models.Edge{{From: "a", To: "a"}}

	report, err := DetectCycles(nodes, edges, true)
	require.NoError(t, err)
	assert.True(t, report.HasCycle)
	assert.Equal(t, []string{"a"}, report.CycleNodeIDs)
}

func TestFindStartNodes_NoIncomingEdges(t *testing.T) {
	def := linearDefinition()

	startNodes, err := FindStartNodes(def)
	require.NoError(t, err)
	assert.Equal(t, []string{"start"}, startNodes)
}

func TestFindStartNodes_EntryCategory(t *testing.T) {
	def := &models.WorkflowDefinition{
		ID: "wf-entry",
		Nodes: []*models.Node{
			{ID: "a", Type: "humantask", Category: models.CategoryTypeEntry},
			{ID: "b", Type: "transform"},
		},
		Edges: []*models.Edge{
			{From: "b", To: "a"},
			{From: "a", To: "b"},
		},
		Config: models.WorkflowConfig{AllowCycles: true},
	}

	startNodes, err := FindStartNodes(def)
	require.NoError(t, err)
	assert.Contains(t, startNodes, "a")
}

func TestFindStartNodes_NoneIsError(t *testing.T) {
	def := &models.WorkflowDefinition{
		ID: "wf-closed",
		Nodes: []*models.Node{
			{ID: "a", Type: "transform"},
			{ID: "b", Type: "transform"},
		},
		Edges: []*models.Edge{
			{From: "a", To: "b"},
			{From: "b", To: "a"},
		},
	}

	_, err := FindStartNodes(def)
	require.ErrorIs(t, err, ErrNoStartNodes)
}

func TestExecutableNodes_WaitsForDependencies(t *testing.T) {
	def := &models.WorkflowDefinition{
		ID: "wf-join",
		Nodes: []*models.Node{
			{ID: "a", Type: "transform"},
			{ID: "b", Type: "transform"},
			{ID: "join", Type: "transform"},
		},
		Edges: []*models.Edge{
			{From: "a", To: "join"},
			{From: "b", To: "join"},
		},
	}

	assert.Empty(t, ExecutableNodes(def, []string{"join"}, []string{"a"}))
	assert.Equal(t, []string{"join"}, ExecutableNodes(def, []string{"join"}, []string{"a", "b"}))
}

func TestExecutableNodes_CyclicModeIsUnconditional(t *testing.T) {
	def := linearDefinition()
	def.Config.AllowCycles = true

	assert.Equal(t, []string{"end"}, ExecutableNodes(def, []string{"end"}, nil))
}

func TestNextNodes_UnconditionalEdges(t *testing.T) {
	def := linearDefinition()
	state := &models.ExecutionState{Data: map[string]any{}}

	next, err := NextNodes("start", &models.ExecutorResult{Output: "ok"}, def, state)
	require.NoError(t, err)
	assert.Equal(t, []string{"middle"}, next)

	next, err = NextNodes("end", &models.ExecutorResult{}, def, state)
	require.NoError(t, err)
	assert.Empty(t, next)
}

func TestNextNodes_ConditionalBranching(t *testing.T) {
	def := &models.WorkflowDefinition{
		ID: "wf-branch",
		Nodes: []*models.Node{
			{ID: "check", Type: "transform"},
			{ID: "approve", Type: "end"},
			{ID: "reject", Type: "end"},
		},
		Edges: []*models.Edge{
			{From: "check", To: "approve", Condition: `{{eq .output "yes"}}`},
			{From: "check", To: "reject", Condition: `{{ne .output "yes"}}`},
		},
	}
	state := &models.ExecutionState{Data: map[string]any{}}

	next, err := NextNodes("check", &models.ExecutorResult{Output: "yes"}, def, state)
	require.NoError(t, err)
	assert.Equal(t, []string{"approve"}, next)

	next, err = NextNodes("check", &models.ExecutorResult{Output: "no"}, def, state)
	require.NoError(t, err)
	assert.Equal(t, []string{"reject"}, next)
}

func TestNextNodes_ConditionAgainstStateData(t *testing.T) {
	def := &models.WorkflowDefinition{
		ID: "wf-data",
		Nodes: []*models.Node{
			{ID: "a", Type: "transform"},
			{ID: "b", Type: "end"},
		},
		Edges: []*models.Edge{
			{From: "a", To: "b", Condition: `{{.data.ready}}`},
		},
	}

	next, err := NextNodes("a", &models.ExecutorResult{}, def, &models.ExecutionState{Data: map[string]any{"ready": true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, next)

	next, err = NextNodes("a", &models.ExecutorResult{}, def, &models.ExecutionState{Data: map[string]any{"ready": false}})
	require.NoError(t, err)
	assert.Empty(t, next)
}
