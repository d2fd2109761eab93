package scheduler

import (
	"testing"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func branchingDefinition() *models.WorkflowDefinition {
	def := testutil.CreateTestDefinition(
		testutil.CreateTestNode(testutil.WithID("check"), testutil.WithEntryCategory()),
		testutil.CreateTestNode(testutil.WithID("approve")),
		testutil.CreateTestNode(testutil.WithID("reject")),
	)
	def.Edges = []*models.Edge{
		testutil.CreateConditionalEdge("check", "approve", `{{eq .output "yes"}}`),
		testutil.CreateConditionalEdge("check", "reject", `{{ne .output "yes"}}`),
	}

	return def
}

func TestNextNodes_ConditionSelectsBranch(t *testing.T) {
	def := branchingDefinition()

	next, err := NextNodes("check", &models.ExecutorResult{Output: "yes"}, def, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"approve"}, next)

	next, err = NextNodes("check", &models.ExecutorResult{Output: "no"}, def, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"reject"}, next)
}

func TestNextNodes_ConditionSeesStateData(t *testing.T) {
	def := testutil.CreateTestDefinition(
		testutil.CreateTestNode(testutil.WithID("gate"), testutil.WithEntryCategory()),
		testutil.CreateTestNode(testutil.WithID("retry")),
	)
	def.Edges = []*models.Edge{
		testutil.CreateConditionalEdge("gate", "retry", `{{lt .data.attempts 3.0}}`),
	}

	state := &models.ExecutionState{
		Data: map[string]any{"attempts": 1.0},
	}

	next, err := NextNodes("gate", &models.ExecutorResult{}, def, state)
	require.NoError(t, err)
	assert.Equal(t, []string{"retry"}, next)

	state.Data["attempts"] = 5.0

	next, err = NextNodes("gate", &models.ExecutorResult{}, def, state)
	require.NoError(t, err)
	assert.Empty(t, next)
}

func TestNextNodes_MalformedConditionFails(t *testing.T) {
	def := testutil.CreateTestDefinition(
		testutil.CreateTestNode(testutil.WithID("a"), testutil.WithEntryCategory()),
		testutil.CreateTestNode(testutil.WithID("b")),
	)
	def.Edges = []*models.Edge{
		testutil.CreateConditionalEdge("a", "b", `{{if .output}}`),
	}

	_, err := NextNodes("a", &models.ExecutorResult{Output: "x"}, def, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a->b")
}

func TestExecutableNodes_SkippedBranchDoesNotBlockJoin(t *testing.T) {
	def := testutil.CreateTestDefinition(
		testutil.CreateTestNode(testutil.WithID("decide"), testutil.WithEntryCategory()),
		testutil.CreateTestNode(testutil.WithID("approve")),
		testutil.CreateTestNode(testutil.WithID("reject")),
		testutil.CreateTestNode(testutil.WithID("finish")),
	)
	def.Edges = []*models.Edge{
		testutil.CreateConditionalEdge("decide", "approve", `{{eq .output "yes"}}`),
		testutil.CreateConditionalEdge("decide", "reject", `{{eq .output "no"}}`),
		testutil.CreateTestEdge("approve", "finish"),
		testutil.CreateTestEdge("reject", "finish"),
	}

	// The reject branch was never taken: finish must not wait for it.
	executable := ExecutableNodes(def, []string{"finish"}, []string{"decide", "approve"})
	assert.Equal(t, []string{"finish"}, executable)
}

func TestExecutableNodes_ScheduledBranchStillBlocksJoin(t *testing.T) {
	def := testutil.CreateTestDefinition(
		testutil.CreateTestNode(testutil.WithID("fan"), testutil.WithEntryCategory()),
		testutil.CreateTestNode(testutil.WithID("left")),
		testutil.CreateTestNode(testutil.WithID("right")),
		testutil.CreateTestNode(testutil.WithID("join")),
	)
	def.Edges = []*models.Edge{
		testutil.CreateTestEdge("fan", "left"),
		testutil.CreateTestEdge("fan", "right"),
		testutil.CreateTestEdge("left", "join"),
		testutil.CreateTestEdge("right", "join"),
	}

	// Both branches were taken; the join waits for the slower one.
	executable := ExecutableNodes(def, []string{"right", "join"}, []string{"fan", "left"})
	assert.Equal(t, []string{"right"}, executable)

	executable = ExecutableNodes(def, []string{"join"}, []string{"fan", "left", "right"})
	assert.Equal(t, []string{"join"}, executable)
}

func TestExecutableNodes_DownstreamOfScheduledNodeBlocksJoin(t *testing.T) {
	def := testutil.CreateTestDefinition(
		testutil.CreateTestNode(testutil.WithID("fan"), testutil.WithEntryCategory()),
		testutil.CreateTestNode(testutil.WithID("short")),
		testutil.CreateTestNode(testutil.WithID("long")),
		testutil.CreateTestNode(testutil.WithID("longer")),
		testutil.CreateTestNode(testutil.WithID("join")),
	)
	def.Edges = []*models.Edge{
		testutil.CreateTestEdge("fan", "short"),
		testutil.CreateTestEdge("fan", "long"),
		testutil.CreateTestEdge("long", "longer"),
		testutil.CreateTestEdge("short", "join"),
		testutil.CreateTestEdge("longer", "join"),
	}

	// longer is not scheduled yet, but long is, so longer may still run and
	// the join keeps waiting.
	executable := ExecutableNodes(def, []string{"long", "join"}, []string{"fan", "short"})
	assert.Equal(t, []string{"long"}, executable)
}

func TestNextNodes_UnconditionalEdgesAlwaysFollowed(t *testing.T) {
	def := testutil.CreateTestDefinition(
		testutil.CreateTestNode(testutil.WithID("fan"), testutil.WithEntryCategory()),
		testutil.CreateTestNode(testutil.WithID("left")),
		testutil.CreateTestNode(testutil.WithID("right")),
	)
	def.Edges = []*models.Edge{
		testutil.CreateTestEdge("fan", "left"),
		testutil.CreateTestEdge("fan", "right"),
	}

	next, err := NextNodes("fan", nil, def, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"left", "right"}, next)
}
