package nodes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodewave/flowrunner/common/workflow"
)

func TestRegistry_UnknownTypeFailsLoudly(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create("NoSuchNode", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node type")
}

func TestOutputModel_SchemaValidation(t *testing.T) {
	model := NewOutputModel(map[string]any{
		"output_schema": map[string]any{
			"count":    "int",
			"response": "string",
		},
	})

	out, err := model.Validate(map[string]any{"count": 3, "response": "ok"})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Fields()["count"])

	_, err = model.Validate(map[string]any{"count": "three", "response": "ok"})
	assert.Error(t, err)

	_, err = model.Validate(map[string]any{"count": 3})
	assert.Error(t, err, "missing required field must fail")
}

func TestOutputModel_PermissiveWithoutSchema(t *testing.T) {
	model := NewOutputModel(nil)
	out, err := model.Validate(map[string]any{"anything": []any{1, 2}})
	require.NoError(t, err)
	assert.Len(t, out.Fields(), 1)
}

func TestRouterNode_FirstMatchWins(t *testing.T) {
	inst, err := NewRouterNode("", map[string]any{
		"routes": []any{
			map[string]any{"handle": "high", "condition": `input.score >= 80`},
			map[string]any{"handle": "low", "condition": ""},
		},
	})
	require.NoError(t, err)

	out, err := inst.Call(context.Background(), map[string]any{"score": 91})
	require.NoError(t, err)

	router, ok := out.(*RouterOutput)
	require.True(t, ok)
	assert.NotNil(t, router.Selected("high"))
	assert.Nil(t, router.Selected("low"))
	assert.Equal(t, 91, router.Selected("high").Fields()["score"])

	out, err = inst.Call(context.Background(), map[string]any{"score": 12})
	require.NoError(t, err)
	router = out.(*RouterOutput)
	assert.Nil(t, router.Selected("high"))
	assert.NotNil(t, router.Selected("low"), "empty condition is the default route")
}

func TestRouterNode_NoMatchLeavesAllRoutesNil(t *testing.T) {
	inst, err := NewRouterNode("", map[string]any{
		"routes": []any{
			map[string]any{"handle": "only", "condition": `input.flag == true`},
		},
	})
	require.NoError(t, err)

	out, err := inst.Call(context.Background(), map[string]any{"flag": false})
	require.NoError(t, err)
	router := out.(*RouterOutput)
	assert.Nil(t, router.Selected("only"))
}

func TestRouterNode_RejectsBadCondition(t *testing.T) {
	_, err := NewRouterNode("", map[string]any{
		"routes": []any{
			map[string]any{"handle": "x", "condition": `input.score >=`},
		},
	})
	assert.Error(t, err)
}

func TestCoalesceNode_FirstNonNilBySourceID(t *testing.T) {
	inst, err := NewCoalesceNode("", nil)
	require.NoError(t, err)

	out, err := inst.Call(context.Background(), map[string]any{
		"branch_b": map[string]any{"from": "b"},
		"branch_a": nil,
	})
	require.NoError(t, err)
	assert.Equal(t, "b", out.Fields()["from"])

	out, err = inst.Call(context.Background(), map[string]any{
		"branch_b": map[string]any{"from": "b"},
		"branch_a": map[string]any{"from": "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a", out.Fields()["from"], "lexicographically first live branch wins")

	_, err = inst.Call(context.Background(), map[string]any{"branch_a": nil})
	assert.Error(t, err)
}

func TestHumanInterventionNode_RaisesPauseSignal(t *testing.T) {
	inst, err := NewHumanInterventionNode("", map[string]any{
		"blocked_nodes": []any{"after_a", "after_b"},
	})
	require.NoError(t, err)

	_, err = inst.Call(context.Background(), map[string]any{"doc": "v1"})
	require.Error(t, err)

	var pause *PauseSignal
	require.ErrorAs(t, err, &pause)

	out, ok := pause.Output.(*HumanInterventionOutput)
	require.True(t, ok)
	assert.True(t, out.Paused())
	assert.True(t, out.Blocks("after_a"))
	assert.False(t, out.Blocks("elsewhere"))
	assert.Equal(t, "v1", out.Data["doc"])
}

func TestHumanInterventionNode_DefaultsBlockedSetToDescendants(t *testing.T) {
	def := &workflow.Definition{
		Nodes: []workflow.Node{
			{ID: "input", NodeType: workflow.TypeInput},
			{ID: "gate", NodeType: workflow.TypeHumanIntervention},
			{ID: "down", NodeType: workflow.TypeOutput},
			{ID: "side", NodeType: workflow.TypeOutput},
		},
		Links: []workflow.Link{
			{SourceID: "input", TargetID: "gate"},
			{SourceID: "input", TargetID: "side"},
			{SourceID: "gate", TargetID: "down"},
		},
	}

	inst, err := NewHumanInterventionNode("", nil)
	require.NoError(t, err)
	hitl := inst.(*HumanInterventionNode)
	hitl.SetRunContext(RunContext{Definition: def})
	hitl.SetNodeID("gate")

	_, err = inst.Call(context.Background(), nil)
	var pause *PauseSignal
	require.ErrorAs(t, err, &pause)

	out := pause.Output.(*HumanInterventionOutput)
	assert.True(t, out.Blocks("down"))
	assert.False(t, out.Blocks("side"))
}

func TestHumanModel_ResumeTimeClearsPause(t *testing.T) {
	model := humanModel{}
	out, err := model.Validate(map[string]any{
		"data":          map[string]any{"doc": "v2"},
		"blocked_nodes": []any{"down"},
		"resume_time":   time.Now().UTC().Format(time.RFC3339),
	})
	require.NoError(t, err)

	hitl := out.(*HumanInterventionOutput)
	assert.False(t, hitl.Paused())
	assert.True(t, hitl.Blocks("down"))
}

func TestOutputNode_OutputMapProjectsPaths(t *testing.T) {
	inst, err := NewOutputNode("", map[string]any{
		"output_map": map[string]any{
			"answer": "bon_node.response",
		},
	})
	require.NoError(t, err)

	out, err := inst.Call(context.Background(), map[string]any{
		"bon_node": map[string]any{"response": "forty-two"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"answer": "forty-two"}, out.Fields())
}

func TestOutputNode_PassthroughWithoutMap(t *testing.T) {
	inst, err := NewOutputNode("", nil)
	require.NoError(t, err)

	out, err := inst.Call(context.Background(), map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "v", out.Fields()["k"])
}

func TestTransformNode(t *testing.T) {
	inst, err := NewTransformNode("", map[string]any{
		"expression": `{"doubled": n * 2}`,
	})
	require.NoError(t, err)

	out, err := inst.Call(context.Background(), map[string]any{"n": 21})
	require.NoError(t, err)
	assert.Equal(t, 42, out.Fields()["doubled"])

	inst, err = NewTransformNode("", map[string]any{"expression": `n + 1`})
	require.NoError(t, err)
	out, err = inst.Call(context.Background(), map[string]any{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Fields()["value"])

	_, err = NewTransformNode("", map[string]any{})
	assert.Error(t, err)
}

func TestStringSet(t *testing.T) {
	s := NewStringSet("b", "a")
	s.Add("c")
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("z"))
	assert.Equal(t, []string{"a", "b", "c"}, s.Values())
}

func TestPauseSignal_IsAnError(t *testing.T) {
	var err error = &PauseSignal{NodeID: "gate"}
	var pause *PauseSignal
	assert.True(t, errors.As(err, &pause))
	assert.Contains(t, err.Error(), "gate")
}
