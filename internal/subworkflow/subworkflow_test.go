package subworkflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowcore/internal/types"
)

type stubRunner struct {
	lastInput map[string]any
	lastStack *types.CallStack
	result    RunResult
}

func (s *stubRunner) Run(_ context.Context, _ *types.Workflow, input map[string]any, stack *types.CallStack) RunResult {
	s.lastInput = input
	s.lastStack = stack
	return s.result
}

func TestInvoke_IsolatesChildContext(t *testing.T) {
	stub := &stubRunner{result: RunResult{Success: true, Output: map[string]any{"x": 1}}}
	e := New(5)
	e.SetRunner(stub)

	child := &types.Workflow{Name: "child"}
	stack := types.NewCallStack(types.TaskRef{Name: "parent"})

	res := e.Invoke(context.Background(), child, map[string]any{"a": 1}, stack, 0)
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, map[string]any{"a": 1}, stub.lastInput)
	assert.Equal(t, 2, stub.lastStack.Depth())
}

func TestInvoke_RejectsCycle(t *testing.T) {
	stub := &stubRunner{}
	e := New(5)
	e.SetRunner(stub)

	child := &types.Workflow{Name: "A"}
	stack := types.NewCallStack(types.TaskRef{Name: "A"})

	res := e.Invoke(context.Background(), child, nil, stack, 0)
	require.Error(t, res.Err)
	assert.Equal(t, types.KindWorkflowCycle, types.KindOf(res.Err))
}

func TestInvoke_RejectsExcessDepth(t *testing.T) {
	stub := &stubRunner{}
	e := New(1)
	e.SetRunner(stub)

	child := &types.Workflow{Name: "B"}
	stack := types.NewCallStack(types.TaskRef{Name: "A"})

	res := e.Invoke(context.Background(), child, nil, stack, 0)
	require.Error(t, res.Err)
	assert.Equal(t, types.KindWorkflowDepthExceeded, types.KindOf(res.Err))
}
