// Package subworkflow implements the sub-workflow executor from spec
// §4.8: takes a step's inputs already resolved against the parent
// context, pushes the call stack (rejecting cycles and excess depth), and
// hands off to an injected Runner, which drives the child workflow under a
// fresh isolated context built from those inputs. The Runner indirection breaks the natural
// import cycle with internal/orchestrator (which both implements Runner
// and is this package's only caller) — the same capability-injection
// style station uses for AgentExecutorDeps in
// internal/workflows/runtime/executor.go.
package subworkflow

import (
	"context"
	"time"

	"flowcore/internal/types"
)

// RunResult is what a nested workflow run reports back to its caller.
type RunResult struct {
	Success       bool
	Output        map[string]any
	FailingStepID string
	Err           error
}

// Runner executes a workflow to completion in isolation. Implemented by
// internal/orchestrator.Orchestrator; injected here to avoid a package
// cycle.
type Runner interface {
	Run(ctx context.Context, wf *types.Workflow, input map[string]any, stack *types.CallStack) RunResult
}

// Executor drives one `workflowRef` step (spec §4.8).
type Executor struct {
	maxDepth int
	runner   Runner
}

func New(maxDepth int) *Executor {
	if maxDepth <= 0 {
		maxDepth = 5
	}
	return &Executor{maxDepth: maxDepth}
}

// SetRunner wires the orchestrator after both are constructed, since the
// orchestrator itself owns the Executor instance.
func (e *Executor) SetRunner(r Runner) {
	e.runner = r
}

// Invoke resolves resolvedInput against the parent (already computed by
// the caller via template resolution), pushes stack, and runs child to
// completion with isolation: the child's ExecutionContext.Input is
// resolvedInput and its tasks map starts empty — parent step outputs are
// never visible inside the child (spec §4.8, testable property
// "sub-workflow isolation").
func (e *Executor) Invoke(
	ctx context.Context,
	child *types.Workflow,
	resolvedInput map[string]any,
	stack *types.CallStack,
	timeout time.Duration,
) RunResult {
	nextStack, err := stack.Push(child.Ref(), e.maxDepth)
	if err != nil {
		return RunResult{Err: err}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return e.runner.Run(callCtx, child, resolvedInput, nextStack)
}
