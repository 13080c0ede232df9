// Package orchestrator is the scheduler from spec §4.4: it drives a
// workflow's execution graph wave by wave, running each step's
// resolve -> validate -> cache -> circuit -> invoke -> post-process
// pipeline and assembling the final ExecutionResult. Grounded on
// station's internal/workflows/runtime ExecutorRegistry/StepExecutor
// dispatch and its parallel_executor.go WaitGroup+channel fan-out, spanned
// per station's internal/workflows/runtime/telemetry.go.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"flowcore/internal/appconfig"
	"flowcore/internal/cache"
	"flowcore/internal/circuitbreaker"
	"flowcore/internal/graph"
	"flowcore/internal/httpexec"
	"flowcore/internal/logging"
	"flowcore/internal/subworkflow"
	"flowcore/internal/telemetry"
	"flowcore/internal/transform"
	"flowcore/internal/types"
)

// Options controls one Execute call (spec §6).
type Options struct {
	Timeout        time.Duration
	MaxConcurrency int
	DryRun         bool
	Resolver       Resolver
	ParentCallStack *types.CallStack
}

// Orchestrator ties every core subsystem together behind the small
// capability sets spec §9 calls for: a Resolver, an httpexec.Executor, a
// cache.Provider and a circuitbreaker.Breaker, all injected at
// construction. The resolver is process-wide rather than per-call because
// sub-workflow recursion (Run, below) re-enters Execute through the
// subworkflow.Runner interface, which carries no resolver of its own;
// Options.Resolver still exists so a caller (tests, mainly) can override it
// for one top-level call without touching construction.
type Orchestrator struct {
	cfg      *appconfig.Config
	http     *httpexec.Executor
	cache    cache.Provider
	breaker  *circuitbreaker.Breaker
	resolver Resolver
	subwf    *subworkflow.Executor
	xform    *transform.Executor
	tracer   *telemetry.Tracer
	log      logging.Logger
}

// New wires one Orchestrator instance. The sub-workflow executor is
// created with this instance as its Runner so `workflowRef` steps
// recurse back into Execute under a fresh isolated context.
func New(cfg *appconfig.Config, httpExec *httpexec.Executor, cacheProvider cache.Provider, breaker *circuitbreaker.Breaker, resolver Resolver) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		http:     httpExec,
		cache:    cacheProvider,
		breaker:  breaker,
		resolver: resolver,
		subwf:    subworkflow.New(cfg.MaxDepth),
		xform:    transform.New(),
		tracer:   telemetry.New(),
		log:      logging.For("orchestrator"),
	}
	o.subwf.SetRunner(o)
	return o
}

// Execute drives wf to completion against input, per spec §4.4.
func (o *Orchestrator) Execute(ctx context.Context, wf *types.Workflow, input map[string]any, opts Options) ExecutionResult {
	start := time.Now()
	// Execution ids are ULIDs rather than UUIDs: lexicographic order matches
	// creation order, so listing executions by id sorts them chronologically
	// without a separate timestamp column. Per-request correlation ids
	// attached to outbound HTTP calls (internal/orchestrator/pipeline.go)
	// still use uuid, matching station's webhook request-id convention.
	executionID := ulid.Make().String()

	ctx, span := o.tracer.StartExecution(ctx, executionID, wf.Name)
	defer func() { telemetry.End(span, true, nil) }()

	buildStart := time.Now()
	g, buildErr := graph.Build(wf)
	graphDur := time.Since(buildStart)
	if buildErr != nil {
		return ExecutionResult{
			ExecutionID:              executionID,
			Success:                  false,
			Steps:                    []StepResult{{ID: "", Status: StatusFailed, Error: buildErr.(*types.Error)}},
			DurationMS:               time.Since(start).Milliseconds(),
			GraphBuildDurationMicros: graphDur.Microseconds(),
		}
	}

	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = o.cfg.MaxConcurrency
	}
	if opts.Resolver == nil {
		opts.Resolver = o.resolver
	}
	if opts.ParentCallStack == nil {
		opts.ParentCallStack = types.NewCallStack()
	}

	execCtx := types.NewExecutionContext(input)
	stepResults := make([]StepResult, len(g.Nodes))
	overallSuccess := true

	var sem chan struct{}
	if opts.MaxConcurrency > 0 {
		sem = make(chan struct{}, opts.MaxConcurrency)
	}

waves:
	for waveIdx, wave := range g.Waves {
		waveCtx, waveSpan := o.tracer.StartWave(ctx, waveIdx, len(wave))
		var wg sync.WaitGroup
		for _, idx := range wave {
			node := g.Nodes[idx]
			wg.Add(1)
			go func(node graph.Node) {
				defer wg.Done()
				if sem != nil {
					sem <- struct{}{}
					defer func() { <-sem }()
				}
				res := o.runStep(waveCtx, node.Step, execCtx, opts)
				stepResults[node.Index] = res
				execCtx.SetOutput(node.Step.ID, types.StepOutput{
					Output:     res.Output,
					Error:      res.Error,
					FromCache:  res.FromCache,
					Attempts:   res.Attempts,
					DurationMS: res.DurationMS,
				})
			}(node)
		}
		wg.Wait()
		telemetry.End(waveSpan, overallSuccess, nil)

		select {
		case <-ctx.Done():
			overallSuccess = false
			break waves
		default:
		}

		for _, idx := range wave {
			if stepResults[idx].Status == StatusFailed {
				overallSuccess = false
			}
		}
		if !overallSuccess {
			break
		}
	}

	output, _ := o.resolveOutput(wf, execCtx)

	return ExecutionResult{
		ExecutionID:              executionID,
		Success:                  overallSuccess,
		Output:                   output,
		Steps:                    stepResults,
		DurationMS:               time.Since(start).Milliseconds(),
		GraphBuildDurationMicros: graphDur.Microseconds(),
	}
}

// Run implements subworkflow.Runner: it is the recursion point a
// `workflowRef` step uses to drive its child workflow, with the child's
// ExecutionContext built fresh by Execute from resolvedInput (isolation,
// spec §4.8).
func (o *Orchestrator) Run(ctx context.Context, wf *types.Workflow, input map[string]any, stack *types.CallStack) subworkflow.RunResult {
	result := o.Execute(ctx, wf, input, Options{ParentCallStack: stack})
	if !result.Success {
		var failingStep string
		var err error
		for _, s := range result.Steps {
			if s.Status == StatusFailed {
				failingStep = s.ID
				if s.Error != nil {
					err = s.Error
				}
				break
			}
		}
		if err == nil {
			err = types.NewError(types.KindValidationFailed, "sub-workflow execution failed")
		}
		return subworkflow.RunResult{Success: false, FailingStepID: failingStep, Err: err}
	}
	return subworkflow.RunResult{Success: true, Output: result.Output}
}

func (o *Orchestrator) resolveOutput(wf *types.Workflow, execCtx *types.ExecutionContext) (map[string]any, error) {
	if len(wf.Output) == 0 {
		return nil, nil
	}
	resolved, err := resolveOutputMapping(wf.Output, execCtx)
	if err != nil {
		o.log.Error("resolving workflow output: %v", err)
		return nil, err
	}
	return resolved, nil
}
