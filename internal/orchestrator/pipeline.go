package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"flowcore/internal/cache"
	"flowcore/internal/circuitbreaker"
	"flowcore/internal/httpexec"
	"flowcore/internal/schema"
	"flowcore/internal/telemetry"
	"flowcore/internal/template"
	"flowcore/internal/types"
)

// resolveOutputMapping resolves the workflow's `output` field->template
// mapping. Spec §9 Open Question (c) is resolved as lenient: a missing
// upstream task output produces null rather than failing the whole
// execution's output resolution.
func resolveOutputMapping(mapping map[string]any, execCtx *types.ExecutionContext) (map[string]any, error) {
	resolved, err := template.ResolveValue(mapping, execCtx, template.Lenient)
	if err != nil {
		return nil, err
	}
	out, _ := resolved.(map[string]any)
	return out, nil
}

// resolveStepInput resolves a step's `input` map in Strict mode: any
// missing reference is an input-resolution error that short-circuits the
// step (spec §4.4 step 1).
func resolveStepInput(input map[string]any, execCtx *types.ExecutionContext) (map[string]any, error) {
	if len(input) == 0 {
		return map[string]any{}, nil
	}
	resolved, err := template.ResolveValue(input, execCtx, template.Strict)
	if err != nil {
		return nil, err
	}
	out, _ := resolved.(map[string]any)
	return out, nil
}

// runStep executes the full per-step pipeline from spec §4.4.
func (o *Orchestrator) runStep(ctx context.Context, step types.Step, execCtx *types.ExecutionContext, opts Options) StepResult {
	stepStart := time.Now()
	ctx, span := o.tracer.StartStep(ctx, step.ID)
	result := StepResult{ID: step.ID}
	var stepErr error
	defer func() {
		result.DurationMS = time.Since(stepStart).Milliseconds()
		telemetry.EndStep(span, string(result.Status), stepErr)
	}()

	select {
	case <-ctx.Done():
		result.Status = StatusCancelled
		stepErr = ctx.Err()
		return result
	default:
	}

	// Step 1: resolve inputs.
	resolvedInput, err := resolveStepInput(step.Input, execCtx)
	if err != nil {
		result.Status = StatusFailed
		result.Error = asError(err)
		stepErr = err
		return result
	}

	if step.SubWorkflow != nil && !step.SubWorkflow.IsZero() {
		return o.runSubWorkflowStep(ctx, step, resolvedInput, opts, result)
	}

	task, ok := opts.Resolver.GetTask(step.TaskRef)
	if !ok {
		result.Status = StatusFailed
		result.Error = types.NewError(types.KindValidationFailed, "referenced task not found").WithContext("task", step.TaskRef.Key())
		stepErr = result.Error
		return result
	}
	result.TaskRef = &step.TaskRef

	// Step 2: validate inputs against the task's inputSchema.
	if vr, verr := schema.Validate(task.InputSchema, resolvedInput); verr != nil {
		result.Status = StatusFailed
		result.Error = verr.(*types.Error)
		stepErr = verr
		return result
	} else if !vr.Valid {
		result.Status = StatusFailed
		result.Error = types.NewError(types.KindValidationFailed, "step input does not satisfy the task's input schema").
			WithContext("issues", vr.Errors)
		stepErr = result.Error
		return result
	}

	switch task.Type {
	case types.TaskKindTransform:
		return o.runTransformStep(task, resolvedInput, execCtx, result)
	case types.TaskKindHTTP:
		return o.runHTTPStep(ctx, step, task, resolvedInput, opts, result)
	default:
		result.Status = StatusFailed
		result.Error = types.NewError(types.KindValidationFailed, "task has no executable type").
			WithContext("task", task.Name).WithContext("type", task.Type)
		stepErr = result.Error
		return result
	}
}

// runTransformStep evaluates a transform task's Starlark expression (spec
// §3, §4.5) against the step's resolved input and a snapshot of the
// execution's accumulated outputs.
func (o *Orchestrator) runTransformStep(task *types.Task, resolvedInput map[string]any, execCtx *types.ExecutionContext, result StepResult) StepResult {
	// runContext is exposed to the expression as `ctx` and has each of its
	// keys predeclared as its own identifier (transform.Executor), so
	// "input" is deliberately omitted here: that name is reserved for the
	// step's own resolvedInput, passed separately below.
	runContext := map[string]any{
		"workflowInput": execCtx.Input,
		"tasks":         snapshotTasks(execCtx),
	}

	out, err := o.xform.Run(task.Transform, resolvedInput, runContext)
	if err != nil {
		result.Status = StatusFailed
		result.Error = asError(err)
		return result
	}
	result.Status = StatusSuccess
	result.Output = out
	return result
}

// snapshotTasks turns the execution context's recorded step outputs into
// the `tasks.<id>.output` shape a transform expression can index into.
func snapshotTasks(execCtx *types.ExecutionContext) map[string]any {
	snap := execCtx.Snapshot()
	tasks := make(map[string]any, len(snap))
	for id, out := range snap {
		tasks[id] = map[string]any{"output": out.Output}
	}
	return tasks
}

func (o *Orchestrator) runSubWorkflowStep(
	ctx context.Context,
	step types.Step,
	resolvedInput map[string]any,
	opts Options,
	result StepResult,
) StepResult {
	child, ok := opts.Resolver.GetWorkflow(*step.SubWorkflow)
	if !ok {
		result.Status = StatusFailed
		result.Error = types.NewError(types.KindValidationFailed, "referenced workflow not found").WithContext("workflow", step.SubWorkflow.Key())
		return result
	}
	result.WorkflowRef = step.SubWorkflow

	stack := opts.ParentCallStack
	if stack == nil {
		stack = types.NewCallStack()
	}

	if opts.DryRun {
		result.Status = StatusPlanned
		result.ResolvedRequest = resolvedInput
		return result
	}

	timeout := opts.Timeout
	run := o.subwf.Invoke(ctx, child, resolvedInput, stack, timeout)
	if run.Err != nil {
		result.Status = StatusFailed
		result.Error = asError(run.Err)
		return result
	}
	if !run.Success {
		result.Status = StatusFailed
		result.Error = asError(run.Err)
		if result.Error == nil {
			result.Error = types.NewError(types.KindValidationFailed, "sub-workflow step failed").
				WithContext("failingStep", run.FailingStepID)
		}
		return result
	}
	result.Status = StatusSuccess
	result.Output = run.Output
	return result
}

func (o *Orchestrator) runHTTPStep(ctx context.Context, step types.Step, task *types.Task, resolvedInput map[string]any, opts Options, result StepResult) StepResult {
	httpSpec := task.HTTP
	method := string(httpSpec.Method)
	url := renderTemplate(httpSpec.URL, resolvedInput)
	headers := renderHeaders(httpSpec.Headers, resolvedInput)
	var bodyBytes []byte
	if httpSpec.Body != "" {
		body := renderTemplate(httpSpec.Body, resolvedInput)
		bodyBytes = []byte(body)
	} else if len(resolvedInput) > 0 && (method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch) {
		bodyBytes, _ = json.Marshal(resolvedInput)
	}

	cacheSpec := effectiveCache(step.Cache, httpSpec.Cache)
	circuitCfg, circuitKey := effectiveCircuit(step.Circuit, httpSpec.Circuit, o.cfg, task.Ref().Key())
	retry := effectiveRetry(step.Retry, httpSpec.Retry, o.cfg)
	fallbackRef := effectiveFallback(step.Fallback, httpSpec.Fallback)

	if opts.DryRun {
		result.Status = StatusPlanned
		result.ResolvedRequest = map[string]any{
			"method":  method,
			"url":     url,
			"headers": headers,
			"body":    string(bodyBytes),
		}
		return result
	}

	var cacheKey string
	if cacheSpec != nil && cacheSpec.Enabled && containsMethod(cacheSpec.AllowedMethods(), method) {
		cacheKey = cache.Key(task.Ref().Key(), method, url, headers, string(bodyBytes))
		if rec, hit := o.cache.Get(cacheKey); hit {
			result.Status = StatusSuccess
			result.FromCache = true
			result.Output = rec.Value
			result.Attempts = 0
			return result
		}
	}

	if o.breaker != nil {
		verdict, err := o.breaker.Allow(ctx, circuitKey, circuitCfg)
		if err != nil {
			o.log.Error("circuit check for %s: %v", circuitKey, err)
		}
		if verdict == circuitbreaker.Reject {
			return o.applyFallback(ctx, step, fallbackRef, opts, resolvedInput, result,
				types.NewError(types.KindCircuitOpen, "circuit is open").WithContext("key", circuitKey))
		}
	}

	headers["X-Request-Id"] = uuid.NewString()

	httpResult, err := o.http.Execute(ctx, httpexec.Request{
		Method:  method,
		URL:     url,
		Headers: headers,
		Body:    bodyBytes,
		Timeout: opts.Timeout,
		Retry:   retry,
	})
	result.Attempts = httpResult.Attempts

	if o.breaker != nil {
		_ = o.breaker.RecordOutcome(ctx, circuitKey, circuitCfg, err == nil)
	}

	if err != nil {
		return o.applyFallback(ctx, step, fallbackRef, opts, resolvedInput, result, asError(err))
	}

	var parsed any
	if len(httpResult.Body) > 0 {
		if jsonErr := json.Unmarshal(httpResult.Body, &parsed); jsonErr != nil {
			parsed = string(httpResult.Body)
		}
	}

	result.Status = StatusSuccess
	result.Output = parsed

	if cacheKey != "" && httpResult.StatusCode >= 200 && httpResult.StatusCode < 300 {
		o.cache.Set(cacheKey, parsed, cacheSpec.TTL)
	}
	return result
}

// applyFallback runs step's (single attempt, no retry, no circuit)
// fallback task in place of a failed or breaker-rejected primary call
// (spec §4.4 step 6).
func (o *Orchestrator) applyFallback(
	ctx context.Context,
	step types.Step,
	fallbackRef *types.TaskRef,
	opts Options,
	resolvedInput map[string]any,
	result StepResult,
	primaryErr *types.Error,
) StepResult {
	if fallbackRef == nil || fallbackRef.IsZero() {
		result.Status = StatusFailed
		result.Error = primaryErr
		return result
	}

	fallbackTask, ok := opts.Resolver.GetTask(*fallbackRef)
	if !ok || fallbackTask.Type != types.TaskKindHTTP {
		result.Status = StatusFailed
		result.Error = primaryErr
		return result
	}

	method := string(fallbackTask.HTTP.Method)
	url := renderTemplate(fallbackTask.HTTP.URL, resolvedInput)
	headers := renderHeaders(fallbackTask.HTTP.Headers, resolvedInput)
	var body []byte
	if fallbackTask.HTTP.Body != "" {
		body = []byte(renderTemplate(fallbackTask.HTTP.Body, resolvedInput))
	}
	headers["X-Request-Id"] = uuid.NewString()

	httpResult, err := o.http.Execute(ctx, httpexec.Request{
		Method:  method,
		URL:     url,
		Headers: headers,
		Body:    body,
		Timeout: opts.Timeout,
		Retry:   types.RetryPolicy{MaxAttempts: 1},
	})
	if err != nil || !httpResult.OK {
		result.Status = StatusFailed
		result.Error = primaryErr
		return result
	}

	var parsed any
	if len(httpResult.Body) > 0 {
		if jsonErr := json.Unmarshal(httpResult.Body, &parsed); jsonErr != nil {
			parsed = string(httpResult.Body)
		}
	}

	result.Status = StatusSuccess
	result.Output = parsed
	result.UsedFallback = true
	result.FallbackTaskRef = fallbackRef
	return result
}

func renderTemplate(raw string, input map[string]any) string {
	tpl, err := template.Parse(raw)
	if err != nil {
		return raw
	}
	execCtx := types.NewExecutionContext(input)
	v, err := template.Resolve(tpl, execCtx, template.Lenient)
	if err != nil {
		return raw
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func renderHeaders(headers map[string]string, input map[string]any) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = renderTemplate(v, input)
	}
	return out
}

func effectiveRetry(stepOverride, taskOverride *types.RetryPolicy, cfg interface{ DefaultRetryPolicy() types.RetryPolicy }) types.RetryPolicy {
	if stepOverride != nil {
		return stepOverride.WithDefaults()
	}
	if taskOverride != nil {
		return taskOverride.WithDefaults()
	}
	return cfg.DefaultRetryPolicy()
}

func effectiveCache(stepOverride, taskOverride *types.CacheSpec) *types.CacheSpec {
	if stepOverride != nil {
		return stepOverride
	}
	return taskOverride
}

func effectiveCircuit(stepOverride, taskOverride *types.CircuitSpec, cfg interface {
	DefaultCircuitSpec(key string) types.CircuitSpec
}, defaultKey string) (circuitbreaker.Config, string) {
	spec := taskOverride
	if stepOverride != nil {
		spec = stepOverride
	}
	if spec == nil || !spec.Enabled {
		return circuitbreaker.ConfigFromSpec(cfg.DefaultCircuitSpec(defaultKey)), defaultKey
	}
	key := spec.Key
	if key == "" {
		key = defaultKey
	}
	return circuitbreaker.ConfigFromSpec(*spec), key
}

func effectiveFallback(stepOverride, taskOverride *types.TaskRef) *types.TaskRef {
	if stepOverride != nil {
		return stepOverride
	}
	return taskOverride
}

func asError(err error) *types.Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*types.Error); ok {
		return e
	}
	return types.NewError(types.KindHTTPFatal, err.Error())
}
