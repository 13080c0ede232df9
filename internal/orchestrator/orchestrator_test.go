package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowcore/internal/appconfig"
	"flowcore/internal/cache"
	"flowcore/internal/circuitbreaker"
	"flowcore/internal/httpexec"
	"flowcore/internal/types"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		MaxConcurrency:           4,
		MaxDepth:                 5,
		RetryMaxAttempts:         3,
		RetryInitialDelay:        time.Millisecond,
		RetryMultiplier:          2.0,
		RetryMaxDelay:            10 * time.Millisecond,
		CircuitFailureThreshold:  2,
		CircuitOpenDuration:      50 * time.Millisecond,
		CircuitSuccessThreshold:  1,
		CircuitHalfOpenMaxProbes: 1,
		CircuitWindow:            time.Second,
		CacheMaxSize:             100,
		HTTPTimeout:              2 * time.Second,
	}
}

func newTestOrchestrator(t *testing.T, resolver Resolver) *Orchestrator {
	t.Helper()
	cfg := testConfig()
	httpExec := httpexec.New(&http.Client{})
	cacheProvider := cache.NewMemoryProvider(cfg.CacheMaxSize)
	breaker := circuitbreaker.New(circuitbreaker.NewMemoryStore())
	return New(cfg, httpExec, cacheProvider, breaker, resolver)
}

func httpTask(name, url string) *types.Task {
	return &types.Task{
		Name: name,
		Type: types.TaskKindHTTP,
		HTTP: &types.HTTPTaskSpec{Method: types.MethodGET, URL: url},
	}
}

func TestExecute_ParallelFanOut(t *testing.T) {
	var concurrent int32
	var maxConcurrent int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&concurrent, 1)
		for {
			cur := atomic.LoadInt32(&maxConcurrent)
			if n <= cur || atomic.CompareAndSwapInt32(&maxConcurrent, cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	taskA := httpTask("a", srv.URL)
	taskB := httpTask("b", srv.URL)
	wf := &types.Workflow{
		Name: "fanout",
		Steps: []types.Step{
			{ID: "a", TaskRef: types.TaskRef{Name: "a"}},
			{ID: "b", TaskRef: types.TaskRef{Name: "b"}},
		},
	}
	resolver := NewMapResolver([]*types.Task{taskA, taskB}, nil)

	o := newTestOrchestrator(t, resolver)
	result := o.Execute(context.Background(), wf, nil, Options{Resolver: resolver})

	require.True(t, result.Success)
	assert.Len(t, result.Steps, 2)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&maxConcurrent), int32(2))
}

func TestExecute_UpstreamOutputFlowsDownstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 42}`))
	}))
	defer srv.Close()

	fetch := httpTask("fetch", srv.URL)
	use := httpTask("use", srv.URL)
	wf := &types.Workflow{
		Name: "forkjoin",
		Steps: []types.Step{
			{ID: "fetch", TaskRef: types.TaskRef{Name: "fetch"}},
			{ID: "use", TaskRef: types.TaskRef{Name: "use"}, Input: map[string]any{
				"id": "{{tasks.fetch.output.id}}",
			}},
		},
		Output: map[string]any{
			"result": "{{tasks.use.output.id}}",
		},
	}
	resolver := NewMapResolver([]*types.Task{fetch, use}, nil)

	o := newTestOrchestrator(t, resolver)
	result := o.Execute(context.Background(), wf, nil, Options{Resolver: resolver})

	require.True(t, result.Success)
	require.Equal(t, float64(42), result.Output["result"])
}

func TestExecute_TransformStepConsumesUpstreamOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"count": 3}`))
	}))
	defer srv.Close()

	fetch := httpTask("fetch", srv.URL)
	double := &types.Task{
		Name: "double",
		Type: types.TaskKindTransform,
		Transform: &types.TransformTaskSpec{
			Expression: `{"doubled": tasks["fetch"]["output"]["count"] * 2}`,
		},
	}
	wf := &types.Workflow{
		Name: "transform",
		Steps: []types.Step{
			{ID: "fetch", TaskRef: types.TaskRef{Name: "fetch"}},
			{ID: "double", TaskRef: types.TaskRef{Name: "double"}, DependsOn: []string{"fetch"}},
		},
		Output: map[string]any{
			"doubled": "{{tasks.double.output.doubled}}",
		},
	}
	resolver := NewMapResolver([]*types.Task{fetch, double}, nil)

	o := newTestOrchestrator(t, resolver)
	result := o.Execute(context.Background(), wf, nil, Options{Resolver: resolver})

	require.True(t, result.Success)
	assert.Equal(t, float64(6), result.Output["doubled"])
}

func TestExecute_RetryThenSucceed(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	task := httpTask("flaky", srv.URL)
	wf := &types.Workflow{Name: "retry", Steps: []types.Step{
		{ID: "s", TaskRef: types.TaskRef{Name: "flaky"}},
	}}
	resolver := NewMapResolver([]*types.Task{task}, nil)

	o := newTestOrchestrator(t, resolver)
	result := o.Execute(context.Background(), wf, nil, Options{Resolver: resolver})

	require.True(t, result.Success)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Equal(t, 3, result.Steps[0].Attempts)
}

func TestExecute_CircuitTripsThenFallback(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"degraded":true}`))
	}))
	defer fallback.Close()

	primaryTask := httpTask("primary", primary.URL)
	primaryTask.HTTP.Circuit = &types.CircuitSpec{Enabled: true, FailureThreshold: 1, OpenDuration: time.Hour, SuccessThreshold: 1, HalfOpenMaxProbes: 1}
	primaryTask.HTTP.Retry = &types.RetryPolicy{MaxAttempts: 1}
	fallbackTask := httpTask("fallback", fallback.URL)
	primaryTask.HTTP.Fallback = &types.TaskRef{Name: "fallback"}

	wf := &types.Workflow{Name: "breaker", Steps: []types.Step{
		{ID: "a", TaskRef: types.TaskRef{Name: "primary"}},
		{ID: "b", TaskRef: types.TaskRef{Name: "primary"}, DependsOn: []string{"a"}},
	}}
	resolver := NewMapResolver([]*types.Task{primaryTask, fallbackTask}, nil)

	o := newTestOrchestrator(t, resolver)
	result := o.Execute(context.Background(), wf, nil, Options{Resolver: resolver})

	require.True(t, result.Success)
	assert.True(t, result.Steps[0].UsedFallback)
	assert.True(t, result.Steps[1].UsedFallback)
}

func TestExecute_CacheHitSkipsDispatch(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"v":1}`))
	}))
	defer srv.Close()

	task := httpTask("cached", srv.URL)
	task.HTTP.Cache = &types.CacheSpec{Enabled: true, TTL: time.Minute}
	wf := &types.Workflow{Name: "cache", Steps: []types.Step{
		{ID: "a", TaskRef: types.TaskRef{Name: "cached"}},
		{ID: "b", TaskRef: types.TaskRef{Name: "cached"}, DependsOn: []string{"a"}},
	}}
	resolver := NewMapResolver([]*types.Task{task}, nil)

	o := newTestOrchestrator(t, resolver)
	result := o.Execute(context.Background(), wf, nil, Options{Resolver: resolver})

	require.True(t, result.Success)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, result.Steps[1].FromCache)
}

func TestExecute_SubWorkflowCycleRejected(t *testing.T) {
	child := &types.Workflow{Name: "child", Steps: []types.Step{
		{ID: "recurse", SubWorkflow: &types.TaskRef{Name: "child"}},
	}}
	resolver := NewMapResolver(nil, []*types.Workflow{child})

	o := newTestOrchestrator(t, resolver)
	result := o.Execute(context.Background(), child, nil, Options{Resolver: resolver})

	require.False(t, result.Success)
	require.Len(t, result.Steps, 1)
	require.NotNil(t, result.Steps[0].Error)
	assert.Equal(t, types.KindWorkflowCycle, result.Steps[0].Error.Kind)
}

func TestExecute_DryRunNeverDispatches(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	task := httpTask("a", srv.URL)
	wf := &types.Workflow{Name: "dry", Steps: []types.Step{
		{ID: "a", TaskRef: types.TaskRef{Name: "a"}},
	}}
	resolver := NewMapResolver([]*types.Task{task}, nil)

	o := newTestOrchestrator(t, resolver)
	result := o.Execute(context.Background(), wf, nil, Options{Resolver: resolver, DryRun: true})

	require.True(t, result.Success)
	assert.Equal(t, StatusPlanned, result.Steps[0].Status)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.NotNil(t, result.Steps[0].ResolvedRequest)
}
