package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowcore/internal/types"
)

func TestParse_Literal(t *testing.T) {
	tpl, err := Parse("hello world")
	require.NoError(t, err)
	require.Len(t, tpl.Segments, 1)
	assert.Equal(t, SegmentLiteral, tpl.Segments[0].Kind)
}

func TestParse_SingleInputExpr(t *testing.T) {
	tpl, err := Parse("{{input.name}}")
	require.NoError(t, err)
	assert.True(t, tpl.IsSingleExpr())
	assert.Equal(t, RootInput, tpl.Segments[0].Root)
	assert.Equal(t, []string{"name"}, tpl.Segments[0].Path)
}

func TestParse_TasksExpr(t *testing.T) {
	tpl, err := Parse("{{tasks.fetch.output.id}}")
	require.NoError(t, err)
	assert.Equal(t, RootTasks, tpl.Segments[0].Root)
	assert.Equal(t, "fetch", tpl.Segments[0].StepID)
	assert.Equal(t, []string{"id"}, tpl.Segments[0].Path)
}

func TestParse_UnbalancedBraces(t *testing.T) {
	_, err := Parse("{{input.name")
	require.Error(t, err)
	assert.Equal(t, types.KindTemplateMalformed, types.KindOf(err))
}

func TestParse_BadRoot(t *testing.T) {
	_, err := Parse("{{bogus.x}}")
	require.Error(t, err)
	assert.Equal(t, types.KindTemplateMalformed, types.KindOf(err))
}

func TestParse_TasksMissingOutput(t *testing.T) {
	_, err := Parse("{{tasks.fetch.result}}")
	require.Error(t, err)
	assert.Equal(t, types.KindTemplateMalformed, types.KindOf(err))
}

func TestResolve_SingleExprPreservesType(t *testing.T) {
	ctx := types.NewExecutionContext(map[string]any{"count": 3})
	tpl, err := Parse("{{input.count}}")
	require.NoError(t, err)

	v, err := Resolve(tpl, ctx, Strict)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestResolve_InterleavedStringifies(t *testing.T) {
	ctx := types.NewExecutionContext(map[string]any{"name": "world"})
	tpl, err := Parse("hello {{input.name}}!")
	require.NoError(t, err)

	v, err := Resolve(tpl, ctx, Strict)
	require.NoError(t, err)
	assert.Equal(t, "hello world!", v)
}

func TestResolve_TasksOutput(t *testing.T) {
	ctx := types.NewExecutionContext(nil)
	ctx.SetOutput("fetch", types.StepOutput{Output: map[string]any{"id": "abc"}})

	tpl, err := Parse("{{tasks.fetch.output.id}}")
	require.NoError(t, err)

	v, err := Resolve(tpl, ctx, Strict)
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}

func TestResolve_MissingStrictErrors(t *testing.T) {
	ctx := types.NewExecutionContext(nil)
	tpl, err := Parse("{{tasks.fetch.output.id}}")
	require.NoError(t, err)

	_, err = Resolve(tpl, ctx, Strict)
	require.Error(t, err)
	assert.Equal(t, types.KindTemplateMissing, types.KindOf(err))
}

func TestResolve_MissingLenientReturnsNil(t *testing.T) {
	ctx := types.NewExecutionContext(nil)
	tpl, err := Parse("{{tasks.fetch.output.id}}")
	require.NoError(t, err)

	v, err := Resolve(tpl, ctx, Lenient)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestResolve_ArrayIndexPath(t *testing.T) {
	ctx := types.NewExecutionContext(map[string]any{
		"items": []any{
			map[string]any{"id": "a"},
			map[string]any{"id": "b"},
		},
	})
	tpl, err := Parse("{{input.items.1.id}}")
	require.NoError(t, err)

	v, err := Resolve(tpl, ctx, Strict)
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestResolve_ObjectStringifiesCanonically(t *testing.T) {
	ctx := types.NewExecutionContext(nil)
	ctx.SetOutput("fetch", types.StepOutput{Output: map[string]any{"b": 2, "a": 1}})

	tpl, err := Parse("result={{tasks.fetch.output}}")
	require.NoError(t, err)

	v, err := Resolve(tpl, ctx, Strict)
	require.NoError(t, err)
	assert.Equal(t, `result={"a":1,"b":2}`, v)
}
