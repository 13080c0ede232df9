package template

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"flowcore/internal/types"
)

// Mode controls how a missing value is handled during resolution (spec §9
// Open Question, resolved in DESIGN.md: default is Strict).
type Mode int

const (
	Strict  Mode = iota // missing path => template-missing error
	Lenient             // missing path => empty string / null, no error
)

// Resolve evaluates t against ctx and returns either the native JSON value
// (single-expression templates) or a concatenated string (literal text mixed
// with one or more expressions), per spec §4.2.
func Resolve(t *Template, ctx *types.ExecutionContext, mode Mode) (any, error) {
	if t.IsSingleExpr() {
		return resolveSegment(t.Segments[0], ctx, mode)
	}

	var b strings.Builder
	for _, seg := range t.Segments {
		if seg.Kind == SegmentLiteral {
			b.WriteString(seg.Literal)
			continue
		}
		v, err := resolveSegment(seg, ctx, mode)
		if err != nil {
			return nil, err
		}
		b.WriteString(stringify(v))
	}
	return b.String(), nil
}

// ResolveValue recursively resolves every string leaf of v as a template
// against ctx, rebuilding maps and slices with their resolved values. Used
// for step `input` maps and the workflow `output` mapping, both of which
// may nest templates arbitrarily deep (spec §3/§4.4).
func ResolveValue(v any, ctx *types.ExecutionContext, mode Mode) (any, error) {
	switch val := v.(type) {
	case string:
		tpl, err := Parse(val)
		if err != nil {
			return nil, err
		}
		return Resolve(tpl, ctx, mode)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			r, err := ResolveValue(e, ctx, mode)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			r, err := ResolveValue(e, ctx, mode)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func resolveSegment(seg Segment, ctx *types.ExecutionContext, mode Mode) (any, error) {
	switch seg.Root {
	case RootInput:
		return resolvePath(ctx.Input, seg.Path, seg.Raw, mode)
	case RootTasks:
		out, ok := ctx.GetOutput(seg.StepID)
		if !ok {
			if mode == Lenient {
				return nil, nil
			}
			return nil, types.NewError(types.KindTemplateMissing, "referenced step has not produced output").
				WithContext("step", seg.StepID).WithContext("expr", seg.Raw)
		}
		if out.Error != nil {
			if mode == Lenient {
				return nil, nil
			}
			return nil, types.NewError(types.KindTemplateMissing, "referenced step failed and produced no output").
				WithContext("step", seg.StepID).WithContext("expr", seg.Raw)
		}
		return resolvePath(out.Output, seg.Path, seg.Raw, mode)
	default:
		return nil, types.NewError(types.KindTemplateMalformed, "unknown expression root").WithContext("expr", seg.Raw)
	}
}

// resolvePath walks dotted path segments into root, supporting map and
// slice-index traversal ("items.0.id").
func resolvePath(root any, path []string, raw string, mode Mode) (any, error) {
	cur := root
	for _, key := range path {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[key]
			if !ok {
				if mode == Lenient {
					return nil, nil
				}
				return nil, types.NewError(types.KindTemplateMissing, "path segment not found").
					WithContext("segment", key).WithContext("expr", raw)
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(node) {
				if mode == Lenient {
					return nil, nil
				}
				return nil, types.NewError(types.KindTemplateMissing, "array index out of range").
					WithContext("segment", key).WithContext("expr", raw)
			}
			cur = node[idx]
		default:
			if mode == Lenient {
				return nil, nil
			}
			return nil, types.NewError(types.KindTemplateMissing, "cannot descend into a scalar value").
				WithContext("segment", key).WithContext("expr", raw)
		}
	}
	return cur, nil
}

// stringify renders a resolved value for interpolation into a larger
// string: nil becomes "", objects/arrays get a canonical (key-sorted) JSON
// encoding, everything else uses fmt.Sprint.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any:
		return canonicalJSON(val)
	default:
		return fmt.Sprint(val)
	}
}

func canonicalJSON(v any) string {
	b, err := json.Marshal(sortedCopy(v))
	if err != nil {
		return ""
	}
	return string(b)
}

// sortedCopy recursively rebuilds maps so json.Marshal's natural key-sort
// (Go's encoding/json already sorts map keys) is exercised deterministically
// even through nested structures produced dynamically during resolution.
func sortedCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(val))
		for _, k := range keys {
			out[k] = sortedCopy(val[k])
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = sortedCopy(e)
		}
		return out
	default:
		return v
	}
}
