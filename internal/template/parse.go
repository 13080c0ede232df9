// Package template implements the `{{ }}` expression grammar and resolver
// described in spec §3/§4.2: `{{input(.path)?}}` and
// `{{tasks.<id>.output(.path)?}}`. The parsing style (segment scanning,
// error values carrying path context) follows station's
// internal/workflows/dataflow/resolver.go, adapted to a real grammar instead
// of that resolver's fixed "previous step" convention.
package template

import (
	"strings"

	"flowcore/internal/types"
)

// SegmentKind tags whether a parsed Segment is literal text or an
// expression to resolve against the execution context.
type SegmentKind string

const (
	SegmentLiteral SegmentKind = "literal"
	SegmentExpr    SegmentKind = "expr"
)

// ExprRoot tags which root an expression resolves against.
type ExprRoot string

const (
	RootInput ExprRoot = "input"
	RootTasks ExprRoot = "tasks"
)

// Segment is one literal-text or expression piece of a parsed template
// string.
type Segment struct {
	Kind    SegmentKind
	Literal string

	Root   ExprRoot
	StepID string   // set when Root == RootTasks
	Path   []string // dotted path after "input" or "tasks.<id>.output"
	Raw    string    // original "{{...}}" text, for error messages
}

// Template is a fully parsed template string: an ordered list of literal and
// expression segments.
type Template struct {
	Segments []Segment
}

// IsSingleExpr reports whether the template is exactly one expression
// segment with no surrounding literal text, e.g. "{{tasks.a.output}}" — the
// case where resolution should preserve the native JSON type rather than
// stringify (spec §4.2).
func (t *Template) IsSingleExpr() bool {
	return len(t.Segments) == 1 && t.Segments[0].Kind == SegmentExpr
}

// Parse scans raw for "{{ ... }}" expressions, splitting it into literal and
// expression segments. It reports template-malformed for unbalanced braces
// or an expression whose root is neither "input" nor "tasks".
func Parse(raw string) (*Template, error) {
	var segments []Segment
	i := 0
	for i < len(raw) {
		start := strings.Index(raw[i:], "{{")
		if start < 0 {
			segments = append(segments, Segment{Kind: SegmentLiteral, Literal: raw[i:]})
			break
		}
		start += i
		if start > i {
			segments = append(segments, Segment{Kind: SegmentLiteral, Literal: raw[i:start]})
		}

		end := strings.Index(raw[start:], "}}")
		if end < 0 {
			return nil, types.NewError(types.KindTemplateMalformed, "unbalanced \"{{\" with no matching \"}}\"").
				WithContext("near", raw[start:])
		}
		end += start

		exprText := strings.TrimSpace(raw[start+2 : end])
		seg, err := parseExpr(exprText)
		if err != nil {
			return nil, err
		}
		seg.Raw = raw[start : end+2]
		segments = append(segments, seg)

		i = end + 2
	}
	if len(segments) == 0 {
		segments = append(segments, Segment{Kind: SegmentLiteral, Literal: ""})
	}
	return &Template{Segments: segments}, nil
}

func parseExpr(exprText string) (Segment, error) {
	if exprText == "" {
		return Segment{}, types.NewError(types.KindTemplateMalformed, "empty expression \"{{}}\"")
	}
	parts := strings.Split(exprText, ".")

	switch parts[0] {
	case string(RootInput):
		return Segment{Kind: SegmentExpr, Root: RootInput, Path: parts[1:]}, nil
	case string(RootTasks):
		if len(parts) < 3 || parts[2] != "output" {
			return Segment{}, types.NewError(types.KindTemplateMalformed,
				"tasks expression must be \"tasks.<id>.output(.path)\"").WithContext("expr", exprText)
		}
		return Segment{Kind: SegmentExpr, Root: RootTasks, StepID: parts[1], Path: parts[3:]}, nil
	default:
		return Segment{}, types.NewError(types.KindTemplateMalformed,
			"expression root must be \"input\" or \"tasks\"").WithContext("expr", exprText)
	}
}
