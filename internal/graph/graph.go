// Package graph builds and schedules the execution DAG for a Workflow: a
// node per Step, edges from explicit dependsOn plus implicit edges
// discovered from `{{tasks.<id>...}}` template references in a step's
// input, cycle detection, level assignment and wave partitioning (spec
// §4.3). The node-table-by-index style follows the flat representations
// used across the example pack rather than a pointer-linked tree.
package graph

import (
	"fmt"
	"sort"

	"flowcore/internal/template"
	"flowcore/internal/types"
)

// Node is one step's position in the graph: its declaration index, the
// indices of the steps it depends on, and its computed level.
type Node struct {
	Index     int
	Step      types.Step
	DependsOn []int // indices into Graph.Nodes
	Level     int
}

// Graph is the built execution DAG for one Workflow.
type Graph struct {
	Nodes   []Node
	indexOf map[string]int
	// Waves groups node indices by level, in declaration order within a
	// level, ready for wave-by-wave concurrent execution.
	Waves [][]int
}

// Build validates step-id uniqueness and dependency references, discovers
// implicit edges from template expressions, detects cycles, and computes
// levels/waves.
func Build(wf *types.Workflow) (*Graph, error) {
	g := &Graph{indexOf: make(map[string]int, len(wf.Steps))}

	for i, step := range wf.Steps {
		if step.ID == "" {
			return nil, types.NewError(types.KindValidationFailed, "step is missing an id").
				WithContext("index", i)
		}
		if _, dup := g.indexOf[step.ID]; dup {
			return nil, types.NewError(types.KindDuplicateID, "duplicate step id").WithContext("id", step.ID)
		}
		g.indexOf[step.ID] = i
		g.Nodes = append(g.Nodes, Node{Index: i, Step: step})
	}

	for i := range g.Nodes {
		deps, err := g.dependenciesOf(g.Nodes[i].Step)
		if err != nil {
			return nil, err
		}
		g.Nodes[i].DependsOn = deps
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}

	if err := g.computeLevels(); err != nil {
		return nil, err
	}

	g.partitionWaves()
	return g, nil
}

// dependenciesOf merges explicit dependsOn with implicit edges discovered
// by parsing every string leaf of the step's Input for `{{tasks.<id>...}}`
// references.
func (g *Graph) dependenciesOf(step types.Step) ([]int, error) {
	seen := make(map[int]bool)
	var deps []int

	add := func(stepID string) error {
		idx, ok := g.indexOf[stepID]
		if !ok {
			return types.NewError(types.KindUnknownDep, "step depends on an unknown step id").
				WithContext("step", step.ID).WithContext("dependsOn", stepID)
		}
		if !seen[idx] {
			seen[idx] = true
			deps = append(deps, idx)
		}
		return nil
	}

	for _, dep := range step.DependsOn {
		if err := add(dep); err != nil {
			return nil, err
		}
	}

	refs, err := collectTaskRefs(step.Input)
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if ref == step.ID {
			return nil, types.NewError(types.KindCircularDependency, "step references its own output").
				WithContext("step", step.ID)
		}
		if err := add(ref); err != nil {
			return nil, err
		}
	}

	sort.Ints(deps)
	return deps, nil
}

// collectTaskRefs walks an arbitrarily nested input map and parses every
// string value as a template, collecting the step ids referenced by
// `{{tasks.<id>...}}` expressions.
func collectTaskRefs(input map[string]any) ([]string, error) {
	var refs []string
	var walk func(v any) error
	walk = func(v any) error {
		switch val := v.(type) {
		case string:
			tpl, err := template.Parse(val)
			if err != nil {
				return err
			}
			for _, seg := range tpl.Segments {
				if seg.Kind == template.SegmentExpr && seg.Root == template.RootTasks {
					refs = append(refs, seg.StepID)
				}
			}
		case map[string]any:
			for _, e := range val {
				if err := walk(e); err != nil {
					return err
				}
			}
		case []any:
			for _, e := range val {
				if err := walk(e); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(input); err != nil {
		return nil, err
	}
	return refs, nil
}

// detectCycles runs DFS with a three-color (white/gray/black) scheme and
// reports the first back-edge cycle found, as a path of step ids.
func (g *Graph) detectCycles() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(g.Nodes))
	var stack []int

	var visit func(i int) error
	visit = func(i int) error {
		color[i] = gray
		stack = append(stack, i)
		for _, dep := range g.Nodes[i].DependsOn {
			switch color[dep] {
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			case gray:
				cyclePath := cyclePathFrom(stack, dep, g.Nodes)
				return types.NewError(types.KindCircularDependency, "dependency cycle detected among steps").
					WithContext("cycle", cyclePath)
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = black
		return nil
	}

	for i := range g.Nodes {
		if color[i] == white {
			if err := visit(i); err != nil {
				return err
			}
		}
	}
	return nil
}

func cyclePathFrom(stack []int, start int, nodes []Node) []string {
	var out []string
	record := false
	for _, idx := range stack {
		if idx == start {
			record = true
		}
		if record {
			out = append(out, nodes[idx].Step.ID)
		}
	}
	out = append(out, nodes[start].Step.ID)
	return out
}

// computeLevels assigns each node level = max(dep.level)+1, 0 for no deps.
// Safe after detectCycles has run (no cycles remain).
func (g *Graph) computeLevels() error {
	levels := make([]int, len(g.Nodes))
	computed := make([]bool, len(g.Nodes))

	var compute func(i int) (int, error)
	compute = func(i int) (int, error) {
		if computed[i] {
			return levels[i], nil
		}
		max := -1
		for _, dep := range g.Nodes[i].DependsOn {
			lvl, err := compute(dep)
			if err != nil {
				return 0, err
			}
			if lvl > max {
				max = lvl
			}
		}
		levels[i] = max + 1
		computed[i] = true
		return levels[i], nil
	}

	for i := range g.Nodes {
		lvl, err := compute(i)
		if err != nil {
			return err
		}
		g.Nodes[i].Level = lvl
	}
	return nil
}

// partitionWaves groups node indices by level, preserving declaration order
// within each level for deterministic, tie-broken scheduling (spec §4.3/§5).
func (g *Graph) partitionWaves() {
	maxLevel := -1
	for _, n := range g.Nodes {
		if n.Level > maxLevel {
			maxLevel = n.Level
		}
	}
	waves := make([][]int, maxLevel+1)
	for _, n := range g.Nodes {
		waves[n.Level] = append(waves[n.Level], n.Index)
	}
	g.Waves = waves
}

func (g *Graph) NodeByStepID(id string) (Node, bool) {
	idx, ok := g.indexOf[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[idx], true
}

func (g *Graph) String() string {
	return fmt.Sprintf("graph(%d steps, %d waves)", len(g.Nodes), len(g.Waves))
}
