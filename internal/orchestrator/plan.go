package orchestrator

import (
	"flowcore/internal/graph"
	"flowcore/internal/types"
)

// Plan builds the execution graph for wf without running it (spec §6
// "plan(spec)"). Returns the same *graph.Graph Execute uses internally,
// so callers inspecting `waves` see exactly what Execute will drive.
func Plan(wf *types.Workflow) (*graph.Graph, error) {
	return graph.Build(wf)
}
