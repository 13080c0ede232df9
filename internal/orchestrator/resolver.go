package orchestrator

import "flowcore/internal/types"

// Resolver bridges the orchestrator to the external Task/Workflow catalog
// (spec §6 "Task resolver contract"). Refs are looked up by Key()
// ("namespace/name" or bare "name"); resolution is case-sensitive.
type Resolver interface {
	GetTask(ref types.TaskRef) (*types.Task, bool)
	GetWorkflow(ref types.TaskRef) (*types.Workflow, bool)
}

// MapResolver is an in-memory Resolver built from fixed slices, suitable
// for tests and the CLI's `execute`/`validate`/`plan` subcommands which
// load catalogs from local files rather than a live registry.
type MapResolver struct {
	tasks     map[string]*types.Task
	workflows map[string]*types.Workflow
}

func NewMapResolver(tasks []*types.Task, workflows []*types.Workflow) *MapResolver {
	r := &MapResolver{
		tasks:     make(map[string]*types.Task, len(tasks)),
		workflows: make(map[string]*types.Workflow, len(workflows)),
	}
	for _, t := range tasks {
		r.tasks[t.Ref().Key()] = t
	}
	for _, w := range workflows {
		r.workflows[w.Ref().Key()] = w
	}
	return r
}

func (r *MapResolver) GetTask(ref types.TaskRef) (*types.Task, bool) {
	t, ok := r.tasks[ref.Key()]
	return t, ok
}

func (r *MapResolver) GetWorkflow(ref types.TaskRef) (*types.Workflow, bool) {
	w, ok := r.workflows[ref.Key()]
	return w, ok
}
