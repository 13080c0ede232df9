package orchestrator

import (
	"fmt"

	"flowcore/internal/graph"
	"flowcore/internal/schema"
	"flowcore/internal/types"
)

// Validate checks a workflow spec against the catalog available through
// resolver: every step resolves to exactly one of a Task or a Workflow,
// HTTP tasks satisfy their own invariant, the graph builds cleanly
// (duplicate/unknown/circular detection lives in internal/graph), and
// every dataflow edge whose consuming step runs an HTTP task is
// schema-compatible with its upstream task (spec §4.1 Compatible / §6
// "validate(spec, availableTasks)").
func Validate(wf *types.Workflow, resolver Resolver) ValidationReport {
	report := ValidationReport{Valid: true}

	addError := func(err *types.Error) {
		report.Valid = false
		report.Errors = append(report.Errors, err)
	}
	addWarning := func(format string, args ...any) {
		report.Warnings = append(report.Warnings, fmt.Sprintf(format, args...))
	}

	if wf.Name == "" {
		addError(types.NewError(types.KindValidationFailed, "workflow name is required"))
	}
	if err := schema.ValidateSchemaItself(wf.InputSchema); err != nil {
		addError(err.(*types.Error))
	}

	resolvedTasks := make(map[string]*types.Task, len(wf.Steps))

	for _, step := range wf.Steps {
		hasTask := !step.TaskRef.IsZero()
		hasWorkflow := step.SubWorkflow != nil && !step.SubWorkflow.IsZero()

		switch {
		case hasTask == hasWorkflow:
			addError(types.NewError(types.KindValidationFailed,
				"step must reference exactly one of taskRef or workflowRef").
				WithContext("step", step.ID))
			continue
		case hasTask:
			task, ok := resolver.GetTask(step.TaskRef)
			if !ok {
				addError(types.NewError(types.KindValidationFailed, "referenced task not found").
					WithContext("step", step.ID).WithContext("task", step.TaskRef.Key()))
				continue
			}
			if err := task.Validate(); err != nil {
				addError(err.(*types.Error))
				continue
			}
			resolvedTasks[step.ID] = task
			if step.Cache != nil && step.Cache.Enabled && task.Type == types.TaskKindHTTP {
				allowed := step.Cache.AllowedMethods()
				if !containsMethod(allowed, string(task.HTTP.Method)) {
					addWarning("step %q configures caching for method %s which is not in its cache spec's allowed methods", step.ID, task.HTTP.Method)
				}
			}
		case hasWorkflow:
			if _, ok := resolver.GetWorkflow(*step.SubWorkflow); !ok {
				addError(types.NewError(types.KindValidationFailed, "referenced workflow not found").
					WithContext("step", step.ID).WithContext("workflow", step.SubWorkflow.Key()))
			}
		}

		if len(step.DependsOn) == 0 && !referencesAnyTask(step.Input) {
			addWarning("step %q has no declared dependencies and no template references; it will run in wave 0", step.ID)
		}
	}

	g, err := graph.Build(wf)
	if err != nil {
		addError(err.(*types.Error))
		return report
	}

	for _, node := range g.Nodes {
		consumer, ok := resolvedTasks[node.Step.ID]
		if !ok || consumer.Type != types.TaskKindHTTP {
			continue
		}
		for _, depIdx := range node.DependsOn {
			producerStepID := g.Nodes[depIdx].Step.ID
			producer, ok := resolvedTasks[producerStepID]
			if !ok {
				continue
			}
			compat := schema.Compatible(producer.OutputSchema, consumer.InputSchema)
			if !compat.Compatible {
				addError(types.NewError(types.KindTypeIncompatible,
					fmt.Sprintf("step %q's inputs are incompatible with upstream step %q: %v", node.Step.ID, producerStepID, compat.Issues)).
					WithContext("step", node.Step.ID).WithContext("upstream", producerStepID))
			}
			for _, w := range compat.Warnings {
				addWarning("step %q <- %q: %s", node.Step.ID, producerStepID, w)
			}
		}
	}

	return report
}

func containsMethod(methods []string, m string) bool {
	for _, x := range methods {
		if x == m {
			return true
		}
	}
	return false
}

func referencesAnyTask(input map[string]any) bool {
	refs, _ := collectTemplateRefs(input)
	return len(refs) > 0
}
