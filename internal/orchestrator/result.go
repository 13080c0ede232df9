package orchestrator

import "flowcore/internal/types"

// Status is a step's terminal state, per spec §4.4/§5.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusPlanned   Status = "planned" // dryRun: resolved but never dispatched
)

// StepResult is one step's diagnostics within an ExecutionResult (spec §6
// "Execution result").
type StepResult struct {
	ID              string         `json:"id"`
	TaskRef         *types.TaskRef `json:"taskRef,omitempty"`
	WorkflowRef     *types.TaskRef `json:"workflowRef,omitempty"`
	Status          Status         `json:"status"`
	Output          any            `json:"output,omitempty"`
	Error           *types.Error   `json:"error,omitempty"`
	Attempts        int            `json:"attempts"`
	DurationMS      int64          `json:"durationMs"`
	FromCache       bool           `json:"fromCache,omitempty"`
	UsedFallback    bool           `json:"usedFallback,omitempty"`
	FallbackTaskRef *types.TaskRef `json:"fallbackTaskRef,omitempty"`

	// ResolvedRequest is populated in dry-run mode so callers can inspect
	// what would have been dispatched without issuing it (spec §6 "Returns
	// the plan plus resolved templates").
	ResolvedRequest map[string]any `json:"resolvedRequest,omitempty"`
}

// ExecutionResult is the orchestrator's machine-readable outcome of one
// `execute` call (spec §6).
type ExecutionResult struct {
	ExecutionID              string       `json:"executionId"`
	Success                  bool         `json:"success"`
	Output                   map[string]any `json:"output,omitempty"`
	Steps                    []StepResult `json:"steps"`
	DurationMS               int64        `json:"durationMs"`
	GraphBuildDurationMicros int64        `json:"graphBuildDurationMicros,omitempty"`
}

// ValidationReport is the result of Validate (spec §6).
type ValidationReport struct {
	Valid    bool          `json:"valid"`
	Errors   []*types.Error `json:"errors,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
}
