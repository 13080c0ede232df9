package types

import "sync"

// StepOutput is the recorded result of one step's execution, keyed into the
// ExecutionContext under its step id for later template resolution
// (`{{tasks.<id>.output...}}`).
type StepOutput struct {
	Output     any
	Error      *Error
	FromCache  bool
	Attempts   int
	DurationMS int64
}

// ExecutionContext holds the input and the accumulating per-step outputs for
// one workflow run. Each step id is written exactly once by the step that
// owns it (spec §5 single-writer-per-key), so the mutex only guards against
// concurrent readers from sibling goroutines within a wave, not against
// concurrent writers of the same key.
type ExecutionContext struct {
	mu      sync.RWMutex
	Input   map[string]any
	outputs map[string]StepOutput
}

func NewExecutionContext(input map[string]any) *ExecutionContext {
	return &ExecutionContext{
		Input:   input,
		outputs: make(map[string]StepOutput),
	}
}

// SetOutput records the output for stepID. Called once per step, after it
// terminates (success or failure).
func (c *ExecutionContext) SetOutput(stepID string, out StepOutput) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs[stepID] = out
}

// GetOutput returns the recorded output for stepID, if any.
func (c *ExecutionContext) GetOutput(stepID string) (StepOutput, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, ok := c.outputs[stepID]
	return out, ok
}

// Snapshot returns a shallow copy of all recorded outputs, safe to range over
// without holding the context's lock.
func (c *ExecutionContext) Snapshot() map[string]StepOutput {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := make(map[string]StepOutput, len(c.outputs))
	for k, v := range c.outputs {
		snap[k] = v
	}
	return snap
}

// CallStack tracks the chain of workflow refs currently being executed, used
// by the sub-workflow executor to reject self-reference cycles and enforce a
// maximum nesting depth (spec §4.8).
type CallStack struct {
	frames []TaskRef
}

func NewCallStack(frames ...TaskRef) *CallStack {
	return &CallStack{frames: append([]TaskRef(nil), frames...)}
}

// Push returns a new CallStack with ref appended, or an error if ref already
// appears on the stack (a cycle) or the resulting depth exceeds maxDepth.
func (s *CallStack) Push(ref TaskRef, maxDepth int) (*CallStack, error) {
	for i, f := range s.frames {
		if f.Key() == ref.Key() {
			cycle := make([]string, 0, len(s.frames)-i+1)
			for _, fr := range s.frames[i:] {
				cycle = append(cycle, fr.Key())
			}
			cycle = append(cycle, ref.Key())
			return nil, NewError(KindWorkflowCycle, "sub-workflow call cycle detected").
				WithContext("cycle", cycle)
		}
	}
	if len(s.frames)+1 > maxDepth {
		return nil, NewError(KindWorkflowDepthExceeded, "sub-workflow nesting exceeds maximum depth").
			WithContext("maxDepth", maxDepth).WithContext("depth", len(s.frames)+1)
	}
	next := make([]TaskRef, len(s.frames)+1)
	copy(next, s.frames)
	next[len(s.frames)] = ref
	return &CallStack{frames: next}, nil
}

func (s *CallStack) Depth() int {
	return len(s.frames)
}

func (s *CallStack) Frames() []TaskRef {
	return append([]TaskRef(nil), s.frames...)
}
