// Package types holds the shared data model for workflows, tasks, steps and
// the structured errors every other package in the engine produces.
package types

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable discriminator carried by every structured Error
// the engine returns; see spec §4.9 / §7 for the full table.
type ErrorKind string

const (
	KindSchemaInvalid         ErrorKind = "schema-invalid"
	KindValidationFailed      ErrorKind = "validation-failed"
	KindTemplateMalformed     ErrorKind = "template-malformed"
	KindTemplateMissing       ErrorKind = "template-missing"
	KindDuplicateID           ErrorKind = "duplicate-id"
	KindUnknownDep            ErrorKind = "unknown-dep"
	KindCircularDependency    ErrorKind = "circular-dependency"
	KindTypeIncompatible      ErrorKind = "type-incompatible"
	KindHTTPRetriable         ErrorKind = "http-retriable"
	KindHTTPFatal             ErrorKind = "http-fatal"
	KindCircuitOpen           ErrorKind = "circuit-open"
	KindTimeout               ErrorKind = "timeout"
	KindWorkflowCycle         ErrorKind = "workflow-cycle"
	KindWorkflowDepthExceeded ErrorKind = "workflow-depth-exceeded"
	KindCancelled             ErrorKind = "cancelled"
)

// Error is a structured value with a stable kind, a human message and a
// free-form context payload (path, ids, cycle path, ...). It mirrors the
// teacher's ValidationIssue{Code,Path,Message,Hint} shape but is used as an
// actual `error` across every component so callers can both read fields and
// use errors.Is/errors.As.
type Error struct {
	Kind    ErrorKind
	Message string
	Path    string
	Context map[string]any
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// WithPath returns a copy of e annotated with a JSON-pointer-style path.
func (e *Error) WithPath(path string) *Error {
	clone := *e
	clone.Path = path
	return &clone
}

// WithContext returns a copy of e with an extra context key/value attached.
func (e *Error) WithContext(key string, value any) *Error {
	clone := *e
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	clone.Context = ctx
	return &clone
}

// Is lets errors.Is match on Kind alone, e.g.
// errors.Is(err, NewError(KindTimeout, "")).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf extracts the ErrorKind from any error produced by this engine, or
// "" if err was not one of ours.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
