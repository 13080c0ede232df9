// Package logging is a minimal stderr logger adapted from station's
// internal/logging package (global Initialize + Info/Debug/Error), extended
// with a per-component tag so each subsystem (orchestrator, httpexec,
// circuitbreaker, cache) logs under its own name instead of one shared
// global logger.
package logging

import (
	"io"
	"log"
	"os"
)

// Logger provides level-based, component-tagged logging.
type Logger struct {
	component    string
	debugEnabled bool
	infoLogger   *log.Logger
	debugLogger  *log.Logger
}

var globalDebug bool

// Initialize sets the process-wide debug flag. All logging goes to stderr
// regardless, so it never interferes with stdout-based protocols.
func Initialize(debugMode bool) {
	globalDebug = debugMode
}

// For returns a Logger tagged with component, e.g.
// logging.For("orchestrator").Info("starting wave %d", i).
func For(component string) Logger {
	var output io.Writer = os.Stderr
	return Logger{
		component:    component,
		debugEnabled: globalDebug,
		infoLogger:   log.New(output, "", log.LstdFlags),
		debugLogger:  log.New(output, "", log.LstdFlags),
	}
}

func (l Logger) Info(format string, args ...interface{}) {
	l.infoLogger.Printf("[%s] "+format, append([]interface{}{l.component}, args...)...)
}

func (l Logger) Debug(format string, args ...interface{}) {
	if !l.debugEnabled {
		return
	}
	l.debugLogger.Printf("[%s] DEBUG: "+format, append([]interface{}{l.component}, args...)...)
}

func (l Logger) Error(format string, args ...interface{}) {
	l.infoLogger.Printf("[%s] ERROR: "+format, append([]interface{}{l.component}, args...)...)
}

// Package-level helpers retained for call sites (and the CLI bootstrap) that
// want the unqualified "flowcore" component without constructing a Logger.
func Info(format string, args ...interface{})  { For("flowcore").Info(format, args...) }
func Debug(format string, args ...interface{}) { For("flowcore").Debug(format, args...) }
func Error(format string, args ...interface{}) { For("flowcore").Error(format, args...) }

// IsDebugEnabled reports whether the global debug flag is set.
func IsDebugEnabled() bool { return globalDebug }
