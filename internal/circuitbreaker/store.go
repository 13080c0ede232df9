// Package circuitbreaker implements the per-service circuit breaker state
// machine from spec §4.7: Closed → Open → HalfOpen → Closed transitions
// held behind a Store capability (in-memory or distributed), with an
// operator-facing admin API. Grounded on the state-machine shape exercised
// by jordigilh-kubernaut's pkg/orchestration/dependency circuit breaker
// tests (CircuitStateClosed/Open/HalfOpen naming, per-key Call semantics)
// adapted to the spec's explicit CAS-store design instead of that
// package's single in-process struct.
package circuitbreaker

import (
	"context"
	"time"

	"flowcore/internal/types"
)

// Store is the capability the breaker depends on: get the current state
// for a key, and compare-and-set a new state guarded by its Version
// fencing token (spec §4.7: "compareAndSet must be atomic to avoid
// thundering-herd half-open probes").
type Store interface {
	Get(ctx context.Context, key string) (types.CircuitState, error)
	// CompareAndSet writes next iff the currently stored state's Version
	// equals expected.Version (or no state exists yet and expected is the
	// zero value). Returns ok=false on a version mismatch so the caller
	// can retry with a freshly read state.
	CompareAndSet(ctx context.Context, key string, expected, next types.CircuitState) (ok bool, err error)
}

// Config carries the per-key thresholds from spec §4.7, defaulted via
// appconfig.Config.DefaultCircuitSpec.
type Config struct {
	FailureThreshold  int
	OpenDuration      time.Duration
	SuccessThreshold  int
	HalfOpenMaxProbes int
	Window            time.Duration
}

// ConfigFromSpec adapts a declarative types.CircuitSpec (task/step override
// or appconfig default) into the Config the breaker's state machine uses.
func ConfigFromSpec(spec types.CircuitSpec) Config {
	return Config{
		FailureThreshold:  spec.FailureThreshold,
		OpenDuration:      spec.OpenDuration,
		SuccessThreshold:  spec.SuccessThreshold,
		HalfOpenMaxProbes: spec.HalfOpenMaxProbes,
		Window:            spec.Window,
	}
}

func newState(key string) types.CircuitState {
	return types.CircuitState{Key: key, State: types.CircuitClosed}
}
