package circuitbreaker

import (
	"context"
	"time"

	"flowcore/internal/logging"
	"flowcore/internal/types"
)

// maxCASRetries bounds the optimistic compare-and-set loop so a
// pathologically hot key cannot spin the caller forever (spec §4.7: "a
// bounded-retry optimistic loop is acceptable").
const maxCASRetries = 5

// Lister is implemented by stores that can enumerate every key they track,
// used by the admin API's list()/health() operations.
type Lister interface {
	List(ctx context.Context) ([]types.CircuitState, error)
}

// Verdict is the breaker's answer to "may this call proceed".
type Verdict int

const (
	Admit Verdict = iota
	Reject
)

// Breaker drives the Closed/Open/HalfOpen state machine described in
// spec §4.7 over an injected Store, keeping the transition logic itself
// storage-agnostic (capability-based design, spec §9).
type Breaker struct {
	store Store
	clock func() time.Time
	log   logging.Logger
}

func New(store Store) *Breaker {
	return &Breaker{store: store, clock: time.Now, log: logging.For("circuitbreaker")}
}

// Allow asks whether a call against key may proceed under cfg's
// thresholds, transitioning Open→HalfOpen when openDuration has elapsed.
func (b *Breaker) Allow(ctx context.Context, key string, cfg Config) (Verdict, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		cur, err := b.store.Get(ctx, key)
		if err != nil {
			return Reject, err
		}

		switch cur.State {
		case types.CircuitClosed:
			return Admit, nil

		case types.CircuitOpen:
			if b.clock().Before(cur.ReadyAt(cfg.OpenDuration)) {
				return Reject, nil
			}
			next := cur
			next.State = types.CircuitHalfOpen
			next.HalfOpenProbes = 1
			next.SuccessCount = 0
			next.LastTransitionAt = b.clock()
			ok, err := b.store.CompareAndSet(ctx, key, cur, next)
			if err != nil {
				return Reject, err
			}
			if ok {
				b.log.Info("circuit %s: open -> half-open, admitting probe", key)
				return Admit, nil
			}
			continue // lost the race, re-read and retry

		case types.CircuitHalfOpen:
			if cur.HalfOpenProbes >= cfg.HalfOpenMaxProbes {
				return Reject, nil
			}
			next := cur
			next.HalfOpenProbes++
			ok, err := b.store.CompareAndSet(ctx, key, cur, next)
			if err != nil {
				return Reject, err
			}
			if ok {
				return Admit, nil
			}
			continue

		default:
			return Admit, nil
		}
	}
	// Contention exhausted the retry budget; fail safe by rejecting rather
	// than risking an unbounded retry loop or an un-gated call.
	return Reject, nil
}

// RecordOutcome updates the breaker's counters for key after a call
// completes, transitioning Closed→Open or HalfOpen→Closed/Open per
// spec §4.7.
func (b *Breaker) RecordOutcome(ctx context.Context, key string, cfg Config, success bool) error {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		cur, err := b.store.Get(ctx, key)
		if err != nil {
			return err
		}

		next := cur
		switch cur.State {
		case types.CircuitClosed:
			if success {
				next.FailureCount = 0
			} else {
				next.FailureCount++
				if next.FailureCount >= cfg.FailureThreshold {
					next.State = types.CircuitOpen
					next.OpenedAt = b.clock()
					next.LastTransitionAt = b.clock()
					next.FailureCount = 0
					b.log.Info("circuit %s: closed -> open (failure threshold reached)", key)
				}
			}

		case types.CircuitHalfOpen:
			if success {
				next.SuccessCount++
				if next.SuccessCount >= cfg.SuccessThreshold {
					next.State = types.CircuitClosed
					next.FailureCount = 0
					next.SuccessCount = 0
					next.HalfOpenProbes = 0
					next.LastTransitionAt = b.clock()
					b.log.Info("circuit %s: half-open -> closed (recovered)", key)
				} else if next.HalfOpenProbes > 0 {
					// The probe has finished: free its admission slot so the
					// next probe can be admitted.
					next.HalfOpenProbes--
				}
			} else {
				next.State = types.CircuitOpen
				next.OpenedAt = b.clock()
				next.LastTransitionAt = b.clock()
				next.SuccessCount = 0
				next.HalfOpenProbes = 0
				b.log.Info("circuit %s: half-open -> open (probe failed)", key)
			}

		case types.CircuitOpen:
			// A call may still be in flight from just before the breaker
			// tripped; nothing to do, the next Allow() will re-evaluate.
			return nil
		}

		ok, err := b.store.CompareAndSet(ctx, key, cur, next)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return nil
}

// Admin operations (spec §4.7 "API for operators"); all are idempotent.

func (b *Breaker) Get(ctx context.Context, key string) (types.CircuitState, error) {
	return b.store.Get(ctx, key)
}

func (b *Breaker) List(ctx context.Context) ([]types.CircuitState, error) {
	lister, ok := b.store.(Lister)
	if !ok {
		return nil, nil
	}
	return lister.List(ctx)
}

func (b *Breaker) ForceOpen(ctx context.Context, key string) error {
	return b.transitionAdmin(ctx, key, func(st *types.CircuitState) {
		st.State = types.CircuitOpen
		st.OpenedAt = b.clock()
	})
}

func (b *Breaker) ForceClose(ctx context.Context, key string) error {
	return b.transitionAdmin(ctx, key, func(st *types.CircuitState) {
		st.State = types.CircuitClosed
	})
}

// Reset idempotently returns key to Closed with zeroed counters.
func (b *Breaker) Reset(ctx context.Context, key string) error {
	return b.transitionAdmin(ctx, key, func(st *types.CircuitState) {
		st.State = types.CircuitClosed
		st.FailureCount = 0
		st.SuccessCount = 0
		st.HalfOpenProbes = 0
		st.OpenedAt = time.Time{}
	})
}

func (b *Breaker) transitionAdmin(ctx context.Context, key string, mutate func(*types.CircuitState)) error {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		cur, err := b.store.Get(ctx, key)
		if err != nil {
			return err
		}
		next := cur
		mutate(&next)
		next.LastTransitionAt = b.clock()
		ok, err := b.store.CompareAndSet(ctx, key, cur, next)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return nil
}

// Health reports overall breaker health: healthy iff no key is Open.
func (b *Breaker) Health(ctx context.Context) (healthy bool, openCircuits []string, err error) {
	states, err := b.List(ctx)
	if err != nil {
		return false, nil, err
	}
	healthy = true
	for _, st := range states {
		if st.State == types.CircuitOpen {
			healthy = false
			openCircuits = append(openCircuits, st.Key)
		}
	}
	return healthy, openCircuits, nil
}
