package types

import "time"

// CircuitStateKind tags the three states of a circuit breaker (spec §4.7).
type CircuitStateKind string

const (
	CircuitClosed   CircuitStateKind = "closed"
	CircuitOpen     CircuitStateKind = "open"
	CircuitHalfOpen CircuitStateKind = "half-open"
)

// CircuitState is the persisted state of one breaker key, shared by the
// in-memory and distributed (Redis) stores behind the same CAS contract.
type CircuitState struct {
	Key              string           `json:"key"`
	State            CircuitStateKind `json:"state"`
	FailureCount     int              `json:"failureCount"`
	SuccessCount     int              `json:"successCount"`
	OpenedAt         time.Time        `json:"openedAt,omitempty"`
	HalfOpenProbes   int              `json:"halfOpenProbes"`
	LastTransitionAt time.Time        `json:"lastTransitionAt"`
	// Version is a CAS fencing token: stores must reject a write whose
	// Version does not match the currently stored value.
	Version uint64 `json:"version"`
}

// ReadyAt returns the time the breaker may transition from Open to HalfOpen.
func (c CircuitState) ReadyAt(openDuration time.Duration) time.Time {
	return c.OpenedAt.Add(openDuration)
}

// CacheRecord is one entry in a cache provider, expiring absolutely at
// StoredAt+TTL (spec §4.6: "absolute expiry computed at insertion").
type CacheRecord struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	StoredAt  time.Time `json:"storedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (r CacheRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}
