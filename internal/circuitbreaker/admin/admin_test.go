package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowcore/internal/circuitbreaker"
	"flowcore/internal/types"
)

func testConfig() circuitbreaker.Config {
	return circuitbreaker.Config{
		FailureThreshold:  1,
		OpenDuration:      0,
		SuccessThreshold:  1,
		HalfOpenMaxProbes: 1,
	}
}

func newTestServer(t *testing.T, breaker *circuitbreaker.Breaker) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(breaker).Register(mux, "/circuits")
	return httptest.NewServer(mux)
}

func TestHandler_Health_NoOpenCircuits(t *testing.T) {
	breaker := circuitbreaker.New(circuitbreaker.NewMemoryStore())
	srv := newTestServer(t, breaker)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/circuits/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["healthy"])
}

func TestHandler_ForceOpenThenGet(t *testing.T) {
	breaker := circuitbreaker.New(circuitbreaker.NewMemoryStore())
	srv := newTestServer(t, breaker)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/circuits/payments-api/open", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st types.CircuitState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, types.CircuitOpen, st.State)

	resp2, err := http.Get(srv.URL + "/circuits/payments-api")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	healthResp, err := http.Get(srv.URL + "/circuits/health")
	require.NoError(t, err)
	defer healthResp.Body.Close()
	var health map[string]any
	require.NoError(t, json.NewDecoder(healthResp.Body).Decode(&health))
	assert.Equal(t, false, health["healthy"])
}

func TestHandler_ResetClearsOpenState(t *testing.T) {
	breaker := circuitbreaker.New(circuitbreaker.NewMemoryStore())
	ctx := context.Background()
	cfg := testConfig()
	require.NoError(t, breaker.RecordOutcome(ctx, "flaky", cfg, false))
	_, err := breaker.Allow(ctx, "flaky", cfg)
	require.NoError(t, err)

	srv := newTestServer(t, breaker)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/circuits/flaky/reset", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st types.CircuitState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, types.CircuitClosed, st.State)
}

func TestHandler_List(t *testing.T) {
	breaker := circuitbreaker.New(circuitbreaker.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, breaker.RecordOutcome(ctx, "a", testConfig(), true))
	require.NoError(t, breaker.RecordOutcome(ctx, "b", testConfig(), true))

	srv := newTestServer(t, breaker)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/circuits")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var states []types.CircuitState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&states))
	assert.Len(t, states, 2)
}

func TestHandler_UnknownActionNotFound(t *testing.T) {
	breaker := circuitbreaker.New(circuitbreaker.NewMemoryStore())
	srv := newTestServer(t, breaker)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/circuits/svc/bogus", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
