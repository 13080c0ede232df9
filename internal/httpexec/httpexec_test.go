package httpexec

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowcore/internal/types"
)

func TestExecute_SucceedsFirstTry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	exec := New(srv.Client())
	result, err := exec.Execute(context.Background(), Request{
		Method: http.MethodGet,
		URL:    srv.URL,
		Retry:  types.RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond},
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 1, result.Attempts)
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exec := New(srv.Client())
	result, err := exec.Execute(context.Background(), Request{
		Method: http.MethodGet,
		URL:    srv.URL,
		Retry:  types.RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2},
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 3, result.Attempts)
}

func TestExecute_NonRetriable4xxFailsImmediately(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	exec := New(srv.Client())
	result, err := exec.Execute(context.Background(), Request{
		Method: http.MethodGet,
		URL:    srv.URL,
		Retry:  types.RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond},
	})
	require.Error(t, err)
	assert.Equal(t, types.KindHTTPFatal, types.KindOf(err))
	assert.Equal(t, 1, calls)
	assert.False(t, result.OK)
}

func TestExecute_429IsRetriable(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exec := New(srv.Client())
	result, err := exec.Execute(context.Background(), Request{
		Method: http.MethodGet,
		URL:    srv.URL,
		Retry:  types.RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond},
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 2, calls)
}
