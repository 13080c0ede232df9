// Package httpexec is the HTTP task executor from spec §4.5: dispatches
// one (method, url, headers, body) request with exponential-backoff retry,
// classifying failures as retriable or fatal. Grounded on station's
// internal/notifications/webhook.go (http.Client with a per-call timeout,
// attempt-numbered retry loop, response body capture for the error
// payload) generalized from that file's fixed quadratic backoff to the
// spec's configurable multiplier/jitter policy.
package httpexec

import (
	"bytes"
	"context"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"flowcore/internal/logging"
	"flowcore/internal/types"
)

// Request is everything the executor needs to dispatch one HTTP call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
	Retry   types.RetryPolicy
}

// Result is the outcome of Execute: the final response (success or the
// last failing attempt's response, if any) plus the attempt count the
// orchestrator reports in ExecutionResult.
type Result struct {
	OK         bool
	StatusCode int
	Headers    http.Header
	Body       []byte
	Attempts   int
}

// Executor dispatches HTTP requests over an injected *http.Client so
// callers can substitute a mock transport in tests (capability-based
// design, spec §9).
type Executor struct {
	client *http.Client
	log    logging.Logger
}

func New(client *http.Client) *Executor {
	if client == nil {
		client = &http.Client{}
	}
	return &Executor{client: client, log: logging.For("httpexec")}
}

// Execute dispatches req, retrying per req.Retry.WithDefaults() until a
// non-retriable terminal outcome, success, or attempt budget exhaustion.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	policy := req.Retry.WithDefaults()
	var lastResult Result
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := e.doOnce(ctx, req)
		lastResult, lastErr = result, err
		lastResult.Attempts = attempt

		if err == nil && result.OK {
			return lastResult, nil
		}

		retriable := isRetriable(result, err)
		if !retriable || attempt == policy.MaxAttempts {
			if err != nil {
				return lastResult, err
			}
			msg := "request failed with a non-retriable status"
			if retriable {
				msg = "request failed with a retriable status and no attempts remain"
			}
			return lastResult, types.NewError(types.KindHTTPFatal, msg).
				WithContext("status", result.StatusCode)
		}

		delay := backoffDelay(policy, attempt)
		e.log.Debug("attempt %d/%d failed, retrying in %s", attempt, policy.MaxAttempts, delay)
		select {
		case <-ctx.Done():
			return lastResult, types.NewError(types.KindTimeout, "context cancelled during retry backoff")
		case <-time.After(delay):
		}
	}
	return lastResult, lastErr
}

func (e *Executor) doOnce(ctx context.Context, req Request) (Result, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, req.Method, req.URL, bodyReader)
	if err != nil {
		return Result{}, types.NewError(types.KindHTTPFatal, "could not build request").WithContext("cause", err.Error())
	}
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		if callCtx.Err() != nil {
			return Result{}, types.NewError(types.KindTimeout, "request timed out").WithContext("cause", err.Error())
		}
		return Result{}, types.NewError(types.KindHTTPRetriable, "request failed").WithContext("cause", err.Error())
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	result := Result{
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}
	return result, nil
}

// isRetriable classifies a terminal outcome per spec §4.5: network/timeout
// errors, 5xx, 408 and 429 are retriable; every other 4xx is not.
func isRetriable(result Result, err error) bool {
	if err != nil {
		kind := types.KindOf(err)
		return kind == types.KindHTTPRetriable || kind == types.KindTimeout
	}
	if result.OK {
		return false
	}
	switch {
	case result.StatusCode >= 500:
		return true
	case result.StatusCode == http.StatusRequestTimeout, result.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// backoffDelay computes the delay before retry k (1-based: the attempt
// that just failed), per spec §4.5's formula.
func backoffDelay(policy types.RetryPolicy, attempt int) time.Duration {
	base := float64(policy.InitialDelay) * math.Pow(policy.Multiplier, float64(attempt-1))
	if max := float64(policy.MaxDelay); max > 0 && base > max {
		base = max
	}
	if policy.Jitter > 0 {
		factor := 1 + (rand.Float64()*2-1)*policy.Jitter
		base *= factor
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}
