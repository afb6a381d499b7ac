// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the retry-governed HTTP call used by the OCR
// request pipeline.
package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/markit-mistral/pkg/types"
)

// DefaultBaseDelay is the backoff base used when a Policy leaves it unset.
const DefaultBaseDelay = 1 * time.Second

const maxDetailBytes = 512

// State is the retry bookkeeping of one outbound call. It lives only for
// the duration of Do.
type State struct {
	// Attempt is the 1-based number of the attempt that just finished.
	Attempt int

	// LastKind is the classification of the last failed attempt.
	LastKind types.ErrorKind

	// StatusCode is the HTTP status of the last failed attempt, 0 for
	// transport errors.
	StatusCode int

	// Delay is the backoff applied before the next attempt.
	Delay time.Duration

	// Err is the transport error of the last failed attempt, if any.
	Err error
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy bounds the retry loop.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt. Zero
	// means a single attempt; negative values are treated as zero.
	MaxRetries int

	// BaseDelay is the first backoff; attempt n waits BaseDelay * 2^(n-1).
	BaseDelay time.Duration

	// Sleep replaces the wall-clock wait. Tests inject a no-op.
	Sleep SleepFunc

	// OnRetry is called before each backoff wait.
	OnRetry func(State)
}

func (p Policy) maxRetries() int {
	if p.MaxRetries < 0 {
		return 0
	}
	return p.MaxRetries
}

func (p Policy) baseDelay() time.Duration {
	if p.BaseDelay <= 0 {
		return DefaultBaseDelay
	}
	return p.BaseDelay
}

// Backoff returns the delay before the retry that follows the given
// 1-based attempt: base * 2^(attempt-1).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(math.Pow(2, float64(attempt-1))) * base
}

// Sleep waits for d, returning ctx.Err() if the context ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Classify maps the outcome of one attempt to a failure kind. It returns
// ok=true for a 2xx response.
//
//   - transport errors, 408, 429, and 5xx are transient
//   - 401 and 403 are authentication failures
//   - every other status is permanent
func Classify(resp *http.Response, err error) (kind types.ErrorKind, ok bool) {
	if err != nil {
		return types.KindTransient, false
	}
	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return "", true
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return types.KindAuthentication, false
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return types.KindTransient, false
	default:
		return types.KindPermanent, false
	}
}

// RequestFunc builds a fresh request for each attempt so bodies can be
// replayed.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Do issues the request built by newRequest and retries transient failures
// with exponential backoff. Permanent and authentication failures return
// immediately. On success the caller owns the response body.
//
// The states are Pending, Success, and Failed: a transient failure goes
// back to Pending while retries remain and to Failed with Exhausted set
// otherwise. At most MaxRetries+1 attempts are made.
func Do(ctx context.Context, client *http.Client, op string, newRequest RequestFunc, p Policy) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	maxRetries := p.maxRetries()

	var st State
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st.Attempt++

		req, err := newRequest(ctx)
		if err != nil {
			return nil, &types.Error{Kind: types.KindPermanent, Op: op, Attempts: st.Attempt, Detail: "building request", Err: err}
		}

		resp, err := client.Do(req)
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		kind, ok := Classify(resp, err)
		if ok {
			return resp, nil
		}

		failure := &types.Error{Kind: kind, Op: op, Attempts: st.Attempt, Err: err}
		var retryAfter time.Duration
		if resp != nil {
			failure.StatusCode = resp.StatusCode
			failure.RateLimited = resp.StatusCode == http.StatusTooManyRequests
			failure.Detail = errorMessage(drainDetail(resp))
			retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}

		st.LastKind = kind
		st.StatusCode = failure.StatusCode
		st.Err = err

		if kind != types.KindTransient {
			return nil, failure
		}
		if st.Attempt > maxRetries {
			failure.Exhausted = true
			return nil, failure
		}

		st.Delay = Backoff(p.baseDelay(), st.Attempt)
		if retryAfter > st.Delay {
			st.Delay = retryAfter
		}
		if p.OnRetry != nil {
			p.OnRetry(st)
		}
		if err := sleep(ctx, st.Delay); err != nil {
			return nil, err
		}
	}
}

// drainDetail reads a bounded prefix of the error body for the error
// message, then drains and closes the body.
func drainDetail(resp *http.Response) string {
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))
	io.Copy(io.Discard, resp.Body)
	return strings.TrimSpace(string(data))
}

// parseRetryAfter understands the delta-seconds form of Retry-After.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// errorMessage extracts a readable message from a JSON error body of the
// form {"message": "..."} or {"detail": "..."}; other bodies are returned
// as-is.
func errorMessage(body string) string {
	var payload struct {
		Message any `json:"message"`
		Detail  any `json:"detail"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return body
	}
	for _, v := range []any{payload.Message, payload.Detail} {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return body
}

// Describe renders a one-line summary of a retry state for logging.
func Describe(st State) string {
	if st.StatusCode != 0 {
		return fmt.Sprintf("attempt %d failed with HTTP %d (%s), retrying in %v", st.Attempt, st.StatusCode, st.LastKind, st.Delay)
	}
	return fmt.Sprintf("attempt %d failed (%s: %v), retrying in %v", st.Attempt, st.LastKind, st.Err, st.Delay)
}
