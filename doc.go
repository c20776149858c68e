// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package corehttp provides an HTTP client whose retries are driven by an
adaptive, per-request retry policy, together with the plumbing to run
it as a multi-class dispatch service.

A Client executes request plans. Each call to Do gets its own
retry.Policy, which learns of every failed attempt and decides whether
to try again and after how long:

	client := &corehttp.Client{
		RetryPolicy: retry.AdaptiveFactory{
			Min: time.Second, Max: 8 * time.Second, Factor: 2, MaxRetries: 4,
		},
	}
	e, err := client.Get("https://assets.example.com/mesh/42")

Only 5xx responses and transient transport errors are retried. A 4xx
response, or a transport error that is not transient, makes the lineage
permanently non-retryable. A Retry-After header on a failed response
overrides the next delay once, without disturbing the backoff
progression. Terminal errors wrap a *FailureError telling which of
ErrNotRetryable and ErrRetriesExhausted applies:

	if errors.Is(err, corehttp.ErrRetriesExhausted) {
		...
	}

Attempt timeouts come from a timeout.Policy. Handlers installed in a
HandlerGroup run at fixed points of the attempt loop, which is how the
service package attaches logging, metrics, and per-class connection
limits:

	handlers := &corehttp.HandlerGroup{}
	handlers.PushBack(corehttp.BeforeRetryWait, corehttp.HandlerFunc(
		func(_ corehttp.Event, e *request.Execution) {
			logger.Info("retrying", "attempt", e.Attempt, "wait", e.Wait)
		}))

Package service layers concurrency classes on top of Client, and
package coproc runs named pools of coprocedures that issue requests
through it.
*/
package corehttp
