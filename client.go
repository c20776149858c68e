// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package corehttp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gogama/corehttp/request"
	"github.com/gogama/corehttp/retry"
	"github.com/gogama/corehttp/timeout"
	"github.com/gogama/corehttp/transient"
)

// An HTTPDoer implements a Do method in the same manner as the standard
// library http.Client.
type HTTPDoer interface {
	// Do sends an HTTP request and returns an HTTP response, following
	// the contract of http.Client.Do.
	Do(r *http.Request) (*http.Response, error)
}

var emptyHandlers = HandlerGroup{}

// A Client is an HTTP client which retries failed attempts under an
// adaptive retry policy. Its zero value is a valid configuration.
//
// The zero value uses http.DefaultClient as the HTTPDoer,
// retry.DefaultFactory for retry policies, timeout.DefaultPolicy for
// attempt timeouts, and no event handlers.
//
// Every call to Do starts a new lineage with its own retry.Policy
// obtained from RetryPolicy. The policy sees each failed attempt in
// order and decides whether, and after how long, the next attempt is
// made. Lineages never share policy state, so a Client is safe for
// concurrent use by multiple goroutines.
//
// Beyond what the HTTPDoer provides, Client:
//
// • reads and buffers the entire response body into Execution.Body;
//
// • treats any non-2xx status, and any transport error, as a failure
// to be reported to the retry policy;
//
// • sets a deadline on each attempt from its timeout policy; and
//
// • runs event handlers at fixed points in the attempt loop.
type Client struct {
	// HTTPDoer sends requests and receives responses. If nil,
	// http.DefaultClient is used.
	HTTPDoer HTTPDoer
	// RetryPolicy creates the retry policy for each plan execution.
	// If nil, retry.DefaultFactory is used.
	RetryPolicy retry.Factory
	// TimeoutPolicy sets timeouts on individual attempts. If nil,
	// timeout.DefaultPolicy is used.
	TimeoutPolicy timeout.Policy
	// Handlers holds event handlers run during plan executions. If nil,
	// no handlers run.
	Handlers *HandlerGroup
}

// Do executes a request plan and returns the final execution state.
//
// The execution succeeds when an attempt ends with no error and a 2xx
// status code. Every other attempt outcome is a failure and is reported
// to the lineage's retry policy: a response by its status code and
// headers, a transient transport error as StatusTransient, and any
// other transport error as status code 0. If the policy allows a retry,
// Do waits the delay it asks for and tries again.
//
// When the policy declines, Do returns an error of type *url.Error
// wrapping a *FailureError, whose Reason tells whether the failure was
// not retryable or the retry budget ran out. If the final attempt got a
// response, the execution still holds it along with the buffered body.
//
// If the plan context ends, Do stops at once and returns the context
// error wrapped in a *url.Error. A context deadline fires the
// AfterPlanTimeout event.
//
// The returned Execution is never nil, and its Err field always
// references the returned error.
func (c *Client) Do(p *request.Plan) (*request.Execution, error) {
	e := request.Execution{
		Plan:   p,
		Policy: c.retryFactory().NewPolicy(),
	}

	doer := c.doer()

	timeoutPolicy := c.TimeoutPolicy
	if timeoutPolicy == nil {
		timeoutPolicy = timeout.DefaultPolicy
	}

	handlers := c.Handlers
	if handlers == nil {
		handlers = &emptyHandlers
	}
	handlers.run(BeforeExecutionStart, &e)
	e.Start = time.Now()

	for {
		sendAndReceive(p, &e, doer, handlers, timeoutPolicy)
		if e.Timeout() {
			e.AttemptTimeouts++
			handlers.run(AfterAttemptTimeout, &e)
		}
		handlers.run(AfterAttempt, &e)
		if e.Succeeded() {
			break
		}
		if planCtxErr := p.Context().Err(); planCtxErr != nil {
			endPlan(p, &e, handlers, planCtxErr)
			break
		}
		status, cause := reportedStatus(&e)
		e.StatusReported = status
		e.Policy.OnFailure(status, retry.FromHTTP(e.Header()))
		again, wait := e.Policy.ShouldRetry()
		if !again {
			e.Err = urlErrorWrap(p, &FailureError{
				StatusCode: status,
				Attempts:   e.Attempt + 1,
				Reason:     failureReason(e.Policy),
				Cause:      cause,
			})
			break
		}
		e.Wait = wait
		handlers.run(BeforeRetryWait, &e)
		if err := sleep(p.Context(), wait); err != nil {
			endPlan(p, &e, handlers, err)
			break
		}
		e.Response = nil
		e.Body = nil
		e.Attempt++
	}

	e.End = time.Now()
	handlers.run(AfterExecutionEnd, &e)
	return &e, e.Err
}

func sendAndReceive(p *request.Plan, e *request.Execution, doer HTTPDoer, handlers *HandlerGroup, timeoutPolicy timeout.Policy) {
	ctx, cancel := attemptContext(p.Context(), timeoutPolicy.Timeout(e))
	defer cancel()
	e.Err = nil
	e.Request = p.ToRequest(ctx)
	handlers.run(BeforeAttempt, e)
	var err error
	e.Response, err = doer.Do(e.Request)
	if err != nil {
		e.Response = nil
		e.Err = urlErrorWrap(p, err)
		return
	}
	readBody(p, e, handlers)
}

func attemptContext(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

func readBody(p *request.Plan, e *request.Execution, handlers *HandlerGroup) {
	defer func() {
		if e.Response.Body != nil {
			_ = e.Response.Body.Close()
		}
	}()
	handlers.run(BeforeReadBody, e)
	if e.Response.Body == nil {
		e.Body = []byte{}
		return
	}
	var err error
	e.Body, err = io.ReadAll(e.Response.Body)
	if err != nil {
		e.Body = nil
		e.Err = urlErrorWrap(p, err)
	}
}

// reportedStatus returns the status code to report to the retry policy
// for the failed attempt in e, and the transport error behind it, if
// any.
func reportedStatus(e *request.Execution) (int, error) {
	if e.Err == nil {
		return e.StatusCode(), nil
	}
	cause := e.Err
	var ue *url.Error
	if errors.As(cause, &ue) {
		cause = ue.Err
	}
	if transient.IsTransient(cause) {
		return StatusTransient, cause
	}
	return 0, cause
}

func failureReason(p retry.Policy) error {
	if r, ok := p.(retry.Retryable); ok && !r.Retryable() {
		return ErrNotRetryable
	}
	return ErrRetriesExhausted
}

func endPlan(p *request.Plan, e *request.Execution, handlers *HandlerGroup, err error) {
	e.Err = urlErrorWrap(p, err)
	if errors.Is(err, context.DeadlineExceeded) {
		handlers.run(AfterPlanTimeout, e)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get issues a GET to the specified URL, using the same policies
// followed by Do.
func (c *Client) Get(url string) (*request.Execution, error) {
	return Get(c, url)
}

// Head issues a HEAD to the specified URL, using the same policies
// followed by Do.
func (c *Client) Head(url string) (*request.Execution, error) {
	return Head(c, url)
}

// Post issues a POST to the specified URL, using the same policies
// followed by Do. The body may be any type accepted by
// request.BodyBytes.
func (c *Client) Post(url, contentType string, body interface{}) (*request.Execution, error) {
	return Post(c, url, contentType, body)
}

// PostForm issues a POST to the specified URL with data's keys and
// values URL-encoded as the request body.
func (c *Client) PostForm(url string, data url.Values) (*request.Execution, error) {
	return PostForm(c, url, data)
}

// Put issues a PUT to the specified URL, using the same policies
// followed by Do.
func (c *Client) Put(url, contentType string, body interface{}) (*request.Execution, error) {
	return Put(c, url, contentType, body)
}

// Delete issues a DELETE to the specified URL, using the same policies
// followed by Do.
func (c *Client) Delete(url string) (*request.Execution, error) {
	return Delete(c, url)
}

// CloseIdleConnections invokes the same method on the client's
// HTTPDoer, if it has one.
func (c *Client) CloseIdleConnections() {
	if ic, ok := c.doer().(IdleCloser); ok {
		ic.CloseIdleConnections()
	}
}

func (c *Client) doer() HTTPDoer {
	if c.HTTPDoer == nil {
		return http.DefaultClient
	}
	return c.HTTPDoer
}

func (c *Client) retryFactory() retry.Factory {
	if c.RetryPolicy == nil {
		return retry.DefaultFactory
	}
	return c.RetryPolicy
}

func urlErrorWrap(p *request.Plan, err error) error {
	if _, ok := err.(*url.Error); ok {
		return err
	}
	u := ""
	if p.URL != nil {
		u = p.URL.String()
	}
	return &url.Error{
		Op:  urlErrorOp(p.Method),
		URL: u,
		Err: err,
	}
}

// urlErrorOp matches the Op that net/http puts in its own url.Error
// values.
func urlErrorOp(method string) string {
	if method == "" {
		return "Get"
	}
	return method[:1] + strings.ToLower(method[1:])
}
