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
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gogama/corehttp/request"
	"github.com/gogama/corehttp/retry"
	"github.com/gogama/corehttp/timeout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var quickRetry = retry.AdaptiveFactory{
	Min:        time.Nanosecond,
	Max:        time.Nanosecond,
	Factor:     1,
	MaxRetries: 3,
}

func TestClient(t *testing.T) {
	t.Run("happy path", testClientHappyPath)
	t.Run("retry then succeed", testClientRetryThenSucceed)
	t.Run("not retryable", testClientNotRetryable)
	t.Run("retries exhausted", testClientRetriesExhausted)
	t.Run("transport errors", testClientTransportErrors)
	t.Run("attempt timeout", testClientAttemptTimeout)
	t.Run("read body error", testClientReadBodyError)
	t.Run("retry after", testClientRetryAfter)
	t.Run("plan timeout during wait", testClientPlanTimeoutDuringWait)
	t.Run("plan cancel", testClientPlanCancel)
	t.Run("policy per execution", testClientPolicyPerExecution)
	t.Run("handler panic", testClientHandlerPanic)
	t.Run("close idle connections", testClientCloseIdleConnections)
}

func TestURLErrorOp(t *testing.T) {
	assert.Equal(t, "Get", urlErrorOp(""))
	assert.Equal(t, "Get", urlErrorOp("GET"))
	assert.Equal(t, "X", urlErrorOp("X"))
	assert.Equal(t, "Propfind", urlErrorOp("PROPFIND"))
}

func testClientHappyPath(t *testing.T) {
	testCases := []struct {
		name   string
		action func(c *Client) (*request.Execution, error)
		method string
	}{
		{"Get", func(c *Client) (*request.Execution, error) { return c.Get("test") }, "GET"},
		{"Head", func(c *Client) (*request.Execution, error) { return c.Head("test") }, "HEAD"},
		{"Post", func(c *Client) (*request.Execution, error) { return c.Post("test", "text/plain", "foo") }, "POST"},
		{"PostForm", func(c *Client) (*request.Execution, error) { return c.PostForm("test", url.Values{"a": {"b"}}) }, "POST"},
		{"Put", func(c *Client) (*request.Execution, error) { return c.Put("test", "text/plain", "foo") }, "PUT"},
		{"Delete", func(c *Client) (*request.Execution, error) { return c.Delete("test") }, "DELETE"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			mockDoer := newMockHTTPDoer(t)
			mockTimeoutPolicy := newMockTimeoutPolicy(t)
			cl := &Client{
				HTTPDoer:      mockDoer,
				TimeoutPolicy: mockTimeoutPolicy,
				RetryPolicy:   quickRetry,
				Handlers:      &HandlerGroup{},
			}
			tr := cl.addTraceHandlers()
			mockDoer.On("Do", mock.MatchedBy(func(r *http.Request) bool {
				_, hasDeadline := r.Context().Deadline()
				return r.Method == testCase.method && hasDeadline
			})).Return(response(200, "ok"), nil).Once()
			mockTimeoutPolicy.On("Timeout", mock.Anything).Return(time.Hour).Once()

			before := time.Now()
			e, err := testCase.action(cl)
			after := time.Now()

			require.NoError(t, err)
			require.NotNil(t, e)
			mockDoer.AssertExpectations(t)
			mockTimeoutPolicy.AssertExpectations(t)
			assert.Equal(t, []string{
				"BeforeExecutionStart",
				"BeforeAttempt",
				"BeforeReadBody",
				"AfterAttempt",
				"AfterExecutionEnd",
			}, tr.calls)
			assert.Equal(t, 200, e.StatusCode())
			assert.Equal(t, []byte("ok"), e.Body)
			assert.Equal(t, 0, e.Attempt)
			assert.Equal(t, time.Duration(0), e.Wait)
			assert.NotNil(t, e.Policy)
			assert.False(t, e.Start.Before(before))
			assert.False(t, e.End.After(after))
			assert.True(t, e.Ended())
		})
	}
}

func testClientRetryThenSucceed(t *testing.T) {
	mockDoer := newMockHTTPDoer(t)
	cl := &Client{HTTPDoer: mockDoer, RetryPolicy: quickRetry, Handlers: &HandlerGroup{}}
	tr := cl.addTraceHandlers()
	var waits []time.Duration
	var reported []int
	cl.Handlers.PushBack(BeforeRetryWait, HandlerFunc(func(_ Event, e *request.Execution) {
		waits = append(waits, e.Wait)
		reported = append(reported, e.StatusReported)
	}))
	mockDoer.On("Do", mock.Anything).Return(response(503, "busy"), nil).Once()
	mockDoer.On("Do", mock.Anything).Return(response(502, "bad gateway"), nil).Once()
	mockDoer.On("Do", mock.Anything).Return(response(200, "mesh"), nil).Once()

	e, err := cl.Get("http://example.com/mesh")

	require.NoError(t, err)
	mockDoer.AssertExpectations(t)
	assert.Equal(t, 2, e.Attempt)
	assert.Equal(t, []byte("mesh"), e.Body)
	assert.Equal(t, []time.Duration{time.Nanosecond, time.Nanosecond}, waits)
	assert.Equal(t, []int{503, 502}, reported)
	assert.Equal(t, 2, e.Policy.(*retry.Adaptive).RetryCount())
	assert.Equal(t, []string{
		"BeforeExecutionStart",
		"BeforeAttempt", "BeforeReadBody", "AfterAttempt", "BeforeRetryWait",
		"BeforeAttempt", "BeforeReadBody", "AfterAttempt", "BeforeRetryWait",
		"BeforeAttempt", "BeforeReadBody", "AfterAttempt",
		"AfterExecutionEnd",
	}, tr.calls)
}

func testClientNotRetryable(t *testing.T) {
	for _, status := range []int{100, 301, 304, 400, 404, 429, 600} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			mockDoer := newMockHTTPDoer(t)
			cl := &Client{HTTPDoer: mockDoer, RetryPolicy: quickRetry}
			mockDoer.On("Do", mock.Anything).Return(response(status, "nope"), nil).Once()

			e, err := cl.Get("http://example.com/asset")

			mockDoer.AssertExpectations(t)
			require.Error(t, err)
			assert.Same(t, err, e.Err)
			assert.IsType(t, &url.Error{}, err)
			assert.ErrorIs(t, err, ErrNotRetryable)
			var fe *FailureError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, status, fe.StatusCode)
			assert.Equal(t, 1, fe.Attempts)
			assert.Nil(t, fe.Cause)
			assert.Equal(t, status, e.StatusCode())
			assert.Equal(t, []byte("nope"), e.Body)
		})
	}
	t.Run("never policy", func(t *testing.T) {
		for _, status := range []int{404, 503} {
			mockDoer := newMockHTTPDoer(t)
			cl := &Client{HTTPDoer: mockDoer, RetryPolicy: retry.Never}
			mockDoer.On("Do", mock.Anything).Return(response(status, "nope"), nil).Once()

			_, err := cl.Get("http://example.com/asset")

			mockDoer.AssertExpectations(t)
			assert.ErrorIs(t, err, ErrNotRetryable, status)
			assert.NotErrorIs(t, err, ErrRetriesExhausted, status)
		}
	})
}

func testClientRetriesExhausted(t *testing.T) {
	mockDoer := newMockHTTPDoer(t)
	cl := &Client{HTTPDoer: mockDoer, RetryPolicy: quickRetry}
	for i := 0; i < 4; i++ {
		mockDoer.On("Do", mock.Anything).Return(response(503, "still busy"), nil).Once()
	}

	e, err := cl.Get("http://example.com/mesh")

	mockDoer.AssertExpectations(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.NotErrorIs(t, err, ErrNotRetryable)
	var fe *FailureError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 503, fe.StatusCode)
	assert.Equal(t, 4, fe.Attempts)
	assert.Equal(t, 3, e.Attempt)
	assert.Equal(t, "corehttp: status 503 after 4 attempts: corehttp: retries exhausted", fe.Error())
}

func testClientTransportErrors(t *testing.T) {
	t.Run("transient", func(t *testing.T) {
		mockDoer := newMockHTTPDoer(t)
		cl := &Client{HTTPDoer: mockDoer, RetryPolicy: quickRetry, Handlers: &HandlerGroup{}}
		var reported int
		cl.Handlers.PushBack(BeforeRetryWait, HandlerFunc(func(_ Event, e *request.Execution) {
			reported = e.StatusReported
		}))
		mockDoer.On("Do", mock.Anything).Return(nil, &url.Error{Op: "Get", URL: "x", Err: syscall.ECONNRESET}).Once()
		mockDoer.On("Do", mock.Anything).Return(response(200, ""), nil).Once()

		e, err := cl.Get("http://example.com/texture")

		require.NoError(t, err)
		mockDoer.AssertExpectations(t)
		assert.Equal(t, StatusTransient, reported)
		assert.Equal(t, 1, e.Attempt)
		assert.Equal(t, []byte{}, e.Body)
	})
	t.Run("not transient", func(t *testing.T) {
		cause := errors.New("x509: certificate signed by unknown authority")
		mockDoer := newMockHTTPDoer(t)
		cl := &Client{HTTPDoer: mockDoer, RetryPolicy: quickRetry}
		mockDoer.On("Do", mock.Anything).Return(nil, cause).Once()

		e, err := cl.Get("http://example.com/texture")

		mockDoer.AssertExpectations(t)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotRetryable)
		assert.ErrorIs(t, err, cause)
		var fe *FailureError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, 0, fe.StatusCode)
		assert.Same(t, cause, fe.Cause)
		assert.Nil(t, e.Response)
		assert.Nil(t, e.Body)
		assert.Equal(t, "Get", err.(*url.Error).Op)
	})
}

func testClientAttemptTimeout(t *testing.T) {
	mockDoer := newMockHTTPDoer(t)
	cl := &Client{
		HTTPDoer:      mockDoer,
		RetryPolicy:   quickRetry,
		TimeoutPolicy: timeout.Adaptive(time.Second, time.Minute),
		Handlers:      &HandlerGroup{},
	}
	tr := cl.addTraceHandlers()
	var deadlines []time.Duration
	cl.Handlers.PushBack(BeforeAttempt, HandlerFunc(func(_ Event, e *request.Execution) {
		d, ok := e.Request.Context().Deadline()
		require.True(t, ok)
		deadlines = append(deadlines, time.Until(d))
	}))
	mockDoer.On("Do", mock.Anything).Return(nil, &url.Error{Op: "Get", URL: "x", Err: syscall.ETIMEDOUT}).Once()
	mockDoer.On("Do", mock.Anything).Return(response(200, "late"), nil).Once()

	e, err := cl.Get("http://example.com/mesh")

	require.NoError(t, err)
	mockDoer.AssertExpectations(t)
	assert.Equal(t, 1, e.AttemptTimeouts)
	require.Len(t, deadlines, 2)
	assert.LessOrEqual(t, deadlines[0], time.Second)
	assert.Greater(t, deadlines[1], time.Second)
	assert.Equal(t, []string{
		"BeforeExecutionStart",
		"BeforeAttempt", "AfterAttemptTimeout", "AfterAttempt", "BeforeRetryWait",
		"BeforeAttempt", "BeforeReadBody", "AfterAttempt",
		"AfterExecutionEnd",
	}, tr.calls)
}

func testClientReadBodyError(t *testing.T) {
	mockDoer := newMockHTTPDoer(t)
	cl := &Client{HTTPDoer: mockDoer, RetryPolicy: quickRetry}
	body := newMockReadCloser(t)
	body.On("Read", mock.Anything).Return(0, io.ErrUnexpectedEOF).Once()
	body.On("Close").Return(nil).Once()
	mockDoer.On("Do", mock.Anything).Return(&http.Response{StatusCode: 200, Body: body}, nil).Once()
	mockDoer.On("Do", mock.Anything).Return(response(200, "whole"), nil).Once()

	e, err := cl.Get("http://example.com/large-mesh")

	require.NoError(t, err)
	mockDoer.AssertExpectations(t)
	body.AssertExpectations(t)
	assert.Equal(t, 1, e.Attempt)
	assert.Equal(t, []byte("whole"), e.Body)
}

func testClientRetryAfter(t *testing.T) {
	mockDoer := newMockHTTPDoer(t)
	cl := &Client{
		HTTPDoer:    mockDoer,
		RetryPolicy: retry.AdaptiveFactory{Min: time.Hour, Max: time.Hour, Factor: 1, MaxRetries: 1},
	}
	resp := response(503, "slow down")
	resp.Header = http.Header{"Retry-After": {"0"}}
	mockDoer.On("Do", mock.Anything).Return(resp, nil).Once()
	mockDoer.On("Do", mock.Anything).Return(response(200, ""), nil).Once()

	start := time.Now()
	e, err := cl.Get("http://example.com/upload")

	require.NoError(t, err)
	mockDoer.AssertExpectations(t)
	assert.Equal(t, time.Duration(0), e.Wait)
	assert.Less(t, time.Since(start), time.Minute)
}

func testClientPlanTimeoutDuringWait(t *testing.T) {
	mockDoer := newMockHTTPDoer(t)
	cl := &Client{HTTPDoer: mockDoer, Handlers: &HandlerGroup{}}
	tr := cl.addTraceHandlers()
	resp := response(503, "")
	resp.Header = http.Header{"Retry-After": {"3600"}}
	mockDoer.On("Do", mock.Anything).Return(resp, nil).Once()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p, err := request.NewPlanWithContext(ctx, "", "test", nil)
	require.NoError(t, err)
	e, err := cl.Do(p)

	mockDoer.AssertExpectations(t)
	require.Error(t, err)
	assert.Same(t, err, e.Err)
	require.IsType(t, &url.Error{}, err)
	assert.True(t, err.(*url.Error).Timeout())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, e.Timeout())
	assert.Equal(t, time.Hour, e.Wait)
	assert.Equal(t, []string{
		"BeforeExecutionStart",
		"BeforeAttempt",
		"BeforeReadBody",
		"AfterAttempt",
		"BeforeRetryWait",
		"AfterPlanTimeout",
		"AfterExecutionEnd",
	}, tr.calls)
}

func testClientPlanCancel(t *testing.T) {
	mockDoer := newMockHTTPDoer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cl := &Client{HTTPDoer: mockDoer, RetryPolicy: quickRetry}
	mockDoer.On("Do", mock.Anything).Run(func(mock.Arguments) { cancel() }).
		Return(nil, &url.Error{Op: "Get", URL: "x", Err: context.Canceled}).Once()

	p, err := request.NewPlanWithContext(ctx, "GET", "test", nil)
	require.NoError(t, err)
	e, err := cl.Do(p)

	mockDoer.AssertExpectations(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrNotRetryable)
	assert.False(t, e.Policy.(*retry.Adaptive).Failed(), "cancelled lineage is not reported")
}

func testClientPolicyPerExecution(t *testing.T) {
	var created []retry.Policy
	factory := retry.FactoryFunc(func() retry.Policy {
		p := quickRetry.NewPolicy()
		created = append(created, p)
		return p
	})
	mockDoer := newMockHTTPDoer(t)
	mockDoer.On("Do", mock.Anything).Return(response(200, ""), nil).Twice()
	cl := &Client{HTTPDoer: mockDoer, RetryPolicy: factory}
	e1, err := cl.Get("a")
	require.NoError(t, err)
	e2, err := cl.Get("b")
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Same(t, created[0], e1.Policy)
	assert.Same(t, created[1], e2.Policy)
	assert.NotSame(t, e1.Policy, e2.Policy)
}

func testClientHandlerPanic(t *testing.T) {
	mockDoer := newMockHTTPDoer(t)
	body := newMockReadCloser(t)
	body.On("Close").Return(nil).Once()
	mockDoer.On("Do", mock.Anything).Return(&http.Response{StatusCode: 200, Body: body}, nil).Once()
	handlers := &HandlerGroup{}
	handlers.PushBack(BeforeReadBody, HandlerFunc(func(Event, *request.Execution) {
		panic("handler bug")
	}))
	cl := &Client{HTTPDoer: mockDoer, Handlers: handlers}

	assert.PanicsWithValue(t, "handler bug", func() { _, _ = cl.Get("test") })
	body.AssertExpectations(t)
}

func testClientCloseIdleConnections(t *testing.T) {
	t.Run("doer supports it", func(t *testing.T) {
		m := newMockHTTPDoerWithCloseIdleConnections(t)
		m.On("CloseIdleConnections").Once()
		(&Client{HTTPDoer: m}).CloseIdleConnections()
		m.AssertExpectations(t)
	})
	t.Run("doer does not support it", func(t *testing.T) {
		m := newMockHTTPDoer(t)
		(&Client{HTTPDoer: m}).CloseIdleConnections()
	})
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type mockHTTPDoer struct {
	mock.Mock
}

func newMockHTTPDoer(t *testing.T) *mockHTTPDoer {
	m := &mockHTTPDoer{}
	m.Test(t)
	return m
}

func (m *mockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

type mockHTTPDoerWithCloseIdleConnections struct {
	mockHTTPDoer
}

func newMockHTTPDoerWithCloseIdleConnections(t *testing.T) *mockHTTPDoerWithCloseIdleConnections {
	m := &mockHTTPDoerWithCloseIdleConnections{}
	m.Test(t)
	return m
}

func (m *mockHTTPDoerWithCloseIdleConnections) CloseIdleConnections() {
	m.Called()
}

type mockTimeoutPolicy struct {
	mock.Mock
}

func newMockTimeoutPolicy(t *testing.T) *mockTimeoutPolicy {
	m := &mockTimeoutPolicy{}
	m.Test(t)
	return m
}

func (m *mockTimeoutPolicy) Timeout(e *request.Execution) time.Duration {
	args := m.Called(e)
	return args.Get(0).(time.Duration)
}

type trace struct {
	calls []string
}

func (c *Client) addTraceHandlers() *trace {
	tr := &trace{}
	h := HandlerFunc(func(evt Event, _ *request.Execution) {
		tr.calls = append(tr.calls, evt.Name())
	})
	for _, evt := range Events() {
		c.Handlers.PushBack(evt, h)
	}
	return tr
}

type mockReadCloser struct {
	mock.Mock
}

func newMockReadCloser(t *testing.T) *mockReadCloser {
	m := &mockReadCloser{}
	m.Test(t)
	return m
}

func (m *mockReadCloser) Read(p []byte) (n int, err error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *mockReadCloser) Close() error {
	args := m.Called()
	return args.Error(0)
}
