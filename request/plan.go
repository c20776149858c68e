// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	urlpkg "net/url"
	"strings"

	"golang.org/x/net/http/httpguts"
)

const nilCtxMsg = "corehttp/request: nil context"

// A Plan describes one logical HTTP request, which a client may turn
// into several request attempts if earlier attempts fail and the retry
// policy allows another try.
//
// A Plan looks like a stripped-down http.Request: the body is fully
// buffered so that it can be replayed on every attempt, and fields
// which only make sense on a server are absent.
//
// Like an http.Request, a Plan carries a context which governs the
// whole lineage of attempts, including the waits between them.
type Plan struct {
	// Name is an optional label identifying the plan in logs, for
	// example "mesh fetch". It is never sent to the server.
	Name string

	// Method specifies the HTTP method. An empty string means GET.
	Method string

	// URL specifies the URL to access.
	URL *urlpkg.URL

	// Header contains the request header fields. Each attempt is sent
	// with its own copy of Header, so changes made by event handlers to
	// one attempt's request do not leak into the next.
	Header http.Header

	// Body is the pre-buffered request body. A nil or empty body means
	// no body is sent.
	Body []byte

	// Host optionally overrides the Host header. If empty, URL.Host is
	// used.
	Host string

	// Close asks the transport to close the connection after each
	// attempt instead of keeping it alive.
	Close bool

	ctx context.Context
}

// NewPlan is NewPlanWithContext using the background context.
func NewPlan(method, url string, body interface{}) (*Plan, error) {
	return NewPlanWithContext(context.Background(), method, url, body)
}

// NewPlanWithContext returns a new Plan given a context, method, URL,
// and optional body.
//
// Parameter body may be nil, a string, a []byte, an io.Reader, or an
// io.ReadCloser. Readers are read to the end and buffered, and closed
// if they implement io.Closer.
func NewPlanWithContext(ctx context.Context, method, url string, body interface{}) (*Plan, error) {
	if ctx == nil {
		return nil, errors.New(nilCtxMsg)
	}
	if method == "" {
		method = http.MethodGet
	}
	if !validMethod(method) {
		return nil, fmt.Errorf("corehttp/request: invalid method %q", method)
	}
	u, err := urlpkg.Parse(url)
	if err != nil {
		return nil, err
	}
	u.Host = strings.TrimSuffix(u.Host, ":")
	b, err := BodyBytes(body)
	if err != nil {
		return nil, err
	}
	return &Plan{
		ctx:    ctx,
		Method: method,
		URL:    u,
		Header: make(http.Header),
		Body:   b,
		Host:   u.Host,
	}, nil
}

// Context returns the plan's context, which is never nil.
func (p *Plan) Context() context.Context {
	if p.ctx != nil {
		return p.ctx
	}
	return context.Background()
}

// WithContext returns a shallow copy of p with its context changed to
// ctx, which must be non-nil.
func (p *Plan) WithContext(ctx context.Context) *Plan {
	if ctx == nil {
		panic(nilCtxMsg)
	}
	p2 := new(Plan)
	*p2 = *p
	p2.ctx = ctx
	return p2
}

// Label returns Name if set, otherwise "METHOD URL".
func (p *Plan) Label() string {
	if p.Name != "" {
		return p.Name
	}
	method := p.Method
	if method == "" {
		method = http.MethodGet
	}
	if p.URL == nil {
		return method
	}
	return method + " " + p.URL.Redacted()
}

// ToRequest creates the http.Request for one attempt of the plan, bound
// to ctx, which may not be nil.
func (p *Plan) ToRequest(ctx context.Context) *http.Request {
	if ctx == nil {
		panic(nilCtxMsg)
	}
	method := p.Method
	if method == "" {
		method = http.MethodGet
	}
	u := p.URL
	if u == nil {
		u = &urlpkg.URL{}
	}
	r := &http.Request{
		Method:     method,
		URL:        u,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     p.Header.Clone(),
		Host:       p.Host,
		Close:      p.Close,
	}
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	if len(p.Body) > 0 {
		body := p.Body
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		r.Body, _ = r.GetBody()
		r.ContentLength = int64(len(body))
	}
	return r.WithContext(ctx)
}

func validMethod(method string) bool {
	return len(method) > 0 && httpguts.ValidHeaderFieldName(method)
}
