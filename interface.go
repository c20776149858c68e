// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package corehttp

import (
	"net/http"
	"net/url"

	"github.com/gogama/corehttp/request"
)

// Doer is the interface that wraps the basic Do method.
//
// Do executes a request plan, retrying failed attempts for as long as
// the plan's retry policy allows, and returns the final execution state
// together with the terminal error, if any. Client implements Doer, and
// any other implementation must behave substantially like Client.Do.
//
// Any Doer can be turned into an Executor with Inflate.
type Doer interface {
	Do(p *request.Plan) (*request.Execution, error)
}

// Getter is the interface that wraps the basic Get method.
//
// Get builds a plan to issue a GET to the given URL, executes it, and
// returns the final execution state. Client implements Getter.
//
// Any Doer can emulate a Getter with the Get function.
type Getter interface {
	Get(url string) (*request.Execution, error)
}

// Header is the interface that wraps the basic Head method.
//
// Head builds a plan to issue a HEAD to the given URL, executes it, and
// returns the final execution state. Client implements Header.
//
// Any Doer can emulate a Header with the Head function.
type Header interface {
	Head(url string) (*request.Execution, error)
}

// Poster is the interface that wraps the basic Post method.
//
// Post builds a plan to issue a POST to the given URL with the given
// content type and body, executes it, and returns the final execution
// state. The body may be nil, a string, a []byte, an io.Reader, or an
// io.ReadCloser, and is buffered so that every retry resends it.
// Client implements Poster.
//
// Any Doer can emulate a Poster with the Post function.
type Poster interface {
	Post(url, contentType string, body interface{}) (*request.Execution, error)
}

// FormPoster is the interface that wraps the basic PostForm method.
//
// PostForm builds a plan to POST the URL-encoded keys and values of
// data to the given URL with content type
// application/x-www-form-urlencoded, executes it, and returns the final
// execution state. Client implements FormPoster.
//
// Any Doer can emulate a FormPoster with the PostForm function.
type FormPoster interface {
	PostForm(url string, data url.Values) (*request.Execution, error)
}

// Putter is the interface that wraps the basic Put method.
//
// Put builds a plan to issue a PUT to the given URL, with the body
// handled as for Post, executes it, and returns the final execution
// state. Asset uploads are the usual caller. Client implements Putter.
//
// Any Doer can emulate a Putter with the Put function.
type Putter interface {
	Put(url, contentType string, body interface{}) (*request.Execution, error)
}

// Deleter is the interface that wraps the basic Delete method.
//
// Delete builds a plan to issue a DELETE to the given URL, executes
// it, and returns the final execution state. Client implements Deleter.
//
// Any Doer can emulate a Deleter with the Delete function.
type Deleter interface {
	Delete(url string) (*request.Execution, error)
}

// IdleCloser is the interface that wraps the basic
// CloseIdleConnections method.
//
// CloseIdleConnections closes keep-alive connections that are not in
// use. Implementations that keep no connections do nothing. Client
// implements IdleCloser by forwarding to its HTTPDoer when the doer
// supports it.
type IdleCloser interface {
	CloseIdleConnections()
}

// Executor groups every request method of the robust client. It is the
// handle given to coprocedures and other code that issues requests on
// some concurrency class without caring how the class is configured.
//
// Client implements Executor, and Inflate turns any Doer into one.
type Executor interface {
	Doer
	Getter
	Header
	Poster
	FormPoster
	Putter
	Deleter
	IdleCloser
}

// Get uses d to issue a GET to url.
func Get(d Doer, url string) (*request.Execution, error) {
	return send(d, http.MethodGet, url, "", nil)
}

// Head uses d to issue a HEAD to url.
func Head(d Doer, url string) (*request.Execution, error) {
	return send(d, http.MethodHead, url, "", nil)
}

// Post uses d to issue a POST to url. The body may be nil or any type
// accepted by request.BodyBytes.
func Post(d Doer, url, contentType string, body interface{}) (*request.Execution, error) {
	return send(d, http.MethodPost, url, contentType, body)
}

// PostForm uses d to issue a POST to url with data URL-encoded as the
// body and Content-Type set to application/x-www-form-urlencoded.
func PostForm(d Doer, url string, data url.Values) (*request.Execution, error) {
	return Post(d, url, "application/x-www-form-urlencoded", data.Encode())
}

// Put uses d to issue a PUT to url. The body may be nil or any type
// accepted by request.BodyBytes.
func Put(d Doer, url, contentType string, body interface{}) (*request.Execution, error) {
	return send(d, http.MethodPut, url, contentType, body)
}

// Delete uses d to issue a DELETE to url.
func Delete(d Doer, url string) (*request.Execution, error) {
	return send(d, http.MethodDelete, url, "", nil)
}

func send(d Doer, method, url, contentType string, body interface{}) (*request.Execution, error) {
	p, err := request.NewPlan(method, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		p.Header.Set("Content-Type", contentType)
	}
	return d.Do(p)
}

// Inflate converts a non-nil Doer into an Executor. If d already is an
// Executor it is returned unchanged.
func Inflate(d Doer) Executor {
	if d == nil {
		panic("corehttp: nil doer")
	}
	if e, ok := d.(Executor); ok {
		return e
	}
	return inflated{d}
}

type inflated struct {
	Doer
}

func (i inflated) Get(url string) (*request.Execution, error) {
	return Get(i.Doer, url)
}

func (i inflated) Head(url string) (*request.Execution, error) {
	return Head(i.Doer, url)
}

func (i inflated) Post(url, contentType string, body interface{}) (*request.Execution, error) {
	return Post(i.Doer, url, contentType, body)
}

func (i inflated) PostForm(url string, data url.Values) (*request.Execution, error) {
	return PostForm(i.Doer, url, data)
}

func (i inflated) Put(url, contentType string, body interface{}) (*request.Execution, error) {
	return Put(i.Doer, url, contentType, body)
}

func (i inflated) Delete(url string) (*request.Execution, error) {
	return Delete(i.Doer, url)
}

func (i inflated) CloseIdleConnections() {
	if ic, ok := i.Doer.(IdleCloser); ok {
		ic.CloseIdleConnections()
	}
}
