// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transient

import (
	"errors"
	"io"
	"syscall"
)

// A Category is the transience category of an error that ended an HTTP
// request attempt without a response, as reported by Categorize.
//
// The category Not means a retry is very unlikely to succeed. Every
// other category means the failure may clear up on its own, so that a
// retry has some prospect of success.
type Category int

const (
	// Not indicates any non-transient error, and the nil error.
	Not Category = iota
	// Timeout indicates a client-side timeout. The error or one of its
	// wrapped causes has a Timeout method reporting true.
	Timeout
	// ConnRefused indicates the remote host refused the connection
	// (ECONNREFUSED), as happens while a service restarts and is not
	// yet listening.
	ConnRefused
	// ConnReset indicates the remote host reset an established
	// connection (ECONNRESET), typical of a load balancer draining a
	// backend or a service stopping mid-response.
	ConnReset
	// ConnAborted indicates the local stack aborted the connection
	// (ECONNABORTED).
	ConnAborted
	// UnexpectedEOF indicates the server closed the connection before
	// a complete response was received.
	UnexpectedEOF
)

var categoryNames = []string{
	"not",
	"timeout",
	"conn_refused",
	"conn_reset",
	"conn_aborted",
	"unexpected_eof",
}

// String returns a short snake_case name for the category, suitable
// for use as a log field or metric label.
func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// Categorize returns the transience category of err, examining its
// wrapped causes as well as err itself. The nil error and errors that
// are not transient both produce Not.
//
// Timeout takes precedence: an error that reports a timeout is always
// categorized as Timeout whatever else it wraps. Categorize never
// consults a Temporary method.
func Categorize(err error) Category {
	if err == nil {
		return Not
	}

	var t hasTimeout
	if errors.As(err, &t) && t.Timeout() {
		return Timeout
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNRESET:
			return ConnReset
		case syscall.ECONNREFUSED:
			return ConnRefused
		case syscall.ECONNABORTED:
			return ConnAborted
		}
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return UnexpectedEOF
	}

	return Not
}

// IsTransient reports whether Categorize(err) is not Not.
func IsTransient(err error) bool {
	return Categorize(err) != Not
}

type hasTimeout interface {
	Timeout() bool
}
