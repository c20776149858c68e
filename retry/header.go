// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"net/http"
	"strings"
)

// HeaderRetryAfter is the name of the response header a server uses to
// direct how long a client should wait before retrying.
const HeaderRetryAfter = "Retry-After"

// A Header is a read-only collection of response header values.
//
// Implementations must match keys case-insensitively. The built-in
// implementations, Fields and the value returned by FromHTTP, both
// satisfy this requirement, so that a header is never silently missed
// because two transport layers disagree on capitalization.
type Header interface {
	// Get returns the first value associated with key, or the empty
	// string if there is no such value.
	Get(key string) string
}

// Fields is a flat header map, such as one decoded from a structured
// message body, whose Get method ignores key case.
type Fields map[string]string

// Get returns the value for key. An exact match is preferred, then any
// key equal to key under Unicode case folding.
func (f Fields) Get(key string) string {
	if v, ok := f[key]; ok {
		return v
	}
	for k, v := range f {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// FromHTTP adapts an http.Header to the Header interface.
//
// The returned Header first performs the usual canonical lookup and,
// failing that, scans for keys that were stored in the map directly
// without canonicalization. A nil http.Header is valid and contains
// no values.
func FromHTTP(h http.Header) Header {
	return httpHeader(h)
}

type httpHeader http.Header

func (h httpHeader) Get(key string) string {
	if v := http.Header(h).Get(key); v != "" {
		return v
	}
	for k, vs := range h {
		if len(vs) > 0 && strings.EqualFold(k, key) {
			return vs[0]
		}
	}
	return ""
}

func lookup(h Header, key string) (string, bool) {
	if h == nil {
		return "", false
	}
	v := strings.TrimSpace(h.Get(key))
	return v, v != ""
}
