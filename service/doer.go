// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gogama/corehttp"
	"github.com/gogama/corehttp/class"
	"golang.org/x/time/rate"
)

// limitedDoer sends one class's attempts through the shared HTTPDoer,
// waiting first for the class throttle and then for a slot in the
// class limiter. The slot is held until the response body is closed.
// A throttle wait that cannot finish before the attempt deadline fails
// the attempt with an error wrapping context.DeadlineExceeded.
type limitedDoer struct {
	class    class.Class
	next     corehttp.HTTPDoer
	lim      *limiter
	throttle *rate.Limiter
	inFlight func(c class.Class, delta int)
}

func (d *limitedDoer) Do(r *http.Request) (*http.Response, error) {
	if err := d.throttle.Wait(r.Context()); err != nil {
		if ctxErr := r.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// The next token lies beyond the attempt deadline.
		return nil, fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	release, err := d.lim.acquire(r.Context())
	if err != nil {
		return nil, err
	}
	d.inFlight(d.class, 1)
	done := func() {
		release()
		d.inFlight(d.class, -1)
	}
	resp, err := d.next.Do(r)
	if err != nil || resp == nil || resp.Body == nil {
		done()
		return resp, err
	}
	resp.Body = &releasingBody{ReadCloser: resp.Body, release: done}
	return resp, nil
}

func (d *limitedDoer) CloseIdleConnections() {
	if ic, ok := d.next.(corehttp.IdleCloser); ok {
		ic.CloseIdleConnections()
	}
}

type releasingBody struct {
	io.ReadCloser
	release func()
	closed  bool
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	if !b.closed {
		b.closed = true
		b.release()
	}
	return err
}

func throttleLimit(rps float64) (rate.Limit, int) {
	if rps <= 0 {
		return rate.Inf, 1
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.Limit(rps), burst
}
