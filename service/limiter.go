// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package service

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// A limiter bounds the number of attempts holding a connection slot.
//
// semaphore.Weighted has a fixed size, so resize installs a fresh
// semaphore and wakes every waiter, which then queues on the new one.
// Slots already held are returned to the semaphore they came from, so
// until those holders finish, old and new holders together may exceed
// a reduced limit.
type limiter struct {
	mu       sync.Mutex
	sem      *semaphore.Weighted
	resized  chan struct{}
	size     uint32
	inFlight atomic.Int64
}

func newLimiter(size uint32) *limiter {
	return &limiter{
		sem:     semaphore.NewWeighted(int64(size)),
		resized: make(chan struct{}),
		size:    size,
	}
}

func (l *limiter) resize(size uint32) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if size == l.size {
		return false
	}
	l.sem = semaphore.NewWeighted(int64(size))
	l.size = size
	close(l.resized)
	l.resized = make(chan struct{})
	return true
}

func (l *limiter) limit() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

func (l *limiter) current() (*semaphore.Weighted, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sem, l.resized
}

// acquire waits for a slot, moving to the new semaphore whenever the
// limiter is resized during the wait. The returned release func is
// idempotent.
func (l *limiter) acquire(ctx context.Context) (func(), error) {
	for {
		sem, resized := l.current()
		err := acquireUntil(ctx, sem, resized)
		if err == nil {
			l.inFlight.Add(1)
			var once sync.Once
			return func() {
				once.Do(func() {
					l.inFlight.Add(-1)
					sem.Release(1)
				})
			}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}
}

// acquireUntil acquires one slot of sem, giving up when ctx ends or
// resized is closed.
func acquireUntil(ctx context.Context, sem *semaphore.Weighted, resized <-chan struct{}) error {
	if sem.TryAcquire(1) {
		return nil
	}
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-resized:
			cancel()
		case <-wctx.Done():
		}
	}()
	return sem.Acquire(wctx, 1)
}

func (l *limiter) active() int {
	return int(l.inFlight.Load())
}
