// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package coproc

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/gogama/corehttp"
	"github.com/gogama/corehttp/internal/metrics"
	"github.com/google/uuid"
)

type queued struct {
	name string
	id   uuid.UUID
	proc Proc
}

type pool struct {
	name    string
	size    int
	x       corehttp.Executor
	ctx     context.Context
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*queued
	active  map[uuid.UUID]string
	closed  bool
	wg      sync.WaitGroup
}

func (p *pool) start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *pool) push(q *queued) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.pending = append(p.pending, q)
	p.record()
	p.cond.Signal()
	return nil
}

// pop blocks until a coprocedure is queued, and marks it active. It
// returns nil once the pool is closed and drained.
func (p *pool) pop() *queued {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.pending) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.pending) == 0 {
		return nil
	}
	q := p.pending[0]
	p.pending[0] = nil
	p.pending = p.pending[1:]
	p.active[q.id] = q.name
	p.record()
	return q
}

func (p *pool) finish(q *queued) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, q.id)
	p.record()
}

func (p *pool) worker() {
	defer p.wg.Done()
	for {
		q := p.pop()
		if q == nil {
			return
		}
		p.logger.Info("invoking coprocedure", "name", q.name, "id", q.id)
		p.invoke(q)
	}
}

func (p *pool) invoke(q *queued) {
	defer p.finish(q)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("coprocedure panicked",
				"name", q.name,
				"id", q.id,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	q.proc(p.ctx, p.x, q.id)
	p.logger.Info("finished coprocedure", "name", q.name, "id", q.id)
}

func (p *pool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
}

func (p *pool) countActive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

func (p *pool) countPending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// record must be called with mu held.
func (p *pool) record() {
	if p.metrics != nil {
		p.metrics.SetPool(p.name, len(p.active), len(p.pending))
	}
}
