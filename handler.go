// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package corehttp

import (
	"github.com/gogama/corehttp/request"
)

// A HandlerGroup is a set of event handler chains, one per Event, which
// can be installed in a Client. Install all handlers before the group
// is used; a HandlerGroup is not safe for concurrent modification.
type HandlerGroup struct {
	handlers [][]Handler
}

// PushBack adds h to the end of the handler chain for evt.
func (g *HandlerGroup) PushBack(evt Event, h Handler) {
	if h == nil {
		panic("corehttp: nil handler")
	}
	if evt < 0 || int(evt) >= numEvents {
		panic("corehttp: unknown event")
	}
	if g.handlers == nil {
		g.handlers = make([][]Handler, numEvents)
	}
	g.handlers[evt] = append(g.handlers[evt], h)
}

// Merge appends every chain of other to the matching chain of g.
func (g *HandlerGroup) Merge(other *HandlerGroup) {
	if other == nil {
		return
	}
	for i, chain := range other.handlers {
		for _, h := range chain {
			g.PushBack(Event(i), h)
		}
	}
}

func (g *HandlerGroup) run(evt Event, e *request.Execution) {
	i := int(evt)
	if i < len(g.handlers) {
		for _, h := range g.handlers[i] {
			h.Handle(evt, e)
		}
	}
}

// A Handler handles the occurrence of an event during a request plan
// execution.
type Handler interface {
	Handle(Event, *request.Execution)
}

// The HandlerFunc type is an adapter allowing an ordinary function to
// be used as a Handler.
type HandlerFunc func(Event, *request.Execution)

// Handle calls f(evt, e).
func (f HandlerFunc) Handle(evt Event, e *request.Execution) {
	f(evt, e)
}
