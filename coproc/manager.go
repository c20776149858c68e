// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package coproc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/gogama/corehttp"
	"github.com/gogama/corehttp/internal/logging"
	"github.com/gogama/corehttp/internal/metrics"
	"github.com/google/uuid"
)

// DefaultPoolSize is the size of a pool with no control and no
// built-in default.
const DefaultPoolSize = 5

// SizeControlPrefix prefixes the pool name to form the name of the
// control holding the pool size.
const SizeControlPrefix = "PoolSize"

var defaultSizes = map[string]int{
	"Upload": 1,
	"AIS":    1,
}

var (
	// ErrEmptyPoolName is returned by Enqueue for an empty pool name.
	ErrEmptyPoolName = errors.New("coproc: pool name must not be empty")
	// ErrClosed is returned by Enqueue once the pool or the manager is
	// closed.
	ErrClosed = errors.New("coproc: closed")
)

// A Proc is a coprocedure. It is called with a context which ends when
// the manager gives up waiting for it at shutdown, the executor of the
// pool, and the ID returned by Enqueue.
type Proc func(ctx context.Context, x corehttp.Executor, id uuid.UUID)

// A ControlFunc returns the value of a named integer control, or zero
// if the control is not set.
type ControlFunc func(name string) uint32

// Manager owns a set of named coprocedure pools.
type Manager struct {
	x        corehttp.Executor
	controls ControlFunc
	logger   *slog.Logger
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	pools  map[string]*pool
	closed bool
}

// An Option configures a Manager.
type Option func(*Manager)

// WithControls sets the source of pool size controls.
func WithControls(f ControlFunc) Option {
	return func(m *Manager) {
		m.controls = f
	}
}

// WithLogger sets the logger. The default discards all records.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithMetrics records pool activity on m.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager returns a manager whose coprocedures issue requests
// through x.
func NewManager(x corehttp.Executor, opts ...Option) *Manager {
	if x == nil {
		panic("coproc: nil executor")
	}
	m := &Manager{
		x:     x,
		pools: make(map[string]*pool),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.Component(m.logger, "coproc")
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Enqueue queues proc on the named pool, creating the pool if needed,
// and returns the ID assigned to it. The name identifies the
// coprocedure in logs.
func (m *Manager) Enqueue(poolName, name string, proc Proc) (uuid.UUID, error) {
	if proc == nil {
		panic("coproc: nil proc")
	}
	if poolName == "" {
		return uuid.Nil, ErrEmptyPoolName
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return uuid.Nil, ErrClosed
	}
	p, ok := m.pools[poolName]
	if !ok {
		p = m.newPool(poolName)
		m.pools[poolName] = p
	}
	m.mu.Unlock()

	id := uuid.New()
	if err := p.push(&queued{name: name, id: id, proc: proc}); err != nil {
		return uuid.Nil, err
	}
	p.logger.Info("coprocedure enqueued", "name", name, "id", id)
	return id, nil
}

func (m *Manager) newPool(name string) *pool {
	size := 0
	key := SizeControlPrefix + name
	if m.controls != nil {
		size = int(m.controls(key))
	}
	if size == 0 {
		var ok bool
		if size, ok = defaultSizes[name]; !ok {
			size = DefaultPoolSize
		}
		m.logger.Warn("no pool size setting, using default", "control", key, "size", size)
	}
	p := &pool{
		name:    name,
		size:    size,
		x:       m.x,
		ctx:     m.ctx,
		logger:  m.logger.With("pool", name),
		metrics: m.metrics,
		active:  make(map[uuid.UUID]string),
	}
	p.cond = sync.NewCond(&p.mu)
	p.start()
	m.logger.Info("created coprocedure pool", "pool", name, "size", size)
	return p
}

// Pools returns the names of the pools created so far, sorted.
func (m *Manager) Pools() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Size returns the number of workers of the named pool, or zero if the
// pool does not exist.
func (m *Manager) Size(poolName string) int {
	if p := m.pool(poolName); p != nil {
		return p.size
	}
	return 0
}

// CountActive returns the number of coprocedures running in the named
// pool.
func (m *Manager) CountActive(poolName string) int {
	if p := m.pool(poolName); p != nil {
		return p.countActive()
	}
	return 0
}

// CountActiveAll returns the number of coprocedures running in every
// pool.
func (m *Manager) CountActiveAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.pools {
		n += p.countActive()
	}
	return n
}

// CountPending returns the number of coprocedures waiting for a worker
// in the named pool.
func (m *Manager) CountPending(poolName string) int {
	if p := m.pool(poolName); p != nil {
		return p.countPending()
	}
	return 0
}

// Close closes the named pool. Coprocedures already queued still run,
// but Enqueue on the pool fails with ErrClosed.
func (m *Manager) Close(poolName string) {
	if p := m.pool(poolName); p != nil {
		p.close()
	}
}

// Shutdown closes every pool and waits for the queued and running
// coprocedures to finish. If ctx ends first, Shutdown cancels the
// context given to the coprocedures and returns an error wrapping the
// cause. The workers still exit once their coprocedures return.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	pools := make([]*pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.Unlock()

	for _, p := range pools {
		p.close()
	}
	done := make(chan struct{})
	go func() {
		for _, p := range pools {
			p.wg.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		m.logger.Warn("coprocedures still running at shutdown", "active", m.CountActiveAll())
		return fmt.Errorf("coproc: shutdown incomplete: %w", ctx.Err())
	}
}

func (m *Manager) pool(name string) *pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pools[name]
}
