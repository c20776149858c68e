// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package coproc

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogama/corehttp"
	"github.com/gogama/corehttp/internal/metrics"
	"github.com/gogama/corehttp/request"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingDoer struct {
	n atomic.Int32
}

func (d *countingDoer) Do(p *request.Plan) (*request.Execution, error) {
	d.n.Add(1)
	return &request.Execution{Plan: p}, nil
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *countingDoer) {
	d := &countingDoer{}
	m := NewManager(corehttp.Inflate(d), opts...)
	t.Cleanup(func() {
		assert.NoError(t, m.Shutdown(context.Background()))
	})
	return m, d
}

func TestNewManager(t *testing.T) {
	assert.PanicsWithValue(t, "coproc: nil executor", func() {
		NewManager(nil)
	})
}

func TestEnqueue(t *testing.T) {
	t.Run("runs with executor and id", func(t *testing.T) {
		m, d := newTestManager(t)
		got := make(chan uuid.UUID, 1)
		id, err := m.Enqueue("Fetch", "get thing", func(ctx context.Context, x corehttp.Executor, id uuid.UUID) {
			_, err := x.Get("http://example.com/thing")
			assert.NoError(t, err)
			got <- id
		})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, id)
		assert.Equal(t, id, <-got)
		assert.Equal(t, int32(1), d.n.Load())
		assert.Equal(t, []string{"Fetch"}, m.Pools())
	})
	t.Run("empty pool name", func(t *testing.T) {
		m, _ := newTestManager(t)
		_, err := m.Enqueue("", "x", func(context.Context, corehttp.Executor, uuid.UUID) {})
		assert.ErrorIs(t, err, ErrEmptyPoolName)
		assert.Empty(t, m.Pools())
	})
	t.Run("nil proc", func(t *testing.T) {
		m, _ := newTestManager(t)
		assert.PanicsWithValue(t, "coproc: nil proc", func() {
			_, _ = m.Enqueue("Fetch", "x", nil)
		})
	})
	t.Run("unique ids", func(t *testing.T) {
		m, _ := newTestManager(t)
		seen := make(map[uuid.UUID]bool)
		for i := 0; i < 10; i++ {
			id, err := m.Enqueue("Fetch", "noop", func(context.Context, corehttp.Executor, uuid.UUID) {})
			require.NoError(t, err)
			assert.False(t, seen[id])
			seen[id] = true
		}
	})
}

func TestPoolSize(t *testing.T) {
	controls := map[string]uint32{"PoolSizeAIS": 3, "PoolSizeZero": 0}
	m, _ := newTestManager(t, WithControls(func(name string) uint32 { return controls[name] }))
	noop := func(context.Context, corehttp.Executor, uuid.UUID) {}
	for _, name := range []string{"Upload", "AIS", "Zero", "Other"} {
		_, err := m.Enqueue(name, "noop", noop)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, m.Size("Upload"))
	assert.Equal(t, 3, m.Size("AIS"))
	assert.Equal(t, DefaultPoolSize, m.Size("Zero"))
	assert.Equal(t, DefaultPoolSize, m.Size("Other"))
	assert.Equal(t, 0, m.Size("Missing"))
	assert.Equal(t, []string{"AIS", "Other", "Upload", "Zero"}, m.Pools())
}

func TestSerialPool(t *testing.T) {
	m, _ := newTestManager(t)
	release := make(chan struct{})
	started := make(chan struct{})
	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		_, err := m.Enqueue("Upload", "upload", func(context.Context, corehttp.Executor, uuid.UUID) {
			defer wg.Done()
			if i == 0 {
				close(started)
				<-release
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
		require.NoError(t, err)
	}
	<-started
	assert.Equal(t, 1, m.CountActive("Upload"))
	assert.Equal(t, 2, m.CountPending("Upload"))
	assert.Equal(t, 1, m.CountActiveAll())
	close(release)
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2}, order)
	require.Eventually(t, func() bool { return m.CountActive("Upload") == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, m.CountPending("Upload"))
	assert.Equal(t, 0, m.CountActive("Missing"))
	assert.Equal(t, 0, m.CountPending("Missing"))
}

func TestPanicRecovered(t *testing.T) {
	var logs bytes.Buffer
	var logMu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &logs, mu: &logMu}, nil))
	m, _ := newTestManager(t, WithLogger(logger))

	_, err := m.Enqueue("Upload", "bad", func(context.Context, corehttp.Executor, uuid.UUID) {
		panic("boom")
	})
	require.NoError(t, err)
	ran := make(chan struct{})
	_, err = m.Enqueue("Upload", "good", func(context.Context, corehttp.Executor, uuid.UUID) {
		close(ran)
	})
	require.NoError(t, err)
	<-ran
	require.Eventually(t, func() bool { return m.CountActive("Upload") == 0 }, time.Second, time.Millisecond)

	logMu.Lock()
	defer logMu.Unlock()
	assert.Contains(t, logs.String(), "coprocedure panicked")
	assert.Contains(t, logs.String(), "boom")
}

func TestClose(t *testing.T) {
	m, _ := newTestManager(t)
	var ran atomic.Int32
	proc := func(context.Context, corehttp.Executor, uuid.UUID) { ran.Add(1) }
	_, err := m.Enqueue("AIS", "a", proc)
	require.NoError(t, err)
	m.Close("AIS")
	m.Close("Missing")
	_, err = m.Enqueue("AIS", "b", proc)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.Enqueue("Other", "c", proc)
	assert.NoError(t, err)
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, int32(2), ran.Load())
}

func TestShutdown(t *testing.T) {
	t.Run("drains queue", func(t *testing.T) {
		mt := metrics.New()
		m := NewManager(corehttp.Inflate(&countingDoer{}), WithMetrics(mt))
		var ran atomic.Int32
		for i := 0; i < 4; i++ {
			_, err := m.Enqueue("Upload", "u", func(context.Context, corehttp.Executor, uuid.UUID) {
				time.Sleep(time.Millisecond)
				ran.Add(1)
			})
			require.NoError(t, err)
		}
		require.NoError(t, m.Shutdown(context.Background()))
		assert.Equal(t, int32(4), ran.Load())
		_, err := m.Enqueue("Upload", "late", func(context.Context, corehttp.Executor, uuid.UUID) {})
		assert.ErrorIs(t, err, ErrClosed)

		var buf bytes.Buffer
		require.NoError(t, mt.WriteText(&buf))
		assert.Contains(t, buf.String(), `corehttp_coprocedures{pool="Upload",state="pending"} 0`)
	})
	t.Run("timeout cancels procs", func(t *testing.T) {
		m := NewManager(corehttp.Inflate(&countingDoer{}))
		started := make(chan struct{})
		finished := make(chan error, 1)
		_, err := m.Enqueue("Fetch", "slow", func(ctx context.Context, _ corehttp.Executor, _ uuid.UUID) {
			close(started)
			<-ctx.Done()
			finished <- ctx.Err()
		})
		require.NoError(t, err)
		<-started

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		err = m.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.ErrorIs(t, <-finished, context.Canceled)
		require.NoError(t, m.Shutdown(context.Background()))
	})
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
