// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package coproc runs queued HTTP procedures on named pools of workers.

A coprocedure is a function which issues one or more requests through
the Executor it is handed. Coprocedures are enqueued on a named pool and
run in arrival order by the pool's workers, so a pool of size one runs
its coprocedures strictly one after another. Pools are created the
first time a coprocedure is enqueued on them.

The size of a pool comes from the control named "PoolSize" followed by
the pool name, for example PoolSizeUpload. When the control is absent or
zero, the pools named Upload and AIS get a single worker and every other
pool gets DefaultPoolSize workers.

A panic inside a coprocedure is recovered and logged, and the worker
moves on to the next coprocedure.
*/
package coproc
