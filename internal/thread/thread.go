// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

// Package thread provides a dedicated locked OS thread for native calls.
//
// Every connection owns one Thread and dispatches its call_function work
// there. Loaded libraries may keep thread-local state and may invoke
// registered callbacks on the calling thread; pinning a connection's calls
// to a single OS thread keeps both coherent across requests.
package thread

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Thread serialises function calls onto one locked OS thread.
type Thread struct {
	funcs   chan func()
	done    chan struct{}
	running atomic.Bool
}

// New creates a thread and starts it. The backing goroutine is locked to
// an OS thread for its lifetime.
func New() *Thread {
	t := &Thread{
		funcs: make(chan func(), 16),
		done:  make(chan struct{}),
	}
	t.running.Store(true)

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		wg.Done()

		for {
			select {
			case f := <-t.funcs:
				f()
			case <-t.done:
				return
			}
		}
	}()

	wg.Wait()
	return t
}

// Call executes f on the thread and returns its result.
func (t *Thread) Call(f func() any) any {
	if !t.running.Load() {
		return nil
	}

	done := make(chan any, 1)
	t.funcs <- func() {
		done <- f()
	}
	return <-done
}

// CallVoid executes f on the thread and waits for completion.
func (t *Thread) CallVoid(f func()) {
	if !t.running.Load() {
		return
	}

	done := make(chan struct{})
	t.funcs <- func() {
		f()
		close(done)
	}
	<-done
}

// Stop stops the thread. Pending queued functions are dropped.
func (t *Thread) Stop() {
	if t.running.Swap(false) {
		close(t.done)
	}
}

// IsRunning reports whether the thread accepts work.
func (t *Thread) IsRunning() bool {
	return t.running.Load()
}
