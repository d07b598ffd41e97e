// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

package thread

import (
	"sync/atomic"
	"testing"
)

func TestThreadCallVoid(t *testing.T) {
	th := New()
	defer th.Stop()

	var called atomic.Bool
	th.CallVoid(func() {
		called.Store(true)
	})

	if !called.Load() {
		t.Error("CallVoid did not execute function")
	}
}

func TestThreadCall(t *testing.T) {
	th := New()
	defer th.Stop()

	result := th.Call(func() any {
		return 42
	})

	if result != 42 {
		t.Errorf("Call returned %v, want 42", result)
	}
}

func TestThreadSerialisesCalls(t *testing.T) {
	th := New()
	defer th.Stop()

	var order []int
	for i := 0; i < 10; i++ {
		i := i
		th.CallVoid(func() {
			order = append(order, i)
		})
	}

	for i, got := range order {
		if got != i {
			t.Fatalf("order[%d] = %d, want %d", i, got, i)
		}
	}
}

func TestThreadStop(t *testing.T) {
	th := New()
	th.Stop()

	if th.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	// Calls after Stop are no-ops.
	th.CallVoid(func() {
		t.Error("function ran after Stop")
	})
	if got := th.Call(func() any { return 1 }); got != nil {
		t.Errorf("Call after Stop returned %v, want nil", got)
	}
}
