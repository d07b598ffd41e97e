// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

// Package dispatch invokes a resolved symbol through a generic C ABI call
// frame. The type vector and argument addresses come from the marshaller;
// the call interface is prepared per call because signatures are dynamic.
package dispatch

import (
	"unsafe"

	"github.com/go-webgpu/goffi/ffi"
	ffitypes "github.com/go-webgpu/goffi/types"

	"github.com/kekxv/rpc-proxy-framework/internal/arena"
	"github.com/kekxv/rpc-proxy-framework/marshal"
	"github.com/kekxv/rpc-proxy-framework/types"
)

// Invoke calls sym with the decoded frame and returns the address of the
// return slot. The slot is arena-allocated: machine-word sized for
// primitive and pointer returns, layout-sized for aggregate returns.
//
// A trap inside the callee is not recoverable in general; the deferred
// recover only catches faults the runtime turns into panics.
func Invoke(sym unsafe.Pointer, plan *marshal.ReturnPlan, frame *marshal.Frame, ar *arena.Arena) (ret unsafe.Pointer, err error) {
	var cif ffitypes.CallInterface
	if perr := ffi.PrepareCallInterface(&cif, ffitypes.DefaultCall, plan.Desc, frame.Types); perr != nil {
		return nil, types.Errorf(types.KindSignatureBuildFailed, "%v", perr)
	}

	size, align := plan.Size, plan.Align
	if size < types.PointerSize {
		size = types.PointerSize
	}
	if align < types.PointerSize {
		align = types.PointerSize
	}
	ret = ar.Alloc(size, align)

	defer func() {
		if r := recover(); r != nil {
			ret, err = nil, types.Errorf(types.KindInvocationFailed, "callee trapped: %v", r)
		}
	}()
	if cerr := ffi.CallFunction(&cif, sym, ret, frame.Values); cerr != nil {
		return nil, types.Errorf(types.KindInvocationFailed, "%v", cerr)
	}
	return ret, nil
}
