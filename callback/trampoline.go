// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

package callback

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"unsafe"

	"github.com/go-webgpu/goffi/ffi"
	log "github.com/sirupsen/logrus"

	"github.com/kekxv/rpc-proxy-framework/types"
)

var (
	uintptrType = reflect.TypeOf(uintptr(0))
	float32Type = reflect.TypeOf(float32(0))
	float64Type = reflect.TypeOf(float64(0))
)

// newSlot allocates a fresh trampoline for the signature. The generated
// function receives every argument word-shaped (floats excepted, which
// arrive as their own kind) and dispatches through the slot's current
// binding, so the executable memory outlives any one handle.
func newSlot(ret types.Tag, args []types.CallbackArg) (s *slot, err error) {
	in := make([]reflect.Type, len(args))
	for i, a := range args {
		switch a.Type {
		case types.TagFloat:
			in[i] = float32Type
		case types.TagDouble:
			in[i] = float64Type
		default:
			in[i] = uintptrType
		}
	}

	var out []reflect.Type
	switch ret {
	case types.TagVoid:
	case types.TagFloat:
		out = []reflect.Type{float32Type}
	case types.TagDouble:
		out = []reflect.Type{float64Type}
	default:
		out = []reflect.Type{uintptrType}
	}

	s = &slot{}
	zero := make([]reflect.Value, len(out))
	for i, t := range out {
		zero[i] = reflect.Zero(t)
	}

	impl := func(callArgs []reflect.Value) []reflect.Value {
		s.invoke(callArgs)
		return zero
	}

	fn := reflect.MakeFunc(reflect.FuncOf(in, out, false), impl)

	// NewCallback panics when the process-lifetime trampoline budget is
	// exhausted; surface that as a registration failure instead.
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, types.Errorf(types.KindUnsupportedCallback, "trampoline allocation failed: %v", r)
		}
	}()
	s.code = ffi.NewCallback(fn.Interface())
	return s, nil
}

// invoke runs on whatever native thread called the trampoline. It
// serialises the arguments of the bound handle and ships one event before
// returning, which is what keeps events for one handle in invocation
// order on the wire.
func (s *slot) invoke(callArgs []reflect.Value) {
	h := s.binding.Load()
	if h == nil {
		log.Warn("native code invoked an unregistered callback trampoline")
		return
	}

	h.inFlight.Add(1)
	defer h.inFlight.Add(-1)

	payload := types.InvokeCallbackPayload{
		CallbackID: h.ID,
		Args:       make([]types.TaggedValue, 0, len(h.Args)),
	}
	for i := range h.Args {
		payload.Args = append(payload.Args, serialiseArg(h.Args, callArgs, i))
	}

	if err := h.sink.SendEvent(types.EventInvokeCallback, payload); err != nil {
		log.WithField("callback_id", h.ID).WithError(err).Warn("failed to deliver invoke_callback event")
	}
}

// serialiseArg renders one native argument per its declared shape.
func serialiseArg(specs []types.CallbackArg, callArgs []reflect.Value, i int) types.TaggedValue {
	spec := specs[i]
	switch spec.Type {
	case types.TagFloat:
		return types.TaggedValue{Type: spec.Type, Value: float32(callArgs[i].Float())}
	case types.TagDouble:
		return types.TaggedValue{Type: spec.Type, Value: callArgs[i].Float()}
	}

	w := uintptr(callArgs[i].Uint())
	switch spec.Type {
	case types.TagBool:
		return types.TaggedValue{Type: spec.Type, Value: w != 0}
	case types.TagPointer:
		return types.TaggedValue{Type: spec.Type, Value: uint64(w)}
	case types.TagString:
		return types.TaggedValue{Type: spec.Type, Value: readCString(w)}
	case types.TagBufferPtr:
		size := spec.FixedSize
		if spec.SizeArgIndex >= 0 {
			size = intArgValue(specs[spec.SizeArgIndex].Type, callArgs[spec.SizeArgIndex])
		}
		data := readBytes(w, size)
		return types.TaggedValue{
			Type:  spec.Type,
			Value: base64.StdEncoding.EncodeToString(data),
			Size:  len(data),
		}
	case types.TagInt8:
		return types.TaggedValue{Type: spec.Type, Value: int8(w)}
	case types.TagUint8:
		return types.TaggedValue{Type: spec.Type, Value: uint8(w)}
	case types.TagInt16:
		return types.TaggedValue{Type: spec.Type, Value: int16(w)}
	case types.TagUint16:
		return types.TaggedValue{Type: spec.Type, Value: uint16(w)}
	case types.TagInt32:
		return types.TaggedValue{Type: spec.Type, Value: int32(w)}
	case types.TagUint32:
		return types.TaggedValue{Type: spec.Type, Value: uint32(w)}
	case types.TagInt64:
		return types.TaggedValue{Type: spec.Type, Value: int64(w)}
	case types.TagUint64:
		return types.TaggedValue{Type: spec.Type, Value: uint64(w)}
	}
	return types.TaggedValue{Type: spec.Type, Value: fmt.Sprintf("0x%x", w)}
}

// intArgValue truncates a raw argument word to the declared integer width
// before using it as a byte count; the upper register bits of a sub-word
// argument are not meaningful.
func intArgValue(tag types.Tag, v reflect.Value) int {
	if v.Kind() != reflect.Uintptr {
		return 0
	}
	w := uintptr(v.Uint())
	switch tag {
	case types.TagInt8:
		return int(int8(w))
	case types.TagUint8:
		return int(uint8(w))
	case types.TagInt16:
		return int(int16(w))
	case types.TagUint16:
		return int(uint16(w))
	case types.TagInt32:
		return int(int32(w))
	case types.TagUint32:
		return int(uint32(w))
	default:
		return int(int64(w))
	}
}

// readCString reads the NUL-terminated bytes at the machine word w. The
// double indirection converts the word to a pointer without tripping go
// vet's uintptr checks.
func readCString(w uintptr) string {
	if w == 0 {
		return ""
	}
	p := *(**byte)(unsafe.Pointer(&w))
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}

func readBytes(w uintptr, n int) []byte {
	if w == 0 || n <= 0 {
		return nil
	}
	p := *(**byte)(unsafe.Pointer(&w))
	return unsafe.Slice(p, n)
}
