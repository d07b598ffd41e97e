// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

// Package marshal converts JSON argument descriptors into C ABI call
// frames and call results back into JSON. One Marshaller serves exactly
// one call: every transient byte region it produces lives in the per-call
// arena, and readbacks of out/inout arguments are re-encoded from that
// storage after the call returns.
package marshal

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"unsafe"

	ffitypes "github.com/go-webgpu/goffi/types"

	"github.com/kekxv/rpc-proxy-framework/internal/arena"
	"github.com/kekxv/rpc-proxy-framework/registry"
	"github.com/kekxv/rpc-proxy-framework/types"
)

// CallbackResolver resolves a callback id to its trampoline code pointer.
type CallbackResolver interface {
	CodePointer(id string) (uintptr, error)
}

// Marshaller owns the decode/encode work of one call.
type Marshaller struct {
	arena     *arena.Arena
	types     *registry.TypeRegistry
	callbacks CallbackResolver
}

// New returns a marshaller writing into ar.
func New(ar *arena.Arena, reg *registry.TypeRegistry, callbacks CallbackResolver) *Marshaller {
	return &Marshaller{arena: ar, types: reg, callbacks: callbacks}
}

// Frame is a decoded call frame: the goffi type vector, the parallel
// vector of argument storage addresses, and the readback plan for
// out/inout arguments.
type Frame struct {
	Types  []*ffitypes.TypeDescriptor
	Values []unsafe.Pointer

	readbacks []readback
}

type readback struct {
	index int
	tag   types.Tag // buffer, scalar tag, or aggregate name
	ptr   unsafe.Pointer
	size  int // buffer capacity
	layout *registry.StructLayout
}

// DecodeArgs builds the call frame for args in order.
func (m *Marshaller) DecodeArgs(args []types.ArgSpec) (*Frame, error) {
	frame := &Frame{
		Types:  make([]*ffitypes.TypeDescriptor, 0, len(args)),
		Values: make([]unsafe.Pointer, 0, len(args)),
	}
	for i := range args {
		if err := m.decodeArg(frame, i, &args[i]); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

func (m *Marshaller) decodeArg(frame *Frame, index int, spec *types.ArgSpec) error {
	tag := spec.Type
	switch {
	case tag == types.TagVoid:
		return types.Errorf(types.KindMalformedArg, "argument %d: void is not a value", index)

	case tag.IsNumeric():
		p := m.arena.Alloc(tag.Size(), tag.Alignment())
		if spec.Value == nil {
			return types.Errorf(types.KindMalformedArg, "argument %d: missing value", index)
		}
		if err := storeNumeric(p, tag, spec.Value); err != nil {
			return err
		}
		frame.push(tag.Descriptor(), p)
		return nil

	case tag == types.TagBool:
		p := m.arena.Alloc(1, 1)
		var b bool
		if err := json.Unmarshal(spec.Value, &b); err != nil {
			return types.Errorf(types.KindMalformedArg, "argument %d: expected a boolean", index)
		}
		if b {
			*(*uint8)(p) = 1
		}
		frame.push(tag.Descriptor(), p)
		return nil

	case tag == types.TagString:
		var s string
		if err := json.Unmarshal(spec.Value, &s); err != nil {
			return types.Errorf(types.KindMalformedArg, "argument %d: expected a string", index)
		}
		if strings.ContainsRune(s, 0) {
			return types.Errorf(types.KindInvalidString, "argument %d: embedded NUL", index)
		}
		frame.push(tag.Descriptor(), m.wordSlot(uintptr(m.arena.CString(s))))
		return nil

	case tag == types.TagBuffer:
		return m.decodeBuffer(frame, index, spec)

	case tag == types.TagPointer:
		return m.decodePointer(frame, index, spec)

	case tag == types.TagCallback:
		var id string
		if err := json.Unmarshal(spec.Value, &id); err != nil {
			return types.Errorf(types.KindMalformedArg, "argument %d: callback id must be a string", index)
		}
		code, err := m.callbacks.CodePointer(id)
		if err != nil {
			return err
		}
		frame.push(tag.Descriptor(), m.wordSlot(code))
		return nil
	}

	// Named aggregate passed by value.
	layout, ok := m.types.Lookup(string(tag))
	if !ok {
		return types.Errorf(types.KindUnknownTypeTag, "argument %d: unknown type %q", index, tag)
	}
	p := m.arena.Alloc(layout.Size, layout.Align)
	if spec.Value != nil {
		if err := m.decodeStructInto(layout, spec.Value, p); err != nil {
			return err
		}
	}
	frame.push(layout.Desc, p)
	return nil
}

func (m *Marshaller) decodeBuffer(frame *Frame, index int, spec *types.ArgSpec) error {
	if spec.Size <= 0 {
		return types.Errorf(types.KindMalformedArg, "argument %d: buffer requires a positive size", index)
	}
	region := m.arena.Bytes(spec.Size)

	if spec.IsInput() && spec.Value != nil {
		var b64 string
		if err := json.Unmarshal(spec.Value, &b64); err != nil {
			return types.Errorf(types.KindMalformedArg, "argument %d: buffer value must be base64", index)
		}
		decoded, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return types.Errorf(types.KindMalformedArg, "argument %d: bad base64: %v", index, err)
		}
		if len(decoded) > spec.Size {
			return types.Errorf(types.KindBufferOverflow, "argument %d: %d bytes into a %d byte buffer", index, len(decoded), spec.Size)
		}
		copy(region, decoded)
	}

	p := unsafe.Pointer(&region[0])
	frame.push(types.TagBuffer.Descriptor(), m.wordSlot(uintptr(p)))
	if spec.IsOutput() {
		frame.readbacks = append(frame.readbacks, readback{
			index: index, tag: types.TagBuffer, ptr: p, size: spec.Size,
		})
	}
	return nil
}

func (m *Marshaller) decodePointer(frame *Frame, index int, spec *types.ArgSpec) error {
	desc := types.TagPointer.Descriptor()

	if spec.TargetType != "" {
		// Array target: contiguous elements.
		if name, isArray := strings.CutSuffix(string(spec.TargetType), "[]"); isArray {
			return m.decodeArrayPointer(frame, index, spec, types.Tag(name))
		}

		// Aggregate target.
		if layout, ok := m.types.Lookup(string(spec.TargetType)); ok {
			p := m.arena.Alloc(layout.Size, layout.Align)
			if spec.Value != nil {
				if err := m.decodeStructInto(layout, spec.Value, p); err != nil {
					return err
				}
			}
			frame.push(desc, m.wordSlot(uintptr(p)))
			if spec.IsOutput() {
				frame.readbacks = append(frame.readbacks, readback{
					index: index, tag: spec.TargetType, ptr: p, layout: layout,
				})
			}
			return nil
		}

		// Scalar target.
		target := spec.TargetType
		if !target.IsPrimitive() || target == types.TagVoid {
			return types.Errorf(types.KindUnknownTypeTag, "argument %d: unknown target type %q", index, spec.TargetType)
		}
		p := m.arena.Alloc(target.Size(), target.Alignment())
		if spec.Value != nil {
			if err := m.storeScalarValue(p, target, spec.Value, index); err != nil {
				return err
			}
		}
		frame.push(desc, m.wordSlot(uintptr(p)))
		if spec.IsOutput() {
			frame.readbacks = append(frame.readbacks, readback{
				index: index, tag: target, ptr: p,
			})
		}
		return nil
	}

	if spec.Value == nil {
		frame.push(desc, m.wordSlot(0))
		return nil
	}

	trimmed := bytes.TrimSpace(spec.Value)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		// {type, value} object: allocate the named aggregate and pass
		// its address.
		var tv struct {
			Type  types.Tag       `json:"type"`
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(spec.Value, &tv); err != nil || tv.Type == "" {
			return types.Errorf(types.KindMalformedArg, "argument %d: pointer object needs {type, value}", index)
		}
		layout, ok := m.types.Lookup(string(tv.Type))
		if !ok {
			return types.Errorf(types.KindUnknownTypeTag, "argument %d: unknown pointer target %q", index, tv.Type)
		}
		p := m.arena.Alloc(layout.Size, layout.Align)
		if err := m.decodeStructInto(layout, tv.Value, p); err != nil {
			return err
		}
		frame.push(desc, m.wordSlot(uintptr(p)))
		return nil
	}

	// Opaque machine word.
	n, err := jsonNumber(spec.Value)
	if err != nil {
		return types.Errorf(types.KindMalformedArg, "argument %d: pointer value must be an integer or object", index)
	}
	w, perr := parseWord(n)
	if perr != nil {
		return types.Errorf(types.KindMalformedArg, "argument %d: pointer value %q is not a machine word", index, n.String())
	}
	frame.push(desc, m.wordSlot(w))
	return nil
}

func (m *Marshaller) decodeArrayPointer(frame *Frame, index int, spec *types.ArgSpec, elem types.Tag) error {
	var items []json.RawMessage
	if err := json.Unmarshal(spec.Value, &items); err != nil {
		return types.Errorf(types.KindMalformedArg, "argument %d: %s[] requires an array value", index, elem)
	}

	var elemSize, elemAlign uintptr
	var layout *registry.StructLayout
	if l, ok := m.types.Lookup(string(elem)); ok {
		layout, elemSize, elemAlign = l, l.Size, l.Align
	} else if elem.IsNumeric() || elem == types.TagBool || elem == types.TagPointer {
		elemSize, elemAlign = elem.Size(), elem.Alignment()
	} else {
		return types.Errorf(types.KindUnknownTypeTag, "argument %d: unknown array element type %q", index, elem)
	}

	count := len(items)
	if count == 0 {
		frame.push(types.TagPointer.Descriptor(), m.wordSlot(0))
		return nil
	}

	base := m.arena.Alloc(elemSize*uintptr(count), elemAlign)
	for i, item := range items {
		p := unsafe.Add(base, elemSize*uintptr(i))
		if layout != nil {
			if err := m.decodeStructInto(layout, item, p); err != nil {
				return err
			}
		} else if err := m.storeScalarValue(p, elem, item, index); err != nil {
			return err
		}
	}
	frame.push(types.TagPointer.Descriptor(), m.wordSlot(uintptr(base)))
	return nil
}

// decodeStructInto writes a plain JSON object into a laid-out aggregate.
// Members absent from the object stay zero.
func (m *Marshaller) decodeStructInto(layout *registry.StructLayout, raw json.RawMessage, base unsafe.Pointer) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return types.Errorf(types.KindMalformedArg, "%s value must be an object, got %s", layout.Name, compact(raw))
	}

	for _, f := range layout.Fields {
		member, ok := obj[f.Name]
		if !ok {
			continue
		}
		p := unsafe.Add(base, f.Offset)
		if f.Layout != nil {
			if err := m.decodeStructInto(f.Layout, member, p); err != nil {
				return err
			}
			continue
		}
		if err := m.storeScalarValue(p, f.Type, member, -1); err != nil {
			return err
		}
	}
	return nil
}

// storeScalarValue decodes one scalar member/element value at p.
func (m *Marshaller) storeScalarValue(p unsafe.Pointer, tag types.Tag, raw json.RawMessage, index int) error {
	switch {
	case tag.IsNumeric():
		return storeNumeric(p, tag, raw)
	case tag == types.TagBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return types.Errorf(types.KindMalformedArg, "expected a boolean, got %s", compact(raw))
		}
		if b {
			*(*uint8)(p) = 1
		} else {
			*(*uint8)(p) = 0
		}
		return nil
	case tag == types.TagString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return types.Errorf(types.KindMalformedArg, "expected a string, got %s", compact(raw))
		}
		if strings.ContainsRune(s, 0) {
			return types.NewError(types.KindInvalidString)
		}
		*(*uintptr)(p) = uintptr(m.arena.CString(s))
		return nil
	case tag == types.TagPointer:
		n, err := jsonNumber(raw)
		if err != nil {
			return err
		}
		w, perr := parseWord(n)
		if perr != nil {
			return types.Errorf(types.KindMalformedArg, "pointer value %q is not a machine word", n.String())
		}
		*(*uintptr)(p) = w
		return nil
	}
	_ = index
	return types.Errorf(types.KindUnknownTypeTag, "cannot store value of type %q", tag)
}

// wordSlot allocates a machine word in the arena holding w and returns its
// address. Call frames reference storage addresses, never values.
func (m *Marshaller) wordSlot(w uintptr) unsafe.Pointer {
	p := m.arena.Alloc(types.PointerSize, types.PointerSize)
	*(*uintptr)(p) = w
	return p
}

func (f *Frame) push(desc *ffitypes.TypeDescriptor, storage unsafe.Pointer) {
	f.Types = append(f.Types, desc)
	f.Values = append(f.Values, storage)
}
