// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

package marshal

import (
	"encoding/base64"
	"unsafe"

	ffitypes "github.com/go-webgpu/goffi/types"

	"github.com/kekxv/rpc-proxy-framework/registry"
	"github.com/kekxv/rpc-proxy-framework/types"
)

// ReturnPlan describes the return slot of a call.
type ReturnPlan struct {
	Tag    types.Tag
	Desc   *ffitypes.TypeDescriptor
	Size   uintptr
	Align  uintptr
	Layout *registry.StructLayout
}

// PlanReturn resolves the declared return type. buffer and callback have
// no meaningful return encoding and are rejected before the call.
func (m *Marshaller) PlanReturn(tag types.Tag) (*ReturnPlan, error) {
	switch {
	case tag == types.TagVoid:
		return &ReturnPlan{Tag: tag, Desc: tag.Descriptor()}, nil
	case tag == types.TagBuffer, tag == types.TagCallback:
		return nil, types.Errorf(types.KindMalformedArg, "%q is not a valid return type", tag)
	case tag.IsPrimitive():
		return &ReturnPlan{
			Tag:   tag,
			Desc:  tag.Descriptor(),
			Size:  tag.Size(),
			Align: tag.Alignment(),
		}, nil
	}
	layout, ok := m.types.Lookup(string(tag))
	if !ok {
		return nil, types.Errorf(types.KindUnknownTypeTag, "unknown return type %q", tag)
	}
	return &ReturnPlan{
		Tag:    tag,
		Desc:   layout.Desc,
		Size:   layout.Size,
		Align:  layout.Align,
		Layout: layout,
	}, nil
}

// EncodeResult renders the return slot and every out/inout readback into
// the call_function success data. It copies out of arena storage; nothing
// in the result aliases the arena.
func (m *Marshaller) EncodeResult(plan *ReturnPlan, retPtr unsafe.Pointer, frame *Frame) (*types.CallResult, error) {
	result := &types.CallResult{
		Return:    types.TaggedValue{Type: plan.Tag},
		OutParams: make([]types.OutParam, 0, len(frame.readbacks)),
	}

	switch {
	case plan.Tag == types.TagVoid:
		// No value.
	case plan.Layout != nil:
		result.Return.Value = encodeStruct(plan.Layout, retPtr)
	case plan.Tag == types.TagString:
		w := *(*uintptr)(retPtr)
		if w != 0 {
			result.Return.Value = cStringAt(w)
		}
	default:
		result.Return.Value = loadWordScalar(retPtr, plan.Tag)
	}

	for _, rb := range frame.readbacks {
		out := types.OutParam{Index: rb.index, Type: rb.tag}
		switch {
		case rb.tag == types.TagBuffer:
			region := unsafe.Slice((*byte)(rb.ptr), rb.size)
			out.Value = base64.StdEncoding.EncodeToString(region)
		case rb.layout != nil:
			out.Value = encodeStruct(rb.layout, rb.ptr)
		default:
			out.Value = loadScalar(rb.ptr, rb.tag)
		}
		result.OutParams = append(result.OutParams, out)
	}
	return result, nil
}

// encodeStruct reads an aggregate at base into a plain JSON object.
func encodeStruct(layout *registry.StructLayout, base unsafe.Pointer) map[string]any {
	obj := make(map[string]any, len(layout.Fields))
	for _, f := range layout.Fields {
		p := unsafe.Add(base, f.Offset)
		switch {
		case f.Layout != nil:
			obj[f.Name] = encodeStruct(f.Layout, p)
		case f.Type == types.TagString:
			w := *(*uintptr)(p)
			if w == 0 {
				obj[f.Name] = nil
			} else {
				obj[f.Name] = cStringAt(w)
			}
		default:
			obj[f.Name] = loadScalar(p, f.Type)
		}
	}
	return obj
}
