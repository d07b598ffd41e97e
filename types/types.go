// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

package types

import (
	"unsafe"

	ffitypes "github.com/go-webgpu/goffi/types"
)

// Tag identifies a value type on the wire. The primitive tags form a closed
// set; any other tag names a registered aggregate.
type Tag string

// Primitive type tags.
const (
	TagVoid     Tag = "void"
	TagInt8     Tag = "int8"
	TagUint8    Tag = "uint8"
	TagInt16    Tag = "int16"
	TagUint16   Tag = "uint16"
	TagInt32    Tag = "int32"
	TagUint32   Tag = "uint32"
	TagInt64    Tag = "int64"
	TagUint64   Tag = "uint64"
	TagFloat    Tag = "float"
	TagDouble   Tag = "double"
	TagBool     Tag = "bool"
	TagPointer  Tag = "pointer"
	TagString   Tag = "string"
	TagBuffer   Tag = "buffer"
	TagCallback Tag = "callback"
)

// PointerSize is the machine word size. Strings, buffers, pointers and
// callback code pointers all occupy one word in a call frame.
const PointerSize = unsafe.Sizeof(uintptr(0))

type primInfo struct {
	size  uintptr
	align uintptr
	desc  *ffitypes.TypeDescriptor
}

var primitives = map[Tag]primInfo{
	TagVoid:     {0, 1, ffitypes.VoidTypeDescriptor},
	TagInt8:     {1, 1, ffitypes.SInt8TypeDescriptor},
	TagUint8:    {1, 1, ffitypes.UInt8TypeDescriptor},
	TagInt16:    {2, 2, ffitypes.SInt16TypeDescriptor},
	TagUint16:   {2, 2, ffitypes.UInt16TypeDescriptor},
	TagInt32:    {4, 4, ffitypes.SInt32TypeDescriptor},
	TagUint32:   {4, 4, ffitypes.UInt32TypeDescriptor},
	TagInt64:    {8, 8, ffitypes.SInt64TypeDescriptor},
	TagUint64:   {8, 8, ffitypes.UInt64TypeDescriptor},
	TagFloat:    {4, 4, ffitypes.FloatTypeDescriptor},
	TagDouble:   {8, 8, ffitypes.DoubleTypeDescriptor},
	TagBool:     {1, 1, ffitypes.UInt8TypeDescriptor},
	TagPointer:  {PointerSize, PointerSize, ffitypes.PointerTypeDescriptor},
	TagString:   {PointerSize, PointerSize, ffitypes.PointerTypeDescriptor},
	TagBuffer:   {PointerSize, PointerSize, ffitypes.PointerTypeDescriptor},
	TagCallback: {PointerSize, PointerSize, ffitypes.PointerTypeDescriptor},
}

// IsPrimitive reports whether the tag belongs to the closed primitive set.
func (t Tag) IsPrimitive() bool {
	_, ok := primitives[t]
	return ok
}

// IsInteger reports whether the tag is a fixed-width integer type.
func (t Tag) IsInteger() bool {
	switch t {
	case TagInt8, TagUint8, TagInt16, TagUint16, TagInt32, TagUint32, TagInt64, TagUint64:
		return true
	}
	return false
}

// IsNumeric reports whether the tag is an integer or floating point type.
func (t Tag) IsNumeric() bool {
	return t.IsInteger() || t == TagFloat || t == TagDouble
}

// Size returns the in-memory size of a primitive tag. Aggregate tags have
// size zero here; their layout lives in the registry.
func (t Tag) Size() uintptr {
	return primitives[t].size
}

// Alignment returns the natural alignment of a primitive tag.
func (t Tag) Alignment() uintptr {
	return primitives[t].align
}

// Descriptor returns the goffi type descriptor for a primitive tag, or nil
// for aggregate tags.
func (t Tag) Descriptor() *ffitypes.TypeDescriptor {
	return primitives[t].desc
}
