package types

import "testing"

func TestTagIsPrimitive(t *testing.T) {
	tests := []struct {
		tag  Tag
		want bool
	}{
		{TagVoid, true},
		{TagInt8, true},
		{TagUint64, true},
		{TagDouble, true},
		{TagBool, true},
		{TagPointer, true},
		{TagString, true},
		{TagBuffer, true},
		{TagCallback, true},
		{Tag("Point"), false},
		{Tag(""), false},
	}

	for _, tt := range tests {
		if got := tt.tag.IsPrimitive(); got != tt.want {
			t.Errorf("Tag(%q).IsPrimitive() = %v, want %v", tt.tag, got, tt.want)
		}
	}
}

func TestTagSizeAlignment(t *testing.T) {
	tests := []struct {
		tag   Tag
		size  uintptr
		align uintptr
	}{
		{TagInt8, 1, 1},
		{TagUint8, 1, 1},
		{TagInt16, 2, 2},
		{TagUint16, 2, 2},
		{TagInt32, 4, 4},
		{TagUint32, 4, 4},
		{TagInt64, 8, 8},
		{TagUint64, 8, 8},
		{TagFloat, 4, 4},
		{TagDouble, 8, 8},
		{TagBool, 1, 1},
		{TagPointer, PointerSize, PointerSize},
		{TagString, PointerSize, PointerSize},
		{TagBuffer, PointerSize, PointerSize},
		{TagCallback, PointerSize, PointerSize},
		{TagVoid, 0, 1},
	}

	for _, tt := range tests {
		if got := tt.tag.Size(); got != tt.size {
			t.Errorf("Tag(%q).Size() = %d, want %d", tt.tag, got, tt.size)
		}
		if got := tt.tag.Alignment(); got != tt.align {
			t.Errorf("Tag(%q).Alignment() = %d, want %d", tt.tag, got, tt.align)
		}
	}
}

func TestTagIsInteger(t *testing.T) {
	for _, tag := range []Tag{TagInt8, TagUint8, TagInt16, TagUint16, TagInt32, TagUint32, TagInt64, TagUint64} {
		if !tag.IsInteger() {
			t.Errorf("Tag(%q).IsInteger() = false, want true", tag)
		}
	}
	for _, tag := range []Tag{TagFloat, TagDouble, TagBool, TagString, TagPointer, TagVoid, Tag("Point")} {
		if tag.IsInteger() {
			t.Errorf("Tag(%q).IsInteger() = true, want false", tag)
		}
	}
}

func TestTagDescriptor(t *testing.T) {
	for _, tag := range []Tag{TagVoid, TagInt32, TagUint64, TagFloat, TagDouble, TagPointer, TagString} {
		if tag.Descriptor() == nil {
			t.Errorf("Tag(%q).Descriptor() = nil, want a descriptor", tag)
		}
	}
	if Tag("Point").Descriptor() != nil {
		t.Error("aggregate tags must not have inline descriptors")
	}
}
