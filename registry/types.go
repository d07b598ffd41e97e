// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

package registry

import (
	"sync"

	ffitypes "github.com/go-webgpu/goffi/types"

	"github.com/kekxv/rpc-proxy-framework/types"
)

// Field is one laid-out member of a registered aggregate.
type Field struct {
	Name   string
	Type   types.Tag
	Offset uintptr
	Size   uintptr
	Align  uintptr
	// Layout is set when the member is itself a registered aggregate.
	Layout *StructLayout
}

// StructLayout is the computed layout of a registered aggregate: member
// offsets under the platform's natural alignment rules, total size rounded
// up to the struct alignment, and the goffi descriptor mirroring it.
type StructLayout struct {
	Name   string
	Fields []Field
	Size   uintptr
	Align  uintptr
	Desc   *ffitypes.TypeDescriptor
}

func (l *StructLayout) sameDefinition(members []types.StructMember) bool {
	if len(l.Fields) != len(members) {
		return false
	}
	for i, f := range l.Fields {
		if f.Name != members[i].Name || f.Type != members[i].Type {
			return false
		}
	}
	return true
}

// TypeRegistry maps aggregate names to layouts.
type TypeRegistry struct {
	mu      sync.RWMutex
	structs map[string]*StructLayout
}

// NewTypeRegistry returns an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{structs: make(map[string]*StructLayout)}
}

// Register resolves each member against primitives and already-registered
// aggregates, computes the layout, and stores it. Registration is
// idempotent only for a byte-identical definition. Forward references are
// impossible by construction: a member type that is not yet registered
// fails with unknown_member_type, which also rejects cycles.
func (r *TypeRegistry) Register(name string, members []types.StructMember) (*StructLayout, error) {
	if name == "" {
		return nil, types.Errorf(types.KindMalformedArg, "empty struct name")
	}
	if len(members) == 0 {
		return nil, types.Errorf(types.KindEmptyDefinition, "struct %q has no members", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.structs[name]; ok {
		if existing.sameDefinition(members) {
			return existing, nil
		}
		return nil, types.Errorf(types.KindTypeExists, "struct %q already registered with a different definition", name)
	}

	layout := &StructLayout{Name: name}
	var offset, maxAlign uintptr
	descs := make([]*ffitypes.TypeDescriptor, 0, len(members))

	for _, m := range members {
		var size, align uintptr
		var nested *StructLayout
		var desc *ffitypes.TypeDescriptor

		switch {
		case m.Type.IsPrimitive():
			if m.Type == types.TagVoid || m.Type == types.TagBuffer || m.Type == types.TagCallback {
				return nil, types.Errorf(types.KindUnknownMemberType, "struct %q member %q: %q is not a storable member type", name, m.Name, m.Type)
			}
			size, align, desc = m.Type.Size(), m.Type.Alignment(), m.Type.Descriptor()
		default:
			sub, ok := r.structs[string(m.Type)]
			if !ok {
				return nil, types.Errorf(types.KindUnknownMemberType, "struct %q member %q: unknown type %q", name, m.Name, m.Type)
			}
			size, align, desc, nested = sub.Size, sub.Align, sub.Desc, sub
		}

		offset = alignUp(offset, align)
		layout.Fields = append(layout.Fields, Field{
			Name:   m.Name,
			Type:   m.Type,
			Offset: offset,
			Size:   size,
			Align:  align,
			Layout: nested,
		})
		descs = append(descs, desc)
		offset += size
		if align > maxAlign {
			maxAlign = align
		}
	}

	layout.Align = maxAlign
	layout.Size = alignUp(offset, maxAlign)
	layout.Desc = &ffitypes.TypeDescriptor{
		Kind:    ffitypes.StructType,
		Members: descs,
	}

	r.structs[name] = layout
	return layout, nil
}

// Unregister removes a definition. A type referenced by another live
// aggregate is refused so that stored layouts never dangle.
func (r *TypeRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.structs[name]; !ok {
		return types.Errorf(types.KindTypeNotFound, "struct %q is not registered", name)
	}
	for _, other := range r.structs {
		if other.Name == name {
			continue
		}
		for _, f := range other.Fields {
			if string(f.Type) == name {
				return types.Errorf(types.KindTypeInUse, "struct %q is referenced by %q", name, other.Name)
			}
		}
	}
	delete(r.structs, name)
	return nil
}

// Lookup returns the layout registered under name.
func (r *TypeRegistry) Lookup(name string) (*StructLayout, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.structs[name]
	return l, ok
}

func alignUp(n, align uintptr) uintptr {
	if align == 0 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
