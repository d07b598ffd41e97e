// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

package types

import "encoding/json"

// TagBufferPtr labels buffer-shaped callback arguments in invoke_callback
// events. It is not a call-frame type; the native parameter is a pointer.
const TagBufferPtr Tag = "buffer_ptr"

// CallbackArg is one parsed entry of a register_callback args_type list.
// Entries arrive either as a bare primitive tag string or as a buffer_ptr
// shape object.
type CallbackArg struct {
	Type Tag

	// Buffer shape. Exactly one of FixedSize / SizeArgIndex is meaningful
	// when Type is TagBufferPtr.
	FixedSize    int
	SizeArgIndex int
}

type callbackShape struct {
	Type         Tag  `json:"type"`
	FixedSize    *int `json:"fixed_size,omitempty"`
	SizeArgIndex *int `json:"size_arg_index,omitempty"`
}

// ParseCallbackArgs validates an args_type list. Each buffer_ptr shape must
// carry exactly one size source, and a size_arg_index must name an earlier
// or later integer-typed argument.
func ParseCallbackArgs(raw []json.RawMessage) ([]CallbackArg, error) {
	args := make([]CallbackArg, 0, len(raw))
	for i, entry := range raw {
		var tag Tag
		if err := json.Unmarshal(entry, &tag); err == nil {
			if !tag.IsPrimitive() || tag == TagVoid || tag == TagBuffer || tag == TagCallback {
				return nil, Errorf(KindUnsupportedCallback, "argument %d: unsupported tag %q", i, tag)
			}
			args = append(args, CallbackArg{Type: tag, SizeArgIndex: -1})
			continue
		}

		var shape callbackShape
		if err := json.Unmarshal(entry, &shape); err != nil {
			return nil, Errorf(KindUnsupportedCallback, "argument %d: not a tag or shape object", i)
		}
		if shape.Type != TagBufferPtr {
			return nil, Errorf(KindUnsupportedCallback, "argument %d: unsupported shape %q", i, shape.Type)
		}
		switch {
		case shape.FixedSize != nil && shape.SizeArgIndex != nil:
			return nil, Errorf(KindUnsupportedCallback, "argument %d: both fixed_size and size_arg_index", i)
		case shape.FixedSize != nil:
			if *shape.FixedSize <= 0 {
				return nil, Errorf(KindUnsupportedCallback, "argument %d: fixed_size must be positive", i)
			}
			args = append(args, CallbackArg{Type: TagBufferPtr, FixedSize: *shape.FixedSize, SizeArgIndex: -1})
		case shape.SizeArgIndex != nil:
			if *shape.SizeArgIndex < 0 {
				return nil, Errorf(KindUnsupportedCallback, "argument %d: size_arg_index %d out of range", i, *shape.SizeArgIndex)
			}
			args = append(args, CallbackArg{Type: TagBufferPtr, FixedSize: 0, SizeArgIndex: *shape.SizeArgIndex})
		default:
			return nil, Errorf(KindUnsupportedCallback, "argument %d: buffer_ptr needs fixed_size or size_arg_index", i)
		}
	}

	// Size references must resolve to an integer argument.
	for i, a := range args {
		if a.Type != TagBufferPtr || a.SizeArgIndex < 0 {
			continue
		}
		if a.SizeArgIndex >= len(args) {
			return nil, Errorf(KindUnsupportedCallback, "argument %d: size_arg_index %d out of range", i, a.SizeArgIndex)
		}
		if ref := args[a.SizeArgIndex]; !ref.Type.IsInteger() {
			return nil, Errorf(KindUnsupportedCallback, "argument %d: size_arg_index %d is not an integer argument", i, a.SizeArgIndex)
		}
	}
	return args, nil
}
