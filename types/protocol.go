// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

package types

import (
	"encoding/json"
	"fmt"
)

// Commands understood by the router.
const (
	CmdLoadLibrary        = "load_library"
	CmdUnloadLibrary      = "unload_library"
	CmdRegisterStruct     = "register_struct"
	CmdUnregisterStruct   = "unregister_struct"
	CmdRegisterCallback   = "register_callback"
	CmdUnregisterCallback = "unregister_callback"
	CmdCallFunction       = "call_function"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// EventInvokeCallback is the only defined unsolicited event.
const EventInvokeCallback = "invoke_callback"

// Request is the inbound envelope.
type Request struct {
	Command   string          `json:"command"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
}

// Response is the outbound reply envelope. Data and ErrorMessage are
// mutually exclusive, selected by Status.
type Response struct {
	RequestID    string `json:"request_id"`
	Status       string `json:"status"`
	Data         any    `json:"data,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Event is the unsolicited server-to-client envelope.
type Event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// TaggedValue is the uniform {type, value} form used for top-level
// arguments, return values, out parameters and callback event arguments.
// Struct bodies nested inside a value are plain JSON objects, not tagged.
type TaggedValue struct {
	Type  Tag `json:"type"`
	Value any `json:"value"`
	// Size is set on buffer-shaped callback arguments to carry the byte
	// count that was read from the native pointer.
	Size int `json:"size,omitempty"`
}

// OutParam describes one out/inout argument readback in a call response.
type OutParam struct {
	Index int `json:"index"`
	Type  Tag `json:"type"`
	Value any `json:"value"`
}

// CallResult is the success data of a call_function response.
type CallResult struct {
	Return    TaggedValue `json:"return"`
	OutParams []OutParam  `json:"out_params"`
}

// Direction of an argument.
type Direction string

const (
	DirIn    Direction = "in"
	DirOut   Direction = "out"
	DirInOut Direction = "inout"
)

// ArgSpec is one entry of a call_function args array.
type ArgSpec struct {
	Type       Tag             `json:"type"`
	Value      json.RawMessage `json:"value,omitempty"`
	Direction  Direction       `json:"direction,omitempty"`
	Size       int             `json:"size,omitempty"`
	TargetType Tag             `json:"target_type,omitempty"`
}

// Dir returns the argument direction, defaulting to "in".
func (a *ArgSpec) Dir() Direction {
	if a.Direction == "" {
		return DirIn
	}
	return a.Direction
}

// IsOutput reports whether the argument participates in out_params.
func (a *ArgSpec) IsOutput() bool {
	d := a.Dir()
	return d == DirOut || d == DirInOut
}

// IsInput reports whether the argument's value is decoded before the call.
func (a *ArgSpec) IsInput() bool {
	d := a.Dir()
	return d == DirIn || d == DirInOut
}

// Error kinds carried at the front of error_message.
const (
	// Protocol.
	KindBadJSON        = "bad_json"
	KindMissingField   = "missing_field"
	KindUnknownCommand = "unknown_command"

	// Type registry.
	KindTypeExists        = "type_exists"
	KindTypeNotFound      = "type_not_found"
	KindTypeInUse         = "type_in_use"
	KindUnknownMemberType = "unknown_member_type"
	KindEmptyDefinition   = "empty_definition"

	// Library registry.
	KindLoadFailed      = "load_failed"
	KindLibraryNotFound = "library_not_found"
	KindLibraryBusy     = "library_busy"
	KindSymbolNotFound  = "symbol_not_found"

	// Marshalling.
	KindValueOutOfRange  = "value_out_of_range"
	KindInvalidString    = "invalid_string"
	KindBufferOverflow   = "buffer_overflow"
	KindUnknownTypeTag   = "unknown_type_tag"
	KindMalformedArg     = "malformed_argument"

	// Invocation.
	KindSignatureBuildFailed = "signature_build_failed"
	KindInvocationFailed     = "invocation_failed"

	// Callbacks.
	KindCallbackNotFound    = "callback_not_found"
	KindCallbackInUse       = "callback_in_use"
	KindUnsupportedCallback = "unsupported_callback_shape"
)

// KindError is an error that maps to a wire error kind. The kind leads the
// rendered message so that controllers can match on it.
type KindError struct {
	Kind   string
	Detail string
}

func (e *KindError) Error() string {
	if e.Detail == "" {
		return e.Kind
	}
	return e.Kind + ": " + e.Detail
}

// NewError returns a bare KindError.
func NewError(kind string) *KindError {
	return &KindError{Kind: kind}
}

// Errorf returns a KindError with a formatted detail message.
func Errorf(kind, format string, args ...any) *KindError {
	return &KindError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
