// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

package types

import "encoding/json"

// StructMember is one (name, type) pair of a struct definition.
type StructMember struct {
	Name string `json:"name"`
	Type Tag    `json:"type"`
}

// Command payloads.

type LoadLibraryPayload struct {
	Path string `json:"path"`
}

type UnloadLibraryPayload struct {
	LibraryID string `json:"library_id"`
}

type RegisterStructPayload struct {
	StructName string         `json:"struct_name"`
	Definition []StructMember `json:"definition"`
}

type UnregisterStructPayload struct {
	StructName string `json:"struct_name"`
}

type RegisterCallbackPayload struct {
	ReturnType Tag               `json:"return_type"`
	ArgsType   []json.RawMessage `json:"args_type"`
}

type UnregisterCallbackPayload struct {
	CallbackID string `json:"callback_id"`
}

type CallFunctionPayload struct {
	LibraryID    string    `json:"library_id"`
	FunctionName string    `json:"function_name"`
	ReturnType   Tag       `json:"return_type"`
	Args         []ArgSpec `json:"args"`
}

// Command success data shapes.

type LoadLibraryResult struct {
	LibraryID string `json:"library_id"`
}

type RegisterStructResult struct {
	Size      int `json:"size"`
	Alignment int `json:"alignment"`
}

type RegisterCallbackResult struct {
	CallbackID string `json:"callback_id"`
}

// InvokeCallbackPayload is the payload of an invoke_callback event.
type InvokeCallbackPayload struct {
	CallbackID string        `json:"callback_id"`
	Args       []TaggedValue `json:"args"`
}
