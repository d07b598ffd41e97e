// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

package rpcproxy

import (
	"encoding/json"

	"github.com/kekxv/rpc-proxy-framework/internal/arena"
	"github.com/kekxv/rpc-proxy-framework/dispatch"
	"github.com/kekxv/rpc-proxy-framework/marshal"
	"github.com/kekxv/rpc-proxy-framework/types"
)

// handlerFunc handles one decoded request payload and returns the success
// data or an error mapped to an error response.
type handlerFunc func(c *Connection, payload json.RawMessage) (any, error)

// handlers is the static command table.
var handlers = map[string]handlerFunc{
	types.CmdLoadLibrary:        handleLoadLibrary,
	types.CmdUnloadLibrary:      handleUnloadLibrary,
	types.CmdRegisterStruct:     handleRegisterStruct,
	types.CmdUnregisterStruct:   handleUnregisterStruct,
	types.CmdRegisterCallback:   handleRegisterCallback,
	types.CmdUnregisterCallback: handleUnregisterCallback,
	types.CmdCallFunction:       handleCallFunction,
}

// route dispatches one request and builds the response envelope. Every
// error here is recoverable: the connection stays open.
func (c *Connection) route(req *types.Request) types.Response {
	handler, ok := handlers[req.Command]
	if !ok {
		requestsTotal.WithLabelValues(req.Command, types.StatusError).Inc()
		return errorResponse(req.RequestID, types.Errorf(types.KindUnknownCommand, "%q", req.Command))
	}

	data, err := handler(c, req.Payload)
	if err != nil {
		requestsTotal.WithLabelValues(req.Command, types.StatusError).Inc()
		return errorResponse(req.RequestID, err)
	}
	requestsTotal.WithLabelValues(req.Command, types.StatusSuccess).Inc()
	return types.Response{
		RequestID: req.RequestID,
		Status:    types.StatusSuccess,
		Data:      data,
	}
}

func errorResponse(requestID string, err error) types.Response {
	return types.Response{
		RequestID:    requestID,
		Status:       types.StatusError,
		ErrorMessage: err.Error(),
	}
}

func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return types.Errorf(types.KindMissingField, "payload")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return types.Errorf(types.KindMalformedArg, "payload: %v", err)
	}
	return nil
}

func handleLoadLibrary(c *Connection, payload json.RawMessage) (any, error) {
	var p types.LoadLibraryPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.Path == "" {
		return nil, types.Errorf(types.KindMissingField, "path")
	}
	id, err := c.server.libraries.Load(p.Path)
	if err != nil {
		return nil, err
	}
	c.log.WithField("library_id", id).WithField("path", p.Path).Info("library loaded")
	return types.LoadLibraryResult{LibraryID: id}, nil
}

func handleUnloadLibrary(c *Connection, payload json.RawMessage) (any, error) {
	var p types.UnloadLibraryPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.LibraryID == "" {
		return nil, types.Errorf(types.KindMissingField, "library_id")
	}
	if err := c.server.libraries.Unload(p.LibraryID); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func handleRegisterStruct(c *Connection, payload json.RawMessage) (any, error) {
	var p types.RegisterStructPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.StructName == "" {
		return nil, types.Errorf(types.KindMissingField, "struct_name")
	}
	layout, err := c.server.types.Register(p.StructName, p.Definition)
	if err != nil {
		return nil, err
	}
	return types.RegisterStructResult{
		Size:      int(layout.Size),
		Alignment: int(layout.Align),
	}, nil
}

func handleUnregisterStruct(c *Connection, payload json.RawMessage) (any, error) {
	var p types.UnregisterStructPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.StructName == "" {
		return nil, types.Errorf(types.KindMissingField, "struct_name")
	}
	if err := c.server.types.Unregister(p.StructName); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func handleRegisterCallback(c *Connection, payload json.RawMessage) (any, error) {
	var p types.RegisterCallbackPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.ReturnType == "" {
		return nil, types.Errorf(types.KindMissingField, "return_type")
	}
	args, err := types.ParseCallbackArgs(p.ArgsType)
	if err != nil {
		return nil, err
	}
	h, err := c.server.callbacks.Register(c.mc, p.ReturnType, args)
	if err != nil {
		return nil, err
	}
	c.log.WithField("callback_id", h.ID).Debug("callback registered")
	return types.RegisterCallbackResult{CallbackID: h.ID}, nil
}

func handleUnregisterCallback(c *Connection, payload json.RawMessage) (any, error) {
	var p types.UnregisterCallbackPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.CallbackID == "" {
		return nil, types.Errorf(types.KindMissingField, "callback_id")
	}
	if err := c.server.callbacks.Unregister(p.CallbackID); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func handleCallFunction(c *Connection, payload json.RawMessage) (any, error) {
	var p types.CallFunctionPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	switch {
	case p.LibraryID == "":
		return nil, types.Errorf(types.KindMissingField, "library_id")
	case p.FunctionName == "":
		return nil, types.Errorf(types.KindMissingField, "function_name")
	case p.ReturnType == "":
		return nil, types.Errorf(types.KindMissingField, "return_type")
	}

	lib, err := c.server.libraries.Get(p.LibraryID)
	if err != nil {
		return nil, err
	}
	lib.BeginCall()
	defer lib.EndCall()

	sym, err := lib.Symbol(p.FunctionName)
	if err != nil {
		return nil, err
	}

	// The whole call runs on the connection's locked OS thread; the
	// arena lives exactly as long as the call.
	var result *types.CallResult
	res := c.invoker.Call(func() any {
		ar := arena.New()
		defer ar.Release()

		m := marshal.New(ar, c.server.types, c.server.callbacks)
		frame, err := m.DecodeArgs(p.Args)
		if err != nil {
			return err
		}
		plan, err := m.PlanReturn(p.ReturnType)
		if err != nil {
			return err
		}
		ret, err := dispatch.Invoke(sym, plan, frame, ar)
		if err != nil {
			return err
		}
		result, err = m.EncodeResult(plan, ret, frame)
		return err
	})
	if err, ok := res.(error); ok && err != nil {
		return nil, err
	}
	if result == nil {
		return nil, types.Errorf(types.KindInvocationFailed, "connection worker stopped")
	}
	return result, nil
}
