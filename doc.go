// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

// Package rpcproxy implements the executor: a long-running process that
// exposes dynamic libraries to remote controllers over a length-framed
// JSON message channel.
//
// A controller connects to the executor's unix stream socket, registers
// aggregate types and callbacks, loads libraries, and invokes functions
// through a generic C ABI dispatcher. Mutations through out parameters
// travel back in the response; native code invoking a registered callback
// emits an asynchronous invoke_callback event on the owning connection.
//
// # Architecture
//
// The Server accepts connections and runs one worker per client. Workers
// handle requests serially but share their write side with the callback
// trampoline pool, so every frame write is serialised by a per-connection
// mutex. The type registry, library registry and callback pool are
// process-wide; per-call argument storage lives in an arena released when
// the call completes.
//
// Loaded code runs in-process with full trust. The executor is not a
// sandbox.
package rpcproxy
