// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

// Package types defines the wire-level vocabulary shared by every layer of
// the executor: primitive type tags, tagged values, argument descriptors,
// the request/response/event envelopes, and the error kinds carried in
// error responses.
//
// The open set of named aggregate tags is resolved by the registry package;
// this package only knows that a tag which is not primitive must be looked
// up elsewhere.
package types
