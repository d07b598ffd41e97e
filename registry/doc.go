// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

// Package registry holds the two process-wide registries of the executor:
// named aggregate type definitions with their computed layouts, and loaded
// dynamic library images with their refcounts and symbol caches.
//
// Both registries are shared across all connections. The type registry is
// guarded by a readers-writer lock (mutations are rare, marshalling reads
// are frequent); the library registry by a plain mutex.
package registry
