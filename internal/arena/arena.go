// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

// Package arena provides a bump allocator whose lifetime equals one native
// call. Every transient byte region backing a call frame (decoded strings,
// struct bodies, buffer bodies, pointer targets, return slots) is placed
// here so that it is released exactly once, wholesale, at call completion.
//
// On unix builds chunks are anonymous mmap'd pages, keeping the storage
// handed to native code outside the Go heap for the duration of the call.
package arena

import "unsafe"

const defaultChunkSize = 64 * 1024

// Arena is a chunked bump allocator. It is owned by a single worker and is
// not safe for concurrent use.
type Arena struct {
	chunks []chunk
	// Bump state of the active (last) chunk.
	off uintptr
}

type chunk struct {
	mem []byte
}

// New returns an empty arena. Chunks are mapped lazily on first Alloc.
func New() *Arena {
	return &Arena{}
}

// Alloc returns a zeroed region of size bytes aligned to align, which must
// be a power of two. Size zero yields a valid, unique-enough pointer into
// the current chunk.
func (a *Arena) Alloc(size, align uintptr) unsafe.Pointer {
	if align == 0 {
		align = 1
	}
	if len(a.chunks) == 0 {
		a.grow(size)
	}

	cur := &a.chunks[len(a.chunks)-1]
	base := uintptr(unsafe.Pointer(&cur.mem[0]))
	off := (base + a.off + align - 1) &^ (align - 1)
	end := off + size
	if end > base+uintptr(len(cur.mem)) {
		a.grow(size)
		cur = &a.chunks[len(a.chunks)-1]
		base = uintptr(unsafe.Pointer(&cur.mem[0]))
		off = (base + align - 1) &^ (align - 1)
		end = off + size
	}
	a.off = end - base

	p := unsafe.Add(unsafe.Pointer(&cur.mem[0]), off-base)
	clear(unsafe.Slice((*byte)(p), size))
	return p
}

// Bytes allocates n bytes with byte alignment and returns them as a slice
// backed by arena storage. A request for zero bytes yields a one-byte slice.
func (a *Arena) Bytes(n int) []byte {
	if n == 0 {
		n = 1
	}
	p := a.Alloc(uintptr(n), 1)
	return unsafe.Slice((*byte)(p), n)
}

// CString copies s into the arena with a trailing NUL and returns the
// address of the first byte.
func (a *Arena) CString(s string) unsafe.Pointer {
	buf := a.Bytes(len(s) + 1)
	copy(buf, s)
	buf[len(s)] = 0
	return unsafe.Pointer(&buf[0])
}

// Release unmaps every chunk. The arena must not be used afterwards;
// pointers into it are dead.
func (a *Arena) Release() {
	for i := range a.chunks {
		freeChunk(a.chunks[i].mem)
	}
	a.chunks = nil
	a.off = 0
}

func (a *Arena) grow(min uintptr) {
	size := uintptr(defaultChunkSize)
	// Oversized requests get a dedicated chunk; keep headroom for the
	// alignment pad.
	for size < min+64 {
		size *= 2
	}
	a.chunks = append(a.chunks, chunk{mem: allocChunk(size)})
	a.off = 0
}
