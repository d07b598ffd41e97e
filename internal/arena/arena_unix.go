// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

//go:build unix

package arena

import "golang.org/x/sys/unix"

// allocChunk maps size bytes of zeroed anonymous memory. Falling back to
// the Go heap on mapping failure keeps a call alive at the cost of the
// off-heap guarantee.
func allocChunk(size uintptr) []byte {
	mem, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return make([]byte, size)
	}
	return mem
}

func freeChunk(mem []byte) {
	if err := unix.Munmap(mem); err != nil {
		// Heap fallback chunk; the GC owns it.
		_ = err
	}
}
