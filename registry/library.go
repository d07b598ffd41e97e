// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

package registry

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/go-webgpu/goffi/ffi"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kekxv/rpc-proxy-framework/types"
)

// symbolCacheSize bounds the per-library resolved-symbol cache.
const symbolCacheSize = 256

// Library is one loaded image. Symbol resolution is lazy and cached.
type Library struct {
	ID   string
	Path string

	handle   unsafe.Pointer
	symbols  *lru.Cache[string, unsafe.Pointer]
	refcount int
	inFlight atomic.Int64
}

// Symbol resolves name within the image, consulting the cache first.
func (l *Library) Symbol(name string) (unsafe.Pointer, error) {
	if sym, ok := l.symbols.Get(name); ok {
		return sym, nil
	}
	sym, err := ffi.GetSymbol(l.handle, name)
	if err != nil {
		return nil, types.Errorf(types.KindSymbolNotFound, "%q in %s: %v", name, l.Path, err)
	}
	l.symbols.Add(name, sym)
	return sym, nil
}

// BeginCall marks an invocation in flight; it blocks unloading.
func (l *Library) BeginCall() { l.inFlight.Add(1) }

// EndCall releases a BeginCall.
func (l *Library) EndCall() { l.inFlight.Add(-1) }

// LibraryRegistry is the process-wide path-keyed handle cache.
type LibraryRegistry struct {
	mu     sync.Mutex
	byID   map[string]*Library
	byPath map[string]*Library
}

// NewLibraryRegistry returns an empty registry.
func NewLibraryRegistry() *LibraryRegistry {
	return &LibraryRegistry{
		byID:   make(map[string]*Library),
		byPath: make(map[string]*Library),
	}
}

// Load opens the image at path, or bumps the refcount of an existing load
// of the same canonical path. The returned identifier is stable for the
// image's refcount lifetime.
func (r *LibraryRegistry) Load(path string) (string, error) {
	canonical := canonicalPath(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if lib, ok := r.byPath[canonical]; ok {
		lib.refcount++
		return lib.ID, nil
	}

	handle, err := ffi.LoadLibrary(path)
	if err != nil {
		return "", types.Errorf(types.KindLoadFailed, "%v", err)
	}

	symbols, err := lru.New[string, unsafe.Pointer](symbolCacheSize)
	if err != nil {
		_ = ffi.FreeLibrary(handle)
		return "", types.Errorf(types.KindLoadFailed, "symbol cache: %v", err)
	}

	lib := &Library{
		ID:       "lib-" + uuid.NewString(),
		Path:     canonical,
		handle:   handle,
		symbols:  symbols,
		refcount: 1,
	}
	r.byID[lib.ID] = lib
	r.byPath[canonical] = lib
	return lib.ID, nil
}

// Get returns the library registered under id.
func (r *LibraryRegistry) Get(id string) (*Library, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lib, ok := r.byID[id]
	if !ok {
		return nil, types.Errorf(types.KindLibraryNotFound, "no library with id %q", id)
	}
	return lib, nil
}

// Unload decrements the refcount and closes the image when it reaches
// zero. Teardown is refused while calls into the image are in flight.
func (r *LibraryRegistry) Unload(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lib, ok := r.byID[id]
	if !ok {
		return types.Errorf(types.KindLibraryNotFound, "no library with id %q", id)
	}
	if lib.refcount == 1 && lib.inFlight.Load() > 0 {
		return types.Errorf(types.KindLibraryBusy, "%s has calls in flight", lib.Path)
	}

	lib.refcount--
	if lib.refcount > 0 {
		return nil
	}

	delete(r.byID, id)
	delete(r.byPath, lib.Path)
	if err := ffi.FreeLibrary(lib.handle); err != nil {
		return types.Errorf(types.KindLoadFailed, "close %s: %v", lib.Path, err)
	}
	return nil
}

// CloseAll force-closes every image. Shutdown only.
func (r *LibraryRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, lib := range r.byID {
		_ = ffi.FreeLibrary(lib.handle)
		delete(r.byID, id)
		delete(r.byPath, lib.Path)
	}
}

func canonicalPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
