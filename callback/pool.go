// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

// Package callback manages the trampoline pool: executable closures handed
// to native code as function pointers. When native code invokes one, the
// generic trampoline serialises the observed arguments and pushes an
// invoke_callback event through the owning connection, then returns the
// zero value of the declared return type. Delivery is fire-and-forget;
// the controller is never consulted for a result.
//
// Trampoline slots are process-lifetime executable memory, so released
// handles park their slot on a per-signature free list and later
// registrations with an identical signature rebind it.
package callback

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/kekxv/rpc-proxy-framework/types"
)

// EventSink delivers one event frame atomically. Implemented by the
// connection's framed transport; writes serialise on its write mutex.
type EventSink interface {
	SendEvent(event string, payload any) error
}

// Handle is one registered callback: identifier, signature, owning
// connection and the trampoline slot bound to it.
type Handle struct {
	ID     string
	Return types.Tag
	Args   []types.CallbackArg

	sink     EventSink
	slot     *slot
	inFlight atomic.Int32
}

// CodePointer is the function pointer native code receives.
func (h *Handle) CodePointer() uintptr { return h.slot.code }

// slot is one piece of executable trampoline memory. Its binding is
// swapped as handles come and go; a nil binding means the slot is parked.
type slot struct {
	code    uintptr
	binding atomic.Pointer[Handle]
}

// Pool is the process-wide directory of callback handles.
type Pool struct {
	mu      sync.Mutex
	handles map[string]*Handle
	free    map[string][]*slot
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{
		handles: make(map[string]*Handle),
		free:    make(map[string][]*slot),
	}
}

// Register validates the signature, binds a trampoline slot (recycled when
// one with the same signature is parked), and returns the new handle.
func (p *Pool) Register(sink EventSink, ret types.Tag, args []types.CallbackArg) (*Handle, error) {
	if ret != types.TagVoid && !(ret.IsNumeric() || ret == types.TagBool || ret == types.TagPointer) {
		return nil, types.Errorf(types.KindUnsupportedCallback, "unsupported return type %q", ret)
	}
	if ret != types.TagVoid {
		// Without a correlated reply message there is nothing to return;
		// the trampoline yields the zero value.
		log.WithField("return_type", ret).Warn("callback return values are not delivered to the controller; zero value will be returned")
	}

	h := &Handle{
		ID:     "cb-" + uuid.NewString(),
		Return: ret,
		Args:   args,
		sink:   sink,
	}

	key := signatureKey(ret, args)

	p.mu.Lock()
	defer p.mu.Unlock()

	if parked := p.free[key]; len(parked) > 0 {
		h.slot = parked[len(parked)-1]
		p.free[key] = parked[:len(parked)-1]
	} else {
		s, err := newSlot(ret, args)
		if err != nil {
			return nil, err
		}
		h.slot = s
	}
	h.slot.binding.Store(h)
	p.handles[h.ID] = h
	return h, nil
}

// Unregister detaches a handle and parks its slot. It refuses while the
// trampoline is on any native stack.
func (p *Pool) Unregister(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unregisterLocked(id)
}

func (p *Pool) unregisterLocked(id string) error {
	h, ok := p.handles[id]
	if !ok {
		return types.Errorf(types.KindCallbackNotFound, "no callback with id %q", id)
	}
	if h.inFlight.Load() > 0 {
		return types.Errorf(types.KindCallbackInUse, "callback %q has invocations in flight", id)
	}

	h.slot.binding.Store(nil)
	key := signatureKey(h.Return, h.Args)
	p.free[key] = append(p.free[key], h.slot)
	delete(p.handles, id)
	return nil
}

// CodePointer resolves a callback id to its trampoline for the
// marshaller.
func (p *Pool) CodePointer(id string) (uintptr, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[id]
	if !ok {
		return 0, types.Errorf(types.KindCallbackNotFound, "no callback with id %q", id)
	}
	return h.slot.code, nil
}

// ReleaseConnection drops every handle owned by sink. Best effort: a
// handle whose trampoline is mid-invocation is detached anyway, since the
// connection it would report to is gone.
func (p *Pool) ReleaseConnection(sink EventSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, h := range p.handles {
		if h.sink != sink {
			continue
		}
		h.slot.binding.Store(nil)
		key := signatureKey(h.Return, h.Args)
		p.free[key] = append(p.free[key], h.slot)
		delete(p.handles, id)
	}
}

// Len reports the number of live handles.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

func signatureKey(ret types.Tag, args []types.CallbackArg) string {
	var b strings.Builder
	b.WriteString(string(ret))
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(string(a.Type))
		if a.Type == types.TagBufferPtr {
			// The size source changes serialisation but not the native
			// signature; keep it in the key so rebinding preserves both.
			fmt.Fprintf(&b, "[fixed=%d,arg=%d]", a.FixedSize, a.SizeArgIndex)
		}
	}
	b.WriteByte(')')
	return b.String()
}
