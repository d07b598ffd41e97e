package callback

import (
	"encoding/base64"
	"errors"
	"reflect"
	"sync"
	"testing"
	"unsafe"

	"github.com/kekxv/rpc-proxy-framework/types"
)

type fakeSink struct {
	mu     sync.Mutex
	events []types.InvokeCallbackPayload
	err    error
}

func (s *fakeSink) SendEvent(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if event != types.EventInvokeCallback {
		return errors.New("unexpected event " + event)
	}
	s.events = append(s.events, payload.(types.InvokeCallbackPayload))
	return nil
}

func kindOf(t *testing.T, err error) string {
	t.Helper()
	var kerr *types.KindError
	if !errors.As(err, &kerr) {
		t.Fatalf("error %v is not a KindError", err)
	}
	return kerr.Kind
}

func prim(tag types.Tag) types.CallbackArg {
	return types.CallbackArg{Type: tag, SizeArgIndex: -1}
}

func TestRegisterAndResolve(t *testing.T) {
	pool := NewPool()
	sink := &fakeSink{}

	h, err := pool.Register(sink, types.TagVoid, []types.CallbackArg{prim(types.TagString), prim(types.TagInt32)})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if h.CodePointer() == 0 {
		t.Fatal("trampoline code pointer is zero")
	}

	code, err := pool.CodePointer(h.ID)
	if err != nil {
		t.Fatalf("CodePointer() error = %v", err)
	}
	if code != h.CodePointer() {
		t.Error("CodePointer mismatch")
	}

	if _, err := pool.CodePointer("cb-missing"); kindOf(t, err) != types.KindCallbackNotFound {
		t.Errorf("unknown id: got %v", err)
	}
}

func TestUnregisterAndSlotReuse(t *testing.T) {
	pool := NewPool()
	sink := &fakeSink{}
	sig := []types.CallbackArg{prim(types.TagInt32)}

	h1, err := pool.Register(sink, types.TagVoid, sig)
	if err != nil {
		t.Fatal(err)
	}
	code := h1.CodePointer()
	if err := pool.Unregister(h1.ID); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	if kindOf(t, pool.Unregister(h1.ID)) != types.KindCallbackNotFound {
		t.Error("double unregister should report callback_not_found")
	}

	// An identical signature rebinds the parked slot.
	h2, err := pool.Register(sink, types.TagVoid, sig)
	if err != nil {
		t.Fatal(err)
	}
	if h2.CodePointer() != code {
		t.Error("parked trampoline slot was not reused")
	}
	if h2.ID == h1.ID {
		t.Error("reused slot must mint a fresh callback id")
	}
}

func TestUnregisterWhileInFlight(t *testing.T) {
	pool := NewPool()
	h, err := pool.Register(&fakeSink{}, types.TagVoid, []types.CallbackArg{prim(types.TagInt32)})
	if err != nil {
		t.Fatal(err)
	}

	h.inFlight.Add(1)
	if kindOf(t, pool.Unregister(h.ID)) != types.KindCallbackInUse {
		t.Error("in-flight unregister should report callback_in_use")
	}
	h.inFlight.Add(-1)
	if err := pool.Unregister(h.ID); err != nil {
		t.Errorf("unregister after return: %v", err)
	}
}

func TestReleaseConnection(t *testing.T) {
	pool := NewPool()
	mine := &fakeSink{}
	other := &fakeSink{}

	h1, err := pool.Register(mine, types.TagVoid, []types.CallbackArg{prim(types.TagInt32)})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := pool.Register(other, types.TagVoid, []types.CallbackArg{prim(types.TagInt32)})
	if err != nil {
		t.Fatal(err)
	}

	pool.ReleaseConnection(mine)
	if _, err := pool.CodePointer(h1.ID); err == nil {
		t.Error("released connection's handle still resolves")
	}
	if _, err := pool.CodePointer(h2.ID); err != nil {
		t.Errorf("other connection's handle was dropped: %v", err)
	}
	if pool.Len() != 1 {
		t.Errorf("Len() = %d, want 1", pool.Len())
	}
}

func TestRegisterRejectsStringReturn(t *testing.T) {
	pool := NewPool()
	_, err := pool.Register(&fakeSink{}, types.TagString, nil)
	if kindOf(t, err) != types.KindUnsupportedCallback {
		t.Errorf("string return: got %v", err)
	}
}

func TestInvokeSerialisesArgs(t *testing.T) {
	pool := NewPool()
	sink := &fakeSink{}
	h, err := pool.Register(sink, types.TagVoid, []types.CallbackArg{prim(types.TagString), prim(types.TagInt32)})
	if err != nil {
		t.Fatal(err)
	}

	msg := []byte("Message from native code, call 1\x00")
	h.slot.invoke([]reflect.Value{
		reflect.ValueOf(uintptr(unsafe.Pointer(&msg[0]))),
		reflect.ValueOf(uintptr(1)),
	})

	if len(sink.events) != 1 {
		t.Fatalf("events = %d, want 1", len(sink.events))
	}
	ev := sink.events[0]
	if ev.CallbackID != h.ID {
		t.Errorf("callback_id = %q, want %q", ev.CallbackID, h.ID)
	}
	if ev.Args[0].Type != types.TagString || ev.Args[0].Value != "Message from native code, call 1" {
		t.Errorf("args[0] = %+v", ev.Args[0])
	}
	if ev.Args[1].Type != types.TagInt32 || ev.Args[1].Value != int32(1) {
		t.Errorf("args[1] = %+v", ev.Args[1])
	}
}

func TestInvokeOrderPreserved(t *testing.T) {
	pool := NewPool()
	sink := &fakeSink{}
	h, err := pool.Register(sink, types.TagVoid, []types.CallbackArg{prim(types.TagInt32)})
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 3; i++ {
		h.slot.invoke([]reflect.Value{reflect.ValueOf(uintptr(i))})
	}
	if len(sink.events) != 3 {
		t.Fatalf("events = %d, want 3", len(sink.events))
	}
	for i, ev := range sink.events {
		if ev.Args[0].Value != int32(i+1) {
			t.Errorf("event %d carries %v, want %d", i, ev.Args[0].Value, i+1)
		}
	}
}

func TestInvokeAfterUnbindIsDropped(t *testing.T) {
	pool := NewPool()
	sink := &fakeSink{}
	h, err := pool.Register(sink, types.TagVoid, []types.CallbackArg{prim(types.TagInt32)})
	if err != nil {
		t.Fatal(err)
	}
	slot := h.slot
	if err := pool.Unregister(h.ID); err != nil {
		t.Fatal(err)
	}

	slot.invoke([]reflect.Value{reflect.ValueOf(uintptr(5))})
	if len(sink.events) != 0 {
		t.Error("unbound trampoline still delivered an event")
	}
}

func TestSerialiseBufferPtrFixed(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	specs := []types.CallbackArg{
		{Type: types.TagBufferPtr, FixedSize: 4, SizeArgIndex: -1},
		prim(types.TagPointer),
	}
	callArgs := []reflect.Value{
		reflect.ValueOf(uintptr(unsafe.Pointer(&data[0]))),
		reflect.ValueOf(uintptr(0x5678)),
	}

	got := serialiseArg(specs, callArgs, 0)
	if got.Type != types.TagBufferPtr || got.Size != 4 {
		t.Fatalf("serialised = %+v", got)
	}
	decoded, err := base64.StdEncoding.DecodeString(got.Value.(string))
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != string(data) {
		t.Errorf("decoded = %x, want %x", decoded, data)
	}

	ptr := serialiseArg(specs, callArgs, 1)
	if ptr.Type != types.TagPointer || ptr.Value != uint64(0x5678) {
		t.Errorf("pointer arg = %+v", ptr)
	}
}

func TestSerialiseBufferPtrDynamic(t *testing.T) {
	data := []byte("DynamicData123")
	specs := []types.CallbackArg{
		prim(types.TagInt32),
		{Type: types.TagBufferPtr, FixedSize: 0, SizeArgIndex: 2},
		prim(types.TagInt32),
		prim(types.TagPointer),
	}
	callArgs := []reflect.Value{
		reflect.ValueOf(uintptr(99)),
		reflect.ValueOf(uintptr(unsafe.Pointer(&data[0]))),
		reflect.ValueOf(uintptr(len(data))),
		reflect.ValueOf(uintptr(0x1234)),
	}

	got := serialiseArg(specs, callArgs, 1)
	decoded, err := base64.StdEncoding.DecodeString(got.Value.(string))
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != "DynamicData123" {
		t.Errorf("decoded = %q", decoded)
	}
	if got.Size != len(data) {
		t.Errorf("size = %d, want %d", got.Size, len(data))
	}
}

func TestSerialiseSignedTruncation(t *testing.T) {
	specs := []types.CallbackArg{prim(types.TagInt8)}
	got := serialiseArg(specs, []reflect.Value{reflect.ValueOf(^uintptr(0))}, 0)
	if got.Value != int8(-1) {
		t.Errorf("int8 arg = %v, want -1", got.Value)
	}
}

func TestSignatureKey(t *testing.T) {
	a := signatureKey(types.TagVoid, []types.CallbackArg{prim(types.TagInt32)})
	b := signatureKey(types.TagVoid, []types.CallbackArg{prim(types.TagInt64)})
	c := signatureKey(types.TagVoid, []types.CallbackArg{
		{Type: types.TagBufferPtr, FixedSize: 4, SizeArgIndex: -1},
	})
	d := signatureKey(types.TagVoid, []types.CallbackArg{
		{Type: types.TagBufferPtr, FixedSize: 8, SizeArgIndex: -1},
	})

	keys := map[string]bool{a: true, b: true, c: true, d: true}
	if len(keys) != 4 {
		t.Errorf("signature keys collide: %q %q %q %q", a, b, c, d)
	}
}
