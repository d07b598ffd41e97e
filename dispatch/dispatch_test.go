package dispatch

import (
	"encoding/json"
	"testing"
	"unsafe"

	"github.com/go-webgpu/goffi/ffi"

	"github.com/kekxv/rpc-proxy-framework/internal/arena"
	"github.com/kekxv/rpc-proxy-framework/marshal"
	"github.com/kekxv/rpc-proxy-framework/registry"
	"github.com/kekxv/rpc-proxy-framework/types"
)

type noCallbacks struct{}

func (noCallbacks) CodePointer(string) (uintptr, error) {
	return 0, types.NewError(types.KindCallbackNotFound)
}

// loadCRuntime opens the platform C runtime, skipping the test on systems
// where none of the well-known names resolve.
func loadCRuntime(t *testing.T) unsafe.Pointer {
	t.Helper()
	for _, name := range []string{"libc.so.6", "libc.so", "libSystem.B.dylib", "msvcrt.dll"} {
		if handle, err := ffi.LoadLibrary(name); err == nil {
			t.Cleanup(func() { _ = ffi.FreeLibrary(handle) })
			return handle
		}
	}
	t.Skip("no C runtime available for integration test")
	return nil
}

func callSymbol(t *testing.T, handle unsafe.Pointer, name string, ret types.Tag, argsJSON string) *types.CallResult {
	t.Helper()
	sym, err := ffi.GetSymbol(handle, name)
	if err != nil {
		t.Skipf("symbol %q not resolvable: %v", name, err)
	}

	var args []types.ArgSpec
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}

	ar := arena.New()
	defer ar.Release()
	m := marshal.New(ar, registry.NewTypeRegistry(), noCallbacks{})

	frame, err := m.DecodeArgs(args)
	if err != nil {
		t.Fatalf("DecodeArgs: %v", err)
	}
	plan, err := m.PlanReturn(ret)
	if err != nil {
		t.Fatalf("PlanReturn: %v", err)
	}
	slot, err := Invoke(sym, plan, frame, ar)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	result, err := m.EncodeResult(plan, slot, frame)
	if err != nil {
		t.Fatalf("EncodeResult: %v", err)
	}
	return result
}

func TestInvokeIntReturn(t *testing.T) {
	handle := loadCRuntime(t)
	result := callSymbol(t, handle, "abs", types.TagInt32, `[{"type":"int32","value":-5}]`)
	if result.Return.Value != int32(5) {
		t.Errorf("abs(-5) = %v, want 5", result.Return.Value)
	}
}

func TestInvokeStringArg(t *testing.T) {
	handle := loadCRuntime(t)
	result := callSymbol(t, handle, "strlen", types.TagUint64, `[{"type":"string","value":"Hello, World"}]`)
	if result.Return.Value != uint64(12) {
		t.Errorf("strlen = %v, want 12", result.Return.Value)
	}
}

func TestInvokeDoubleReturn(t *testing.T) {
	handle := loadCRuntime(t)
	result := callSymbol(t, handle, "fabs", types.TagDouble, `[{"type":"double","value":-2.5}]`)
	if result.Return.Value != 2.5 {
		t.Errorf("fabs(-2.5) = %v, want 2.5", result.Return.Value)
	}
}
