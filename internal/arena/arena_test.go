package arena

import (
	"testing"
	"unsafe"
)

func TestAllocAlignment(t *testing.T) {
	a := New()
	defer a.Release()

	for _, align := range []uintptr{1, 2, 4, 8, 16} {
		p := a.Alloc(3, align)
		if uintptr(p)%align != 0 {
			t.Errorf("Alloc(3, %d) = %p, not aligned", align, p)
		}
	}
}

func TestAllocZeroed(t *testing.T) {
	a := New()
	defer a.Release()

	buf := a.Bytes(256)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, b)
		}
	}
}

func TestAllocDistinctRegions(t *testing.T) {
	a := New()
	defer a.Release()

	p1 := a.Alloc(8, 8)
	p2 := a.Alloc(8, 8)
	if p1 == p2 {
		t.Fatal("consecutive allocations share storage")
	}

	*(*uint64)(p1) = 0x1122334455667788
	*(*uint64)(p2) = 0x8877665544332211
	if *(*uint64)(p1) != 0x1122334455667788 {
		t.Error("write to second region clobbered the first")
	}
}

func TestAllocGrowsChunks(t *testing.T) {
	a := New()
	defer a.Release()

	// Larger than one chunk in aggregate; must span multiple chunks
	// without moving earlier storage.
	first := a.Bytes(1000)
	first[0] = 0xAB
	for i := 0; i < 200; i++ {
		_ = a.Bytes(1024)
	}
	if first[0] != 0xAB {
		t.Error("early region corrupted by growth")
	}
}

func TestAllocOversizedRequest(t *testing.T) {
	a := New()
	defer a.Release()

	big := a.Bytes(defaultChunkSize * 3)
	if len(big) != defaultChunkSize*3 {
		t.Fatalf("len = %d", len(big))
	}
	big[len(big)-1] = 0xFF
}

func TestCString(t *testing.T) {
	a := New()
	defer a.Release()

	p := a.CString("hello")
	got := unsafe.Slice((*byte)(p), 6)
	want := []byte{'h', 'e', 'l', 'l', 'o', 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestCStringEmpty(t *testing.T) {
	a := New()
	defer a.Release()

	p := a.CString("")
	if *(*byte)(p) != 0 {
		t.Error("empty CString not NUL-terminated")
	}
}

func TestReleaseResets(t *testing.T) {
	a := New()
	_ = a.Bytes(128)
	a.Release()

	if len(a.chunks) != 0 || a.off != 0 {
		t.Error("Release did not reset the arena")
	}
}
