package kernel

import (
	"bytes"
	"testing"

	"github.com/tern-os/tern/models/cpu"
)

func testSpace(t *testing.T, frames, pages int) (*AddrSpace, *FrameAlloc) {
	phys := cpu.NewPhys(frames)
	alloc := NewFrameAlloc(frames)
	space, err := NewAddrSpace(phys, alloc, pages)
	if err != nil {
		t.Fatal("NewAddrSpace() failed:", err)
	}
	return space, alloc
}

func TestSpaceReadWrite(t *testing.T) {
	space, _ := testSpace(t, 4, 3)
	// span a page boundary
	data := bytes.Repeat([]byte{0x5a}, 600)
	addr := uint64(cpu.PageSize - 300)
	if n := space.Write(addr, data); n != len(data) {
		t.Fatalf("Write() = %d, expecting %d", n, len(data))
	}
	buf := make([]byte, len(data))
	if n := space.Read(addr, buf); n != len(buf) {
		t.Fatalf("Read() = %d, expecting %d", n, len(buf))
	}
	if !bytes.Equal(buf, data) {
		t.Fatal("read back mismatch across page boundary")
	}
	for _, vpn := range []int{0, 1} {
		e := space.Entry(vpn)
		if !e.Used || !e.Dirty {
			t.Fatalf("page %d not marked used/dirty: %+v", vpn, e)
		}
	}
	if e := space.Entry(2); e.Used || e.Dirty {
		t.Fatalf("untouched page marked: %+v", e)
	}
}

func TestSpaceFault(t *testing.T) {
	space, _ := testSpace(t, 4, 2)
	// a copy ending past the mapped range stops at the boundary
	data := make([]byte, 100)
	addr := uint64(2*cpu.PageSize - 40)
	if n := space.Write(addr, data); n != 40 {
		t.Fatalf("Write() past end = %d, expecting 40", n)
	}
	if n := space.Read(uint64(2*cpu.PageSize), data); n != 0 {
		t.Fatalf("Read() outside range = %d, expecting 0", n)
	}
	if space.Entry(-1) != nil || space.Entry(2) != nil {
		t.Fatal("Entry() returned a mapping outside the table")
	}
}

func TestSpaceReadOnly(t *testing.T) {
	space, _ := testSpace(t, 4, 2)
	space.Entry(0).ReadOnly = true
	if n := space.Write(0, []byte{1, 2, 3}); n != 0 {
		t.Fatalf("Write() to read-only page = %d, expecting 0", n)
	}
	// a write running into a read-only page stops there
	data := make([]byte, 100)
	if n := space.Write(uint64(2*cpu.PageSize-40), data); n != 40 {
		t.Fatalf("Write() = %d, expecting 40", n)
	}
	if n := space.Read(0, data); n != len(data) {
		t.Fatalf("Read() from read-only page = %d, expecting %d", n, len(data))
	}
}

func TestSpaceReadString(t *testing.T) {
	space, _ := testSpace(t, 4, 2)
	space.Write(100, []byte("hello\x00"))
	if s, ok := space.ReadString(100, 256); !ok || s != "hello" {
		t.Fatalf("ReadString() = %q, %v", s, ok)
	}
	if s, ok := space.ReadString(100, 3); ok {
		t.Fatalf("ReadString() found %q past the bound", s)
	}
	// terminator exactly at the bound is still in range
	if s, ok := space.ReadString(100, 5); !ok || s != "hello" {
		t.Fatalf("ReadString() = %q, %v at exact bound", s, ok)
	}
	// unterminated string through the end of memory
	if _, ok := space.ReadString(uint64(2*cpu.PageSize-2), 256); ok {
		t.Fatal("ReadString() succeeded off the end of memory")
	}
}

func TestSpaceRelease(t *testing.T) {
	space, alloc := testSpace(t, 4, 3)
	if alloc.Available() != 1 {
		t.Fatalf("Available() = %d, expecting 1", alloc.Available())
	}
	space.Release()
	if alloc.Available() != 4 {
		t.Fatalf("Available() = %d after Release, expecting 4", alloc.Available())
	}
	if n := space.Read(0, make([]byte, 8)); n != 0 {
		t.Fatalf("Read() = %d on a released space", n)
	}
	// release is idempotent
	space.Release()
	if alloc.Available() != 4 {
		t.Fatal("double Release() freed frames twice")
	}
}
