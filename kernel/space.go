package kernel

import (
	"github.com/tern-os/tern/models/cpu"
)

// TranslationEntry maps one virtual page to a physical frame. Entries are
// exclusively owned by one process's table; a frame never appears in two
// tables at once.
type TranslationEntry struct {
	VPN      int
	PPN      int
	Valid    bool
	ReadOnly bool
	Used     bool
	Dirty    bool
}

// AddrSpace is a process's page table over the machine's physical memory.
// The table is contiguous from virtual page 0, built at load time, and
// torn down exactly once at exit.
type AddrSpace struct {
	phys   *cpu.Phys
	frames *FrameAlloc
	table  []TranslationEntry
}

// NewAddrSpace acquires numPages frames and maps them from virtual page 0.
func NewAddrSpace(phys *cpu.Phys, frames *FrameAlloc, numPages int) (*AddrSpace, error) {
	ppns, err := frames.AllocN(numPages)
	if err != nil {
		return nil, err
	}
	table := make([]TranslationEntry, numPages)
	for i := range table {
		table[i] = TranslationEntry{VPN: i, PPN: ppns[i], Valid: true}
	}
	return &AddrSpace{phys: phys, frames: frames, table: table}, nil
}

func (as *AddrSpace) NumPages() int {
	return len(as.table)
}

// Entry returns the table entry for one virtual page, or nil outside the
// mapped range.
func (as *AddrSpace) Entry(vpn int) *TranslationEntry {
	if vpn < 0 || vpn >= len(as.table) {
		return nil
	}
	return &as.table[vpn]
}

// Read copies from virtual memory into p, walking the table one page at a
// time and clamping each sub-copy at the page boundary. The copy stops at
// the first invalid page; the count copied so far is returned and a fault
// never fails the caller.
func (as *AddrSpace) Read(vaddr uint64, p []byte) int {
	return as.copy(vaddr, p, false)
}

// Write copies p into virtual memory with the same walk as Read, stopping
// at the first invalid or read-only page.
func (as *AddrSpace) Write(vaddr uint64, p []byte) int {
	return as.copy(vaddr, p, true)
}

func (as *AddrSpace) copy(vaddr uint64, p []byte, write bool) int {
	total := 0
	for len(p) > 0 {
		vpn := int(vaddr / cpu.PageSize)
		off := int(vaddr % cpu.PageSize)
		if vpn >= len(as.table) {
			break
		}
		e := &as.table[vpn]
		if !e.Valid || (write && e.ReadOnly) {
			break
		}
		frame, err := as.phys.Frame(e.PPN)
		if err != nil {
			break
		}
		n := cpu.PageSize - off
		if n > len(p) {
			n = len(p)
		}
		e.Used = true
		if write {
			e.Dirty = true
			copy(frame[off:off+n], p[:n])
		} else {
			copy(p[:n], frame[off:off+n])
		}
		vaddr += uint64(n)
		p = p[n:]
		total += n
	}
	return total
}

// ReadString reads a NUL-terminated string of at most max bytes. A missing
// terminator within the bound produces no string.
func (as *AddrSpace) ReadString(vaddr uint64, max int) (string, bool) {
	buf := make([]byte, max+1)
	n := as.Read(vaddr, buf)
	for i := 0; i < n; i++ {
		if buf[i] == 0 {
			return string(buf[:i]), true
		}
	}
	return "", false
}

// Release returns every frame to the allocator and invalidates the table.
func (as *AddrSpace) Release() {
	for i := range as.table {
		e := &as.table[i]
		if e.Valid {
			as.frames.Free(e.PPN)
			e.Valid = false
		}
	}
}
