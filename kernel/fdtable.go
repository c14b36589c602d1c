package kernel

// NumFds is the fixed capacity of a process's descriptor table.
const NumFds = 16

// FileDescriptor binds one table slot to an open file. A slot is free
// when its handle is absent.
type FileDescriptor struct {
	Name   string
	File   File
	Pos    int64
	Unlink bool
}

// FdTable is a process's open-file table. It is exclusively owned by one
// process thread and needs no locking.
type FdTable struct {
	ns    Namespace
	slots [NumFds]FileDescriptor
}

func NewFdTable(ns Namespace) *FdTable {
	return &FdTable{ns: ns}
}

// Get returns the bound descriptor for fd, or nil for an out-of-range or
// unbound handle.
func (t *FdTable) Get(fd int) *FileDescriptor {
	if fd < 0 || fd >= NumFds || t.slots[fd].File == nil {
		return nil
	}
	return &t.slots[fd]
}

// Open binds name to the lowest free slot, with cursor 0. Returns -1 when
// the namespace open fails, no slot is free, or the slot is still flagged
// for a deferred unlink.
func (t *FdTable) Open(name string, create bool) int {
	fd := -1
	for i := range t.slots {
		if t.slots[i].File == nil {
			fd = i
			break
		}
	}
	if fd < 0 || t.slots[fd].Unlink {
		return -1
	}
	f, err := t.ns.Open(name, create)
	if err != nil {
		return -1
	}
	t.slots[fd] = FileDescriptor{Name: name, File: f}
	return fd
}

// Read transfers up to len(p) bytes from the descriptor's cursor and
// advances it by the count transferred. Returns -1 for a bad handle.
func (t *FdTable) Read(fd int, p []byte) int {
	d := t.Get(fd)
	if d == nil {
		return -1
	}
	n, _ := d.File.ReadAt(p, d.Pos)
	d.Pos += int64(n)
	return n
}

// Write transfers p at the descriptor's cursor and advances it by the
// count transferred. Returns -1 for a bad handle.
func (t *FdTable) Write(fd int, p []byte) int {
	d := t.Get(fd)
	if d == nil {
		return -1
	}
	n, err := d.File.WriteAt(p, d.Pos)
	if err != nil && n == 0 {
		return -1
	}
	d.Pos += int64(n)
	return n
}

// Close releases the handle, performing the deferred namespace removal if
// the descriptor was flagged, and always clears the slot.
func (t *FdTable) Close(fd int) int {
	d := t.Get(fd)
	if d == nil {
		return -1
	}
	ret := 0
	d.File.Close()
	if d.Unlink {
		if err := t.ns.Remove(d.Name); err != nil {
			ret = -1
		}
		d.Unlink = false
	}
	*d = FileDescriptor{}
	return ret
}

// Unlink removes name from the namespace, or defers removal to the owning
// descriptor's close if this table still has it open. The namespace itself
// defers removal for files open in other processes.
func (t *FdTable) Unlink(name string) int {
	for i := range t.slots {
		d := &t.slots[i]
		if d.File != nil && d.Name == name {
			d.Unlink = true
			return 0
		}
	}
	if err := t.ns.Remove(name); err != nil {
		return -1
	}
	return 0
}

// CloseAll closes every bound descriptor, honoring deferred unlinks.
func (t *FdTable) CloseAll() {
	for i := range t.slots {
		if t.slots[i].File != nil {
			t.Close(i)
		}
	}
}
