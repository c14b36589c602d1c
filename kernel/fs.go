package kernel

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// File is one open handle into the namespace.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Name() string
}

// Namespace is the external file system the machine mounts. Removal is
// deferred while a file is still open anywhere; a file pending removal
// cannot be reopened.
type Namespace interface {
	Open(name string, create bool) (File, error)
	Remove(name string) error
}

// RamFS is the in-memory namespace backing the machine's boot volume and
// the tests.
type RamFS struct {
	mu    sync.Mutex
	files map[string]*ramFile
}

type ramFile struct {
	name   string
	data   []byte
	opens  int
	doomed bool
}

func NewRamFS() *RamFS {
	return &RamFS{files: make(map[string]*ramFile)}
}

func (fs *RamFS) Open(name string, create bool) (File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f := fs.files[name]
	if f == nil {
		if !create {
			return nil, errors.Errorf("%s: no such file", name)
		}
		f = &ramFile{name: name}
		fs.files[name] = f
	} else if f.doomed {
		return nil, errors.Errorf("%s: pending removal", name)
	} else if create {
		f.data = nil
	}
	f.opens++
	return &ramHandle{fs: fs, f: f}, nil
}

func (fs *RamFS) Remove(name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f := fs.files[name]
	if f == nil {
		return errors.Errorf("%s: no such file", name)
	}
	if f.opens > 0 {
		// removal happens when the last handle closes
		f.doomed = true
		return nil
	}
	delete(fs.files, name)
	return nil
}

// Exists reports whether name is present and not pending removal.
func (fs *RamFS) Exists(name string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f := fs.files[name]
	return f != nil && !f.doomed
}

type ramHandle struct {
	fs     *RamFS
	f      *ramFile
	closed bool
}

func (h *ramHandle) Name() string {
	return h.f.name
}

func (h *ramHandle) ReadAt(p []byte, off int64) (int, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.closed {
		return 0, errors.New("read on closed file")
	}
	if off >= int64(len(h.f.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (h *ramHandle) WriteAt(p []byte, off int64) (int, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.closed {
		return 0, errors.New("write on closed file")
	}
	if end := off + int64(len(p)); end > int64(len(h.f.data)) {
		grown := make([]byte, end)
		copy(grown, h.f.data)
		h.f.data = grown
	}
	return copy(h.f.data[off:], p), nil
}

func (h *ramHandle) Close() error {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.closed {
		return errors.New("double close")
	}
	h.closed = true
	h.f.opens--
	if h.f.opens == 0 && h.f.doomed {
		delete(h.fs.files, h.f.name)
	}
	return nil
}
