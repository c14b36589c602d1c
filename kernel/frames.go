package kernel

import (
	"sync"

	"github.com/pkg/errors"
)

// FrameAlloc hands out exclusive ownership of physical frames. It is
// shared by every process, so acquire and release are mutually exclusive.
type FrameAlloc struct {
	mu   sync.Mutex
	free []int
}

func NewFrameAlloc(numFrames int) *FrameAlloc {
	free := make([]int, numFrames)
	for i := range free {
		free[i] = i
	}
	return &FrameAlloc{free: free}
}

func (f *FrameAlloc) Alloc() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.free) == 0 {
		return -1, errors.New("out of physical frames")
	}
	ppn := f.free[len(f.free)-1]
	f.free = f.free[:len(f.free)-1]
	return ppn, nil
}

// AllocN acquires n frames or none.
func (f *FrameAlloc) AllocN(n int) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.free) < n {
		return nil, errors.Errorf("out of physical frames (%d < %d)", len(f.free), n)
	}
	ppns := make([]int, n)
	copy(ppns, f.free[len(f.free)-n:])
	f.free = f.free[:len(f.free)-n]
	return ppns, nil
}

func (f *FrameAlloc) Free(ppn int) {
	f.mu.Lock()
	f.free = append(f.free, ppn)
	f.mu.Unlock()
}

func (f *FrameAlloc) Available() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.free)
}
