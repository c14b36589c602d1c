package cpu

import (
	"github.com/pkg/errors"
)

// Phys is the machine's physical memory, a flat byte array divided into
// fixed-size frames. It is shared by every process; frame ownership is
// arbitrated by the kernel's allocator, never here.
type Phys struct {
	mem    []byte
	frames int
}

func NewPhys(frames int) *Phys {
	return &Phys{
		mem:    make([]byte, frames*PageSize),
		frames: frames,
	}
}

func (p *Phys) NumFrames() int {
	return p.frames
}

// Frame returns the backing bytes of one physical frame.
func (p *Phys) Frame(ppn int) ([]byte, error) {
	if ppn < 0 || ppn >= p.frames {
		return nil, errors.Errorf("frame %d outside physical range [0, %d)", ppn, p.frames)
	}
	off := ppn * PageSize
	return p.mem[off : off+PageSize], nil
}
