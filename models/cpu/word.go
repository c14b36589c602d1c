package cpu

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// WordSize is the width of a user pointer and of every scalar the kernel
// exchanges with user memory (argv pointers, join statuses).
const WordSize = 4

// PackWord packs n into buf as one machine word, allocating when buf is
// nil, and returns the packed slice.
func PackWord(order binary.ByteOrder, buf []byte, n uint64) ([]byte, error) {
	if buf == nil {
		buf = make([]byte, WordSize)
	} else if len(buf) < WordSize {
		return nil, errors.Errorf("buffer too small (%d < %d)", len(buf), WordSize)
	}
	order.PutUint32(buf[:WordSize], uint32(n))
	return buf[:WordSize], nil
}

func UnpackWord(order binary.ByteOrder, buf []byte) (uint64, error) {
	if len(buf) < WordSize {
		return 0, errors.Errorf("buffer too small (%d < %d)", len(buf), WordSize)
	}
	return uint64(order.Uint32(buf)), nil
}
