package loader

import (
	"io"

	"github.com/pkg/errors"
)

var ErrUnknownMagic = errors.New("could not identify file magic")

// Load parses an executable image from r.
func Load(r io.ReaderAt) (Loader, error) {
	if MatchTbf(r) {
		return NewTbfLoader(r)
	}
	return nil, errors.WithStack(ErrUnknownMagic)
}
