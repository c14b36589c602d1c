package loader

// Loader is a parsed executable image.
type Loader interface {
	Entry() uint64
	Sections() []Section
}

// Section is one page-aligned region of an executable image.
type Section struct {
	Name     string
	VPNFirst int
	NumPages int
	ReadOnly bool

	// LoadPage copies page i of the section into frame, zero-filling
	// past the initialized bytes.
	LoadPage func(i int, frame []byte) error
}
