package loader

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/tern-os/tern/models/cpu"
)

var tbfMagic = []byte{0x7f, 0x54, 0x42, 0x46}

var ErrBadMagic = errors.New("bad TBF magic")

func MatchTbf(r io.ReaderAt) bool {
	var p [4]byte
	_, err := r.ReadAt(p[:], 0)
	return err == nil && bytes.Equal(p[:], tbfMagic)
}

type tbfHeader struct {
	Magic    [4]byte
	Entry    uint32
	NumSects uint32
}

type tbfSection struct {
	NameOff  uint32
	VPNFirst uint32
	NumPages uint32
	Flags    uint32
	Off      uint32
	Size     uint32
}

const tbfReadOnly = 1

type TbfLoader struct {
	entry uint64
	sects []Section
}

func unpackAt(r io.ReaderAt, i interface{}, at int64) (int, error) {
	size, err := struc.Sizeof(i)
	if err != nil {
		return 0, err
	}
	return size, struc.UnpackWithOrder(io.NewSectionReader(r, at, int64(size)), i, binary.LittleEndian)
}

// NewTbfLoader parses a TBF image: a header followed by the section
// table, with raw section contents at the offsets the table names.
func NewTbfLoader(r io.ReaderAt) (Loader, error) {
	var header tbfHeader
	off, err := unpackAt(r, &header, 0)
	if err != nil {
		return nil, errors.Wrap(err, "tbf header unpack failed")
	}
	if !bytes.Equal(header.Magic[:], tbfMagic) {
		return nil, errors.WithStack(ErrBadMagic)
	}
	sects := make([]Section, 0, header.NumSects)
	at := int64(off)
	for s := 0; s < int(header.NumSects); s++ {
		var sect tbfSection
		n, err := unpackAt(r, &sect, at)
		if err != nil {
			return nil, errors.Wrapf(err, "tbf section %d unpack failed", s)
		}
		at += int64(n)
		sects = append(sects, Section{
			Name:     readName(r, sect.NameOff),
			VPNFirst: int(sect.VPNFirst),
			NumPages: int(sect.NumPages),
			ReadOnly: sect.Flags&tbfReadOnly != 0,
			LoadPage: pageLoader(r, sect),
		})
	}
	return &TbfLoader{entry: uint64(header.Entry), sects: sects}, nil
}

// section names are optional NUL-terminated strings; a zero offset or a
// read failure just leaves the section unnamed
func readName(r io.ReaderAt, off uint32) string {
	if off == 0 {
		return ""
	}
	var buf [32]byte
	n, _ := r.ReadAt(buf[:], int64(off))
	if i := bytes.IndexByte(buf[:n], 0); i >= 0 {
		return string(buf[:i])
	}
	return ""
}

func pageLoader(r io.ReaderAt, sect tbfSection) func(int, []byte) error {
	return func(i int, frame []byte) error {
		if i < 0 || i >= int(sect.NumPages) {
			return errors.Errorf("page %d outside section", i)
		}
		init := int(sect.Size) - i*len(frame)
		if init > len(frame) {
			init = len(frame)
		}
		if init > 0 {
			if _, err := r.ReadAt(frame[:init], int64(sect.Off)+int64(i)*int64(len(frame))); err != nil {
				return errors.Wrapf(err, "section read failed at page %d", i)
			}
		} else {
			init = 0
		}
		for j := init; j < len(frame); j++ {
			frame[j] = 0
		}
		return nil
	}
}

func (t *TbfLoader) Entry() uint64 {
	return t.entry
}

func (t *TbfLoader) Sections() []Section {
	return t.sects
}

// PackSection describes one section handed to PackTbf.
type PackSection struct {
	Name     string
	VPNFirst int
	ReadOnly bool
	Data     []byte
}

// PackTbf writes a TBF image. It exists for volume bootstrapping and
// tests; page counts are derived by rounding each section's data up to
// the page size.
func PackTbf(w io.Writer, entry uint32, sects []PackSection) error {
	header := &tbfHeader{Entry: entry, NumSects: uint32(len(sects))}
	copy(header.Magic[:], tbfMagic)
	hdrSize, err := struc.Sizeof(header)
	if err != nil {
		return err
	}
	sectSize, err := struc.Sizeof(&tbfSection{})
	if err != nil {
		return err
	}
	if err := struc.PackWithOrder(w, header, binary.LittleEndian); err != nil {
		return errors.Wrap(err, "tbf header pack failed")
	}
	// section data follows the table, then the name strings
	off := hdrSize + sectSize*len(sects)
	var names []byte
	nameBase := off
	for _, s := range sects {
		nameBase += len(s.Data)
	}
	for _, s := range sects {
		numPages := (len(s.Data) + cpu.PageSize - 1) / cpu.PageSize
		flags := uint32(0)
		if s.ReadOnly {
			flags = tbfReadOnly
		}
		nameOff := uint32(0)
		if s.Name != "" {
			nameOff = uint32(nameBase + len(names))
			names = append(names, s.Name...)
			names = append(names, 0)
		}
		sect := &tbfSection{
			NameOff:  nameOff,
			VPNFirst: uint32(s.VPNFirst),
			NumPages: uint32(numPages),
			Flags:    flags,
			Off:      uint32(off),
			Size:     uint32(len(s.Data)),
		}
		if err := struc.PackWithOrder(w, sect, binary.LittleEndian); err != nil {
			return errors.Wrap(err, "tbf section pack failed")
		}
		off += len(s.Data)
	}
	for _, s := range sects {
		if _, err := w.Write(s.Data); err != nil {
			return err
		}
	}
	_, err = w.Write(names)
	return err
}
