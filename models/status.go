package models

import (
	"fmt"
	"strings"

	"github.com/mgutz/ansi"

	"github.com/tern-os/tern/models/cpu"
)

var chSame = ansi.ColorCode("default:default")
var chNew = ansi.ColorCode("default+bu:default")

// StatusDiff renders a register file, highlighting registers that changed
// since the previous render.
type StatusDiff struct {
	Regs  *cpu.Regs
	Color bool

	oldRegs map[int]uint64
}

func (s *StatusDiff) Changes() string {
	vals := s.Regs.RegDump()
	if s.oldRegs == nil {
		s.oldRegs = make(map[int]uint64, len(vals))
	}
	cells := make([]string, 0, len(vals))
	for _, r := range vals {
		cell := fmt.Sprintf("%s=%#x", r.Name, r.Val)
		if s.Color {
			ch := chSame
			if r.Val != s.oldRegs[r.Enum] {
				ch = chNew
			}
			cell = ch + cell + ansi.Reset
		} else if r.Val != s.oldRegs[r.Enum] {
			cell = cell + "*"
		}
		cells = append(cells, cell)
		s.oldRegs[r.Enum] = r.Val
	}
	return strings.Join(cells, " ")
}
