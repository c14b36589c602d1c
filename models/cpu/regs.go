package cpu

import (
	"github.com/pkg/errors"
)

// RegVal is one register's value paired with its display name.
type RegVal struct {
	Enum int
	Name string
	Val  uint64
}

// Regs is an enum-keyed register file. Each process owns one as its user
// context; the interpreter binds to it while the process is running.
type Regs struct {
	mask uint64
	vals map[int]uint64
}

func NewRegs(bits uint, enums []int) *Regs {
	r := &Regs{
		mask: ^uint64(0) >> (64 - bits),
		vals: make(map[int]uint64),
	}
	for _, e := range enums {
		r.vals[e] = 0
	}
	return r
}

func (r *Regs) RegRead(enum int) (uint64, error) {
	if val, ok := r.vals[enum]; !ok {
		return 0, errors.New("invalid register")
	} else {
		return val, nil
	}
}

func (r *Regs) RegWrite(enum int, val uint64) error {
	val &= r.mask
	if _, ok := r.vals[enum]; !ok {
		return errors.New("invalid register")
	}
	r.vals[enum] = val
	return nil
}

// RegDump returns every register in Registers order.
func (r *Regs) RegDump() []RegVal {
	vals := make([]RegVal, 0, len(Registers))
	for _, e := range Registers {
		if v, ok := r.vals[e]; ok {
			vals = append(vals, RegVal{Enum: e, Name: RegNames[e], Val: v})
		}
	}
	return vals
}
