package cpu

import (
	"testing"
)

func TestRegs(t *testing.T) {
	regs := NewRegs(32, Registers)
	for i, e := range Registers {
		if err := regs.RegWrite(e, uint64(i*2)); err != nil {
			t.Fatal(err, "RegWrite() failed")
		}
	}
	for i, e := range Registers {
		if val, err := regs.RegRead(e); err != nil {
			t.Fatal(err, "RegRead() failed")
		} else if val != uint64(i*2) {
			t.Fatalf("RegRead() returned %d, expecting %d", val, i*2)
		}
	}
	if _, err := regs.RegRead(1000); err == nil {
		t.Fatal("RegRead() succeeded on an invalid register")
	}
	if err := regs.RegWrite(1000, 1); err == nil {
		t.Fatal("RegWrite() succeeded on an invalid register")
	}
}

func TestRegsMask(t *testing.T) {
	regs := NewRegs(32, Registers)
	if err := regs.RegWrite(PC, 0x1ffffffff); err != nil {
		t.Fatal("RegWrite() failed")
	}
	if val, err := regs.RegRead(PC); err != nil {
		t.Fatal("RegRead() failed")
	} else if val != 0xffffffff {
		t.Fatalf("RegRead() returned %#x, expecting masked value", val)
	}
}

func TestRegDump(t *testing.T) {
	regs := NewRegs(32, Registers)
	regs.RegWrite(SP, 0x1000)
	vals := regs.RegDump()
	if len(vals) != len(Registers) {
		t.Fatalf("RegDump() returned %d registers, expecting %d", len(vals), len(Registers))
	}
	for _, v := range vals {
		if v.Enum == SP && v.Val != 0x1000 {
			t.Fatalf("RegDump() sp = %#x, expecting 0x1000", v.Val)
		}
		if v.Name == "" {
			t.Fatalf("RegDump() returned unnamed register %d", v.Enum)
		}
	}
}
