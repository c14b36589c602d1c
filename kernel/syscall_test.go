package kernel

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/tern-os/tern/models"
	"github.com/tern-os/tern/models/cpu"
)

// testProc loads a process without starting its thread, so the test can
// drive the trap path directly. The test stands in for the interpreter,
// so it holds the gate.
func testProc(t *testing.T, k *Kernel, ns *RamFS) *Process {
	writeTestExe(t, ns, "a.tbf", 0)
	p := newProcess(k, 1, -1, "a.tbf")
	if err := p.load("a.tbf", nil); err != nil {
		t.Fatal("load() failed:", err)
	}
	p.initRegisters()
	p.gate.Start()
	t.Cleanup(p.gate.Stop)
	return p
}

// trap raises a syscall the way the interpreter would: number in v0,
// arguments in a0-a3, result read back from v0.
func trap(t *testing.T, p *Process, num uint64, args ...uint64) int32 {
	p.Regs.RegWrite(cpu.V0, num)
	for i, a := range args {
		p.Regs.RegWrite(cpu.A0+i, a)
	}
	if err := p.Exception(cpu.TRAP_SYSCALL); err != nil {
		t.Fatalf("syscall %d failed: %v", num, err)
	}
	ret, _ := p.Regs.RegRead(cpu.V0)
	return int32(uint32(ret))
}

// stage writes p into the caller's stack region and returns its address
func stage(p *Process, off uint64, data []byte) uint64 {
	addr := p.initialSP - off
	p.Space().Write(addr, data)
	return addr
}

func TestSyscallFileRoundTrip(t *testing.T) {
	k, ns := testKernel(t, 32, nil)
	p := testProc(t, k, ns)

	nameAddr := stage(p, 0x100, []byte("out.txt\x00"))
	fd := trap(t, p, uint64(callCreate), nameAddr)
	if fd != 0 {
		t.Fatalf("create = %d, expecting fd 0", fd)
	}
	msg := []byte("written through the trap path")
	bufAddr := stage(p, 0x200, msg)
	if n := trap(t, p, uint64(callWrite), uint64(fd), bufAddr, uint64(len(msg))); n != int32(len(msg)) {
		t.Fatalf("write = %d, expecting %d", n, len(msg))
	}
	if ret := trap(t, p, uint64(callClose), uint64(fd)); ret != 0 {
		t.Fatalf("close = %d", ret)
	}

	fd = trap(t, p, uint64(callOpen), nameAddr)
	if fd != 0 {
		t.Fatalf("open = %d, expecting fd 0", fd)
	}
	outAddr := p.initialSP - 0x300
	if n := trap(t, p, uint64(callRead), uint64(fd), outAddr, uint64(len(msg))); n != int32(len(msg)) {
		t.Fatalf("read = %d, expecting %d", n, len(msg))
	}
	got := make([]byte, len(msg))
	p.Space().Read(outAddr, got)
	if !bytes.Equal(got, msg) {
		t.Fatalf("read back %q, expecting %q", got, msg)
	}
	trap(t, p, uint64(callClose), uint64(fd))

	if ret := trap(t, p, uint64(callUnlink), nameAddr); ret != 0 {
		t.Fatalf("unlink = %d", ret)
	}
	if ns.Exists("out.txt") {
		t.Fatal("unlinked file still exists")
	}
	// a name the process cannot read fails cleanly
	if fd := trap(t, p, uint64(callOpen), uint64(20*cpu.PageSize)); fd != -1 {
		t.Fatalf("open with unreadable name = %d", fd)
	}
}

func TestSyscallAdvancesPC(t *testing.T) {
	k, ns := testKernel(t, 32, nil)
	p := testProc(t, k, ns)
	pc, _ := p.Regs.RegRead(cpu.PC)
	next, _ := p.Regs.RegRead(cpu.NEXTPC)

	nameAddr := stage(p, 0x100, []byte("f\x00"))
	trap(t, p, uint64(callCreate), nameAddr)

	if got, _ := p.Regs.RegRead(cpu.PC); got != next {
		t.Fatalf("pc = %#x after trap, expecting %#x", got, next)
	}
	if got, _ := p.Regs.RegRead(cpu.NEXTPC); got != next+cpu.InsnSize {
		t.Fatalf("nextpc = %#x after trap, expecting %#x", got, next+cpu.InsnSize)
	}
	if pc == next {
		t.Fatal("bogus test setup: pc == nextpc")
	}
}

func TestSyscallExit(t *testing.T) {
	k, ns := testKernel(t, 32, nil)
	p := testProc(t, k, ns)
	p.Regs.RegWrite(cpu.V0, uint64(callExit))
	p.Regs.RegWrite(cpu.A0, 7)
	err := p.Exception(cpu.TRAP_SYSCALL)
	if err != models.ExitStatus(7) {
		t.Fatalf("Exception() = %v, expecting exit 7", err)
	}
	if status, ok := p.Exited(); !ok || status != 7 {
		t.Fatalf("Exited() = %d, %v", status, ok)
	}
	if k.Frames().Available() != 32 {
		t.Fatalf("exit leaked frames, Available() = %d", k.Frames().Available())
	}
}

func TestSyscallHalt(t *testing.T) {
	k, ns := testKernel(t, 32, nil)
	p := testProc(t, k, ns)
	p.Regs.RegWrite(cpu.V0, uint64(callHalt))
	err := p.Exception(cpu.TRAP_SYSCALL)
	if err != models.ExitStatus(0) {
		t.Fatalf("Exception() = %v, expecting exit 0", err)
	}
	if !k.Halted() {
		t.Fatal("machine not halted")
	}
}

func TestSyscallUnknown(t *testing.T) {
	k, ns := testKernel(t, 32, nil)
	p := testProc(t, k, ns)
	p.Regs.RegWrite(cpu.V0, 99)
	err := p.Exception(cpu.TRAP_SYSCALL)
	te, ok := err.(*TrapError)
	if !ok || te.Num != 99 {
		t.Fatalf("Exception() = %v, expecting a trap error for syscall 99", err)
	}
	if !k.Halted() {
		t.Fatal("unknown syscall did not halt the machine")
	}
	if k.Wait() != err {
		t.Fatal("halt status is not the trap error")
	}
}

func TestSyscallBadCause(t *testing.T) {
	k, ns := testKernel(t, 32, nil)
	p := testProc(t, k, ns)
	err := p.Exception(cpu.TRAP_ADDR_ERROR)
	if _, ok := err.(*TrapError); !ok {
		t.Fatalf("Exception() = %v, expecting a trap error", err)
	}
	if !strings.Contains(err.Error(), cpu.TrapNames[cpu.TRAP_ADDR_ERROR]) {
		t.Fatalf("trap error %q does not name the cause", err)
	}
	if !k.Halted() {
		t.Fatal("stray exception did not halt the machine")
	}
}

func TestSyscallExecJoin(t *testing.T) {
	runner := RunnerFunc(func(p *Process) {
		p.Exit(3)
	})
	k, ns := testKernel(t, 64, runner)
	p := testProc(t, k, ns)

	nameAddr := stage(p, 0x100, []byte("a.tbf\x00"))
	arg0Addr := stage(p, 0x120, []byte("a.tbf\x00"))
	var ptr [4]byte
	binary.LittleEndian.PutUint32(ptr[:], uint32(arg0Addr))
	argvAddr := stage(p, 0x140, ptr[:])

	pid := trap(t, p, uint64(callExec), nameAddr, 1, argvAddr)
	if pid <= 0 {
		t.Fatalf("exec = %d", pid)
	}
	statusAddr := p.initialSP - 0x160
	if ret := trap(t, p, uint64(callJoin), uint64(pid), statusAddr); ret != 0 {
		t.Fatalf("join = %d", ret)
	}
	var buf [4]byte
	p.Space().Read(statusAddr, buf[:])
	if buf[0] != 3 {
		t.Fatalf("joined status = %d, expecting 3", buf[0])
	}
	// an argv pointer array the caller cannot read fails the exec
	if ret := trap(t, p, uint64(callExec), nameAddr, 1, uint64(20*cpu.PageSize)); ret != -1 {
		t.Fatalf("exec with bad argv = %d", ret)
	}
}

func TestSyscallTrace(t *testing.T) {
	var out bytes.Buffer
	ns := NewRamFS()
	config := &models.Config{NumFrames: 32, Output: &out, Strsize: 8}
	config.Trace.Sys = true
	k := New(config, ns, nil)
	p := testProc(t, k, ns)

	nameAddr := stage(p, 0x100, []byte("a-very-long-name.txt\x00"))
	trap(t, p, uint64(callCreate), nameAddr)
	line := out.String()
	if !strings.Contains(line, `create("a-very-l...") = 0`) {
		t.Fatalf("trace line %q", line)
	}
	if !strings.Contains(line, "[pid 1]") {
		t.Fatalf("trace line %q missing pid", line)
	}
}
