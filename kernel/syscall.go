package kernel

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/tern-os/tern/models"
	"github.com/tern-os/tern/models/cpu"
)

// callKind is the closed set of system calls. Decoding to a variant up
// front keeps the dispatch switch exhaustive instead of an open-ended
// numeric default-fail.
type callKind int

const (
	callHalt callKind = iota
	callExit
	callExec
	callJoin
	callCreate
	callOpen
	callRead
	callWrite
	callClose
	callUnlink
	numCalls
)

var callNames = [numCalls]string{
	"halt", "exit", "exec", "join", "create",
	"open", "read", "write", "close", "unlink",
}

func decodeCall(num uint64) (callKind, bool) {
	if num < uint64(numCalls) {
		return callKind(num), true
	}
	return 0, false
}

// TrapError is an unrecoverable machine fault: an unknown syscall number
// or an exception cause the kernel has no handler for.
type TrapError struct {
	Cause int
	Num   uint64
}

func (t *TrapError) Error() string {
	if t.Cause == cpu.TRAP_SYSCALL {
		return fmt.Sprintf("unknown syscall %d", t.Num)
	}
	name, ok := cpu.TrapNames[t.Cause]
	if !ok {
		name = fmt.Sprintf("cause %d", t.Cause)
	}
	return fmt.Sprintf("unexpected exception: %s", name)
}

// Exception is the kernel's trap entry, called on the process's thread by
// the interpreter with the process gate held. A syscall is decoded from
// V0 with arguments in A0-A3, dispatched, its result written to V0, and
// the pc advanced past the trap instruction. Any other cause halts the
// machine, as does an unknown syscall number. A non-nil return tells the
// interpreter to stop; exit and halt surface as models.ExitStatus.
func (p *Process) Exception(cause int) error {
	p.gate.Checkpoint()
	if cause != cpu.TRAP_SYSCALL {
		err := &TrapError{Cause: cause}
		p.k.Halt(err)
		return err
	}
	num, _ := p.Regs.RegRead(cpu.V0)
	kind, ok := decodeCall(num)
	if !ok {
		err := &TrapError{Cause: cause, Num: num}
		p.k.Halt(err)
		return err
	}
	var args [4]uint64
	for i, enum := range []int{cpu.A0, cpu.A1, cpu.A2, cpu.A3} {
		args[i], _ = p.Regs.RegRead(enum)
	}
	ret, err := p.syscall(kind, args)
	p.Regs.RegWrite(cpu.V0, uint64(uint32(ret)))
	p.advancePC()
	return err
}

func (p *Process) advancePC() {
	next, _ := p.Regs.RegRead(cpu.NEXTPC)
	p.Regs.RegWrite(cpu.PC, next)
	p.Regs.RegWrite(cpu.NEXTPC, next+cpu.InsnSize)
}

// syscall routes one decoded call. Every handler communicates failure via
// the -1 result; no error crosses the syscall boundary.
func (p *Process) syscall(kind callKind, a [4]uint64) (ret int32, err error) {
	if p.k.config.Trace.Sys {
		defer func() {
			fmt.Fprintf(p.k.config.Output, "[pid %d] %s(%s) = %d\n",
				p.Pid, callNames[kind], p.formatArgs(kind, a), ret)
		}()
	}
	switch kind {
	case callHalt:
		p.k.Halt(models.ExitStatus(0))
		return 0, models.ExitStatus(0)
	case callExit:
		status := int(int32(a[0]))
		p.Exit(status)
		return 0, models.ExitStatus(status)
	case callExec:
		return p.sysExec(a[0], a[1], a[2]), nil
	case callJoin:
		return int32(p.Join(int(int32(a[0])), a[1])), nil
	case callCreate:
		return p.sysOpen(a[0], true), nil
	case callOpen:
		return p.sysOpen(a[0], false), nil
	case callRead:
		return p.sysRead(int(int32(a[0])), a[1], int(int32(a[2]))), nil
	case callWrite:
		return p.sysWrite(int(int32(a[0])), a[1], int(int32(a[2]))), nil
	case callClose:
		return int32(p.fds.Close(int(int32(a[0])))), nil
	case callUnlink:
		name, ok := p.space.ReadString(a[0], maxStrLen)
		if !ok {
			return -1, nil
		}
		return int32(p.fds.Unlink(name)), nil
	}
	// unreachable: decodeCall bounds kind
	return -1, nil
}

func (p *Process) sysOpen(nameAddr uint64, create bool) int32 {
	name, ok := p.space.ReadString(nameAddr, maxStrLen)
	if !ok {
		return -1
	}
	return int32(p.fds.Open(name, create))
}

func (p *Process) sysRead(fd int, bufAddr uint64, size int) int32 {
	if size < 0 {
		return -1
	}
	buf := make([]byte, size)
	n := p.fds.Read(fd, buf)
	if n < 0 {
		return -1
	}
	m := p.space.Write(bufAddr, buf[:n])
	if p.k.config.Trace.Mem {
		fmt.Fprintf(p.k.config.Output, "[pid %d] vm write %#x +%d\n", p.Pid, bufAddr, m)
	}
	return int32(n)
}

func (p *Process) sysWrite(fd int, bufAddr uint64, size int) int32 {
	if size < 0 {
		return -1
	}
	buf := make([]byte, size)
	m := p.space.Read(bufAddr, buf)
	if p.k.config.Trace.Mem {
		fmt.Fprintf(p.k.config.Output, "[pid %d] vm read %#x +%d\n", p.Pid, bufAddr, m)
	}
	n := p.fds.Write(fd, buf[:m])
	if n < 0 {
		return -1
	}
	return int32(n)
}

// sysExec reads the executable name and argc argument-string pointers
// from the caller's memory, then spawns the child.
func (p *Process) sysExec(nameAddr, argcArg, argvAddr uint64) int32 {
	name, ok := p.space.ReadString(nameAddr, maxStrLen)
	if !ok {
		return -1
	}
	argc := int(int32(argcArg))
	if argc < 0 {
		return -1
	}
	args := make([]string, 0, argc)
	var ptr [cpu.WordSize]byte
	for i := 0; i < argc; i++ {
		if p.space.Read(argvAddr+uint64(cpu.WordSize*i), ptr[:]) != len(ptr) {
			return -1
		}
		strAddr, err := cpu.UnpackWord(binary.LittleEndian, ptr[:])
		if err != nil {
			return -1
		}
		s, ok := p.space.ReadString(strAddr, maxStrLen)
		if !ok {
			return -1
		}
		args = append(args, s)
	}
	return int32(p.Exec(name, args))
}

// argument counts per call, for tracing only
var argCount = [numCalls]int{0, 1, 3, 2, 1, 1, 3, 3, 1, 1}

// calls whose first argument is a string pointer render it decoded
var strArg = map[callKind]bool{
	callExec: true, callCreate: true, callOpen: true, callUnlink: true,
}

func (p *Process) formatArgs(kind callKind, a [4]uint64) string {
	cells := make([]string, argCount[kind])
	for i := range cells {
		cells[i] = fmt.Sprintf("%#x", a[i])
	}
	if strArg[kind] && len(cells) > 0 {
		if s, ok := p.space.ReadString(a[0], maxStrLen); ok {
			if max := p.k.config.Strsize; max > 0 && len(s) > max {
				s = s[:max] + "..."
			}
			cells[0] = fmt.Sprintf("%q", s)
		}
	}
	return strings.Join(cells, ", ")
}
