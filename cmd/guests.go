package cmd

// The built-in guests stand in for the machine's external instruction
// interpreter. Each one drives the real syscall ABI from a host function:
// arguments in A0-A3, call number in V0, then a syscall trap.

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/tern-os/tern/kernel"
	"github.com/tern-os/tern/loader"
	"github.com/tern-os/tern/models/cpu"
)

type Guest struct {
	p    *kernel.Process
	args []string
	// staging bump pointer in the free stack space below SP
	brk uint64
	err error
}

var argRegs = []int{cpu.A0, cpu.A1, cpu.A2, cpu.A3}

func newGuest(p *kernel.Process) *Guest {
	sp, _ := p.Regs.RegRead(cpu.SP)
	g := &Guest{p: p, brk: sp}
	g.args = g.readArgs()
	return g
}

// readArgs decodes argc/argv from A0/A1 the way crt0 would.
func (g *Guest) readArgs() []string {
	argc, _ := g.p.Regs.RegRead(cpu.A0)
	argv, _ := g.p.Regs.RegRead(cpu.A1)
	args := make([]string, 0, argc)
	var ptr [cpu.WordSize]byte
	for i := uint64(0); i < argc; i++ {
		if g.p.Space().Read(argv+cpu.WordSize*i, ptr[:]) != len(ptr) {
			break
		}
		s, ok := g.p.Space().ReadString(uint64(binary.LittleEndian.Uint32(ptr[:])), 256)
		if !ok {
			break
		}
		args = append(args, s)
	}
	return args
}

func (g *Guest) syscall(num uint64, args ...uint64) int32 {
	if g.err != nil {
		return -1
	}
	regs := g.p.Regs
	regs.RegWrite(cpu.V0, num)
	for i, a := range args {
		regs.RegWrite(argRegs[i], a)
	}
	g.err = g.p.Exception(cpu.TRAP_SYSCALL)
	ret, _ := regs.RegRead(cpu.V0)
	return int32(uint32(ret))
}

// stage copies p into the guest's free stack space, as if it were the
// program's own data, and returns its virtual address.
func (g *Guest) stage(p []byte) uint64 {
	g.brk -= uint64(len(p))
	g.p.Space().Write(g.brk, p)
	return g.brk
}

func (g *Guest) str(s string) uint64 {
	return g.stage(append([]byte(s), 0))
}

func (g *Guest) halt()           { g.syscall(0) }
func (g *Guest) exit(status int) { g.syscall(1, uint64(uint32(int32(status)))) }

func (g *Guest) exec(name string, args []string) int32 {
	ptrs := make([]byte, cpu.WordSize*len(args))
	for i, a := range args {
		binary.LittleEndian.PutUint32(ptrs[cpu.WordSize*i:], uint32(g.str(a)))
	}
	argv := g.stage(ptrs)
	return g.syscall(2, g.str(name), uint64(len(args)), argv)
}

// join returns the syscall result and the child's exit status.
func (g *Guest) join(pid int32) (int32, int32) {
	addr := g.stage(make([]byte, cpu.WordSize))
	ret := g.syscall(3, uint64(uint32(pid)), addr)
	var buf [cpu.WordSize]byte
	g.p.Space().Read(addr, buf[:])
	return ret, int32(binary.LittleEndian.Uint32(buf[:]))
}

func (g *Guest) create(name string) int32 { return g.syscall(4, g.str(name)) }
func (g *Guest) open(name string) int32   { return g.syscall(5, g.str(name)) }

func (g *Guest) read(fd int32, size int) ([]byte, int32) {
	addr := g.stage(make([]byte, size))
	n := g.syscall(6, uint64(uint32(fd)), addr, uint64(size))
	if n <= 0 {
		return nil, n
	}
	buf := make([]byte, n)
	g.p.Space().Read(addr, buf)
	return buf, n
}

func (g *Guest) write(fd int32, p []byte) int32 {
	return g.syscall(7, uint64(uint32(fd)), g.stage(p), uint64(len(p)))
}

func (g *Guest) close(fd int32) int32       { return g.syscall(8, uint64(uint32(fd))) }
func (g *Guest) unlink(name string) int32   { return g.syscall(9, g.str(name)) }

var guests = map[string]func(g *Guest){
	"init":  guestInit,
	"hello": guestHello,
	"cp":    guestCp,
}

// GuestRunner looks up the built-in program matching the loaded
// executable's name and runs it on the process's thread.
func GuestRunner() kernel.Runner {
	return kernel.RunnerFunc(func(p *kernel.Process) {
		if f, ok := guests[p.Name]; ok {
			f(newGuest(p))
		}
	})
}

// init runs its arguments as a child program and exits with the child's
// status; with no arguments it runs the hello demo.
func guestInit(g *Guest) {
	name, args := "hello", []string(nil)
	if len(g.args) > 0 {
		name, args = g.args[0], g.args[1:]
	}
	pid := g.exec(name, args)
	if pid < 0 {
		g.exit(1)
		return
	}
	ret, status := g.join(pid)
	if ret < 0 {
		g.exit(1)
		return
	}
	g.exit(int(status))
}

func guestHello(g *Guest) {
	fd := g.create("hello.txt")
	if fd < 0 {
		g.exit(1)
		return
	}
	g.write(fd, []byte("hello from tern\n"))
	g.close(fd)
	g.exit(0)
}

// cp copies its first argument to its second.
func guestCp(g *Guest) {
	if len(g.args) != 2 {
		g.exit(1)
		return
	}
	src := g.open(g.args[0])
	dst := g.create(g.args[1])
	if src < 0 || dst < 0 {
		g.exit(1)
		return
	}
	for {
		buf, n := g.read(src, 512)
		if n <= 0 {
			break
		}
		g.write(dst, buf)
	}
	g.close(src)
	g.close(dst)
	g.exit(0)
}

// MakeBootVolume packs one TBF image per built-in guest into the
// namespace so exec can find them by name.
func MakeBootVolume(ns *kernel.RamFS) error {
	for name := range guests {
		var img bytes.Buffer
		err := loader.PackTbf(&img, 0, []loader.PackSection{
			{Name: ".text", VPNFirst: 0, ReadOnly: true, Data: make([]byte, cpu.PageSize)},
			{Name: ".data", VPNFirst: 1, Data: make([]byte, cpu.PageSize)},
		})
		if err != nil {
			return errors.Wrapf(err, "packing %s failed", name)
		}
		f, err := ns.Open(name, true)
		if err != nil {
			return err
		}
		if _, err := f.WriteAt(img.Bytes(), 0); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
