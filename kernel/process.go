package kernel

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/tern-os/tern/loader"
	"github.com/tern-os/tern/models"
	"github.com/tern-os/tern/models/cpu"
)

// pages reserved above the program sections for the user stack
const stackPages = 8

// maximum length of a NUL-terminated string argument read from user memory
const maxStrLen = 256

var (
	ErrFragmented  = errors.New("fragmented executable")
	ErrArgsTooLong = errors.New("argument block exceeds one page")
)

// Process is one user process: its address translation state, file table,
// and the identity links used by the exit/join handshake.
type Process struct {
	k *Kernel

	Pid      int
	ParentID int
	Name     string

	Regs     *cpu.Regs
	space    *AddrSpace
	fds      *FdTable
	children map[int]*Process
	gate     models.Gate

	initialPC uint64
	initialSP uint64
	argc      int
	argv      uint64

	// only the exit status is shared across threads; everything above is
	// exclusively owned by the process's own thread
	statusMu   sync.Mutex
	statusCond *sync.Cond
	exitStatus *int
}

func newProcess(k *Kernel, pid, parentID int, name string) *Process {
	p := &Process{
		k:        k,
		Pid:      pid,
		ParentID: parentID,
		Name:     name,
		Regs:     cpu.NewRegs(32, cpu.Registers),
		fds:      NewFdTable(k.ns),
		children: make(map[int]*Process),
	}
	p.statusCond = sync.NewCond(&p.statusMu)
	return p
}

// Space exposes the process's address space to the monitor and tests.
func (p *Process) Space() *AddrSpace {
	return p.space
}

func (p *Process) Fds() *FdTable {
	return p.fds
}

// Gate pauses the process at its next trap for register and memory
// inspection.
func (p *Process) Gate() *models.Gate {
	return &p.gate
}

// load opens and parses the executable, builds the address space, and
// packs the argument block. Any failure releases the executable handle
// and every acquired frame; the process is left unrunnable.
func (p *Process) load(name string, args []string) error {
	f, err := p.k.ns.Open(name, false)
	if err != nil {
		return errors.Wrapf(err, "open %s failed", name)
	}
	bin, err := loader.Load(f)
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "parse %s failed", name)
	}

	// sections must be contiguous and start at virtual page 0
	sects := bin.Sections()
	numPages := 0
	for _, s := range sects {
		if s.VPNFirst != numPages {
			f.Close()
			return errors.WithStack(ErrFragmented)
		}
		numPages += s.NumPages
	}

	// the packed argument block must fit in one page
	argvSize := 0
	for _, a := range args {
		argvSize += cpu.WordSize + len(a) + 1
	}
	if argvSize > cpu.PageSize {
		f.Close()
		return errors.WithStack(ErrArgsTooLong)
	}

	p.initialPC = bin.Entry()
	numPages += stackPages
	p.initialSP = uint64(numPages) * cpu.PageSize
	// one page for arguments
	numPages++

	space, err := NewAddrSpace(p.k.phys, p.k.frames, numPages)
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "no memory for %s", name)
	}

	for _, s := range sects {
		for i := 0; i < s.NumPages; i++ {
			e := space.Entry(s.VPNFirst + i)
			e.ReadOnly = s.ReadOnly
			frame, err := p.k.phys.Frame(e.PPN)
			if err == nil {
				err = s.LoadPage(i, frame)
			}
			if err != nil {
				space.Release()
				f.Close()
				return errors.Wrapf(err, "loading %s section %s failed", name, s.Name)
			}
		}
	}
	f.Close()
	p.space = space

	// pointer array first, then the NUL-terminated string bytes
	entryOff := uint64(numPages-1) * cpu.PageSize
	strOff := entryOff + uint64(cpu.WordSize*len(args))
	p.argc = len(args)
	p.argv = entryOff
	for _, a := range args {
		ptr, _ := cpu.PackWord(binary.LittleEndian, nil, strOff)
		space.Write(entryOff, ptr)
		entryOff += cpu.WordSize
		space.Write(strOff, append([]byte(a), 0))
		strOff += uint64(len(a) + 1)
	}
	return nil
}

// initRegisters zeroes the register file, then sets PC to the entry
// point, SP to the top of the stack region, and A0/A1 to argc/argv.
func (p *Process) initRegisters() {
	for _, enum := range cpu.Registers {
		p.Regs.RegWrite(enum, 0)
	}
	p.Regs.RegWrite(cpu.PC, p.initialPC)
	p.Regs.RegWrite(cpu.NEXTPC, p.initialPC+cpu.InsnSize)
	p.Regs.RegWrite(cpu.SP, p.initialSP)
	p.Regs.RegWrite(cpu.A0, uint64(p.argc))
	p.Regs.RegWrite(cpu.A1, p.argv)
}

// run is the process's thread of control. It holds the gate while the
// runner is live so inspectors only see trap-boundary state.
func (p *Process) run() {
	p.initRegisters()
	p.gate.Start()
	if p.k.runner != nil {
		p.k.runner.Run(p)
	}
	p.statusMu.Lock()
	exited := p.exitStatus != nil
	p.statusMu.Unlock()
	// a guest that returns from its run loop without trapping exit still
	// exits cleanly
	if !exited {
		p.Exit(0)
	}
	p.gate.Stop()
}

// Exit closes every descriptor, releases every frame, then publishes the
// exit status exactly once. Resource release completes strictly before
// publication, so a waking joiner never observes a live file table. If
// the process is the machine's root, the whole machine halts.
func (p *Process) Exit(status int) {
	p.fds.CloseAll()
	if p.space != nil {
		p.space.Release()
	}
	p.statusMu.Lock()
	if p.exitStatus == nil {
		s := status
		p.exitStatus = &s
		p.statusCond.Broadcast()
	}
	p.statusMu.Unlock()
	p.k.unregister(p)
	if p.Pid == p.k.RootPid() {
		p.k.Halt(models.ExitStatus(status))
	}
}

// Join blocks until the named direct child publishes its exit status,
// then writes the 4-byte status into the caller's memory at statusAddr.
// A child can be joined at most once; it is removed from the child
// mapping before the wait. Returns -1 for a pid that is not a direct
// child or for an unwritable status address.
func (p *Process) Join(pid int, statusAddr uint64) int {
	child, ok := p.children[pid]
	if !ok {
		return -1
	}
	delete(p.children, pid)
	child.statusMu.Lock()
	for child.exitStatus == nil {
		child.statusCond.Wait()
	}
	status := *child.exitStatus
	child.statusMu.Unlock()
	buf, _ := cpu.PackWord(binary.LittleEndian, nil, uint64(uint32(status)))
	if p.space.Write(statusAddr, buf) != len(buf) {
		return -1
	}
	return 0
}

// Exec spawns a child process running the named executable and links it
// into the caller's child mapping. Returns the child pid, or -1 on any
// load failure.
func (p *Process) Exec(name string, args []string) int {
	child, err := p.k.Spawn(p, name, args)
	if err != nil {
		if p.k.config.Verbose {
			fmt.Fprintf(p.k.config.Output, "spawn %s: %v\n", name, err)
		}
		return -1
	}
	return child.Pid
}

// Exited reports the published exit status, if any.
func (p *Process) Exited() (int, bool) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	if p.exitStatus == nil {
		return 0, false
	}
	return *p.exitStatus, true
}
