package kernel

import (
	"sort"
	"sync"

	"github.com/tern-os/tern/models"
	"github.com/tern-os/tern/models/cpu"
)

// Runner drives a loaded process in place of the machine's instruction
// interpreter, delivering each trap through Process.Exception until it
// returns non-nil.
type Runner interface {
	Run(p *Process)
}

type RunnerFunc func(p *Process)

func (f RunnerFunc) Run(p *Process) { f(p) }

// Kernel owns the process-wide state: the physical frame pool, the pid
// counter, the mounted namespace, and the halt gate. Everything else is
// per-process.
type Kernel struct {
	config *models.Config
	phys   *cpu.Phys
	frames *FrameAlloc
	ns     Namespace
	runner Runner

	mu      sync.Mutex
	nextPid int
	rootPid int
	procs   map[int]*Process

	haltOnce sync.Once
	halted   chan struct{}
	haltErr  error
}

func New(config *models.Config, ns Namespace, runner Runner) *Kernel {
	config = config.Init()
	phys := cpu.NewPhys(config.NumFrames)
	return &Kernel{
		config:  config,
		phys:    phys,
		frames:  NewFrameAlloc(phys.NumFrames()),
		ns:      ns,
		runner:  runner,
		rootPid: -1,
		procs:   make(map[int]*Process),
		halted:  make(chan struct{}),
	}
}

func (k *Kernel) Config() *models.Config {
	return k.config
}

func (k *Kernel) Phys() *cpu.Phys {
	return k.phys
}

func (k *Kernel) Frames() *FrameAlloc {
	return k.frames
}

// Spawn creates a process, loads the executable, links it as a child of
// parent, and starts it on its own thread of control. On a load failure
// the process is discarded and never linked or started.
func (k *Kernel) Spawn(parent *Process, name string, args []string) (*Process, error) {
	p, err := k.spawn(parent, name, args)
	if err != nil {
		return nil, err
	}
	go p.run()
	return p, nil
}

func (k *Kernel) spawn(parent *Process, name string, args []string) (*Process, error) {
	parentID := -1
	if parent != nil {
		parentID = parent.Pid
	}
	p := newProcess(k, k.allocPid(), parentID, name)
	if err := p.load(name, args); err != nil {
		return nil, err
	}
	if parent != nil {
		parent.children[p.Pid] = p
	}
	k.register(p)
	return p, nil
}

// Boot spawns the machine's root process. When the root exits, the whole
// machine halts with its status. The root is designated before its thread
// starts, so even an immediate exit halts the machine.
func (k *Kernel) Boot(name string, args []string) (*Process, error) {
	p, err := k.spawn(nil, name, args)
	if err != nil {
		return nil, err
	}
	k.mu.Lock()
	k.rootPid = p.Pid
	k.mu.Unlock()
	go p.run()
	return p, nil
}

func (k *Kernel) RootPid() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.rootPid
}

// Halt opens the halt gate once; later calls keep the first status.
func (k *Kernel) Halt(err error) {
	k.haltOnce.Do(func() {
		k.haltErr = err
		close(k.halted)
	})
}

// Wait blocks until the machine halts and returns the halt status,
// usually a models.ExitStatus.
func (k *Kernel) Wait() error {
	<-k.halted
	return k.haltErr
}

// Halted reports whether the halt gate has opened.
func (k *Kernel) Halted() bool {
	select {
	case <-k.halted:
		return true
	default:
		return false
	}
}

// Processes lists the live processes by pid.
func (k *Kernel) Processes() []*Process {
	k.mu.Lock()
	defer k.mu.Unlock()
	procs := make([]*Process, 0, len(k.procs))
	for _, p := range k.procs {
		procs = append(procs, p)
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].Pid < procs[j].Pid })
	return procs
}

func (k *Kernel) Process(pid int) *Process {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.procs[pid]
}

func (k *Kernel) allocPid() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.nextPid++
	return k.nextPid
}

func (k *Kernel) register(p *Process) {
	k.mu.Lock()
	k.procs[p.Pid] = p
	k.mu.Unlock()
}

func (k *Kernel) unregister(p *Process) {
	k.mu.Lock()
	delete(k.procs, p.Pid)
	k.mu.Unlock()
}
