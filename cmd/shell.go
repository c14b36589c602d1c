package cmd

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/shibukawa/configdir"

	"github.com/tern-os/tern/kernel"
	"github.com/tern-os/tern/models"
)

// Shell is the line-oriented machine monitor.
type Shell struct {
	Kernel *kernel.Kernel

	rl    *readline.Instance
	diffs map[int]*models.StatusDiff
}

func (s *Shell) Run() error {
	// keep history under the user's cache dir
	configDirs := configdir.New("tern", "shell")
	cacheDir := configDirs.QueryCacheFolder()
	historyPath := ""
	if err := cacheDir.MkdirAll(); err == nil {
		historyPath = filepath.Join(cacheDir.Path, "history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tern> ",
		InterruptPrompt: "\n",
		HistoryFile:     historyPath,
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	s.rl = rl
	s.diffs = make(map[int]*models.StatusDiff)

	for !s.Kernel.Halted() {
		line, err := rl.Readline()
		if err != nil {
			break
		}
		s.dispatch(strings.Fields(line))
	}
	if err := s.Kernel.Wait(); err != nil {
		if _, ok := err.(models.ExitStatus); !ok {
			return err
		}
		fmt.Fprintf(rl.Stderr(), "machine halted: %s\n", err)
	}
	return nil
}

func (s *Shell) dispatch(args []string) {
	if len(args) == 0 {
		return
	}
	out := s.rl.Stderr()
	switch args[0] {
	case "help":
		fmt.Fprint(out, "commands:\n"+
			"  run <exe> [args...]   spawn a program\n"+
			"  ps                    list live processes\n"+
			"  regs <pid>            dump registers (changes highlighted)\n"+
			"  mem <pid> <addr> <n>  hex dump virtual memory\n"+
			"  halt                  halt the machine\n")
	case "run":
		if len(args) < 2 {
			fmt.Fprintln(out, "usage: run <exe> [args...]")
			return
		}
		var p *kernel.Process
		var err error
		if s.Kernel.RootPid() < 0 {
			p, err = s.Kernel.Boot(args[1], args[2:])
		} else {
			p, err = s.Kernel.Spawn(nil, args[1], args[2:])
		}
		if err != nil {
			fmt.Fprintf(out, "run failed: %v\n", err)
			return
		}
		fmt.Fprintf(out, "pid %d\n", p.Pid)
	case "ps":
		for _, p := range s.Kernel.Processes() {
			pages := 0
			if sp := p.Space(); sp != nil {
				pages = sp.NumPages()
			}
			fmt.Fprintf(out, "%4d  parent=%-4d pages=%-4d %s\n", p.Pid, p.ParentID, pages, p.Name)
		}
	case "regs":
		p := s.proc(args, 2)
		if p == nil {
			return
		}
		diff := s.diffs[p.Pid]
		if diff == nil {
			diff = &models.StatusDiff{Regs: p.Regs, Color: true}
			s.diffs[p.Pid] = diff
		}
		// pause the process at its next trap while we read
		p.Gate().Lock()
		line := diff.Changes()
		p.Gate().Unlock()
		fmt.Fprintln(out, line)
	case "mem":
		p := s.proc(args, 4)
		if p == nil {
			return
		}
		addr, err1 := strconv.ParseUint(args[2], 0, 64)
		size, err2 := strconv.ParseUint(args[3], 0, 16)
		if err1 != nil || err2 != nil {
			fmt.Fprintln(out, "usage: mem <pid> <addr> <n>")
			return
		}
		buf := make([]byte, size)
		p.Gate().Lock()
		n := p.Space().Read(addr, buf)
		p.Gate().Unlock()
		fmt.Fprint(out, hex.Dump(buf[:n]))
		if n < len(buf) {
			fmt.Fprintf(out, "fault after %d bytes\n", n)
		}
	case "halt":
		s.Kernel.Halt(models.ExitStatus(0))
	default:
		fmt.Fprintf(out, "unknown command %q (try help)\n", args[0])
	}
}

func (s *Shell) proc(args []string, want int) *kernel.Process {
	out := s.rl.Stderr()
	if len(args) < want {
		fmt.Fprintln(out, "missing arguments (try help)")
		return nil
	}
	pid, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(out, "bad pid %q\n", args[1])
		return nil
	}
	p := s.Kernel.Process(pid)
	if p == nil {
		fmt.Fprintf(out, "no process %d\n", pid)
		return nil
	}
	return p
}
