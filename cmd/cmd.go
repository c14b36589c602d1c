package cmd

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/tern-os/tern/kernel"
	"github.com/tern-os/tern/models"
)

type TernCmd struct {
	Config *models.Config
	Kernel *kernel.Kernel
	Flags  *flag.FlagSet
}

func NewTernCmd() *TernCmd {
	return &TernCmd{Flags: flag.NewFlagSet("cli", flag.ExitOnError)}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// PrintError prints an error, and a stacktrace if available.
func (c *TernCmd) PrintError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	if err, ok := err.(stackTracer); ok {
		for _, f := range err.StackTrace() {
			fmt.Fprintf(os.Stderr, "%s:%d %n()\n", f, f, f)
			if fmt.Sprintf("%n", f) == "main.main" {
				break
			}
		}
	}
}

func (c *TernCmd) Run(argv []string) {
	fs := c.Flags
	frames := fs.Int("frames", 64, "number of physical memory frames")
	verbose := fs.Bool("v", false, "verbose output")
	strace := fs.Bool("strace", false, "trace syscalls")
	mtrace := fs.Bool("mtrace", false, "trace virtual memory transfers")
	strsize := fs.Int("strsize", 30, "limit -strace'd strings to length")
	outfile := fs.String("o", "", "redirect trace output to file (default stderr)")
	shell := fs.Bool("shell", false, "start the interactive monitor instead of booting an executable")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <exe> [args...]\n\nOptions:\n", argv[0])
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n  %s -strace init\n", argv[0])
	}
	fs.Parse(argv[1:])

	args := fs.Args()
	if len(args) < 1 && !*shell {
		fs.Usage()
		os.Exit(1)
	}

	config := &models.Config{
		NumFrames: *frames,
		Verbose:   *verbose,
		Strsize:   *strsize,
		Trace: models.TraceConfig{
			Sys: *strace,
			Mem: *mtrace,
		},
	}
	if *outfile != "" {
		out, err := os.OpenFile(*outfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			c.PrintError(err)
			os.Exit(1)
		}
		defer out.Close()
		config.Output = out
	}
	c.Config = config

	ns := kernel.NewRamFS()
	if err := MakeBootVolume(ns); err != nil {
		c.PrintError(err)
		os.Exit(1)
	}
	c.Kernel = kernel.New(config, ns, GuestRunner())

	if *shell {
		sh := &Shell{Kernel: c.Kernel}
		if err := sh.Run(); err != nil {
			c.PrintError(err)
			os.Exit(1)
		}
		return
	}

	if _, err := c.Kernel.Boot(args[0], args[1:]); err != nil {
		c.PrintError(err)
		os.Exit(1)
	}
	err := c.Kernel.Wait()
	if e, ok := err.(models.ExitStatus); ok {
		os.Exit(int(e))
	} else if err != nil {
		c.PrintError(err)
		os.Exit(1)
	}
}
