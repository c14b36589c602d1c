package models

import (
	"io"
	"os"
)

type TraceConfig struct {
	// trace syscalls to Output
	Sys bool
	// trace virtual memory transfers to Output
	Mem bool
}

type Config struct {
	Color     bool
	NumFrames int
	Strsize   int
	Verbose   bool

	Trace TraceConfig

	Output io.Writer
}

// Init fills in defaults and is safe to call on a nil config.
func (c *Config) Init() *Config {
	if c == nil {
		c = &Config{}
	}
	if c.NumFrames <= 0 {
		c.NumFrames = 64
	}
	if c.Strsize <= 0 {
		c.Strsize = 30
	}
	if c.Output == nil {
		c.Output = os.Stderr
	}
	return c
}
