package main

import (
	"os"

	"github.com/tern-os/tern/cmd"
)

func main() {
	cmd.NewTernCmd().Run(os.Args)
}
