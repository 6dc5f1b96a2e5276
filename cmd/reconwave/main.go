// Command reconwave is the entry point for the reconwave scan engine CLI
// and daemon.
package main

import (
	"github.com/kvist/reconwave/cmd/cli"
)

// Build information, set by ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
