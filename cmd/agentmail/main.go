// Command agentmail runs the coordination server for a fleet of autonomous
// coding agents: an MCP-over-streamable-HTTP mailbox, file-path lease
// manager, and contact-policy gate, backed by a per-project git archive and
// a SQLite index rebuildable from it.
package main

import (
	"fmt"
	"os"

	"github.com/adamavenir/agentmail/internal/command"
)

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if err := command.Execute(Version); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if ce, ok := err.(*command.ExitError); ok {
			return ce.Code
		}
		return 2
	}
	return 0
}
