// Package command implements agentmail's cobra CLI: serve-http,
// rebuild-index, and gc-expired-claims. Grounded on the teacher's
// internal/command/root.go (one NewXCmd per verb, SilenceUsage/SilenceErrors
// so errors print once via the caller), trimmed to the specification's
// three subcommands.
package command

import (
	"os"

	"github.com/spf13/cobra"
)

const appName = "agentmail"

// NewRootCmd builds the root command.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Coordination server for a fleet of autonomous coding agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Version = version
	cmd.SetVersionTemplate(appName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.AddCommand(
		newServeHTTPCmd(),
		newRebuildIndexCmd(),
		newGCExpiredClaimsCmd(),
	)
	return cmd
}

// Execute runs the CLI, returning an *ExitError when a command wants a
// specific process exit code.
func Execute(version string) error {
	return NewRootCmd(version).Execute()
}
