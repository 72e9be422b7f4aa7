package commands

import (
	"github.com/spf13/cobra"
)

// GetRootCommand builds the udronectl command tree: a thin CLI over the
// udrone engine for ad-hoc discovery, assignment, and commanding of drones
// from a shell. It is glue over the engine, not part of the tested core.
func GetRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "udronectl",
		Short:        "udronectl drives a fleet of udrone-protocol devices over multicast",
		SilenceUsage: true,
	}

	bindConfigFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		GetDiscoverCommand(),
		GetAssignCommand(),
		GetCallCommand(),
		GetResetCommand(),
	)

	return cmd
}
