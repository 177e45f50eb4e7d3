// Command gamerpcd runs a game-rpc server, or a watching client against one.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gamerpcd",
		Short: "Game server with replicated variables and remote calls",
		Long: `gamerpcd accepts game clients, keeps the replicated variables in sync
with them and relays remote calls.

Variables are declared with --replicate server:client:default:access[:persist].
With --etcd, persistent variables are stored in etcd and follow edits other
servers make there.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		watchCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gamerpcd %s (%s)\n", version, commit)
		},
	}
}
