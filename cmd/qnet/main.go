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
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "qnet",
		Short: "A utility for working with qnet networks",
		Long: `qnet runs and talks to nodes of the qnet messaging protocol.

Nodes multiplex prioritized streams over tcp, udp, quic, websocket
and in-process connections.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default qnet.yaml)")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		sendCmd(&configPath),
		benchCmd(&configPath),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
