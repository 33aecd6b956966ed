package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/progrium/qnet-go/mux"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("qnet %s (%s)\n", version, commit)
			fmt.Printf("protocol %d.%d.%d\n", mux.Version[0], mux.Version[1], mux.Version[2])
			fmt.Printf("%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
