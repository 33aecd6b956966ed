package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/progrium/clon-go"
	"github.com/spf13/cobra"

	"github.com/progrium/qnet-go/rpc"
)

func sendCmd(configPath *string) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send ADDR SELECTOR [ARGS...]",
		Short: "Call a remote function",
		Long: `Connect to ADDR, call SELECTOR and print the reply as JSON.

Arguments are parsed as CLON, for example:
  qnet send tcp://localhost:14004 Echo [ hello 42 ]`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var sargs any
			if len(args) > 2 {
				var err error
				sargs, err = clon.Parse(args[2:])
				if err != nil {
					return err
				}
			}

			nd, err := newNode(*configPath)
			if err != nil {
				return err
			}
			defer nd.Close(context.Background())

			p, err := nd.net.Connect(ctx, args[0])
			if err != nil {
				return err
			}

			var ret any
			if _, err := rpc.NewClient(p).Call(ctx, args[1], sargs, &ret); err != nil {
				return err
			}

			b, err := json.MarshalIndent(ret, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "call timeout")
	return cmd
}
