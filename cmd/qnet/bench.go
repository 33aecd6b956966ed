package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/progrium/qnet-go/config"
	"github.com/progrium/qnet-go/fn"
	"github.com/progrium/qnet-go/mux/frame"
	"github.com/progrium/qnet-go/rpc"
)

func benchCmd(configPath *string) *cobra.Command {
	var (
		sizes []string
		prio  uint8
	)

	cmd := &cobra.Command{
		Use:   "bench ADDR",
		Short: "Measure echo throughput against a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			nd, err := newNode(*configPath)
			if err != nil {
				return err
			}
			defer nd.Close(context.Background())

			p, err := nd.net.Connect(ctx, args[0])
			if err != nil {
				return err
			}
			client := rpc.NewClient(p)
			client.Priority = prio
			client.Promises = frame.PromiseOrdered | frame.PromiseGuaranteedDelivery

			for _, s := range sizes {
				size, err := config.ParseByteSize(s)
				if err != nil {
					return err
				}
				data := make([]byte, size)
				rand.Read(data)

				start := time.Now()
				var ret []byte
				if _, err := client.Call(ctx, "Echo", fn.Args{data}, &ret); err != nil {
					return err
				}
				if !bytes.Equal(ret, data) {
					return errors.New("echoed data does not match")
				}
				diff := time.Since(start)
				fmt.Println("Bytes:", config.ByteSize(len(ret)), "RTT:", diff, "Thru:", config.ByteSize(float64(2*len(ret))/diff.Seconds()), "/s")
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&sizes, "sizes", []string{"1MB", "8MB", "32MB"}, "message sizes")
	cmd.Flags().Uint8Var(&prio, "prio", 0, "stream priority")
	return cmd
}
