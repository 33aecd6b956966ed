package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/progrium/qnet-go/fn"
	"github.com/progrium/qnet-go/rpc"
	"github.com/progrium/qnet-go/talk"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run a node answering Echo, Ping and Participants calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			nd, err := newNode(*configPath)
			if err != nil {
				return err
			}
			srv := &rpc.Server{
				Handler: fn.HandlerFrom(service{net: nd.net}),
				Log:     nd.log,
			}
			respond := func(p *talk.Participant) {
				err := srv.Respond(ctx, p.Opened, p)
				nd.log.Debug("participant done", zap.Stringer("participant", p.Pid()), zap.Error(err))
			}

			for _, addr := range nd.cfg.Network.Listen {
				if _, err := nd.net.Listen(ctx, addr); err != nil {
					nd.Close(context.Background())
					return err
				}
			}
			for _, addr := range nd.cfg.Network.Connect {
				p, err := nd.net.Connect(ctx, addr)
				if err != nil {
					nd.log.Warn("connect failed", zap.String("addr", addr), zap.Error(err))
					continue
				}
				go respond(p)
			}

			var admin *http.Server
			if nd.cfg.Metrics.Enable {
				admin = &http.Server{
					Addr:              nd.cfg.Metrics.Addr,
					Handler:           adminRouter(nd.net, nd.metrics),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					nd.log.Info("admin listening", zap.String("addr", admin.Addr))
					if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						nd.log.Error("admin server", zap.Error(err))
					}
				}()
			}

			go func() {
				for {
					p, err := nd.net.Connected(ctx)
					if err != nil {
						return
					}
					go respond(p)
				}
			}()

			<-ctx.Done()
			nd.log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if admin != nil {
				admin.Shutdown(shutdownCtx)
			}
			return nd.Close(shutdownCtx)
		},
	}
}
