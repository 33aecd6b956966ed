package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/progrium/qnet-go/config"
	"github.com/progrium/qnet-go/observability"
	"github.com/progrium/qnet-go/talk"
)

// node is a network set up from the loaded configuration.
type node struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *observability.Metrics
	net     *talk.Network
}

func newNode(configPath string) (*node, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	var metrics *observability.Metrics
	if cfg.Metrics.Enable {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}
	n, err := talk.NewNetwork(
		talk.WithNetworkConfig(cfg.Network),
		talk.WithLogger(log),
		talk.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}
	return &node{cfg: cfg, log: log, metrics: metrics, net: n}, nil
}

func (n *node) Close(ctx context.Context) error {
	err := n.net.Close(ctx)
	n.log.Sync()
	return err
}
