package mux

import (
	"time"

	"go.uber.org/zap"

	"github.com/progrium/qnet-go/codec"
	"github.com/progrium/qnet-go/mux/message"
	"github.com/progrium/qnet-go/observability"
)

// Config tunes a Channel. Zero fields take defaults.
type Config struct {
	// Bandwidth is the channel budget in bytes per second.
	Bandwidth uint64
	// Tick is the scheduling interval.
	Tick time.Duration
	// AllocBlock bounds bytes allocated ahead of received message data.
	AllocBlock int
	// MaxMessageSize rejects larger incoming messages. 0 accepts any.
	MaxMessageSize uint64
	// WriteTimeout bounds a single transport write. A write hitting it is
	// retried on the next tick.
	WriteTimeout time.Duration
	// HandshakeTimeout closes channels whose peer never completes the
	// handshake.
	HandshakeTimeout time.Duration
	// Codec serializes values for Stream.Send and Stream.Recv.
	Codec codec.Codec

	Logger  *zap.Logger
	Metrics *observability.Metrics
}

const (
	DefaultBandwidth        = 25_000_000
	DefaultTick             = 10 * time.Millisecond
	DefaultWriteTimeout     = time.Millisecond
	DefaultHandshakeTimeout = 10 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Bandwidth == 0 {
		c.Bandwidth = DefaultBandwidth
	}
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if c.AllocBlock <= 0 {
		c.AllocBlock = message.AllocBlock
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Codec == nil {
		c.Codec = codec.CBORCodec{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
