package mux

import "errors"

var (
	// ErrStreamClosed is returned by stream operations after either side
	// closed the stream.
	ErrStreamClosed = errors.New("mux: stream closed")
	// ErrChannelClosing is returned by sends once a shutdown started.
	ErrChannelClosing = errors.New("mux: channel closing")
	// ErrChannelClosed is returned after a channel was shut down or closed
	// locally.
	ErrChannelClosed = errors.New("mux: channel closed")
	// ErrParticipantDisconnected is returned when the transport failed.
	ErrParticipantDisconnected = errors.New("mux: participant disconnected")
	// ErrProtocolViolation is returned when the peer sent something it
	// must not.
	ErrProtocolViolation = errors.New("mux: protocol violation")
	// ErrWrongMagic is returned when the peer's handshake is not ours.
	ErrWrongMagic = errors.New("mux: wrong magic number")
	// ErrIncompatibleVersion is returned when the peer speaks a different
	// major or minor version.
	ErrIncompatibleVersion = errors.New("mux: incompatible version")
	// ErrUnknownStream is returned for frames naming a stream that was
	// never opened.
	ErrUnknownStream = errors.New("mux: unknown stream")
	// ErrUnsupportedPromise is returned by Open for promises that cannot
	// be honored.
	ErrUnsupportedPromise = errors.New("mux: unsupported promise")
)
