package main

import (
	"github.com/progrium/qnet-go/talk"
)

// service is exported over rpc by qnet serve.
type service struct {
	net *talk.Network
}

// Echo returns its argument.
func (s service) Echo(v interface{}) interface{} {
	return v
}

func (s service) Ping() string {
	return "pong"
}

// Participants lists the ids of connected participants.
func (s service) Participants() []string {
	var ids []string
	for _, p := range s.net.Participants() {
		ids = append(ids, p.Pid().String())
	}
	return ids
}
