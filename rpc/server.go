package rpc

import (
	"context"

	"go.uber.org/zap"

	"github.com/progrium/qnet-go/mux"
)

// Server wraps a Handler to respond to calls.
type Server struct {
	Handler Handler
	Log     *zap.Logger
}

// Respond accepts streams until accept fails and responds to each in its
// own goroutine. peer, if not nil, lets handlers call back through
// Call.Caller. If Handler was not set, an empty RespondMux is used. If the
// handler does not respond, a nil value is returned. If the handler does
// not call Continue, the stream is closed.
func (s *Server) Respond(ctx context.Context, accept AcceptFunc, peer Opener) error {
	hn := s.Handler
	if hn == nil {
		hn = NewRespondMux()
	}
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	var caller Caller
	if peer != nil {
		caller = NewClient(peer)
	}

	for {
		st, err := accept(ctx)
		if err != nil {
			return err
		}
		go s.respond(ctx, log, hn, caller, st)
	}
}

func (s *Server) respond(ctx context.Context, log *zap.Logger, hn Handler, caller Caller, st *mux.Stream) {
	var header CallHeader
	if err := st.Recv(ctx, &header); err != nil {
		log.Debug("reading call header", zap.Uint64("sid", st.ID()), zap.Error(err))
		st.Close()
		return
	}

	call := &Call{
		Selector: cleanSelector(header.Selector),
		Caller:   caller,
		Context:  ctx,
		stream:   st,
	}
	resp := &responder{
		header: &ResponseHeader{},
		stream: st,
	}

	hn.RespondRPC(resp, call)
	if !resp.responded {
		if err := resp.Return(nil); err != nil {
			log.Debug("responding", zap.String("selector", call.Selector), zap.Error(err))
		}
	}
}
